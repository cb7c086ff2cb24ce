package services

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"

	"github.com/dataponto/dataponto-backend/models"
	"github.com/dataponto/dataponto-backend/utils"
)

const (
	DefaultPushTTL     = 86400
	DefaultPushTimeout = 15 * time.Second
	maxErrorBody       = 1024
)

// VAPIDKeys is an application server key pair, both halves URL-safe
// base64 without padding.
type VAPIDKeys struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

func GenerateVAPIDKeys() (VAPIDKeys, error) {
	private, public, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return VAPIDKeys{}, err
	}
	return VAPIDKeys{PublicKey: public, PrivateKey: private}, nil
}

// WebPushSender delivers encrypted payloads signed with the VAPID keys.
type WebPushSender struct {
	keys    VAPIDKeys
	subject string
	TTL     int
	Client  *http.Client
}

func NewWebPushSender(keys VAPIDKeys, subject string, ttl int, timeout time.Duration) *WebPushSender {
	if timeout <= 0 {
		timeout = DefaultPushTimeout
	}
	return &WebPushSender{
		keys: keys,
		// the library adds the mailto: scheme itself
		subject: strings.TrimPrefix(subject, "mailto:"),
		TTL:     ttl,
		Client:  &http.Client{Timeout: timeout},
	}
}

func (s *WebPushSender) Send(ctx context.Context, sub models.PushSubscription, payload []byte) (int, string, error) {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
	}, &webpush.Options{
		HTTPClient:      s.Client,
		Subscriber:      s.subject,
		TTL:             s.TTL,
		Urgency:         webpush.UrgencyNormal,
		VAPIDPublicKey:  s.keys.PublicKey,
		VAPIDPrivateKey: s.keys.PrivateKey,
	})
	if err != nil {
		return 0, "", err
	}
	return readPushResponse(resp)
}

// PlainSender posts the payload unencrypted. Only push endpoints that
// accept unauthenticated bodies honour it; it is used when no VAPID keys
// are configured.
type PlainSender struct {
	TTL    int
	Client *http.Client
}

func NewPlainSender(ttl int, timeout time.Duration) *PlainSender {
	if timeout <= 0 {
		timeout = DefaultPushTimeout
	}
	return &PlainSender{TTL: ttl, Client: &http.Client{Timeout: timeout}}
}

func (s *PlainSender) Send(ctx context.Context, sub models.PushSubscription, payload []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("TTL", strconv.Itoa(s.TTL))

	resp, err := s.Client.Do(req)
	if err != nil {
		return 0, "", err
	}
	return readPushResponse(resp)
}

func readPushResponse(resp *http.Response) (int, string, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return resp.StatusCode, "", nil
	}
	return resp.StatusCode, string(body), nil
}

// NewSender picks the VAPID sender when both keys are set.
func NewSender(keys VAPIDKeys, subject string, ttl int, timeout time.Duration) Sender {
	if keys.PublicKey != "" && keys.PrivateKey != "" {
		return NewWebPushSender(keys, subject, ttl, timeout)
	}
	utils.Error(logrus.Fields{}).Warn("VAPID keys not configured, push payloads will be sent unencrypted")
	return NewPlainSender(ttl, timeout)
}
