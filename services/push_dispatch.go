package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dataponto/dataponto-backend/metrics"
	"github.com/dataponto/dataponto-backend/models"
	"github.com/dataponto/dataponto-backend/utils"
)

const (
	TypeMessage     = "message"
	TypeAppointment = "appointment"

	DefaultPushWorkers = 4
)

var (
	ErrInvalidRequest   = errors.New("invalid push request")
	ErrStoreUnavailable = errors.New("failed to fetch subscriptions")
)

var uuidPattern = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// DispatchRequest is the body of a send-push-notification call.
type DispatchRequest struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	SenderID string `json:"sender_id"`
	Type     string `json:"type"`
}

// PushPayload is the JSON the service worker receives.
type PushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Type  string `json:"type"`
	URL   string `json:"url"`
}

// Sender delivers one payload to one subscription endpoint and returns the
// endpoint's status code and response body.
type Sender interface {
	Send(ctx context.Context, sub models.PushSubscription, payload []byte) (int, string, error)
}

type SubscriptionStore interface {
	Subscriptions(ctx context.Context, excludeUserID string) ([]models.PushSubscription, error)
	DeleteSubscription(ctx context.Context, id string) error
}

// Delivery is the outcome for one subscription.
type Delivery struct {
	SubscriptionID string `json:"subscription_id"`
	Outcome        string `json:"outcome"`
	StatusCode     int    `json:"status_code,omitempty"`
	Detail         string `json:"detail,omitempty"`
}

// Summary renders the delivery as one line of the endpoint's results.
func (d Delivery) Summary() string {
	switch d.Outcome {
	case metrics.OutcomeSent:
		return "Sent to " + d.SubscriptionID
	case metrics.OutcomeExpired:
		return "Removed expired subscription " + d.SubscriptionID
	case metrics.OutcomeFailed:
		return fmt.Sprintf("Failed for %s: %d - %s", d.SubscriptionID, d.StatusCode, d.Detail)
	default:
		return fmt.Sprintf("Error for %s: %s", d.SubscriptionID, d.Detail)
	}
}

// DispatchResult keeps deliveries in subscription order.
type DispatchResult struct {
	Deliveries []Delivery
}

func (r DispatchResult) Summaries() []string {
	out := make([]string, len(r.Deliveries))
	for i, d := range r.Deliveries {
		out[i] = d.Summary()
	}
	return out
}

// Count returns how many deliveries ended with outcome.
func (r DispatchResult) Count(outcome string) int {
	n := 0
	for _, d := range r.Deliveries {
		if d.Outcome == outcome {
			n++
		}
	}
	return n
}

// PushDispatcher fans a notification out to every stored subscription.
type PushDispatcher struct {
	store   SubscriptionStore
	sender  Sender
	Workers int
}

func NewPushDispatcher(store SubscriptionStore, sender Sender) *PushDispatcher {
	return &PushDispatcher{store: store, sender: sender, Workers: DefaultPushWorkers}
}

// NewPayload fills the defaults the service worker relies on.
func NewPayload(req DispatchRequest) PushPayload {
	kind := strings.TrimSpace(req.Type)
	if kind == "" {
		kind = TypeMessage
	}
	url := "/agenda"
	if kind == TypeMessage {
		url = "/chat"
	}
	return PushPayload{Title: req.Title, Body: req.Body, Type: kind, URL: url}
}

// Dispatch sends req to all subscriptions except the sender's own. Any
// well-formed request is sent, blank fields included. Only an unencodable
// payload or a failing store yields an error; per-recipient failures are
// reported in the result.
func (d *PushDispatcher) Dispatch(ctx context.Context, req DispatchRequest) (DispatchResult, error) {
	exclude := ""
	if uuidPattern.MatchString(req.SenderID) {
		exclude = req.SenderID
	}

	subs, err := d.store.Subscriptions(ctx, exclude)
	if err != nil {
		utils.Error(logrus.Fields{"sender": req.SenderID}).Errorf("Error fetching subscriptions: %v", err)
		return DispatchResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(subs) == 0 {
		return DispatchResult{}, nil
	}

	payload, err := json.Marshal(NewPayload(req))
	if err != nil {
		return DispatchResult{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	started := time.Now()
	defer func() { metrics.PushDispatchDuration.Observe(time.Since(started).Seconds()) }()

	workers := d.Workers
	if workers <= 0 {
		workers = DefaultPushWorkers
	}

	deliveries := make([]Delivery, len(subs))
	// plain Group: one recipient's failure must not cancel the others
	var g errgroup.Group
	g.SetLimit(workers)
	for i, sub := range subs {
		g.Go(func() error {
			deliveries[i] = d.deliver(ctx, sub, payload)
			return nil
		})
	}
	_ = g.Wait()

	for _, del := range deliveries {
		metrics.PushDeliveries.WithLabelValues(del.Outcome).Inc()
	}
	utils.Info(logrus.Fields{"sender": req.SenderID, "type": req.Type}).
		Infof("Push dispatched to %d subscriptions", len(deliveries))

	return DispatchResult{Deliveries: deliveries}, nil
}

func (d *PushDispatcher) deliver(ctx context.Context, sub models.PushSubscription, payload []byte) Delivery {
	del := Delivery{SubscriptionID: sub.ID}
	log := utils.Error(logrus.Fields{"subscription": sub.ID})

	status, body, err := d.sender.Send(ctx, sub, payload)
	switch {
	case err != nil:
		del.Outcome = metrics.OutcomeError
		del.Detail = err.Error()
		log.Warnf("Push transport error: %v", err)
	case status == http.StatusNotFound || status == http.StatusGone:
		del.Outcome = metrics.OutcomeExpired
		del.StatusCode = status
		if err := d.store.DeleteSubscription(ctx, sub.ID); err != nil {
			log.Errorf("Failed to remove expired subscription: %v", err)
		}
	case status < 200 || status > 299:
		del.Outcome = metrics.OutcomeFailed
		del.StatusCode = status
		del.Detail = body
		log.Warnf("Push rejected with status %d", status)
	default:
		del.Outcome = metrics.OutcomeSent
		del.StatusCode = status
	}
	return del
}

// Push lets the dispatcher serve as an in-process Pusher.
func (d *PushDispatcher) Push(ctx context.Context, req DispatchRequest) error {
	_, err := d.Dispatch(ctx, req)
	return err
}
