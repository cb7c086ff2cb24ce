package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dataponto/dataponto-backend/utils"
)

// PushClient calls a remote send-push-notification endpoint with the
// public function key.
type PushClient struct {
	URL    string
	APIKey string
	Client *http.Client
}

func NewPushClient(url, apiKey string, timeout time.Duration) *PushClient {
	if timeout <= 0 {
		timeout = DefaultPushTimeout
	}
	return &PushClient{URL: url, APIKey: apiKey, Client: &http.Client{Timeout: timeout}}
}

func (c *PushClient) Push(ctx context.Context, req DispatchRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("apikey", c.APIKey)

	resp, err := c.Client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("push dispatch request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("push dispatch returned %d: %s", resp.StatusCode, msg)
	}
	return nil
}

// AsyncPusher hands requests to the wrapped Pusher on a goroutine and
// returns immediately. Errors are logged, never returned.
type AsyncPusher struct {
	next    Pusher
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewAsyncPusher(next Pusher, timeout time.Duration) *AsyncPusher {
	if timeout <= 0 {
		timeout = DefaultPushTimeout
	}
	return &AsyncPusher{next: next, timeout: timeout}
}

func (a *AsyncPusher) Push(ctx context.Context, req DispatchRequest) error {
	// the push outlives the session that raised it
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer cancel()
		if err := a.next.Push(ctx, req); err != nil {
			utils.Error(logrus.Fields{"type": req.Type, "sender": req.SenderID}).
				Errorf("Failed to send push notification: %v", err)
		}
	}()
	return nil
}

// Wait blocks until every pending push has finished.
func (a *AsyncPusher) Wait() {
	a.wg.Wait()
}
