package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushClientSendsFunctionKey(t *testing.T) {
	var got DispatchRequest
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	client := NewPushClient(srv.URL, "anon-key", time.Second)
	req := DispatchRequest{Title: "t", Body: "b", SenderID: senderUUID, Type: TypeMessage}
	require.NoError(t, client.Push(context.Background(), req))

	assert.Equal(t, req, got)
	assert.Equal(t, "Bearer anon-key", headers.Get("Authorization"))
	assert.Equal(t, "anon-key", headers.Get("apikey"))
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
}

func TestPushClientReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to fetch subscriptions"}`))
	}))
	defer srv.Close()

	err := NewPushClient(srv.URL, "k", time.Second).Push(context.Background(), DispatchRequest{Title: "t"})
	assert.ErrorContains(t, err, "500")
}

type blockingPusher struct {
	release chan struct{}
	done    chan DispatchRequest
	ctxErr  chan error
}

func (b *blockingPusher) Push(ctx context.Context, req DispatchRequest) error {
	<-b.release
	b.ctxErr <- ctx.Err()
	b.done <- req
	return errors.New("logged, not returned")
}

func TestAsyncPusherDoesNotBlockCaller(t *testing.T) {
	next := &blockingPusher{release: make(chan struct{}), done: make(chan DispatchRequest, 1), ctxErr: make(chan error, 1)}
	async := NewAsyncPusher(next, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, async.Push(ctx, DispatchRequest{Title: "t"}))
	// the caller going away must not cancel the push
	cancel()
	close(next.release)
	async.Wait()

	assert.NoError(t, <-next.ctxErr)
	assert.Equal(t, "t", (<-next.done).Title)
}
