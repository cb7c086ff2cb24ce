package services

import (
	"context"
	"sync"

	"github.com/dataponto/dataponto-backend/models"
)

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recordingNotifier) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recordingNotifier) All() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.notices))
	copy(out, r.notices)
	return out
}

type recordingPusher struct {
	mu   sync.Mutex
	reqs []DispatchRequest
	err  error
}

func (r *recordingPusher) Push(ctx context.Context, req DispatchRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	return r.err
}

func (r *recordingPusher) All() []DispatchRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]DispatchRequest, len(r.reqs))
	copy(out, r.reqs)
	return out
}

type staticView string

func (v staticView) CurrentView() string { return string(v) }

type fakeNames map[string]string

func (f fakeNames) DisplayName(ctx context.Context, userID string) (string, error) {
	return f[userID], nil
}

type fakeSubscriptionStore struct {
	mu      sync.Mutex
	subs    []models.PushSubscription
	deleted []string
	exclude string
	err     error
}

func (f *fakeSubscriptionStore) Subscriptions(ctx context.Context, excludeUserID string) ([]models.PushSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exclude = excludeUserID
	if f.err != nil {
		return nil, f.err
	}
	var out []models.PushSubscription
	for _, s := range f.subs {
		if excludeUserID != "" && s.UserID == excludeUserID {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSubscriptionStore) DeleteSubscription(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func intPtr(n int) *int { return &n }
