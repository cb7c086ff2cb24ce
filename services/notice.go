package services

import (
	"context"
	"time"
)

// Notice is an in-app toast shown in the viewer's open session.
type Notice struct {
	Title       string
	Description string
	Duration    time.Duration
}

// Notifier shows notices to one viewer.
type Notifier interface {
	Notify(n Notice)
}

// Pusher hands a notification to the push dispatch service.
type Pusher interface {
	Push(ctx context.Context, req DispatchRequest) error
}

// ViewTracker reports the page the viewer currently has open.
type ViewTracker interface {
	CurrentView() string
}
