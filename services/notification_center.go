package services

import (
	"context"
	"time"
)

// SessionSink is the live session notifications are delivered to.
type SessionSink interface {
	Notifier
	ViewTracker
}

// NotificationStore is what a session's poller and watcher read.
type NotificationStore interface {
	ReminderSource
	NameResolver
}

// NotificationCenter arms the reminder poller and the message watcher of
// each live session.
type NotificationCenter struct {
	Store            NotificationStore
	Feed             MessageFeed
	Pusher           Pusher
	Location         *time.Location
	ReminderInterval time.Duration
}

// Enable starts notifications for viewer on sink and returns the teardown
// that stops both. The teardown returns once neither can fire again.
func (nc *NotificationCenter) Enable(ctx context.Context, viewer string, sink SessionSink) func() {
	poller := NewReminderPoller(nc.Store, viewer, sink, nc.Pusher, nc.Location)
	if nc.ReminderInterval > 0 {
		poller.Interval = nc.ReminderInterval
	}

	watcher := NewMessageWatcher(nc.Store, viewer,
		ToastObserver{Notifier: sink, Views: sink},
		PushObserver{Pusher: nc.Pusher},
	)

	poller.Start(ctx)
	watcher.Watch(nc.Feed)

	return func() {
		watcher.Close()
		poller.Stop()
	}
}
