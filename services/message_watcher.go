package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dataponto/dataponto-backend/models"
	"github.com/dataponto/dataponto-backend/utils"
)

const (
	ChatPath           = "/chat"
	defaultSenderName  = "Alguém"
	previewLength      = 50
	messageNoticeTitle = "💬 Nova mensagem de "
	messageNoticeTime  = 8 * time.Second
)

// MessageHandler receives each newly inserted chat message.
type MessageHandler func(ctx context.Context, msg models.Message)

// Subscription is the dispose handle of a feed subscription. Close may be
// called more than once.
type Subscription interface {
	Close()
}

// MessageFeed publishes chat inserts.
type MessageFeed interface {
	Subscribe(handler MessageHandler) Subscription
}

type NameResolver interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// MessageEvent is a chat insert prepared for presentation.
type MessageEvent struct {
	Message    models.Message
	SenderName string
	Preview    string
}

func (e MessageEvent) Title() string {
	return messageNoticeTitle + e.SenderName
}

type MessageObserver interface {
	OnMessage(ctx context.Context, ev MessageEvent)
}

// MessageWatcher turns chat inserts written by others into events for its
// observers.
type MessageWatcher struct {
	names     NameResolver
	viewer    string
	observers []MessageObserver

	mu  sync.Mutex
	sub Subscription
}

func NewMessageWatcher(names NameResolver, viewer string, observers ...MessageObserver) *MessageWatcher {
	return &MessageWatcher{names: names, viewer: viewer, observers: observers}
}

// Watch subscribes to feed. A watcher without a viewer stays idle.
func (w *MessageWatcher) Watch(feed MessageFeed) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.viewer == "" || w.sub != nil {
		return
	}
	w.sub = feed.Subscribe(func(ctx context.Context, msg models.Message) {
		w.Handle(ctx, msg)
	})
}

// Close ends the subscription; no handler runs after it returns.
func (w *MessageWatcher) Close() {
	w.mu.Lock()
	sub := w.sub
	w.sub = nil
	w.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
}

// Handle processes one insert and reports whether observers were called.
func (w *MessageWatcher) Handle(ctx context.Context, msg models.Message) (MessageEvent, bool) {
	if msg.SenderID == w.viewer {
		return MessageEvent{}, false
	}

	name, err := w.names.DisplayName(ctx, msg.SenderID)
	if err != nil {
		utils.Error(logrus.Fields{"sender": msg.SenderID}).Warnf("Profile lookup failed: %v", err)
	}
	if name == "" {
		name = defaultSenderName
	}

	ev := MessageEvent{Message: msg, SenderName: name, Preview: Preview(msg.Content)}
	for _, o := range w.observers {
		o.OnMessage(ctx, ev)
	}
	return ev, true
}

// Preview cuts content to its first 50 characters, marking the cut.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength]) + "..."
}

// ToastObserver shows an in-app notice unless the viewer is already on
// the chat page.
type ToastObserver struct {
	Notifier Notifier
	Views    ViewTracker
}

func (o ToastObserver) OnMessage(ctx context.Context, ev MessageEvent) {
	if o.Views != nil && o.Views.CurrentView() == ChatPath {
		return
	}
	o.Notifier.Notify(Notice{Title: ev.Title(), Description: ev.Preview, Duration: messageNoticeTime})
}

// PushObserver forwards every message to the push dispatch service, which
// skips the author's own devices.
type PushObserver struct {
	Pusher Pusher
}

func (o PushObserver) OnMessage(ctx context.Context, ev MessageEvent) {
	err := o.Pusher.Push(ctx, DispatchRequest{
		Title:    ev.Title(),
		Body:     ev.Preview,
		SenderID: ev.Message.SenderID,
		Type:     TypeMessage,
	})
	if err != nil {
		utils.Error(logrus.Fields{"message": ev.Message.ID}).Errorf("Message push failed: %v", err)
	}
}
