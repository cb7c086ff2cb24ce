package services

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dataponto/dataponto-backend/metrics"
	"github.com/dataponto/dataponto-backend/models"
	"github.com/dataponto/dataponto-backend/utils"
)

const (
	DefaultReminderInterval = time.Minute
	reminderNoticeDuration  = 10 * time.Second
	reminderTitle           = "📅 Compromisso chegando!"
)

// ReminderSource lists the appointments of a day that still ask for a
// reminder.
type ReminderSource interface {
	DueReminders(ctx context.Context, viewer, date, clock string) ([]models.Appointment, error)
}

// ReminderState remembers which appointments already raised a reminder
// during one session.
type ReminderState struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewReminderState() *ReminderState {
	return &ReminderState{seen: make(map[string]struct{})}
}

// MarkIfNew records id and reports whether it was absent.
func (s *ReminderState) MarkIfNew(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	return true
}

func (s *ReminderState) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[id]
	return ok
}

func (s *ReminderState) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// FiredReminder describes one reminder raised by an evaluation.
type FiredReminder struct {
	AppointmentID string
	Title         string
	MinutesUntil  int
}

// ReminderPoller periodically checks the viewer's appointments for today
// and raises a notice plus a broadcast push for each one entering its
// reminder window.
type ReminderPoller struct {
	source   ReminderSource
	notifier Notifier
	pusher   Pusher
	viewer   string
	loc      *time.Location

	Interval time.Duration
	Now      func() time.Time

	mu     sync.Mutex
	state  *ReminderState
	cancel context.CancelFunc
	done   chan struct{}
}

func NewReminderPoller(source ReminderSource, viewer string, notifier Notifier, pusher Pusher, loc *time.Location) *ReminderPoller {
	if loc == nil {
		loc = time.Local
	}
	return &ReminderPoller{
		source:   source,
		notifier: notifier,
		pusher:   pusher,
		viewer:   viewer,
		loc:      loc,
		Interval: DefaultReminderInterval,
		Now:      time.Now,
	}
}

// Start evaluates once right away and then on every tick until Stop or
// ctx is done. Without a viewer the poller stays idle. Each start gets a
// fresh ReminderState.
func (p *ReminderPoller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.viewer == "" || p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.state = NewReminderState()
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.run(ctx, p.done)
}

func (p *ReminderPoller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	interval := p.Interval
	if interval <= 0 {
		interval = DefaultReminderInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.evaluateLogged(ctx)
	for {
		select {
		case <-ticker.C:
			p.evaluateLogged(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *ReminderPoller) evaluateLogged(ctx context.Context) {
	if _, err := p.Evaluate(ctx); err != nil && ctx.Err() == nil {
		utils.Error(logrus.Fields{"viewer": p.viewer}).
			Errorf("Reminder check failed, retrying next tick: %v", err)
	}
}

// Stop cancels the ticker and waits for a running evaluation to return.
// It is safe to call more than once.
func (p *ReminderPoller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the ticker is armed.
func (p *ReminderPoller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *ReminderPoller) currentState() *ReminderState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == nil {
		p.state = NewReminderState()
	}
	return p.state
}

// Evaluate runs one reminder check and returns the reminders it raised.
func (p *ReminderPoller) Evaluate(ctx context.Context) ([]FiredReminder, error) {
	if p.viewer == "" {
		return nil, nil
	}
	state := p.currentState()
	now := p.Now().In(p.loc)

	appointments, err := p.source.DueReminders(ctx, p.viewer, now.Format(models.DateLayout), models.FormatClock(now))
	if err != nil {
		return nil, fmt.Errorf("fetch reminders: %w", err)
	}

	var fired []FiredReminder
	for _, apt := range appointments {
		if ctx.Err() != nil {
			return fired, ctx.Err()
		}
		if state.Has(apt.ID) {
			continue
		}

		hours, minutes, err := models.ParseClock(apt.StartTime)
		if err != nil {
			utils.Error(logrus.Fields{"appointment": apt.ID}).Warnf("Skipping reminder: %v", err)
			continue
		}
		start := time.Date(now.Year(), now.Month(), now.Day(), hours, minutes, 0, 0, now.Location())
		diff := int(math.Floor(start.Sub(now).Minutes()))
		if diff < 0 || diff > apt.ReminderLead() {
			continue
		}
		if !state.MarkIfNew(apt.ID) {
			continue
		}

		p.fire(ctx, apt, diff)
		fired = append(fired, FiredReminder{AppointmentID: apt.ID, Title: apt.Title, MinutesUntil: diff})
	}
	return fired, nil
}

func (p *ReminderPoller) fire(ctx context.Context, apt models.Appointment, diff int) {
	body := ReminderBody(apt.Title, diff)
	utils.Info(logrus.Fields{"viewer": p.viewer, "appointment": apt.ID}).
		Infof("Reminder: %s", body)
	metrics.RemindersFired.Inc()

	if p.notifier != nil {
		p.notifier.Notify(Notice{Title: reminderTitle, Description: body, Duration: reminderNoticeDuration})
	}
	if p.pusher != nil {
		// empty sender so every subscriber receives it
		req := DispatchRequest{Title: reminderTitle, Body: body, SenderID: "", Type: TypeAppointment}
		if err := p.pusher.Push(ctx, req); err != nil {
			utils.Error(logrus.Fields{"appointment": apt.ID}).Errorf("Reminder push failed: %v", err)
		}
	}
}

// ReminderBody renders the reminder text for an appointment starting in
// minutes.
func ReminderBody(title string, minutes int) string {
	var when string
	switch minutes {
	case 0:
		when = "agora!"
	case 1:
		when = "em 1 minuto!"
	default:
		when = fmt.Sprintf("em %d minutos!", minutes)
	}
	return fmt.Sprintf("\"%s\" começa %s", title, when)
}
