package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dataponto/dataponto-backend/models"
	"github.com/dataponto/dataponto-backend/utils"
)

// SourceType names the table a deadline comes from.
type SourceType string

const (
	SourceProject     SourceType = "project"
	SourceAppointment SourceType = "appointment"
	SourceGoal        SourceType = "goal"
)

// Route is the page that opens an item of this source.
func (s SourceType) Route() string {
	switch s {
	case SourceProject:
		return "/projetos"
	case SourceAppointment:
		return "/agenda"
	case SourceGoal:
		return "/metas"
	default:
		return "/dashboard"
	}
}

// DeadlineItem is one entry of the aggregated deadline list. It is
// recomputed on every aggregation and never stored.
type DeadlineItem struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	SourceType SourceType `json:"type"`
	Date       string     `json:"date"`
	Time       string     `json:"time,omitempty"`
	Urgency    Urgency    `json:"urgency"`
	Status     string     `json:"status,omitempty"`
	Progress   *int       `json:"progress,omitempty"`
	Route      string     `json:"route"`

	due time.Time
}

// DeadlineFilter selects a projection of the aggregated list.
type DeadlineFilter string

const (
	FilterAll         DeadlineFilter = "all"
	FilterOverdue     DeadlineFilter = "overdue"
	FilterToday       DeadlineFilter = "today"
	FilterUrgent      DeadlineFilter = "urgent"
	FilterWeek        DeadlineFilter = "week"
	FilterProject     DeadlineFilter = DeadlineFilter(SourceProject)
	FilterAppointment DeadlineFilter = DeadlineFilter(SourceAppointment)
	FilterGoal        DeadlineFilter = DeadlineFilter(SourceGoal)
)

var (
	ErrUnknownFilter = errors.New("unknown deadline filter")
	ErrNoViewer      = errors.New("no viewer identity")
)

// ParseDeadlineFilter validates a filter name; empty means all.
func ParseDeadlineFilter(name string) (DeadlineFilter, error) {
	switch f := DeadlineFilter(name); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterOverdue, FilterToday, FilterUrgent, FilterWeek,
		FilterProject, FilterAppointment, FilterGoal:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFilter, name)
	}
}

// DeadlineSource is the slice of the entity store the aggregator reads.
type DeadlineSource interface {
	OpenProjects(ctx context.Context, viewer string) ([]models.Project, error)
	UpcomingAppointments(ctx context.Context, viewer, today string) ([]models.Appointment, error)
	OpenGoals(ctx context.Context, viewer string) ([]models.Goal, error)
}

// SourceError reports a source that could not be fetched.
type SourceError struct {
	Source  SourceType `json:"source"`
	Message string     `json:"error"`
	Err     error      `json:"-"`
}

func (e SourceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e SourceError) Unwrap() error {
	return e.Err
}

// DeadlineSummary feeds the summary cards.
type DeadlineSummary struct {
	Overdue int `json:"overdue"`
	Today   int `json:"today"`
	Urgent  int `json:"urgent"`
	Total   int `json:"total"`
}

// DeadlineList is the sorted result of one aggregation pass.
type DeadlineList struct {
	items    []DeadlineItem
	now      time.Time
	Failures []SourceError
}

// Items returns a copy of the full list.
func (l *DeadlineList) Items() []DeadlineItem {
	out := make([]DeadlineItem, len(l.items))
	copy(out, l.items)
	return out
}

// Filter returns the items selected by f without touching the list.
func (l *DeadlineList) Filter(f DeadlineFilter) []DeadlineItem {
	out := make([]DeadlineItem, 0, len(l.items))
	for _, item := range l.items {
		if l.matches(item, f) {
			out = append(out, item)
		}
	}
	return out
}

func (l *DeadlineList) matches(item DeadlineItem, f DeadlineFilter) bool {
	switch f {
	case FilterAll, "":
		return true
	case FilterOverdue:
		return item.Urgency == UrgencyOverdue
	case FilterToday:
		return item.Urgency == UrgencyToday
	case FilterUrgent:
		return item.Urgency == UrgencyUrgent || item.Urgency == UrgencyToday
	case FilterWeek:
		days := DaysUntil(item.due, l.now)
		return days >= 0 && days <= soonWithinDays
	default:
		return item.SourceType == SourceType(f)
	}
}

// Summary counts the overdue, today and urgent items.
func (l *DeadlineList) Summary() DeadlineSummary {
	s := DeadlineSummary{Total: len(l.items)}
	for _, item := range l.items {
		switch item.Urgency {
		case UrgencyOverdue:
			s.Overdue++
		case UrgencyToday:
			s.Today++
		case UrgencyUrgent:
			s.Urgent++
		}
	}
	return s
}

// DeadlineAggregator merges projects, appointments and goals into one
// urgency-tagged list sorted by date.
type DeadlineAggregator struct {
	source DeadlineSource
	Now    func() time.Time
}

func NewDeadlineAggregator(source DeadlineSource, loc *time.Location) *DeadlineAggregator {
	if loc == nil {
		loc = time.Local
	}
	return &DeadlineAggregator{
		source: source,
		Now:    func() time.Time { return time.Now().In(loc) },
	}
}

// Aggregate fetches the three sources for viewer. A failing source is
// logged and reported in Failures; the others still contribute.
func (a *DeadlineAggregator) Aggregate(ctx context.Context, viewer string) (*DeadlineList, error) {
	if viewer == "" {
		return nil, ErrNoViewer
	}

	now := a.Now()
	list := &DeadlineList{now: now}
	log := utils.Info(logrus.Fields{"viewer": viewer})

	fetches := []struct {
		source SourceType
		fetch  func() ([]DeadlineItem, error)
	}{
		{SourceProject, func() ([]DeadlineItem, error) { return a.projects(ctx, viewer, now) }},
		{SourceAppointment, func() ([]DeadlineItem, error) { return a.appointments(ctx, viewer, now) }},
		{SourceGoal, func() ([]DeadlineItem, error) { return a.goals(ctx, viewer, now) }},
	}
	for _, f := range fetches {
		items, err := f.fetch()
		if err != nil {
			utils.Error(logrus.Fields{"viewer": viewer, "source": f.source}).
				Errorf("Deadline source failed: %v", err)
			list.Failures = append(list.Failures, SourceError{Source: f.source, Message: err.Error(), Err: err})
			continue
		}
		list.items = append(list.items, items...)
	}

	sort.SliceStable(list.items, func(i, j int) bool {
		return list.items[i].due.Before(list.items[j].due)
	})

	log.Debugf("Aggregated %d deadlines (%d sources failed)", len(list.items), len(list.Failures))
	return list, nil
}

func (a *DeadlineAggregator) newItem(source SourceType, id, title, date string, now time.Time) (DeadlineItem, bool) {
	due, err := models.ParseDate(date, now.Location())
	if err != nil {
		utils.Error(logrus.Fields{"source": source, "id": id}).Warnf("Skipping deadline: %v", err)
		return DeadlineItem{}, false
	}
	return DeadlineItem{
		ID:         id,
		Title:      title,
		SourceType: source,
		Date:       due.Format(models.DateLayout),
		Urgency:    Classify(due, now),
		Route:      source.Route(),
		due:        due,
	}, true
}

func (a *DeadlineAggregator) projects(ctx context.Context, viewer string, now time.Time) ([]DeadlineItem, error) {
	projects, err := a.source.OpenProjects(ctx, viewer)
	if err != nil {
		return nil, err
	}
	items := make([]DeadlineItem, 0, len(projects))
	for _, p := range projects {
		if p.DueDate == nil {
			continue
		}
		item, ok := a.newItem(SourceProject, p.ID, p.Name, *p.DueDate, now)
		if !ok {
			continue
		}
		item.Status = p.Status
		items = append(items, item)
	}
	return items, nil
}

func (a *DeadlineAggregator) appointments(ctx context.Context, viewer string, now time.Time) ([]DeadlineItem, error) {
	appointments, err := a.source.UpcomingAppointments(ctx, viewer, now.Format(models.DateLayout))
	if err != nil {
		return nil, err
	}
	items := make([]DeadlineItem, 0, len(appointments))
	for _, apt := range appointments {
		item, ok := a.newItem(SourceAppointment, apt.ID, apt.Title, apt.AppointmentDate, now)
		if !ok {
			continue
		}
		if h, m, err := models.ParseClock(apt.StartTime); err == nil {
			item.Time = fmt.Sprintf("%02d:%02d", h, m)
		}
		items = append(items, item)
	}
	return items, nil
}

func (a *DeadlineAggregator) goals(ctx context.Context, viewer string, now time.Time) ([]DeadlineItem, error) {
	goals, err := a.source.OpenGoals(ctx, viewer)
	if err != nil {
		return nil, err
	}
	items := make([]DeadlineItem, 0, len(goals))
	for _, g := range goals {
		item, ok := a.newItem(SourceGoal, g.ID, g.Title, g.DueDate, now)
		if !ok {
			continue
		}
		progress := g.Progress
		item.Status = g.Status
		item.Progress = &progress
		items = append(items, item)
	}
	return items, nil
}
