package services

import "time"

// Urgency tiers a deadline by how close its date is to now.
type Urgency string

const (
	UrgencyOverdue Urgency = "overdue"
	UrgencyToday   Urgency = "today"
	UrgencyUrgent  Urgency = "urgent"
	UrgencySoon    Urgency = "soon"
	UrgencyNormal  Urgency = "normal"
)

const (
	urgentWithinDays = 3
	soonWithinDays   = 7
)

// Rank orders tiers from least (normal) to most (overdue) urgent.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyOverdue:
		return 4
	case UrgencyToday:
		return 3
	case UrgencyUrgent:
		return 2
	case UrgencySoon:
		return 1
	default:
		return 0
	}
}

// DaysUntil counts whole calendar days from now's day to date's day.
// The calendar fields of date are taken as-is; now is read in its own
// location.
func DaysUntil(date, now time.Time) int {
	dy, dm, dd := date.Date()
	ny, nm, nd := now.Date()
	a := time.Date(dy, dm, dd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return int(a.Sub(b).Hours() / 24)
}

// Classify maps a calendar date to its urgency tier relative to now.
func Classify(date, now time.Time) Urgency {
	days := DaysUntil(date, now)
	switch {
	case days < 0:
		return UrgencyOverdue
	case days == 0:
		return UrgencyToday
	case days <= urgentWithinDays:
		return UrgencyUrgent
	case days <= soonWithinDays:
		return UrgencySoon
	default:
		return UrgencyNormal
	}
}
