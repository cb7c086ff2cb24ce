package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// ParseDate reads a calendar date column. Drivers hand dates back either
// as "2006-01-02" or as a full timestamp, so only the date part is used.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if len(value) < len(DateLayout) {
		return time.Time{}, fmt.Errorf("invalid date %q", value)
	}
	return time.ParseInLocation(DateLayout, value[:len(DateLayout)], loc)
}

// ParseClock reads a time-of-day column ("15:04", "15:04:05" or
// "15:04:05.000000") into hours and minutes.
func ParseClock(value string) (int, int, error) {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("invalid time %q", value)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return 0, 0, fmt.Errorf("invalid time %q", value)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, 0, fmt.Errorf("invalid time %q", value)
	}
	return hours, minutes, nil
}

// FormatClock renders t as the "HH:MM" used in time-of-day filters.
func FormatClock(t time.Time) string {
	return t.Format(ClockLayout)
}
