// Package mealdate holds the calendar-day helpers shared by the planner,
// the calendar and the last-eaten engine. Days are civil dates (YYYY-MM-DD)
// with no time-of-day component; "today" is resolved in one configured zone.
package mealdate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

var ErrInvalidDate = errors.New("invalid date")

// Clock reports the current calendar day.
type Clock interface {
	Today() civil.Date
}

// SystemClock reads the wall clock in Location (time.Local when nil).
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Today() civil.Date {
	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	return civil.DateOf(time.Now().In(loc))
}

// FixedClock always reports the same day. Used by tests and the smoke runner.
type FixedClock struct {
	Date civil.Date
}

func (c FixedClock) Today() civil.Date {
	return c.Date
}

// LoadLocation resolves APP_TIMEZONE. An empty name means server-local time.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", name, err)
	}
	return loc, nil
}

// Parse reads a YYYY-MM-DD day.
func Parse(s string) (civil.Date, error) {
	d, err := civil.ParseDate(strings.TrimSpace(s))
	if err != nil {
		return civil.Date{}, fmt.Errorf("%w: %q must be YYYY-MM-DD", ErrInvalidDate, s)
	}
	return d, nil
}

// ParseFlexible accepts YYYY-MM-DD or an RFC3339 timestamp; timestamps are
// converted to the calendar day they fall on in loc.
func ParseFlexible(s string, loc *time.Location) (civil.Date, error) {
	s = strings.TrimSpace(s)
	if d, err := civil.ParseDate(s); err == nil {
		return d, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("%w: %q must be YYYY-MM-DD or RFC3339", ErrInvalidDate, s)
	}
	if loc == nil {
		loc = time.Local
	}
	return civil.DateOf(t.In(loc)), nil
}

// WeekStart returns the ISO Monday of the week containing d.
func WeekStart(d civil.Date) civil.Date {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDays(-offset)
}

func IsWeekStart(d civil.Date) bool {
	return d.Weekday() == time.Monday
}

// InWeek reports whether d falls within the week beginning at weekStart.
func InWeek(weekStart, d civil.Date) bool {
	return !d.Before(weekStart) && d.Before(weekStart.AddDays(7))
}

// WeekDays lists the seven days of the week starting at weekStart.
func WeekDays(weekStart civil.Date) []civil.Date {
	days := make([]civil.Date, 7)
	for i := range days {
		days[i] = weekStart.AddDays(i)
	}
	return days
}
