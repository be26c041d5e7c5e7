package scheduler

import (
	"fmt"
	"time"
)

// Interval is the retrain cadence.
type Interval string

const (
	Daily   Interval = "daily"
	Weekly  Interval = "weekly"
	Monthly Interval = "monthly"
)

// ParseInterval accepts daily, weekly, monthly or a Go duration such as "6h".
func ParseInterval(s string) (Interval, error) {
	switch Interval(s) {
	case Daily, Weekly, Monthly:
		return Interval(s), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return "", fmt.Errorf("parse interval %q: want daily, weekly, monthly or a positive duration", s)
	}
	return Interval(s), nil
}

// Next returns the first run time strictly after now. Calendar cadences fire
// at hour:00 UTC: every day, every Sunday, or on the first of each month.
func (i Interval) Next(now time.Time, hour int) time.Time {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	switch i {
	case Daily:
		if !day.After(now) {
			day = day.AddDate(0, 0, 1)
		}
		return day
	case Weekly:
		day = day.AddDate(0, 0, -int(day.Weekday()))
		if !day.After(now) {
			day = day.AddDate(0, 0, 7)
		}
		return day
	case Monthly:
		first := time.Date(now.Year(), now.Month(), 1, hour, 0, 0, 0, time.UTC)
		if !first.After(now) {
			first = first.AddDate(0, 1, 0)
		}
		return first
	}
	d, err := time.ParseDuration(string(i))
	if err != nil || d <= 0 {
		d = 24 * time.Hour
	}
	return now.Add(d)
}
