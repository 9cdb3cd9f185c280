package task

import "time"

// Window is a half-open expiry range [From, To) in UTC.
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

func startOfDay(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// TodayWindow covers the current UTC calendar day.
func TodayWindow(now time.Time) Window {
	d := startOfDay(now)
	return Window{From: d, To: d.AddDate(0, 0, 1)}
}

// NextDayWindow covers the UTC calendar day after now.
func NextDayWindow(now time.Time) Window {
	d := startOfDay(now).AddDate(0, 0, 1)
	return Window{From: d, To: d.AddDate(0, 0, 1)}
}

// WeekWindow covers the dates from the most recent Sunday through the
// following Sunday, both inclusive: eight calendar days.
func WeekWindow(now time.Time) Window {
	d := startOfDay(now)
	start := d.AddDate(0, 0, -int(d.Weekday()))
	return Window{From: start, To: start.AddDate(0, 0, 8)}
}
