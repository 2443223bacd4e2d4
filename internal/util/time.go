package util

import "time"

// TruncateToDay returns midnight of t's civil date in t's location.
func TruncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same civil date in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	a, b = a.In(loc), b.In(loc)
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// DaysBetween returns the number of civil days from a to b, ignoring the time of day.
func DaysBetween(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// Overlaps reports whether the event [start, end] falls into the window
// [from, to): it ends after from and starts before to. A zero length event
// matches when its instant lies in the window.
func Overlaps(start, end, from, to time.Time) bool {
	if !start.Before(to) {
		return false
	}
	if start.Equal(end) {
		return !start.Before(from)
	}
	return end.After(from)
}
