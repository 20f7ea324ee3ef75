package types

import "time"

// DateLayout is the canonical calendar-date layout used in exports and API dates
const DateLayout = "2006-01-02"

func ParseTime(t string) (time.Time, error) {
	return time.Parse(time.RFC3339, t)
}

func FormatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

// ParseDate parses a YYYY-MM-DD calendar date at beginning of day UTC
func ParseDate(d string) (time.Time, error) {
	return time.Parse(DateLayout, d)
}

// FormatDate formats a time as a YYYY-MM-DD calendar date
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// BeginningOfDay truncates a time to midnight UTC of the same calendar day
func BeginningOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of whole calendar days from a to b (b - a).
// Negative when b is before a.
func DaysBetween(a, b time.Time) int {
	return int(BeginningOfDay(b).Sub(BeginningOfDay(a)).Hours() / 24)
}
