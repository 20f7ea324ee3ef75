package types

import (
	"sort"
	"strconv"
	"strings"
	"time"

	ierr "github.com/memberbill/memberbill/internal/errors"
)

// DefaultReminderSchedule is used when neither the subscription nor its
// product carries a schedule of its own
const DefaultReminderSchedule = "30,15,7"

// ReminderSchedule is an ordered set of day offsets before a renewal due date.
// Offsets are kept in descending order so that index 0 is the earliest
// reminder. Reminders fire in descending proximity order and an offset whose
// date was already covered by a closer reminder never fires again.
type ReminderSchedule []int

// ParseReminderSchedule parses a comma separated list of day offsets such as
// "30,15,7". Offsets are normalized to descending order with duplicates
// removed; empty segments are ignored. Non numeric or negative entries fail
// with a configuration error.
func ParseReminderSchedule(raw string) (ReminderSchedule, error) {
	parts := strings.Split(raw, ",")
	seen := make(map[int]bool)
	offsets := make([]int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		days, err := strconv.Atoi(part)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHint("Reminder schedule entries must be whole numbers of days").
				WithReportableDetails(map[string]any{
					"schedule": raw,
					"entry":    part,
				}).
				Mark(ierr.ErrConfiguration)
		}
		if days < 0 {
			return nil, ierr.NewError("negative reminder offset").
				WithHint("Reminder schedule entries must not be negative").
				WithReportableDetails(map[string]any{
					"schedule": raw,
					"entry":    part,
				}).
				Mark(ierr.ErrConfiguration)
		}
		if !seen[days] {
			seen[days] = true
			offsets = append(offsets, days)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(offsets)))
	return ReminderSchedule(offsets), nil
}

// MustParseReminderSchedule panics on parse failure. Intended for package
// level defaults and tests only.
func MustParseReminderSchedule(raw string) ReminderSchedule {
	schedule, err := ParseReminderSchedule(raw)
	if err != nil {
		panic(err)
	}
	return schedule
}

// String renders the schedule back to its comma separated form
func (s ReminderSchedule) String() string {
	parts := make([]string, len(s))
	for i, days := range s {
		parts[i] = strconv.Itoa(days)
	}
	return strings.Join(parts, ",")
}

// ReminderDates returns the concrete reminder dates for a due date, oldest
// first, mirroring the descending day offsets.
func (s ReminderSchedule) ReminderDates(dueDate time.Time) []time.Time {
	dates := make([]time.Time, len(s))
	for i, days := range s {
		dates[i] = BeginningOfDay(dueDate).AddDate(0, 0, -days)
	}
	return dates
}

// NextReminderDate returns when the next reminder should go out: the date of
// the largest offset that is either still ahead of asOf or strictly after the
// last reminder actually sent. A date in the past means the reminder is
// already due. Returns the zero time once the schedule is exhausted.
func (s ReminderSchedule) NextReminderDate(dueDate time.Time, lastSent, asOf time.Time) time.Time {
	day := BeginningOfDay(asOf)
	var last time.Time
	if !lastSent.IsZero() {
		last = BeginningOfDay(lastSent)
	}
	for _, days := range s {
		date := BeginningOfDay(dueDate).AddDate(0, 0, -days)
		if date.After(day) || date.After(last) {
			return date
		}
	}
	return time.Time{}
}

// DueOffset returns the day offset whose reminder should fire as of the given
// day: the largest offset whose date has been reached and is not yet covered
// by the last reminder sent. The second return is false when nothing is due.
func (s ReminderSchedule) DueOffset(dueDate time.Time, asOf, lastSent time.Time) (int, bool) {
	day := BeginningOfDay(asOf)
	var last time.Time
	if !lastSent.IsZero() {
		last = BeginningOfDay(lastSent)
	}
	for _, days := range s {
		date := BeginningOfDay(dueDate).AddDate(0, 0, -days)
		if date.After(day) {
			continue
		}
		if date.After(last) {
			return days, true
		}
	}
	return 0, false
}

// IsReminderDue reports whether any schedule offset should fire as of the
// given day
func (s ReminderSchedule) IsReminderDue(dueDate time.Time, asOf, lastSent time.Time) bool {
	_, due := s.DueOffset(dueDate, asOf, lastSent)
	return due
}
