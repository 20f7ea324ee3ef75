package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	ierr "github.com/memberbill/memberbill/internal/errors"
)

var (
	// DaysPerYear is the average length of a calendar year accounting for leap years
	DaysPerYear = decimal.NewFromFloat(365.25)

	// AvgDaysPerMonth is DaysPerYear / 12, used for monthly amortization schedules
	AvgDaysPerMonth = decimal.NewFromFloat(30.44)
)

// BillingPeriod is the unit of a recurring billing period ex MONTHLY, ANNUAL, WEEKLY, DAILY
type BillingPeriod string

const (
	BILLING_PERIOD_MONTHLY BillingPeriod = "MONTHLY"
	BILLING_PERIOD_ANNUAL  BillingPeriod = "ANNUAL"
	BILLING_PERIOD_WEEKLY  BillingPeriod = "WEEKLY"
	BILLING_PERIOD_DAILY   BillingPeriod = "DAILY"
)

func (p BillingPeriod) String() string {
	return string(p)
}

func (p BillingPeriod) Validate() error {
	allowed := []BillingPeriod{
		BILLING_PERIOD_MONTHLY,
		BILLING_PERIOD_ANNUAL,
		BILLING_PERIOD_WEEKLY,
		BILLING_PERIOD_DAILY,
	}
	if !lo.Contains(allowed, p) {
		return ierr.NewError("invalid billing period").
			WithHint("Billing period must be one of DAILY, WEEKLY, MONTHLY, ANNUAL").
			WithReportableDetails(map[string]any{
				"billing_period": p,
			}).
			Mark(ierr.ErrConfiguration)
	}
	return nil
}

// BillingPeriodDefinition is the immutable definition of a recurring period:
// a unit and a frequency multiplier. For example {MONTHLY, 3} bills every
// three months. Shared by reference across many subscriptions, so it carries
// no mutable state.
type BillingPeriodDefinition struct {
	Period BillingPeriod `db:"billing_period" json:"period"`
	Count  int           `db:"billing_period_count" json:"count"`
}

// Validate checks the period unit and magnitude. A non-positive magnitude is
// a configuration error signalled to the caller, never silently coerced.
func (d BillingPeriodDefinition) Validate() error {
	if err := d.Period.Validate(); err != nil {
		return err
	}
	if d.Count <= 0 {
		return ierr.NewError("billing period count must be a positive integer").
			WithHint("Billing period count must be greater than zero").
			WithReportableDetails(map[string]any{
				"billing_period":       d.Period,
				"billing_period_count": d.Count,
			}).
			Mark(ierr.ErrConfiguration)
	}
	return nil
}

// NextOccurrence calculates the next occurrence of the period after the given
// date. Days and weeks use fixed-length deltas; months and years use
// calendar-aware addition so Jan 31 + 1 month lands on Feb 28/29, not Mar 3.
func (d BillingPeriodDefinition) NextOccurrence(date time.Time) (time.Time, error) {
	if err := d.Validate(); err != nil {
		return date, err
	}

	switch d.Period {
	case BILLING_PERIOD_DAILY:
		// fixed-length delta, rolls over month boundaries
		return date.AddDate(0, 0, d.Count), nil
	case BILLING_PERIOD_WEEKLY:
		// 1 week = 7 days
		return date.AddDate(0, 0, 7*d.Count), nil
	case BILLING_PERIOD_MONTHLY:
		return AddClampedDate(date, 0, d.Count, 0), nil
	case BILLING_PERIOD_ANNUAL:
		return AddClampedDate(date, d.Count, 0, 0), nil
	default:
		return date, ierr.NewErrorf("invalid billing period type: %s", d.Period).
			Mark(ierr.ErrConfiguration)
	}
}

// PeriodEnd returns the inclusive end date of the period starting at start:
// the day before the next occurrence. A monthly period starting Mar 1 ends
// Mar 31.
func (d BillingPeriodDefinition) PeriodEnd(start time.Time) (time.Time, error) {
	next, err := d.NextOccurrence(start)
	if err != nil {
		return start, err
	}
	return next.AddDate(0, 0, -1), nil
}

// TotalDays returns the number of whole days the period starting at start
// spans. Calendar aware: a monthly period starting Feb 1 spans 28 or 29 days.
func (d BillingPeriodDefinition) TotalDays(start time.Time) (int, error) {
	next, err := d.NextOccurrence(start)
	if err != nil {
		return 0, err
	}
	return DaysBetween(start, next), nil
}

// PeriodsPerYear normalizes the period to a 365.25 day year. Used to compute
// annualized recurring value.
func (d BillingPeriodDefinition) PeriodsPerYear() (decimal.Decimal, error) {
	if err := d.Validate(); err != nil {
		return decimal.Zero, err
	}

	count := decimal.NewFromInt(int64(d.Count))
	switch d.Period {
	case BILLING_PERIOD_DAILY:
		return DaysPerYear.Div(count), nil
	case BILLING_PERIOD_WEEKLY:
		return DaysPerYear.Div(decimal.NewFromInt(7)).Div(count), nil
	case BILLING_PERIOD_MONTHLY:
		return decimal.NewFromInt(12).Div(count), nil
	case BILLING_PERIOD_ANNUAL:
		return decimal.NewFromInt(1).Div(count), nil
	default:
		return decimal.Zero, ierr.NewErrorf("invalid billing period type: %s", d.Period).
			Mark(ierr.ErrConfiguration)
	}
}

// String renders the definition for display and grouping, ex "monthly" or
// "every 3 months".
func (d BillingPeriodDefinition) String() string {
	unit := strings.ToLower(string(d.Period))
	if d.Count == 1 {
		return unit
	}
	return fmt.Sprintf("every %d %s", d.Count, pluralUnit(d.Period))
}

func pluralUnit(p BillingPeriod) string {
	switch p {
	case BILLING_PERIOD_DAILY:
		return "days"
	case BILLING_PERIOD_WEEKLY:
		return "weeks"
	case BILLING_PERIOD_MONTHLY:
		return "months"
	case BILLING_PERIOD_ANNUAL:
		return "years"
	default:
		return strings.ToLower(string(p))
	}
}

// AddClampedDate adds years, months and days to a date clamping the day to
// the last valid day of the resulting month. This leverages explicit
// month-boundary handling instead of time.AddDate, which would normalize
// Jan 31 + 1 month into Mar 2/3.
func AddClampedDate(t time.Time, years, months, days int) time.Time {
	y, m, d := t.Date()
	h, min, sec := t.Clock()

	// Calculate the proposed year and month
	newY := y + years
	newM := time.Month(int(m) + months)

	// If we move beyond December, it adjusts correctly,
	// for example adding 2 months to November will land on January next year.
	for newM > 12 {
		newM -= 12
		newY++
	}
	for newM < 1 {
		newM += 12
		newY--
	}

	// Find the last valid day of the new month
	firstOfNextMonth := time.Date(newY, newM+1, 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfNextMonth.Add(-24 * time.Hour).Day()

	newD := d + days
	if newD > lastDay {
		// Clamp to last valid day
		newD = lastDay
	}

	return time.Date(newY, newM, newD, h, min, sec, t.Nanosecond(), t.Location())
}
