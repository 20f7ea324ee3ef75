package renewal

import (
	"time"

	"github.com/shopspring/decimal"

	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/types"
)

// Renewal tracks one upcoming period boundary of a subscription: the
// reminders leading up to it, the processing that extends the subscription,
// and the grace and expiry handling when nothing happens. Renewals chain,
// each successful one creating its successor with the count incremented.
type Renewal struct {
	// ID is the unique identifier for the renewal
	ID string `db:"id" json:"id"`

	// ShortID is the human readable display code, for example RN-4QPZHW8D
	ShortID string `db:"short_id" json:"short_id"`

	// SubscriptionID is the identifier of the subscription being renewed
	SubscriptionID string `db:"subscription_id" json:"subscription_id"`

	// State is the lifecycle state of the renewal
	State types.RenewalState `db:"state" json:"state"`

	// CurrentPeriodEnd is the last day of the period this renewal closes out
	CurrentPeriodEnd time.Time `db:"current_period_end" json:"current_period_end"`

	// DueDate is the date the renewal falls due, the day after the current
	// period ends
	DueDate time.Time `db:"due_date" json:"due_date"`

	// GracePeriodEnd is the due date pushed out by the grace period. Equal to
	// the due date when no grace is configured.
	GracePeriodEnd time.Time `db:"grace_period_end" json:"grace_period_end"`

	// NextRenewalDue is where the next period would end if this renewal
	// processes, derived from the subscription billing period
	NextRenewalDue time.Time `db:"next_renewal_due" json:"next_renewal_due"`

	// RenewalCount is the number of completed renewals before this one,
	// zero on the record created with the subscription
	RenewalCount int `db:"renewal_count" json:"renewal_count"`

	// PreviousRenewalID links to the predecessor, empty on the first renewal
	PreviousRenewalID string `db:"previous_renewal_id" json:"previous_renewal_id"`

	// BillingCycleID is the cycle created when this renewal processed
	BillingCycleID string `db:"billing_cycle_id" json:"billing_cycle_id"`

	// Currency is the three letter ISO currency code in lowercase
	Currency string `db:"currency" json:"currency"`

	// CurrentPrice is what the ending period cost
	CurrentPrice decimal.Decimal `db:"current_price" json:"current_price"`

	// RenewalPrice is the quote for the next period, recomputed at processing
	RenewalPrice decimal.Decimal `db:"renewal_price" json:"renewal_price"`

	// MemberDiscount is the member savings baked into the renewal price
	MemberDiscount decimal.Decimal `db:"member_discount" json:"member_discount"`

	// PriceIncreaseAmount and PriceIncreasePct compare the renewal price to
	// the current price. Zero when flat or lower.
	PriceIncreaseAmount decimal.Decimal `db:"price_increase_amount" json:"price_increase_amount"`
	PriceIncreasePct    decimal.Decimal `db:"price_increase_pct" json:"price_increase_pct"`

	// PriceIncreaseWarning is set when the increase crossed the warning
	// threshold. Informational only, never blocks processing.
	PriceIncreaseWarning bool `db:"price_increase_warning" json:"price_increase_warning"`

	// ReminderCount counts reminders already delivered for this renewal
	ReminderCount int `db:"reminder_count" json:"reminder_count"`

	// LastReminderAt is when the most recent reminder went out
	LastReminderAt *time.Time `db:"last_reminder_at" json:"last_reminder_at,omitempty"`

	// NextReminderAt is when the next reminder on the schedule falls due,
	// nil once the schedule is exhausted
	NextReminderAt *time.Time `db:"next_reminder_at" json:"next_reminder_at,omitempty"`

	// ProcessMethod records how processing was driven
	ProcessMethod types.RenewalProcessMethod `db:"process_method" json:"process_method"`

	// ProcessedAt is when the renewal reached renewed
	ProcessedAt *time.Time `db:"processed_at" json:"processed_at,omitempty"`

	// LastError holds the message of the most recent processing failure
	LastError string `db:"last_error" json:"last_error"`

	// Metadata
	Metadata types.Metadata `db:"metadata" json:"metadata"`

	// EnvironmentID is the environment identifier for the renewal
	EnvironmentID string `db:"environment_id" json:"environment_id"`

	types.BaseModel
}

// DaysUntilDue returns the whole days from asOf to the due date. Negative
// once the due date has passed.
func (r *Renewal) DaysUntilDue(asOf time.Time) int {
	return types.DaysBetween(types.BeginningOfDay(asOf), types.BeginningOfDay(r.DueDate))
}

// overdueBoundary is the last day the renewal may still process without
// being overdue: grace end when grace is configured, else the due date
func (r *Renewal) overdueBoundary() time.Time {
	if r.GracePeriodEnd.IsZero() {
		return r.DueDate
	}
	return r.GracePeriodEnd
}

// IsOverdue reports whether the renewal slipped past its grace window
// without an outcome. Renewed and cancelled renewals are never overdue
// regardless of dates.
func (r *Renewal) IsOverdue(asOf time.Time) bool {
	switch r.State {
	case types.RenewalStateRenewed, types.RenewalStateCancelled:
		return false
	}
	return types.BeginningOfDay(asOf).After(types.BeginningOfDay(r.overdueBoundary()))
}

// PastDue reports whether the due date itself has passed, ignoring grace
func (r *Renewal) PastDue(asOf time.Time) bool {
	return types.BeginningOfDay(asOf).After(types.BeginningOfDay(r.DueDate))
}

// InGraceWindow reports whether asOf falls between the due date and the
// grace end, both exclusive of the states that already resolved
func (r *Renewal) InGraceWindow(asOf time.Time) bool {
	if !r.PastDue(asOf) {
		return false
	}
	return !types.BeginningOfDay(asOf).After(types.BeginningOfDay(r.overdueBoundary()))
}

// HasPriceIncrease reports whether the renewal quote is above the current
// price
func (r *Renewal) HasPriceIncrease() bool {
	return r.PriceIncreaseAmount.IsPositive()
}

// Validate checks renewal fields before persistence
func (r *Renewal) Validate() error {
	if r.SubscriptionID == "" {
		return ierr.NewError("subscription id is required").
			WithHint("Renewal must reference a subscription").
			Mark(ierr.ErrValidation)
	}
	if err := r.State.Validate(); err != nil {
		return err
	}
	if r.DueDate.IsZero() {
		return ierr.NewError("due date is required").
			WithHint("Renewal due date is required").
			Mark(ierr.ErrValidation)
	}
	if !r.CurrentPeriodEnd.IsZero() && r.DueDate.Before(types.BeginningOfDay(r.CurrentPeriodEnd)) {
		return ierr.NewError("due date before current period end").
			WithHint("Renewal cannot fall due before the period it closes").
			WithReportableDetails(map[string]any{
				"due_date":           r.DueDate,
				"current_period_end": r.CurrentPeriodEnd,
			}).
			Mark(ierr.ErrValidation)
	}
	if r.RenewalCount < 0 {
		return ierr.NewError("renewal count must not be negative").
			WithHint("Renewal count starts at zero").
			WithReportableDetails(map[string]any{
				"renewal_count": r.RenewalCount,
			}).
			Mark(ierr.ErrValidation)
	}
	if r.ReminderCount < 0 {
		return ierr.NewError("reminder count must not be negative").
			WithHint("Reminder counter must not be negative").
			Mark(ierr.ErrValidation)
	}
	if r.ProcessMethod != "" {
		if err := r.ProcessMethod.Validate(); err != nil {
			return err
		}
	}
	return nil
}
