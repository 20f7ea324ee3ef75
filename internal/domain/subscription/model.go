package subscription

import (
	"time"

	"github.com/shopspring/decimal"

	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/types"
)

// Subscription ties a subscriber to a product with a concrete recurrence,
// quantity and discount. It is the anchor for billing cycles and renewals.
type Subscription struct {
	// ID is the unique identifier for the subscription
	ID string `db:"id" json:"id"`

	// SubscriberID is the identifier of the owning subscriber
	SubscriberID string `db:"subscriber_id" json:"subscriber_id"`

	// ProductID is the identifier of the subscribed product
	ProductID string `db:"product_id" json:"product_id"`

	// State is the lifecycle state of the subscription
	State types.SubscriptionState `db:"state" json:"state"`

	// Quantity scales the per period price, for example seats or copies
	Quantity decimal.Decimal `db:"quantity" json:"quantity"`

	// CurrentPrice is the per unit per period price currently charged. It is
	// the baseline renewal pricing compares against.
	CurrentPrice decimal.Decimal `db:"current_price" json:"current_price"`

	// Currency is the three letter ISO currency code in lowercase
	Currency string `db:"currency" json:"currency"`

	// BillingPeriod and BillingPeriodCount define the recurrence. They may
	// differ from the product default, for example an annual prepay of a
	// monthly product.
	BillingPeriod      types.BillingPeriod `db:"billing_period" json:"billing_period"`
	BillingPeriodCount int                 `db:"billing_period_count" json:"billing_period_count"`

	// StartDate is the date the subscription became active
	StartDate time.Time `db:"start_date" json:"start_date"`

	// CurrentPeriodStart is the first day of the period most recently paid
	// for, used as the proration anchor
	CurrentPeriodStart time.Time `db:"current_period_start" json:"current_period_start"`

	// EndDate is the exclusive end of the paid up coverage: the day the next
	// renewal falls due. Successful renewals push it out one period.
	EndDate time.Time `db:"end_date" json:"end_date"`

	// NextBillingDate is the date the next billing cycle is due
	NextBillingDate time.Time `db:"next_billing_date" json:"next_billing_date"`

	// CancelledAt is when the subscription was terminated, nil while it runs
	CancelledAt *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`

	// AutoRenew controls whether the renewal sweep processes this
	// subscription without operator action
	AutoRenew bool `db:"auto_renew" json:"auto_renew"`

	// AdditionalDiscountPct is an extra percentage discount granted to this
	// subscription. It only ever applies to qualifying members.
	AdditionalDiscountPct decimal.Decimal `db:"additional_discount_pct" json:"additional_discount_pct"`

	// ReminderSchedule overrides the tenant default when non empty,
	// for example "30,15,7"
	ReminderSchedule string `db:"reminder_schedule" json:"reminder_schedule"`

	// GracePeriodDays overrides the tenant default when non nil. Zero
	// disables the grace period for this subscription.
	GracePeriodDays *int `db:"grace_period_days" json:"grace_period_days,omitempty"`

	// Metadata
	Metadata types.Metadata `db:"metadata" json:"metadata"`

	// EnvironmentID is the environment identifier for the subscription
	EnvironmentID string `db:"environment_id" json:"environment_id"`

	types.BaseModel
}

// PeriodDefinition returns the subscription's billing period definition
func (s *Subscription) PeriodDefinition() types.BillingPeriodDefinition {
	return types.BillingPeriodDefinition{
		Period: s.BillingPeriod,
		Count:  s.BillingPeriodCount,
	}
}

// IsActive reports whether the subscription is currently billable
func (s *Subscription) IsActive() bool {
	return s.State == types.SubscriptionStateActive
}

// EffectiveReminderSchedule resolves the reminder schedule, falling back to
// the given tenant default when the subscription carries none.
func (s *Subscription) EffectiveReminderSchedule(defaultSchedule string) (types.ReminderSchedule, error) {
	raw := s.ReminderSchedule
	if raw == "" {
		raw = defaultSchedule
	}
	return types.ParseReminderSchedule(raw)
}

// EffectiveGracePeriodDays resolves the grace period, falling back to the
// given tenant default when the subscription carries none.
func (s *Subscription) EffectiveGracePeriodDays(defaultDays int) int {
	if s.GracePeriodDays != nil {
		return *s.GracePeriodDays
	}
	return defaultDays
}

// Validate checks subscription fields before persistence
func (s *Subscription) Validate() error {
	if s.SubscriberID == "" {
		return ierr.NewError("subscriber id is required").
			WithHint("Subscription must reference a subscriber").
			Mark(ierr.ErrValidation)
	}
	if s.ProductID == "" {
		return ierr.NewError("product id is required").
			WithHint("Subscription must reference a product").
			Mark(ierr.ErrValidation)
	}
	if err := s.State.Validate(); err != nil {
		return err
	}
	if !s.Quantity.IsPositive() {
		return ierr.NewError("quantity must be positive").
			WithHint("Subscription quantity must be greater than zero").
			WithReportableDetails(map[string]any{
				"quantity": s.Quantity,
			}).
			Mark(ierr.ErrValidation)
	}
	if err := s.PeriodDefinition().Validate(); err != nil {
		return err
	}
	if s.AdditionalDiscountPct.IsNegative() || s.AdditionalDiscountPct.GreaterThan(decimal.NewFromInt(100)) {
		return ierr.NewError("additional discount out of range").
			WithHint("Additional discount must be between 0 and 100 percent").
			WithReportableDetails(map[string]any{
				"additional_discount_pct": s.AdditionalDiscountPct,
			}).
			Mark(ierr.ErrValidation)
	}
	if s.ReminderSchedule != "" {
		if _, err := types.ParseReminderSchedule(s.ReminderSchedule); err != nil {
			return err
		}
	}
	if s.GracePeriodDays != nil && *s.GracePeriodDays < 0 {
		return ierr.NewError("grace period must not be negative").
			WithHint("Grace period days must not be negative").
			Mark(ierr.ErrValidation)
	}
	if !s.EndDate.IsZero() && s.EndDate.Before(s.StartDate) {
		return ierr.NewError("end date before start date").
			WithHint("Subscription end date must not precede its start date").
			Mark(ierr.ErrValidation)
	}
	return nil
}
