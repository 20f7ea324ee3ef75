package billingcycle

import (
	"time"

	"github.com/shopspring/decimal"

	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/types"
)

// BillingCycle is one concrete charge for a subscription period. Amounts are
// computed by the pricing engine and frozen once the cycle is billed.
type BillingCycle struct {
	// ID is the unique identifier for the billing cycle
	ID string `db:"id" json:"id"`

	// ShortID is the human readable display code, for example BC-9TXKPA3M
	ShortID string `db:"short_id" json:"short_id"`

	// SubscriptionID is the identifier of the subscription being billed
	SubscriptionID string `db:"subscription_id" json:"subscription_id"`

	// BillingType marks the first cycle of a subscription as initial; only
	// initial cycles carry the setup fee
	BillingType types.BillingType `db:"billing_type" json:"billing_type"`

	// State is the lifecycle state of the billing cycle
	State types.BillingCycleState `db:"state" json:"state"`

	// BillingDate is the date the charge falls due
	BillingDate time.Time `db:"billing_date" json:"billing_date"`

	// PeriodStart and PeriodEnd bound the service period, both inclusive
	PeriodStart time.Time `db:"period_start" json:"period_start"`
	PeriodEnd   time.Time `db:"period_end" json:"period_end"`

	// Currency is the three letter ISO currency code in lowercase
	Currency string `db:"currency" json:"currency"`

	// Quantity is copied from the subscription when the cycle is created
	Quantity decimal.Decimal `db:"quantity" json:"quantity"`

	// BaseAmount is list price times quantity before any discount
	BaseAmount decimal.Decimal `db:"base_amount" json:"base_amount"`

	// MemberDiscount is the total member savings applied
	MemberDiscount decimal.Decimal `db:"member_discount" json:"member_discount"`

	// AdditionalDiscount is the extra percentage discount applied on top of
	// member pricing
	AdditionalDiscount decimal.Decimal `db:"additional_discount" json:"additional_discount"`

	// SetupFee is the one time fee charged on initial cycles
	SetupFee decimal.Decimal `db:"setup_fee" json:"setup_fee"`

	// TaxAmount is the tax charged on the net amount plus setup fee
	TaxAmount decimal.Decimal `db:"tax_amount" json:"tax_amount"`

	// ProrationAdjustment is the signed correction for a partial period,
	// zero or negative for a full price reduction
	ProrationAdjustment decimal.Decimal `db:"proration_adjustment" json:"proration_adjustment"`

	// TotalAmount is the grand total: base - member discount - additional
	// discount + proration adjustment + setup fee + tax
	TotalAmount decimal.Decimal `db:"total_amount" json:"total_amount"`

	// ProrationFactor scales the period price for partial periods, 1 for a
	// full period
	ProrationFactor decimal.Decimal `db:"proration_factor" json:"proration_factor"`

	// ImmediateRevenue and DeferredRevenue split the net amount by the
	// product's revenue recognition policy
	ImmediateRevenue decimal.Decimal `db:"immediate_revenue" json:"immediate_revenue"`
	DeferredRevenue  decimal.Decimal `db:"deferred_revenue" json:"deferred_revenue"`

	// RequiresManualReview is set when pricing clamped a negative total or
	// hit another anomaly an operator should look at
	RequiresManualReview bool `db:"requires_manual_review" json:"requires_manual_review"`

	// ReviewReason explains why manual review was requested
	ReviewReason string `db:"review_reason" json:"review_reason"`

	// AmountsCalculatedAt records the last pricing run, nil before the first
	AmountsCalculatedAt *time.Time `db:"amounts_calculated_at" json:"amounts_calculated_at,omitempty"`

	// InvoiceRef is the reference of the invoice raised for this cycle
	InvoiceRef string `db:"invoice_ref" json:"invoice_ref"`

	// PaymentRef is the reference of the payment that settled the invoice
	PaymentRef string `db:"payment_ref" json:"payment_ref"`

	// PaidAt is when payment was confirmed
	PaidAt *time.Time `db:"paid_at" json:"paid_at,omitempty"`

	// RetryCount is the number of failed processing attempts so far
	RetryCount int `db:"retry_count" json:"retry_count"`

	// LastError holds the message of the most recent processing failure
	LastError string `db:"last_error" json:"last_error"`

	// FailedAt is when the most recent processing failure happened
	FailedAt *time.Time `db:"failed_at" json:"failed_at,omitempty"`

	// ProcessedAt is when the cycle reached billed
	ProcessedAt *time.Time `db:"processed_at" json:"processed_at,omitempty"`

	// Metadata
	Metadata types.Metadata `db:"metadata" json:"metadata"`

	// EnvironmentID is the environment identifier for the billing cycle
	EnvironmentID string `db:"environment_id" json:"environment_id"`

	types.BaseModel
}

// RevenueScheduleEntry is one month of a deferred revenue amortization
// schedule.
type RevenueScheduleEntry struct {
	Date   time.Time       `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

// NetAmount is the recurring charge after discounts and proration, before
// setup fee and tax
func (bc *BillingCycle) NetAmount() decimal.Decimal {
	return bc.BaseAmount.
		Sub(bc.MemberDiscount).
		Sub(bc.AdditionalDiscount).
		Add(bc.ProrationAdjustment)
}

// ComputedTotal recomputes the grand total from the parts
func (bc *BillingCycle) ComputedTotal() decimal.Decimal {
	return bc.NetAmount().Add(bc.SetupFee).Add(bc.TaxAmount)
}

// TotalConsistent reports whether the stored total matches the parts
func (bc *BillingCycle) TotalConsistent() bool {
	return bc.TotalAmount.Equal(bc.ComputedTotal())
}

// HasCalculatedAmounts reports whether pricing has run at least once
func (bc *BillingCycle) HasCalculatedAmounts() bool {
	return bc.AmountsCalculatedAt != nil
}

// AmountsFrozen reports whether amounts may no longer change. Once a cycle
// is billed the invoiced numbers are immutable regardless of any force flag.
func (bc *BillingCycle) AmountsFrozen() bool {
	switch bc.State {
	case types.BillingCycleStateBilled,
		types.BillingCycleStatePaid,
		types.BillingCycleStateProcessing,
		types.BillingCycleStateCancelled:
		return true
	default:
		return false
	}
}

// CanRetry reports whether another processing attempt is allowed
func (bc *BillingCycle) CanRetry() bool {
	return bc.State == types.BillingCycleStateFailed && bc.RetryCount < types.MaxBillingRetries
}

// PeriodDays is the whole day length of the service period, both ends
// inclusive
func (bc *BillingCycle) PeriodDays() int {
	return types.DaysBetween(bc.PeriodStart, bc.PeriodEnd) + 1
}

// NextBillingDate is the first day after the covered period, the date the
// following cycle falls due. Derived, never stored.
func (bc *BillingCycle) NextBillingDate() time.Time {
	return bc.PeriodEnd.AddDate(0, 0, 1)
}

// AmortizationSchedule spreads the deferred revenue over the service period
// in average month steps. The last entry absorbs the rounding remainder so
// the schedule always sums exactly to the deferred amount.
func (bc *BillingCycle) AmortizationSchedule() []RevenueScheduleEntry {
	if !bc.DeferredRevenue.IsPositive() {
		return nil
	}

	periodDays := decimal.NewFromInt(int64(bc.PeriodDays()))
	months := periodDays.Div(types.AvgDaysPerMonth).Ceil().IntPart()
	if months < 1 {
		months = 1
	}

	perMonth := bc.DeferredRevenue.Div(decimal.NewFromInt(months)).Round(types.DEFAULT_FLOATING_PRECISION)
	entries := make([]RevenueScheduleEntry, 0, months)
	allocated := decimal.Zero
	for i := int64(0); i < months; i++ {
		amount := perMonth
		if i == months-1 {
			amount = bc.DeferredRevenue.Sub(allocated)
		}
		entries = append(entries, RevenueScheduleEntry{
			Date:   types.AddClampedDate(bc.PeriodStart, 0, int(i), 0),
			Amount: amount,
		})
		allocated = allocated.Add(amount)
	}
	return entries
}

// Validate checks billing cycle fields before persistence
func (bc *BillingCycle) Validate() error {
	if bc.SubscriptionID == "" {
		return ierr.NewError("subscription id is required").
			WithHint("Billing cycle must reference a subscription").
			Mark(ierr.ErrValidation)
	}
	if err := bc.State.Validate(); err != nil {
		return err
	}
	if err := bc.BillingType.Validate(); err != nil {
		return err
	}
	if bc.PeriodEnd.Before(bc.PeriodStart) {
		return ierr.NewError("period end before period start").
			WithHint("Billing cycle period end must not precede its start").
			WithReportableDetails(map[string]any{
				"period_start": bc.PeriodStart,
				"period_end":   bc.PeriodEnd,
			}).
			Mark(ierr.ErrValidation)
	}
	if bc.TotalAmount.GreaterThan(decimal.NewFromInt(types.MAX_BILLING_AMOUNT)) {
		return ierr.NewError("total amount exceeds maximum").
			WithHint("Billing cycle total exceeds the allowed maximum").
			WithReportableDetails(map[string]any{
				"total_amount": bc.TotalAmount,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
