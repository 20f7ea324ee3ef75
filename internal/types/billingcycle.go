package types

import (
	"github.com/samber/lo"

	ierr "github.com/memberbill/memberbill/internal/errors"
)

// BillingCycleState is the lifecycle state of a billing cycle record
type BillingCycleState string

const (
	BillingCycleStateDraft      BillingCycleState = "draft"
	BillingCycleStateScheduled  BillingCycleState = "scheduled"
	BillingCycleStateProcessing BillingCycleState = "processing"
	BillingCycleStateBilled     BillingCycleState = "billed"
	BillingCycleStatePaid       BillingCycleState = "paid"
	BillingCycleStateFailed     BillingCycleState = "failed"
	BillingCycleStateCancelled  BillingCycleState = "cancelled"
)

// billingCycleTransitions defines the allowed state machine edges:
// draft -> scheduled -> processing -> {billed -> paid} | failed;
// failed -> scheduled (bounded retry) | cancelled; any non-terminal -> cancelled.
var billingCycleTransitions = map[BillingCycleState][]BillingCycleState{
	BillingCycleStateDraft:      {BillingCycleStateScheduled, BillingCycleStateCancelled},
	BillingCycleStateScheduled:  {BillingCycleStateProcessing, BillingCycleStateCancelled},
	BillingCycleStateProcessing: {BillingCycleStateBilled, BillingCycleStateFailed, BillingCycleStateCancelled},
	BillingCycleStateBilled:     {BillingCycleStatePaid},
	BillingCycleStateFailed:     {BillingCycleStateScheduled, BillingCycleStateCancelled},
	BillingCycleStatePaid:       {},
	BillingCycleStateCancelled:  {},
}

func (s BillingCycleState) String() string {
	return string(s)
}

func (s BillingCycleState) Validate() error {
	allowed := []BillingCycleState{
		BillingCycleStateDraft,
		BillingCycleStateScheduled,
		BillingCycleStateProcessing,
		BillingCycleStateBilled,
		BillingCycleStatePaid,
		BillingCycleStateFailed,
		BillingCycleStateCancelled,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid billing cycle state").
			WithHint("Invalid billing cycle state").
			WithReportableDetails(map[string]any{
				"state":          s,
				"allowed_states": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsTerminal returns true when no further transitions are allowed
func (s BillingCycleState) IsTerminal() bool {
	return len(billingCycleTransitions[s]) == 0
}

// CanTransitionTo returns true when the state machine allows the edge
func (s BillingCycleState) CanTransitionTo(target BillingCycleState) bool {
	return lo.Contains(billingCycleTransitions[s], target)
}

// BillingType distinguishes the first invoicing of a subscription from
// subsequent recurring cycles. Setup fees apply only to initial cycles.
type BillingType string

const (
	BillingTypeInitial   BillingType = "initial"
	BillingTypeRecurring BillingType = "recurring"
)

func (t BillingType) String() string {
	return string(t)
}

func (t BillingType) Validate() error {
	allowed := []BillingType{BillingTypeInitial, BillingTypeRecurring}
	if !lo.Contains(allowed, t) {
		return ierr.NewError("invalid billing type").
			WithHint("Billing type must be initial or recurring").
			WithReportableDetails(map[string]any{
				"billing_type": t,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// RevenueRecognition determines how a billed amount is split between
// recognized and deferred revenue.
type RevenueRecognition string

const (
	// RevenueRecognitionImmediate recognizes the full net amount on billing
	RevenueRecognitionImmediate RevenueRecognition = "immediate"
	// RevenueRecognitionDeferred defers the full net amount and amortizes it
	// across the service period in average-month increments
	RevenueRecognitionDeferred RevenueRecognition = "deferred"
)

func (r RevenueRecognition) String() string {
	return string(r)
}

func (r RevenueRecognition) Validate() error {
	allowed := []RevenueRecognition{RevenueRecognitionImmediate, RevenueRecognitionDeferred}
	if !lo.Contains(allowed, r) {
		return ierr.NewError("invalid revenue recognition method").
			WithHint("Revenue recognition must be immediate or deferred").
			WithReportableDetails(map[string]any{
				"revenue_recognition": r,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

const (
	// MaxBillingRetries bounds how many failed attempts a billing cycle may
	// accumulate before retries are refused. Deliberately a constant, not
	// configuration.
	MaxBillingRetries = 3

	// MAX_BILLING_AMOUNT is the maximum allowed billing amount (as a safeguard)
	MAX_BILLING_AMOUNT = 1000000000000 // 1 trillion

	// DEFAULT_FLOATING_PRECISION is the default floating point precision
	DEFAULT_FLOATING_PRECISION = 2
)

// BillingCycleFilter defines the query surface for billing cycle records
type BillingCycleFilter struct {
	*QueryFilter
	*TimeRangeFilter
	SubscriptionIDs []string            `json:"subscription_ids,omitempty" form:"subscription_ids" validate:"omitempty"`
	States          []BillingCycleState `json:"states,omitempty" form:"states" validate:"omitempty"`
	BillingTypes    []BillingType       `json:"billing_types,omitempty" form:"billing_types" validate:"omitempty"`
	BillingDateFrom *string             `json:"billing_date_from,omitempty" form:"billing_date_from" validate:"omitempty"`
	BillingDateTo   *string             `json:"billing_date_to,omitempty" form:"billing_date_to" validate:"omitempty"`
	RetryEligible   *bool               `json:"retry_eligible,omitempty" form:"retry_eligible" validate:"omitempty"`
}

// NewBillingCycleFilter creates a new billing cycle filter with default options
func NewBillingCycleFilter() *BillingCycleFilter {
	return &BillingCycleFilter{
		QueryFilter: NewDefaultQueryFilter(),
	}
}

// NewNoLimitBillingCycleFilter creates a new billing cycle filter without pagination
func NewNoLimitBillingCycleFilter() *BillingCycleFilter {
	return &BillingCycleFilter{
		QueryFilter: NewNoLimitQueryFilter(),
	}
}

// Validate validates the billing cycle filter
func (f *BillingCycleFilter) Validate() error {
	if f.QueryFilter != nil {
		if err := f.QueryFilter.Validate(); err != nil {
			return err
		}
	}
	if f.TimeRangeFilter != nil {
		if err := f.TimeRangeFilter.Validate(); err != nil {
			return err
		}
	}
	for _, s := range f.States {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	for _, t := range f.BillingTypes {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// GetLimit implements BaseFilter interface
func (f *BillingCycleFilter) GetLimit() int {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetLimit()
	}
	return f.QueryFilter.GetLimit()
}

// GetOffset implements BaseFilter interface
func (f *BillingCycleFilter) GetOffset() int {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetOffset()
	}
	return f.QueryFilter.GetOffset()
}

// GetSort implements BaseFilter interface
func (f *BillingCycleFilter) GetSort() string {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetSort()
	}
	return f.QueryFilter.GetSort()
}

// GetOrder implements BaseFilter interface
func (f *BillingCycleFilter) GetOrder() string {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetOrder()
	}
	return f.QueryFilter.GetOrder()
}

// GetStatus implements BaseFilter interface
func (f *BillingCycleFilter) GetStatus() string {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetStatus()
	}
	return f.QueryFilter.GetStatus()
}

// GetExpand implements BaseFilter interface
func (f *BillingCycleFilter) GetExpand() Expand {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetExpand()
	}
	return f.QueryFilter.GetExpand()
}

// IsUnlimited implements BaseFilter interface
func (f *BillingCycleFilter) IsUnlimited() bool {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().IsUnlimited()
	}
	return f.QueryFilter.IsUnlimited()
}
