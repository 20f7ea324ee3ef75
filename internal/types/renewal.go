package types

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	ierr "github.com/memberbill/memberbill/internal/errors"
)

// RenewalState is the lifecycle state of a renewal record
type RenewalState string

const (
	RenewalStatePending     RenewalState = "pending"
	RenewalStateReminded    RenewalState = "reminded"
	RenewalStateProcessing  RenewalState = "processing"
	RenewalStateRenewed     RenewalState = "renewed"
	RenewalStateGracePeriod RenewalState = "grace_period"
	RenewalStateExpired     RenewalState = "expired"
	RenewalStateCancelled   RenewalState = "cancelled"
)

// renewalTransitions defines the allowed state machine edges:
// pending -> reminded -> processing -> {renewed | pending on failure};
// pending/reminded -> grace_period once past due, -> expired once past grace;
// any non-terminal -> cancelled. Terminal: renewed, cancelled.
var renewalTransitions = map[RenewalState][]RenewalState{
	RenewalStatePending:     {RenewalStateReminded, RenewalStateProcessing, RenewalStateGracePeriod, RenewalStateExpired, RenewalStateCancelled},
	RenewalStateReminded:    {RenewalStateProcessing, RenewalStateGracePeriod, RenewalStateExpired, RenewalStateCancelled},
	RenewalStateProcessing:  {RenewalStateRenewed, RenewalStatePending, RenewalStateCancelled},
	RenewalStateGracePeriod: {RenewalStateProcessing, RenewalStateExpired, RenewalStateCancelled},
	RenewalStateExpired:     {RenewalStateCancelled},
	RenewalStateRenewed:     {},
	RenewalStateCancelled:   {},
}

// renewalProcessableStates are the source states from which processing may begin
var renewalProcessableStates = []RenewalState{
	RenewalStatePending,
	RenewalStateReminded,
	RenewalStateGracePeriod,
}

func (s RenewalState) String() string {
	return string(s)
}

func (s RenewalState) Validate() error {
	allowed := []RenewalState{
		RenewalStatePending,
		RenewalStateReminded,
		RenewalStateProcessing,
		RenewalStateRenewed,
		RenewalStateGracePeriod,
		RenewalStateExpired,
		RenewalStateCancelled,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid renewal state").
			WithHint("Invalid renewal state").
			WithReportableDetails(map[string]any{
				"state":          s,
				"allowed_states": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsTerminal returns true when no further transitions are allowed
func (s RenewalState) IsTerminal() bool {
	return len(renewalTransitions[s]) == 0
}

// CanTransitionTo returns true when the state machine allows the edge
func (s RenewalState) CanTransitionTo(target RenewalState) bool {
	return lo.Contains(renewalTransitions[s], target)
}

// IsProcessable returns true when processing may begin from this state
func (s RenewalState) IsProcessable() bool {
	return lo.Contains(renewalProcessableStates, s)
}

// RenewalProcessMethod records how a renewal was driven to processing
type RenewalProcessMethod string

const (
	RenewalProcessMethodManual    RenewalProcessMethod = "manual"
	RenewalProcessMethodAutomatic RenewalProcessMethod = "automatic"
	RenewalProcessMethodBatch     RenewalProcessMethod = "batch"
)

func (m RenewalProcessMethod) String() string {
	return string(m)
}

func (m RenewalProcessMethod) Validate() error {
	allowed := []RenewalProcessMethod{
		RenewalProcessMethodManual,
		RenewalProcessMethodAutomatic,
		RenewalProcessMethodBatch,
	}
	if !lo.Contains(allowed, m) {
		return ierr.NewError("invalid renewal process method").
			WithHint("Process method must be manual, automatic or batch").
			WithReportableDetails(map[string]any{
				"method": m,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// PriceIncreaseWarningPercent is the relative renewal price increase above
// which batch runs attach a warning. A warning never blocks processing.
var PriceIncreaseWarningPercent = decimal.NewFromInt(20)

// RenewalFilter defines the query surface for renewal records
type RenewalFilter struct {
	*QueryFilter
	*TimeRangeFilter
	SubscriptionIDs    []string       `json:"subscription_ids,omitempty" form:"subscription_ids" validate:"omitempty"`
	States             []RenewalState `json:"states,omitempty" form:"states" validate:"omitempty"`
	DueDateFrom        *string        `json:"due_date_from,omitempty" form:"due_date_from" validate:"omitempty"`
	DueDateTo          *string        `json:"due_date_to,omitempty" form:"due_date_to" validate:"omitempty"`
	ReminderDueBefore  *string        `json:"reminder_due_before,omitempty" form:"reminder_due_before" validate:"omitempty"`
	AutoRenewEligible  *bool          `json:"auto_renew_eligible,omitempty" form:"auto_renew_eligible" validate:"omitempty"`
	PreviousRenewalIDs []string       `json:"previous_renewal_ids,omitempty" form:"previous_renewal_ids" validate:"omitempty"`
}

// NewRenewalFilter creates a new renewal filter with default options
func NewRenewalFilter() *RenewalFilter {
	return &RenewalFilter{
		QueryFilter: NewDefaultQueryFilter(),
	}
}

// NewNoLimitRenewalFilter creates a new renewal filter without pagination
func NewNoLimitRenewalFilter() *RenewalFilter {
	return &RenewalFilter{
		QueryFilter: NewNoLimitQueryFilter(),
	}
}

// Validate validates the renewal filter
func (f *RenewalFilter) Validate() error {
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
	return nil
}

// GetLimit implements BaseFilter interface
func (f *RenewalFilter) GetLimit() int {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetLimit()
	}
	return f.QueryFilter.GetLimit()
}

// GetOffset implements BaseFilter interface
func (f *RenewalFilter) GetOffset() int {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetOffset()
	}
	return f.QueryFilter.GetOffset()
}

// GetSort implements BaseFilter interface
func (f *RenewalFilter) GetSort() string {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetSort()
	}
	return f.QueryFilter.GetSort()
}

// GetOrder implements BaseFilter interface
func (f *RenewalFilter) GetOrder() string {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetOrder()
	}
	return f.QueryFilter.GetOrder()
}

// GetStatus implements BaseFilter interface
func (f *RenewalFilter) GetStatus() string {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetStatus()
	}
	return f.QueryFilter.GetStatus()
}

// GetExpand implements BaseFilter interface
func (f *RenewalFilter) GetExpand() Expand {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetExpand()
	}
	return f.QueryFilter.GetExpand()
}

// IsUnlimited implements BaseFilter interface
func (f *RenewalFilter) IsUnlimited() bool {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().IsUnlimited()
	}
	return f.QueryFilter.IsUnlimited()
}
