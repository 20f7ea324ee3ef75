package types

import (
	"github.com/samber/lo"

	ierr "github.com/memberbill/memberbill/internal/errors"
)

// SubscriptionState is the lifecycle state of a subscription
type SubscriptionState string

const (
	SubscriptionStateDraft      SubscriptionState = "draft"
	SubscriptionStateActive     SubscriptionState = "active"
	SubscriptionStateSuspended  SubscriptionState = "suspended"
	SubscriptionStateTerminated SubscriptionState = "terminated"
)

var subscriptionTransitions = map[SubscriptionState][]SubscriptionState{
	SubscriptionStateDraft:      {SubscriptionStateActive, SubscriptionStateTerminated},
	SubscriptionStateActive:     {SubscriptionStateSuspended, SubscriptionStateTerminated},
	SubscriptionStateSuspended:  {SubscriptionStateActive, SubscriptionStateTerminated},
	SubscriptionStateTerminated: {},
}

func (s SubscriptionState) String() string {
	return string(s)
}

func (s SubscriptionState) Validate() error {
	allowed := []SubscriptionState{
		SubscriptionStateDraft,
		SubscriptionStateActive,
		SubscriptionStateSuspended,
		SubscriptionStateTerminated,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid subscription state").
			WithHint("Invalid subscription state").
			WithReportableDetails(map[string]any{
				"state":          s,
				"allowed_states": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsTerminal returns true when no further transitions are allowed
func (s SubscriptionState) IsTerminal() bool {
	return len(subscriptionTransitions[s]) == 0
}

// CanTransitionTo returns true when the state machine allows the edge
func (s SubscriptionState) CanTransitionTo(target SubscriptionState) bool {
	return lo.Contains(subscriptionTransitions[s], target)
}

// SubscriptionFilter defines the query surface for subscriptions
type SubscriptionFilter struct {
	*QueryFilter
	*TimeRangeFilter
	SubscriberIDs      []string            `json:"subscriber_ids,omitempty" form:"subscriber_ids" validate:"omitempty"`
	ProductIDs         []string            `json:"product_ids,omitempty" form:"product_ids" validate:"omitempty"`
	States             []SubscriptionState `json:"states,omitempty" form:"states" validate:"omitempty"`
	BillingPeriods     []BillingPeriod     `json:"billing_periods,omitempty" form:"billing_periods" validate:"omitempty"`
	AutoRenew          *bool               `json:"auto_renew,omitempty" form:"auto_renew" validate:"omitempty"`
	NextBillingBefore  *string             `json:"next_billing_before,omitempty" form:"next_billing_before" validate:"omitempty"`
	NextBillingAfter   *string             `json:"next_billing_after,omitempty" form:"next_billing_after" validate:"omitempty"`
	WithActiveRenewals *bool               `json:"with_active_renewals,omitempty" form:"with_active_renewals" validate:"omitempty"`
}

// NewSubscriptionFilter creates a new subscription filter with default options
func NewSubscriptionFilter() *SubscriptionFilter {
	return &SubscriptionFilter{
		QueryFilter: NewDefaultQueryFilter(),
	}
}

// NewNoLimitSubscriptionFilter creates a new subscription filter without pagination
func NewNoLimitSubscriptionFilter() *SubscriptionFilter {
	return &SubscriptionFilter{
		QueryFilter: NewNoLimitQueryFilter(),
	}
}

// Validate validates the subscription filter
func (f *SubscriptionFilter) Validate() error {
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
	for _, p := range f.BillingPeriods {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// GetLimit implements BaseFilter interface
func (f *SubscriptionFilter) GetLimit() int {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetLimit()
	}
	return f.QueryFilter.GetLimit()
}

// GetOffset implements BaseFilter interface
func (f *SubscriptionFilter) GetOffset() int {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetOffset()
	}
	return f.QueryFilter.GetOffset()
}

// GetSort implements BaseFilter interface
func (f *SubscriptionFilter) GetSort() string {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetSort()
	}
	return f.QueryFilter.GetSort()
}

// GetOrder implements BaseFilter interface
func (f *SubscriptionFilter) GetOrder() string {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetOrder()
	}
	return f.QueryFilter.GetOrder()
}

// GetStatus implements BaseFilter interface
func (f *SubscriptionFilter) GetStatus() string {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetStatus()
	}
	return f.QueryFilter.GetStatus()
}

// GetExpand implements BaseFilter interface
func (f *SubscriptionFilter) GetExpand() Expand {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetExpand()
	}
	return f.QueryFilter.GetExpand()
}

// IsUnlimited implements BaseFilter interface
func (f *SubscriptionFilter) IsUnlimited() bool {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().IsUnlimited()
	}
	return f.QueryFilter.IsUnlimited()
}
