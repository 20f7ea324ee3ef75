package types

import (
	"github.com/samber/lo"

	ierr "github.com/memberbill/memberbill/internal/errors"
)

// MembershipStatus captures whether a subscriber currently qualifies for
// member pricing. Only an active membership unlocks member rates.
type MembershipStatus string

const (
	MembershipStatusActive MembershipStatus = "active"
	MembershipStatusLapsed MembershipStatus = "lapsed"
	MembershipStatusNone   MembershipStatus = "none"
)

func (m MembershipStatus) String() string {
	return string(m)
}

func (m MembershipStatus) Validate() error {
	allowed := []MembershipStatus{
		MembershipStatusActive,
		MembershipStatusLapsed,
		MembershipStatusNone,
	}
	if !lo.Contains(allowed, m) {
		return ierr.NewError("invalid membership status").
			WithHint("Membership status must be active, lapsed or none").
			WithReportableDetails(map[string]any{
				"membership_status": m,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// SubscriberFilter defines the query surface for subscribers
type SubscriberFilter struct {
	*QueryFilter
	*TimeRangeFilter
	SubscriberIDs      []string           `json:"subscriber_ids,omitempty" form:"subscriber_ids" validate:"omitempty"`
	ExternalIDs        []string           `json:"external_ids,omitempty" form:"external_ids" validate:"omitempty"`
	Email              string             `json:"email,omitempty" form:"email" validate:"omitempty"`
	MembershipStatuses []MembershipStatus `json:"membership_statuses,omitempty" form:"membership_statuses" validate:"omitempty"`
	IsMember           *bool              `json:"is_member,omitempty" form:"is_member" validate:"omitempty"`
}

// NewSubscriberFilter creates a new subscriber filter with default options
func NewSubscriberFilter() *SubscriberFilter {
	return &SubscriberFilter{
		QueryFilter: NewDefaultQueryFilter(),
	}
}

// NewNoLimitSubscriberFilter creates a new subscriber filter without pagination
func NewNoLimitSubscriberFilter() *SubscriberFilter {
	return &SubscriberFilter{
		QueryFilter: NewNoLimitQueryFilter(),
	}
}

// Validate validates the subscriber filter
func (f *SubscriberFilter) Validate() error {
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
	for _, m := range f.MembershipStatuses {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// GetLimit implements BaseFilter interface
func (f *SubscriberFilter) GetLimit() int {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetLimit()
	}
	return f.QueryFilter.GetLimit()
}

// GetOffset implements BaseFilter interface
func (f *SubscriberFilter) GetOffset() int {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetOffset()
	}
	return f.QueryFilter.GetOffset()
}

// GetSort implements BaseFilter interface
func (f *SubscriberFilter) GetSort() string {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetSort()
	}
	return f.QueryFilter.GetSort()
}

// GetOrder implements BaseFilter interface
func (f *SubscriberFilter) GetOrder() string {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetOrder()
	}
	return f.QueryFilter.GetOrder()
}

// GetStatus implements BaseFilter interface
func (f *SubscriberFilter) GetStatus() string {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetStatus()
	}
	return f.QueryFilter.GetStatus()
}

// GetExpand implements BaseFilter interface
func (f *SubscriberFilter) GetExpand() Expand {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetExpand()
	}
	return f.QueryFilter.GetExpand()
}

// IsUnlimited implements BaseFilter interface
func (f *SubscriberFilter) IsUnlimited() bool {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().IsUnlimited()
	}
	return f.QueryFilter.IsUnlimited()
}
