package types

import (
	"github.com/samber/lo"

	ierr "github.com/memberbill/memberbill/internal/errors"
)

// ProductType distinguishes recurring subscription products from one time
// charges such as joining fees.
type ProductType string

const (
	ProductTypeRecurring ProductType = "recurring"
	ProductTypeOneTime   ProductType = "one_time"
)

func (t ProductType) String() string {
	return string(t)
}

func (t ProductType) Validate() error {
	allowed := []ProductType{
		ProductTypeRecurring,
		ProductTypeOneTime,
	}
	if !lo.Contains(allowed, t) {
		return ierr.NewError("invalid product type").
			WithHint("Product type must be recurring or one_time").
			WithReportableDetails(map[string]any{
				"product_type": t,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ProductFilter defines the query surface for products
type ProductFilter struct {
	*QueryFilter
	*TimeRangeFilter
	ProductIDs     []string        `json:"product_ids,omitempty" form:"product_ids" validate:"omitempty"`
	LookupKeys     []string        `json:"lookup_keys,omitempty" form:"lookup_keys" validate:"omitempty"`
	ProductTypes   []ProductType   `json:"product_types,omitempty" form:"product_types" validate:"omitempty"`
	Categories     []string        `json:"categories,omitempty" form:"categories" validate:"omitempty"`
	BillingPeriods []BillingPeriod `json:"billing_periods,omitempty" form:"billing_periods" validate:"omitempty"`
}

// NewProductFilter creates a new product filter with default options
func NewProductFilter() *ProductFilter {
	return &ProductFilter{
		QueryFilter: NewDefaultQueryFilter(),
	}
}

// NewNoLimitProductFilter creates a new product filter without pagination
func NewNoLimitProductFilter() *ProductFilter {
	return &ProductFilter{
		QueryFilter: NewNoLimitQueryFilter(),
	}
}

// Validate validates the product filter
func (f *ProductFilter) Validate() error {
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
	for _, t := range f.ProductTypes {
		if err := t.Validate(); err != nil {
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
func (f *ProductFilter) GetLimit() int {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetLimit()
	}
	return f.QueryFilter.GetLimit()
}

// GetOffset implements BaseFilter interface
func (f *ProductFilter) GetOffset() int {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetOffset()
	}
	return f.QueryFilter.GetOffset()
}

// GetSort implements BaseFilter interface
func (f *ProductFilter) GetSort() string {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetSort()
	}
	return f.QueryFilter.GetSort()
}

// GetOrder implements BaseFilter interface
func (f *ProductFilter) GetOrder() string {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetOrder()
	}
	return f.QueryFilter.GetOrder()
}

// GetStatus implements BaseFilter interface
func (f *ProductFilter) GetStatus() string {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetStatus()
	}
	return f.QueryFilter.GetStatus()
}

// GetExpand implements BaseFilter interface
func (f *ProductFilter) GetExpand() Expand {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetExpand()
	}
	return f.QueryFilter.GetExpand()
}

// IsUnlimited implements BaseFilter interface
func (f *ProductFilter) IsUnlimited() bool {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().IsUnlimited()
	}
	return f.QueryFilter.IsUnlimited()
}
