package testutil

import (
	"context"

	"github.com/samber/lo"

	"github.com/memberbill/memberbill/internal/domain/product"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/types"
)

// InMemoryProductStore implements product.Repository
type InMemoryProductStore struct {
	*InMemoryStore[*product.Product]
}

// NewInMemoryProductStore creates a new in-memory product store
func NewInMemoryProductStore() *InMemoryProductStore {
	return &InMemoryProductStore{
		InMemoryStore: NewInMemoryStore[*product.Product](),
	}
}

// Helper to copy product
func copyProduct(p *product.Product) *product.Product {
	if p == nil {
		return nil
	}

	copied := *p
	copied.Metadata = lo.Assign(types.Metadata{}, p.Metadata)
	return &copied
}

func (s *InMemoryProductStore) Create(ctx context.Context, p *product.Product) error {
	if p == nil {
		return ierr.NewError("product cannot be nil").
			WithHint("Product cannot be nil").
			Mark(ierr.ErrValidation)
	}

	// Set environment ID from context if not already set
	if p.EnvironmentID == "" {
		p.EnvironmentID = types.GetEnvironmentID(ctx)
	}

	return s.InMemoryStore.Create(ctx, p.ID, copyProduct(p))
}

func (s *InMemoryProductStore) Get(ctx context.Context, id string) (*product.Product, error) {
	p, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewError("product not found").
			WithHint("Product not found").
			WithReportableDetails(map[string]any{
				"product_id": id,
			}).
			Mark(ierr.ErrNotFound)
	}
	return copyProduct(p), nil
}

func (s *InMemoryProductStore) GetByLookupKey(ctx context.Context, lookupKey string) (*product.Product, error) {
	filterFn := func(ctx context.Context, p *product.Product, _ interface{}) bool {
		return p.LookupKey == lookupKey &&
			p.TenantID == types.GetTenantID(ctx) &&
			p.Status == types.StatusPublished &&
			CheckEnvironmentFilter(ctx, p.EnvironmentID)
	}

	products, err := s.InMemoryStore.List(ctx, nil, filterFn, nil)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, ierr.NewError("product not found").
			WithHint("Product not found").
			WithReportableDetails(map[string]any{
				"lookup_key": lookupKey,
			}).
			Mark(ierr.ErrNotFound)
	}

	return copyProduct(products[0]), nil
}

func (s *InMemoryProductStore) List(ctx context.Context, filter *types.ProductFilter) ([]*product.Product, error) {
	items, err := s.InMemoryStore.List(ctx, filter, productFilterFn, productSortFn)
	if err != nil {
		return nil, err
	}

	return lo.Map(items, func(p *product.Product, _ int) *product.Product {
		return copyProduct(p)
	}), nil
}

func (s *InMemoryProductStore) Count(ctx context.Context, filter *types.ProductFilter) (int, error) {
	return s.InMemoryStore.Count(ctx, filter, productFilterFn)
}

func (s *InMemoryProductStore) Update(ctx context.Context, p *product.Product) error {
	if p == nil {
		return ierr.NewError("product cannot be nil").
			WithHint("Product cannot be nil").
			Mark(ierr.ErrValidation)
	}
	return s.InMemoryStore.Update(ctx, p.ID, copyProduct(p))
}

func (s *InMemoryProductStore) Delete(ctx context.Context, id string) error {
	return s.InMemoryStore.Delete(ctx, id)
}

// productFilterFn implements filtering logic for products
func productFilterFn(ctx context.Context, p *product.Product, filter interface{}) bool {
	if p == nil {
		return false
	}

	f, ok := filter.(*types.ProductFilter)
	if !ok {
		return true
	}

	tenantID := types.GetTenantID(ctx)
	if tenantID != "" && p.TenantID != tenantID {
		return false
	}

	if !CheckEnvironmentFilter(ctx, p.EnvironmentID) {
		return false
	}

	if f.GetStatus() != "" && string(p.Status) != f.GetStatus() {
		return false
	}

	if len(f.ProductIDs) > 0 && !lo.Contains(f.ProductIDs, p.ID) {
		return false
	}

	if len(f.LookupKeys) > 0 && !lo.Contains(f.LookupKeys, p.LookupKey) {
		return false
	}

	if len(f.ProductTypes) > 0 && !lo.Contains(f.ProductTypes, p.ProductType) {
		return false
	}

	if len(f.Categories) > 0 && !lo.Contains(f.Categories, p.Category) {
		return false
	}

	if len(f.BillingPeriods) > 0 && !lo.Contains(f.BillingPeriods, p.BillingPeriod) {
		return false
	}

	if f.TimeRangeFilter != nil {
		if f.StartTime != nil && p.CreatedAt.Before(*f.StartTime) {
			return false
		}
		if f.EndTime != nil && p.CreatedAt.After(*f.EndTime) {
			return false
		}
	}

	return true
}

// productSortFn implements sorting logic for products
func productSortFn(i, j *product.Product) bool {
	if i == nil || j == nil {
		return false
	}
	return i.CreatedAt.After(j.CreatedAt)
}
