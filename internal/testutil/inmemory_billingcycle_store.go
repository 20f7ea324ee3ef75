package testutil

import (
	"context"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/memberbill/memberbill/internal/domain/billingcycle"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/types"
)

// InMemoryBillingCycleStore implements billingcycle.Repository
type InMemoryBillingCycleStore struct {
	*InMemoryStore[*billingcycle.BillingCycle]
}

// NewInMemoryBillingCycleStore creates a new in-memory billing cycle store
func NewInMemoryBillingCycleStore() *InMemoryBillingCycleStore {
	return &InMemoryBillingCycleStore{
		InMemoryStore: NewInMemoryStore[*billingcycle.BillingCycle](),
	}
}

// Helper to copy billing cycle
func copyBillingCycle(bc *billingcycle.BillingCycle) *billingcycle.BillingCycle {
	if bc == nil {
		return nil
	}

	copied := *bc
	copied.Metadata = lo.Assign(types.Metadata{}, bc.Metadata)
	if bc.AmountsCalculatedAt != nil {
		calculatedAt := *bc.AmountsCalculatedAt
		copied.AmountsCalculatedAt = &calculatedAt
	}
	if bc.PaidAt != nil {
		paidAt := *bc.PaidAt
		copied.PaidAt = &paidAt
	}
	if bc.FailedAt != nil {
		failedAt := *bc.FailedAt
		copied.FailedAt = &failedAt
	}
	if bc.ProcessedAt != nil {
		processedAt := *bc.ProcessedAt
		copied.ProcessedAt = &processedAt
	}
	return &copied
}

func (s *InMemoryBillingCycleStore) Create(ctx context.Context, bc *billingcycle.BillingCycle) error {
	if bc == nil {
		return ierr.NewError("billing cycle cannot be nil").
			WithHint("Billing cycle cannot be nil").
			Mark(ierr.ErrValidation)
	}

	// Set environment ID from context if not already set
	if bc.EnvironmentID == "" {
		bc.EnvironmentID = types.GetEnvironmentID(ctx)
	}

	return s.InMemoryStore.Create(ctx, bc.ID, copyBillingCycle(bc))
}

func (s *InMemoryBillingCycleStore) Get(ctx context.Context, id string) (*billingcycle.BillingCycle, error) {
	bc, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewError("billing cycle not found").
			WithHint("Billing cycle not found").
			WithReportableDetails(map[string]any{
				"billing_cycle_id": id,
			}).
			Mark(ierr.ErrNotFound)
	}
	return copyBillingCycle(bc), nil
}

func (s *InMemoryBillingCycleStore) List(ctx context.Context, filter *types.BillingCycleFilter) ([]*billingcycle.BillingCycle, error) {
	items, err := s.InMemoryStore.List(ctx, filter, billingCycleFilterFn, billingCycleSortFn)
	if err != nil {
		return nil, err
	}

	return lo.Map(items, func(bc *billingcycle.BillingCycle, _ int) *billingcycle.BillingCycle {
		return copyBillingCycle(bc)
	}), nil
}

func (s *InMemoryBillingCycleStore) Count(ctx context.Context, filter *types.BillingCycleFilter) (int, error) {
	return s.InMemoryStore.Count(ctx, filter, billingCycleFilterFn)
}

func (s *InMemoryBillingCycleStore) Update(ctx context.Context, bc *billingcycle.BillingCycle) error {
	if bc == nil {
		return ierr.NewError("billing cycle cannot be nil").
			WithHint("Billing cycle cannot be nil").
			Mark(ierr.ErrValidation)
	}
	return s.InMemoryStore.Update(ctx, bc.ID, copyBillingCycle(bc))
}

func (s *InMemoryBillingCycleStore) Delete(ctx context.Context, id string) error {
	return s.InMemoryStore.Delete(ctx, id)
}

func (s *InMemoryBillingCycleStore) ListDue(ctx context.Context, asOf time.Time) ([]*billingcycle.BillingCycle, error) {
	cutoff := types.BeginningOfDay(asOf)

	filterFn := func(ctx context.Context, bc *billingcycle.BillingCycle, _ interface{}) bool {
		return bc.TenantID == types.GetTenantID(ctx) &&
			bc.Status == types.StatusPublished &&
			bc.State == types.BillingCycleStateScheduled &&
			!types.BeginningOfDay(bc.BillingDate).After(cutoff) &&
			CheckEnvironmentFilter(ctx, bc.EnvironmentID)
	}

	cycles, err := s.InMemoryStore.List(ctx, nil, filterFn, nil)
	if err != nil {
		return nil, err
	}
	sortBillingCyclesByDate(cycles, true)

	return lo.Map(cycles, func(bc *billingcycle.BillingCycle, _ int) *billingcycle.BillingCycle {
		return copyBillingCycle(bc)
	}), nil
}

func (s *InMemoryBillingCycleStore) ListRetryEligible(ctx context.Context, asOf time.Time) ([]*billingcycle.BillingCycle, error) {
	cutoff := types.BeginningOfDay(asOf)

	filterFn := func(ctx context.Context, bc *billingcycle.BillingCycle, _ interface{}) bool {
		return bc.TenantID == types.GetTenantID(ctx) &&
			bc.Status == types.StatusPublished &&
			bc.State == types.BillingCycleStateFailed &&
			bc.RetryCount < types.MaxBillingRetries &&
			!types.BeginningOfDay(bc.BillingDate).After(cutoff) &&
			CheckEnvironmentFilter(ctx, bc.EnvironmentID)
	}

	cycles, err := s.InMemoryStore.List(ctx, nil, filterFn, nil)
	if err != nil {
		return nil, err
	}
	sortBillingCyclesByDate(cycles, true)

	return lo.Map(cycles, func(bc *billingcycle.BillingCycle, _ int) *billingcycle.BillingCycle {
		return copyBillingCycle(bc)
	}), nil
}

func (s *InMemoryBillingCycleStore) ListBySubscription(ctx context.Context, subscriptionID string) ([]*billingcycle.BillingCycle, error) {
	filterFn := func(ctx context.Context, bc *billingcycle.BillingCycle, _ interface{}) bool {
		return bc.SubscriptionID == subscriptionID &&
			bc.TenantID == types.GetTenantID(ctx) &&
			bc.Status == types.StatusPublished &&
			CheckEnvironmentFilter(ctx, bc.EnvironmentID)
	}

	cycles, err := s.InMemoryStore.List(ctx, nil, filterFn, nil)
	if err != nil {
		return nil, err
	}
	sortBillingCyclesByDate(cycles, false)

	return lo.Map(cycles, func(bc *billingcycle.BillingCycle, _ int) *billingcycle.BillingCycle {
		return copyBillingCycle(bc)
	}), nil
}

// billingCycleFilterFn implements filtering logic for billing cycles
func billingCycleFilterFn(ctx context.Context, bc *billingcycle.BillingCycle, filter interface{}) bool {
	if bc == nil {
		return false
	}

	f, ok := filter.(*types.BillingCycleFilter)
	if !ok {
		return true
	}

	tenantID := types.GetTenantID(ctx)
	if tenantID != "" && bc.TenantID != tenantID {
		return false
	}

	if !CheckEnvironmentFilter(ctx, bc.EnvironmentID) {
		return false
	}

	if f.GetStatus() != "" && string(bc.Status) != f.GetStatus() {
		return false
	}

	if len(f.SubscriptionIDs) > 0 && !lo.Contains(f.SubscriptionIDs, bc.SubscriptionID) {
		return false
	}

	if len(f.States) > 0 && !lo.Contains(f.States, bc.State) {
		return false
	}

	if len(f.BillingTypes) > 0 && !lo.Contains(f.BillingTypes, bc.BillingType) {
		return false
	}

	if f.BillingDateFrom != nil {
		date, err := types.ParseDate(*f.BillingDateFrom)
		if err != nil || bc.BillingDate.Before(date) {
			return false
		}
	}

	if f.BillingDateTo != nil {
		date, err := types.ParseDate(*f.BillingDateTo)
		if err != nil || bc.BillingDate.After(date) {
			return false
		}
	}

	if f.RetryEligible != nil && *f.RetryEligible {
		if bc.State != types.BillingCycleStateFailed || bc.RetryCount >= types.MaxBillingRetries {
			return false
		}
	}

	if f.TimeRangeFilter != nil {
		if f.StartTime != nil && bc.CreatedAt.Before(*f.StartTime) {
			return false
		}
		if f.EndTime != nil && bc.CreatedAt.After(*f.EndTime) {
			return false
		}
	}

	return true
}

// billingCycleSortFn implements sorting logic for billing cycles
func billingCycleSortFn(i, j *billingcycle.BillingCycle) bool {
	if i == nil || j == nil {
		return false
	}
	return i.CreatedAt.After(j.CreatedAt)
}

func sortBillingCyclesByDate(cycles []*billingcycle.BillingCycle, ascending bool) {
	sort.SliceStable(cycles, func(i, j int) bool {
		if ascending {
			return cycles[i].BillingDate.Before(cycles[j].BillingDate)
		}
		return cycles[i].BillingDate.After(cycles[j].BillingDate)
	})
}
