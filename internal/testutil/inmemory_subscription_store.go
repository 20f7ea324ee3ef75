package testutil

import (
	"context"

	"github.com/samber/lo"

	"github.com/memberbill/memberbill/internal/domain/subscription"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/types"
)

// subscriptionActiveRenewalStates mirrors the renewal states the repository
// treats as active when resolving the with_active_renewals filter
var subscriptionActiveRenewalStates = []types.RenewalState{
	types.RenewalStatePending,
	types.RenewalStateReminded,
	types.RenewalStateProcessing,
	types.RenewalStateGracePeriod,
}

// InMemorySubscriptionStore implements subscription.Repository
type InMemorySubscriptionStore struct {
	*InMemoryStore[*subscription.Subscription]
	renewals *InMemoryRenewalStore
}

// NewInMemorySubscriptionStore creates a new in-memory subscription store
func NewInMemorySubscriptionStore() *InMemorySubscriptionStore {
	return &InMemorySubscriptionStore{
		InMemoryStore: NewInMemoryStore[*subscription.Subscription](),
	}
}

// LinkRenewals attaches the renewal store so the with_active_renewals filter
// can resolve. The suite links the stores after constructing both.
func (s *InMemorySubscriptionStore) LinkRenewals(renewals *InMemoryRenewalStore) {
	s.renewals = renewals
}

// Helper to copy subscription
func copySubscription(sub *subscription.Subscription) *subscription.Subscription {
	if sub == nil {
		return nil
	}

	copied := *sub
	copied.Metadata = lo.Assign(types.Metadata{}, sub.Metadata)
	if sub.CancelledAt != nil {
		cancelledAt := *sub.CancelledAt
		copied.CancelledAt = &cancelledAt
	}
	if sub.GracePeriodDays != nil {
		graceDays := *sub.GracePeriodDays
		copied.GracePeriodDays = &graceDays
	}
	return &copied
}

func (s *InMemorySubscriptionStore) Create(ctx context.Context, sub *subscription.Subscription) error {
	if sub == nil {
		return ierr.NewError("subscription cannot be nil").
			WithHint("Subscription cannot be nil").
			Mark(ierr.ErrValidation)
	}

	// Set environment ID from context if not already set
	if sub.EnvironmentID == "" {
		sub.EnvironmentID = types.GetEnvironmentID(ctx)
	}

	return s.InMemoryStore.Create(ctx, sub.ID, copySubscription(sub))
}

func (s *InMemorySubscriptionStore) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	sub, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewError("subscription not found").
			WithHint("Subscription not found").
			WithReportableDetails(map[string]any{
				"subscription_id": id,
			}).
			Mark(ierr.ErrNotFound)
	}
	return copySubscription(sub), nil
}

func (s *InMemorySubscriptionStore) List(ctx context.Context, filter *types.SubscriptionFilter) ([]*subscription.Subscription, error) {
	items, err := s.InMemoryStore.List(ctx, filter, s.subscriptionFilterFn, subscriptionSortFn)
	if err != nil {
		return nil, err
	}

	return lo.Map(items, func(sub *subscription.Subscription, _ int) *subscription.Subscription {
		return copySubscription(sub)
	}), nil
}

func (s *InMemorySubscriptionStore) Count(ctx context.Context, filter *types.SubscriptionFilter) (int, error) {
	return s.InMemoryStore.Count(ctx, filter, s.subscriptionFilterFn)
}

func (s *InMemorySubscriptionStore) Update(ctx context.Context, sub *subscription.Subscription) error {
	if sub == nil {
		return ierr.NewError("subscription cannot be nil").
			WithHint("Subscription cannot be nil").
			Mark(ierr.ErrValidation)
	}
	return s.InMemoryStore.Update(ctx, sub.ID, copySubscription(sub))
}

func (s *InMemorySubscriptionStore) Delete(ctx context.Context, id string) error {
	return s.InMemoryStore.Delete(ctx, id)
}

// hasActiveRenewal reports whether the linked renewal store holds an open
// renewal for the subscription
func (s *InMemorySubscriptionStore) hasActiveRenewal(sub *subscription.Subscription) bool {
	if s.renewals == nil {
		return false
	}

	s.renewals.mu.RLock()
	defer s.renewals.mu.RUnlock()

	for _, ren := range s.renewals.items {
		if ren.SubscriptionID == sub.ID &&
			ren.TenantID == sub.TenantID &&
			lo.Contains(subscriptionActiveRenewalStates, ren.State) {
			return true
		}
	}
	return false
}

// subscriptionFilterFn implements filtering logic for subscriptions
func (s *InMemorySubscriptionStore) subscriptionFilterFn(ctx context.Context, sub *subscription.Subscription, filter interface{}) bool {
	if sub == nil {
		return false
	}

	f, ok := filter.(*types.SubscriptionFilter)
	if !ok {
		return true
	}

	tenantID := types.GetTenantID(ctx)
	if tenantID != "" && sub.TenantID != tenantID {
		return false
	}

	if !CheckEnvironmentFilter(ctx, sub.EnvironmentID) {
		return false
	}

	if f.GetStatus() != "" && string(sub.Status) != f.GetStatus() {
		return false
	}

	if len(f.SubscriberIDs) > 0 && !lo.Contains(f.SubscriberIDs, sub.SubscriberID) {
		return false
	}

	if len(f.ProductIDs) > 0 && !lo.Contains(f.ProductIDs, sub.ProductID) {
		return false
	}

	if len(f.States) > 0 && !lo.Contains(f.States, sub.State) {
		return false
	}

	if len(f.BillingPeriods) > 0 && !lo.Contains(f.BillingPeriods, sub.BillingPeriod) {
		return false
	}

	if f.AutoRenew != nil && sub.AutoRenew != *f.AutoRenew {
		return false
	}

	if f.NextBillingBefore != nil {
		date, err := types.ParseDate(*f.NextBillingBefore)
		if err != nil || sub.NextBillingDate.After(date) {
			return false
		}
	}

	if f.NextBillingAfter != nil {
		date, err := types.ParseDate(*f.NextBillingAfter)
		if err != nil || sub.NextBillingDate.Before(date) {
			return false
		}
	}

	if f.WithActiveRenewals != nil && s.hasActiveRenewal(sub) != *f.WithActiveRenewals {
		return false
	}

	if f.TimeRangeFilter != nil {
		if f.StartTime != nil && sub.CreatedAt.Before(*f.StartTime) {
			return false
		}
		if f.EndTime != nil && sub.CreatedAt.After(*f.EndTime) {
			return false
		}
	}

	return true
}

// subscriptionSortFn implements sorting logic for subscriptions
func subscriptionSortFn(i, j *subscription.Subscription) bool {
	if i == nil || j == nil {
		return false
	}
	return i.CreatedAt.After(j.CreatedAt)
}
