package testutil

import (
	"context"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/memberbill/memberbill/internal/domain/renewal"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/types"
)

// renewalOpenStates mirrors the states the repository treats as open when
// resolving the single open renewal of a subscription
var renewalOpenStates = []types.RenewalState{
	types.RenewalStatePending,
	types.RenewalStateReminded,
	types.RenewalStateProcessing,
	types.RenewalStateGracePeriod,
	types.RenewalStateExpired,
}

// renewalSweepStates are the states the due, reminder and overdue sweeps
// consider actionable
var renewalSweepStates = []types.RenewalState{
	types.RenewalStatePending,
	types.RenewalStateReminded,
	types.RenewalStateGracePeriod,
}

// InMemoryRenewalStore implements renewal.Repository
type InMemoryRenewalStore struct {
	*InMemoryStore[*renewal.Renewal]
	subscriptions *InMemorySubscriptionStore
}

// NewInMemoryRenewalStore creates a new in-memory renewal store. The
// subscription store resolves the auto renew join of the processing sweep.
func NewInMemoryRenewalStore(subscriptions *InMemorySubscriptionStore) *InMemoryRenewalStore {
	return &InMemoryRenewalStore{
		InMemoryStore: NewInMemoryStore[*renewal.Renewal](),
		subscriptions: subscriptions,
	}
}

// Helper to copy renewal
func copyRenewal(r *renewal.Renewal) *renewal.Renewal {
	if r == nil {
		return nil
	}

	copied := *r
	copied.Metadata = lo.Assign(types.Metadata{}, r.Metadata)
	if r.LastReminderAt != nil {
		lastReminderAt := *r.LastReminderAt
		copied.LastReminderAt = &lastReminderAt
	}
	if r.NextReminderAt != nil {
		nextReminderAt := *r.NextReminderAt
		copied.NextReminderAt = &nextReminderAt
	}
	if r.ProcessedAt != nil {
		processedAt := *r.ProcessedAt
		copied.ProcessedAt = &processedAt
	}
	return &copied
}

func (s *InMemoryRenewalStore) Create(ctx context.Context, r *renewal.Renewal) error {
	if r == nil {
		return ierr.NewError("renewal cannot be nil").
			WithHint("Renewal cannot be nil").
			Mark(ierr.ErrValidation)
	}

	// Set environment ID from context if not already set
	if r.EnvironmentID == "" {
		r.EnvironmentID = types.GetEnvironmentID(ctx)
	}

	return s.InMemoryStore.Create(ctx, r.ID, copyRenewal(r))
}

func (s *InMemoryRenewalStore) Get(ctx context.Context, id string) (*renewal.Renewal, error) {
	r, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewError("renewal not found").
			WithHint("Renewal not found").
			WithReportableDetails(map[string]any{
				"renewal_id": id,
			}).
			Mark(ierr.ErrNotFound)
	}
	return copyRenewal(r), nil
}

func (s *InMemoryRenewalStore) List(ctx context.Context, filter *types.RenewalFilter) ([]*renewal.Renewal, error) {
	items, err := s.InMemoryStore.List(ctx, filter, s.renewalFilterFn, renewalSortFn)
	if err != nil {
		return nil, err
	}

	return lo.Map(items, func(r *renewal.Renewal, _ int) *renewal.Renewal {
		return copyRenewal(r)
	}), nil
}

func (s *InMemoryRenewalStore) Count(ctx context.Context, filter *types.RenewalFilter) (int, error) {
	return s.InMemoryStore.Count(ctx, filter, s.renewalFilterFn)
}

func (s *InMemoryRenewalStore) Update(ctx context.Context, r *renewal.Renewal) error {
	if r == nil {
		return ierr.NewError("renewal cannot be nil").
			WithHint("Renewal cannot be nil").
			Mark(ierr.ErrValidation)
	}
	return s.InMemoryStore.Update(ctx, r.ID, copyRenewal(r))
}

func (s *InMemoryRenewalStore) Delete(ctx context.Context, id string) error {
	return s.InMemoryStore.Delete(ctx, id)
}

func (s *InMemoryRenewalStore) GetOpenBySubscription(ctx context.Context, subscriptionID string) (*renewal.Renewal, error) {
	filterFn := func(ctx context.Context, r *renewal.Renewal, _ interface{}) bool {
		return r.SubscriptionID == subscriptionID &&
			r.TenantID == types.GetTenantID(ctx) &&
			r.Status == types.StatusPublished &&
			lo.Contains(renewalOpenStates, r.State) &&
			CheckEnvironmentFilter(ctx, r.EnvironmentID)
	}

	renewals, err := s.InMemoryStore.List(ctx, nil, filterFn, renewalSortFn)
	if err != nil {
		return nil, err
	}
	if len(renewals) == 0 {
		return nil, ierr.NewError("no open renewal for subscription").
			WithHint("Subscription has no open renewal").
			WithReportableDetails(map[string]any{
				"subscription_id": subscriptionID,
			}).
			Mark(ierr.ErrNotFound)
	}

	return copyRenewal(renewals[0]), nil
}

func (s *InMemoryRenewalStore) ListDueForProcessing(ctx context.Context, asOf time.Time) ([]*renewal.Renewal, error) {
	eligible := s.autoRenewEligibleSubscriptions(ctx)
	cutoff := types.BeginningOfDay(asOf)

	filterFn := func(ctx context.Context, r *renewal.Renewal, _ interface{}) bool {
		return r.TenantID == types.GetTenantID(ctx) &&
			r.Status == types.StatusPublished &&
			lo.Contains(renewalSweepStates, r.State) &&
			!types.BeginningOfDay(r.DueDate).After(cutoff) &&
			eligible[r.SubscriptionID] &&
			CheckEnvironmentFilter(ctx, r.EnvironmentID)
	}

	renewals, err := s.InMemoryStore.List(ctx, nil, filterFn, nil)
	if err != nil {
		return nil, err
	}
	sortRenewalsByDueDate(renewals)

	return lo.Map(renewals, func(r *renewal.Renewal, _ int) *renewal.Renewal {
		return copyRenewal(r)
	}), nil
}

func (s *InMemoryRenewalStore) ListReminderCandidates(ctx context.Context, asOf time.Time) ([]*renewal.Renewal, error) {
	cutoff := types.BeginningOfDay(asOf)

	filterFn := func(ctx context.Context, r *renewal.Renewal, _ interface{}) bool {
		if r.State != types.RenewalStatePending && r.State != types.RenewalStateReminded {
			return false
		}
		return r.TenantID == types.GetTenantID(ctx) &&
			r.Status == types.StatusPublished &&
			r.NextReminderAt != nil &&
			!types.BeginningOfDay(*r.NextReminderAt).After(cutoff) &&
			CheckEnvironmentFilter(ctx, r.EnvironmentID)
	}

	renewals, err := s.InMemoryStore.List(ctx, nil, filterFn, nil)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(renewals, func(i, j int) bool {
		return renewals[i].NextReminderAt.Before(*renewals[j].NextReminderAt)
	})

	return lo.Map(renewals, func(r *renewal.Renewal, _ int) *renewal.Renewal {
		return copyRenewal(r)
	}), nil
}

func (s *InMemoryRenewalStore) ListOverdue(ctx context.Context, asOf time.Time) ([]*renewal.Renewal, error) {
	cutoff := types.BeginningOfDay(asOf)

	filterFn := func(ctx context.Context, r *renewal.Renewal, _ interface{}) bool {
		return r.TenantID == types.GetTenantID(ctx) &&
			r.Status == types.StatusPublished &&
			lo.Contains(renewalSweepStates, r.State) &&
			types.BeginningOfDay(r.DueDate).Before(cutoff) &&
			CheckEnvironmentFilter(ctx, r.EnvironmentID)
	}

	renewals, err := s.InMemoryStore.List(ctx, nil, filterFn, nil)
	if err != nil {
		return nil, err
	}
	sortRenewalsByDueDate(renewals)

	return lo.Map(renewals, func(r *renewal.Renewal, _ int) *renewal.Renewal {
		return copyRenewal(r)
	}), nil
}

// autoRenewEligibleSubscriptions snapshots the subscriptions the processing
// sweep may touch. Taken before the renewal lock so the two stores never
// lock each other in opposite order.
func (s *InMemoryRenewalStore) autoRenewEligibleSubscriptions(ctx context.Context) map[string]bool {
	eligible := make(map[string]bool)
	if s.subscriptions == nil {
		return eligible
	}

	s.subscriptions.mu.RLock()
	defer s.subscriptions.mu.RUnlock()

	for _, sub := range s.subscriptions.items {
		if sub.AutoRenew && sub.State == types.SubscriptionStateActive {
			eligible[sub.ID] = true
		}
	}
	return eligible
}

// renewalFilterFn implements filtering logic for renewals
func (s *InMemoryRenewalStore) renewalFilterFn(ctx context.Context, r *renewal.Renewal, filter interface{}) bool {
	if r == nil {
		return false
	}

	f, ok := filter.(*types.RenewalFilter)
	if !ok {
		return true
	}

	tenantID := types.GetTenantID(ctx)
	if tenantID != "" && r.TenantID != tenantID {
		return false
	}

	if !CheckEnvironmentFilter(ctx, r.EnvironmentID) {
		return false
	}

	if f.GetStatus() != "" && string(r.Status) != f.GetStatus() {
		return false
	}

	if len(f.SubscriptionIDs) > 0 && !lo.Contains(f.SubscriptionIDs, r.SubscriptionID) {
		return false
	}

	if len(f.States) > 0 && !lo.Contains(f.States, r.State) {
		return false
	}

	if len(f.PreviousRenewalIDs) > 0 && !lo.Contains(f.PreviousRenewalIDs, r.PreviousRenewalID) {
		return false
	}

	if f.DueDateFrom != nil {
		date, err := types.ParseDate(*f.DueDateFrom)
		if err != nil || r.DueDate.Before(date) {
			return false
		}
	}

	if f.DueDateTo != nil {
		date, err := types.ParseDate(*f.DueDateTo)
		if err != nil || r.DueDate.After(date) {
			return false
		}
	}

	if f.ReminderDueBefore != nil {
		date, err := types.ParseDate(*f.ReminderDueBefore)
		if err != nil || r.NextReminderAt == nil || r.NextReminderAt.After(date) {
			return false
		}
	}

	if f.AutoRenewEligible != nil && *f.AutoRenewEligible {
		if !s.autoRenewEligibleSubscriptions(ctx)[r.SubscriptionID] {
			return false
		}
	}

	if f.TimeRangeFilter != nil {
		if f.StartTime != nil && r.CreatedAt.Before(*f.StartTime) {
			return false
		}
		if f.EndTime != nil && r.CreatedAt.After(*f.EndTime) {
			return false
		}
	}

	return true
}

// renewalSortFn implements sorting logic for renewals
func renewalSortFn(i, j *renewal.Renewal) bool {
	if i == nil || j == nil {
		return false
	}
	return i.CreatedAt.After(j.CreatedAt)
}

func sortRenewalsByDueDate(renewals []*renewal.Renewal) {
	sort.SliceStable(renewals, func(i, j int) bool {
		return renewals[i].DueDate.Before(renewals[j].DueDate)
	})
}
