package testutil

import (
	"context"
	"strings"

	"github.com/samber/lo"

	"github.com/memberbill/memberbill/internal/domain/subscriber"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/types"
)

// InMemorySubscriberStore implements subscriber.Repository
type InMemorySubscriberStore struct {
	*InMemoryStore[*subscriber.Subscriber]
}

// NewInMemorySubscriberStore creates a new in-memory subscriber store
func NewInMemorySubscriberStore() *InMemorySubscriberStore {
	return &InMemorySubscriberStore{
		InMemoryStore: NewInMemoryStore[*subscriber.Subscriber](),
	}
}

// Helper to copy subscriber
func copySubscriber(s *subscriber.Subscriber) *subscriber.Subscriber {
	if s == nil {
		return nil
	}

	copied := *s
	copied.Metadata = lo.Assign(types.Metadata{}, s.Metadata)
	if s.MemberSince != nil {
		memberSince := *s.MemberSince
		copied.MemberSince = &memberSince
	}
	return &copied
}

func (s *InMemorySubscriberStore) Create(ctx context.Context, sub *subscriber.Subscriber) error {
	if sub == nil {
		return ierr.NewError("subscriber cannot be nil").
			WithHint("Subscriber cannot be nil").
			Mark(ierr.ErrValidation)
	}

	// Set environment ID from context if not already set
	if sub.EnvironmentID == "" {
		sub.EnvironmentID = types.GetEnvironmentID(ctx)
	}

	return s.InMemoryStore.Create(ctx, sub.ID, copySubscriber(sub))
}

func (s *InMemorySubscriberStore) Get(ctx context.Context, id string) (*subscriber.Subscriber, error) {
	sub, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewError("subscriber not found").
			WithHint("Subscriber not found").
			WithReportableDetails(map[string]any{
				"subscriber_id": id,
			}).
			Mark(ierr.ErrNotFound)
	}
	return copySubscriber(sub), nil
}

func (s *InMemorySubscriberStore) GetByExternalID(ctx context.Context, externalID string) (*subscriber.Subscriber, error) {
	filterFn := func(ctx context.Context, sub *subscriber.Subscriber, _ interface{}) bool {
		return sub.ExternalID == externalID &&
			sub.TenantID == types.GetTenantID(ctx) &&
			CheckEnvironmentFilter(ctx, sub.EnvironmentID)
	}

	subs, err := s.InMemoryStore.List(ctx, nil, filterFn, nil)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, ierr.NewError("subscriber not found").
			WithHint("Subscriber not found").
			WithReportableDetails(map[string]any{
				"external_id": externalID,
			}).
			Mark(ierr.ErrNotFound)
	}

	return copySubscriber(subs[0]), nil
}

func (s *InMemorySubscriberStore) List(ctx context.Context, filter *types.SubscriberFilter) ([]*subscriber.Subscriber, error) {
	items, err := s.InMemoryStore.List(ctx, filter, subscriberFilterFn, subscriberSortFn)
	if err != nil {
		return nil, err
	}

	return lo.Map(items, func(sub *subscriber.Subscriber, _ int) *subscriber.Subscriber {
		return copySubscriber(sub)
	}), nil
}

func (s *InMemorySubscriberStore) Count(ctx context.Context, filter *types.SubscriberFilter) (int, error) {
	return s.InMemoryStore.Count(ctx, filter, subscriberFilterFn)
}

func (s *InMemorySubscriberStore) Update(ctx context.Context, sub *subscriber.Subscriber) error {
	if sub == nil {
		return ierr.NewError("subscriber cannot be nil").
			WithHint("Subscriber cannot be nil").
			Mark(ierr.ErrValidation)
	}
	return s.InMemoryStore.Update(ctx, sub.ID, copySubscriber(sub))
}

func (s *InMemorySubscriberStore) Delete(ctx context.Context, id string) error {
	return s.InMemoryStore.Delete(ctx, id)
}

// subscriberFilterFn implements filtering logic for subscribers
func subscriberFilterFn(ctx context.Context, sub *subscriber.Subscriber, filter interface{}) bool {
	if sub == nil {
		return false
	}

	f, ok := filter.(*types.SubscriberFilter)
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

	if len(f.SubscriberIDs) > 0 && !lo.Contains(f.SubscriberIDs, sub.ID) {
		return false
	}

	if len(f.ExternalIDs) > 0 && !lo.Contains(f.ExternalIDs, sub.ExternalID) {
		return false
	}

	if f.Email != "" && !strings.EqualFold(sub.Email, f.Email) {
		return false
	}

	if len(f.MembershipStatuses) > 0 && !lo.Contains(f.MembershipStatuses, sub.MembershipStatus) {
		return false
	}

	if f.IsMember != nil && sub.IsMember != *f.IsMember {
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

// subscriberSortFn implements sorting logic for subscribers
func subscriberSortFn(i, j *subscriber.Subscriber) bool {
	if i == nil || j == nil {
		return false
	}
	return i.CreatedAt.After(j.CreatedAt)
}
