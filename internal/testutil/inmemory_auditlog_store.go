package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/memberbill/memberbill/internal/domain/auditlog"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/types"
)

// InMemoryAuditLogStore implements auditlog.Repository. The trail is append
// only, so the store is just a guarded slice.
type InMemoryAuditLogStore struct {
	mu      sync.RWMutex
	entries []*auditlog.AuditLog
}

// NewInMemoryAuditLogStore creates a new in-memory audit log store
func NewInMemoryAuditLogStore() *InMemoryAuditLogStore {
	return &InMemoryAuditLogStore{
		entries: make([]*auditlog.AuditLog, 0),
	}
}

func (s *InMemoryAuditLogStore) Insert(ctx context.Context, entry *auditlog.AuditLog) error {
	if entry == nil {
		return ierr.NewError("audit entry cannot be nil").
			WithHint("Audit entry cannot be nil").
			Mark(ierr.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *InMemoryAuditLogStore) InsertBatch(ctx context.Context, entries []*auditlog.AuditLog) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
	return nil
}

func (s *InMemoryAuditLogStore) List(ctx context.Context, filter *types.AuditLogFilter) ([]*auditlog.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*auditlog.AuditLog
	for _, entry := range s.entries {
		if auditLogFilterFn(ctx, entry, filter) {
			matched = append(matched, entry)
		}
	}

	// Newest first, keyed by the event timestamp
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if filter != nil && filter.QueryFilter != nil && !filter.IsUnlimited() {
		start := filter.GetOffset()
		if start >= len(matched) {
			return []*auditlog.AuditLog{}, nil
		}
		end := start + filter.GetLimit()
		if end > len(matched) {
			end = len(matched)
		}
		matched = matched[start:end]
	}

	return matched, nil
}

func (s *InMemoryAuditLogStore) Count(ctx context.Context, filter *types.AuditLogFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, entry := range s.entries {
		if auditLogFilterFn(ctx, entry, filter) {
			count++
		}
	}
	return count, nil
}

// Entries returns everything inserted so far, oldest first. Test helper.
func (s *InMemoryAuditLogStore) Entries() []*auditlog.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]*auditlog.AuditLog, len(s.entries))
	copy(entries, s.entries)
	return entries
}

// Clear removes all entries from the store
func (s *InMemoryAuditLogStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make([]*auditlog.AuditLog, 0)
}

// auditLogFilterFn implements filtering logic for audit log entries
func auditLogFilterFn(ctx context.Context, entry *auditlog.AuditLog, filter *types.AuditLogFilter) bool {
	if entry == nil {
		return false
	}

	tenantID := types.GetTenantID(ctx)
	if tenantID != "" && entry.TenantID != tenantID {
		return false
	}

	if !CheckEnvironmentFilter(ctx, entry.EnvironmentID) {
		return false
	}

	if filter == nil {
		return true
	}

	if filter.EntityType != "" && entry.EntityType != filter.EntityType {
		return false
	}

	if len(filter.EntityIDs) > 0 && !lo.Contains(filter.EntityIDs, entry.EntityID) {
		return false
	}

	if len(filter.Events) > 0 && !lo.Contains(filter.Events, entry.Event) {
		return false
	}

	if len(filter.ActorIDs) > 0 && !lo.Contains(filter.ActorIDs, entry.ActorID) {
		return false
	}

	if filter.TimeRangeFilter != nil {
		if filter.StartTime != nil && entry.Timestamp.Before(*filter.StartTime) {
			return false
		}
		if filter.EndTime != nil && entry.Timestamp.After(*filter.EndTime) {
			return false
		}
	}

	return true
}
