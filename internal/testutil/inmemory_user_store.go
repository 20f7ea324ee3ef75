package testutil

import (
	"context"
	"sync"

	"github.com/samber/lo"

	"github.com/memberbill/memberbill/internal/domain/user"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/types"
)

// InMemoryUserRepository is an in-memory implementation of the User repository
type InMemoryUserRepository struct {
	mu    sync.Mutex
	users map[string]*user.User
}

// NewInMemoryUserRepository creates a new instance of InMemoryUserRepository
func NewInMemoryUserRepository() *InMemoryUserRepository {
	return &InMemoryUserRepository{
		users: make(map[string]*user.User),
	}
}

// Create creates a new user in the in-memory store
func (r *InMemoryUserRepository) Create(ctx context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[u.Email]; exists {
		return ierr.NewError("user already exists").
			WithHint("A user with this email already exists").
			WithReportableDetails(map[string]interface{}{
				"email": u.Email,
			}).
			Mark(ierr.ErrAlreadyExists)
	}

	r.users[u.Email] = u
	return nil
}

// GetByEmail retrieves a user by email from the in-memory store
func (r *InMemoryUserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, exists := r.users[email]
	if !exists {
		return nil, ierr.NewError("user not found").
			WithHint("User not found").
			Mark(ierr.ErrNotFound)
	}

	return u, nil
}

// GetByID retrieves a user by ID from the in-memory store
func (r *InMemoryUserRepository) GetByID(ctx context.Context, userID string) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.ID == userID {
			return u, nil
		}
	}
	return nil, ierr.NewError("user not found").
		WithHint("User not found").
		WithReportableDetails(map[string]interface{}{
			"user_id": userID,
		}).
		Mark(ierr.ErrNotFound)
}

// ListByFilter retrieves users matching the filter along with the total count
func (r *InMemoryUserRepository) ListByFilter(ctx context.Context, filter *types.UserFilter) ([]*user.User, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tenantID := types.GetTenantID(ctx)
	var matched []*user.User
	for _, u := range r.users {
		if tenantID != "" && u.TenantID != tenantID {
			continue
		}
		if filter != nil {
			if filter.Email != "" && u.Email != filter.Email {
				continue
			}
			if len(filter.UserIDs) > 0 && !lo.Contains(filter.UserIDs, u.ID) {
				continue
			}
		}
		matched = append(matched, u)
	}

	total := int64(len(matched))
	if filter != nil && filter.QueryFilter != nil && !filter.IsUnlimited() {
		start := filter.GetOffset()
		if start >= len(matched) {
			return []*user.User{}, total, nil
		}
		end := start + filter.GetLimit()
		if end > len(matched) {
			end = len(matched)
		}
		matched = matched[start:end]
	}

	return matched, total, nil
}

// Clear removes all users from the in-memory store
func (r *InMemoryUserRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = make(map[string]*user.User)
}
