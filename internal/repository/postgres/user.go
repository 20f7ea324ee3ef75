package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/memberbill/memberbill/internal/domain/user"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/postgres"
	"github.com/memberbill/memberbill/internal/types"
)

type userRepository struct {
	client postgres.IClient
	log    *logger.Logger
}

func NewUserRepository(client postgres.IClient, log *logger.Logger) user.Repository {
	return &userRepository{client: client, log: log}
}

var userSortable = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"email":      "email",
}

const userInsertQuery = `
INSERT INTO users (
	id, email, tenant_id, status, created_at, updated_at, created_by, updated_by
) VALUES (
	:id, :email, :tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
)`

func (r *userRepository) Create(ctx context.Context, u *user.User) error {
	span := StartRepositorySpan(ctx, "user", "create", map[string]interface{}{
		"user_id": u.ID,
	})
	defer FinishSpan(span)

	r.log.Debugw("creating user", "user_id", u.ID, "tenant_id", u.TenantID)

	_, err := r.client.Querier(ctx).NamedExec(userInsertQuery, u)
	if err != nil {
		SetSpanError(span, err)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ierr.WithError(err).
				WithHint("A user with this email already exists").
				WithReportableDetails(map[string]any{
					"email": u.Email,
				}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create user").
			Mark(ierr.ErrDatabase)
	}

	SetSpanSuccess(span)
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	span := StartRepositorySpan(ctx, "user", "get_by_id", map[string]interface{}{
		"user_id": id,
	})
	defer FinishSpan(span)

	query, args, err := newQuery(`SELECT * FROM users`).
		where("tenant_id = :tenant_id", "tenant_id", types.GetTenantID(ctx)).
		where("id = :id", "id", id).
		build()
	if err != nil {
		SetSpanError(span, err)
		return nil, err
	}

	var u user.User
	if err := r.client.Querier(ctx).GetContext(ctx, &u, query, args...); err != nil {
		SetSpanError(span, err)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.WithError(err).
				WithHint("User not found").
				WithReportableDetails(map[string]any{
					"user_id": id,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get user").
			Mark(ierr.ErrDatabase)
	}

	SetSpanSuccess(span)
	return &u, nil
}

// GetByEmail looks a user up without a tenant scope. Only the login endpoint
// should use it; everything after login carries the tenant in the context.
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	span := StartRepositorySpan(ctx, "user", "get_by_email", map[string]interface{}{
		"email": email,
	})
	defer FinishSpan(span)

	var u user.User
	err := r.client.Querier(ctx).GetContext(ctx, &u, `SELECT * FROM users WHERE email = $1`, email)
	if err != nil {
		SetSpanError(span, err)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.WithError(err).
				WithHint("User not found").
				WithReportableDetails(map[string]any{
					"email": email,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get user").
			Mark(ierr.ErrDatabase)
	}

	SetSpanSuccess(span)
	return &u, nil
}

func (r *userRepository) ListByFilter(ctx context.Context, filter *types.UserFilter) ([]*user.User, int64, error) {
	span := StartRepositorySpan(ctx, "user", "list", map[string]interface{}{})
	defer FinishSpan(span)

	if filter == nil {
		filter = types.NewUserFilter()
	}

	applyFilter := func(q *queryBuilder) *queryBuilder {
		if len(filter.UserIDs) > 0 {
			q.where("id IN (:user_ids)", "user_ids", filter.UserIDs)
		}
		if filter.Email != "" {
			q.where("email = :email", "email", filter.Email)
		}
		return q.applyTimeRange(filter.TimeRangeFilter, "created_at")
	}

	countQuery, countArgs, err := applyFilter(
		newQuery(`SELECT count(*) FROM users`).
			where("tenant_id = :tenant_id", "tenant_id", types.GetTenantID(ctx)).
			applyStatus(filter),
	).build()
	if err != nil {
		SetSpanError(span, err)
		return nil, 0, err
	}

	var total int64
	if err := r.client.Querier(ctx).GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		SetSpanError(span, err)
		return nil, 0, ierr.WithError(err).
			WithHint("Failed to count users").
			Mark(ierr.ErrDatabase)
	}

	query, args, err := applyFilter(
		newQuery(`SELECT * FROM users`).
			where("tenant_id = :tenant_id", "tenant_id", types.GetTenantID(ctx)).
			applyStatus(filter),
	).applyPagination(filter, userSortable).build()
	if err != nil {
		SetSpanError(span, err)
		return nil, 0, err
	}

	users := make([]*user.User, 0)
	if err := r.client.Querier(ctx).SelectContext(ctx, &users, query, args...); err != nil {
		SetSpanError(span, err)
		return nil, 0, ierr.WithError(err).
			WithHint("Failed to list users").
			Mark(ierr.ErrDatabase)
	}

	SetSpanSuccess(span)
	return users, total, nil
}
