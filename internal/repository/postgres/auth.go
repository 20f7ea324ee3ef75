package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/memberbill/memberbill/internal/domain/auth"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/postgres"
	"github.com/memberbill/memberbill/internal/types"
)

type authRepository struct {
	client postgres.IClient
	log    *logger.Logger
}

func NewAuthRepository(client postgres.IClient, log *logger.Logger) auth.Repository {
	return &authRepository{client: client, log: log}
}

func (r *authRepository) CreateAuth(ctx context.Context, a *auth.Auth) error {
	if !r.validateProvider(a.Provider) {
		return ierr.NewError("invalid auth provider").
			WithHint("Only self hosted credentials are stored").
			WithReportableDetails(map[string]any{
				"provider": a.Provider,
			}).
			Mark(ierr.ErrValidation)
	}

	query := `
	INSERT INTO auths (user_id, provider, token, status, created_at, updated_at)
	VALUES (:user_id, :provider, :token, :status, :created_at, :updated_at)`

	_, err := r.client.Querier(ctx).NamedExec(query, a)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ierr.WithError(err).
				WithHint("Credentials for this user already exist").
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to store credentials").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *authRepository) GetAuthByUserID(ctx context.Context, userID string) (*auth.Auth, error) {
	var a auth.Auth
	err := r.client.Querier(ctx).GetContext(ctx, &a, `SELECT * FROM auths WHERE user_id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.WithError(err).
				WithHint("Credentials not found").
				WithReportableDetails(map[string]any{
					"user_id": userID,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get credentials").
			Mark(ierr.ErrDatabase)
	}
	return &a, nil
}

func (r *authRepository) UpdateAuth(ctx context.Context, a *auth.Auth) error {
	if !r.validateProvider(a.Provider) {
		return ierr.NewError("invalid auth provider").
			WithHint("Only self hosted credentials are stored").
			Mark(ierr.ErrValidation)
	}

	query := `
	UPDATE auths SET
		provider = :provider,
		token = :token,
		status = :status,
		updated_at = :updated_at
	WHERE user_id = :user_id`

	result, err := r.client.Querier(ctx).NamedExec(query, a)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update credentials").
			Mark(ierr.ErrDatabase)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return ierr.NewError("credentials not found").
			WithHint("Credentials not found").
			WithReportableDetails(map[string]any{
				"user_id": a.UserID,
			}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *authRepository) DeleteAuth(ctx context.Context, userID string) error {
	_, err := r.client.Querier(ctx).ExecContext(ctx, `DELETE FROM auths WHERE user_id = $1`, userID)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to delete credentials").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *authRepository) validateProvider(provider types.AuthProvider) bool {
	return provider == types.AuthProviderMemberbill
}
