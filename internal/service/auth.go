package service

import (
	"context"

	"github.com/memberbill/memberbill/internal/api/dto"
	authProvider "github.com/memberbill/memberbill/internal/auth"
	"github.com/memberbill/memberbill/internal/domain/auth"
	"github.com/memberbill/memberbill/internal/domain/user"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/types"
)

type AuthService interface {
	SignUp(ctx context.Context, req *dto.SignUpRequest) (*dto.AuthResponse, error)
	Login(ctx context.Context, req *dto.LoginRequest) (*dto.AuthResponse, error)
}

type authService struct {
	ServiceParams
	authProvider authProvider.Provider
}

func NewAuthService(params ServiceParams) AuthService {
	return &authService{
		ServiceParams: params,
		authProvider:  authProvider.NewProvider(params.Config),
	}
}

// SignUp creates a new user under a fresh tenant and returns an auth token
func (s *authService) SignUp(ctx context.Context, req *dto.SignUpRequest) (*dto.AuthResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	existingUser, _ := s.UserRepo.GetByEmail(ctx, req.Email)
	if existingUser != nil {
		return nil, ierr.NewError("user already exists").
			WithHint("An account with this email already exists").
			WithReportableDetails(map[string]interface{}{
				"email": req.Email,
			}).
			Mark(ierr.ErrAlreadyExists)
	}

	tenantID := types.GenerateUUIDWithPrefix(types.UUID_PREFIX_TENANT)

	authResponse, err := s.authProvider.SignUp(ctx, authProvider.AuthRequest{
		Email:    req.Email,
		Password: req.Password,
		TenantID: tenantID,
	})
	if err != nil {
		return nil, err
	}

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		authRecord := auth.NewAuth(authResponse.ID, s.authProvider.GetProvider(), authResponse.ProviderToken)
		if err := s.AuthRepo.CreateAuth(ctx, authRecord); err != nil {
			return ierr.WithError(err).
				WithHint("Failed to create authentication record").
				Mark(ierr.ErrDatabase)
		}

		// The provider issued the user ID so the token subject and the user
		// record stay aligned
		newUser := user.NewUser(req.Email, tenantID)
		newUser.ID = authResponse.ID
		if err := s.UserRepo.Create(ctx, newUser); err != nil {
			return ierr.WithError(err).
				WithHint("Failed to create user").
				Mark(ierr.ErrDatabase)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &dto.AuthResponse{
		Token:    authResponse.AuthToken,
		UserID:   authResponse.ID,
		TenantID: tenantID,
	}, nil
}

// Login authenticates a user and returns an auth token
func (s *authService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.AuthResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	userRecord, err := s.UserRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}

	authRecord, err := s.AuthRepo.GetAuthByUserID(ctx, userRecord.ID)
	if err != nil {
		return nil, err
	}

	authResponse, err := s.authProvider.Login(ctx, authProvider.AuthRequest{
		UserID:   userRecord.ID,
		TenantID: userRecord.TenantID,
		Email:    userRecord.Email,
		Password: req.Password,
	}, authRecord)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to authenticate").
			Mark(ierr.ErrPermissionDenied)
	}

	if authResponse.ID != userRecord.ID {
		return nil, ierr.NewError("user not found").
			WithHint("User not found").
			WithReportableDetails(map[string]interface{}{
				"user_id": userRecord.ID,
			}).
			Mark(ierr.ErrPermissionDenied)
	}

	return &dto.AuthResponse{
		Token:    authResponse.AuthToken,
		UserID:   authResponse.ID,
		TenantID: userRecord.TenantID,
	}, nil
}
