package service

import (
	"context"

	"github.com/memberbill/memberbill/internal/api/dto"
	"github.com/memberbill/memberbill/internal/domain/user"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/types"
)

type UserService interface {
	GetUserInfo(ctx context.Context) (*dto.UserResponse, error)
	GetUserByEmail(ctx context.Context, email string) (*user.User, error)
}

type userService struct {
	ServiceParams
}

func NewUserService(params ServiceParams) UserService {
	return &userService{
		ServiceParams: params,
	}
}

// GetUserInfo resolves the authenticated user from the request context
func (s *userService) GetUserInfo(ctx context.Context) (*dto.UserResponse, error) {
	userID := types.GetUserID(ctx)
	if userID == "" {
		return nil, ierr.NewError("user id is missing from the request context").
			WithHint("Authentication is required").
			Mark(ierr.ErrPermissionDenied)
	}

	userRecord, err := s.UserRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	return dto.NewUserResponse(userRecord), nil
}

func (s *userService) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	if email == "" {
		return nil, ierr.NewError("email is required").
			WithHint("Email is required").
			Mark(ierr.ErrValidation)
	}
	return s.UserRepo.GetByEmail(ctx, email)
}
