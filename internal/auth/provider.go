package auth

import (
	"context"

	"github.com/memberbill/memberbill/internal/config"
	"github.com/memberbill/memberbill/internal/domain/auth"
	"github.com/memberbill/memberbill/internal/types"
)

type AuthRequest struct {
	UserID   string
	TenantID string
	Email    string
	Password string
}

type AuthResponse struct {
	ID            string
	ProviderToken string
	AuthToken     string
}

type Provider interface {

	// User Management
	GetProvider() types.AuthProvider
	SignUp(ctx context.Context, req AuthRequest) (*AuthResponse, error)
	Login(ctx context.Context, req AuthRequest, userAuthInfo *auth.Auth) (*AuthResponse, error)
	ValidateToken(ctx context.Context, token string) (*auth.Claims, error)
}

func NewProvider(cfg *config.Configuration) Provider {
	return NewMemberbillAuth(cfg)
}
