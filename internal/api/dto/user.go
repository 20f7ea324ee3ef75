package dto

import (
	"github.com/memberbill/memberbill/internal/domain/user"
)

type UserResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	TenantID string `json:"tenant_id"`
}

func NewUserResponse(u *user.User) *UserResponse {
	return &UserResponse{
		ID:       u.ID,
		Email:    u.Email,
		TenantID: u.TenantID,
	}
}
