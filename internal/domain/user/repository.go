package user

import (
	"context"

	"github.com/memberbill/memberbill/internal/types"
)

type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ListByFilter(ctx context.Context, filter *types.UserFilter) ([]*User, int64, error)
}
