package product

import (
	"context"

	"github.com/memberbill/memberbill/internal/types"
)

// Repository defines the interface for product data access
type Repository interface {
	Create(ctx context.Context, product *Product) error
	Get(ctx context.Context, id string) (*Product, error)
	GetByLookupKey(ctx context.Context, lookupKey string) (*Product, error)
	List(ctx context.Context, filter *types.ProductFilter) ([]*Product, error)
	Count(ctx context.Context, filter *types.ProductFilter) (int, error)
	Update(ctx context.Context, product *Product) error
	Delete(ctx context.Context, id string) error
}
