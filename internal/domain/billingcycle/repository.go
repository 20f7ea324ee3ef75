package billingcycle

import (
	"context"
	"time"

	"github.com/memberbill/memberbill/internal/types"
)

// Repository defines the interface for billing cycle data access
type Repository interface {
	Create(ctx context.Context, cycle *BillingCycle) error
	Get(ctx context.Context, id string) (*BillingCycle, error)
	List(ctx context.Context, filter *types.BillingCycleFilter) ([]*BillingCycle, error)
	Count(ctx context.Context, filter *types.BillingCycleFilter) (int, error)
	Update(ctx context.Context, cycle *BillingCycle) error
	Delete(ctx context.Context, id string) error

	// ListDue returns scheduled cycles whose billing date has been reached
	ListDue(ctx context.Context, asOf time.Time) ([]*BillingCycle, error)

	// ListRetryEligible returns failed cycles still under the retry limit
	ListRetryEligible(ctx context.Context, asOf time.Time) ([]*BillingCycle, error)

	// ListBySubscription returns all cycles of one subscription, newest first
	ListBySubscription(ctx context.Context, subscriptionID string) ([]*BillingCycle, error)
}
