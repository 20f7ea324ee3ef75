package renewal

import (
	"context"
	"time"

	"github.com/memberbill/memberbill/internal/types"
)

// Repository defines the interface for renewal data access
type Repository interface {
	Create(ctx context.Context, renewal *Renewal) error
	Get(ctx context.Context, id string) (*Renewal, error)
	List(ctx context.Context, filter *types.RenewalFilter) ([]*Renewal, error)
	Count(ctx context.Context, filter *types.RenewalFilter) (int, error)
	Update(ctx context.Context, renewal *Renewal) error
	Delete(ctx context.Context, id string) error

	// GetOpenBySubscription returns the single non terminal renewal of a
	// subscription, or a not found error when none is open
	GetOpenBySubscription(ctx context.Context, subscriptionID string) (*Renewal, error)

	// ListDueForProcessing returns auto renew eligible renewals whose due
	// date has been reached
	ListDueForProcessing(ctx context.Context, asOf time.Time) ([]*Renewal, error)

	// ListReminderCandidates returns open renewals that may still need a
	// reminder on or before asOf
	ListReminderCandidates(ctx context.Context, asOf time.Time) ([]*Renewal, error)

	// ListOverdue returns open renewals whose due date has passed
	ListOverdue(ctx context.Context, asOf time.Time) ([]*Renewal, error)
}
