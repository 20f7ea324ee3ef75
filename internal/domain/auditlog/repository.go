package auditlog

import (
	"context"

	"github.com/memberbill/memberbill/internal/types"
)

// Repository defines the interface for the append only audit trail. There is
// deliberately no update or delete.
type Repository interface {
	Insert(ctx context.Context, entry *AuditLog) error
	InsertBatch(ctx context.Context, entries []*AuditLog) error
	List(ctx context.Context, filter *types.AuditLogFilter) ([]*AuditLog, error)
	Count(ctx context.Context, filter *types.AuditLogFilter) (int, error)
}
