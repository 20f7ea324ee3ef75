package invoicing

import (
	"context"
)

// Gateway is the downstream invoicing system. Implementations must be safe
// for concurrent use. Failures should be marked transient when a retry could
// succeed, so the billing processor can schedule one.
type Gateway interface {
	// CreateInvoice raises an invoice and returns its external reference
	CreateInvoice(ctx context.Context, invoice *Invoice) (string, error)

	// CancelInvoice voids a previously raised invoice
	CancelInvoice(ctx context.Context, invoiceRef string) error
}
