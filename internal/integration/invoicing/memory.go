package invoicing

import (
	"context"
	"sync"

	domaininvoicing "github.com/memberbill/memberbill/internal/domain/invoicing"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/types"
)

// MemoryGateway raises invoices in process memory. Local development runs on
// it; nothing survives a restart.
type MemoryGateway struct {
	log *logger.Logger

	mu        sync.Mutex
	invoices  map[string]*domaininvoicing.Invoice
	cancelled map[string]bool
}

func NewMemoryGateway(log *logger.Logger) *MemoryGateway {
	return &MemoryGateway{
		log:       log,
		invoices:  make(map[string]*domaininvoicing.Invoice),
		cancelled: make(map[string]bool),
	}
}

// CreateInvoice records the invoice and returns a fresh reference
func (g *MemoryGateway) CreateInvoice(ctx context.Context, invoice *domaininvoicing.Invoice) (string, error) {
	if err := invoice.Validate(); err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	ref := types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE)
	g.invoices[ref] = invoice

	g.log.Debugw("raised in memory invoice",
		"invoice_ref", ref,
		"billing_cycle_id", invoice.BillingCycleID,
		"total", invoice.Total())
	return ref, nil
}

// CancelInvoice voids a previously raised invoice
func (g *MemoryGateway) CancelInvoice(ctx context.Context, invoiceRef string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.invoices[invoiceRef]; !ok {
		return ierr.NewError("invoice not found").
			WithHint("Invoice not found").
			WithReportableDetails(map[string]any{
				"invoice_ref": invoiceRef,
			}).
			Mark(ierr.ErrNotFound)
	}

	g.cancelled[invoiceRef] = true
	return nil
}
