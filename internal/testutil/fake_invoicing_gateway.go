package testutil

import (
	"context"
	"sync"

	"github.com/memberbill/memberbill/internal/domain/invoicing"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/types"
)

// FakeInvoicingGateway implements invoicing.Gateway against process memory.
// Tests flip the failure knobs to drive the retry paths of the billing
// processor.
type FakeInvoicingGateway struct {
	mu        sync.Mutex
	invoices  map[string]*invoicing.Invoice
	cancelled map[string]bool

	// FailNext makes the next CreateInvoice calls fail; each failure
	// decrements the counter
	failNext int

	// failTransient picks the error class of injected failures
	failTransient bool
}

// NewFakeInvoicingGateway creates a new fake invoicing gateway
func NewFakeInvoicingGateway() *FakeInvoicingGateway {
	return &FakeInvoicingGateway{
		invoices:  make(map[string]*invoicing.Invoice),
		cancelled: make(map[string]bool),
	}
}

// FailNext arms the gateway to fail the next n CreateInvoice calls. When
// transient is true the failures are marked retriable.
func (g *FakeInvoicingGateway) FailNext(n int, transient bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext = n
	g.failTransient = transient
}

// CreateInvoice records the invoice and returns a fresh reference
func (g *FakeInvoicingGateway) CreateInvoice(ctx context.Context, invoice *invoicing.Invoice) (string, error) {
	if err := invoice.Validate(); err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failNext > 0 {
		g.failNext--
		if g.failTransient {
			return "", ierr.NewError("invoicing gateway unavailable").
				WithHint("The invoicing system did not respond").
				Mark(ierr.ErrTransient)
		}
		return "", ierr.NewError("invoice rejected").
			WithHint("The invoicing system rejected the invoice").
			Mark(ierr.ErrValidation)
	}

	ref := types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE)
	g.invoices[ref] = invoice
	return ref, nil
}

// CancelInvoice voids a previously raised invoice
func (g *FakeInvoicingGateway) CancelInvoice(ctx context.Context, invoiceRef string) error {
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

// Invoice returns the recorded invoice for a reference. Test helper.
func (g *FakeInvoicingGateway) Invoice(ref string) (*invoicing.Invoice, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	inv, ok := g.invoices[ref]
	return inv, ok
}

// InvoiceCount returns how many invoices were raised. Test helper.
func (g *FakeInvoicingGateway) InvoiceCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.invoices)
}

// Cancelled reports whether the invoice was voided. Test helper.
func (g *FakeInvoicingGateway) Cancelled(ref string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cancelled[ref]
}

// Clear resets the gateway state
func (g *FakeInvoicingGateway) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.invoices = make(map[string]*invoicing.Invoice)
	g.cancelled = make(map[string]bool)
	g.failNext = 0
}
