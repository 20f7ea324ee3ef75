package types

import (
	"github.com/samber/lo"

	ierr "github.com/memberbill/memberbill/internal/errors"
)

// InvoiceStatus is the state of an invoice raised through the invoicing
// gateway. Billing cycles only ever hold a reference to the invoice.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusPosted    InvoiceStatus = "posted"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

func (s InvoiceStatus) String() string {
	return string(s)
}

func (s InvoiceStatus) Validate() error {
	allowed := []InvoiceStatus{
		InvoiceStatusDraft,
		InvoiceStatusPosted,
		InvoiceStatusPaid,
		InvoiceStatusCancelled,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid invoice status").
			WithHint("Invalid invoice status").
			WithReportableDetails(map[string]any{
				"status": s,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// InvoiceLineKind labels the purpose of a generated invoice line
type InvoiceLineKind string

const (
	InvoiceLineKindSubscription InvoiceLineKind = "subscription"
	InvoiceLineKindSetupFee     InvoiceLineKind = "setup_fee"
)

func (k InvoiceLineKind) String() string {
	return string(k)
}
