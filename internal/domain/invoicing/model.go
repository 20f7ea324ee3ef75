package invoicing

import (
	"time"

	"github.com/shopspring/decimal"

	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/types"
)

// Invoice is the document handed to the invoicing gateway. The billing
// engine never owns invoices; it only keeps the returned reference.
type Invoice struct {
	// SubscriberID identifies the billable party
	SubscriberID string `json:"subscriber_id"`

	// SubscriptionID identifies the subscription being charged
	SubscriptionID string `json:"subscription_id"`

	// BillingCycleID identifies the cycle the invoice settles
	BillingCycleID string `json:"billing_cycle_id"`

	// Currency is the three letter ISO currency code in lowercase
	Currency string `json:"currency"`

	// DueDate is the payment due date
	DueDate time.Time `json:"due_date"`

	// Lines are the invoice positions
	Lines []InvoiceLine `json:"lines"`

	// Metadata
	Metadata types.Metadata `json:"metadata,omitempty"`
}

// InvoiceLine is one position on an invoice
type InvoiceLine struct {
	// Kind labels the purpose of the line
	Kind types.InvoiceLineKind `json:"kind"`

	// Description is the human readable line text
	Description string `json:"description"`

	// Quantity and UnitAmount multiply to the line amount
	Quantity   decimal.Decimal `json:"quantity"`
	UnitAmount decimal.Decimal `json:"unit_amount"`

	// Amount is the line total
	Amount decimal.Decimal `json:"amount"`
}

// Total sums all line amounts
func (i *Invoice) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range i.Lines {
		total = total.Add(line.Amount)
	}
	return total
}

// Validate checks the invoice before handing it to the gateway
func (i *Invoice) Validate() error {
	if i.SubscriberID == "" {
		return ierr.NewError("subscriber id is required").
			WithHint("Invoice must reference a subscriber").
			Mark(ierr.ErrValidation)
	}
	if len(i.Lines) == 0 {
		return ierr.NewError("invoice has no lines").
			WithHint("Invoice must carry at least one line").
			Mark(ierr.ErrValidation)
	}
	for _, line := range i.Lines {
		if line.Amount.IsNegative() {
			return ierr.NewError("negative invoice line").
				WithHint("Invoice line amounts must not be negative").
				WithReportableDetails(map[string]any{
					"description": line.Description,
					"amount":      line.Amount,
				}).
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}
