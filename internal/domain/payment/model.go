package payment

import (
	"time"

	"github.com/memberbill/memberbill/internal/types"
	"github.com/memberbill/memberbill/internal/validator"
)

// Confirmation is the message the upstream payment gateway emits once a
// billed amount settles. It is queued on the payment topic and applied
// asynchronously by the consumer, which marks the billing cycle paid.
type Confirmation struct {
	// Unique identifier for the confirmation
	ID string `json:"id" validate:"required"`

	// Tenant identifier
	TenantID string `json:"tenant_id" validate:"required"`

	// Environment identifier
	EnvironmentID string `json:"environment_id"`

	// BillingCycleID is the billed cycle this payment settles
	BillingCycleID string `json:"billing_cycle_id" validate:"required"`

	// PaymentRef is the gateway's reference for the settled transaction
	PaymentRef string `json:"payment_ref" validate:"required"`

	// PaidAt is when the payment settled at the gateway
	PaidAt time.Time `json:"paid_at" validate:"required"`
}

// NewConfirmation builds a confirmation for the given cycle. A zero paidAt
// defaults to now; timestamps are normalized to UTC.
func NewConfirmation(
	billingCycleID, paymentRef string,
	paidAt time.Time,
	tenantID, environmentID string,
) *Confirmation {
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	} else {
		paidAt = paidAt.UTC()
	}

	return &Confirmation{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
		TenantID:       tenantID,
		EnvironmentID:  environmentID,
		BillingCycleID: billingCycleID,
		PaymentRef:     paymentRef,
		PaidAt:         paidAt,
	}
}

func (c *Confirmation) Validate() error {
	return validator.ValidateRequest(c)
}
