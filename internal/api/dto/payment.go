package dto

import (
	"context"
	"time"

	"github.com/memberbill/memberbill/internal/domain/payment"
	"github.com/memberbill/memberbill/internal/types"
	"github.com/memberbill/memberbill/internal/validator"
)

// RecordPaymentRequest is the inbound shape of a payment confirmation. The
// handler queues it on the payment topic and the consumer settles the cycle.
type RecordPaymentRequest struct {
	BillingCycleID string     `json:"billing_cycle_id" validate:"required"`
	PaymentRef     string     `json:"payment_ref" validate:"required"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
}

func (r *RecordPaymentRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// ToConfirmation stamps the request with the caller's tenant and environment.
func (r *RecordPaymentRequest) ToConfirmation(ctx context.Context) *payment.Confirmation {
	var paidAt time.Time
	if r.PaidAt != nil {
		paidAt = *r.PaidAt
	}
	return payment.NewConfirmation(
		r.BillingCycleID,
		r.PaymentRef,
		paidAt,
		types.GetTenantID(ctx),
		types.GetEnvironmentID(ctx),
	)
}

// RecordPaymentResponse acknowledges a queued confirmation.
type RecordPaymentResponse struct {
	ConfirmationID string `json:"confirmation_id"`
	BillingCycleID string `json:"billing_cycle_id"`
	Status         string `json:"status"`
}
