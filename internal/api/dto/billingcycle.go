package dto

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/memberbill/memberbill/internal/domain/billingcycle"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/types"
	"github.com/memberbill/memberbill/internal/validator"
)

type CreateBillingCycleRequest struct {
	SubscriptionID string            `json:"subscription_id" validate:"required"`
	BillingType    types.BillingType `json:"billing_type" validate:"required"`
	BillingDate    time.Time         `json:"billing_date" validate:"required"`
	PeriodStart    time.Time         `json:"period_start" validate:"required"`
	PeriodEnd      time.Time         `json:"period_end" validate:"required"`
	Quantity       *decimal.Decimal  `json:"quantity,omitempty"`
	Metadata       types.Metadata    `json:"metadata,omitempty"`
}

type MarkBillingCyclePaidRequest struct {
	PaymentRef string     `json:"payment_ref" validate:"required"`
	PaidAt     *time.Time `json:"paid_at,omitempty"`
}

type CancelBillingCycleRequest struct {
	Reason string `json:"reason"`
}

type BillingCycleResponse struct {
	*billingcycle.BillingCycle
	Subscription *SubscriptionResponse `json:"subscription,omitempty"`
}

// ListBillingCyclesResponse represents the response for listing billing cycles
type ListBillingCyclesResponse = types.ListResponse[*BillingCycleResponse]

// BillingCycleProcessingItem is the outcome of processing one cycle inside a
// sweep or batch run
type BillingCycleProcessingItem struct {
	BillingCycleID string `json:"billing_cycle_id"`
	ShortID        string `json:"short_id,omitempty"`
	Success        bool   `json:"success"`
	Retried        bool   `json:"retried,omitempty"`
	Error          string `json:"error,omitempty"`
}

// ScheduledBillingRunResponse summarizes one process-scheduled-billings sweep
type ScheduledBillingRunResponse struct {
	Processed int                           `json:"processed"`
	Succeeded int                           `json:"succeeded"`
	Failed    int                           `json:"failed"`
	Retried   int                           `json:"retried"`
	Items     []*BillingCycleProcessingItem `json:"items,omitempty"`
}

// AmortizationScheduleResponse is the monthly recognition plan for a cycle
// with deferred revenue
type AmortizationScheduleResponse struct {
	BillingCycleID  string                              `json:"billing_cycle_id"`
	DeferredRevenue decimal.Decimal                     `json:"deferred_revenue"`
	Entries         []billingcycle.RevenueScheduleEntry `json:"entries"`
}

func (r *CreateBillingCycleRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := r.BillingType.Validate(); err != nil {
		return err
	}
	if r.PeriodEnd.Before(r.PeriodStart) {
		return ierr.NewError("period end before period start").
			WithHint("Billing cycle period end must not precede its start").
			WithReportableDetails(map[string]any{
				"period_start": r.PeriodStart,
				"period_end":   r.PeriodEnd,
			}).
			Mark(ierr.ErrValidation)
	}
	if r.Quantity != nil && !r.Quantity.IsPositive() {
		return ierr.NewError("quantity must be positive").
			WithHint("Billing cycle quantity must be greater than zero").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ToBillingCycle builds the cycle shell in draft. The service prices it and
// schedules it before it becomes billable.
func (r *CreateBillingCycleRequest) ToBillingCycle(ctx context.Context) *billingcycle.BillingCycle {
	return &billingcycle.BillingCycle{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BILLING_CYCLE),
		ShortID:        types.GenerateShortIDWithPrefix(types.SHORT_ID_PREFIX_BILLING_CYCLE),
		SubscriptionID: r.SubscriptionID,
		BillingType:    r.BillingType,
		State:          types.BillingCycleStateDraft,
		BillingDate:    types.BeginningOfDay(r.BillingDate),
		PeriodStart:    types.BeginningOfDay(r.PeriodStart),
		PeriodEnd:      types.BeginningOfDay(r.PeriodEnd),
		Metadata:       r.Metadata,
		EnvironmentID:  types.GetEnvironmentID(ctx),
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}
}

func (r *MarkBillingCyclePaidRequest) Validate() error {
	return validator.ValidateRequest(r)
}

func (r *BillingCycleResponse) WithSubscription(sub *SubscriptionResponse) *BillingCycleResponse {
	r.Subscription = sub
	return r
}
