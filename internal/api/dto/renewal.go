package dto

import (
	"context"
	"time"

	"github.com/memberbill/memberbill/internal/domain/renewal"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/types"
	"github.com/memberbill/memberbill/internal/validator"
)

type CreateRenewalRequest struct {
	SubscriptionID   string         `json:"subscription_id" validate:"required"`
	CurrentPeriodEnd time.Time      `json:"current_period_end" validate:"required"`
	DueDate          *time.Time     `json:"due_date,omitempty"`
	Metadata         types.Metadata `json:"metadata,omitempty"`
}

type ProcessRenewalRequest struct {
	Method types.RenewalProcessMethod `json:"method"`
}

type CancelRenewalRequest struct {
	Reason string `json:"reason"`
}

type RenewalResponse struct {
	*renewal.Renewal
	DaysUntilDue int                   `json:"days_until_due"`
	IsOverdue    bool                  `json:"is_overdue"`
	Subscription *SubscriptionResponse `json:"subscription,omitempty"`
}

// ListRenewalsResponse represents the response for listing renewals
type ListRenewalsResponse = types.ListResponse[*RenewalResponse]

// RenewalProcessingItem is the outcome of processing one renewal inside a
// sweep or batch run
type RenewalProcessingItem struct {
	RenewalID      string `json:"renewal_id"`
	ShortID        string `json:"short_id,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	Success        bool   `json:"success"`
	Error          string `json:"error,omitempty"`
}

// AutomaticRenewalRunResponse summarizes one process-automatic-renewals sweep
type AutomaticRenewalRunResponse struct {
	Processed int                      `json:"processed"`
	Succeeded int                      `json:"succeeded"`
	Failed    int                      `json:"failed"`
	Items     []*RenewalProcessingItem `json:"items,omitempty"`
}

// ReminderSweepResponse summarizes one send-scheduled-reminders sweep
type ReminderSweepResponse struct {
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// OverdueSweepResponse summarizes one update-overdue-renewals sweep
type OverdueSweepResponse struct {
	MovedToGrace int `json:"moved_to_grace"`
	Expired      int `json:"expired"`
	Unchanged    int `json:"unchanged"`
}

func (r *CreateRenewalRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.DueDate != nil && r.DueDate.Before(types.BeginningOfDay(r.CurrentPeriodEnd)) {
		return ierr.NewError("due date before current period end").
			WithHint("Renewal cannot fall due before the period it closes").
			WithReportableDetails(map[string]any{
				"due_date":           r.DueDate,
				"current_period_end": r.CurrentPeriodEnd,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ToRenewal builds the renewal shell. The service derives due date, grace
// window, pricing and the reminder schedule before persisting.
func (r *CreateRenewalRequest) ToRenewal(ctx context.Context) *renewal.Renewal {
	dueDate := types.BeginningOfDay(r.CurrentPeriodEnd).AddDate(0, 0, 1)
	if r.DueDate != nil {
		dueDate = types.BeginningOfDay(*r.DueDate)
	}
	return &renewal.Renewal{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_RENEWAL),
		ShortID:          types.GenerateShortIDWithPrefix(types.SHORT_ID_PREFIX_RENEWAL),
		SubscriptionID:   r.SubscriptionID,
		State:            types.RenewalStatePending,
		CurrentPeriodEnd: types.BeginningOfDay(r.CurrentPeriodEnd),
		DueDate:          dueDate,
		Metadata:         r.Metadata,
		EnvironmentID:    types.GetEnvironmentID(ctx),
		BaseModel:        types.GetDefaultBaseModel(ctx),
	}
}

func (r *ProcessRenewalRequest) Validate() error {
	if r.Method != "" {
		return r.Method.Validate()
	}
	return nil
}

func (r *RenewalResponse) WithSubscription(sub *SubscriptionResponse) *RenewalResponse {
	r.Subscription = sub
	return r
}
