package dto

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/memberbill/memberbill/internal/domain/subscription"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/types"
	"github.com/memberbill/memberbill/internal/validator"
)

type CreateSubscriptionRequest struct {
	SubscriberID       string              `json:"subscriber_id" validate:"required"`
	ProductID          string              `json:"product_id" validate:"required"`
	Quantity           decimal.Decimal     `json:"quantity"`
	Currency           string              `json:"currency" validate:"omitempty,len=3"`
	StartDate          time.Time           `json:"start_date,omitempty"`
	BillingPeriod      types.BillingPeriod `json:"billing_period,omitempty"`
	BillingPeriodCount int                 `json:"billing_period_count,omitempty"`
	// BillingAnchor pins the period grid. When it precedes the start date
	// the first period runs from the anchor and the initial cycle is
	// prorated for the remaining days. Defaults to the start date.
	BillingAnchor         *time.Time      `json:"billing_anchor,omitempty"`
	AutoRenew             *bool           `json:"auto_renew,omitempty"`
	AdditionalDiscountPct decimal.Decimal `json:"additional_discount_pct"`
	ReminderSchedule      string          `json:"reminder_schedule"`
	GracePeriodDays       *int            `json:"grace_period_days,omitempty"`
	Metadata              types.Metadata  `json:"metadata,omitempty"`
}

type TerminateSubscriptionRequest struct {
	Reason string `json:"reason"`
}

type SubscriptionResponse struct {
	*subscription.Subscription
	Subscriber *SubscriberResponse `json:"subscriber,omitempty"`
	Product    *ProductResponse    `json:"product,omitempty"`
}

// ListSubscriptionsResponse represents the response for listing subscriptions
type ListSubscriptionsResponse = types.ListResponse[*SubscriptionResponse]

func (r *CreateSubscriptionRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.ReminderSchedule != "" {
		if _, err := types.ParseReminderSchedule(r.ReminderSchedule); err != nil {
			return err
		}
	}
	if r.BillingAnchor != nil && !r.StartDate.IsZero() && r.BillingAnchor.After(r.StartDate) {
		return ierr.NewError("billing anchor after start date").
			WithHint("The billing anchor must not be after the start date").
			WithReportableDetails(map[string]any{
				"billing_anchor": r.BillingAnchor,
				"start_date":     r.StartDate,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ToSubscription builds the subscription shell. The service fills pricing,
// period bounds and dates from the product before persisting.
func (r *CreateSubscriptionRequest) ToSubscription(ctx context.Context) *subscription.Subscription {
	quantity := r.Quantity
	if quantity.IsZero() {
		quantity = decimal.NewFromInt(1)
	}
	startDate := r.StartDate
	if startDate.IsZero() {
		startDate = time.Now().UTC()
	}
	anchor := startDate
	if r.BillingAnchor != nil {
		anchor = *r.BillingAnchor
	}
	return &subscription.Subscription{
		ID:                    types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		SubscriberID:          r.SubscriberID,
		ProductID:             r.ProductID,
		State:                 types.SubscriptionStateActive,
		Quantity:              quantity,
		Currency:              strings.ToLower(r.Currency),
		BillingPeriod:         r.BillingPeriod,
		BillingPeriodCount:    r.BillingPeriodCount,
		StartDate:             types.BeginningOfDay(startDate),
		CurrentPeriodStart:    types.BeginningOfDay(anchor),
		AdditionalDiscountPct: r.AdditionalDiscountPct,
		ReminderSchedule:      r.ReminderSchedule,
		GracePeriodDays:       r.GracePeriodDays,
		Metadata:              r.Metadata,
		EnvironmentID:         types.GetEnvironmentID(ctx),
		BaseModel:             types.GetDefaultBaseModel(ctx),
	}
}

func (r *SubscriptionResponse) WithSubscriber(sub *SubscriberResponse) *SubscriptionResponse {
	r.Subscriber = sub
	return r
}

func (r *SubscriptionResponse) WithProduct(p *ProductResponse) *SubscriptionResponse {
	r.Product = p
	return r
}
