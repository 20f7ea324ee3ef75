package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/memberbill/memberbill/internal/domain/pricing"
	"github.com/memberbill/memberbill/internal/validator"
)

type CalculatePricingRequest struct {
	SubscriberID string          `json:"subscriber_id" validate:"required"`
	ProductID    string          `json:"product_id" validate:"required"`
	Quantity     decimal.Decimal `json:"quantity"`
	PeriodStart  *time.Time      `json:"period_start,omitempty"`
	QuoteDate    *time.Time      `json:"quote_date,omitempty"`
	FirstCycle   bool            `json:"first_cycle"`
}

type CalculateSubscriptionPricingRequest struct {
	SubscriptionID string     `json:"subscription_id" validate:"required"`
	QuoteDate      *time.Time `json:"quote_date,omitempty"`
	FirstCycle     bool       `json:"first_cycle"`
}

// PricingResponse is a priced quote together with the context it was
// computed for
type PricingResponse struct {
	*pricing.Quote
	SubscriberID   string          `json:"subscriber_id,omitempty"`
	ProductID      string          `json:"product_id,omitempty"`
	SubscriptionID string          `json:"subscription_id,omitempty"`
	Quantity       decimal.Decimal `json:"quantity"`
	Currency       string          `json:"currency"`
	DisplayTotal   string          `json:"display_total"`
	MemberPricing  bool            `json:"member_pricing"`
	PeriodStart    time.Time       `json:"period_start"`
	PeriodEnd      time.Time       `json:"period_end"`
}

func (r *CalculatePricingRequest) Validate() error {
	return validator.ValidateRequest(r)
}

func (r *CalculateSubscriptionPricingRequest) Validate() error {
	return validator.ValidateRequest(r)
}
