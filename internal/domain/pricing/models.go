package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/memberbill/memberbill/internal/types"
)

// QuoteParams holds all necessary input for pricing one billing cycle.
type QuoteParams struct {
	// Subscription context
	SubscriptionID string
	Quantity       decimal.Decimal
	Currency       string
	PeriodStart    time.Time // start of the service period
	PeriodEnd      time.Time // inclusive end of the service period
	QuoteDate      time.Time // proration reference; zero means full period
	FirstCycle     bool      // setup fee applies only to the first cycle

	// Product pricing
	ListPricePerUnit   decimal.Decimal
	MemberPricePerUnit decimal.Decimal
	SetupFee           decimal.Decimal
	TaxRatePct         decimal.Decimal
	RevenueRecognition types.RevenueRecognition
	PeriodDef          types.BillingPeriodDefinition

	// Subscriber context
	MemberPricing         bool            // subscriber qualifies for member rates
	AdditionalDiscountPct decimal.Decimal // extra percent off the member base
}

// Quote holds the output of a pricing run. Components always satisfy
// Total = BaseAmount - MemberDiscount - AdditionalDiscount
//         + ProrationAdjustment + SetupFee + TaxAmount.
type Quote struct {
	// BaseAmount is list price times quantity before any discount
	BaseAmount decimal.Decimal `json:"base_amount"`

	// MemberSavingsPerUnit is list minus member price, zero for non members
	MemberSavingsPerUnit decimal.Decimal `json:"member_savings_per_unit"`

	// MemberDiscount is the total member savings applied
	MemberDiscount decimal.Decimal `json:"member_discount"`

	// AdditionalDiscount is the extra percentage discount on the member base
	AdditionalDiscount decimal.Decimal `json:"additional_discount"`

	// ProrationFactor is remaining period days over total period days
	ProrationFactor decimal.Decimal `json:"proration_factor"`

	// ProrationAdjustment is the signed reduction for a partial period
	ProrationAdjustment decimal.Decimal `json:"proration_adjustment"`

	// IsProrated is set when the factor is below one
	IsProrated bool `json:"is_prorated"`

	// NetAmount is the recurring charge after discounts and proration
	NetAmount decimal.Decimal `json:"net_amount"`

	// SetupFee is the one time fee included in this quote
	SetupFee decimal.Decimal `json:"setup_fee"`

	// TaxAmount is the tax on net amount plus setup fee
	TaxAmount decimal.Decimal `json:"tax_amount"`

	// Total is the grand total due
	Total decimal.Decimal `json:"total"`

	// AnnualValue is the full period net normalized to a 365.25 day year
	AnnualValue decimal.Decimal `json:"annual_value"`

	// ImmediateRevenue and DeferredRevenue split total minus tax by the
	// revenue recognition policy
	ImmediateRevenue decimal.Decimal `json:"immediate_revenue"`
	DeferredRevenue  decimal.Decimal `json:"deferred_revenue"`

	// RequiresManualReview flags anomalies an operator should check
	RequiresManualReview bool `json:"requires_manual_review"`

	// ReviewReasons lists why manual review was requested
	ReviewReasons []string `json:"review_reasons,omitempty"`
}
