package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/memberbill/memberbill/internal/api/dto"
	"github.com/memberbill/memberbill/internal/domain/pricing"
	"github.com/memberbill/memberbill/internal/domain/product"
	"github.com/memberbill/memberbill/internal/domain/subscription"
	"github.com/memberbill/memberbill/internal/types"
)

// PricingService prices billing periods. It wraps the pricing calculator
// with the repository lookups that assemble its inputs.
type PricingService interface {
	CalculatePricing(ctx context.Context, req *dto.CalculatePricingRequest) (*dto.PricingResponse, error)
	CalculateSubscriptionPricing(ctx context.Context, req *dto.CalculateSubscriptionPricingRequest) (*dto.PricingResponse, error)

	// QuoteSubscriptionPeriod prices one service period of a subscription.
	// Used by the billing cycle and renewal services, which already hold the
	// subscription record.
	QuoteSubscriptionPeriod(ctx context.Context, sub *subscription.Subscription, periodStart, periodEnd, quoteDate time.Time, firstCycle bool) (*pricing.Quote, error)
}

type pricingService struct {
	ServiceParams
}

// NewPricingService creates a new pricing service
func NewPricingService(params ServiceParams) PricingService {
	return &pricingService{
		ServiceParams: params,
	}
}

// CalculatePricing prices one period of a product for a subscriber, without
// requiring a subscription
func (s *pricingService) CalculatePricing(ctx context.Context, req *dto.CalculatePricingRequest) (*dto.PricingResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sub, err := s.SubscriberRepo.Get(ctx, req.SubscriberID)
	if err != nil {
		return nil, err
	}

	prod, err := s.ProductRepo.Get(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	quoteDate := time.Now().UTC()
	if req.QuoteDate != nil {
		quoteDate = *req.QuoteDate
	}

	periodStart := types.BeginningOfDay(quoteDate)
	if req.PeriodStart != nil {
		periodStart = types.BeginningOfDay(*req.PeriodStart)
	}

	periodDef := prod.PeriodDefinition()
	periodEnd, err := periodDef.PeriodEnd(periodStart)
	if err != nil {
		return nil, err
	}

	quantity := req.Quantity
	if quantity.IsZero() {
		quantity = decimal.NewFromInt(1)
	}

	memberPricing := sub.QualifiesForMemberPricing()
	quote, err := s.PricingCalculator.Quote(ctx, pricing.QuoteParams{
		Quantity:              quantity,
		Currency:              prod.Currency,
		PeriodStart:           periodStart,
		PeriodEnd:             periodEnd,
		QuoteDate:             quoteDate,
		FirstCycle:            req.FirstCycle,
		ListPricePerUnit:      prod.ListPrice,
		MemberPricePerUnit:    prod.MemberPrice,
		SetupFee:              prod.SetupFee,
		TaxRatePct:            prod.TaxRatePct,
		RevenueRecognition:    prod.RevenueRecognition,
		PeriodDef:             periodDef,
		MemberPricing:         memberPricing,
		AdditionalDiscountPct: prod.AdditionalMemberDiscountPct,
	})
	if err != nil {
		return nil, err
	}

	return &dto.PricingResponse{
		Quote:         quote,
		SubscriberID:  sub.ID,
		ProductID:     prod.ID,
		Quantity:      quantity,
		Currency:      prod.Currency,
		DisplayTotal:  types.FormatAmount(quote.Total, prod.Currency),
		MemberPricing: memberPricing,
		PeriodStart:   periodStart,
		PeriodEnd:     periodEnd,
	}, nil
}

// CalculateSubscriptionPricing prices the current period of a subscription
func (s *pricingService) CalculateSubscriptionPricing(ctx context.Context, req *dto.CalculateSubscriptionPricingRequest) (*dto.PricingResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sub, err := s.SubRepo.Get(ctx, req.SubscriptionID)
	if err != nil {
		return nil, err
	}

	subscriberRecord, err := s.SubscriberRepo.Get(ctx, sub.SubscriberID)
	if err != nil {
		return nil, err
	}

	quoteDate := time.Now().UTC()
	if req.QuoteDate != nil {
		quoteDate = *req.QuoteDate
	}

	periodStart := sub.CurrentPeriodStart
	if periodStart.IsZero() {
		periodStart = types.BeginningOfDay(sub.StartDate)
	}

	periodEnd, err := sub.PeriodDefinition().PeriodEnd(periodStart)
	if err != nil {
		return nil, err
	}

	quote, err := s.QuoteSubscriptionPeriod(ctx, sub, periodStart, periodEnd, quoteDate, req.FirstCycle)
	if err != nil {
		return nil, err
	}

	return &dto.PricingResponse{
		Quote:          quote,
		SubscriberID:   sub.SubscriberID,
		ProductID:      sub.ProductID,
		SubscriptionID: sub.ID,
		Quantity:       sub.Quantity,
		Currency:       sub.Currency,
		DisplayTotal:   types.FormatAmount(quote.Total, sub.Currency),
		MemberPricing:  subscriberRecord.QualifiesForMemberPricing(),
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
	}, nil
}

// QuoteSubscriptionPeriod implements the shared pricing path for billing
// cycles and renewals
func (s *pricingService) QuoteSubscriptionPeriod(ctx context.Context, sub *subscription.Subscription, periodStart, periodEnd, quoteDate time.Time, firstCycle bool) (*pricing.Quote, error) {
	prod, err := s.ProductRepo.Get(ctx, sub.ProductID)
	if err != nil {
		return nil, err
	}

	subscriberRecord, err := s.SubscriberRepo.Get(ctx, sub.SubscriberID)
	if err != nil {
		return nil, err
	}

	return s.PricingCalculator.Quote(ctx, pricing.QuoteParams{
		SubscriptionID:        sub.ID,
		Quantity:              sub.Quantity,
		Currency:              effectiveCurrency(sub, prod),
		PeriodStart:           periodStart,
		PeriodEnd:             periodEnd,
		QuoteDate:             quoteDate,
		FirstCycle:            firstCycle,
		ListPricePerUnit:      prod.ListPrice,
		MemberPricePerUnit:    prod.MemberPrice,
		SetupFee:              prod.SetupFee,
		TaxRatePct:            prod.TaxRatePct,
		RevenueRecognition:    prod.RevenueRecognition,
		PeriodDef:             sub.PeriodDefinition(),
		MemberPricing:         subscriberRecord.QualifiesForMemberPricing(),
		AdditionalDiscountPct: effectiveAdditionalDiscountPct(sub, prod),
	})
}

// effectiveCurrency resolves the billing currency: the subscription's when
// set, else the product's
func effectiveCurrency(sub *subscription.Subscription, prod *product.Product) string {
	if sub.Currency != "" {
		return sub.Currency
	}
	return prod.Currency
}

// effectiveAdditionalDiscountPct resolves the extra member discount: a
// positive subscription override wins over the product default
func effectiveAdditionalDiscountPct(sub *subscription.Subscription, prod *product.Product) decimal.Decimal {
	if sub.AdditionalDiscountPct.IsPositive() {
		return sub.AdditionalDiscountPct
	}
	return prod.AdditionalMemberDiscountPct
}
