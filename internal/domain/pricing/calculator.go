package pricing

import (
	"context"

	"github.com/shopspring/decimal"

	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/types"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Calculator prices billing cycles. Implementations are pure aside from
// logging and safe for concurrent use.
type Calculator interface {
	Quote(ctx context.Context, params QuoteParams) (*Quote, error)
}

// NewCalculator creates the day based pricing calculator.
func NewCalculator(logger *logger.Logger) Calculator {
	return &dayBasedCalculator{logger: logger}
}

type dayBasedCalculator struct {
	logger *logger.Logger
}

func (c *dayBasedCalculator) Quote(ctx context.Context, params QuoteParams) (*Quote, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	quote := &Quote{
		ProrationFactor: one,
	}

	// Base and member pricing. BaseAmount always reflects list price so the
	// discount components tell the whole story.
	quote.BaseAmount = params.ListPricePerUnit.Mul(params.Quantity).Round(types.DEFAULT_FLOATING_PRECISION)
	if params.MemberPricing {
		savings := params.ListPricePerUnit.Sub(params.MemberPricePerUnit)
		if savings.IsNegative() {
			savings = decimal.Zero
		}
		quote.MemberSavingsPerUnit = savings
		quote.MemberDiscount = savings.Mul(params.Quantity).Round(types.DEFAULT_FLOATING_PRECISION)
	}
	memberBase := quote.BaseAmount.Sub(quote.MemberDiscount)

	// Additional discount applies to the member base, members only
	if params.MemberPricing && params.AdditionalDiscountPct.IsPositive() {
		quote.AdditionalDiscount = memberBase.
			Mul(params.AdditionalDiscountPct).
			Div(hundred).
			Round(types.DEFAULT_FLOATING_PRECISION)
	}
	fullPeriodNet := memberBase.Sub(quote.AdditionalDiscount)

	// Proration for a partial period. When the period length cannot be
	// determined the cycle is charged in full rather than failing.
	if !params.QuoteDate.IsZero() && params.QuoteDate.After(params.PeriodStart) {
		factor, err := c.prorationFactor(params)
		if err != nil {
			return nil, err
		}
		quote.ProrationFactor = factor
		quote.IsProrated = factor.LessThan(one)
		if quote.IsProrated {
			quote.ProrationAdjustment = fullPeriodNet.
				Mul(factor.Sub(one)).
				Round(types.DEFAULT_FLOATING_PRECISION)
		}
	}
	quote.NetAmount = fullPeriodNet.Add(quote.ProrationAdjustment)

	// The net can only go negative through inconsistent stored amounts.
	// Clamp to zero and hand the record to an operator instead of invoicing
	// a negative charge.
	if quote.NetAmount.IsNegative() {
		c.logger.Warnw("pricing produced negative net amount, clamping to zero",
			"subscription_id", params.SubscriptionID,
			"net_amount", quote.NetAmount,
		)
		quote.ProrationAdjustment = quote.ProrationAdjustment.Sub(quote.NetAmount)
		quote.NetAmount = decimal.Zero
		quote.RequiresManualReview = true
		quote.ReviewReasons = append(quote.ReviewReasons, "negative net amount clamped to zero")
	}

	// Setup fee is never prorated and only charged on the first cycle
	if params.FirstCycle && params.SetupFee.IsPositive() {
		quote.SetupFee = params.SetupFee.Round(types.DEFAULT_FLOATING_PRECISION)
	}

	if params.TaxRatePct.IsPositive() {
		quote.TaxAmount = quote.NetAmount.
			Add(quote.SetupFee).
			Mul(params.TaxRatePct).
			Div(hundred).
			Round(types.DEFAULT_FLOATING_PRECISION)
	}

	quote.Total = quote.NetAmount.Add(quote.SetupFee).Add(quote.TaxAmount)

	// Annualized recurring value uses the full period net, not the prorated
	// first charge
	periodsPerYear, err := params.PeriodDef.PeriodsPerYear()
	if err != nil {
		return nil, err
	}
	quote.AnnualValue = fullPeriodNet.Mul(periodsPerYear).Round(types.DEFAULT_FLOATING_PRECISION)

	// Revenue recognition split on the pre tax total
	recognizable := quote.Total.Sub(quote.TaxAmount)
	if params.RevenueRecognition == types.RevenueRecognitionDeferred {
		quote.DeferredRevenue = recognizable
	} else {
		quote.ImmediateRevenue = recognizable
	}

	return quote, nil
}

// prorationFactor computes remaining days over total days, degrading to a
// full charge when the period length is unusable.
func (c *dayBasedCalculator) prorationFactor(params QuoteParams) (decimal.Decimal, error) {
	totalDays, err := params.PeriodDef.TotalDays(params.PeriodStart)
	if err != nil || totalDays <= 0 {
		c.logger.Warnw("could not determine billing period length, charging full period",
			"subscription_id", params.SubscriptionID,
			"period_start", params.PeriodStart,
			"total_days", totalDays,
			"error", err,
		)
		return one, nil
	}

	next, err := params.PeriodDef.NextOccurrence(params.PeriodStart)
	if err != nil {
		return one, nil
	}

	remaining := types.DaysBetween(params.QuoteDate, next)
	if remaining < 0 {
		remaining = 0
	}
	if remaining > totalDays {
		remaining = totalDays
	}

	factor := decimal.NewFromInt(int64(remaining)).Div(decimal.NewFromInt(int64(totalDays)))
	if factor.IsNegative() || factor.GreaterThan(one) {
		return decimal.Zero, ierr.NewError("proration factor out of range").
			WithHint("Proration factor must be between 0 and 1").
			WithReportableDetails(map[string]any{
				"factor":         factor,
				"remaining_days": remaining,
				"total_days":     totalDays,
			}).
			Mark(ierr.ErrValidation)
	}
	return factor, nil
}

func validateParams(params QuoteParams) error {
	if !params.Quantity.IsPositive() {
		return ierr.NewError("quantity must be positive").
			WithHint("Pricing quantity must be greater than zero").
			WithReportableDetails(map[string]any{
				"quantity": params.Quantity,
			}).
			Mark(ierr.ErrValidation)
	}
	if params.ListPricePerUnit.IsNegative() || params.MemberPricePerUnit.IsNegative() {
		return ierr.NewError("prices must not be negative").
			WithHint("List and member prices must not be negative").
			WithReportableDetails(map[string]any{
				"list_price":   params.ListPricePerUnit,
				"member_price": params.MemberPricePerUnit,
			}).
			Mark(ierr.ErrValidation)
	}
	if params.SetupFee.IsNegative() {
		return ierr.NewError("setup fee must not be negative").
			WithHint("Setup fee must not be negative").
			Mark(ierr.ErrValidation)
	}
	if params.TaxRatePct.IsNegative() {
		return ierr.NewError("tax rate must not be negative").
			WithHint("Tax rate must not be negative").
			Mark(ierr.ErrValidation)
	}
	if params.AdditionalDiscountPct.IsNegative() || params.AdditionalDiscountPct.GreaterThan(hundred) {
		return ierr.NewError("additional discount out of range").
			WithHint("Additional discount must be between 0 and 100 percent").
			WithReportableDetails(map[string]any{
				"additional_discount_pct": params.AdditionalDiscountPct,
			}).
			Mark(ierr.ErrValidation)
	}
	if err := params.PeriodDef.Validate(); err != nil {
		return err
	}
	if params.PeriodEnd.Before(params.PeriodStart) {
		return ierr.NewError("period end before period start").
			WithHint("Pricing period end must not precede its start").
			WithReportableDetails(map[string]any{
				"period_start": params.PeriodStart,
				"period_end":   params.PeriodEnd,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
