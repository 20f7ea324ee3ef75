package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/memberbill/memberbill/internal/config"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCalculator(t *testing.T) Calculator {
	log, err := logger.NewLogger(config.GetDefaultConfig())
	require.NoError(t, err)
	return NewCalculator(log)
}

func annualParams() QuoteParams {
	return QuoteParams{
		SubscriptionID:     "subs_test",
		Quantity:           decimal.NewFromInt(1),
		Currency:           "usd",
		PeriodStart:        time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:          time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		ListPricePerUnit:   decimal.NewFromInt(100),
		MemberPricePerUnit: decimal.NewFromInt(80),
		RevenueRecognition: types.RevenueRecognitionImmediate,
		PeriodDef: types.BillingPeriodDefinition{
			Period: types.BILLING_PERIOD_ANNUAL,
			Count:  1,
		},
	}
}

func TestCalculator_MemberPricing(t *testing.T) {
	calc := newTestCalculator(t)
	ctx := context.Background()

	t.Run("member with additional discount over a full period", func(t *testing.T) {
		params := annualParams()
		params.MemberPricing = true
		params.AdditionalDiscountPct = decimal.NewFromInt(10)

		quote, err := calc.Quote(ctx, params)
		require.NoError(t, err)

		// 100 list - 20 member savings = 80, minus 10% = 72
		assert.True(t, quote.BaseAmount.Equal(decimal.NewFromInt(100)), "base %s", quote.BaseAmount)
		assert.True(t, quote.MemberDiscount.Equal(decimal.NewFromInt(20)), "member discount %s", quote.MemberDiscount)
		assert.True(t, quote.AdditionalDiscount.Equal(decimal.NewFromInt(8)), "additional discount %s", quote.AdditionalDiscount)
		assert.True(t, quote.NetAmount.Equal(decimal.NewFromInt(72)), "net %s", quote.NetAmount)
		assert.True(t, quote.Total.Equal(decimal.NewFromInt(72)), "total %s", quote.Total)
		assert.True(t, quote.ProrationFactor.Equal(decimal.NewFromInt(1)))
		assert.False(t, quote.IsProrated)
		assert.True(t, quote.ImmediateRevenue.Equal(decimal.NewFromInt(72)))
		assert.True(t, quote.DeferredRevenue.IsZero())
	})

	t.Run("non member never receives a discount", func(t *testing.T) {
		params := annualParams()
		params.MemberPricing = false
		params.AdditionalDiscountPct = decimal.NewFromInt(10)

		quote, err := calc.Quote(ctx, params)
		require.NoError(t, err)

		assert.True(t, quote.MemberDiscount.IsZero(), "member discount %s", quote.MemberDiscount)
		assert.True(t, quote.AdditionalDiscount.IsZero(), "additional discount %s", quote.AdditionalDiscount)
		assert.True(t, quote.Total.Equal(decimal.NewFromInt(100)), "total %s", quote.Total)
	})

	t.Run("member price above list price yields zero savings", func(t *testing.T) {
		params := annualParams()
		params.MemberPricing = true
		params.MemberPricePerUnit = decimal.NewFromInt(120)

		quote, err := calc.Quote(ctx, params)
		require.NoError(t, err)

		assert.True(t, quote.MemberSavingsPerUnit.IsZero())
		assert.True(t, quote.MemberDiscount.IsZero())
		assert.True(t, quote.Total.Equal(decimal.NewFromInt(100)))
	})

	t.Run("quantity scales every component", func(t *testing.T) {
		params := annualParams()
		params.MemberPricing = true
		params.AdditionalDiscountPct = decimal.NewFromInt(10)
		params.Quantity = decimal.NewFromInt(3)

		quote, err := calc.Quote(ctx, params)
		require.NoError(t, err)

		assert.True(t, quote.BaseAmount.Equal(decimal.NewFromInt(300)))
		assert.True(t, quote.MemberDiscount.Equal(decimal.NewFromInt(60)))
		assert.True(t, quote.AdditionalDiscount.Equal(decimal.NewFromInt(24)))
		assert.True(t, quote.Total.Equal(decimal.NewFromInt(216)))
	})
}

func TestCalculator_Proration(t *testing.T) {
	calc := newTestCalculator(t)
	ctx := context.Background()

	t.Run("quote 90 days into an annual period", func(t *testing.T) {
		params := annualParams()
		params.MemberPricing = true
		params.AdditionalDiscountPct = decimal.NewFromInt(10)
		// 2025-01-01 + 90 days = 2025-04-01, 275 of 365 days remain
		params.QuoteDate = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

		quote, err := calc.Quote(ctx, params)
		require.NoError(t, err)

		wantFactor := decimal.NewFromInt(275).Div(decimal.NewFromInt(365))
		assert.True(t, quote.ProrationFactor.Equal(wantFactor), "factor %s", quote.ProrationFactor)
		assert.True(t, quote.IsProrated)

		// 72 * (275/365 - 1) = -17.75 after rounding
		assert.True(t, quote.ProrationAdjustment.Equal(decimal.NewFromFloat(-17.75)), "adjustment %s", quote.ProrationAdjustment)
		assert.True(t, quote.NetAmount.Equal(decimal.NewFromFloat(54.25)), "net %s", quote.NetAmount)
		assert.True(t, quote.Total.Equal(decimal.NewFromFloat(54.25)))

		// The annualized value reflects the full period, not the first charge
		assert.True(t, quote.AnnualValue.Equal(decimal.NewFromInt(72)), "annual value %s", quote.AnnualValue)
	})

	t.Run("quote on the period start charges the full period", func(t *testing.T) {
		params := annualParams()
		params.QuoteDate = params.PeriodStart

		quote, err := calc.Quote(ctx, params)
		require.NoError(t, err)

		assert.False(t, quote.IsProrated)
		assert.True(t, quote.ProrationAdjustment.IsZero())
		assert.True(t, quote.Total.Equal(decimal.NewFromInt(100)))
	})

	t.Run("quote past the period end charges nothing", func(t *testing.T) {
		params := annualParams()
		params.QuoteDate = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

		quote, err := calc.Quote(ctx, params)
		require.NoError(t, err)

		assert.True(t, quote.ProrationFactor.IsZero(), "factor %s", quote.ProrationFactor)
		assert.True(t, quote.NetAmount.IsZero(), "net %s", quote.NetAmount)
	})
}

func TestCalculator_SetupFeeAndTax(t *testing.T) {
	calc := newTestCalculator(t)
	ctx := context.Background()

	t.Run("first cycle carries the setup fee", func(t *testing.T) {
		params := annualParams()
		params.MemberPricing = true
		params.FirstCycle = true
		params.SetupFee = decimal.NewFromInt(25)
		params.TaxRatePct = decimal.NewFromInt(10)

		quote, err := calc.Quote(ctx, params)
		require.NoError(t, err)

		// Net 80, setup 25, tax 10% of 105 = 10.5
		assert.True(t, quote.SetupFee.Equal(decimal.NewFromInt(25)))
		assert.True(t, quote.TaxAmount.Equal(decimal.NewFromFloat(10.5)), "tax %s", quote.TaxAmount)
		assert.True(t, quote.Total.Equal(decimal.NewFromFloat(115.5)), "total %s", quote.Total)
	})

	t.Run("recurring cycles skip the setup fee", func(t *testing.T) {
		params := annualParams()
		params.MemberPricing = true
		params.FirstCycle = false
		params.SetupFee = decimal.NewFromInt(25)
		params.TaxRatePct = decimal.NewFromInt(10)

		quote, err := calc.Quote(ctx, params)
		require.NoError(t, err)

		assert.True(t, quote.SetupFee.IsZero())
		assert.True(t, quote.TaxAmount.Equal(decimal.NewFromInt(8)))
		assert.True(t, quote.Total.Equal(decimal.NewFromInt(88)))
	})

	t.Run("deferred recognition moves the pre tax total", func(t *testing.T) {
		params := annualParams()
		params.RevenueRecognition = types.RevenueRecognitionDeferred
		params.TaxRatePct = decimal.NewFromInt(10)

		quote, err := calc.Quote(ctx, params)
		require.NoError(t, err)

		assert.True(t, quote.ImmediateRevenue.IsZero())
		assert.True(t, quote.DeferredRevenue.Equal(decimal.NewFromInt(100)), "deferred %s", quote.DeferredRevenue)
	})
}

func TestCalculator_TotalInvariant(t *testing.T) {
	calc := newTestCalculator(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*QuoteParams)
	}{
		{name: "full period member", mutate: func(p *QuoteParams) {
			p.MemberPricing = true
			p.AdditionalDiscountPct = decimal.NewFromInt(10)
		}},
		{name: "prorated with setup fee and tax", mutate: func(p *QuoteParams) {
			p.MemberPricing = true
			p.FirstCycle = true
			p.SetupFee = decimal.NewFromFloat(19.99)
			p.TaxRatePct = decimal.NewFromFloat(7.5)
			p.QuoteDate = time.Date(2025, 8, 13, 0, 0, 0, 0, time.UTC)
		}},
		{name: "non member quantity five", mutate: func(p *QuoteParams) {
			p.Quantity = decimal.NewFromInt(5)
			p.TaxRatePct = decimal.NewFromInt(21)
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := annualParams()
			tc.mutate(&params)

			quote, err := calc.Quote(ctx, params)
			require.NoError(t, err)

			recomputed := quote.BaseAmount.
				Sub(quote.MemberDiscount).
				Sub(quote.AdditionalDiscount).
				Add(quote.ProrationAdjustment).
				Add(quote.SetupFee).
				Add(quote.TaxAmount)
			assert.True(t, quote.Total.Equal(recomputed),
				"total %s does not match components %s", quote.Total, recomputed)
		})
	}
}

func TestCalculator_Validation(t *testing.T) {
	calc := newTestCalculator(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*QuoteParams)
	}{
		{name: "zero quantity", mutate: func(p *QuoteParams) {
			p.Quantity = decimal.Zero
		}},
		{name: "negative list price", mutate: func(p *QuoteParams) {
			p.ListPricePerUnit = decimal.NewFromInt(-1)
		}},
		{name: "negative setup fee", mutate: func(p *QuoteParams) {
			p.SetupFee = decimal.NewFromInt(-5)
		}},
		{name: "additional discount above hundred", mutate: func(p *QuoteParams) {
			p.AdditionalDiscountPct = decimal.NewFromInt(101)
		}},
		{name: "period end before start", mutate: func(p *QuoteParams) {
			p.PeriodEnd = p.PeriodStart.AddDate(0, 0, -1)
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := annualParams()
			tc.mutate(&params)

			_, err := calc.Quote(ctx, params)
			assert.Error(t, err)
		})
	}
}
