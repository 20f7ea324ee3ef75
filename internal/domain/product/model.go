package product

import (
	"github.com/shopspring/decimal"

	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/types"
)

// Product represents a sellable subscription product with its two tier
// pricing: the public list price and the discounted member price.
type Product struct {
	// ID is the unique identifier for the product
	ID string `db:"id" json:"id"`

	// LookupKey is the human readable unique key for the product
	LookupKey string `db:"lookup_key" json:"lookup_key"`

	// Name is the display name of the product
	Name string `db:"name" json:"name"`

	// Description is the long form description of the product
	Description string `db:"description" json:"description"`

	// ProductType distinguishes recurring products from one time charges
	ProductType types.ProductType `db:"product_type" json:"product_type"`

	// Category groups products for batch selection, for example "membership"
	// or "publication"
	Category string `db:"category" json:"category"`

	// ListPrice is the per period price for non members
	ListPrice decimal.Decimal `db:"list_price" json:"list_price"`

	// MemberPrice is the per period price for active members
	MemberPrice decimal.Decimal `db:"member_price" json:"member_price"`

	// SetupFee is charged once on the first billing cycle of a subscription
	SetupFee decimal.Decimal `db:"setup_fee" json:"setup_fee"`

	// AdditionalMemberDiscountPct is an extra percentage discount on the
	// member base, in percent. Subscriptions may override it.
	AdditionalMemberDiscountPct decimal.Decimal `db:"additional_member_discount_pct" json:"additional_member_discount_pct"`

	// TaxRatePct is the tax rate applied on the net amount, in percent
	TaxRatePct decimal.Decimal `db:"tax_rate_pct" json:"tax_rate_pct"`

	// Currency is the three letter ISO currency code in lowercase
	Currency string `db:"currency" json:"currency"`

	// BillingPeriod and BillingPeriodCount define the default recurrence
	BillingPeriod      types.BillingPeriod `db:"billing_period" json:"billing_period"`
	BillingPeriodCount int                 `db:"billing_period_count" json:"billing_period_count"`

	// RevenueRecognition picks immediate or deferred recognition for this product
	RevenueRecognition types.RevenueRecognition `db:"revenue_recognition" json:"revenue_recognition"`

	// GracePeriodDays is how long past the due date a renewal may still
	// process before it expires. Subscriptions may override it.
	GracePeriodDays int `db:"grace_period_days" json:"grace_period_days"`

	// AutoRenew marks subscriptions of this product for the automatic
	// renewal sweep
	AutoRenew bool `db:"auto_renew" json:"auto_renew"`

	// ReminderSchedule is the default comma separated days-before-due
	// schedule, for example "30,15,7"
	ReminderSchedule string `db:"reminder_schedule" json:"reminder_schedule"`

	// Metadata
	Metadata types.Metadata `db:"metadata" json:"metadata"`

	// EnvironmentID is the environment identifier for the product
	EnvironmentID string `db:"environment_id" json:"environment_id"`

	types.BaseModel
}

// PeriodDefinition returns the product's default billing period definition
func (p *Product) PeriodDefinition() types.BillingPeriodDefinition {
	return types.BillingPeriodDefinition{
		Period: p.BillingPeriod,
		Count:  p.BillingPeriodCount,
	}
}

// PriceFor returns the per period unit price for the given membership
// qualification. The member price applies only when the caller already
// verified the subscriber qualifies.
func (p *Product) PriceFor(memberPricing bool) decimal.Decimal {
	if memberPricing {
		return p.MemberPrice
	}
	return p.ListPrice
}

// MemberSavingsPerUnit is the per unit difference between list and member
// price. Never negative: a member price above list yields zero savings.
func (p *Product) MemberSavingsPerUnit() decimal.Decimal {
	savings := p.ListPrice.Sub(p.MemberPrice)
	if savings.IsNegative() {
		return decimal.Zero
	}
	return savings
}

// EffectiveReminderSchedule parses the product schedule, falling back to the
// platform default when the product carries none
func (p *Product) EffectiveReminderSchedule() (types.ReminderSchedule, error) {
	raw := p.ReminderSchedule
	if raw == "" {
		raw = types.DefaultReminderSchedule
	}
	return types.ParseReminderSchedule(raw)
}

// Validate checks product fields before persistence
func (p *Product) Validate() error {
	if p.Name == "" {
		return ierr.NewError("product name is required").
			WithHint("Product name is required").
			Mark(ierr.ErrValidation)
	}
	if p.ProductType != "" {
		if err := p.ProductType.Validate(); err != nil {
			return err
		}
	}
	if p.ListPrice.IsNegative() {
		return ierr.NewError("list price must not be negative").
			WithHint("List price must not be negative").
			WithReportableDetails(map[string]any{
				"list_price": p.ListPrice,
			}).
			Mark(ierr.ErrValidation)
	}
	if p.MemberPrice.IsNegative() {
		return ierr.NewError("member price must not be negative").
			WithHint("Member price must not be negative").
			WithReportableDetails(map[string]any{
				"member_price": p.MemberPrice,
			}).
			Mark(ierr.ErrValidation)
	}
	if p.SetupFee.IsNegative() {
		return ierr.NewError("setup fee must not be negative").
			WithHint("Setup fee must not be negative").
			WithReportableDetails(map[string]any{
				"setup_fee": p.SetupFee,
			}).
			Mark(ierr.ErrValidation)
	}
	if p.TaxRatePct.IsNegative() {
		return ierr.NewError("tax rate must not be negative").
			WithHint("Tax rate must not be negative").
			WithReportableDetails(map[string]any{
				"tax_rate_pct": p.TaxRatePct,
			}).
			Mark(ierr.ErrValidation)
	}
	if p.AdditionalMemberDiscountPct.IsNegative() || p.AdditionalMemberDiscountPct.GreaterThan(decimal.NewFromInt(100)) {
		return ierr.NewError("additional member discount out of range").
			WithHint("Additional member discount must be between 0 and 100 percent").
			WithReportableDetails(map[string]any{
				"additional_member_discount_pct": p.AdditionalMemberDiscountPct,
			}).
			Mark(ierr.ErrValidation)
	}
	if p.GracePeriodDays < 0 {
		return ierr.NewError("grace period must not be negative").
			WithHint("Grace period days must not be negative").
			WithReportableDetails(map[string]any{
				"grace_period_days": p.GracePeriodDays,
			}).
			Mark(ierr.ErrValidation)
	}
	if p.ReminderSchedule != "" {
		if _, err := types.ParseReminderSchedule(p.ReminderSchedule); err != nil {
			return err
		}
	}
	if p.ProductType == types.ProductTypeRecurring {
		def := p.PeriodDefinition()
		if err := def.Validate(); err != nil {
			return err
		}
	}
	if p.RevenueRecognition != "" {
		if err := p.RevenueRecognition.Validate(); err != nil {
			return err
		}
	}
	return nil
}
