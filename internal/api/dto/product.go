package dto

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/memberbill/memberbill/internal/domain/product"
	"github.com/memberbill/memberbill/internal/types"
	"github.com/memberbill/memberbill/internal/validator"
)

type CreateProductRequest struct {
	LookupKey                   string                   `json:"lookup_key" validate:"required"`
	Name                        string                   `json:"name" validate:"required"`
	Description                 string                   `json:"description"`
	ProductType                 types.ProductType        `json:"product_type" validate:"required"`
	Category                    string                   `json:"category"`
	ListPrice                   decimal.Decimal          `json:"list_price"`
	MemberPrice                 decimal.Decimal          `json:"member_price"`
	SetupFee                    decimal.Decimal          `json:"setup_fee"`
	AdditionalMemberDiscountPct decimal.Decimal          `json:"additional_member_discount_pct"`
	TaxRatePct                  decimal.Decimal          `json:"tax_rate_pct"`
	Currency                    string                   `json:"currency" validate:"required,len=3"`
	BillingPeriod               types.BillingPeriod      `json:"billing_period"`
	BillingPeriodCount          int                      `json:"billing_period_count"`
	RevenueRecognition          types.RevenueRecognition `json:"revenue_recognition"`
	GracePeriodDays             int                      `json:"grace_period_days"`
	AutoRenew                   bool                     `json:"auto_renew"`
	ReminderSchedule            string                   `json:"reminder_schedule"`
	Metadata                    types.Metadata           `json:"metadata,omitempty"`
}

type UpdateProductRequest struct {
	Name                        *string          `json:"name"`
	Description                 *string          `json:"description"`
	Category                    *string          `json:"category"`
	ListPrice                   *decimal.Decimal `json:"list_price"`
	MemberPrice                 *decimal.Decimal `json:"member_price"`
	SetupFee                    *decimal.Decimal `json:"setup_fee"`
	AdditionalMemberDiscountPct *decimal.Decimal `json:"additional_member_discount_pct"`
	TaxRatePct                  *decimal.Decimal `json:"tax_rate_pct"`
	GracePeriodDays             *int             `json:"grace_period_days"`
	AutoRenew                   *bool            `json:"auto_renew"`
	ReminderSchedule            *string          `json:"reminder_schedule"`
	Metadata                    types.Metadata   `json:"metadata,omitempty"`
}

type ProductResponse struct {
	*product.Product
}

// ListProductsResponse represents the response for listing products
type ListProductsResponse = types.ListResponse[*ProductResponse]

func (r *CreateProductRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.ReminderSchedule != "" {
		if _, err := types.ParseReminderSchedule(r.ReminderSchedule); err != nil {
			return err
		}
	}
	return nil
}

func (r *CreateProductRequest) ToProduct(ctx context.Context) *product.Product {
	periodCount := r.BillingPeriodCount
	if r.ProductType == types.ProductTypeRecurring && periodCount == 0 {
		periodCount = 1
	}
	revenueRecognition := r.RevenueRecognition
	if revenueRecognition == "" {
		revenueRecognition = types.RevenueRecognitionImmediate
	}
	return &product.Product{
		ID:                          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PRODUCT),
		LookupKey:                   r.LookupKey,
		Name:                        r.Name,
		Description:                 r.Description,
		ProductType:                 r.ProductType,
		Category:                    r.Category,
		ListPrice:                   r.ListPrice,
		MemberPrice:                 r.MemberPrice,
		SetupFee:                    r.SetupFee,
		AdditionalMemberDiscountPct: r.AdditionalMemberDiscountPct,
		TaxRatePct:                  r.TaxRatePct,
		Currency:                    strings.ToLower(r.Currency),
		BillingPeriod:               r.BillingPeriod,
		BillingPeriodCount:          periodCount,
		RevenueRecognition:          revenueRecognition,
		GracePeriodDays:             r.GracePeriodDays,
		AutoRenew:                   r.AutoRenew,
		ReminderSchedule:            r.ReminderSchedule,
		Metadata:                    r.Metadata,
		EnvironmentID:               types.GetEnvironmentID(ctx),
		BaseModel:                   types.GetDefaultBaseModel(ctx),
	}
}

func (r *UpdateProductRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.ReminderSchedule != nil && *r.ReminderSchedule != "" {
		if _, err := types.ParseReminderSchedule(*r.ReminderSchedule); err != nil {
			return err
		}
	}
	return nil
}
