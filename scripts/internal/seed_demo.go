package internal

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/memberbill/memberbill/internal/cache"
	"github.com/memberbill/memberbill/internal/config"
	"github.com/memberbill/memberbill/internal/domain/product"
	"github.com/memberbill/memberbill/internal/domain/subscriber"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/postgres"
	"github.com/memberbill/memberbill/internal/repository"
	"github.com/memberbill/memberbill/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type demoSeedScript struct {
	cfg            *config.Configuration
	log            *logger.Logger
	subscriberRepo subscriber.Repository
	productRepo    product.Repository
}

func newDemoSeedScript() (*demoSeedScript, error) {
	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	db, err := postgres.NewDB(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	client := postgres.NewClient(db, log)
	c := cache.Initialize(log)

	return &demoSeedScript{
		cfg:            cfg,
		log:            log,
		subscriberRepo: repository.NewSubscriberRepository(client, log, c),
		productRepo:    repository.NewProductRepository(client, log, c),
	}, nil
}

// SeedDemoData creates a handful of demo products and subscribers under the
// default tenant, so a fresh install has something to bill.
func SeedDemoData() error {
	script, err := newDemoSeedScript()
	if err != nil {
		return err
	}

	tenantID := os.Getenv("TENANT_ID")
	if tenantID == "" {
		tenantID = types.DefaultTenantID
	}

	ctx := types.SetTenantID(context.Background(), tenantID)
	ctx = types.SetUserID(ctx, types.DefaultUserID)

	products := []*product.Product{
		{
			ID:                          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PRODUCT),
			LookupKey:                   "annual-membership",
			Name:                        "Annual Membership",
			Description:                 "Full membership billed once a year",
			ProductType:                 types.ProductTypeRecurring,
			Category:                    "membership",
			ListPrice:                   decimal.NewFromInt(120),
			MemberPrice:                 decimal.NewFromInt(96),
			AdditionalMemberDiscountPct: decimal.NewFromInt(10),
			Currency:                    "usd",
			BillingPeriod:               types.BILLING_PERIOD_ANNUAL,
			BillingPeriodCount:          1,
			RevenueRecognition:          types.RevenueRecognitionDeferred,
			GracePeriodDays:             14,
			AutoRenew:                   true,
			ReminderSchedule:            "30,15,7",
			BaseModel:                   types.GetDefaultBaseModel(ctx),
		},
		{
			ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PRODUCT),
			LookupKey:          "monthly-newsletter",
			Name:               "Monthly Newsletter",
			Description:        "Print newsletter billed monthly",
			ProductType:        types.ProductTypeRecurring,
			Category:           "publications",
			ListPrice:          decimal.NewFromInt(15),
			MemberPrice:        decimal.NewFromInt(12),
			Currency:           "usd",
			BillingPeriod:      types.BILLING_PERIOD_MONTHLY,
			BillingPeriodCount: 1,
			RevenueRecognition: types.RevenueRecognitionImmediate,
			GracePeriodDays:    7,
			AutoRenew:          true,
			ReminderSchedule:   "14,7,3",
			BaseModel:          types.GetDefaultBaseModel(ctx),
		},
		{
			ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PRODUCT),
			LookupKey:          "onboarding-workshop",
			Name:               "Onboarding Workshop",
			Description:        "One time workshop with a setup fee",
			ProductType:        types.ProductTypeOneTime,
			Category:           "events",
			ListPrice:          decimal.NewFromInt(250),
			MemberPrice:        decimal.NewFromInt(200),
			SetupFee:           decimal.NewFromInt(50),
			Currency:           "usd",
			BillingPeriod:      types.BILLING_PERIOD_MONTHLY,
			BillingPeriodCount: 1,
			RevenueRecognition: types.RevenueRecognitionImmediate,
			BaseModel:          types.GetDefaultBaseModel(ctx),
		},
	}

	subscribers := []*subscriber.Subscriber{
		{
			ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIBER),
			ExternalID:       "demo-member-001",
			Name:             "Ada Fournier",
			Email:            "ada@example.com",
			IsMember:         true,
			MembershipStatus: types.MembershipStatusActive,
			MemberSince:      lo.ToPtr(time.Now().UTC().AddDate(-2, 0, 0)),
			Currency:         "usd",
			BaseModel:        types.GetDefaultBaseModel(ctx),
		},
		{
			ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIBER),
			ExternalID:       "demo-guest-001",
			Name:             "Jonas Weber",
			Email:            "jonas@example.com",
			MembershipStatus: types.MembershipStatusNone,
			Currency:         "usd",
			BaseModel:        types.GetDefaultBaseModel(ctx),
		},
	}

	for _, p := range products {
		if err := script.productRepo.Create(ctx, p); err != nil {
			return fmt.Errorf("failed to seed product %s: %w", p.LookupKey, err)
		}
		script.log.Infow("seeded product", "lookup_key", p.LookupKey, "product_id", p.ID)
	}

	for _, s := range subscribers {
		if err := script.subscriberRepo.Create(ctx, s); err != nil {
			return fmt.Errorf("failed to seed subscriber %s: %w", s.ExternalID, err)
		}
		script.log.Infow("seeded subscriber", "external_id", s.ExternalID, "subscriber_id", s.ID)
	}

	fmt.Printf("Seeded %d products and %d subscribers for tenant %s\n",
		len(products), len(subscribers), tenantID)
	return nil
}
