package service

import (
	"testing"
	"time"

	"github.com/memberbill/memberbill/internal/api/dto"
	"github.com/memberbill/memberbill/internal/domain/pricing"
	"github.com/memberbill/memberbill/internal/domain/product"
	"github.com/memberbill/memberbill/internal/domain/subscriber"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/testutil"
	"github.com/memberbill/memberbill/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type SubscriptionServiceSuite struct {
	testutil.BaseServiceTestSuite
	service  SubscriptionService
	testData struct {
		subscriber     *subscriber.Subscriber
		product        *product.Product
		oneTimeProduct *product.Product
		anchor         time.Time
	}
}

func TestSubscriptionService(t *testing.T) {
	suite.Run(t, new(SubscriptionServiceSuite))
}

func (s *SubscriptionServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.ClearStores()
	s.setupService()
	s.setupTestData()
}

func (s *SubscriptionServiceSuite) TearDownTest() {
	s.BaseServiceTestSuite.TearDownTest()
	s.BaseServiceTestSuite.ClearStores()
}

func (s *SubscriptionServiceSuite) serviceParams() ServiceParams {
	return ServiceParams{
		Logger:            s.GetLogger(),
		Config:            s.GetConfig(),
		DB:                s.GetDB(),
		AuthRepo:          s.GetStores().AuthRepo,
		UserRepo:          s.GetStores().UserRepo,
		SubscriberRepo:    s.GetStores().SubscriberRepo,
		ProductRepo:       s.GetStores().ProductRepo,
		SubRepo:           s.GetStores().SubscriptionRepo,
		BillingCycleRepo:  s.GetStores().BillingCycleRepo,
		RenewalRepo:       s.GetStores().RenewalRepo,
		AuditLogRepo:      s.GetStores().AuditLogRepo,
		PricingCalculator: pricing.NewCalculator(s.GetLogger()),
		InvoicingGateway:  s.GetInvoicingGateway(),
		Sender:            s.GetSender(),
	}
}

func (s *SubscriptionServiceSuite) setupService() {
	s.service = NewSubscriptionService(s.serviceParams())
}

func (s *SubscriptionServiceSuite) setupTestData() {
	s.testData.anchor = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	s.testData.subscriber = &subscriber.Subscriber{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIBER),
		ExternalID:       "ext_mem_314",
		Name:             "Priya Nair",
		Email:            "priya@example.com",
		IsMember:         true,
		MembershipStatus: types.MembershipStatusActive,
		Currency:         "usd",
		EnvironmentID:    types.GetEnvironmentID(s.GetContext()),
		BaseModel:        types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().SubscriberRepo.Create(s.GetContext(), s.testData.subscriber))

	s.testData.product = &product.Product{
		ID:                          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PRODUCT),
		LookupKey:                   "annual-membership",
		Name:                        "Annual Membership",
		ProductType:                 types.ProductTypeRecurring,
		Category:                    "membership",
		ListPrice:                   decimal.NewFromInt(100),
		MemberPrice:                 decimal.NewFromInt(80),
		AdditionalMemberDiscountPct: decimal.NewFromInt(10),
		Currency:                    "usd",
		BillingPeriod:               types.BILLING_PERIOD_ANNUAL,
		BillingPeriodCount:          1,
		RevenueRecognition:          types.RevenueRecognitionImmediate,
		GracePeriodDays:             14,
		AutoRenew:                   true,
		ReminderSchedule:            "30,15,7",
		EnvironmentID:               types.GetEnvironmentID(s.GetContext()),
		BaseModel:                   types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().ProductRepo.Create(s.GetContext(), s.testData.product))

	s.testData.oneTimeProduct = &product.Product{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PRODUCT),
		LookupKey:          "gala-ticket",
		Name:               "Gala Ticket",
		ProductType:        types.ProductTypeOneTime,
		ListPrice:          decimal.NewFromInt(45),
		MemberPrice:        decimal.NewFromInt(45),
		Currency:           "usd",
		RevenueRecognition: types.RevenueRecognitionImmediate,
		EnvironmentID:      types.GetEnvironmentID(s.GetContext()),
		BaseModel:          types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().ProductRepo.Create(s.GetContext(), s.testData.oneTimeProduct))
}

func (s *SubscriptionServiceSuite) TestCreateSubscription() {
	resp, err := s.service.CreateSubscription(s.GetContext(), &dto.CreateSubscriptionRequest{
		SubscriberID: s.testData.subscriber.ID,
		ProductID:    s.testData.product.ID,
		StartDate:    s.testData.anchor,
	})
	s.NoError(err)

	s.Equal(types.SubscriptionStateActive, resp.State)
	s.True(resp.StartDate.Equal(s.testData.anchor))
	s.True(resp.CurrentPeriodStart.Equal(s.testData.anchor))
	s.True(resp.EndDate.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), "end %s", resp.EndDate)
	s.True(resp.NextBillingDate.Equal(resp.EndDate))

	// Everything the request left blank came from the product
	s.Equal("usd", resp.Currency)
	s.Equal(types.BILLING_PERIOD_ANNUAL, resp.BillingPeriod)
	s.Equal(1, resp.BillingPeriodCount)
	s.True(resp.AutoRenew)
	s.True(resp.Quantity.Equal(decimal.NewFromInt(1)))
	s.True(resp.CurrentPrice.Equal(decimal.NewFromInt(80)), "price %s", resp.CurrentPrice)

	s.NotNil(resp.Subscriber)
	s.Equal(s.testData.subscriber.ID, resp.Subscriber.ID)
	s.NotNil(resp.Product)
	s.Equal(s.testData.product.ID, resp.Product.ID)

	// The signup charge covers the first period at member pricing
	cycles, err := s.GetStores().BillingCycleRepo.ListBySubscription(s.GetContext(), resp.ID)
	s.NoError(err)
	s.Len(cycles, 1)
	cycle := cycles[0]
	s.Equal(types.BillingTypeInitial, cycle.BillingType)
	s.Equal(types.BillingCycleStateScheduled, cycle.State)
	s.True(cycle.BillingDate.Equal(s.testData.anchor))
	s.True(cycle.PeriodStart.Equal(s.testData.anchor))
	s.True(cycle.PeriodEnd.Equal(time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)))
	s.True(cycle.TotalAmount.Equal(decimal.NewFromInt(72)), "total %s", cycle.TotalAmount)

	// The first renewal is open and due when the paid up period ends
	open, err := s.GetStores().RenewalRepo.GetOpenBySubscription(s.GetContext(), resp.ID)
	s.NoError(err)
	s.Equal(types.RenewalStatePending, open.State)
	s.True(open.DueDate.Equal(resp.EndDate))
	s.True(open.CurrentPeriodEnd.Equal(cycle.PeriodEnd))
	s.Equal(0, open.RenewalCount)
}

func (s *SubscriptionServiceSuite) TestCreateSubscriptionOverrides() {
	resp, err := s.service.CreateSubscription(s.GetContext(), &dto.CreateSubscriptionRequest{
		SubscriberID: s.testData.subscriber.ID,
		ProductID:    s.testData.product.ID,
		StartDate:    s.testData.anchor,
		Quantity:     decimal.NewFromInt(2),
		AutoRenew:    lo.ToPtr(false),
	})
	s.NoError(err)

	s.False(resp.AutoRenew)
	s.True(resp.Quantity.Equal(decimal.NewFromInt(2)))

	cycles, err := s.GetStores().BillingCycleRepo.ListBySubscription(s.GetContext(), resp.ID)
	s.NoError(err)
	s.Len(cycles, 1)
	s.True(cycles[0].TotalAmount.Equal(decimal.NewFromInt(144)), "total %s", cycles[0].TotalAmount)
}

func (s *SubscriptionServiceSuite) TestCreateSubscriptionProratedFromAnchor() {
	// Joined April 1st on a January grid: the first charge covers the 275
	// days left in the year
	start := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	resp, err := s.service.CreateSubscription(s.GetContext(), &dto.CreateSubscriptionRequest{
		SubscriberID:  s.testData.subscriber.ID,
		ProductID:     s.testData.product.ID,
		StartDate:     start,
		BillingAnchor: lo.ToPtr(s.testData.anchor),
	})
	s.NoError(err)

	s.True(resp.StartDate.Equal(start))
	s.True(resp.CurrentPeriodStart.Equal(s.testData.anchor))
	s.True(resp.EndDate.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), "end %s", resp.EndDate)

	cycles, err := s.GetStores().BillingCycleRepo.ListBySubscription(s.GetContext(), resp.ID)
	s.NoError(err)
	s.Len(cycles, 1)
	cycle := cycles[0]
	s.True(cycle.BillingDate.Equal(start))
	s.True(cycle.PeriodStart.Equal(s.testData.anchor))
	wantFactor := decimal.NewFromInt(275).Div(decimal.NewFromInt(365))
	s.True(cycle.ProrationFactor.Equal(wantFactor), "factor %s", cycle.ProrationFactor)
	s.True(cycle.TotalAmount.Equal(decimal.NewFromFloat(54.25)), "total %s", cycle.TotalAmount)

	// The renewal that follows is for the full period
	open, err := s.GetStores().RenewalRepo.GetOpenBySubscription(s.GetContext(), resp.ID)
	s.NoError(err)
	s.True(open.DueDate.Equal(resp.EndDate))
	s.True(open.RenewalPrice.Equal(decimal.NewFromInt(72)), "renewal %s", open.RenewalPrice)
}

func (s *SubscriptionServiceSuite) TestCreateSubscriptionValidation() {
	testCases := []struct {
		name      string
		req       *dto.CreateSubscriptionRequest
		errorIs   func(error) bool
		errorName string
	}{
		{
			name: "unknown subscriber",
			req: &dto.CreateSubscriptionRequest{
				SubscriberID: "sub_missing",
				ProductID:    s.testData.product.ID,
			},
			errorIs:   ierr.IsNotFound,
			errorName: "not found",
		},
		{
			name: "unknown product",
			req: &dto.CreateSubscriptionRequest{
				SubscriberID: s.testData.subscriber.ID,
				ProductID:    "prod_missing",
			},
			errorIs:   ierr.IsNotFound,
			errorName: "not found",
		},
		{
			name: "one time product",
			req: &dto.CreateSubscriptionRequest{
				SubscriberID: s.testData.subscriber.ID,
				ProductID:    s.testData.oneTimeProduct.ID,
			},
			errorIs:   ierr.IsValidation,
			errorName: "validation",
		},
		{
			name: "anchor after start date",
			req: &dto.CreateSubscriptionRequest{
				SubscriberID:  s.testData.subscriber.ID,
				ProductID:     s.testData.product.ID,
				StartDate:     s.testData.anchor,
				BillingAnchor: lo.ToPtr(s.testData.anchor.AddDate(0, 1, 0)),
			},
			errorIs:   ierr.IsValidation,
			errorName: "validation",
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			_, err := s.service.CreateSubscription(s.GetContext(), tc.req)
			s.Error(err)
			s.True(tc.errorIs(err), "expected %s error, got: %v", tc.errorName, err)
		})
	}
}

func (s *SubscriptionServiceSuite) TestTerminateSubscription() {
	created, err := s.service.CreateSubscription(s.GetContext(), &dto.CreateSubscriptionRequest{
		SubscriberID: s.testData.subscriber.ID,
		ProductID:    s.testData.product.ID,
		StartDate:    s.testData.anchor,
	})
	s.NoError(err)
	s.GetSender().Clear()

	resp, err := s.service.TerminateSubscription(s.GetContext(), created.ID, &dto.TerminateSubscriptionRequest{Reason: "moved away"})
	s.NoError(err)

	s.Equal(types.SubscriptionStateTerminated, resp.State)
	s.NotNil(resp.CancelledAt)
	s.False(resp.AutoRenew)

	// The open renewal went with it
	_, err = s.GetStores().RenewalRepo.GetOpenBySubscription(s.GetContext(), created.ID)
	s.Error(err)
	s.True(ierr.IsNotFound(err))
	s.Len(s.GetSender().SentFor(types.NotificationEventRenewalCancelled), 1)

	// So did the never billed signup charge
	cycles, err := s.GetStores().BillingCycleRepo.ListBySubscription(s.GetContext(), created.ID)
	s.NoError(err)
	s.Len(cycles, 1)
	s.Equal(types.BillingCycleStateCancelled, cycles[0].State)
	s.Len(s.GetSender().SentFor(types.NotificationEventBillingCancelled), 1)
}

func (s *SubscriptionServiceSuite) TestTerminateSubscriptionKeepsBilledCycles() {
	created, err := s.service.CreateSubscription(s.GetContext(), &dto.CreateSubscriptionRequest{
		SubscriberID: s.testData.subscriber.ID,
		ProductID:    s.testData.product.ID,
		StartDate:    s.testData.anchor,
	})
	s.NoError(err)

	cycles, err := s.GetStores().BillingCycleRepo.ListBySubscription(s.GetContext(), created.ID)
	s.NoError(err)
	s.Len(cycles, 1)

	billingCycleService := NewBillingCycleService(s.serviceParams())
	billed, err := billingCycleService.ProcessBillingCycle(s.GetContext(), cycles[0].ID, s.testData.anchor)
	s.NoError(err)
	s.Equal(types.BillingCycleStateBilled, billed.State)

	_, err = s.service.TerminateSubscription(s.GetContext(), created.ID, nil)
	s.NoError(err)

	// An issued invoice survives termination; collection is a separate
	// conversation with the member
	stored, err := s.GetStores().BillingCycleRepo.Get(s.GetContext(), cycles[0].ID)
	s.NoError(err)
	s.Equal(types.BillingCycleStateBilled, stored.State)
	s.False(s.GetInvoicingGateway().Cancelled(stored.InvoiceRef))
}

func (s *SubscriptionServiceSuite) TestTerminateSubscriptionTwice() {
	created, err := s.service.CreateSubscription(s.GetContext(), &dto.CreateSubscriptionRequest{
		SubscriberID: s.testData.subscriber.ID,
		ProductID:    s.testData.product.ID,
		StartDate:    s.testData.anchor,
	})
	s.NoError(err)

	_, err = s.service.TerminateSubscription(s.GetContext(), created.ID, nil)
	s.NoError(err)

	_, err = s.service.TerminateSubscription(s.GetContext(), created.ID, nil)
	s.Error(err)
	s.True(ierr.IsInvalidState(err), "unexpected error class: %v", err)
}

func (s *SubscriptionServiceSuite) TestGetSubscription() {
	created, err := s.service.CreateSubscription(s.GetContext(), &dto.CreateSubscriptionRequest{
		SubscriberID: s.testData.subscriber.ID,
		ProductID:    s.testData.product.ID,
		StartDate:    s.testData.anchor,
	})
	s.NoError(err)

	resp, err := s.service.GetSubscription(s.GetContext(), created.ID)
	s.NoError(err)
	s.Equal(created.ID, resp.ID)
	s.NotNil(resp.Subscriber)
	s.Equal("Priya Nair", resp.Subscriber.Name)
	s.NotNil(resp.Product)
	s.Equal("annual-membership", resp.Product.LookupKey)

	_, err = s.service.GetSubscription(s.GetContext(), "subn_missing")
	s.Error(err)
	s.True(ierr.IsNotFound(err), "unexpected error class: %v", err)
}

func (s *SubscriptionServiceSuite) TestListSubscriptions() {
	first, err := s.service.CreateSubscription(s.GetContext(), &dto.CreateSubscriptionRequest{
		SubscriberID: s.testData.subscriber.ID,
		ProductID:    s.testData.product.ID,
		StartDate:    s.testData.anchor,
	})
	s.NoError(err)

	_, err = s.service.TerminateSubscription(s.GetContext(), first.ID, nil)
	s.NoError(err)

	second, err := s.service.CreateSubscription(s.GetContext(), &dto.CreateSubscriptionRequest{
		SubscriberID: s.testData.subscriber.ID,
		ProductID:    s.testData.product.ID,
		StartDate:    s.testData.anchor,
	})
	s.NoError(err)

	all, err := s.service.ListSubscriptions(s.GetContext(), nil)
	s.NoError(err)
	s.Equal(2, all.Pagination.Total)

	filter := types.NewSubscriptionFilter()
	filter.States = []types.SubscriptionState{types.SubscriptionStateActive}
	active, err := s.service.ListSubscriptions(s.GetContext(), filter)
	s.NoError(err)
	s.Equal(1, active.Pagination.Total)
	s.Equal(second.ID, active.Items[0].ID)

	bySubscriber := types.NewSubscriptionFilter()
	bySubscriber.SubscriberIDs = []string{s.testData.subscriber.ID}
	mine, err := s.service.ListSubscriptions(s.GetContext(), bySubscriber)
	s.NoError(err)
	s.Equal(2, mine.Pagination.Total)
}
