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

type AuditLogServiceSuite struct {
	testutil.BaseServiceTestSuite
	service  AuditLogService
	testData struct {
		subscriber *subscriber.Subscriber
		product    *product.Product
		anchor     time.Time
	}
}

func TestAuditLogService(t *testing.T) {
	suite.Run(t, new(AuditLogServiceSuite))
}

func (s *AuditLogServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.ClearStores()
	s.service = NewAuditLogService(s.serviceParams())
	s.setupTestData()
}

func (s *AuditLogServiceSuite) TearDownTest() {
	s.BaseServiceTestSuite.TearDownTest()
	s.BaseServiceTestSuite.ClearStores()
}

func (s *AuditLogServiceSuite) serviceParams() ServiceParams {
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

func (s *AuditLogServiceSuite) setupTestData() {
	s.testData.anchor = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	s.testData.subscriber = &subscriber.Subscriber{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIBER),
		ExternalID:       "ext_mem_640",
		Name:             "Noor Haddad",
		Email:            "noor@example.com",
		IsMember:         true,
		MembershipStatus: types.MembershipStatusActive,
		Currency:         "usd",
		EnvironmentID:    types.GetEnvironmentID(s.GetContext()),
		BaseModel:        types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().SubscriberRepo.Create(s.GetContext(), s.testData.subscriber))

	s.testData.product = &product.Product{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PRODUCT),
		LookupKey:          "annual-membership",
		Name:               "Annual Membership",
		ProductType:        types.ProductTypeRecurring,
		Category:           "membership",
		ListPrice:          decimal.NewFromInt(100),
		MemberPrice:        decimal.NewFromInt(80),
		Currency:           "usd",
		BillingPeriod:      types.BILLING_PERIOD_ANNUAL,
		BillingPeriodCount: 1,
		RevenueRecognition: types.RevenueRecognitionImmediate,
		GracePeriodDays:    14,
		AutoRenew:          true,
		ReminderSchedule:   "30,15,7",
		EnvironmentID:      types.GetEnvironmentID(s.GetContext()),
		BaseModel:          types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().ProductRepo.Create(s.GetContext(), s.testData.product))
}

// runTerminationLifecycle creates a subscription and terminates it, leaving a
// trail of three created entries and three state changes across the
// subscription, its billing cycle and its renewal.
func (s *AuditLogServiceSuite) runTerminationLifecycle() string {
	subscriptionService := NewSubscriptionService(s.serviceParams())
	created, err := subscriptionService.CreateSubscription(s.GetContext(), &dto.CreateSubscriptionRequest{
		SubscriberID: s.testData.subscriber.ID,
		ProductID:    s.testData.product.ID,
		StartDate:    s.testData.anchor,
	})
	s.NoError(err)

	_, err = subscriptionService.TerminateSubscription(s.GetContext(), created.ID, &dto.TerminateSubscriptionRequest{Reason: "moved away"})
	s.NoError(err)

	return created.ID
}

func (s *AuditLogServiceSuite) TestGetEntityHistory() {
	subscriptionID := s.runTerminationLifecycle()

	history, err := s.service.GetEntityHistory(s.GetContext(), types.AuditEntityTypeSubscription, subscriptionID)
	s.NoError(err)
	s.Equal(2, history.Pagination.Total)
	s.Require().Len(history.Items, 2)

	// Newest first: the termination precedes the creation in the listing
	s.Equal(types.AuditEventStateChanged, history.Items[0].Event)
	s.Equal("active", history.Items[0].FromState)
	s.Equal("terminated", history.Items[0].ToState)
	s.Equal(types.AuditEventCreated, history.Items[1].Event)

	// The cancelled renewal kept its own trail
	filter := types.NewNoLimitRenewalFilter()
	filter.SubscriptionIDs = []string{subscriptionID}
	renewals, err := s.GetStores().RenewalRepo.List(s.GetContext(), filter)
	s.NoError(err)
	s.Require().Len(renewals, 1)

	renewalHistory, err := s.service.GetEntityHistory(s.GetContext(), types.AuditEntityTypeRenewal, renewals[0].ID)
	s.NoError(err)
	s.Equal(2, renewalHistory.Pagination.Total)
	s.Equal("cancelled", renewalHistory.Items[0].ToState)
}

func (s *AuditLogServiceSuite) TestGetEntityHistoryValidation() {
	_, err := s.service.GetEntityHistory(s.GetContext(), types.AuditEntityType("ledger"), "led_123")
	s.Error(err)
	s.True(ierr.IsValidation(err), "unexpected error class: %v", err)

	_, err = s.service.GetEntityHistory(s.GetContext(), types.AuditEntityTypeSubscription, "")
	s.Error(err)
	s.True(ierr.IsValidation(err), "unexpected error class: %v", err)
}

func (s *AuditLogServiceSuite) TestGetEntityHistoryEmpty() {
	history, err := s.service.GetEntityHistory(s.GetContext(), types.AuditEntityTypeSubscription, "subn_untouched")
	s.NoError(err)
	s.Equal(0, history.Pagination.Total)
	s.Empty(history.Items)
}

func (s *AuditLogServiceSuite) TestListAuditLogsByEvent() {
	s.runTerminationLifecycle()

	created := types.NewNoLimitAuditLogFilter()
	created.Events = []string{types.AuditEventCreated}
	resp, err := s.service.ListAuditLogs(s.GetContext(), created)
	s.NoError(err)
	s.Equal(3, resp.Pagination.Total)

	transitions := types.NewNoLimitAuditLogFilter()
	transitions.Events = []string{types.AuditEventStateChanged}
	resp, err = s.service.ListAuditLogs(s.GetContext(), transitions)
	s.NoError(err)
	s.Equal(3, resp.Pagination.Total)

	bySubscriptionType := types.NewNoLimitAuditLogFilter()
	bySubscriptionType.EntityType = types.AuditEntityTypeSubscription
	resp, err = s.service.ListAuditLogs(s.GetContext(), bySubscriptionType)
	s.NoError(err)
	s.Equal(2, resp.Pagination.Total)
}

func (s *AuditLogServiceSuite) TestListAuditLogsBillingTrail() {
	subscriptionService := NewSubscriptionService(s.serviceParams())
	created, err := subscriptionService.CreateSubscription(s.GetContext(), &dto.CreateSubscriptionRequest{
		SubscriberID: s.testData.subscriber.ID,
		ProductID:    s.testData.product.ID,
		StartDate:    s.testData.anchor,
	})
	s.NoError(err)

	cycles, err := s.GetStores().BillingCycleRepo.ListBySubscription(s.GetContext(), created.ID)
	s.NoError(err)
	s.Require().Len(cycles, 1)

	billingCycleService := NewBillingCycleService(s.serviceParams())
	_, err = billingCycleService.ProcessBillingCycle(s.GetContext(), cycles[0].ID, s.testData.anchor)
	s.NoError(err)
	_, err = billingCycleService.MarkBillingCyclePaid(s.GetContext(), cycles[0].ID, &dto.MarkBillingCyclePaidRequest{
		PaymentRef: "pay_ref_001",
	})
	s.NoError(err)

	invoiced := types.NewNoLimitAuditLogFilter()
	invoiced.EntityIDs = []string{cycles[0].ID}
	invoiced.Events = []string{types.AuditEventInvoiceCreated}
	resp, err := s.service.ListAuditLogs(s.GetContext(), invoiced)
	s.NoError(err)
	s.Equal(1, resp.Pagination.Total)

	paid := types.NewNoLimitAuditLogFilter()
	paid.EntityIDs = []string{cycles[0].ID}
	paid.Events = []string{types.AuditEventPaymentRecorded}
	resp, err = s.service.ListAuditLogs(s.GetContext(), paid)
	s.NoError(err)
	s.Equal(1, resp.Pagination.Total)
}

func (s *AuditLogServiceSuite) TestListAuditLogsPagination() {
	s.runTerminationLifecycle()

	firstPage := &types.AuditLogFilter{
		QueryFilter: &types.QueryFilter{
			Limit:  lo.ToPtr(4),
			Offset: lo.ToPtr(0),
		},
	}
	resp, err := s.service.ListAuditLogs(s.GetContext(), firstPage)
	s.NoError(err)
	s.Equal(6, resp.Pagination.Total)
	s.Len(resp.Items, 4)

	secondPage := &types.AuditLogFilter{
		QueryFilter: &types.QueryFilter{
			Limit:  lo.ToPtr(4),
			Offset: lo.ToPtr(4),
		},
	}
	resp, err = s.service.ListAuditLogs(s.GetContext(), secondPage)
	s.NoError(err)
	s.Equal(6, resp.Pagination.Total)
	s.Len(resp.Items, 2)
}
