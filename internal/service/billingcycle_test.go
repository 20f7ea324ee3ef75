package service

import (
	"testing"
	"time"

	"github.com/memberbill/memberbill/internal/api/dto"
	"github.com/memberbill/memberbill/internal/domain/pricing"
	"github.com/memberbill/memberbill/internal/domain/product"
	"github.com/memberbill/memberbill/internal/domain/subscriber"
	"github.com/memberbill/memberbill/internal/domain/subscription"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/testutil"
	"github.com/memberbill/memberbill/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type BillingCycleServiceSuite struct {
	testutil.BaseServiceTestSuite
	service  BillingCycleService
	testData struct {
		subscriber   *subscriber.Subscriber
		nonMember    *subscriber.Subscriber
		product      *product.Product
		subscription *subscription.Subscription
		anchor       time.Time
	}
}

func TestBillingCycleService(t *testing.T) {
	suite.Run(t, new(BillingCycleServiceSuite))
}

func (s *BillingCycleServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.ClearStores()
	s.setupService()
	s.setupTestData()
}

func (s *BillingCycleServiceSuite) TearDownTest() {
	s.BaseServiceTestSuite.TearDownTest()
	s.BaseServiceTestSuite.ClearStores()
}

func (s *BillingCycleServiceSuite) serviceParams() ServiceParams {
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

func (s *BillingCycleServiceSuite) setupService() {
	s.service = NewBillingCycleService(s.serviceParams())
}

func (s *BillingCycleServiceSuite) setupTestData() {
	// 2025 has 365 days, which keeps the proration expectations exact
	s.testData.anchor = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	s.testData.subscriber = &subscriber.Subscriber{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIBER),
		ExternalID:       "ext_mem_123",
		Name:             "Ada Marsh",
		Email:            "ada@example.com",
		IsMember:         true,
		MembershipStatus: types.MembershipStatusActive,
		Currency:         "usd",
		EnvironmentID:    types.GetEnvironmentID(s.GetContext()),
		BaseModel:        types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().SubscriberRepo.Create(s.GetContext(), s.testData.subscriber))

	s.testData.nonMember = &subscriber.Subscriber{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIBER),
		ExternalID:       "ext_guest_456",
		Name:             "Noor Webb",
		Email:            "noor@example.com",
		IsMember:         false,
		MembershipStatus: types.MembershipStatusNone,
		Currency:         "usd",
		EnvironmentID:    types.GetEnvironmentID(s.GetContext()),
		BaseModel:        types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().SubscriberRepo.Create(s.GetContext(), s.testData.nonMember))

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

	s.testData.subscription = s.seedSubscription(s.testData.subscriber.ID, s.testData.anchor)
}

// seedSubscription stores an active annual subscription whose paid up period
// starts at the given anchor
func (s *BillingCycleServiceSuite) seedSubscription(subscriberID string, periodStart time.Time) *subscription.Subscription {
	sub := &subscription.Subscription{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		SubscriberID:       subscriberID,
		ProductID:          s.testData.product.ID,
		State:              types.SubscriptionStateActive,
		Quantity:           decimal.NewFromInt(1),
		CurrentPrice:       decimal.NewFromInt(72),
		Currency:           "usd",
		BillingPeriod:      types.BILLING_PERIOD_ANNUAL,
		BillingPeriodCount: 1,
		StartDate:          periodStart,
		CurrentPeriodStart: periodStart,
		EndDate:            periodStart.AddDate(1, 0, 0),
		NextBillingDate:    periodStart.AddDate(1, 0, 0),
		AutoRenew:          true,
		EnvironmentID:      types.GetEnvironmentID(s.GetContext()),
		BaseModel:          types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().SubscriptionRepo.Create(s.GetContext(), sub))
	return sub
}

// newCycleRequest builds a full period initial cycle request for the shared
// test subscription
func (s *BillingCycleServiceSuite) newCycleRequest() *dto.CreateBillingCycleRequest {
	return &dto.CreateBillingCycleRequest{
		SubscriptionID: s.testData.subscription.ID,
		BillingType:    types.BillingTypeInitial,
		BillingDate:    s.testData.anchor,
		PeriodStart:    s.testData.anchor,
		PeriodEnd:      s.testData.anchor.AddDate(1, 0, 0).AddDate(0, 0, -1),
	}
}

func (s *BillingCycleServiceSuite) TestCreateBillingCycle() {
	resp, err := s.service.CreateBillingCycle(s.GetContext(), s.newCycleRequest())
	s.NoError(err)
	s.NotNil(resp)

	cycle := resp.BillingCycle
	s.Equal(types.BillingCycleStateScheduled, cycle.State)
	s.NotEmpty(cycle.ShortID)
	s.Equal("usd", cycle.Currency)

	// Member at 100 list / 80 member with 10% extra lands on 72
	s.True(cycle.BaseAmount.Equal(decimal.NewFromInt(100)), "base %s", cycle.BaseAmount)
	s.True(cycle.MemberDiscount.Equal(decimal.NewFromInt(20)), "member discount %s", cycle.MemberDiscount)
	s.True(cycle.AdditionalDiscount.Equal(decimal.NewFromInt(8)), "additional discount %s", cycle.AdditionalDiscount)
	s.True(cycle.TotalAmount.Equal(decimal.NewFromInt(72)), "total %s", cycle.TotalAmount)
	s.True(cycle.TotalConsistent())
	s.NotNil(cycle.AmountsCalculatedAt)
	s.False(cycle.RequiresManualReview)

	// Persisted and announced
	stored, err := s.GetStores().BillingCycleRepo.Get(s.GetContext(), cycle.ID)
	s.NoError(err)
	s.Equal(types.BillingCycleStateScheduled, stored.State)
	s.Len(s.GetSender().SentFor(types.NotificationEventBillingScheduled), 1)

	logs, err := s.GetStores().AuditLogRepo.List(s.GetContext(), &types.AuditLogFilter{
		QueryFilter: types.NewNoLimitQueryFilter(),
		EntityType:  types.AuditEntityTypeBillingCycle,
		EntityIDs:   []string{cycle.ID},
	})
	s.NoError(err)
	s.Len(logs, 1)
	s.Equal(types.AuditEventCreated, logs[0].Event)
}

func (s *BillingCycleServiceSuite) TestCreateBillingCycleValidation() {
	testCases := []struct {
		name    string
		request *dto.CreateBillingCycleRequest
		isErr   func(error) bool
	}{
		{
			name:    "missing subscription",
			request: &dto.CreateBillingCycleRequest{BillingType: types.BillingTypeInitial},
			isErr:   ierr.IsValidation,
		},
		{
			name: "unknown subscription",
			request: &dto.CreateBillingCycleRequest{
				SubscriptionID: "subs_missing",
				BillingType:    types.BillingTypeRecurring,
				BillingDate:    s.testData.anchor,
				PeriodStart:    s.testData.anchor,
				PeriodEnd:      s.testData.anchor.AddDate(0, 1, 0),
			},
			isErr: ierr.IsNotFound,
		},
		{
			name: "period end before start",
			request: &dto.CreateBillingCycleRequest{
				SubscriptionID: s.testData.subscription.ID,
				BillingType:    types.BillingTypeInitial,
				BillingDate:    s.testData.anchor,
				PeriodStart:    s.testData.anchor,
				PeriodEnd:      s.testData.anchor.AddDate(0, 0, -1),
			},
			isErr: ierr.IsValidation,
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			resp, err := s.service.CreateBillingCycle(s.GetContext(), tc.request)
			s.Error(err)
			s.Nil(resp)
			s.True(tc.isErr(err), "unexpected error class: %v", err)
		})
	}
}

func (s *BillingCycleServiceSuite) TestCreateBillingCycleProrated() {
	// Subscription started 90 days into the anchored annual period
	lateStart := s.testData.anchor.AddDate(0, 0, 90)
	sub := s.seedSubscription(s.testData.subscriber.ID, s.testData.anchor)
	sub.StartDate = lateStart
	s.NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), sub))

	resp, err := s.service.CreateBillingCycle(s.GetContext(), &dto.CreateBillingCycleRequest{
		SubscriptionID: sub.ID,
		BillingType:    types.BillingTypeInitial,
		BillingDate:    lateStart,
		PeriodStart:    s.testData.anchor,
		PeriodEnd:      s.testData.anchor.AddDate(1, 0, 0).AddDate(0, 0, -1),
	})
	s.NoError(err)

	cycle := resp.BillingCycle
	wantFactor := decimal.NewFromInt(275).Div(decimal.NewFromInt(365))
	s.True(cycle.ProrationFactor.Equal(wantFactor), "factor %s", cycle.ProrationFactor)
	s.True(cycle.ProrationAdjustment.IsNegative())
	s.True(cycle.TotalAmount.LessThan(decimal.NewFromInt(72)))
	s.True(cycle.TotalConsistent())
}

func (s *BillingCycleServiceSuite) TestCreateBillingCycleNonMember() {
	sub := s.seedSubscription(s.testData.nonMember.ID, s.testData.anchor)

	resp, err := s.service.CreateBillingCycle(s.GetContext(), &dto.CreateBillingCycleRequest{
		SubscriptionID: sub.ID,
		BillingType:    types.BillingTypeInitial,
		BillingDate:    s.testData.anchor,
		PeriodStart:    s.testData.anchor,
		PeriodEnd:      s.testData.anchor.AddDate(1, 0, 0).AddDate(0, 0, -1),
	})
	s.NoError(err)

	cycle := resp.BillingCycle
	s.True(cycle.MemberDiscount.IsZero(), "member discount %s", cycle.MemberDiscount)
	s.True(cycle.AdditionalDiscount.IsZero())
	s.True(cycle.TotalAmount.Equal(decimal.NewFromInt(100)), "total %s", cycle.TotalAmount)
}

func (s *BillingCycleServiceSuite) TestCalculateAmounts() {
	resp, err := s.service.CreateBillingCycle(s.GetContext(), s.newCycleRequest())
	s.NoError(err)
	cycleID := resp.BillingCycle.ID
	firstRun := resp.BillingCycle.AmountsCalculatedAt

	// Amounts exist, so another run without force keeps them
	resp, err = s.service.CalculateAmounts(s.GetContext(), cycleID, false)
	s.NoError(err)
	s.Equal(firstRun, resp.BillingCycle.AmountsCalculatedAt)

	// The membership lapsed; a forced run reprices at list
	s.testData.subscriber.MembershipStatus = types.MembershipStatusLapsed
	s.NoError(s.GetStores().SubscriberRepo.Update(s.GetContext(), s.testData.subscriber))

	resp, err = s.service.CalculateAmounts(s.GetContext(), cycleID, true)
	s.NoError(err)
	s.True(resp.BillingCycle.TotalAmount.Equal(decimal.NewFromInt(100)), "total %s", resp.BillingCycle.TotalAmount)
	s.True(resp.BillingCycle.MemberDiscount.IsZero())
}

func (s *BillingCycleServiceSuite) TestCalculateAmountsFrozenOnceBilled() {
	resp, err := s.service.CreateBillingCycle(s.GetContext(), s.newCycleRequest())
	s.NoError(err)
	cycleID := resp.BillingCycle.ID

	_, err = s.service.ProcessBillingCycle(s.GetContext(), cycleID, s.testData.anchor)
	s.NoError(err)

	_, err = s.service.CalculateAmounts(s.GetContext(), cycleID, true)
	s.Error(err)
	s.True(ierr.IsInvalidState(err), "unexpected error class: %v", err)
}

func (s *BillingCycleServiceSuite) TestProcessBillingCycle() {
	resp, err := s.service.CreateBillingCycle(s.GetContext(), s.newCycleRequest())
	s.NoError(err)
	cycleID := resp.BillingCycle.ID
	s.GetSender().Clear()

	processed, err := s.service.ProcessBillingCycle(s.GetContext(), cycleID, s.testData.anchor)
	s.NoError(err)

	cycle := processed.BillingCycle
	s.Equal(types.BillingCycleStateBilled, cycle.State)
	s.NotEmpty(cycle.InvoiceRef)
	s.NotNil(cycle.ProcessedAt)
	s.Equal(1, s.GetInvoicingGateway().InvoiceCount())
	s.Len(s.GetSender().SentFor(types.NotificationEventBillingInvoiced), 1)

	invoice, ok := s.GetInvoicingGateway().Invoice(cycle.InvoiceRef)
	s.True(ok)
	s.Equal(s.testData.subscription.ID, invoice.SubscriptionID)
	s.Len(invoice.Lines, 1)
	s.True(invoice.Lines[0].Amount.Equal(decimal.NewFromInt(72)), "line amount %s", invoice.Lines[0].Amount)
}

func (s *BillingCycleServiceSuite) TestProcessBillingCycleTwice() {
	resp, err := s.service.CreateBillingCycle(s.GetContext(), s.newCycleRequest())
	s.NoError(err)
	cycleID := resp.BillingCycle.ID

	first, err := s.service.ProcessBillingCycle(s.GetContext(), cycleID, s.testData.anchor)
	s.NoError(err)

	// A billed cycle never reprocesses; the invoiced numbers stay put
	_, err = s.service.ProcessBillingCycle(s.GetContext(), cycleID, s.testData.anchor)
	s.Error(err)
	s.True(ierr.IsInvalidState(err), "unexpected error class: %v", err)

	stored, err := s.GetStores().BillingCycleRepo.Get(s.GetContext(), cycleID)
	s.NoError(err)
	s.Equal(types.BillingCycleStateBilled, stored.State)
	s.Equal(first.BillingCycle.InvoiceRef, stored.InvoiceRef)
	s.True(stored.TotalAmount.Equal(first.BillingCycle.TotalAmount))
	s.Equal(1, s.GetInvoicingGateway().InvoiceCount())
}

func (s *BillingCycleServiceSuite) TestProcessBillingCycleGatewayFailure() {
	resp, err := s.service.CreateBillingCycle(s.GetContext(), s.newCycleRequest())
	s.NoError(err)
	cycleID := resp.BillingCycle.ID
	s.GetSender().Clear()

	s.GetInvoicingGateway().FailNext(1, true)

	_, err = s.service.ProcessBillingCycle(s.GetContext(), cycleID, s.testData.anchor)
	s.Error(err)
	s.True(ierr.IsTransient(err), "unexpected error class: %v", err)

	stored, err := s.GetStores().BillingCycleRepo.Get(s.GetContext(), cycleID)
	s.NoError(err)
	s.Equal(types.BillingCycleStateFailed, stored.State)
	s.Equal(1, stored.RetryCount)
	s.NotEmpty(stored.LastError)
	s.NotNil(stored.FailedAt)
	s.Len(s.GetSender().SentFor(types.NotificationEventBillingFailed), 1)
}

func (s *BillingCycleServiceSuite) TestRetryBillingCycle() {
	resp, err := s.service.CreateBillingCycle(s.GetContext(), s.newCycleRequest())
	s.NoError(err)
	cycleID := resp.BillingCycle.ID

	s.GetInvoicingGateway().FailNext(1, true)
	_, err = s.service.ProcessBillingCycle(s.GetContext(), cycleID, s.testData.anchor)
	s.Error(err)

	// The gateway recovered, the retry bills the cycle
	retried, err := s.service.RetryBillingCycle(s.GetContext(), cycleID, s.testData.anchor)
	s.NoError(err)
	s.Equal(types.BillingCycleStateBilled, retried.BillingCycle.State)
	s.Equal(1, retried.BillingCycle.RetryCount)
	s.Empty(retried.BillingCycle.LastError)
	s.NotEmpty(retried.BillingCycle.InvoiceRef)
}

func (s *BillingCycleServiceSuite) TestRetryBillingCycleExhausted() {
	resp, err := s.service.CreateBillingCycle(s.GetContext(), s.newCycleRequest())
	s.NoError(err)
	cycleID := resp.BillingCycle.ID

	// Three straight failures exhaust the attempt budget
	s.GetInvoicingGateway().FailNext(3, true)
	_, err = s.service.ProcessBillingCycle(s.GetContext(), cycleID, s.testData.anchor)
	s.Error(err)
	for i := 0; i < 2; i++ {
		_, err = s.service.RetryBillingCycle(s.GetContext(), cycleID, s.testData.anchor)
		s.Error(err)
	}

	stored, err := s.GetStores().BillingCycleRepo.Get(s.GetContext(), cycleID)
	s.NoError(err)
	s.Equal(types.BillingCycleStateFailed, stored.State)
	s.Equal(types.MaxBillingRetries, stored.RetryCount)
	s.False(stored.CanRetry())

	_, err = s.service.RetryBillingCycle(s.GetContext(), cycleID, s.testData.anchor)
	s.Error(err)
	s.True(ierr.IsValidation(err), "unexpected error class: %v", err)
}

func (s *BillingCycleServiceSuite) TestRetryBillingCycleNotFailed() {
	resp, err := s.service.CreateBillingCycle(s.GetContext(), s.newCycleRequest())
	s.NoError(err)

	_, err = s.service.RetryBillingCycle(s.GetContext(), resp.BillingCycle.ID, s.testData.anchor)
	s.Error(err)
	s.True(ierr.IsInvalidState(err), "unexpected error class: %v", err)
}

func (s *BillingCycleServiceSuite) TestMarkBillingCyclePaid() {
	resp, err := s.service.CreateBillingCycle(s.GetContext(), s.newCycleRequest())
	s.NoError(err)
	cycleID := resp.BillingCycle.ID

	_, err = s.service.ProcessBillingCycle(s.GetContext(), cycleID, s.testData.anchor)
	s.NoError(err)
	s.GetSender().Clear()

	paidAt := s.testData.anchor.AddDate(0, 0, 3)
	paid, err := s.service.MarkBillingCyclePaid(s.GetContext(), cycleID, &dto.MarkBillingCyclePaidRequest{
		PaymentRef: "pay_abc123",
		PaidAt:     &paidAt,
	})
	s.NoError(err)
	s.Equal(types.BillingCycleStatePaid, paid.BillingCycle.State)
	s.Equal("pay_abc123", paid.BillingCycle.PaymentRef)
	s.NotNil(paid.BillingCycle.PaidAt)
	s.True(paid.BillingCycle.PaidAt.Equal(paidAt))
	s.Len(s.GetSender().SentFor(types.NotificationEventBillingPaid), 1)

	// Redelivery of the same confirmation is a quiet no op
	again, err := s.service.MarkBillingCyclePaid(s.GetContext(), cycleID, &dto.MarkBillingCyclePaidRequest{
		PaymentRef: "pay_abc123",
	})
	s.NoError(err)
	s.True(again.BillingCycle.PaidAt.Equal(paidAt))
	s.Len(s.GetSender().SentFor(types.NotificationEventBillingPaid), 1)
}

func (s *BillingCycleServiceSuite) TestMarkBillingCyclePaidNotBilled() {
	resp, err := s.service.CreateBillingCycle(s.GetContext(), s.newCycleRequest())
	s.NoError(err)

	_, err = s.service.MarkBillingCyclePaid(s.GetContext(), resp.BillingCycle.ID, &dto.MarkBillingCyclePaidRequest{
		PaymentRef: "pay_early",
	})
	s.Error(err)
	s.True(ierr.IsInvalidState(err), "unexpected error class: %v", err)
}

func (s *BillingCycleServiceSuite) TestCancelBillingCycle() {
	resp, err := s.service.CreateBillingCycle(s.GetContext(), s.newCycleRequest())
	s.NoError(err)
	s.GetSender().Clear()

	cancelled, err := s.service.CancelBillingCycle(s.GetContext(), resp.BillingCycle.ID, &dto.CancelBillingCycleRequest{
		Reason: "duplicate signup",
	})
	s.NoError(err)
	s.Equal(types.BillingCycleStateCancelled, cancelled.BillingCycle.State)
	s.Len(s.GetSender().SentFor(types.NotificationEventBillingCancelled), 1)
}

func (s *BillingCycleServiceSuite) TestCancelBillingCycleVoidsInvoice() {
	resp, err := s.service.CreateBillingCycle(s.GetContext(), s.newCycleRequest())
	s.NoError(err)
	cycleID := resp.BillingCycle.ID

	processed, err := s.service.ProcessBillingCycle(s.GetContext(), cycleID, s.testData.anchor)
	s.NoError(err)
	invoiceRef := processed.BillingCycle.InvoiceRef

	// Push the billed cycle back to failed, the shape an operator sees when
	// the payment will never come and the invoice must be voided
	stored, err := s.GetStores().BillingCycleRepo.Get(s.GetContext(), cycleID)
	s.NoError(err)
	stored.State = types.BillingCycleStateFailed
	s.NoError(s.GetStores().BillingCycleRepo.Update(s.GetContext(), stored))

	cancelled, err := s.service.CancelBillingCycle(s.GetContext(), cycleID, &dto.CancelBillingCycleRequest{
		Reason: "written off",
	})
	s.NoError(err)
	s.Equal(types.BillingCycleStateCancelled, cancelled.BillingCycle.State)
	s.True(s.GetInvoicingGateway().Cancelled(invoiceRef))
}

func (s *BillingCycleServiceSuite) TestCancelBillingCycleBilled() {
	resp, err := s.service.CreateBillingCycle(s.GetContext(), s.newCycleRequest())
	s.NoError(err)

	_, err = s.service.ProcessBillingCycle(s.GetContext(), resp.BillingCycle.ID, s.testData.anchor)
	s.NoError(err)

	_, err = s.service.CancelBillingCycle(s.GetContext(), resp.BillingCycle.ID, nil)
	s.Error(err)
	s.True(ierr.IsInvalidState(err), "unexpected error class: %v", err)
}

func (s *BillingCycleServiceSuite) TestGetAmortizationSchedule() {
	resp, err := s.service.CreateBillingCycle(s.GetContext(), s.newCycleRequest())
	s.NoError(err)
	cycleID := resp.BillingCycle.ID

	// Recognized immediately, nothing to amortize
	schedule, err := s.service.GetAmortizationSchedule(s.GetContext(), cycleID)
	s.NoError(err)
	s.True(schedule.DeferredRevenue.IsZero())
	s.Empty(schedule.Entries)

	// Reprice under a deferred policy and the year spreads over 12 months
	s.testData.product.RevenueRecognition = types.RevenueRecognitionDeferred
	s.NoError(s.GetStores().ProductRepo.Update(s.GetContext(), s.testData.product))
	_, err = s.service.CalculateAmounts(s.GetContext(), cycleID, true)
	s.NoError(err)

	schedule, err = s.service.GetAmortizationSchedule(s.GetContext(), cycleID)
	s.NoError(err)
	s.True(schedule.DeferredRevenue.Equal(decimal.NewFromInt(72)), "deferred %s", schedule.DeferredRevenue)
	s.Len(schedule.Entries, 12)

	// The monthly slices add back up to the deferred total, remainder and all
	sum := decimal.Zero
	for _, entry := range schedule.Entries {
		sum = sum.Add(entry.Amount)
	}
	s.True(sum.Equal(schedule.DeferredRevenue), "sum %s deferred %s", sum, schedule.DeferredRevenue)
}

func (s *BillingCycleServiceSuite) TestProcessScheduledBillings() {
	// Two due cycles on separate subscriptions and one far in the future
	subTwo := s.seedSubscription(s.testData.subscriber.ID, s.testData.anchor)

	first, err := s.service.CreateBillingCycle(s.GetContext(), s.newCycleRequest())
	s.NoError(err)
	second, err := s.service.CreateBillingCycle(s.GetContext(), &dto.CreateBillingCycleRequest{
		SubscriptionID: subTwo.ID,
		BillingType:    types.BillingTypeInitial,
		BillingDate:    s.testData.anchor,
		PeriodStart:    s.testData.anchor,
		PeriodEnd:      s.testData.anchor.AddDate(1, 0, 0).AddDate(0, 0, -1),
	})
	s.NoError(err)
	future, err := s.service.CreateBillingCycle(s.GetContext(), &dto.CreateBillingCycleRequest{
		SubscriptionID: s.testData.subscription.ID,
		BillingType:    types.BillingTypeRecurring,
		BillingDate:    s.testData.anchor.AddDate(1, 0, 0),
		PeriodStart:    s.testData.anchor.AddDate(1, 0, 0),
		PeriodEnd:      s.testData.anchor.AddDate(2, 0, 0).AddDate(0, 0, -1),
	})
	s.NoError(err)

	run, err := s.service.ProcessScheduledBillings(s.GetContext(), s.testData.anchor)
	s.NoError(err)
	s.Equal(2, run.Processed)
	s.Equal(2, run.Succeeded)
	s.Equal(0, run.Failed)
	s.Equal(0, run.Retried)

	for _, id := range []string{first.BillingCycle.ID, second.BillingCycle.ID} {
		stored, err := s.GetStores().BillingCycleRepo.Get(s.GetContext(), id)
		s.NoError(err)
		s.Equal(types.BillingCycleStateBilled, stored.State)
	}
	stored, err := s.GetStores().BillingCycleRepo.Get(s.GetContext(), future.BillingCycle.ID)
	s.NoError(err)
	s.Equal(types.BillingCycleStateScheduled, stored.State)

	// Everything due is billed, so the next sweep has nothing to do
	again, err := s.service.ProcessScheduledBillings(s.GetContext(), s.testData.anchor)
	s.NoError(err)
	s.Equal(0, again.Processed)
}

func (s *BillingCycleServiceSuite) TestProcessScheduledBillingsRetriesFailures() {
	resp, err := s.service.CreateBillingCycle(s.GetContext(), s.newCycleRequest())
	s.NoError(err)
	cycleID := resp.BillingCycle.ID

	s.GetInvoicingGateway().FailNext(1, true)
	run, err := s.service.ProcessScheduledBillings(s.GetContext(), s.testData.anchor)
	s.NoError(err)
	s.Equal(1, run.Failed)

	// The failure is picked up by the retry pass of the next sweep
	run, err = s.service.ProcessScheduledBillings(s.GetContext(), s.testData.anchor)
	s.NoError(err)
	s.Equal(1, run.Retried)
	s.Equal(1, run.Succeeded)

	stored, err := s.GetStores().BillingCycleRepo.Get(s.GetContext(), cycleID)
	s.NoError(err)
	s.Equal(types.BillingCycleStateBilled, stored.State)
}

func (s *BillingCycleServiceSuite) TestProcessScheduledBillingsContinuesPastFailures() {
	subTwo := s.seedSubscription(s.testData.subscriber.ID, s.testData.anchor)

	_, err := s.service.CreateBillingCycle(s.GetContext(), s.newCycleRequest())
	s.NoError(err)
	_, err = s.service.CreateBillingCycle(s.GetContext(), &dto.CreateBillingCycleRequest{
		SubscriptionID: subTwo.ID,
		BillingType:    types.BillingTypeInitial,
		BillingDate:    s.testData.anchor,
		PeriodStart:    s.testData.anchor,
		PeriodEnd:      s.testData.anchor.AddDate(1, 0, 0).AddDate(0, 0, -1),
	})
	s.NoError(err)

	// One record fails, the sweep still finishes the other
	s.GetInvoicingGateway().FailNext(1, true)
	run, err := s.service.ProcessScheduledBillings(s.GetContext(), s.testData.anchor)
	s.NoError(err)
	s.Equal(2, run.Processed)
	s.Equal(1, run.Succeeded)
	s.Equal(1, run.Failed)
}

func (s *BillingCycleServiceSuite) TestNotificationFailureDoesNotFailProcessing() {
	resp, err := s.service.CreateBillingCycle(s.GetContext(), s.newCycleRequest())
	s.NoError(err)

	s.GetSender().FailAll(true)
	defer s.GetSender().FailAll(false)

	processed, err := s.service.ProcessBillingCycle(s.GetContext(), resp.BillingCycle.ID, s.testData.anchor)
	s.NoError(err)
	s.Equal(types.BillingCycleStateBilled, processed.BillingCycle.State)
}

func (s *BillingCycleServiceSuite) TestListBillingCycles() {
	_, err := s.service.CreateBillingCycle(s.GetContext(), s.newCycleRequest())
	s.NoError(err)

	subTwo := s.seedSubscription(s.testData.subscriber.ID, s.testData.anchor)
	resp, err := s.service.CreateBillingCycle(s.GetContext(), &dto.CreateBillingCycleRequest{
		SubscriptionID: subTwo.ID,
		BillingType:    types.BillingTypeInitial,
		BillingDate:    s.testData.anchor,
		PeriodStart:    s.testData.anchor,
		PeriodEnd:      s.testData.anchor.AddDate(1, 0, 0).AddDate(0, 0, -1),
	})
	s.NoError(err)
	_, err = s.service.ProcessBillingCycle(s.GetContext(), resp.BillingCycle.ID, s.testData.anchor)
	s.NoError(err)

	all, err := s.service.ListBillingCycles(s.GetContext(), nil)
	s.NoError(err)
	s.Equal(2, all.Pagination.Total)

	filter := types.NewBillingCycleFilter()
	filter.States = []types.BillingCycleState{types.BillingCycleStateBilled}
	billed, err := s.service.ListBillingCycles(s.GetContext(), filter)
	s.NoError(err)
	s.Equal(1, billed.Pagination.Total)
	s.Equal(resp.BillingCycle.ID, billed.Items[0].ID)

	bySubscription := types.NewBillingCycleFilter()
	bySubscription.SubscriptionIDs = []string{subTwo.ID}
	scoped, err := s.service.ListBillingCycles(s.GetContext(), bySubscription)
	s.NoError(err)
	s.Equal(1, scoped.Pagination.Total)
}

func (s *BillingCycleServiceSuite) TestGetBillingCycleNotFound() {
	_, err := s.service.GetBillingCycle(s.GetContext(), "bc_missing")
	s.Error(err)
	s.True(ierr.IsNotFound(err), "unexpected error class: %v", err)
}
