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
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type RenewalServiceSuite struct {
	testutil.BaseServiceTestSuite
	service  RenewalService
	testData struct {
		subscriber   *subscriber.Subscriber
		product      *product.Product
		subscription *subscription.Subscription
		anchor       time.Time
		periodEnd    time.Time
		dueDate      time.Time
	}
}

func TestRenewalService(t *testing.T) {
	suite.Run(t, new(RenewalServiceSuite))
}

func (s *RenewalServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.ClearStores()
	s.setupService()
	s.setupTestData()
}

func (s *RenewalServiceSuite) TearDownTest() {
	s.BaseServiceTestSuite.TearDownTest()
	s.BaseServiceTestSuite.ClearStores()
}

func (s *RenewalServiceSuite) serviceParams() ServiceParams {
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

func (s *RenewalServiceSuite) setupService() {
	s.service = NewRenewalService(s.serviceParams())
}

func (s *RenewalServiceSuite) setupTestData() {
	s.testData.anchor = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.testData.periodEnd = time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	s.testData.dueDate = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s.testData.subscriber = &subscriber.Subscriber{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIBER),
		ExternalID:       "ext_mem_789",
		Name:             "Iris Kane",
		Email:            "iris@example.com",
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

	s.testData.subscription = s.seedSubscription(s.testData.product.ID, decimal.NewFromInt(72))
}

// seedSubscription stores an active annual subscription covering 2025 with
// renewal due on New Year's Day 2026
func (s *RenewalServiceSuite) seedSubscription(productID string, currentPrice decimal.Decimal) *subscription.Subscription {
	sub := &subscription.Subscription{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		SubscriberID:       s.testData.subscriber.ID,
		ProductID:          productID,
		State:              types.SubscriptionStateActive,
		Quantity:           decimal.NewFromInt(1),
		CurrentPrice:       currentPrice,
		Currency:           "usd",
		BillingPeriod:      types.BILLING_PERIOD_ANNUAL,
		BillingPeriodCount: 1,
		StartDate:          s.testData.anchor,
		CurrentPeriodStart: s.testData.anchor,
		EndDate:            s.testData.dueDate,
		NextBillingDate:    s.testData.dueDate,
		AutoRenew:          true,
		EnvironmentID:      types.GetEnvironmentID(s.GetContext()),
		BaseModel:          types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().SubscriptionRepo.Create(s.GetContext(), sub))
	return sub
}

// openRenewal creates the renewal closing out 2025 for the given subscription
func (s *RenewalServiceSuite) openRenewal(subscriptionID string) *dto.RenewalResponse {
	resp, err := s.service.CreateRenewal(s.GetContext(), &dto.CreateRenewalRequest{
		SubscriptionID:   subscriptionID,
		CurrentPeriodEnd: s.testData.periodEnd,
	})
	s.NoError(err)
	return resp
}

func (s *RenewalServiceSuite) TestCreateRenewal() {
	resp := s.openRenewal(s.testData.subscription.ID)

	s.Equal(types.RenewalStatePending, resp.State)
	s.NotEmpty(resp.ShortID)
	s.True(resp.DueDate.Equal(s.testData.dueDate), "due %s", resp.DueDate)
	s.True(resp.GracePeriodEnd.Equal(s.testData.dueDate.AddDate(0, 0, 14)), "grace end %s", resp.GracePeriodEnd)
	s.True(resp.NextRenewalDue.Equal(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)), "next due %s", resp.NextRenewalDue)
	s.Equal(0, resp.RenewalCount)
	s.Empty(resp.PreviousRenewalID)

	// Quoted at member rates, same as the ending period
	s.True(resp.CurrentPrice.Equal(decimal.NewFromInt(72)), "current %s", resp.CurrentPrice)
	s.True(resp.RenewalPrice.Equal(decimal.NewFromInt(72)), "renewal %s", resp.RenewalPrice)
	s.False(resp.HasPriceIncrease())
	s.False(resp.PriceIncreaseWarning)

	// The first reminder on 30,15,7 is thirty days out
	s.NotNil(resp.NextReminderAt)
	s.True(resp.NextReminderAt.Equal(s.testData.dueDate.AddDate(0, 0, -30)), "next reminder %s", resp.NextReminderAt)
}

func (s *RenewalServiceSuite) TestCreateRenewalPriceIncrease() {
	// The stored price no longer exists on the product: the renewal quote
	// comes to 120 against the 100 paid today
	legacyProduct := &product.Product{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PRODUCT),
		LookupKey:          "annual-membership-2019",
		Name:               "Annual Membership 2019",
		ProductType:        types.ProductTypeRecurring,
		ListPrice:          decimal.NewFromInt(150),
		MemberPrice:        decimal.NewFromInt(120),
		Currency:           "usd",
		BillingPeriod:      types.BILLING_PERIOD_ANNUAL,
		BillingPeriodCount: 1,
		RevenueRecognition: types.RevenueRecognitionImmediate,
		EnvironmentID:      types.GetEnvironmentID(s.GetContext()),
		BaseModel:          types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().ProductRepo.Create(s.GetContext(), legacyProduct))
	sub := s.seedSubscription(legacyProduct.ID, decimal.NewFromInt(100))

	resp := s.openRenewal(sub.ID)

	s.True(resp.CurrentPrice.Equal(decimal.NewFromInt(100)))
	s.True(resp.RenewalPrice.Equal(decimal.NewFromInt(120)), "renewal %s", resp.RenewalPrice)
	s.True(resp.PriceIncreaseAmount.Equal(decimal.NewFromInt(20)), "increase %s", resp.PriceIncreaseAmount)
	s.True(resp.PriceIncreasePct.Equal(decimal.NewFromInt(20)), "pct %s", resp.PriceIncreasePct)
	s.True(resp.PriceIncreaseWarning)
	s.True(resp.HasPriceIncrease())
}

func (s *RenewalServiceSuite) TestCreateRenewalGuards() {
	s.openRenewal(s.testData.subscription.ID)

	// One open renewal per subscription
	_, err := s.service.CreateRenewal(s.GetContext(), &dto.CreateRenewalRequest{
		SubscriptionID:   s.testData.subscription.ID,
		CurrentPeriodEnd: s.testData.periodEnd,
	})
	s.Error(err)
	s.True(ierr.IsAlreadyExists(err), "unexpected error class: %v", err)

	// Due date cannot precede the period it closes
	_, err = s.service.CreateRenewal(s.GetContext(), &dto.CreateRenewalRequest{
		SubscriptionID:   s.testData.subscription.ID,
		CurrentPeriodEnd: s.testData.periodEnd,
		DueDate:          lo.ToPtr(s.testData.periodEnd.AddDate(0, 0, -10)),
	})
	s.Error(err)
	s.True(ierr.IsValidation(err), "unexpected error class: %v", err)

	// Suspended subscriptions do not open renewals
	suspended := s.seedSubscription(s.testData.product.ID, decimal.NewFromInt(72))
	suspended.State = types.SubscriptionStateSuspended
	s.NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), suspended))
	_, err = s.service.CreateRenewal(s.GetContext(), &dto.CreateRenewalRequest{
		SubscriptionID:   suspended.ID,
		CurrentPeriodEnd: s.testData.periodEnd,
	})
	s.Error(err)
	s.True(ierr.IsInvalidState(err), "unexpected error class: %v", err)
}

func (s *RenewalServiceSuite) TestProcessRenewal() {
	created := s.openRenewal(s.testData.subscription.ID)
	s.GetSender().Clear()

	resp, err := s.service.ProcessRenewal(s.GetContext(), created.ID, nil, s.testData.dueDate)
	s.NoError(err)

	// The renewal closed out against a real billing cycle
	s.Equal(types.RenewalStateRenewed, resp.State)
	s.Equal(types.RenewalProcessMethodManual, resp.ProcessMethod)
	s.NotNil(resp.ProcessedAt)
	s.NotEmpty(resp.BillingCycleID)
	s.True(resp.RenewalPrice.Equal(decimal.NewFromInt(72)), "renewal price %s", resp.RenewalPrice)

	// The recurring cycle for 2026 is scheduled, priced, not yet billed
	cycle, err := s.GetStores().BillingCycleRepo.Get(s.GetContext(), resp.BillingCycleID)
	s.NoError(err)
	s.Equal(types.BillingCycleStateScheduled, cycle.State)
	s.Equal(types.BillingTypeRecurring, cycle.BillingType)
	s.True(cycle.PeriodStart.Equal(s.testData.dueDate))
	s.True(cycle.PeriodEnd.Equal(time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)))
	s.True(cycle.TotalAmount.Equal(decimal.NewFromInt(72)))
	s.Equal(0, s.GetInvoicingGateway().InvoiceCount())

	// Coverage extended one period
	sub, err := s.GetStores().SubscriptionRepo.Get(s.GetContext(), s.testData.subscription.ID)
	s.NoError(err)
	s.True(sub.CurrentPeriodStart.Equal(s.testData.dueDate))
	s.True(sub.EndDate.Equal(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)), "end %s", sub.EndDate)
	s.True(sub.NextBillingDate.Equal(sub.EndDate))

	// Exactly one successor, chained onto this renewal
	successor, err := s.GetStores().RenewalRepo.GetOpenBySubscription(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(types.RenewalStatePending, successor.State)
	s.Equal(created.ID, successor.PreviousRenewalID)
	s.Equal(1, successor.RenewalCount)
	s.True(successor.CurrentPeriodEnd.Equal(time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)))
	s.True(successor.DueDate.Equal(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)))

	all, err := s.GetStores().RenewalRepo.List(s.GetContext(), &types.RenewalFilter{
		QueryFilter:     types.NewNoLimitQueryFilter(),
		SubscriptionIDs: []string{sub.ID},
	})
	s.NoError(err)
	s.Len(all, 2)

	s.Len(s.GetSender().SentFor(types.NotificationEventRenewalRenewed), 1)
}

func (s *RenewalServiceSuite) TestProcessRenewalChains() {
	first := s.openRenewal(s.testData.subscription.ID)

	_, err := s.service.ProcessRenewal(s.GetContext(), first.ID, nil, s.testData.dueDate)
	s.NoError(err)

	second, err := s.GetStores().RenewalRepo.GetOpenBySubscription(s.GetContext(), s.testData.subscription.ID)
	s.NoError(err)

	_, err = s.service.ProcessRenewal(s.GetContext(), second.ID, nil, second.DueDate)
	s.NoError(err)

	third, err := s.GetStores().RenewalRepo.GetOpenBySubscription(s.GetContext(), s.testData.subscription.ID)
	s.NoError(err)
	s.Equal(2, third.RenewalCount)
	s.Equal(second.ID, third.PreviousRenewalID)

	// Two completed renewals pushed coverage out two periods
	sub, err := s.GetStores().SubscriptionRepo.Get(s.GetContext(), s.testData.subscription.ID)
	s.NoError(err)
	s.True(sub.EndDate.Equal(time.Date(2028, 1, 1, 0, 0, 0, 0, time.UTC)), "end %s", sub.EndDate)
}

func (s *RenewalServiceSuite) TestProcessRenewalFailureRevertsToPending() {
	created := s.openRenewal(s.testData.subscription.ID)

	// A zero quantity makes the repricing inside processing fail
	sub, err := s.GetStores().SubscriptionRepo.Get(s.GetContext(), s.testData.subscription.ID)
	s.NoError(err)
	sub.Quantity = decimal.Zero
	s.NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), sub))

	_, err = s.service.ProcessRenewal(s.GetContext(), created.ID, nil, s.testData.dueDate)
	s.Error(err)

	stored, err := s.GetStores().RenewalRepo.Get(s.GetContext(), created.ID)
	s.NoError(err)
	s.Equal(types.RenewalStatePending, stored.State)
	s.NotEmpty(stored.LastError)
	s.Empty(stored.BillingCycleID)

	// Nothing else moved: no successor, no cycle, coverage as before
	all, err := s.GetStores().RenewalRepo.List(s.GetContext(), &types.RenewalFilter{
		QueryFilter:     types.NewNoLimitQueryFilter(),
		SubscriptionIDs: []string{s.testData.subscription.ID},
	})
	s.NoError(err)
	s.Len(all, 1)
	cycles, err := s.GetStores().BillingCycleRepo.ListBySubscription(s.GetContext(), s.testData.subscription.ID)
	s.NoError(err)
	s.Empty(cycles)

	unchanged, err := s.GetStores().SubscriptionRepo.Get(s.GetContext(), s.testData.subscription.ID)
	s.NoError(err)
	s.True(unchanged.EndDate.Equal(s.testData.dueDate))
}

func (s *RenewalServiceSuite) TestProcessRenewalGuards() {
	created := s.openRenewal(s.testData.subscription.ID)

	// Closed renewals never process again
	_, err := s.service.CancelRenewal(s.GetContext(), created.ID, &dto.CancelRenewalRequest{Reason: "member asked"})
	s.NoError(err)
	_, err = s.service.ProcessRenewal(s.GetContext(), created.ID, nil, s.testData.dueDate)
	s.Error(err)
	s.True(ierr.IsInvalidState(err), "unexpected error class: %v", err)

	// Suspended subscriptions cannot renew
	other := s.seedSubscription(s.testData.product.ID, decimal.NewFromInt(72))
	pending := s.openRenewal(other.ID)
	other.State = types.SubscriptionStateSuspended
	s.NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), other))
	_, err = s.service.ProcessRenewal(s.GetContext(), pending.ID, nil, s.testData.dueDate)
	s.Error(err)
	s.True(ierr.IsInvalidState(err), "unexpected error class: %v", err)
}

func (s *RenewalServiceSuite) TestCancelRenewal() {
	created := s.openRenewal(s.testData.subscription.ID)
	s.GetSender().Clear()

	resp, err := s.service.CancelRenewal(s.GetContext(), created.ID, &dto.CancelRenewalRequest{Reason: "not returning"})
	s.NoError(err)
	s.Equal(types.RenewalStateCancelled, resp.State)
	s.Len(s.GetSender().SentFor(types.NotificationEventRenewalCancelled), 1)

	_, err = s.service.CancelRenewal(s.GetContext(), created.ID, nil)
	s.Error(err)
	s.True(ierr.IsInvalidState(err), "unexpected error class: %v", err)
}

func (s *RenewalServiceSuite) TestSendReminderFollowsSchedule() {
	created := s.openRenewal(s.testData.subscription.ID)
	s.GetSender().Clear()

	// Thirty days out
	asOf := s.testData.dueDate.AddDate(0, 0, -30)
	resp, err := s.service.SendReminder(s.GetContext(), created.ID, asOf)
	s.NoError(err)
	s.Equal(types.RenewalStateReminded, resp.State)
	s.Equal(1, resp.ReminderCount)
	s.True(resp.LastReminderAt.Equal(asOf))
	s.True(resp.NextReminderAt.Equal(s.testData.dueDate.AddDate(0, 0, -15)), "next %s", resp.NextReminderAt)

	// The same offset never fires twice
	_, err = s.service.SendReminder(s.GetContext(), created.ID, asOf)
	s.Error(err)
	s.True(ierr.IsValidation(err), "unexpected error class: %v", err)
	s.Len(s.GetSender().SentFor(types.NotificationEventRenewalReminder), 1)

	// Fifteen, then seven, then the schedule is spent
	resp, err = s.service.SendReminder(s.GetContext(), created.ID, s.testData.dueDate.AddDate(0, 0, -15))
	s.NoError(err)
	s.Equal(2, resp.ReminderCount)
	s.True(resp.NextReminderAt.Equal(s.testData.dueDate.AddDate(0, 0, -7)))

	resp, err = s.service.SendReminder(s.GetContext(), created.ID, s.testData.dueDate.AddDate(0, 0, -7))
	s.NoError(err)
	s.Equal(3, resp.ReminderCount)
	s.Nil(resp.NextReminderAt)

	_, err = s.service.SendReminder(s.GetContext(), created.ID, s.testData.dueDate.AddDate(0, 0, -1))
	s.Error(err)
	s.True(ierr.IsValidation(err), "unexpected error class: %v", err)
	s.Len(s.GetSender().SentFor(types.NotificationEventRenewalReminder), 3)
}

func (s *RenewalServiceSuite) TestSendReminderCatchesUpOnce() {
	created := s.openRenewal(s.testData.subscription.ID)
	s.GetSender().Clear()

	// Ten days out both the 30 and 15 day reminders were missed; catching up
	// sends one reminder, not the backlog
	asOf := s.testData.dueDate.AddDate(0, 0, -10)
	resp, err := s.service.SendReminder(s.GetContext(), created.ID, asOf)
	s.NoError(err)
	s.Equal(1, resp.ReminderCount)

	_, err = s.service.SendReminder(s.GetContext(), created.ID, asOf)
	s.Error(err)
	s.Len(s.GetSender().SentFor(types.NotificationEventRenewalReminder), 1)

	// The seven day reminder still fires on its own date
	resp, err = s.service.SendReminder(s.GetContext(), created.ID, s.testData.dueDate.AddDate(0, 0, -7))
	s.NoError(err)
	s.Equal(2, resp.ReminderCount)
}

func (s *RenewalServiceSuite) TestSendScheduledReminders() {
	first := s.openRenewal(s.testData.subscription.ID)

	// A second renewal whose subscription got suspended after opening
	suspended := s.seedSubscription(s.testData.product.ID, decimal.NewFromInt(72))
	s.openRenewal(suspended.ID)
	suspended.State = types.SubscriptionStateSuspended
	s.NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), suspended))

	s.GetSender().Clear()

	asOf := s.testData.dueDate.AddDate(0, 0, -30)
	run, err := s.service.SendScheduledReminders(s.GetContext(), asOf)
	s.NoError(err)
	s.Equal(1, run.Sent)
	s.Equal(1, run.Skipped)
	s.Equal(0, run.Failed)

	stored, err := s.GetStores().RenewalRepo.Get(s.GetContext(), first.ID)
	s.NoError(err)
	s.Equal(types.RenewalStateReminded, stored.State)
	s.Equal(1, stored.ReminderCount)

	// Nothing more is due at the same instant
	run, err = s.service.SendScheduledReminders(s.GetContext(), asOf)
	s.NoError(err)
	s.Equal(0, run.Sent)
	s.Len(s.GetSender().SentFor(types.NotificationEventRenewalReminder), 1)
}

func (s *RenewalServiceSuite) TestUpdateOverdueRenewals() {
	created := s.openRenewal(s.testData.subscription.ID)
	s.GetSender().Clear()

	// One day past due, inside the fourteen day grace window
	dayAfterDue := s.testData.dueDate.AddDate(0, 0, 1)
	run, err := s.service.UpdateOverdueRenewals(s.GetContext(), dayAfterDue)
	s.NoError(err)
	s.Equal(1, run.MovedToGrace)
	s.Equal(0, run.Expired)

	stored, err := s.GetStores().RenewalRepo.Get(s.GetContext(), created.ID)
	s.NoError(err)
	s.Equal(types.RenewalStateGracePeriod, stored.State)
	s.Len(s.GetSender().SentFor(types.NotificationEventRenewalGrace), 1)

	// Running the sweep again without time passing changes nothing
	run, err = s.service.UpdateOverdueRenewals(s.GetContext(), dayAfterDue)
	s.NoError(err)
	s.Equal(0, run.MovedToGrace)
	s.Equal(0, run.Expired)
	s.Equal(1, run.Unchanged)
	s.Len(s.GetSender().SentFor(types.NotificationEventRenewalGrace), 1)

	// Once the grace window elapses the renewal expires and the
	// subscription is suspended with it
	pastGrace := stored.GracePeriodEnd.AddDate(0, 0, 1)
	run, err = s.service.UpdateOverdueRenewals(s.GetContext(), pastGrace)
	s.NoError(err)
	s.Equal(1, run.Expired)

	stored, err = s.GetStores().RenewalRepo.Get(s.GetContext(), created.ID)
	s.NoError(err)
	s.Equal(types.RenewalStateExpired, stored.State)
	s.Len(s.GetSender().SentFor(types.NotificationEventRenewalExpired), 1)

	sub, err := s.GetStores().SubscriptionRepo.Get(s.GetContext(), s.testData.subscription.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStateSuspended, sub.State)

	// Expired renewals drop out of the sweep entirely
	run, err = s.service.UpdateOverdueRenewals(s.GetContext(), pastGrace.AddDate(0, 0, 7))
	s.NoError(err)
	s.Equal(0, run.MovedToGrace+run.Expired+run.Unchanged)
}

func (s *RenewalServiceSuite) TestUpdateOverdueRenewalsZeroGrace() {
	// Grace disabled on the subscription: past due goes straight to expired
	sub := s.seedSubscription(s.testData.product.ID, decimal.NewFromInt(72))
	sub.GracePeriodDays = lo.ToPtr(0)
	s.NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), sub))
	created := s.openRenewal(sub.ID)

	run, err := s.service.UpdateOverdueRenewals(s.GetContext(), s.testData.dueDate.AddDate(0, 0, 1))
	s.NoError(err)
	s.Equal(0, run.MovedToGrace)
	s.Equal(1, run.Expired)

	stored, err := s.GetStores().RenewalRepo.Get(s.GetContext(), created.ID)
	s.NoError(err)
	s.Equal(types.RenewalStateExpired, stored.State)
}

func (s *RenewalServiceSuite) TestProcessAutomaticRenewals() {
	first := s.openRenewal(s.testData.subscription.ID)

	manualSub := s.seedSubscription(s.testData.product.ID, decimal.NewFromInt(72))
	manualSub.AutoRenew = false
	s.NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), manualSub))
	manualRenewal := s.openRenewal(manualSub.ID)

	run, err := s.service.ProcessAutomaticRenewals(s.GetContext(), s.testData.dueDate)
	s.NoError(err)
	s.Equal(1, run.Processed)
	s.Equal(1, run.Succeeded)
	s.Equal(0, run.Failed)

	renewed, err := s.GetStores().RenewalRepo.Get(s.GetContext(), first.ID)
	s.NoError(err)
	s.Equal(types.RenewalStateRenewed, renewed.State)
	s.Equal(types.RenewalProcessMethodAutomatic, renewed.ProcessMethod)

	// The opted out subscription is left for its member to renew
	untouched, err := s.GetStores().RenewalRepo.Get(s.GetContext(), manualRenewal.ID)
	s.NoError(err)
	s.Equal(types.RenewalStatePending, untouched.State)

	// The freshly chained successors are not due for another year
	run, err = s.service.ProcessAutomaticRenewals(s.GetContext(), s.testData.dueDate)
	s.NoError(err)
	s.Equal(0, run.Processed)
}

func (s *RenewalServiceSuite) TestProcessAutomaticRenewalsBeforeDue() {
	s.openRenewal(s.testData.subscription.ID)

	run, err := s.service.ProcessAutomaticRenewals(s.GetContext(), s.testData.dueDate.AddDate(0, 0, -5))
	s.NoError(err)
	s.Equal(0, run.Processed)
}

func (s *RenewalServiceSuite) TestListRenewals() {
	first := s.openRenewal(s.testData.subscription.ID)
	_, err := s.service.ProcessRenewal(s.GetContext(), first.ID, nil, s.testData.dueDate)
	s.NoError(err)

	all, err := s.service.ListRenewals(s.GetContext(), nil)
	s.NoError(err)
	s.Equal(2, all.Pagination.Total)

	filter := types.NewRenewalFilter()
	filter.States = []types.RenewalState{types.RenewalStateRenewed}
	renewed, err := s.service.ListRenewals(s.GetContext(), filter)
	s.NoError(err)
	s.Equal(1, renewed.Pagination.Total)
	s.Equal(first.ID, renewed.Items[0].ID)

	chained := types.NewRenewalFilter()
	chained.PreviousRenewalIDs = []string{first.ID}
	successors, err := s.service.ListRenewals(s.GetContext(), chained)
	s.NoError(err)
	s.Equal(1, successors.Pagination.Total)
	s.Equal(1, successors.Items[0].RenewalCount)
}

func (s *RenewalServiceSuite) TestGetRenewalNotFound() {
	_, err := s.service.GetRenewal(s.GetContext(), "ren_missing")
	s.Error(err)
	s.True(ierr.IsNotFound(err), "unexpected error class: %v", err)
}
