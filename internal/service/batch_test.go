package service

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/memberbill/memberbill/internal/api/dto"
	"github.com/memberbill/memberbill/internal/domain/billingcycle"
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

type BatchServiceSuite struct {
	testutil.BaseServiceTestSuite
	service  BatchService
	testData struct {
		member    *subscriber.Subscriber
		guest     *subscriber.Subscriber
		annual    *product.Product
		monthly   *product.Product
		anchor    time.Time
		memberSub string
		guestSub  string
		digestSub string
	}
}

func TestBatchService(t *testing.T) {
	suite.Run(t, new(BatchServiceSuite))
}

func (s *BatchServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.ClearStores()
	s.setupService()
	s.setupTestData()
}

func (s *BatchServiceSuite) TearDownTest() {
	s.BaseServiceTestSuite.TearDownTest()
	s.BaseServiceTestSuite.ClearStores()
}

func (s *BatchServiceSuite) serviceParams() ServiceParams {
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

func (s *BatchServiceSuite) setupService() {
	s.service = NewBatchService(s.serviceParams())
}

// setupTestData seeds three subscriptions with distinct invoice amounts: a
// member on the annual plan (72), a non member on the annual plan (100) and
// the same member on the monthly digest (12). Each brings one scheduled
// initial cycle and one open renewal.
func (s *BatchServiceSuite) setupTestData() {
	s.testData.anchor = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	s.testData.member = &subscriber.Subscriber{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIBER),
		ExternalID:       "ext_mem_201",
		Name:             "Ana Flores",
		Email:            "ana@example.com",
		IsMember:         true,
		MembershipStatus: types.MembershipStatusActive,
		Currency:         "usd",
		EnvironmentID:    types.GetEnvironmentID(s.GetContext()),
		BaseModel:        types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().SubscriberRepo.Create(s.GetContext(), s.testData.member))

	s.testData.guest = &subscriber.Subscriber{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIBER),
		ExternalID:       "ext_mem_202",
		Name:             "Bo Lindqvist",
		Email:            "bo@example.com",
		IsMember:         false,
		MembershipStatus: types.MembershipStatusNone,
		Currency:         "usd",
		EnvironmentID:    types.GetEnvironmentID(s.GetContext()),
		BaseModel:        types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().SubscriberRepo.Create(s.GetContext(), s.testData.guest))

	s.testData.annual = &product.Product{
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
	s.NoError(s.GetStores().ProductRepo.Create(s.GetContext(), s.testData.annual))

	s.testData.monthly = &product.Product{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PRODUCT),
		LookupKey:          "monthly-digest",
		Name:               "Monthly Digest",
		ProductType:        types.ProductTypeRecurring,
		Category:           "newsletter",
		ListPrice:          decimal.NewFromInt(15),
		MemberPrice:        decimal.NewFromInt(12),
		Currency:           "usd",
		BillingPeriod:      types.BILLING_PERIOD_MONTHLY,
		BillingPeriodCount: 1,
		RevenueRecognition: types.RevenueRecognitionImmediate,
		GracePeriodDays:    7,
		AutoRenew:          true,
		ReminderSchedule:   "7,3",
		EnvironmentID:      types.GetEnvironmentID(s.GetContext()),
		BaseModel:          types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().ProductRepo.Create(s.GetContext(), s.testData.monthly))

	s.testData.memberSub = s.createSubscription(s.testData.member.ID, s.testData.annual.ID)
	s.testData.guestSub = s.createSubscription(s.testData.guest.ID, s.testData.annual.ID)
	s.testData.digestSub = s.createSubscription(s.testData.member.ID, s.testData.monthly.ID)

	s.GetSender().Clear()
}

func (s *BatchServiceSuite) createSubscription(subscriberID, productID string) string {
	resp, err := NewSubscriptionService(s.serviceParams()).CreateSubscription(s.GetContext(), &dto.CreateSubscriptionRequest{
		SubscriberID: subscriberID,
		ProductID:    productID,
		StartDate:    s.testData.anchor,
	})
	s.NoError(err)
	return resp.ID
}

func (s *BatchServiceSuite) cycleFor(subscriptionID string) *billingcycle.BillingCycle {
	cycles, err := s.GetStores().BillingCycleRepo.ListBySubscription(s.GetContext(), subscriptionID)
	s.NoError(err)
	s.Require().Len(cycles, 1)
	return cycles[0]
}

// failCycle drives a scheduled cycle into the failed state through a gateway
// rejection
func (s *BatchServiceSuite) failCycle(cycleID string, asOf time.Time) {
	s.GetInvoicingGateway().FailNext(1, true)
	_, err := NewBillingCycleService(s.serviceParams()).ProcessBillingCycle(s.GetContext(), cycleID, asOf)
	s.Error(err)
	s.GetSender().Clear()
}

func (s *BatchServiceSuite) TestPreviewBillingCycles() {
	preview, err := s.service.Preview(s.GetContext(), &dto.BatchRunRequest{
		TargetKind: types.BatchTargetBillingCycles,
	})
	s.NoError(err)

	s.Equal(types.BatchTargetBillingCycles, preview.TargetKind)
	s.Equal(3, preview.Count)
	s.True(preview.TotalAmount.Equal(decimal.NewFromInt(184)), "total %s", preview.TotalAmount)
	s.Equal("usd", preview.Currency)
	s.Equal(3, preview.ByState["scheduled"])
	s.Equal(2, preview.ByFrequency["annual"])
	s.Equal(1, preview.ByFrequency["monthly"])
	s.Equal(2, preview.ByAmountBand["0-100"])
	s.Equal(1, preview.ByAmountBand["100-500"])
	s.Len(preview.Rows, 3)
	s.Empty(preview.PriceIncreaseWarnings)

	// Previewing changes nothing
	s.Equal(types.BillingCycleStateScheduled, s.cycleFor(s.testData.memberSub).State)
	s.Equal(0, s.GetInvoicingGateway().InvoiceCount())
	s.Empty(s.GetSender().Sent())
}

func (s *BatchServiceSuite) TestPreviewFilters() {
	byGuest, err := s.service.Preview(s.GetContext(), &dto.BatchRunRequest{
		TargetKind:    types.BatchTargetBillingCycles,
		SubscriberIDs: []string{s.testData.guest.ID},
	})
	s.NoError(err)
	s.Equal(1, byGuest.Count)
	s.True(byGuest.TotalAmount.Equal(decimal.NewFromInt(100)), "total %s", byGuest.TotalAmount)

	byProduct, err := s.service.Preview(s.GetContext(), &dto.BatchRunRequest{
		TargetKind: types.BatchTargetBillingCycles,
		ProductIDs: []string{s.testData.monthly.ID},
	})
	s.NoError(err)
	s.Equal(1, byProduct.Count)
	s.True(byProduct.TotalAmount.Equal(decimal.NewFromInt(12)), "total %s", byProduct.TotalAmount)

	byCategory, err := s.service.Preview(s.GetContext(), &dto.BatchRunRequest{
		TargetKind: types.BatchTargetBillingCycles,
		Categories: []string{"membership"},
	})
	s.NoError(err)
	s.Equal(2, byCategory.Count)
	s.True(byCategory.TotalAmount.Equal(decimal.NewFromInt(172)), "total %s", byCategory.TotalAmount)
}

func (s *BatchServiceSuite) TestPreviewMatchesExecute() {
	req := &dto.BatchRunRequest{
		TargetKind: types.BatchTargetBillingCycles,
		AmountRange: &types.AmountRange{
			Min: lo.ToPtr(decimal.NewFromInt(50)),
			Max: lo.ToPtr(decimal.NewFromInt(150)),
		},
		AutoInvoice: true,
	}

	preview, err := s.service.Preview(s.GetContext(), req)
	s.NoError(err)
	s.Equal(2, preview.Count)
	s.True(preview.TotalAmount.Equal(decimal.NewFromInt(172)), "total %s", preview.TotalAmount)

	run, err := s.service.Execute(s.GetContext(), req, s.testData.anchor)
	s.NoError(err)
	s.Equal(preview.Count, run.Total)
	s.Equal(preview.Count, run.Succeeded)
	s.Equal(0, run.Failed)
	s.True(run.TotalAmount.Equal(preview.TotalAmount), "total %s", run.TotalAmount)

	// The digest cycle fell below the range and was left alone
	s.Equal(types.BillingCycleStateBilled, s.cycleFor(s.testData.memberSub).State)
	s.Equal(types.BillingCycleStateBilled, s.cycleFor(s.testData.guestSub).State)
	s.Equal(types.BillingCycleStateScheduled, s.cycleFor(s.testData.digestSub).State)
}

func (s *BatchServiceSuite) TestPreviewPriceIncreaseWarnings() {
	open, err := s.GetStores().RenewalRepo.GetOpenBySubscription(s.GetContext(), s.testData.guestSub)
	s.NoError(err)
	open.CurrentPrice = decimal.NewFromInt(80)
	open.PriceIncreaseAmount = decimal.NewFromInt(20)
	open.PriceIncreasePct = decimal.NewFromInt(25)
	open.PriceIncreaseWarning = true
	s.NoError(s.GetStores().RenewalRepo.Update(s.GetContext(), open))

	preview, err := s.service.Preview(s.GetContext(), &dto.BatchRunRequest{
		TargetKind: types.BatchTargetRenewals,
	})
	s.NoError(err)
	s.Equal(3, preview.Count)
	s.Require().Len(preview.PriceIncreaseWarnings, 1)

	alert := preview.PriceIncreaseWarnings[0]
	s.Equal(open.ID, alert.RecordID)
	s.Equal(s.testData.guestSub, alert.SubscriptionID)
	s.True(alert.CurrentPrice.Equal(decimal.NewFromInt(80)))
	s.True(alert.RenewalPrice.Equal(decimal.NewFromInt(100)))
	s.True(alert.PriceIncreasePct.Equal(decimal.NewFromInt(25)))
}

func (s *BatchServiceSuite) TestExportPreviewCSV() {
	var buf bytes.Buffer
	count, err := s.service.ExportPreviewCSV(s.GetContext(), &dto.BatchRunRequest{
		TargetKind: types.BatchTargetBillingCycles,
	}, &buf)
	s.NoError(err)
	s.Equal(3, count)

	out := buf.String()
	s.True(strings.HasPrefix(out, "Customer, Subscription, Product, Amount, Quantity, Billing Frequency, Next Billing Date, Subscription State\n"))
	s.Equal(4, strings.Count(out, "\n"))
	s.Contains(out, "Ana Flores")
	s.Contains(out, "Bo Lindqvist,")
	s.Contains(out, ",Annual Membership,100,1,annual,2025-01-01,active")
	s.Contains(out, ",Monthly Digest,12,1,monthly,2025-01-01,active")

	// Selection criteria narrow the export the same way they narrow previews
	var narrow bytes.Buffer
	count, err = s.service.ExportPreviewCSV(s.GetContext(), &dto.BatchRunRequest{
		TargetKind: types.BatchTargetBillingCycles,
		AmountRange: &types.AmountRange{
			Min: lo.ToPtr(decimal.NewFromInt(50)),
		},
	}, &narrow)
	s.NoError(err)
	s.Equal(2, count)
	s.NotContains(narrow.String(), "Monthly Digest")
}

func (s *BatchServiceSuite) TestArchivePreviewRequiresObjectStore() {
	_, err := s.service.ArchivePreview(s.GetContext(), &dto.BatchRunRequest{
		TargetKind: types.BatchTargetBillingCycles,
	})
	s.Error(err)
	s.True(ierr.IsConfiguration(err), "unexpected error class: %v", err)
}

func (s *BatchServiceSuite) TestExecuteValidation() {
	testCases := []struct {
		name string
		req  *dto.BatchRunRequest
	}{
		{
			name: "missing target kind",
			req:  &dto.BatchRunRequest{},
		},
		{
			name: "unknown target kind",
			req:  &dto.BatchRunRequest{TargetKind: types.BatchTargetKind("widgets")},
		},
		{
			name: "auto payment without auto invoice",
			req: &dto.BatchRunRequest{
				TargetKind:  types.BatchTargetBillingCycles,
				AutoPayment: true,
			},
		},
		{
			name: "negative batch size",
			req: &dto.BatchRunRequest{
				TargetKind: types.BatchTargetBillingCycles,
				BatchSize:  -1,
			},
		},
		{
			name: "amount range maximum below minimum",
			req: &dto.BatchRunRequest{
				TargetKind: types.BatchTargetBillingCycles,
				AmountRange: &types.AmountRange{
					Min: lo.ToPtr(decimal.NewFromInt(100)),
					Max: lo.ToPtr(decimal.NewFromInt(50)),
				},
			},
		},
		{
			name: "date range end before start",
			req: &dto.BatchRunRequest{
				TargetKind: types.BatchTargetBillingCycles,
				DateFrom:   lo.ToPtr(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)),
				DateTo:     lo.ToPtr(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)),
			},
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			_, err := s.service.Execute(s.GetContext(), tc.req, s.testData.anchor)
			s.Error(err)
			s.True(ierr.IsValidation(err), "unexpected error class: %v", err)
		})
	}
}

func (s *BatchServiceSuite) TestExecuteDryRun() {
	run, err := s.service.Execute(s.GetContext(), &dto.BatchRunRequest{
		TargetKind:  types.BatchTargetBillingCycles,
		AutoInvoice: true,
		DryRun:      true,
	}, s.testData.anchor)
	s.NoError(err)

	s.True(run.DryRun)
	s.Equal(types.BatchRunStatusCompleted, run.Status)
	s.Equal(3, run.Total)
	s.Equal(3, run.Succeeded)
	s.Equal(0, run.Failed)
	s.True(run.TotalAmount.Equal(decimal.NewFromInt(184)), "total %s", run.TotalAmount)

	// A dry run touches nothing and leaves no trace
	s.Equal(types.BillingCycleStateScheduled, s.cycleFor(s.testData.memberSub).State)
	s.Equal(types.BillingCycleStateScheduled, s.cycleFor(s.testData.guestSub).State)
	s.Equal(types.BillingCycleStateScheduled, s.cycleFor(s.testData.digestSub).State)
	s.Equal(0, s.GetInvoicingGateway().InvoiceCount())
	s.Empty(s.GetSender().Sent())

	entries, err := s.GetStores().AuditLogRepo.List(s.GetContext(), &types.AuditLogFilter{
		QueryFilter: types.NewNoLimitQueryFilter(),
		EntityType:  types.AuditEntityTypeBatchRun,
	})
	s.NoError(err)
	s.Empty(entries)
}

func (s *BatchServiceSuite) TestExecuteProcessesScheduledCycles() {
	run, err := s.service.Execute(s.GetContext(), &dto.BatchRunRequest{
		TargetKind:  types.BatchTargetBillingCycles,
		AutoInvoice: true,
	}, s.testData.anchor)
	s.NoError(err)

	s.NotEmpty(run.RunID)
	s.Equal(types.BatchRunStatusCompleted, run.Status)
	s.Equal(3, run.Total)
	s.Equal(3, run.Succeeded)
	s.Equal(0, run.Failed)
	s.Empty(run.Errors)
	s.True(run.TotalAmount.Equal(decimal.NewFromInt(184)), "total %s", run.TotalAmount)

	s.Equal(types.BillingCycleStateBilled, s.cycleFor(s.testData.memberSub).State)
	s.Equal(types.BillingCycleStateBilled, s.cycleFor(s.testData.guestSub).State)
	s.Equal(types.BillingCycleStateBilled, s.cycleFor(s.testData.digestSub).State)
	s.Equal(3, s.GetInvoicingGateway().InvoiceCount())

	// Per record notifications stay quiet unless the run opts in; the run
	// completion event is always published
	s.Empty(s.GetSender().SentFor(types.NotificationEventBillingInvoiced))
	s.Len(s.GetSender().SentFor(types.NotificationEventBatchCompleted), 1)

	entries, err := s.GetStores().AuditLogRepo.List(s.GetContext(), &types.AuditLogFilter{
		QueryFilter: types.NewNoLimitQueryFilter(),
		EntityType:  types.AuditEntityTypeBatchRun,
		EntityIDs:   []string{run.RunID},
	})
	s.NoError(err)
	s.Len(entries, 2)
}

func (s *BatchServiceSuite) TestExecuteWithNotifications() {
	run, err := s.service.Execute(s.GetContext(), &dto.BatchRunRequest{
		TargetKind:            types.BatchTargetBillingCycles,
		AutoInvoice:           true,
		AutoSendNotifications: true,
	}, s.testData.anchor)
	s.NoError(err)
	s.Equal(3, run.Succeeded)

	s.Len(s.GetSender().SentFor(types.NotificationEventBillingInvoiced), 3)
}

func (s *BatchServiceSuite) TestExecuteWithoutAutoInvoice() {
	run, err := s.service.Execute(s.GetContext(), &dto.BatchRunRequest{
		TargetKind: types.BatchTargetBillingCycles,
	}, s.testData.anchor)
	s.NoError(err)

	s.Equal(3, run.Succeeded)
	s.True(run.TotalAmount.Equal(decimal.NewFromInt(184)), "total %s", run.TotalAmount)

	// Amounts were refreshed but nothing was invoiced
	s.Equal(types.BillingCycleStateScheduled, s.cycleFor(s.testData.memberSub).State)
	s.Equal(0, s.GetInvoicingGateway().InvoiceCount())
}

func (s *BatchServiceSuite) TestExecuteAutoPaymentMarksPaid() {
	run, err := s.service.Execute(s.GetContext(), &dto.BatchRunRequest{
		TargetKind:  types.BatchTargetBillingCycles,
		AutoInvoice: true,
		AutoPayment: true,
	}, s.testData.anchor)
	s.NoError(err)
	s.Equal(3, run.Succeeded)

	for _, subscriptionID := range []string{s.testData.memberSub, s.testData.guestSub, s.testData.digestSub} {
		cycle := s.cycleFor(subscriptionID)
		s.Equal(types.BillingCycleStatePaid, cycle.State)
		s.NotEmpty(cycle.PaymentRef)
		s.NotNil(cycle.PaidAt)
	}
}

func (s *BatchServiceSuite) TestExecuteReportsFailedRecords() {
	s.GetInvoicingGateway().FailNext(1, true)

	run, err := s.service.Execute(s.GetContext(), &dto.BatchRunRequest{
		TargetKind:  types.BatchTargetBillingCycles,
		AutoInvoice: true,
	}, s.testData.anchor)
	s.NoError(err)

	s.Equal(types.BatchRunStatusCompletedWithErrors, run.Status)
	s.Equal(3, run.Total)
	s.Equal(2, run.Succeeded)
	s.Equal(1, run.Failed)
	s.Require().Len(run.Errors, 1)
	s.NotEmpty(run.Errors[0].RecordID)
	s.NotEmpty(run.Errors[0].Message)
}

func (s *BatchServiceSuite) TestExecuteRetriesFailedCycles() {
	cycle := s.cycleFor(s.testData.memberSub)
	s.failCycle(cycle.ID, s.testData.anchor)

	run, err := s.service.Execute(s.GetContext(), &dto.BatchRunRequest{
		TargetKind:  types.BatchTargetBillingCycles,
		States:      []string{"failed"},
		AutoInvoice: true,
	}, s.testData.anchor)
	s.NoError(err)

	s.Equal(1, run.Total)
	s.Equal(1, run.Succeeded)
	s.Equal(types.BatchRunStatusCompleted, run.Status)

	stored := s.cycleFor(s.testData.memberSub)
	s.Equal(types.BillingCycleStateBilled, stored.State)
	s.Equal(1, stored.RetryCount)
}

func (s *BatchServiceSuite) TestExecuteSkipsRecentlyFailedSubscribers() {
	s.failCycle(s.cycleFor(s.testData.guestSub).ID, s.testData.anchor)

	// The guest signs up for the digest too, leaving them one scheduled cycle
	guestDigest := s.createSubscription(s.testData.guest.ID, s.testData.monthly.ID)

	// Three days after the failure the guest is still excluded
	run, err := s.service.Execute(s.GetContext(), &dto.BatchRunRequest{
		TargetKind:         types.BatchTargetBillingCycles,
		SkipRecentlyFailed: true,
		DryRun:             true,
	}, s.testData.anchor.AddDate(0, 0, 3))
	s.NoError(err)
	s.Equal(2, run.Total)

	// Without the exclusion the guest's new cycle is selected
	run, err = s.service.Execute(s.GetContext(), &dto.BatchRunRequest{
		TargetKind: types.BatchTargetBillingCycles,
		DryRun:     true,
	}, s.testData.anchor.AddDate(0, 0, 3))
	s.NoError(err)
	s.Equal(3, run.Total)

	// A month later the failure has aged out of the lookback window
	run, err = s.service.Execute(s.GetContext(), &dto.BatchRunRequest{
		TargetKind:         types.BatchTargetBillingCycles,
		SkipRecentlyFailed: true,
		DryRun:             true,
	}, s.testData.anchor.AddDate(0, 0, 30))
	s.NoError(err)
	s.Equal(3, run.Total)

	s.Equal(types.BillingCycleStateScheduled, s.cycleFor(guestDigest).State)
}

func (s *BatchServiceSuite) TestExecuteRenewalsTarget() {
	run, err := s.service.Execute(s.GetContext(), &dto.BatchRunRequest{
		TargetKind: types.BatchTargetRenewals,
	}, s.testData.anchor)
	s.NoError(err)

	s.Equal(3, run.Total)
	s.Equal(3, run.Succeeded)
	s.True(run.TotalAmount.Equal(decimal.NewFromInt(184)), "total %s", run.TotalAmount)

	// Each renewal was settled with the batch method and chained a successor
	filter := types.NewNoLimitRenewalFilter()
	filter.SubscriptionIDs = []string{s.testData.memberSub}
	filter.States = []types.RenewalState{types.RenewalStateRenewed}
	renewed, err := s.GetStores().RenewalRepo.List(s.GetContext(), filter)
	s.NoError(err)
	s.Require().Len(renewed, 1)
	s.Equal(types.RenewalProcessMethodBatch, renewed[0].ProcessMethod)

	open, err := s.GetStores().RenewalRepo.GetOpenBySubscription(s.GetContext(), s.testData.memberSub)
	s.NoError(err)
	s.Equal(types.RenewalStatePending, open.State)
	s.Equal(1, open.RenewalCount)

	// Without auto invoicing the renewal cycles stay scheduled
	s.Equal(0, s.GetInvoicingGateway().InvoiceCount())
}

func (s *BatchServiceSuite) TestExecuteChunked() {
	run, err := s.service.Execute(s.GetContext(), &dto.BatchRunRequest{
		TargetKind:  types.BatchTargetBillingCycles,
		AutoInvoice: true,
		BatchSize:   1,
	}, s.testData.anchor)
	s.NoError(err)

	s.Equal(3, run.Total)
	s.Equal(3, run.Succeeded)
	s.Equal(0, run.Failed)
	s.Equal(3, s.GetInvoicingGateway().InvoiceCount())
}
