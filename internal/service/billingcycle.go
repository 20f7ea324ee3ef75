package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/memberbill/memberbill/internal/api/dto"
	"github.com/memberbill/memberbill/internal/domain/auditlog"
	"github.com/memberbill/memberbill/internal/domain/billingcycle"
	"github.com/memberbill/memberbill/internal/domain/invoicing"
	"github.com/memberbill/memberbill/internal/domain/product"
	"github.com/memberbill/memberbill/internal/domain/subscription"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/metrics"
	notifyDto "github.com/memberbill/memberbill/internal/notify/dto"
	"github.com/memberbill/memberbill/internal/types"
)

// BillingCycleService drives billing cycles through their lifecycle: pricing,
// invoicing, payment confirmation and bounded retries
type BillingCycleService interface {
	// Core billing cycle operations
	CreateBillingCycle(ctx context.Context, req *dto.CreateBillingCycleRequest) (*dto.BillingCycleResponse, error)
	GetBillingCycle(ctx context.Context, id string) (*dto.BillingCycleResponse, error)
	ListBillingCycles(ctx context.Context, filter *types.BillingCycleFilter) (*dto.ListBillingCyclesResponse, error)

	// CalculateAmounts runs the pricing engine on a cycle. Amounts already
	// present are kept unless force is set; frozen amounts never change.
	CalculateAmounts(ctx context.Context, id string, force bool) (*dto.BillingCycleResponse, error)

	// ProcessBillingCycle takes one scheduled cycle through invoicing
	ProcessBillingCycle(ctx context.Context, id string, asOf time.Time) (*dto.BillingCycleResponse, error)

	// RetryBillingCycle reschedules a failed cycle and processes it again
	RetryBillingCycle(ctx context.Context, id string, asOf time.Time) (*dto.BillingCycleResponse, error)

	// MarkBillingCyclePaid records a payment confirmation on a billed cycle
	MarkBillingCyclePaid(ctx context.Context, id string, req *dto.MarkBillingCyclePaidRequest) (*dto.BillingCycleResponse, error)

	// CancelBillingCycle voids an unbilled cycle and its invoice if any
	CancelBillingCycle(ctx context.Context, id string, req *dto.CancelBillingCycleRequest) (*dto.BillingCycleResponse, error)

	// GetAmortizationSchedule returns the monthly recognition plan for a
	// cycle with deferred revenue
	GetAmortizationSchedule(ctx context.Context, id string) (*dto.AmortizationScheduleResponse, error)

	// ProcessScheduledBillings is the sweep behind the billing cron: retry
	// eligible failures first, then everything due as of the given time
	ProcessScheduledBillings(ctx context.Context, asOf time.Time) (*dto.ScheduledBillingRunResponse, error)
}

type billingCycleService struct {
	ServiceParams
}

// NewBillingCycleService creates a new billing cycle service
func NewBillingCycleService(params ServiceParams) BillingCycleService {
	return &billingCycleService{
		ServiceParams: params,
	}
}

// CreateBillingCycle creates a cycle for one service period, prices it and
// schedules it for processing
func (s *billingCycleService) CreateBillingCycle(ctx context.Context, req *dto.CreateBillingCycleRequest) (*dto.BillingCycleResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sub, err := s.SubRepo.Get(ctx, req.SubscriptionID)
	if err != nil {
		return nil, err
	}

	cycle := req.ToBillingCycle(ctx)
	cycle.Currency = sub.Currency
	cycle.Quantity = sub.Quantity
	if req.Quantity != nil {
		cycle.Quantity = *req.Quantity
	}

	if err := s.priceCycle(ctx, cycle, sub); err != nil {
		return nil, err
	}
	cycle.State = types.BillingCycleStateScheduled

	if err := cycle.Validate(); err != nil {
		return nil, err
	}

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.BillingCycleRepo.Create(ctx, cycle); err != nil {
			return err
		}
		return s.AuditLogRepo.Insert(ctx, auditlog.New(ctx, types.AuditEntityTypeBillingCycle, cycle.ID, types.AuditEventCreated, map[string]interface{}{
			"state":        cycle.State,
			"billing_type": cycle.BillingType,
			"billing_date": types.FormatDate(cycle.BillingDate),
			"total_amount": cycle.TotalAmount,
		}))
	})
	if err != nil {
		return nil, err
	}

	s.publishNotification(ctx, types.NotificationEventBillingScheduled, cycle.ID)

	return &dto.BillingCycleResponse{BillingCycle: cycle}, nil
}

// GetBillingCycle retrieves a billing cycle by ID
func (s *billingCycleService) GetBillingCycle(ctx context.Context, id string) (*dto.BillingCycleResponse, error) {
	cycle, err := s.BillingCycleRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.BillingCycleResponse{BillingCycle: cycle}, nil
}

// ListBillingCycles lists billing cycles matching the filter
func (s *billingCycleService) ListBillingCycles(ctx context.Context, filter *types.BillingCycleFilter) (*dto.ListBillingCyclesResponse, error) {
	if filter == nil {
		filter = types.NewBillingCycleFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	cycles, err := s.BillingCycleRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	count, err := s.BillingCycleRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := make([]*dto.BillingCycleResponse, len(cycles))
	for i, cycle := range cycles {
		items[i] = &dto.BillingCycleResponse{BillingCycle: cycle}
	}

	return &dto.ListBillingCyclesResponse{
		Items:      items,
		Pagination: types.NewPaginationResponse(count, filter.GetLimit(), filter.GetOffset()),
	}, nil
}

// CalculateAmounts prices the cycle and persists the result. Stored amounts
// are returned as is unless force requests a recalculation. Once a cycle is
// billed the invoiced numbers are immutable and force is refused.
func (s *billingCycleService) CalculateAmounts(ctx context.Context, id string, force bool) (*dto.BillingCycleResponse, error) {
	cycle, err := s.BillingCycleRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if cycle.HasCalculatedAmounts() && !force {
		return &dto.BillingCycleResponse{BillingCycle: cycle}, nil
	}

	if cycle.AmountsFrozen() {
		return nil, ierr.NewError("billing cycle amounts are frozen").
			WithHint("Amounts cannot change once a cycle is billed or closed").
			WithReportableDetails(map[string]interface{}{
				"billing_cycle_id": cycle.ID,
				"state":            cycle.State,
			}).
			Mark(ierr.ErrInvalidState)
	}

	sub, err := s.SubRepo.Get(ctx, cycle.SubscriptionID)
	if err != nil {
		return nil, err
	}

	if err := s.priceCycle(ctx, cycle, sub); err != nil {
		return nil, err
	}

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.BillingCycleRepo.Update(ctx, cycle); err != nil {
			return err
		}
		return s.AuditLogRepo.Insert(ctx, auditlog.New(ctx, types.AuditEntityTypeBillingCycle, cycle.ID, types.AuditEventAmountsCalculated, map[string]interface{}{
			"total_amount":     cycle.TotalAmount,
			"proration_factor": cycle.ProrationFactor,
			"forced":           force,
		}))
	})
	if err != nil {
		return nil, err
	}

	return &dto.BillingCycleResponse{BillingCycle: cycle}, nil
}

// ProcessBillingCycle claims a scheduled cycle, reprices it, raises the
// invoice and transitions to billed. Any failure after the claim lands the
// cycle in failed with the attempt recorded, so the retry sweep can pick it
// up again.
func (s *billingCycleService) ProcessBillingCycle(ctx context.Context, id string, asOf time.Time) (*dto.BillingCycleResponse, error) {
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	cycle, err := s.BillingCycleRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if cycle.State != types.BillingCycleStateScheduled {
		return nil, ierr.NewError("billing cycle is not scheduled").
			WithHint("Only scheduled cycles can be processed").
			WithReportableDetails(map[string]interface{}{
				"billing_cycle_id": cycle.ID,
				"state":            cycle.State,
			}).
			Mark(ierr.ErrInvalidState)
	}

	sub, err := s.SubRepo.Get(ctx, cycle.SubscriptionID)
	if err != nil {
		return nil, err
	}
	prod, err := s.ProductRepo.Get(ctx, sub.ProductID)
	if err != nil {
		return nil, err
	}

	// Claim the cycle so concurrent sweeps skip it
	if err := s.transition(ctx, cycle, types.BillingCycleStateProcessing, "claimed for processing"); err != nil {
		return nil, err
	}

	processErr := s.invoiceCycle(ctx, cycle, sub, prod, asOf)
	if processErr != nil {
		s.recordProcessingFailure(ctx, cycle, asOf, processErr)
		metrics.RecordBillingCycleProcessed(metrics.ResultFailure)
		return &dto.BillingCycleResponse{BillingCycle: cycle}, processErr
	}

	metrics.RecordBillingCycleProcessed(metrics.ResultSuccess)
	s.publishNotification(ctx, types.NotificationEventBillingInvoiced, cycle.ID)
	if cycle.RequiresManualReview {
		s.publishNotification(ctx, types.NotificationEventManualReview, cycle.ID)
	}

	return &dto.BillingCycleResponse{BillingCycle: cycle}, nil
}

// RetryBillingCycle puts a failed cycle back on the schedule and runs it
// again. Attempts are bounded; once exhausted the cycle stays failed until
// an operator cancels it.
func (s *billingCycleService) RetryBillingCycle(ctx context.Context, id string, asOf time.Time) (*dto.BillingCycleResponse, error) {
	cycle, err := s.BillingCycleRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if cycle.State != types.BillingCycleStateFailed {
		return nil, ierr.NewError("billing cycle is not failed").
			WithHint("Only failed cycles can be retried").
			WithReportableDetails(map[string]interface{}{
				"billing_cycle_id": cycle.ID,
				"state":            cycle.State,
			}).
			Mark(ierr.ErrInvalidState)
	}

	if !cycle.CanRetry() {
		return nil, ierr.NewError("billing cycle retry attempts exhausted").
			WithHint("The cycle has reached the maximum number of attempts").
			WithReportableDetails(map[string]interface{}{
				"billing_cycle_id":  cycle.ID,
				"retry_count":       cycle.RetryCount,
				"max_retries":       types.MaxBillingRetries,
				"remaining_retries": 0,
			}).
			Mark(ierr.ErrValidation)
	}

	from := cycle.State
	cycle.State = types.BillingCycleStateScheduled
	cycle.LastError = ""

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.BillingCycleRepo.Update(ctx, cycle); err != nil {
			return err
		}
		entry := auditlog.New(ctx, types.AuditEntityTypeBillingCycle, cycle.ID, types.AuditEventRetryScheduled, map[string]interface{}{
			"retry_count": cycle.RetryCount,
			"max_retries": types.MaxBillingRetries,
		})
		entry.FromState = from.String()
		entry.ToState = cycle.State.String()
		return s.AuditLogRepo.Insert(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	return s.ProcessBillingCycle(ctx, id, asOf)
}

// MarkBillingCyclePaid records the payment that settled a billed cycle. A
// repeated confirmation with the same payment reference is a no op, so the
// payment consumer can tolerate redelivery.
func (s *billingCycleService) MarkBillingCyclePaid(ctx context.Context, id string, req *dto.MarkBillingCyclePaidRequest) (*dto.BillingCycleResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	cycle, err := s.BillingCycleRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if cycle.State == types.BillingCycleStatePaid && cycle.PaymentRef == req.PaymentRef {
		return &dto.BillingCycleResponse{BillingCycle: cycle}, nil
	}

	if cycle.State != types.BillingCycleStateBilled {
		return nil, ierr.NewError("billing cycle is not billed").
			WithHint("Only billed cycles can be marked paid").
			WithReportableDetails(map[string]interface{}{
				"billing_cycle_id": cycle.ID,
				"state":            cycle.State,
			}).
			Mark(ierr.ErrInvalidState)
	}

	paidAt := time.Now().UTC()
	if req.PaidAt != nil {
		paidAt = req.PaidAt.UTC()
	}

	from := cycle.State
	cycle.State = types.BillingCycleStatePaid
	cycle.PaymentRef = req.PaymentRef
	cycle.PaidAt = &paidAt

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.BillingCycleRepo.Update(ctx, cycle); err != nil {
			return err
		}
		entry := auditlog.New(ctx, types.AuditEntityTypeBillingCycle, cycle.ID, types.AuditEventPaymentRecorded, map[string]interface{}{
			"payment_ref": cycle.PaymentRef,
			"paid_at":     paidAt,
		})
		entry.FromState = from.String()
		entry.ToState = cycle.State.String()
		return s.AuditLogRepo.Insert(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.publishNotification(ctx, types.NotificationEventBillingPaid, cycle.ID)

	return &dto.BillingCycleResponse{BillingCycle: cycle}, nil
}

// CancelBillingCycle voids a cycle that has not been billed. A linked
// invoice is cancelled at the gateway first; if that fails the cycle keeps
// its current state.
func (s *billingCycleService) CancelBillingCycle(ctx context.Context, id string, req *dto.CancelBillingCycleRequest) (*dto.BillingCycleResponse, error) {
	cycle, err := s.BillingCycleRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !cycle.State.CanTransitionTo(types.BillingCycleStateCancelled) {
		return nil, ierr.NewError("billing cycle cannot be cancelled").
			WithHint("Billed, paid and cancelled cycles cannot be cancelled").
			WithReportableDetails(map[string]interface{}{
				"billing_cycle_id": cycle.ID,
				"state":            cycle.State,
			}).
			Mark(ierr.ErrInvalidState)
	}

	invoiceCancelled := false
	if cycle.InvoiceRef != "" {
		if err := s.InvoicingGateway.CancelInvoice(ctx, cycle.InvoiceRef); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to cancel the linked invoice").
				WithReportableDetails(map[string]interface{}{
					"billing_cycle_id": cycle.ID,
					"invoice_ref":      cycle.InvoiceRef,
				}).
				Mark(ierr.ErrTransient)
		}
		invoiceCancelled = true
	}

	reason := ""
	if req != nil {
		reason = req.Reason
	}

	from := cycle.State
	cycle.State = types.BillingCycleStateCancelled

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.BillingCycleRepo.Update(ctx, cycle); err != nil {
			return err
		}
		if invoiceCancelled {
			if err := s.AuditLogRepo.Insert(ctx, auditlog.New(ctx, types.AuditEntityTypeBillingCycle, cycle.ID, types.AuditEventInvoiceCancelled, map[string]interface{}{
				"invoice_ref": cycle.InvoiceRef,
			})); err != nil {
				return err
			}
		}
		return s.AuditLogRepo.Insert(ctx, auditlog.NewTransition(ctx, types.AuditEntityTypeBillingCycle, cycle.ID, from.String(), cycle.State.String(), reason))
	})
	if err != nil {
		return nil, err
	}

	s.publishNotification(ctx, types.NotificationEventBillingCancelled, cycle.ID)

	return &dto.BillingCycleResponse{BillingCycle: cycle}, nil
}

// GetAmortizationSchedule derives the monthly revenue recognition plan for
// the cycle's deferred revenue. Cycles without deferred revenue get an empty
// schedule.
func (s *billingCycleService) GetAmortizationSchedule(ctx context.Context, id string) (*dto.AmortizationScheduleResponse, error) {
	cycle, err := s.BillingCycleRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	return &dto.AmortizationScheduleResponse{
		BillingCycleID:  cycle.ID,
		DeferredRevenue: cycle.DeferredRevenue,
		Entries:         cycle.AmortizationSchedule(),
	}, nil
}

// ProcessScheduledBillings runs one billing sweep: failed cycles still under
// the retry limit first, then every scheduled cycle due as of the given
// time. Failures are captured per record and never stop the sweep.
func (s *billingCycleService) ProcessScheduledBillings(ctx context.Context, asOf time.Time) (*dto.ScheduledBillingRunResponse, error) {
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	response := &dto.ScheduledBillingRunResponse{}

	retryable, err := s.BillingCycleRepo.ListRetryEligible(ctx, asOf)
	if err != nil {
		return nil, err
	}
	for _, cycle := range retryable {
		item := &dto.BillingCycleProcessingItem{
			BillingCycleID: cycle.ID,
			ShortID:        cycle.ShortID,
			Retried:        true,
		}
		if _, err := s.RetryBillingCycle(ctx, cycle.ID, asOf); err != nil {
			item.Error = err.Error()
			response.Failed++
		} else {
			item.Success = true
			response.Succeeded++
		}
		response.Retried++
		response.Items = append(response.Items, item)
	}

	due, err := s.BillingCycleRepo.ListDue(ctx, asOf)
	if err != nil {
		return nil, err
	}
	for _, cycle := range due {
		item := &dto.BillingCycleProcessingItem{
			BillingCycleID: cycle.ID,
			ShortID:        cycle.ShortID,
		}
		if _, err := s.ProcessBillingCycle(ctx, cycle.ID, asOf); err != nil {
			item.Error = err.Error()
			response.Failed++
		} else {
			item.Success = true
			response.Succeeded++
		}
		response.Items = append(response.Items, item)
	}

	response.Processed = len(response.Items)

	s.Logger.Infow("processed scheduled billings",
		"as_of", asOf,
		"processed", response.Processed,
		"succeeded", response.Succeeded,
		"failed", response.Failed,
		"retried", response.Retried,
	)

	return response, nil
}

// priceCycle runs the pricing engine for the cycle's period and copies the
// quote onto the record
func (s *billingCycleService) priceCycle(ctx context.Context, cycle *billingcycle.BillingCycle, sub *subscription.Subscription) error {
	pricingService := NewPricingService(s.ServiceParams)
	quote, err := pricingService.QuoteSubscriptionPeriod(
		ctx,
		sub,
		cycle.PeriodStart,
		cycle.PeriodEnd,
		quoteDateFor(cycle, sub),
		cycle.BillingType == types.BillingTypeInitial,
	)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	cycle.BaseAmount = quote.BaseAmount
	cycle.MemberDiscount = quote.MemberDiscount
	cycle.AdditionalDiscount = quote.AdditionalDiscount
	cycle.SetupFee = quote.SetupFee
	cycle.TaxAmount = quote.TaxAmount
	cycle.ProrationFactor = quote.ProrationFactor
	cycle.ProrationAdjustment = quote.ProrationAdjustment
	cycle.TotalAmount = quote.Total
	cycle.ImmediateRevenue = quote.ImmediateRevenue
	cycle.DeferredRevenue = quote.DeferredRevenue
	cycle.RequiresManualReview = quote.RequiresManualReview
	cycle.ReviewReason = strings.Join(quote.ReviewReasons, "; ")
	cycle.AmountsCalculatedAt = &now

	return nil
}

// quoteDateFor picks the proration reference. Initial cycles prorate from
// the subscription start against the period anchor; recurring cycles always
// cover a full period.
func quoteDateFor(cycle *billingcycle.BillingCycle, sub *subscription.Subscription) time.Time {
	if cycle.BillingType == types.BillingTypeInitial {
		return sub.StartDate
	}
	return time.Time{}
}

// invoiceCycle reprices the claimed cycle, raises the gateway invoice and
// moves the cycle to billed with the invoice reference recorded
func (s *billingCycleService) invoiceCycle(ctx context.Context, cycle *billingcycle.BillingCycle, sub *subscription.Subscription, prod *product.Product, asOf time.Time) error {
	if err := s.priceCycle(ctx, cycle, sub); err != nil {
		return err
	}
	if err := cycle.Validate(); err != nil {
		return err
	}

	invoiceRef, err := s.InvoicingGateway.CreateInvoice(ctx, buildInvoice(cycle, sub, prod))
	if err != nil {
		return err
	}

	from := cycle.State
	cycle.State = types.BillingCycleStateBilled
	cycle.InvoiceRef = invoiceRef
	cycle.ProcessedAt = &asOf

	return s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.BillingCycleRepo.Update(ctx, cycle); err != nil {
			return err
		}
		if err := s.AuditLogRepo.Insert(ctx, auditlog.New(ctx, types.AuditEntityTypeBillingCycle, cycle.ID, types.AuditEventInvoiceCreated, map[string]interface{}{
			"invoice_ref":  invoiceRef,
			"total_amount": cycle.TotalAmount,
		})); err != nil {
			return err
		}
		if cycle.RequiresManualReview {
			if err := s.AuditLogRepo.Insert(ctx, auditlog.New(ctx, types.AuditEntityTypeBillingCycle, cycle.ID, types.AuditEventManualReview, map[string]interface{}{
				"review_reason": cycle.ReviewReason,
			})); err != nil {
				return err
			}
		}
		return s.AuditLogRepo.Insert(ctx, auditlog.NewTransition(ctx, types.AuditEntityTypeBillingCycle, cycle.ID, from.String(), cycle.State.String(), "invoice "+invoiceRef))
	})
}

// recordProcessingFailure lands a claimed cycle in failed with the attempt
// counted. Persistence errors here are logged only; the original processing
// error is what callers see.
func (s *billingCycleService) recordProcessingFailure(ctx context.Context, cycle *billingcycle.BillingCycle, asOf time.Time, cause error) {
	from := cycle.State
	cycle.State = types.BillingCycleStateFailed
	cycle.RetryCount++
	cycle.LastError = cause.Error()
	cycle.FailedAt = &asOf

	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.BillingCycleRepo.Update(ctx, cycle); err != nil {
			return err
		}
		return s.AuditLogRepo.Insert(ctx, auditlog.NewTransition(ctx, types.AuditEntityTypeBillingCycle, cycle.ID, from.String(), cycle.State.String(), cause.Error()))
	})
	if err != nil {
		s.Logger.Errorw("failed to record billing cycle failure",
			"billing_cycle_id", cycle.ID,
			"error", err,
			"cause", cause,
		)
	}

	s.publishNotification(ctx, types.NotificationEventBillingFailed, cycle.ID)
}

// transition moves the cycle along one state machine edge and writes the
// audit entry in the same transaction
func (s *billingCycleService) transition(ctx context.Context, cycle *billingcycle.BillingCycle, target types.BillingCycleState, message string) error {
	from := cycle.State
	if !from.CanTransitionTo(target) {
		return ierr.NewError("invalid billing cycle state transition").
			WithHint("The requested state change is not allowed").
			WithReportableDetails(map[string]interface{}{
				"billing_cycle_id": cycle.ID,
				"from":             from,
				"to":               target,
			}).
			Mark(ierr.ErrInvalidState)
	}

	cycle.State = target
	return s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.BillingCycleRepo.Update(ctx, cycle); err != nil {
			return err
		}
		return s.AuditLogRepo.Insert(ctx, auditlog.NewTransition(ctx, types.AuditEntityTypeBillingCycle, cycle.ID, from.String(), target.String(), message))
	})
}

// buildInvoice assembles the gateway invoice: one line for the recurring
// charge and one for the setup fee when present. The gateway applies tax
// downstream, so tax is not a line.
func buildInvoice(cycle *billingcycle.BillingCycle, sub *subscription.Subscription, prod *product.Product) *invoicing.Invoice {
	netAmount := cycle.NetAmount()
	unitAmount := netAmount
	if cycle.Quantity.IsPositive() {
		unitAmount = netAmount.Div(cycle.Quantity)
	}

	lines := []invoicing.InvoiceLine{
		{
			Kind: types.InvoiceLineKindSubscription,
			Description: fmt.Sprintf("%s (%s to %s)", prod.Name,
				types.FormatDate(cycle.PeriodStart), types.FormatDate(cycle.PeriodEnd)),
			Quantity:   cycle.Quantity,
			UnitAmount: unitAmount,
			Amount:     netAmount,
		},
	}
	if cycle.SetupFee.IsPositive() {
		lines = append(lines, invoicing.InvoiceLine{
			Kind:        types.InvoiceLineKindSetupFee,
			Description: fmt.Sprintf("%s setup fee", prod.Name),
			Quantity:    decimal.NewFromInt(1),
			UnitAmount:  cycle.SetupFee,
			Amount:      cycle.SetupFee,
		})
	}

	return &invoicing.Invoice{
		SubscriberID:   sub.SubscriberID,
		SubscriptionID: sub.ID,
		BillingCycleID: cycle.ID,
		Currency:       cycle.Currency,
		DueDate:        cycle.BillingDate,
		Lines:          lines,
		Metadata: types.Metadata{
			"short_id": cycle.ShortID,
		},
	}
}

// publishNotification emits a billing cycle event on the notification bus.
// Sends are fire and forget and honor batch suppression.
func (s *billingCycleService) publishNotification(ctx context.Context, eventName string, billingCycleID string) {
	if types.NotificationsSuppressed(ctx) {
		return
	}

	payload := &notifyDto.InternalBillingCycleEvent{
		BillingCycleID: billingCycleID,
		TenantID:       types.GetTenantID(ctx),
	}
	if err := s.Sender.SendTemplated(ctx, eventName, "billing_cycle", billingCycleID, payload); err != nil {
		s.Logger.Errorf("failed to publish %s event: %v", eventName, err)
	}
}
