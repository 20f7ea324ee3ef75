package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/memberbill/memberbill/internal/api/dto"
	"github.com/memberbill/memberbill/internal/domain/auditlog"
	"github.com/memberbill/memberbill/internal/domain/renewal"
	"github.com/memberbill/memberbill/internal/domain/subscription"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/metrics"
	notifyDto "github.com/memberbill/memberbill/internal/notify/dto"
	"github.com/memberbill/memberbill/internal/types"
)

// RenewalService drives renewals through their lifecycle: reminders leading
// up to the due date, processing that extends the subscription and chains
// the successor, and grace and expiry handling when nothing happens
type RenewalService interface {
	// Core renewal operations
	CreateRenewal(ctx context.Context, req *dto.CreateRenewalRequest) (*dto.RenewalResponse, error)
	GetRenewal(ctx context.Context, id string) (*dto.RenewalResponse, error)
	ListRenewals(ctx context.Context, filter *types.RenewalFilter) (*dto.ListRenewalsResponse, error)

	// ProcessRenewal renews the subscription period this renewal closes:
	// it creates the recurring billing cycle, extends the subscription
	// coverage and chains the successor renewal, all in one transaction
	ProcessRenewal(ctx context.Context, id string, req *dto.ProcessRenewalRequest, asOf time.Time) (*dto.RenewalResponse, error)

	// CancelRenewal closes an open renewal without renewing
	CancelRenewal(ctx context.Context, id string, req *dto.CancelRenewalRequest) (*dto.RenewalResponse, error)

	// SendReminder delivers the next reminder on the schedule, failing when
	// none is due
	SendReminder(ctx context.Context, id string, asOf time.Time) (*dto.RenewalResponse, error)

	// SendScheduledReminders is the sweep behind the reminder cron
	SendScheduledReminders(ctx context.Context, asOf time.Time) (*dto.ReminderSweepResponse, error)

	// UpdateOverdueRenewals moves past due renewals into their grace window
	// and expires the ones whose grace has elapsed
	UpdateOverdueRenewals(ctx context.Context, asOf time.Time) (*dto.OverdueSweepResponse, error)

	// ProcessAutomaticRenewals is the sweep behind the renewal cron: every
	// auto renew eligible renewal due as of the given time
	ProcessAutomaticRenewals(ctx context.Context, asOf time.Time) (*dto.AutomaticRenewalRunResponse, error)
}

type renewalService struct {
	ServiceParams
}

// NewRenewalService creates a new renewal service
func NewRenewalService(params ServiceParams) RenewalService {
	return &renewalService{
		ServiceParams: params,
	}
}

// CreateRenewal opens a renewal for the subscription's current period. A
// subscription carries at most one open renewal at a time.
func (s *renewalService) CreateRenewal(ctx context.Context, req *dto.CreateRenewalRequest) (*dto.RenewalResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sub, err := s.SubRepo.Get(ctx, req.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if !sub.IsActive() {
		return nil, ierr.NewError("subscription is not active").
			WithHint("Renewals can only be opened for active subscriptions").
			WithReportableDetails(map[string]interface{}{
				"subscription_id": sub.ID,
				"state":           sub.State,
			}).
			Mark(ierr.ErrInvalidState)
	}

	open, err := s.RenewalRepo.GetOpenBySubscription(ctx, req.SubscriptionID)
	if err != nil && !ierr.IsNotFound(err) {
		return nil, err
	}
	if open != nil {
		return nil, ierr.NewError("subscription already has an open renewal").
			WithHint("Close the existing renewal before opening another").
			WithReportableDetails(map[string]interface{}{
				"subscription_id": sub.ID,
				"renewal_id":      open.ID,
			}).
			Mark(ierr.ErrAlreadyExists)
	}

	renewalRecord := req.ToRenewal(ctx)
	if err := s.prepareRenewal(ctx, renewalRecord, sub); err != nil {
		return nil, err
	}
	if err := renewalRecord.Validate(); err != nil {
		return nil, err
	}

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.RenewalRepo.Create(ctx, renewalRecord); err != nil {
			return err
		}
		return s.AuditLogRepo.Insert(ctx, auditlog.New(ctx, types.AuditEntityTypeRenewal, renewalRecord.ID, types.AuditEventCreated, map[string]interface{}{
			"state":         renewalRecord.State,
			"due_date":      types.FormatDate(renewalRecord.DueDate),
			"renewal_count": renewalRecord.RenewalCount,
		}))
	})
	if err != nil {
		return nil, err
	}

	return s.toRenewalResponse(renewalRecord), nil
}

// GetRenewal retrieves a renewal by ID
func (s *renewalService) GetRenewal(ctx context.Context, id string) (*dto.RenewalResponse, error) {
	renewalRecord, err := s.RenewalRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.toRenewalResponse(renewalRecord), nil
}

// ListRenewals lists renewals matching the filter
func (s *renewalService) ListRenewals(ctx context.Context, filter *types.RenewalFilter) (*dto.ListRenewalsResponse, error) {
	if filter == nil {
		filter = types.NewRenewalFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	renewals, err := s.RenewalRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	count, err := s.RenewalRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := make([]*dto.RenewalResponse, len(renewals))
	for i, renewalRecord := range renewals {
		items[i] = s.toRenewalResponse(renewalRecord)
	}

	return &dto.ListRenewalsResponse{
		Items:      items,
		Pagination: types.NewPaginationResponse(count, filter.GetLimit(), filter.GetOffset()),
	}, nil
}

// ProcessRenewal claims an open renewal and renews the subscription. On
// failure the renewal reverts to pending with the error recorded, so a later
// sweep or operator can try again.
func (s *renewalService) ProcessRenewal(ctx context.Context, id string, req *dto.ProcessRenewalRequest, asOf time.Time) (*dto.RenewalResponse, error) {
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	method := types.RenewalProcessMethodManual
	if req != nil {
		if err := req.Validate(); err != nil {
			return nil, err
		}
		if req.Method != "" {
			method = req.Method
		}
	}

	renewalRecord, err := s.RenewalRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !renewalRecord.State.IsProcessable() {
		return nil, ierr.NewError("renewal is not processable").
			WithHint("Only pending, reminded and grace period renewals can be processed").
			WithReportableDetails(map[string]interface{}{
				"renewal_id": renewalRecord.ID,
				"state":      renewalRecord.State,
			}).
			Mark(ierr.ErrInvalidState)
	}

	sub, err := s.SubRepo.Get(ctx, renewalRecord.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if !sub.IsActive() {
		return nil, ierr.NewError("subscription is not active").
			WithHint("Only active subscriptions can renew").
			WithReportableDetails(map[string]interface{}{
				"subscription_id": sub.ID,
				"state":           sub.State,
			}).
			Mark(ierr.ErrInvalidState)
	}

	// Claim the renewal so concurrent sweeps skip it
	from := renewalRecord.State
	renewalRecord.State = types.RenewalStateProcessing
	renewalRecord.ProcessMethod = method
	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.RenewalRepo.Update(ctx, renewalRecord); err != nil {
			return err
		}
		return s.AuditLogRepo.Insert(ctx, auditlog.NewTransition(ctx, types.AuditEntityTypeRenewal, renewalRecord.ID, from.String(), renewalRecord.State.String(), "claimed for processing"))
	})
	if err != nil {
		return nil, err
	}

	successor, processErr := s.renew(ctx, renewalRecord, sub, asOf)
	if processErr != nil {
		s.revertToPending(ctx, renewalRecord, processErr)
		metrics.RecordRenewalProcessed(metrics.ResultFailure)
		return s.toRenewalResponse(renewalRecord), processErr
	}

	metrics.RecordRenewalProcessed(metrics.ResultSuccess)
	s.publishNotification(ctx, types.NotificationEventRenewalRenewed, renewalRecord.ID)

	s.Logger.Infow("renewal processed",
		"renewal_id", renewalRecord.ID,
		"subscription_id", sub.ID,
		"method", method,
		"successor_id", successor.ID,
		"next_due", types.FormatDate(successor.DueDate),
	)

	return s.toRenewalResponse(renewalRecord), nil
}

// CancelRenewal closes an open renewal without renewing the subscription
func (s *renewalService) CancelRenewal(ctx context.Context, id string, req *dto.CancelRenewalRequest) (*dto.RenewalResponse, error) {
	renewalRecord, err := s.RenewalRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !renewalRecord.State.CanTransitionTo(types.RenewalStateCancelled) {
		return nil, ierr.NewError("renewal cannot be cancelled").
			WithHint("Renewed and cancelled renewals cannot be cancelled").
			WithReportableDetails(map[string]interface{}{
				"renewal_id": renewalRecord.ID,
				"state":      renewalRecord.State,
			}).
			Mark(ierr.ErrInvalidState)
	}

	reason := ""
	if req != nil {
		reason = req.Reason
	}

	from := renewalRecord.State
	renewalRecord.State = types.RenewalStateCancelled

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.RenewalRepo.Update(ctx, renewalRecord); err != nil {
			return err
		}
		return s.AuditLogRepo.Insert(ctx, auditlog.NewTransition(ctx, types.AuditEntityTypeRenewal, renewalRecord.ID, from.String(), renewalRecord.State.String(), reason))
	})
	if err != nil {
		return nil, err
	}

	s.publishNotification(ctx, types.NotificationEventRenewalCancelled, renewalRecord.ID)

	return s.toRenewalResponse(renewalRecord), nil
}

// SendReminder delivers the next due reminder for one renewal. Nothing due
// on the schedule is a validation error.
func (s *renewalService) SendReminder(ctx context.Context, id string, asOf time.Time) (*dto.RenewalResponse, error) {
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	renewalRecord, err := s.RenewalRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	sub, err := s.SubRepo.Get(ctx, renewalRecord.SubscriptionID)
	if err != nil {
		return nil, err
	}

	sent, err := s.sendDueReminder(ctx, renewalRecord, sub, asOf)
	if err != nil {
		return nil, err
	}
	if !sent {
		return nil, ierr.NewError("no reminder due").
			WithHint("Every reminder on the schedule has already been sent").
			WithReportableDetails(map[string]interface{}{
				"renewal_id": renewalRecord.ID,
				"due_date":   types.FormatDate(renewalRecord.DueDate),
				"schedule":   renewalRecord.ReminderCount,
			}).
			Mark(ierr.ErrValidation)
	}

	return s.toRenewalResponse(renewalRecord), nil
}

// SendScheduledReminders runs one reminder sweep over all open renewals. A
// candidate with nothing due is skipped; per record failures never stop the
// sweep.
func (s *renewalService) SendScheduledReminders(ctx context.Context, asOf time.Time) (*dto.ReminderSweepResponse, error) {
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	response := &dto.ReminderSweepResponse{}

	candidates, err := s.RenewalRepo.ListReminderCandidates(ctx, asOf)
	if err != nil {
		return nil, err
	}

	for _, renewalRecord := range candidates {
		sub, err := s.SubRepo.Get(ctx, renewalRecord.SubscriptionID)
		if err != nil {
			s.Logger.Errorw("failed to load subscription for reminder",
				"renewal_id", renewalRecord.ID,
				"subscription_id", renewalRecord.SubscriptionID,
				"error", err,
			)
			response.Failed++
			continue
		}
		if !sub.IsActive() {
			response.Skipped++
			continue
		}

		sent, err := s.sendDueReminder(ctx, renewalRecord, sub, asOf)
		if err != nil {
			s.Logger.Errorw("failed to send renewal reminder",
				"renewal_id", renewalRecord.ID,
				"error", err,
			)
			response.Failed++
			continue
		}
		if sent {
			response.Sent++
		} else {
			response.Skipped++
		}
	}

	s.Logger.Infow("sent scheduled reminders",
		"as_of", asOf,
		"sent", response.Sent,
		"skipped", response.Skipped,
		"failed", response.Failed,
	)

	return response, nil
}

// UpdateOverdueRenewals classifies every past due renewal: into the grace
// window while it lasts, expired once it has elapsed. Expiry suspends the
// subscription.
func (s *renewalService) UpdateOverdueRenewals(ctx context.Context, asOf time.Time) (*dto.OverdueSweepResponse, error) {
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	response := &dto.OverdueSweepResponse{}

	overdue, err := s.RenewalRepo.ListOverdue(ctx, asOf)
	if err != nil {
		return nil, err
	}

	for _, renewalRecord := range overdue {
		switch {
		case !renewalRecord.PastDue(asOf):
			response.Unchanged++

		case renewalRecord.InGraceWindow(asOf):
			if renewalRecord.State == types.RenewalStateGracePeriod {
				response.Unchanged++
				continue
			}
			if err := s.moveToGrace(ctx, renewalRecord); err != nil {
				s.Logger.Errorw("failed to move renewal into grace",
					"renewal_id", renewalRecord.ID,
					"error", err,
				)
				response.Unchanged++
				continue
			}
			response.MovedToGrace++

		default:
			if err := s.expire(ctx, renewalRecord, asOf); err != nil {
				s.Logger.Errorw("failed to expire renewal",
					"renewal_id", renewalRecord.ID,
					"error", err,
				)
				response.Unchanged++
				continue
			}
			response.Expired++
		}
	}

	s.Logger.Infow("updated overdue renewals",
		"as_of", asOf,
		"moved_to_grace", response.MovedToGrace,
		"expired", response.Expired,
		"unchanged", response.Unchanged,
	)

	return response, nil
}

// ProcessAutomaticRenewals runs one renewal sweep: every auto renew eligible
// renewal due as of the given time, failures captured per record
func (s *renewalService) ProcessAutomaticRenewals(ctx context.Context, asOf time.Time) (*dto.AutomaticRenewalRunResponse, error) {
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	response := &dto.AutomaticRenewalRunResponse{}

	due, err := s.RenewalRepo.ListDueForProcessing(ctx, asOf)
	if err != nil {
		return nil, err
	}

	for _, renewalRecord := range due {
		item := &dto.RenewalProcessingItem{
			RenewalID:      renewalRecord.ID,
			ShortID:        renewalRecord.ShortID,
			SubscriptionID: renewalRecord.SubscriptionID,
		}
		if _, err := s.ProcessRenewal(ctx, renewalRecord.ID, &dto.ProcessRenewalRequest{Method: types.RenewalProcessMethodAutomatic}, asOf); err != nil {
			item.Error = err.Error()
			response.Failed++
		} else {
			item.Success = true
			response.Succeeded++
		}
		response.Items = append(response.Items, item)
	}

	response.Processed = len(response.Items)

	s.Logger.Infow("processed automatic renewals",
		"as_of", asOf,
		"processed", response.Processed,
		"succeeded", response.Succeeded,
		"failed", response.Failed,
	)

	return response, nil
}

// renew does the work of one successful renewal in a single transaction:
// recurring billing cycle, extended subscription coverage, chained successor
func (s *renewalService) renew(ctx context.Context, renewalRecord *renewal.Renewal, sub *subscription.Subscription, asOf time.Time) (*renewal.Renewal, error) {
	nextDue, err := sub.PeriodDefinition().NextOccurrence(renewalRecord.DueDate)
	if err != nil {
		return nil, err
	}
	periodStart := types.BeginningOfDay(renewalRecord.DueDate)
	periodEnd := nextDue.AddDate(0, 0, -1)

	var successor *renewal.Renewal
	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		billingCycleService := NewBillingCycleService(s.ServiceParams)
		cycleResponse, err := billingCycleService.CreateBillingCycle(ctx, &dto.CreateBillingCycleRequest{
			SubscriptionID: sub.ID,
			BillingType:    types.BillingTypeRecurring,
			BillingDate:    periodStart,
			PeriodStart:    periodStart,
			PeriodEnd:      periodEnd,
		})
		if err != nil {
			return err
		}
		cycle := cycleResponse.BillingCycle

		// Close out this renewal against the cycle that was actually priced
		from := renewalRecord.State
		renewalRecord.State = types.RenewalStateRenewed
		renewalRecord.BillingCycleID = cycle.ID
		renewalRecord.RenewalPrice = cycle.NetAmount()
		renewalRecord.MemberDiscount = cycle.MemberDiscount
		applyPriceIncrease(renewalRecord)
		renewalRecord.ProcessedAt = &asOf
		renewalRecord.LastError = ""
		if err := s.RenewalRepo.Update(ctx, renewalRecord); err != nil {
			return err
		}
		if err := s.AuditLogRepo.Insert(ctx, auditlog.NewTransition(ctx, types.AuditEntityTypeRenewal, renewalRecord.ID, from.String(), renewalRecord.State.String(), "billing cycle "+cycle.ShortID)); err != nil {
			return err
		}

		// Extend the paid up coverage
		sub.CurrentPeriodStart = periodStart
		sub.EndDate = nextDue
		sub.NextBillingDate = nextDue
		if sub.Quantity.IsPositive() {
			sub.CurrentPrice = cycle.NetAmount().Div(sub.Quantity)
		}
		if err := s.SubRepo.Update(ctx, sub); err != nil {
			return err
		}

		// Chain the successor for the new period
		successor = (&dto.CreateRenewalRequest{
			SubscriptionID:   sub.ID,
			CurrentPeriodEnd: periodEnd,
		}).ToRenewal(ctx)
		successor.RenewalCount = renewalRecord.RenewalCount + 1
		successor.PreviousRenewalID = renewalRecord.ID
		if err := s.prepareRenewal(ctx, successor, sub); err != nil {
			return err
		}
		if err := successor.Validate(); err != nil {
			return err
		}
		if err := s.RenewalRepo.Create(ctx, successor); err != nil {
			return err
		}
		if err := s.AuditLogRepo.Insert(ctx, auditlog.New(ctx, types.AuditEntityTypeRenewal, successor.ID, types.AuditEventCreated, map[string]interface{}{
			"state":         successor.State,
			"due_date":      types.FormatDate(successor.DueDate),
			"renewal_count": successor.RenewalCount,
		})); err != nil {
			return err
		}
		return s.AuditLogRepo.Insert(ctx, auditlog.New(ctx, types.AuditEntityTypeRenewal, renewalRecord.ID, types.AuditEventRenewalChained, map[string]interface{}{
			"successor_id":  successor.ID,
			"renewal_count": successor.RenewalCount,
		}))
	})
	if err != nil {
		return nil, err
	}
	return successor, nil
}

// revertToPending returns a claimed renewal to pending after a failed
// processing attempt. Persistence errors here are logged only; the original
// processing error is what callers see.
func (s *renewalService) revertToPending(ctx context.Context, renewalRecord *renewal.Renewal, cause error) {
	from := renewalRecord.State
	renewalRecord.State = types.RenewalStatePending
	renewalRecord.LastError = cause.Error()

	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.RenewalRepo.Update(ctx, renewalRecord); err != nil {
			return err
		}
		return s.AuditLogRepo.Insert(ctx, auditlog.NewTransition(ctx, types.AuditEntityTypeRenewal, renewalRecord.ID, from.String(), renewalRecord.State.String(), cause.Error()))
	})
	if err != nil {
		s.Logger.Errorw("failed to revert renewal to pending",
			"renewal_id", renewalRecord.ID,
			"error", err,
			"cause", cause,
		)
	}
}

// sendDueReminder delivers the next reminder when the schedule says one is
// due. Returns false without error when nothing is due, which includes
// renewals already past their due date.
func (s *renewalService) sendDueReminder(ctx context.Context, renewalRecord *renewal.Renewal, sub *subscription.Subscription, asOf time.Time) (bool, error) {
	switch renewalRecord.State {
	case types.RenewalStatePending, types.RenewalStateReminded:
	default:
		return false, nil
	}
	if renewalRecord.PastDue(asOf) {
		return false, nil
	}

	schedule, err := sub.EffectiveReminderSchedule(s.Config.Billing.DefaultReminderSchedule)
	if err != nil {
		return false, err
	}

	var lastSent time.Time
	if renewalRecord.LastReminderAt != nil {
		lastSent = *renewalRecord.LastReminderAt
	}

	offset, due := schedule.DueOffset(renewalRecord.DueDate, asOf, lastSent)
	if !due {
		return false, nil
	}

	from := renewalRecord.State
	if renewalRecord.State == types.RenewalStatePending {
		renewalRecord.State = types.RenewalStateReminded
	}
	renewalRecord.ReminderCount++
	sentAt := asOf
	renewalRecord.LastReminderAt = &sentAt
	if next := schedule.NextReminderDate(renewalRecord.DueDate, sentAt, asOf); !next.IsZero() {
		renewalRecord.NextReminderAt = &next
	} else {
		renewalRecord.NextReminderAt = nil
	}

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.RenewalRepo.Update(ctx, renewalRecord); err != nil {
			return err
		}
		entry := auditlog.New(ctx, types.AuditEntityTypeRenewal, renewalRecord.ID, types.AuditEventReminderSent, map[string]interface{}{
			"offset_days":    offset,
			"reminder_count": renewalRecord.ReminderCount,
			"due_date":       types.FormatDate(renewalRecord.DueDate),
		})
		if from != renewalRecord.State {
			entry.FromState = from.String()
			entry.ToState = renewalRecord.State.String()
		}
		return s.AuditLogRepo.Insert(ctx, entry)
	})
	if err != nil {
		return false, err
	}

	metrics.RecordReminderSent()
	s.publishNotification(ctx, types.NotificationEventRenewalReminder, renewalRecord.ID)

	return true, nil
}

// moveToGrace transitions a past due renewal into its grace window
func (s *renewalService) moveToGrace(ctx context.Context, renewalRecord *renewal.Renewal) error {
	if !renewalRecord.State.CanTransitionTo(types.RenewalStateGracePeriod) {
		return ierr.NewError("renewal cannot enter grace period").
			WithHint("The renewal state does not allow the grace transition").
			WithReportableDetails(map[string]interface{}{
				"renewal_id": renewalRecord.ID,
				"state":      renewalRecord.State,
			}).
			Mark(ierr.ErrInvalidState)
	}

	from := renewalRecord.State
	renewalRecord.State = types.RenewalStateGracePeriod

	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.RenewalRepo.Update(ctx, renewalRecord); err != nil {
			return err
		}
		return s.AuditLogRepo.Insert(ctx, auditlog.NewTransition(ctx, types.AuditEntityTypeRenewal, renewalRecord.ID, from.String(), renewalRecord.State.String(),
			"grace until "+types.FormatDate(renewalRecord.GracePeriodEnd)))
	})
	if err != nil {
		return err
	}

	s.publishNotification(ctx, types.NotificationEventRenewalGrace, renewalRecord.ID)

	return nil
}

// expire closes a renewal whose grace window elapsed and suspends the
// subscription in the same transaction
func (s *renewalService) expire(ctx context.Context, renewalRecord *renewal.Renewal, asOf time.Time) error {
	if !renewalRecord.State.CanTransitionTo(types.RenewalStateExpired) {
		return ierr.NewError("renewal cannot expire").
			WithHint("The renewal state does not allow the expiry transition").
			WithReportableDetails(map[string]interface{}{
				"renewal_id": renewalRecord.ID,
				"state":      renewalRecord.State,
			}).
			Mark(ierr.ErrInvalidState)
	}

	sub, err := s.SubRepo.Get(ctx, renewalRecord.SubscriptionID)
	if err != nil {
		return err
	}

	from := renewalRecord.State
	renewalRecord.State = types.RenewalStateExpired

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.RenewalRepo.Update(ctx, renewalRecord); err != nil {
			return err
		}
		if err := s.AuditLogRepo.Insert(ctx, auditlog.NewTransition(ctx, types.AuditEntityTypeRenewal, renewalRecord.ID, from.String(), renewalRecord.State.String(),
			"grace elapsed "+types.FormatDate(asOf))); err != nil {
			return err
		}

		if sub.State.CanTransitionTo(types.SubscriptionStateSuspended) {
			subFrom := sub.State
			sub.State = types.SubscriptionStateSuspended
			if err := s.SubRepo.Update(ctx, sub); err != nil {
				return err
			}
			return s.AuditLogRepo.Insert(ctx, auditlog.NewTransition(ctx, types.AuditEntityTypeSubscription, sub.ID, subFrom.String(), sub.State.String(),
				"renewal "+renewalRecord.ShortID+" expired"))
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publishNotification(ctx, types.NotificationEventRenewalExpired, renewalRecord.ID)

	return nil
}

// prepareRenewal fills the derived fields of a renewal shell: grace window,
// the due date of the period after next, the renewal price quote with its
// increase comparison, and the first reminder date
func (s *renewalService) prepareRenewal(ctx context.Context, renewalRecord *renewal.Renewal, sub *subscription.Subscription) error {
	renewalRecord.Currency = sub.Currency
	renewalRecord.CurrentPrice = sub.CurrentPrice.Mul(sub.Quantity)

	graceDays := sub.EffectiveGracePeriodDays(s.Config.Billing.GracePeriodDays)
	renewalRecord.GracePeriodEnd = renewalRecord.DueDate.AddDate(0, 0, graceDays)

	nextDue, err := sub.PeriodDefinition().NextOccurrence(renewalRecord.DueDate)
	if err != nil {
		return err
	}
	renewalRecord.NextRenewalDue = nextDue

	// Quote the upcoming period at today's prices so reminders can carry
	// the renewal amount and any increase
	pricingService := NewPricingService(s.ServiceParams)
	quote, err := pricingService.QuoteSubscriptionPeriod(ctx, sub, renewalRecord.DueDate, nextDue.AddDate(0, 0, -1), time.Time{}, false)
	if err != nil {
		return err
	}
	renewalRecord.RenewalPrice = quote.NetAmount
	renewalRecord.MemberDiscount = quote.MemberDiscount
	applyPriceIncrease(renewalRecord)

	schedule, err := sub.EffectiveReminderSchedule(s.Config.Billing.DefaultReminderSchedule)
	if err != nil {
		return err
	}
	if next := schedule.NextReminderDate(renewalRecord.DueDate, time.Time{}, time.Now().UTC()); !next.IsZero() {
		renewalRecord.NextReminderAt = &next
	}

	return nil
}

// applyPriceIncrease compares the renewal price against what the ending
// period cost and sets the increase fields. Flat or cheaper renewals carry
// zeros; the warning flag trips at the threshold but never blocks anything.
func applyPriceIncrease(renewalRecord *renewal.Renewal) {
	renewalRecord.PriceIncreaseAmount = decimal.Zero
	renewalRecord.PriceIncreasePct = decimal.Zero
	renewalRecord.PriceIncreaseWarning = false

	if !renewalRecord.CurrentPrice.IsPositive() {
		return
	}
	if !renewalRecord.RenewalPrice.GreaterThan(renewalRecord.CurrentPrice) {
		return
	}

	renewalRecord.PriceIncreaseAmount = renewalRecord.RenewalPrice.Sub(renewalRecord.CurrentPrice)
	renewalRecord.PriceIncreasePct = renewalRecord.PriceIncreaseAmount.
		Div(renewalRecord.CurrentPrice).
		Mul(decimal.NewFromInt(100)).
		Round(types.DEFAULT_FLOATING_PRECISION)
	renewalRecord.PriceIncreaseWarning = renewalRecord.PriceIncreasePct.GreaterThanOrEqual(types.PriceIncreaseWarningPercent)
}

// toRenewalResponse decorates the renewal with its derived due date fields
func (s *renewalService) toRenewalResponse(renewalRecord *renewal.Renewal) *dto.RenewalResponse {
	now := time.Now().UTC()
	return &dto.RenewalResponse{
		Renewal:      renewalRecord,
		DaysUntilDue: renewalRecord.DaysUntilDue(now),
		IsOverdue:    renewalRecord.IsOverdue(now),
	}
}

// publishNotification emits a renewal event on the notification bus. Sends
// are fire and forget and honor batch suppression.
func (s *renewalService) publishNotification(ctx context.Context, eventName string, renewalID string) {
	if types.NotificationsSuppressed(ctx) {
		return
	}

	payload := &notifyDto.InternalRenewalEvent{
		RenewalID: renewalID,
		TenantID:  types.GetTenantID(ctx),
	}
	if err := s.Sender.SendTemplated(ctx, eventName, "renewal", renewalID, payload); err != nil {
		s.Logger.Errorf("failed to publish %s event: %v", eventName, err)
	}
}
