package service

import (
	"context"
	"time"

	"github.com/memberbill/memberbill/internal/api/dto"
	"github.com/memberbill/memberbill/internal/domain/auditlog"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/types"
)

// SubscriptionService owns the subscription aggregate. Creation spawns the
// initial billing cycle and the first renewal in one transaction; renewal
// processing and expiry move the record from there.
type SubscriptionService interface {
	CreateSubscription(ctx context.Context, req *dto.CreateSubscriptionRequest) (*dto.SubscriptionResponse, error)
	GetSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error)
	ListSubscriptions(ctx context.Context, filter *types.SubscriptionFilter) (*dto.ListSubscriptionsResponse, error)

	// TerminateSubscription ends the subscription now: the open renewal and
	// any unbilled cycles are cancelled with it
	TerminateSubscription(ctx context.Context, id string, req *dto.TerminateSubscriptionRequest) (*dto.SubscriptionResponse, error)
}

type subscriptionService struct {
	ServiceParams
}

// NewSubscriptionService creates a new subscription service
func NewSubscriptionService(params ServiceParams) SubscriptionService {
	return &subscriptionService{
		ServiceParams: params,
	}
}

// CreateSubscription activates a subscription to a recurring product. The
// subscription, its initial billing cycle and its first renewal are created
// in one transaction; the cycle is prorated when the start date falls after
// the billing anchor.
func (s *subscriptionService) CreateSubscription(ctx context.Context, req *dto.CreateSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	subscriberRecord, err := s.SubscriberRepo.Get(ctx, req.SubscriberID)
	if err != nil {
		return nil, err
	}

	prod, err := s.ProductRepo.Get(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if prod.ProductType != types.ProductTypeRecurring {
		return nil, ierr.NewError("product is not recurring").
			WithHint("Subscriptions can only be created for recurring products").
			WithReportableDetails(map[string]interface{}{
				"product_id":   prod.ID,
				"product_type": prod.ProductType,
			}).
			Mark(ierr.ErrValidation)
	}

	sub := req.ToSubscription(ctx)

	// Fill what the request left to the product
	if sub.Currency == "" {
		sub.Currency = prod.Currency
	}
	if sub.BillingPeriod == "" {
		sub.BillingPeriod = prod.BillingPeriod
		sub.BillingPeriodCount = prod.BillingPeriodCount
	} else if sub.BillingPeriodCount == 0 {
		sub.BillingPeriodCount = 1
	}
	if req.AutoRenew != nil {
		sub.AutoRenew = *req.AutoRenew
	} else {
		sub.AutoRenew = prod.AutoRenew
	}
	sub.CurrentPrice = prod.PriceFor(subscriberRecord.QualifiesForMemberPricing())

	// First period bounds from the anchor
	endDate, err := sub.PeriodDefinition().NextOccurrence(sub.CurrentPeriodStart)
	if err != nil {
		return nil, err
	}
	sub.EndDate = endDate
	sub.NextBillingDate = endDate
	periodEnd := endDate.AddDate(0, 0, -1)

	if err := sub.Validate(); err != nil {
		return nil, err
	}

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.SubRepo.Create(ctx, sub); err != nil {
			return err
		}
		if err := s.AuditLogRepo.Insert(ctx, auditlog.New(ctx, types.AuditEntityTypeSubscription, sub.ID, types.AuditEventCreated, map[string]interface{}{
			"state":      sub.State,
			"product_id": sub.ProductID,
			"start_date": types.FormatDate(sub.StartDate),
			"end_date":   types.FormatDate(sub.EndDate),
		})); err != nil {
			return err
		}

		// The signup charge, prorated from the anchor when needed
		billingCycleService := NewBillingCycleService(s.ServiceParams)
		if _, err := billingCycleService.CreateBillingCycle(ctx, &dto.CreateBillingCycleRequest{
			SubscriptionID: sub.ID,
			BillingType:    types.BillingTypeInitial,
			BillingDate:    sub.StartDate,
			PeriodStart:    sub.CurrentPeriodStart,
			PeriodEnd:      periodEnd,
		}); err != nil {
			return err
		}

		// The first renewal, due when the paid up coverage ends
		renewalService := NewRenewalService(s.ServiceParams)
		if _, err := renewalService.CreateRenewal(ctx, &dto.CreateRenewalRequest{
			SubscriptionID:   sub.ID,
			CurrentPeriodEnd: periodEnd,
		}); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("subscription created",
		"subscription_id", sub.ID,
		"subscriber_id", sub.SubscriberID,
		"product_id", sub.ProductID,
		"start_date", types.FormatDate(sub.StartDate),
		"end_date", types.FormatDate(sub.EndDate),
	)

	response := &dto.SubscriptionResponse{Subscription: sub}
	response.WithSubscriber(&dto.SubscriberResponse{Subscriber: subscriberRecord})
	response.WithProduct(&dto.ProductResponse{Product: prod})
	return response, nil
}

// GetSubscription retrieves a subscription with its subscriber and product
// attached
func (s *subscriptionService) GetSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error) {
	sub, err := s.SubRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	response := &dto.SubscriptionResponse{Subscription: sub}

	if subscriberRecord, err := s.SubscriberRepo.Get(ctx, sub.SubscriberID); err == nil {
		response.WithSubscriber(&dto.SubscriberResponse{Subscriber: subscriberRecord})
	}
	if prod, err := s.ProductRepo.Get(ctx, sub.ProductID); err == nil {
		response.WithProduct(&dto.ProductResponse{Product: prod})
	}

	return response, nil
}

// ListSubscriptions lists subscriptions matching the filter
func (s *subscriptionService) ListSubscriptions(ctx context.Context, filter *types.SubscriptionFilter) (*dto.ListSubscriptionsResponse, error) {
	if filter == nil {
		filter = types.NewSubscriptionFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	subs, err := s.SubRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	count, err := s.SubRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := make([]*dto.SubscriptionResponse, len(subs))
	for i, sub := range subs {
		items[i] = &dto.SubscriptionResponse{Subscription: sub}
	}

	return &dto.ListSubscriptionsResponse{
		Items:      items,
		Pagination: types.NewPaginationResponse(count, filter.GetLimit(), filter.GetOffset()),
	}, nil
}

// TerminateSubscription moves the subscription to terminated and closes
// everything still open on it: the open renewal and any cycles that have not
// been billed yet
func (s *subscriptionService) TerminateSubscription(ctx context.Context, id string, req *dto.TerminateSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	sub, err := s.SubRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !sub.State.CanTransitionTo(types.SubscriptionStateTerminated) {
		return nil, ierr.NewError("subscription is already terminated").
			WithHint("Terminated subscriptions cannot be terminated again").
			WithReportableDetails(map[string]interface{}{
				"subscription_id": sub.ID,
				"state":           sub.State,
			}).
			Mark(ierr.ErrInvalidState)
	}

	reason := ""
	if req != nil {
		reason = req.Reason
	}

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		// Close the open renewal if one exists
		open, err := s.RenewalRepo.GetOpenBySubscription(ctx, sub.ID)
		if err != nil && !ierr.IsNotFound(err) {
			return err
		}
		if open != nil && open.State.CanTransitionTo(types.RenewalStateCancelled) {
			renewalService := NewRenewalService(s.ServiceParams)
			if _, err := renewalService.CancelRenewal(ctx, open.ID, &dto.CancelRenewalRequest{Reason: "subscription terminated"}); err != nil {
				return err
			}
		}

		// Void cycles that never reached billed
		cycles, err := s.BillingCycleRepo.ListBySubscription(ctx, sub.ID)
		if err != nil {
			return err
		}
		billingCycleService := NewBillingCycleService(s.ServiceParams)
		for _, cycle := range cycles {
			if !cycle.State.CanTransitionTo(types.BillingCycleStateCancelled) {
				continue
			}
			if _, err := billingCycleService.CancelBillingCycle(ctx, cycle.ID, &dto.CancelBillingCycleRequest{Reason: "subscription terminated"}); err != nil {
				return err
			}
		}

		from := sub.State
		now := time.Now().UTC()
		sub.State = types.SubscriptionStateTerminated
		sub.CancelledAt = &now
		sub.AutoRenew = false
		if err := s.SubRepo.Update(ctx, sub); err != nil {
			return err
		}
		return s.AuditLogRepo.Insert(ctx, auditlog.NewTransition(ctx, types.AuditEntityTypeSubscription, sub.ID, from.String(), sub.State.String(), reason))
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("subscription terminated",
		"subscription_id", sub.ID,
		"reason", reason,
	)

	return &dto.SubscriptionResponse{Subscription: sub}, nil
}
