package service

import (
	"context"

	"github.com/memberbill/memberbill/internal/api/dto"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/types"
)

// SubscriberService defines the interface for subscriber operations
type SubscriberService interface {
	CreateSubscriber(ctx context.Context, req *dto.CreateSubscriberRequest) (*dto.SubscriberResponse, error)
	GetSubscriber(ctx context.Context, id string) (*dto.SubscriberResponse, error)
	GetSubscriberByExternalID(ctx context.Context, externalID string) (*dto.SubscriberResponse, error)
	ListSubscribers(ctx context.Context, filter *types.SubscriberFilter) (*dto.ListSubscribersResponse, error)
	UpdateSubscriber(ctx context.Context, id string, req *dto.UpdateSubscriberRequest) (*dto.SubscriberResponse, error)
	DeleteSubscriber(ctx context.Context, id string) error
}

type subscriberService struct {
	ServiceParams
}

// NewSubscriberService creates a new subscriber service
func NewSubscriberService(params ServiceParams) SubscriberService {
	return &subscriberService{
		ServiceParams: params,
	}
}

// CreateSubscriber creates a new subscriber
func (s *subscriberService) CreateSubscriber(ctx context.Context, req *dto.CreateSubscriberRequest) (*dto.SubscriberResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.ExternalID != "" {
		existing, err := s.SubscriberRepo.GetByExternalID(ctx, req.ExternalID)
		if err != nil && !ierr.IsNotFound(err) {
			return nil, err
		}
		if existing != nil {
			return nil, ierr.NewError("subscriber with this external id already exists").
				WithHint("A subscriber with the same external ID already exists").
				WithReportableDetails(map[string]interface{}{
					"external_id": req.ExternalID,
				}).
				Mark(ierr.ErrAlreadyExists)
		}
	}

	subscriberRecord := req.ToSubscriber(ctx)
	if subscriberRecord.Currency == "" {
		subscriberRecord.Currency = s.Config.Billing.DefaultCurrency
	}
	if err := subscriberRecord.Validate(); err != nil {
		return nil, err
	}

	if err := s.SubscriberRepo.Create(ctx, subscriberRecord); err != nil {
		return nil, err
	}

	return &dto.SubscriberResponse{Subscriber: subscriberRecord}, nil
}

// GetSubscriber retrieves a subscriber by ID
func (s *subscriberService) GetSubscriber(ctx context.Context, id string) (*dto.SubscriberResponse, error) {
	subscriberRecord, err := s.SubscriberRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.SubscriberResponse{Subscriber: subscriberRecord}, nil
}

// GetSubscriberByExternalID retrieves a subscriber by external ID
func (s *subscriberService) GetSubscriberByExternalID(ctx context.Context, externalID string) (*dto.SubscriberResponse, error) {
	if externalID == "" {
		return nil, ierr.NewError("external id is required").
			WithHint("External ID is required").
			Mark(ierr.ErrValidation)
	}

	subscriberRecord, err := s.SubscriberRepo.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	return &dto.SubscriberResponse{Subscriber: subscriberRecord}, nil
}

// ListSubscribers lists subscribers matching the filter
func (s *subscriberService) ListSubscribers(ctx context.Context, filter *types.SubscriberFilter) (*dto.ListSubscribersResponse, error) {
	if filter == nil {
		filter = types.NewSubscriberFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	subscribers, err := s.SubscriberRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	count, err := s.SubscriberRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := make([]*dto.SubscriberResponse, len(subscribers))
	for i, subscriberRecord := range subscribers {
		items[i] = &dto.SubscriberResponse{Subscriber: subscriberRecord}
	}

	return &dto.ListSubscribersResponse{
		Items:      items,
		Pagination: types.NewPaginationResponse(count, filter.GetLimit(), filter.GetOffset()),
	}, nil
}

// UpdateSubscriber updates a subscriber
func (s *subscriberService) UpdateSubscriber(ctx context.Context, id string, req *dto.UpdateSubscriberRequest) (*dto.SubscriberResponse, error) {
	if id == "" {
		return nil, ierr.NewError("subscriber id is required").
			WithHint("Subscriber ID is required").
			Mark(ierr.ErrValidation)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	subscriberRecord, err := s.SubscriberRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		subscriberRecord.Name = *req.Name
	}
	if req.Email != nil {
		subscriberRecord.Email = *req.Email
	}
	if req.IsMember != nil {
		subscriberRecord.IsMember = *req.IsMember
	}
	if req.MembershipStatus != nil {
		subscriberRecord.MembershipStatus = *req.MembershipStatus
	}
	if req.MemberSince != nil {
		subscriberRecord.MemberSince = req.MemberSince
	}
	if req.HasOutstandingBalance != nil {
		subscriberRecord.HasOutstandingBalance = *req.HasOutstandingBalance
	}
	if req.AddressLine1 != nil {
		subscriberRecord.AddressLine1 = *req.AddressLine1
	}
	if req.AddressLine2 != nil {
		subscriberRecord.AddressLine2 = *req.AddressLine2
	}
	if req.AddressCity != nil {
		subscriberRecord.AddressCity = *req.AddressCity
	}
	if req.AddressPostalCode != nil {
		subscriberRecord.AddressPostalCode = *req.AddressPostalCode
	}
	if req.AddressCountry != nil {
		subscriberRecord.AddressCountry = *req.AddressCountry
	}
	if req.Metadata != nil {
		subscriberRecord.Metadata = req.Metadata
	}

	if err := subscriberRecord.Validate(); err != nil {
		return nil, err
	}

	if err := s.SubscriberRepo.Update(ctx, subscriberRecord); err != nil {
		return nil, err
	}

	return &dto.SubscriberResponse{Subscriber: subscriberRecord}, nil
}

// DeleteSubscriber deletes a subscriber without open subscriptions
func (s *subscriberService) DeleteSubscriber(ctx context.Context, id string) error {
	if _, err := s.SubscriberRepo.Get(ctx, id); err != nil {
		return err
	}

	subs, err := s.SubRepo.List(ctx, &types.SubscriptionFilter{
		QueryFilter:   types.NewNoLimitQueryFilter(),
		SubscriberIDs: []string{id},
		States: []types.SubscriptionState{
			types.SubscriptionStateActive,
			types.SubscriptionStateSuspended,
		},
	})
	if err != nil {
		return err
	}
	if len(subs) > 0 {
		return ierr.NewError("subscriber has open subscriptions").
			WithHint("Terminate the subscriber's subscriptions before deleting").
			WithReportableDetails(map[string]interface{}{
				"subscriber_id": id,
				"subscriptions": len(subs),
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	return s.SubscriberRepo.Delete(ctx, id)
}
