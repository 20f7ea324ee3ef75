package dto

import (
	"context"
	"time"

	"github.com/memberbill/memberbill/internal/domain/subscriber"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/types"
	"github.com/memberbill/memberbill/internal/validator"
)

type CreateSubscriberRequest struct {
	ExternalID        string                 `json:"external_id"`
	Name              string                 `json:"name" validate:"required"`
	Email             string                 `json:"email" validate:"omitempty,email"`
	IsMember          bool                   `json:"is_member"`
	MembershipStatus  types.MembershipStatus `json:"membership_status"`
	MemberSince       *time.Time             `json:"member_since,omitempty"`
	Currency          string                 `json:"currency" validate:"omitempty,len=3"`
	AddressLine1      string                 `json:"address_line1" validate:"omitempty,max=255"`
	AddressLine2      string                 `json:"address_line2" validate:"omitempty,max=255"`
	AddressCity       string                 `json:"address_city" validate:"omitempty,max=100"`
	AddressPostalCode string                 `json:"address_postal_code" validate:"omitempty,max=20"`
	AddressCountry    string                 `json:"address_country" validate:"omitempty,len=2,iso3166_1_alpha2"`
	Metadata          types.Metadata         `json:"metadata,omitempty"`
}

type UpdateSubscriberRequest struct {
	Name                  *string                 `json:"name"`
	Email                 *string                 `json:"email" validate:"omitempty,email"`
	IsMember              *bool                   `json:"is_member"`
	MembershipStatus      *types.MembershipStatus `json:"membership_status"`
	MemberSince           *time.Time              `json:"member_since,omitempty"`
	HasOutstandingBalance *bool                   `json:"has_outstanding_balance"`
	AddressLine1          *string                 `json:"address_line1" validate:"omitempty,max=255"`
	AddressLine2          *string                 `json:"address_line2" validate:"omitempty,max=255"`
	AddressCity           *string                 `json:"address_city" validate:"omitempty,max=100"`
	AddressPostalCode     *string                 `json:"address_postal_code" validate:"omitempty,max=20"`
	AddressCountry        *string                 `json:"address_country" validate:"omitempty,len=2,iso3166_1_alpha2"`
	Metadata              types.Metadata          `json:"metadata,omitempty"`
}

type SubscriberResponse struct {
	*subscriber.Subscriber
}

// ListSubscribersResponse represents the response for listing subscribers
type ListSubscribersResponse = types.ListResponse[*SubscriberResponse]

func (r *CreateSubscriberRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.MembershipStatus != "" {
		if err := r.MembershipStatus.Validate(); err != nil {
			return err
		}
	}
	if r.IsMember && (r.MembershipStatus == "" || r.MembershipStatus == types.MembershipStatusNone) {
		return ierr.NewError("member flag set without membership status").
			WithHint("A member must have an active or lapsed membership status").
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (r *CreateSubscriberRequest) ToSubscriber(ctx context.Context) *subscriber.Subscriber {
	status := r.MembershipStatus
	if status == "" {
		status = types.MembershipStatusNone
	}
	return &subscriber.Subscriber{
		ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIBER),
		ExternalID:        r.ExternalID,
		Name:              r.Name,
		Email:             r.Email,
		IsMember:          r.IsMember,
		MembershipStatus:  status,
		MemberSince:       r.MemberSince,
		Currency:          r.Currency,
		AddressLine1:      r.AddressLine1,
		AddressLine2:      r.AddressLine2,
		AddressCity:       r.AddressCity,
		AddressPostalCode: r.AddressPostalCode,
		AddressCountry:    r.AddressCountry,
		Metadata:          r.Metadata,
		EnvironmentID:     types.GetEnvironmentID(ctx),
		BaseModel:         types.GetDefaultBaseModel(ctx),
	}
}

func (r *UpdateSubscriberRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.MembershipStatus != nil {
		if err := r.MembershipStatus.Validate(); err != nil {
			return err
		}
	}
	return nil
}
