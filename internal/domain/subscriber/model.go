package subscriber

import (
	"time"

	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/types"
)

// Subscriber represents a billable party: the person or organization that
// holds subscriptions and receives invoices.
type Subscriber struct {
	// ID is the unique identifier for the subscriber
	ID string `db:"id" json:"id"`

	// ExternalID is the identifier of the subscriber in an upstream CRM
	ExternalID string `db:"external_id" json:"external_id"`

	// Name is the display name of the subscriber
	Name string `db:"name" json:"name"`

	// Email is the primary contact email of the subscriber
	Email string `db:"email" json:"email"`

	// IsMember marks the subscriber as a member of the organization
	IsMember bool `db:"is_member" json:"is_member"`

	// MembershipStatus qualifies the membership: only active unlocks member pricing
	MembershipStatus types.MembershipStatus `db:"membership_status" json:"membership_status"`

	// MemberSince is the date the current membership started
	MemberSince *time.Time `db:"member_since" json:"member_since,omitempty"`

	// Currency is the preferred billing currency (three letter ISO code,
	// lowercase). Empty means the product currency applies.
	Currency string `db:"currency" json:"currency"`

	// HasOutstandingBalance marks unpaid dues in the upstream ledger. The
	// billing core only reads it; collection lives elsewhere.
	HasOutstandingBalance bool `db:"has_outstanding_balance" json:"has_outstanding_balance"`

	// AddressLine1 is the first line of the subscriber's address
	AddressLine1 string `db:"address_line1" json:"address_line1"`

	// AddressLine2 is the second line of the subscriber's address
	AddressLine2 string `db:"address_line2" json:"address_line2"`

	// AddressCity is the city of the subscriber's address
	AddressCity string `db:"address_city" json:"address_city"`

	// AddressPostalCode is the postal code of the subscriber's address
	AddressPostalCode string `db:"address_postal_code" json:"address_postal_code"`

	// AddressCountry is the country of the subscriber's address (ISO 3166-1 alpha-2)
	AddressCountry string `db:"address_country" json:"address_country"`

	// Metadata
	Metadata types.Metadata `db:"metadata" json:"metadata"`

	// EnvironmentID is the environment identifier for the subscriber
	EnvironmentID string `db:"environment_id" json:"environment_id"`

	types.BaseModel
}

// QualifiesForMemberPricing reports whether member rates apply. Both the
// member flag and an active membership status are required; a lapsed member
// pays list price.
func (s *Subscriber) QualifiesForMemberPricing() bool {
	return s.IsMember && s.MembershipStatus == types.MembershipStatusActive
}

// Validate checks subscriber fields before persistence
func (s *Subscriber) Validate() error {
	if s.Name == "" {
		return ierr.NewError("subscriber name is required").
			WithHint("Subscriber name is required").
			Mark(ierr.ErrValidation)
	}
	if s.MembershipStatus != "" {
		if err := s.MembershipStatus.Validate(); err != nil {
			return err
		}
	}
	if s.IsMember && s.MembershipStatus == types.MembershipStatusNone {
		return ierr.NewError("member flag set without membership status").
			WithHint("A member must have an active or lapsed membership status").
			WithReportableDetails(map[string]any{
				"subscriber_id": s.ID,
			}).
			Mark(ierr.ErrValidation)
	}
	if s.AddressCountry != "" && len(s.AddressCountry) != 2 {
		return ierr.NewError("invalid country code format").
			WithHint("Country code must be 2 characters").
			Mark(ierr.ErrValidation)
	}
	return nil
}
