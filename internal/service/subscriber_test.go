package service

import (
	"testing"
	"time"

	"github.com/memberbill/memberbill/internal/api/dto"
	"github.com/memberbill/memberbill/internal/domain/pricing"
	"github.com/memberbill/memberbill/internal/domain/product"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/testutil"
	"github.com/memberbill/memberbill/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type SubscriberServiceSuite struct {
	testutil.BaseServiceTestSuite
	service SubscriberService
}

func TestSubscriberService(t *testing.T) {
	suite.Run(t, new(SubscriberServiceSuite))
}

func (s *SubscriberServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.ClearStores()
	s.service = NewSubscriberService(s.serviceParams())
}

func (s *SubscriberServiceSuite) TearDownTest() {
	s.BaseServiceTestSuite.TearDownTest()
	s.BaseServiceTestSuite.ClearStores()
}

func (s *SubscriberServiceSuite) serviceParams() ServiceParams {
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

func (s *SubscriberServiceSuite) TestCreateSubscriber() {
	memberSince := time.Date(2019, 6, 15, 0, 0, 0, 0, time.UTC)
	resp, err := s.service.CreateSubscriber(s.GetContext(), &dto.CreateSubscriberRequest{
		ExternalID:       "ext_mem_551",
		Name:             "Mara Okafor",
		Email:            "mara@example.com",
		IsMember:         true,
		MembershipStatus: types.MembershipStatusActive,
		MemberSince:      &memberSince,
		Currency:         "eur",
		AddressLine1:     "12 Harbor Lane",
		AddressCity:      "Rotterdam",
		AddressCountry:   "NL",
		Metadata:         types.Metadata{"chapter": "west"},
	})
	s.NoError(err)

	s.NotEmpty(resp.ID)
	s.Equal("ext_mem_551", resp.ExternalID)
	s.Equal("Mara Okafor", resp.Name)
	s.Equal("eur", resp.Currency)
	s.True(resp.QualifiesForMemberPricing())
	s.NotNil(resp.MemberSince)
	s.Equal("west", resp.Metadata["chapter"])

	// Left blank, the currency and membership status get defaults
	plain, err := s.service.CreateSubscriber(s.GetContext(), &dto.CreateSubscriberRequest{
		Name: "Walk In Guest",
	})
	s.NoError(err)
	s.Equal("usd", plain.Currency)
	s.Equal(types.MembershipStatusNone, plain.MembershipStatus)
	s.False(plain.QualifiesForMemberPricing())
}

func (s *SubscriberServiceSuite) TestCreateSubscriberDuplicateExternalID() {
	_, err := s.service.CreateSubscriber(s.GetContext(), &dto.CreateSubscriberRequest{
		ExternalID: "ext_mem_700",
		Name:       "First Registration",
	})
	s.NoError(err)

	_, err = s.service.CreateSubscriber(s.GetContext(), &dto.CreateSubscriberRequest{
		ExternalID: "ext_mem_700",
		Name:       "Second Registration",
	})
	s.Error(err)
	s.True(ierr.IsAlreadyExists(err), "unexpected error class: %v", err)

	// Subscribers without an upstream identity are never treated as duplicates
	_, err = s.service.CreateSubscriber(s.GetContext(), &dto.CreateSubscriberRequest{Name: "Anonymous One"})
	s.NoError(err)
	_, err = s.service.CreateSubscriber(s.GetContext(), &dto.CreateSubscriberRequest{Name: "Anonymous Two"})
	s.NoError(err)
}

func (s *SubscriberServiceSuite) TestCreateSubscriberValidation() {
	testCases := []struct {
		name string
		req  *dto.CreateSubscriberRequest
	}{
		{
			name: "missing name",
			req:  &dto.CreateSubscriberRequest{Email: "anon@example.com"},
		},
		{
			name: "member without membership status",
			req:  &dto.CreateSubscriberRequest{Name: "Flagged Member", IsMember: true},
		},
		{
			name: "invalid membership status",
			req: &dto.CreateSubscriberRequest{
				Name:             "Gold Member",
				IsMember:         true,
				MembershipStatus: types.MembershipStatus("gold"),
			},
		},
		{
			name: "invalid email",
			req:  &dto.CreateSubscriberRequest{Name: "Bad Email", Email: "not-an-email"},
		},
		{
			name: "invalid country code",
			req:  &dto.CreateSubscriberRequest{Name: "Bad Country", AddressCountry: "USA"},
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			_, err := s.service.CreateSubscriber(s.GetContext(), tc.req)
			s.Error(err)
			s.True(ierr.IsValidation(err), "unexpected error class: %v", err)
		})
	}
}

func (s *SubscriberServiceSuite) TestGetSubscriberByExternalID() {
	created, err := s.service.CreateSubscriber(s.GetContext(), &dto.CreateSubscriberRequest{
		ExternalID: "ext_mem_808",
		Name:       "Linked Member",
	})
	s.NoError(err)

	resp, err := s.service.GetSubscriberByExternalID(s.GetContext(), "ext_mem_808")
	s.NoError(err)
	s.Equal(created.ID, resp.ID)

	_, err = s.service.GetSubscriberByExternalID(s.GetContext(), "")
	s.Error(err)
	s.True(ierr.IsValidation(err), "unexpected error class: %v", err)

	_, err = s.service.GetSubscriberByExternalID(s.GetContext(), "ext_mem_unknown")
	s.Error(err)
	s.True(ierr.IsNotFound(err), "unexpected error class: %v", err)
}

func (s *SubscriberServiceSuite) TestUpdateSubscriber() {
	created, err := s.service.CreateSubscriber(s.GetContext(), &dto.CreateSubscriberRequest{
		ExternalID:       "ext_mem_900",
		Name:             "Theo Brandt",
		Email:            "theo@example.com",
		IsMember:         true,
		MembershipStatus: types.MembershipStatusActive,
		AddressCity:      "Leipzig",
	})
	s.NoError(err)
	s.True(created.QualifiesForMemberPricing())

	// A lapsed membership keeps the member flag but loses member pricing
	resp, err := s.service.UpdateSubscriber(s.GetContext(), created.ID, &dto.UpdateSubscriberRequest{
		MembershipStatus:      lo.ToPtr(types.MembershipStatusLapsed),
		HasOutstandingBalance: lo.ToPtr(true),
	})
	s.NoError(err)
	s.True(resp.IsMember)
	s.Equal(types.MembershipStatusLapsed, resp.MembershipStatus)
	s.False(resp.QualifiesForMemberPricing())
	s.True(resp.HasOutstandingBalance)

	// Untouched fields survive a partial update
	s.Equal("Theo Brandt", resp.Name)
	s.Equal("theo@example.com", resp.Email)
	s.Equal("Leipzig", resp.AddressCity)

	resp, err = s.service.UpdateSubscriber(s.GetContext(), created.ID, &dto.UpdateSubscriberRequest{
		AddressCity: lo.ToPtr("Dresden"),
	})
	s.NoError(err)
	s.Equal("Dresden", resp.AddressCity)
	s.Equal(types.MembershipStatusLapsed, resp.MembershipStatus)
}

func (s *SubscriberServiceSuite) TestUpdateSubscriberErrors() {
	_, err := s.service.UpdateSubscriber(s.GetContext(), "", &dto.UpdateSubscriberRequest{})
	s.Error(err)
	s.True(ierr.IsValidation(err), "unexpected error class: %v", err)

	_, err = s.service.UpdateSubscriber(s.GetContext(), "sub_missing", &dto.UpdateSubscriberRequest{})
	s.Error(err)
	s.True(ierr.IsNotFound(err), "unexpected error class: %v", err)

	created, err := s.service.CreateSubscriber(s.GetContext(), &dto.CreateSubscriberRequest{Name: "Valid Member"})
	s.NoError(err)

	_, err = s.service.UpdateSubscriber(s.GetContext(), created.ID, &dto.UpdateSubscriberRequest{
		MembershipStatus: lo.ToPtr(types.MembershipStatus("platinum")),
	})
	s.Error(err)
	s.True(ierr.IsValidation(err), "unexpected error class: %v", err)
}

func (s *SubscriberServiceSuite) TestDeleteSubscriber() {
	created, err := s.service.CreateSubscriber(s.GetContext(), &dto.CreateSubscriberRequest{
		Name: "Departing Guest",
	})
	s.NoError(err)

	s.NoError(s.service.DeleteSubscriber(s.GetContext(), created.ID))

	_, err = s.service.GetSubscriber(s.GetContext(), created.ID)
	s.Error(err)
	s.True(ierr.IsNotFound(err), "unexpected error class: %v", err)

	err = s.service.DeleteSubscriber(s.GetContext(), "sub_missing")
	s.Error(err)
	s.True(ierr.IsNotFound(err), "unexpected error class: %v", err)
}

func (s *SubscriberServiceSuite) TestDeleteSubscriberWithOpenSubscriptions() {
	member, err := s.service.CreateSubscriber(s.GetContext(), &dto.CreateSubscriberRequest{
		Name:             "Committed Member",
		IsMember:         true,
		MembershipStatus: types.MembershipStatusActive,
	})
	s.NoError(err)

	prod := &product.Product{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PRODUCT),
		LookupKey:          "annual-membership",
		Name:               "Annual Membership",
		ProductType:        types.ProductTypeRecurring,
		ListPrice:          decimal.NewFromInt(100),
		MemberPrice:        decimal.NewFromInt(80),
		Currency:           "usd",
		BillingPeriod:      types.BILLING_PERIOD_ANNUAL,
		BillingPeriodCount: 1,
		RevenueRecognition: types.RevenueRecognitionImmediate,
		GracePeriodDays:    14,
		AutoRenew:          true,
		EnvironmentID:      types.GetEnvironmentID(s.GetContext()),
		BaseModel:          types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().ProductRepo.Create(s.GetContext(), prod))

	subscriptionService := NewSubscriptionService(s.serviceParams())
	sub, err := subscriptionService.CreateSubscription(s.GetContext(), &dto.CreateSubscriptionRequest{
		SubscriberID: member.ID,
		ProductID:    prod.ID,
	})
	s.NoError(err)

	err = s.service.DeleteSubscriber(s.GetContext(), member.ID)
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err), "unexpected error class: %v", err)

	_, err = subscriptionService.TerminateSubscription(s.GetContext(), sub.ID, nil)
	s.NoError(err)

	s.NoError(s.service.DeleteSubscriber(s.GetContext(), member.ID))
}

func (s *SubscriberServiceSuite) TestListSubscribers() {
	_, err := s.service.CreateSubscriber(s.GetContext(), &dto.CreateSubscriberRequest{
		ExternalID:       "ext_mem_1",
		Name:             "Active Member",
		Email:            "active@example.com",
		IsMember:         true,
		MembershipStatus: types.MembershipStatusActive,
	})
	s.NoError(err)
	_, err = s.service.CreateSubscriber(s.GetContext(), &dto.CreateSubscriberRequest{
		ExternalID:       "ext_mem_2",
		Name:             "Lapsed Member",
		IsMember:         true,
		MembershipStatus: types.MembershipStatusLapsed,
	})
	s.NoError(err)
	_, err = s.service.CreateSubscriber(s.GetContext(), &dto.CreateSubscriberRequest{
		ExternalID: "ext_mem_3",
		Name:       "Casual Guest",
	})
	s.NoError(err)

	all, err := s.service.ListSubscribers(s.GetContext(), nil)
	s.NoError(err)
	s.Equal(3, all.Pagination.Total)

	active := types.NewSubscriberFilter()
	active.MembershipStatuses = []types.MembershipStatus{types.MembershipStatusActive}
	resp, err := s.service.ListSubscribers(s.GetContext(), active)
	s.NoError(err)
	s.Equal(1, resp.Pagination.Total)
	s.Equal("Active Member", resp.Items[0].Name)

	members := types.NewSubscriberFilter()
	members.IsMember = lo.ToPtr(true)
	resp, err = s.service.ListSubscribers(s.GetContext(), members)
	s.NoError(err)
	s.Equal(2, resp.Pagination.Total)

	byEmail := types.NewSubscriberFilter()
	byEmail.Email = "ACTIVE@example.com"
	resp, err = s.service.ListSubscribers(s.GetContext(), byEmail)
	s.NoError(err)
	s.Equal(1, resp.Pagination.Total)

	byExternal := types.NewSubscriberFilter()
	byExternal.ExternalIDs = []string{"ext_mem_2"}
	resp, err = s.service.ListSubscribers(s.GetContext(), byExternal)
	s.NoError(err)
	s.Equal(1, resp.Pagination.Total)
	s.Equal("Lapsed Member", resp.Items[0].Name)
}
