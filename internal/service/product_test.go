package service

import (
	"testing"

	"github.com/memberbill/memberbill/internal/api/dto"
	"github.com/memberbill/memberbill/internal/domain/pricing"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/testutil"
	"github.com/memberbill/memberbill/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type ProductServiceSuite struct {
	testutil.BaseServiceTestSuite
	service ProductService
}

func TestProductService(t *testing.T) {
	suite.Run(t, new(ProductServiceSuite))
}

func (s *ProductServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.ClearStores()
	s.service = NewProductService(s.serviceParams())
}

func (s *ProductServiceSuite) TearDownTest() {
	s.BaseServiceTestSuite.TearDownTest()
	s.BaseServiceTestSuite.ClearStores()
}

func (s *ProductServiceSuite) serviceParams() ServiceParams {
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

func (s *ProductServiceSuite) annualMembershipRequest() *dto.CreateProductRequest {
	return &dto.CreateProductRequest{
		LookupKey:                   "annual-membership",
		Name:                        "Annual Membership",
		ProductType:                 types.ProductTypeRecurring,
		Category:                    "membership",
		ListPrice:                   decimal.NewFromInt(100),
		MemberPrice:                 decimal.NewFromInt(80),
		AdditionalMemberDiscountPct: decimal.NewFromInt(10),
		Currency:                    "usd",
		BillingPeriod:               types.BILLING_PERIOD_ANNUAL,
		GracePeriodDays:             14,
		AutoRenew:                   true,
		ReminderSchedule:            "30,15,7",
	}
}

func (s *ProductServiceSuite) TestCreateProduct() {
	req := s.annualMembershipRequest()
	req.Currency = "USD"
	resp, err := s.service.CreateProduct(s.GetContext(), req)
	s.NoError(err)

	s.NotEmpty(resp.ID)
	s.Equal("annual-membership", resp.LookupKey)
	s.Equal(types.ProductTypeRecurring, resp.ProductType)
	s.True(resp.ListPrice.Equal(decimal.NewFromInt(100)))
	s.True(resp.MemberPrice.Equal(decimal.NewFromInt(80)))
	s.True(resp.MemberSavingsPerUnit().Equal(decimal.NewFromInt(20)))

	// Normalized and defaulted on the way in
	s.Equal("usd", resp.Currency)
	s.Equal(1, resp.BillingPeriodCount)
	s.Equal(types.RevenueRecognitionImmediate, resp.RevenueRecognition)
}

func (s *ProductServiceSuite) TestCreateProductDuplicateLookupKey() {
	_, err := s.service.CreateProduct(s.GetContext(), s.annualMembershipRequest())
	s.NoError(err)

	dup := s.annualMembershipRequest()
	dup.Name = "Annual Membership 2026"
	_, err = s.service.CreateProduct(s.GetContext(), dup)
	s.Error(err)
	s.True(ierr.IsAlreadyExists(err), "unexpected error class: %v", err)
}

func (s *ProductServiceSuite) TestCreateProductValidation() {
	testCases := []struct {
		name    string
		mutate  func(req *dto.CreateProductRequest)
		errorIs func(error) bool
	}{
		{
			name:    "missing lookup key",
			mutate:  func(req *dto.CreateProductRequest) { req.LookupKey = "" },
			errorIs: ierr.IsValidation,
		},
		{
			name:    "missing name",
			mutate:  func(req *dto.CreateProductRequest) { req.Name = "" },
			errorIs: ierr.IsValidation,
		},
		{
			name:    "missing currency",
			mutate:  func(req *dto.CreateProductRequest) { req.Currency = "" },
			errorIs: ierr.IsValidation,
		},
		{
			name:    "negative list price",
			mutate:  func(req *dto.CreateProductRequest) { req.ListPrice = decimal.NewFromInt(-1) },
			errorIs: ierr.IsValidation,
		},
		{
			name: "discount above one hundred percent",
			mutate: func(req *dto.CreateProductRequest) {
				req.AdditionalMemberDiscountPct = decimal.NewFromInt(120)
			},
			errorIs: ierr.IsValidation,
		},
		{
			name:    "malformed reminder schedule",
			mutate:  func(req *dto.CreateProductRequest) { req.ReminderSchedule = "30,soon,7" },
			errorIs: ierr.IsConfiguration,
		},
		{
			name:    "recurring product without billing period",
			mutate:  func(req *dto.CreateProductRequest) { req.BillingPeriod = "" },
			errorIs: ierr.IsConfiguration,
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			req := s.annualMembershipRequest()
			tc.mutate(req)
			_, err := s.service.CreateProduct(s.GetContext(), req)
			s.Error(err)
			s.True(tc.errorIs(err), "unexpected error class: %v", err)
		})
	}
}

func (s *ProductServiceSuite) TestGetProductByLookupKey() {
	created, err := s.service.CreateProduct(s.GetContext(), s.annualMembershipRequest())
	s.NoError(err)

	resp, err := s.service.GetProductByLookupKey(s.GetContext(), "annual-membership")
	s.NoError(err)
	s.Equal(created.ID, resp.ID)

	_, err = s.service.GetProductByLookupKey(s.GetContext(), "")
	s.Error(err)
	s.True(ierr.IsValidation(err), "unexpected error class: %v", err)

	_, err = s.service.GetProductByLookupKey(s.GetContext(), "gala-ticket")
	s.Error(err)
	s.True(ierr.IsNotFound(err), "unexpected error class: %v", err)
}

func (s *ProductServiceSuite) TestUpdateProduct() {
	created, err := s.service.CreateProduct(s.GetContext(), s.annualMembershipRequest())
	s.NoError(err)

	resp, err := s.service.UpdateProduct(s.GetContext(), created.ID, &dto.UpdateProductRequest{
		ListPrice:   lo.ToPtr(decimal.NewFromInt(150)),
		MemberPrice: lo.ToPtr(decimal.NewFromInt(120)),
	})
	s.NoError(err)
	s.True(resp.ListPrice.Equal(decimal.NewFromInt(150)))
	s.True(resp.MemberPrice.Equal(decimal.NewFromInt(120)))

	// Fields absent from the request stay as they were
	s.Equal("Annual Membership", resp.Name)
	s.Equal("30,15,7", resp.ReminderSchedule)
	s.True(resp.AutoRenew)

	resp, err = s.service.UpdateProduct(s.GetContext(), created.ID, &dto.UpdateProductRequest{
		Name:             lo.ToPtr("Annual Membership Plus"),
		ReminderSchedule: lo.ToPtr("45,30,15,7"),
	})
	s.NoError(err)
	s.Equal("Annual Membership Plus", resp.Name)
	s.Equal("45,30,15,7", resp.ReminderSchedule)
	s.True(resp.ListPrice.Equal(decimal.NewFromInt(150)))
}

func (s *ProductServiceSuite) TestUpdateProductErrors() {
	_, err := s.service.UpdateProduct(s.GetContext(), "", &dto.UpdateProductRequest{})
	s.Error(err)
	s.True(ierr.IsValidation(err), "unexpected error class: %v", err)

	_, err = s.service.UpdateProduct(s.GetContext(), "prod_missing", &dto.UpdateProductRequest{})
	s.Error(err)
	s.True(ierr.IsNotFound(err), "unexpected error class: %v", err)

	created, err := s.service.CreateProduct(s.GetContext(), s.annualMembershipRequest())
	s.NoError(err)

	_, err = s.service.UpdateProduct(s.GetContext(), created.ID, &dto.UpdateProductRequest{
		ReminderSchedule: lo.ToPtr("soon"),
	})
	s.Error(err)
	s.True(ierr.IsConfiguration(err), "unexpected error class: %v", err)

	_, err = s.service.UpdateProduct(s.GetContext(), created.ID, &dto.UpdateProductRequest{
		ListPrice: lo.ToPtr(decimal.NewFromInt(-10)),
	})
	s.Error(err)
	s.True(ierr.IsValidation(err), "unexpected error class: %v", err)
}

func (s *ProductServiceSuite) TestDeleteProduct() {
	created, err := s.service.CreateProduct(s.GetContext(), s.annualMembershipRequest())
	s.NoError(err)

	s.NoError(s.service.DeleteProduct(s.GetContext(), created.ID))

	_, err = s.service.GetProduct(s.GetContext(), created.ID)
	s.Error(err)
	s.True(ierr.IsNotFound(err), "unexpected error class: %v", err)

	err = s.service.DeleteProduct(s.GetContext(), "prod_missing")
	s.Error(err)
	s.True(ierr.IsNotFound(err), "unexpected error class: %v", err)
}

func (s *ProductServiceSuite) TestDeleteProductWithSubscriptions() {
	created, err := s.service.CreateProduct(s.GetContext(), s.annualMembershipRequest())
	s.NoError(err)

	member, err := NewSubscriberService(s.serviceParams()).CreateSubscriber(s.GetContext(), &dto.CreateSubscriberRequest{
		Name:             "Holding Member",
		IsMember:         true,
		MembershipStatus: types.MembershipStatusActive,
	})
	s.NoError(err)

	subscriptionService := NewSubscriptionService(s.serviceParams())
	sub, err := subscriptionService.CreateSubscription(s.GetContext(), &dto.CreateSubscriptionRequest{
		SubscriberID: member.ID,
		ProductID:    created.ID,
	})
	s.NoError(err)

	err = s.service.DeleteProduct(s.GetContext(), created.ID)
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err), "unexpected error class: %v", err)

	// Terminated subscriptions still reference the product; only removing
	// them frees it
	_, err = subscriptionService.TerminateSubscription(s.GetContext(), sub.ID, nil)
	s.NoError(err)
	err = s.service.DeleteProduct(s.GetContext(), created.ID)
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err), "unexpected error class: %v", err)

	s.NoError(s.GetStores().SubscriptionRepo.Delete(s.GetContext(), sub.ID))
	s.NoError(s.service.DeleteProduct(s.GetContext(), created.ID))
}

func (s *ProductServiceSuite) TestListProducts() {
	_, err := s.service.CreateProduct(s.GetContext(), s.annualMembershipRequest())
	s.NoError(err)

	digest := &dto.CreateProductRequest{
		LookupKey:          "monthly-digest",
		Name:               "Monthly Digest",
		ProductType:        types.ProductTypeRecurring,
		Category:           "newsletter",
		ListPrice:          decimal.NewFromInt(15),
		MemberPrice:        decimal.NewFromInt(12),
		Currency:           "usd",
		BillingPeriod:      types.BILLING_PERIOD_MONTHLY,
		AutoRenew:          true,
		RevenueRecognition: types.RevenueRecognitionDeferred,
	}
	_, err = s.service.CreateProduct(s.GetContext(), digest)
	s.NoError(err)

	ticket := &dto.CreateProductRequest{
		LookupKey:   "gala-ticket",
		Name:        "Gala Ticket",
		ProductType: types.ProductTypeOneTime,
		Category:    "events",
		ListPrice:   decimal.NewFromInt(45),
		MemberPrice: decimal.NewFromInt(45),
		Currency:    "usd",
	}
	_, err = s.service.CreateProduct(s.GetContext(), ticket)
	s.NoError(err)

	all, err := s.service.ListProducts(s.GetContext(), nil)
	s.NoError(err)
	s.Equal(3, all.Pagination.Total)

	recurring := types.NewProductFilter()
	recurring.ProductTypes = []types.ProductType{types.ProductTypeRecurring}
	resp, err := s.service.ListProducts(s.GetContext(), recurring)
	s.NoError(err)
	s.Equal(2, resp.Pagination.Total)

	byCategory := types.NewProductFilter()
	byCategory.Categories = []string{"events"}
	resp, err = s.service.ListProducts(s.GetContext(), byCategory)
	s.NoError(err)
	s.Equal(1, resp.Pagination.Total)
	s.Equal("Gala Ticket", resp.Items[0].Name)

	byKey := types.NewProductFilter()
	byKey.LookupKeys = []string{"monthly-digest"}
	resp, err = s.service.ListProducts(s.GetContext(), byKey)
	s.NoError(err)
	s.Equal(1, resp.Pagination.Total)
	s.Equal("Monthly Digest", resp.Items[0].Name)
}
