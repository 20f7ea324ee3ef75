package service

import (
	"strings"
	"testing"

	"github.com/memberbill/memberbill/internal/api/dto"
	"github.com/memberbill/memberbill/internal/domain/pricing"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/testutil"
	"github.com/stretchr/testify/suite"
)

type AuthServiceSuite struct {
	testutil.BaseServiceTestSuite
	service AuthService
}

func TestAuthService(t *testing.T) {
	suite.Run(t, new(AuthServiceSuite))
}

func (s *AuthServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.ClearStores()
	s.service = NewAuthService(s.serviceParams())
}

func (s *AuthServiceSuite) TearDownTest() {
	s.BaseServiceTestSuite.TearDownTest()
	s.BaseServiceTestSuite.ClearStores()
}

func (s *AuthServiceSuite) serviceParams() ServiceParams {
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

func (s *AuthServiceSuite) TestSignUp() {
	resp, err := s.service.SignUp(s.GetContext(), &dto.SignUpRequest{
		Email:    "treasurer@example.com",
		Password: "long-enough-secret",
	})
	s.NoError(err)
	s.Require().NotNil(resp)
	s.NotEmpty(resp.Token)
	s.True(strings.HasPrefix(resp.UserID, "user_"))
	s.True(strings.HasPrefix(resp.TenantID, "tenant_"))

	created, err := s.GetStores().UserRepo.GetByEmail(s.GetContext(), "treasurer@example.com")
	s.NoError(err)
	s.Equal(resp.UserID, created.ID)
	s.Equal(resp.TenantID, created.TenantID)

	// The credential record carries a hash, never the raw password
	authRecord, err := s.GetStores().AuthRepo.GetAuthByUserID(s.GetContext(), resp.UserID)
	s.NoError(err)
	s.NotEmpty(authRecord.Token)
	s.NotEqual("long-enough-secret", authRecord.Token)
}

func (s *AuthServiceSuite) TestSignUpDuplicateEmail() {
	_, err := s.service.SignUp(s.GetContext(), &dto.SignUpRequest{
		Email:    "treasurer@example.com",
		Password: "long-enough-secret",
	})
	s.NoError(err)

	_, err = s.service.SignUp(s.GetContext(), &dto.SignUpRequest{
		Email:    "treasurer@example.com",
		Password: "another-long-secret",
	})
	s.Error(err)
	s.True(ierr.IsAlreadyExists(err), "unexpected error class: %v", err)
}

func (s *AuthServiceSuite) TestSignUpValidation() {
	testCases := []struct {
		name string
		req  *dto.SignUpRequest
	}{
		{
			name: "invalid email",
			req:  &dto.SignUpRequest{Email: "not-an-email", Password: "long-enough-secret"},
		},
		{
			name: "short password",
			req:  &dto.SignUpRequest{Email: "treasurer@example.com", Password: "short"},
		},
		{
			name: "missing password",
			req:  &dto.SignUpRequest{Email: "treasurer@example.com"},
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			resp, err := s.service.SignUp(s.GetContext(), tc.req)
			s.Error(err)
			s.Nil(resp)
			s.True(ierr.IsValidation(err), "unexpected error class: %v", err)
		})
	}
}

func (s *AuthServiceSuite) TestLogin() {
	signup, err := s.service.SignUp(s.GetContext(), &dto.SignUpRequest{
		Email:    "treasurer@example.com",
		Password: "long-enough-secret",
	})
	s.NoError(err)

	login, err := s.service.Login(s.GetContext(), &dto.LoginRequest{
		Email:    "treasurer@example.com",
		Password: "long-enough-secret",
	})
	s.NoError(err)
	s.Require().NotNil(login)
	s.NotEmpty(login.Token)
	s.Equal(signup.UserID, login.UserID)
	s.Equal(signup.TenantID, login.TenantID)
}

func (s *AuthServiceSuite) TestLoginWrongPassword() {
	_, err := s.service.SignUp(s.GetContext(), &dto.SignUpRequest{
		Email:    "treasurer@example.com",
		Password: "long-enough-secret",
	})
	s.NoError(err)

	_, err = s.service.Login(s.GetContext(), &dto.LoginRequest{
		Email:    "treasurer@example.com",
		Password: "wrong-long-secret",
	})
	s.Error(err)
	s.True(ierr.IsPermissionDenied(err), "unexpected error class: %v", err)
}

func (s *AuthServiceSuite) TestLoginUnknownEmail() {
	_, err := s.service.Login(s.GetContext(), &dto.LoginRequest{
		Email:    "nobody@example.com",
		Password: "long-enough-secret",
	})
	s.Error(err)
	s.True(ierr.IsNotFound(err), "unexpected error class: %v", err)
}

func (s *AuthServiceSuite) TestLoginValidation() {
	_, err := s.service.Login(s.GetContext(), &dto.LoginRequest{
		Email:    "not-an-email",
		Password: "long-enough-secret",
	})
	s.Error(err)
	s.True(ierr.IsValidation(err), "unexpected error class: %v", err)

	_, err = s.service.Login(s.GetContext(), &dto.LoginRequest{
		Email:    "treasurer@example.com",
		Password: "short",
	})
	s.Error(err)
	s.True(ierr.IsValidation(err), "unexpected error class: %v", err)
}
