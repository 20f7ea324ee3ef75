package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/memberbill/memberbill/internal/cache"
	"github.com/memberbill/memberbill/internal/config"
	"github.com/memberbill/memberbill/internal/domain/auditlog"
	"github.com/memberbill/memberbill/internal/domain/auth"
	"github.com/memberbill/memberbill/internal/domain/billingcycle"
	"github.com/memberbill/memberbill/internal/domain/product"
	"github.com/memberbill/memberbill/internal/domain/renewal"
	"github.com/memberbill/memberbill/internal/domain/subscriber"
	"github.com/memberbill/memberbill/internal/domain/subscription"
	"github.com/memberbill/memberbill/internal/domain/user"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/postgres"
	"github.com/memberbill/memberbill/internal/types"
	"github.com/memberbill/memberbill/internal/validator"
)

// Stores holds all the repository interfaces for testing
type Stores struct {
	SubscriberRepo   subscriber.Repository
	ProductRepo      product.Repository
	SubscriptionRepo subscription.Repository
	BillingCycleRepo billingcycle.Repository
	RenewalRepo      renewal.Repository
	AuditLogRepo     auditlog.Repository
	UserRepo         user.Repository
	AuthRepo         auth.Repository
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx       context.Context
	stores    Stores
	sender    *InMemorySender
	invoicing *FakeInvoicingGateway
	db        postgres.IClient
	logger    *logger.Logger
	config    *config.Configuration
	now       time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	// Initialize validator
	validator.NewValidator()

	// Initialize logger with test config
	cfg := &config.Configuration{
		Logging: config.LoggingConfig{
			Level: types.LogLevelInfo,
		},
		Billing: config.BillingConfig{
			DefaultReminderSchedule: types.DefaultReminderSchedule,
			GracePeriodDays:         14,
			BatchChunkSize:          100,
			DefaultCurrency:         "usd",
			AuditStore:              "postgres",
		},
	}
	var err error
	s.config = cfg
	s.logger, err = logger.NewLogger(cfg)
	if err != nil {
		s.T().Fatalf("failed to create logger: %v", err)
	}

	// Initialize cache
	cache.Initialize(s.logger)
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.setupContext()
	s.setupStores()
	s.now = time.Now().UTC()
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.clearStores()
}

func (s *BaseServiceTestSuite) setupContext() {
	s.ctx = SetupContext()
}

func (s *BaseServiceTestSuite) setupStores() {
	subscriptionStore := NewInMemorySubscriptionStore()
	renewalStore := NewInMemoryRenewalStore(subscriptionStore)
	subscriptionStore.LinkRenewals(renewalStore)

	s.stores = Stores{
		SubscriberRepo:   NewInMemorySubscriberStore(),
		ProductRepo:      NewInMemoryProductStore(),
		SubscriptionRepo: subscriptionStore,
		BillingCycleRepo: NewInMemoryBillingCycleStore(),
		RenewalRepo:      renewalStore,
		AuditLogRepo:     NewInMemoryAuditLogStore(),
		UserRepo:         NewInMemoryUserRepository(),
		AuthRepo:         NewInMemoryAuthRepository(),
	}

	s.db = NewMockPostgresClient(s.logger)
	s.sender = NewInMemorySender()
	s.invoicing = NewFakeInvoicingGateway()
}

func (s *BaseServiceTestSuite) clearStores() {
	s.stores.SubscriberRepo.(*InMemorySubscriberStore).Clear()
	s.stores.ProductRepo.(*InMemoryProductStore).Clear()
	s.stores.SubscriptionRepo.(*InMemorySubscriptionStore).Clear()
	s.stores.BillingCycleRepo.(*InMemoryBillingCycleStore).Clear()
	s.stores.RenewalRepo.(*InMemoryRenewalStore).Clear()
	s.stores.AuditLogRepo.(*InMemoryAuditLogStore).Clear()
	s.stores.UserRepo.(*InMemoryUserRepository).Clear()
	s.stores.AuthRepo.(*InMemoryAuthRepository).Clear()
	s.sender.Clear()
	s.invoicing.Clear()
}

func (s *BaseServiceTestSuite) ClearStores() {
	s.clearStores()
}

// GetContext returns the test context
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// SetContext replaces the test context, for tests that need a different
// tenant or environment scope
func (s *BaseServiceTestSuite) SetContext(ctx context.Context) {
	s.ctx = ctx
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetStores returns all test repositories
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

// GetSender returns the capturing notification sender
func (s *BaseServiceTestSuite) GetSender() *InMemorySender {
	return s.sender
}

// GetInvoicingGateway returns the fake invoicing gateway
func (s *BaseServiceTestSuite) GetInvoicingGateway() *FakeInvoicingGateway {
	return s.invoicing
}

// GetDB returns the test database client
func (s *BaseServiceTestSuite) GetDB() postgres.IClient {
	return s.db
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetNow returns the current test time
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now.UTC()
}

// GetUUID returns a new UUID string
func (s *BaseServiceTestSuite) GetUUID() string {
	return types.GenerateUUID()
}
