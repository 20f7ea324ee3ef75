package handler

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/memberbill/memberbill/internal/config"
	"github.com/memberbill/memberbill/internal/domain/billingcycle"
	"github.com/memberbill/memberbill/internal/domain/pricing"
	notifyDto "github.com/memberbill/memberbill/internal/notify/dto"
	"github.com/memberbill/memberbill/internal/notify/payload"
	"github.com/memberbill/memberbill/internal/service"
	"github.com/memberbill/memberbill/internal/testutil"
	"github.com/memberbill/memberbill/internal/types"
)

type HandlerSuite struct {
	testutil.BaseServiceTestSuite
	handler *handler
	client  *testutil.MockHTTPClient
	notify  config.Notify
	cycle   *billingcycle.BillingCycle
}

func TestHandler(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.ClearStores()

	params := service.ServiceParams{
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
	services := payload.NewServices(
		service.NewBillingCycleService(params),
		service.NewRenewalService(params),
		service.NewSubscriptionService(params),
	)

	s.client = testutil.NewMockHTTPClient()
	s.client.RegisterResponse("/hooks/memberbill", testutil.MockResponse{
		StatusCode: 200,
		Body:       []byte(`{"ok":true}`),
	})

	s.notify = config.Notify{
		Enabled: true,
		Topic:   "notifications",
		Tenants: map[string]config.TenantNotifyConfig{
			types.DefaultTenantID: {
				Endpoint: "https://tenant.example.com/hooks/memberbill",
				Headers:  map[string]string{"x-notify-secret": "s3cret"},
				Enabled:  true,
			},
		},
	}

	s.handler = &handler{
		config:  &s.notify,
		factory: payload.NewPayloadBuilderFactory(services),
		client:  s.client,
		logger:  s.GetLogger(),
	}

	s.seedBillingCycle()
}

func (s *HandlerSuite) seedBillingCycle() {
	ctx := s.GetContext()
	s.cycle = &billingcycle.BillingCycle{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BILLING_CYCLE),
		ShortID:        "BC-TEST0001",
		SubscriptionID: types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		BillingType:    types.BillingTypeRecurring,
		State:          types.BillingCycleStateScheduled,
		BillingDate:    time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodStart:    time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		Currency:       "usd",
		Quantity:       decimal.NewFromInt(1),
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}
	s.NoError(s.GetStores().BillingCycleRepo.Create(ctx, s.cycle))
}

func (s *HandlerSuite) newMessage(event *types.NotificationEvent) *message.Message {
	body, err := json.Marshal(event)
	s.NoError(err)
	return message.NewMessage(types.GenerateUUID(), body)
}

func (s *HandlerSuite) billingEvent(name string) *types.NotificationEvent {
	internal, err := json.Marshal(notifyDto.InternalBillingCycleEvent{
		BillingCycleID: s.cycle.ID,
		TenantID:       types.DefaultTenantID,
	})
	s.NoError(err)
	return &types.NotificationEvent{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_NOTIFICATION),
		EventName:     name,
		TenantID:      types.DefaultTenantID,
		EnvironmentID: "env_sandbox",
		Timestamp:     time.Now().UTC(),
		Payload:       internal,
	}
}

func (s *HandlerSuite) TestDeliversBillingCycleEvent() {
	msg := s.newMessage(s.billingEvent(types.NotificationEventBillingScheduled))

	err := s.handler.processMessage(msg)
	s.NoError(err)

	requests := s.client.Requests()
	s.Len(requests, 1)
	s.Equal("POST", requests[0].Method)
	s.Equal("https://tenant.example.com/hooks/memberbill", requests[0].URL)
	s.Equal("s3cret", requests[0].Headers["x-notify-secret"])

	var delivered notifyDto.BillingCycleWebhookPayload
	s.NoError(json.Unmarshal(requests[0].Body, &delivered))
	s.Equal(types.NotificationEventBillingScheduled, delivered.EventType)
	s.Equal(s.cycle.ID, delivered.BillingCycle.ID)
	s.Equal(s.cycle.ShortID, delivered.BillingCycle.ShortID)
}

func (s *HandlerSuite) TestSkipsUnknownTenant() {
	event := s.billingEvent(types.NotificationEventBillingScheduled)
	event.TenantID = "tenant_unknown"

	err := s.handler.processMessage(s.newMessage(event))
	s.NoError(err)
	s.Empty(s.client.Requests())
}

func (s *HandlerSuite) TestSkipsDisabledTenant() {
	tenantCfg := s.notify.Tenants[types.DefaultTenantID]
	tenantCfg.Enabled = false
	s.notify.Tenants[types.DefaultTenantID] = tenantCfg

	err := s.handler.processMessage(s.newMessage(s.billingEvent(types.NotificationEventBillingScheduled)))
	s.NoError(err)
	s.Empty(s.client.Requests())
}

func (s *HandlerSuite) TestSkipsExcludedEvent() {
	tenantCfg := s.notify.Tenants[types.DefaultTenantID]
	tenantCfg.ExcludedEvents = []string{types.NotificationEventBillingScheduled}
	s.notify.Tenants[types.DefaultTenantID] = tenantCfg

	err := s.handler.processMessage(s.newMessage(s.billingEvent(types.NotificationEventBillingScheduled)))
	s.NoError(err)
	s.Empty(s.client.Requests())

	// Other events for the same tenant still go out.
	err = s.handler.processMessage(s.newMessage(s.billingEvent(types.NotificationEventBillingPaid)))
	s.NoError(err)
	s.Len(s.client.Requests(), 1)
}

func (s *HandlerSuite) TestMalformedEnvelopeIsDropped() {
	msg := message.NewMessage(types.GenerateUUID(), []byte("not json"))

	err := s.handler.processMessage(msg)
	s.NoError(err)
	s.Empty(s.client.Requests())
}

func (s *HandlerSuite) TestUnknownEventNameFails() {
	event := s.billingEvent("billing.unheard_of")

	err := s.handler.processMessage(s.newMessage(event))
	s.Error(err)
	s.Empty(s.client.Requests())
}

func (s *HandlerSuite) TestMissingBillingCycleFails() {
	internal, err := json.Marshal(notifyDto.InternalBillingCycleEvent{
		BillingCycleID: "bc_missing",
		TenantID:       types.DefaultTenantID,
	})
	s.NoError(err)

	event := s.billingEvent(types.NotificationEventBillingScheduled)
	event.Payload = internal

	err = s.handler.processMessage(s.newMessage(event))
	s.Error(err)
	s.Empty(s.client.Requests())
}
