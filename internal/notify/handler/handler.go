package handler

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	jsoniter "github.com/json-iterator/go"
	"github.com/memberbill/memberbill/internal/config"
	"github.com/memberbill/memberbill/internal/httpclient"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/notify/payload"
	"github.com/memberbill/memberbill/internal/pubsub"
	pubsubRouter "github.com/memberbill/memberbill/internal/pubsub/router"
	"github.com/memberbill/memberbill/internal/sentry"
	"github.com/memberbill/memberbill/internal/svix"
	"github.com/memberbill/memberbill/internal/types"
)

var jsonit = jsoniter.ConfigCompatibleWithStandardLibrary

// Handler consumes notification events off the bus and delivers them
type Handler interface {
	RegisterHandler(router *pubsubRouter.Router)
}

type handler struct {
	pubSub     pubsub.PubSub
	config     *config.Notify
	factory    payload.PayloadBuilderFactory
	client     httpclient.Client
	logger     *logger.Logger
	sentry     *sentry.Service
	svixClient *svix.Client
}

// NewHandler creates a new notification delivery handler
func NewHandler(
	pubSub pubsub.PubSub,
	cfg *config.Configuration,
	factory payload.PayloadBuilderFactory,
	client httpclient.Client,
	logger *logger.Logger,
	sentry *sentry.Service,
	svixClient *svix.Client,
) (Handler, error) {
	return &handler{
		pubSub:     pubSub,
		config:     &cfg.Notify,
		factory:    factory,
		client:     client,
		logger:     logger,
		sentry:     sentry,
		svixClient: svixClient,
	}, nil
}

func (h *handler) RegisterHandler(router *pubsubRouter.Router) {
	router.AddDeliveryHandler(
		"notification_handler",
		h.config.Topic,
		h.pubSub,
		h.processMessage,
	)
}

// processMessage processes a single notification message
func (h *handler) processMessage(msg *message.Message) error {
	ctx := msg.Context()

	var event types.NotificationEvent
	if err := jsonit.Unmarshal(msg.Payload, &event); err != nil {
		h.logger.Errorw("failed to unmarshal notification event",
			"error", err,
			"message_uuid", msg.UUID,
		)
		return nil // Don't retry on unmarshal errors
	}

	// The event carries its own identity; the bus context has none.
	ctx = context.WithValue(ctx, types.CtxTenantID, event.TenantID)
	ctx = context.WithValue(ctx, types.CtxEnvironmentID, event.EnvironmentID)
	ctx = context.WithValue(ctx, types.CtxUserID, event.UserID)

	if h.config.Svix.Enabled {
		return h.processMessageSvix(ctx, &event, msg.UUID)
	}

	return h.processMessageNative(ctx, &event, msg.UUID)
}

// processMessageSvix delivers a notification through Svix
func (h *handler) processMessageSvix(ctx context.Context, event *types.NotificationEvent, messageUUID string) error {
	appID, err := h.svixClient.GetOrCreateApplication(ctx, event.TenantID, event.EnvironmentID)
	if err != nil {
		if err.Error() == "application not found" {
			h.logger.Debugw("no svix application found, skipping notification",
				"tenant_id", event.TenantID,
				"environment_id", event.EnvironmentID,
			)
			return nil
		}
		return err
	}

	builder, err := h.factory.GetBuilder(event.EventName)
	if err != nil {
		return err
	}

	notificationPayload, err := builder.BuildPayload(ctx, event.EventName, event.Payload)
	if err != nil {
		return err
	}

	if err := h.svixClient.SendMessage(ctx, appID, event.EventName, json.RawMessage(notificationPayload)); err != nil {
		h.logger.Errorw("failed to send notification via svix",
			"error", err,
			"message_uuid", messageUUID,
			"tenant_id", event.TenantID,
			"event", event.EventName,
		)
		return err
	}

	h.logger.Infow("notification sent successfully via svix",
		"message_uuid", messageUUID,
		"tenant_id", event.TenantID,
		"event", event.EventName,
	)

	return nil
}

// processMessageNative delivers a notification to the tenant's own endpoint
func (h *handler) processMessageNative(ctx context.Context, event *types.NotificationEvent, messageUUID string) error {
	tenantCfg, ok := h.config.Tenants[event.TenantID]
	if !ok {
		h.logger.Warnw("tenant notification config not found",
			"tenant_id", event.TenantID,
			"message_uuid", messageUUID,
		)
		// Don't retry if tenant not found
		return nil
	}

	if !tenantCfg.Enabled {
		h.logger.Debugw("notifications disabled for tenant",
			"tenant_id", event.TenantID,
			"message_uuid", messageUUID,
		)
		return nil
	}

	for _, excludedEvent := range tenantCfg.ExcludedEvents {
		if excludedEvent == event.EventName {
			h.logger.Debugw("event excluded for tenant",
				"tenant_id", event.TenantID,
				"event", event.EventName,
			)
			return nil
		}
	}

	builder, err := h.factory.GetBuilder(event.EventName)
	if err != nil {
		return err
	}

	notificationPayload, err := builder.BuildPayload(ctx, event.EventName, event.Payload)
	if err != nil {
		return err
	}

	h.logger.Debugw("built notification payload",
		"event_name", event.EventName,
		"payload", string(notificationPayload),
	)

	req := &httpclient.Request{
		Method:  "POST",
		URL:     tenantCfg.Endpoint,
		Headers: tenantCfg.Headers,
		Body:    notificationPayload,
	}

	resp, err := h.client.Send(ctx, req)
	if err != nil {
		h.logger.Errorw("failed to send notification",
			"error", err,
			"message_uuid", messageUUID,
			"tenant_id", event.TenantID,
			"event", event.EventName,
		)
		return err
	}

	h.logger.Infow("notification sent successfully",
		"message_uuid", messageUUID,
		"tenant_id", event.TenantID,
		"event", event.EventName,
		"status_code", resp.StatusCode,
	)

	return nil
}
