package publisher

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	jsoniter "github.com/json-iterator/go"
	"github.com/memberbill/memberbill/internal/config"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/pubsub"
	"github.com/memberbill/memberbill/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Sender is how services emit notifications. Sends are fire and forget:
// callers log a failed send and move on, the billing or renewal operation
// that produced the event never fails because of it.
type Sender interface {
	// SendTemplated publishes an event named after the notification
	// template. The payload is the internal event for that entity; when nil
	// a minimal reference payload is built from entityType and entityID.
	SendTemplated(ctx context.Context, eventName string, entityType string, entityID string, payload interface{}) error
	Close() error
}

type notificationSender struct {
	pubSub pubsub.PubSub
	config *config.Notify
	logger *logger.Logger
}

// NewSender creates a bus-backed sender
func NewSender(
	pubSub pubsub.PubSub,
	cfg *config.Configuration,
	logger *logger.Logger,
) (Sender, error) {
	return &notificationSender{
		pubSub: pubSub,
		config: &cfg.Notify,
		logger: logger,
	}, nil
}

func (p *notificationSender) SendTemplated(ctx context.Context, eventName string, entityType string, entityID string, payload interface{}) error {
	if !p.config.Enabled {
		return nil
	}

	var rawPayload []byte
	var err error
	if payload != nil {
		rawPayload, err = json.Marshal(payload)
	} else {
		rawPayload, err = json.Marshal(map[string]string{
			entityType + "_id": entityID,
			"tenant_id":        types.GetTenantID(ctx),
		})
	}
	if err != nil {
		return err
	}

	event := &types.NotificationEvent{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_NOTIFICATION),
		EventName:     eventName,
		TenantID:      types.GetTenantID(ctx),
		EnvironmentID: types.GetEnvironmentID(ctx),
		UserID:        types.GetUserID(ctx),
		Timestamp:     time.Now().UTC(),
		Payload:       rawPayload,
	}

	eventPayload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	messageID := event.ID
	if messageID == "" {
		messageID = watermill.NewUUID()
	}

	msg := message.NewMessage(messageID, eventPayload)
	msg.Metadata.Set("tenant_id", event.TenantID)

	p.logger.Debugw("publishing notification event",
		"event_id", event.ID,
		"event_name", event.EventName,
		"entity_type", entityType,
		"entity_id", entityID,
		"tenant_id", event.TenantID,
		"topic", p.config.Topic,
	)

	if err := p.pubSub.Publish(ctx, p.config.Topic, msg); err != nil {
		p.logger.Errorw("failed to publish notification event",
			"error", err,
			"event_id", event.ID,
			"event_name", event.EventName,
			"tenant_id", event.TenantID,
		)
		return err
	}

	p.logger.Infow("successfully published notification event",
		"event_id", event.ID,
		"event_name", event.EventName,
		"tenant_id", event.TenantID,
	)

	return nil
}

// Close closes the sender
func (p *notificationSender) Close() error {
	return p.pubSub.Close()
}
