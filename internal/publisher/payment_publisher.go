package publisher

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	jsoniter "github.com/json-iterator/go"
	"github.com/memberbill/memberbill/internal/config"
	"github.com/memberbill/memberbill/internal/domain/payment"
	"github.com/memberbill/memberbill/internal/kafka"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/pubsub"
	"github.com/memberbill/memberbill/internal/types"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PaymentPublisher queues payment confirmations for asynchronous processing
type PaymentPublisher interface {
	Publish(ctx context.Context, conf *payment.Confirmation) error
}

type paymentPublisher struct {
	kafkaPublisher *kafka.ConfirmationPublisher
	memoryBus      pubsub.Publisher
	logger         *logger.Logger
	config         *config.PaymentConfig
	mu             sync.RWMutex
}

// NewPaymentPublisher creates a publisher for the configured destination.
// Kafka is the production path; the in-memory bus keeps local deployments
// self-contained.
func NewPaymentPublisher(
	cfg *config.Configuration,
	logger *logger.Logger,
	kafkaProducer *kafka.Producer,
	bus pubsub.PubSub,
) (PaymentPublisher, error) {
	publisher := &paymentPublisher{
		logger: logger,
		config: &cfg.Payment,
	}

	switch cfg.Payment.PublishDestination {
	case types.PublishToKafka:
		if kafkaProducer == nil {
			return nil, fmt.Errorf("kafka producer is not initialized but it is the configured publish destination")
		}
		publisher.kafkaPublisher = kafka.NewConfirmationPublisher(kafkaProducer, cfg, logger)
	case types.PublishToMemory:
		if bus == nil {
			return nil, fmt.Errorf("memory bus is not initialized but it is the configured publish destination")
		}
		publisher.memoryBus = bus
	default:
		return nil, fmt.Errorf("unknown publish destination: %s", cfg.Payment.PublishDestination)
	}

	return publisher, nil
}

func (s *paymentPublisher) Publish(ctx context.Context, conf *payment.Confirmation) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	s.logger.With(
		zap.String("confirmation_id", conf.ID),
		zap.String("billing_cycle_id", conf.BillingCycleID),
		zap.String("destination", string(s.config.PublishDestination)),
	).Debug("publishing payment confirmation")

	if s.kafkaPublisher != nil {
		return s.kafkaPublisher.Publish(ctx, conf)
	}

	payload, err := json.Marshal(conf)
	if err != nil {
		return fmt.Errorf("failed to marshal payment confirmation: %w", err)
	}

	msg := message.NewMessage(conf.ID, payload)
	if err := s.memoryBus.Publish(ctx, s.config.Topic, msg); err != nil {
		return fmt.Errorf("failed to publish payment confirmation: %w", err)
	}
	return nil
}
