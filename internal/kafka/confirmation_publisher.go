package kafka

import (
	"context"

	jsoniter "github.com/json-iterator/go"
	"github.com/memberbill/memberbill/internal/config"
	"github.com/memberbill/memberbill/internal/domain/payment"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/logger"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ConfirmationPublisher queues payment confirmations on the kafka payment
// topic for the consumer deployment mode to apply.
type ConfirmationPublisher struct {
	producer *Producer
	logger   *logger.Logger
	config   *config.PaymentConfig
}

func NewConfirmationPublisher(producer *Producer, cfg *config.Configuration, logger *logger.Logger) *ConfirmationPublisher {
	return &ConfirmationPublisher{
		producer: producer,
		logger:   logger,
		config:   &cfg.Payment,
	}
}

func (p *ConfirmationPublisher) Publish(ctx context.Context, conf *payment.Confirmation) error {
	payload, err := json.Marshal(conf)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to marshal payment confirmation").
			Mark(ierr.ErrValidation)
	}

	p.logger.With(
		zap.String("confirmation_id", conf.ID),
		zap.String("billing_cycle_id", conf.BillingCycleID),
		zap.String("tenant_id", conf.TenantID),
	).Debug("publishing payment confirmation to kafka")

	if err := p.producer.PublishWithID(p.config.Topic, payload, conf.ID); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to publish payment confirmation").
			Mark(ierr.ErrTransient)
	}
	return nil
}
