package kafka

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/memberbill/memberbill/internal/config"
	kafkaclient "github.com/memberbill/memberbill/internal/kafka"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/pubsub"
)

// PubSub adapts the kafka producer and consumer to the pubsub interfaces so
// the payment pipeline can run against kafka or the in-memory bus unchanged.
type PubSub struct {
	producer *kafkaclient.Producer
	consumer kafkaclient.MessageConsumer
	config   *config.Configuration
	logger   *logger.Logger
}

// NewPubSub creates a new kafka-based pubsub
func NewPubSub(
	config *config.Configuration,
	logger *logger.Logger,
	producer *kafkaclient.Producer,
	consumer kafkaclient.MessageConsumer,
) pubsub.PubSub {
	return &PubSub{
		producer: producer,
		consumer: consumer,
		config:   config,
		logger:   logger,
	}
}

// Publish publishes a message, preserving its UUID as the kafka message ID
func (p *PubSub) Publish(ctx context.Context, topic string, msg *message.Message) error {
	return p.producer.PublishWithID(topic, msg.Payload, msg.UUID)
}

// Subscribe starts consuming messages from the given topic
func (p *PubSub) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return p.consumer.Subscribe(topic)
}

// Close closes the pubsub
func (p *PubSub) Close() error {
	p.producer.Close()
	p.consumer.Close()

	return nil
}
