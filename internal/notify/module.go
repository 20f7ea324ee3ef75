package notify

import (
	"github.com/memberbill/memberbill/internal/config"
	kafkaclient "github.com/memberbill/memberbill/internal/kafka"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/notify/handler"
	"github.com/memberbill/memberbill/internal/notify/payload"
	"github.com/memberbill/memberbill/internal/notify/publisher"
	"github.com/memberbill/memberbill/internal/pubsub"
	pubsubKafka "github.com/memberbill/memberbill/internal/pubsub/kafka"
	"github.com/memberbill/memberbill/internal/pubsub/memory"
	"github.com/memberbill/memberbill/internal/service"
	"github.com/memberbill/memberbill/internal/svix"
	"github.com/memberbill/memberbill/internal/types"
	"go.uber.org/fx"
)

// Module provides all notification-related dependencies
var Module = fx.Options(
	// Core dependencies
	fx.Provide(
		// PubSub carrying notification events
		providePubSub,
	),

	// Notification components
	fx.Provide(
		// Svix client for hosted delivery
		svix.NewClient,

		// Sender services publish through
		publisher.NewSender,

		// Handler for delivering notification events
		handler.NewHandler,

		// Payload builder factory and services
		providePayloadBuilderFactory,

		// Main notification service
		NewService,
	),
)

// providePayloadBuilderFactory creates a new payload builder factory with all required services
func providePayloadBuilderFactory(
	billingCycleService service.BillingCycleService,
	renewalService service.RenewalService,
	subscriptionService service.SubscriptionService,
) payload.PayloadBuilderFactory {
	services := payload.NewServices(
		billingCycleService,
		renewalService,
		subscriptionService,
	)
	return payload.NewPayloadBuilderFactory(services)
}

func providePubSub(
	cfg *config.Configuration,
	logger *logger.Logger,
	producer *kafkaclient.Producer,
	consumer kafkaclient.MessageConsumer,
) pubsub.PubSub {
	switch cfg.Notify.PubSub {
	case types.MemoryPubSub:
		return memory.NewPubSub(cfg, logger)
	case types.KafkaPubSub:
		if producer == nil || consumer == nil {
			panic("kafka pubsub configured for notifications but no brokers are configured")
		}
		return pubsubKafka.NewPubSub(cfg, logger, producer, consumer)
	default:
		panic("unsupported pubsub type: " + string(cfg.Notify.PubSub))
	}
}
