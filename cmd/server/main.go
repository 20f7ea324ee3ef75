package main

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	lambdaEvents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/cenkalti/backoff/v4"
	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
	"github.com/memberbill/memberbill/internal/api"
	"github.com/memberbill/memberbill/internal/api/cron"
	"github.com/memberbill/memberbill/internal/api/dto"
	v1 "github.com/memberbill/memberbill/internal/api/v1"
	"github.com/memberbill/memberbill/internal/cache"
	"github.com/memberbill/memberbill/internal/clickhouse"
	"github.com/memberbill/memberbill/internal/config"
	"github.com/memberbill/memberbill/internal/domain/payment"
	"github.com/memberbill/memberbill/internal/domain/pricing"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/httpclient"
	"github.com/memberbill/memberbill/internal/integration/invoicing"
	"github.com/memberbill/memberbill/internal/kafka"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/notify"
	"github.com/memberbill/memberbill/internal/postgres"
	"github.com/memberbill/memberbill/internal/publisher"
	"github.com/memberbill/memberbill/internal/pubsub"
	pubsubRouter "github.com/memberbill/memberbill/internal/pubsub/router"
	"github.com/memberbill/memberbill/internal/repository"
	"github.com/memberbill/memberbill/internal/s3"
	"github.com/memberbill/memberbill/internal/scheduler"
	"github.com/memberbill/memberbill/internal/sentry"
	"github.com/memberbill/memberbill/internal/service"
	"github.com/memberbill/memberbill/internal/types"
	"github.com/memberbill/memberbill/internal/validator"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/fx"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// confirmationApplyRetries bounds the in-place retries for a transient
	// failure before the message goes back to the broker for redelivery.
	confirmationApplyRetries = 3

	// lambdaBatchConcurrency caps how many confirmations of a lambda batch
	// are applied at once.
	lambdaBatchConcurrency = 4
)

func init() {
	// Set UTC timezone
	time.Local = time.UTC
}

// @title MemberBill API
// @version 1.0
// @description MemberBill Subscription Billing API Service
// @BasePath /v1
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name x-api-key
// @description Enter your API key in the format *x-api-key &lt;api-key&gt;**
func main() {
	// Initialize Fx application
	var opts []fx.Option

	// Core dependencies
	opts = append(opts,
		fx.Provide(
			// Validator
			validator.NewValidator,

			// Config
			config.NewConfig,

			// Logger
			logger.NewLogger,

			// Monitoring
			sentry.NewSentryService,

			// Cache
			cache.Initialize,

			// Postgres
			postgres.NewDB,
			postgres.NewClient,

			// Clickhouse
			clickhouse.NewClickHouseStore,

			// Producers and Consumers
			kafka.NewProducer,
			kafka.NewConsumer,

			// Payment confirmation publisher
			publisher.NewPaymentPublisher,

			// HTTP Client
			httpclient.NewDefaultClient,

			// Object storage
			s3.NewService,

			// Pricing engine
			pricing.NewCalculator,

			// Invoicing gateway
			invoicing.NewGateway,

			// Repositories
			repository.NewUserRepository,
			repository.NewAuthRepository,
			repository.NewSubscriberRepository,
			repository.NewProductRepository,
			repository.NewSubscriptionRepository,
			repository.NewBillingCycleRepository,
			repository.NewRenewalRepository,
			repository.NewAuditLogRepository,

			// PubSub
			pubsubRouter.NewRouter,
		),
	)

	// Notification module (must be initialised before services)
	opts = append(opts, notify.Module)

	// Service layer
	opts = append(opts,
		fx.Provide(
			service.NewServiceParams,

			// Core services
			service.NewAuthService,
			service.NewUserService,

			// Catalog services
			service.NewSubscriberService,
			service.NewProductService,

			// Billing services
			service.NewSubscriptionService,
			service.NewBillingCycleService,
			service.NewRenewalService,
			service.NewPricingService,
			service.NewBatchService,
			service.NewAuditLogService,
		),
	)

	// HTTP surface and background jobs
	opts = append(opts,
		fx.Provide(
			scheduler.New,
			provideHandlers,
			provideRouter,
		),
	)

	opts = append(opts,
		fx.Invoke(
			sentry.RegisterHooks,
			startServer,
		),
	)

	app := fx.New(opts...)
	app.Run()
}

func provideHandlers(
	cfg *config.Configuration,
	logger *logger.Logger,
	authService service.AuthService,
	userService service.UserService,
	subscriberService service.SubscriberService,
	productService service.ProductService,
	subscriptionService service.SubscriptionService,
	billingCycleService service.BillingCycleService,
	renewalService service.RenewalService,
	pricingService service.PricingService,
	batchService service.BatchService,
	auditLogService service.AuditLogService,
	paymentPublisher publisher.PaymentPublisher,
) api.Handlers {
	return api.Handlers{
		Health:       v1.NewHealthHandler(logger),
		Auth:         v1.NewAuthHandler(cfg, authService, logger),
		User:         v1.NewUserHandler(userService, logger),
		Subscriber:   v1.NewSubscriberHandler(subscriberService, logger),
		Product:      v1.NewProductHandler(productService, logger),
		Subscription: v1.NewSubscriptionHandler(subscriptionService, billingCycleService, logger),
		BillingCycle: v1.NewBillingCycleHandler(billingCycleService, logger),
		Renewal:      v1.NewRenewalHandler(renewalService, logger),
		Pricing:      v1.NewPricingHandler(pricingService, logger),
		Batch:        v1.NewBatchHandler(batchService, logger),
		AuditLog:     v1.NewAuditLogHandler(auditLogService, logger),
		Payment:      v1.NewPaymentHandler(paymentPublisher, logger),
		CronBilling:  cron.NewBillingHandler(billingCycleService, logger),
		CronRenewal:  cron.NewRenewalHandler(renewalService, logger),
	}
}

func provideRouter(handlers api.Handlers, cfg *config.Configuration, logger *logger.Logger) *gin.Engine {
	return api.NewRouter(handlers, cfg, logger)
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	r *gin.Engine,
	consumer kafka.MessageConsumer,
	router *pubsubRouter.Router,
	notifyService *notify.Service,
	bus pubsub.PubSub,
	billingCycleService service.BillingCycleService,
	sched *scheduler.Scheduler,
	log *logger.Logger,
) {
	mode := cfg.Deployment.Mode
	if mode == "" {
		mode = types.ModeLocal
	}

	switch mode {
	case types.ModeLocal:
		startAPIServer(lc, r, cfg, log)
		startPaymentConsumer(lc, consumer, billingCycleService, cfg, log)
		startMessageRouter(lc, router, notifyService, bus, billingCycleService, cfg, log)
		scheduler.RegisterHooks(lc, sched)
	case types.ModeAPI:
		startAPIServer(lc, r, cfg, log)
		startMessageRouter(lc, router, notifyService, bus, billingCycleService, cfg, log)
		scheduler.RegisterHooks(lc, sched)
	case types.ModeConsumer:
		if consumer == nil {
			log.Fatal("Kafka consumer required for consumer mode")
		}
		startPaymentConsumer(lc, consumer, billingCycleService, cfg, log)
	case types.ModeCron:
		startMessageRouter(lc, router, notifyService, bus, billingCycleService, cfg, log)
		scheduler.RegisterHooks(lc, sched)
	case types.ModeAWSLambdaAPI:
		startAWSLambdaAPI(r)
		startMessageRouter(lc, router, notifyService, bus, billingCycleService, cfg, log)
	case types.ModeAWSLambdaConsumer:
		startAWSLambdaConsumer(billingCycleService, cfg, log)
	default:
		log.Fatalf("Unknown deployment mode: %s", mode)
	}
}

func startAPIServer(
	lc fx.Lifecycle,
	r *gin.Engine,
	cfg *config.Configuration,
	log *logger.Logger,
) {
	log.Info("Registering API server start hook")
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting API server...")
			go func() {
				if err := r.Run(cfg.Server.Address); err != nil {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down server...")
			return nil
		},
	})
}

// startPaymentConsumer subscribes to the payment topic and applies settled
// confirmations. It is a no-op for the in-memory destination, which is
// consumed through the message router instead.
func startPaymentConsumer(
	lc fx.Lifecycle,
	consumer kafka.MessageConsumer,
	billingCycleService service.BillingCycleService,
	cfg *config.Configuration,
	log *logger.Logger,
) {
	if cfg.Payment.PublishDestination != types.PublishToKafka {
		log.Info("payment consumer skipped for the in-memory destination")
		return
	}
	if consumer == nil {
		log.Fatal("Kafka consumer required for the kafka payment destination")
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go consumeConfirmations(consumer, billingCycleService, cfg, log)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down payment consumer...")
			return consumer.Close()
		},
	})
}

func startAWSLambdaAPI(r *gin.Engine) {
	ginLambda := ginadapter.New(r)
	lambda.Start(ginLambda.ProxyWithContext)
}

func startAWSLambdaConsumer(billingCycleService service.BillingCycleService, cfg *config.Configuration, log *logger.Logger) {
	handler := func(ctx context.Context, kafkaEvent lambdaEvents.KafkaEvent) error {
		log.Debugf("Received Kafka event: %+v", kafkaEvent)

		// Confirmations settle independent billing cycles, so the records of
		// a batch can be applied concurrently. A failed record fails the
		// whole batch; replaying already applied confirmations is harmless
		// because marking a cycle paid is idempotent per payment reference.
		p := pool.New().WithErrors().WithMaxGoroutines(lambdaBatchConcurrency)

		for _, records := range kafkaEvent.Records {
			for _, r := range records {
				record := r
				p.Go(func() error {
					// Decode base64 payload first
					decodedPayload, err := base64.StdEncoding.DecodeString(string(record.Value))
					if err != nil {
						log.Errorf("Failed to decode base64 payload: %v", err)
						return err
					}

					if err := handleConfirmation(cfg, log, billingCycleService, decodedPayload); err != nil {
						log.Errorf("Failed to apply payment confirmation: %v, payload: %s", err, string(decodedPayload))
						return err
					}

					log.Infof("Applied payment confirmation: topic=%s, partition=%d, offset=%d",
						record.Topic, record.Partition, record.Offset)
					return nil
				})
			}
		}

		return p.Wait()
	}

	lambda.Start(handler)
}

func consumeConfirmations(
	consumer kafka.MessageConsumer,
	billingCycleService service.BillingCycleService,
	cfg *config.Configuration,
	log *logger.Logger,
) {
	messages, err := consumer.Subscribe(cfg.Payment.Topic)
	if err != nil {
		log.Fatalf("Failed to subscribe to topic %s: %v", cfg.Payment.Topic, err)
	}

	for msg := range messages {
		if err := handleConfirmation(cfg, log, billingCycleService, msg.Payload); err != nil {
			log.Errorf("Failed to apply payment confirmation: %v, payload: %s", err, string(msg.Payload))
			msg.Nack()
			continue
		}
		msg.Ack()
	}
}

// handleConfirmation unmarshals a settled payment confirmation and marks the
// billing cycle paid under the confirmation's tenant. The money already moved
// at the gateway, so transient failures get a few in-place retries before the
// message is handed back for redelivery.
func handleConfirmation(
	cfg *config.Configuration,
	log *logger.Logger,
	billingCycleService service.BillingCycleService,
	payload []byte,
) error {
	var confirmation payment.Confirmation
	if err := json.Unmarshal(payload, &confirmation); err != nil {
		log.Errorf("Failed to unmarshal payment confirmation: %v, payload: %s", err, string(payload))
		return err
	}

	if err := confirmation.Validate(); err != nil {
		log.Errorw("discarding invalid payment confirmation",
			"error", err,
			"confirmation_id", confirmation.ID,
		)
		return err
	}

	ctx := types.SetTenantID(context.Background(), confirmation.TenantID)
	ctx = types.SetUserID(ctx, types.DefaultUserID)
	if confirmation.EnvironmentID != "" {
		ctx = types.SetEnvironmentID(ctx, confirmation.EnvironmentID)
	}

	req := &dto.MarkBillingCyclePaidRequest{
		PaymentRef: confirmation.PaymentRef,
		PaidAt:     lo.ToPtr(confirmation.PaidAt),
	}

	apply := func() error {
		_, err := billingCycleService.MarkBillingCyclePaid(ctx, confirmation.BillingCycleID, req)
		if err == nil {
			return nil
		}
		if ierr.IsTransient(err) || ierr.IsDatabase(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), confirmationApplyRetries)
	if err := backoff.Retry(apply, policy); err != nil {
		return err
	}

	log.Debugf("Applied payment confirmation %s to billing cycle %s",
		confirmation.ID, confirmation.BillingCycleID)
	return nil
}

func startMessageRouter(
	lc fx.Lifecycle,
	router *pubsubRouter.Router,
	notifyService *notify.Service,
	bus pubsub.PubSub,
	billingCycleService service.BillingCycleService,
	cfg *config.Configuration,
	logger *logger.Logger,
) {
	// Register handlers before starting the router
	notifyService.RegisterHandler(router)

	// Confirmations published to the in-memory bus ride the same router; the
	// kafka destination has a dedicated consumer loop instead.
	if cfg.Payment.PublishDestination == types.PublishToMemory {
		router.AddDeliveryHandler(
			"payment_confirmations",
			cfg.Payment.Topic,
			bus,
			func(msg *message.Message) error {
				return handleConfirmation(cfg, logger, billingCycleService, msg.Payload)
			},
		)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting message router")
			go func() {
				if err := router.Run(); err != nil {
					logger.Errorw("message router failed", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping message router")
			if err := notifyService.Stop(); err != nil {
				logger.Errorw("failed to stop notification service", "error", err)
			}
			return router.Close()
		},
	})
}
