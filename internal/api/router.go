package api

import (
	"github.com/memberbill/memberbill/internal/api/cron"
	v1 "github.com/memberbill/memberbill/internal/api/v1"
	"github.com/memberbill/memberbill/internal/config"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/metrics"
	"github.com/memberbill/memberbill/internal/rest/middleware"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Health       *v1.HealthHandler
	Auth         *v1.AuthHandler
	User         *v1.UserHandler
	Subscriber   *v1.SubscriberHandler
	Product      *v1.ProductHandler
	Subscription *v1.SubscriptionHandler
	BillingCycle *v1.BillingCycleHandler
	Renewal      *v1.RenewalHandler
	Pricing      *v1.PricingHandler
	Batch        *v1.BatchHandler
	AuditLog     *v1.AuditLogHandler
	Payment      *v1.PaymentHandler
	CronBilling  *cron.BillingHandler
	CronRenewal  *cron.RenewalHandler
}

func NewRouter(handlers Handlers, cfg *config.Configuration, logger *logger.Logger) *gin.Engine {
	router := gin.New()

	// Order matters: the request ID comes first so every log line and error
	// carries one, and the error handler runs inside recovery.
	router.Use(
		middleware.RequestIDMiddleware,
		middleware.CORSMiddleware,
		middleware.SentryMiddleware(cfg),
		middleware.PyroscopeMiddleware(cfg),
		metrics.Middleware(),
		middleware.ErrorHandler(),
		gin.Recovery(),
	)

	router.GET("/health", handlers.Health.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	public := router.Group("/v1")
	{
		auth := public.Group("/auth")
		{
			auth.POST("/signup", handlers.Auth.SignUp)
			auth.POST("/login", handlers.Auth.Login)
		}
	}

	private := router.Group("/v1")
	private.Use(
		middleware.AuthenticateMiddleware(cfg, logger),
		middleware.EnvironmentMiddleware,
	)
	{
		user := private.Group("/users")
		{
			user.GET("/me", handlers.User.GetUserInfo)
		}

		subscriber := private.Group("/subscribers")
		{
			subscriber.POST("", handlers.Subscriber.CreateSubscriber)
			subscriber.GET("", handlers.Subscriber.ListSubscribers)
			subscriber.GET("/:id", handlers.Subscriber.GetSubscriber)
			subscriber.GET("/external/:external_id", handlers.Subscriber.GetSubscriberByExternalID)
			subscriber.PUT("/:id", handlers.Subscriber.UpdateSubscriber)
			subscriber.DELETE("/:id", handlers.Subscriber.DeleteSubscriber)
		}

		product := private.Group("/products")
		{
			product.POST("", handlers.Product.CreateProduct)
			product.GET("", handlers.Product.ListProducts)
			product.GET("/:id", handlers.Product.GetProduct)
			product.GET("/lookup/:lookup_key", handlers.Product.GetProductByLookupKey)
			product.PUT("/:id", handlers.Product.UpdateProduct)
			product.DELETE("/:id", handlers.Product.DeleteProduct)
		}

		subscription := private.Group("/subscriptions")
		{
			subscription.POST("", handlers.Subscription.CreateSubscription)
			subscription.GET("", handlers.Subscription.ListSubscriptions)
			subscription.GET("/:id", handlers.Subscription.GetSubscription)
			subscription.POST("/:id/terminate", handlers.Subscription.TerminateSubscription)
			subscription.GET("/:id/billing-cycles", handlers.Subscription.ListSubscriptionBillingCycles)
		}

		billingCycle := private.Group("/billing-cycles")
		{
			billingCycle.POST("", handlers.BillingCycle.CreateBillingCycle)
			billingCycle.GET("", handlers.BillingCycle.ListBillingCycles)
			billingCycle.GET("/:id", handlers.BillingCycle.GetBillingCycle)
			billingCycle.POST("/:id/calculate", handlers.BillingCycle.CalculateAmounts)
			billingCycle.POST("/:id/process", handlers.BillingCycle.ProcessBillingCycle)
			billingCycle.POST("/:id/retry", handlers.BillingCycle.RetryBillingCycle)
			billingCycle.POST("/:id/payment", handlers.BillingCycle.MarkBillingCyclePaid)
			billingCycle.POST("/:id/cancel", handlers.BillingCycle.CancelBillingCycle)
			billingCycle.GET("/:id/amortization", handlers.BillingCycle.GetAmortizationSchedule)
		}

		renewal := private.Group("/renewals")
		{
			renewal.POST("", handlers.Renewal.CreateRenewal)
			renewal.GET("", handlers.Renewal.ListRenewals)
			renewal.GET("/:id", handlers.Renewal.GetRenewal)
			renewal.POST("/:id/process", handlers.Renewal.ProcessRenewal)
			renewal.POST("/:id/cancel", handlers.Renewal.CancelRenewal)
			renewal.POST("/:id/remind", handlers.Renewal.SendReminder)
		}

		pricing := private.Group("/pricing")
		{
			pricing.POST("/quote", handlers.Pricing.CalculatePricing)
			pricing.POST("/subscriptions/quote", handlers.Pricing.CalculateSubscriptionPricing)
		}

		batch := private.Group("/batch")
		{
			batch.POST("/preview", handlers.Batch.Preview)
			batch.POST("/preview/export", handlers.Batch.ExportPreviewCSV)
			batch.POST("/preview/archive", handlers.Batch.ArchivePreview)
			batch.POST("/execute", handlers.Batch.Execute)
		}

		auditLog := private.Group("/audit-logs")
		{
			auditLog.GET("", handlers.AuditLog.ListAuditLogs)
			auditLog.GET("/:entity_type/:entity_id", handlers.AuditLog.GetEntityHistory)
		}

		payment := private.Group("/payments")
		{
			payment.POST("", handlers.Payment.RecordPayment)
		}

		cronJobs := private.Group("/cron")
		{
			billing := cronJobs.Group("/billing")
			{
				billing.POST("/process-scheduled", handlers.CronBilling.ProcessScheduledBillings)
			}

			renewals := cronJobs.Group("/renewals")
			{
				renewals.POST("/process-automatic", handlers.CronRenewal.ProcessAutomaticRenewals)
				renewals.POST("/send-reminders", handlers.CronRenewal.SendScheduledReminders)
				renewals.POST("/update-overdue", handlers.CronRenewal.UpdateOverdueRenewals)
			}
		}
	}

	return router
}
