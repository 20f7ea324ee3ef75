package service

import (
	"github.com/memberbill/memberbill/internal/config"
	"github.com/memberbill/memberbill/internal/domain/auditlog"
	"github.com/memberbill/memberbill/internal/domain/auth"
	"github.com/memberbill/memberbill/internal/domain/billingcycle"
	"github.com/memberbill/memberbill/internal/domain/invoicing"
	"github.com/memberbill/memberbill/internal/domain/pricing"
	"github.com/memberbill/memberbill/internal/domain/product"
	"github.com/memberbill/memberbill/internal/domain/renewal"
	"github.com/memberbill/memberbill/internal/domain/subscriber"
	"github.com/memberbill/memberbill/internal/domain/subscription"
	"github.com/memberbill/memberbill/internal/domain/user"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/notify/publisher"
	"github.com/memberbill/memberbill/internal/postgres"
	"github.com/memberbill/memberbill/internal/s3"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     postgres.IClient
	S3     s3.Service

	// Repositories
	AuthRepo         auth.Repository
	UserRepo         user.Repository
	SubscriberRepo   subscriber.Repository
	ProductRepo      product.Repository
	SubRepo          subscription.Repository
	BillingCycleRepo billingcycle.Repository
	RenewalRepo      renewal.Repository
	AuditLogRepo     auditlog.Repository

	// Collaborators
	PricingCalculator pricing.Calculator
	InvoicingGateway  invoicing.Gateway
	Sender            publisher.Sender
}

// Common service params
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	db postgres.IClient,
	s3Service s3.Service,
	authRepo auth.Repository,
	userRepo user.Repository,
	subscriberRepo subscriber.Repository,
	productRepo product.Repository,
	subRepo subscription.Repository,
	billingCycleRepo billingcycle.Repository,
	renewalRepo renewal.Repository,
	auditLogRepo auditlog.Repository,
	pricingCalculator pricing.Calculator,
	invoicingGateway invoicing.Gateway,
	sender publisher.Sender,
) ServiceParams {
	return ServiceParams{
		Logger:            logger,
		Config:            config,
		DB:                db,
		S3:                s3Service,
		AuthRepo:          authRepo,
		UserRepo:          userRepo,
		SubscriberRepo:    subscriberRepo,
		ProductRepo:       productRepo,
		SubRepo:           subRepo,
		BillingCycleRepo:  billingCycleRepo,
		RenewalRepo:       renewalRepo,
		AuditLogRepo:      auditLogRepo,
		PricingCalculator: pricingCalculator,
		InvoicingGateway:  invoicingGateway,
		Sender:            sender,
	}
}
