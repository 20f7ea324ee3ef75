package repository

import (
	"github.com/memberbill/memberbill/internal/cache"
	"github.com/memberbill/memberbill/internal/clickhouse"
	"github.com/memberbill/memberbill/internal/config"
	"github.com/memberbill/memberbill/internal/domain/auditlog"
	"github.com/memberbill/memberbill/internal/domain/auth"
	"github.com/memberbill/memberbill/internal/domain/billingcycle"
	"github.com/memberbill/memberbill/internal/domain/product"
	"github.com/memberbill/memberbill/internal/domain/renewal"
	"github.com/memberbill/memberbill/internal/domain/subscriber"
	"github.com/memberbill/memberbill/internal/domain/subscription"
	"github.com/memberbill/memberbill/internal/domain/user"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/postgres"
	clickhouseRepo "github.com/memberbill/memberbill/internal/repository/clickhouse"
	postgresRepo "github.com/memberbill/memberbill/internal/repository/postgres"
)

type RepositoryType string

const (
	PostgresRepo   RepositoryType = "postgres"
	ClickHouseRepo RepositoryType = "clickhouse"
)

func NewSubscriberRepository(client postgres.IClient, logger *logger.Logger, cache cache.Cache) subscriber.Repository {
	return postgresRepo.NewSubscriberRepository(client, logger, cache)
}

func NewProductRepository(client postgres.IClient, logger *logger.Logger, cache cache.Cache) product.Repository {
	return postgresRepo.NewProductRepository(client, logger, cache)
}

func NewSubscriptionRepository(client postgres.IClient, logger *logger.Logger, cache cache.Cache) subscription.Repository {
	return postgresRepo.NewSubscriptionRepository(client, logger, cache)
}

func NewBillingCycleRepository(client postgres.IClient, logger *logger.Logger, cache cache.Cache) billingcycle.Repository {
	return postgresRepo.NewBillingCycleRepository(client, logger, cache)
}

func NewRenewalRepository(client postgres.IClient, logger *logger.Logger, cache cache.Cache) renewal.Repository {
	return postgresRepo.NewRenewalRepository(client, logger, cache)
}

// NewAuditLogRepository picks the audit store from config. Postgres keeps
// entries transactional with the change they describe; ClickHouse is the
// high volume alternative.
func NewAuditLogRepository(cfg *config.Configuration, client postgres.IClient, store *clickhouse.ClickHouseStore, logger *logger.Logger) auditlog.Repository {
	if RepositoryType(cfg.Billing.AuditStore) == ClickHouseRepo {
		return clickhouseRepo.NewAuditLogRepository(store, logger)
	}
	return postgresRepo.NewAuditLogRepository(client, logger)
}

func NewUserRepository(client postgres.IClient, logger *logger.Logger) user.Repository {
	return postgresRepo.NewUserRepository(client, logger)
}

func NewAuthRepository(client postgres.IClient, logger *logger.Logger) auth.Repository {
	return postgresRepo.NewAuthRepository(client, logger)
}
