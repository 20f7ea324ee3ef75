package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/memberbill/memberbill/internal/cache"
	domainSubscription "github.com/memberbill/memberbill/internal/domain/subscription"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/postgres"
	"github.com/memberbill/memberbill/internal/types"
)

type subscriptionRepository struct {
	client postgres.IClient
	log    *logger.Logger
	cache  cache.Cache
}

func NewSubscriptionRepository(client postgres.IClient, log *logger.Logger, cache cache.Cache) domainSubscription.Repository {
	return &subscriptionRepository{client: client, log: log, cache: cache}
}

var subscriptionSortable = map[string]string{
	"created_at":        "created_at",
	"updated_at":        "updated_at",
	"start_date":        "start_date",
	"end_date":          "end_date",
	"next_billing_date": "next_billing_date",
}

const subscriptionInsertQuery = `
	INSERT INTO subscriptions (
		id, subscriber_id, product_id, state, quantity, current_price, currency,
		billing_period, billing_period_count, start_date, current_period_start,
		end_date, next_billing_date, cancelled_at, auto_renew,
		additional_discount_pct, reminder_schedule, grace_period_days,
		metadata, environment_id, tenant_id, status, created_at, updated_at, created_by, updated_by
	) VALUES (
		:id, :subscriber_id, :product_id, :state, :quantity, :current_price, :currency,
		:billing_period, :billing_period_count, :start_date, :current_period_start,
		:end_date, :next_billing_date, :cancelled_at, :auto_renew,
		:additional_discount_pct, :reminder_schedule, :grace_period_days,
		:metadata, :environment_id, :tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
	)`

const subscriptionUpdateQuery = `
	UPDATE subscriptions SET
		state = :state,
		quantity = :quantity,
		current_price = :current_price,
		currency = :currency,
		billing_period = :billing_period,
		billing_period_count = :billing_period_count,
		start_date = :start_date,
		current_period_start = :current_period_start,
		end_date = :end_date,
		next_billing_date = :next_billing_date,
		cancelled_at = :cancelled_at,
		auto_renew = :auto_renew,
		additional_discount_pct = :additional_discount_pct,
		reminder_schedule = :reminder_schedule,
		grace_period_days = :grace_period_days,
		metadata = :metadata,
		status = :status,
		updated_at = :updated_at,
		updated_by = :updated_by
	WHERE id = :id AND tenant_id = :tenant_id`

func (r *subscriptionRepository) Create(ctx context.Context, s *domainSubscription.Subscription) error {
	span := StartRepositorySpan(ctx, "subscription", "create", map[string]interface{}{
		"subscription_id": s.ID,
		"subscriber_id":   s.SubscriberID,
		"product_id":      s.ProductID,
		"tenant_id":       s.TenantID,
	})
	defer FinishSpan(span)

	r.log.Debugw("creating subscription",
		"subscription_id", s.ID,
		"subscriber_id", s.SubscriberID,
		"product_id", s.ProductID,
		"tenant_id", s.TenantID,
	)

	if s.EnvironmentID == "" {
		s.EnvironmentID = types.GetEnvironmentID(ctx)
	}

	if _, err := r.client.Querier(ctx).NamedExec(subscriptionInsertQuery, s); err != nil {
		SetSpanError(span, err)
		return ierr.WithError(err).
			WithHint("Failed to create subscription").
			WithReportableDetails(map[string]any{
				"subscription_id": s.ID,
				"subscriber_id":   s.SubscriberID,
			}).
			Mark(ierr.ErrDatabase)
	}
	SetSpanSuccess(span)
	return nil
}

func (r *subscriptionRepository) Get(ctx context.Context, id string) (*domainSubscription.Subscription, error) {
	span := StartRepositorySpan(ctx, "subscription", "get", map[string]interface{}{
		"subscription_id": id,
	})
	defer FinishSpan(span)

	if cached := r.GetCache(ctx, id); cached != nil {
		SetSpanSuccess(span)
		return cached, nil
	}

	query, args, err := scopedQuery(ctx, "SELECT * FROM subscriptions").
		where("id = :id", "id", id).
		build()
	if err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to build subscription query").
			Mark(ierr.ErrDatabase)
	}

	var s domainSubscription.Subscription
	if err := r.client.Querier(ctx).GetContext(ctx, &s, query, args...); err != nil {
		SetSpanError(span, err)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.WithError(err).
				WithHint("Subscription not found").
				WithReportableDetails(map[string]any{
					"subscription_id": id,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get subscription").
			Mark(ierr.ErrDatabase)
	}

	r.SetCache(ctx, &s)
	SetSpanSuccess(span)
	return &s, nil
}

func (r *subscriptionRepository) List(ctx context.Context, filter *types.SubscriptionFilter) ([]*domainSubscription.Subscription, error) {
	if filter == nil {
		filter = types.NewSubscriptionFilter()
	}

	span := StartRepositorySpan(ctx, "subscription", "list", map[string]interface{}{
		"tenant_id": types.GetTenantID(ctx),
	})
	defer FinishSpan(span)

	q := scopedQuery(ctx, "SELECT * FROM subscriptions")
	if err := r.applyFilter(q, filter); err != nil {
		SetSpanError(span, err)
		return nil, err
	}
	query, args, err := q.
		applyStatus(filter).
		applyTimeRange(filter.TimeRangeFilter, "created_at").
		applyPagination(filter, subscriptionSortable).
		build()
	if err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to build subscription query").
			Mark(ierr.ErrDatabase)
	}

	var subscriptions []*domainSubscription.Subscription
	if err := r.client.Querier(ctx).SelectContext(ctx, &subscriptions, query, args...); err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to list subscriptions").
			Mark(ierr.ErrDatabase)
	}
	SetSpanSuccess(span)
	return subscriptions, nil
}

func (r *subscriptionRepository) Count(ctx context.Context, filter *types.SubscriptionFilter) (int, error) {
	if filter == nil {
		filter = types.NewSubscriptionFilter()
	}

	span := StartRepositorySpan(ctx, "subscription", "count", map[string]interface{}{
		"tenant_id": types.GetTenantID(ctx),
	})
	defer FinishSpan(span)

	q := scopedQuery(ctx, "SELECT COUNT(*) FROM subscriptions")
	if err := r.applyFilter(q, filter); err != nil {
		SetSpanError(span, err)
		return 0, err
	}
	query, args, err := q.
		applyStatus(filter).
		applyTimeRange(filter.TimeRangeFilter, "created_at").
		build()
	if err != nil {
		SetSpanError(span, err)
		return 0, ierr.WithError(err).
			WithHint("Failed to build subscription query").
			Mark(ierr.ErrDatabase)
	}

	var count int
	if err := r.client.Querier(ctx).GetContext(ctx, &count, query, args...); err != nil {
		SetSpanError(span, err)
		return 0, ierr.WithError(err).
			WithHint("Failed to count subscriptions").
			Mark(ierr.ErrDatabase)
	}
	SetSpanSuccess(span)
	return count, nil
}

func (r *subscriptionRepository) Update(ctx context.Context, s *domainSubscription.Subscription) error {
	span := StartRepositorySpan(ctx, "subscription", "update", map[string]interface{}{
		"subscription_id": s.ID,
		"tenant_id":       s.TenantID,
	})
	defer FinishSpan(span)

	r.log.Debugw("updating subscription",
		"subscription_id", s.ID,
		"state", s.State,
		"tenant_id", s.TenantID,
	)

	s.UpdatedAt = time.Now().UTC()
	s.UpdatedBy = types.GetUserID(ctx)

	result, err := r.client.Querier(ctx).NamedExec(subscriptionUpdateQuery, s)
	if err != nil {
		SetSpanError(span, err)
		return ierr.WithError(err).
			WithHint("Failed to update subscription").
			WithReportableDetails(map[string]any{
				"subscription_id": s.ID,
			}).
			Mark(ierr.ErrDatabase)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ierr.NewError("subscription not found").
			WithHint("Subscription not found").
			WithReportableDetails(map[string]any{
				"subscription_id": s.ID,
			}).
			Mark(ierr.ErrNotFound)
	}

	r.DeleteCache(ctx, s.ID)
	SetSpanSuccess(span)
	return nil
}

func (r *subscriptionRepository) Delete(ctx context.Context, id string) error {
	span := StartRepositorySpan(ctx, "subscription", "delete", map[string]interface{}{
		"subscription_id": id,
	})
	defer FinishSpan(span)

	r.log.Debugw("deleting subscription",
		"subscription_id", id,
		"tenant_id", types.GetTenantID(ctx),
	)

	query := `
		UPDATE subscriptions SET
			status = :status,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id`

	_, err := r.client.Querier(ctx).NamedExec(query, map[string]interface{}{
		"id":         id,
		"tenant_id":  types.GetTenantID(ctx),
		"status":     types.StatusDeleted,
		"updated_at": time.Now().UTC(),
		"updated_by": types.GetUserID(ctx),
	})
	if err != nil {
		SetSpanError(span, err)
		return ierr.WithError(err).
			WithHint("Failed to delete subscription").
			WithReportableDetails(map[string]any{
				"subscription_id": id,
			}).
			Mark(ierr.ErrDatabase)
	}

	r.DeleteCache(ctx, id)
	SetSpanSuccess(span)
	return nil
}

func (r *subscriptionRepository) applyFilter(q *queryBuilder, filter *types.SubscriptionFilter) error {
	if len(filter.SubscriberIDs) > 0 {
		q.where("subscriber_id IN (:subscriber_ids)", "subscriber_ids", filter.SubscriberIDs)
	}
	if len(filter.ProductIDs) > 0 {
		q.where("product_id IN (:product_ids)", "product_ids", filter.ProductIDs)
	}
	if len(filter.States) > 0 {
		q.where("state IN (:states)", "states", filter.States)
	}
	if len(filter.BillingPeriods) > 0 {
		q.where("billing_period IN (:billing_periods)", "billing_periods", filter.BillingPeriods)
	}
	if filter.AutoRenew != nil {
		q.where("auto_renew = :auto_renew", "auto_renew", *filter.AutoRenew)
	}
	if filter.NextBillingBefore != nil {
		date, err := types.ParseDate(*filter.NextBillingBefore)
		if err != nil {
			return ierr.WithError(err).
				WithHint("next_billing_before must be a YYYY-MM-DD date").
				Mark(ierr.ErrValidation)
		}
		q.where("next_billing_date <= :next_billing_before", "next_billing_before", date)
	}
	if filter.NextBillingAfter != nil {
		date, err := types.ParseDate(*filter.NextBillingAfter)
		if err != nil {
			return ierr.WithError(err).
				WithHint("next_billing_after must be a YYYY-MM-DD date").
				Mark(ierr.ErrValidation)
		}
		q.where("next_billing_date >= :next_billing_after", "next_billing_after", date)
	}
	if filter.WithActiveRenewals != nil {
		existsExpr := `EXISTS (
			SELECT 1 FROM renewals
			WHERE renewals.subscription_id = subscriptions.id
			AND renewals.tenant_id = subscriptions.tenant_id
			AND renewals.state IN ('pending', 'reminded', 'processing', 'grace_period')
		)`
		if *filter.WithActiveRenewals {
			q.whereExpr(existsExpr)
		} else {
			q.whereExpr("NOT " + existsExpr)
		}
	}
	return nil
}

func (r *subscriptionRepository) SetCache(ctx context.Context, s *domainSubscription.Subscription) {
	span := cache.StartCacheSpan(ctx, "subscription", "set", map[string]interface{}{
		"subscription_id": s.ID,
	})
	defer cache.FinishSpan(span)

	cacheKey := cache.GenerateKey(cache.PrefixSubscription, types.GetTenantID(ctx), types.GetEnvironmentID(ctx), s.ID)
	r.cache.Set(ctx, cacheKey, s, cache.ExpiryDefaultInMemory)
}

func (r *subscriptionRepository) GetCache(ctx context.Context, key string) *domainSubscription.Subscription {
	span := cache.StartCacheSpan(ctx, "subscription", "get", map[string]interface{}{
		"subscription_id": key,
	})
	defer cache.FinishSpan(span)

	cacheKey := cache.GenerateKey(cache.PrefixSubscription, types.GetTenantID(ctx), types.GetEnvironmentID(ctx), key)
	if value, found := r.cache.Get(ctx, cacheKey); found {
		if s, ok := value.(*domainSubscription.Subscription); ok {
			return s
		}
	}
	return nil
}

func (r *subscriptionRepository) DeleteCache(ctx context.Context, id string) {
	span := cache.StartCacheSpan(ctx, "subscription", "delete", map[string]interface{}{
		"subscription_id": id,
	})
	defer cache.FinishSpan(span)

	cacheKey := cache.GenerateKey(cache.PrefixSubscription, types.GetTenantID(ctx), types.GetEnvironmentID(ctx), id)
	r.cache.Delete(ctx, cacheKey)
}
