package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/memberbill/memberbill/internal/cache"
	domainBillingCycle "github.com/memberbill/memberbill/internal/domain/billingcycle"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/postgres"
	"github.com/memberbill/memberbill/internal/types"
)

type billingCycleRepository struct {
	client postgres.IClient
	log    *logger.Logger
	cache  cache.Cache
}

func NewBillingCycleRepository(client postgres.IClient, log *logger.Logger, cache cache.Cache) domainBillingCycle.Repository {
	return &billingCycleRepository{client: client, log: log, cache: cache}
}

var billingCycleSortable = map[string]string{
	"created_at":   "created_at",
	"updated_at":   "updated_at",
	"billing_date": "billing_date",
	"period_start": "period_start",
	"total_amount": "total_amount",
}

const billingCycleInsertQuery = `
	INSERT INTO billing_cycles (
		id, short_id, subscription_id, billing_type, state, billing_date,
		period_start, period_end, currency, quantity,
		base_amount, member_discount, additional_discount, setup_fee, tax_amount,
		proration_adjustment, total_amount, proration_factor,
		immediate_revenue, deferred_revenue,
		requires_manual_review, review_reason, amounts_calculated_at,
		invoice_ref, payment_ref, paid_at,
		retry_count, last_error, failed_at, processed_at,
		metadata, environment_id, tenant_id, status, created_at, updated_at, created_by, updated_by
	) VALUES (
		:id, :short_id, :subscription_id, :billing_type, :state, :billing_date,
		:period_start, :period_end, :currency, :quantity,
		:base_amount, :member_discount, :additional_discount, :setup_fee, :tax_amount,
		:proration_adjustment, :total_amount, :proration_factor,
		:immediate_revenue, :deferred_revenue,
		:requires_manual_review, :review_reason, :amounts_calculated_at,
		:invoice_ref, :payment_ref, :paid_at,
		:retry_count, :last_error, :failed_at, :processed_at,
		:metadata, :environment_id, :tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
	)`

const billingCycleUpdateQuery = `
	UPDATE billing_cycles SET
		state = :state,
		billing_date = :billing_date,
		period_start = :period_start,
		period_end = :period_end,
		quantity = :quantity,
		base_amount = :base_amount,
		member_discount = :member_discount,
		additional_discount = :additional_discount,
		setup_fee = :setup_fee,
		tax_amount = :tax_amount,
		proration_adjustment = :proration_adjustment,
		total_amount = :total_amount,
		proration_factor = :proration_factor,
		immediate_revenue = :immediate_revenue,
		deferred_revenue = :deferred_revenue,
		requires_manual_review = :requires_manual_review,
		review_reason = :review_reason,
		amounts_calculated_at = :amounts_calculated_at,
		invoice_ref = :invoice_ref,
		payment_ref = :payment_ref,
		paid_at = :paid_at,
		retry_count = :retry_count,
		last_error = :last_error,
		failed_at = :failed_at,
		processed_at = :processed_at,
		metadata = :metadata,
		status = :status,
		updated_at = :updated_at,
		updated_by = :updated_by
	WHERE id = :id AND tenant_id = :tenant_id`

func (r *billingCycleRepository) Create(ctx context.Context, bc *domainBillingCycle.BillingCycle) error {
	span := StartRepositorySpan(ctx, "billing_cycle", "create", map[string]interface{}{
		"billing_cycle_id": bc.ID,
		"subscription_id":  bc.SubscriptionID,
		"tenant_id":        bc.TenantID,
	})
	defer FinishSpan(span)

	r.log.Debugw("creating billing cycle",
		"billing_cycle_id", bc.ID,
		"subscription_id", bc.SubscriptionID,
		"billing_date", bc.BillingDate,
		"tenant_id", bc.TenantID,
	)

	if bc.EnvironmentID == "" {
		bc.EnvironmentID = types.GetEnvironmentID(ctx)
	}

	if _, err := r.client.Querier(ctx).NamedExec(billingCycleInsertQuery, bc); err != nil {
		SetSpanError(span, err)
		return ierr.WithError(err).
			WithHint("Failed to create billing cycle").
			WithReportableDetails(map[string]any{
				"billing_cycle_id": bc.ID,
				"subscription_id":  bc.SubscriptionID,
			}).
			Mark(ierr.ErrDatabase)
	}
	SetSpanSuccess(span)
	return nil
}

func (r *billingCycleRepository) Get(ctx context.Context, id string) (*domainBillingCycle.BillingCycle, error) {
	span := StartRepositorySpan(ctx, "billing_cycle", "get", map[string]interface{}{
		"billing_cycle_id": id,
	})
	defer FinishSpan(span)

	if cached := r.GetCache(ctx, id); cached != nil {
		SetSpanSuccess(span)
		return cached, nil
	}

	query, args, err := scopedQuery(ctx, "SELECT * FROM billing_cycles").
		where("id = :id", "id", id).
		build()
	if err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to build billing cycle query").
			Mark(ierr.ErrDatabase)
	}

	var bc domainBillingCycle.BillingCycle
	if err := r.client.Querier(ctx).GetContext(ctx, &bc, query, args...); err != nil {
		SetSpanError(span, err)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.WithError(err).
				WithHint("Billing cycle not found").
				WithReportableDetails(map[string]any{
					"billing_cycle_id": id,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get billing cycle").
			Mark(ierr.ErrDatabase)
	}

	r.SetCache(ctx, &bc)
	SetSpanSuccess(span)
	return &bc, nil
}

func (r *billingCycleRepository) List(ctx context.Context, filter *types.BillingCycleFilter) ([]*domainBillingCycle.BillingCycle, error) {
	if filter == nil {
		filter = types.NewBillingCycleFilter()
	}

	span := StartRepositorySpan(ctx, "billing_cycle", "list", map[string]interface{}{
		"tenant_id": types.GetTenantID(ctx),
	})
	defer FinishSpan(span)

	q := scopedQuery(ctx, "SELECT * FROM billing_cycles")
	if err := r.applyFilter(q, filter); err != nil {
		SetSpanError(span, err)
		return nil, err
	}
	query, args, err := q.
		applyStatus(filter).
		applyTimeRange(filter.TimeRangeFilter, "created_at").
		applyPagination(filter, billingCycleSortable).
		build()
	if err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to build billing cycle query").
			Mark(ierr.ErrDatabase)
	}

	var cycles []*domainBillingCycle.BillingCycle
	if err := r.client.Querier(ctx).SelectContext(ctx, &cycles, query, args...); err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to list billing cycles").
			Mark(ierr.ErrDatabase)
	}
	SetSpanSuccess(span)
	return cycles, nil
}

func (r *billingCycleRepository) Count(ctx context.Context, filter *types.BillingCycleFilter) (int, error) {
	if filter == nil {
		filter = types.NewBillingCycleFilter()
	}

	span := StartRepositorySpan(ctx, "billing_cycle", "count", map[string]interface{}{
		"tenant_id": types.GetTenantID(ctx),
	})
	defer FinishSpan(span)

	q := scopedQuery(ctx, "SELECT COUNT(*) FROM billing_cycles")
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
			WithHint("Failed to build billing cycle query").
			Mark(ierr.ErrDatabase)
	}

	var count int
	if err := r.client.Querier(ctx).GetContext(ctx, &count, query, args...); err != nil {
		SetSpanError(span, err)
		return 0, ierr.WithError(err).
			WithHint("Failed to count billing cycles").
			Mark(ierr.ErrDatabase)
	}
	SetSpanSuccess(span)
	return count, nil
}

func (r *billingCycleRepository) Update(ctx context.Context, bc *domainBillingCycle.BillingCycle) error {
	span := StartRepositorySpan(ctx, "billing_cycle", "update", map[string]interface{}{
		"billing_cycle_id": bc.ID,
		"state":            bc.State,
		"tenant_id":        bc.TenantID,
	})
	defer FinishSpan(span)

	r.log.Debugw("updating billing cycle",
		"billing_cycle_id", bc.ID,
		"state", bc.State,
		"tenant_id", bc.TenantID,
	)

	bc.UpdatedAt = time.Now().UTC()
	bc.UpdatedBy = types.GetUserID(ctx)

	result, err := r.client.Querier(ctx).NamedExec(billingCycleUpdateQuery, bc)
	if err != nil {
		SetSpanError(span, err)
		return ierr.WithError(err).
			WithHint("Failed to update billing cycle").
			WithReportableDetails(map[string]any{
				"billing_cycle_id": bc.ID,
			}).
			Mark(ierr.ErrDatabase)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ierr.NewError("billing cycle not found").
			WithHint("Billing cycle not found").
			WithReportableDetails(map[string]any{
				"billing_cycle_id": bc.ID,
			}).
			Mark(ierr.ErrNotFound)
	}

	r.DeleteCache(ctx, bc.ID)
	SetSpanSuccess(span)
	return nil
}

func (r *billingCycleRepository) Delete(ctx context.Context, id string) error {
	span := StartRepositorySpan(ctx, "billing_cycle", "delete", map[string]interface{}{
		"billing_cycle_id": id,
	})
	defer FinishSpan(span)

	r.log.Debugw("deleting billing cycle",
		"billing_cycle_id", id,
		"tenant_id", types.GetTenantID(ctx),
	)

	query := `
		UPDATE billing_cycles SET
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
			WithHint("Failed to delete billing cycle").
			WithReportableDetails(map[string]any{
				"billing_cycle_id": id,
			}).
			Mark(ierr.ErrDatabase)
	}

	r.DeleteCache(ctx, id)
	SetSpanSuccess(span)
	return nil
}

func (r *billingCycleRepository) ListDue(ctx context.Context, asOf time.Time) ([]*domainBillingCycle.BillingCycle, error) {
	span := StartRepositorySpan(ctx, "billing_cycle", "list_due", map[string]interface{}{
		"as_of":     asOf,
		"tenant_id": types.GetTenantID(ctx),
	})
	defer FinishSpan(span)

	query, args, err := scopedQuery(ctx, "SELECT * FROM billing_cycles").
		where("state = :state", "state", types.BillingCycleStateScheduled).
		where("billing_date <= :as_of", "as_of", types.BeginningOfDay(asOf)).
		whereExpr("status = 'published'").
		orderBy("billing_date", "ASC").
		build()
	if err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to build billing cycle query").
			Mark(ierr.ErrDatabase)
	}

	var cycles []*domainBillingCycle.BillingCycle
	if err := r.client.Querier(ctx).SelectContext(ctx, &cycles, query, args...); err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to list due billing cycles").
			Mark(ierr.ErrDatabase)
	}
	SetSpanSuccess(span)
	return cycles, nil
}

func (r *billingCycleRepository) ListRetryEligible(ctx context.Context, asOf time.Time) ([]*domainBillingCycle.BillingCycle, error) {
	span := StartRepositorySpan(ctx, "billing_cycle", "list_retry_eligible", map[string]interface{}{
		"as_of":     asOf,
		"tenant_id": types.GetTenantID(ctx),
	})
	defer FinishSpan(span)

	query, args, err := scopedQuery(ctx, "SELECT * FROM billing_cycles").
		where("state = :state", "state", types.BillingCycleStateFailed).
		where("retry_count < :max_retries", "max_retries", types.MaxBillingRetries).
		where("billing_date <= :as_of", "as_of", types.BeginningOfDay(asOf)).
		whereExpr("status = 'published'").
		orderBy("billing_date", "ASC").
		build()
	if err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to build billing cycle query").
			Mark(ierr.ErrDatabase)
	}

	var cycles []*domainBillingCycle.BillingCycle
	if err := r.client.Querier(ctx).SelectContext(ctx, &cycles, query, args...); err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to list retry eligible billing cycles").
			Mark(ierr.ErrDatabase)
	}
	SetSpanSuccess(span)
	return cycles, nil
}

func (r *billingCycleRepository) ListBySubscription(ctx context.Context, subscriptionID string) ([]*domainBillingCycle.BillingCycle, error) {
	span := StartRepositorySpan(ctx, "billing_cycle", "list_by_subscription", map[string]interface{}{
		"subscription_id": subscriptionID,
	})
	defer FinishSpan(span)

	query, args, err := scopedQuery(ctx, "SELECT * FROM billing_cycles").
		where("subscription_id = :subscription_id", "subscription_id", subscriptionID).
		whereExpr("status = 'published'").
		orderBy("billing_date", "DESC").
		build()
	if err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to build billing cycle query").
			Mark(ierr.ErrDatabase)
	}

	var cycles []*domainBillingCycle.BillingCycle
	if err := r.client.Querier(ctx).SelectContext(ctx, &cycles, query, args...); err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to list billing cycles for subscription").
			Mark(ierr.ErrDatabase)
	}
	SetSpanSuccess(span)
	return cycles, nil
}

func (r *billingCycleRepository) applyFilter(q *queryBuilder, filter *types.BillingCycleFilter) error {
	if len(filter.SubscriptionIDs) > 0 {
		q.where("subscription_id IN (:subscription_ids)", "subscription_ids", filter.SubscriptionIDs)
	}
	if len(filter.States) > 0 {
		q.where("state IN (:states)", "states", filter.States)
	}
	if len(filter.BillingTypes) > 0 {
		q.where("billing_type IN (:billing_types)", "billing_types", filter.BillingTypes)
	}
	if filter.BillingDateFrom != nil {
		date, err := types.ParseDate(*filter.BillingDateFrom)
		if err != nil {
			return ierr.WithError(err).
				WithHint("billing_date_from must be a YYYY-MM-DD date").
				Mark(ierr.ErrValidation)
		}
		q.where("billing_date >= :billing_date_from", "billing_date_from", date)
	}
	if filter.BillingDateTo != nil {
		date, err := types.ParseDate(*filter.BillingDateTo)
		if err != nil {
			return ierr.WithError(err).
				WithHint("billing_date_to must be a YYYY-MM-DD date").
				Mark(ierr.ErrValidation)
		}
		q.where("billing_date <= :billing_date_to", "billing_date_to", date)
	}
	if filter.RetryEligible != nil && *filter.RetryEligible {
		q.where("state = :retry_state", "retry_state", types.BillingCycleStateFailed)
		q.where("retry_count < :max_retries", "max_retries", types.MaxBillingRetries)
	}
	return nil
}

func (r *billingCycleRepository) SetCache(ctx context.Context, bc *domainBillingCycle.BillingCycle) {
	span := cache.StartCacheSpan(ctx, "billing_cycle", "set", map[string]interface{}{
		"billing_cycle_id": bc.ID,
	})
	defer cache.FinishSpan(span)

	cacheKey := cache.GenerateKey(cache.PrefixBillingCycle, types.GetTenantID(ctx), types.GetEnvironmentID(ctx), bc.ID)
	r.cache.Set(ctx, cacheKey, bc, cache.ExpiryDefaultInMemory)
}

func (r *billingCycleRepository) GetCache(ctx context.Context, key string) *domainBillingCycle.BillingCycle {
	span := cache.StartCacheSpan(ctx, "billing_cycle", "get", map[string]interface{}{
		"billing_cycle_id": key,
	})
	defer cache.FinishSpan(span)

	cacheKey := cache.GenerateKey(cache.PrefixBillingCycle, types.GetTenantID(ctx), types.GetEnvironmentID(ctx), key)
	if value, found := r.cache.Get(ctx, cacheKey); found {
		if bc, ok := value.(*domainBillingCycle.BillingCycle); ok {
			return bc
		}
	}
	return nil
}

func (r *billingCycleRepository) DeleteCache(ctx context.Context, id string) {
	span := cache.StartCacheSpan(ctx, "billing_cycle", "delete", map[string]interface{}{
		"billing_cycle_id": id,
	})
	defer cache.FinishSpan(span)

	cacheKey := cache.GenerateKey(cache.PrefixBillingCycle, types.GetTenantID(ctx), types.GetEnvironmentID(ctx), id)
	r.cache.Delete(ctx, cacheKey)
}
