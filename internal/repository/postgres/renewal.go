package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/memberbill/memberbill/internal/cache"
	domainRenewal "github.com/memberbill/memberbill/internal/domain/renewal"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/postgres"
	"github.com/memberbill/memberbill/internal/types"
)

type renewalRepository struct {
	client postgres.IClient
	log    *logger.Logger
	cache  cache.Cache
}

func NewRenewalRepository(client postgres.IClient, log *logger.Logger, cache cache.Cache) domainRenewal.Repository {
	return &renewalRepository{client: client, log: log, cache: cache}
}

var renewalSortable = map[string]string{
	"created_at":       "created_at",
	"updated_at":       "updated_at",
	"due_date":         "due_date",
	"next_reminder_at": "next_reminder_at",
	"renewal_count":    "renewal_count",
}

// renewalOpenStates are the states a renewal can still move out of
var renewalOpenStates = []types.RenewalState{
	types.RenewalStatePending,
	types.RenewalStateReminded,
	types.RenewalStateProcessing,
	types.RenewalStateGracePeriod,
	types.RenewalStateExpired,
}

const renewalInsertQuery = `
	INSERT INTO renewals (
		id, short_id, subscription_id, state, current_period_end, due_date,
		grace_period_end, next_renewal_due, renewal_count, previous_renewal_id,
		billing_cycle_id, currency, current_price, renewal_price, member_discount,
		price_increase_amount, price_increase_pct, price_increase_warning,
		reminder_count, last_reminder_at, next_reminder_at,
		process_method, processed_at, last_error,
		metadata, environment_id, tenant_id, status, created_at, updated_at, created_by, updated_by
	) VALUES (
		:id, :short_id, :subscription_id, :state, :current_period_end, :due_date,
		:grace_period_end, :next_renewal_due, :renewal_count, :previous_renewal_id,
		:billing_cycle_id, :currency, :current_price, :renewal_price, :member_discount,
		:price_increase_amount, :price_increase_pct, :price_increase_warning,
		:reminder_count, :last_reminder_at, :next_reminder_at,
		:process_method, :processed_at, :last_error,
		:metadata, :environment_id, :tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
	)`

const renewalUpdateQuery = `
	UPDATE renewals SET
		state = :state,
		current_period_end = :current_period_end,
		due_date = :due_date,
		grace_period_end = :grace_period_end,
		next_renewal_due = :next_renewal_due,
		billing_cycle_id = :billing_cycle_id,
		current_price = :current_price,
		renewal_price = :renewal_price,
		member_discount = :member_discount,
		price_increase_amount = :price_increase_amount,
		price_increase_pct = :price_increase_pct,
		price_increase_warning = :price_increase_warning,
		reminder_count = :reminder_count,
		last_reminder_at = :last_reminder_at,
		next_reminder_at = :next_reminder_at,
		process_method = :process_method,
		processed_at = :processed_at,
		last_error = :last_error,
		metadata = :metadata,
		status = :status,
		updated_at = :updated_at,
		updated_by = :updated_by
	WHERE id = :id AND tenant_id = :tenant_id`

func (r *renewalRepository) Create(ctx context.Context, ren *domainRenewal.Renewal) error {
	span := StartRepositorySpan(ctx, "renewal", "create", map[string]interface{}{
		"renewal_id":      ren.ID,
		"subscription_id": ren.SubscriptionID,
		"due_date":        ren.DueDate,
		"tenant_id":       ren.TenantID,
	})
	defer FinishSpan(span)

	r.log.Debugw("creating renewal",
		"renewal_id", ren.ID,
		"subscription_id", ren.SubscriptionID,
		"due_date", ren.DueDate,
		"renewal_count", ren.RenewalCount,
		"tenant_id", ren.TenantID,
	)

	if ren.EnvironmentID == "" {
		ren.EnvironmentID = types.GetEnvironmentID(ctx)
	}

	if _, err := r.client.Querier(ctx).NamedExec(renewalInsertQuery, ren); err != nil {
		SetSpanError(span, err)
		return ierr.WithError(err).
			WithHint("Failed to create renewal").
			WithReportableDetails(map[string]any{
				"renewal_id":      ren.ID,
				"subscription_id": ren.SubscriptionID,
			}).
			Mark(ierr.ErrDatabase)
	}
	SetSpanSuccess(span)
	return nil
}

func (r *renewalRepository) Get(ctx context.Context, id string) (*domainRenewal.Renewal, error) {
	span := StartRepositorySpan(ctx, "renewal", "get", map[string]interface{}{
		"renewal_id": id,
	})
	defer FinishSpan(span)

	if cached := r.GetCache(ctx, id); cached != nil {
		SetSpanSuccess(span)
		return cached, nil
	}

	query, args, err := scopedQuery(ctx, "SELECT * FROM renewals").
		where("id = :id", "id", id).
		build()
	if err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to build renewal query").
			Mark(ierr.ErrDatabase)
	}

	var ren domainRenewal.Renewal
	if err := r.client.Querier(ctx).GetContext(ctx, &ren, query, args...); err != nil {
		SetSpanError(span, err)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.WithError(err).
				WithHint("Renewal not found").
				WithReportableDetails(map[string]any{
					"renewal_id": id,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get renewal").
			Mark(ierr.ErrDatabase)
	}

	r.SetCache(ctx, &ren)
	SetSpanSuccess(span)
	return &ren, nil
}

func (r *renewalRepository) List(ctx context.Context, filter *types.RenewalFilter) ([]*domainRenewal.Renewal, error) {
	if filter == nil {
		filter = types.NewRenewalFilter()
	}

	span := StartRepositorySpan(ctx, "renewal", "list", map[string]interface{}{
		"tenant_id": types.GetTenantID(ctx),
	})
	defer FinishSpan(span)

	q := scopedQuery(ctx, "SELECT * FROM renewals")
	if err := r.applyFilter(q, filter); err != nil {
		SetSpanError(span, err)
		return nil, err
	}
	query, args, err := q.
		applyStatus(filter).
		applyTimeRange(filter.TimeRangeFilter, "created_at").
		applyPagination(filter, renewalSortable).
		build()
	if err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to build renewal query").
			Mark(ierr.ErrDatabase)
	}

	var renewals []*domainRenewal.Renewal
	if err := r.client.Querier(ctx).SelectContext(ctx, &renewals, query, args...); err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to list renewals").
			Mark(ierr.ErrDatabase)
	}
	SetSpanSuccess(span)
	return renewals, nil
}

func (r *renewalRepository) Count(ctx context.Context, filter *types.RenewalFilter) (int, error) {
	if filter == nil {
		filter = types.NewRenewalFilter()
	}

	span := StartRepositorySpan(ctx, "renewal", "count", map[string]interface{}{
		"tenant_id": types.GetTenantID(ctx),
	})
	defer FinishSpan(span)

	q := scopedQuery(ctx, "SELECT COUNT(*) FROM renewals")
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
			WithHint("Failed to build renewal query").
			Mark(ierr.ErrDatabase)
	}

	var count int
	if err := r.client.Querier(ctx).GetContext(ctx, &count, query, args...); err != nil {
		SetSpanError(span, err)
		return 0, ierr.WithError(err).
			WithHint("Failed to count renewals").
			Mark(ierr.ErrDatabase)
	}
	SetSpanSuccess(span)
	return count, nil
}

func (r *renewalRepository) Update(ctx context.Context, ren *domainRenewal.Renewal) error {
	span := StartRepositorySpan(ctx, "renewal", "update", map[string]interface{}{
		"renewal_id": ren.ID,
		"state":      ren.State,
		"tenant_id":  ren.TenantID,
	})
	defer FinishSpan(span)

	r.log.Debugw("updating renewal",
		"renewal_id", ren.ID,
		"state", ren.State,
		"tenant_id", ren.TenantID,
	)

	ren.UpdatedAt = time.Now().UTC()
	ren.UpdatedBy = types.GetUserID(ctx)

	result, err := r.client.Querier(ctx).NamedExec(renewalUpdateQuery, ren)
	if err != nil {
		SetSpanError(span, err)
		return ierr.WithError(err).
			WithHint("Failed to update renewal").
			WithReportableDetails(map[string]any{
				"renewal_id": ren.ID,
			}).
			Mark(ierr.ErrDatabase)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ierr.NewError("renewal not found").
			WithHint("Renewal not found").
			WithReportableDetails(map[string]any{
				"renewal_id": ren.ID,
			}).
			Mark(ierr.ErrNotFound)
	}

	r.DeleteCache(ctx, ren.ID)
	SetSpanSuccess(span)
	return nil
}

func (r *renewalRepository) Delete(ctx context.Context, id string) error {
	span := StartRepositorySpan(ctx, "renewal", "delete", map[string]interface{}{
		"renewal_id": id,
	})
	defer FinishSpan(span)

	r.log.Debugw("deleting renewal",
		"renewal_id", id,
		"tenant_id", types.GetTenantID(ctx),
	)

	query := `
		UPDATE renewals SET
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
			WithHint("Failed to delete renewal").
			WithReportableDetails(map[string]any{
				"renewal_id": id,
			}).
			Mark(ierr.ErrDatabase)
	}

	r.DeleteCache(ctx, id)
	SetSpanSuccess(span)
	return nil
}

func (r *renewalRepository) GetOpenBySubscription(ctx context.Context, subscriptionID string) (*domainRenewal.Renewal, error) {
	span := StartRepositorySpan(ctx, "renewal", "get_open_by_subscription", map[string]interface{}{
		"subscription_id": subscriptionID,
	})
	defer FinishSpan(span)

	query, args, err := scopedQuery(ctx, "SELECT * FROM renewals").
		where("subscription_id = :subscription_id", "subscription_id", subscriptionID).
		where("state IN (:states)", "states", renewalOpenStates).
		whereExpr("status = 'published'").
		orderBy("created_at", "DESC").
		build()
	if err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to build renewal query").
			Mark(ierr.ErrDatabase)
	}

	var ren domainRenewal.Renewal
	if err := r.client.Querier(ctx).GetContext(ctx, &ren, query, args...); err != nil {
		SetSpanError(span, err)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.WithError(err).
				WithHint("No open renewal for subscription").
				WithReportableDetails(map[string]any{
					"subscription_id": subscriptionID,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get open renewal").
			Mark(ierr.ErrDatabase)
	}
	SetSpanSuccess(span)
	return &ren, nil
}

func (r *renewalRepository) ListDueForProcessing(ctx context.Context, asOf time.Time) ([]*domainRenewal.Renewal, error) {
	span := StartRepositorySpan(ctx, "renewal", "list_due_for_processing", map[string]interface{}{
		"as_of":     asOf,
		"tenant_id": types.GetTenantID(ctx),
	})
	defer FinishSpan(span)

	// Joined with subscriptions to honor the auto renew flag; all renewal
	// columns are qualified to keep the bind names unambiguous.
	q := newQuery(`
		SELECT renewals.* FROM renewals
		JOIN subscriptions ON subscriptions.id = renewals.subscription_id
			AND subscriptions.tenant_id = renewals.tenant_id`)
	q.where("renewals.tenant_id = :tenant_id", "tenant_id", types.GetTenantID(ctx))
	if envID := types.GetEnvironmentID(ctx); envID != "" {
		q.where("renewals.environment_id = :environment_id", "environment_id", envID)
	}
	q.where("renewals.state IN (:states)", "states", []types.RenewalState{
		types.RenewalStatePending,
		types.RenewalStateReminded,
		types.RenewalStateGracePeriod,
	})
	q.where("renewals.due_date <= :as_of", "as_of", types.BeginningOfDay(asOf))
	q.whereExpr("subscriptions.auto_renew = true")
	q.where("subscriptions.state = :subscription_state", "subscription_state", types.SubscriptionStateActive)
	q.whereExpr("renewals.status = 'published'")
	q.orderBy("renewals.due_date", "ASC")

	query, args, err := q.build()
	if err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to build renewal query").
			Mark(ierr.ErrDatabase)
	}

	var renewals []*domainRenewal.Renewal
	if err := r.client.Querier(ctx).SelectContext(ctx, &renewals, query, args...); err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to list renewals due for processing").
			Mark(ierr.ErrDatabase)
	}
	SetSpanSuccess(span)
	return renewals, nil
}

func (r *renewalRepository) ListReminderCandidates(ctx context.Context, asOf time.Time) ([]*domainRenewal.Renewal, error) {
	span := StartRepositorySpan(ctx, "renewal", "list_reminder_candidates", map[string]interface{}{
		"as_of":     asOf,
		"tenant_id": types.GetTenantID(ctx),
	})
	defer FinishSpan(span)

	query, args, err := scopedQuery(ctx, "SELECT * FROM renewals").
		where("state IN (:states)", "states", []types.RenewalState{
			types.RenewalStatePending,
			types.RenewalStateReminded,
		}).
		whereExpr("next_reminder_at IS NOT NULL").
		where("next_reminder_at <= :as_of", "as_of", types.BeginningOfDay(asOf)).
		whereExpr("status = 'published'").
		orderBy("next_reminder_at", "ASC").
		build()
	if err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to build renewal query").
			Mark(ierr.ErrDatabase)
	}

	var renewals []*domainRenewal.Renewal
	if err := r.client.Querier(ctx).SelectContext(ctx, &renewals, query, args...); err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to list reminder candidates").
			Mark(ierr.ErrDatabase)
	}
	SetSpanSuccess(span)
	return renewals, nil
}

func (r *renewalRepository) ListOverdue(ctx context.Context, asOf time.Time) ([]*domainRenewal.Renewal, error) {
	span := StartRepositorySpan(ctx, "renewal", "list_overdue", map[string]interface{}{
		"as_of":     asOf,
		"tenant_id": types.GetTenantID(ctx),
	})
	defer FinishSpan(span)

	query, args, err := scopedQuery(ctx, "SELECT * FROM renewals").
		where("state IN (:states)", "states", []types.RenewalState{
			types.RenewalStatePending,
			types.RenewalStateReminded,
			types.RenewalStateGracePeriod,
		}).
		where("due_date < :as_of", "as_of", types.BeginningOfDay(asOf)).
		whereExpr("status = 'published'").
		orderBy("due_date", "ASC").
		build()
	if err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to build renewal query").
			Mark(ierr.ErrDatabase)
	}

	var renewals []*domainRenewal.Renewal
	if err := r.client.Querier(ctx).SelectContext(ctx, &renewals, query, args...); err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to list overdue renewals").
			Mark(ierr.ErrDatabase)
	}
	SetSpanSuccess(span)
	return renewals, nil
}

func (r *renewalRepository) applyFilter(q *queryBuilder, filter *types.RenewalFilter) error {
	if len(filter.SubscriptionIDs) > 0 {
		q.where("subscription_id IN (:subscription_ids)", "subscription_ids", filter.SubscriptionIDs)
	}
	if len(filter.States) > 0 {
		q.where("state IN (:states)", "states", filter.States)
	}
	if len(filter.PreviousRenewalIDs) > 0 {
		q.where("previous_renewal_id IN (:previous_renewal_ids)", "previous_renewal_ids", filter.PreviousRenewalIDs)
	}
	if filter.DueDateFrom != nil {
		date, err := types.ParseDate(*filter.DueDateFrom)
		if err != nil {
			return ierr.WithError(err).
				WithHint("due_date_from must be a YYYY-MM-DD date").
				Mark(ierr.ErrValidation)
		}
		q.where("due_date >= :due_date_from", "due_date_from", date)
	}
	if filter.DueDateTo != nil {
		date, err := types.ParseDate(*filter.DueDateTo)
		if err != nil {
			return ierr.WithError(err).
				WithHint("due_date_to must be a YYYY-MM-DD date").
				Mark(ierr.ErrValidation)
		}
		q.where("due_date <= :due_date_to", "due_date_to", date)
	}
	if filter.ReminderDueBefore != nil {
		date, err := types.ParseDate(*filter.ReminderDueBefore)
		if err != nil {
			return ierr.WithError(err).
				WithHint("reminder_due_before must be a YYYY-MM-DD date").
				Mark(ierr.ErrValidation)
		}
		q.whereExpr("next_reminder_at IS NOT NULL")
		q.where("next_reminder_at <= :reminder_due_before", "reminder_due_before", date)
	}
	if filter.AutoRenewEligible != nil && *filter.AutoRenewEligible {
		q.whereExpr(`EXISTS (
			SELECT 1 FROM subscriptions
			WHERE subscriptions.id = renewals.subscription_id
			AND subscriptions.tenant_id = renewals.tenant_id
			AND subscriptions.auto_renew = true
			AND subscriptions.state = 'active'
		)`)
	}
	return nil
}

func (r *renewalRepository) SetCache(ctx context.Context, ren *domainRenewal.Renewal) {
	span := cache.StartCacheSpan(ctx, "renewal", "set", map[string]interface{}{
		"renewal_id": ren.ID,
	})
	defer cache.FinishSpan(span)

	cacheKey := cache.GenerateKey(cache.PrefixRenewal, types.GetTenantID(ctx), types.GetEnvironmentID(ctx), ren.ID)
	r.cache.Set(ctx, cacheKey, ren, cache.ExpiryDefaultInMemory)
}

func (r *renewalRepository) GetCache(ctx context.Context, key string) *domainRenewal.Renewal {
	span := cache.StartCacheSpan(ctx, "renewal", "get", map[string]interface{}{
		"renewal_id": key,
	})
	defer cache.FinishSpan(span)

	cacheKey := cache.GenerateKey(cache.PrefixRenewal, types.GetTenantID(ctx), types.GetEnvironmentID(ctx), key)
	if value, found := r.cache.Get(ctx, cacheKey); found {
		if ren, ok := value.(*domainRenewal.Renewal); ok {
			return ren
		}
	}
	return nil
}

func (r *renewalRepository) DeleteCache(ctx context.Context, id string) {
	span := cache.StartCacheSpan(ctx, "renewal", "delete", map[string]interface{}{
		"renewal_id": id,
	})
	defer cache.FinishSpan(span)

	cacheKey := cache.GenerateKey(cache.PrefixRenewal, types.GetTenantID(ctx), types.GetEnvironmentID(ctx), id)
	r.cache.Delete(ctx, cacheKey)
}
