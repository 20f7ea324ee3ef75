package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/memberbill/memberbill/internal/cache"
	domainSubscriber "github.com/memberbill/memberbill/internal/domain/subscriber"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/postgres"
	"github.com/memberbill/memberbill/internal/types"
)

type subscriberRepository struct {
	client postgres.IClient
	log    *logger.Logger
	cache  cache.Cache
}

func NewSubscriberRepository(client postgres.IClient, log *logger.Logger, cache cache.Cache) domainSubscriber.Repository {
	return &subscriberRepository{client: client, log: log, cache: cache}
}

var subscriberSortable = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"name":       "name",
	"email":      "email",
}

const subscriberInsertQuery = `
	INSERT INTO subscribers (
		id, external_id, name, email, is_member, membership_status, member_since,
		currency, has_outstanding_balance,
		address_line1, address_line2, address_city, address_postal_code, address_country,
		metadata, environment_id, tenant_id, status, created_at, updated_at, created_by, updated_by
	) VALUES (
		:id, :external_id, :name, :email, :is_member, :membership_status, :member_since,
		:currency, :has_outstanding_balance,
		:address_line1, :address_line2, :address_city, :address_postal_code, :address_country,
		:metadata, :environment_id, :tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
	)`

const subscriberUpdateQuery = `
	UPDATE subscribers SET
		external_id = :external_id,
		name = :name,
		email = :email,
		is_member = :is_member,
		membership_status = :membership_status,
		member_since = :member_since,
		currency = :currency,
		has_outstanding_balance = :has_outstanding_balance,
		address_line1 = :address_line1,
		address_line2 = :address_line2,
		address_city = :address_city,
		address_postal_code = :address_postal_code,
		address_country = :address_country,
		metadata = :metadata,
		status = :status,
		updated_at = :updated_at,
		updated_by = :updated_by
	WHERE id = :id AND tenant_id = :tenant_id`

func (r *subscriberRepository) Create(ctx context.Context, s *domainSubscriber.Subscriber) error {
	span := StartRepositorySpan(ctx, "subscriber", "create", map[string]interface{}{
		"subscriber_id": s.ID,
		"external_id":   s.ExternalID,
		"tenant_id":     s.TenantID,
	})
	defer FinishSpan(span)

	r.log.Debugw("creating subscriber",
		"subscriber_id", s.ID,
		"external_id", s.ExternalID,
		"tenant_id", s.TenantID,
	)

	if s.EnvironmentID == "" {
		s.EnvironmentID = types.GetEnvironmentID(ctx)
	}

	client := r.client.Querier(ctx)
	if _, err := client.NamedExec(subscriberInsertQuery, s); err != nil {
		SetSpanError(span, err)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ierr.WithError(err).
				WithHint("A subscriber with this external id already exists").
				WithReportableDetails(map[string]any{
					"subscriber_id": s.ID,
					"external_id":   s.ExternalID,
				}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create subscriber").
			WithReportableDetails(map[string]any{
				"subscriber_id": s.ID,
			}).
			Mark(ierr.ErrDatabase)
	}
	SetSpanSuccess(span)
	return nil
}

func (r *subscriberRepository) Get(ctx context.Context, id string) (*domainSubscriber.Subscriber, error) {
	span := StartRepositorySpan(ctx, "subscriber", "get", map[string]interface{}{
		"subscriber_id": id,
	})
	defer FinishSpan(span)

	if cached := r.GetCache(ctx, id); cached != nil {
		SetSpanSuccess(span)
		return cached, nil
	}

	query, args, err := scopedQuery(ctx, "SELECT * FROM subscribers").
		where("id = :id", "id", id).
		build()
	if err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to build subscriber query").
			Mark(ierr.ErrDatabase)
	}

	var s domainSubscriber.Subscriber
	if err := r.client.Querier(ctx).GetContext(ctx, &s, query, args...); err != nil {
		SetSpanError(span, err)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.WithError(err).
				WithHint("Subscriber not found").
				WithReportableDetails(map[string]any{
					"subscriber_id": id,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get subscriber").
			Mark(ierr.ErrDatabase)
	}

	r.SetCache(ctx, &s)
	SetSpanSuccess(span)
	return &s, nil
}

func (r *subscriberRepository) GetByExternalID(ctx context.Context, externalID string) (*domainSubscriber.Subscriber, error) {
	span := StartRepositorySpan(ctx, "subscriber", "get_by_external_id", map[string]interface{}{
		"external_id": externalID,
	})
	defer FinishSpan(span)

	if cached := r.GetCache(ctx, externalID); cached != nil {
		SetSpanSuccess(span)
		return cached, nil
	}

	query, args, err := scopedQuery(ctx, "SELECT * FROM subscribers").
		where("external_id = :external_id", "external_id", externalID).
		whereExpr("status != 'deleted'").
		build()
	if err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to build subscriber query").
			Mark(ierr.ErrDatabase)
	}

	var s domainSubscriber.Subscriber
	if err := r.client.Querier(ctx).GetContext(ctx, &s, query, args...); err != nil {
		SetSpanError(span, err)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.WithError(err).
				WithHint("Subscriber not found").
				WithReportableDetails(map[string]any{
					"external_id": externalID,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get subscriber by external id").
			Mark(ierr.ErrDatabase)
	}

	r.SetCache(ctx, &s)
	SetSpanSuccess(span)
	return &s, nil
}

func (r *subscriberRepository) List(ctx context.Context, filter *types.SubscriberFilter) ([]*domainSubscriber.Subscriber, error) {
	if filter == nil {
		filter = types.NewSubscriberFilter()
	}

	span := StartRepositorySpan(ctx, "subscriber", "list", map[string]interface{}{
		"tenant_id": types.GetTenantID(ctx),
	})
	defer FinishSpan(span)

	q := scopedQuery(ctx, "SELECT * FROM subscribers")
	r.applyFilter(q, filter)
	query, args, err := q.
		applyStatus(filter).
		applyTimeRange(filter.TimeRangeFilter, "created_at").
		applyPagination(filter, subscriberSortable).
		build()
	if err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to build subscriber query").
			Mark(ierr.ErrDatabase)
	}

	var subscribers []*domainSubscriber.Subscriber
	if err := r.client.Querier(ctx).SelectContext(ctx, &subscribers, query, args...); err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to list subscribers").
			Mark(ierr.ErrDatabase)
	}
	SetSpanSuccess(span)
	return subscribers, nil
}

func (r *subscriberRepository) Count(ctx context.Context, filter *types.SubscriberFilter) (int, error) {
	if filter == nil {
		filter = types.NewSubscriberFilter()
	}

	span := StartRepositorySpan(ctx, "subscriber", "count", map[string]interface{}{
		"tenant_id": types.GetTenantID(ctx),
	})
	defer FinishSpan(span)

	q := scopedQuery(ctx, "SELECT COUNT(*) FROM subscribers")
	r.applyFilter(q, filter)
	query, args, err := q.
		applyStatus(filter).
		applyTimeRange(filter.TimeRangeFilter, "created_at").
		build()
	if err != nil {
		SetSpanError(span, err)
		return 0, ierr.WithError(err).
			WithHint("Failed to build subscriber query").
			Mark(ierr.ErrDatabase)
	}

	var count int
	if err := r.client.Querier(ctx).GetContext(ctx, &count, query, args...); err != nil {
		SetSpanError(span, err)
		return 0, ierr.WithError(err).
			WithHint("Failed to count subscribers").
			Mark(ierr.ErrDatabase)
	}
	SetSpanSuccess(span)
	return count, nil
}

func (r *subscriberRepository) Update(ctx context.Context, s *domainSubscriber.Subscriber) error {
	span := StartRepositorySpan(ctx, "subscriber", "update", map[string]interface{}{
		"subscriber_id": s.ID,
		"tenant_id":     s.TenantID,
	})
	defer FinishSpan(span)

	r.log.Debugw("updating subscriber",
		"subscriber_id", s.ID,
		"tenant_id", s.TenantID,
	)

	s.UpdatedAt = time.Now().UTC()
	s.UpdatedBy = types.GetUserID(ctx)

	result, err := r.client.Querier(ctx).NamedExec(subscriberUpdateQuery, s)
	if err != nil {
		SetSpanError(span, err)
		return ierr.WithError(err).
			WithHint("Failed to update subscriber").
			WithReportableDetails(map[string]any{
				"subscriber_id": s.ID,
			}).
			Mark(ierr.ErrDatabase)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ierr.NewError("subscriber not found").
			WithHint("Subscriber not found").
			WithReportableDetails(map[string]any{
				"subscriber_id": s.ID,
			}).
			Mark(ierr.ErrNotFound)
	}

	r.DeleteCache(ctx, s)
	SetSpanSuccess(span)
	return nil
}

func (r *subscriberRepository) Delete(ctx context.Context, id string) error {
	span := StartRepositorySpan(ctx, "subscriber", "delete", map[string]interface{}{
		"subscriber_id": id,
	})
	defer FinishSpan(span)

	r.log.Debugw("deleting subscriber",
		"subscriber_id", id,
		"tenant_id", types.GetTenantID(ctx),
	)

	s, err := r.Get(ctx, id)
	if err != nil {
		SetSpanError(span, err)
		return err
	}

	query := `
		UPDATE subscribers SET
			status = :status,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id`

	_, err = r.client.Querier(ctx).NamedExec(query, map[string]interface{}{
		"id":         id,
		"tenant_id":  types.GetTenantID(ctx),
		"status":     types.StatusDeleted,
		"updated_at": time.Now().UTC(),
		"updated_by": types.GetUserID(ctx),
	})
	if err != nil {
		SetSpanError(span, err)
		return ierr.WithError(err).
			WithHint("Failed to delete subscriber").
			WithReportableDetails(map[string]any{
				"subscriber_id": id,
			}).
			Mark(ierr.ErrDatabase)
	}

	r.DeleteCache(ctx, s)
	SetSpanSuccess(span)
	return nil
}

func (r *subscriberRepository) applyFilter(q *queryBuilder, filter *types.SubscriberFilter) {
	if len(filter.SubscriberIDs) > 0 {
		q.where("id IN (:subscriber_ids)", "subscriber_ids", filter.SubscriberIDs)
	}
	if len(filter.ExternalIDs) > 0 {
		q.where("external_id IN (:external_ids)", "external_ids", filter.ExternalIDs)
	}
	if filter.Email != "" {
		q.where("email = :email", "email", filter.Email)
	}
	if len(filter.MembershipStatuses) > 0 {
		q.where("membership_status IN (:membership_statuses)", "membership_statuses", filter.MembershipStatuses)
	}
	if filter.IsMember != nil {
		q.where("is_member = :is_member", "is_member", *filter.IsMember)
	}
}

func (r *subscriberRepository) SetCache(ctx context.Context, s *domainSubscriber.Subscriber) {
	span := cache.StartCacheSpan(ctx, "subscriber", "set", map[string]interface{}{
		"subscriber_id": s.ID,
	})
	defer cache.FinishSpan(span)

	tenantID := types.GetTenantID(ctx)
	environmentID := types.GetEnvironmentID(ctx)

	// Set both ID and external ID based cache entries
	idKey := cache.GenerateKey(cache.PrefixSubscriber, tenantID, environmentID, s.ID)
	r.cache.Set(ctx, idKey, s, cache.ExpiryDefaultInMemory)
	if s.ExternalID != "" {
		externalKey := cache.GenerateKey(cache.PrefixSubscriber, tenantID, environmentID, s.ExternalID)
		r.cache.Set(ctx, externalKey, s, cache.ExpiryDefaultInMemory)
	}
}

func (r *subscriberRepository) GetCache(ctx context.Context, key string) *domainSubscriber.Subscriber {
	span := cache.StartCacheSpan(ctx, "subscriber", "get", map[string]interface{}{
		"subscriber_id": key,
	})
	defer cache.FinishSpan(span)

	cacheKey := cache.GenerateKey(cache.PrefixSubscriber, types.GetTenantID(ctx), types.GetEnvironmentID(ctx), key)
	if value, found := r.cache.Get(ctx, cacheKey); found {
		if s, ok := value.(*domainSubscriber.Subscriber); ok {
			return s
		}
	}
	return nil
}

func (r *subscriberRepository) DeleteCache(ctx context.Context, s *domainSubscriber.Subscriber) {
	span := cache.StartCacheSpan(ctx, "subscriber", "delete", map[string]interface{}{
		"subscriber_id": s.ID,
	})
	defer cache.FinishSpan(span)

	tenantID := types.GetTenantID(ctx)
	environmentID := types.GetEnvironmentID(ctx)

	r.cache.Delete(ctx, cache.GenerateKey(cache.PrefixSubscriber, tenantID, environmentID, s.ID))
	if s.ExternalID != "" {
		r.cache.Delete(ctx, cache.GenerateKey(cache.PrefixSubscriber, tenantID, environmentID, s.ExternalID))
	}
}
