package postgres

import (
	"context"

	domainAuditLog "github.com/memberbill/memberbill/internal/domain/auditlog"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/postgres"
	"github.com/memberbill/memberbill/internal/types"
)

// auditLogRepository stores the audit trail in Postgres so entries commit in
// the same transaction as the state change they describe.
type auditLogRepository struct {
	client postgres.IClient
	log    *logger.Logger
}

func NewAuditLogRepository(client postgres.IClient, log *logger.Logger) domainAuditLog.Repository {
	return &auditLogRepository{client: client, log: log}
}

// The audit table keys time by the event timestamp, so the default
// created_at sort maps onto it.
var auditLogSortable = map[string]string{
	"created_at": "timestamp",
	"timestamp":  "timestamp",
}

const auditLogInsertQuery = `
	INSERT INTO audit_logs (
		id, entity_type, entity_id, event, from_state, to_state, message,
		actor_id, tenant_id, environment_id, timestamp, details
	) VALUES (
		:id, :entity_type, :entity_id, :event, :from_state, :to_state, :message,
		:actor_id, :tenant_id, :environment_id, :timestamp, :details
	)`

func (r *auditLogRepository) Insert(ctx context.Context, entry *domainAuditLog.AuditLog) error {
	span := StartRepositorySpan(ctx, "audit_log", "insert", map[string]interface{}{
		"entity_type": entry.EntityType,
		"entity_id":   entry.EntityID,
		"event":       entry.Event,
	})
	defer FinishSpan(span)

	if _, err := r.client.Querier(ctx).NamedExec(auditLogInsertQuery, entry); err != nil {
		SetSpanError(span, err)
		return ierr.WithError(err).
			WithHint("Failed to write audit log entry").
			WithReportableDetails(map[string]any{
				"entity_type": entry.EntityType,
				"entity_id":   entry.EntityID,
			}).
			Mark(ierr.ErrDatabase)
	}
	SetSpanSuccess(span)
	return nil
}

func (r *auditLogRepository) InsertBatch(ctx context.Context, entries []*domainAuditLog.AuditLog) error {
	if len(entries) == 0 {
		return nil
	}

	span := StartRepositorySpan(ctx, "audit_log", "insert_batch", map[string]interface{}{
		"count": len(entries),
	})
	defer FinishSpan(span)

	if _, err := r.client.Querier(ctx).NamedExec(auditLogInsertQuery, entries); err != nil {
		SetSpanError(span, err)
		return ierr.WithError(err).
			WithHint("Failed to write audit log batch").
			WithReportableDetails(map[string]any{
				"count": len(entries),
			}).
			Mark(ierr.ErrDatabase)
	}
	SetSpanSuccess(span)
	return nil
}

func (r *auditLogRepository) List(ctx context.Context, filter *types.AuditLogFilter) ([]*domainAuditLog.AuditLog, error) {
	if filter == nil {
		filter = types.NewAuditLogFilter()
	}

	span := StartRepositorySpan(ctx, "audit_log", "list", map[string]interface{}{
		"tenant_id": types.GetTenantID(ctx),
	})
	defer FinishSpan(span)

	q := scopedQuery(ctx, "SELECT * FROM audit_logs")
	r.applyFilter(q, filter)
	query, args, err := q.
		applyTimeRange(filter.TimeRangeFilter, "timestamp").
		applyPagination(filter, auditLogSortable).
		build()
	if err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to build audit log query").
			Mark(ierr.ErrDatabase)
	}

	var entries []*domainAuditLog.AuditLog
	if err := r.client.Querier(ctx).SelectContext(ctx, &entries, query, args...); err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to list audit log entries").
			Mark(ierr.ErrDatabase)
	}
	SetSpanSuccess(span)
	return entries, nil
}

func (r *auditLogRepository) Count(ctx context.Context, filter *types.AuditLogFilter) (int, error) {
	if filter == nil {
		filter = types.NewAuditLogFilter()
	}

	span := StartRepositorySpan(ctx, "audit_log", "count", map[string]interface{}{
		"tenant_id": types.GetTenantID(ctx),
	})
	defer FinishSpan(span)

	q := scopedQuery(ctx, "SELECT COUNT(*) FROM audit_logs")
	r.applyFilter(q, filter)
	query, args, err := q.
		applyTimeRange(filter.TimeRangeFilter, "timestamp").
		build()
	if err != nil {
		SetSpanError(span, err)
		return 0, ierr.WithError(err).
			WithHint("Failed to build audit log query").
			Mark(ierr.ErrDatabase)
	}

	var count int
	if err := r.client.Querier(ctx).GetContext(ctx, &count, query, args...); err != nil {
		SetSpanError(span, err)
		return 0, ierr.WithError(err).
			WithHint("Failed to count audit log entries").
			Mark(ierr.ErrDatabase)
	}
	SetSpanSuccess(span)
	return count, nil
}

func (r *auditLogRepository) applyFilter(q *queryBuilder, filter *types.AuditLogFilter) {
	if filter.EntityType != "" {
		q.where("entity_type = :entity_type", "entity_type", filter.EntityType)
	}
	if len(filter.EntityIDs) > 0 {
		q.where("entity_id IN (:entity_ids)", "entity_ids", filter.EntityIDs)
	}
	if len(filter.Events) > 0 {
		q.where("event IN (:events)", "events", filter.Events)
	}
	if len(filter.ActorIDs) > 0 {
		q.where("actor_id IN (:actor_ids)", "actor_ids", filter.ActorIDs)
	}
}
