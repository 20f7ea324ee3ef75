package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/memberbill/memberbill/internal/clickhouse"
	domainAuditLog "github.com/memberbill/memberbill/internal/domain/auditlog"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/types"
)

// AuditLogRepository stores the audit trail in ClickHouse. Unlike the
// Postgres store it trades transactional coupling for cheap long retention,
// so it suits tenants with high billing volume.
type AuditLogRepository struct {
	store  *clickhouse.ClickHouseStore
	logger *logger.Logger
}

func NewAuditLogRepository(store *clickhouse.ClickHouseStore, logger *logger.Logger) domainAuditLog.Repository {
	return &AuditLogRepository{store: store, logger: logger}
}

const auditLogInsertQuery = `
	INSERT INTO audit_logs (
		id, entity_type, entity_id, event, from_state, to_state, message,
		actor_id, tenant_id, environment_id, timestamp, details
	) VALUES (
		?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
	)
`

func (r *AuditLogRepository) Insert(ctx context.Context, entry *domainAuditLog.AuditLog) error {
	span := StartRepositorySpan(ctx, "audit_log", "insert", map[string]interface{}{
		"entity_type": entry.EntityType,
		"entity_id":   entry.EntityID,
		"event":       entry.Event,
	})
	defer FinishSpan(span)

	err := r.store.GetConn().Exec(ctx, auditLogInsertQuery,
		entry.ID,
		entry.EntityType.String(),
		entry.EntityID,
		entry.Event,
		entry.FromState,
		entry.ToState,
		entry.Message,
		entry.ActorID,
		entry.TenantID,
		entry.EnvironmentID,
		entry.Timestamp,
		string(entry.Details),
	)
	if err != nil {
		SetSpanError(span, err)
		return ierr.WithError(err).
			WithHint("Failed to insert audit log entry").
			WithReportableDetails(map[string]interface{}{
				"entity_type": entry.EntityType,
				"entity_id":   entry.EntityID,
			}).
			Mark(ierr.ErrDatabase)
	}

	SetSpanSuccess(span)
	return nil
}

func (r *AuditLogRepository) InsertBatch(ctx context.Context, entries []*domainAuditLog.AuditLog) error {
	if len(entries) == 0 {
		return nil
	}

	span := StartRepositorySpan(ctx, "audit_log", "insert_batch", map[string]interface{}{
		"entry_count": len(entries),
	})
	defer FinishSpan(span)

	// split entries in batches of 100
	for _, chunk := range lo.Chunk(entries, 100) {
		batch, err := r.store.GetConn().PrepareBatch(ctx, `
		INSERT INTO audit_logs (
			id, entity_type, entity_id, event, from_state, to_state, message,
			actor_id, tenant_id, environment_id, timestamp, details
		)
	`)
		if err != nil {
			SetSpanError(span, err)
			return ierr.WithError(err).
				WithHint("Failed to prepare batch for audit log").
				Mark(ierr.ErrDatabase)
		}

		for _, entry := range chunk {
			err = batch.Append(
				entry.ID,
				entry.EntityType.String(),
				entry.EntityID,
				entry.Event,
				entry.FromState,
				entry.ToState,
				entry.Message,
				entry.ActorID,
				entry.TenantID,
				entry.EnvironmentID,
				entry.Timestamp,
				string(entry.Details),
			)
			if err != nil {
				SetSpanError(span, err)
				return ierr.WithError(err).
					WithHint("Failed to append audit log entry to batch").
					WithReportableDetails(map[string]interface{}{
						"entity_id": entry.EntityID,
					}).
					Mark(ierr.ErrDatabase)
			}
		}

		if err := batch.Send(); err != nil {
			SetSpanError(span, err)
			return ierr.WithError(err).
				WithHint("Failed to execute batch insert for audit log").
				WithReportableDetails(map[string]interface{}{
					"entry_count": len(entries),
				}).
				Mark(ierr.ErrDatabase)
		}
	}

	SetSpanSuccess(span)
	return nil
}

func (r *AuditLogRepository) List(ctx context.Context, filter *types.AuditLogFilter) ([]*domainAuditLog.AuditLog, error) {
	if filter == nil {
		filter = types.NewAuditLogFilter()
	}

	span := StartRepositorySpan(ctx, "audit_log", "list", map[string]interface{}{
		"tenant_id": types.GetTenantID(ctx),
	})
	defer FinishSpan(span)

	conds, args := r.buildConditions(ctx, filter)

	query := `
		SELECT id, entity_type, entity_id, event, from_state, to_state, message,
			actor_id, tenant_id, environment_id, timestamp, details
		FROM audit_logs
		WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY timestamp ` + strings.ToUpper(sortOrder(filter))
	if !filter.IsUnlimited() {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.GetLimit(), filter.GetOffset())
	}

	rows, err := r.store.GetConn().Query(ctx, query, args...)
	if err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to list audit log entries").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var entries []*domainAuditLog.AuditLog
	for rows.Next() {
		var (
			entry      domainAuditLog.AuditLog
			entityType string
			details    string
		)
		if err := rows.Scan(
			&entry.ID,
			&entityType,
			&entry.EntityID,
			&entry.Event,
			&entry.FromState,
			&entry.ToState,
			&entry.Message,
			&entry.ActorID,
			&entry.TenantID,
			&entry.EnvironmentID,
			&entry.Timestamp,
			&details,
		); err != nil {
			SetSpanError(span, err)
			return nil, ierr.WithError(err).
				WithHint("Failed to scan audit log entry").
				Mark(ierr.ErrDatabase)
		}
		entry.EntityType = types.AuditEntityType(entityType)
		if details != "" {
			entry.Details = json.RawMessage(details)
		}
		entries = append(entries, &entry)
	}

	SetSpanSuccess(span)
	return entries, nil
}

func (r *AuditLogRepository) Count(ctx context.Context, filter *types.AuditLogFilter) (int, error) {
	if filter == nil {
		filter = types.NewAuditLogFilter()
	}

	span := StartRepositorySpan(ctx, "audit_log", "count", map[string]interface{}{
		"tenant_id": types.GetTenantID(ctx),
	})
	defer FinishSpan(span)

	conds, args := r.buildConditions(ctx, filter)
	query := "SELECT count() FROM audit_logs WHERE " + strings.Join(conds, " AND ")

	var count uint64
	if err := r.store.GetConn().QueryRow(ctx, query, args...).Scan(&count); err != nil {
		SetSpanError(span, err)
		return 0, ierr.WithError(err).
			WithHint("Failed to count audit log entries").
			Mark(ierr.ErrDatabase)
	}

	SetSpanSuccess(span)
	return int(count), nil
}

func (r *AuditLogRepository) buildConditions(ctx context.Context, filter *types.AuditLogFilter) ([]string, []interface{}) {
	conds := []string{"tenant_id = ?"}
	args := []interface{}{types.GetTenantID(ctx)}

	if envID := types.GetEnvironmentID(ctx); envID != "" {
		conds = append(conds, "environment_id = ?")
		args = append(args, envID)
	}
	if filter.EntityType != "" {
		conds = append(conds, "entity_type = ?")
		args = append(args, filter.EntityType.String())
	}
	if len(filter.EntityIDs) > 0 {
		conds = append(conds, "entity_id IN (?)")
		args = append(args, filter.EntityIDs)
	}
	if len(filter.Events) > 0 {
		conds = append(conds, "event IN (?)")
		args = append(args, filter.Events)
	}
	if len(filter.ActorIDs) > 0 {
		conds = append(conds, "actor_id IN (?)")
		args = append(args, filter.ActorIDs)
	}
	if filter.TimeRangeFilter != nil {
		if filter.StartTime != nil {
			conds = append(conds, "timestamp >= ?")
			args = append(args, filter.StartTime.UTC())
		}
		if filter.EndTime != nil {
			conds = append(conds, "timestamp <= ?")
			args = append(args, filter.EndTime.UTC())
		}
	}
	return conds, args
}

func sortOrder(filter *types.AuditLogFilter) string {
	if filter.GetOrder() == types.OrderAsc {
		return "asc"
	}
	return "desc"
}
