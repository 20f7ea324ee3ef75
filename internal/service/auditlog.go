package service

import (
	"context"

	"github.com/memberbill/memberbill/internal/api/dto"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/types"
)

// AuditLogService exposes the read side of the audit event log. Writes happen
// inside the owning services' transactions, never through this interface.
type AuditLogService interface {
	ListAuditLogs(ctx context.Context, filter *types.AuditLogFilter) (*dto.ListAuditLogsResponse, error)
	GetEntityHistory(ctx context.Context, entityType types.AuditEntityType, entityID string) (*dto.ListAuditLogsResponse, error)
}

type auditLogService struct {
	ServiceParams
}

func NewAuditLogService(params ServiceParams) AuditLogService {
	return &auditLogService{
		ServiceParams: params,
	}
}

func (s *auditLogService) ListAuditLogs(ctx context.Context, filter *types.AuditLogFilter) (*dto.ListAuditLogsResponse, error) {
	if filter == nil {
		filter = types.NewAuditLogFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	entries, err := s.AuditLogRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	count, err := s.AuditLogRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := make([]*dto.AuditLogResponse, len(entries))
	for i, entry := range entries {
		items[i] = &dto.AuditLogResponse{AuditLog: entry}
	}

	return &dto.ListAuditLogsResponse{
		Items:      items,
		Pagination: types.NewPaginationResponse(count, filter.GetLimit(), filter.GetOffset()),
	}, nil
}

// GetEntityHistory returns the full ordered trail for one entity.
func (s *auditLogService) GetEntityHistory(ctx context.Context, entityType types.AuditEntityType, entityID string) (*dto.ListAuditLogsResponse, error) {
	if err := entityType.Validate(); err != nil {
		return nil, err
	}
	if entityID == "" {
		return nil, ierr.NewError("entity id is required").
			WithHint("Entity ID is required").
			Mark(ierr.ErrValidation)
	}

	filter := types.NewNoLimitAuditLogFilter()
	filter.EntityType = entityType
	filter.EntityIDs = []string{entityID}

	return s.ListAuditLogs(ctx, filter)
}
