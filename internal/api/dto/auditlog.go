package dto

import (
	"github.com/memberbill/memberbill/internal/domain/auditlog"
	"github.com/memberbill/memberbill/internal/types"
)

type AuditLogResponse struct {
	*auditlog.AuditLog
}

// ListAuditLogsResponse represents the response for listing audit entries
type ListAuditLogsResponse = types.ListResponse[*AuditLogResponse]
