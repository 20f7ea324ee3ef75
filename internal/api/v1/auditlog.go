package v1

import (
	"net/http"

	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/service"
	"github.com/memberbill/memberbill/internal/types"
	"github.com/gin-gonic/gin"
)

type AuditLogHandler struct {
	service service.AuditLogService
	log     *logger.Logger
}

func NewAuditLogHandler(service service.AuditLogService, log *logger.Logger) *AuditLogHandler {
	return &AuditLogHandler{service: service, log: log}
}

// @Summary List audit logs
// @Description List audit log entries, newest first
// @Tags AuditLogs
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param filter query types.AuditLogFilter false "Filter"
// @Success 200 {object} dto.ListAuditLogsResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /audit-logs [get]
func (h *AuditLogHandler) ListAuditLogs(c *gin.Context) {
	var filter types.AuditLogFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid filter parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.ListAuditLogs(c.Request.Context(), &filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Get entity history
// @Description Get the full audit trail of one entity, newest first
// @Tags AuditLogs
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param entity_type path string true "Entity type" Enums(subscriber, product, subscription, billing_cycle, renewal)
// @Param entity_id path string true "Entity ID"
// @Success 200 {object} dto.ListAuditLogsResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /audit-logs/{entity_type}/{entity_id} [get]
func (h *AuditLogHandler) GetEntityHistory(c *gin.Context) {
	entityType := types.AuditEntityType(c.Param("entity_type"))

	resp, err := h.service.GetEntityHistory(c.Request.Context(), entityType, c.Param("entity_id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
