package cron

import (
	"net/http"

	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/service"
	"github.com/gin-gonic/gin"
)

// RenewalHandler handles renewal related cron jobs
type RenewalHandler struct {
	renewalService service.RenewalService
	logger         *logger.Logger
}

// NewRenewalHandler creates a new renewal cron handler
func NewRenewalHandler(
	renewalService service.RenewalService,
	logger *logger.Logger,
) *RenewalHandler {
	return &RenewalHandler{
		renewalService: renewalService,
		logger:         logger,
	}
}

// ProcessAutomaticRenewals renews every auto renew eligible renewal due as
// of the sweep time
func (h *RenewalHandler) ProcessAutomaticRenewals(c *gin.Context) {
	h.logger.Infow("starting automatic renewals cron job")

	asOf, err := asOfTime(c)
	if err != nil {
		c.Error(err)
		return
	}

	response, err := h.renewalService.ProcessAutomaticRenewals(c.Request.Context(), asOf)
	if err != nil {
		h.logger.Errorw("failed to process automatic renewals",
			"error", err)
		c.Error(err)
		return
	}

	h.logger.Infow("completed automatic renewals cron job",
		"processed", response.Processed,
		"succeeded", response.Succeeded,
		"failed", response.Failed)
	c.JSON(http.StatusOK, response)
}

// SendScheduledReminders delivers every reminder that has come due on the
// renewal schedules
func (h *RenewalHandler) SendScheduledReminders(c *gin.Context) {
	h.logger.Infow("starting scheduled reminders cron job")

	asOf, err := asOfTime(c)
	if err != nil {
		c.Error(err)
		return
	}

	response, err := h.renewalService.SendScheduledReminders(c.Request.Context(), asOf)
	if err != nil {
		h.logger.Errorw("failed to send scheduled reminders",
			"error", err)
		c.Error(err)
		return
	}

	h.logger.Infow("completed scheduled reminders cron job",
		"sent", response.Sent,
		"skipped", response.Skipped,
		"failed", response.Failed)
	c.JSON(http.StatusOK, response)
}

// UpdateOverdueRenewals moves past due renewals into grace and expires the
// ones whose grace window has elapsed
func (h *RenewalHandler) UpdateOverdueRenewals(c *gin.Context) {
	h.logger.Infow("starting overdue renewals cron job")

	asOf, err := asOfTime(c)
	if err != nil {
		c.Error(err)
		return
	}

	response, err := h.renewalService.UpdateOverdueRenewals(c.Request.Context(), asOf)
	if err != nil {
		h.logger.Errorw("failed to update overdue renewals",
			"error", err)
		c.Error(err)
		return
	}

	h.logger.Infow("completed overdue renewals cron job",
		"moved_to_grace", response.MovedToGrace,
		"expired", response.Expired,
		"unchanged", response.Unchanged)
	c.JSON(http.StatusOK, response)
}
