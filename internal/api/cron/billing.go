package cron

import (
	"net/http"
	"time"

	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/service"
	"github.com/memberbill/memberbill/internal/types"
	"github.com/gin-gonic/gin"
)

// BillingHandler handles billing cycle related cron jobs
type BillingHandler struct {
	billingCycleService service.BillingCycleService
	logger              *logger.Logger
}

// NewBillingHandler creates a new billing cron handler
func NewBillingHandler(
	billingCycleService service.BillingCycleService,
	logger *logger.Logger,
) *BillingHandler {
	return &BillingHandler{
		billingCycleService: billingCycleService,
		logger:              logger,
	}
}

// asOfTime resolves the optional as_of query parameter, defaulting to now.
// Sweeps accept it so a missed schedule can be replayed for the day it
// should have run.
func asOfTime(c *gin.Context) (time.Time, error) {
	raw := c.Query("as_of")
	if raw == "" {
		return time.Now().UTC(), nil
	}
	t, err := types.ParseTime(raw)
	if err != nil {
		return time.Time{}, ierr.WithError(err).
			WithHint("as_of must be an RFC3339 timestamp").
			Mark(ierr.ErrValidation)
	}
	return t.UTC(), nil
}

// ProcessScheduledBillings invoices every billing cycle scheduled on or
// before the sweep time
func (h *BillingHandler) ProcessScheduledBillings(c *gin.Context) {
	h.logger.Infow("starting scheduled billings cron job")

	asOf, err := asOfTime(c)
	if err != nil {
		c.Error(err)
		return
	}

	response, err := h.billingCycleService.ProcessScheduledBillings(c.Request.Context(), asOf)
	if err != nil {
		h.logger.Errorw("failed to process scheduled billings",
			"error", err)
		c.Error(err)
		return
	}

	h.logger.Infow("completed scheduled billings cron job",
		"processed", response.Processed,
		"succeeded", response.Succeeded,
		"failed", response.Failed)
	c.JSON(http.StatusOK, response)
}
