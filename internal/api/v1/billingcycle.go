package v1

import (
	"net/http"
	"time"

	"github.com/memberbill/memberbill/internal/api/dto"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/service"
	"github.com/memberbill/memberbill/internal/types"
	"github.com/gin-gonic/gin"
)

type BillingCycleHandler struct {
	service service.BillingCycleService
	log     *logger.Logger
}

func NewBillingCycleHandler(service service.BillingCycleService, log *logger.Logger) *BillingCycleHandler {
	return &BillingCycleHandler{service: service, log: log}
}

// asOfTime resolves the optional as_of query parameter, defaulting to now.
// Operational endpoints accept it so sweeps and retries can be replayed
// against a fixed point in time.
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

// @Summary Create a billing cycle
// @Description Create a billing cycle for a subscription period
// @Tags BillingCycles
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param billing_cycle body dto.CreateBillingCycleRequest true "Billing cycle"
// @Success 201 {object} dto.BillingCycleResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /billing-cycles [post]
func (h *BillingCycleHandler) CreateBillingCycle(c *gin.Context) {
	var req dto.CreateBillingCycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CreateBillingCycle(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Get a billing cycle
// @Description Get a billing cycle by ID
// @Tags BillingCycles
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Billing cycle ID"
// @Success 200 {object} dto.BillingCycleResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /billing-cycles/{id} [get]
func (h *BillingCycleHandler) GetBillingCycle(c *gin.Context) {
	resp, err := h.service.GetBillingCycle(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary List billing cycles
// @Description List billing cycles
// @Tags BillingCycles
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param filter query types.BillingCycleFilter false "Filter"
// @Success 200 {object} dto.ListBillingCyclesResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /billing-cycles [get]
func (h *BillingCycleHandler) ListBillingCycles(c *gin.Context) {
	var filter types.BillingCycleFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid filter parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.ListBillingCycles(c.Request.Context(), &filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Calculate billing cycle amounts
// @Description Run the pricing engine on a billing cycle. Pass force=true to recalculate amounts that are already set
// @Tags BillingCycles
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Billing cycle ID"
// @Param force query bool false "Recalculate even when amounts are present"
// @Success 200 {object} dto.BillingCycleResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /billing-cycles/{id}/calculate [post]
func (h *BillingCycleHandler) CalculateAmounts(c *gin.Context) {
	force := c.Query("force") == "true"

	resp, err := h.service.CalculateAmounts(c.Request.Context(), c.Param("id"), force)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Process a billing cycle
// @Description Take a scheduled billing cycle through invoicing
// @Tags BillingCycles
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Billing cycle ID"
// @Param as_of query string false "Processing time (RFC3339), defaults to now"
// @Success 200 {object} dto.BillingCycleResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /billing-cycles/{id}/process [post]
func (h *BillingCycleHandler) ProcessBillingCycle(c *gin.Context) {
	asOf, err := asOfTime(c)
	if err != nil {
		c.Error(err)
		return
	}

	resp, err := h.service.ProcessBillingCycle(c.Request.Context(), c.Param("id"), asOf)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Retry a failed billing cycle
// @Description Reschedule a failed billing cycle and process it again
// @Tags BillingCycles
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Billing cycle ID"
// @Param as_of query string false "Processing time (RFC3339), defaults to now"
// @Success 200 {object} dto.BillingCycleResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /billing-cycles/{id}/retry [post]
func (h *BillingCycleHandler) RetryBillingCycle(c *gin.Context) {
	asOf, err := asOfTime(c)
	if err != nil {
		c.Error(err)
		return
	}

	resp, err := h.service.RetryBillingCycle(c.Request.Context(), c.Param("id"), asOf)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Record a payment
// @Description Mark an invoiced billing cycle as paid and settle its renewal
// @Tags BillingCycles
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Billing cycle ID"
// @Param payment body dto.MarkBillingCyclePaidRequest true "Payment"
// @Success 200 {object} dto.BillingCycleResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /billing-cycles/{id}/payment [post]
func (h *BillingCycleHandler) MarkBillingCyclePaid(c *gin.Context) {
	var req dto.MarkBillingCyclePaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.MarkBillingCyclePaid(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Cancel a billing cycle
// @Description Cancel an unpaid billing cycle, voiding its invoice when one exists
// @Tags BillingCycles
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Billing cycle ID"
// @Param cancellation body dto.CancelBillingCycleRequest false "Cancellation"
// @Success 200 {object} dto.BillingCycleResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /billing-cycles/{id}/cancel [post]
func (h *BillingCycleHandler) CancelBillingCycle(c *gin.Context) {
	var req dto.CancelBillingCycleRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(ierr.WithError(err).
				WithHint("Invalid request format").
				Mark(ierr.ErrValidation))
			return
		}
	}

	resp, err := h.service.CancelBillingCycle(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Get an amortization schedule
// @Description Break a billing cycle's net amount into equal monthly recognition slices
// @Tags BillingCycles
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Billing cycle ID"
// @Success 200 {object} dto.AmortizationScheduleResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /billing-cycles/{id}/amortization [get]
func (h *BillingCycleHandler) GetAmortizationSchedule(c *gin.Context) {
	resp, err := h.service.GetAmortizationSchedule(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
