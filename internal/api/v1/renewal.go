package v1

import (
	"net/http"

	"github.com/memberbill/memberbill/internal/api/dto"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/service"
	"github.com/memberbill/memberbill/internal/types"
	"github.com/gin-gonic/gin"
)

type RenewalHandler struct {
	service service.RenewalService
	log     *logger.Logger
}

func NewRenewalHandler(service service.RenewalService, log *logger.Logger) *RenewalHandler {
	return &RenewalHandler{service: service, log: log}
}

// @Summary Create a renewal
// @Description Open a renewal for a subscription's current period
// @Tags Renewals
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param renewal body dto.CreateRenewalRequest true "Renewal"
// @Success 201 {object} dto.RenewalResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /renewals [post]
func (h *RenewalHandler) CreateRenewal(c *gin.Context) {
	var req dto.CreateRenewalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CreateRenewal(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Get a renewal
// @Description Get a renewal by ID
// @Tags Renewals
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Renewal ID"
// @Success 200 {object} dto.RenewalResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /renewals/{id} [get]
func (h *RenewalHandler) GetRenewal(c *gin.Context) {
	resp, err := h.service.GetRenewal(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary List renewals
// @Description List renewals
// @Tags Renewals
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param filter query types.RenewalFilter false "Filter"
// @Success 200 {object} dto.ListRenewalsResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /renewals [get]
func (h *RenewalHandler) ListRenewals(c *gin.Context) {
	var filter types.RenewalFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid filter parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.ListRenewals(c.Request.Context(), &filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Process a renewal
// @Description Renew the period the renewal closes: bill the next period, extend coverage and chain the successor renewal
// @Tags Renewals
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Renewal ID"
// @Param renewal body dto.ProcessRenewalRequest false "Processing options"
// @Param as_of query string false "Processing time (RFC3339), defaults to now"
// @Success 200 {object} dto.RenewalResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /renewals/{id}/process [post]
func (h *RenewalHandler) ProcessRenewal(c *gin.Context) {
	asOf, err := asOfTime(c)
	if err != nil {
		c.Error(err)
		return
	}

	var req dto.ProcessRenewalRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(ierr.WithError(err).
				WithHint("Invalid request format").
				Mark(ierr.ErrValidation))
			return
		}
	}

	resp, err := h.service.ProcessRenewal(c.Request.Context(), c.Param("id"), &req, asOf)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Cancel a renewal
// @Description Close an open renewal without renewing the subscription
// @Tags Renewals
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Renewal ID"
// @Param cancellation body dto.CancelRenewalRequest false "Cancellation"
// @Success 200 {object} dto.RenewalResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /renewals/{id}/cancel [post]
func (h *RenewalHandler) CancelRenewal(c *gin.Context) {
	var req dto.CancelRenewalRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(ierr.WithError(err).
				WithHint("Invalid request format").
				Mark(ierr.ErrValidation))
			return
		}
	}

	resp, err := h.service.CancelRenewal(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Send a renewal reminder
// @Description Deliver the next reminder on the renewal's schedule. Fails when no reminder is due
// @Tags Renewals
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Renewal ID"
// @Param as_of query string false "Reference time (RFC3339), defaults to now"
// @Success 200 {object} dto.RenewalResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /renewals/{id}/remind [post]
func (h *RenewalHandler) SendReminder(c *gin.Context) {
	asOf, err := asOfTime(c)
	if err != nil {
		c.Error(err)
		return
	}

	resp, err := h.service.SendReminder(c.Request.Context(), c.Param("id"), asOf)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
