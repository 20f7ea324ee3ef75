package v1

import (
	"net/http"

	"github.com/memberbill/memberbill/internal/api/dto"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/service"
	"github.com/gin-gonic/gin"
)

type PricingHandler struct {
	service service.PricingService
	log     *logger.Logger
}

func NewPricingHandler(service service.PricingService, log *logger.Logger) *PricingHandler {
	return &PricingHandler{service: service, log: log}
}

// @Summary Quote a subscriber and product
// @Description Price a period for a subscriber and product without creating anything
// @Tags Pricing
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param quote body dto.CalculatePricingRequest true "Quote"
// @Success 200 {object} dto.PricingResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /pricing/quote [post]
func (h *PricingHandler) CalculatePricing(c *gin.Context) {
	var req dto.CalculatePricingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CalculatePricing(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Quote a subscription
// @Description Price the current period of an existing subscription
// @Tags Pricing
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param quote body dto.CalculateSubscriptionPricingRequest true "Quote"
// @Success 200 {object} dto.PricingResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /pricing/subscriptions/quote [post]
func (h *PricingHandler) CalculateSubscriptionPricing(c *gin.Context) {
	var req dto.CalculateSubscriptionPricingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CalculateSubscriptionPricing(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
