package v1

import (
	"net/http"

	"github.com/memberbill/memberbill/internal/api/dto"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/publisher"
	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	publisher publisher.PaymentPublisher
	log       *logger.Logger
}

func NewPaymentHandler(publisher publisher.PaymentPublisher, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{publisher: publisher, log: log}
}

// @Summary Record a payment confirmation
// @Description Queue a payment confirmation for asynchronous settlement of a billed cycle
// @Tags Payments
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param payment body dto.RecordPaymentRequest true "Payment confirmation"
// @Success 202 {object} dto.RecordPaymentResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /payments [post]
func (h *PaymentHandler) RecordPayment(c *gin.Context) {
	var req dto.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	if err := req.Validate(); err != nil {
		c.Error(err)
		return
	}

	conf := req.ToConfirmation(c.Request.Context())
	if err := h.publisher.Publish(c.Request.Context(), conf); err != nil {
		h.log.Errorw("failed to publish payment confirmation",
			"billing_cycle_id", conf.BillingCycleID,
			"error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusAccepted, &dto.RecordPaymentResponse{
		ConfirmationID: conf.ID,
		BillingCycleID: conf.BillingCycleID,
		Status:         "queued",
	})
}
