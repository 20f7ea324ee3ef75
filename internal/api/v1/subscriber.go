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

type SubscriberHandler struct {
	service service.SubscriberService
	log     *logger.Logger
}

func NewSubscriberHandler(service service.SubscriberService, log *logger.Logger) *SubscriberHandler {
	return &SubscriberHandler{
		service: service,
		log:     log,
	}
}

// @Summary Create a subscriber
// @Description Create a subscriber
// @Tags Subscribers
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param subscriber body dto.CreateSubscriberRequest true "Subscriber"
// @Success 201 {object} dto.SubscriberResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /subscribers [post]
func (h *SubscriberHandler) CreateSubscriber(c *gin.Context) {
	var req dto.CreateSubscriberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CreateSubscriber(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Get a subscriber
// @Description Get a subscriber
// @Tags Subscribers
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Subscriber ID"
// @Success 200 {object} dto.SubscriberResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /subscribers/{id} [get]
func (h *SubscriberHandler) GetSubscriber(c *gin.Context) {
	resp, err := h.service.GetSubscriber(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Get a subscriber by external ID
// @Description Get a subscriber by the identifier of the upstream member system
// @Tags Subscribers
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param external_id path string true "Subscriber external ID"
// @Success 200 {object} dto.SubscriberResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /subscribers/external/{external_id} [get]
func (h *SubscriberHandler) GetSubscriberByExternalID(c *gin.Context) {
	resp, err := h.service.GetSubscriberByExternalID(c.Request.Context(), c.Param("external_id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary List subscribers
// @Description List subscribers
// @Tags Subscribers
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param filter query types.SubscriberFilter false "Filter"
// @Success 200 {object} dto.ListSubscribersResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /subscribers [get]
func (h *SubscriberHandler) ListSubscribers(c *gin.Context) {
	var filter types.SubscriberFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid filter parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.ListSubscribers(c.Request.Context(), &filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Update a subscriber
// @Description Update a subscriber
// @Tags Subscribers
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Subscriber ID"
// @Param subscriber body dto.UpdateSubscriberRequest true "Subscriber"
// @Success 200 {object} dto.SubscriberResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /subscribers/{id} [put]
func (h *SubscriberHandler) UpdateSubscriber(c *gin.Context) {
	var req dto.UpdateSubscriberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.UpdateSubscriber(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Delete a subscriber
// @Description Delete a subscriber without active subscriptions
// @Tags Subscribers
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Subscriber ID"
// @Success 204
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /subscribers/{id} [delete]
func (h *SubscriberHandler) DeleteSubscriber(c *gin.Context) {
	if err := h.service.DeleteSubscriber(c.Request.Context(), c.Param("id")); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}
