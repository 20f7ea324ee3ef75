package v1

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/memberbill/memberbill/internal/api/dto"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/service"
	"github.com/gin-gonic/gin"
)

type BatchHandler struct {
	service service.BatchService
	log     *logger.Logger
}

func NewBatchHandler(service service.BatchService, log *logger.Logger) *BatchHandler {
	return &BatchHandler{service: service, log: log}
}

// @Summary Preview a batch run
// @Description Summarize the records a batch selection would touch without mutating anything
// @Tags Batch
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param selection body dto.BatchRunRequest true "Selection"
// @Success 200 {object} dto.BatchPreviewResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /batch/preview [post]
func (h *BatchHandler) Preview(c *gin.Context) {
	var req dto.BatchRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.Preview(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Execute a batch run
// @Description Process the selected billing cycles or renewals in chunks
// @Tags Batch
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param selection body dto.BatchRunRequest true "Selection"
// @Param as_of query string false "Processing time (RFC3339), defaults to now"
// @Success 200 {object} dto.BatchRunResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /batch/execute [post]
func (h *BatchHandler) Execute(c *gin.Context) {
	asOf, err := asOfTime(c)
	if err != nil {
		c.Error(err)
		return
	}

	var req dto.BatchRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.Execute(c.Request.Context(), &req, asOf)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Export a batch preview as CSV
// @Description Download the selected records as a CSV file
// @Tags Batch
// @Accept json
// @Produce text/csv
// @Security ApiKeyAuth
// @Param selection body dto.BatchRunRequest true "Selection"
// @Success 200 {string} string "CSV payload"
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /batch/preview/export [post]
func (h *BatchHandler) ExportPreviewCSV(c *gin.Context) {
	var req dto.BatchRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	// Buffer the export so failures surface as a JSON error instead of a
	// truncated download.
	var buf bytes.Buffer
	rows, err := h.service.ExportPreviewCSV(c.Request.Context(), &req, &buf)
	if err != nil {
		c.Error(err)
		return
	}

	filename := fmt.Sprintf("batch_preview_%s.csv", req.TargetKind)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("X-Row-Count", strconv.Itoa(rows))
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}

// @Summary Archive a batch preview
// @Description Upload the CSV export of the selection to the configured object store
// @Tags Batch
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param selection body dto.BatchRunRequest true "Selection"
// @Success 200 {object} dto.ArchivePreviewResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /batch/preview/archive [post]
func (h *BatchHandler) ArchivePreview(c *gin.Context) {
	var req dto.BatchRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.ArchivePreview(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
