package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/brightpath-edu/portal-api/internal/models"
	"github.com/brightpath-edu/portal-api/internal/service"
	appErrors "github.com/brightpath-edu/portal-api/pkg/errors"
	"github.com/brightpath-edu/portal-api/pkg/response"
)

type exportService interface {
	Request(format service.ExportFormat, filter models.LiveSessionFilter) (*service.ExportRecord, error)
	Status(id string) (*service.ExportRecord, error)
}

// ExportHandler exposes timetable export endpoints.
type ExportHandler struct {
	service exportService
}

// NewExportHandler constructs the handler.
func NewExportHandler(svc exportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Request godoc
// @Summary Request a timetable export
// @Description Enqueues a background render of the live-class timetable to CSV
// @Description or PDF. Poll the returned id for completion.
// @Tags Exports
// @Accept json
// @Produce json
// @Param payload body object true "Export request {format, program_id, level_id}"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /exports/timetable [post]
func (h *ExportHandler) Request(c *gin.Context) {
	var payload struct {
		Format    string `json:"format" binding:"required"`
		ProgramID string `json:"program_id"`
		LevelID   string `json:"level_id"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
		return
	}

	record, err := h.service.Request(
		service.ExportFormat(strings.ToLower(payload.Format)),
		models.LiveSessionFilter{ProgramID: payload.ProgramID, LevelID: payload.LevelID},
	)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, record, nil)
}

// Status godoc
// @Summary Get export status
// @Tags Exports
// @Produce json
// @Param id path string true "Export ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exports/{id} [get]
func (h *ExportHandler) Status(c *gin.Context) {
	record, err := h.service.Status(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}
