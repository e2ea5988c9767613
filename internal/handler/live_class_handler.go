package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/brightpath-edu/portal-api/internal/middleware"
	"github.com/brightpath-edu/portal-api/internal/models"
	"github.com/brightpath-edu/portal-api/internal/service"
	appErrors "github.com/brightpath-edu/portal-api/pkg/errors"
	"github.com/brightpath-edu/portal-api/pkg/response"
)

type liveClassService interface {
	List(ctx context.Context, filter models.LiveSessionFilter) ([]models.AnnotatedSession, *models.Pagination, *int, error)
	Schedule(ctx context.Context, req service.ScheduleSessionRequest) (*models.LiveSession, error)
	Reschedule(ctx context.Context, id string, req service.ScheduleSessionRequest) (*models.LiveSession, error)
	Cancel(ctx context.Context, id string) error
}

// LiveClassHandler exposes live class sessions with derived statuses.
type LiveClassHandler struct {
	service liveClassService
}

// NewLiveClassHandler constructs the handler.
func NewLiveClassHandler(svc liveClassService) *LiveClassHandler {
	return &LiveClassHandler{service: svc}
}

// List godoc
// @Summary List live class sessions
// @Description Sessions ordered by date then start time, each annotated with
// @Description the time-derived presentation status. Meta carries the whole-
// @Description minute countdown to the next scheduled session of today.
// @Tags LiveClasses
// @Produce json
// @Param programId query string false "Program ID"
// @Param levelId query string false "Level ID"
// @Param status query string false "Stored status filter"
// @Param dateFrom query string false "From date (YYYY-MM-DD)"
// @Param dateTo query string false "To date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /live-classes [get]
func (h *LiveClassHandler) List(c *gin.Context) {
	filter := models.LiveSessionFilter{
		ProgramID: strings.TrimSpace(c.Query("programId")),
		LevelID:   strings.TrimSpace(c.Query("levelId")),
		Status:    models.SessionStatus(strings.TrimSpace(c.Query("status"))),
	}
	if raw := strings.TrimSpace(c.Query("dateFrom")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "dateFrom must be YYYY-MM-DD"))
			return
		}
		filter.DateFrom = &parsed
	}
	if raw := strings.TrimSpace(c.Query("dateTo")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "dateTo must be YYYY-MM-DD"))
			return
		}
		filter.DateTo = &parsed
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("pageSize", "50"))

	sessions, pagination, countdown, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	if countdown != nil {
		meta["next_session_in_minutes"] = *countdown
	}
	response.JSON(c, http.StatusOK, sessions, pagination, meta)
}

// Schedule godoc
// @Summary Schedule a live class session
// @Tags LiveClasses
// @Accept json
// @Produce json
// @Param payload body service.ScheduleSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /live-classes [post]
func (h *LiveClassHandler) Schedule(c *gin.Context) {
	var req service.ScheduleSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session payload"))
		return
	}
	session, err := h.service.Schedule(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// Reschedule godoc
// @Summary Reschedule a live class session
// @Tags LiveClasses
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.ScheduleSessionRequest true "Session payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /live-classes/{id} [put]
func (h *LiveClassHandler) Reschedule(c *gin.Context) {
	var req service.ScheduleSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session payload"))
		return
	}
	session, err := h.service.Reschedule(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Cancel godoc
// @Summary Cancel a live class session
// @Tags LiveClasses
// @Produce json
// @Param id path string true "Session ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /live-classes/{id} [delete]
func (h *LiveClassHandler) Cancel(c *gin.Context) {
	if err := h.service.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
