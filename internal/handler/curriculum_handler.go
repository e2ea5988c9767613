package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/brightpath-edu/portal-api/internal/models"
	"github.com/brightpath-edu/portal-api/internal/service"
	appErrors "github.com/brightpath-edu/portal-api/pkg/errors"
	"github.com/brightpath-edu/portal-api/pkg/response"
)

type curriculumService interface {
	Programs(ctx context.Context) ([]models.Program, error)
	Levels(ctx context.Context, programID string) ([]models.Level, error)
	OfferingOptions(ctx context.Context, programID, levelID string) ([]models.OfferingOption, error)
	Papers(ctx context.Context, subjectID string) ([]models.Paper, error)
	CreateProgram(ctx context.Context, req service.CreateProgramRequest) (*models.Program, error)
	CreateLevel(ctx context.Context, req service.CreateLevelRequest) (*models.Level, error)
	CreateOffering(ctx context.Context, req service.CreateOfferingRequest) (*models.SubjectOffering, error)
	CreatePaper(ctx context.Context, req service.CreatePaperRequest) (*models.Paper, error)
}

type selectionValidator interface {
	Validate(ctx context.Context, record service.SelectionRecord) (service.SelectionRecord, error)
}

// CurriculumHandler serves the option lists behind the dependent-selection
// form and the admin write paths.
type CurriculumHandler struct {
	service    curriculumService
	selections selectionValidator
}

// NewCurriculumHandler constructs the handler.
func NewCurriculumHandler(svc curriculumService, selections selectionValidator) *CurriculumHandler {
	return &CurriculumHandler{service: svc, selections: selections}
}

// Programs godoc
// @Summary List programs
// @Tags Curriculum
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /curriculum/programs [get]
func (h *CurriculumHandler) Programs(c *gin.Context) {
	programs, err := h.service.Programs(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, programs, nil)
}

// Levels godoc
// @Summary List levels under a program
// @Tags Curriculum
// @Produce json
// @Param programId path string true "Program ID"
// @Success 200 {object} response.Envelope
// @Router /curriculum/programs/{programId}/levels [get]
func (h *CurriculumHandler) Levels(c *gin.Context) {
	programID := c.Param("programId")
	levels, err := h.service.Levels(c.Request.Context(), programID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, levels, nil)
}

// OfferingOptions godoc
// @Summary List subject offerings for a program (and optional level)
// @Description Returns offerings joined with subject names, compulsory first.
// @Tags Curriculum
// @Produce json
// @Param programId path string true "Program ID"
// @Param levelId query string false "Level ID (omit for non-academic programs)"
// @Success 200 {object} response.Envelope
// @Router /curriculum/programs/{programId}/offerings [get]
func (h *CurriculumHandler) OfferingOptions(c *gin.Context) {
	programID := c.Param("programId")
	levelID := strings.TrimSpace(c.Query("levelId"))
	options, err := h.service.OfferingOptions(c.Request.Context(), programID, levelID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, options, nil)
}

// Papers godoc
// @Summary List papers under a subject
// @Tags Curriculum
// @Produce json
// @Param subjectId path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Router /curriculum/subjects/{subjectId}/papers [get]
func (h *CurriculumHandler) Papers(c *gin.Context) {
	subjectID := c.Param("subjectId")
	papers, err := h.service.Papers(c.Request.Context(), subjectID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, papers, nil)
}

// ValidateSelection godoc
// @Summary Validate a program/level/subject/paper chain
// @Description Replays the submitted chain against the current catalogue and
// @Description returns the normalized record, or 409 when any link is stale.
// @Tags Curriculum
// @Accept json
// @Produce json
// @Param payload body service.SelectionRecord true "Selection chain"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /curriculum/selection/validate [post]
func (h *CurriculumHandler) ValidateSelection(c *gin.Context) {
	var record service.SelectionRecord
	if err := c.ShouldBindJSON(&record); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid selection payload"))
		return
	}

	validated, err := h.selections.Validate(c.Request.Context(), record)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, validated, nil)
}

// CreateProgram godoc
// @Summary Create a program
// @Tags Curriculum
// @Accept json
// @Produce json
// @Param payload body service.CreateProgramRequest true "Program payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /curriculum/programs [post]
func (h *CurriculumHandler) CreateProgram(c *gin.Context) {
	var req service.CreateProgramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid program payload"))
		return
	}
	program, err := h.service.CreateProgram(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, program)
}

// CreateLevel godoc
// @Summary Create a level under an academic program
// @Tags Curriculum
// @Accept json
// @Produce json
// @Param payload body service.CreateLevelRequest true "Level payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /curriculum/levels [post]
func (h *CurriculumHandler) CreateLevel(c *gin.Context) {
	var req service.CreateLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid level payload"))
		return
	}
	level, err := h.service.CreateLevel(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, level)
}

// CreateOffering godoc
// @Summary Offer a subject within a program (and level for academic programs)
// @Tags Curriculum
// @Accept json
// @Produce json
// @Param payload body service.CreateOfferingRequest true "Offering payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /curriculum/offerings [post]
func (h *CurriculumHandler) CreateOffering(c *gin.Context) {
	var req service.CreateOfferingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid offering payload"))
		return
	}
	offering, err := h.service.CreateOffering(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, offering)
}

// CreatePaper godoc
// @Summary Create a paper under a subject
// @Tags Curriculum
// @Accept json
// @Produce json
// @Param payload body service.CreatePaperRequest true "Paper payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /curriculum/papers [post]
func (h *CurriculumHandler) CreatePaper(c *gin.Context) {
	var req service.CreatePaperRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid paper payload"))
		return
	}
	paper, err := h.service.CreatePaper(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, paper)
}
