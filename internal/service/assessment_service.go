package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/brightpath-edu/portal-api/internal/models"
	appErrors "github.com/brightpath-edu/portal-api/pkg/errors"
)

type assessmentRepository interface {
	List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, int, error)
	FindByID(ctx context.Context, id string) (*models.Assessment, error)
	Upsert(ctx context.Context, assessment *models.Assessment) error
	Delete(ctx context.Context, id string) error
}

// AssessmentService manages assessments submitted through the cascade form.
type AssessmentService struct {
	repo      assessmentRepository
	chains    chainValidator
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAssessmentService constructs an AssessmentService.
func NewAssessmentService(repo assessmentRepository, chains chainValidator, validate *validator.Validate, logger *zap.Logger) *AssessmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssessmentService{repo: repo, chains: chains, validator: validate, logger: logger, now: time.Now}
}

// List returns assessments with pagination metadata.
func (s *AssessmentService) List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, *models.Pagination, error) {
	assessments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assessments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return assessments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a single assessment.
func (s *AssessmentService) Get(ctx context.Context, id string) (*models.Assessment, error) {
	assessment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment")
	}
	return assessment, nil
}

// SubmitAssessmentRequest is the composite create/update payload.
type SubmitAssessmentRequest struct {
	ID           string  `json:"id,omitempty"`
	Title        string  `json:"title" validate:"required"`
	Instructions string  `json:"instructions"`
	DueDate      string  `json:"due_date" validate:"required,datetime=2006-01-02"`
	TotalMarks   int     `json:"total_marks" validate:"required,gt=0"`
	ProgramID    string  `json:"program_id" validate:"required"`
	LevelID      *string `json:"level_id,omitempty"`
	SubjectID    *string `json:"subject_id,omitempty"`
	PaperID      *string `json:"paper_id,omitempty"`
}

// Submit validates the selection chain and upserts the composite record.
func (s *AssessmentService) Submit(ctx context.Context, userID string, req SubmitAssessmentRequest) (*models.Assessment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assessment payload")
	}
	dueDate, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "due_date must be YYYY-MM-DD")
	}
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if dueDate.Before(today) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "due_date must not be in the past")
	}

	record, err := s.chains.Validate(ctx, SelectionRecord{
		ProgramID: req.ProgramID,
		LevelID:   req.LevelID,
		SubjectID: req.SubjectID,
		PaperID:   req.PaperID,
	})
	if err != nil {
		return nil, err
	}

	assessment := &models.Assessment{
		ID:           req.ID,
		Title:        req.Title,
		Instructions: req.Instructions,
		DueDate:      dueDate,
		TotalMarks:   req.TotalMarks,
		ProgramID:    record.ProgramID,
		LevelID:      record.LevelID,
		SubjectID:    record.SubjectID,
		PaperID:      record.PaperID,
		CreatedBy:    userID,
	}

	if req.ID != "" {
		existing, err := s.repo.FindByID(ctx, req.ID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment")
		}
		if existing != nil {
			assessment.CreatedBy = existing.CreatedBy
			assessment.CreatedAt = existing.CreatedAt
		}
	}

	if err := s.repo.Upsert(ctx, assessment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save assessment")
	}
	return assessment, nil
}

// Delete removes an assessment.
func (s *AssessmentService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assessment")
	}
	return nil
}
