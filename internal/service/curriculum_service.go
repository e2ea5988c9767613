package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/brightpath-edu/portal-api/internal/models"
	appErrors "github.com/brightpath-edu/portal-api/pkg/errors"
)

type curriculumRepository interface {
	ListPrograms(ctx context.Context) ([]models.Program, error)
	FindProgramByID(ctx context.Context, id string) (*models.Program, error)
	ListLevelsByProgram(ctx context.Context, programID string) ([]models.Level, error)
	ListOfferings(ctx context.Context, programID, levelID string) ([]models.SubjectOffering, error)
	ListOfferingsByProgram(ctx context.Context, programID string) ([]models.SubjectOffering, error)
	ResolveSubjects(ctx context.Context, ids []string) ([]models.Subject, error)
	ListPapersBySubject(ctx context.Context, subjectID string) ([]models.Paper, error)
	CreateProgram(ctx context.Context, program *models.Program) error
	CreateLevel(ctx context.Context, level *models.Level) error
	CreateOffering(ctx context.Context, offering *models.SubjectOffering) error
	CreatePaper(ctx context.Context, paper *models.Paper) error
	OfferingExists(ctx context.Context, subjectID, programID string, levelID *string) (bool, error)
}

// CurriculumServiceConfig tunes option-list caching.
type CurriculumServiceConfig struct {
	CacheTTL time.Duration
}

// CurriculumService serves the option lists consumed by the selection
// cascade and the admin write paths that invalidate them.
type CurriculumService struct {
	repo      curriculumRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       CurriculumServiceConfig
}

// NewCurriculumService constructs a CurriculumService.
func NewCurriculumService(repo curriculumRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger, cfg CurriculumServiceConfig) *CurriculumService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	return &CurriculumService{repo: repo, cache: cache, validator: validate, logger: logger, cfg: cfg}
}

// Programs returns all programs.
func (s *CurriculumService) Programs(ctx context.Context) ([]models.Program, error) {
	const key = "curriculum:programs"
	var cached []models.Program
	if hit, err := s.tryCache(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}
	programs, err := s.repo.ListPrograms(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list programs")
	}
	s.persistCache(ctx, key, programs)
	return programs, nil
}

// Program returns a single program by id.
func (s *CurriculumService) Program(ctx context.Context, id string) (*models.Program, error) {
	program, err := s.repo.FindProgramByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}
	return program, nil
}

// Levels returns the levels under a program.
func (s *CurriculumService) Levels(ctx context.Context, programID string) ([]models.Level, error) {
	key := fmt.Sprintf("curriculum:levels:%s", programID)
	var cached []models.Level
	if hit, err := s.tryCache(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}
	levels, err := s.repo.ListLevelsByProgram(ctx, programID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list levels")
	}
	s.persistCache(ctx, key, levels)
	return levels, nil
}

// OfferingOptions returns offerings for a program (and level, when given)
// with subject names resolved and joined in memory. Offerings carry only
// subject ids, so a second lookup fetches the names.
func (s *CurriculumService) OfferingOptions(ctx context.Context, programID, levelID string) ([]models.OfferingOption, error) {
	key := fmt.Sprintf("curriculum:offerings:%s:%s", programID, levelID)
	var cached []models.OfferingOption
	if hit, err := s.tryCache(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	var offerings []models.SubjectOffering
	var err error
	if levelID == "" {
		offerings, err = s.repo.ListOfferingsByProgram(ctx, programID)
	} else {
		offerings, err = s.repo.ListOfferings(ctx, programID, levelID)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list offerings")
	}
	if len(offerings) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(offerings))
	seen := make(map[string]struct{}, len(offerings))
	for _, off := range offerings {
		if _, ok := seen[off.SubjectID]; ok {
			continue
		}
		seen[off.SubjectID] = struct{}{}
		ids = append(ids, off.SubjectID)
	}

	subjects, err := s.repo.ResolveSubjects(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve subjects")
	}
	names := make(map[string]string, len(subjects))
	for _, sub := range subjects {
		names[sub.ID] = sub.Name
	}

	options := make([]models.OfferingOption, 0, len(offerings))
	for _, off := range offerings {
		name, ok := names[off.SubjectID]
		if !ok {
			// Offering points at a subject the lookup did not return;
			// skip rather than present an unlabeled option.
			s.logger.Warn("offering references unknown subject",
				zap.String("offering_id", off.ID),
				zap.String("subject_id", off.SubjectID))
			continue
		}
		options = append(options, models.OfferingOption{
			ID:           off.ID,
			SubjectID:    off.SubjectID,
			SubjectName:  name,
			IsCompulsory: off.IsCompulsory,
		})
	}
	sort.SliceStable(options, func(i, j int) bool {
		if options[i].IsCompulsory != options[j].IsCompulsory {
			return options[i].IsCompulsory
		}
		return options[i].SubjectName < options[j].SubjectName
	})

	s.persistCache(ctx, key, options)
	return options, nil
}

// Papers returns the papers under a subject.
func (s *CurriculumService) Papers(ctx context.Context, subjectID string) ([]models.Paper, error) {
	key := fmt.Sprintf("curriculum:papers:%s", subjectID)
	var cached []models.Paper
	if hit, err := s.tryCache(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}
	papers, err := s.repo.ListPapersBySubject(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list papers")
	}
	s.persistCache(ctx, key, papers)
	return papers, nil
}

// CreateProgramRequest describes the program creation payload.
type CreateProgramRequest struct {
	Name           string                       `json:"name" validate:"required"`
	Classification models.ProgramClassification `json:"classification" validate:"required,oneof=academic non_academic"`
}

// CreateProgram persists a new program and invalidates cached options.
func (s *CurriculumService) CreateProgram(ctx context.Context, req CreateProgramRequest) (*models.Program, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid program payload")
	}
	program := &models.Program{Name: req.Name, Classification: req.Classification}
	if err := s.repo.CreateProgram(ctx, program); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create program")
	}
	s.invalidate(ctx, "curriculum:programs")
	return program, nil
}

// CreateLevelRequest describes the level creation payload.
type CreateLevelRequest struct {
	Name      string `json:"name" validate:"required"`
	ProgramID string `json:"program_id" validate:"required"`
}

// CreateLevel persists a level under an academic program.
func (s *CurriculumService) CreateLevel(ctx context.Context, req CreateLevelRequest) (*models.Level, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid level payload")
	}
	program, err := s.Program(ctx, req.ProgramID)
	if err != nil {
		return nil, err
	}
	if !program.IsAcademic() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "non-academic programs do not carry levels")
	}
	level := &models.Level{Name: req.Name, ProgramID: req.ProgramID}
	if err := s.repo.CreateLevel(ctx, level); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create level")
	}
	s.invalidate(ctx, fmt.Sprintf("curriculum:levels:%s", req.ProgramID))
	return level, nil
}

// CreateOfferingRequest describes the offering creation payload.
type CreateOfferingRequest struct {
	SubjectID    string  `json:"subject_id" validate:"required"`
	ProgramID    string  `json:"program_id" validate:"required"`
	LevelID      *string `json:"level_id,omitempty"`
	IsCompulsory bool    `json:"is_compulsory"`
}

// CreateOffering persists a subject offering. Academic programs require a
// level; non-academic programs must not carry one.
func (s *CurriculumService) CreateOffering(ctx context.Context, req CreateOfferingRequest) (*models.SubjectOffering, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid offering payload")
	}
	program, err := s.Program(ctx, req.ProgramID)
	if err != nil {
		return nil, err
	}
	if program.IsAcademic() && req.LevelID == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "level_id is required for academic programs")
	}
	if !program.IsAcademic() && req.LevelID != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "level_id must be empty for non-academic programs")
	}

	exists, err := s.repo.OfferingExists(ctx, req.SubjectID, req.ProgramID, req.LevelID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check offering uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "subject is already offered in this program and level")
	}

	offering := &models.SubjectOffering{
		SubjectID:    req.SubjectID,
		ProgramID:    req.ProgramID,
		LevelID:      req.LevelID,
		IsCompulsory: req.IsCompulsory,
	}
	if err := s.repo.CreateOffering(ctx, offering); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create offering")
	}
	s.invalidate(ctx, fmt.Sprintf("curriculum:offerings:%s:*", req.ProgramID))
	return offering, nil
}

// CreatePaperRequest describes the paper creation payload.
type CreatePaperRequest struct {
	SubjectID string `json:"subject_id" validate:"required"`
	Code      string `json:"code" validate:"required"`
	Name      string `json:"name" validate:"required"`
}

// CreatePaper persists a paper under a subject.
func (s *CurriculumService) CreatePaper(ctx context.Context, req CreatePaperRequest) (*models.Paper, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid paper payload")
	}
	paper := &models.Paper{SubjectID: req.SubjectID, Code: req.Code, Name: req.Name}
	if err := s.repo.CreatePaper(ctx, paper); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create paper")
	}
	s.invalidate(ctx, fmt.Sprintf("curriculum:papers:%s", req.SubjectID))
	return paper, nil
}

func (s *CurriculumService) tryCache(ctx context.Context, key string, dest interface{}) (bool, error) {
	if s.cache == nil {
		return false, nil
	}
	return s.cache.Get(ctx, key, dest)
}

func (s *CurriculumService) persistCache(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("failed to cache curriculum payload", zap.String("key", key), zap.Error(err))
	}
}

func (s *CurriculumService) invalidate(ctx context.Context, pattern string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, pattern); err != nil {
		s.logger.Warn("failed to invalidate curriculum cache", zap.String("pattern", pattern), zap.Error(err))
	}
}
