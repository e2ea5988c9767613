package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/brightpath-edu/portal-api/internal/models"
)

// CurriculumRepository handles persistence for the program → level →
// subject-offering → paper hierarchy that drives the selection cascade.
type CurriculumRepository struct {
	db *sqlx.DB
}

// NewCurriculumRepository creates a new repository instance.
func NewCurriculumRepository(db *sqlx.DB) *CurriculumRepository {
	return &CurriculumRepository{db: db}
}

// ListPrograms returns all programs ordered by name.
func (r *CurriculumRepository) ListPrograms(ctx context.Context) ([]models.Program, error) {
	const query = `SELECT id, name, classification, created_at, updated_at FROM programs ORDER BY name ASC`
	var programs []models.Program
	if err := r.db.SelectContext(ctx, &programs, query); err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	return programs, nil
}

// FindProgramByID returns a program by id.
func (r *CurriculumRepository) FindProgramByID(ctx context.Context, id string) (*models.Program, error) {
	const query = `SELECT id, name, classification, created_at, updated_at FROM programs WHERE id = $1`
	var program models.Program
	if err := r.db.GetContext(ctx, &program, query, id); err != nil {
		return nil, err
	}
	return &program, nil
}

// ListLevelsByProgram returns the levels belonging to a program.
func (r *CurriculumRepository) ListLevelsByProgram(ctx context.Context, programID string) ([]models.Level, error) {
	const query = `SELECT id, name, program_id, created_at, updated_at FROM levels WHERE program_id = $1 ORDER BY name ASC`
	var levels []models.Level
	if err := r.db.SelectContext(ctx, &levels, query, programID); err != nil {
		return nil, fmt.Errorf("list levels for program %s: %w", programID, err)
	}
	return levels, nil
}

// ListOfferings returns subject offerings for a program+level pair.
func (r *CurriculumRepository) ListOfferings(ctx context.Context, programID, levelID string) ([]models.SubjectOffering, error) {
	const query = `SELECT id, subject_id, program_id, level_id, is_compulsory, created_at, updated_at
		FROM subject_offerings WHERE program_id = $1 AND level_id = $2 ORDER BY created_at ASC`
	var offerings []models.SubjectOffering
	if err := r.db.SelectContext(ctx, &offerings, query, programID, levelID); err != nil {
		return nil, fmt.Errorf("list offerings for program %s level %s: %w", programID, levelID, err)
	}
	return offerings, nil
}

// ListOfferingsByProgram returns offerings keyed by program only, the
// non-academic path where no level exists.
func (r *CurriculumRepository) ListOfferingsByProgram(ctx context.Context, programID string) ([]models.SubjectOffering, error) {
	const query = `SELECT id, subject_id, program_id, level_id, is_compulsory, created_at, updated_at
		FROM subject_offerings WHERE program_id = $1 AND level_id IS NULL ORDER BY created_at ASC`
	var offerings []models.SubjectOffering
	if err := r.db.SelectContext(ctx, &offerings, query, programID); err != nil {
		return nil, fmt.Errorf("list offerings for program %s: %w", programID, err)
	}
	return offerings, nil
}

// ResolveSubjects fetches subject rows for the given ids. Offerings carry
// subject ids only; names are resolved here and joined in memory.
func (r *CurriculumRepository) ResolveSubjects(ctx context.Context, ids []string) ([]models.Subject, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT id, name, created_at, updated_at FROM subjects WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build subject lookup: %w", err)
	}
	query = r.db.Rebind(query)
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, args...); err != nil {
		return nil, fmt.Errorf("resolve subjects: %w", err)
	}
	return subjects, nil
}

// ListPapersBySubject returns the papers belonging to a subject.
func (r *CurriculumRepository) ListPapersBySubject(ctx context.Context, subjectID string) ([]models.Paper, error) {
	const query = `SELECT id, subject_id, code, name, created_at, updated_at FROM papers WHERE subject_id = $1 ORDER BY code ASC`
	var papers []models.Paper
	if err := r.db.SelectContext(ctx, &papers, query, subjectID); err != nil {
		return nil, fmt.Errorf("list papers for subject %s: %w", subjectID, err)
	}
	return papers, nil
}

// CreateProgram persists a new program.
func (r *CurriculumRepository) CreateProgram(ctx context.Context, program *models.Program) error {
	if program.ID == "" {
		program.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	program.CreatedAt = now
	program.UpdatedAt = now

	const query = `INSERT INTO programs (id, name, classification, created_at, updated_at)
		VALUES (:id, :name, :classification, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, program); err != nil {
		return fmt.Errorf("create program: %w", err)
	}
	return nil
}

// CreateLevel persists a new level under a program.
func (r *CurriculumRepository) CreateLevel(ctx context.Context, level *models.Level) error {
	if level.ID == "" {
		level.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	level.CreatedAt = now
	level.UpdatedAt = now

	const query = `INSERT INTO levels (id, name, program_id, created_at, updated_at)
		VALUES (:id, :name, :program_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, level); err != nil {
		return fmt.Errorf("create level: %w", err)
	}
	return nil
}

// CreateOffering persists a new subject offering.
func (r *CurriculumRepository) CreateOffering(ctx context.Context, offering *models.SubjectOffering) error {
	if offering.ID == "" {
		offering.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	offering.CreatedAt = now
	offering.UpdatedAt = now

	const query = `INSERT INTO subject_offerings (id, subject_id, program_id, level_id, is_compulsory, created_at, updated_at)
		VALUES (:id, :subject_id, :program_id, :level_id, :is_compulsory, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, offering); err != nil {
		return fmt.Errorf("create offering: %w", err)
	}
	return nil
}

// CreatePaper persists a new paper under a subject.
func (r *CurriculumRepository) CreatePaper(ctx context.Context, paper *models.Paper) error {
	if paper.ID == "" {
		paper.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	paper.CreatedAt = now
	paper.UpdatedAt = now

	const query = `INSERT INTO papers (id, subject_id, code, name, created_at, updated_at)
		VALUES (:id, :subject_id, :code, :name, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, paper); err != nil {
		return fmt.Errorf("create paper: %w", err)
	}
	return nil
}

// OfferingExists checks whether an equivalent offering is already present.
func (r *CurriculumRepository) OfferingExists(ctx context.Context, subjectID, programID string, levelID *string) (bool, error) {
	query := `SELECT 1 FROM subject_offerings WHERE subject_id = $1 AND program_id = $2`
	args := []interface{}{subjectID, programID}
	if levelID != nil {
		query += ` AND level_id = $3`
		args = append(args, *levelID)
	} else {
		query += ` AND level_id IS NULL`
	}

	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check offering uniqueness: %w", err)
	}
	return true, nil
}
