package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/brightpath-edu/portal-api/internal/models"
)

// LiveSessionRepository handles persistence for live class sessions.
type LiveSessionRepository struct {
	db *sqlx.DB
}

// NewLiveSessionRepository creates a new repository instance.
func NewLiveSessionRepository(db *sqlx.DB) *LiveSessionRepository {
	return &LiveSessionRepository{db: db}
}

const sessionColumns = "id, title, scheduled_date, start_time, end_time, status, meeting_link, subject_id, level_id, program_id, created_at, updated_at"

// List returns sessions matching the filter ordered by date then start time,
// the order the countdown calculation assumes.
func (r *LiveSessionRepository) List(ctx context.Context, filter models.LiveSessionFilter) ([]models.LiveSession, int, error) {
	base := "FROM live_sessions WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.ProgramID != "" {
		conditions = append(conditions, fmt.Sprintf("program_id = $%d", len(args)+1))
		args = append(args, filter.ProgramID)
	}
	if filter.LevelID != "" {
		conditions = append(conditions, fmt.Sprintf("level_id = $%d", len(args)+1))
		args = append(args, filter.LevelID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("scheduled_date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("scheduled_date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY scheduled_date ASC, start_time ASC LIMIT %d OFFSET %d", sessionColumns, base, size, offset)
	var sessions []models.LiveSession
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list live sessions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count live sessions: %w", err)
	}

	return sessions, total, nil
}

// FindByID returns a session by id.
func (r *LiveSessionRepository) FindByID(ctx context.Context, id string) (*models.LiveSession, error) {
	query := fmt.Sprintf("SELECT %s FROM live_sessions WHERE id = $1", sessionColumns)
	var session models.LiveSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// Create persists a new session.
func (r *LiveSessionRepository) Create(ctx context.Context, session *models.LiveSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.Status == "" {
		session.Status = models.SessionScheduled
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	const query = `INSERT INTO live_sessions (id, title, scheduled_date, start_time, end_time, status, meeting_link, subject_id, level_id, program_id, created_at, updated_at)
		VALUES (:id, :title, :scheduled_date, :start_time, :end_time, :status, :meeting_link, :subject_id, :level_id, :program_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create live session: %w", err)
	}
	return nil
}

// Update modifies a session's schedule fields.
func (r *LiveSessionRepository) Update(ctx context.Context, session *models.LiveSession) error {
	session.UpdatedAt = time.Now().UTC()
	const query = `UPDATE live_sessions SET title = :title, scheduled_date = :scheduled_date, start_time = :start_time,
		end_time = :end_time, meeting_link = :meeting_link, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("update live session: %w", err)
	}
	return nil
}

// UpdateStatus transitions a session's stored status. Terminal rows are
// excluded in the query so a reconciler tick can never resurrect them.
func (r *LiveSessionRepository) UpdateStatus(ctx context.Context, id string, status models.SessionStatus) error {
	const query = `UPDATE live_sessions SET status = $1, updated_at = $2 WHERE id = $3 AND status NOT IN ('completed', 'cancelled')`
	if _, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update live session status: %w", err)
	}
	return nil
}

// ListActiveOn returns non-terminal sessions scheduled on the given date,
// the working set for status reconciliation.
func (r *LiveSessionRepository) ListActiveOn(ctx context.Context, date time.Time) ([]models.LiveSession, error) {
	query := fmt.Sprintf("SELECT %s FROM live_sessions WHERE scheduled_date = $1 AND status IN ('scheduled', 'ongoing') ORDER BY start_time ASC", sessionColumns)
	var sessions []models.LiveSession
	if err := r.db.SelectContext(ctx, &sessions, query, date); err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return sessions, nil
}
