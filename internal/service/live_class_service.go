package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/brightpath-edu/portal-api/internal/models"
	appErrors "github.com/brightpath-edu/portal-api/pkg/errors"
)

type liveSessionRepository interface {
	List(ctx context.Context, filter models.LiveSessionFilter) ([]models.LiveSession, int, error)
	FindByID(ctx context.Context, id string) (*models.LiveSession, error)
	Create(ctx context.Context, session *models.LiveSession) error
	Update(ctx context.Context, session *models.LiveSession) error
	UpdateStatus(ctx context.Context, id string, status models.SessionStatus) error
	ListActiveOn(ctx context.Context, date time.Time) ([]models.LiveSession, error)
}

// LiveClassServiceConfig tunes the reconciliation loop.
type LiveClassServiceConfig struct {
	ReconcileInterval time.Duration
}

// LiveClassService lists live class sessions with their derived presentation
// status and runs the stored-status reconciler.
type LiveClassService struct {
	repo      liveSessionRepository
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
	cfg       LiveClassServiceConfig
}

// NewLiveClassService constructs a LiveClassService.
func NewLiveClassService(repo liveSessionRepository, validate *validator.Validate, logger *zap.Logger, cfg LiveClassServiceConfig) *LiveClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = 30 * time.Second
	}
	return &LiveClassService{repo: repo, validator: validate, logger: logger, now: time.Now, cfg: cfg}
}

// CombineDateTime anchors a "HH:MM" wall-clock time onto the session date's
// calendar day.
func CombineDateTime(date time.Time, hhmm string) (time.Time, error) {
	parsed, err := time.Parse("15:04", hhmm)
	if err != nil {
		// TIME columns may scan with seconds attached.
		parsed, err = time.Parse("15:04:05", hhmm)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse wall-clock time %q: %w", hhmm, err)
		}
	}
	return time.Date(date.Year(), date.Month(), date.Day(), parsed.Hour(), parsed.Minute(), parsed.Second(), 0, date.Location()), nil
}

// DeriveStatus computes the presentation status of a session at the given
// instant. Terminal stored statuses are authoritative and always returned
// unchanged. Boundaries are strict: at exactly the start instant the session
// is not yet live, at exactly the end instant it is not yet missed.
func DeriveStatus(session models.LiveSession, now time.Time) models.PresentationStatus {
	switch session.Status {
	case models.SessionCompleted:
		return models.PresentationCompleted
	case models.SessionCancelled:
		return models.PresentationCancelled
	}

	start, err := CombineDateTime(session.ScheduledDate, session.StartTime)
	if err != nil {
		return models.PresentationScheduled
	}
	end, err := CombineDateTime(session.ScheduledDate, session.EndTime)
	if err != nil {
		return models.PresentationScheduled
	}

	if now.After(end) {
		return models.PresentationMissed
	}
	if now.After(start) {
		return models.PresentationLive
	}
	return models.PresentationScheduled
}

// NextSessionCountdown returns whole minutes until the earliest session
// stored as scheduled on now's calendar day that has not yet started, or nil
// when none qualifies. Ties on start time keep input order.
func NextSessionCountdown(sessions []models.LiveSession, now time.Time) *int {
	var best *time.Time
	for _, session := range sessions {
		if session.Status != models.SessionScheduled {
			continue
		}
		if !sameDay(session.ScheduledDate, now) {
			continue
		}
		start, err := CombineDateTime(session.ScheduledDate, session.StartTime)
		if err != nil {
			continue
		}
		if !start.After(now) {
			continue
		}
		if best == nil || start.Before(*best) {
			s := start
			best = &s
		}
	}
	if best == nil {
		return nil
	}
	minutes := int(best.Sub(now).Minutes())
	if minutes <= 0 {
		return nil
	}
	return &minutes
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// List returns sessions annotated with their presentation status, plus the
// countdown to the next qualifying session.
func (s *LiveClassService) List(ctx context.Context, filter models.LiveSessionFilter) ([]models.AnnotatedSession, *models.Pagination, *int, error) {
	sessions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list live classes")
	}

	now := s.now()
	annotated := make([]models.AnnotatedSession, len(sessions))
	for i, session := range sessions {
		annotated[i] = models.AnnotatedSession{
			LiveSession:        session,
			PresentationStatus: DeriveStatus(session, now),
		}
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 50
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}

	return annotated, pagination, NextSessionCountdown(sessions, now), nil
}

// ScheduleSessionRequest describes the session creation payload.
type ScheduleSessionRequest struct {
	Title         string  `json:"title" validate:"required"`
	ScheduledDate string  `json:"scheduled_date" validate:"required,datetime=2006-01-02"`
	StartTime     string  `json:"start_time" validate:"required"`
	EndTime       string  `json:"end_time" validate:"required"`
	MeetingLink   string  `json:"meeting_link" validate:"omitempty,url"`
	ProgramID     string  `json:"program_id" validate:"required"`
	LevelID       *string `json:"level_id,omitempty"`
	SubjectID     *string `json:"subject_id,omitempty"`
}

// Schedule creates a new session after checking the time window is sane.
func (s *LiveClassService) Schedule(ctx context.Context, req ScheduleSessionRequest) (*models.LiveSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	date, err := time.Parse("2006-01-02", req.ScheduledDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "scheduled_date must be YYYY-MM-DD")
	}
	start, err := CombineDateTime(date, req.StartTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_time must be HH:MM")
	}
	end, err := CombineDateTime(date, req.EndTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be HH:MM")
	}
	if !end.After(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}

	session := &models.LiveSession{
		Title:         req.Title,
		ScheduledDate: date,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		Status:        models.SessionScheduled,
		MeetingLink:   req.MeetingLink,
		ProgramID:     req.ProgramID,
		LevelID:       req.LevelID,
		SubjectID:     req.SubjectID,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to schedule session")
	}
	return session, nil
}

// Reschedule moves an existing session to a new window. Terminal sessions
// cannot be moved.
func (s *LiveClassService) Reschedule(ctx context.Context, id string, req ScheduleSessionRequest) (*models.LiveSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session.Status.IsTerminal() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "session already finished")
	}

	date, err := time.Parse("2006-01-02", req.ScheduledDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "scheduled_date must be YYYY-MM-DD")
	}
	start, err := CombineDateTime(date, req.StartTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_time must be HH:MM")
	}
	end, err := CombineDateTime(date, req.EndTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be HH:MM")
	}
	if !end.After(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}

	session.Title = req.Title
	session.ScheduledDate = date
	session.StartTime = req.StartTime
	session.EndTime = req.EndTime
	session.MeetingLink = req.MeetingLink
	session.ProgramID = req.ProgramID
	session.LevelID = req.LevelID
	session.SubjectID = req.SubjectID
	// A moved session is planned again regardless of where the clock had
	// taken it.
	session.Status = models.SessionScheduled

	if err := s.repo.Update(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reschedule session")
	}
	return session, nil
}

// Cancel marks a session cancelled. Terminal sessions stay as they are.
func (s *LiveClassService) Cancel(ctx context.Context, id string) error {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session.Status.IsTerminal() {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "session already finished")
	}
	if err := s.repo.UpdateStatus(ctx, id, models.SessionCancelled); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel session")
	}
	return nil
}

// RunReconciler drives stored-status transitions on a fixed interval until
// the context is cancelled. Sessions stored as scheduled whose window has
// opened become ongoing; sessions whose window has closed become completed.
// Terminal rows are never touched. Each tick is an independent, idempotent
// pass, so cancellation only needs to stop the ticker.
func (s *LiveClassService) RunReconciler(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ReconcileInterval)
	defer ticker.Stop()

	s.logger.Info("live class reconciler started", zap.Duration("interval", s.cfg.ReconcileInterval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("live class reconciler stopped")
			return
		case <-ticker.C:
			if err := s.ReconcileOnce(ctx); err != nil {
				s.logger.Warn("live class reconcile pass failed", zap.Error(err))
			}
		}
	}
}

// ReconcileOnce performs a single reconciliation pass.
func (s *LiveClassService) ReconcileOnce(ctx context.Context) error {
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	sessions, err := s.repo.ListActiveOn(ctx, today)
	if err != nil {
		return fmt.Errorf("load active sessions: %w", err)
	}

	for _, session := range sessions {
		start, err := CombineDateTime(session.ScheduledDate, session.StartTime)
		if err != nil {
			s.logger.Warn("session has unparseable start time", zap.String("id", session.ID), zap.Error(err))
			continue
		}
		end, err := CombineDateTime(session.ScheduledDate, session.EndTime)
		if err != nil {
			s.logger.Warn("session has unparseable end time", zap.String("id", session.ID), zap.Error(err))
			continue
		}

		var next models.SessionStatus
		switch {
		case now.After(end):
			next = models.SessionCompleted
		case now.After(start) && session.Status == models.SessionScheduled:
			next = models.SessionOngoing
		default:
			continue
		}
		if next == session.Status {
			continue
		}
		if err := s.repo.UpdateStatus(ctx, session.ID, next); err != nil {
			s.logger.Warn("failed to transition session status",
				zap.String("id", session.ID),
				zap.String("to", string(next)),
				zap.Error(err))
			continue
		}
		s.logger.Info("session status transitioned",
			zap.String("id", session.ID),
			zap.String("from", string(session.Status)),
			zap.String("to", string(next)))
	}
	return nil
}
