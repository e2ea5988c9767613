package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightpath-edu/portal-api/internal/models"
	appErrors "github.com/brightpath-edu/portal-api/pkg/errors"
)

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*models.LiveSession
	updates  []string
}

func newFakeSessionRepo(sessions ...models.LiveSession) *fakeSessionRepo {
	repo := &fakeSessionRepo{sessions: make(map[string]*models.LiveSession)}
	for i := range sessions {
		s := sessions[i]
		repo.sessions[s.ID] = &s
	}
	return repo
}

func (r *fakeSessionRepo) List(ctx context.Context, filter models.LiveSessionFilter) ([]models.LiveSession, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.LiveSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	return out, len(out), nil
}

func (r *fakeSessionRepo) FindByID(ctx context.Context, id string) (*models.LiveSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *s
	return &copied, nil
}

func (r *fakeSessionRepo) Create(ctx context.Context, session *models.LiveSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session.ID == "" {
		session.ID = "generated-id"
	}
	copied := *session
	r.sessions[session.ID] = &copied
	return nil
}

func (r *fakeSessionRepo) Update(ctx context.Context, session *models.LiveSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *session
	r.sessions[session.ID] = &copied
	return nil
}

func (r *fakeSessionRepo) UpdateStatus(ctx context.Context, id string, status models.SessionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok && !s.Status.IsTerminal() {
		s.Status = status
		r.updates = append(r.updates, id+":"+string(status))
	}
	return nil
}

func (r *fakeSessionRepo) ListActiveOn(ctx context.Context, date time.Time) ([]models.LiveSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.LiveSession, 0)
	for _, s := range r.sessions {
		if s.Status.IsTerminal() {
			continue
		}
		if s.ScheduledDate.Year() == date.Year() && s.ScheduledDate.YearDay() == date.YearDay() {
			out = append(out, *s)
		}
	}
	return out, nil
}

func mustDate(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", value)
	require.NoError(t, err)
	return parsed
}

func sessionAt(id, date, start, end string, status models.SessionStatus) models.LiveSession {
	parsed, _ := time.Parse("2006-01-02", date)
	return models.LiveSession{
		ID:            id,
		Title:         "Session " + id,
		ScheduledDate: parsed,
		StartTime:     start,
		EndTime:       end,
		Status:        status,
		ProgramID:     "prog-cam",
	}
}

func TestDeriveStatusBoundariesAreStrict(t *testing.T) {
	session := sessionAt("s1", "2026-09-01", "10:00", "11:00", models.SessionScheduled)
	day := mustDate(t, "2026-09-01")

	cases := []struct {
		name string
		now  time.Time
		want models.PresentationStatus
	}{
		{"well before start", day.Add(9 * time.Hour), models.PresentationScheduled},
		{"exactly at start", day.Add(10 * time.Hour), models.PresentationScheduled},
		{"one second after start", day.Add(10*time.Hour + time.Second), models.PresentationLive},
		{"exactly at end", day.Add(11 * time.Hour), models.PresentationLive},
		{"one second after end", day.Add(11*time.Hour + time.Second), models.PresentationMissed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveStatus(session, tc.now))
		})
	}
}

func TestDeriveStatusTerminalStoredStatusWins(t *testing.T) {
	day := mustDate(t, "2026-09-01")
	midWindow := day.Add(10*time.Hour + 30*time.Minute)

	completed := sessionAt("s1", "2026-09-01", "10:00", "11:00", models.SessionCompleted)
	assert.Equal(t, models.PresentationCompleted, DeriveStatus(completed, midWindow))

	cancelled := sessionAt("s2", "2026-09-01", "10:00", "11:00", models.SessionCancelled)
	assert.Equal(t, models.PresentationCancelled, DeriveStatus(cancelled, midWindow))

	// Past cancelled sessions never read as missed.
	assert.Equal(t, models.PresentationCancelled, DeriveStatus(cancelled, day.Add(20*time.Hour)))
}

func TestDeriveStatusOngoingFollowsClock(t *testing.T) {
	session := sessionAt("s1", "2026-09-01", "10:00", "11:00", models.SessionOngoing)
	day := mustDate(t, "2026-09-01")

	assert.Equal(t, models.PresentationLive, DeriveStatus(session, day.Add(10*time.Hour+30*time.Minute)))
	assert.Equal(t, models.PresentationMissed, DeriveStatus(session, day.Add(12*time.Hour)))
}

func TestNextSessionCountdown(t *testing.T) {
	day := mustDate(t, "2026-09-01")
	now := day.Add(9*time.Hour + 30*time.Minute)

	sessions := []models.LiveSession{
		sessionAt("past", "2026-09-01", "08:00", "09:00", models.SessionScheduled),
		sessionAt("cancelled", "2026-09-01", "09:45", "10:30", models.SessionCancelled),
		sessionAt("tomorrow", "2026-09-02", "09:40", "10:30", models.SessionScheduled),
		sessionAt("next", "2026-09-01", "10:00", "11:00", models.SessionScheduled),
		sessionAt("later", "2026-09-01", "14:00", "15:00", models.SessionScheduled),
	}

	countdown := NextSessionCountdown(sessions, now)
	require.NotNil(t, countdown)
	assert.Equal(t, 30, *countdown)
}

func TestNextSessionCountdownTruncatesToWholeMinutes(t *testing.T) {
	day := mustDate(t, "2026-09-01")
	now := day.Add(9*time.Hour + 30*time.Minute + 10*time.Second)

	sessions := []models.LiveSession{
		sessionAt("next", "2026-09-01", "10:00", "11:00", models.SessionScheduled),
	}
	countdown := NextSessionCountdown(sessions, now)
	require.NotNil(t, countdown)
	assert.Equal(t, 29, *countdown)
}

func TestNextSessionCountdownNilWhenNothingQualifies(t *testing.T) {
	day := mustDate(t, "2026-09-01")
	now := day.Add(16 * time.Hour)

	sessions := []models.LiveSession{
		sessionAt("past", "2026-09-01", "08:00", "09:00", models.SessionScheduled),
		sessionAt("ongoing", "2026-09-01", "15:00", "17:00", models.SessionOngoing),
	}
	assert.Nil(t, NextSessionCountdown(sessions, now))
	assert.Nil(t, NextSessionCountdown(nil, now))
}

func TestLiveClassScheduleValidatesWindow(t *testing.T) {
	repo := newFakeSessionRepo()
	svc := NewLiveClassService(repo, nil, nil, LiveClassServiceConfig{})
	ctx := context.Background()

	_, err := svc.Schedule(ctx, ScheduleSessionRequest{
		Title:         "Algebra",
		ScheduledDate: "2026-09-01",
		StartTime:     "11:00",
		EndTime:       "10:00",
		ProgramID:     "prog-cam",
	})
	require.EqualError(t, err, "end_time must be after start_time")

	session, err := svc.Schedule(ctx, ScheduleSessionRequest{
		Title:         "Algebra",
		ScheduledDate: "2026-09-01",
		StartTime:     "10:00",
		EndTime:       "11:00",
		ProgramID:     "prog-cam",
	})
	require.NoError(t, err)
	assert.Equal(t, models.SessionScheduled, session.Status)
}

func TestLiveClassCancelRefusesTerminalSessions(t *testing.T) {
	repo := newFakeSessionRepo(
		sessionAt("done", "2026-09-01", "08:00", "09:00", models.SessionCompleted),
		sessionAt("open", "2026-09-01", "10:00", "11:00", models.SessionScheduled),
	)
	svc := NewLiveClassService(repo, nil, nil, LiveClassServiceConfig{})
	ctx := context.Background()

	err := svc.Cancel(ctx, "done")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Cancel(ctx, "open"))
	cancelled, err := repo.FindByID(ctx, "open")
	require.NoError(t, err)
	assert.Equal(t, models.SessionCancelled, cancelled.Status)
}

func TestReconcileOnceTransitionsSessions(t *testing.T) {
	repo := newFakeSessionRepo(
		sessionAt("upcoming", "2026-09-01", "12:00", "13:00", models.SessionScheduled),
		sessionAt("started", "2026-09-01", "09:00", "11:00", models.SessionScheduled),
		sessionAt("over", "2026-09-01", "07:00", "08:00", models.SessionOngoing),
		sessionAt("cancelled", "2026-09-01", "07:00", "08:00", models.SessionCancelled),
	)
	svc := NewLiveClassService(repo, nil, nil, LiveClassServiceConfig{})
	day := mustDate(t, "2026-09-01")
	svc.now = func() time.Time { return day.Add(10 * time.Hour) }

	require.NoError(t, svc.ReconcileOnce(context.Background()))

	assertStatus := func(id string, want models.SessionStatus) {
		t.Helper()
		session, err := repo.FindByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, want, session.Status)
	}
	assertStatus("upcoming", models.SessionScheduled)
	assertStatus("started", models.SessionOngoing)
	assertStatus("over", models.SessionCompleted)
	assertStatus("cancelled", models.SessionCancelled)
}

func TestListAnnotatesAndCountsDown(t *testing.T) {
	repo := newFakeSessionRepo(
		sessionAt("live-now", "2026-09-01", "09:00", "11:00", models.SessionOngoing),
		sessionAt("next", "2026-09-01", "10:30", "11:30", models.SessionScheduled),
	)
	svc := NewLiveClassService(repo, nil, nil, LiveClassServiceConfig{})
	day := mustDate(t, "2026-09-01")
	svc.now = func() time.Time { return day.Add(10 * time.Hour) }

	annotated, pagination, countdown, err := svc.List(context.Background(), models.LiveSessionFilter{})
	require.NoError(t, err)
	require.Len(t, annotated, 2)
	require.NotNil(t, pagination)
	assert.Equal(t, 2, pagination.TotalCount)

	byID := make(map[string]models.PresentationStatus)
	for _, a := range annotated {
		byID[a.ID] = a.PresentationStatus
	}
	assert.Equal(t, models.PresentationLive, byID["live-now"])
	assert.Equal(t, models.PresentationScheduled, byID["next"])

	require.NotNil(t, countdown)
	assert.Equal(t, 30, *countdown)
}
