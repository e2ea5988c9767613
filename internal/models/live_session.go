package models

import "time"

// SessionStatus is the authoritative stored status of a live class session.
type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionOngoing   SessionStatus = "ongoing"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// IsTerminal reports whether the stored status can never be overridden by a
// time-derived presentation status.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionCancelled
}

// PresentationStatus is the derived, non-persisted status shown to users.
type PresentationStatus string

const (
	PresentationScheduled PresentationStatus = "scheduled"
	PresentationLive      PresentationStatus = "live"
	PresentationCompleted PresentationStatus = "completed"
	PresentationMissed    PresentationStatus = "missed"
	PresentationCancelled PresentationStatus = "cancelled"
)

// LiveSession is a scheduled live class. StartTime and EndTime are wall-clock
// times in "HH:MM" form against ScheduledDate's calendar day.
type LiveSession struct {
	ID            string        `db:"id" json:"id"`
	Title         string        `db:"title" json:"title"`
	ScheduledDate time.Time     `db:"scheduled_date" json:"scheduled_date"`
	StartTime     string        `db:"start_time" json:"start_time"`
	EndTime       string        `db:"end_time" json:"end_time"`
	Status        SessionStatus `db:"status" json:"status"`
	MeetingLink   string        `db:"meeting_link" json:"meeting_link"`
	SubjectID     *string       `db:"subject_id" json:"subject_id,omitempty"`
	LevelID       *string       `db:"level_id" json:"level_id,omitempty"`
	ProgramID     string        `db:"program_id" json:"program_id"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// LiveSessionFilter describes query params for listing sessions.
type LiveSessionFilter struct {
	ProgramID string
	LevelID   string
	Status    SessionStatus
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
}

// AnnotatedSession pairs a session with its derived presentation status.
type AnnotatedSession struct {
	LiveSession
	PresentationStatus PresentationStatus `json:"presentation_status"`
}
