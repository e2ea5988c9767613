package models

import "time"

// Assessment is a piece of work set for students within a program/level/
// subject/paper chain.
type Assessment struct {
	ID           string    `db:"id" json:"id"`
	Title        string    `db:"title" json:"title"`
	Instructions string    `db:"instructions" json:"instructions"`
	DueDate      time.Time `db:"due_date" json:"due_date"`
	TotalMarks   int       `db:"total_marks" json:"total_marks"`
	ProgramID    string    `db:"program_id" json:"program_id"`
	LevelID      *string   `db:"level_id" json:"level_id,omitempty"`
	SubjectID    *string   `db:"subject_id" json:"subject_id,omitempty"`
	PaperID      *string   `db:"paper_id" json:"paper_id,omitempty"`
	CreatedBy    string    `db:"created_by" json:"created_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// AssessmentFilter captures filtering criteria for listing assessments.
type AssessmentFilter struct {
	ProgramID string
	LevelID   string
	SubjectID string
	DueAfter  *time.Time
	Page      int
	PageSize  int
}
