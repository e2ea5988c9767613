package models

import "time"

// Resource is an uploaded learning material tied to a point in the
// program/level/subject/paper hierarchy. Level, subject and paper are null
// when the owning program is non-academic or the paper was left unset.
type Resource struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	FileURL     string    `db:"file_url" json:"file_url"`
	ProgramID   string    `db:"program_id" json:"program_id"`
	LevelID     *string   `db:"level_id" json:"level_id,omitempty"`
	SubjectID   *string   `db:"subject_id" json:"subject_id,omitempty"`
	PaperID     *string   `db:"paper_id" json:"paper_id,omitempty"`
	UploadedBy  string    `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ResourceFilter captures filtering criteria for listing resources.
type ResourceFilter struct {
	ProgramID string
	LevelID   string
	SubjectID string
	PaperID   string
	Search    string
	Page      int
	PageSize  int
}
