package models

import "time"

// Subject represents an academic subject referenced by offerings.
type Subject struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SubjectOffering states that a subject is taught within a program+level,
// compulsory or optional. LevelID is null for non-academic programs.
type SubjectOffering struct {
	ID           string    `db:"id" json:"id"`
	SubjectID    string    `db:"subject_id" json:"subject_id"`
	ProgramID    string    `db:"program_id" json:"program_id"`
	LevelID      *string   `db:"level_id" json:"level_id,omitempty"`
	IsCompulsory bool      `db:"is_compulsory" json:"is_compulsory"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// OfferingOption is an offering joined with its resolved subject name, the
// shape the selection cascade presents as a dropdown option.
type OfferingOption struct {
	ID           string `json:"id"`
	SubjectID    string `json:"subject_id"`
	SubjectName  string `json:"subject_name"`
	IsCompulsory bool   `json:"is_compulsory"`
}
