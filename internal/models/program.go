package models

import (
	"strings"
	"time"
)

// ProgramClassification distinguishes academic programs (which carry levels,
// subject offerings and papers) from non-academic tracks (which do not).
type ProgramClassification string

const (
	ProgramAcademic    ProgramClassification = "academic"
	ProgramNonAcademic ProgramClassification = "non_academic"
)

// Program is a top-level curriculum track.
type Program struct {
	ID             string                `db:"id" json:"id"`
	Name           string                `db:"name" json:"name"`
	Classification ProgramClassification `db:"classification" json:"classification"`
	CreatedAt      time.Time             `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time             `db:"updated_at" json:"updated_at"`
}

// curriculumMarkers are name fragments recognised as academic curricula.
// Used only when a program row predates the classification column.
var curriculumMarkers = []string{"cambridge", "national curriculum", "uneb", "igcse"}

// EffectiveClassification returns the stored classification, falling back to
// a name-based heuristic for legacy rows without one. The heuristic is known
// to be fragile for names that contain a marker incidentally; rows should be
// backfilled so the fallback never runs.
func (p Program) EffectiveClassification() ProgramClassification {
	if p.Classification != "" {
		return p.Classification
	}
	lower := strings.ToLower(p.Name)
	for _, marker := range curriculumMarkers {
		if strings.Contains(lower, marker) {
			return ProgramAcademic
		}
	}
	return ProgramNonAcademic
}

// IsAcademic reports whether the program carries levels and offerings.
func (p Program) IsAcademic() bool {
	return p.EffectiveClassification() == ProgramAcademic
}
