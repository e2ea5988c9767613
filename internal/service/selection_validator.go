package service

import (
	"context"

	"go.uber.org/zap"

	appErrors "github.com/brightpath-edu/portal-api/pkg/errors"
)

// SelectionValidator replays a submitted program/level/subject/paper chain
// through the cascade before anything is written. A chain a client assembled
// against stale options (a level moved to another program, a paper detached
// from its subject) fails here instead of landing in the table.
type SelectionValidator struct {
	source optionSource
	logger *zap.Logger
}

// NewSelectionValidator constructs a validator over the option source.
func NewSelectionValidator(source optionSource, logger *zap.Logger) *SelectionValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SelectionValidator{source: source, logger: logger}
}

// Validate restores a selector from the record, waits for the chained
// reloads, and checks that every submitted id survived restoration. The
// returned record is the normalized chain to persist.
func (v *SelectionValidator) Validate(ctx context.Context, record SelectionRecord) (SelectionRecord, error) {
	selector := NewCascadeSelector(v.source, v.logger)
	selector.Restore(record)
	selector.Init(ctx)
	selector.Wait()

	built, err := selector.BuildSubmission()
	if err != nil {
		return SelectionRecord{}, err
	}

	if record.LevelID != nil && !equalPtr(record.LevelID, built.LevelID) {
		return SelectionRecord{}, appErrors.Clone(appErrors.ErrStaleSelection, "level does not belong to the selected program")
	}
	if record.SubjectID != nil && !equalPtr(record.SubjectID, built.SubjectID) {
		return SelectionRecord{}, appErrors.Clone(appErrors.ErrStaleSelection, "subject is not offered in the selected program and level")
	}
	if record.PaperID != nil && !equalPtr(record.PaperID, built.PaperID) {
		return SelectionRecord{}, appErrors.Clone(appErrors.ErrStaleSelection, "paper does not belong to the selected subject")
	}

	return built, nil
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
