package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/brightpath-edu/portal-api/internal/models"
	appErrors "github.com/brightpath-edu/portal-api/pkg/errors"
)

// SelectionStage identifies one level of the dependent-selection chain.
type SelectionStage int

const (
	StageProgram SelectionStage = iota
	StageLevel
	StageOffering
	StagePaper

	stageCount = 4
)

// String returns the stage name used in validation messages.
func (s SelectionStage) String() string {
	switch s {
	case StageProgram:
		return "program"
	case StageLevel:
		return "level"
	case StageOffering:
		return "subject"
	case StagePaper:
		return "paper"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// SelectionOption is a single dropdown entry. SubjectID and IsCompulsory are
// populated for offering options only.
type SelectionOption struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	SubjectID    string `json:"subject_id,omitempty"`
	IsCompulsory bool   `json:"is_compulsory,omitempty"`
}

// StageState is the observable state of one stage.
type StageState struct {
	SelectedID string            `json:"selected_id"`
	Options    []SelectionOption `json:"options"`
	Loading    bool              `json:"loading"`
}

// SelectionRecord is the composite chain a form submits or restores from.
type SelectionRecord struct {
	ProgramID string  `json:"program_id"`
	LevelID   *string `json:"level_id,omitempty"`
	SubjectID *string `json:"subject_id,omitempty"`
	PaperID   *string `json:"paper_id,omitempty"`
}

type optionSource interface {
	Programs(ctx context.Context) ([]models.Program, error)
	Levels(ctx context.Context, programID string) ([]models.Level, error)
	OfferingOptions(ctx context.Context, programID, levelID string) ([]models.OfferingOption, error)
	Papers(ctx context.Context, subjectID string) ([]models.Paper, error)
}

// CascadeSelector maintains a consistent {selection, options} pair per stage
// of the program → level → subject-offering → paper chain. Selecting an
// ancestor synchronously clears every descendant stage before the child's
// option reload is issued, and each reload carries the epoch of the stage it
// was issued for: a result arriving after a newer ancestor change is
// discarded instead of clobbering the newer state.
type CascadeSelector struct {
	source optionSource
	logger *zap.Logger

	mu       sync.Mutex
	wg       sync.WaitGroup
	stages   [stageCount]StageState
	epochs   [stageCount]uint64
	programs map[string]models.Program
	restore  *SelectionRecord
}

// NewCascadeSelector constructs a selector over the given option source.
func NewCascadeSelector(source optionSource, logger *zap.Logger) *CascadeSelector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CascadeSelector{
		source:   source,
		logger:   logger,
		programs: make(map[string]models.Program),
	}
}

// Restore arms edit-mode restoration: as each stage's options arrive, the
// matching value from the record is auto-selected, which in turn triggers the
// next stage's reload. Must be called before Init.
func (c *CascadeSelector) Restore(record SelectionRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := record
	c.restore = &rec
}

// Init loads the program options asynchronously.
func (c *CascadeSelector) Init(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.beginLoad(ctx, StageProgram, func(ctx context.Context) ([]SelectionOption, error) {
		programs, err := c.source.Programs(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		for _, p := range programs {
			c.programs[p.ID] = p
		}
		c.mu.Unlock()
		options := make([]SelectionOption, len(programs))
		for i, p := range programs {
			options[i] = SelectionOption{ID: p.ID, Label: p.Name}
		}
		return options, nil
	})
}

// Select sets the stage's selection to id (or clears it when id is empty).
// Every strictly descendant stage is cleared synchronously before the child
// reload is issued. Reselecting the current value re-issues the child reload,
// which doubles as the retry path after a failed fetch.
func (c *CascadeSelector) Select(ctx context.Context, stage SelectionStage, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	// The first manual change ends edit-mode restoration; remembered values
	// must not re-select themselves into a chain the user is now driving.
	c.restore = nil
	return c.selectLocked(ctx, stage, id)
}

func (c *CascadeSelector) selectLocked(ctx context.Context, stage SelectionStage, id string) error {
	if id != "" && c.optionByID(stage, id) == nil {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown %s selection", stage))
	}

	c.stages[stage].SelectedID = id
	for s := stage + 1; s < stageCount; s++ {
		c.stages[s] = StageState{}
		c.epochs[s]++
	}
	if id == "" {
		return nil
	}

	switch stage {
	case StageProgram:
		program, ok := c.programs[id]
		if ok && !program.IsAcademic() {
			// Non-academic programs carry no levels; subjects, when the
			// program exposes any, are keyed by program alone.
			programID := id
			c.beginLoad(ctx, StageOffering, func(ctx context.Context) ([]SelectionOption, error) {
				return c.fetchOfferings(ctx, programID, "")
			})
			return nil
		}
		programID := id
		c.beginLoad(ctx, StageLevel, func(ctx context.Context) ([]SelectionOption, error) {
			levels, err := c.source.Levels(ctx, programID)
			if err != nil {
				return nil, err
			}
			options := make([]SelectionOption, len(levels))
			for i, l := range levels {
				options[i] = SelectionOption{ID: l.ID, Label: l.Name}
			}
			return options, nil
		})
	case StageLevel:
		programID := c.stages[StageProgram].SelectedID
		levelID := id
		c.beginLoad(ctx, StageOffering, func(ctx context.Context) ([]SelectionOption, error) {
			return c.fetchOfferings(ctx, programID, levelID)
		})
	case StageOffering:
		option := c.optionByID(StageOffering, id)
		subjectID := option.SubjectID
		c.beginLoad(ctx, StagePaper, func(ctx context.Context) ([]SelectionOption, error) {
			papers, err := c.source.Papers(ctx, subjectID)
			if err != nil {
				return nil, err
			}
			options := make([]SelectionOption, len(papers))
			for i, p := range papers {
				options[i] = SelectionOption{ID: p.ID, Label: fmt.Sprintf("%s - %s", p.Code, p.Name)}
			}
			return options, nil
		})
	case StagePaper:
		// Leaf stage, nothing to reload.
	}
	return nil
}

func (c *CascadeSelector) fetchOfferings(ctx context.Context, programID, levelID string) ([]SelectionOption, error) {
	offerings, err := c.source.OfferingOptions(ctx, programID, levelID)
	if err != nil {
		return nil, err
	}
	options := make([]SelectionOption, len(offerings))
	for i, off := range offerings {
		options[i] = SelectionOption{
			ID:           off.ID,
			Label:        off.SubjectName,
			SubjectID:    off.SubjectID,
			IsCompulsory: off.IsCompulsory,
		}
	}
	return options, nil
}

// beginLoad issues an asynchronous option reload for the stage. The caller
// must hold c.mu. The captured epoch makes the result discardable: if any
// ancestor change bumps the stage's epoch while the fetch is in flight, the
// arriving result no longer matches and is dropped.
func (c *CascadeSelector) beginLoad(ctx context.Context, stage SelectionStage, fetch func(context.Context) ([]SelectionOption, error)) {
	c.stages[stage].Loading = true
	epoch := c.epochs[stage]

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		options, err := fetch(ctx)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.epochs[stage] != epoch {
			c.logger.Debug("discarding stale option load", zap.Stringer("stage", stage))
			return
		}
		c.stages[stage].Loading = false
		if err != nil {
			// Non-fatal: the stage presents an empty list and the rest of
			// the chain stays usable. Reselecting the ancestor retries.
			c.stages[stage].Options = nil
			c.logger.Warn("failed to load selection options", zap.Stringer("stage", stage), zap.Error(err))
			return
		}
		c.stages[stage].Options = options
		c.applyRestoreLocked(ctx, stage)
	}()
}

// applyRestoreLocked advances edit-mode restoration once a stage's options
// have arrived, selecting the remembered value when it is present.
func (c *CascadeSelector) applyRestoreLocked(ctx context.Context, stage SelectionStage) {
	if c.restore == nil {
		return
	}
	var want string
	switch stage {
	case StageProgram:
		want = c.restore.ProgramID
	case StageLevel:
		if c.restore.LevelID != nil {
			want = *c.restore.LevelID
		}
	case StageOffering:
		// The record stores the subject, not the offering row; match the
		// offering whose subject id equals the remembered subject.
		if c.restore.SubjectID != nil {
			for _, opt := range c.stages[StageOffering].Options {
				if opt.SubjectID == *c.restore.SubjectID {
					want = opt.ID
					break
				}
			}
		}
	case StagePaper:
		if c.restore.PaperID != nil {
			want = *c.restore.PaperID
		}
	}
	if want == "" {
		// Nothing further to replay; the chain is now the user's.
		c.restore = nil
		return
	}
	if err := c.selectLocked(ctx, stage, want); err != nil {
		c.logger.Warn("failed to restore selection",
			zap.Stringer("stage", stage),
			zap.String("id", want),
			zap.Error(err))
		c.restore = nil
		return
	}
	if stage == StagePaper {
		c.restore = nil
	}
}

// Wait blocks until every in-flight option load (including loads chained by
// restoration) has completed or been discarded.
func (c *CascadeSelector) Wait() {
	c.wg.Wait()
}

// State returns a copy of all stage states.
func (c *CascadeSelector) State() [stageCount]StageState {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out [stageCount]StageState
	for i, st := range c.stages {
		cp := st
		cp.Options = append([]SelectionOption(nil), st.Options...)
		out[i] = cp
	}
	return out
}

// BuildSubmission validates the chain and returns the composite record.
// Required fields are reported in chain order: program, then level, then
// subject. Paper is never required. Non-academic programs skip level
// entirely and require a subject only when the program exposes offerings.
func (c *CascadeSelector) BuildSubmission() (SelectionRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	programID := c.stages[StageProgram].SelectedID
	if programID == "" {
		return SelectionRecord{}, appErrors.Clone(appErrors.ErrValidation, "program is required")
	}

	program, ok := c.programs[programID]
	academic := ok && program.IsAcademic()

	record := SelectionRecord{ProgramID: programID}

	if academic {
		levelID := c.stages[StageLevel].SelectedID
		if levelID == "" {
			return SelectionRecord{}, appErrors.Clone(appErrors.ErrValidation, "level is required")
		}
		record.LevelID = &levelID
	}

	offeringID := c.stages[StageOffering].SelectedID
	if offeringID == "" {
		if academic {
			return SelectionRecord{}, appErrors.Clone(appErrors.ErrValidation, "subject is required")
		}
		if len(c.stages[StageOffering].Options) > 0 {
			return SelectionRecord{}, appErrors.Clone(appErrors.ErrValidation, "subject is required")
		}
	} else {
		option := c.optionByID(StageOffering, offeringID)
		if option == nil {
			return SelectionRecord{}, appErrors.Clone(appErrors.ErrValidation, "subject is required")
		}
		subjectID := option.SubjectID
		record.SubjectID = &subjectID
	}

	if paperID := c.stages[StagePaper].SelectedID; paperID != "" {
		id := paperID
		record.PaperID = &id
	}

	return record, nil
}

func (c *CascadeSelector) optionByID(stage SelectionStage, id string) *SelectionOption {
	for i := range c.stages[stage].Options {
		if c.stages[stage].Options[i].ID == id {
			return &c.stages[stage].Options[i]
		}
	}
	return nil
}
