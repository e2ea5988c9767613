package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightpath-edu/portal-api/internal/models"
	appErrors "github.com/brightpath-edu/portal-api/pkg/errors"
)

type fakeOptionSource struct {
	mu        sync.Mutex
	programs  []models.Program
	levels    map[string][]models.Level
	offerings map[string][]models.OfferingOption
	papers    map[string][]models.Paper

	// When set, OfferingOptions blocks until the channel is closed.
	offeringsGate chan struct{}

	levelsErr error
}

func offeringKey(programID, levelID string) string {
	return fmt.Sprintf("%s|%s", programID, levelID)
}

func (f *fakeOptionSource) Programs(ctx context.Context) ([]models.Program, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.programs, nil
}

func (f *fakeOptionSource) Levels(ctx context.Context, programID string) ([]models.Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.levelsErr != nil {
		return nil, f.levelsErr
	}
	return f.levels[programID], nil
}

func (f *fakeOptionSource) OfferingOptions(ctx context.Context, programID, levelID string) ([]models.OfferingOption, error) {
	f.mu.Lock()
	gate := f.offeringsGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offerings[offeringKey(programID, levelID)], nil
}

func (f *fakeOptionSource) Papers(ctx context.Context, subjectID string) ([]models.Paper, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.papers[subjectID], nil
}

func newCurriculumFixture() *fakeOptionSource {
	return &fakeOptionSource{
		programs: []models.Program{
			{ID: "prog-cam", Name: "Cambridge Secondary", Classification: models.ProgramAcademic},
			{ID: "prog-life", Name: "Life Skills", Classification: models.ProgramNonAcademic},
		},
		levels: map[string][]models.Level{
			"prog-cam": {
				{ID: "lvl-s1", Name: "Senior 1", ProgramID: "prog-cam"},
				{ID: "lvl-s2", Name: "Senior 2", ProgramID: "prog-cam"},
			},
		},
		offerings: map[string][]models.OfferingOption{
			offeringKey("prog-cam", "lvl-s1"): {
				{ID: "off-math-s1", SubjectID: "sub-math", SubjectName: "Mathematics", IsCompulsory: true},
				{ID: "off-art-s1", SubjectID: "sub-art", SubjectName: "Fine Art"},
			},
			offeringKey("prog-cam", "lvl-s2"): {
				{ID: "off-phy-s2", SubjectID: "sub-phy", SubjectName: "Physics"},
			},
			offeringKey("prog-life", ""): {
				{ID: "off-cook", SubjectID: "sub-cook", SubjectName: "Cookery"},
			},
		},
		papers: map[string][]models.Paper{
			"sub-math": {
				{ID: "pap-m1", SubjectID: "sub-math", Code: "P1", Name: "Pure"},
				{ID: "pap-m2", SubjectID: "sub-math", Code: "P2", Name: "Mechanics"},
			},
		},
	}
}

func TestCascadeSelectorAncestorChangeClearsDescendants(t *testing.T) {
	source := newCurriculumFixture()
	selector := NewCascadeSelector(source, nil)
	ctx := context.Background()

	selector.Init(ctx)
	selector.Wait()

	require.NoError(t, selector.Select(ctx, StageProgram, "prog-cam"))
	selector.Wait()
	require.NoError(t, selector.Select(ctx, StageLevel, "lvl-s1"))
	selector.Wait()
	require.NoError(t, selector.Select(ctx, StageOffering, "off-math-s1"))
	selector.Wait()
	require.NoError(t, selector.Select(ctx, StagePaper, "pap-m1"))

	state := selector.State()
	require.Equal(t, "pap-m1", state[StagePaper].SelectedID)

	// Changing the level must clear subject and paper before any reload lands.
	source.mu.Lock()
	source.offeringsGate = make(chan struct{})
	source.mu.Unlock()

	require.NoError(t, selector.Select(ctx, StageLevel, "lvl-s2"))

	state = selector.State()
	assert.Equal(t, "lvl-s2", state[StageLevel].SelectedID)
	assert.Empty(t, state[StageOffering].SelectedID)
	assert.Empty(t, state[StageOffering].Options)
	assert.True(t, state[StageOffering].Loading)
	assert.Empty(t, state[StagePaper].SelectedID)
	assert.Empty(t, state[StagePaper].Options)

	source.mu.Lock()
	close(source.offeringsGate)
	source.offeringsGate = nil
	source.mu.Unlock()
	selector.Wait()

	state = selector.State()
	require.Len(t, state[StageOffering].Options, 1)
	assert.Equal(t, "off-phy-s2", state[StageOffering].Options[0].ID)
}

func TestCascadeSelectorDiscardsStaleOptionLoad(t *testing.T) {
	source := newCurriculumFixture()
	selector := NewCascadeSelector(source, nil)
	ctx := context.Background()

	selector.Init(ctx)
	selector.Wait()
	require.NoError(t, selector.Select(ctx, StageProgram, "prog-cam"))
	selector.Wait()

	// Hold both offering fetches in flight, then release them together. The
	// fetch issued for Senior 1 carries a superseded epoch and must be dropped
	// no matter which goroutine finishes first.
	gate := make(chan struct{})
	source.mu.Lock()
	source.offeringsGate = gate
	source.mu.Unlock()

	require.NoError(t, selector.Select(ctx, StageLevel, "lvl-s1"))
	require.NoError(t, selector.Select(ctx, StageLevel, "lvl-s2"))

	close(gate)
	selector.Wait()

	state := selector.State()
	require.Len(t, state[StageOffering].Options, 1)
	assert.Equal(t, "off-phy-s2", state[StageOffering].Options[0].ID)
	assert.False(t, state[StageOffering].Loading)
}

func TestCascadeSelectorNonAcademicSkipsLevels(t *testing.T) {
	source := newCurriculumFixture()
	selector := NewCascadeSelector(source, nil)
	ctx := context.Background()

	selector.Init(ctx)
	selector.Wait()
	require.NoError(t, selector.Select(ctx, StageProgram, "prog-life"))
	selector.Wait()

	state := selector.State()
	assert.Empty(t, state[StageLevel].SelectedID)
	assert.Empty(t, state[StageLevel].Options)
	require.Len(t, state[StageOffering].Options, 1)
	assert.Equal(t, "off-cook", state[StageOffering].Options[0].ID)

	require.NoError(t, selector.Select(ctx, StageOffering, "off-cook"))
	selector.Wait()

	record, err := selector.BuildSubmission()
	require.NoError(t, err)
	assert.Equal(t, "prog-life", record.ProgramID)
	assert.Nil(t, record.LevelID)
	require.NotNil(t, record.SubjectID)
	assert.Equal(t, "sub-cook", *record.SubjectID)
}

func TestCascadeSelectorClassificationFallsBackToName(t *testing.T) {
	source := newCurriculumFixture()
	// Legacy row without a stored classification still cascades as academic
	// because its name carries a recognised curriculum marker.
	source.programs = append(source.programs, models.Program{ID: "prog-legacy", Name: "UNEB Track"})
	source.levels["prog-legacy"] = []models.Level{{ID: "lvl-p7", Name: "Primary 7", ProgramID: "prog-legacy"}}

	selector := NewCascadeSelector(source, nil)
	ctx := context.Background()
	selector.Init(ctx)
	selector.Wait()

	require.NoError(t, selector.Select(ctx, StageProgram, "prog-legacy"))
	selector.Wait()

	state := selector.State()
	require.Len(t, state[StageLevel].Options, 1)
	assert.Equal(t, "lvl-p7", state[StageLevel].Options[0].ID)
}

func TestCascadeSelectorRestoreReplaysChain(t *testing.T) {
	source := newCurriculumFixture()
	selector := NewCascadeSelector(source, nil)
	ctx := context.Background()

	levelID := "lvl-s1"
	subjectID := "sub-math"
	paperID := "pap-m2"
	selector.Restore(SelectionRecord{
		ProgramID: "prog-cam",
		LevelID:   &levelID,
		SubjectID: &subjectID,
		PaperID:   &paperID,
	})
	selector.Init(ctx)
	selector.Wait()

	state := selector.State()
	assert.Equal(t, "prog-cam", state[StageProgram].SelectedID)
	assert.Equal(t, "lvl-s1", state[StageLevel].SelectedID)
	assert.Equal(t, "off-math-s1", state[StageOffering].SelectedID)
	assert.Equal(t, "pap-m2", state[StagePaper].SelectedID)

	record, err := selector.BuildSubmission()
	require.NoError(t, err)
	assert.Equal(t, "prog-cam", record.ProgramID)
	require.NotNil(t, record.LevelID)
	assert.Equal(t, "lvl-s1", *record.LevelID)
	require.NotNil(t, record.SubjectID)
	assert.Equal(t, "sub-math", *record.SubjectID)
	require.NotNil(t, record.PaperID)
	assert.Equal(t, "pap-m2", *record.PaperID)
}

func TestCascadeSelectorRestoreSurvivesMovedLevel(t *testing.T) {
	source := newCurriculumFixture()
	selector := NewCascadeSelector(source, nil)
	ctx := context.Background()

	// The remembered level no longer exists under the program; restoration
	// stops at the program stage instead of selecting a phantom value.
	levelID := "lvl-gone"
	selector.Restore(SelectionRecord{ProgramID: "prog-cam", LevelID: &levelID})
	selector.Init(ctx)
	selector.Wait()

	state := selector.State()
	assert.Equal(t, "prog-cam", state[StageProgram].SelectedID)
	assert.Empty(t, state[StageLevel].SelectedID)
}

func TestCascadeSelectorRejectsUnknownSelection(t *testing.T) {
	source := newCurriculumFixture()
	selector := NewCascadeSelector(source, nil)
	ctx := context.Background()
	selector.Init(ctx)
	selector.Wait()

	err := selector.Select(ctx, StageProgram, "prog-nope")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestCascadeSelectorFailedLoadLeavesStageEmpty(t *testing.T) {
	source := newCurriculumFixture()
	source.levelsErr = errors.New("catalogue unavailable")
	selector := NewCascadeSelector(source, nil)
	ctx := context.Background()
	selector.Init(ctx)
	selector.Wait()

	require.NoError(t, selector.Select(ctx, StageProgram, "prog-cam"))
	selector.Wait()

	state := selector.State()
	assert.Empty(t, state[StageLevel].Options)
	assert.False(t, state[StageLevel].Loading)

	// Reselecting the program retries the fetch.
	source.mu.Lock()
	source.levelsErr = nil
	source.mu.Unlock()
	require.NoError(t, selector.Select(ctx, StageProgram, "prog-cam"))
	selector.Wait()

	state = selector.State()
	assert.Len(t, state[StageLevel].Options, 2)
}

func TestBuildSubmissionRequiredFieldOrder(t *testing.T) {
	source := newCurriculumFixture()
	ctx := context.Background()

	selector := NewCascadeSelector(source, nil)
	selector.Init(ctx)
	selector.Wait()

	_, err := selector.BuildSubmission()
	require.EqualError(t, err, "program is required")

	require.NoError(t, selector.Select(ctx, StageProgram, "prog-cam"))
	selector.Wait()
	_, err = selector.BuildSubmission()
	require.EqualError(t, err, "level is required")

	require.NoError(t, selector.Select(ctx, StageLevel, "lvl-s1"))
	selector.Wait()
	_, err = selector.BuildSubmission()
	require.EqualError(t, err, "subject is required")

	require.NoError(t, selector.Select(ctx, StageOffering, "off-math-s1"))
	selector.Wait()

	// Paper is never required.
	record, err := selector.BuildSubmission()
	require.NoError(t, err)
	assert.Nil(t, record.PaperID)
}

func TestBuildSubmissionNonAcademicSubjectOptional(t *testing.T) {
	source := newCurriculumFixture()
	delete(source.offerings, offeringKey("prog-life", ""))
	ctx := context.Background()

	selector := NewCascadeSelector(source, nil)
	selector.Init(ctx)
	selector.Wait()
	require.NoError(t, selector.Select(ctx, StageProgram, "prog-life"))
	selector.Wait()

	// No offerings exposed: the program alone is a complete submission.
	record, err := selector.BuildSubmission()
	require.NoError(t, err)
	assert.Equal(t, "prog-life", record.ProgramID)
	assert.Nil(t, record.LevelID)
	assert.Nil(t, record.SubjectID)
}

func TestCascadeSelectorManualChangeEndsRestoration(t *testing.T) {
	source := newCurriculumFixture()
	selector := NewCascadeSelector(source, nil)
	ctx := context.Background()

	levelID := "lvl-s1"
	subjectID := "sub-math"
	selector.Restore(SelectionRecord{
		ProgramID: "prog-cam",
		LevelID:   &levelID,
		SubjectID: &subjectID,
	})
	selector.Init(ctx)
	selector.Wait()

	// Reselecting the program by hand clears the descendants; the remembered
	// level must not re-select itself when the fresh options arrive.
	require.NoError(t, selector.Select(ctx, StageProgram, "prog-cam"))
	selector.Wait()

	state := selector.State()
	assert.Equal(t, "prog-cam", state[StageProgram].SelectedID)
	assert.NotEmpty(t, state[StageLevel].Options)
	assert.Empty(t, state[StageLevel].SelectedID)
	assert.Empty(t, state[StageOffering].SelectedID)
	assert.Empty(t, state[StagePaper].SelectedID)
}
