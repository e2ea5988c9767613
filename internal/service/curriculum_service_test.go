package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightpath-edu/portal-api/internal/models"
	appErrors "github.com/brightpath-edu/portal-api/pkg/errors"
)

type fakeCurriculumRepo struct {
	programs  []models.Program
	levels    map[string][]models.Level
	offerings map[string][]models.SubjectOffering
	subjects  map[string]models.Subject
	papers    map[string][]models.Paper
	exists    bool

	listOfferingsCalls int
}

func (f *fakeCurriculumRepo) ListPrograms(ctx context.Context) ([]models.Program, error) {
	return f.programs, nil
}

func (f *fakeCurriculumRepo) FindProgramByID(ctx context.Context, id string) (*models.Program, error) {
	for _, p := range f.programs {
		if p.ID == id {
			copied := p
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCurriculumRepo) ListLevelsByProgram(ctx context.Context, programID string) ([]models.Level, error) {
	return f.levels[programID], nil
}

func (f *fakeCurriculumRepo) ListOfferings(ctx context.Context, programID, levelID string) ([]models.SubjectOffering, error) {
	f.listOfferingsCalls++
	return f.offerings[offeringKey(programID, levelID)], nil
}

func (f *fakeCurriculumRepo) ListOfferingsByProgram(ctx context.Context, programID string) ([]models.SubjectOffering, error) {
	f.listOfferingsCalls++
	return f.offerings[offeringKey(programID, "")], nil
}

func (f *fakeCurriculumRepo) ResolveSubjects(ctx context.Context, ids []string) ([]models.Subject, error) {
	out := make([]models.Subject, 0, len(ids))
	for _, id := range ids {
		if sub, ok := f.subjects[id]; ok {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (f *fakeCurriculumRepo) ListPapersBySubject(ctx context.Context, subjectID string) ([]models.Paper, error) {
	return f.papers[subjectID], nil
}

func (f *fakeCurriculumRepo) CreateProgram(ctx context.Context, program *models.Program) error {
	program.ID = "new-program"
	f.programs = append(f.programs, *program)
	return nil
}

func (f *fakeCurriculumRepo) CreateLevel(ctx context.Context, level *models.Level) error {
	level.ID = "new-level"
	return nil
}

func (f *fakeCurriculumRepo) CreateOffering(ctx context.Context, offering *models.SubjectOffering) error {
	offering.ID = "new-offering"
	return nil
}

func (f *fakeCurriculumRepo) CreatePaper(ctx context.Context, paper *models.Paper) error {
	paper.ID = "new-paper"
	return nil
}

func (f *fakeCurriculumRepo) OfferingExists(ctx context.Context, subjectID, programID string, levelID *string) (bool, error) {
	return f.exists, nil
}

// memoryCacheRepo is an in-process CacheRepository for tests.
type memoryCacheRepo struct {
	entries map[string][]byte
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{entries: make(map[string][]byte)}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	for key := range m.entries {
		if matchPattern(pattern, key) {
			delete(m.entries, key)
		}
	}
	return nil
}

func matchPattern(pattern, key string) bool {
	if len(pattern) > 0 && pattern[len(pattern)-1] == '*' {
		prefix := pattern[:len(pattern)-1]
		return len(key) >= len(prefix) && key[:len(prefix)] == prefix
	}
	return pattern == key
}

func newCurriculumRepoFixture() *fakeCurriculumRepo {
	lvl := "lvl-s1"
	return &fakeCurriculumRepo{
		programs: []models.Program{
			{ID: "prog-cam", Name: "Cambridge Secondary", Classification: models.ProgramAcademic},
			{ID: "prog-life", Name: "Life Skills", Classification: models.ProgramNonAcademic},
		},
		levels: map[string][]models.Level{
			"prog-cam": {{ID: "lvl-s1", Name: "Senior 1", ProgramID: "prog-cam"}},
		},
		offerings: map[string][]models.SubjectOffering{
			offeringKey("prog-cam", "lvl-s1"): {
				{ID: "off-art", SubjectID: "sub-art", ProgramID: "prog-cam", LevelID: &lvl},
				{ID: "off-math", SubjectID: "sub-math", ProgramID: "prog-cam", LevelID: &lvl, IsCompulsory: true},
				{ID: "off-ghost", SubjectID: "sub-ghost", ProgramID: "prog-cam", LevelID: &lvl},
			},
		},
		subjects: map[string]models.Subject{
			"sub-art":  {ID: "sub-art", Name: "Fine Art"},
			"sub-math": {ID: "sub-math", Name: "Mathematics"},
		},
		papers: map[string][]models.Paper{
			"sub-math": {{ID: "pap-m1", SubjectID: "sub-math", Code: "P1", Name: "Pure"}},
		},
	}
}

func TestOfferingOptionsJoinsSortsAndSkipsUnknownSubjects(t *testing.T) {
	repo := newCurriculumRepoFixture()
	svc := NewCurriculumService(repo, nil, nil, nil, CurriculumServiceConfig{})

	options, err := svc.OfferingOptions(context.Background(), "prog-cam", "lvl-s1")
	require.NoError(t, err)

	// The offering referencing an unknown subject is dropped; compulsory
	// subjects sort first.
	require.Len(t, options, 2)
	assert.Equal(t, "off-math", options[0].ID)
	assert.Equal(t, "Mathematics", options[0].SubjectName)
	assert.True(t, options[0].IsCompulsory)
	assert.Equal(t, "off-art", options[1].ID)
}

func TestOfferingOptionsServedFromCacheOnRepeat(t *testing.T) {
	repo := newCurriculumRepoFixture()
	cache := NewCacheService(newMemoryCacheRepo(), nil, time.Minute, nil, true)
	svc := NewCurriculumService(repo, cache, nil, nil, CurriculumServiceConfig{CacheTTL: time.Minute})
	ctx := context.Background()

	first, err := svc.OfferingOptions(ctx, "prog-cam", "lvl-s1")
	require.NoError(t, err)
	second, err := svc.OfferingOptions(ctx, "prog-cam", "lvl-s1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.listOfferingsCalls)
}

func TestCreateLevelRejectsNonAcademicProgram(t *testing.T) {
	repo := newCurriculumRepoFixture()
	svc := NewCurriculumService(repo, nil, nil, nil, CurriculumServiceConfig{})

	_, err := svc.CreateLevel(context.Background(), CreateLevelRequest{
		Name:      "Stage 1",
		ProgramID: "prog-life",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestCreateOfferingLevelRules(t *testing.T) {
	repo := newCurriculumRepoFixture()
	svc := NewCurriculumService(repo, nil, nil, nil, CurriculumServiceConfig{})
	ctx := context.Background()
	lvl := "lvl-s1"

	_, err := svc.CreateOffering(ctx, CreateOfferingRequest{
		SubjectID: "sub-math",
		ProgramID: "prog-cam",
	})
	require.EqualError(t, err, "level_id is required for academic programs")

	_, err = svc.CreateOffering(ctx, CreateOfferingRequest{
		SubjectID: "sub-cook",
		ProgramID: "prog-life",
		LevelID:   &lvl,
	})
	require.EqualError(t, err, "level_id must be empty for non-academic programs")

	offering, err := svc.CreateOffering(ctx, CreateOfferingRequest{
		SubjectID: "sub-cook",
		ProgramID: "prog-life",
	})
	require.NoError(t, err)
	assert.Nil(t, offering.LevelID)
}

func TestCreateOfferingRejectsDuplicates(t *testing.T) {
	repo := newCurriculumRepoFixture()
	repo.exists = true
	svc := NewCurriculumService(repo, nil, nil, nil, CurriculumServiceConfig{})
	lvl := "lvl-s1"

	_, err := svc.CreateOffering(context.Background(), CreateOfferingRequest{
		SubjectID: "sub-math",
		ProgramID: "prog-cam",
		LevelID:   &lvl,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCreateProgramInvalidatesCachedPrograms(t *testing.T) {
	repo := newCurriculumRepoFixture()
	memCache := newMemoryCacheRepo()
	cache := NewCacheService(memCache, nil, time.Minute, nil, true)
	svc := NewCurriculumService(repo, cache, nil, nil, CurriculumServiceConfig{CacheTTL: time.Minute})
	ctx := context.Background()

	_, err := svc.Programs(ctx)
	require.NoError(t, err)
	require.Contains(t, memCache.entries, "curriculum:programs")

	_, err = svc.CreateProgram(ctx, CreateProgramRequest{
		Name:           "Adult Literacy",
		Classification: models.ProgramNonAcademic,
	})
	require.NoError(t, err)
	assert.NotContains(t, memCache.entries, "curriculum:programs")

	programs, err := svc.Programs(ctx)
	require.NoError(t, err)
	assert.Len(t, programs, 3)
}
