package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightpath-edu/portal-api/internal/models"
)

func newResourceRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestResourceRepositoryUpsertInsertsNewRecord(t *testing.T) {
	db, mock, cleanup := newResourceRepoMock(t)
	defer cleanup()
	repo := NewResourceRepository(db)

	mock.ExpectExec("INSERT INTO resources").
		WillReturnResult(sqlmock.NewResult(1, 1))

	levelID := "lvl-1"
	subjectID := "sub-1"
	resource := &models.Resource{
		Title:      "Trig notes",
		FileURL:    "resources/trig.pdf",
		ProgramID:  "prog-1",
		LevelID:    &levelID,
		SubjectID:  &subjectID,
		UploadedBy: "user-1",
	}
	require.NoError(t, repo.Upsert(context.Background(), resource))
	assert.NotEmpty(t, resource.ID)
	assert.False(t, resource.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResourceRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newResourceRepoMock(t)
	defer cleanup()
	repo := NewResourceRepository(db)

	rows := sqlmock.NewRows([]string{"id", "title", "description", "file_url", "program_id", "level_id", "subject_id", "paper_id", "uploaded_by", "created_at", "updated_at"}).
		AddRow("res-1", "Trig notes", "", "resources/trig.pdf", "prog-1", "lvl-1", "sub-1", nil, "user-1", time.Now(), time.Now())

	mock.ExpectQuery("FROM resources WHERE 1=1 AND program_id = \\$1 AND subject_id = \\$2 ORDER BY created_at DESC").
		WithArgs("prog-1", "sub-1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM resources WHERE 1=1 AND program_id = $1 AND subject_id = $2")).
		WithArgs("prog-1", "sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	resources, total, err := repo.List(context.Background(), models.ResourceFilter{ProgramID: "prog-1", SubjectID: "sub-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, resources, 1)
	assert.Nil(t, resources[0].PaperID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
