package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightpath-edu/portal-api/internal/models"
	"github.com/brightpath-edu/portal-api/internal/service"
	appErrors "github.com/brightpath-edu/portal-api/pkg/errors"
)

type fakeCurriculumSrv struct {
	options    []models.OfferingOption
	optionsErr error
	lastLevel  string
}

func (f *fakeCurriculumSrv) Programs(context.Context) ([]models.Program, error) {
	return []models.Program{{ID: "prog-cam", Name: "Cambridge Secondary"}}, nil
}

func (f *fakeCurriculumSrv) Levels(context.Context, string) ([]models.Level, error) {
	return nil, nil
}

func (f *fakeCurriculumSrv) OfferingOptions(_ context.Context, programID, levelID string) ([]models.OfferingOption, error) {
	f.lastLevel = levelID
	return f.options, f.optionsErr
}

func (f *fakeCurriculumSrv) Papers(context.Context, string) ([]models.Paper, error) {
	return nil, nil
}

func (f *fakeCurriculumSrv) CreateProgram(_ context.Context, req service.CreateProgramRequest) (*models.Program, error) {
	return &models.Program{ID: "new-program", Name: req.Name, Classification: req.Classification}, nil
}

func (f *fakeCurriculumSrv) CreateLevel(context.Context, service.CreateLevelRequest) (*models.Level, error) {
	return &models.Level{ID: "new-level"}, nil
}

func (f *fakeCurriculumSrv) CreateOffering(context.Context, service.CreateOfferingRequest) (*models.SubjectOffering, error) {
	return &models.SubjectOffering{ID: "new-offering"}, nil
}

func (f *fakeCurriculumSrv) CreatePaper(context.Context, service.CreatePaperRequest) (*models.Paper, error) {
	return &models.Paper{ID: "new-paper"}, nil
}

type fakeSelectionSrv struct {
	err    error
	record service.SelectionRecord
}

func (f *fakeSelectionSrv) Validate(_ context.Context, record service.SelectionRecord) (service.SelectionRecord, error) {
	if f.err != nil {
		return service.SelectionRecord{}, f.err
	}
	f.record = record
	return record, nil
}

func TestCurriculumHandlerOfferingOptionsPassesLevelQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeCurriculumSrv{options: []models.OfferingOption{{ID: "off-math", SubjectName: "Mathematics"}}}
	handler := NewCurriculumHandler(srv, &fakeSelectionSrv{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/curriculum/programs/prog-cam/offerings?levelId=lvl-s1", nil)
	c.Params = gin.Params{{Key: "programId", Value: "prog-cam"}}

	handler.OfferingOptions(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "lvl-s1", srv.lastLevel)
}

func TestCurriculumHandlerValidateSelectionStaleConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewCurriculumHandler(&fakeCurriculumSrv{}, &fakeSelectionSrv{
		err: appErrors.Clone(appErrors.ErrStaleSelection, "paper does not belong to the selected subject"),
	})

	body := `{"program_id":"prog-cam","level_id":"lvl-s1","subject_id":"sub-math","paper_id":"pap-gone"}`
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/curriculum/selection/validate", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.ValidateSelection(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "STALE_SELECTION", envelope.Error["code"])
}

func TestCurriculumHandlerValidateSelectionOK(t *testing.T) {
	gin.SetMode(gin.TestMode)
	selections := &fakeSelectionSrv{}
	handler := NewCurriculumHandler(&fakeCurriculumSrv{}, selections)

	body := `{"program_id":"prog-life","subject_id":"sub-cook"}`
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/curriculum/selection/validate", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.ValidateSelection(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "prog-life", selections.record.ProgramID)
}

func TestCurriculumHandlerCreateProgram(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewCurriculumHandler(&fakeCurriculumSrv{}, &fakeSelectionSrv{})

	body := `{"name":"Adult Literacy","classification":"non_academic"}`
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/curriculum/programs", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.CreateProgram(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
}

type responseEnvelope struct {
	Data  map[string]interface{} `json:"data"`
	Error map[string]interface{} `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}
