package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brightpath-edu/portal-api/internal/models"
	appErrors "github.com/brightpath-edu/portal-api/pkg/errors"
	"github.com/brightpath-edu/portal-api/pkg/storage"
)

type resourceRepository interface {
	List(ctx context.Context, filter models.ResourceFilter) ([]models.Resource, int, error)
	FindByID(ctx context.Context, id string) (*models.Resource, error)
	Upsert(ctx context.Context, resource *models.Resource) error
	Delete(ctx context.Context, id string) error
}

type chainValidator interface {
	Validate(ctx context.Context, record SelectionRecord) (SelectionRecord, error)
}

type resourceFileStore interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (io.ReadCloser, error)
	Delete(filename string) error
}

// ResourceServiceConfig bounds uploaded resource files.
type ResourceServiceConfig struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// ResourceService manages learning resources submitted through the cascade
// form. The selection chain is validated against the live catalogue before
// any write; a failed write leaves the submitted record untouched so the
// caller can correct and resubmit.
type ResourceService struct {
	repo      resourceRepository
	chains    chainValidator
	files     resourceFileStore
	signer    *storage.SignedURLSigner
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ResourceServiceConfig
}

// NewResourceService constructs a ResourceService.
func NewResourceService(repo resourceRepository, chains chainValidator, files resourceFileStore, signer *storage.SignedURLSigner, validate *validator.Validate, logger *zap.Logger, cfg ResourceServiceConfig) *ResourceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSizeBytes <= 0 {
		cfg.MaxFileSizeBytes = 25 * 1024 * 1024
	}
	return &ResourceService{repo: repo, chains: chains, files: files, signer: signer, validator: validate, logger: logger, cfg: cfg}
}

// List returns resources with pagination metadata.
func (s *ResourceService) List(ctx context.Context, filter models.ResourceFilter) ([]models.Resource, *models.Pagination, error) {
	resources, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list resources")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return resources, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a single resource.
func (s *ResourceService) Get(ctx context.Context, id string) (*models.Resource, error) {
	resource, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "resource not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load resource")
	}
	return resource, nil
}

// SubmitResourceRequest is the composite create/update payload.
type SubmitResourceRequest struct {
	ID          string  `json:"id,omitempty"`
	Title       string  `json:"title" validate:"required"`
	Description string  `json:"description"`
	FileURL     string  `json:"file_url"`
	ProgramID   string  `json:"program_id" validate:"required"`
	LevelID     *string `json:"level_id,omitempty"`
	SubjectID   *string `json:"subject_id,omitempty"`
	PaperID     *string `json:"paper_id,omitempty"`
}

// Submit validates the selection chain and upserts the composite record.
func (s *ResourceService) Submit(ctx context.Context, userID string, req SubmitResourceRequest) (*models.Resource, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resource payload")
	}

	record, err := s.chains.Validate(ctx, SelectionRecord{
		ProgramID: req.ProgramID,
		LevelID:   req.LevelID,
		SubjectID: req.SubjectID,
		PaperID:   req.PaperID,
	})
	if err != nil {
		return nil, err
	}

	resource := &models.Resource{
		ID:          req.ID,
		Title:       req.Title,
		Description: req.Description,
		FileURL:     req.FileURL,
		ProgramID:   record.ProgramID,
		LevelID:     record.LevelID,
		SubjectID:   record.SubjectID,
		PaperID:     record.PaperID,
		UploadedBy:  userID,
	}

	if req.ID != "" {
		existing, err := s.repo.FindByID(ctx, req.ID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load resource")
		}
		if existing != nil {
			resource.UploadedBy = existing.UploadedBy
			resource.CreatedAt = existing.CreatedAt
			if resource.FileURL == "" {
				resource.FileURL = existing.FileURL
			}
		}
	}

	if err := s.repo.Upsert(ctx, resource); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save resource")
	}
	return resource, nil
}

// AttachFile stores an uploaded file and points the resource at it.
func (s *ResourceService) AttachFile(ctx context.Context, id, filename, contentType string, data []byte) (*models.Resource, error) {
	if s.files == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "file storage is not configured")
	}
	if int64(len(data)) > s.cfg.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file exceeds the maximum allowed size")
	}
	if len(s.cfg.AllowedMIMEs) > 0 && !contains(s.cfg.AllowedMIMEs, contentType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file type %s is not allowed", contentType))
	}

	resource, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	relPath := filepath.Join(resource.ProgramID, fmt.Sprintf("%s%s", uuid.NewString(), filepath.Ext(filename)))
	stored, err := s.files.Save(relPath, data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
	}

	previous := resource.FileURL
	resource.FileURL = stored
	if err := s.repo.Upsert(ctx, resource); err != nil {
		// Roll back the orphaned file so retries start clean.
		if delErr := s.files.Delete(stored); delErr != nil {
			s.logger.Warn("failed to remove orphaned upload", zap.String("path", stored), zap.Error(delErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save resource")
	}
	if previous != "" && previous != stored {
		if err := s.files.Delete(previous); err != nil {
			s.logger.Warn("failed to remove replaced file", zap.String("path", previous), zap.Error(err))
		}
	}
	return resource, nil
}

// DownloadToken issues a signed download token for the resource's file.
func (s *ResourceService) DownloadToken(ctx context.Context, id string) (string, time.Time, error) {
	if s.signer == nil {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrPreconditionFailed, "downloads are not configured")
	}
	resource, err := s.Get(ctx, id)
	if err != nil {
		return "", time.Time{}, err
	}
	if resource.FileURL == "" {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrNotFound, "resource has no file")
	}
	token, expires, err := s.signer.Generate(resource.ID, resource.FileURL)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download")
	}
	return token, expires, nil
}

// OpenDownload redeems a signed token and streams the referenced file.
// The token is the sole credential; expiry and signature are checked before
// any disk access.
func (s *ResourceService) OpenDownload(id, token string) (io.ReadCloser, string, error) {
	if s.signer == nil || s.files == nil {
		return nil, "", appErrors.Clone(appErrors.ErrPreconditionFailed, "downloads are not configured")
	}
	resourceID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}
	if id != "" && id != resourceID {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "token does not match this resource")
	}
	file, err := s.files.Open(relPath)
	if err != nil {
		s.logger.Warn("stored file missing for download", zap.String("resource_id", resourceID), zap.String("path", relPath), zap.Error(err))
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "file is no longer available")
	}
	return file, filepath.Base(relPath), nil
}

// Delete removes a resource and its stored file.
func (s *ResourceService) Delete(ctx context.Context, id string) error {
	resource, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete resource")
	}
	if s.files != nil && resource.FileURL != "" {
		if err := s.files.Delete(resource.FileURL); err != nil {
			s.logger.Warn("failed to remove resource file", zap.String("path", resource.FileURL), zap.Error(err))
		}
	}
	return nil
}

func contains(values []string, needle string) bool {
	for _, v := range values {
		if v == needle {
			return true
		}
	}
	return false
}
