package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brightpath-edu/portal-api/internal/models"
	appErrors "github.com/brightpath-edu/portal-api/pkg/errors"
	"github.com/brightpath-edu/portal-api/pkg/export"
	"github.com/brightpath-edu/portal-api/pkg/jobs"
)

// ExportFormat selects the rendered output type.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportStatus tracks an export job through its lifecycle.
type ExportStatus string

const (
	ExportPending   ExportStatus = "pending"
	ExportCompleted ExportStatus = "completed"
	ExportFailed    ExportStatus = "failed"
)

// ExportRecord is the caller-visible state of a requested export.
type ExportRecord struct {
	ID          string       `json:"id"`
	Format      ExportFormat `json:"format"`
	Status      ExportStatus `json:"status"`
	FilePath    string       `json:"file_path,omitempty"`
	Error       string       `json:"error,omitempty"`
	RequestedAt time.Time    `json:"requested_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

type exportSessionSource interface {
	List(ctx context.Context, filter models.LiveSessionFilter) ([]models.LiveSession, int, error)
}

type exportFileStore interface {
	Save(filename string, data []byte) (string, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportServiceConfig tunes export generation.
type ExportServiceConfig struct {
	Workers   int
	ResultTTL time.Duration
}

// ExportService renders class timetables to CSV or PDF in the background.
// Requests are enqueued onto a worker pool and polled by id; finished results
// are kept in memory for ResultTTL and then dropped.
type ExportService struct {
	sessions exportSessionSource
	files    exportFileStore
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	queue    *jobs.Queue
	logger   *zap.Logger
	now      func() time.Time
	cfg      ExportServiceConfig

	mu      sync.Mutex
	records map[string]*ExportRecord
}

// NewExportService constructs an ExportService. Start must be called before
// exports can be requested.
func NewExportService(sessions exportSessionSource, files exportFileStore, logger *zap.Logger, cfg ExportServiceConfig) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = time.Hour
	}
	s := &ExportService{
		sessions: sessions,
		files:    files,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		logger:   logger,
		now:      time.Now,
		cfg:      cfg,
		records:  make(map[string]*ExportRecord),
	}
	s.queue = jobs.NewQueue("timetable-export", s.process, jobs.QueueConfig{
		Workers: cfg.Workers,
		Logger:  logger,
	})
	return s
}

// Start brings up the export workers.
func (s *ExportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the export workers.
func (s *ExportService) Stop() {
	s.queue.Stop()
}

type exportPayload struct {
	Format ExportFormat
	Filter models.LiveSessionFilter
}

// Request enqueues a timetable export and returns its tracking record.
func (s *ExportService) Request(format ExportFormat, filter models.LiveSessionFilter) (*ExportRecord, error) {
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	record := &ExportRecord{
		ID:          uuid.NewString(),
		Format:      format,
		Status:      ExportPending,
		RequestedAt: s.now().UTC(),
	}
	s.mu.Lock()
	s.records[record.ID] = record
	s.pruneLocked()
	s.mu.Unlock()

	err := s.queue.Enqueue(jobs.Job{
		ID:      record.ID,
		Type:    "timetable-export",
		Payload: exportPayload{Format: format, Filter: filter},
	})
	if err != nil {
		s.mu.Lock()
		delete(s.records, record.ID)
		s.mu.Unlock()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export")
	}

	// A worker may have already finished the job; snapshot under the lock.
	s.mu.Lock()
	copied := *record
	s.mu.Unlock()
	return &copied, nil
}

// Status returns the current state of a requested export.
func (s *ExportService) Status(id string) (*ExportRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export not found")
	}
	copied := *record
	return &copied, nil
}

func (s *ExportService) process(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(exportPayload)
	if !ok {
		s.fail(job.ID, "unexpected payload type")
		return nil
	}

	filter := payload.Filter
	if filter.PageSize <= 0 {
		filter.PageSize = 500
	}
	sessions, _, err := s.sessions.List(ctx, filter)
	if err != nil {
		s.fail(job.ID, err.Error())
		return fmt.Errorf("load sessions for export: %w", err)
	}

	dataset := buildTimetableDataset(sessions, s.now())

	var rendered []byte
	var ext string
	switch payload.Format {
	case ExportFormatPDF:
		rendered, err = s.pdf.Render(dataset, "Class Timetable")
		ext = "pdf"
	default:
		rendered, err = s.csv.Render(dataset)
		ext = "csv"
	}
	if err != nil {
		s.fail(job.ID, err.Error())
		return fmt.Errorf("render export: %w", err)
	}

	path, err := s.files.Save(fmt.Sprintf("timetable-%s.%s", job.ID, ext), rendered)
	if err != nil {
		s.fail(job.ID, err.Error())
		return fmt.Errorf("store export: %w", err)
	}

	s.mu.Lock()
	if record, ok := s.records[job.ID]; ok {
		done := s.now().UTC()
		record.Status = ExportCompleted
		record.FilePath = path
		record.CompletedAt = &done
	}
	s.mu.Unlock()

	s.logger.Info("timetable export completed",
		zap.String("id", job.ID),
		zap.String("format", string(payload.Format)),
		zap.Int("sessions", len(sessions)))

	// Expired files share the record TTL, so each finished job sweeps them.
	if removed, err := s.files.CleanupOlderThan(s.cfg.ResultTTL); err != nil {
		s.logger.Warn("export cleanup failed", zap.Error(err))
	} else if len(removed) > 0 {
		s.logger.Info("pruned expired export files", zap.Int("count", len(removed)))
	}
	return nil
}

func (s *ExportService) fail(id, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.records[id]; ok {
		done := s.now().UTC()
		record.Status = ExportFailed
		record.Error = message
		record.CompletedAt = &done
	}
}

// pruneLocked drops finished records past their TTL. Caller holds mu.
func (s *ExportService) pruneLocked() {
	cutoff := s.now().UTC().Add(-s.cfg.ResultTTL)
	for id, record := range s.records {
		if record.CompletedAt != nil && record.CompletedAt.Before(cutoff) {
			delete(s.records, id)
		}
	}
}

func buildTimetableDataset(sessions []models.LiveSession, now time.Time) export.Dataset {
	headers := []string{"Date", "Start", "End", "Title", "Status", "Meeting Link"}
	rows := make([]map[string]string, 0, len(sessions))
	for _, session := range sessions {
		rows = append(rows, map[string]string{
			"Date":         session.ScheduledDate.Format("2006-01-02"),
			"Start":        session.StartTime,
			"End":          session.EndTime,
			"Title":        session.Title,
			"Status":       string(DeriveStatus(session, now)),
			"Meeting Link": session.MeetingLink,
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
