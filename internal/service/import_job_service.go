package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/importer"
	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
	"github.com/noah-isme/gradebook-api/pkg/export"
	"github.com/noah-isme/gradebook-api/pkg/jobs"
)

const workbookJobType = "workbook_import"

type workbookImporter interface {
	ImportWorkbook(ctx context.Context, wb importer.Workbook, opts dto.WorkbookImportOptions) (*models.WorkbookResult, error)
}

type importReportStore interface {
	Save(ctx context.Context, report *models.ImportReport) error
	Find(ctx context.Context, id string) (*models.ImportReport, error)
}

// ImportJobConfig tunes workbook import jobs.
type ImportJobConfig struct {
	AsyncEnabled bool
	MaxAttempts  int
	RetryDelay   time.Duration
	QueueSize    int
}

type workbookJob struct {
	report *models.ImportReport
	sheets importer.SheetSet
	opts   dto.WorkbookImportOptions
}

// ImportJobService decodes uploaded workbooks, runs them through the import
// service either inline or on a single background worker, and keeps the
// resulting report.
type ImportJobService struct {
	layout  importer.Layout
	runner  workbookImporter
	reports importReportStore
	queue   *jobs.Queue
	csv     csvRenderer
	metrics *MetricsService
	logger  *zap.Logger
	cfg     ImportJobConfig
	now     func() time.Time
}

// NewImportJobService wires the job service. The queue runs one worker so
// rows of concurrent uploads never interleave.
func NewImportJobService(runner workbookImporter, reports importReportStore, layout importer.Layout, cfg ImportJobConfig, metrics *MetricsService, logger *zap.Logger) *ImportJobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ImportJobService{
		layout:  layout,
		runner:  runner,
		reports: reports,
		csv:     export.NewCSVExporter(true),
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
	svc.queue = jobs.NewQueue("imports", svc.handle, jobs.QueueConfig{
		Workers:     1,
		BufferSize:  cfg.QueueSize,
		MaxAttempts: cfg.MaxAttempts,
		RetryDelay:  cfg.RetryDelay,
		OnGiveUp:    svc.giveUp,
		Logger:      logger,
	})
	return svc
}

// Start launches the background worker.
func (s *ImportJobService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop waits for the running import, if any, to return.
func (s *ImportJobService) Stop() {
	s.queue.Stop()
}

// Submit decodes the workbook and imports it. Asynchronous submissions return
// a pending report immediately; synchronous ones return the completed report.
func (s *ImportJobService) Submit(ctx context.Context, r io.Reader, opts dto.WorkbookImportOptions) (*models.ImportReport, error) {
	if opts.Async && !s.cfg.AsyncEnabled {
		return nil, appErrors.Clone(appErrors.ErrAsyncDisabled, "asynchronous imports are disabled")
	}

	sheets, err := importer.OpenWorkbook(r, s.layout)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	report := &models.ImportReport{
		ID:          uuid.NewString(),
		Status:      models.ImportStatusPending,
		Filename:    opts.Filename,
		RequestedBy: opts.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if !opts.Async {
		if err := s.run(ctx, report, sheets, opts); err != nil {
			return nil, err
		}
		return report, nil
	}

	if err := s.reports.Save(ctx, report); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store import report")
	}
	accepted := *report
	job := jobs.Job{ID: report.ID, Type: workbookJobType, Payload: workbookJob{report: report, sheets: sheets, opts: opts}}
	if err := s.queue.Enqueue(job); err != nil {
		s.fail(context.Background(), report, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue import")
	}
	s.logger.Info("workbook import queued", zap.String("import_id", report.ID), zap.String("filename", opts.Filename))
	// the worker owns report from here on
	return &accepted, nil
}

// Get returns a stored import report.
func (s *ImportJobService) Get(ctx context.Context, id string) (*models.ImportReport, error) {
	report, err := s.reports.Find(ctx, id)
	if err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "import report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load import report")
	}
	return report, nil
}

// ReportCSV renders every row outcome of a finished import.
func (s *ImportJobService) ReportCSV(ctx context.Context, id string) ([]byte, string, error) {
	report, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if report.Result == nil {
		return nil, "", appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("import is %s", report.Status))
	}

	data := export.Dataset{Headers: []string{"kind", "row", "key", "success", "code", "message"}}
	for _, kind := range report.Result.Kinds() {
		for _, outcome := range kind.Results {
			data.Append(
				string(kind.Kind),
				strconv.Itoa(outcome.Row),
				outcome.Key,
				strconv.FormatBool(outcome.Success),
				string(outcome.Code),
				outcome.Message,
			)
		}
	}
	body, err := s.csv.Render(data)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render import report")
	}
	return body, fmt.Sprintf("import_%s.csv", sanitizeFilename(report.ID)), nil
}

func (s *ImportJobService) handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(workbookJob)
	if !ok {
		return fmt.Errorf("unexpected payload %T", job.Payload)
	}
	err := s.run(ctx, payload.report, payload.sheets, payload.opts)
	if err == nil {
		return nil
	}
	// client-side failures are final, retrying cannot change them
	if appErr := appErrors.FromError(err); appErr.Status < 500 {
		return nil
	}
	return err
}

// run imports the sheets and stores the outcome on report. A server-side
// failure leaves the report pending so that a retry can still complete it.
func (s *ImportJobService) run(ctx context.Context, report *models.ImportReport, sheets importer.SheetSet, opts dto.WorkbookImportOptions) error {
	result, err := s.runner.ImportWorkbook(ctx, sheets, opts)
	if err != nil {
		if appErr := appErrors.FromError(err); appErr.Status < 500 || !opts.Async {
			s.fail(ctx, report, err)
		}
		return err
	}

	report.Status = models.ImportStatusCompleted
	report.Result = result
	report.Error = ""
	report.UpdatedAt = s.now().UTC()
	if err := s.reports.Save(ctx, report); err != nil {
		s.logger.Warn("failed to store import report", zap.String("import_id", report.ID), zap.Error(err))
	}
	s.metrics.ObserveImportJob(report.Status)
	s.logger.Info("workbook import completed", zap.String("import_id", report.ID), zap.String("filename", report.Filename))
	return nil
}

func (s *ImportJobService) giveUp(job jobs.Job, err error) {
	payload, ok := job.Payload.(workbookJob)
	if !ok {
		return
	}
	s.fail(context.Background(), payload.report, err)
}

func (s *ImportJobService) fail(ctx context.Context, report *models.ImportReport, cause error) {
	report.Status = models.ImportStatusFailed
	report.Error = cause.Error()
	report.UpdatedAt = s.now().UTC()
	if err := s.reports.Save(ctx, report); err != nil {
		s.logger.Warn("failed to store import report", zap.String("import_id", report.ID), zap.Error(err))
	}
	s.metrics.ObserveImportJob(report.Status)
	s.logger.Error("workbook import failed", zap.String("import_id", report.ID), zap.Error(cause))
}
