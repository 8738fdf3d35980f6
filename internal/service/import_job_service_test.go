package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/importer"
	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/repository"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type stubWorkbookImporter struct {
	mu     sync.Mutex
	calls  int
	errs   []error
	sheets []models.ImportKind
}

func (s *stubWorkbookImporter) ImportWorkbook(ctx context.Context, wb importer.Workbook, opts dto.WorkbookImportOptions) (*models.WorkbookResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	s.sheets = s.sheets[:0]
	for _, kind := range models.ImportOrder {
		if _, ok := wb.Sheet(kind); ok {
			s.sheets = append(s.sheets, kind)
		}
	}
	teachers := models.NewKindResult(models.ImportKindTeachers)
	teachers.Add(models.RowOutcome{Row: 1, Key: "yamada", Code: models.OutcomeCreated, Message: "registered"})
	teachers.Add(models.RowOutcome{Row: 2, Key: "sato", Code: models.OutcomeDuplicateInFile, Message: "duplicate within file"})
	teachers.Summarize()
	return &models.WorkbookResult{Teachers: teachers}, nil
}

func (s *stubWorkbookImporter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func teacherWorkbook(t *testing.T) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", "教員"))
	require.NoError(t, f.SetSheetRow("教員", "A1", &[]interface{}{"yamada", "pw", "山田"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func newJobFixture(cfg ImportJobConfig) (*ImportJobService, *stubWorkbookImporter, *repository.ImportReportRepository) {
	runner := &stubWorkbookImporter{}
	reports := repository.NewImportReportRepository(nil, time.Hour, zap.NewNop())
	svc := NewImportJobService(runner, reports, importer.LayoutFor("ja"), cfg, NewMetricsService(), zap.NewNop())
	return svc, runner, reports
}

func TestImportJobServiceSyncSubmit(t *testing.T) {
	svc, runner, _ := newJobFixture(ImportJobConfig{})
	ctx := context.Background()

	report, err := svc.Submit(ctx, teacherWorkbook(t), dto.WorkbookImportOptions{Filename: "roster.xlsx", RequestedBy: "u1"})
	require.NoError(t, err)
	assert.Equal(t, models.ImportStatusCompleted, report.Status)
	assert.Equal(t, []models.ImportKind{models.ImportKindTeachers}, runner.sheets)

	stored, err := svc.Get(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Result.Teachers.Succeeded)
	assert.Equal(t, "roster.xlsx", stored.Filename)

	body, filename, err := svc.ReportCSV(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, "import_"+report.ID+".csv", filename)
	lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(string(body), "\ufeff")), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "kind,row,key,success,code,message", lines[0])
	assert.Equal(t, "teachers,2,sato,false,DUPLICATE_IN_FILE,duplicate within file", lines[2])
}

func TestImportJobServiceRejectsUnreadableAndAsyncDisabled(t *testing.T) {
	svc, runner, _ := newJobFixture(ImportJobConfig{})

	_, err := svc.Submit(context.Background(), bytes.NewBufferString("garbage"), dto.WorkbookImportOptions{})
	assert.Equal(t, appErrors.ErrImportUnreadable.Code, appErrors.FromError(err).Code)

	_, err = svc.Submit(context.Background(), teacherWorkbook(t), dto.WorkbookImportOptions{Async: true})
	assert.Equal(t, appErrors.ErrAsyncDisabled.Code, appErrors.FromError(err).Code)
	assert.Zero(t, runner.callCount())
}

func TestImportJobServiceSyncFailureReturnsError(t *testing.T) {
	svc, runner, _ := newJobFixture(ImportJobConfig{})
	runner.errs = []error{appErrors.Clone(appErrors.ErrImportTooLarge, "too many rows")}

	_, err := svc.Submit(context.Background(), teacherWorkbook(t), dto.WorkbookImportOptions{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrImportTooLarge.Code, appErrors.FromError(err).Code)
}

func TestImportJobServiceAsyncCompletesAfterRetry(t *testing.T) {
	svc, runner, _ := newJobFixture(ImportJobConfig{AsyncEnabled: true, MaxAttempts: 2, RetryDelay: 10 * time.Millisecond})
	runner.errs = []error{errors.New("connection reset")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	report, err := svc.Submit(ctx, teacherWorkbook(t), dto.WorkbookImportOptions{Async: true})
	require.NoError(t, err)
	assert.Equal(t, models.ImportStatusPending, report.Status)

	require.Eventually(t, func() bool {
		stored, err := svc.Get(ctx, report.ID)
		return err == nil && stored.Status == models.ImportStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, runner.callCount())
}

func TestImportJobServiceAsyncGivesUp(t *testing.T) {
	svc, runner, _ := newJobFixture(ImportJobConfig{AsyncEnabled: true, MaxAttempts: 1})
	runner.errs = []error{errors.New("connection reset")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	report, err := svc.Submit(ctx, teacherWorkbook(t), dto.WorkbookImportOptions{Async: true})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stored, err := svc.Get(ctx, report.ID)
		return err == nil && stored.Status == models.ImportStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	_, _, err = svc.ReportCSV(ctx, report.ID)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestImportJobServiceUnknownReport(t *testing.T) {
	svc, _, _ := newJobFixture(ImportJobConfig{})

	_, err := svc.Get(context.Background(), "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
