package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/dto"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
	"github.com/noah-isme/gradebook-api/pkg/export"
)

// ExportFormat selects the rendering of a grade sheet export.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type gradeSheetReader interface {
	GradeSheet(ctx context.Context, subjectID string) (*dto.GradeSheetResponse, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportFile is a rendered download.
type ExportFile struct {
	Body        []byte
	ContentType string
	Filename    string
}

// ExportService renders a subject's grade sheet as CSV or PDF.
type ExportService struct {
	grades gradeSheetReader
	csv    csvRenderer
	pdf    pdfRenderer
	logger *zap.Logger
	now    func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to the
// defaults of pkg/export.
func NewExportService(grades gradeSheetReader, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter(true)
	}
	if pdf == nil {
		pdf = export.NewPDFExporter("")
	}
	return &ExportService{grades: grades, csv: csv, pdf: pdf, logger: logger, now: time.Now}
}

// Export renders the grade sheet of subjectID in the requested format.
func (s *ExportService) Export(ctx context.Context, subjectID string, format ExportFormat) (*ExportFile, error) {
	format = ExportFormat(strings.ToLower(strings.TrimSpace(string(format))))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %q", format))
	}

	sheet, err := s.grades.GradeSheet(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	data := export.Dataset{Headers: []string{"student_code", "student_name", "first_semester", "second_semester", "absences"}}
	for _, row := range sheet.Rows {
		data.Append(row.StudentCode, row.StudentName, optionalInt(row.FirstSemesterScore), optionalInt(row.SecondSemesterScore), optionalInt(row.Absences))
	}

	title := fmt.Sprintf("%d %s", sheet.Subject.Year, sheet.Subject.Name)
	file := &ExportFile{Filename: s.buildFilename(sheet.Subject.Year, sheet.Subject.Name, format)}
	switch format {
	case ExportFormatCSV:
		file.ContentType = "text/csv; charset=utf-8"
		file.Body, err = s.csv.Render(data)
	case ExportFormatPDF:
		file.ContentType = "application/pdf"
		file.Body, err = s.pdf.Render(data, title)
	}
	if err != nil {
		s.logger.Error("grade sheet export failed", zap.String("subject_id", subjectID), zap.String("format", string(format)), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render grade sheet")
	}
	return file, nil
}

func (s *ExportService) buildFilename(year int, subject string, format ExportFormat) string {
	timestamp := s.now().UTC().Format("20060102_150405")
	return fmt.Sprintf("grades_%d_%s_%s.%s", year, sanitizeFilename(subject), timestamp, format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_", "\"", "")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
