package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/importer"
	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/repository"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type subjectReader interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

type enrollmentRepository interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	UpdateScores(ctx context.Context, enrollment *models.Enrollment) error
	ListSheet(ctx context.Context, subjectID string) ([]models.GradeSheetRow, error)
}

// GradeService merges per-student score edits into enrollments of one subject.
type GradeService struct {
	subjects    subjectReader
	enrollments enrollmentRepository
	validator   *validator.Validate
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewGradeService constructs a GradeService.
func NewGradeService(subjects subjectReader, enrollments enrollmentRepository, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *GradeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &GradeService{subjects: subjects, enrollments: enrollments, validator: validate, metrics: metrics, logger: logger}
}

// UpsertGrades creates an enrollment for edits without an enrollment id and
// updates the identified enrollment otherwise. A failing edit does not stop
// the remaining ones.
func (s *GradeService) UpsertGrades(ctx context.Context, subjectID string, req dto.GradeUpsertRequest) (*dto.GradeUpsertResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	if _, err := s.loadSubject(ctx, subjectID); err != nil {
		return nil, err
	}

	result := &dto.GradeUpsertResult{Errors: []dto.GradeError{}, Saved: []dto.SavedGrade{}}
	for _, edit := range req.Edits {
		saved, err := s.applyEdit(ctx, subjectID, edit)
		if err != nil {
			result.ErrorCount++
			result.Errors = append(result.Errors, dto.GradeError{StudentID: edit.StudentID, Message: err.Error()})
			continue
		}
		result.SavedCount++
		result.Saved = append(result.Saved, *saved)
	}
	result.Success = result.ErrorCount == 0

	s.metrics.ObserveGradeEdits(result.SavedCount, result.ErrorCount)
	if result.ErrorCount > 0 {
		s.logger.Warn("grade upsert finished with errors",
			zap.String("subject_id", subjectID),
			zap.Int("saved", result.SavedCount),
			zap.Int("errors", result.ErrorCount),
		)
	}
	return result, nil
}

// GradeSheet lists the students of the subject's group with their current grades.
func (s *GradeService) GradeSheet(ctx context.Context, subjectID string) (*dto.GradeSheetResponse, error) {
	subject, err := s.loadSubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	rows, err := s.enrollments.ListSheet(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade sheet")
	}
	if rows == nil {
		rows = []models.GradeSheetRow{}
	}
	return &dto.GradeSheetResponse{Subject: *subject, Rows: rows}, nil
}

func (s *GradeService) loadSubject(ctx context.Context, subjectID string) (*models.Subject, error) {
	subject, err := s.subjects.FindByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || repository.IsInvalidText(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	return subject, nil
}

func (s *GradeService) applyEdit(ctx context.Context, subjectID string, edit dto.GradeEdit) (*dto.SavedGrade, error) {
	if strings.TrimSpace(edit.StudentID) == "" {
		return nil, errors.New("missing student id")
	}
	first, err := parseScore(edit.FirstScore)
	if err != nil {
		return nil, fmt.Errorf("first semester score: %w", err)
	}
	second, err := parseScore(edit.SecondScore)
	if err != nil {
		return nil, fmt.Errorf("second semester score: %w", err)
	}
	absences, err := parseAbsences(edit.Absences)
	if err != nil {
		return nil, fmt.Errorf("absences: %w", err)
	}

	enrollment := &models.Enrollment{
		ID:                  strings.TrimSpace(edit.EnrollmentID),
		StudentID:           edit.StudentID,
		SubjectID:           subjectID,
		FirstSemesterScore:  first,
		SecondSemesterScore: second,
		Absences:            absences,
	}

	if enrollment.ID == "" {
		if err := s.enrollments.Create(ctx, enrollment); err != nil {
			if repository.IsUniqueViolation(err) {
				return nil, errors.New("enrollment already exists, send its enrollment id to update it")
			}
			return nil, err
		}
		return &dto.SavedGrade{StudentID: edit.StudentID, EnrollmentID: enrollment.ID, Created: true}, nil
	}

	if err := s.enrollments.UpdateScores(ctx, enrollment); err != nil {
		if errors.Is(err, sql.ErrNoRows) || repository.IsInvalidText(err) {
			return nil, errors.New("enrollment not found")
		}
		return nil, err
	}
	return &dto.SavedGrade{StudentID: edit.StudentID, EnrollmentID: enrollment.ID}, nil
}

// parseScore maps a blank value to no score rather than zero.
func parseScore(raw importer.RawValue) (*int, error) {
	cell := raw.Cell()
	if cell.Blank() {
		return nil, nil
	}
	v, err := cell.Int()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parseAbsences(raw importer.RawValue) (int, error) {
	cell := raw.Cell()
	if cell.Blank() {
		return 0, nil
	}
	v, err := cell.Int()
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return v, nil
}
