package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type mockSubjectReader struct {
	subjects map[string]*models.Subject
	err      error
}

func (m *mockSubjectReader) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	if m.err != nil {
		return nil, m.err
	}
	subject, ok := m.subjects[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return subject, nil
}

type mockEnrollmentRepo struct {
	enrollments map[string]*models.Enrollment
	createErr   error
	sheet       []models.GradeSheetRow
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.enrollments == nil {
		m.enrollments = make(map[string]*models.Enrollment)
	}
	enrollment.ID = fmt.Sprintf("e%d", len(m.enrollments)+1)
	copied := *enrollment
	m.enrollments[enrollment.ID] = &copied
	return nil
}

func (m *mockEnrollmentRepo) UpdateScores(ctx context.Context, enrollment *models.Enrollment) error {
	existing, ok := m.enrollments[enrollment.ID]
	if !ok || existing.SubjectID != enrollment.SubjectID || existing.StudentID != enrollment.StudentID {
		return sql.ErrNoRows
	}
	copied := *enrollment
	m.enrollments[enrollment.ID] = &copied
	return nil
}

func (m *mockEnrollmentRepo) ListSheet(ctx context.Context, subjectID string) ([]models.GradeSheetRow, error) {
	return m.sheet, nil
}

func newGradeFixture() (*GradeService, *mockEnrollmentRepo) {
	subjects := &mockSubjectReader{subjects: map[string]*models.Subject{
		"math": {ID: "math", Name: "Math", Year: 2025},
	}}
	enrollments := &mockEnrollmentRepo{}
	return NewGradeService(subjects, enrollments, nil, nil, zap.NewNop()), enrollments
}

func TestGradeServiceUpsertCreatesThenUpdates(t *testing.T) {
	svc, repo := newGradeFixture()
	ctx := context.Background()

	first, err := svc.UpsertGrades(ctx, "math", dto.GradeUpsertRequest{Edits: []dto.GradeEdit{
		{StudentID: "st1", FirstScore: "80", SecondScore: "", Absences: ""},
		{StudentID: "st2", FirstScore: "70", Absences: "3"},
	}})
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.Equal(t, 2, first.SavedCount)
	require.Len(t, repo.enrollments, 2)

	e1 := repo.enrollments[first.Saved[0].EnrollmentID]
	require.NotNil(t, e1.FirstSemesterScore)
	assert.Equal(t, 80, *e1.FirstSemesterScore)
	assert.Nil(t, e1.SecondSemesterScore)
	assert.Equal(t, 0, e1.Absences)

	edits := []dto.GradeEdit{
		{StudentID: "st1", EnrollmentID: first.Saved[0].EnrollmentID, FirstScore: "85", SecondScore: "90"},
		{StudentID: "st2", EnrollmentID: first.Saved[1].EnrollmentID, FirstScore: "70", Absences: "4"},
	}
	second, err := svc.UpsertGrades(ctx, "math", dto.GradeUpsertRequest{Edits: edits})
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Len(t, repo.enrollments, 2)
	assert.False(t, second.Saved[0].Created)
	assert.Equal(t, 90, *repo.enrollments[first.Saved[0].EnrollmentID].SecondSemesterScore)
	assert.Equal(t, 4, repo.enrollments[first.Saved[1].EnrollmentID].Absences)
}

func TestGradeServicePartialFailure(t *testing.T) {
	svc, repo := newGradeFixture()

	result, err := svc.UpsertGrades(context.Background(), "math", dto.GradeUpsertRequest{Edits: []dto.GradeEdit{
		{StudentID: "st1", FirstScore: "abc"},
		{StudentID: "st2", Absences: "-1"},
		{StudentID: "st3", EnrollmentID: "missing", FirstScore: "50"},
		{StudentID: "st4", FirstScore: "60"},
		{FirstScore: "60"},
	}})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.SavedCount)
	assert.Equal(t, 4, result.ErrorCount)
	assert.Contains(t, result.Errors[0].Message, "first semester score")
	assert.Contains(t, result.Errors[1].Message, "absences")
	assert.Equal(t, "enrollment not found", result.Errors[2].Message)
	assert.Equal(t, "missing student id", result.Errors[3].Message)
	assert.Len(t, repo.enrollments, 1)
}

func TestGradeServiceStorageErrorIsPerStudent(t *testing.T) {
	svc, repo := newGradeFixture()
	repo.createErr = errors.New("connection refused")

	result, err := svc.UpsertGrades(context.Background(), "math", dto.GradeUpsertRequest{Edits: []dto.GradeEdit{{StudentID: "st1", FirstScore: "1"}}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ErrorCount)
	assert.Equal(t, "connection refused", result.Errors[0].Message)
}

func TestGradeServiceUnknownSubject(t *testing.T) {
	svc, _ := newGradeFixture()

	_, err := svc.UpsertGrades(context.Background(), "nope", dto.GradeUpsertRequest{Edits: []dto.GradeEdit{{StudentID: "st1"}}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	result, err := svc.UpsertGrades(context.Background(), "math", dto.GradeUpsertRequest{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Zero(t, result.SavedCount)
	assert.Zero(t, result.ErrorCount)
	assert.Empty(t, result.Errors)
}

func TestGradeServiceMalformedSubjectIDIsNotFound(t *testing.T) {
	subjects := &mockSubjectReader{err: fmt.Errorf("find subject: %w", &pq.Error{Code: "22P02"})}
	svc := NewGradeService(subjects, &mockEnrollmentRepo{}, nil, nil, zap.NewNop())

	_, err := svc.GradeSheet(context.Background(), "not-a-uuid")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	subjects.err = errors.New("connection refused")
	_, err = svc.GradeSheet(context.Background(), "math")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestGradeServiceEnrollmentOfAnotherStudentIsNotUpdated(t *testing.T) {
	svc, repo := newGradeFixture()
	ctx := context.Background()

	created, err := svc.UpsertGrades(ctx, "math", dto.GradeUpsertRequest{Edits: []dto.GradeEdit{
		{StudentID: "st1", FirstScore: "80"},
		{StudentID: "st2", FirstScore: "60"},
	}})
	require.NoError(t, err)
	require.Equal(t, 2, created.SavedCount)
	st2Enrollment := created.Saved[1].EnrollmentID

	result, err := svc.UpsertGrades(ctx, "math", dto.GradeUpsertRequest{Edits: []dto.GradeEdit{
		{StudentID: "st1", EnrollmentID: st2Enrollment, FirstScore: "10"},
	}})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Zero(t, result.SavedCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "st1", result.Errors[0].StudentID)
	assert.Equal(t, "enrollment not found", result.Errors[0].Message)
	assert.Equal(t, 60, *repo.enrollments[st2Enrollment].FirstSemesterScore)
	assert.Equal(t, "st2", repo.enrollments[st2Enrollment].StudentID)
}

func TestGradeServiceGradeSheet(t *testing.T) {
	svc, repo := newGradeFixture()
	id := "e1"
	repo.sheet = []models.GradeSheetRow{{StudentID: "st1", StudentCode: "S001", EnrollmentID: &id}}

	sheet, err := svc.GradeSheet(context.Background(), "math")
	require.NoError(t, err)
	assert.Equal(t, "Math", sheet.Subject.Name)
	require.Len(t, sheet.Rows, 1)
}
