package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradebook-api/internal/models"
)

func intPtr(v int) *int { return &v }

func TestEnrollmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollments").
		WithArgs(sqlmock.AnyArg(), "st1", "sub1", 80, nil, 0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	enrollment := &models.Enrollment{StudentID: "st1", SubjectID: "sub1", FirstSemesterScore: intPtr(80)}
	require.NoError(t, repo.Create(context.Background(), enrollment))
	assert.NotEmpty(t, enrollment.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateScoresScopedToStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND subject_id = $2 AND student_id = $3")).
		WithArgs("e1", "sub1", "st1", 70, 75, 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateScores(context.Background(), &models.Enrollment{
		ID: "e1", StudentID: "st1", SubjectID: "sub1", FirstSemesterScore: intPtr(70), SecondSemesterScore: intPtr(75), Absences: 2,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateScoresNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	// e1 belongs to another student, so nothing matches.
	mock.ExpectExec("UPDATE enrollments SET").
		WithArgs("e1", "sub1", "st2", 70, 75, 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateScores(context.Background(), &models.Enrollment{
		ID: "e1", StudentID: "st2", SubjectID: "sub1", FirstSemesterScore: intPtr(70), SecondSemesterScore: intPtr(75), Absences: 2,
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListSheet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"student_id", "student_code", "student_name", "enrollment_id", "first_semester_score", "second_semester_score", "absences"}).
		AddRow("st1", "S001", "Aoki", "e1", 80, nil, 1).
		AddRow("st2", "S002", "Ito", nil, nil, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN enrollments e ON e.student_id = st.id AND e.subject_id = $1")).
		WithArgs("sub1").
		WillReturnRows(rows)

	sheet, err := repo.ListSheet(context.Background(), "sub1")
	require.NoError(t, err)
	require.Len(t, sheet, 2)
	require.NotNil(t, sheet[0].EnrollmentID)
	assert.Equal(t, "e1", *sheet[0].EnrollmentID)
	assert.Nil(t, sheet[1].EnrollmentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
