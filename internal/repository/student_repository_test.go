package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradebook-api/internal/models"
)

func TestStudentRepositoryListCodes(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT student_code FROM students")).
		WillReturnRows(sqlmock.NewRows([]string{"student_code"}).AddRow("S001"))

	codes, err := repo.ListCodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"S001"}, codes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreateUniqueViolation(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	groupID := "g1"
	mock.ExpectExec("INSERT INTO students").
		WithArgs(sqlmock.AnyArg(), "S001", "Aoki", groupID).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.Student{StudentCode: "S001", Name: "Aoki", GroupID: &groupID})
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
