package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradebook-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestTeacherRepositoryListNames(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	rows := sqlmock.NewRows([]string{"id", "name", "email", "created_at"}).
		AddRow("t1", "Yamada", nil, time.Now()).
		AddRow("t2", "Suzuki", "s@example.com", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, email, created_at FROM teachers ORDER BY created_at ASC, id ASC")).
		WillReturnRows(rows)

	teachers, err := repo.ListNames(context.Background())
	require.NoError(t, err)
	require.Len(t, teachers, 2)
	assert.Equal(t, "Yamada", teachers[0].Name)
	assert.Nil(t, teachers[0].Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryCreateWithUser(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO teachers").
		WithArgs(sqlmock.AnyArg(), "Yamada", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO users").
		WithArgs(sqlmock.AnyArg(), "yamada", "Yamada", "hash", models.RoleGeneral, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	teacher := &models.Teacher{Name: "Yamada"}
	user := &models.User{Username: "yamada", Name: "Yamada", PasswordHash: "hash", Role: models.RoleGeneral}
	require.NoError(t, repo.CreateWithUser(context.Background(), teacher, user))
	assert.NotEmpty(t, teacher.ID)
	require.NotNil(t, user.TeacherID)
	assert.Equal(t, teacher.ID, *user.TeacherID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryCreateWithUserRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO teachers").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO users").WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	err := repo.CreateWithUser(context.Background(), &models.Teacher{Name: "Yamada"}, &models.User{Username: "yamada"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create teacher user")
	assert.NoError(t, mock.ExpectationsWereMet())
}
