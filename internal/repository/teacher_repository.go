package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// TeacherRepository manages persistence for teachers.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs a TeacherRepository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// ListNames returns every teacher id and display name, oldest first.
func (r *TeacherRepository) ListNames(ctx context.Context) ([]models.Teacher, error) {
	const query = `SELECT id, name, email, created_at FROM teachers ORDER BY created_at ASC, id ASC`
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query); err != nil {
		return nil, fmt.Errorf("list teacher names: %w", err)
	}
	return teachers, nil
}

// CreateWithUser inserts a teacher and its login credential in one transaction.
func (r *TeacherRepository) CreateWithUser(ctx context.Context, teacher *models.Teacher, user *models.User) (err error) {
	now := time.Now().UTC()
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	teacher.CreatedAt = now
	user.CreatedAt = now
	user.TeacherID = &teacher.ID

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create teacher: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO teachers (id, name, email, created_at) VALUES ($1, $2, $3, $4)`,
		teacher.ID, teacher.Name, teacher.Email, teacher.CreatedAt,
	); err != nil {
		return fmt.Errorf("create teacher: %w", err)
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, username, name, password_hash, role, teacher_id, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.Username, user.Name, user.PasswordHash, user.Role, user.TeacherID, user.CreatedAt,
	); err != nil {
		return fmt.Errorf("create teacher user: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create teacher: %w", err)
	}
	return nil
}
