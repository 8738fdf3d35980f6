package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// StudentRepository handles persistence for students.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// ListCodes returns every persisted student code.
func (r *StudentRepository) ListCodes(ctx context.Context) ([]string, error) {
	var codes []string
	if err := r.db.SelectContext(ctx, &codes, `SELECT student_code FROM students`); err != nil {
		return nil, fmt.Errorf("list student codes: %w", err)
	}
	return codes, nil
}

// Create inserts a student.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO students (id, student_code, name, group_id) VALUES ($1, $2, $3, $4)`,
		student.ID, student.StudentCode, student.Name, student.GroupID,
	); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}
