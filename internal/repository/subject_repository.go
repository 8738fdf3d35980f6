package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// SubjectRepository handles persistence for subjects.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository constructs a SubjectRepository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// ListKeys returns the (year, name, group) key of every subject.
func (r *SubjectRepository) ListKeys(ctx context.Context) ([]models.SubjectKey, error) {
	var keys []models.SubjectKey
	if err := r.db.SelectContext(ctx, &keys, `SELECT year, name, group_id FROM subjects`); err != nil {
		return nil, fmt.Errorf("list subject keys: %w", err)
	}
	return keys, nil
}

const subjectColumns = `id, year, name, category, class_type, credits, group_id, registrar_id, access_pin`

// List returns subjects matching filter ordered by year, group and name.
func (r *SubjectRepository) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, error) {
	query := "SELECT " + subjectColumns + " FROM subjects s WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Year > 0 {
		conditions = append(conditions, fmt.Sprintf("s.year = $%d", len(args)+1))
		args = append(args, filter.Year)
	}
	if filter.GroupID != "" {
		conditions = append(conditions, fmt.Sprintf("s.group_id = $%d", len(args)+1))
		args = append(args, filter.GroupID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(s.registrar_id = $%d OR EXISTS (SELECT 1 FROM subject_instructors si WHERE si.subject_id = s.id AND si.teacher_id = $%d))",
			len(args)+1, len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(s.name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY s.year DESC, s.group_id, s.name"

	subjects := []models.Subject{}
	if err := r.db.SelectContext(ctx, &subjects, query, args...); err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return subjects, nil
}

// FindByID returns a subject by id.
func (r *SubjectRepository) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	var subject models.Subject
	query := `SELECT ` + subjectColumns + ` FROM subjects WHERE id = $1`
	if err := r.db.GetContext(ctx, &subject, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find subject: %w", err)
	}
	return &subject, nil
}

// Create inserts a subject together with its co-instructor links.
func (r *SubjectRepository) Create(ctx context.Context, subject *models.Subject, instructorIDs []string) (err error) {
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create subject: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO subjects (id, year, name, category, class_type, credits, group_id, registrar_id, access_pin)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		subject.ID, subject.Year, subject.Name, subject.Category, subject.ClassType,
		subject.Credits, subject.GroupID, subject.RegistrarID, subject.AccessPIN,
	); err != nil {
		return fmt.Errorf("create subject: %w", err)
	}

	for _, teacherID := range instructorIDs {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO subject_instructors (subject_id, teacher_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			subject.ID, teacherID,
		); err != nil {
			return fmt.Errorf("link subject instructor: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create subject: %w", err)
	}
	return nil
}
