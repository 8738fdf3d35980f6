package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// EnrollmentRepository persists the grade data of student/subject pairs.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs an EnrollmentRepository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Create inserts a new enrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	enrollment.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO enrollments (id, student_id, subject_id, first_semester_score, second_semester_score, absences, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(ctx, query,
		enrollment.ID, enrollment.StudentID, enrollment.SubjectID,
		enrollment.FirstSemesterScore, enrollment.SecondSemesterScore, enrollment.Absences, enrollment.UpdatedAt,
	); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// UpdateScores overwrites the grade fields of an enrollment belonging to the
// subject and student. sql.ErrNoRows is returned when no such enrollment exists.
func (r *EnrollmentRepository) UpdateScores(ctx context.Context, enrollment *models.Enrollment) error {
	enrollment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE enrollments SET first_semester_score = $4, second_semester_score = $5, absences = $6, updated_at = $7
WHERE id = $1 AND subject_id = $2 AND student_id = $3`
	res, err := r.db.ExecContext(ctx, query,
		enrollment.ID, enrollment.SubjectID, enrollment.StudentID,
		enrollment.FirstSemesterScore, enrollment.SecondSemesterScore, enrollment.Absences, enrollment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update enrollment rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListSheet returns the students of the subject's group joined with their
// enrollment for the subject, plus any enrolled student outside the group.
func (r *EnrollmentRepository) ListSheet(ctx context.Context, subjectID string) ([]models.GradeSheetRow, error) {
	const query = `SELECT st.id AS student_id, st.student_code, st.name AS student_name,
       e.id AS enrollment_id, e.first_semester_score, e.second_semester_score, e.absences
FROM students st
LEFT JOIN enrollments e ON e.student_id = st.id AND e.subject_id = $1
WHERE st.group_id = (SELECT group_id FROM subjects WHERE id = $1) OR e.id IS NOT NULL
ORDER BY st.student_code ASC`
	var rows []models.GradeSheetRow
	if err := r.db.SelectContext(ctx, &rows, query, subjectID); err != nil {
		return nil, fmt.Errorf("list grade sheet: %w", err)
	}
	return rows, nil
}
