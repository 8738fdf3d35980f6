package service

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/gradebook-api/internal/importer"
	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/repository"
)

type teacherWriter interface {
	CreateWithUser(ctx context.Context, teacher *models.Teacher, user *models.User) error
}

type studentWriter interface {
	Create(ctx context.Context, student *models.Student) error
}

type subjectWriter interface {
	Create(ctx context.Context, subject *models.Subject, instructorIDs []string) error
}

const (
	msgRegistered             = "registered"
	msgRegisteredNoInstructor = "registered without instructor"
	msgDuplicateInFile        = "duplicate within file"
	msgAlreadyRegistered      = "already registered"
)

// entityWriter performs one storage write per accepted candidate.
type entityWriter struct {
	teachers   teacherWriter
	students   studentWriter
	subjects   subjectWriter
	bcryptCost int
}

func (w *entityWriter) writeTeacher(ctx context.Context, c importer.TeacherCandidate) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(c.Password), w.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	teacher := &models.Teacher{Name: c.Name}
	user := &models.User{
		Username:     c.Username,
		Name:         c.Name,
		PasswordHash: string(hash),
		Role:         models.RoleGeneral,
	}
	return w.teachers.CreateWithUser(ctx, teacher, user)
}

func (w *entityWriter) writeStudent(ctx context.Context, c importer.StudentCandidate, groupID *string) error {
	return w.students.Create(ctx, &models.Student{StudentCode: c.Code, Name: c.Name, GroupID: groupID})
}

func (w *entityWriter) writeSubject(ctx context.Context, c importer.SubjectCandidate, groupID string, registrarID *string, instructorIDs []string) error {
	subject := &models.Subject{
		Year:        c.Year,
		Name:        c.Name,
		Category:    c.Category,
		ClassType:   c.Form,
		Credits:     c.Credits,
		GroupID:     groupID,
		RegistrarID: registrarID,
		AccessPIN:   c.AccessPIN,
	}
	return w.subjects.Create(ctx, subject, instructorIDs)
}

// storageFailure converts a write error into a row outcome. Unique violations
// come from concurrent imports racing past the in-memory guard.
func storageFailure(row int, key string, err error) models.RowOutcome {
	if repository.IsUniqueViolation(err) {
		return models.RowOutcome{Row: row, Key: key, Code: models.OutcomeAlreadyExists, Message: msgAlreadyRegistered}
	}
	return models.RowOutcome{Row: row, Key: key, Code: models.OutcomeStorageError, Message: "registration error: " + err.Error()}
}

func claimFailure(row int, key string, claim importer.ClaimResult) models.RowOutcome {
	if claim == importer.ClaimDuplicateInFile {
		return models.RowOutcome{Row: row, Key: key, Code: models.OutcomeDuplicateInFile, Message: msgDuplicateInFile}
	}
	return models.RowOutcome{Row: row, Key: key, Code: models.OutcomeAlreadyExists, Message: msgAlreadyRegistered}
}
