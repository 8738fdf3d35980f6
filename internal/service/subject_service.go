package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type subjectLister interface {
	List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, error)
}

// SubjectService lists subjects so grade clients can find the subject to edit.
type SubjectService struct {
	repo   subjectLister
	logger *zap.Logger
}

// NewSubjectService creates a new subject service.
func NewSubjectService(repo subjectLister, logger *zap.Logger) *SubjectService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectService{repo: repo, logger: logger}
}

// List returns subjects matching filter. General users only see subjects they
// teach; a general user without a teacher record sees nothing.
func (s *SubjectService) List(ctx context.Context, filter models.SubjectFilter, claims *models.JWTClaims) ([]models.Subject, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter.Search = strings.TrimSpace(filter.Search)
	if claims.Role != models.RoleAdmin {
		if claims.TeacherID == nil || *claims.TeacherID == "" {
			return []models.Subject{}, nil
		}
		filter.TeacherID = *claims.TeacherID
	}

	subjects, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	return subjects, nil
}
