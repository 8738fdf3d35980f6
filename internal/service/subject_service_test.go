package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type subjectListerStub struct {
	filter models.SubjectFilter
	calls  int
	err    error
}

func (s *subjectListerStub) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, error) {
	s.calls++
	s.filter = filter
	if s.err != nil {
		return nil, s.err
	}
	return []models.Subject{{ID: "s1", Name: "Math"}}, nil
}

func TestSubjectServiceScopesGeneralUsers(t *testing.T) {
	repo := &subjectListerStub{}
	svc := NewSubjectService(repo, nil)
	teacherID := "t1"

	_, err := svc.List(context.Background(), models.SubjectFilter{Year: 2025, TeacherID: "other"}, &models.JWTClaims{Role: models.RoleGeneral, TeacherID: &teacherID})
	require.NoError(t, err)
	assert.Equal(t, "t1", repo.filter.TeacherID)
	assert.Equal(t, 2025, repo.filter.Year)

	_, err = svc.List(context.Background(), models.SubjectFilter{Search: " math "}, &models.JWTClaims{Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Empty(t, repo.filter.TeacherID)
	assert.Equal(t, "math", repo.filter.Search)

	subjects, err := svc.List(context.Background(), models.SubjectFilter{}, &models.JWTClaims{Role: models.RoleGeneral})
	require.NoError(t, err)
	assert.Empty(t, subjects)
	assert.Equal(t, 2, repo.calls)
}

func TestSubjectServiceErrors(t *testing.T) {
	repo := &subjectListerStub{err: errors.New("db down")}
	svc := NewSubjectService(repo, nil)

	_, err := svc.List(context.Background(), models.SubjectFilter{}, nil)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	_, err = svc.List(context.Background(), models.SubjectFilter{}, &models.JWTClaims{Role: models.RoleAdmin})
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}
