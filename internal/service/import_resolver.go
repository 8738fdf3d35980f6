package service

import (
	"context"
	"fmt"

	"github.com/noah-isme/gradebook-api/internal/models"
)

type groupRepository interface {
	EnsureGroup(ctx context.Context, year int, name string) (string, error)
	FindByYearName(ctx context.Context, year int, name string) (*models.Group, error)
}

type teacherDirectory interface {
	ListNames(ctx context.Context) ([]models.Teacher, error)
}

// referenceResolver maps group labels and teacher names to ids for one import call.
// It never modifies students or teachers; groups are the only thing it creates.
type referenceResolver struct {
	groups   groupRepository
	teachers teacherDirectory

	groupIDs    map[models.GroupKey]*string
	groupErrs   map[models.GroupKey]error
	teacherIDs  map[string]string
	teachersSet bool
}

func newReferenceResolver(groups groupRepository, teachers teacherDirectory) *referenceResolver {
	return &referenceResolver{
		groups:    groups,
		teachers:  teachers,
		groupIDs:  make(map[models.GroupKey]*string),
		groupErrs: make(map[models.GroupKey]error),
	}
}

// ensureGroups creates every distinct group in keys that does not exist yet,
// in first-seen order, and returns how many distinct groups now have an id.
// Failures are remembered per key and surface through groupID.
func (r *referenceResolver) ensureGroups(ctx context.Context, keys []models.GroupKey) (prepared int) {
	for _, key := range keys {
		if _, done := r.groupIDs[key]; done {
			continue
		}
		if _, failed := r.groupErrs[key]; failed {
			continue
		}
		id, err := r.groups.EnsureGroup(ctx, key.Year, key.Name)
		if err != nil {
			r.groupErrs[key] = err
			continue
		}
		r.groupIDs[key] = &id
		prepared++
	}
	return prepared
}

// groupID returns the id of a group prepared by ensureGroups.
func (r *referenceResolver) groupID(key models.GroupKey) (string, error) {
	if err, failed := r.groupErrs[key]; failed {
		return "", err
	}
	if id := r.groupIDs[key]; id != nil {
		return *id, nil
	}
	return "", fmt.Errorf("group %s was not prepared", key)
}

// lookupGroup finds an existing group without creating it. A missing group
// yields nil.
func (r *referenceResolver) lookupGroup(ctx context.Context, key models.GroupKey) (*string, error) {
	if id, cached := r.groupIDs[key]; cached {
		return id, nil
	}
	group, err := r.groups.FindByYearName(ctx, key.Year, key.Name)
	if err != nil {
		return nil, err
	}
	var id *string
	if group != nil {
		id = &group.ID
	}
	r.groupIDs[key] = id
	return id, nil
}

// loadTeachers reads all teacher names once. On duplicate names the oldest
// teacher wins.
func (r *referenceResolver) loadTeachers(ctx context.Context) error {
	if r.teachersSet {
		return nil
	}
	teachers, err := r.teachers.ListNames(ctx)
	if err != nil {
		return err
	}
	r.teacherIDs = make(map[string]string, len(teachers))
	for _, t := range teachers {
		if _, exists := r.teacherIDs[t.Name]; !exists {
			r.teacherIDs[t.Name] = t.ID
		}
	}
	r.teachersSet = true
	return nil
}

func (r *referenceResolver) teacherID(name string) (string, bool) {
	id, ok := r.teacherIDs[name]
	return id, ok
}

// instructorIDs resolves co-instructor names, returning unique ids and the
// names that matched no teacher.
func (r *referenceResolver) instructorIDs(names []string) (ids []string, unknown []string) {
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		id, ok := r.teacherID(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, unknown
}
