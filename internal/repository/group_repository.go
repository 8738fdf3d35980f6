package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// GroupRepository manages class cohorts.
type GroupRepository struct {
	db *sqlx.DB
}

func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// FindByYearName returns the group for (year, name) or nil when none exists.
func (r *GroupRepository) FindByYearName(ctx context.Context, year int, name string) (*models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group, `SELECT id, year, name FROM groups WHERE year = $1 AND name = $2`, year, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find group %d-%s: %w", year, name, err)
	}
	return &group, nil
}

// EnsureGroup creates the group when absent and returns its id either way.
func (r *GroupRepository) EnsureGroup(ctx context.Context, year int, name string) (string, error) {
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO groups (id, year, name) VALUES ($1, $2, $3) ON CONFLICT (year, name) DO NOTHING`,
		uuid.NewString(), year, name,
	); err != nil {
		return "", fmt.Errorf("ensure group %d-%s: %w", year, name, err)
	}

	var id string
	if err := r.db.GetContext(ctx, &id, `SELECT id FROM groups WHERE year = $1 AND name = $2`, year, name); err != nil {
		return "", fmt.Errorf("load group %d-%s: %w", year, name, err)
	}
	return id, nil
}
