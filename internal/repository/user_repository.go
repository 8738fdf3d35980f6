package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, name, password_hash, role, teacher_id, created_at`

// FindByUsername retrieves a user by username.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	if err := r.db.GetContext(ctx, &user, query, username); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsernames returns every registered username.
func (r *UserRepository) ListUsernames(ctx context.Context) ([]string, error) {
	var usernames []string
	if err := r.db.SelectContext(ctx, &usernames, `SELECT username FROM users`); err != nil {
		return nil, fmt.Errorf("list usernames: %w", err)
	}
	return usernames, nil
}

// Create inserts a standalone user, typically an admin without a teacher record.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = time.Now().UTC()
	query := `INSERT INTO users (` + userColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(ctx, query,
		user.ID, user.Username, user.Name, user.PasswordHash, user.Role, user.TeacherID, user.CreatedAt,
	); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}
