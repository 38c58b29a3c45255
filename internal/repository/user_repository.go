package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/applets-core/internal/models"
)

const userColumns = `id, email, first_name, last_name, hashed_password, is_deleted, created_at, updated_at`

// UserRepository provides database access for accounts.
type UserRepository struct {
	base
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{base: newBase(db)}
}

// FindByID returns a live user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND is_deleted = FALSE`
	if err := sqlx.GetContext(ctx, r.ext, &user, query, id); err != nil {
		return nil, translate(err, "user")
	}
	return &user, nil
}

// UpdatePassword stores a new password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, hashed string) error {
	const query = `UPDATE users SET hashed_password = $2, updated_at = $3 WHERE id = $1 AND is_deleted = FALSE`
	res, err := r.ext.ExecContext(ctx, query, id, hashed, utcNow())
	if err != nil {
		return translate(err, "user")
	}
	return requireAffected(res, "user")
}
