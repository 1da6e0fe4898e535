package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/wordgrove/groveapi/internal/db/models"
)

// BunUserRepository implements UserRepository using Bun ORM.
type BunUserRepository struct {
	db *bun.DB
}

// NewBunUserRepository creates a new Bun-based user repository.
func NewBunUserRepository(db *bun.DB) *BunUserRepository {
	return &BunUserRepository{db: db}
}

// Create inserts a new role record. Unique violations on either the primary
// key or the email column surface as ErrConflict, never as opaque errors:
// concurrent creators are expected and recover by re-reading.
func (r *BunUserRepository) Create(ctx context.Context, user *models.User) error {
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err := r.db.NewInsert().Model(user).Exec(ctx)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("insert user %s: %w", user.ID, ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// FindByID fetches a role record by principal ID. A missing row is reported
// as (nil, nil) because "no row yet" is a normal state mid-signup.
func (r *BunUserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().Model(user).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by id: %w", err)
	}
	return user, nil
}

// FindByEmail fetches a role record by email. Absence is (nil, nil).
func (r *BunUserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().Model(user).Where("email = ?", email).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by email: %w", err)
	}
	return user, nil
}

// Delete removes a role record. Returns ErrNotFound when no row matched.
func (r *BunUserRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.NewDelete().
		Model((*models.User)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("delete user %s: %w", id, ErrNotFound)
	}
	return nil
}

// List returns all role records, newest first.
func (r *BunUserRepository) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.db.NewSelect().Model(&users).Order("created_at DESC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}
