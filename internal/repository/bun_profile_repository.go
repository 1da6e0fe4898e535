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

// BunProfileRepository implements ProfileRepository against the students,
// teachers, and parents tables. The three tables share the same shape for
// reconciliation purposes (generated id, unique user_id, display name), so a
// single repository serves all of them keyed by role.
type BunProfileRepository struct {
	db *bun.DB
}

// NewBunProfileRepository creates a new Bun-based profile repository.
func NewBunProfileRepository(db *bun.DB) *BunProfileRepository {
	return &BunProfileRepository{db: db}
}

// model returns an empty bun model for the role's table.
func (r *BunProfileRepository) model(role models.Role) (any, error) {
	switch role {
	case models.RoleStudent:
		return new(models.Student), nil
	case models.RoleTeacher:
		return new(models.Teacher), nil
	case models.RoleParent:
		return new(models.Parent), nil
	default:
		return nil, fmt.Errorf("role %q has no profile table", role)
	}
}

// Create inserts a profile row for the role. Unique violations on user_id
// surface as ErrConflict so concurrent creators can converge by re-reading.
func (r *BunProfileRepository) Create(ctx context.Context, role models.Role, profile *Profile) error {
	now := time.Now()

	var row any
	switch role {
	case models.RoleStudent:
		row = &models.Student{ID: profile.ID, UserID: profile.UserID, Name: profile.Name, Level: 1, CreatedAt: now}
	case models.RoleTeacher:
		row = &models.Teacher{ID: profile.ID, UserID: profile.UserID, Name: profile.Name, CreatedAt: now}
	case models.RoleParent:
		row = &models.Parent{ID: profile.ID, UserID: profile.UserID, Name: profile.Name, CreatedAt: now}
	default:
		return fmt.Errorf("role %q has no profile table", role)
	}

	if _, err := r.db.NewInsert().Model(row).Exec(ctx); err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("insert %s profile for user %s: %w", role, profile.UserID, ErrConflict)
		}
		return fmt.Errorf("insert %s profile: %w", role, err)
	}
	return nil
}

// FindByUserID fetches the role's profile row by principal ID.
// Absence is (nil, nil); mid-reconciliation it is an expected state.
func (r *BunProfileRepository) FindByUserID(ctx context.Context, role models.Role, userID string) (*Profile, error) {
	return r.findByField(ctx, role, "user_id", userID)
}

// FindByID fetches the role's profile row by its generated ID.
func (r *BunProfileRepository) FindByID(ctx context.Context, role models.Role, id string) (*Profile, error) {
	return r.findByField(ctx, role, "id", id)
}

func (r *BunProfileRepository) findByField(ctx context.Context, role models.Role, field, value string) (*Profile, error) {
	row, err := r.model(role)
	if err != nil {
		return nil, err
	}

	err = r.db.NewSelect().Model(row).Where("? = ?", bun.Ident(field), value).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query %s profile by %s: %w", role, field, err)
	}

	switch m := row.(type) {
	case *models.Student:
		return &Profile{ID: m.ID, UserID: m.UserID, Name: m.Name}, nil
	case *models.Teacher:
		return &Profile{ID: m.ID, UserID: m.UserID, Name: m.Name}, nil
	case *models.Parent:
		return &Profile{ID: m.ID, UserID: m.UserID, Name: m.Name}, nil
	default:
		return nil, fmt.Errorf("unexpected profile model %T", row)
	}
}

// ReassignUser repoints the role's profile rows from oldUserID to newUserID
// and returns the number of rows moved. Only the privileged reconciliation
// path may call this; the client-side reconciler never rewrites ownership.
func (r *BunProfileRepository) ReassignUser(ctx context.Context, role models.Role, oldUserID, newUserID string) (int64, error) {
	row, err := r.model(role)
	if err != nil {
		return 0, err
	}

	result, err := r.db.NewUpdate().
		Model(row).
		Set("user_id = ?", newUserID).
		Where("user_id = ?", oldUserID).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("reassign %s profiles: %w", role, err)
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}
