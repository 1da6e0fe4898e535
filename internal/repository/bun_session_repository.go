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

// BunSessionRepository implements SessionRepository using Bun ORM.
type BunSessionRepository struct {
	db *bun.DB
}

// NewBunSessionRepository creates a new Bun-based session repository.
func NewBunSessionRepository(db *bun.DB) *BunSessionRepository {
	return &BunSessionRepository{db: db}
}

// Create inserts a new session row.
func (r *BunSessionRepository) Create(ctx context.Context, session *models.Session) error {
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.LastUsedAt.IsZero() {
		session.LastUsedAt = now
	}

	if _, err := r.db.NewInsert().Model(session).Exec(ctx); err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("insert session: %w", ErrConflict)
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// FindByTokenHash fetches a session by the hashed cookie token.
// Absence is (nil, nil); the snapshot reader falls back to the provider.
func (r *BunSessionRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	session := new(models.Session)
	err := r.db.NewSelect().Model(session).Where("token_hash = ?", tokenHash).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query session: %w", err)
	}
	return session, nil
}

// Touch updates last_used_at for an active session.
func (r *BunSessionRepository) Touch(ctx context.Context, id string) error {
	_, err := r.db.NewUpdate().
		Model((*models.Session)(nil)).
		Set("last_used_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// Revoke marks a session revoked. Returns ErrNotFound when no row matched.
func (r *BunSessionRepository) Revoke(ctx context.Context, id string) error {
	result, err := r.db.NewUpdate().
		Model((*models.Session)(nil)).
		Set("revoked = ?", true).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("revoke session %s: %w", id, ErrNotFound)
	}
	return nil
}
