package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/wordgrove/groveapi/internal/db/bunx"
	"github.com/wordgrove/groveapi/internal/db/models"
)

// BunParentLinkRepository implements ParentLinkRepository using Bun ORM.
type BunParentLinkRepository struct {
	db *bun.DB
}

// NewBunParentLinkRepository creates a new Bun-based parent link repository.
func NewBunParentLinkRepository(db *bun.DB) *BunParentLinkRepository {
	return &BunParentLinkRepository{db: db}
}

// Link creates a parent→student link. An already-existing link is success:
// the unique (parent_id, student_id) index absorbs double submits.
func (r *BunParentLinkRepository) Link(ctx context.Context, parentID, studentID string) error {
	link := &models.ParentStudent{
		ID:        bunx.NewUUIDv7(),
		ParentID:  parentID,
		StudentID: studentID,
		CreatedAt: time.Now(),
	}

	_, err := r.db.NewInsert().Model(link).Exec(ctx)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("insert parent link: %w", err)
	}
	return nil
}

// ListChildren returns the student profiles linked to a parent.
func (r *BunParentLinkRepository) ListChildren(ctx context.Context, parentID string) ([]models.Student, error) {
	var students []models.Student
	err := r.db.NewSelect().
		Model(&students).
		Join("JOIN parent_students AS ps ON ps.student_id = st.id").
		Where("ps.parent_id = ?", parentID).
		Order("st.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	if students == nil {
		students = []models.Student{}
	}
	return students, nil
}
