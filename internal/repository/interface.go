package repository

import (
	"context"

	"github.com/wordgrove/groveapi/internal/db/models"
)

// UserRepository exposes persistence operations for the central role table.
//
// The Find* lookups are non-failing: a missing row is a normal state during
// signup, so they return (nil, nil) rather than an error. Create returns
// ErrConflict on unique violations so callers can recover by re-reading.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]models.User, error)
}

// Profile is the role-agnostic view of a students/teachers/parents row.
type Profile struct {
	ID     string
	UserID string
	Name   string
}

// ProfileRepository exposes identical persistence operations against the
// students, teachers, and parents tables, keyed by role.
type ProfileRepository interface {
	Create(ctx context.Context, role models.Role, profile *Profile) error
	FindByUserID(ctx context.Context, role models.Role, userID string) (*Profile, error)
	FindByID(ctx context.Context, role models.Role, id string) (*Profile, error)

	// ReassignUser repoints profile rows from a stale principal ID to the
	// current one. Used only by the privileged reconciliation path.
	ReassignUser(ctx context.Context, role models.Role, oldUserID, newUserID string) (int64, error)
}

// ParentLinkRepository manages parent→student links.
type ParentLinkRepository interface {
	Link(ctx context.Context, parentID, studentID string) error
	ListChildren(ctx context.Context, parentID string) ([]models.Student, error)
}

// SessionRepository manages locally cached provider sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	FindByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	Touch(ctx context.Context, id string) error
	Revoke(ctx context.Context, id string) error
}
