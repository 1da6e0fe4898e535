package identity

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/wordgrove/groveapi/internal/db/models"
	"github.com/wordgrove/groveapi/internal/repository"
)

// AdminReconciler is the server side of the privileged fallback: the
// idempotent users-table upsert that may repair cross-identity mismatches the
// request-scoped engine cannot. It backs both the /api/users/ensure endpoint
// and the operator CLI.
//
// It never invents data: when two sources disagree, the persisted row's role
// wins and only ownership (the principal ID) is repointed.
type AdminReconciler struct {
	users    repository.UserRepository
	profiles repository.ProfileRepository
}

// NewAdminReconciler constructs the privileged reconciler.
func NewAdminReconciler(users repository.UserRepository, profiles repository.ProfileRepository) *AdminReconciler {
	return &AdminReconciler{users: users, profiles: profiles}
}

// EnsureResult reports the outcome of a privileged ensure.
type EnsureResult struct {
	User    *models.User
	Created bool
}

// Ensure guarantees a users row for the request. Idempotent: repeated calls
// return the same row.
//
// Repair sequence for a cross-identity mismatch (same email, different
// principal ID): repoint all profile rows from the stale ID to the new one,
// delete the stale users row, then insert the correct row. A crash between
// steps leaves a state the next call repairs.
func (a *AdminReconciler) Ensure(ctx context.Context, req EnsureRequest) (*EnsureResult, error) {
	if req.UserID == "" || req.Email == "" {
		return nil, fmt.Errorf("%w: user_id and email are required", ErrInvalidEnsure)
	}
	if _, ok := models.ParseRole(string(req.Role)); !ok {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidEnsure, req.Role)
	}

	existing, err := a.users.FindByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &EnsureResult{User: existing, Created: false}, nil
	}

	byEmail, err := a.users.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if byEmail != nil && byEmail.ID != req.UserID {
		// The persisted role survives the repair regardless of what the
		// caller resolved locally.
		req.Role = byEmail.Role
		if err := a.adoptStaleIdentity(ctx, byEmail.ID, req.UserID); err != nil {
			return nil, err
		}
	}

	user := &models.User{ID: req.UserID, Email: req.Email, Role: req.Role}
	err = a.users.Create(ctx, user)
	if err == nil {
		log.Printf("ensured user %s (%s) with role %s", req.UserID, req.Email, req.Role)
		return &EnsureResult{User: user, Created: true}, nil
	}
	if !errors.Is(err, repository.ErrConflict) {
		return nil, err
	}

	// Lost a race against another ensure call; the committed row wins.
	existing, err = a.users.FindByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &EnsureResult{User: existing, Created: false}, nil
	}
	return nil, fmt.Errorf("ensure user %s: %w", req.UserID, repository.ErrConflict)
}

// adoptStaleIdentity moves profile ownership from a stale principal ID to
// the current one and removes the stale role record.
func (a *AdminReconciler) adoptStaleIdentity(ctx context.Context, staleID, newID string) error {
	for _, role := range []models.Role{models.RoleStudent, models.RoleTeacher, models.RoleParent} {
		moved, err := a.profiles.ReassignUser(ctx, role, staleID, newID)
		if err != nil {
			return err
		}
		if moved > 0 {
			log.Printf("repointed %d %s profile(s) from %s to %s", moved, role, staleID, newID)
		}
	}

	if err := a.users.Delete(ctx, staleID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	return nil
}
