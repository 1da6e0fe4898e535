package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wordgrove/groveapi/internal/db/bunx"
	"github.com/wordgrove/groveapi/internal/db/models"
	"github.com/wordgrove/groveapi/internal/idp"
	"github.com/wordgrove/groveapi/internal/repository"
)

const (
	// ensureRetries bounds the re-reads that absorb replication lag between
	// a concurrent actor's committed write and this reader's visibility.
	ensureRetries = 3
	// ensureRetryDelay is the fixed pause between bounded re-reads.
	ensureRetryDelay = 200 * time.Millisecond
)

// Reconciler idempotently guarantees the users row and the role-specific
// profile row for a principal. Calling Ensure any number of times, from any
// number of concurrent callers, yields the same profile ID and never a
// duplicate row: unique constraints decide races and losers re-read.
type Reconciler struct {
	users    repository.UserRepository
	profiles repository.ProfileRepository

	retries    int
	retryDelay time.Duration
}

// NewReconciler constructs a record reconciler.
func NewReconciler(users repository.UserRepository, profiles repository.ProfileRepository) *Reconciler {
	return &Reconciler{
		users:      users,
		profiles:   profiles,
		retries:    ensureRetries,
		retryDelay: ensureRetryDelay,
	}
}

// Ensure materializes the records for (principal, role) and returns the
// profile row ID (empty for admins, who carry no profile table).
//
// A *ConflictError return means local repair could not converge and the
// caller should escalate to the privileged fallback. Any other error is an
// infrastructure failure; both leave previously committed partial writes in
// place for the next attempt to observe.
func (r *Reconciler) Ensure(ctx context.Context, principal *idp.Principal, role models.Role) (string, error) {
	user, err := r.ensureUser(ctx, principal, role)
	if err != nil {
		return "", err
	}

	// A pre-existing row's role wins over the locally resolved one: the
	// engine never rewrites a persisted role assignment.
	role = user.Role
	if !role.HasProfile() {
		return "", nil
	}

	return r.ensureProfile(ctx, principal, role)
}

// ensureUser establishes the central role record.
func (r *Reconciler) ensureUser(ctx context.Context, principal *idp.Principal, role models.Role) (*models.User, error) {
	user, err := r.users.FindByID(ctx, principal.ID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	err = r.users.Create(ctx, &models.User{
		ID:    principal.ID,
		Email: principal.Email,
		Role:  role,
	})
	if err == nil {
		return &models.User{ID: principal.ID, Email: principal.Email, Role: role}, nil
	}
	if !errors.Is(err, repository.ErrConflict) {
		return nil, err
	}

	// The insert lost a race or hit a stale row. Re-read by ID first: the
	// common case is a concurrent tab that just committed the same row.
	user, err = r.awaitUserByID(ctx, principal.ID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	// No row under our ID. The email column is the other unique constraint:
	// a row under a different principal ID for the same email is a
	// cross-identity mismatch that only the privileged path may repair.
	if principal.Email != "" {
		byEmail, err := r.users.FindByEmail(ctx, principal.Email)
		if err != nil {
			return nil, err
		}
		if byEmail != nil && byEmail.ID != principal.ID {
			return nil, &ConflictError{
				PrincipalID: principal.ID,
				Email:       principal.Email,
				ExistingID:  byEmail.ID,
			}
		}
		if byEmail != nil {
			return byEmail, nil
		}
	}

	return nil, &ConflictError{PrincipalID: principal.ID, Email: principal.Email}
}

// ensureProfile establishes the role-specific profile row and returns its ID.
func (r *Reconciler) ensureProfile(ctx context.Context, principal *idp.Principal, role models.Role) (string, error) {
	profile, err := r.profiles.FindByUserID(ctx, role, principal.ID)
	if err != nil {
		return "", err
	}
	if profile != nil {
		return profile.ID, nil
	}

	err = r.profiles.Create(ctx, role, &repository.Profile{
		ID:     bunx.NewUUIDv7(),
		UserID: principal.ID,
		Name:   displayName(principal, role),
	})
	if err != nil && !errors.Is(err, repository.ErrConflict) {
		return "", err
	}
	if err == nil {
		// Re-read rather than trusting our own struct: the committed row is
		// the single source of truth for the profile ID.
		profile, err = r.profiles.FindByUserID(ctx, role, principal.ID)
		if err != nil {
			return "", err
		}
		if profile != nil {
			return profile.ID, nil
		}
	}

	// Conflicting inserts are expected under concurrent tabs; converge on
	// the committed row, allowing for replication lag.
	profile, err = r.awaitProfile(ctx, role, principal.ID)
	if err != nil {
		return "", err
	}
	if profile == nil {
		return "", &ConflictError{PrincipalID: principal.ID, Email: principal.Email}
	}
	return profile.ID, nil
}

// awaitUserByID re-reads the users row with a bounded retry budget.
// Returns (nil, nil) when the budget is exhausted without seeing a row.
func (r *Reconciler) awaitUserByID(ctx context.Context, id string) (*models.User, error) {
	for attempt := 0; attempt < r.retries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, r.retryDelay); err != nil {
				return nil, err
			}
		}
		user, err := r.users.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if user != nil {
			return user, nil
		}
	}
	return nil, nil
}

// awaitProfile re-reads the profile row with a bounded retry budget.
func (r *Reconciler) awaitProfile(ctx context.Context, role models.Role, userID string) (*repository.Profile, error) {
	for attempt := 0; attempt < r.retries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, r.retryDelay); err != nil {
				return nil, err
			}
		}
		profile, err := r.profiles.FindByUserID(ctx, role, userID)
		if err != nil {
			return nil, err
		}
		if profile != nil {
			return profile, nil
		}
	}
	return nil, nil
}

// displayName picks the profile display name: provider metadata name, then
// the email local part, then a role-derived placeholder.
func displayName(principal *idp.Principal, role models.Role) string {
	claims, err := idp.DecodeClaims(principal.Metadata)
	if err == nil && claims.Name != "" {
		return claims.Name
	}
	if principal.Email != "" {
		if local, _, ok := strings.Cut(principal.Email, "@"); ok && local != "" {
			return local
		}
	}
	switch role {
	case models.RoleTeacher:
		return "Teacher"
	case models.RoleParent:
		return "Parent"
	default:
		return "Student"
	}
}

// sleepCtx pauses for d or until the caller abandons the resolution.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("reconciliation abandoned: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
