package identity

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/wordgrove/groveapi/internal/db/models"
	"github.com/wordgrove/groveapi/internal/idp"
)

// ResolvedIdentity is the engine's output: a role plus the profile row
// backing it. Ephemeral by design; recomputed per resolution because role
// and record state can change between calls.
type ResolvedIdentity struct {
	PrincipalID string
	Email       string
	Role        models.Role
	// ProfileID is the role-specific profile row ID; empty for admins.
	ProfileID string
}

// Engine orchestrates snapshot, role resolution, record reconciliation, and
// conflict escalation into a single resolution.
//
// Per resolution: snapshot failure is terminal ErrUnauthenticated; an
// unresolvable role is terminal ErrUnresolved; a reconciliation conflict is
// escalated to the privileged fallback exactly once, after which one more
// reconciliation pass either succeeds or the resolution ends in
// ErrReconciliationFailed. Retries with delays live inside the reconciler's
// bounded re-reads, never at this level, so escalation cannot loop.
type Engine struct {
	snapshots  *SnapshotReader
	resolver   *RoleResolver
	reconciler *Reconciler
	fallback   FallbackClient
}

// NewEngine constructs a reconciliation engine. fallback may be nil, in
// which case conflicts fail without escalation.
func NewEngine(snapshots *SnapshotReader, resolver *RoleResolver, reconciler *Reconciler, fallback FallbackClient) *Engine {
	return &Engine{
		snapshots:  snapshots,
		resolver:   resolver,
		reconciler: reconciler,
		fallback:   fallback,
	}
}

// Resolve runs a full resolution for the request credentials on ctx.
func (e *Engine) Resolve(ctx context.Context) (*ResolvedIdentity, error) {
	principal, err := e.snapshots.Snapshot(ctx)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return nil, ErrUnauthenticated
		}
		// A provider outage is indistinguishable from "no session" only in
		// effect, not in cause; keep the cause in the chain.
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	return e.ResolvePrincipal(ctx, principal)
}

// ResolvePrincipal resolves a principal already in hand (signup flows obtain
// one directly from the provider before any request credentials exist).
func (e *Engine) ResolvePrincipal(ctx context.Context, principal *idp.Principal) (*ResolvedIdentity, error) {
	role, err := e.resolver.Resolve(ctx, principal)
	if err != nil {
		if errors.Is(err, ErrUnresolved) {
			return nil, ErrUnresolved
		}
		return nil, fmt.Errorf("resolve role for %s: %w", principal.ID, err)
	}

	profileID, err := e.reconciler.Ensure(ctx, principal, role)
	if err == nil {
		return e.resolved(ctx, principal, role, profileID)
	}

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		return nil, fmt.Errorf("%w: %v", ErrReconciliationFailed, err)
	}

	if e.fallback == nil {
		return nil, fmt.Errorf("%w: %v", ErrReconciliationFailed, conflict)
	}

	// One escalation per resolution.
	log.Printf("escalating reconciliation conflict for principal %s: %v", principal.ID, conflict)
	ensureReq := EnsureRequest{UserID: principal.ID, Email: principal.Email, Role: role}
	if err := e.fallback.EnsureUser(ctx, ensureReq); err != nil {
		return nil, fmt.Errorf("%w: escalation: %v", ErrReconciliationFailed, err)
	}

	profileID, err = e.reconciler.Ensure(ctx, principal, role)
	if err != nil {
		return nil, fmt.Errorf("%w: post-escalation: %v", ErrReconciliationFailed, err)
	}
	return e.resolved(ctx, principal, role, profileID)
}

// resolved builds the output, re-reading the effective role so a repair that
// adopted a pre-existing row is reflected in what the caller sees.
func (e *Engine) resolved(ctx context.Context, principal *idp.Principal, role models.Role, profileID string) (*ResolvedIdentity, error) {
	if user, err := e.resolver.users.FindByID(ctx, principal.ID); err == nil && user != nil {
		role = user.Role
	}
	return &ResolvedIdentity{
		PrincipalID: principal.ID,
		Email:       principal.Email,
		Role:        role,
		ProfileID:   profileID,
	}, nil
}
