package identity

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated means no valid principal backs the request.
	// Recovered by redirecting to login.
	ErrUnauthenticated = errors.New("identity: unauthenticated")

	// ErrUnresolved means the principal is valid but its role cannot be
	// determined yet. This is a normal transient state mid-signup, not a
	// failure: callers must not guess a role and must not retry aggressively.
	ErrUnresolved = errors.New("identity: role unresolved")

	// ErrReconciliationFailed means the role is known but the records could
	// not be materialized even after privileged escalation. Terminal for
	// this resolution; surfaced to signup flows as a retry prompt.
	ErrReconciliationFailed = errors.New("identity: reconciliation failed")

	// ErrInvalidEnsure marks privileged ensure requests rejected before any
	// write: missing fields or a role outside the closed set.
	ErrInvalidEnsure = errors.New("identity: invalid ensure request")
)

// ConflictError reports a reconciliation conflict that local repair could not
// converge: either a role record exists under a different principal ID for
// the same email, or bounded re-reads exhausted without observing a write.
// The engine escalates it to the privileged fallback exactly once.
type ConflictError struct {
	PrincipalID string
	Email       string
	// ExistingID is the principal ID currently holding the email, when the
	// conflict is a cross-identity mismatch. Empty for replication-lag
	// timeouts.
	ExistingID string
}

func (e *ConflictError) Error() string {
	if e.ExistingID != "" {
		return fmt.Sprintf("identity: role record for %s held by principal %s (want %s)", e.Email, e.ExistingID, e.PrincipalID)
	}
	return fmt.Sprintf("identity: record for principal %s not observable after bounded re-reads", e.PrincipalID)
}
