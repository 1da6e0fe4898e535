// Package identity implements the identity reconciliation engine.
//
// The identity provider and the application datastore are eventually
// consistent with each other: a principal can exist at the provider before
// any row exists for it locally, concurrent tabs and devices race to create
// that row, and role information lives in three places (provider metadata,
// the users table, the role-specific profile tables) that can disagree.
//
// The engine resolves that tension per call:
//
//	Snapshot → Role resolution → Record reconciliation → (on conflict)
//	privileged escalation → one reconciliation retry
//
// Correctness never relies on in-process locking. The datastore's unique
// constraints decide every race, and losers converge by re-reading the
// committed row. Every resolution is request-scoped; results are never
// cached across calls because role and record state can change mid-signup.
package identity
