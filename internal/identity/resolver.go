package identity

import (
	"context"
	"fmt"

	"github.com/wordgrove/groveapi/internal/auth"
	"github.com/wordgrove/groveapi/internal/db/models"
	"github.com/wordgrove/groveapi/internal/idp"
	"github.com/wordgrove/groveapi/internal/repository"
)

// RoleResolver determines the effective role for a principal.
//
// Priority order, stopping at the first hit:
//  1. The users table. The lookup is non-failing: no row is a normal empty
//     result during signup, never an error.
//  2. The provider-issued role claim, restricted to the closed role set.
//     An unrecognized claim value resolves nothing.
//  3. Operator-configured inference rules over the principal's email.
//
// Anything else is ErrUnresolved; callers must not guess.
type RoleResolver struct {
	users repository.UserRepository
	rules []auth.RoleRule
}

// NewRoleResolver constructs a role resolver.
func NewRoleResolver(users repository.UserRepository, rules []auth.RoleRule) *RoleResolver {
	return &RoleResolver{users: users, rules: rules}
}

// Resolve returns the effective role for the principal, or ErrUnresolved.
func (r *RoleResolver) Resolve(ctx context.Context, principal *idp.Principal) (models.Role, error) {
	user, err := r.users.FindByID(ctx, principal.ID)
	if err != nil {
		return "", fmt.Errorf("role lookup: %w", err)
	}
	if user != nil {
		return user.Role, nil
	}

	claims, err := idp.DecodeClaims(principal.Metadata)
	if err != nil {
		return "", fmt.Errorf("decode metadata claims: %w", err)
	}
	if role, ok := models.ParseRole(claims.Role); ok {
		return role, nil
	}

	if role, ok := auth.FirstMatch(r.rules, principal.Email); ok {
		return role, nil
	}

	return "", ErrUnresolved
}
