package idp

import (
	"github.com/mitchellh/mapstructure"
)

// Principal is the normalized view of a provider identity. It is owned by the
// identity provider; the application never mutates it, only re-reads it by
// re-authenticating.
type Principal struct {
	// ID is the provider's stable identifier for the account (UUID).
	ID string
	// Email may be empty for principals created without one.
	Email string
	// Metadata carries the provider-issued claims verbatim.
	Metadata map[string]any
}

// Claims is the subset of provider metadata the reconciliation engine reads.
type Claims struct {
	Role string `mapstructure:"role"`
	Name string `mapstructure:"name"`
}

// DecodeClaims extracts the role and display-name claims from provider
// metadata. Unknown keys are ignored; missing keys decode to empty strings.
func DecodeClaims(metadata map[string]any) (Claims, error) {
	var claims Claims
	if metadata == nil {
		return claims, nil
	}
	if err := mapstructure.Decode(metadata, &claims); err != nil {
		return Claims{}, err
	}
	return claims, nil
}
