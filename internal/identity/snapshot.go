package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wordgrove/groveapi/internal/auth"
	"github.com/wordgrove/groveapi/internal/idp"
	"github.com/wordgrove/groveapi/internal/repository"
)

// SnapshotReader extracts a normalized principal view for the current request.
//
// Preference order:
//  1. Claims already verified on the request (bearer token checked against
//     the provider's JWKS by the verifier middleware).
//  2. The local session row, reading the principal out of the stored ID
//     token. Expired or revoked sessions are treated as absent.
//  3. A single round trip to the provider's get-current-user endpoint. This
//     is a user fetch, not a session read, so revoked accounts drop out here.
//
// Reading is side-effect free.
type SnapshotReader struct {
	sessions repository.SessionRepository
	provider idp.Client
}

// NewSnapshotReader constructs a snapshot reader.
func NewSnapshotReader(sessions repository.SessionRepository, provider idp.Client) *SnapshotReader {
	return &SnapshotReader{sessions: sessions, provider: provider}
}

// Snapshot resolves the current principal from request credentials.
// Returns ErrUnauthenticated when no source yields a valid principal.
func (s *SnapshotReader) Snapshot(ctx context.Context) (*idp.Principal, error) {
	if claims, ok := auth.ClaimsFromContext(ctx); ok {
		if principal := principalFromClaims(claims); principal != nil {
			return principal, nil
		}
	}

	creds, _ := auth.CredentialsFromContext(ctx)

	if creds.SessionToken != "" && s.sessions != nil {
		principal, err := s.fromSession(ctx, creds.SessionToken)
		if err != nil {
			return nil, err
		}
		if principal != nil {
			return principal, nil
		}
		// Session absent or stale: fall through to the provider.
	}

	if creds.AccessToken != "" && s.provider != nil {
		principal, err := s.provider.GetUser(ctx, creds.AccessToken)
		if err != nil {
			if errors.Is(err, idp.ErrUnauthenticated) {
				return nil, ErrUnauthenticated
			}
			return nil, fmt.Errorf("provider user fetch: %w", err)
		}
		return principal, nil
	}

	return nil, ErrUnauthenticated
}

// fromSession reads the cached principal out of a session row.
// Returns (nil, nil) when the session is missing, expired, or unparsable, so
// the caller can fall back to a provider round trip.
func (s *SnapshotReader) fromSession(ctx context.Context, token string) (*idp.Principal, error) {
	session, err := s.sessions.FindByTokenHash(ctx, auth.HashSessionToken(token))
	if err != nil {
		return nil, fmt.Errorf("session lookup: %w", err)
	}
	if session == nil || session.Revoked || time.Now().After(session.ExpiresAt) {
		return nil, nil
	}

	// The ID token was verified when the session was created; here it is
	// only a local cache of the principal, so an unverified parse is enough.
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(session.IDToken, claims); err != nil {
		return nil, nil
	}

	principal := principalFromClaims(map[string]any(claims))
	if principal == nil {
		return nil, nil
	}
	if principal.ID == "" {
		principal.ID = session.UserID
	}
	return principal, nil
}

// principalFromClaims builds a principal from token claims. The provider puts
// application claims under user_metadata; sub and email are standard.
func principalFromClaims(claims map[string]any) *idp.Principal {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil
	}

	email, _ := claims["email"].(string)
	metadata, _ := claims["user_metadata"].(map[string]any)

	return &idp.Principal{ID: sub, Email: email, Metadata: metadata}
}
