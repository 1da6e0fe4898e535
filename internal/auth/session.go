package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	// SessionCookieName carries the opaque session token issued after login.
	SessionCookieName = "grove.session"

	// SessionDuration is the default session lifetime.
	SessionDuration = 12 * time.Hour

	// TokenLength is the length of generated session tokens in bytes.
	TokenLength = 32
)

// GenerateSessionToken generates a cryptographically secure random session token.
// Returns: token (hex string), token hash (SHA256 hex), error.
func GenerateSessionToken() (string, string, error) {
	tokenBytes := make([]byte, TokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", "", fmt.Errorf("generate random token: %w", err)
	}

	token := hex.EncodeToString(tokenBytes)
	return token, HashSessionToken(token), nil
}

// HashSessionToken hashes a session token for storage/lookup (SHA256 hex).
func HashSessionToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// CalculateExpiry returns the session expiry for a login at createdAt.
func CalculateExpiry(createdAt time.Time) time.Time {
	return createdAt.Add(SessionDuration)
}

// IsSessionExpired checks if a session has expired.
func IsSessionExpired(expiresAt time.Time) bool {
	return time.Now().After(expiresAt)
}
