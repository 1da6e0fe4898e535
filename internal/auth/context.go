package auth

import "context"

// Credentials are the raw request credentials the reconciliation engine may
// use to reach the identity provider. Extracted once per request by the
// credential middleware; never stored beyond the request.
type Credentials struct {
	// SessionToken is the opaque session cookie value, if present.
	SessionToken string
	// AccessToken is the provider-issued bearer token, if present.
	AccessToken string
}

type credentialsContextKey struct{}

// SetCredentials stores request credentials on the context.
func SetCredentials(ctx context.Context, creds Credentials) context.Context {
	return context.WithValue(ctx, credentialsContextKey{}, creds)
}

// CredentialsFromContext retrieves request credentials from the context.
func CredentialsFromContext(ctx context.Context) (Credentials, bool) {
	creds, ok := ctx.Value(credentialsContextKey{}).(Credentials)
	return creds, ok
}

type claimsContextKey struct{}

// SetClaims stores verified token claims on the context.
func SetClaims(ctx context.Context, claims map[string]any) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext retrieves verified token claims from the context.
func ClaimsFromContext(ctx context.Context) (map[string]any, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(map[string]any)
	return claims, ok
}
