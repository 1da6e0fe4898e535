package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/xenitab/go-oidc-middleware/oidctoken"
	"github.com/xenitab/go-oidc-middleware/options"

	"github.com/wordgrove/groveapi/internal/config"
)

// Skipper defines a function to skip verification for matching requests.
type Skipper func(*http.Request) bool

// ErrorResponder writes verification failures to the response writer.
type ErrorResponder func(http.ResponseWriter, *http.Request, error)

type verifierOptions struct {
	skipper        Skipper
	errorResponder ErrorResponder
}

// VerifierOption customises the behaviour of the token verifier middleware.
type VerifierOption func(*verifierOptions)

// WithSkipper overrides the default skipper used by the verifier.
func WithSkipper(skipper Skipper) VerifierOption {
	return func(o *verifierOptions) {
		if skipper != nil {
			o.skipper = skipper
		}
	}
}

// WithErrorResponder overrides the default error responder.
func WithErrorResponder(responder ErrorResponder) VerifierOption {
	return func(o *verifierOptions) {
		if responder != nil {
			o.errorResponder = responder
		}
	}
}

// NewVerifier constructs a chi-compatible middleware that validates
// provider-issued bearer tokens using go-oidc-middleware and stores the
// verified claims on the request context.
//
// Verification is strictly local (issuer JWKS); the snapshot reader still
// performs a provider round trip when the cached claims are insufficient,
// because signature validity does not prove the account still exists.
//
// When no issuer is configured the middleware is a pass-through: requests
// without verifiable tokens fall back to the session/provider paths.
func NewVerifier(cfg *config.Config, opts ...VerifierOption) (func(http.Handler) http.Handler, error) {
	if cfg.OIDC.Issuer == "" {
		return func(next http.Handler) http.Handler {
			return next
		}, nil
	}

	oidcOpts := []options.Option{
		options.WithIssuer(cfg.OIDC.Issuer),
	}
	if cfg.OIDC.Audience != "" {
		oidcOpts = append(oidcOpts, options.WithRequiredAudience(cfg.OIDC.Audience))
	}

	tokenHandler, err := oidctoken.New[map[string]any](nil, oidcOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise oidc token handler: %w", err)
	}

	vOpts := verifierOptions{
		skipper:        defaultSkipper,
		errorResponder: defaultErrorResponder,
	}
	for _, opt := range opts {
		opt(&vOpts)
	}

	tokenStrings := [][]options.TokenStringOption{{}} // Default: Authorization header.

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if vOpts.skipper != nil && vOpts.skipper(r) {
				next.ServeHTTP(w, r)
				return
			}

			token, err := oidctoken.GetTokenString(r.Header.Get, tokenStrings)
			if err != nil || token == "" {
				// No bearer token is not a failure here: the request may
				// carry a session cookie instead.
				next.ServeHTTP(w, r)
				return
			}

			trimmed := strings.TrimSpace(token)
			claims, err := tokenHandler.ParseToken(r.Context(), trimmed)
			if err != nil {
				vOpts.errorResponder(w, r, fmt.Errorf("invalid token: %w", err))
				return
			}

			next.ServeHTTP(w, r.WithContext(SetClaims(r.Context(), claims)))
		})
	}, nil
}

func defaultSkipper(r *http.Request) bool {
	if r == nil {
		return false
	}
	if r.Method == http.MethodOptions {
		return true
	}

	// Public prefixes that should not be subjected to bearer token verification.
	publicPrefixes := []string{
		"/health",
		"/auth/",
		"/login",
	}

	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}

	return false
}

func defaultErrorResponder(w http.ResponseWriter, _ *http.Request, _ error) {
	http.Error(w, "unauthenticated", http.StatusUnauthorized)
}
