package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zitadel/oidc/v3/pkg/client/rp"
	"github.com/zitadel/oidc/v3/pkg/oidc"

	"github.com/wordgrove/groveapi/internal/config"
	httphelper "github.com/zitadel/oidc/v3/pkg/http"
)

// RelyingParty handles browser SSO against the identity provider by wrapping
// the zitadel/oidc RelyingParty implementation. Password login goes through
// the provider's REST API instead; SSO is an optional second entry point and
// both feed the reconciliation engine identically.
type RelyingParty struct {
	rp rp.RelyingParty
}

// NewRelyingParty creates a RelyingParty for the configured SSO client.
func NewRelyingParty(ctx context.Context, cfg *config.SSOConfig) (*RelyingParty, error) {
	// Cookie keys are generated per process; SSO state does not need to
	// survive a restart.
	hashKey, err := generateRandomBytes(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate cookie hash key: %w", err)
	}
	cryptoKey, err := generateRandomBytes(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate cookie crypto key: %w", err)
	}

	cookieHandler := httphelper.NewCookieHandler(hashKey, cryptoKey, httphelper.WithUnsecure())

	options := []rp.Option{
		rp.WithCookieHandler(cookieHandler),
		rp.WithVerifierOpts(rp.WithIssuedAtMaxAge(10 * time.Second)),
		rp.WithPKCE(cookieHandler),
	}

	relyingParty, err := rp.NewRelyingPartyOIDC(ctx, cfg.Issuer, cfg.ClientID, cfg.ClientSecret, cfg.RedirectURI,
		cfg.Scopes, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC relying party: %w", err)
	}

	return &RelyingParty{rp: relyingParty}, nil
}

// RP exposes the wrapped zitadel relying party for the library's handlers.
func (r *RelyingParty) RP() rp.RelyingParty {
	return r.rp
}

// Exchange exchanges an authorization code for an OIDC token and verified claims.
func (r *RelyingParty) Exchange(ctx context.Context, code string) (*oidc.Tokens[*oidc.IDTokenClaims], error) {
	return rp.CodeExchange[*oidc.IDTokenClaims](ctx, code, r.rp)
}

// GenerateState generates a random state string for the authorization request.
func GenerateState() (string, error) {
	b, err := generateRandomBytes(32)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func generateRandomBytes(size int) ([]byte, error) {
	b := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return b, nil
}

// SetRedirectCookie remembers where to send the browser after SSO completes.
func SetRedirectCookie(w http.ResponseWriter, r *http.Request, redirectURI string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "grove.redirect",
		Value:    redirectURI,
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Minute),
		HttpOnly: true,
		Secure:   r.URL.Scheme == "https",
		SameSite: http.SameSiteLaxMode,
	})
}

// GetRedirectCookie reads and clears the post-SSO redirect target.
func GetRedirectCookie(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie("grove.redirect")
	if err != nil {
		return ""
	}
	http.SetCookie(w, &http.Cookie{Name: "grove.redirect", Value: "", Path: "/", MaxAge: -1})
	return cookie.Value
}
