package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/zitadel/oidc/v3/pkg/client/rp"
	"github.com/zitadel/oidc/v3/pkg/oidc"

	"github.com/wordgrove/groveapi/internal/auth"
	"github.com/wordgrove/groveapi/internal/db/bunx"
	"github.com/wordgrove/groveapi/internal/db/models"
	"github.com/wordgrove/groveapi/internal/identity"
	"github.com/wordgrove/groveapi/internal/idp"
	"github.com/wordgrove/groveapi/internal/repository"
)

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type identityResponse struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	ProfileID string `json:"profile_id,omitempty"`
}

func identityJSON(resolved *identity.ResolvedIdentity) identityResponse {
	return identityResponse{
		UserID:    resolved.PrincipalID,
		Email:     resolved.Email,
		Role:      string(resolved.Role),
		ProfileID: resolved.ProfileID,
	}
}

// HandleSignup registers an account with the identity provider and runs an
// immediate reconciliation so the role records exist before the first page
// load. The role comes from the URL, not the body; admin signup does not
// exist.
func HandleSignup(provider idp.Client, engine *identity.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role, ok := models.ParseRole(chi.URLParam(r, "role"))
		if !ok || role == models.RoleAdmin {
			writeError(w, http.StatusNotFound, "unknown signup role")
			return
		}

		var req signupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "email and password are required")
			return
		}

		principal, err := provider.SignUp(r.Context(), req.Email, req.Password, map[string]any{
			"role": string(role),
			"name": req.Name,
		})
		if err != nil {
			log.Printf("signup with provider failed for %s: %v", req.Email, err)
			writeError(w, http.StatusBadGateway, "identity provider rejected the signup")
			return
		}

		resolved, err := engine.ResolvePrincipal(r.Context(), principal)
		if err != nil {
			writeResolutionError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, identityJSON(resolved))
	}
}

// HandleWhoAmI returns the resolved identity for the caller's credentials.
func HandleWhoAmI(engine *identity.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resolved, err := engine.Resolve(r.Context())
		if err != nil {
			writeResolutionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, identityJSON(resolved))
	}
}

// HandleLogout revokes the caller's session.
func HandleLogout(sessions repository.SessionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		creds, ok := auth.CredentialsFromContext(r.Context())
		if !ok || creds.SessionToken == "" {
			writeError(w, http.StatusUnauthorized, "no active session")
			return
		}

		session, err := sessions.FindByTokenHash(r.Context(), auth.HashSessionToken(creds.SessionToken))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "logout failed")
			return
		}
		if session != nil {
			if err := sessions.Revoke(r.Context(), session.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
				writeError(w, http.StatusInternalServerError, "logout failed")
				return
			}
		}

		clearSessionCookie(w, r)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Logged out"))
	}
}

// HandleSSOLogin initiates the OIDC authorization code flow. An optional
// redirect_uri query parameter names where to send the browser afterwards.
func HandleSSOLogin(rpAuth *auth.RelyingParty) http.HandlerFunc {
	// The library's AuthURLHandler owns PKCE and state cookies; we only add
	// the post-login redirect cookie on top.
	libraryAuthHandler := rp.AuthURLHandler(func() string {
		state, _ := auth.GenerateState()
		return state
	}, rpAuth.RP())
	return func(w http.ResponseWriter, r *http.Request) {
		if redirectURI := r.URL.Query().Get("redirect_uri"); redirectURI != "" {
			auth.SetRedirectCookie(w, r, redirectURI)
		}
		libraryAuthHandler.ServeHTTP(w, r)
	}
}

// HandleSSOCallback exchanges the authorization code, caches the login as a
// local session, and runs reconciliation before redirecting.
func HandleSSOCallback(rpAuth *auth.RelyingParty, engine *identity.Engine, sessions repository.SessionRepository) http.HandlerFunc {
	codeExchangeCallback := func(w http.ResponseWriter, r *http.Request, tokens *oidc.Tokens[*oidc.IDTokenClaims], state string, provider rp.RelyingParty) {
		ctx := r.Context()
		claims := tokens.IDTokenClaims

		principal := &idp.Principal{
			ID:    claims.Subject,
			Email: claims.Email,
		}
		if metadata, ok := claims.Claims["user_metadata"].(map[string]any); ok {
			principal.Metadata = metadata
		}

		token, tokenHash, err := auth.GenerateSessionToken()
		if err != nil {
			log.Printf("sso callback: generate session token: %v", err)
			http.Error(w, "Failed to create session", http.StatusInternalServerError)
			return
		}

		now := time.Now()
		session := &models.Session{
			ID:        bunx.NewUUIDv7(),
			UserID:    principal.ID,
			TokenHash: tokenHash,
			IDToken:   tokens.IDToken,
			ExpiresAt: auth.CalculateExpiry(now),
			CreatedAt: now,
		}
		if err := sessions.Create(ctx, session); err != nil {
			log.Printf("sso callback: store session for %s: %v", principal.ID, err)
			http.Error(w, "Failed to create session", http.StatusInternalServerError)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     auth.SessionCookieName,
			Value:    token,
			Path:     "/",
			Expires:  session.ExpiresAt,
			HttpOnly: true,
			Secure:   r.URL.Scheme == "https",
			SameSite: http.SameSiteLaxMode,
		})

		// Reconcile eagerly so the landing page finds the records in place.
		// A transient failure is not fatal here; the route guard resolves
		// again on the next request.
		if _, err := engine.ResolvePrincipal(ctx, principal); err != nil {
			log.Printf("sso callback: reconciliation for %s: %v", principal.ID, err)
		}

		redirectURI := auth.GetRedirectCookie(w, r)
		if redirectURI == "" {
			redirectURI = "/"
		}
		http.Redirect(w, r, redirectURI, http.StatusFound)
	}
	return rp.CodeExchangeHandler(codeExchangeCallback, rpAuth.RP())
}

func clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   r.URL.Scheme == "https",
		SameSite: http.SameSiteLaxMode,
	})
}
