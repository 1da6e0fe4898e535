package middleware

import (
	"net/http"
	"strings"

	"github.com/wordgrove/groveapi/internal/auth"
)

// ExtractCredentials pulls the session cookie and the Authorization bearer
// token off the request and stores them on the context for the snapshot
// reader. Extraction never fails: absent credentials simply resolve to an
// unauthenticated principal later.
func ExtractCredentials(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		creds := auth.Credentials{}

		if cookie, err := r.Cookie(auth.SessionCookieName); err == nil {
			creds.SessionToken = cookie.Value
		}

		if header := r.Header.Get("Authorization"); header != "" {
			if token, ok := strings.CutPrefix(header, "Bearer "); ok {
				creds.AccessToken = strings.TrimSpace(token)
			}
		}

		next.ServeHTTP(w, r.WithContext(auth.SetCredentials(r.Context(), creds)))
	})
}
