package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/wordgrove/groveapi/internal/config"
	"github.com/wordgrove/groveapi/internal/identity"
)

// ensureResponse mirrors identity.EnsureResult for the wire.
type ensureResponse struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	Created bool   `json:"created"`
}

// HandleEnsureUser is the privileged reconciliation fallback: it upserts a
// users row with repair authority the request-scoped reconciler does not
// have. Callers authenticate with the service key; the anonymous key never
// reaches this endpoint.
func HandleEnsureUser(admin *identity.AdminReconciler, idpCfg *config.IdPConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !serviceKeyAuthorized(r, idpCfg) {
			writeError(w, http.StatusUnauthorized, "service key required")
			return
		}

		var req identity.EnsureRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		result, err := admin.Ensure(r.Context(), req)
		if err != nil {
			if errors.Is(err, identity.ErrInvalidEnsure) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			log.Printf("privileged ensure for %s failed: %v", req.UserID, err)
			writeError(w, http.StatusInternalServerError, "ensure failed")
			return
		}

		status := http.StatusOK
		if result.Created {
			status = http.StatusCreated
		}
		writeJSON(w, status, ensureResponse{
			UserID:  result.User.ID,
			Email:   result.User.Email,
			Role:    string(result.User.Role),
			Created: result.Created,
		})
	}
}

// serviceKeyAuthorized checks the bearer token against the configured
// service key. A bcrypt hash is preferred when present; otherwise the
// comparison is constant-time against the plain key.
func serviceKeyAuthorized(r *http.Request, idpCfg *config.IdPConfig) bool {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return false
	}

	if idpCfg.ServiceKeyHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(idpCfg.ServiceKeyHash), []byte(token)) == nil
	}
	if idpCfg.ServiceKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(idpCfg.ServiceKey), []byte(token)) == 1
}
