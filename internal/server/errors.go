package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/wordgrove/groveapi/internal/identity"
)

// errorResponse is the JSON body for every non-2xx API response.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	// Retryable hints that the client may retry the same request.
	Retryable bool `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeResolutionError maps the engine's error taxonomy onto HTTP statuses.
func writeResolutionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, errorResponse{
			Error: "not authenticated",
			Code:  "unauthenticated",
		})
	case errors.Is(err, identity.ErrUnresolved):
		writeJSON(w, http.StatusForbidden, errorResponse{
			Error: "role could not be determined for this account",
			Code:  "unresolved",
		})
	case errors.Is(err, identity.ErrReconciliationFailed):
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error:     "account records are still being set up, retry shortly",
			Code:      "reconciliation_failed",
			Retryable: true,
		})
	default:
		log.Printf("identity resolution: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
