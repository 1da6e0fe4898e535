package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/wordgrove/groveapi/internal/db/models"
	"github.com/wordgrove/groveapi/internal/identity"
	"github.com/wordgrove/groveapi/internal/repository"
)

type linkChildRequest struct {
	StudentEmail string `json:"student_email"`
}

type childResponse struct {
	StudentID string `json:"student_id"`
	Name      string `json:"name"`
	Level     int    `json:"level"`
}

// HandleLinkChild links a student to the calling parent by the student's
// email. Linking an already linked child succeeds.
func HandleLinkChild(engine *identity.Engine, users repository.UserRepository, profiles repository.ProfileRepository, links repository.ParentLinkRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resolved, err := engine.Resolve(r.Context())
		if err != nil {
			writeResolutionError(w, err)
			return
		}
		if resolved.Role != models.RoleParent {
			writeError(w, http.StatusForbidden, "only parents can link children")
			return
		}

		var req linkChildRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StudentEmail == "" {
			writeError(w, http.StatusBadRequest, "student_email is required")
			return
		}

		studentUser, err := users.FindByEmail(r.Context(), req.StudentEmail)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "lookup failed")
			return
		}
		if studentUser == nil || studentUser.Role != models.RoleStudent {
			writeError(w, http.StatusNotFound, "no student account with that email")
			return
		}

		student, err := profiles.FindByUserID(r.Context(), models.RoleStudent, studentUser.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "lookup failed")
			return
		}
		if student == nil {
			// Role record exists but the profile is still provisioning.
			writeJSON(w, http.StatusConflict, errorResponse{
				Error:     "student account is still being set up",
				Retryable: true,
			})
			return
		}

		if err := links.Link(r.Context(), resolved.ProfileID, student.ID); err != nil {
			log.Printf("link student %s to parent %s: %v", student.ID, resolved.ProfileID, err)
			writeError(w, http.StatusInternalServerError, "link failed")
			return
		}

		writeJSON(w, http.StatusCreated, childResponse{StudentID: student.ID, Name: student.Name})
	}
}

// HandleListChildren lists the students linked to the calling parent.
func HandleListChildren(engine *identity.Engine, links repository.ParentLinkRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resolved, err := engine.Resolve(r.Context())
		if err != nil {
			writeResolutionError(w, err)
			return
		}
		if resolved.Role != models.RoleParent {
			writeError(w, http.StatusForbidden, "only parents have linked children")
			return
		}

		children, err := links.ListChildren(r.Context(), resolved.ProfileID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "lookup failed")
			return
		}

		response := make([]childResponse, 0, len(children))
		for _, child := range children {
			response = append(response, childResponse{
				StudentID: child.ID,
				Name:      child.Name,
				Level:     child.Level,
			})
		}
		writeJSON(w, http.StatusOK, response)
	}
}
