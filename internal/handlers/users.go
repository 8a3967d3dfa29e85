package handlers

import (
	"net/http"

	"github.com/ukydev/fleet-commute/internal/apperr"
	"github.com/ukydev/fleet-commute/internal/db"
	"github.com/ukydev/fleet-commute/internal/models"
)

// UserHandler lists users for trip planning screens.
type UserHandler struct {
	users db.UserCollection
}

// NewUserHandler creates a user handler.
func NewUserHandler(users db.UserCollection) *UserHandler {
	return &UserHandler{users: users}
}

// List handles GET /users?role=.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	role := models.Role(r.URL.Query().Get("role"))
	if role != "" && !models.IsValidRole(role) {
		writeError(w, r, apperr.Validation("invalid role %q", role))
		return
	}
	users, err := h.users.FindUsersByRole(r.Context(), role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}
