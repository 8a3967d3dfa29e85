package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-commute/internal/apperr"
	"github.com/ukydev/fleet-commute/internal/middleware"
	"github.com/ukydev/fleet-commute/internal/models"
)

const (
	maxBodyBytes = 1 << 20

	msgServerError  = "Server error"
	msgTripNotFound = "Trip not found"
	msgNotAssigned  = "Trip not found or not assigned to you"
)

// Message is the body of every error response and of plain acknowledgements.
type Message struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to write response")
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Message{Message: msg})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return apperr.Validation("failed to read request body")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperr.Validation("invalid JSON")
	}
	return nil
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err with its mapped status. Infrastructure failures are logged
// and reported with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": w.Header().Get(middleware.RequestIDHeader),
		}).Error("Request failed")
		writeMessage(w, status, msgServerError)
		return
	}
	writeMessage(w, status, err.Error())
}

// writeDriverError hides whether a trip exists from a driver it is not assigned to.
func writeDriverError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrPermission) {
		writeMessage(w, http.StatusNotFound, msgNotAssigned)
		return
	}
	writeError(w, r, err)
}

// objectIDParam parses the named URL parameter as an ObjectID.
func objectIDParam(r *http.Request, name string) (primitive.ObjectID, error) {
	raw := chi.URLParam(r, name)
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, apperr.Validation("invalid %s %q", name, raw)
	}
	return id, nil
}

// caller returns the authenticated claims, writing 401 when there are none.
func caller(w http.ResponseWriter, r *http.Request) (*models.Claims, bool) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "User context not found")
	}
	return claims, ok
}
