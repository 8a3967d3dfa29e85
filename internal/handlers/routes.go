package handlers

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-commute/internal/db"
	"github.com/ukydev/fleet-commute/internal/models"
	"github.com/ukydev/fleet-commute/internal/validation"
)

// RouteHandler serves /api/routes.
type RouteHandler struct {
	routes db.RouteCollection
}

// NewRouteHandler creates a route handler.
func NewRouteHandler(routes db.RouteCollection) *RouteHandler {
	return &RouteHandler{routes: routes}
}

// List handles GET /routes and returns the active routes.
func (h *RouteHandler) List(w http.ResponseWriter, r *http.Request) {
	routes, err := h.routes.FindActiveRoutes(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, routes)
}

// ByDriver handles GET /routes/driver/{driverId}.
func (h *RouteHandler) ByDriver(w http.ResponseWriter, r *http.Request) {
	driverID, err := objectIDParam(r, "driverId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	routes, err := h.routes.FindRoutesByDriver(r.Context(), driverID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, routes)
}

// Create handles POST /routes.
func (h *RouteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var route models.Route
	if err := decodeJSON(r, &route); err != nil {
		writeError(w, r, err)
		return
	}
	route.ID = [12]byte{}
	route.IsActive = true
	route.Normalize()
	if err := validation.Struct(&route); err != nil {
		writeError(w, r, err)
		return
	}
	now := time.Now().UTC()
	route.CreatedAt, route.UpdatedAt = now, now

	if err := h.routes.InsertRoute(r.Context(), &route); err != nil {
		writeError(w, r, err)
		return
	}
	log.WithFields(log.Fields{"route_id": route.ID.Hex(), "name": route.Name}).Info("Route created")
	writeJSON(w, http.StatusCreated, route)
}

// Update handles PUT /routes/{id}. Deactivated routes stay deactivated.
func (h *RouteHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := objectIDParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	existing, err := h.routes.FindRouteByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var route models.Route
	if err := decodeJSON(r, &route); err != nil {
		writeError(w, r, err)
		return
	}
	route.ID = id
	route.IsActive = existing.IsActive
	route.CreatedAt = existing.CreatedAt
	route.UpdatedAt = time.Now().UTC()
	route.Normalize()
	if err := validation.Struct(&route); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.routes.UpdateRoute(r.Context(), &route); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, route)
}

// Delete handles DELETE /routes/{id} by deactivating the route.
func (h *RouteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := objectIDParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.routes.DeactivateRoute(r.Context(), id, time.Now().UTC()); err != nil {
		writeError(w, r, err)
		return
	}
	log.WithField("route_id", id.Hex()).Info("Route deactivated")
	writeMessage(w, http.StatusOK, "Route deactivated successfully")
}
