package handlers

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-commute/internal/apperr"
	"github.com/ukydev/fleet-commute/internal/db"
	"github.com/ukydev/fleet-commute/internal/models"
	"github.com/ukydev/fleet-commute/internal/validation"
)

// VehicleHandler serves /api/vehicles.
type VehicleHandler struct {
	vehicles db.VehicleCollection
	trips    db.TripCollection
}

// NewVehicleHandler creates a vehicle handler. trips backs the delete guard.
func NewVehicleHandler(vehicles db.VehicleCollection, trips db.TripCollection) *VehicleHandler {
	return &VehicleHandler{vehicles: vehicles, trips: trips}
}

// List handles GET /vehicles.
func (h *VehicleHandler) List(w http.ResponseWriter, r *http.Request) {
	vehicles, err := h.vehicles.FindVehicles(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vehicles)
}

// ByDriver handles GET /vehicles/driver/{driverId}.
func (h *VehicleHandler) ByDriver(w http.ResponseWriter, r *http.Request) {
	driverID, err := objectIDParam(r, "driverId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	vehicle, err := h.vehicles.FindVehicleByDriver(r.Context(), driverID)
	if err != nil {
		if statusFor(err) == http.StatusNotFound {
			writeMessage(w, http.StatusNotFound, "No vehicle assigned to this driver")
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vehicle)
}

// Create handles POST /vehicles.
func (h *VehicleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var vehicle models.Vehicle
	if err := decodeJSON(r, &vehicle); err != nil {
		writeError(w, r, err)
		return
	}
	vehicle.ID = [12]byte{}
	vehicle.Normalize()
	if err := validation.Struct(&vehicle); err != nil {
		writeError(w, r, err)
		return
	}
	now := time.Now().UTC()
	vehicle.CreatedAt, vehicle.UpdatedAt = now, now

	if err := h.vehicles.InsertVehicle(r.Context(), &vehicle); err != nil {
		writeError(w, r, err)
		return
	}
	log.WithFields(log.Fields{"vehicle_id": vehicle.ID.Hex(), "number_plate": vehicle.NumberPlate}).Info("Vehicle created")
	writeJSON(w, http.StatusCreated, vehicle)
}

// Update handles PUT /vehicles/{id}. The body replaces every editable field.
func (h *VehicleHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := objectIDParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	existing, err := h.vehicles.FindVehicleByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var vehicle models.Vehicle
	if err := decodeJSON(r, &vehicle); err != nil {
		writeError(w, r, err)
		return
	}
	vehicle.ID = id
	vehicle.CreatedAt = existing.CreatedAt
	vehicle.UpdatedAt = time.Now().UTC()
	vehicle.Normalize()
	if err := validation.Struct(&vehicle); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.vehicles.UpdateVehicle(r.Context(), &vehicle); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vehicle)
}

// Delete handles DELETE /vehicles/{id}. Vehicles still used by a trip on the road or
// scheduled are kept.
func (h *VehicleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := objectIDParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	active, err := h.trips.CountActiveTripsForVehicle(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if active > 0 {
		writeError(w, r, apperr.Conflict("vehicle is used by %d active trip(s)", active))
		return
	}

	if err := h.vehicles.DeleteVehicle(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	log.WithField("vehicle_id", id.Hex()).Info("Vehicle deleted")
	writeMessage(w, http.StatusOK, "Vehicle deleted successfully")
}
