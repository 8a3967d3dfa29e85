package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-commute/internal/apperr"
	"github.com/ukydev/fleet-commute/internal/models"
	"github.com/ukydev/fleet-commute/internal/trips"
)

const dateLayout = "2006-01-02"

// errEmployeeNotOnTrip marks a missing leg so the driver error mapping does not
// report it as a missing trip.
var errEmployeeNotOnTrip = errors.New("employee not on trip")

// TripHandler exposes the trip engine over HTTP.
type TripHandler struct {
	engine *trips.Engine
}

// NewTripHandler creates a trip handler.
func NewTripHandler(engine *trips.Engine) *TripHandler {
	return &TripHandler{engine: engine}
}

// LocationRequest is the body of PUT /trips/{id}/location.
type LocationRequest struct {
	Lat   *float64 `json:"lat"`
	Lng   *float64 `json:"lng"`
	Speed float64  `json:"speed"`
}

// DistanceRequest is the body of PUT /trips/{id}/distance.
type DistanceRequest struct {
	TotalDistance     *float64 `json:"total_distance"`
	CompletedDistance *float64 `json:"completed_distance"`
}

// ExportResponse is the body of GET /trips/export.
type ExportResponse struct {
	Message string            `json:"message"`
	Format  string            `json:"format"`
	Count   int               `json:"count"`
	Data    []trips.ExportRow `json:"data"`
}

// writeTripError reports a missing trip as "Trip not found".
func writeTripError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, apperr.ErrNotFound) {
		writeMessage(w, http.StatusNotFound, msgTripNotFound)
		return
	}
	writeError(w, r, err)
}

// List handles GET /trips?status=&date=&driverId=.
func (h *TripHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	query := trips.ListQuery{Status: models.TripStatus(q.Get("status"))}
	if raw := q.Get("date"); raw != "" {
		day, err := parseDate(raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		query.Date = &day
	}
	if raw := q.Get("driverId"); raw != "" {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			writeError(w, r, apperr.Validation("invalid driverId %q", raw))
			return
		}
		query.DriverID = &id
	}

	list, err := h.engine.List(r.Context(), claims, query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// ByDriver handles GET /trips/driver/{driverId}?status=.
func (h *TripHandler) ByDriver(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}
	driverID, err := objectIDParam(r, "driverId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	list, err := h.engine.ByDriver(r.Context(), claims, driverID, models.TripStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// ByEmployee handles GET /trips/employee/{employeeId}.
func (h *TripHandler) ByEmployee(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}
	employeeID, err := objectIDParam(r, "employeeId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	list, err := h.engine.ByEmployee(r.Context(), claims, employeeID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Live handles GET /trips/live.
func (h *TripHandler) Live(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}
	list, err := h.engine.Live(r.Context(), claims)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Get handles GET /trips/{id}.
func (h *TripHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}
	tripID, err := objectIDParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	trip, err := h.engine.Get(r.Context(), claims, tripID)
	if err != nil {
		writeTripError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// Report handles GET /trips/{id}/report.
func (h *TripHandler) Report(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}
	tripID, err := objectIDParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	report, err := h.engine.Report(r.Context(), claims, tripID)
	if err != nil {
		writeTripError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Message string        `json:"message"`
		Data    *trips.Report `json:"data"`
	}{"Trip report generated", report})
}

// Export handles GET /trips/export?startDate=&endDate=&status=.
func (h *TripHandler) Export(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	if format := q.Get("format"); format != "" && format != "json" {
		writeError(w, r, apperr.Validation("unsupported export format %q", format))
		return
	}
	query := trips.ExportQuery{Status: models.TripStatus(q.Get("status"))}
	for param, dst := range map[string]**time.Time{"startDate": &query.From, "endDate": &query.To} {
		raw := q.Get(param)
		if raw == "" {
			continue
		}
		day, err := parseDate(raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		*dst = &day
	}

	rows, err := h.engine.Export(r.Context(), claims, query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ExportResponse{
		Message: "Export data prepared",
		Format:  "json",
		Count:   len(rows),
		Data:    rows,
	})
}

// Create handles POST /trips.
func (h *TripHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}
	var spec models.Trip
	if err := decodeJSON(r, &spec); err != nil {
		writeError(w, r, err)
		return
	}

	trip, err := h.engine.Create(r.Context(), claims, spec)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, trip)
}

// Update handles PUT /trips/{id}.
func (h *TripHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}
	tripID, err := objectIDParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var upd models.TripUpdate
	if err := decodeJSON(r, &upd); err != nil {
		writeError(w, r, err)
		return
	}

	trip, err := h.engine.Update(r.Context(), claims, tripID, upd)
	if err != nil {
		writeTripError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// Cancel handles PUT /trips/{id}/cancel.
func (h *TripHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}
	tripID, err := objectIDParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	trip, err := h.engine.Cancel(r.Context(), claims, tripID)
	if err != nil {
		writeTripError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// Delete handles DELETE /trips/{id}.
func (h *TripHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}
	tripID, err := objectIDParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.engine.Delete(r.Context(), claims, tripID); err != nil {
		writeTripError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Trip deleted successfully")
}

// Start handles PUT /trips/{id}/start.
func (h *TripHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.drive(w, r, func(claims *models.Claims, tripID primitive.ObjectID) (*models.Trip, error) {
		return h.engine.Start(r.Context(), claims, tripID)
	})
}

// Pickup handles PUT /trips/{id}/pickup/{employeeId}.
func (h *TripHandler) Pickup(w http.ResponseWriter, r *http.Request) {
	h.driveLeg(w, r, h.engine.MarkPickup)
}

// Drop handles PUT /trips/{id}/drop/{employeeId}.
func (h *TripHandler) Drop(w http.ResponseWriter, r *http.Request) {
	h.driveLeg(w, r, h.engine.MarkDrop)
}

// Location handles PUT /trips/{id}/location.
func (h *TripHandler) Location(w http.ResponseWriter, r *http.Request) {
	var req LocationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Lat == nil || req.Lng == nil {
		writeError(w, r, apperr.Validation("lat and lng are required"))
		return
	}
	h.drive(w, r, func(claims *models.Claims, tripID primitive.ObjectID) (*models.Trip, error) {
		return h.engine.ReportLocation(r.Context(), claims, tripID, *req.Lat, *req.Lng, req.Speed)
	})
}

// Distance handles PUT /trips/{id}/distance.
func (h *TripHandler) Distance(w http.ResponseWriter, r *http.Request) {
	var req DistanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.TotalDistance == nil || req.CompletedDistance == nil {
		writeError(w, r, apperr.Validation("total_distance and completed_distance are required"))
		return
	}
	h.drive(w, r, func(claims *models.Claims, tripID primitive.ObjectID) (*models.Trip, error) {
		return h.engine.UpdateDistance(r.Context(), claims, tripID, *req.TotalDistance, *req.CompletedDistance)
	})
}

type legTransition func(ctx context.Context, caller *models.Claims, tripID, employeeID primitive.ObjectID) (*models.Trip, error)

func (h *TripHandler) driveLeg(w http.ResponseWriter, r *http.Request, fn legTransition) {
	employeeID, err := objectIDParam(r, "employeeId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.drive(w, r, func(claims *models.Claims, tripID primitive.ObjectID) (*models.Trip, error) {
		trip, err := fn(r.Context(), claims, tripID, employeeID)
		if errors.Is(err, trips.ErrEmployeeNotOnTrip) {
			return nil, errEmployeeNotOnTrip
		}
		return trip, err
	})
}

func (h *TripHandler) drive(w http.ResponseWriter, r *http.Request, fn func(*models.Claims, primitive.ObjectID) (*models.Trip, error)) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}
	tripID, err := objectIDParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	trip, err := fn(claims, tripID)
	if errors.Is(err, errEmployeeNotOnTrip) {
		writeMessage(w, http.StatusNotFound, "Employee not found in trip")
		return
	}
	if err != nil {
		writeDriverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

func parseDate(raw string) (time.Time, error) {
	day, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, apperr.Validation("invalid date %q, want YYYY-MM-DD", raw)
	}
	return day, nil
}
