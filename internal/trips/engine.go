// Package trips owns the trip state machine. Every transition runs under a per-trip
// lock, checks the caller's capability, and then applies a conditional write through
// the persistence gateway, so a transition either lands completely or leaves the trip
// untouched. Successful transitions are published to the configured notifier.
package trips

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-commute/internal/apperr"
	"github.com/ukydev/fleet-commute/internal/db"
	"github.com/ukydev/fleet-commute/internal/lock"
	"github.com/ukydev/fleet-commute/internal/metrics"
	"github.com/ukydev/fleet-commute/internal/models"
	"github.com/ukydev/fleet-commute/internal/notify"
	"github.com/ukydev/fleet-commute/internal/validation"
)

// ErrEmployeeNotOnTrip is returned for pickups and drops of an employee the trip does
// not carry. It is an apperr.ErrNotFound.
var ErrEmployeeNotOnTrip = fmt.Errorf("%w: employee is not on this trip", apperr.ErrNotFound)

// Capabilities is the access check the engine consults before a transition.
type Capabilities interface {
	Can(caller *models.Claims, action models.Action) bool
	IsAssignedDriver(caller *models.Claims, trip *models.Trip) bool
}

// Engine applies trip lifecycle transitions.
type Engine struct {
	trips        db.TripCollection
	gate         Capabilities
	locker       lock.Locker
	notifier     notify.Notifier
	directory    Directory
	historyLimit int
	now          func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocker replaces the in-process trip lock, e.g. with a lock.RedisLocker.
func WithLocker(l lock.Locker) Option {
	return func(e *Engine) { e.locker = l }
}

// WithNotifier sets the sink for lifecycle and location events.
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithDirectory sets the name lookup used by reports and exports.
func WithDirectory(d Directory) Option {
	return func(e *Engine) { e.directory = d }
}

// WithHistoryLimit bounds each trip's location history. Zero keeps every sample.
func WithHistoryLimit(n int) Option {
	return func(e *Engine) { e.historyLimit = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine returns an Engine over the given trip store and capability gate.
func NewEngine(store db.TripCollection, gate Capabilities, opts ...Option) *Engine {
	e := &Engine{
		trips:     store,
		gate:      gate,
		locker:    lock.NewKeyedMutex(),
		notifier:  notify.Discard,
		directory: idDirectory{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// clock returns the current time truncated to what the store keeps.
func (e *Engine) clock() time.Time {
	return e.now().UTC().Truncate(time.Millisecond)
}

// locked loads the trip under its lock and hands it to fn.
func (e *Engine) locked(ctx context.Context, tripID primitive.ObjectID, fn func(trip *models.Trip) (*models.Trip, error)) (*models.Trip, error) {
	unlock, err := e.locker.Lock(ctx, tripID.Hex())
	if err != nil {
		return nil, err
	}
	defer unlock()

	trip, err := e.trips.FindTripByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	return fn(trip)
}

// driving runs fn under the trip lock once the caller is confirmed as the trip's driver.
func (e *Engine) driving(ctx context.Context, caller *models.Claims, tripID primitive.ObjectID, fn func(trip *models.Trip) (*models.Trip, error)) (*models.Trip, error) {
	return e.locked(ctx, tripID, func(trip *models.Trip) (*models.Trip, error) {
		if !e.gate.IsAssignedDriver(caller, trip) {
			return nil, apperr.Permission("trip %s is not assigned to you", tripID.Hex())
		}
		return fn(trip)
	})
}

func (e *Engine) require(caller *models.Claims, action models.Action) error {
	if !e.gate.Can(caller, action) {
		return apperr.Permission("role may not %s", action)
	}
	return nil
}

// Create persists a new Scheduled trip with every leg Pending.
func (e *Engine) Create(ctx context.Context, caller *models.Claims, spec models.Trip) (trip *models.Trip, err error) {
	defer func() { metrics.RecordTripOperation("create", err) }()

	if err := e.require(caller, models.ActionManageTrips); err != nil {
		return nil, err
	}

	at := e.clock()
	spec.ID = primitive.NilObjectID
	spec.Status = models.TripScheduled
	spec.ActualStartTime = nil
	spec.ActualEndTime = nil
	spec.ActualDuration = 0
	spec.CurrentLocation = nil
	spec.LocationHistory = nil
	spec.Employees = resetLegs(spec.Employees)
	spec.CreatedAt = at
	spec.UpdatedAt = at
	if err := validateTrip(&spec); err != nil {
		return nil, err
	}

	if err := e.trips.InsertTrip(ctx, &spec); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"trip_id":   spec.ID.Hex(),
		"driver_id": spec.DriverID.Hex(),
		"employees": len(spec.Employees),
	}).Info("Trip created")
	e.notifier.Notify(ctx, notify.Event{Type: notify.EventTripAssigned, TripID: spec.ID.Hex(), Payload: &spec})
	return &spec, nil
}

// Start moves a Scheduled trip to Started. Only the assigned driver may start it.
func (e *Engine) Start(ctx context.Context, caller *models.Claims, tripID primitive.ObjectID) (trip *models.Trip, err error) {
	defer func() { metrics.RecordTripOperation("start", err) }()

	return e.driving(ctx, caller, tripID, func(current *models.Trip) (*models.Trip, error) {
		if current.Status != models.TripScheduled {
			return nil, apperr.Conflict("trip is already %s", current.Status)
		}
		updated, err := e.trips.StartTrip(ctx, tripID, e.clock())
		if err != nil {
			return nil, err
		}
		e.transitioned(ctx, current.Status, updated, nil)
		return updated, nil
	})
}

// MarkPickup records that the driver picked up employeeID.
func (e *Engine) MarkPickup(ctx context.Context, caller *models.Claims, tripID, employeeID primitive.ObjectID) (trip *models.Trip, err error) {
	defer func() { metrics.RecordTripOperation("pickup", err) }()

	return e.driving(ctx, caller, tripID, func(current *models.Trip) (*models.Trip, error) {
		if _, err := legForTransition(current, employeeID, models.LegPending); err != nil {
			return nil, err
		}
		updated, err := e.trips.MarkLegPicked(ctx, tripID, employeeID, e.clock())
		if err != nil {
			return nil, err
		}
		e.transitioned(ctx, current.Status, updated, updated.Leg(employeeID))
		return updated, nil
	})
}

// MarkDrop records that the driver dropped employeeID. Once every leg is Dropped the
// trip completes in the same call, whatever order the legs were dropped in.
func (e *Engine) MarkDrop(ctx context.Context, caller *models.Claims, tripID, employeeID primitive.ObjectID) (trip *models.Trip, err error) {
	defer func() { metrics.RecordTripOperation("drop", err) }()

	return e.driving(ctx, caller, tripID, func(current *models.Trip) (*models.Trip, error) {
		if _, err := legForTransition(current, employeeID, models.LegPicked); err != nil {
			return nil, err
		}
		at := e.clock()
		updated, err := e.trips.MarkLegDropped(ctx, tripID, employeeID, at)
		if err != nil {
			return nil, err
		}
		e.transitioned(ctx, current.Status, updated, updated.Leg(employeeID))

		if !updated.AllDropped() {
			return updated, nil
		}
		return e.complete(ctx, updated, at)
	})
}

func (e *Engine) complete(ctx context.Context, trip *models.Trip, at time.Time) (*models.Trip, error) {
	var minutes float64
	if trip.ActualStartTime != nil {
		minutes = at.Sub(*trip.ActualStartTime).Minutes()
	}
	completed, err := e.trips.CompleteTrip(ctx, trip.ID, at, minutes)
	if err == nil {
		metrics.TripsCompletedTotal.Inc()
		e.transitioned(ctx, trip.Status, completed, nil)
		return completed, nil
	}
	if !errors.Is(err, apperr.ErrConflict) {
		return nil, err
	}
	// Another writer completed or cancelled the trip first; report what is stored.
	return e.trips.FindTripByID(ctx, trip.ID)
}

// Cancel moves a non-terminal trip to Cancelled.
func (e *Engine) Cancel(ctx context.Context, caller *models.Claims, tripID primitive.ObjectID) (trip *models.Trip, err error) {
	defer func() { metrics.RecordTripOperation("cancel", err) }()

	if err := e.require(caller, models.ActionManageTrips); err != nil {
		return nil, err
	}
	return e.locked(ctx, tripID, func(current *models.Trip) (*models.Trip, error) {
		if current.Status.IsTerminal() {
			return nil, apperr.Conflict("trip is already %s", current.Status)
		}
		updated, err := e.trips.CancelTrip(ctx, tripID, e.clock())
		if err != nil {
			return nil, err
		}
		e.transitioned(ctx, current.Status, updated, nil)
		return updated, nil
	})
}

// Update applies an administrative correction. Status may only move to Cancelled and
// the employee list may only change while the trip is Scheduled.
func (e *Engine) Update(ctx context.Context, caller *models.Claims, tripID primitive.ObjectID, upd models.TripUpdate) (trip *models.Trip, err error) {
	defer func() { metrics.RecordTripOperation("update", err) }()

	if err := e.require(caller, models.ActionManageTrips); err != nil {
		return nil, err
	}
	return e.locked(ctx, tripID, func(current *models.Trip) (*models.Trip, error) {
		if current.Status.IsTerminal() {
			return nil, apperr.Conflict("trip is already %s", current.Status)
		}
		next, err := applyUpdate(current, upd)
		if err != nil {
			return nil, err
		}
		next.UpdatedAt = e.clock()
		if err := validateTrip(next); err != nil {
			return nil, err
		}
		if err := e.trips.ReplaceTrip(ctx, next, current.Status); err != nil {
			return nil, err
		}

		switch {
		case next.Status != current.Status:
			e.transitioned(ctx, current.Status, next, nil)
		case next.DriverID != current.DriverID:
			log.WithFields(log.Fields{
				"trip_id":   next.ID.Hex(),
				"driver_id": next.DriverID.Hex(),
				"previous":  current.DriverID.Hex(),
			}).Info("Trip reassigned")
			e.notifier.Notify(ctx, notify.Event{Type: notify.EventTripAssigned, TripID: next.ID.Hex(), Payload: next})
		default:
			log.WithField("trip_id", next.ID.Hex()).Info("Trip updated")
		}
		return next, nil
	})
}

// ReportLocation records the driver's position on a non-terminal trip and relays it.
func (e *Engine) ReportLocation(ctx context.Context, caller *models.Claims, tripID primitive.ObjectID, lat, lng, speed float64) (trip *models.Trip, err error) {
	defer func() { metrics.RecordTripOperation("location", err) }()

	if err := validateSample(lat, lng, speed); err != nil {
		return nil, err
	}
	return e.driving(ctx, caller, tripID, func(current *models.Trip) (*models.Trip, error) {
		if current.Status.IsTerminal() {
			return nil, apperr.Conflict("trip is already %s", current.Status)
		}
		sample := models.LocationSample{Lat: lat, Lng: lng, Speed: speed, Timestamp: e.clock()}
		updated, err := e.trips.AppendLocation(ctx, tripID, sample, e.historyLimit)
		if err != nil {
			return nil, err
		}
		e.notifier.Notify(ctx, notify.Event{
			Type:   notify.EventDriverLocationUpdate,
			TripID: tripID.Hex(),
			Payload: notify.LocationPayload{
				TripID:    tripID.Hex(),
				DriverID:  updated.DriverID.Hex(),
				Lat:       lat,
				Lng:       lng,
				Speed:     speed,
				Timestamp: sample.Timestamp,
			},
		})
		return updated, nil
	})
}

// UpdateDistance overwrites the trip's distance totals, in kilometers.
func (e *Engine) UpdateDistance(ctx context.Context, caller *models.Claims, tripID primitive.ObjectID, total, completed float64) (trip *models.Trip, err error) {
	defer func() { metrics.RecordTripOperation("distance", err) }()

	if total < 0 || completed < 0 {
		return nil, apperr.Validation("distances must not be negative")
	}
	if completed > total {
		return nil, apperr.Validation("completed distance %.2f exceeds total distance %.2f", completed, total)
	}
	return e.driving(ctx, caller, tripID, func(*models.Trip) (*models.Trip, error) {
		return e.trips.UpdateDistance(ctx, tripID, total, completed, e.clock())
	})
}

// Delete removes a trip permanently.
func (e *Engine) Delete(ctx context.Context, caller *models.Claims, tripID primitive.ObjectID) (err error) {
	defer func() { metrics.RecordTripOperation("delete", err) }()

	if err := e.require(caller, models.ActionManageTrips); err != nil {
		return err
	}
	unlock, err := e.locker.Lock(ctx, tripID.Hex())
	if err != nil {
		return err
	}
	defer unlock()

	if err := e.trips.DeleteTrip(ctx, tripID); err != nil {
		return err
	}
	log.WithField("trip_id", tripID.Hex()).Info("Trip deleted")
	return nil
}

// transitioned logs a status or leg change and publishes it.
func (e *Engine) transitioned(ctx context.Context, from models.TripStatus, trip *models.Trip, leg *models.EmployeeLeg) {
	fields := log.Fields{
		"trip_id":   trip.ID.Hex(),
		"driver_id": trip.DriverID.Hex(),
		"from":      from,
		"to":        trip.Status,
	}
	payload := notify.StatusPayload{
		TripID:    trip.ID.Hex(),
		DriverID:  trip.DriverID.Hex(),
		Status:    string(trip.Status),
		Timestamp: trip.UpdatedAt,
	}
	if leg != nil {
		fields["employee_id"] = leg.EmployeeID.Hex()
		fields["leg_status"] = leg.Status
		payload.EmployeeID = leg.EmployeeID.Hex()
		payload.LegStatus = string(leg.Status)
	}
	log.WithFields(fields).Info("Trip transition")
	e.notifier.Notify(ctx, notify.Event{Type: notify.EventTripStatusUpdate, TripID: payload.TripID, Payload: payload})
}

// legForTransition finds employeeID's leg and checks it is in the state want.
func legForTransition(trip *models.Trip, employeeID primitive.ObjectID, want models.LegStatus) (*models.EmployeeLeg, error) {
	if trip.Status.IsTerminal() {
		return nil, apperr.Conflict("trip is already %s", trip.Status)
	}
	leg := trip.Leg(employeeID)
	if leg == nil {
		return nil, fmt.Errorf("%w: %s", ErrEmployeeNotOnTrip, employeeID.Hex())
	}
	if leg.Status != want {
		return nil, apperr.Conflict("employee is already %s", leg.Status)
	}
	return leg, nil
}

func resetLegs(legs []models.EmployeeLeg) []models.EmployeeLeg {
	out := make([]models.EmployeeLeg, len(legs))
	for i, leg := range legs {
		leg.Status = models.LegPending
		leg.PickupTime = nil
		leg.DropTime = nil
		out[i] = leg
	}
	return out
}

func validateTrip(trip *models.Trip) error {
	if err := validation.Struct(trip); err != nil {
		return err
	}
	seen := make(map[primitive.ObjectID]bool, len(trip.Employees))
	for _, leg := range trip.Employees {
		if seen[leg.EmployeeID] {
			return apperr.Validation("employee %s appears more than once", leg.EmployeeID.Hex())
		}
		seen[leg.EmployeeID] = true
	}
	return nil
}

func validateSample(lat, lng, speed float64) error {
	switch {
	case lat < -90 || lat > 90:
		return apperr.Validation("latitude %v out of range", lat)
	case lng < -180 || lng > 180:
		return apperr.Validation("longitude %v out of range", lng)
	case speed < 0:
		return apperr.Validation("speed must not be negative")
	}
	return nil
}

// applyUpdate returns a copy of current with upd applied.
func applyUpdate(current *models.Trip, upd models.TripUpdate) (*models.Trip, error) {
	next := *current

	if upd.Status != nil && *upd.Status != current.Status {
		if *upd.Status != models.TripCancelled {
			return nil, apperr.Validation("status can only be changed to %s", models.TripCancelled)
		}
		next.Status = models.TripCancelled
	}
	if upd.Employees != nil {
		if current.Status != models.TripScheduled {
			return nil, apperr.Conflict("employees cannot change once the trip is %s", current.Status)
		}
		next.Employees = resetLegs(upd.Employees)
	}
	if upd.DriverID != nil && *upd.DriverID != current.DriverID && current.Status != models.TripScheduled {
		return nil, apperr.Conflict("driver cannot change once the trip is %s", current.Status)
	}

	if upd.TripName != nil {
		next.TripName = *upd.TripName
	}
	if upd.RouteID != nil {
		next.RouteID = upd.RouteID
	}
	if upd.DriverID != nil {
		next.DriverID = *upd.DriverID
	}
	if upd.VehicleID != nil {
		next.VehicleID = *upd.VehicleID
	}
	if upd.StartLocation != nil {
		next.StartLocation = upd.StartLocation
	}
	if upd.EndLocation != nil {
		next.EndLocation = upd.EndLocation
	}
	if upd.ScheduledDate != nil {
		next.ScheduledDate = *upd.ScheduledDate
	}
	if upd.ScheduledStartTime != nil {
		next.ScheduledStartTime = *upd.ScheduledStartTime
	}
	if upd.ScheduledEndTime != nil {
		next.ScheduledEndTime = *upd.ScheduledEndTime
	}
	if upd.EstimatedDuration != nil {
		next.EstimatedDuration = *upd.EstimatedDuration
	}
	if upd.Notes != nil {
		next.Notes = *upd.Notes
	}
	if upd.IsRecurring != nil {
		next.IsRecurring = *upd.IsRecurring
	}
	if upd.RecurringDays != nil {
		next.RecurringDays = upd.RecurringDays
	}
	return &next, nil
}
