package db

import (
	"context"
	"time"

	"github.com/ukydev/fleet-commute/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TripCollection is the persistence gateway for trips. Every state-changing call is a
// single conditional write: when the trip is no longer in the state the call expects,
// it fails with apperr.ErrConflict and nothing is written.
type TripCollection interface {
	InsertTrip(ctx context.Context, trip *models.Trip) error
	FindTripByID(ctx context.Context, id primitive.ObjectID) (*models.Trip, error)
	FindTrips(ctx context.Context, filter models.TripFilter) ([]models.Trip, error)

	// StartTrip moves a Scheduled trip to Started.
	StartTrip(ctx context.Context, id primitive.ObjectID, at time.Time) (*models.Trip, error)
	// MarkLegPicked moves a Pending leg to Picked and the trip to In Progress.
	MarkLegPicked(ctx context.Context, id, employeeID primitive.ObjectID, at time.Time) (*models.Trip, error)
	// MarkLegDropped moves a Picked leg to Dropped.
	MarkLegDropped(ctx context.Context, id, employeeID primitive.ObjectID, at time.Time) (*models.Trip, error)
	// CompleteTrip moves a non-terminal trip whose legs are all Dropped to Completed,
	// recording the actual duration in minutes.
	CompleteTrip(ctx context.Context, id primitive.ObjectID, at time.Time, actualDuration float64) (*models.Trip, error)
	// CancelTrip moves a non-terminal trip to Cancelled.
	CancelTrip(ctx context.Context, id primitive.ObjectID, at time.Time) (*models.Trip, error)
	// ReplaceTrip overwrites the trip if its stored status still equals expected.
	ReplaceTrip(ctx context.Context, trip *models.Trip, expected models.TripStatus) error

	// AppendLocation sets the current location of a non-terminal trip and appends the
	// sample to its history, keeping only the newest limit samples (0 keeps all).
	AppendLocation(ctx context.Context, id primitive.ObjectID, sample models.LocationSample, limit int) (*models.Trip, error)
	UpdateDistance(ctx context.Context, id primitive.ObjectID, total, completed float64, at time.Time) (*models.Trip, error)

	DeleteTrip(ctx context.Context, id primitive.ObjectID) error
	// CountActiveTripsForVehicle counts non-terminal trips that use the vehicle.
	CountActiveTripsForVehicle(ctx context.Context, vehicleID primitive.ObjectID) (int64, error)
}

// VehicleCollection defines the interface for vehicle data operations.
// Number plates are unique; a duplicate yields apperr.ErrConflict.
type VehicleCollection interface {
	InsertVehicle(ctx context.Context, vehicle *models.Vehicle) error
	FindVehicles(ctx context.Context) ([]models.Vehicle, error)
	FindVehicleByID(ctx context.Context, id primitive.ObjectID) (*models.Vehicle, error)
	FindVehicleByDriver(ctx context.Context, driverID primitive.ObjectID) (*models.Vehicle, error)
	UpdateVehicle(ctx context.Context, vehicle *models.Vehicle) error
	DeleteVehicle(ctx context.Context, id primitive.ObjectID) error
}

// RouteCollection defines the interface for route data operations. Routes are never
// removed, only deactivated.
type RouteCollection interface {
	InsertRoute(ctx context.Context, route *models.Route) error
	FindActiveRoutes(ctx context.Context) ([]models.Route, error)
	FindRoutesByDriver(ctx context.Context, driverID primitive.ObjectID) ([]models.Route, error)
	FindRouteByID(ctx context.Context, id primitive.ObjectID) (*models.Route, error)
	UpdateRoute(ctx context.Context, route *models.Route) error
	DeactivateRoute(ctx context.Context, id primitive.ObjectID, at time.Time) error
}
