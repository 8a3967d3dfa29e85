package trips

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-commute/internal/apperr"
	"github.com/ukydev/fleet-commute/internal/db"
	"github.com/ukydev/fleet-commute/internal/models"
)

// Directory resolves display names for reports. Lookups never fail; unknown ids fall
// back to their hex form.
type Directory interface {
	UserName(ctx context.Context, id primitive.ObjectID) string
	VehicleLabel(ctx context.Context, id primitive.ObjectID) string
}

type idDirectory struct{}

func (idDirectory) UserName(_ context.Context, id primitive.ObjectID) string    { return id.Hex() }
func (idDirectory) VehicleLabel(_ context.Context, id primitive.ObjectID) string { return id.Hex() }

// StoreDirectory looks names up in the user and vehicle collections.
type StoreDirectory struct {
	Users    db.UserCollection
	Vehicles db.VehicleCollection
}

// UserName returns the user's full name.
func (d StoreDirectory) UserName(ctx context.Context, id primitive.ObjectID) string {
	if d.Users == nil {
		return id.Hex()
	}
	user, err := d.Users.FindUserByID(ctx, id.Hex())
	if err != nil {
		return id.Hex()
	}
	return user.FullName()
}

// VehicleLabel returns "name (plate)".
func (d StoreDirectory) VehicleLabel(ctx context.Context, id primitive.ObjectID) string {
	if d.Vehicles == nil {
		return id.Hex()
	}
	vehicle, err := d.Vehicles.FindVehicleByID(ctx, id)
	if err != nil {
		return id.Hex()
	}
	return fmt.Sprintf("%s (%s)", vehicle.Name, vehicle.NumberPlate)
}

// ListQuery filters the administrative trip listing.
type ListQuery struct {
	Status   models.TripStatus
	Date     *time.Time // whole calendar day, UTC
	DriverID *primitive.ObjectID
}

// List returns trips by scheduled date, newest first.
func (e *Engine) List(ctx context.Context, caller *models.Claims, q ListQuery) ([]models.Trip, error) {
	if err := e.require(caller, models.ActionViewAllTrips); err != nil {
		return nil, err
	}
	filter := models.TripFilter{DriverID: q.DriverID}
	if q.Status != "" {
		if !q.Status.IsValid() {
			return nil, apperr.Validation("unknown status %q", q.Status)
		}
		filter.Statuses = []models.TripStatus{q.Status}
	}
	if q.Date != nil {
		from, to := dayBounds(*q.Date)
		filter.From, filter.To = &from, &to
	}
	return e.trips.FindTrips(ctx, filter)
}

// ByDriver returns a driver's trips, optionally restricted to one status.
func (e *Engine) ByDriver(ctx context.Context, caller *models.Claims, driverID primitive.ObjectID, status models.TripStatus) ([]models.Trip, error) {
	if caller == nil {
		return nil, apperr.Permission("authentication required")
	}
	filter := models.TripFilter{DriverID: &driverID}
	if status != "" {
		if !status.IsValid() {
			return nil, apperr.Validation("unknown status %q", status)
		}
		filter.Statuses = []models.TripStatus{status}
	}
	return e.trips.FindTrips(ctx, filter)
}

// ByEmployee returns the trips an employee rides on.
func (e *Engine) ByEmployee(ctx context.Context, caller *models.Claims, employeeID primitive.ObjectID) ([]models.Trip, error) {
	if caller == nil {
		return nil, apperr.Permission("authentication required")
	}
	return e.trips.FindTrips(ctx, models.TripFilter{EmployeeID: &employeeID})
}

// Live returns trips currently on the road, most recently started first.
func (e *Engine) Live(ctx context.Context, caller *models.Claims) ([]models.Trip, error) {
	if err := e.require(caller, models.ActionViewAllTrips); err != nil {
		return nil, err
	}
	return e.trips.FindTrips(ctx, models.TripFilter{
		Statuses:          models.LiveTripStatuses,
		SortByActualStart: true,
	})
}

// Get returns one trip to an administrator, its driver, or an employee riding it.
func (e *Engine) Get(ctx context.Context, caller *models.Claims, tripID primitive.ObjectID) (*models.Trip, error) {
	trip, err := e.trips.FindTripByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if !e.canSee(caller, trip) {
		return nil, apperr.Permission("trip %s is not visible to you", tripID.Hex())
	}
	return trip, nil
}

func (e *Engine) canSee(caller *models.Claims, trip *models.Trip) bool {
	if caller == nil {
		return false
	}
	if e.gate.Can(caller, models.ActionViewAllTrips) || e.gate.IsAssignedDriver(caller, trip) {
		return true
	}
	id, err := primitive.ObjectIDFromHex(caller.UserID)
	return err == nil && trip.Leg(id) != nil
}

// Report summarizes one trip.
type Report struct {
	TripID             string            `json:"trip_id"`
	TripName           string            `json:"trip_name"`
	Driver             string            `json:"driver"`
	Vehicle            string            `json:"vehicle"`
	ScheduledDate      time.Time         `json:"scheduled_date"`
	ScheduledStartTime string            `json:"scheduled_start_time"`
	ScheduledEndTime   string            `json:"scheduled_end_time"`
	ActualStartTime    *time.Time        `json:"actual_start_time,omitempty"`
	ActualEndTime      *time.Time        `json:"actual_end_time,omitempty"`
	TotalDistance      float64           `json:"total_distance"`
	CompletedDistance  float64           `json:"completed_distance"`
	Duration           float64           `json:"duration"`
	Employees          []ReportLeg       `json:"employees"`
	Status             models.TripStatus `json:"status"`
}

// ReportLeg is one employee's line in a Report.
type ReportLeg struct {
	EmployeeID     string           `json:"employee_id"`
	Name           string           `json:"name"`
	PickupLocation string           `json:"pickup_location"`
	DropLocation   string           `json:"drop_location"`
	PickupTime     *time.Time       `json:"pickup_time,omitempty"`
	DropTime       *time.Time       `json:"drop_time,omitempty"`
	Status         models.LegStatus `json:"status"`
}

// Report builds the summary of one trip with driver, vehicle and employee names.
func (e *Engine) Report(ctx context.Context, caller *models.Claims, tripID primitive.ObjectID) (*Report, error) {
	trip, err := e.Get(ctx, caller, tripID)
	if err != nil {
		return nil, err
	}

	report := &Report{
		TripID:             trip.ID.Hex(),
		TripName:           trip.TripName,
		Driver:             e.directory.UserName(ctx, trip.DriverID),
		Vehicle:            e.directory.VehicleLabel(ctx, trip.VehicleID),
		ScheduledDate:      trip.ScheduledDate,
		ScheduledStartTime: trip.ScheduledStartTime,
		ScheduledEndTime:   trip.ScheduledEndTime,
		ActualStartTime:    trip.ActualStartTime,
		ActualEndTime:      trip.ActualEndTime,
		TotalDistance:      trip.TotalDistance,
		CompletedDistance:  trip.CompletedDistance,
		Duration:           trip.ActualDuration,
		Employees:          make([]ReportLeg, 0, len(trip.Employees)),
		Status:             trip.Status,
	}
	for _, leg := range trip.Employees {
		report.Employees = append(report.Employees, ReportLeg{
			EmployeeID:     leg.EmployeeID.Hex(),
			Name:           e.directory.UserName(ctx, leg.EmployeeID),
			PickupLocation: leg.PickupLocation.Address,
			DropLocation:   leg.DropLocation.Address,
			PickupTime:     leg.PickupTime,
			DropTime:       leg.DropTime,
			Status:         leg.Status,
		})
	}
	return report, nil
}

// ExportQuery bounds an export by scheduled date, both ends inclusive.
type ExportQuery struct {
	From   *time.Time
	To     *time.Time
	Status models.TripStatus
}

// ExportRow is one trip in an export.
type ExportRow struct {
	TripID             string            `json:"trip_id"`
	TripName           string            `json:"trip_name"`
	Driver             string            `json:"driver"`
	Vehicle            string            `json:"vehicle"`
	ScheduledDate      time.Time         `json:"scheduled_date"`
	ScheduledStartTime string            `json:"scheduled_start_time"`
	ActualStartTime    *time.Time        `json:"actual_start_time,omitempty"`
	ActualEndTime      *time.Time        `json:"actual_end_time,omitempty"`
	TotalDistance      float64           `json:"total_distance"`
	EmployeeCount      int               `json:"employee_count"`
	Status             models.TripStatus `json:"status"`
	Duration           float64           `json:"duration"`
}

// Export flattens the matching trips into rows, newest scheduled date first.
func (e *Engine) Export(ctx context.Context, caller *models.Claims, q ExportQuery) ([]ExportRow, error) {
	if err := e.require(caller, models.ActionExportTrips); err != nil {
		return nil, err
	}
	filter := models.TripFilter{}
	if q.Status != "" {
		if !q.Status.IsValid() {
			return nil, apperr.Validation("unknown status %q", q.Status)
		}
		filter.Statuses = []models.TripStatus{q.Status}
	}
	if q.From != nil {
		from, _ := dayBounds(*q.From)
		filter.From = &from
	}
	if q.To != nil {
		_, to := dayBounds(*q.To)
		filter.To = &to
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, apperr.Validation("start date must not be after end date")
	}

	trips, err := e.trips.FindTrips(ctx, filter)
	if err != nil {
		return nil, err
	}
	rows := make([]ExportRow, 0, len(trips))
	for _, trip := range trips {
		rows = append(rows, ExportRow{
			TripID:             trip.ID.Hex(),
			TripName:           trip.TripName,
			Driver:             e.directory.UserName(ctx, trip.DriverID),
			Vehicle:            e.directory.VehicleLabel(ctx, trip.VehicleID),
			ScheduledDate:      trip.ScheduledDate,
			ScheduledStartTime: trip.ScheduledStartTime,
			ActualStartTime:    trip.ActualStartTime,
			ActualEndTime:      trip.ActualEndTime,
			TotalDistance:      trip.TotalDistance,
			EmployeeCount:      len(trip.Employees),
			Status:             trip.Status,
			Duration:           trip.ActualDuration,
		})
	}
	return rows, nil
}

// dayBounds returns the UTC midnight starting t's day and the one after it.
func dayBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}
