package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TripStatus is the lifecycle state of a trip.
type TripStatus string

const (
	TripScheduled  TripStatus = "Scheduled"
	TripStarted    TripStatus = "Started"
	TripInProgress TripStatus = "In Progress"
	TripCompleted  TripStatus = "Completed"
	TripCancelled  TripStatus = "Cancelled"
)

var tripStatusRank = map[TripStatus]int{
	TripScheduled:  0,
	TripStarted:    1,
	TripInProgress: 2,
	TripCompleted:  3,
}

// IsValid reports whether s is a known trip status.
func (s TripStatus) IsValid() bool {
	_, ok := tripStatusRank[s]
	return ok || s == TripCancelled
}

// IsTerminal reports whether no further lifecycle transition is permitted from s.
func (s TripStatus) IsTerminal() bool {
	return s == TripCompleted || s == TripCancelled
}

// CanTransitionTo reports whether moving from s to next keeps the status sequence
// monotonic. Cancelled is reachable from every non-terminal status; staying in the
// same status is allowed so repeated pickups keep a trip In Progress.
func (s TripStatus) CanTransitionTo(next TripStatus) bool {
	if s.IsTerminal() || !next.IsValid() {
		return false
	}
	if next == TripCancelled {
		return true
	}
	return tripStatusRank[next] >= tripStatusRank[s]
}

// LiveTripStatuses are the statuses of trips currently on the road.
var LiveTripStatuses = []TripStatus{TripStarted, TripInProgress}

// TerminalTripStatuses are the statuses from which a trip never moves.
var TerminalTripStatuses = []TripStatus{TripCompleted, TripCancelled}

// LegStatus is the pickup/drop state of one employee within a trip.
type LegStatus string

const (
	LegPending LegStatus = "Pending"
	LegPicked  LegStatus = "Picked"
	LegDropped LegStatus = "Dropped"
)

// EmployeeLeg is one employee's pickup-to-drop segment within a trip.
type EmployeeLeg struct {
	EmployeeID     primitive.ObjectID `json:"employee_id" bson:"employee_id" validate:"objectid"`
	PickupLocation Place              `json:"pickup_location" bson:"pickup_location"`
	DropLocation   Place              `json:"drop_location" bson:"drop_location"`
	PickupTime     *time.Time         `json:"pickup_time,omitempty" bson:"pickup_time,omitempty"`
	DropTime       *time.Time         `json:"drop_time,omitempty" bson:"drop_time,omitempty"`
	Status         LegStatus          `json:"status" bson:"status"`
}

// Trip is a scheduled commute run of one driver and vehicle carrying a set of employees.
type Trip struct {
	ID                 primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	TripName           string              `json:"trip_name" bson:"trip_name" validate:"required"`
	RouteID            *primitive.ObjectID `json:"route_id,omitempty" bson:"route_id,omitempty"`
	DriverID           primitive.ObjectID  `json:"driver_id" bson:"driver_id" validate:"objectid"`
	VehicleID          primitive.ObjectID  `json:"vehicle_id" bson:"vehicle_id" validate:"objectid"`
	Employees          []EmployeeLeg       `json:"employees" bson:"employees" validate:"required,min=1,dive"`
	StartLocation      *Place              `json:"start_location,omitempty" bson:"start_location,omitempty"`
	EndLocation        *Place              `json:"end_location,omitempty" bson:"end_location,omitempty"`
	ScheduledDate      time.Time           `json:"scheduled_date" bson:"scheduled_date" validate:"required"`
	ScheduledStartTime string              `json:"scheduled_start_time" bson:"scheduled_start_time" validate:"required,clock"`
	ScheduledEndTime   string              `json:"scheduled_end_time" bson:"scheduled_end_time" validate:"required,clock"`
	ActualStartTime    *time.Time          `json:"actual_start_time,omitempty" bson:"actual_start_time,omitempty"`
	ActualEndTime      *time.Time          `json:"actual_end_time,omitempty" bson:"actual_end_time,omitempty"`
	Status             TripStatus          `json:"status" bson:"status"`
	CurrentLocation    *CurrentLocation    `json:"current_location,omitempty" bson:"current_location,omitempty"`
	TotalDistance      float64             `json:"total_distance" bson:"total_distance" validate:"gte=0"`         // in kilometers
	CompletedDistance  float64             `json:"completed_distance" bson:"completed_distance" validate:"gte=0"` // in kilometers
	EstimatedDuration  float64             `json:"estimated_duration,omitempty" bson:"estimated_duration,omitempty"` // in minutes
	ActualDuration     float64             `json:"actual_duration,omitempty" bson:"actual_duration,omitempty"`       // in minutes
	Notes              string              `json:"notes,omitempty" bson:"notes,omitempty"`
	IsRecurring        bool                `json:"is_recurring" bson:"is_recurring"`
	RecurringDays      []Weekday           `json:"recurring_days,omitempty" bson:"recurring_days,omitempty" validate:"dive,weekday"`
	LocationHistory    []LocationSample    `json:"location_history,omitempty" bson:"location_history,omitempty"`
	CreatedAt          time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at" bson:"updated_at"`
}

// Leg returns the leg of the given employee, or nil when the employee is not on the trip.
func (t *Trip) Leg(employeeID primitive.ObjectID) *EmployeeLeg {
	for i := range t.Employees {
		if t.Employees[i].EmployeeID == employeeID {
			return &t.Employees[i]
		}
	}
	return nil
}

// AllDropped reports whether the trip has at least one leg and every leg is Dropped.
func (t *Trip) AllDropped() bool {
	if len(t.Employees) == 0 {
		return false
	}
	for _, leg := range t.Employees {
		if leg.Status != LegDropped {
			return false
		}
	}
	return true
}

// IsAssignedTo reports whether userID is the trip's driver.
func (t *Trip) IsAssignedTo(userID string) bool {
	return !t.DriverID.IsZero() && t.DriverID.Hex() == userID
}

// TripFilter narrows trip queries. Zero fields are ignored.
type TripFilter struct {
	Statuses   []TripStatus
	DriverID   *primitive.ObjectID
	EmployeeID *primitive.ObjectID
	VehicleID  *primitive.ObjectID
	From       *time.Time // scheduled_date >= From
	To         *time.Time // scheduled_date < To
	// SortByActualStart orders by actual start descending instead of the schedule.
	SortByActualStart bool
}

// TripUpdate carries the fields an administrator may correct. Nil fields are left unchanged.
type TripUpdate struct {
	TripName           *string             `json:"trip_name,omitempty"`
	RouteID            *primitive.ObjectID `json:"route_id,omitempty"`
	DriverID           *primitive.ObjectID `json:"driver_id,omitempty"`
	VehicleID          *primitive.ObjectID `json:"vehicle_id,omitempty"`
	Employees          []EmployeeLeg       `json:"employees,omitempty"`
	StartLocation      *Place              `json:"start_location,omitempty"`
	EndLocation        *Place              `json:"end_location,omitempty"`
	ScheduledDate      *time.Time          `json:"scheduled_date,omitempty"`
	ScheduledStartTime *string             `json:"scheduled_start_time,omitempty"`
	ScheduledEndTime   *string             `json:"scheduled_end_time,omitempty"`
	Status             *TripStatus         `json:"status,omitempty"`
	EstimatedDuration  *float64            `json:"estimated_duration,omitempty"`
	Notes              *string             `json:"notes,omitempty"`
	IsRecurring        *bool               `json:"is_recurring,omitempty"`
	RecurringDays      []Weekday           `json:"recurring_days,omitempty"`
}
