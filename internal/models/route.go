package models

import (
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Weekday is a day-of-week tag used by route schedules and recurring trips.
type Weekday string

const (
	Monday    Weekday = "Monday"
	Tuesday   Weekday = "Tuesday"
	Wednesday Weekday = "Wednesday"
	Thursday  Weekday = "Thursday"
	Friday    Weekday = "Friday"
	Saturday  Weekday = "Saturday"
	Sunday    Weekday = "Sunday"
)

// IsValid reports whether d names a day of the week.
func (d Weekday) IsValid() bool {
	switch d {
	case Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday:
		return true
	default:
		return false
	}
}

// Stop is one pickup or drop point of a route. Order, not the slice position,
// defines the stop sequence.
type Stop struct {
	Name    string  `bson:"name" json:"name"`
	Address string  `bson:"address" json:"address"`
	Lat     float64 `bson:"lat" json:"lat" validate:"latitude"`
	Lng     float64 `bson:"lng" json:"lng" validate:"longitude"`
	Order   int     `bson:"order" json:"order" validate:"gte=0"`
}

// RouteSchedule is the weekly operating window of a route.
type RouteSchedule struct {
	Days      []Weekday `bson:"days,omitempty" json:"days,omitempty" validate:"dive,weekday"`
	StartTime string    `bson:"start_time,omitempty" json:"start_time,omitempty" validate:"omitempty,clock"`
	EndTime   string    `bson:"end_time,omitempty" json:"end_time,omitempty" validate:"omitempty,clock"`
}

// Route is a reusable commute path with its assigned drivers and vehicles.
type Route struct {
	ID                primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name              string               `bson:"name" json:"name" validate:"required"`
	Description       string               `bson:"description,omitempty" json:"description,omitempty"`
	PickupPoints      []Stop               `bson:"pickup_points" json:"pickup_points" validate:"required,min=1,dive"`
	DropPoints        []Stop               `bson:"drop_points" json:"drop_points" validate:"required,min=1,dive"`
	AssignedDrivers   []primitive.ObjectID `bson:"assigned_drivers" json:"assigned_drivers"`
	AssignedVehicles  []primitive.ObjectID `bson:"assigned_vehicles" json:"assigned_vehicles"`
	Schedule          RouteSchedule        `bson:"schedule" json:"schedule"`
	IsActive          bool                 `bson:"is_active" json:"is_active"`
	EstimatedDuration float64              `bson:"estimated_duration,omitempty" json:"estimated_duration,omitempty"` // in minutes
	EstimatedDistance float64              `bson:"estimated_distance,omitempty" json:"estimated_distance,omitempty"` // in kilometers
	CreatedAt         time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt         time.Time            `bson:"updated_at" json:"updated_at"`
}

// Normalize trims the name and orders both stop sequences by their order field.
func (r *Route) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	SortStops(r.PickupPoints)
	SortStops(r.DropPoints)
	if r.AssignedDrivers == nil {
		r.AssignedDrivers = []primitive.ObjectID{}
	}
	if r.AssignedVehicles == nil {
		r.AssignedVehicles = []primitive.ObjectID{}
	}
}

// SortStops orders stops by their order field, keeping input order for ties.
func SortStops(stops []Stop) {
	sort.SliceStable(stops, func(i, j int) bool {
		return stops[i].Order < stops[j].Order
	})
}
