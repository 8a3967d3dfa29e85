package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// VehicleStatus is the operational state of a vehicle.
type VehicleStatus string

const (
	VehicleActive      VehicleStatus = "active"
	VehicleMaintenance VehicleStatus = "maintenance"
	VehicleInactive    VehicleStatus = "inactive"
)

// FuelType is the vehicle's energy source.
type FuelType string

const (
	FuelPetrol   FuelType = "petrol"
	FuelDiesel   FuelType = "diesel"
	FuelElectric FuelType = "electric"
	FuelHybrid   FuelType = "hybrid"
)

// VehicleSpecs describes the vehicle itself.
type VehicleSpecs struct {
	Make     string   `bson:"make" json:"make"`
	Model    string   `bson:"model" json:"model"`
	Year     int      `bson:"year,omitempty" json:"year,omitempty"`
	FuelType FuelType `bson:"fuel_type" json:"fuel_type" validate:"oneof=petrol diesel electric hybrid"`
	Mileage  float64  `bson:"mileage,omitempty" json:"mileage,omitempty"` // km per litre
}

// MaintenanceSchedule tracks service dates for a vehicle.
type MaintenanceSchedule struct {
	LastServiceDate *time.Time `bson:"last_service_date,omitempty" json:"last_service_date,omitempty"`
	NextServiceDate *time.Time `bson:"next_service_date,omitempty" json:"next_service_date,omitempty"`
	TotalDistance   float64    `bson:"total_distance" json:"total_distance" validate:"gte=0"` // in kilometers
}

// Vehicle represents a fleet vehicle.
type Vehicle struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Name           string              `bson:"name" json:"name" validate:"required"`
	NumberPlate    string              `bson:"number_plate" json:"number_plate" validate:"required"`
	Capacity       int                 `bson:"capacity" json:"capacity" validate:"min=1,max=50"`
	DriverID       *primitive.ObjectID `bson:"driver_id,omitempty" json:"driver_id,omitempty"`
	Status         VehicleStatus       `bson:"status" json:"status" validate:"oneof=active maintenance inactive"`
	Specifications VehicleSpecs        `bson:"specifications" json:"specifications"`
	Maintenance    MaintenanceSchedule `bson:"maintenance" json:"maintenance"`
	CreatedAt      time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time           `bson:"updated_at" json:"updated_at"`
}

// Normalize trims and upper-cases the plate and fills in default status and fuel type.
func (v *Vehicle) Normalize() {
	v.Name = strings.TrimSpace(v.Name)
	v.NumberPlate = strings.ToUpper(strings.TrimSpace(v.NumberPlate))
	if v.Status == "" {
		v.Status = VehicleActive
	}
	if v.Specifications.FuelType == "" {
		v.Specifications.FuelType = FuelPetrol
	}
}
