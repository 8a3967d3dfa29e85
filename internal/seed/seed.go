// Package seed loads the demo accounts and vehicles used by local setups and the
// simulator.
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-commute/internal/apperr"
	"github.com/ukydev/fleet-commute/internal/db"
	"github.com/ukydev/fleet-commute/internal/models"
)

// DemoUser is one seeded account. Password is stored hashed.
type DemoUser struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      models.Role
}

// DemoUsers holds one account per role.
var DemoUsers = []DemoUser{
	{"admin", "admin@company.com", "admin123", "John", "Admin", models.RoleCompanyAdmin},
	{"travel", "travel@company.com", "travel123", "Sarah", "Travel", models.RoleTravelAdmin},
	{"driver", "driver@company.com", "driver123", "Mike", "Driver", models.RoleDriver},
	{"employee", "employee@company.com", "employee123", "Alice", "Employee", models.RoleEmployee},
}

// DemoVehicles are the seeded vehicles. The first one is assigned to the demo driver.
var DemoVehicles = []models.Vehicle{
	{
		Name:        "Toyota Innova",
		NumberPlate: "KA05MN1234",
		Capacity:    7,
		Status:      models.VehicleActive,
		Specifications: models.VehicleSpecs{
			Make: "Toyota", Model: "Innova", Year: 2022, FuelType: models.FuelDiesel, Mileage: 15,
		},
	},
	{
		Name:        "Honda City",
		NumberPlate: "KA01AB5678",
		Capacity:    4,
		Status:      models.VehicleActive,
		Specifications: models.VehicleSpecs{
			Make: "Honda", Model: "City", Year: 2021, FuelType: models.FuelPetrol, Mileage: 18,
		},
	},
}

// Hasher turns a plain password into its stored hash.
type Hasher func(password string) (string, error)

// Result reports what Demo created.
type Result struct {
	Users    map[models.Role]primitive.ObjectID
	Vehicles []primitive.ObjectID
}

// Demo inserts the demo users and vehicles. Existing usernames and number plates are
// left alone, so running it twice is harmless.
func Demo(ctx context.Context, users db.UserCollection, vehicles db.VehicleCollection, hash Hasher) (*Result, error) {
	res := &Result{Users: make(map[models.Role]primitive.ObjectID)}

	for _, du := range DemoUsers {
		id, err := ensureUser(ctx, users, du, hash)
		if err != nil {
			return nil, err
		}
		res.Users[du.Role] = id
	}

	existing, err := vehicles.FindVehicles(ctx)
	if err != nil {
		return nil, err
	}
	plates := make(map[string]primitive.ObjectID, len(existing))
	for _, v := range existing {
		plates[v.NumberPlate] = v.ID
	}

	driverID := res.Users[models.RoleDriver]
	for i, template := range DemoVehicles {
		if id, ok := plates[template.NumberPlate]; ok {
			res.Vehicles = append(res.Vehicles, id)
			continue
		}
		vehicle := template
		if i == 0 {
			vehicle.DriverID = &driverID
		}
		vehicle.Normalize()
		vehicle.CreatedAt = time.Now().UTC()
		vehicle.UpdatedAt = vehicle.CreatedAt
		if err := vehicles.InsertVehicle(ctx, &vehicle); err != nil {
			return nil, fmt.Errorf("seed vehicle %s: %w", template.NumberPlate, err)
		}
		log.WithFields(log.Fields{"vehicle_id": vehicle.ID.Hex(), "number_plate": vehicle.NumberPlate}).Info("Demo vehicle created")
		res.Vehicles = append(res.Vehicles, vehicle.ID)
	}
	return res, nil
}

func ensureUser(ctx context.Context, users db.UserCollection, du DemoUser, hash Hasher) (primitive.ObjectID, error) {
	found, err := users.FindUserByUsername(ctx, du.Username)
	if err == nil {
		return found.ID, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return primitive.NilObjectID, err
	}

	passwordHash, err := hash(du.Password)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("seed user %s: %w", du.Username, err)
	}
	user := models.User{
		ID:           primitive.NewObjectID(),
		Username:     du.Username,
		Email:        du.Email,
		PasswordHash: passwordHash,
		Role:         du.Role,
		FirstName:    du.FirstName,
		LastName:     du.LastName,
		IsActive:     true,
	}
	if err := users.InsertUser(ctx, user); err != nil {
		return primitive.NilObjectID, fmt.Errorf("seed user %s: %w", du.Username, err)
	}
	log.WithFields(log.Fields{"user_id": user.ID.Hex(), "role": user.Role}).Info("Demo user created")
	return user.ID, nil
}
