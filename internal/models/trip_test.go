package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestTripStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to TripStatus
		want     bool
	}{
		{TripScheduled, TripStarted, true},
		{TripScheduled, TripInProgress, true},
		{TripStarted, TripInProgress, true},
		{TripInProgress, TripInProgress, true},
		{TripInProgress, TripCompleted, true},
		{TripInProgress, TripStarted, false},
		{TripStarted, TripScheduled, false},
		{TripScheduled, TripCancelled, true},
		{TripInProgress, TripCancelled, true},
		{TripCompleted, TripCancelled, false},
		{TripCancelled, TripScheduled, false},
		{TripCancelled, TripCancelled, false},
		{TripScheduled, TripStatus("Paused"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestTripStatus_IsTerminal(t *testing.T) {
	assert.True(t, TripCompleted.IsTerminal())
	assert.True(t, TripCancelled.IsTerminal())
	assert.False(t, TripScheduled.IsTerminal())
	assert.False(t, TripInProgress.IsTerminal())
}

func TestTrip_AllDropped(t *testing.T) {
	e1, e2 := primitive.NewObjectID(), primitive.NewObjectID()

	trip := &Trip{}
	assert.False(t, trip.AllDropped(), "a trip without legs is never complete")

	trip.Employees = []EmployeeLeg{
		{EmployeeID: e1, Status: LegDropped},
		{EmployeeID: e2, Status: LegPicked},
	}
	assert.False(t, trip.AllDropped())

	trip.Leg(e2).Status = LegDropped
	assert.True(t, trip.AllDropped())
	assert.Nil(t, trip.Leg(primitive.NewObjectID()))
}

func TestTrip_IsAssignedTo(t *testing.T) {
	driver := primitive.NewObjectID()
	trip := &Trip{DriverID: driver}
	assert.True(t, trip.IsAssignedTo(driver.Hex()))
	assert.False(t, trip.IsAssignedTo(primitive.NewObjectID().Hex()))
	assert.False(t, (&Trip{}).IsAssignedTo(primitive.NilObjectID.Hex()))
}

func TestRoute_Normalize(t *testing.T) {
	r := &Route{
		Name: "  Office loop ",
		PickupPoints: []Stop{
			{Name: "C", Order: 3},
			{Name: "A", Order: 1},
			{Name: "B", Order: 2},
		},
	}
	r.Normalize()
	assert.Equal(t, "Office loop", r.Name)
	assert.Equal(t, []string{"A", "B", "C"}, []string{r.PickupPoints[0].Name, r.PickupPoints[1].Name, r.PickupPoints[2].Name})
	assert.NotNil(t, r.AssignedDrivers)
}

func TestVehicle_Normalize(t *testing.T) {
	v := &Vehicle{NumberPlate: " ka05mn1234 "}
	v.Normalize()
	assert.Equal(t, "KA05MN1234", v.NumberPlate)
	assert.Equal(t, VehicleActive, v.Status)
	assert.Equal(t, FuelPetrol, v.Specifications.FuelType)
}
