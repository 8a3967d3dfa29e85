package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ukydev/fleet-commute/internal/apperr"
	"github.com/ukydev/fleet-commute/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryTripCollection is an in-process TripCollection. Each call holds the collection
// mutex for its whole read-check-write, so conditional updates behave like the Mongo
// filtered updates. Stored trips are copied on the way in and out.
type MemoryTripCollection struct {
	mu    sync.Mutex
	trips map[primitive.ObjectID]*models.Trip
}

// NewMemoryTripCollection returns an empty in-memory trip store.
func NewMemoryTripCollection() *MemoryTripCollection {
	return &MemoryTripCollection{trips: make(map[primitive.ObjectID]*models.Trip)}
}

// InsertTrip stores a copy of trip, assigning its ID.
func (c *MemoryTripCollection) InsertTrip(_ context.Context, trip *models.Trip) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if trip.ID.IsZero() {
		trip.ID = primitive.NewObjectID()
	}
	if _, exists := c.trips[trip.ID]; exists {
		return apperr.Conflict("trip %s already exists", trip.ID.Hex())
	}
	c.trips[trip.ID] = cloneTrip(trip)
	return nil
}

// FindTripByID returns a copy of the trip.
func (c *MemoryTripCollection) FindTripByID(_ context.Context, id primitive.ObjectID) (*models.Trip, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	trip, ok := c.trips[id]
	if !ok {
		return nil, apperr.NotFound("trip %s", id.Hex())
	}
	return cloneTrip(trip), nil
}

// FindTrips returns copies of the trips matching filter in the same order as the Mongo store.
func (c *MemoryTripCollection) FindTrips(_ context.Context, filter models.TripFilter) ([]models.Trip, error) {
	c.mu.Lock()
	out := []models.Trip{}
	for _, trip := range c.trips {
		if matchesTrip(trip, filter) {
			out = append(out, *cloneTrip(trip))
		}
	}
	c.mu.Unlock()

	if filter.SortByActualStart {
		sort.SliceStable(out, func(i, j int) bool {
			return timeOrZero(out[i].ActualStartTime).After(timeOrZero(out[j].ActualStartTime))
		})
	} else {
		sort.SliceStable(out, func(i, j int) bool {
			if !out[i].ScheduledDate.Equal(out[j].ScheduledDate) {
				return out[i].ScheduledDate.After(out[j].ScheduledDate)
			}
			return out[i].ScheduledStartTime < out[j].ScheduledStartTime
		})
	}
	return out, nil
}

func matchesTrip(t *models.Trip, f models.TripFilter) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, t.Status) {
		return false
	}
	if f.DriverID != nil && t.DriverID != *f.DriverID {
		return false
	}
	if f.VehicleID != nil && t.VehicleID != *f.VehicleID {
		return false
	}
	if f.EmployeeID != nil && t.Leg(*f.EmployeeID) == nil {
		return false
	}
	if f.From != nil && t.ScheduledDate.Before(*f.From) {
		return false
	}
	if f.To != nil && !t.ScheduledDate.Before(*f.To) {
		return false
	}
	return true
}

func containsStatus(statuses []models.TripStatus, s models.TripStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// modify runs fn on the stored trip under the lock. fn reports whether the trip is in
// the expected state; when it is not, nothing is written.
func (c *MemoryTripCollection) modify(op string, id primitive.ObjectID, fn func(*models.Trip) bool) (*models.Trip, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored, ok := c.trips[id]
	if !ok {
		return nil, apperr.Conflict("%s: trip is not in the expected state", op)
	}
	working := cloneTrip(stored)
	if !fn(working) {
		return nil, apperr.Conflict("%s: trip is not in the expected state", op)
	}
	c.trips[id] = working
	return cloneTrip(working), nil
}

// StartTrip moves a Scheduled trip to Started.
func (c *MemoryTripCollection) StartTrip(_ context.Context, id primitive.ObjectID, at time.Time) (*models.Trip, error) {
	return c.modify("start trip", id, func(t *models.Trip) bool {
		if t.Status != models.TripScheduled {
			return false
		}
		t.Status = models.TripStarted
		t.ActualStartTime = &at
		t.UpdatedAt = at
		return true
	})
}

// MarkLegPicked moves a Pending leg to Picked and the trip to In Progress.
func (c *MemoryTripCollection) MarkLegPicked(_ context.Context, id, employeeID primitive.ObjectID, at time.Time) (*models.Trip, error) {
	return c.modify("pick up employee", id, func(t *models.Trip) bool {
		leg := t.Leg(employeeID)
		if t.Status.IsTerminal() || leg == nil || leg.Status != models.LegPending {
			return false
		}
		leg.Status = models.LegPicked
		leg.PickupTime = &at
		t.Status = models.TripInProgress
		t.UpdatedAt = at
		return true
	})
}

// MarkLegDropped moves a Picked leg to Dropped.
func (c *MemoryTripCollection) MarkLegDropped(_ context.Context, id, employeeID primitive.ObjectID, at time.Time) (*models.Trip, error) {
	return c.modify("drop employee", id, func(t *models.Trip) bool {
		leg := t.Leg(employeeID)
		if t.Status.IsTerminal() || leg == nil || leg.Status != models.LegPicked {
			return false
		}
		leg.Status = models.LegDropped
		leg.DropTime = &at
		t.UpdatedAt = at
		return true
	})
}

// CompleteTrip moves a non-terminal trip whose legs are all Dropped to Completed.
func (c *MemoryTripCollection) CompleteTrip(_ context.Context, id primitive.ObjectID, at time.Time, actualDuration float64) (*models.Trip, error) {
	return c.modify("complete trip", id, func(t *models.Trip) bool {
		if t.Status.IsTerminal() || !t.AllDropped() {
			return false
		}
		t.Status = models.TripCompleted
		t.ActualEndTime = &at
		t.ActualDuration = actualDuration
		t.UpdatedAt = at
		return true
	})
}

// CancelTrip moves a non-terminal trip to Cancelled.
func (c *MemoryTripCollection) CancelTrip(_ context.Context, id primitive.ObjectID, at time.Time) (*models.Trip, error) {
	return c.modify("cancel trip", id, func(t *models.Trip) bool {
		if t.Status.IsTerminal() {
			return false
		}
		t.Status = models.TripCancelled
		t.UpdatedAt = at
		return true
	})
}

// ReplaceTrip overwrites the trip if its stored status still equals expected.
func (c *MemoryTripCollection) ReplaceTrip(_ context.Context, trip *models.Trip, expected models.TripStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored, ok := c.trips[trip.ID]
	if !ok || stored.Status != expected {
		return apperr.Conflict("update trip: trip is no longer %s", expected)
	}
	c.trips[trip.ID] = cloneTrip(trip)
	return nil
}

// AppendLocation records a position sample on a non-terminal trip.
func (c *MemoryTripCollection) AppendLocation(_ context.Context, id primitive.ObjectID, sample models.LocationSample, limit int) (*models.Trip, error) {
	return c.modify("report location", id, func(t *models.Trip) bool {
		if t.Status.IsTerminal() {
			return false
		}
		t.CurrentLocation = &models.CurrentLocation{Lat: sample.Lat, Lng: sample.Lng, Timestamp: sample.Timestamp}
		t.LocationHistory = append(t.LocationHistory, sample)
		if limit > 0 && len(t.LocationHistory) > limit {
			t.LocationHistory = append([]models.LocationSample(nil), t.LocationHistory[len(t.LocationHistory)-limit:]...)
		}
		t.UpdatedAt = sample.Timestamp
		return true
	})
}

// UpdateDistance overwrites the distance totals of a trip.
func (c *MemoryTripCollection) UpdateDistance(_ context.Context, id primitive.ObjectID, total, completed float64, at time.Time) (*models.Trip, error) {
	c.mu.Lock()
	_, ok := c.trips[id]
	c.mu.Unlock()
	if !ok {
		return nil, apperr.NotFound("trip %s", id.Hex())
	}
	return c.modify("update distance", id, func(t *models.Trip) bool {
		t.TotalDistance = total
		t.CompletedDistance = completed
		t.UpdatedAt = at
		return true
	})
}

// DeleteTrip removes a trip.
func (c *MemoryTripCollection) DeleteTrip(_ context.Context, id primitive.ObjectID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.trips[id]; !ok {
		return apperr.NotFound("trip %s", id.Hex())
	}
	delete(c.trips, id)
	return nil
}

// CountActiveTripsForVehicle counts non-terminal trips that use the vehicle.
func (c *MemoryTripCollection) CountActiveTripsForVehicle(_ context.Context, vehicleID primitive.ObjectID) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for _, trip := range c.trips {
		if trip.VehicleID == vehicleID && !trip.Status.IsTerminal() {
			n++
		}
	}
	return n, nil
}

func cloneTrip(t *models.Trip) *models.Trip {
	out := *t
	out.RouteID = clonePtr(t.RouteID)
	out.StartLocation = clonePtr(t.StartLocation)
	out.EndLocation = clonePtr(t.EndLocation)
	out.ActualStartTime = clonePtr(t.ActualStartTime)
	out.ActualEndTime = clonePtr(t.ActualEndTime)
	out.CurrentLocation = clonePtr(t.CurrentLocation)
	if t.Employees != nil {
		out.Employees = make([]models.EmployeeLeg, len(t.Employees))
		for i, leg := range t.Employees {
			leg.PickupTime = clonePtr(leg.PickupTime)
			leg.DropTime = clonePtr(leg.DropTime)
			out.Employees[i] = leg
		}
	}
	out.RecurringDays = cloneSlice(t.RecurringDays)
	out.LocationHistory = cloneSlice(t.LocationHistory)
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append(make([]T, 0, len(s)), s...)
}

// MemoryVehicleCollection is an in-process VehicleCollection.
type MemoryVehicleCollection struct {
	mu       sync.Mutex
	vehicles map[primitive.ObjectID]models.Vehicle
}

// NewMemoryVehicleCollection returns an empty in-memory vehicle store.
func NewMemoryVehicleCollection() *MemoryVehicleCollection {
	return &MemoryVehicleCollection{vehicles: make(map[primitive.ObjectID]models.Vehicle)}
}

func (c *MemoryVehicleCollection) plateTaken(plate string, except primitive.ObjectID) bool {
	for id, v := range c.vehicles {
		if id != except && v.NumberPlate == plate {
			return true
		}
	}
	return false
}

// InsertVehicle stores a vehicle, rejecting duplicate number plates.
func (c *MemoryVehicleCollection) InsertVehicle(_ context.Context, vehicle *models.Vehicle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if vehicle.ID.IsZero() {
		vehicle.ID = primitive.NewObjectID()
	}
	if c.plateTaken(vehicle.NumberPlate, vehicle.ID) {
		return apperr.Conflict("vehicle with number plate %s already exists", vehicle.NumberPlate)
	}
	c.vehicles[vehicle.ID] = cloneVehicle(*vehicle)
	return nil
}

// FindVehicles returns every vehicle, newest first.
func (c *MemoryVehicleCollection) FindVehicles(_ context.Context) ([]models.Vehicle, error) {
	c.mu.Lock()
	out := make([]models.Vehicle, 0, len(c.vehicles))
	for _, v := range c.vehicles {
		out = append(out, cloneVehicle(v))
	}
	c.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// FindVehicleByID finds a vehicle by its ID.
func (c *MemoryVehicleCollection) FindVehicleByID(_ context.Context, id primitive.ObjectID) (*models.Vehicle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vehicles[id]
	if !ok {
		return nil, apperr.NotFound("vehicle %s", id.Hex())
	}
	v = cloneVehicle(v)
	return &v, nil
}

// FindVehicleByDriver finds the vehicle assigned to a driver.
func (c *MemoryVehicleCollection) FindVehicleByDriver(_ context.Context, driverID primitive.ObjectID) (*models.Vehicle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range c.vehicles {
		if v.DriverID != nil && *v.DriverID == driverID {
			v = cloneVehicle(v)
			return &v, nil
		}
	}
	return nil, apperr.NotFound("vehicle for driver %s", driverID.Hex())
}

// UpdateVehicle replaces a stored vehicle.
func (c *MemoryVehicleCollection) UpdateVehicle(_ context.Context, vehicle *models.Vehicle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.vehicles[vehicle.ID]; !ok {
		return apperr.NotFound("vehicle %s", vehicle.ID.Hex())
	}
	if c.plateTaken(vehicle.NumberPlate, vehicle.ID) {
		return apperr.Conflict("vehicle with number plate %s already exists", vehicle.NumberPlate)
	}
	c.vehicles[vehicle.ID] = cloneVehicle(*vehicle)
	return nil
}

// DeleteVehicle removes a vehicle.
func (c *MemoryVehicleCollection) DeleteVehicle(_ context.Context, id primitive.ObjectID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.vehicles[id]; !ok {
		return apperr.NotFound("vehicle %s", id.Hex())
	}
	delete(c.vehicles, id)
	return nil
}

func cloneVehicle(v models.Vehicle) models.Vehicle {
	v.DriverID = clonePtr(v.DriverID)
	v.Maintenance.LastServiceDate = clonePtr(v.Maintenance.LastServiceDate)
	v.Maintenance.NextServiceDate = clonePtr(v.Maintenance.NextServiceDate)
	return v
}

// MemoryRouteCollection is an in-process RouteCollection.
type MemoryRouteCollection struct {
	mu     sync.Mutex
	routes map[primitive.ObjectID]models.Route
}

// NewMemoryRouteCollection returns an empty in-memory route store.
func NewMemoryRouteCollection() *MemoryRouteCollection {
	return &MemoryRouteCollection{routes: make(map[primitive.ObjectID]models.Route)}
}

// InsertRoute stores a route.
func (c *MemoryRouteCollection) InsertRoute(_ context.Context, route *models.Route) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if route.ID.IsZero() {
		route.ID = primitive.NewObjectID()
	}
	c.routes[route.ID] = cloneRoute(*route)
	return nil
}

// FindActiveRoutes returns all active routes, newest first.
func (c *MemoryRouteCollection) FindActiveRoutes(_ context.Context) ([]models.Route, error) {
	return c.find(func(models.Route) bool { return true }), nil
}

// FindRoutesByDriver returns the active routes a driver is assigned to.
func (c *MemoryRouteCollection) FindRoutesByDriver(_ context.Context, driverID primitive.ObjectID) ([]models.Route, error) {
	return c.find(func(r models.Route) bool {
		for _, id := range r.AssignedDrivers {
			if id == driverID {
				return true
			}
		}
		return false
	}), nil
}

func (c *MemoryRouteCollection) find(match func(models.Route) bool) []models.Route {
	c.mu.Lock()
	out := []models.Route{}
	for _, r := range c.routes {
		if r.IsActive && match(r) {
			out = append(out, cloneRoute(r))
		}
	}
	c.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// FindRouteByID finds a route by its ID, active or not.
func (c *MemoryRouteCollection) FindRouteByID(_ context.Context, id primitive.ObjectID) (*models.Route, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.routes[id]
	if !ok {
		return nil, apperr.NotFound("route %s", id.Hex())
	}
	r = cloneRoute(r)
	return &r, nil
}

// UpdateRoute replaces a stored route.
func (c *MemoryRouteCollection) UpdateRoute(_ context.Context, route *models.Route) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.routes[route.ID]; !ok {
		return apperr.NotFound("route %s", route.ID.Hex())
	}
	c.routes[route.ID] = cloneRoute(*route)
	return nil
}

// DeactivateRoute marks a route inactive.
func (c *MemoryRouteCollection) DeactivateRoute(_ context.Context, id primitive.ObjectID, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.routes[id]
	if !ok {
		return apperr.NotFound("route %s", id.Hex())
	}
	r.IsActive = false
	r.UpdatedAt = at
	c.routes[id] = r
	return nil
}

func cloneRoute(r models.Route) models.Route {
	r.PickupPoints = cloneSlice(r.PickupPoints)
	r.DropPoints = cloneSlice(r.DropPoints)
	r.AssignedDrivers = cloneSlice(r.AssignedDrivers)
	r.AssignedVehicles = cloneSlice(r.AssignedVehicles)
	r.Schedule.Days = cloneSlice(r.Schedule.Days)
	return r
}

// MemoryUserCollection is an in-process UserCollection.
type MemoryUserCollection struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]models.User
}

// NewMemoryUserCollection returns an empty in-memory user store.
func NewMemoryUserCollection() *MemoryUserCollection {
	return &MemoryUserCollection{users: make(map[primitive.ObjectID]models.User)}
}

// InsertUser stores a new active user, rejecting duplicate usernames.
func (c *MemoryUserCollection) InsertUser(_ context.Context, user models.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	for _, existing := range c.users {
		if existing.Username == user.Username {
			return apperr.Conflict("username %s already exists", user.Username)
		}
		if user.Email != "" && existing.Email == user.Email {
			return apperr.Conflict("email %s already exists", user.Email)
		}
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	user.IsActive = true
	c.users[user.ID] = user
	return nil
}

// FindUserByID finds a user by their ID.
func (c *MemoryUserCollection) FindUserByID(_ context.Context, id string) (*models.User, error) {
	objectID, err := parseUserID(id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	user, ok := c.users[objectID]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	return &user, nil
}

func (c *MemoryUserCollection) findBy(match func(models.User) bool) (*models.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, user := range c.users {
		if match(user) {
			return &user, nil
		}
	}
	return nil, apperr.NotFound("user")
}

// FindUserByUsername finds a user by their username.
func (c *MemoryUserCollection) FindUserByUsername(_ context.Context, username string) (*models.User, error) {
	return c.findBy(func(u models.User) bool { return u.Username == username })
}

// FindUserByEmail finds a user by their email.
func (c *MemoryUserCollection) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	return c.findBy(func(u models.User) bool { return u.Email == email })
}

// FindUsersByRole lists active users sorted by username.
func (c *MemoryUserCollection) FindUsersByRole(_ context.Context, role models.Role) ([]models.User, error) {
	c.mu.Lock()
	out := []models.User{}
	for _, user := range c.users {
		if user.IsActive && (role == "" || user.Role == role) {
			out = append(out, user)
		}
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// UpdateUser replaces a stored user.
func (c *MemoryUserCollection) UpdateUser(_ context.Context, id string, user models.User) error {
	objectID, err := parseUserID(id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.users[objectID]; !ok {
		return apperr.NotFound("user %s", id)
	}
	user.ID = objectID
	user.UpdatedAt = time.Now()
	c.users[objectID] = user
	return nil
}

// DeleteUser removes a user.
func (c *MemoryUserCollection) DeleteUser(_ context.Context, id string) error {
	objectID, err := parseUserID(id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.users, objectID)
	return nil
}

// UpdateLastLogin records the login time.
func (c *MemoryUserCollection) UpdateLastLogin(_ context.Context, id string) error {
	objectID, err := parseUserID(id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	user, ok := c.users[objectID]
	if !ok {
		return apperr.NotFound("user %s", id)
	}
	now := time.Now()
	user.LastLogin = &now
	user.UpdatedAt = now
	c.users[objectID] = user
	return nil
}
