package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ukydev/fleet-commute/internal/apperr"
	"github.com/ukydev/fleet-commute/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	TripsCollection    = "trips"
	VehiclesCollection = "vehicles"
	RoutesCollection   = "routes"
	UsersCollection    = "users"
)

// ConnectMongo connects to MongoDB at uri and verifies the connection with a ping.
func ConnectMongo(uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect error: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo.Ping error: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the indexes the trip, vehicle and user queries rely on.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		TripsCollection: {
			{Keys: bson.D{{Key: "driver_id", Value: 1}, {Key: "scheduled_date", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "scheduled_date", Value: 1}}},
			{Keys: bson.D{{Key: "employees.employee_id", Value: 1}}},
		},
		VehiclesCollection: {
			{Keys: bson.D{{Key: "number_plate", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "driver_id", Value: 1}}},
		},
		UsersCollection: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
			{
				Keys: bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{"email": bson.M{"$gt": ""}}),
			},
		},
	}
	for name, idx := range indexes {
		if _, err := database.Collection(name).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create %s indexes: %w", name, err)
		}
	}
	return nil
}

var nonTerminal = bson.M{"$nin": models.TerminalTripStatuses}

// MongoTripCollection implements TripCollection for MongoDB.
type MongoTripCollection struct {
	Collection *mongo.Collection
}

// InsertTrip inserts a trip record into the collection, assigning its ID.
func (c *MongoTripCollection) InsertTrip(ctx context.Context, trip *models.Trip) error {
	if c.Collection == nil {
		return apperr.Infrastructure("insert trip", errors.New("mongo collection is nil"))
	}
	if trip.ID.IsZero() {
		trip.ID = primitive.NewObjectID()
	}
	_, err := c.Collection.InsertOne(ctx, trip)
	return apperr.Infrastructure("insert trip", err)
}

// FindTripByID finds a trip by its ID.
func (c *MongoTripCollection) FindTripByID(ctx context.Context, id primitive.ObjectID) (*models.Trip, error) {
	var trip models.Trip
	err := c.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&trip)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("trip %s", id.Hex())
	}
	if err != nil {
		return nil, apperr.Infrastructure("find trip", err)
	}
	return &trip, nil
}

// FindTrips queries trips matching filter.
func (c *MongoTripCollection) FindTrips(ctx context.Context, filter models.TripFilter) ([]models.Trip, error) {
	opts := options.Find().SetSort(bson.D{{Key: "scheduled_date", Value: -1}, {Key: "scheduled_start_time", Value: 1}})
	if filter.SortByActualStart {
		opts.SetSort(bson.D{{Key: "actual_start_time", Value: -1}})
	}
	cursor, err := c.Collection.Find(ctx, tripQuery(filter), opts)
	if err != nil {
		return nil, apperr.Infrastructure("find trips", err)
	}
	defer cursor.Close(ctx)

	trips := []models.Trip{}
	if err := cursor.All(ctx, &trips); err != nil {
		return nil, apperr.Infrastructure("decode trips", err)
	}
	return trips, nil
}

func tripQuery(f models.TripFilter) bson.M {
	q := bson.M{}
	if len(f.Statuses) == 1 {
		q["status"] = f.Statuses[0]
	} else if len(f.Statuses) > 1 {
		q["status"] = bson.M{"$in": f.Statuses}
	}
	if f.DriverID != nil {
		q["driver_id"] = *f.DriverID
	}
	if f.VehicleID != nil {
		q["vehicle_id"] = *f.VehicleID
	}
	if f.EmployeeID != nil {
		q["employees.employee_id"] = *f.EmployeeID
	}
	if f.From != nil || f.To != nil {
		date := bson.M{}
		if f.From != nil {
			date["$gte"] = *f.From
		}
		if f.To != nil {
			date["$lt"] = *f.To
		}
		q["scheduled_date"] = date
	}
	return q
}

// modify applies update to the single trip matching filter and returns the new document.
// No match means the trip left the state the caller expected.
func (c *MongoTripCollection) modify(ctx context.Context, op string, filter, update bson.M) (*models.Trip, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var trip models.Trip
	err := c.Collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&trip)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.Conflict("%s: trip is not in the expected state", op)
	}
	if err != nil {
		return nil, apperr.Infrastructure(op, err)
	}
	return &trip, nil
}

// StartTrip moves a Scheduled trip to Started.
func (c *MongoTripCollection) StartTrip(ctx context.Context, id primitive.ObjectID, at time.Time) (*models.Trip, error) {
	return c.modify(ctx, "start trip",
		bson.M{"_id": id, "status": models.TripScheduled},
		bson.M{"$set": bson.M{
			"status":            models.TripStarted,
			"actual_start_time": at,
			"updated_at":        at,
		}},
	)
}

// MarkLegPicked moves a Pending leg to Picked and the trip to In Progress.
func (c *MongoTripCollection) MarkLegPicked(ctx context.Context, id, employeeID primitive.ObjectID, at time.Time) (*models.Trip, error) {
	return c.modify(ctx, "pick up employee",
		bson.M{
			"_id":       id,
			"status":    nonTerminal,
			"employees": bson.M{"$elemMatch": bson.M{"employee_id": employeeID, "status": models.LegPending}},
		},
		bson.M{"$set": bson.M{
			"employees.$.status":      models.LegPicked,
			"employees.$.pickup_time": at,
			"status":                  models.TripInProgress,
			"updated_at":              at,
		}},
	)
}

// MarkLegDropped moves a Picked leg to Dropped.
func (c *MongoTripCollection) MarkLegDropped(ctx context.Context, id, employeeID primitive.ObjectID, at time.Time) (*models.Trip, error) {
	return c.modify(ctx, "drop employee",
		bson.M{
			"_id":       id,
			"status":    nonTerminal,
			"employees": bson.M{"$elemMatch": bson.M{"employee_id": employeeID, "status": models.LegPicked}},
		},
		bson.M{"$set": bson.M{
			"employees.$.status":    models.LegDropped,
			"employees.$.drop_time": at,
			"updated_at":            at,
		}},
	)
}

// CompleteTrip moves a non-terminal trip whose legs are all Dropped to Completed.
func (c *MongoTripCollection) CompleteTrip(ctx context.Context, id primitive.ObjectID, at time.Time, actualDuration float64) (*models.Trip, error) {
	return c.modify(ctx, "complete trip",
		bson.M{
			"_id":         id,
			"status":      nonTerminal,
			"employees.0": bson.M{"$exists": true},
			"employees":   bson.M{"$not": bson.M{"$elemMatch": bson.M{"status": bson.M{"$ne": models.LegDropped}}}},
		},
		bson.M{"$set": bson.M{
			"status":          models.TripCompleted,
			"actual_end_time": at,
			"actual_duration": actualDuration,
			"updated_at":      at,
		}},
	)
}

// CancelTrip moves a non-terminal trip to Cancelled.
func (c *MongoTripCollection) CancelTrip(ctx context.Context, id primitive.ObjectID, at time.Time) (*models.Trip, error) {
	return c.modify(ctx, "cancel trip",
		bson.M{"_id": id, "status": nonTerminal},
		bson.M{"$set": bson.M{"status": models.TripCancelled, "updated_at": at}},
	)
}

// ReplaceTrip overwrites the trip if its stored status still equals expected.
func (c *MongoTripCollection) ReplaceTrip(ctx context.Context, trip *models.Trip, expected models.TripStatus) error {
	result, err := c.Collection.ReplaceOne(ctx, bson.M{"_id": trip.ID, "status": expected}, trip)
	if err != nil {
		return apperr.Infrastructure("replace trip", err)
	}
	if result.MatchedCount == 0 {
		return apperr.Conflict("update trip: trip is no longer %s", expected)
	}
	return nil
}

// AppendLocation records a position sample on a non-terminal trip.
func (c *MongoTripCollection) AppendLocation(ctx context.Context, id primitive.ObjectID, sample models.LocationSample, limit int) (*models.Trip, error) {
	push := bson.M{"$each": []models.LocationSample{sample}}
	if limit > 0 {
		push["$slice"] = -limit
	}
	return c.modify(ctx, "report location",
		bson.M{"_id": id, "status": nonTerminal},
		bson.M{
			"$set": bson.M{
				"current_location": models.CurrentLocation{Lat: sample.Lat, Lng: sample.Lng, Timestamp: sample.Timestamp},
				"updated_at":       sample.Timestamp,
			},
			"$push": bson.M{"location_history": push},
		},
	)
}

// UpdateDistance overwrites the distance totals of a trip.
func (c *MongoTripCollection) UpdateDistance(ctx context.Context, id primitive.ObjectID, total, completed float64, at time.Time) (*models.Trip, error) {
	trip, err := c.modify(ctx, "update distance",
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"total_distance":     total,
			"completed_distance": completed,
			"updated_at":         at,
		}},
	)
	if errors.Is(err, apperr.ErrConflict) {
		return nil, apperr.NotFound("trip %s", id.Hex())
	}
	return trip, err
}

// DeleteTrip deletes a trip by its ID.
func (c *MongoTripCollection) DeleteTrip(ctx context.Context, id primitive.ObjectID) error {
	result, err := c.Collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return apperr.Infrastructure("delete trip", err)
	}
	if result.DeletedCount == 0 {
		return apperr.NotFound("trip %s", id.Hex())
	}
	return nil
}

// CountActiveTripsForVehicle counts non-terminal trips that use the vehicle.
func (c *MongoTripCollection) CountActiveTripsForVehicle(ctx context.Context, vehicleID primitive.ObjectID) (int64, error) {
	n, err := c.Collection.CountDocuments(ctx, bson.M{"vehicle_id": vehicleID, "status": nonTerminal})
	return n, apperr.Infrastructure("count trips", err)
}

// MongoVehicleCollection implements VehicleCollection for MongoDB.
type MongoVehicleCollection struct {
	Collection *mongo.Collection
}

// InsertVehicle inserts a vehicle record into the collection.
func (c *MongoVehicleCollection) InsertVehicle(ctx context.Context, vehicle *models.Vehicle) error {
	if c.Collection == nil {
		return apperr.Infrastructure("insert vehicle", errors.New("mongo collection is nil"))
	}
	if vehicle.ID.IsZero() {
		vehicle.ID = primitive.NewObjectID()
	}
	_, err := c.Collection.InsertOne(ctx, vehicle)
	if mongo.IsDuplicateKeyError(err) {
		return apperr.Conflict("vehicle with number plate %s already exists", vehicle.NumberPlate)
	}
	return apperr.Infrastructure("insert vehicle", err)
}

// FindVehicles returns every vehicle, newest first.
func (c *MongoVehicleCollection) FindVehicles(ctx context.Context) ([]models.Vehicle, error) {
	cursor, err := c.Collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, apperr.Infrastructure("find vehicles", err)
	}
	defer cursor.Close(ctx)

	vehicles := []models.Vehicle{}
	if err := cursor.All(ctx, &vehicles); err != nil {
		return nil, apperr.Infrastructure("decode vehicles", err)
	}
	return vehicles, nil
}

// FindVehicleByID finds a vehicle by its ID.
func (c *MongoVehicleCollection) FindVehicleByID(ctx context.Context, id primitive.ObjectID) (*models.Vehicle, error) {
	return c.findOne(ctx, bson.M{"_id": id}, "vehicle "+id.Hex())
}

// FindVehicleByDriver finds the vehicle assigned to a driver.
func (c *MongoVehicleCollection) FindVehicleByDriver(ctx context.Context, driverID primitive.ObjectID) (*models.Vehicle, error) {
	return c.findOne(ctx, bson.M{"driver_id": driverID}, "vehicle for driver "+driverID.Hex())
}

func (c *MongoVehicleCollection) findOne(ctx context.Context, filter bson.M, what string) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	err := c.Collection.FindOne(ctx, filter).Decode(&vehicle)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("%s", what)
	}
	if err != nil {
		return nil, apperr.Infrastructure("find vehicle", err)
	}
	return &vehicle, nil
}

// UpdateVehicle replaces a vehicle by its ID.
func (c *MongoVehicleCollection) UpdateVehicle(ctx context.Context, vehicle *models.Vehicle) error {
	result, err := c.Collection.ReplaceOne(ctx, bson.M{"_id": vehicle.ID}, vehicle)
	if mongo.IsDuplicateKeyError(err) {
		return apperr.Conflict("vehicle with number plate %s already exists", vehicle.NumberPlate)
	}
	if err != nil {
		return apperr.Infrastructure("update vehicle", err)
	}
	if result.MatchedCount == 0 {
		return apperr.NotFound("vehicle %s", vehicle.ID.Hex())
	}
	return nil
}

// DeleteVehicle deletes a vehicle by its ID.
func (c *MongoVehicleCollection) DeleteVehicle(ctx context.Context, id primitive.ObjectID) error {
	result, err := c.Collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return apperr.Infrastructure("delete vehicle", err)
	}
	if result.DeletedCount == 0 {
		return apperr.NotFound("vehicle %s", id.Hex())
	}
	return nil
}

// MongoRouteCollection implements RouteCollection for MongoDB.
type MongoRouteCollection struct {
	Collection *mongo.Collection
}

// InsertRoute inserts a route record into the collection.
func (c *MongoRouteCollection) InsertRoute(ctx context.Context, route *models.Route) error {
	if route.ID.IsZero() {
		route.ID = primitive.NewObjectID()
	}
	_, err := c.Collection.InsertOne(ctx, route)
	return apperr.Infrastructure("insert route", err)
}

// FindActiveRoutes returns all active routes, newest first.
func (c *MongoRouteCollection) FindActiveRoutes(ctx context.Context) ([]models.Route, error) {
	return c.find(ctx, bson.M{"is_active": true})
}

// FindRoutesByDriver returns the active routes a driver is assigned to.
func (c *MongoRouteCollection) FindRoutesByDriver(ctx context.Context, driverID primitive.ObjectID) ([]models.Route, error) {
	return c.find(ctx, bson.M{"is_active": true, "assigned_drivers": driverID})
}

func (c *MongoRouteCollection) find(ctx context.Context, filter bson.M) ([]models.Route, error) {
	cursor, err := c.Collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, apperr.Infrastructure("find routes", err)
	}
	defer cursor.Close(ctx)

	routes := []models.Route{}
	if err := cursor.All(ctx, &routes); err != nil {
		return nil, apperr.Infrastructure("decode routes", err)
	}
	return routes, nil
}

// FindRouteByID finds a route by its ID, active or not.
func (c *MongoRouteCollection) FindRouteByID(ctx context.Context, id primitive.ObjectID) (*models.Route, error) {
	var route models.Route
	err := c.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&route)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("route %s", id.Hex())
	}
	if err != nil {
		return nil, apperr.Infrastructure("find route", err)
	}
	return &route, nil
}

// UpdateRoute replaces a route by its ID.
func (c *MongoRouteCollection) UpdateRoute(ctx context.Context, route *models.Route) error {
	result, err := c.Collection.ReplaceOne(ctx, bson.M{"_id": route.ID}, route)
	if err != nil {
		return apperr.Infrastructure("update route", err)
	}
	if result.MatchedCount == 0 {
		return apperr.NotFound("route %s", route.ID.Hex())
	}
	return nil
}

// DeactivateRoute marks a route inactive.
func (c *MongoRouteCollection) DeactivateRoute(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	result, err := c.Collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"is_active": false, "updated_at": at}},
	)
	if err != nil {
		return apperr.Infrastructure("deactivate route", err)
	}
	if result.MatchedCount == 0 {
		return apperr.NotFound("route %s", id.Hex())
	}
	return nil
}
