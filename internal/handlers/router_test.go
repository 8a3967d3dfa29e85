package handlers

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-commute/internal/apperr"
	"github.com/ukydev/fleet-commute/internal/auth"
	"github.com/ukydev/fleet-commute/internal/db"
	"github.com/ukydev/fleet-commute/internal/models"
	"github.com/ukydev/fleet-commute/internal/relay"
	"github.com/ukydev/fleet-commute/internal/trips"
)

type apiFixture struct {
	t        *testing.T
	handler  http.Handler
	auth     *auth.Service
	users    *db.MemoryUserCollection
	vehicles *db.MemoryVehicleCollection
	routes   *db.MemoryRouteCollection
	trips    *db.MemoryTripCollection

	travelAdmin  string
	companyAdmin string
	driver       string
	otherDriver  string
	employee     string

	driverID   primitive.ObjectID
	employeeID primitive.ObjectID
	vehicleID  primitive.ObjectID
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{
		t:        t,
		auth:     newAuthService(t),
		users:    db.NewMemoryUserCollection(),
		vehicles: db.NewMemoryVehicleCollection(),
		routes:   db.NewMemoryRouteCollection(),
		trips:    db.NewMemoryTripCollection(),
	}

	f.travelAdmin, _ = f.addUser("travel", models.RoleTravelAdmin)
	f.companyAdmin, _ = f.addUser("company", models.RoleCompanyAdmin)
	f.driver, f.driverID = f.addUser("driver", models.RoleDriver)
	f.otherDriver, _ = f.addUser("otherdriver", models.RoleDriver)
	f.employee, f.employeeID = f.addUser("employee", models.RoleEmployee)

	vehicle := &models.Vehicle{Name: "Innova", NumberPlate: "KA01AB1234", Capacity: 6, DriverID: &f.driverID, Status: models.VehicleActive}
	require.NoError(t, f.vehicles.InsertVehicle(context.Background(), vehicle))
	f.vehicleID = vehicle.ID

	engine := trips.NewEngine(f.trips, auth.Gate{},
		trips.WithDirectory(trips.StoreDirectory{Users: f.users, Vehicles: f.vehicles}))
	f.handler = NewRouter(RouterDeps{
		Auth:      f.auth,
		Engine:    engine,
		Users:     f.users,
		Vehicles:  f.vehicles,
		Routes:    f.routes,
		Trips:     f.trips,
		Relay:     relay.New(time.Hour, time.Hour),
		ClientURL: "http://localhost:5173",
	})
	return f
}

func (f *apiFixture) addUser(username string, role models.Role) (string, primitive.ObjectID) {
	f.t.Helper()
	user := models.User{ID: primitive.NewObjectID(), Username: username, FirstName: username, Role: role}
	require.NoError(f.t, f.users.InsertUser(context.Background(), user))
	token, err := f.auth.GenerateToken(&user)
	require.NoError(f.t, err)
	return token, user.ID
}

func (f *apiFixture) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	f.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) tripBody() map[string]interface{} {
	return map[string]interface{}{
		"trip_name":            "Morning shuttle",
		"driver_id":            f.driverID.Hex(),
		"vehicle_id":           f.vehicleID.Hex(),
		"scheduled_date":       "2026-10-19T00:00:00Z",
		"scheduled_start_time": "08:30",
		"scheduled_end_time":   "09:30",
		"employees": []map[string]interface{}{{
			"employee_id":     f.employeeID.Hex(),
			"pickup_location": map[string]interface{}{"name": "Home", "address": "12 MG Road", "lat": 12.97, "lng": 77.59},
			"drop_location":   map[string]interface{}{"name": "Office", "address": "1 Tech Park", "lat": 12.93, "lng": 77.69},
		}},
	}
}

func (f *apiFixture) createTrip() models.Trip {
	f.t.Helper()
	w := f.do(http.MethodPost, "/api/trips", f.travelAdmin, f.tripBody())
	require.Equal(f.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.Trip](f.t, w)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func message(msg string) string {
	return `{"message":"` + msg + `"}`
}

func TestRouter_TripLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	trip := f.createTrip()
	assert.Equal(t, models.TripScheduled, trip.Status)
	assert.Equal(t, models.LegPending, trip.Employees[0].Status)

	base := "/api/trips/" + trip.ID.Hex()
	employee := f.employeeID.Hex()

	w := f.do(http.MethodPut, base+"/start", f.driver, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.TripStarted, decode[models.Trip](t, w).Status)

	w = f.do(http.MethodPut, base+"/start", f.driver, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(http.MethodPut, base+"/pickup/"+employee, f.driver, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.TripInProgress, decode[models.Trip](t, w).Status)

	w = f.do(http.MethodPut, base+"/location", f.driver, map[string]float64{"lat": 12.95, "lng": 77.64, "speed": 32})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	located := decode[models.Trip](t, w)
	require.NotNil(t, located.CurrentLocation)
	assert.Equal(t, 12.95, located.CurrentLocation.Lat)

	w = f.do(http.MethodPut, base+"/distance", f.driver, map[string]float64{"total_distance": 14, "completed_distance": 9.5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(http.MethodPut, base+"/drop/"+employee, f.driver, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	done := decode[models.Trip](t, w)
	assert.Equal(t, models.TripCompleted, done.Status)
	assert.NotNil(t, done.ActualEndTime)

	w = f.do(http.MethodPut, base+"/location", f.driver, map[string]float64{"lat": 12.95, "lng": 77.64})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(http.MethodGet, base+"/report", f.employee, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decode[struct {
		Message string       `json:"message"`
		Data    trips.Report `json:"data"`
	}](t, w)
	assert.Equal(t, "Trip report generated", report.Message)
	assert.Equal(t, "driver", report.Data.Driver)
	assert.Equal(t, "Innova (KA01AB1234)", report.Data.Vehicle)
	require.Len(t, report.Data.Employees, 1)
	assert.Equal(t, "employee", report.Data.Employees[0].Name)
}

func TestRouter_DriverErrors(t *testing.T) {
	f := newAPIFixture(t)
	trip := f.createTrip()
	base := "/api/trips/" + trip.ID.Hex()

	tests := []struct {
		name   string
		token  string
		path   string
		body   interface{}
		status int
		want   string
	}{
		{"another driver", f.otherDriver, base + "/start", nil, http.StatusNotFound, message("Trip not found or not assigned to you")},
		{"missing trip", f.driver, "/api/trips/" + primitive.NewObjectID().Hex() + "/start", nil, http.StatusNotFound, message("Trip not found or not assigned to you")},
		{"employee not on trip", f.driver, base + "/pickup/" + primitive.NewObjectID().Hex(), nil, http.StatusNotFound, message("Employee not found in trip")},
		{"drop before pickup", f.driver, base + "/drop/" + f.employeeID.Hex(), nil, http.StatusConflict, ""},
		{"location without coordinates", f.driver, base + "/location", map[string]float64{"speed": 3}, http.StatusBadRequest, message("validation failed: lat and lng are required")},
		{"latitude out of range", f.driver, base + "/location", map[string]float64{"lat": 123, "lng": 77}, http.StatusBadRequest, ""},
		{"completed beyond total", f.driver, base + "/distance", map[string]float64{"total_distance": 5, "completed_distance": 6}, http.StatusBadRequest, ""},
		{"bad trip id", f.driver, "/api/trips/nope/start", nil, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPut, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.want != "" {
				assert.JSONEq(t, tt.want, w.Body.String())
			}
		})
	}

	stored, err := f.trips.FindTripByID(context.Background(), trip.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TripScheduled, stored.Status, "rejected calls leave the trip untouched")
}

func TestRouter_TripAdministration(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("unauthenticated", func(t *testing.T) {
		w := f.do(http.MethodGet, "/api/trips", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("employee cannot create", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/trips", f.employee, f.tripBody())
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("company admin cannot create", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/trips", f.companyAdmin, f.tripBody())
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		body := f.tripBody()
		body["scheduled_start_time"] = "25:00"
		w := f.do(http.MethodPost, "/api/trips", f.travelAdmin, body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	trip := f.createTrip()
	base := "/api/trips/" + trip.ID.Hex()

	t.Run("list and get", func(t *testing.T) {
		w := f.do(http.MethodGet, "/api/trips?status=Scheduled&date=2026-10-19", f.companyAdmin, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[[]models.Trip](t, w), 1)

		w = f.do(http.MethodGet, "/api/trips?date=19-10-2026", f.companyAdmin, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = f.do(http.MethodGet, "/api/trips/driver/"+f.driverID.Hex(), f.driver, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[[]models.Trip](t, w), 1)

		w = f.do(http.MethodGet, "/api/trips/employee/"+f.employeeID.Hex(), f.employee, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[[]models.Trip](t, w), 1)

		w = f.do(http.MethodGet, base, f.otherDriver, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = f.do(http.MethodGet, "/api/trips/"+primitive.NewObjectID().Hex(), f.travelAdmin, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, message("Trip not found"), w.Body.String())
	})

	t.Run("update", func(t *testing.T) {
		w := f.do(http.MethodPut, base, f.travelAdmin, map[string]string{"trip_name": "Evening shuttle"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "Evening shuttle", decode[models.Trip](t, w).TripName)

		w = f.do(http.MethodPut, base, f.travelAdmin, map[string]string{"status": "Completed"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("live and export", func(t *testing.T) {
		w := f.do(http.MethodPut, base+"/start", f.driver, nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = f.do(http.MethodGet, "/api/trips/live", f.companyAdmin, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[[]models.Trip](t, w), 1)

		w = f.do(http.MethodGet, "/api/trips/live", f.driver, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = f.do(http.MethodGet, "/api/trips/export?startDate=2026-10-01&endDate=2026-10-31", f.companyAdmin, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		export := decode[ExportResponse](t, w)
		assert.Equal(t, "json", export.Format)
		assert.Equal(t, 1, export.Count)
		assert.Equal(t, "Innova (KA01AB1234)", export.Data[0].Vehicle)

		w = f.do(http.MethodGet, "/api/trips/export?format=csv", f.companyAdmin, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("cancel and delete", func(t *testing.T) {
		w := f.do(http.MethodPut, base+"/cancel", f.driver, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = f.do(http.MethodPut, base+"/cancel", f.travelAdmin, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, models.TripCancelled, decode[models.Trip](t, w).Status)

		w = f.do(http.MethodPut, base+"/cancel", f.travelAdmin, nil)
		assert.Equal(t, http.StatusConflict, w.Code)

		w = f.do(http.MethodDelete, base, f.travelAdmin, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, message("Trip deleted successfully"), w.Body.String())

		w = f.do(http.MethodDelete, base, f.travelAdmin, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRouter_Vehicles(t *testing.T) {
	f := newAPIFixture(t)
	newVehicle := map[string]interface{}{"name": "Dzire", "number_plate": " ka02cd5678 ", "capacity": 4}

	w := f.do(http.MethodPost, "/api/vehicles", f.travelAdmin, newVehicle)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodPost, "/api/vehicles", f.companyAdmin, newVehicle)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[models.Vehicle](t, w)
	assert.Equal(t, "KA02CD5678", created.NumberPlate)
	assert.Equal(t, models.VehicleActive, created.Status)

	w = f.do(http.MethodPost, "/api/vehicles", f.companyAdmin, newVehicle)
	assert.Equal(t, http.StatusConflict, w.Code, "number plates are unique")

	w = f.do(http.MethodPost, "/api/vehicles", f.companyAdmin, map[string]interface{}{"name": "Bus", "number_plate": "KA03", "capacity": 80})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/api/vehicles", f.employee, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Vehicle](t, w), 2)

	w = f.do(http.MethodGet, "/api/vehicles/driver/"+f.driverID.Hex(), f.driver, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, f.vehicleID, decode[models.Vehicle](t, w).ID)

	w = f.do(http.MethodGet, "/api/vehicles/driver/"+primitive.NewObjectID().Hex(), f.driver, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, message("No vehicle assigned to this driver"), w.Body.String())

	w = f.do(http.MethodPut, "/api/vehicles/"+created.ID.Hex(), f.companyAdmin,
		map[string]interface{}{"name": "Dzire", "number_plate": "KA02CD5678", "capacity": 4, "status": "maintenance"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.VehicleMaintenance, decode[models.Vehicle](t, w).Status)

	f.createTrip()
	w = f.do(http.MethodDelete, "/api/vehicles/"+f.vehicleID.Hex(), f.companyAdmin, nil)
	assert.Equal(t, http.StatusConflict, w.Code, "vehicles on a scheduled trip are kept")

	w = f.do(http.MethodDelete, "/api/vehicles/"+created.ID.Hex(), f.companyAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, message("Vehicle deleted successfully"), w.Body.String())
}

func TestRouter_Routes(t *testing.T) {
	f := newAPIFixture(t)
	route := map[string]interface{}{
		"name":             "Whitefield loop",
		"assigned_drivers": []string{f.driverID.Hex()},
		"pickup_points": []map[string]interface{}{
			{"name": "Second", "address": "B", "lat": 12.9, "lng": 77.6, "order": 2},
			{"name": "First", "address": "A", "lat": 12.8, "lng": 77.5, "order": 1},
		},
		"drop_points": []map[string]interface{}{
			{"name": "Office", "address": "1 Tech Park", "lat": 12.93, "lng": 77.69, "order": 1},
		},
		"schedule": map[string]interface{}{"days": []string{"Monday", "Friday"}, "start_time": "08:00"},
	}

	w := f.do(http.MethodPost, "/api/routes", f.companyAdmin, route)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodPost, "/api/routes", f.travelAdmin, route)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[models.Route](t, w)
	assert.True(t, created.IsActive)
	assert.Equal(t, "First", created.PickupPoints[0].Name)

	route["schedule"] = map[string]interface{}{"days": []string{"Funday"}}
	w = f.do(http.MethodPost, "/api/routes", f.travelAdmin, route)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/api/routes/driver/"+f.driverID.Hex(), f.driver, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Route](t, w), 1)

	w = f.do(http.MethodDelete, "/api/routes/"+created.ID.Hex(), f.travelAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/api/routes", f.employee, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]models.Route](t, w))

	stored, err := f.routes.FindRouteByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive, "deleting a route only deactivates it")
}

func TestRouter_UsersAndHealth(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodGet, "/api/users?role=driver", f.travelAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	drivers := decode[[]models.User](t, w)
	require.Len(t, drivers, 2)
	assert.Equal(t, "driver", drivers[0].Username)

	w = f.do(http.MethodGet, "/api/users?role=admin", f.travelAdmin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/api/users", f.employee, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouter_RegistrationCannotEscalate(t *testing.T) {
	f := newAPIFixture(t)
	trip := f.createTrip()
	register := func(token string, username string, role models.Role) *httptest.ResponseRecorder {
		return f.do(http.MethodPost, "/api/auth/register", token, models.RegisterRequest{
			Username: username,
			Email:    username + "@example.com",
			Password: "password123",
			Role:     role,
		})
	}

	for _, role := range []models.Role{models.RoleTravelAdmin, models.RoleCompanyAdmin, models.RoleDriver} {
		w := register("", "anon-"+string(role), role)
		assert.Equal(t, http.StatusForbidden, w.Code, string(role))
		_, err := f.users.FindUserByUsername(context.Background(), "anon-"+string(role))
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	}

	w := register(f.travelAdmin, "helper", models.RoleCompanyAdmin)
	assert.Equal(t, http.StatusForbidden, w.Code, "only user managers may grant roles")

	w = register("", "rider", models.RoleEmployee)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rider := decode[models.LoginResponse](t, w)
	assert.Equal(t, models.RoleEmployee, rider.User.Role)

	w = f.do(http.MethodPut, "/api/trips/"+trip.ID.Hex()+"/cancel", rider.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	stored, err := f.trips.FindTripByID(context.Background(), trip.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TripScheduled, stored.Status)

	w = register(f.companyAdmin, "newadmin", models.RoleTravelAdmin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, models.RoleTravelAdmin, decode[models.LoginResponse](t, w).User.Role)
}
