package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-commute/internal/models"
)

// Location is a simulated vehicle position.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func fromPlace(p models.Place) Location {
	return Location{Lat: p.Lat, Lng: p.Lng}
}

func jitterLocation(base Location, meters float64) Location {
	latMetersPerDeg := 111320.0
	lngMetersPerDeg := 111320.0 * math.Cos(base.Lat*math.Pi/180)
	dLat := (rand.Float64()*2 - 1) * (meters / latMetersPerDeg)
	dLng := (rand.Float64()*2 - 1) * (meters / lngMetersPerDeg)
	return Location{Lat: base.Lat + dLat, Lng: base.Lng + dLng}
}

func haversineKm(a, b Location) float64 {
	R := 6371.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	s := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
	return R * c
}

func lerp(a, b Location, t float64) Location {
	return Location{Lat: a.Lat + (b.Lat-a.Lat)*t, Lng: a.Lng + (b.Lng-a.Lng)*t}
}

// --- API client ---

// apiError is a non-2xx answer from the API.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// Client drives the fleet API as one driver.
type Client struct {
	baseURL  string
	http     *http.Client
	token    string
	DriverID string
}

// NewClient creates a client for the API at baseURL (including the /api prefix).
func NewClient(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var msg struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &msg)
		return &apiError{Status: resp.StatusCode, Message: msg.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Login authenticates and remembers the token and driver id.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var resp models.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", models.LoginRequest{Username: username, Password: password}, &resp); err != nil {
		return err
	}
	if resp.User.Role != models.RoleDriver {
		return fmt.Errorf("user %s is a %s, not a driver", username, resp.User.Role)
	}
	c.token = resp.Token
	c.DriverID = resp.User.ID.Hex()
	return nil
}

// ActiveTrips lists the driver's trips that still need driving, scheduled ones last.
func (c *Client) ActiveTrips(ctx context.Context) ([]models.Trip, error) {
	var all []models.Trip
	if err := c.do(ctx, http.MethodGet, "/trips/driver/"+c.DriverID, nil, &all); err != nil {
		return nil, err
	}
	var live, scheduled []models.Trip
	for _, trip := range all {
		switch {
		case trip.Status == models.TripScheduled:
			scheduled = append(scheduled, trip)
		case !trip.Status.IsTerminal():
			live = append(live, trip)
		}
	}
	return append(live, scheduled...), nil
}

func (c *Client) tripAction(ctx context.Context, tripID, action string, body interface{}) (*models.Trip, error) {
	var trip models.Trip
	if err := c.do(ctx, http.MethodPut, "/trips/"+tripID+"/"+action, body, &trip); err != nil {
		return nil, err
	}
	return &trip, nil
}

func (c *Client) Start(ctx context.Context, tripID string) (*models.Trip, error) {
	return c.tripAction(ctx, tripID, "start", nil)
}

func (c *Client) Pickup(ctx context.Context, tripID, employeeID string) (*models.Trip, error) {
	return c.tripAction(ctx, tripID, "pickup/"+employeeID, nil)
}

func (c *Client) Drop(ctx context.Context, tripID, employeeID string) (*models.Trip, error) {
	return c.tripAction(ctx, tripID, "drop/"+employeeID, nil)
}

func (c *Client) ReportLocation(ctx context.Context, tripID string, loc Location, speedKmh float64) error {
	_, err := c.tripAction(ctx, tripID, "location", map[string]float64{"lat": loc.Lat, "lng": loc.Lng, "speed": speedKmh})
	return err
}

func (c *Client) UpdateDistance(ctx context.Context, tripID string, totalKm, completedKm float64) error {
	_, err := c.tripAction(ctx, tripID, "distance", map[string]float64{
		"total_distance":     totalKm,
		"completed_distance": completedKm,
	})
	return err
}

// --- Routing & movement ---

// Stop is a point where the driver picks up or drops an employee.
type Stop struct {
	Point      Location
	EmployeeID string
	Pickup     bool
}

// VehicleRoute is a polyline with the vehicle's progress along it.
type VehicleRoute struct {
	Points    []Location
	SegIndex  int
	SegOffset float64 // km along current segment
}

// TripRun is the driving state of one trip. Points[i+1] of the route is Stops[i].
type TripRun struct {
	TripID      string
	Stops       []Stop
	Route       *VehicleRoute
	Position    Location
	SpeedKmh    float64
	TotalKm     float64
	CompletedKm float64
}

// planStops visits every outstanding pickup in leg order, then every outstanding drop.
func planStops(trip *models.Trip) []Stop {
	var pickups, drops []Stop
	for _, leg := range trip.Employees {
		id := leg.EmployeeID.Hex()
		if leg.Status == models.LegPending {
			pickups = append(pickups, Stop{Point: fromPlace(leg.PickupLocation), EmployeeID: id, Pickup: true})
		}
		if leg.Status != models.LegDropped {
			drops = append(drops, Stop{Point: fromPlace(leg.DropLocation), EmployeeID: id})
		}
	}
	return append(pickups, drops...)
}

func newTripRun(trip *models.Trip, speedKmh float64) *TripRun {
	stops := planStops(trip)
	var start Location
	switch {
	case trip.CurrentLocation != nil:
		start = Location{Lat: trip.CurrentLocation.Lat, Lng: trip.CurrentLocation.Lng}
	case trip.StartLocation != nil:
		start = fromPlace(*trip.StartLocation)
	case len(stops) > 0:
		start = jitterLocation(stops[0].Point, 1500)
	}

	points := make([]Location, 0, len(stops)+1)
	points = append(points, start)
	total := 0.0
	for _, s := range stops {
		total += haversineKm(points[len(points)-1], s.Point)
		points = append(points, s.Point)
	}
	if trip.TotalDistance > total {
		total = trip.TotalDistance
	}
	return &TripRun{
		TripID:      trip.ID.Hex(),
		Stops:       stops,
		Route:       &VehicleRoute{Points: points},
		Position:    start,
		SpeedKmh:    speedKmh,
		TotalKm:     total,
		CompletedKm: math.Min(trip.CompletedDistance, total),
	}
}

// stepAlongRoute advances the vehicle and returns the indexes of the stops it reached.
func stepAlongRoute(s *TripRun, tickSec float64) []int {
	var reached []int
	remKm := s.SpeedKmh * (tickSec / 3600.0)
	for remKm > 0 && s.Route.SegIndex < len(s.Route.Points)-1 {
		a := s.Route.Points[s.Route.SegIndex]
		b := s.Route.Points[s.Route.SegIndex+1]
		segLen := haversineKm(a, b)
		leftOnSeg := segLen - s.Route.SegOffset
		if remKm >= leftOnSeg {
			// advance to next segment
			s.Position = b
			s.CompletedKm += leftOnSeg
			s.Route.SegIndex++
			s.Route.SegOffset = 0
			remKm -= leftOnSeg
			reached = append(reached, s.Route.SegIndex-1)
			continue
		}
		t := (s.Route.SegOffset + remKm) / segLen
		s.Position = lerp(a, b, math.Max(0, math.Min(1, t)))
		s.Route.SegOffset += remKm
		s.CompletedKm += remKm
		remKm = 0
	}
	// Zero-length segments are reached without moving.
	for s.Route.SegIndex < len(s.Route.Points)-1 &&
		haversineKm(s.Route.Points[s.Route.SegIndex], s.Route.Points[s.Route.SegIndex+1]) == 0 {
		s.Route.SegIndex++
		reached = append(reached, s.Route.SegIndex-1)
	}
	s.CompletedKm = math.Min(s.CompletedKm, s.TotalKm)
	return reached
}

// Done reports whether every stop was reached.
func (s *TripRun) Done() bool {
	return s.Route.SegIndex >= len(s.Route.Points)-1
}

// driveConfig controls the pace of the simulation.
type driveConfig struct {
	Interval  time.Duration
	Poll      time.Duration
	SpeedKmh  float64
	TimeScale float64 // simulated seconds per real second
}

// driveTrip runs trip to completion, reporting position and distance every tick.
func driveTrip(ctx context.Context, c *Client, trip *models.Trip, cfg driveConfig) error {
	tripID := trip.ID.Hex()
	if trip.Status == models.TripScheduled {
		started, err := c.Start(ctx, tripID)
		if err != nil {
			return fmt.Errorf("start trip %s: %w", tripID, err)
		}
		trip = started
		log.WithFields(log.Fields{"trip_id": tripID, "trip_name": trip.TripName}).Info("Trip started")
	}

	run := newTripRun(trip, cfg.SpeedKmh)
	tick := time.NewTicker(cfg.Interval)
	defer tick.Stop()

	for !run.Done() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}

		// small speed noise
		run.SpeedKmh = math.Max(15, math.Min(90, run.SpeedKmh+(rand.Float64()*2-1)*1.5))
		reached := stepAlongRoute(run, cfg.Interval.Seconds()*cfg.TimeScale)

		if err := c.ReportLocation(ctx, tripID, run.Position, run.SpeedKmh); err != nil {
			log.WithError(err).WithField("trip_id", tripID).Warn("Failed to report location")
		}
		if err := c.UpdateDistance(ctx, tripID, round2(run.TotalKm), round2(run.CompletedKm)); err != nil {
			log.WithError(err).WithField("trip_id", tripID).Warn("Failed to update distance")
		}

		for _, i := range reached {
			stop := run.Stops[i]
			action, mark := "drop", c.Drop
			if stop.Pickup {
				action, mark = "pickup", c.Pickup
			}
			updated, err := mark(ctx, tripID, stop.EmployeeID)
			if err != nil {
				return fmt.Errorf("%s %s on trip %s: %w", action, stop.EmployeeID, tripID, err)
			}
			log.WithFields(log.Fields{
				"trip_id":     tripID,
				"employee_id": stop.EmployeeID,
				"action":      action,
				"status":      updated.Status,
			}).Info("Stop reached")
		}
	}

	log.WithField("trip_id", tripID).Info("Trip finished")
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// simulate polls for assigned trips and drives them one at a time until ctx is done.
func simulate(ctx context.Context, c *Client, cfg driveConfig) {
	for {
		trips, err := c.ActiveTrips(ctx)
		if err != nil {
			log.WithError(err).Warn("Failed to list trips")
		}
		for i := range trips {
			if err := driveTrip(ctx, c, &trips[i], cfg); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.WithError(err).Error("Trip aborted")
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(cfg.Poll):
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envSeconds(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return fallback
}

func main() {
	apiURL := envOr("API_BASE_URL", "http://localhost:8080/api")
	username := envOr("SIM_USERNAME", "driver")
	password := envOr("SIM_PASSWORD", "driver123")
	cfg := driveConfig{
		Interval:  envSeconds("SIM_TICK_SECONDS", 2*time.Second),
		Poll:      envSeconds("SIM_POLL_SECONDS", 10*time.Second),
		SpeedKmh:  envFloat("SIM_SPEED_KMH", 40),
		TimeScale: envFloat("SIM_TIME_SCALE", 1),
	}

	log.WithFields(log.Fields{
		"api_url":  apiURL,
		"username": username,
		"interval": cfg.Interval,
		"scale":    cfg.TimeScale,
	}).Info("Starting driver simulation")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := NewClient(apiURL)
	if err := client.Login(ctx, username, password); err != nil {
		log.WithError(err).Error("Login failed. Ensure the API is reachable and the driver account exists.")
		return
	}
	log.WithField("driver_id", client.DriverID).Info("Logged in")

	simulate(ctx, client, cfg)
	log.Info("Simulation stopped")
}
