// Package notify carries trip lifecycle and location events from the trip engine to
// event sinks: the live relay and, when configured, an MQTT broker.
package notify

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// Event names shared with realtime clients.
const (
	EventTripAssigned         = "tripAssigned"
	EventTripStatusUpdate     = "tripStatusUpdate"
	EventDriverLocationUpdate = "driverLocationUpdate"
)

// Event is one notification. Payload is encoded as JSON by each sink.
type Event struct {
	Type    string
	TripID  string
	Payload interface{}
}

// Notifier receives events. Implementations must not block for long and report
// their own failures; a failed notification never undoes a transition.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event Event)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, event Event) { f(ctx, event) }

// Multi fans an event out to every notifier in order.
type Multi []Notifier

// Notify forwards event to each notifier.
func (m Multi) Notify(ctx context.Context, event Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, event)
		}
	}
}

// Discard drops every event.
var Discard Notifier = NotifierFunc(func(context.Context, Event) {})

// StatusPayload is the body of a tripStatusUpdate event.
type StatusPayload struct {
	TripID     string    `json:"tripId"`
	DriverID   string    `json:"driverId"`
	Status     string    `json:"status"`
	EmployeeID string    `json:"employeeId,omitempty"`
	LegStatus  string    `json:"legStatus,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// LocationPayload is the body of a driverLocationUpdate event.
type LocationPayload struct {
	TripID    string    `json:"tripId"`
	DriverID  string    `json:"driverId"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Speed     float64   `json:"speed"`
	Timestamp time.Time `json:"timestamp"`
}

// Encode marshals the event payload.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e.Payload)
}
