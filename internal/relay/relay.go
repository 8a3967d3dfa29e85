// Package relay is the live broadcast channel between drivers, dashboards and the
// trip engine. Every relayed event is fanned out unchanged to every connected
// observer, including the one that sent it. Two independent timers nudge clients:
// a global location prompt and a per-driver prompt for each driver that joined.
package relay

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-commute/internal/metrics"
	"github.com/ukydev/fleet-commute/internal/notify"
)

// Inbound and server-emitted event names.
const (
	EventDriverJoin            = "driverJoin"
	EventRequestLocationUpdate = "requestLocationUpdate"
	EventRequestDriverLocation = "requestDriverLocation"
)

// relayed lists the inbound events that are rebroadcast verbatim.
var relayed = map[string]bool{
	notify.EventDriverLocationUpdate: true,
	notify.EventTripStatusUpdate:     true,
	notify.EventTripAssigned:         true,
}

// Message is the wire frame exchanged with observers.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Observer is a connected client. Send must not block; it returns false when the
// message could not be queued.
type Observer interface {
	ID() string
	Send(msg Message) bool
	Close()
}

// Relay owns the observer registry and the driver-to-observer map.
type Relay struct {
	mu        sync.RWMutex
	observers map[string]Observer
	drivers   map[string]string // driver id -> observer id

	locationEvery time.Duration
	driverEvery   time.Duration
}

// New returns a Relay prompting for locations every locationEvery and for each
// joined driver every driverEvery.
func New(locationEvery, driverEvery time.Duration) *Relay {
	return &Relay{
		observers:     make(map[string]Observer),
		drivers:       make(map[string]string),
		locationEvery: locationEvery,
		driverEvery:   driverEvery,
	}
}

// Register adds an observer.
func (r *Relay) Register(o Observer) {
	r.mu.Lock()
	r.observers[o.ID()] = o
	count := len(r.observers)
	r.mu.Unlock()

	metrics.RelayObservers.Set(float64(count))
	log.WithFields(log.Fields{"observer_id": o.ID(), "observers": count}).Info("Observer connected")
}

// Unregister removes an observer, closes it, and forgets every driver that joined
// through it.
func (r *Relay) Unregister(observerID string) {
	r.mu.Lock()
	o, ok := r.observers[observerID]
	delete(r.observers, observerID)
	var left []string
	for driverID, oid := range r.drivers {
		if oid == observerID {
			delete(r.drivers, driverID)
			left = append(left, driverID)
		}
	}
	count, drivers := len(r.observers), len(r.drivers)
	r.mu.Unlock()

	if !ok {
		return
	}
	o.Close()
	metrics.RelayObservers.Set(float64(count))
	metrics.RelayDrivers.Set(float64(drivers))
	log.WithFields(log.Fields{
		"observer_id": observerID,
		"observers":   count,
		"drivers":     left,
	}).Info("Observer disconnected")
}

// JoinDriver maps driverID to the observer it connected through. A later join from
// another connection replaces the earlier mapping.
func (r *Relay) JoinDriver(driverID, observerID string) bool {
	r.mu.Lock()
	if _, ok := r.observers[observerID]; !ok {
		r.mu.Unlock()
		return false
	}
	r.drivers[driverID] = observerID
	drivers := len(r.drivers)
	r.mu.Unlock()

	metrics.RelayDrivers.Set(float64(drivers))
	log.WithFields(log.Fields{"driver_id": driverID, "observer_id": observerID}).Info("Driver joined")
	return true
}

// Drivers returns the joined driver ids in sorted order.
func (r *Relay) Drivers() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.drivers))
	for id := range r.drivers {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// ObserverCount returns the number of connected observers.
func (r *Relay) ObserverCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.observers)
}

// Broadcast delivers msg to every observer and returns how many accepted it. It
// iterates over a snapshot, so observers may come and go concurrently.
func (r *Relay) Broadcast(msg Message) int {
	r.mu.RLock()
	targets := make([]Observer, 0, len(r.observers))
	for _, o := range r.observers {
		targets = append(targets, o)
	}
	r.mu.RUnlock()

	metrics.RelayMessagesTotal.WithLabelValues(msg.Event).Inc()
	delivered := 0
	for _, o := range targets {
		if o.Send(msg) {
			delivered++
			continue
		}
		metrics.RelayDroppedTotal.Inc()
		log.WithFields(log.Fields{"observer_id": o.ID(), "event": msg.Event}).Warn("Observer buffer full, message dropped")
	}
	return delivered
}

// Handle processes one inbound message from observerID.
func (r *Relay) Handle(observerID string, msg Message) {
	switch {
	case msg.Event == EventDriverJoin:
		driverID := parseDriverID(msg.Data)
		if driverID == "" {
			log.WithField("observer_id", observerID).Warn("driverJoin without a driver id")
			return
		}
		r.JoinDriver(driverID, observerID)
	case relayed[msg.Event]:
		r.Broadcast(msg)
	default:
		log.WithFields(log.Fields{"observer_id": observerID, "event": msg.Event}).Debug("Ignoring unknown event")
	}
}

// parseDriverID accepts either a bare JSON string or {"driverId": "..."}.
func parseDriverID(data json.RawMessage) string {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		return id
	}
	var body struct {
		DriverID string `json:"driverId"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		return body.DriverID
	}
	return ""
}

// Notify broadcasts an engine event, making Relay a notify.Notifier.
func (r *Relay) Notify(_ context.Context, event notify.Event) {
	data, err := event.Encode()
	if err != nil {
		log.WithError(err).WithField("event", event.Type).Error("Failed to encode relay event")
		return
	}
	r.Broadcast(Message{Event: event.Type, Data: data})
}

// Run drives the two prompt timers until ctx is done, then closes every observer.
func (r *Relay) Run(ctx context.Context) {
	locationTicker := time.NewTicker(r.locationEvery)
	driverTicker := time.NewTicker(r.driverEvery)
	defer locationTicker.Stop()
	defer driverTicker.Stop()

	r.runPrompts(ctx, locationTicker.C, driverTicker.C)
	r.closeAll()
}

func (r *Relay) runPrompts(ctx context.Context, locationC, driverC <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-locationC:
			r.promptLocation()
		case <-driverC:
			r.promptDrivers()
		}
	}
}

func (r *Relay) promptLocation() {
	r.Broadcast(Message{Event: EventRequestLocationUpdate})
}

func (r *Relay) promptDrivers() {
	for _, driverID := range r.Drivers() {
		data, err := json.Marshal(map[string]string{"driverId": driverID})
		if err != nil {
			continue
		}
		r.Broadcast(Message{Event: EventRequestDriverLocation, Data: data})
	}
}

func (r *Relay) closeAll() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.observers))
	for id := range r.observers {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Unregister(id)
	}
}
