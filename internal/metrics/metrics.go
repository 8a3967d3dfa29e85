// Package metrics exposes Prometheus collectors for the trip engine, the live relay
// and the HTTP layer. Collectors register with the default registry and are served
// from GET /metrics.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ukydev/fleet-commute/internal/apperr"
)

var (
	// TripOperationsTotal counts lifecycle operations by operation and outcome.
	TripOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_trip_operations_total",
			Help: "Total number of trip lifecycle operations",
		},
		[]string{"operation", "outcome"},
	)

	// TripsCompletedTotal counts trips that reached Completed.
	TripsCompletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_trips_completed_total",
			Help: "Total number of trips completed after their last drop",
		},
	)

	// RelayObservers tracks connected realtime observers.
	RelayObservers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleet_relay_observers",
			Help: "Number of observers connected to the live relay",
		},
	)

	// RelayDrivers tracks drivers registered with driverJoin.
	RelayDrivers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleet_relay_drivers",
			Help: "Number of drivers registered with the live relay",
		},
	)

	// RelayMessagesTotal counts messages fanned out by event name.
	RelayMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_relay_messages_total",
			Help: "Total number of messages broadcast by the live relay",
		},
		[]string{"event"},
	)

	// RelayDroppedTotal counts deliveries skipped because an observer's buffer was full.
	RelayDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_relay_dropped_total",
			Help: "Total number of relay deliveries dropped for slow observers",
		},
	)

	// NotifyFailuresTotal counts event sink failures by sink.
	NotifyFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_notify_failures_total",
			Help: "Total number of failed event sink publishes",
		},
		[]string{"sink"},
	)

	// HTTPRequestDuration tracks request latency by method, route and status.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Outcome labels an operation result by its error kind.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperr.ErrValidation):
		return "validation"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperr.ErrPermission):
		return "permission"
	case errors.Is(err, apperr.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

// RecordTripOperation counts one lifecycle operation.
func RecordTripOperation(operation string, err error) {
	TripOperationsTotal.WithLabelValues(operation, Outcome(err)).Inc()
}

// RecordHTTPRequest observes one served request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}
