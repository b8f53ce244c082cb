package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const defaultMaxPending = 1000

type HealthStatus struct {
	Healthy           bool      `json:"healthy"`
	LastEventTime     time.Time `json:"last_event_time"`
	EventsProcessed   uint64    `json:"events_processed"`
	PendingEvents     int64     `json:"pending_events"`
	DatabaseConnected bool      `json:"database_connected"`
	BusConnected      bool      `json:"bus_connected"`
	ListenerActive    bool      `json:"listener_active"`
	Errors            []string  `json:"errors"`
}

// relayStats is the part of the Listener the health check reads.
type relayStats interface {
	Stats() (processed uint64, lastSent time.Time)
	Running() bool
}

// HealthChecker reports whether the relay is keeping up. A relay with pending
// events that has sent nothing for longer than the threshold is unhealthy.
type HealthChecker struct {
	relay      relayStats
	app        *App
	ping       func(ctx context.Context) error
	busUp      func() bool
	clock      clockwork.Clock
	threshold  time.Duration
	maxPending int64
}

// NewHealthChecker builds a checker. ping checks the database and busUp the
// message bus; a nil busUp skips the bus check.
func NewHealthChecker(relay relayStats, app *App, ping func(ctx context.Context) error, busUp func() bool, threshold time.Duration) *HealthChecker {
	return &HealthChecker{
		relay:      relay,
		app:        app,
		ping:       ping,
		busUp:      busUp,
		clock:      clockwork.NewRealClock(),
		threshold:  threshold,
		maxPending: defaultMaxPending,
	}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Errors:  []string{},
	}
	status.EventsProcessed, status.LastEventTime = h.relay.Stats()

	if err := h.ping(ctx); err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
	} else {
		status.DatabaseConnected = true
	}

	if h.busUp != nil {
		status.BusConnected = h.busUp()
		if !status.BusConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	status.ListenerActive = h.relay.Running()
	if !status.ListenerActive {
		status.Healthy = false
		status.Errors = append(status.Errors, "listener not active")
	}

	if status.DatabaseConnected {
		pending, err := h.app.PendingCount(ctx)
		if err != nil {
			status.Errors = append(status.Errors, fmt.Sprintf("failed to count pending events: %v", err))
		} else {
			status.PendingEvents = pending
			if pending > h.maxPending {
				status.Errors = append(status.Errors, fmt.Sprintf("high pending event count: %d", pending))
			}
		}
	}

	if status.PendingEvents > 0 && !status.LastEventTime.IsZero() {
		if idle := h.clock.Since(status.LastEventTime); idle > h.threshold {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("no events processed for %s", idle))
		}
	}

	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to write health status")
	}
}
