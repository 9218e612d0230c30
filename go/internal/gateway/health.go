package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/flaglights/go/internal/events"
)

type HealthStatus struct {
	Healthy          bool      `json:"healthy"`
	Live             bool      `json:"live"`
	LightsConnected  bool      `json:"lights_connected"`
	LastPoll         time.Time `json:"last_poll"`
	FeedError        string    `json:"feed_error,omitempty"`
	PendingActions   int       `json:"pending_actions"`
	EventsPublished  uint64    `json:"events_published"`
	EventsFailed     uint64    `json:"events_failed"`
	LastEventTime    time.Time `json:"last_event_time"`
	NATSConnected    bool      `json:"nats_connected"`
	WebSocketClients int       `json:"websocket_clients"`
	Errors           []string  `json:"errors"`
}

type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// ConnectionChecker reports broker connectivity.
type ConnectionChecker interface {
	Connected() bool
}

type StatusHealthChecker struct {
	source    SnapshotSource
	metrics   *events.MetricPublisher
	broker    ConnectionChecker
	conns     *ConnectionManager
	clock     clockwork.Clock
	threshold time.Duration // max age of the last poll
}

// HealthOptions holds the optional collaborators of a StatusHealthChecker.
// Nil fields are skipped.
type HealthOptions struct {
	Metrics   *events.MetricPublisher
	Broker    ConnectionChecker
	Conns     *ConnectionManager
	Clock     clockwork.Clock
	Threshold time.Duration
}

func NewStatusHealthChecker(source SnapshotSource, opts HealthOptions) *StatusHealthChecker {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &StatusHealthChecker{
		source:    source,
		metrics:   opts.Metrics,
		broker:    opts.Broker,
		conns:     opts.Conns,
		clock:     opts.Clock,
		threshold: opts.Threshold,
	}
}

func (h *StatusHealthChecker) Check(ctx context.Context) HealthStatus {
	snap := h.source.Snapshot()
	status := HealthStatus{
		Healthy:         true,
		Live:            snap.Live,
		LightsConnected: snap.Connected,
		LastPoll:        snap.LastPoll,
		FeedError:       snap.FeedError,
		PendingActions:  len(snap.PendingActions),
		Errors:          []string{},
	}

	if h.metrics != nil {
		stats := h.metrics.Stats()
		status.EventsPublished = stats.Published
		status.EventsFailed = stats.Failed
		status.LastEventTime = stats.LastEventAt
	}

	if h.broker != nil {
		status.NATSConnected = h.broker.Connected()
		if !status.NATSConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	if h.conns != nil {
		status.WebSocketClients = h.conns.Stats().TotalConnections
	}

	if snap.FeedError != "" {
		status.Errors = append(status.Errors, "race control feed: "+snap.FeedError)
	}
	if snap.Error != "" {
		status.Errors = append(status.Errors, "lights: "+snap.Error)
	}

	if h.threshold > 0 && !snap.LastPoll.IsZero() {
		if since := h.clock.Since(snap.LastPoll); since > h.threshold {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("no feed poll for %s", since))
		}
	}

	return status
}

func (h *StatusHealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// PrometheusExporter renders HealthStatus in the Prometheus text format.
type PrometheusExporter struct {
	checker HealthChecker
}

func NewPrometheusExporter(checker HealthChecker) *PrometheusExporter {
	return &PrometheusExporter{checker: checker}
}

func (e *PrometheusExporter) Export(ctx context.Context) string {
	status := e.checker.Check(ctx)

	lastEvent := int64(0)
	if !status.LastEventTime.IsZero() {
		lastEvent = status.LastEventTime.Unix()
	}
	lastPoll := int64(0)
	if !status.LastPoll.IsZero() {
		lastPoll = status.LastPoll.Unix()
	}

	return fmt.Sprintf(`# HELP flaglights_healthy Whether the service is healthy
# TYPE flaglights_healthy gauge
flaglights_healthy %d

# HELP flaglights_session_live Whether a session is live
# TYPE flaglights_session_live gauge
flaglights_session_live %d

# HELP flaglights_lights_connected Whether the lighting API is connected
# TYPE flaglights_lights_connected gauge
flaglights_lights_connected %d

# HELP flaglights_pending_actions Actions waiting for the broadcast delay
# TYPE flaglights_pending_actions gauge
flaglights_pending_actions %d

# HELP flaglights_events_published_total Domain events published
# TYPE flaglights_events_published_total counter
flaglights_events_published_total %d

# HELP flaglights_events_failed_total Domain events that failed to publish
# TYPE flaglights_events_failed_total counter
flaglights_events_failed_total %d

# HELP flaglights_nats_connected Whether NATS is connected
# TYPE flaglights_nats_connected gauge
flaglights_nats_connected %d

# HELP flaglights_websocket_clients Connected status stream clients
# TYPE flaglights_websocket_clients gauge
flaglights_websocket_clients %d

# HELP flaglights_last_poll_timestamp Unix timestamp of the last feed poll
# TYPE flaglights_last_poll_timestamp gauge
flaglights_last_poll_timestamp %d

# HELP flaglights_last_event_timestamp Unix timestamp of the last published event
# TYPE flaglights_last_event_timestamp gauge
flaglights_last_event_timestamp %d
`,
		boolGauge(status.Healthy),
		boolGauge(status.Live),
		boolGauge(status.LightsConnected),
		status.PendingActions,
		status.EventsPublished,
		status.EventsFailed,
		boolGauge(status.NATSConnected),
		status.WebSocketClients,
		lastPoll,
		lastEvent,
	)
}

func (e *PrometheusExporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	if _, err := w.Write([]byte(e.Export(r.Context()))); err != nil {
		log.Error().Err(err).Msg("failed to write metrics")
	}
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}
