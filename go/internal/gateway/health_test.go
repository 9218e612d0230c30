package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/flaglights/go/internal/events"
	"github.com/mcdev12/flaglights/go/internal/models"
	"github.com/mcdev12/flaglights/go/internal/trackstatus"
)

type fakeBroker struct{ connected bool }

func (b fakeBroker) Connected() bool { return b.connected }

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, events.Event) error { return nil }

func TestHealthCheck(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 24, 13, 0, 0, 0, time.UTC))
	ctrl := newFakeController()
	ctrl.setSnapshot(func(s *trackstatus.Snapshot) {
		s.Live = true
		s.Connected = true
		s.LastPoll = clock.Now()
	})

	metrics := events.NewMetricPublisher(noopPublisher{})
	ev, err := events.New(events.FlagDetected, clock.Now(), events.FlagPayload{Flag: string(models.FlagRed)})
	require.NoError(t, err)
	require.NoError(t, metrics.Publish(context.Background(), ev))

	t.Run("healthy", func(t *testing.T) {
		checker := NewStatusHealthChecker(ctrl, HealthOptions{
			Metrics:   metrics,
			Broker:    fakeBroker{connected: true},
			Clock:     clock,
			Threshold: time.Minute,
		})
		status := checker.Check(context.Background())
		assert.True(t, status.Healthy)
		assert.True(t, status.Live)
		assert.True(t, status.NATSConnected)
		assert.Equal(t, uint64(1), status.EventsPublished)
		assert.Empty(t, status.Errors)
	})

	t.Run("nats down", func(t *testing.T) {
		checker := NewStatusHealthChecker(ctrl, HealthOptions{Broker: fakeBroker{}, Clock: clock})
		status := checker.Check(context.Background())
		assert.False(t, status.Healthy)
		assert.Contains(t, status.Errors, "NATS disconnected")

		rec := httptest.NewRecorder()
		checker.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/detail", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("stale poll", func(t *testing.T) {
		stale := clockwork.NewFakeClockAt(clock.Now().Add(5 * time.Minute))
		checker := NewStatusHealthChecker(ctrl, HealthOptions{Clock: stale, Threshold: time.Minute})
		status := checker.Check(context.Background())
		assert.False(t, status.Healthy)
		require.Len(t, status.Errors, 1)
		assert.Contains(t, status.Errors[0], "no feed poll")
	})

	t.Run("feed error is reported but not fatal", func(t *testing.T) {
		ctrl := newFakeController()
		ctrl.setSnapshot(func(s *trackstatus.Snapshot) { s.FeedError = "timeout" })
		status := NewStatusHealthChecker(ctrl, HealthOptions{Clock: clock}).Check(context.Background())
		assert.True(t, status.Healthy)
		assert.Equal(t, []string{"race control feed: timeout"}, status.Errors)
	})
}

func TestPrometheusExporter(t *testing.T) {
	ctrl := newFakeController()
	ctrl.setSnapshot(func(s *trackstatus.Snapshot) { s.Live = true })
	exporter := NewPrometheusExporter(NewStatusHealthChecker(ctrl, HealthOptions{}))

	rec := httptest.NewRecorder()
	exporter.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "flaglights_healthy 1\n")
	assert.Contains(t, body, "flaglights_session_live 1\n")
	assert.Contains(t, body, "flaglights_lights_connected 0\n")
	assert.Contains(t, body, "flaglights_last_poll_timestamp 0\n")
}

func TestServerHealthRoutes(t *testing.T) {
	srv := NewServer(ServerConfig{}, newFakeController())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "flaglights_websocket_clients 0")

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
