package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/flaglights/go/clients/lifx_client"
	"github.com/mcdev12/flaglights/go/internal/config"
	"github.com/mcdev12/flaglights/go/internal/gateway"
	"github.com/mcdev12/flaglights/go/internal/models"
	"github.com/mcdev12/flaglights/go/internal/printer"
	"github.com/mcdev12/flaglights/go/internal/scheduler"
	"github.com/mcdev12/flaglights/go/internal/settings"
	"github.com/mcdev12/flaglights/go/internal/trackstatus"
)

type stack struct {
	services *Services
	api      *httptest.Server
}

func newStack(t *testing.T) *stack {
	t.Helper()

	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(feed.Close)

	lifx := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path == lifx_client.LightsAllEndpoint {
			_, _ = w.Write([]byte(`[{"id": "d1", "label": "Desk", "connected": true, "power": "on"},
				{"id": "d2", "label": "Shelf", "connected": true, "power": "off"}]`))
			return
		}
		w.WriteHeader(http.StatusMultiStatus)
	}))
	t.Cleanup(lifx.Close)

	cfg := config.Default()
	cfg.Store.Backend = settings.BackendMemory
	cfg.Feed.BaseURL = feed.URL
	cfg.Lights.BaseURL = lifx.URL
	cfg.Lights.RetryAttempts = 0

	services, err := setupServices(context.Background(), cfg, clockwork.NewFakeClock())
	require.NoError(t, err)
	t.Cleanup(func() { _ = services.Close() })

	api := httptest.NewServer(setupServer(cfg, services).Handler())
	t.Cleanup(api.Close)

	return &stack{services: services, api: api}
}

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	prevOut, prevNoColor := printer.Out, color.NoColor
	buf := new(bytes.Buffer)
	printer.Out = buf
	color.NoColor = true
	t.Cleanup(func() {
		printer.Out = prevOut
		color.NoColor = prevNoColor
	})
	return buf
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	t.Setenv(config.PathEnv, "")
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	return root.ExecuteContext(context.Background())
}

func TestRootShowsHelp(t *testing.T) {
	root := newRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(nil)

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "Usage:")
	assert.Contains(t, buf.String(), "serve")
}

func TestRootRejectsUnknownFlags(t *testing.T) {
	err := run(t, "--unknown-flag", "value")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flag")
}

func TestDelayCommands(t *testing.T) {
	s := newStack(t)
	out := captureOutput(t)

	require.NoError(t, run(t, "--api", s.api.URL, "delay", "set", "12"))
	assert.Equal(t, 12, s.services.Delay.Get())
	assert.Contains(t, out.String(), "Broadcast delay set to 12s")

	out.Reset()
	require.NoError(t, run(t, "--api", s.api.URL, "delay", "get"))
	assert.Equal(t, "12\n", out.String())
}

func TestDelaySetRejectsBadInput(t *testing.T) {
	s := newStack(t)
	captureOutput(t)

	for _, arg := range []string{"-3", "soon", "1.5"} {
		err := run(t, "--api", s.api.URL, "delay", "set", "--", arg)
		assert.EqualError(t, err, "Invalid delay", arg)
	}
	assert.Equal(t, 5, s.services.Delay.Get())
}

func TestActionsCommand(t *testing.T) {
	s := newStack(t)
	out := captureOutput(t)

	require.NoError(t, run(t, "--api", s.api.URL, "actions"))
	assert.Contains(t, out.String(), "No delayed actions.")

	id, err := s.services.Scheduler.Queue(scheduler.TypeFlagUpdate, func(context.Context) error { return nil })
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, run(t, "--api", s.api.URL, "actions"))
	assert.Contains(t, out.String(), id.String()[:8])
	assert.Contains(t, out.String(), "flag-update")
	assert.Contains(t, out.String(), "pending")

	out.Reset()
	require.NoError(t, run(t, "--api", s.api.URL, "--json", "actions"))
	var resp gateway.ActionsResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.Len(t, resp.Actions, 1)
	assert.Equal(t, id, resp.Actions[0].ID)
}

func TestStatusJSON(t *testing.T) {
	s := newStack(t)
	out := captureOutput(t)

	require.NoError(t, run(t, "--api", s.api.URL, "--json", "status"))

	var snap trackstatus.Snapshot
	require.NoError(t, json.Unmarshal(out.Bytes(), &snap))
	assert.Equal(t, 5, snap.DelaySeconds)
	assert.False(t, snap.Connected)
}

func TestStatusText(t *testing.T) {
	s := newStack(t)
	out := captureOutput(t)

	require.NoError(t, run(t, "--api", s.api.URL, "status"))
	assert.Contains(t, out.String(), "Delay:")
	assert.Contains(t, out.String(), "5s")
	assert.Contains(t, out.String(), "Selected lights:")
}

func TestConnectSelectAndApply(t *testing.T) {
	s := newStack(t)
	out := captureOutput(t)

	require.Error(t, run(t, "--api", s.api.URL, "flag", "red"), "not connected yet")

	err := run(t, "--api", s.api.URL, "connect", "bad-token")
	assert.EqualError(t, err, "Failed to connect to LIFX")
	assert.False(t, s.services.Lights.Connected())

	require.NoError(t, run(t, "--api", s.api.URL, "connect", "good-token"))
	assert.True(t, s.services.Lights.Connected())
	assert.Contains(t, out.String(), "2 lights found")

	require.NoError(t, run(t, "--api", s.api.URL, "devices", "select", "d2"))
	assert.Equal(t, []string{"d2"}, s.services.Lights.Selected())

	require.NoError(t, run(t, "--api", s.api.URL, "devices", "toggle", "d1"))
	assert.Equal(t, []string{"d2", "d1"}, s.services.Lights.Selected())

	out.Reset()
	require.NoError(t, run(t, "--api", s.api.URL, "devices", "list"))
	assert.Contains(t, out.String(), "* d1")
	assert.Contains(t, out.String(), "Shelf")

	require.NoError(t, run(t, "--api", s.api.URL, "flag", "yellow"))
	assert.Equal(t, models.FlagYellow, s.services.Tracker.Snapshot().AppliedFlag)

	assert.EqualError(t, run(t, "--api", s.api.URL, "flag", "purple"), "Unknown flag")

	require.NoError(t, run(t, "--api", s.api.URL, "disconnect"))
	assert.False(t, s.services.Lights.Connected())
}

func TestTestMessageCommands(t *testing.T) {
	s := newStack(t)
	captureOutput(t)

	require.NoError(t, run(t, "--api", s.api.URL, "test-message", "set", "--flag", "red", "--message", "RED FLAG"))
	assert.True(t, s.services.Resolver.TestMessageActive())

	msgs, err := s.services.Resolver.FetchMessages(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "RED", msgs[0].RawFlag())

	require.NoError(t, run(t, "--api", s.api.URL, "test-message", "clear"))
	assert.False(t, s.services.Resolver.TestMessageActive())
}

func TestClientCommandWithoutServer(t *testing.T) {
	captureOutput(t)
	err := run(t, "--api", "http://127.0.0.1:1", "--timeout", "200ms", "status")
	assert.EqualError(t, err, "Failed to fetch status")
}

func TestSettingsCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	t.Setenv("FLAGLIGHTS_STORE_BACKEND", settings.BackendFile)
	t.Setenv("FLAGLIGHTS_STORE_PATH", path)

	store, err := settings.OpenFileStore(path)
	require.NoError(t, err)
	state := settings.NewState(store)
	ctx := context.Background()
	require.NoError(t, state.SetDelay(ctx, 9))
	require.NoError(t, state.SetSelectedDevices(ctx, []string{"d1"}))
	require.NoError(t, state.SetToken(ctx, "c0ffee0123456789"))

	out := captureOutput(t)
	require.NoError(t, run(t, "settings", "show"))
	assert.Contains(t, out.String(), "9s")
	assert.Contains(t, out.String(), "d1")
	assert.Contains(t, out.String(), "c0ff********6789")
	assert.NotContains(t, out.String(), "c0ffee0123456789")

	require.NoError(t, run(t, "settings", "clear", "delay", "token"))
	require.NoError(t, store.Reload())

	_, err = store.Get(ctx, settings.KeyBroadcastDelay)
	assert.ErrorIs(t, err, settings.ErrNotFound)
	_, err = store.Get(ctx, settings.KeyLIFXToken)
	assert.ErrorIs(t, err, settings.ErrNotFound)
	devices, err := state.SelectedDevices(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, devices)

	assert.EqualError(t, run(t, "settings", "clear", "everything"), "Unknown setting")
}

func TestBaseURL(t *testing.T) {
	cases := map[string]string{
		"":                     "http://localhost:8080",
		":9090":                "http://localhost:9090",
		"0.0.0.0:8080":         "http://0.0.0.0:8080",
		"http://lights.local":  "http://lights.local",
		"https://lights.local": "https://lights.local",
	}
	for addr, want := range cases {
		cfg := config.Default()
		cfg.HTTP.Addr = addr
		opts := &cliOptions{cfg: cfg}
		assert.Equal(t, want, opts.baseURL(), addr)
	}

	opts := &cliOptions{apiURL: "http://example.test/"}
	assert.Equal(t, "http://example.test", opts.baseURL())
}
