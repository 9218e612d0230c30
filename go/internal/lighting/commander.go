// Package lighting turns canonical flags into lighting command sequences and
// owns the connection to the lighting API: token, device cache and selection.
package lighting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/flaglights/go/clients"
	"github.com/mcdev12/flaglights/go/clients/lifx_client"
	"github.com/mcdev12/flaglights/go/internal/models"
	"github.com/mcdev12/flaglights/go/internal/settings"
)

var (
	ErrNoDevicesSelected = errors.New("no lights selected")
	ErrNoValidDevices    = errors.New("no valid devices found")
	ErrNotConnected      = errors.New("lighting API not connected")
	ErrUnknownFlag       = errors.New("unknown flag")
	ErrUnknownDevice     = errors.New("unknown device")

	// ErrInvalidCredential is terminal: the commander disconnects when it
	// sees it.
	ErrInvalidCredential = lifx_client.ErrInvalidCredential
)

// Client is the lighting API surface the commander drives.
type Client interface {
	SetToken(token string)
	ListLights(ctx context.Context) ([]models.Device, error)
	SetState(ctx context.Context, selector string, state models.LightState) error
	Pulse(ctx context.Context, selector string, effect models.PulseEffect) error
}

type Config struct {
	MinInterval     time.Duration
	Retry           clients.RetryPolicy
	RefreshInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		MinInterval: 50 * time.Millisecond,
		Retry: clients.RetryPolicy{
			MaxRetries: 3,
			BaseDelay:  2 * time.Second,
			MaxDelay:   8 * time.Second,
		},
		RefreshInterval: 30 * time.Second,
	}
}

type Commander struct {
	client  Client
	state   *settings.State
	clock   clockwork.Clock
	config  Config
	limiter *limiter

	// one flag sequence at a time
	applyMu sync.Mutex

	mu        sync.RWMutex
	connected bool
	devices   map[string]models.Device
	selected  []string
}

func NewCommander(client Client, state *settings.State, clock clockwork.Clock, cfg Config) *Commander {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	defaults := DefaultConfig()
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = defaults.MinInterval
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = defaults.RefreshInterval
	}
	return &Commander{
		client:  client,
		state:   state,
		clock:   clock,
		config:  cfg,
		limiter: newLimiter(clock, cfg.MinInterval),
		devices: make(map[string]models.Device),
	}
}

// Init restores the persisted selection and, if a token is stored,
// reconnects with it.
func (c *Commander) Init(ctx context.Context) error {
	selected, err := c.state.SelectedDevices(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("ignoring unreadable device selection")
	}
	c.mu.Lock()
	c.selected = selected
	c.mu.Unlock()

	token, err := c.state.Token(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		log.Info().Msg("no lighting token stored")
		return nil
	}
	return c.Connect(ctx, token)
}

// Connect installs token, fetches the device list and persists the token
// once the API has accepted it.
func (c *Commander) Connect(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidCredential)
	}

	c.limiter.reset()
	c.mu.Lock()
	c.devices = make(map[string]models.Device)
	c.mu.Unlock()

	c.client.SetToken(token)
	devices, err := c.listLights(ctx)
	if err != nil {
		if errors.Is(err, ErrInvalidCredential) {
			c.disconnect(ctx)
		}
		return err
	}

	if err := c.state.SetToken(ctx, token); err != nil {
		return err
	}

	c.mu.Lock()
	c.connected = true
	c.storeDevicesLocked(devices)
	c.mu.Unlock()

	log.Info().Int("devices", len(devices)).Msg("connected to lighting API")
	return nil
}

// Disconnect clears the token, device cache and rate-limit state.
func (c *Commander) Disconnect(ctx context.Context) error {
	return c.disconnect(ctx)
}

func (c *Commander) disconnect(ctx context.Context) error {
	c.client.SetToken("")
	c.limiter.reset()

	c.mu.Lock()
	c.connected = false
	c.devices = make(map[string]models.Device)
	c.mu.Unlock()

	log.Info().Msg("disconnected from lighting API")
	return c.state.ClearToken(ctx)
}

// Connected reports whether a token has been accepted by the API.
func (c *Commander) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// RefreshDevices re-fetches the device list into the cache.
func (c *Commander) RefreshDevices(ctx context.Context) ([]models.Device, error) {
	if !c.Connected() {
		return nil, ErrNotConnected
	}

	devices, err := c.listLights(ctx)
	if err != nil {
		if errors.Is(err, ErrInvalidCredential) {
			c.disconnect(ctx)
		}
		return nil, err
	}

	c.mu.Lock()
	c.storeDevicesLocked(devices)
	c.mu.Unlock()

	log.Debug().Int("devices", len(devices)).Msg("refreshed device list")
	return devices, nil
}

func (c *Commander) listLights(ctx context.Context) ([]models.Device, error) {
	var devices []models.Device
	err := c.retry(ctx, "list lights", func() error {
		got, err := c.client.ListLights(ctx)
		if err != nil {
			return err
		}
		devices = got
		return nil
	})
	return devices, err
}

func (c *Commander) storeDevicesLocked(devices []models.Device) {
	c.devices = make(map[string]models.Device, len(devices))
	for _, d := range devices {
		c.devices[d.ID] = d
	}
}

// Devices returns the cached devices sorted by label.
func (c *Commander) Devices() []models.Device {
	c.mu.RLock()
	out := make([]models.Device, 0, len(c.devices))
	for _, d := range c.devices {
		out = append(out, d)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Label == out[j].Label {
			return out[i].ID < out[j].ID
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// Selected returns the selected device ids in selection order.
func (c *Commander) Selected() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.selected...)
}

// SelectDevices replaces and persists the selection.
func (c *Commander) SelectDevices(ctx context.Context, ids []string) error {
	seen := make(map[string]struct{}, len(ids))
	clean := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		clean = append(clean, id)
	}

	if err := c.state.SetSelectedDevices(ctx, clean); err != nil {
		return err
	}

	c.mu.Lock()
	c.selected = clean
	c.mu.Unlock()

	log.Info().Strs("devices", clean).Msg("device selection updated")
	return nil
}

// ToggleDevice adds id to the selection, or removes it if already present.
func (c *Commander) ToggleDevice(ctx context.Context, id string) ([]string, error) {
	current := c.Selected()
	next := make([]string, 0, len(current)+1)
	removed := false
	for _, s := range current {
		if s == id {
			removed = true
			continue
		}
		next = append(next, s)
	}
	if !removed {
		c.mu.RLock()
		_, known := c.devices[id]
		c.mu.RUnlock()
		if !known {
			return current, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
		}
		next = append(next, id)
	}

	if err := c.SelectDevices(ctx, next); err != nil {
		return current, err
	}
	return c.Selected(), nil
}

// ApplyFlag runs the flag's lighting sequence against the selected devices.
// Cancelling ctx stops the sequence before its next step.
func (c *Commander) ApplyFlag(ctx context.Context, flag models.Flag) error {
	steps := Sequence(flag)
	if steps == nil {
		return fmt.Errorf("%w: %q", ErrUnknownFlag, flag)
	}

	selected := c.Selected()
	if len(selected) == 0 {
		return ErrNoDevicesSelected
	}
	if !c.Connected() {
		return ErrNotConnected
	}

	selector, err := c.validSelector(selected)
	if err != nil {
		return err
	}

	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	log.Info().Str("flag", flag.String()).Str("selector", selector).Int("steps", len(steps)).Msg("applying flag sequence")

	for i, step := range steps {
		// a cancelled sequence must not touch the lights again
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("flag %s step %d (%s): %w", flag, i+1, step.Kind, err)
		}
		if err := c.runStep(ctx, selector, step); err != nil {
			if errors.Is(err, ErrInvalidCredential) {
				c.disconnect(ctx)
			}
			return fmt.Errorf("flag %s step %d (%s): %w", flag, i+1, step.Kind, err)
		}
	}
	return nil
}

func (c *Commander) runStep(ctx context.Context, selector string, step Step) error {
	switch step.Kind {
	case StepPause:
		timer := c.clock.NewTimer(step.Pause)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.Chan():
			return nil
		}
	case StepState:
		return c.limiter.Do(ctx, selector, func(ctx context.Context) error {
			return c.retry(ctx, "set state", func() error {
				return c.client.SetState(ctx, selector, step.State)
			})
		})
	case StepPulse:
		return c.limiter.Do(ctx, selector, func(ctx context.Context) error {
			return c.retry(ctx, "pulse", func() error {
				return c.client.Pulse(ctx, selector, step.Pulse)
			})
		})
	}
	return fmt.Errorf("unknown step kind %d", step.Kind)
}

// validSelector drops unknown or disconnected devices and joins the rest.
func (c *Commander) validSelector(ids []string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		d, ok := c.devices[id]
		if !ok {
			log.Warn().Str("device_id", id).Msg("device not found in cache")
			continue
		}
		if !d.Connected {
			log.Warn().Str("device_id", id).Msg("device is not connected")
			continue
		}
		valid = append(valid, id)
	}
	if len(valid) == 0 {
		return "", ErrNoValidDevices
	}
	return strings.Join(valid, ","), nil
}

func (c *Commander) retry(ctx context.Context, op string, fn func() error) error {
	return c.config.Retry.Retry(ctx, func() error {
		err := fn()
		if err != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("op", op).Dur("retry_in", wait).Msg("lighting request failed, retrying")
	})
}

func isRetryable(err error) bool {
	if errors.Is(err, ErrInvalidCredential) || errors.Is(err, lifx_client.ErrNoToken) || errors.Is(err, context.Canceled) {
		return false
	}
	code := clients.StatusCode(err)
	if code == 0 {
		return true
	}
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// Run refreshes the device list on the refresh interval while connected.
func (c *Commander) Run(ctx context.Context) {
	ticker := c.clock.NewTicker(c.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if !c.Connected() {
				continue
			}
			if _, err := c.RefreshDevices(ctx); err != nil {
				log.Error().Err(err).Msg("device refresh failed")
			}
		}
	}
}
