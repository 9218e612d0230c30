// Package liveness decides whether a session is running, which in turn sets
// how often the race control feed is polled.
package liveness

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Source reports what the flag resolver has seen.
type Source interface {
	LatestMessageAt() time.Time
	TestMessageActive() bool
}

type Config struct {
	Window        time.Duration
	CheckInterval time.Duration
	FastPoll      time.Duration
	SlowPoll      time.Duration
}

func DefaultConfig() Config {
	return Config{
		Window:        2 * time.Minute,
		CheckInterval: 60 * time.Second,
		FastPoll:      500 * time.Millisecond,
		SlowPoll:      30 * time.Second,
	}
}

type Monitor struct {
	source Source
	clock  clockwork.Clock
	config Config

	mu        sync.RWMutex
	active    bool
	evaluated bool
	onChange  func(active bool)
}

func NewMonitor(source Source, clock clockwork.Clock, cfg Config) *Monitor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	defaults := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = defaults.Window
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = defaults.CheckInterval
	}
	if cfg.FastPoll <= 0 {
		cfg.FastPoll = defaults.FastPoll
	}
	if cfg.SlowPoll <= 0 {
		cfg.SlowPoll = defaults.SlowPoll
	}
	return &Monitor{source: source, clock: clock, config: cfg}
}

// OnChange registers a callback fired by Evaluate on liveness transitions.
func (m *Monitor) OnChange(fn func(active bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// IsActive computes liveness now: a test message is active, or the latest
// message is within the window.
func (m *Monitor) IsActive() bool {
	if m.source.TestMessageActive() {
		return true
	}
	latest := m.source.LatestMessageAt()
	if latest.IsZero() {
		return false
	}
	return m.clock.Since(latest) <= m.config.Window
}

// Active returns the result of the last Evaluate.
func (m *Monitor) Active() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// Evaluate refreshes the cached liveness, firing the change callback on a
// transition, and returns the new value.
func (m *Monitor) Evaluate() bool {
	active := m.IsActive()

	m.mu.Lock()
	changed := !m.evaluated || active != m.active
	m.active = active
	m.evaluated = true
	fn := m.onChange
	m.mu.Unlock()

	if changed {
		log.Info().Bool("live", active).Dur("poll_interval", m.interval(active)).Msg("session liveness changed")
		if fn != nil {
			fn(active)
		}
	}
	return active
}

// PollInterval is the feed polling cadence for the cached liveness.
func (m *Monitor) PollInterval() time.Duration {
	return m.interval(m.Active())
}

func (m *Monitor) interval(active bool) time.Duration {
	if active {
		return m.config.FastPoll
	}
	return m.config.SlowPoll
}

// Run evaluates immediately and then on every check interval until ctx is
// cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.Evaluate()

	ticker := m.clock.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.Evaluate()
		}
	}
}
