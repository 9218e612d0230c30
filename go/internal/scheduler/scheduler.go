// Package scheduler holds actions until the broadcast delay has elapsed since
// they were queued and then runs them exactly once.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ActionType groups actions for supersession: at most one pending action
// exists per type.
type ActionType string

// TypeFlagUpdate carries a detected flag change to the lights.
const TypeFlagUpdate ActionType = "flag-update"

// Func is the deferred work carried by an action. Ticks are serialised, so a
// Func must return promptly and hand long-running work to its own goroutine.
type Func func(ctx context.Context) error

// ErrStopped is returned by Queue after Stop.
var ErrStopped = errors.New("scheduler stopped")

// DelaySource provides the current delay in seconds. It is read on every tick.
type DelaySource interface {
	Get() int
}

type Config struct {
	TickInterval time.Duration
	Retention    time.Duration
}

func DefaultConfig() Config {
	return Config{
		TickInterval: 100 * time.Millisecond,
		Retention:    60 * time.Second,
	}
}

// Action is a snapshot of a queued action.
type Action struct {
	ID         uuid.UUID  `json:"id"`
	Type       ActionType `json:"type"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	DueAt      time.Time  `json:"due_at"`
	Executed   bool       `json:"executed"`
	ExecutedAt time.Time  `json:"executed_at,omitempty"`
}

type entry struct {
	id         uuid.UUID
	typ        ActionType
	fn         Func
	enqueuedAt time.Time
	executed   bool
	executedAt time.Time
}

type Scheduler struct {
	clock  clockwork.Clock
	delay  DelaySource
	config Config

	mu             sync.Mutex
	entries        []*entry
	lastExecutedID uuid.UUID
	stopped        bool
	running        bool
	stopChan       chan struct{}
	wg             sync.WaitGroup

	// serialises ticks so an action never runs twice concurrently
	processMu sync.Mutex
}

func New(clock clockwork.Clock, delay DelaySource, cfg Config) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	defaults := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaults.TickInterval
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaults.Retention
	}
	return &Scheduler{
		clock:  clock,
		delay:  delay,
		config: cfg,
	}
}

// Queue schedules fn to run once the current delay has elapsed. Any pending
// action of the same type is discarded first.
func (s *Scheduler) Queue(typ ActionType, fn Func) (uuid.UUID, error) {
	if fn == nil {
		return uuid.Nil, fmt.Errorf("nil action for type %s", typ)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return uuid.Nil, ErrStopped
	}

	kept := s.entries[:0]
	for _, e := range s.entries {
		if !e.executed && e.typ == typ {
			log.Debug().Str("action_id", e.id.String()).Str("type", string(typ)).Msg("superseding pending action")
			continue
		}
		kept = append(kept, e)
	}
	// clear the tail so dropped entries can be collected
	for i := len(kept); i < len(s.entries); i++ {
		s.entries[i] = nil
	}
	s.entries = kept

	e := &entry{
		id:         uuid.New(),
		typ:        typ,
		fn:         fn,
		enqueuedAt: s.clock.Now(),
	}
	s.entries = append(s.entries, e)

	log.Debug().
		Str("action_id", e.id.String()).
		Str("type", string(typ)).
		Int("delay_seconds", s.currentDelay()).
		Msg("queued delayed action")

	return e.id, nil
}

// ProcessDue runs every action whose delay has elapsed and returns how many
// completed successfully. A failing action stays pending and is retried on
// a later call.
func (s *Scheduler) ProcessDue(ctx context.Context) int {
	s.processMu.Lock()
	defer s.processMu.Unlock()

	now := s.clock.Now()
	delay := time.Duration(s.currentDelay()) * time.Second

	s.mu.Lock()
	var due []*entry
	for _, e := range s.entries {
		if e.executed || e.id == s.lastExecutedID {
			continue
		}
		if !e.enqueuedAt.Add(delay).After(now) {
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	executed := 0
	for _, e := range due {
		if ctx.Err() != nil {
			break
		}
		if err := e.fn(ctx); err != nil {
			log.Error().
				Err(err).
				Str("action_id", e.id.String()).
				Str("type", string(e.typ)).
				Msg("delayed action failed, will retry")
			continue
		}

		s.mu.Lock()
		e.executed = true
		e.executedAt = s.clock.Now()
		s.lastExecutedID = e.id
		s.mu.Unlock()
		executed++

		log.Debug().
			Str("action_id", e.id.String()).
			Str("type", string(e.typ)).
			Dur("waited", now.Sub(e.enqueuedAt)).
			Msg("executed delayed action")
	}

	s.prune(now)
	return executed
}

// prune drops executed actions older than the retention window. Pending
// actions are kept regardless of age.
func (s *Scheduler) prune(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.executed && now.Sub(e.enqueuedAt) > s.config.Retention {
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(s.entries); i++ {
		s.entries[i] = nil
	}
	s.entries = kept
}

// Pending returns snapshots of the unexecuted actions in queue order.
func (s *Scheduler) Pending() []Action {
	return s.snapshot(false)
}

// Actions returns snapshots of every retained action, executed or not.
func (s *Scheduler) Actions() []Action {
	return s.snapshot(true)
}

func (s *Scheduler) snapshot(includeExecuted bool) []Action {
	delay := time.Duration(s.currentDelay()) * time.Second

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Action, 0, len(s.entries))
	for _, e := range s.entries {
		if e.executed && !includeExecuted {
			continue
		}
		out = append(out, Action{
			ID:         e.id,
			Type:       e.typ,
			EnqueuedAt: e.enqueuedAt,
			DueAt:      e.enqueuedAt.Add(delay),
			Executed:   e.executed,
			ExecutedAt: e.executedAt,
		})
	}
	return out
}

// Clear drops every action and forgets the last executed id.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.lastExecutedID = uuid.Nil
	log.Debug().Msg("cleared delayed actions")
}

// Start runs the tick loop until Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.stopChan = make(chan struct{})
	stop := s.stopChan
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx, stop)

	log.Info().Dur("tick_interval", s.config.TickInterval).Msg("delay scheduler started")
	return nil
}

// Stop halts the tick loop and rejects further Queue calls. It waits for an
// in-progress tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	wasRunning := s.running
	s.running = false
	if wasRunning {
		close(s.stopChan)
	}
	s.mu.Unlock()

	s.wg.Wait()
	if wasRunning {
		log.Info().Msg("delay scheduler stopped")
	}
}

func (s *Scheduler) run(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.Chan():
			s.ProcessDue(ctx)
		}
	}
}

func (s *Scheduler) currentDelay() int {
	if s.delay == nil {
		return 0
	}
	d := s.delay.Get()
	if d < 0 {
		return 0
	}
	return d
}
