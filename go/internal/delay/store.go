// Package delay holds the user's broadcast delay: how many seconds the local
// broadcast lags behind the live timing feed.
package delay

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/flaglights/go/internal/settings"
)

// DefaultSeconds is used when nothing has been persisted yet.
const DefaultSeconds = 5

// ErrNegativeDelay is returned by Set for values below zero.
var ErrNegativeDelay = errors.New("delay must be zero or greater")

// Store is the single source of truth for the broadcast delay.
type Store struct {
	state *settings.State
	def   int

	mu          sync.RWMutex
	seconds     int
	nextID      int
	subscribers map[int]func(int)
}

// NewStore creates a delay store backed by state. def is used until Load
// finds a persisted value.
func NewStore(state *settings.State, def int) *Store {
	if def < 0 {
		def = DefaultSeconds
	}
	return &Store{
		state:       state,
		def:         def,
		seconds:     def,
		subscribers: make(map[int]func(int)),
	}
}

// Load reads the persisted delay. An unreadable value keeps the default.
func (s *Store) Load(ctx context.Context) error {
	seconds, err := s.state.Delay(ctx, s.def)
	s.mu.Lock()
	s.seconds = seconds
	s.mu.Unlock()
	if err != nil {
		log.Warn().Err(err).Int("default", s.def).Msg("using default broadcast delay")
		return err
	}
	log.Info().Int("delay_seconds", seconds).Msg("loaded broadcast delay")
	return nil
}

// Get returns the current delay in seconds.
func (s *Store) Get() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seconds
}

// Set persists seconds and notifies every subscriber before returning.
func (s *Store) Set(ctx context.Context, seconds int) error {
	if seconds < 0 {
		return fmt.Errorf("%w: got %d", ErrNegativeDelay, seconds)
	}
	if err := s.state.SetDelay(ctx, seconds); err != nil {
		return err
	}

	s.mu.Lock()
	s.seconds = seconds
	s.mu.Unlock()

	log.Info().Int("delay_seconds", seconds).Msg("broadcast delay updated")
	s.notify(seconds)
	return nil
}

// Reload re-reads the persisted value, notifying subscribers only when it
// differs from the current one.
func (s *Store) Reload(ctx context.Context) error {
	seconds, err := s.state.Delay(ctx, s.def)
	if err != nil {
		return err
	}

	s.mu.Lock()
	changed := seconds != s.seconds
	s.seconds = seconds
	s.mu.Unlock()

	if changed {
		log.Info().Int("delay_seconds", seconds).Msg("broadcast delay reloaded")
		s.notify(seconds)
	}
	return nil
}

// Subscribe registers fn for delay changes. The returned func unsubscribes.
func (s *Store) Subscribe(fn func(int)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) notify(seconds int) {
	s.mu.RLock()
	ids := make([]int, 0, len(s.subscribers))
	for id := range s.subscribers {
		ids = append(ids, id)
	}
	fns := make([]func(int), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, s.subscribers[id])
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(seconds)
	}
}
