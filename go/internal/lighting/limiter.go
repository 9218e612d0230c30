package lighting

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

var errLimiterReset = errors.New("rate limiter reset")

// limiter spaces commands to the same selector by a minimum interval.
// Commands that arrive early wait in FIFO order; none are dropped.
type limiter struct {
	clock    clockwork.Clock
	interval time.Duration

	mu        sync.Mutex
	selectors map[string]*selectorState
}

type selectorState struct {
	last    time.Time
	busy    bool
	armed   bool
	waiters []chan error
}

func newLimiter(clock clockwork.Clock, interval time.Duration) *limiter {
	return &limiter{
		clock:     clock,
		interval:  interval,
		selectors: make(map[string]*selectorState),
	}
}

// Do runs fn once selector's turn comes up.
func (l *limiter) Do(ctx context.Context, selector string, fn func(context.Context) error) error {
	st, err := l.acquire(ctx, selector)
	if err != nil {
		return err
	}
	defer l.release(st)
	return fn(ctx)
}

func (l *limiter) acquire(ctx context.Context, selector string) (*selectorState, error) {
	l.mu.Lock()
	st, ok := l.selectors[selector]
	if !ok {
		st = &selectorState{}
		l.selectors[selector] = st
	}

	wait := time.Duration(0)
	if !st.last.IsZero() {
		wait = l.interval - l.clock.Since(st.last)
	}
	if !st.busy && len(st.waiters) == 0 && wait <= 0 {
		st.busy = true
		l.mu.Unlock()
		return st, nil
	}

	ch := make(chan error, 1)
	st.waiters = append(st.waiters, ch)
	if !st.busy && !st.armed {
		l.armLocked(st, wait)
	}
	l.mu.Unlock()

	select {
	case err := <-ch:
		return st, err
	case <-ctx.Done():
	}

	l.mu.Lock()
	for i, w := range st.waiters {
		if w == ch {
			st.waiters = append(st.waiters[:i], st.waiters[i+1:]...)
			l.mu.Unlock()
			return nil, ctx.Err()
		}
	}
	l.mu.Unlock()

	// Granted (or reset) while we were giving up.
	if err := <-ch; err == nil {
		l.release(st)
	}
	return nil, ctx.Err()
}

func (l *limiter) release(st *selectorState) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st.busy = false
	st.last = l.clock.Now()
	if len(st.waiters) > 0 && !st.armed {
		l.armLocked(st, l.interval)
	}
}

// armLocked hands the selector to the head waiter after d.
func (l *limiter) armLocked(st *selectorState, d time.Duration) {
	st.armed = true
	l.clock.AfterFunc(d, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		st.armed = false
		if st.busy || len(st.waiters) == 0 {
			return
		}
		head := st.waiters[0]
		st.waiters[0] = nil
		st.waiters = st.waiters[1:]
		st.busy = true
		head <- nil
	})
}

// waiting returns how many commands are queued for selector.
func (l *limiter) waiting(selector string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok := l.selectors[selector]; ok {
		return len(st.waiters)
	}
	return 0
}

// reset forgets every selector and fails queued commands.
func (l *limiter) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, st := range l.selectors {
		for _, w := range st.waiters {
			w <- errLimiterReset
		}
		st.waiters = nil
	}
	l.selectors = make(map[string]*selectorState)
}
