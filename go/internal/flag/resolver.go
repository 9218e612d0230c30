// Package flag polls the race control feed and turns it into the canonical
// track flag, reporting changes against the last-known flag.
package flag

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/flaglights/go/clients"
	"github.com/mcdev12/flaglights/go/clients/openf1_client"
	"github.com/mcdev12/flaglights/go/internal/models"
)

const (
	DefaultDedupSize      = 100
	DefaultTestMessageTTL = 120 * time.Second
)

// Feed is the race control message source.
type Feed interface {
	RaceControl(ctx context.Context, sessionKey string, limit int) ([]models.RaceControlMessage, error)
}

// ChangeHandler is called when the resolved flag differs from the last-known
// flag. The last-known flag only advances when it returns nil.
type ChangeHandler func(ctx context.Context, previous, next models.Flag) error

type Config struct {
	SessionKey     string
	ResultLimit    int
	Retry          clients.RetryPolicy
	DedupSize      int
	TestMessageTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		SessionKey:  openf1_client.LatestSession,
		ResultLimit: openf1_client.DefaultResultLimit,
		Retry: clients.RetryPolicy{
			MaxRetries: 3,
			BaseDelay:  time.Second,
			MaxDelay:   10 * time.Second,
		},
		DedupSize:      DefaultDedupSize,
		TestMessageTTL: DefaultTestMessageTTL,
	}
}

// Result describes a single poll.
type Result struct {
	Flag     models.Flag `json:"flag"`
	Previous models.Flag `json:"previous"`
	Changed  bool        `json:"changed"`
	Fresh    int         `json:"fresh"`
	Fetched  int         `json:"fetched"`
	FetchErr error       `json:"-"`
}

type Resolver struct {
	feed   Feed
	clock  clockwork.Clock
	config Config

	onChange ChangeHandler

	// serialises Poll so change detection sees one writer at a time
	pollMu sync.Mutex

	mu          sync.RWMutex
	lastGood    []models.RaceControlMessage
	dedup       *dedupCache
	lastKnown   models.Flag
	unresolved  bool
	latestAt    time.Time
	testMessage *models.RaceControlMessage
	testSetAt   time.Time
}

func NewResolver(feed Feed, clock clockwork.Clock, cfg Config) *Resolver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	defaults := DefaultConfig()
	if cfg.SessionKey == "" {
		cfg.SessionKey = defaults.SessionKey
	}
	if cfg.ResultLimit <= 0 {
		cfg.ResultLimit = defaults.ResultLimit
	}
	if cfg.DedupSize <= 0 {
		cfg.DedupSize = defaults.DedupSize
	}
	if cfg.TestMessageTTL <= 0 {
		cfg.TestMessageTTL = defaults.TestMessageTTL
	}
	return &Resolver{
		feed:   feed,
		clock:  clock,
		config: cfg,
		dedup:  newDedupCache(cfg.DedupSize),
		// nothing has been resolved yet, so the first poll resolves even
		// when the feed has no messages
		unresolved: true,
	}
}

// OnChange installs the change handler used by Poll.
func (r *Resolver) OnChange(fn ChangeHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// FetchMessages returns the current message window sorted newest first. An
// active test message replaces the feed. When the feed cannot be read the
// last good window (or nothing) is returned together with the fetch error.
func (r *Resolver) FetchMessages(ctx context.Context) ([]models.RaceControlMessage, error) {
	if msg, ok := r.activeTestMessage(); ok {
		return []models.RaceControlMessage{msg}, nil
	}
	r.expireTestMessage()

	var messages []models.RaceControlMessage
	op := func() error {
		got, err := r.feed.RaceControl(ctx, r.config.SessionKey, r.config.ResultLimit)
		if err != nil {
			if IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		messages = got
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("retry_in", wait).Msg("race control fetch failed, retrying")
	}

	if err := r.config.Retry.Retry(ctx, op, notify); err != nil {
		log.Error().Err(err).Msg("race control fetch failed")
		r.mu.RLock()
		fallback := append([]models.RaceControlMessage(nil), r.lastGood...)
		r.mu.RUnlock()
		return fallback, err
	}

	sortByDateDesc(messages)

	r.mu.Lock()
	r.lastGood = append([]models.RaceControlMessage(nil), messages...)
	r.observeLocked(messages)
	r.mu.Unlock()

	return messages, nil
}

// Poll fetches the current window and runs change detection. Messages already
// seen in earlier polls do not re-trigger resolution.
func (r *Resolver) Poll(ctx context.Context) (Result, error) {
	r.pollMu.Lock()
	defer r.pollMu.Unlock()

	messages, fetchErr := r.FetchMessages(ctx)

	r.mu.Lock()
	previous := r.lastKnown
	fresh := 0
	for _, m := range messages {
		if r.dedup.add(m.DedupKey()) {
			fresh++
		}
	}
	unresolved := r.unresolved
	handler := r.onChange
	r.mu.Unlock()

	result := Result{
		Flag:     previous,
		Previous: previous,
		Fresh:    fresh,
		Fetched:  len(messages),
		FetchErr: fetchErr,
	}

	var resolved models.Flag
	switch {
	case errors.Is(fetchErr, openf1_client.ErrMalformedResponse):
		resolved = models.FlagGreen
	case fresh > 0 || unresolved:
		resolved = ResolveFlag(messages)
	default:
		return result, nil
	}

	result.Flag = resolved
	if resolved == previous {
		r.setUnresolved(false)
		return result, nil
	}

	if handler != nil {
		if err := handler(ctx, previous, resolved); err != nil {
			r.setUnresolved(true)
			result.Flag = previous
			return result, fmt.Errorf("flag change %s -> %s not scheduled: %w", previous, resolved, err)
		}
	}

	r.mu.Lock()
	r.lastKnown = resolved
	r.unresolved = false
	r.mu.Unlock()

	result.Changed = true
	log.Info().
		Str("from", previous.String()).
		Str("to", resolved.String()).
		Int("fresh", fresh).
		Msg("track flag changed")

	return result, nil
}

func (r *Resolver) setUnresolved(v bool) {
	r.mu.Lock()
	r.unresolved = v
	r.mu.Unlock()
}

// LastKnown returns the flag most recently accepted by the change handler.
func (r *Resolver) LastKnown() models.Flag {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastKnown
}

// LatestMessageAt returns the newest message timestamp observed, or the zero
// time if none.
func (r *Resolver) LatestMessageAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latestAt
}

// SetTestMessage overrides the feed with msg, stamped with the current time,
// until it expires or is cleared.
func (r *Resolver) SetTestMessage(msg models.RaceControlMessage) models.RaceControlMessage {
	now := r.clock.Now()
	msg.Date = now

	r.mu.Lock()
	r.testMessage = &msg
	r.testSetAt = now
	r.observeLocked([]models.RaceControlMessage{msg})
	r.mu.Unlock()

	log.Info().
		Str("category", msg.Category).
		Str("flag", msg.RawFlag()).
		Str("message", msg.Message).
		Dur("ttl", r.config.TestMessageTTL).
		Msg("test message injected")
	return msg
}

// ClearTestMessage removes any injected test message. The next poll
// re-resolves the feed window even if it holds nothing new.
func (r *Resolver) ClearTestMessage() {
	r.mu.Lock()
	had := r.testMessage != nil
	r.clearTestMessageLocked()
	r.mu.Unlock()
	if had {
		log.Info().Msg("test message cleared")
	}
}

func (r *Resolver) expireTestMessage() {
	r.mu.Lock()
	expired := r.testMessage != nil
	r.clearTestMessageLocked()
	r.mu.Unlock()
	if expired {
		log.Info().Msg("test message expired")
	}
}

func (r *Resolver) clearTestMessageLocked() {
	if r.testMessage == nil {
		return
	}
	r.testMessage = nil
	r.testSetAt = time.Time{}
	r.unresolved = true
}

// TestMessageActive reports whether an unexpired test message is set.
func (r *Resolver) TestMessageActive() bool {
	_, ok := r.activeTestMessage()
	return ok
}

func (r *Resolver) activeTestMessage() (models.RaceControlMessage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.testMessage == nil {
		return models.RaceControlMessage{}, false
	}
	if r.clock.Since(r.testSetAt) >= r.config.TestMessageTTL {
		return models.RaceControlMessage{}, false
	}
	return *r.testMessage, true
}

func (r *Resolver) observeLocked(messages []models.RaceControlMessage) {
	for _, m := range messages {
		if m.Date.After(r.latestAt) {
			r.latestAt = m.Date
		}
	}
}

// IsTransient reports whether a feed error is worth retrying: timeouts,
// network failures, 404, 429 and 5xx responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if code := clients.StatusCode(err); code != 0 {
		return code == http.StatusNotFound ||
			code == http.StatusTooManyRequests ||
			code >= http.StatusInternalServerError
	}
	if errors.Is(err, openf1_client.ErrMalformedResponse) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
