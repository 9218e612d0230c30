// Package trackstatus wires the flag resolver, delay scheduler, liveness
// monitor and lighting commander into the running service and keeps the
// status snapshot shown to clients.
package trackstatus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/flaglights/go/internal/delay"
	"github.com/mcdev12/flaglights/go/internal/events"
	"github.com/mcdev12/flaglights/go/internal/flag"
	"github.com/mcdev12/flaglights/go/internal/lighting"
	"github.com/mcdev12/flaglights/go/internal/liveness"
	"github.com/mcdev12/flaglights/go/internal/models"
	"github.com/mcdev12/flaglights/go/internal/scheduler"
)

// ErrSuperseded is returned by ApplyManual when a newer flag took over the
// lights before its sequence finished.
var ErrSuperseded = errors.New("flag sequence superseded")

// Snapshot is the externally visible status.
type Snapshot struct {
	Flag              models.Flag        `json:"flag"`
	PendingFlag       models.Flag        `json:"pending_flag,omitempty"`
	PendingDueAt      *time.Time         `json:"pending_due_at,omitempty"`
	AppliedFlag       models.Flag        `json:"applied_flag,omitempty"`
	LastUpdate        time.Time          `json:"last_update"`
	LastPoll          time.Time          `json:"last_poll"`
	Live              bool               `json:"live"`
	DelaySeconds      int                `json:"delay_seconds"`
	Error             string             `json:"error,omitempty"`
	FeedError         string             `json:"feed_error,omitempty"`
	Connected         bool               `json:"connected"`
	SelectedDevices   []string           `json:"selected_devices"`
	TestMessageActive bool               `json:"test_message_active"`
	PendingActions    []scheduler.Action `json:"pending_actions"`
}

type Deps struct {
	Resolver  *flag.Resolver
	Scheduler *scheduler.Scheduler
	Monitor   *liveness.Monitor
	Lights    *lighting.Commander
	Delay     *delay.Store
	Publisher events.Publisher
	Clock     clockwork.Clock
}

type Tracker struct {
	resolver  *flag.Resolver
	scheduler *scheduler.Scheduler
	monitor   *liveness.Monitor
	lights    *lighting.Commander
	delay     *delay.Store
	publisher events.Publisher
	clock     clockwork.Clock

	wakeCh chan struct{}

	// the in-flight lighting sequence; a newer apply cancels it
	applyMu     sync.Mutex
	applySeq    uint64
	applyCancel context.CancelFunc
	applies     sync.WaitGroup

	mu          sync.RWMutex
	detected    models.Flag
	pendingID   uuid.UUID
	pendingFlag models.Flag
	appliedFlag models.Flag
	lastUpdate  time.Time
	lastPoll    time.Time
	lastError   string
	feedError   string

	subMu       sync.RWMutex
	nextSubID   int
	subscribers map[int]func(Snapshot)
}

func New(d Deps) *Tracker {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Publisher == nil {
		d.Publisher = events.NewLogPublisher()
	}
	t := &Tracker{
		resolver:    d.Resolver,
		scheduler:   d.Scheduler,
		monitor:     d.Monitor,
		lights:      d.Lights,
		delay:       d.Delay,
		publisher:   d.Publisher,
		clock:       d.Clock,
		wakeCh:      make(chan struct{}, 1),
		subscribers: make(map[int]func(Snapshot)),
	}

	t.resolver.OnChange(t.onFlagChange)
	t.monitor.OnChange(t.onLiveChange)
	t.delay.Subscribe(t.onDelayChange)
	return t
}

// Run polls the feed at the liveness cadence and drives the scheduler,
// liveness and device refresh loops until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	if err := t.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t.monitor.Run(ctx)
		return nil
	})
	g.Go(func() error {
		t.lights.Run(ctx)
		return nil
	})
	g.Go(func() error {
		t.pollLoop(ctx)
		return nil
	})

	log.Info().Msg("track status tracker running")
	err := g.Wait()
	// no tick may start a sequence once we wait for the running ones
	t.scheduler.Stop()
	t.applies.Wait()
	return err
}

func (t *Tracker) pollLoop(ctx context.Context) {
	for {
		t.PollOnce(ctx)

		interval := t.monitor.PollInterval()
		timer := t.clock.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-t.wakeCh:
			timer.Stop()
		case <-timer.Chan():
		}
	}
}

// wake triggers an immediate poll.
func (t *Tracker) wake() {
	select {
	case t.wakeCh <- struct{}{}:
	default:
	}
}

// PollOnce runs a single resolver poll and records the outcome.
func (t *Tracker) PollOnce(ctx context.Context) flag.Result {
	res, err := t.resolver.Poll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("flag change could not be scheduled")
	}

	feedError := ""
	if res.FetchErr != nil {
		feedError = res.FetchErr.Error()
	}

	t.mu.Lock()
	t.lastPoll = t.clock.Now()
	feedChanged := feedError != t.feedError
	t.feedError = feedError
	t.mu.Unlock()

	if feedChanged {
		t.notify()
	}
	return res
}

func (t *Tracker) onFlagChange(ctx context.Context, previous, next models.Flag) error {
	id, err := t.scheduler.Queue(scheduler.TypeFlagUpdate, t.applyAction(next))
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.detected = next
	t.pendingID = id
	t.pendingFlag = next
	t.lastUpdate = t.clock.Now()
	t.mu.Unlock()

	seconds := t.delay.Get()
	log.Info().
		Str("flag", next.String()).
		Str("previous", previous.String()).
		Int("delay_seconds", seconds).
		Msg("flag change queued")

	t.publish(ctx, events.FlagDetected, events.FlagPayload{
		Flag:     next.String(),
		Previous: previous.String(),
		Delay:    seconds,
	})
	t.notify()
	return nil
}

// applyAction is the delayed payload for a flag change. It starts the
// lighting sequence in the background and returns at once so the scheduler
// keeps ticking. Lighting failures are surfaced as status text rather than
// failing the action.
func (t *Tracker) applyAction(target models.Flag) scheduler.Func {
	return func(ctx context.Context) error {
		applyCtx, finish := t.beginApply(ctx)

		t.mu.Lock()
		if t.pendingFlag == target {
			t.pendingFlag = models.FlagUnknown
			t.pendingID = uuid.Nil
		}
		t.mu.Unlock()
		t.notify()

		t.applies.Add(1)
		go func() {
			defer t.applies.Done()
			err := t.lights.ApplyFlag(applyCtx, target)
			if !finish() {
				log.Debug().Str("flag", target.String()).Msg("flag sequence superseded")
				return
			}
			if ctx.Err() != nil {
				log.Debug().Str("flag", target.String()).Msg("flag sequence stopped by shutdown")
				return
			}

			t.mu.Lock()
			t.recordApplyLocked(target, err)
			t.mu.Unlock()

			t.publishApply(ctx, target, err, false)
			t.notify()
		}()
		return nil
	}
}

// beginApply cancels any running sequence and returns the context for the
// next one. finish reports whether that sequence is still the latest.
func (t *Tracker) beginApply(parent context.Context) (context.Context, func() bool) {
	ctx, cancel := context.WithCancel(parent)

	t.applyMu.Lock()
	if t.applyCancel != nil {
		t.applyCancel()
	}
	t.applySeq++
	seq := t.applySeq
	t.applyCancel = cancel
	t.applyMu.Unlock()

	return ctx, func() bool {
		t.applyMu.Lock()
		defer t.applyMu.Unlock()
		cancel()
		if t.applySeq != seq {
			return false
		}
		t.applyCancel = nil
		return true
	}
}

func (t *Tracker) recordApplyLocked(target models.Flag, err error) {
	t.lastUpdate = t.clock.Now()
	if err != nil {
		t.lastError = describeError(err)
		return
	}
	t.appliedFlag = target
	t.lastError = ""
}

func (t *Tracker) publishApply(ctx context.Context, target models.Flag, err error, manual bool) {
	payload := events.FlagPayload{Flag: target.String(), Delay: t.delay.Get(), Manual: manual}
	if err != nil {
		log.Error().Err(err).Str("flag", target.String()).Bool("manual", manual).Msg("failed to apply flag")
		payload.Error = describeError(err)
		t.publish(ctx, events.FlagFailed, payload)
		if errors.Is(err, lighting.ErrInvalidCredential) {
			t.publish(ctx, events.LightsDisconnected, events.LightsPayload{Reason: payload.Error})
		}
		return
	}
	log.Info().Str("flag", target.String()).Bool("manual", manual).Msg("flag applied")
	t.publish(ctx, events.FlagApplied, payload)
}

func describeError(err error) string {
	switch {
	case errors.Is(err, lighting.ErrInvalidCredential):
		return "Invalid LIFX API token"
	case errors.Is(err, lighting.ErrNoDevicesSelected):
		return "No lights selected"
	case errors.Is(err, lighting.ErrNoValidDevices):
		return "No valid devices found"
	case errors.Is(err, lighting.ErrNotConnected):
		return "LIFX not connected"
	}
	return err.Error()
}

func (t *Tracker) onLiveChange(active bool) {
	t.publish(context.Background(), events.SessionLive, events.SessionPayload{Live: active})
	t.notify()
	if active {
		t.wake()
	}
}

func (t *Tracker) onDelayChange(seconds int) {
	t.publish(context.Background(), events.DelayChanged, events.DelayPayload{Seconds: seconds})
	t.notify()
}

// InjectTestMessage overrides the feed with msg and polls immediately.
func (t *Tracker) InjectTestMessage(ctx context.Context, msg models.RaceControlMessage) models.RaceControlMessage {
	stamped := t.resolver.SetTestMessage(msg)
	t.publish(ctx, events.TestMessageSet, events.TestMessagePayload{
		Category: stamped.Category,
		Flag:     stamped.RawFlag(),
		Message:  stamped.Message,
	})
	t.monitor.Evaluate()
	t.wake()
	t.notify()
	return stamped
}

// ClearTestMessage drops any injected test message.
func (t *Tracker) ClearTestMessage() {
	t.resolver.ClearTestMessage()
	t.monitor.Evaluate()
	t.wake()
	t.notify()
}

// ApplyManual applies flag immediately, bypassing the broadcast delay.
func (t *Tracker) ApplyManual(ctx context.Context, target models.Flag) error {
	if !target.Valid() {
		return fmt.Errorf("%w: %q", lighting.ErrUnknownFlag, target)
	}
	applyCtx, finish := t.beginApply(ctx)
	err := t.lights.ApplyFlag(applyCtx, target)
	if !finish() {
		return fmt.Errorf("%w: %s", ErrSuperseded, target)
	}

	t.mu.Lock()
	t.recordApplyLocked(target, err)
	t.mu.Unlock()

	t.publishApply(ctx, target, err, true)
	t.notify()
	return err
}

// Connect connects the lighting API with token.
func (t *Tracker) Connect(ctx context.Context, token string) error {
	err := t.lights.Connect(ctx, token)

	t.mu.Lock()
	if err != nil {
		t.lastError = describeError(err)
	} else {
		t.lastError = ""
	}
	t.mu.Unlock()

	if err == nil {
		t.publish(ctx, events.LightsConnected, events.LightsPayload{Devices: len(t.lights.Devices())})
	}
	t.notify()
	return err
}

// Disconnect drops the lighting credential and cached devices.
func (t *Tracker) Disconnect(ctx context.Context) error {
	err := t.lights.Disconnect(ctx)
	t.publish(ctx, events.LightsDisconnected, events.LightsPayload{Reason: "user request"})
	t.notify()
	return err
}

// SelectDevices replaces the device selection.
func (t *Tracker) SelectDevices(ctx context.Context, ids []string) error {
	if err := t.lights.SelectDevices(ctx, ids); err != nil {
		return err
	}
	t.notify()
	return nil
}

// ToggleDevice flips a single device in or out of the selection.
func (t *Tracker) ToggleDevice(ctx context.Context, id string) ([]string, error) {
	selected, err := t.lights.ToggleDevice(ctx, id)
	if err != nil {
		return nil, err
	}
	t.notify()
	return selected, nil
}

// Devices returns the cached device list.
func (t *Tracker) Devices() []models.Device {
	return t.lights.Devices()
}

// RefreshDevices re-fetches the device list from the lighting API.
func (t *Tracker) RefreshDevices(ctx context.Context) ([]models.Device, error) {
	devices, err := t.lights.RefreshDevices(ctx)
	if err != nil {
		t.mu.Lock()
		t.lastError = describeError(err)
		t.mu.Unlock()
	}
	t.notify()
	return devices, err
}

// SetDelay changes the broadcast delay.
func (t *Tracker) SetDelay(ctx context.Context, seconds int) error {
	return t.delay.Set(ctx, seconds)
}

// Actions returns the delayed actions still retained by the scheduler,
// executed ones included.
func (t *Tracker) Actions() []scheduler.Action {
	return t.scheduler.Actions()
}

// Snapshot returns the current status.
func (t *Tracker) Snapshot() Snapshot {
	pending := t.scheduler.Pending()

	t.mu.RLock()
	snap := Snapshot{
		Flag:        t.detected,
		PendingFlag: t.pendingFlag,
		AppliedFlag: t.appliedFlag,
		LastUpdate:  t.lastUpdate,
		LastPoll:    t.lastPoll,
		Error:       t.lastError,
		FeedError:   t.feedError,
	}
	pendingID := t.pendingID
	t.mu.RUnlock()

	for _, a := range pending {
		if a.ID == pendingID {
			due := a.DueAt
			snap.PendingDueAt = &due
		}
	}
	snap.PendingActions = pending
	snap.Live = t.monitor.Active()
	snap.DelaySeconds = t.delay.Get()
	snap.Connected = t.lights.Connected()
	snap.SelectedDevices = t.lights.Selected()
	if snap.SelectedDevices == nil {
		snap.SelectedDevices = []string{}
	}
	snap.TestMessageActive = t.resolver.TestMessageActive()
	return snap
}

// Subscribe registers fn for every status change. The returned func
// unsubscribes.
func (t *Tracker) Subscribe(fn func(Snapshot)) func() {
	t.subMu.Lock()
	id := t.nextSubID
	t.nextSubID++
	t.subscribers[id] = fn
	t.subMu.Unlock()

	return func() {
		t.subMu.Lock()
		delete(t.subscribers, id)
		t.subMu.Unlock()
	}
}

func (t *Tracker) notify() {
	snap := t.Snapshot()

	t.subMu.RLock()
	fns := make([]func(Snapshot), 0, len(t.subscribers))
	for _, fn := range t.subscribers {
		fns = append(fns, fn)
	}
	t.subMu.RUnlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (t *Tracker) publish(ctx context.Context, typ events.Type, payload any) {
	ev, err := events.New(typ, t.clock.Now(), payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(typ)).Msg("failed to build event")
		return
	}
	if err := t.publisher.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("event_type", string(typ)).Msg("failed to publish event")
	}
}
