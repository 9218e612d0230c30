package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/flaglights/go/clients"
	"github.com/mcdev12/flaglights/go/clients/lifx_client"
	"github.com/mcdev12/flaglights/go/clients/openf1_client"
	"github.com/mcdev12/flaglights/go/internal/config"
	"github.com/mcdev12/flaglights/go/internal/delay"
	"github.com/mcdev12/flaglights/go/internal/events"
	"github.com/mcdev12/flaglights/go/internal/flag"
	"github.com/mcdev12/flaglights/go/internal/lighting"
	"github.com/mcdev12/flaglights/go/internal/liveness"
	"github.com/mcdev12/flaglights/go/internal/scheduler"
	"github.com/mcdev12/flaglights/go/internal/settings"
	"github.com/mcdev12/flaglights/go/internal/trackstatus"
)

type Services struct {
	Store     settings.Store
	State     *settings.State
	Delay     *delay.Store
	Resolver  *flag.Resolver
	Scheduler *scheduler.Scheduler
	Monitor   *liveness.Monitor
	Lights    *lighting.Commander
	Metrics   *events.MetricPublisher
	NATS      *events.NATSPublisher
	Tracker   *trackstatus.Tracker

	natsConn *nats.Conn
}

func setupServices(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (*Services, error) {
	// Wire up dependency injection chain
	// Settings store → typed state → domain components → tracker
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	store, err := openSettings(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := &Services{
		Store: store,
		State: settings.NewState(store),
	}

	// Delay
	s.Delay = delay.NewStore(s.State, cfg.Scheduler.DefaultDelay)
	if err := s.Delay.Load(ctx); err != nil {
		log.Warn().Err(err).Msg("continuing with default delay")
	}

	// Race control feed
	feed := openf1_client.NewOpenF1Client(cfg.Feed.BaseURL, cfg.Feed.Timeout)
	s.Resolver = flag.NewResolver(feed, clock, flag.Config{
		SessionKey:  cfg.Feed.SessionKey,
		ResultLimit: cfg.Feed.ResultLimit,
		Retry: clients.RetryPolicy{
			MaxRetries: cfg.Feed.RetryAttempts,
			BaseDelay:  cfg.Feed.RetryBaseDelay,
			MaxDelay:   cfg.Feed.RetryMaxDelay,
		},
		DedupSize:      cfg.Feed.DedupSize,
		TestMessageTTL: cfg.Feed.TestMessageTTL,
	})

	// Scheduler and liveness
	s.Scheduler = scheduler.New(clock, s.Delay, scheduler.Config{
		TickInterval: cfg.Scheduler.TickInterval,
		Retention:    cfg.Scheduler.Retention,
	})
	s.Monitor = liveness.NewMonitor(s.Resolver, clock, liveness.Config{
		Window:        cfg.Liveness.Window,
		CheckInterval: cfg.Liveness.CheckInterval,
		FastPoll:      cfg.Liveness.FastPoll,
		SlowPoll:      cfg.Liveness.SlowPoll,
	})

	// Lights
	lifx := lifx_client.NewLIFXClient(cfg.Lights.BaseURL, cfg.Lights.Timeout)
	s.Lights = lighting.NewCommander(lifx, s.State, clock, lighting.Config{
		MinInterval: cfg.Lights.MinInterval,
		Retry: clients.RetryPolicy{
			MaxRetries: cfg.Lights.RetryAttempts,
			BaseDelay:  cfg.Lights.RetryBaseDelay,
			MaxDelay:   cfg.Lights.RetryMaxDelay,
		},
		RefreshInterval: cfg.Lights.RefreshInterval,
	})

	// Events
	var publisher events.Publisher = events.NewLogPublisher()
	if cfg.Events.NATSURL != "" {
		natsPub, nc, err := events.Connect(cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.NATS = natsPub
		s.natsConn = nc
		publisher = events.MultiPublisher{publisher, natsPub}
		log.Info().Str("url", cfg.Events.NATSURL).Msg("publishing events to NATS")
	}
	s.Metrics = events.NewMetricPublisher(publisher)

	s.Tracker = trackstatus.New(trackstatus.Deps{
		Resolver:  s.Resolver,
		Scheduler: s.Scheduler,
		Monitor:   s.Monitor,
		Lights:    s.Lights,
		Delay:     s.Delay,
		Publisher: s.Metrics,
		Clock:     clock,
	})

	if err := initLights(ctx, s, cfg.Lights.Token); err != nil {
		log.Warn().Err(err).Msg("lights not connected at startup")
	}
	return s, nil
}

// initLights restores the persisted selection and token. A token from the
// configuration is used only when none is stored.
func initLights(ctx context.Context, s *Services, configured string) error {
	if err := s.Lights.Init(ctx); err != nil {
		return err
	}
	if s.Lights.Connected() || configured == "" {
		return nil
	}
	if err := s.Tracker.Connect(ctx, configured); err != nil {
		return fmt.Errorf("connect with configured token: %w", err)
	}
	return nil
}

func (s *Services) Close() error {
	var errs []error
	if s.natsConn != nil {
		if err := s.natsConn.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("drain NATS: %w", err))
		}
	}
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close settings store: %w", err))
		}
	}
	return errors.Join(errs...)
}
