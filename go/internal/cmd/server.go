package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/flaglights/go/internal/config"
	"github.com/mcdev12/flaglights/go/internal/gateway"
)

func newServeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the flag tracker and HTTP API",
		Long: `Start polling race control, drive the lights and serve the HTTP API.

Endpoints:
  /api/...        control API used by the other commands
  /ws/status      websocket status stream
  /health         liveness check
  /metrics        Prometheus text metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts.cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	services, err := setupServices(ctx, cfg, clockwork.NewRealClock())
	if err != nil {
		return err
	}
	defer func() {
		if err := services.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close services")
		}
	}()

	server := setupServer(cfg, services)
	unsubscribe := services.Tracker.Subscribe(server.Broadcast)
	defer unsubscribe()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return services.Tracker.Run(ctx)
	})
	g.Go(func() error {
		return server.Run(ctx)
	})
	if cfg.Store.Watch {
		g.Go(func() error {
			return watchSettings(ctx, services)
		})
	}

	log.Info().
		Str("addr", cfg.HTTP.Addr).
		Int("delay_seconds", services.Delay.Get()).
		Bool("lights_connected", services.Lights.Connected()).
		Msg("flaglights running")

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("flaglights stopped")
	return nil
}

func setupServer(cfg *config.Config, services *Services) *gateway.Server {
	health := gateway.HealthOptions{
		Metrics: services.Metrics,
		// a poll should land at least every slow interval
		Threshold: 3 * cfg.Liveness.SlowPoll,
	}
	if services.NATS != nil {
		health.Broker = services.NATS
	}

	return gateway.NewServer(gateway.ServerConfig{
		Addr:           cfg.HTTP.Addr,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Health:         health,
		Connection:     gateway.DefaultConnectionConfig(),
	}, services.Tracker)
}
