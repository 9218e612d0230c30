package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/flaglights/go/internal/trackstatus"
)

type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
	Health         HealthOptions
	Connection     ConnectionConfig
}

// Server hosts the API, the status stream and the health endpoints.
type Server struct {
	httpServer  *http.Server
	connections *ConnectionManager
}

// NewServer builds the HTTP server around ctrl. Status changes reach
// websocket clients through Broadcast.
func NewServer(cfg ServerConfig, ctrl Controller) *Server {
	cm := NewConnectionManager(cfg.Connection, ctrl)

	mux := http.NewServeMux()
	NewAPIHandler(ctrl).RegisterRoutes(mux)
	NewWebSocketHandler(cm).RegisterRoutes(mux)

	healthOpts := cfg.Health
	healthOpts.Conns = cm
	setupHealthCheck(mux, NewStatusHealthChecker(ctrl, healthOpts))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: origins,
		AllowedHeaders: []string{"*"},
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           h2c.NewHandler(c.Handler(mux), &http2.Server{}),
			ReadHeaderTimeout: 10 * time.Second,
		},
		connections: cm,
	}
}

func setupHealthCheck(mux *http.ServeMux, checker *StatusHealthChecker) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
	mux.Handle("GET /health/detail", checker)
	mux.Handle("GET /metrics", NewPrometheusExporter(checker))
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Connections() *ConnectionManager {
	return s.connections
}

// Broadcast pushes a status change to every websocket client.
func (s *Server) Broadcast(snap trackstatus.Snapshot) {
	s.connections.BroadcastSnapshot(snap)
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go s.connections.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info().Msg("shutting down HTTP server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
