// Package server provides the main server orchestration for the Nabz
// monitoring system.
//
// This package coordinates the startup and shutdown of all core components:
//   - Database storage initialization
//   - Monitoring engine startup
//   - HTTP API server management
//   - Graceful shutdown handling
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"nabz/internal/api"
	"nabz/internal/config"
	"nabz/internal/core"
	"nabz/internal/storage"
)

// shutdownTimeout bounds the graceful shutdown sequence.
const shutdownTimeout = 30 * time.Second

// Server represents the main Nabz server orchestrator.
//
// It manages the lifecycle of the storage, the monitoring engine and the
// HTTP API server, ensuring proper initialization order and graceful
// shutdown.
type Server struct {
	cfg *config.Config
}

// New creates a new server instance with the provided configuration.
//
// The server is not started until Start() is called. This allows for
// proper dependency injection and testing.
func New(cfg *config.Config) *Server {
	return &Server{
		cfg: cfg,
	}
}

// Start initializes and starts all server components in order: storage,
// engine, HTTP API. It blocks until the context is cancelled or the HTTP
// server fails, then shuts everything down gracefully.
func (s *Server) Start(ctx context.Context) error {
	// Phase 1: storage; everything else depends on it
	store, err := storage.New(s.cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	// Phase 2: monitoring engine (scheduler, rule sweep, analysis pool)
	engine := core.NewEngine(s.cfg, store)
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	defer engine.Stop()

	// Phase 3: HTTP API server
	apiServer := api.NewServer(s.cfg.Server, engine, store)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- apiServer.Start()
	}()

	// Phase 4: wait for shutdown signal or server failure
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received, starting graceful shutdown")
	}

	// Phase 5: graceful shutdown, HTTP first so new requests stop arriving
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}

	log.Info().Msg("Server stopped gracefully")
	return nil
}
