// Package api provides HTTP API functionality for the Nabz monitoring system.
// This package implements a RESTful API using the Gin framework.
//
// Example usage:
//
//	server := api.NewServer(cfg.Server, engine, storage)
//	err := server.Start()
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"nabz/internal/config"
	"nabz/internal/core"
	"nabz/internal/storage"
)

// Server represents the HTTP API server.
type Server struct {
	config  config.ServerConfig
	engine  *core.Engine
	storage *storage.Storage
	router  *gin.Engine
	server  *http.Server
}

// NewServer creates a new HTTP API server instance.
func NewServer(cfg config.ServerConfig, engine *core.Engine, storage *storage.Storage) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config:  cfg,
		engine:  engine,
		storage: storage,
		router:  gin.New(),
	}

	server.setupMiddleware()
	server.setupRoutes()

	server.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      server.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return server
}

// Start starts the HTTP server and begins listening for requests.
func (s *Server) Start() error {
	log.Info().Str("addr", s.config.Addr).Msg("Starting HTTP server")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// setupMiddleware configures middleware for the Gin router.
func (s *Server) setupMiddleware() {
	// Request ID middleware (should be first)
	s.router.Use(RequestID())

	// Custom panic recovery middleware
	s.router.Use(PanicRecovery())

	// Custom logger middleware
	s.router.Use(LoggerMiddleware())

	// Error handling middleware
	s.router.Use(ErrorHandler())
}
