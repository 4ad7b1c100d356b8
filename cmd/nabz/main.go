// Package main provides the entry point for the Nabz monitoring system.
//
// Nabz (نبض, "pulse") is a self-hosted server monitoring backend: agents
// push metrics and logs, alert rules watch them, and incidents are
// correlated, summarized and delivered to owners.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"nabz/internal/config"
	"nabz/internal/server"
)

// Version information set during build time
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// main is the entry point of the Nabz monitoring system.
//
// The startup sequence is as follows:
//  1. Load configuration
//  2. Initialize logger
//  3. Setup graceful shutdown handling
//  4. Start the main server
func main() {
	cfg := loadConfig()
	setupLogger(cfg.Log)

	log.Info().
		Str("version", Version).
		Str("commit", GitCommit).
		Str("build_time", BuildTime).
		Msg("Starting Nabz")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.New(cfg).Start(ctx); err != nil {
		log.Fatal().
			Err(err).
			Msg("Server terminated with error")
	}
}

// loadConfig loads application configuration and terminates the program
// immediately if configuration cannot be loaded.
func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().
			Err(err).
			Msg("Failed to load configuration")
	}
	return cfg
}

// setupLogger applies the configured level and output format.
func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
