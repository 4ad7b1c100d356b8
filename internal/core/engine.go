// Package core provides the core monitoring engine for the Nabz system.
//
// The core engine is responsible for:
//   - Sweeping alert rules against incoming metrics
//   - Recalculating statistical baselines
//   - Driving the incident lifecycle
//   - Coordinating notification and analysis side effects
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"nabz/internal/baseline"
	"nabz/internal/config"
	"nabz/internal/correlate"
	"nabz/internal/fanout"
	"nabz/internal/incident"
	"nabz/internal/notify"
	"nabz/internal/rules"
	"nabz/internal/storage"
	"nabz/internal/summarize"
)

// evaluationInterval is how often the rule sweep runs.
const evaluationInterval = 30 * time.Second

// Engine orchestrates the monitoring pipeline: the scheduler drives the
// periodic rule sweep and baseline recalculation, violations flow into the
// incident manager, and new incidents are fanned out, notified and queued
// for analysis.
type Engine struct {
	config    *config.Config
	repo      *storage.Repository
	scheduler *Scheduler
	evaluator *rules.Evaluator
	incidents *incident.Manager
	analysis  *AnalysisPool
	baselines *baseline.Calculator
	hub       *fanout.Hub

	// Internal state
	running bool
	mu      sync.RWMutex
	cancel  context.CancelFunc
}

// NewEngine creates a monitoring engine wired to the given storage.
func NewEngine(cfg *config.Config, store *storage.Storage) *Engine {
	repo := storage.NewRepository(store)
	hub := fanout.NewHub(cfg.Fanout.SubscriberBuffer)

	notifier := notify.NewManager(cfg.Notify)
	incidents := incident.NewManager(repo, notifier, hub, nil)

	summarizer := summarize.NewFromConfig(cfg.Analysis.Summarizer)
	builder := correlate.NewBuilder(repo, summarizer, cfg.Analysis.Summarizer.Timeout)
	analysis := NewAnalysisPool(builder.Analyze, cfg.Analysis.Workers, cfg.Analysis.QueueSize)
	incidents.SetAnalyzer(analysis)

	return &Engine{
		config:    cfg,
		repo:      repo,
		scheduler: NewScheduler(cfg.Scheduler),
		evaluator: rules.NewEvaluator(repo),
		incidents: incidents,
		analysis:  analysis,
		baselines: baseline.NewCalculator(repo, cfg.Analysis.Baseline.LookbackDays),
		hub:       hub,
	}
}

// Start starts the engine: the analysis pool, the scheduler and the
// periodic jobs.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("engine is already running")
	}

	engineCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	log.Info().Msg("Starting monitoring engine")

	e.analysis.Start(engineCtx)

	if err := e.scheduler.Start(engineCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	if err := e.scheduler.AddJob(&ScheduledJob{
		ID:       "rule-sweep",
		Interval: evaluationInterval,
		Task:     e.sweepRules,
	}); err != nil {
		cancel()
		return fmt.Errorf("failed to schedule rule sweep: %w", err)
	}

	if err := e.scheduler.AddJob(&ScheduledJob{
		ID:       "baseline-recalc",
		Interval: e.config.Analysis.Baseline.Interval,
		Task:     e.baselines.Run,
	}); err != nil {
		cancel()
		return fmt.Errorf("failed to schedule baseline recalculation: %w", err)
	}

	e.running = true
	log.Info().Msg("Monitoring engine started successfully")

	return nil
}

// IsRunning returns whether the engine is currently running.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Stop stops the engine and all its components gracefully.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}

	log.Info().Msg("Stopping monitoring engine")

	if e.cancel != nil {
		e.cancel()
	}

	e.scheduler.Stop()
	e.analysis.Stop()

	e.running = false
	log.Info().Msg("Monitoring engine stopped")
}

// Hub returns the fan-out hub for live subscriptions.
func (e *Engine) Hub() *fanout.Hub {
	return e.hub
}

// Repo returns the engine's repository, shared with the API layer.
func (e *Engine) Repo() *storage.Repository {
	return e.repo
}

// Incidents returns the incident manager, used by the API's manual
// resolution endpoint.
func (e *Engine) Incidents() *incident.Manager {
	return e.incidents
}

// TriggerEvaluation runs an evaluation pass for one server in the
// background, off the ingestion path. Overlap with the scheduled sweep is
// safe: incident transitions are guarded by conditional writes.
func (e *Engine) TriggerEvaluation(serverID uuid.UUID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), evaluationInterval)
		defer cancel()

		if err := e.sweepServer(ctx, serverID, time.Now().UTC()); err != nil {
			log.Error().
				Err(err).
				Str("server_id", serverID.String()).
				Msg("Ingestion-triggered evaluation failed")
		}
	}()
}

// sweepRules evaluates every enabled rule of every server once. A failure
// on one server is logged and does not stop the sweep.
func (e *Engine) sweepRules(ctx context.Context) error {
	servers, err := e.repo.ListServers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list servers for sweep: %w", err)
	}

	now := time.Now().UTC()
	var firstErr error
	for _, server := range servers {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := e.sweepServer(ctx, server.ID, now); err != nil {
			log.Error().
				Err(err).
				Str("server_id", server.ID.String()).
				Msg("Rule sweep failed for server")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// sweepServer evaluates the enabled rules of one server, opening incidents
// for violations and resolving threshold incidents whose latest value is
// healthy again.
func (e *Engine) sweepServer(ctx context.Context, serverID uuid.UUID, now time.Time) error {
	enabled, err := e.repo.EnabledRules(ctx, serverID)
	if err != nil {
		return err
	}

	for _, rule := range enabled {
		result, err := e.evaluator.Evaluate(ctx, rule, now)
		if err != nil {
			log.Error().
				Err(err).
				Int64("rule_id", rule.ID).
				Str("rule_name", rule.Name).
				Msg("Rule evaluation failed")
			continue
		}

		if result.Violated {
			if _, err := e.incidents.HandleViolation(ctx, rule, result.Condition, now); err != nil {
				log.Error().
					Err(err).
					Int64("rule_id", rule.ID).
					Msg("Failed to open incident")
			}
			continue
		}

		healthy, err := e.evaluator.Healthy(ctx, rule, now)
		if err != nil {
			log.Error().
				Err(err).
				Int64("rule_id", rule.ID).
				Msg("Failed to check rule health")
			continue
		}
		if healthy {
			if err := e.incidents.HandleRecovery(ctx, rule, now); err != nil {
				log.Error().
					Err(err).
					Int64("rule_id", rule.ID).
					Msg("Failed to resolve incident")
			}
		}
	}
	return nil
}
