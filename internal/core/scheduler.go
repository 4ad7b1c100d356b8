// Package core provides scheduling functionality for the monitoring engine.
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"nabz/internal/config"

	"github.com/rs/zerolog/log"
)

// ScheduledJob represents a job executed at a fixed interval.
type ScheduledJob struct {
	// ID is a unique identifier for the job
	ID string

	// Interval is how often the job should run
	Interval time.Duration

	// Task is the function to execute
	Task func(context.Context) error

	// Internal fields
	ticker  *time.Ticker
	cancel  context.CancelFunc
	running bool
}

// Scheduler manages the periodic engine jobs (rule sweeps, baseline
// recalculation) over a bounded worker pool. A tick that finds no free
// worker is skipped rather than queued, so a slow run never piles up
// behind itself.
type Scheduler struct {
	config config.SchedulerConfig

	jobs   map[string]*ScheduledJob
	jobsMu sync.RWMutex

	// workers holds one token per allowed concurrent execution
	workers chan struct{}

	running bool
	mu      sync.RWMutex
	wg      sync.WaitGroup

	// baseCtx is the Start context; job contexts derive from it so
	// cancelling the engine stops every job
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a new scheduler with the given configuration.
func NewScheduler(cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		config:  cfg,
		jobs:    make(map[string]*ScheduledJob),
		workers: make(chan struct{}, cfg.WorkerCount),
	}
}

// Start initializes the worker pool and accepts jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.baseCtx = runCtx
	s.cancel = cancel

	for i := 0; i < s.config.WorkerCount; i++ {
		s.workers <- struct{}{}
	}

	s.running = true
	log.Info().Int("worker_count", s.config.WorkerCount).Msg("Scheduler started")

	return nil
}

// Stop stops the scheduler and all running jobs gracefully.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	log.Info().Msg("Stopping scheduler")

	if s.cancel != nil {
		s.cancel()
	}

	s.jobsMu.Lock()
	for _, job := range s.jobs {
		s.stopJobUnsafe(job)
	}
	s.jobsMu.Unlock()

	s.wg.Wait()

	s.running = false
	log.Info().Msg("Scheduler stopped")
}

// AddJob adds a new job to the scheduler and starts it immediately.
func (s *Scheduler) AddJob(job *ScheduledJob) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.running {
		return fmt.Errorf("scheduler is not running")
	}

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job with ID %s already exists", job.ID)
	}

	if err := s.startJobUnsafe(job); err != nil {
		return fmt.Errorf("failed to start job %s: %w", job.ID, err)
	}

	s.jobs[job.ID] = job
	log.Debug().Str("job_id", job.ID).Dur("interval", job.Interval).Msg("Job added")

	return nil
}

// RemoveJob removes a job from the scheduler and stops it.
func (s *Scheduler) RemoveJob(jobID string) error {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return fmt.Errorf("job with ID %s not found", jobID)
	}

	s.stopJobUnsafe(job)
	delete(s.jobs, jobID)

	log.Debug().Str("job_id", jobID).Msg("Job removed")
	return nil
}

// GetJobCount returns the number of currently scheduled jobs.
func (s *Scheduler) GetJobCount() int {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()
	return len(s.jobs)
}

// IsRunning returns whether the scheduler is currently running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// startJobUnsafe starts a job; callers hold the appropriate locks.
func (s *Scheduler) startJobUnsafe(job *ScheduledJob) error {
	if job.running {
		return fmt.Errorf("job is already running")
	}

	jobCtx, cancel := context.WithCancel(s.baseCtx)
	job.cancel = cancel
	job.ticker = time.NewTicker(job.Interval)

	s.wg.Add(1)
	go s.runJob(jobCtx, job)

	job.running = true
	return nil
}

// stopJobUnsafe stops a job; callers hold the appropriate locks.
func (s *Scheduler) stopJobUnsafe(job *ScheduledJob) {
	if !job.running {
		return
	}
	if job.cancel != nil {
		job.cancel()
	}
	if job.ticker != nil {
		job.ticker.Stop()
	}
	job.running = false
}

// runJob drives one job: an immediate execution, then one per tick.
func (s *Scheduler) runJob(ctx context.Context, job *ScheduledJob) {
	defer s.wg.Done()
	defer func() {
		if job.ticker != nil {
			job.ticker.Stop()
		}
	}()

	log.Debug().Str("job_id", job.ID).Msg("Job started")

	s.executeJobTask(ctx, job)

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("job_id", job.ID).Msg("Job stopped")
			return
		case <-job.ticker.C:
			s.executeJobTask(ctx, job)
		}
	}
}

// executeJobTask runs one execution if a worker token is free, otherwise
// skips the tick.
func (s *Scheduler) executeJobTask(ctx context.Context, job *ScheduledJob) {
	select {
	case <-s.workers:
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.workers <- struct{}{}
			}()
			s.executeWithRetry(ctx, job)
		}()
	default:
		log.Warn().Str("job_id", job.ID).Msg("No workers available, skipping job execution")
	}
}

// executeWithRetry executes a job task with linear backoff between retries.
func (s *Scheduler) executeWithRetry(ctx context.Context, job *ScheduledJob) {
	maxRetries := s.config.MaxRetries

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return
		}

		err := job.Task(ctx)
		if err == nil {
			if attempt > 0 {
				log.Info().Str("job_id", job.ID).Int("attempt", attempt+1).Msg("Job succeeded after retry")
			}
			return
		}

		if attempt < maxRetries {
			log.Warn().Str("job_id", job.ID).Int("attempt", attempt+1).Err(err).Msg("Job failed, retrying")

			backoff := time.Duration(attempt+1) * time.Second
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
		} else {
			log.Error().Str("job_id", job.ID).Int("attempts", attempt+1).Err(err).Msg("Job failed after all retries")
		}
	}
}
