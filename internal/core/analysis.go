// Package core provides the background analysis pool.
package core

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// analysisTask is one incident queued for correlation and summarization.
type analysisTask struct {
	incidentID uuid.UUID
	condition  string
}

// AnalyzeFunc performs the correlation and summarization of one incident.
type AnalyzeFunc func(ctx context.Context, incidentID uuid.UUID, condition string) error

// AnalysisPool runs incident analysis on a fixed set of workers behind a
// bounded queue. Enqueueing is non-blocking: when the queue is full the
// task is rejected and the incident simply stays unenriched, which keeps
// the ingestion and evaluation paths isolated from slow analysis.
type AnalysisPool struct {
	analyze AnalyzeFunc
	tasks   chan analysisTask

	workers int
	wg      sync.WaitGroup

	// mu orders enqueues against Stop: sends hold it shared, the close
	// holds it exclusively, so a late enqueue sees stopped instead of a
	// closed channel.
	mu      sync.RWMutex
	stopped bool

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewAnalysisPool creates a pool with the given worker count and queue
// capacity.
func NewAnalysisPool(analyze AnalyzeFunc, workers, queueSize int) *AnalysisPool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &AnalysisPool{
		analyze: analyze,
		tasks:   make(chan analysisTask, queueSize),
		workers: workers,
	}
}

// Start launches the workers. They run until Stop is called or the
// context is cancelled.
func (p *AnalysisPool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.run(ctx)
		}
		log.Info().Int("workers", p.workers).Msg("Analysis pool started")
	})
}

// Stop closes the queue and waits for in-flight analyses to finish.
// Enqueues arriving after Stop are rejected rather than panicking on the
// closed channel.
func (p *AnalysisPool) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		close(p.tasks)
		p.mu.Unlock()

		p.wg.Wait()
		log.Info().Msg("Analysis pool stopped")
	})
}

// EnqueueIncident schedules one incident for analysis. Returns false when
// the queue is full or the pool has been stopped.
func (p *AnalysisPool) EnqueueIncident(incidentID uuid.UUID, condition string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return false
	}
	select {
	case p.tasks <- analysisTask{incidentID: incidentID, condition: condition}:
		return true
	default:
		return false
	}
}

func (p *AnalysisPool) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			if err := p.analyze(ctx, task.incidentID, task.condition); err != nil {
				log.Error().
					Err(err).
					Str("incident_id", task.incidentID.String()).
					Msg("Incident analysis failed")
			}
		}
	}
}
