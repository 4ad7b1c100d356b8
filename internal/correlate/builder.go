// Package correlate assembles the context snapshot for a new incident and
// drives its summarization.
//
// The snapshot freezes what the server looked like around the trigger:
// the violated condition, recent metric samples, the latest process list
// and warning-or-worse logs. It is persisted on the incident before
// summarization so the evidence survives even when the summary provider
// is down.
package correlate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"nabz/internal/storage"
	"nabz/internal/summarize"
)

const (
	// window bounds how far back the snapshot looks from the trigger
	window = 5 * time.Minute

	// maxSamples and maxLogs cap the snapshot size
	maxSamples = 60
	maxLogs    = 50

	// fallbackSummary is attached when the provider fails or times out
	fallbackSummary = "Automatic analysis unavailable; review the correlated metrics and logs."
)

// Store is the persistence surface the builder needs.
type Store interface {
	GetIncident(ctx context.Context, id uuid.UUID) (*storage.Incident, error)
	RecentSamples(ctx context.Context, serverID uuid.UUID, before time.Time, limit int) ([]storage.MetricSample, error)
	RecentLogs(ctx context.Context, serverID uuid.UUID, before time.Time, levels []string, limit int) ([]storage.LogEntry, error)
	AttachCorrelation(ctx context.Context, id uuid.UUID, snapshot storage.JSON) error
	AttachSummary(ctx context.Context, id uuid.UUID, summary string) (bool, error)
}

// SampleSnapshot is one metric sample inside a snapshot, newest first.
type SampleSnapshot struct {
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// LogSnapshot is one log excerpt inside a snapshot.
type LogSnapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Source    string    `json:"source,omitempty"`
	Message   string    `json:"message"`
}

// Snapshot is the correlated context persisted on an incident.
type Snapshot struct {
	Condition   string           `json:"condition"`
	TriggeredAt time.Time        `json:"triggered_at"`
	Samples     []SampleSnapshot `json:"samples"`
	Processes   json.RawMessage  `json:"processes,omitempty"`
	Logs        []LogSnapshot    `json:"logs"`
}

// Builder correlates and summarizes incidents.
type Builder struct {
	store      Store
	summarizer summarize.Summarizer
	timeout    time.Duration
}

// NewBuilder creates a builder using the given summary provider.
func NewBuilder(store Store, summarizer summarize.Summarizer, timeout time.Duration) *Builder {
	return &Builder{store: store, summarizer: summarizer, timeout: timeout}
}

// Analyze builds and persists the snapshot for an incident, then attaches
// a summary and advances the incident to active. A summarizer failure
// attaches the fallback text instead; a concurrent resolution makes the
// summary attachment a silent no-op.
func (b *Builder) Analyze(ctx context.Context, incidentID uuid.UUID, condition string) error {
	inc, err := b.store.GetIncident(ctx, incidentID)
	if err != nil {
		return fmt.Errorf("failed to load incident for analysis: %w", err)
	}

	snapshot, err := b.build(ctx, inc, condition)
	if err != nil {
		return err
	}

	doc, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := b.store.AttachCorrelation(ctx, incidentID, storage.JSON(doc)); err != nil {
		return err
	}

	summary := b.summarize(ctx, snapshot)

	attached, err := b.store.AttachSummary(ctx, incidentID, summary)
	if err != nil {
		return err
	}
	if !attached {
		log.Debug().
			Str("incident_id", incidentID.String()).
			Msg("Summary discarded, incident no longer investigating")
	}
	return nil
}

// build gathers the evidence around the trigger instant.
func (b *Builder) build(ctx context.Context, inc *storage.Incident, condition string) (*Snapshot, error) {
	from := inc.TriggeredAt.Add(-window)

	samples, err := b.store.RecentSamples(ctx, inc.ServerID, inc.TriggeredAt, maxSamples)
	if err != nil {
		return nil, fmt.Errorf("failed to load samples for snapshot: %w", err)
	}

	snapshot := &Snapshot{
		Condition:   condition,
		TriggeredAt: inc.TriggeredAt,
		Samples:     make([]SampleSnapshot, 0, len(samples)),
		Logs:        make([]LogSnapshot, 0),
	}

	for _, s := range samples {
		if s.Timestamp.Before(from) {
			continue
		}
		snapshot.Samples = append(snapshot.Samples, SampleSnapshot{
			Timestamp: s.Timestamp,
			Payload:   json.RawMessage(s.Payload),
		})
		if snapshot.Processes == nil {
			snapshot.Processes = extractProcesses(s.Meta)
		}
	}

	logs, err := b.store.RecentLogs(ctx, inc.ServerID, inc.TriggeredAt,
		[]string{storage.LogLevelWarning, storage.LogLevelError}, maxLogs)
	if err != nil {
		return nil, fmt.Errorf("failed to load logs for snapshot: %w", err)
	}
	for _, l := range logs {
		if l.Timestamp.Before(from) {
			continue
		}
		snapshot.Logs = append(snapshot.Logs, LogSnapshot{
			Timestamp: l.Timestamp,
			Level:     l.Level,
			Source:    l.Source,
			Message:   l.Message,
		})
	}
	return snapshot, nil
}

// summarize asks the provider for an analysis, bounded by the builder's
// timeout, and falls back to canned text on any failure.
func (b *Builder) summarize(ctx context.Context, snapshot *Snapshot) string {
	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	summary, err := b.summarizer.Summarize(callCtx, formatContext(snapshot))
	if err != nil {
		log.Warn().
			Err(err).
			Str("provider", b.summarizer.Name()).
			Msg("Summarization failed, using fallback")
		return fallbackSummary
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return fallbackSummary
	}
	return summary
}

// extractProcesses pulls the process list out of a sample's metadata.
func extractProcesses(meta storage.JSON) json.RawMessage {
	if len(meta) == 0 {
		return nil
	}
	var doc struct {
		Processes json.RawMessage `json:"processes"`
	}
	if err := json.Unmarshal(meta, &doc); err != nil {
		return nil
	}
	return doc.Processes
}

// formatContext renders the snapshot as the summarizer prompt.
func formatContext(snapshot *Snapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Alert condition: %s\nTriggered at: %s\n",
		snapshot.Condition, snapshot.TriggeredAt.UTC().Format(time.RFC3339))

	sb.WriteString("\nRecent metric samples (newest first):\n")
	for _, s := range snapshot.Samples {
		fmt.Fprintf(&sb, "  %s %s\n", s.Timestamp.UTC().Format(time.RFC3339), string(s.Payload))
	}

	if len(snapshot.Processes) > 0 {
		fmt.Fprintf(&sb, "\nRunning processes: %s\n", string(snapshot.Processes))
	}

	if len(snapshot.Logs) > 0 {
		sb.WriteString("\nRecent warning/error logs:\n")
		for _, l := range snapshot.Logs {
			fmt.Fprintf(&sb, "  [%s] %s: %s\n", l.Level, l.Timestamp.UTC().Format(time.RFC3339), l.Message)
		}
	}
	return sb.String()
}
