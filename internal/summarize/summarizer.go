// Package summarize turns incident correlation snapshots into short
// root-cause summaries using a completion model.
//
// The engine treats summarization as best-effort enrichment: a provider
// failure or timeout produces a fallback summary, never an incident
// failure.
package summarize

import (
	"context"

	"nabz/internal/config"
)

// Summarizer produces a summary for an incident context document.
type Summarizer interface {
	// Name returns the provider identifier.
	Name() string

	// Summarize returns a short analysis of the incident context.
	Summarize(ctx context.Context, incidentContext string) (string, error)

	// IsAvailable reports whether the provider is usable.
	IsAvailable() bool
}

// NewFromConfig builds the configured summarizer. When summarization is
// disabled a mock provider is returned so the analysis path stays uniform.
func NewFromConfig(cfg config.SummarizerConfig) Summarizer {
	if !cfg.Enabled {
		return NewMockSummarizer()
	}
	return NewOpenAISummarizer(cfg)
}
