// Package rules evaluates alert rules against stored metric samples.
//
// Two rule kinds exist. Threshold rules fire when every sample in the
// rule's trailing window violates the comparison; a single healthy sample
// (or a sample missing the metric) keeps the rule quiet, so transient
// spikes and incomplete payloads never fire. Anomaly rules fire when the
// latest value deviates from the learned per-hour baseline by more than
// three standard deviations, and recover once it is back within that band.
package rules

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"nabz/internal/metrics"
	"nabz/internal/storage"
)

const (
	// sigmaMultiplier is the anomaly sensitivity in standard deviations
	sigmaMultiplier = 3.0

	// anomalyCooldown suppresses repeat anomaly firings for a rule
	anomalyCooldown = 5 * time.Minute

	// maxWindowSamples caps how many samples one evaluation reads
	maxWindowSamples = 10000
)

// Store is the persistence surface the evaluator needs.
type Store interface {
	RecentSamples(ctx context.Context, serverID uuid.UUID, before time.Time, limit int) ([]storage.MetricSample, error)
	GetBaseline(ctx context.Context, serverID uuid.UUID, metric string, hour int) (*storage.MetricBaseline, error)
	LatestIncident(ctx context.Context, ruleID int64) (*storage.Incident, error)
}

// Result is the outcome of evaluating one rule at one instant.
type Result struct {
	Rule     storage.AlertRule
	Violated bool

	// Value is the observed metric value (latest sample) when Violated
	Value float64

	// Condition describes the violated condition in human terms; it ends
	// up in the correlation snapshot and notifications
	Condition string
}

// Evaluator checks rules against the sample history.
type Evaluator struct {
	store Store

	mu        sync.Mutex
	lastFired map[int64]time.Time

	now func() time.Time
}

// NewEvaluator creates an evaluator backed by the given store.
func NewEvaluator(store Store) *Evaluator {
	return &Evaluator{
		store:     store,
		lastFired: make(map[int64]time.Time),
		now:       time.Now,
	}
}

// Evaluate checks one rule at the given instant.
func (e *Evaluator) Evaluate(ctx context.Context, rule storage.AlertRule, at time.Time) (Result, error) {
	switch rule.Kind {
	case storage.RuleKindThreshold:
		return e.evaluateThreshold(ctx, rule, at)
	case storage.RuleKindAnomaly:
		return e.evaluateAnomaly(ctx, rule, at)
	default:
		return Result{Rule: rule}, fmt.Errorf("unsupported rule kind: %s", rule.Kind)
	}
}

// evaluateThreshold requires every sample in the trailing window to
// violate the comparison. An empty window is not a violation. The window
// is read newest-first so that when it holds more samples than the cap,
// the oldest are the ones cut, never the latest.
func (e *Evaluator) evaluateThreshold(ctx context.Context, rule storage.AlertRule, at time.Time) (Result, error) {
	result := Result{Rule: rule}

	from := at.Add(-time.Duration(rule.DurationMinutes) * time.Minute)
	samples, err := e.store.RecentSamples(ctx, rule.ServerID, at, maxWindowSamples)
	if err != nil {
		return result, err
	}

	var latest float64
	inWindow := 0
	for i, sample := range samples {
		if sample.Timestamp.Before(from) {
			break
		}
		payload, err := metrics.Decode(sample.Payload)
		if err != nil {
			return result, nil
		}
		value, ok := metrics.Extract(payload, rule.Metric)
		if !ok {
			// Sample has no usable value for this metric: fail open
			return result, nil
		}
		if !compare(value, rule.Operator, rule.Threshold) {
			return result, nil
		}
		if i == 0 {
			latest = value
		}
		inWindow++
	}
	if inWindow == 0 {
		return result, nil
	}

	result.Violated = true
	result.Value = latest
	result.Condition = fmt.Sprintf("%s %s %g for %dm (observed %g)",
		rule.Metric, rule.Operator, rule.Threshold, rule.DurationMinutes, latest)
	return result, nil
}

// evaluateAnomaly compares the latest value against the per-hour baseline.
// Rules with no baseline row, or a zero-stddev baseline (a perfectly flat
// profile), are skipped rather than fired.
func (e *Evaluator) evaluateAnomaly(ctx context.Context, rule storage.AlertRule, at time.Time) (Result, error) {
	result := Result{Rule: rule}

	suppressed, err := e.inCooldown(ctx, rule.ID, at)
	if err != nil {
		return result, err
	}
	if suppressed {
		return result, nil
	}

	value, ok, err := e.latestValue(ctx, rule, at)
	if err != nil || !ok {
		return result, err
	}

	bl, ok, err := e.baselineFor(ctx, rule, at)
	if err != nil || !ok {
		return result, err
	}

	if math.Abs(value-bl.Mean) <= sigmaMultiplier*bl.StdDev {
		return result, nil
	}

	e.markFired(rule.ID, at)
	result.Violated = true
	result.Value = value
	result.Condition = fmt.Sprintf("%s anomaly: observed %g deviates from hourly baseline (mean %g, stddev %g)",
		rule.Metric, value, bl.Mean, bl.StdDev)
	return result, nil
}

// Healthy reports whether the latest sample no longer violates the rule,
// used to decide auto-resolution of an open incident. Threshold rules are
// healthy when the latest value satisfies the comparison; anomaly rules
// when the latest value is back within three standard deviations of the
// hourly baseline. Missing data or a missing baseline keeps the incident
// open.
func (e *Evaluator) Healthy(ctx context.Context, rule storage.AlertRule, at time.Time) (bool, error) {
	value, ok, err := e.latestValue(ctx, rule, at)
	if err != nil || !ok {
		return false, err
	}

	switch rule.Kind {
	case storage.RuleKindThreshold:
		return !compare(value, rule.Operator, rule.Threshold), nil
	case storage.RuleKindAnomaly:
		bl, ok, err := e.baselineFor(ctx, rule, at)
		if err != nil || !ok {
			return false, err
		}
		return math.Abs(value-bl.Mean) <= sigmaMultiplier*bl.StdDev, nil
	default:
		return false, nil
	}
}

// latestValue extracts the rule's metric from the newest sample at or
// before the given instant. ok is false when there is no sample or the
// sample carries no usable value.
func (e *Evaluator) latestValue(ctx context.Context, rule storage.AlertRule, at time.Time) (float64, bool, error) {
	samples, err := e.store.RecentSamples(ctx, rule.ServerID, at, 1)
	if err != nil {
		return 0, false, err
	}
	if len(samples) == 0 {
		return 0, false, nil
	}
	payload, err := metrics.Decode(samples[0].Payload)
	if err != nil {
		return 0, false, nil
	}
	value, ok := metrics.Extract(payload, rule.Metric)
	return value, ok, nil
}

// baselineFor loads the rule's hourly baseline. ok is false when no row
// exists or the profile is flat (zero stddev).
func (e *Evaluator) baselineFor(ctx context.Context, rule storage.AlertRule, at time.Time) (*storage.MetricBaseline, bool, error) {
	name := metrics.MetricName(rule.Metric)
	bl, err := e.store.GetBaseline(ctx, rule.ServerID, name, at.UTC().Hour())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if bl.StdDev == 0 {
		return nil, false, nil
	}
	return bl, true, nil
}

// inCooldown reports whether the rule fired within the cooldown window.
// The in-memory record is the fast path; the rule's most recent incident
// backs it so the cooldown survives process restarts.
func (e *Evaluator) inCooldown(ctx context.Context, ruleID int64, at time.Time) (bool, error) {
	e.mu.Lock()
	last, ok := e.lastFired[ruleID]
	e.mu.Unlock()
	if ok && at.Sub(last) < anomalyCooldown {
		return true, nil
	}

	inc, err := e.store.LatestIncident(ctx, ruleID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return at.Sub(inc.TriggeredAt) < anomalyCooldown, nil
}

func (e *Evaluator) markFired(ruleID int64, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastFired[ruleID] = at
}

// compare applies a threshold operator.
func compare(value float64, op string, threshold float64) bool {
	switch op {
	case storage.RuleOperatorAbove:
		return value > threshold
	case storage.RuleOperatorBelow:
		return value < threshold
	default:
		return false
	}
}
