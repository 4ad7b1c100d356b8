package rules

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"nabz/internal/storage"
)

type baselineKey struct {
	metric string
	hour   int
}

// fakeStore is an in-memory Store for evaluator tests.
type fakeStore struct {
	samples   []storage.MetricSample
	baselines map[baselineKey]*storage.MetricBaseline
	incidents map[int64]*storage.Incident
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		baselines: make(map[baselineKey]*storage.MetricBaseline),
		incidents: make(map[int64]*storage.Incident),
	}
}

func (f *fakeStore) RecentSamples(ctx context.Context, serverID uuid.UUID, before time.Time, limit int) ([]storage.MetricSample, error) {
	var out []storage.MetricSample
	for i := len(f.samples) - 1; i >= 0 && len(out) < limit; i-- {
		s := f.samples[i]
		if s.ServerID == serverID && !s.Timestamp.After(before) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) GetBaseline(ctx context.Context, serverID uuid.UUID, metric string, hour int) (*storage.MetricBaseline, error) {
	bl, ok := f.baselines[baselineKey{metric, hour}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return bl, nil
}

func (f *fakeStore) LatestIncident(ctx context.Context, ruleID int64) (*storage.Incident, error) {
	inc, ok := f.incidents[ruleID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return inc, nil
}

func (f *fakeStore) addCPUSample(serverID uuid.UUID, ts time.Time, cpu float64) {
	payload := fmt.Sprintf(`[{"name": "cpu.percent", "value": %v}]`, cpu)
	f.samples = append(f.samples, storage.MetricSample{
		ID: uuid.New(), ServerID: serverID, Timestamp: ts,
		Payload: storage.JSON(payload),
	})
}

func (f *fakeStore) addMemSample(serverID uuid.UUID, ts time.Time, mem float64) {
	payload := fmt.Sprintf(`[{"name": "mem.percent", "value": %v}]`, mem)
	f.samples = append(f.samples, storage.MetricSample{
		ID: uuid.New(), ServerID: serverID, Timestamp: ts,
		Payload: storage.JSON(payload),
	})
}

func thresholdRule(serverID uuid.UUID) storage.AlertRule {
	return storage.AlertRule{
		ID:              1,
		ServerID:        serverID,
		Name:            "high cpu",
		Metric:          storage.RuleMetricCPU,
		Kind:            storage.RuleKindThreshold,
		Operator:        storage.RuleOperatorAbove,
		Threshold:       90,
		DurationMinutes: 5,
		Enabled:         true,
	}
}

func TestEvaluateThreshold(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	serverID := uuid.New()

	t.Run("fires when all window samples violate", func(t *testing.T) {
		store := newFakeStore()
		for i := 0; i < 5; i++ {
			store.addCPUSample(serverID, now.Add(-time.Duration(4-i)*time.Minute), 95)
		}

		res, err := NewEvaluator(store).Evaluate(ctx, thresholdRule(serverID), now)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if !res.Violated {
			t.Fatal("expected violation when all samples exceed threshold")
		}
		if res.Value != 95 {
			t.Errorf("expected observed value 95, got %v", res.Value)
		}
		if res.Condition == "" {
			t.Error("expected a condition description")
		}
	})

	t.Run("one healthy sample keeps the rule quiet", func(t *testing.T) {
		store := newFakeStore()
		store.addCPUSample(serverID, now.Add(-4*time.Minute), 95)
		store.addCPUSample(serverID, now.Add(-2*time.Minute), 50)
		store.addCPUSample(serverID, now.Add(-1*time.Minute), 95)

		res, err := NewEvaluator(store).Evaluate(ctx, thresholdRule(serverID), now)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if res.Violated {
			t.Error("expected no violation with a healthy sample in the window")
		}
	})

	t.Run("empty window fails open", func(t *testing.T) {
		res, err := NewEvaluator(newFakeStore()).Evaluate(ctx, thresholdRule(serverID), now)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if res.Violated {
			t.Error("expected no violation for empty window")
		}
	})

	t.Run("sample missing the metric fails open", func(t *testing.T) {
		store := newFakeStore()
		store.addCPUSample(serverID, now.Add(-3*time.Minute), 95)
		store.addMemSample(serverID, now.Add(-2*time.Minute), 95) // no cpu field

		res, err := NewEvaluator(store).Evaluate(ctx, thresholdRule(serverID), now)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if res.Violated {
			t.Error("expected no violation when a sample lacks the metric")
		}
	})

	t.Run("overfull window keeps the newest samples", func(t *testing.T) {
		store := newFakeStore()
		rule := thresholdRule(serverID)
		rule.DurationMinutes = 300

		// More violating samples than one evaluation reads, then a
		// healthy latest one. The healthy sample must survive the cap.
		for i := 0; i < maxWindowSamples; i++ {
			store.addCPUSample(serverID, now.Add(-time.Duration(maxWindowSamples-i)*time.Second), 95)
		}
		store.addCPUSample(serverID, now, 40)

		res, err := NewEvaluator(store).Evaluate(ctx, rule, now)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if res.Violated {
			t.Error("expected the healthy latest sample to keep the rule quiet")
		}
	})

	t.Run("below operator", func(t *testing.T) {
		store := newFakeStore()
		store.addCPUSample(serverID, now.Add(-time.Minute), 2)

		rule := thresholdRule(serverID)
		rule.Operator = storage.RuleOperatorBelow
		rule.Threshold = 5

		res, err := NewEvaluator(store).Evaluate(ctx, rule, now)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if !res.Violated {
			t.Error("expected violation for value below threshold")
		}
	})
}

func anomalyRule(serverID uuid.UUID) storage.AlertRule {
	return storage.AlertRule{
		ID:       2,
		ServerID: serverID,
		Name:     "cpu anomaly",
		Metric:   storage.RuleMetricCPU,
		Kind:     storage.RuleKindAnomaly,
		Enabled:  true,
	}
}

func TestEvaluateAnomaly(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	serverID := uuid.New()

	setBaseline := func(store *fakeStore, mean, stddev float64) {
		store.baselines[baselineKey{"cpu.percent", now.UTC().Hour()}] = &storage.MetricBaseline{
			ServerID: serverID, MetricName: "cpu.percent",
			HourOfDay: now.UTC().Hour(), Mean: mean, StdDev: stddev,
		}
	}

	t.Run("fires beyond three sigma", func(t *testing.T) {
		store := newFakeStore()
		setBaseline(store, 50, 5)
		store.addCPUSample(serverID, now.Add(-time.Minute), 70) // |70-50| > 15

		res, err := NewEvaluator(store).Evaluate(ctx, anomalyRule(serverID), now)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if !res.Violated {
			t.Fatal("expected anomaly at 4 sigma deviation")
		}
		if res.Value != 70 {
			t.Errorf("expected observed value 70, got %v", res.Value)
		}
	})

	t.Run("stays quiet within three sigma", func(t *testing.T) {
		store := newFakeStore()
		setBaseline(store, 50, 5)
		store.addCPUSample(serverID, now.Add(-time.Minute), 60) // |60-50| <= 15

		res, err := NewEvaluator(store).Evaluate(ctx, anomalyRule(serverID), now)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if res.Violated {
			t.Error("expected no anomaly at 2 sigma deviation")
		}
	})

	t.Run("missing baseline skips", func(t *testing.T) {
		store := newFakeStore()
		store.addCPUSample(serverID, now.Add(-time.Minute), 99)

		res, err := NewEvaluator(store).Evaluate(ctx, anomalyRule(serverID), now)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if res.Violated {
			t.Error("expected no anomaly without a baseline")
		}
	})

	t.Run("zero stddev skips", func(t *testing.T) {
		store := newFakeStore()
		setBaseline(store, 50, 0)
		store.addCPUSample(serverID, now.Add(-time.Minute), 51)

		res, err := NewEvaluator(store).Evaluate(ctx, anomalyRule(serverID), now)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if res.Violated {
			t.Error("expected no anomaly against a flat baseline")
		}
	})

	t.Run("cooldown suppresses repeat firing", func(t *testing.T) {
		store := newFakeStore()
		setBaseline(store, 50, 5)
		store.addCPUSample(serverID, now.Add(-time.Minute), 70)

		ev := NewEvaluator(store)
		rule := anomalyRule(serverID)

		first, err := ev.Evaluate(ctx, rule, now)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if !first.Violated {
			t.Fatal("expected first evaluation to fire")
		}

		again, err := ev.Evaluate(ctx, rule, now.Add(2*time.Minute))
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if again.Violated {
			t.Error("expected cooldown to suppress firing 2 minutes later")
		}

		later, err := ev.Evaluate(ctx, rule, now.Add(6*time.Minute))
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if !later.Violated {
			t.Error("expected firing after cooldown expired")
		}
	})

	t.Run("cooldown survives restart via the rule's latest incident", func(t *testing.T) {
		store := newFakeStore()
		setBaseline(store, 50, 5)
		store.addCPUSample(serverID, now.Add(-time.Minute), 70)

		rule := anomalyRule(serverID)
		store.incidents[rule.ID] = &storage.Incident{
			ID: uuid.New(), ServerID: serverID, RuleID: rule.ID,
			Status:      storage.IncidentStatusResolved,
			TriggeredAt: now.Add(-2 * time.Minute),
		}

		// A fresh evaluator has no in-memory firing record
		res, err := NewEvaluator(store).Evaluate(ctx, rule, now)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if res.Violated {
			t.Error("expected recent incident to suppress firing after restart")
		}

		store.incidents[rule.ID].TriggeredAt = now.Add(-10 * time.Minute)
		res, err = NewEvaluator(store).Evaluate(ctx, rule, now)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if !res.Violated {
			t.Error("expected firing once the latest incident is outside the cooldown")
		}
	})
}

func TestHealthy(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	serverID := uuid.New()

	t.Run("latest sample under threshold is healthy", func(t *testing.T) {
		store := newFakeStore()
		store.addCPUSample(serverID, now.Add(-2*time.Minute), 95)
		store.addCPUSample(serverID, now.Add(-time.Minute), 40)

		healthy, err := NewEvaluator(store).Healthy(ctx, thresholdRule(serverID), now)
		if err != nil {
			t.Fatalf("Healthy failed: %v", err)
		}
		if !healthy {
			t.Error("expected healthy when latest sample satisfies the rule")
		}
	})

	t.Run("no samples is not healthy", func(t *testing.T) {
		healthy, err := NewEvaluator(newFakeStore()).Healthy(ctx, thresholdRule(serverID), now)
		if err != nil {
			t.Fatalf("Healthy failed: %v", err)
		}
		if healthy {
			t.Error("expected not healthy with no samples")
		}
	})

	setBaseline := func(store *fakeStore, mean, stddev float64) {
		store.baselines[baselineKey{"cpu.percent", now.UTC().Hour()}] = &storage.MetricBaseline{
			ServerID: serverID, MetricName: "cpu.percent",
			HourOfDay: now.UTC().Hour(), Mean: mean, StdDev: stddev,
		}
	}

	t.Run("anomaly back within three sigma is healthy", func(t *testing.T) {
		store := newFakeStore()
		setBaseline(store, 50, 5)
		store.addCPUSample(serverID, now.Add(-time.Minute), 50)

		healthy, err := NewEvaluator(store).Healthy(ctx, anomalyRule(serverID), now)
		if err != nil {
			t.Fatalf("Healthy failed: %v", err)
		}
		if !healthy {
			t.Error("expected healthy when the value is back at the baseline mean")
		}
	})

	t.Run("anomaly still deviant is not healthy", func(t *testing.T) {
		store := newFakeStore()
		setBaseline(store, 50, 5)
		store.addCPUSample(serverID, now.Add(-time.Minute), 70)

		healthy, err := NewEvaluator(store).Healthy(ctx, anomalyRule(serverID), now)
		if err != nil {
			t.Fatalf("Healthy failed: %v", err)
		}
		if healthy {
			t.Error("expected not healthy at 4 sigma deviation")
		}
	})

	t.Run("anomaly without baseline stays open", func(t *testing.T) {
		store := newFakeStore()
		store.addCPUSample(serverID, now.Add(-time.Minute), 50)

		healthy, err := NewEvaluator(store).Healthy(ctx, anomalyRule(serverID), now)
		if err != nil {
			t.Fatalf("Healthy failed: %v", err)
		}
		if healthy {
			t.Error("expected not healthy without a baseline to judge against")
		}
	})

	t.Run("flat baseline stays open", func(t *testing.T) {
		store := newFakeStore()
		setBaseline(store, 50, 0)
		store.addCPUSample(serverID, now.Add(-time.Minute), 50)

		healthy, err := NewEvaluator(store).Healthy(ctx, anomalyRule(serverID), now)
		if err != nil {
			t.Fatalf("Healthy failed: %v", err)
		}
		if healthy {
			t.Error("expected not healthy against a flat baseline")
		}
	})
}
