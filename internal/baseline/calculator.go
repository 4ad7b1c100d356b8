// Package baseline computes the per-hour statistical profiles that anomaly
// rules compare live metrics against.
package baseline

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"nabz/internal/metrics"
	"nabz/internal/storage"
)

// selectors are the rule metric selectors profiled by the calculator.
var selectors = []string{
	storage.RuleMetricCPU,
	storage.RuleMetricMemory,
	storage.RuleMetricDisk,
}

// maxSamplesPerServer caps how many samples one recalculation reads for a
// single server.
const maxSamplesPerServer = 100000

// Store is the persistence surface the calculator needs.
type Store interface {
	ListServers(ctx context.Context) ([]storage.Server, error)
	QuerySamples(ctx context.Context, serverID uuid.UUID, from, to time.Time, limit int) ([]storage.MetricSample, error)
	UpsertBaseline(ctx context.Context, serverID uuid.UUID, metric string, hour int, mean, stddev float64) error
}

// Calculator recalculates metric baselines over a rolling lookback window.
//
// For every (server, metric, UTC hour-of-day) bucket with at least one
// sample in the window, the mean and population standard deviation are
// upserted. Buckets with no samples are left untouched: an absent baseline
// means "no profile yet" and must not decay into a zero profile that would
// flag every value as anomalous.
type Calculator struct {
	store        Store
	lookbackDays int
}

// NewCalculator creates a calculator reading lookbackDays of history.
func NewCalculator(store Store, lookbackDays int) *Calculator {
	return &Calculator{store: store, lookbackDays: lookbackDays}
}

// Run recalculates baselines for all registered servers. A failure on one
// server is logged and does not abort the others; the first error is
// returned after all servers have been attempted.
func (c *Calculator) Run(ctx context.Context) error {
	servers, err := c.store.ListServers(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	from := now.AddDate(0, 0, -c.lookbackDays)

	var firstErr error
	for _, server := range servers {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := c.runServer(ctx, server.ID, from, now); err != nil {
			log.Error().
				Err(err).
				Str("server_id", server.ID.String()).
				Msg("Baseline recalculation failed for server")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	log.Info().
		Int("servers", len(servers)).
		Time("window_start", from).
		Msg("Baseline recalculation completed")
	return firstErr
}

// runServer recalculates all metric baselines for one server.
func (c *Calculator) runServer(ctx context.Context, serverID uuid.UUID, from, to time.Time) error {
	samples, err := c.store.QuerySamples(ctx, serverID, from, to, maxSamplesPerServer)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}

	// buckets[selector][hour] collects the observed values
	buckets := make(map[string]map[int][]float64, len(selectors))
	for _, sel := range selectors {
		buckets[sel] = make(map[int][]float64)
	}

	for _, sample := range samples {
		payload, err := metrics.Decode(sample.Payload)
		if err != nil {
			// Stored samples are agent-submitted; skip unreadable ones
			continue
		}
		hour := sample.Timestamp.UTC().Hour()
		for _, sel := range selectors {
			if v, ok := metrics.Extract(payload, sel); ok {
				buckets[sel][hour] = append(buckets[sel][hour], v)
			}
		}
	}

	for _, sel := range selectors {
		name := metrics.MetricName(sel)
		for hour, values := range buckets[sel] {
			mean, stddev := meanStdDev(values)
			if err := c.store.UpsertBaseline(ctx, serverID, name, hour, mean, stddev); err != nil {
				return err
			}
		}
	}
	return nil
}

// meanStdDev returns the mean and population standard deviation.
func meanStdDev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}
