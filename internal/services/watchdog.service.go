package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pantau/internal/logging"
	"pantau/internal/metrics"
	"pantau/internal/models"
	"pantau/internal/storage"
)

// WatchState is the per-metric watchdog state.
type WatchState string

const (
	StateAlive     WatchState = "ALIVE"
	StateStaleSent WatchState = "STALE_SENT"
)

// SampleSink accepts readings the way the ingestion paths do.
type SampleSink interface {
	Ingest(ctx context.Context, metric models.Metric, values map[string]float64, source string) (models.Sample, error)
}

type watchEntry struct {
	state       WatchState
	syntheticID int64
}

// Watchdog injects one zero-value sample per metric each time the metric falls
// silent for longer than the threshold.
type Watchdog struct {
	store     storage.SampleStore
	sink      SampleSink
	metricSet []models.Metric
	interval  time.Duration
	threshold time.Duration
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time

	mu      sync.Mutex
	entries map[models.Metric]*watchEntry
}

// NewWatchdog creates a watchdog over the given metrics.
func NewWatchdog(store storage.SampleStore, sink SampleSink, watched []models.Metric, interval, threshold time.Duration, m *metrics.Metrics, logger zerolog.Logger) *Watchdog {
	entries := make(map[models.Metric]*watchEntry, len(watched))
	for _, metric := range watched {
		entries[metric] = &watchEntry{state: StateAlive}
	}
	return &Watchdog{
		store:     store,
		sink:      sink,
		metricSet: watched,
		interval:  interval,
		threshold: threshold,
		metrics:   m,
		logger:    logging.Component(logger, "watchdog"),
		now:       time.Now,
		entries:   entries,
	}
}

// WithClock overrides the clock, for tests.
func (w *Watchdog) WithClock(now func() time.Time) *Watchdog {
	w.now = now
	return w
}

// Run sweeps every interval until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info().
		Dur("interval", w.interval).
		Dur("threshold", w.threshold).
		Int("metrics", len(w.metricSet)).
		Msg("watchdog started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("watchdog stopped")
			return ctx.Err()
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep checks every metric once. A failure on one metric does not skip the rest.
func (w *Watchdog) Sweep(ctx context.Context) {
	for _, metric := range w.metricSet {
		if err := w.check(ctx, metric); err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error().Err(err).Str("metric", string(metric)).Msg("watchdog check failed")
		}
	}
}

// State reports the current state of metric.
func (w *Watchdog) State(metric models.Metric) WatchState {
	w.mu.Lock()
	defer w.mu.Unlock()
	if e, ok := w.entries[metric]; ok {
		return e.state
	}
	return StateAlive
}

func (w *Watchdog) check(ctx context.Context, metric models.Metric) error {
	latest, err := w.store.Latest(ctx, metric)
	if err != nil {
		return fmt.Errorf("latest %s: %w", metric, err)
	}

	fresh := latest != nil && w.now().Sub(latest.CreatedAt) <= w.threshold

	w.mu.Lock()
	entry := w.entries[metric]
	if entry.state == StateStaleSent {
		// The injected row itself looks fresh for a while; any other newest row re-arms.
		if latest == nil || latest.ID == entry.syntheticID {
			w.mu.Unlock()
			return nil
		}
		entry.state = StateAlive
		entry.syntheticID = 0
		w.logger.Debug().Str("metric", string(metric)).Msg("metric alive again")
	}
	w.mu.Unlock()

	if fresh {
		return nil
	}

	sample, err := w.sink.Ingest(ctx, metric, metric.ZeroValues(), SourceWatchdog)
	if err != nil {
		return fmt.Errorf("inject %s: %w", metric, err)
	}

	w.mu.Lock()
	entry.state = StateStaleSent
	entry.syntheticID = sample.ID
	w.mu.Unlock()

	w.metrics.SyntheticSample(string(metric))
	w.logger.Warn().
		Str("metric", string(metric)).
		Int64("id", sample.ID).
		Msg("metric silent, synthetic zero injected")
	return nil
}
