package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"pantau/internal/logging"
	"pantau/internal/metrics"
	"pantau/internal/models"
	"pantau/internal/protocol"
	"pantau/internal/storage"
)

// ErrMissingField is returned when an ingested reading lacks a metric field.
var ErrMissingField = errors.New("missing field")

// Ingestion sources, used as a metrics label.
const (
	SourceHTTP     = "http"
	SourceNATS     = "nats"
	SourceWatchdog = "watchdog"
)

// Ingestor stores new readings and announces them to latest-value subscribers.
type Ingestor struct {
	store       storage.SampleStore
	broadcaster Broadcaster
	cache       *LatestCache
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	now         func() time.Time
}

// NewIngestor wires the ingestion path. cache may be nil.
func NewIngestor(store storage.SampleStore, broadcaster Broadcaster, cache *LatestCache, m *metrics.Metrics, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		store:       store,
		broadcaster: broadcaster,
		cache:       cache,
		metrics:     m,
		logger:      logging.Component(logger, "ingestor"),
		now:         time.Now,
	}
}

// WithClock overrides the clock used to stamp readings.
func (i *Ingestor) WithClock(now func() time.Time) *Ingestor {
	i.now = now
	return i
}

// Ingest validates, stores and broadcasts one reading.
func (i *Ingestor) Ingest(ctx context.Context, metric models.Metric, values map[string]float64, source string) (models.Sample, error) {
	clean, err := models.ValidateValues(metric, values)
	if err != nil {
		return models.Sample{}, fmt.Errorf("%w: %v", ErrMissingField, err)
	}

	sample, err := i.store.Insert(ctx, models.Sample{Metric: metric, Values: clean, CreatedAt: i.now()})
	if err != nil {
		return models.Sample{}, fmt.Errorf("store %s sample: %w", metric, err)
	}

	i.cache.Invalidate()
	i.metrics.SampleIngested(string(metric), source)
	n := i.broadcaster.Broadcast(protocol.NewSampleEvent(sample), StreamLatest)
	i.logger.Debug().
		Str("metric", string(metric)).
		Str("source", source).
		Int64("id", sample.ID).
		Int("subscribers", n).
		Msg("sample ingested")
	return sample, nil
}
