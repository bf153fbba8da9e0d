package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pantau/internal/models"
)

var (
	// ErrNotConfigured indicates the database handle was not initialised.
	ErrNotConfigured = errors.New("storage: database not configured")
	// ErrUnknownMetric is returned for metric kinds without a table.
	ErrUnknownMetric = errors.New("storage: unknown metric")
)

// SampleStore is the query surface the streaming core depends on. Windows are
// half-open: [since, until).
type SampleStore interface {
	// Insert persists a sample. A zero CreatedAt is stamped with the store clock.
	Insert(ctx context.Context, sample models.Sample) (models.Sample, error)
	// Latest returns the newest sample, or nil when the metric has none.
	Latest(ctx context.Context, metric models.Metric) (*models.Sample, error)
	// LatestInWindow returns the newest sample at or after since, or nil.
	LatestInWindow(ctx context.Context, metric models.Metric, since time.Time) (*models.Sample, error)
	// RangeAggregate summarises the metric's value field over [since, until).
	RangeAggregate(ctx context.Context, metric models.Metric, since, until time.Time) (models.RangeSummary, error)
	// Recent returns up to limit samples, newest first.
	Recent(ctx context.Context, metric models.Metric, limit int) ([]models.Sample, error)
	// InRange returns samples in [since, until), oldest first.
	InRange(ctx context.Context, metric models.Metric, since, until time.Time) ([]models.Sample, error)
}

func checkMetric(m models.Metric) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownMetric, m)
	}
	return nil
}
