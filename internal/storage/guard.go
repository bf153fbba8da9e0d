package storage

import (
	"context"
	"time"

	"pantau/internal/models"
)

// ErrorObserver is told about every failed store call, keyed by operation.
type ErrorObserver func(op string, metric models.Metric, err error)

// GuardedStore bounds every call of the wrapped store with a timeout and reports
// failures to an observer.
type GuardedStore struct {
	inner    SampleStore
	timeout  time.Duration
	observer ErrorObserver
}

// NewGuardedStore wraps inner. A zero timeout leaves the caller's deadline alone;
// observer may be nil.
func NewGuardedStore(inner SampleStore, timeout time.Duration, observer ErrorObserver) *GuardedStore {
	return &GuardedStore{inner: inner, timeout: timeout, observer: observer}
}

func (g *GuardedStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, g.timeout)
}

func (g *GuardedStore) observe(op string, metric models.Metric, err error) {
	if err != nil && g.observer != nil {
		g.observer(op, metric, err)
	}
}

func (g *GuardedStore) Insert(ctx context.Context, sample models.Sample) (models.Sample, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	out, err := g.inner.Insert(ctx, sample)
	g.observe("insert", sample.Metric, err)
	return out, err
}

func (g *GuardedStore) Latest(ctx context.Context, metric models.Metric) (*models.Sample, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	out, err := g.inner.Latest(ctx, metric)
	g.observe("latest", metric, err)
	return out, err
}

func (g *GuardedStore) LatestInWindow(ctx context.Context, metric models.Metric, since time.Time) (*models.Sample, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	out, err := g.inner.LatestInWindow(ctx, metric, since)
	g.observe("latest_in_window", metric, err)
	return out, err
}

func (g *GuardedStore) RangeAggregate(ctx context.Context, metric models.Metric, since, until time.Time) (models.RangeSummary, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	out, err := g.inner.RangeAggregate(ctx, metric, since, until)
	g.observe("range_aggregate", metric, err)
	return out, err
}

func (g *GuardedStore) Recent(ctx context.Context, metric models.Metric, limit int) ([]models.Sample, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	out, err := g.inner.Recent(ctx, metric, limit)
	g.observe("recent", metric, err)
	return out, err
}

func (g *GuardedStore) InRange(ctx context.Context, metric models.Metric, since, until time.Time) ([]models.Sample, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	out, err := g.inner.InRange(ctx, metric, since, until)
	g.observe("in_range", metric, err)
	return out, err
}

var _ SampleStore = (*GuardedStore)(nil)
