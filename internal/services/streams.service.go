package services

import (
	"context"
	"fmt"
	"time"

	"pantau/internal/config"
	"pantau/internal/models"
	"pantau/internal/protocol"
	"pantau/internal/storage"
)

// Streams builds the payloads behind every client stream.
type Streams struct {
	store   storage.SampleStore
	cache   *LatestCache
	streams config.StreamsConfig
	history config.HistoryConfig
	loc     *time.Location
	now     func() time.Time
}

// NewStreams wires the payload builders. cache may be nil.
func NewStreams(store storage.SampleStore, cache *LatestCache, cfg *config.Config) *Streams {
	return &Streams{
		store:   store,
		cache:   cache,
		streams: cfg.Streams,
		history: cfg.History,
		loc:     cfg.App.Location(),
		now:     time.Now,
	}
}

// WithClock overrides the clock, for tests.
func (s *Streams) WithClock(now func() time.Time) *Streams {
	s.now = now
	return s
}

// DayBounds returns the civil day containing t in loc as [start, end).
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// LatestData returns the bundled latest snapshot, through the cache when set.
func (s *Streams) LatestData(ctx context.Context) (models.LatestData, error) {
	return s.cache.Get(ctx, s.loadLatest)
}

func (s *Streams) loadLatest(ctx context.Context) (models.LatestData, error) {
	var data models.LatestData
	now := s.now()

	pzem, err := s.store.Latest(ctx, models.MetricPower)
	if err != nil {
		return data, fmt.Errorf("latest pzem: %w", err)
	}
	suhu, err := s.store.Latest(ctx, models.MetricTemperature)
	if err != nil {
		return data, fmt.Errorf("latest suhu: %w", err)
	}
	summary, err := s.TodaySummary(ctx, models.MetricTemperature)
	if err != nil {
		return data, err
	}
	rpm, err := s.PeakRPM(ctx, now)
	if err != nil {
		return data, err
	}

	data.Pzem = pzem
	data.Suhu = suhu
	data.SuhuAvg = summary
	data.RPM = rpm
	return data, nil
}

// TodaySummary aggregates the metric over the current civil day.
func (s *Streams) TodaySummary(ctx context.Context, metric models.Metric) (models.RangeSummary, error) {
	start, end := DayBounds(s.now(), s.loc)
	summary, err := s.store.RangeAggregate(ctx, metric, start, end)
	if err != nil {
		return models.RangeSummary{}, fmt.Errorf("today summary %s: %w", metric, err)
	}
	summary.Average = round2Ptr(summary.Average)
	summary.Min = round2Ptr(summary.Min)
	summary.Max = round2Ptr(summary.Max)
	return summary, nil
}

// PeakRPM reduces the trailing rpm window to its peak sample, or nil when the
// window is empty. The window includes samples stamped exactly at now.
func (s *Streams) PeakRPM(ctx context.Context, now time.Time) (*models.Sample, error) {
	since := now.Add(-s.streams.RPMPeakWindow)
	samples, err := s.store.InRange(ctx, models.MetricRPM, since, now.Add(time.Nanosecond))
	if err != nil {
		return nil, fmt.Errorf("rpm window: %w", err)
	}
	return PeakRPM(samples), nil
}

// Snapshot returns the newest limit samples of metric in chronological order.
func (s *Streams) Snapshot(ctx context.Context, metric models.Metric, limit int) ([]models.Sample, error) {
	samples, err := s.store.Recent(ctx, metric, limit)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", metric, err)
	}
	for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
		samples[i], samples[j] = samples[j], samples[i]
	}
	return samples, nil
}

// LatestSpec is the latest-value stream: resent only when the payload changes.
func (s *Streams) LatestSpec() StreamSpec {
	return StreamSpec{
		Kind:              StreamLatest,
		Interval:          s.streams.LatestInterval,
		SuppressUnchanged: true,
		Build: func(ctx context.Context) (protocol.Event, error) {
			data, err := s.LatestData(ctx)
			if err != nil {
				return nil, err
			}
			return protocol.NewLatestData(data), nil
		},
	}
}

// PzemHistorySpec periodically resends the power snapshot.
func (s *Streams) PzemHistorySpec(limit int) StreamSpec {
	return StreamSpec{
		Kind:              StreamPzemHistory,
		Interval:          s.streams.PzemHistoryInterval,
		SuppressUnchanged: true,
		Build: func(ctx context.Context) (protocol.Event, error) {
			samples, err := s.Snapshot(ctx, models.MetricPower, limit)
			if err != nil {
				return nil, err
			}
			return protocol.NewPzemHistory(samples), nil
		},
	}
}

// ClampLimit maps a requested snapshot size onto the configured bounds.
func (s *Streams) ClampLimit(limit int) int {
	return s.streams.ClampLimit(limit)
}
