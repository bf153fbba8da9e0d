package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"pantau/internal/models"
)

// MemoryStore keeps samples in process, ordered by CreatedAt. It backs the
// "memory" database driver and the test suites.
type MemoryStore struct {
	mu      sync.RWMutex
	samples map[models.Metric][]models.Sample
	nextID  map[models.Metric]int64
	now     func() time.Time
}

// NewMemoryStore creates an empty store using the wall clock.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		samples: make(map[models.Metric][]models.Sample),
		nextID:  make(map[models.Metric]int64),
		now:     time.Now,
	}
}

// WithClock overrides the clock used to stamp samples without a CreatedAt.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
	return s
}

// Len returns the number of stored samples for the metric.
func (s *MemoryStore) Len(metric models.Metric) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples[metric])
}

func (s *MemoryStore) Insert(ctx context.Context, sample models.Sample) (models.Sample, error) {
	if err := checkMetric(sample.Metric); err != nil {
		return models.Sample{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.Sample{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sample.CreatedAt.IsZero() {
		sample.CreatedAt = s.now()
	}
	values := make(map[string]float64, len(sample.Values))
	for k, v := range sample.Values {
		values[k] = v
	}
	sample.Values = values

	s.nextID[sample.Metric]++
	sample.ID = s.nextID[sample.Metric]

	list := s.samples[sample.Metric]
	idx := sort.Search(len(list), func(i int) bool {
		return list[i].CreatedAt.After(sample.CreatedAt)
	})
	list = append(list, models.Sample{})
	copy(list[idx+1:], list[idx:])
	list[idx] = sample
	s.samples[sample.Metric] = list

	return sample, nil
}

func (s *MemoryStore) Latest(ctx context.Context, metric models.Metric) (*models.Sample, error) {
	return s.LatestInWindow(ctx, metric, time.Time{})
}

func (s *MemoryStore) LatestInWindow(ctx context.Context, metric models.Metric, since time.Time) (*models.Sample, error) {
	if err := checkMetric(metric); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.samples[metric]
	if len(list) == 0 {
		return nil, nil
	}
	last := list[len(list)-1]
	if last.CreatedAt.Before(since) {
		return nil, nil
	}
	return &last, nil
}

func (s *MemoryStore) RangeAggregate(ctx context.Context, metric models.Metric, since, until time.Time) (models.RangeSummary, error) {
	samples, err := s.InRange(ctx, metric, since, until)
	if err != nil {
		return models.RangeSummary{}, err
	}

	var summary models.RangeSummary
	if len(samples) == 0 {
		return summary, nil
	}

	sum := 0.0
	minV, maxV := samples[0].Value(), samples[0].Value()
	for _, sample := range samples {
		v := sample.Value()
		sum += v
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	avg := sum / float64(len(samples))
	summary.Average = &avg
	summary.Min = &minV
	summary.Max = &maxV
	summary.Count = int64(len(samples))
	return summary, nil
}

func (s *MemoryStore) Recent(ctx context.Context, metric models.Metric, limit int) ([]models.Sample, error) {
	if err := checkMetric(metric); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.samples[metric]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]models.Sample, 0, limit)
	for i := len(list) - 1; i >= len(list)-limit; i-- {
		out = append(out, list[i])
	}
	return out, nil
}

func (s *MemoryStore) InRange(ctx context.Context, metric models.Metric, since, until time.Time) ([]models.Sample, error) {
	if err := checkMetric(metric); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.samples[metric]
	lo := sort.Search(len(list), func(i int) bool { return !list[i].CreatedAt.Before(since) })
	hi := sort.Search(len(list), func(i int) bool { return !list[i].CreatedAt.Before(until) })
	if lo >= hi {
		return []models.Sample{}, nil
	}
	out := make([]models.Sample, hi-lo)
	copy(out, list[lo:hi])
	return out, nil
}

var _ SampleStore = (*MemoryStore)(nil)
