package services

import (
	"context"
	"fmt"

	"pantau/internal/models"
	"pantau/internal/protocol"
)

// TemperatureHistory aggregates the temperature series for w.
func (s *Streams) TemperatureHistory(ctx context.Context, w models.WindowSpec) (models.Series, error) {
	start, end := WindowBounds(s.now(), w)
	samples, err := s.store.InRange(ctx, models.MetricTemperature, start, end)
	if err != nil {
		return models.Series{}, fmt.Errorf("temperature history %s: %w", w.Key, err)
	}
	return Aggregate(samples, w, start), nil
}

// HistorySpec is the temperature history stream; it refreshes once per bucket.
func (s *Streams) HistorySpec(w models.WindowSpec) StreamSpec {
	return StreamSpec{
		Kind:     StreamTemperatureHistory,
		Interval: w.Bucket,
		Build: func(ctx context.Context) (protocol.Event, error) {
			series, err := s.TemperatureHistory(ctx, w)
			if err != nil {
				return nil, err
			}
			return protocol.NewTemperatureHistory(series), nil
		},
	}
}

// ResolveWindow maps a client filter key to a configured window, falling back
// to the default window.
func (s *Streams) ResolveWindow(key string) models.WindowSpec {
	return s.history.Resolve(key)
}
