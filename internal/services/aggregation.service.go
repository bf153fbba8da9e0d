package services

import (
	"time"

	"github.com/shopspring/decimal"

	"pantau/internal/models"
)

// WindowBounds aligns a window to bucket boundaries: the last bucket is the one
// containing now, and the series spans exactly Lookback.
func WindowBounds(now time.Time, w models.WindowSpec) (start, end time.Time) {
	end = now.Truncate(w.Bucket).Add(w.Bucket)
	start = end.Add(-w.Lookback)
	return start, end
}

// Aggregate buckets samples into w.Buckets() fixed-width averages starting at
// start. Samples outside [start, start+Lookback) are ignored. Empty buckets keep
// a nil value so gaps stay visible.
func Aggregate(samples []models.Sample, w models.WindowSpec, start time.Time) models.Series {
	n := w.Buckets()
	end := start.Add(w.Lookback)

	sums := make([]decimal.Decimal, n)
	counts := make([]int, n)
	raw := 0
	for _, s := range samples {
		if s.CreatedAt.Before(start) || !s.CreatedAt.Before(end) {
			continue
		}
		idx := int(s.CreatedAt.Sub(start) / w.Bucket)
		if idx < 0 || idx >= n {
			continue
		}
		sums[idx] = sums[idx].Add(decimal.NewFromFloat(s.Value()))
		counts[idx]++
		raw++
	}

	points := make([]models.AggregatedPoint, n)
	for i := range points {
		points[i] = models.AggregatedPoint{BucketStart: start.Add(time.Duration(i) * w.Bucket)}
		if counts[i] == 0 {
			continue
		}
		avg := sums[i].Div(decimal.NewFromInt(int64(counts[i]))).Round(2).InexactFloat64()
		points[i].Value = &avg
		points[i].SampleCount = counts[i]
	}

	return models.Series{
		Window:     w,
		Start:      start,
		End:        end,
		Points:     points,
		RawSamples: raw,
	}
}

// Round2 rounds v half away from zero to two decimal places.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func round2Ptr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := Round2(*v)
	return &r
}

// PeakRPM returns the sample with the highest value; ties go to the most recent.
// samples must be in ascending time order.
func PeakRPM(samples []models.Sample) *models.Sample {
	var peak *models.Sample
	for i := range samples {
		s := samples[i]
		if peak == nil || s.Value() > peak.Value() ||
			(s.Value() == peak.Value() && !s.CreatedAt.Before(peak.CreatedAt)) {
			peak = &s
		}
	}
	return peak
}
