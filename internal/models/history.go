package models

import (
	"fmt"
	"time"
)

// WindowSpec is a named lookback window split into fixed-width buckets.
type WindowSpec struct {
	Key      string        `mapstructure:"key" json:"key"`
	Lookback time.Duration `mapstructure:"lookback" json:"-"`
	Bucket   time.Duration `mapstructure:"bucket" json:"-"`
}

// Buckets returns the number of buckets covering the lookback.
func (w WindowSpec) Buckets() int {
	if w.Bucket <= 0 {
		return 0
	}
	return int(w.Lookback / w.Bucket)
}

// Validate rejects windows whose lookback is not a whole number of buckets.
func (w WindowSpec) Validate() error {
	if w.Key == "" {
		return fmt.Errorf("window key is required")
	}
	if w.Lookback <= 0 || w.Bucket <= 0 {
		return fmt.Errorf("window %s: lookback and bucket must be positive", w.Key)
	}
	if w.Lookback%w.Bucket != 0 {
		return fmt.Errorf("window %s: lookback %s is not a multiple of bucket %s", w.Key, w.Lookback, w.Bucket)
	}
	return nil
}

// DefaultWindows are the chart presets shared with the dashboard clients.
var DefaultWindows = []WindowSpec{
	{Key: "1h", Lookback: time.Hour, Bucket: 10 * time.Second},
	{Key: "3h", Lookback: 3 * time.Hour, Bucket: 30 * time.Second},
	{Key: "6h", Lookback: 6 * time.Hour, Bucket: time.Minute},
	{Key: "12h", Lookback: 12 * time.Hour, Bucket: 5 * time.Minute},
	{Key: "1d", Lookback: 24 * time.Hour, Bucket: 15 * time.Minute},
	{Key: "3d", Lookback: 72 * time.Hour, Bucket: 45 * time.Minute},
	{Key: "1w", Lookback: 168 * time.Hour, Bucket: 90 * time.Minute},
}

// AggregatedPoint is one bucket of a history series. Value is nil when the bucket
// holds no samples.
type AggregatedPoint struct {
	BucketStart time.Time
	Value       *float64
	SampleCount int
}

// Series is the bucketed result of one aggregation run.
type Series struct {
	Window     WindowSpec
	Start      time.Time
	End        time.Time
	Points     []AggregatedPoint
	RawSamples int
}

// Empty reports whether no sample fell anywhere in the window.
func (s Series) Empty() bool {
	return s.RawSamples == 0
}
