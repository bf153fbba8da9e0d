package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Sample is one timestamped reading of a metric. Values holds the metric-specific
// fields (voltage, temperature, rpm, ...).
type Sample struct {
	ID        int64
	Metric    Metric
	Values    map[string]float64
	CreatedAt time.Time
}

// Value returns the metric's primary field.
func (s Sample) Value() float64 {
	return s.Values[s.Metric.ValueField()]
}

// MarshalJSON flattens the reading into {"id", <fields>..., "created_at"}.
func (s Sample) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Values)+2)
	for k, v := range s.Values {
		out[k] = v
	}
	out["id"] = s.ID
	out["created_at"] = s.CreatedAt.UTC().Format(time.RFC3339Nano)
	return json.Marshal(out)
}

// ValidateValues checks that every field of the metric is present and returns the
// values restricted to those fields.
func ValidateValues(m Metric, values map[string]float64) (map[string]float64, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("unknown metric %q", m)
	}
	clean := make(map[string]float64, len(m.Fields()))
	for _, f := range m.Fields() {
		v, ok := values[f]
		if !ok {
			return nil, fmt.Errorf("missing field %q for %s", f, m)
		}
		clean[f] = v
	}
	return clean, nil
}

// RangeSummary holds avg/min/max of a metric's value field over an interval.
// Fields are nil when no sample fell in the interval.
type RangeSummary struct {
	Average *float64 `json:"average"`
	Min     *float64 `json:"min"`
	Max     *float64 `json:"max"`
	Count   int64    `json:"count"`
}

// LatestData is the bundled latest-value payload.
type LatestData struct {
	Pzem    *Sample      `json:"pzem"`
	Suhu    *Sample      `json:"suhu"`
	SuhuAvg RangeSummary `json:"suhuAvg"`
	RPM     *Sample      `json:"rpm"`
}
