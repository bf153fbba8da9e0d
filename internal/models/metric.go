package models

import (
	"fmt"
	"strings"
)

// Metric identifies one sensor stream. The string value doubles as the table name
// and as the suffix of the "new_<metric>" broadcast event.
type Metric string

const (
	MetricPower       Metric = "pzem"
	MetricTemperature Metric = "suhu"
	MetricRPM         Metric = "rpm"
)

// Metrics lists every metric kind in a stable order.
var Metrics = []Metric{MetricPower, MetricTemperature, MetricRPM}

var metricFields = map[Metric][]string{
	MetricPower:       {"voltage", "current", "frequency", "power", "power_factor", "energy", "va", "var"},
	MetricTemperature: {"temperature"},
	MetricRPM:         {"rpm"},
}

var metricValueField = map[Metric]string{
	MetricPower:       "power",
	MetricTemperature: "temperature",
	MetricRPM:         "rpm",
}

var metricAliases = map[string]Metric{
	"pzem":             MetricPower,
	"power":            MetricPower,
	"suhu":             MetricTemperature,
	"temperature":      MetricTemperature,
	"temp":             MetricTemperature,
	"rpm":              MetricRPM,
	"rotational-speed": MetricRPM,
}

// ParseMetric resolves a metric name or one of its aliases.
func ParseMetric(name string) (Metric, error) {
	m, ok := metricAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("unknown metric %q", name)
	}
	return m, nil
}

// Valid reports whether m is a known metric kind.
func (m Metric) Valid() bool {
	_, ok := metricFields[m]
	return ok
}

// Fields returns the metric-specific value columns in storage order.
func (m Metric) Fields() []string {
	return metricFields[m]
}

// ValueField is the column aggregated and charted for the metric.
func (m Metric) ValueField() string {
	return metricValueField[m]
}

// Table is the storage table backing the metric.
func (m Metric) Table() string {
	return string(m)
}

// EventType is the outbound event used for single-sample broadcasts.
func (m Metric) EventType() string {
	return "new_" + string(m)
}

// ZeroValues builds the synthetic all-zero reading for the metric.
func (m Metric) ZeroValues() map[string]float64 {
	values := make(map[string]float64, len(metricFields[m]))
	for _, f := range metricFields[m] {
		values[f] = 0
	}
	return values
}

func (m Metric) String() string {
	return string(m)
}
