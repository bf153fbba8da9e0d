package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors exported on /metrics. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	ConnectedClients prometheus.Gauge
	ActiveStreams    *prometheus.GaugeVec
	MessagesSent     *prometheus.CounterVec
	DroppedFrames    prometheus.Counter
	SyntheticSamples *prometheus.CounterVec
	IngestedSamples  *prometheus.CounterVec
	StoreErrors      *prometheus.CounterVec
	TickDuration     *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pantau_ws_connected_clients",
			Help: "WebSocket clients currently registered.",
		}),
		ActiveStreams: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pantau_ws_active_streams",
			Help: "Periodic streams currently running, by stream kind.",
		}, []string{"stream"}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pantau_ws_messages_sent_total",
			Help: "Frames queued to clients, by event type.",
		}, []string{"event"}),
		DroppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pantau_ws_dropped_frames_total",
			Help: "Frames discarded because a client send buffer was full.",
		}),
		SyntheticSamples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pantau_watchdog_synthetic_samples_total",
			Help: "Zero-value samples injected by the idle watchdog.",
		}, []string{"metric"}),
		IngestedSamples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pantau_ingested_samples_total",
			Help: "Samples stored through the ingestion paths.",
		}, []string{"metric", "source"}),
		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pantau_store_errors_total",
			Help: "Failed sample store calls, by operation.",
		}, []string{"op", "metric"}),
		TickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pantau_stream_tick_seconds",
			Help:    "Time spent building one stream payload.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"stream"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ConnectedClients,
			m.ActiveStreams,
			m.MessagesSent,
			m.DroppedFrames,
			m.SyntheticSamples,
			m.IngestedSamples,
			m.StoreErrors,
			m.TickDuration,
		)
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ClientConnected() {
	if m != nil {
		m.ConnectedClients.Inc()
	}
}

func (m *Metrics) ClientDisconnected() {
	if m != nil {
		m.ConnectedClients.Dec()
	}
}

func (m *Metrics) StreamStarted(stream string) {
	if m != nil {
		m.ActiveStreams.WithLabelValues(stream).Inc()
	}
}

func (m *Metrics) StreamStopped(stream string) {
	if m != nil {
		m.ActiveStreams.WithLabelValues(stream).Dec()
	}
}

func (m *Metrics) MessageSent(event string) {
	if m != nil {
		m.MessagesSent.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) FrameDropped() {
	if m != nil {
		m.DroppedFrames.Inc()
	}
}

func (m *Metrics) SyntheticSample(metric string) {
	if m != nil {
		m.SyntheticSamples.WithLabelValues(metric).Inc()
	}
}

func (m *Metrics) SampleIngested(metric, source string) {
	if m != nil {
		m.IngestedSamples.WithLabelValues(metric, source).Inc()
	}
}

func (m *Metrics) StoreError(op, metric string) {
	if m != nil {
		m.StoreErrors.WithLabelValues(op, metric).Inc()
	}
}

func (m *Metrics) ObserveTick(stream string, d time.Duration) {
	if m != nil {
		m.TickDuration.WithLabelValues(stream).Observe(d.Seconds())
	}
}
