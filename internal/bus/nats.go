package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"pantau/internal/config"
	"pantau/internal/logging"
	"pantau/internal/models"
	"pantau/internal/services"
)

// Subscriber consumes sensor readings published on <prefix>.<metric> and feeds
// them to the ingestion path.
type Subscriber struct {
	cfg     config.NATSConfig
	sink    services.SampleSink
	timeout time.Duration
	logger  zerolog.Logger

	conn *nats.Conn
}

// NewSubscriber creates an unconnected subscriber. timeout bounds each ingest.
func NewSubscriber(cfg config.NATSConfig, sink services.SampleSink, timeout time.Duration, logger zerolog.Logger) *Subscriber {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Subscriber{
		cfg:     cfg,
		sink:    sink,
		timeout: timeout,
		logger:  logging.Component(logger, "nats"),
	}
}

// Subject is the wildcard subscription covering every metric.
func (s *Subscriber) Subject() string {
	return strings.TrimSuffix(s.cfg.SubjectPrefix, ".") + ".>"
}

// Start connects and subscribes.
func (s *Subscriber) Start() error {
	nc, err := nats.Connect(s.cfg.URL,
		nats.Name("pantau"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				s.logger.Warn().Err(err).Msg("disconnected from nats")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			s.logger.Info().Str("url", nc.ConnectedUrl()).Msg("reconnected to nats")
		}),
	)
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}

	_, err = nc.QueueSubscribe(s.Subject(), s.cfg.QueueGroup, func(msg *nats.Msg) {
		_ = s.handleMessage(msg.Subject, msg.Data)
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("subscribe to %s: %w", s.Subject(), err)
	}

	s.conn = nc
	s.logger.Info().Str("url", s.cfg.URL).Str("subject", s.Subject()).Msg("subscribed to nats")
	return nil
}

// Close drains the subscription and closes the connection.
func (s *Subscriber) Close() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Drain(); err != nil {
		s.logger.Warn().Err(err).Msg("drain nats connection")
		s.conn.Close()
	}
}

// handleMessage ingests one reading. Payloads are JSON objects of field values,
// e.g. {"temperature": 27.1}.
func (s *Subscriber) handleMessage(subject string, data []byte) error {
	name := subject[strings.LastIndex(subject, ".")+1:]
	metric, err := models.ParseMetric(name)
	if err != nil {
		s.logger.Warn().Str("subject", subject).Msg("reading for unknown metric dropped")
		return err
	}

	var values map[string]float64
	if err := json.Unmarshal(data, &values); err != nil {
		s.logger.Warn().Err(err).Str("subject", subject).Msg("malformed reading dropped")
		return fmt.Errorf("decode reading: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.sink.Ingest(ctx, metric, values, services.SourceNATS); err != nil {
		s.logger.Error().Err(err).Str("metric", string(metric)).Msg("ingest reading")
		return err
	}
	return nil
}
