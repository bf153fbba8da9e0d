package protocol

import (
	"encoding/json"
	"time"

	"pantau/internal/models"
)

// Outbound event types.
const (
	TypeConnectionEstablished = "connection_established"
	TypeLatestData            = "latest_data"
	TypeTemperatureHistory    = "temperature_history"
	TypePzemHistory           = "pzem_history"
	TypeStreamStarted         = "stream_started"
	TypeStreamStopped         = "stream_stopped"
	TypeError                 = "error"
	TypePong                  = "pong"
)

// Event is one server-to-client message.
type Event interface {
	EventType() string
}

// Envelope carries the "type" discriminator of every outbound event.
type Envelope struct {
	Type string `json:"type"`
}

func (e Envelope) EventType() string { return e.Type }

type ConnectionEstablished struct {
	Envelope
	ClientID          string   `json:"clientId"`
	AvailableCommands []string `json:"availableCommands"`
}

type LatestData struct {
	Envelope
	Data models.LatestData `json:"data"`
}

// TemperaturePoint is one chart bucket. Temperature is null for empty buckets.
type TemperaturePoint struct {
	Temperature *float64  `json:"temperature"`
	Timestamp   time.Time `json:"timestamp"`
	DataPoints  int       `json:"dataPoints"`
}

type TimeRange struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Bucket  string    `json:"bucket"`
	Buckets int       `json:"buckets"`
}

type HistoryConfig struct {
	Period             string `json:"period"`
	AverageInterval    string `json:"averageInterval"`
	TotalRawDataPoints int    `json:"totalRawDataPoints"`
}

type TemperatureHistory struct {
	Envelope
	Data      []TemperaturePoint `json:"data"`
	Count     int                `json:"count"`
	Filter    string             `json:"filter"`
	TimeRange TimeRange          `json:"timeRange"`
	Config    HistoryConfig      `json:"config"`
	Empty     bool               `json:"empty,omitempty"`
	Message   string             `json:"message,omitempty"`
}

type PzemHistory struct {
	Envelope
	Data  []models.Sample `json:"data"`
	Count int             `json:"count"`
}

type StreamStarted struct {
	Envelope
	Stream   string `json:"stream"`
	Interval int64  `json:"interval"`
}

type StreamStopped struct {
	Envelope
	Stream string `json:"stream"`
}

type Error struct {
	Envelope
	Message string `json:"message"`
	Command string `json:"command,omitempty"`
}

type Pong struct {
	Envelope
}

// NewSample announces a single freshly stored (or synthetic) reading.
type NewSample struct {
	Envelope
	Data models.Sample `json:"data"`
}

func NewConnectionEstablished(clientID string) ConnectionEstablished {
	return ConnectionEstablished{
		Envelope:          Envelope{Type: TypeConnectionEstablished},
		ClientID:          clientID,
		AvailableCommands: AvailableCommands,
	}
}

func NewLatestData(data models.LatestData) LatestData {
	return LatestData{Envelope: Envelope{Type: TypeLatestData}, Data: data}
}

// NewTemperatureHistory converts an aggregated series into the chart payload.
func NewTemperatureHistory(series models.Series) TemperatureHistory {
	points := make([]TemperaturePoint, 0, len(series.Points))
	for _, p := range series.Points {
		points = append(points, TemperaturePoint{
			Temperature: p.Value,
			Timestamp:   p.BucketStart.UTC(),
			DataPoints:  p.SampleCount,
		})
	}
	ev := TemperatureHistory{
		Envelope: Envelope{Type: TypeTemperatureHistory},
		Data:     points,
		Count:    len(points),
		Filter:   series.Window.Key,
		TimeRange: TimeRange{
			Start:   series.Start.UTC(),
			End:     series.End.UTC(),
			Bucket:  series.Window.Bucket.String(),
			Buckets: len(points),
		},
		Config: HistoryConfig{
			Period:             series.Window.Lookback.String(),
			AverageInterval:    series.Window.Bucket.String(),
			TotalRawDataPoints: series.RawSamples,
		},
	}
	if series.Empty() {
		ev.Empty = true
		ev.Message = "No data available for the selected time period"
	}
	return ev
}

func NewPzemHistory(samples []models.Sample) PzemHistory {
	if samples == nil {
		samples = []models.Sample{}
	}
	return PzemHistory{Envelope: Envelope{Type: TypePzemHistory}, Data: samples, Count: len(samples)}
}

func NewStreamStarted(stream string, interval time.Duration) StreamStarted {
	return StreamStarted{
		Envelope: Envelope{Type: TypeStreamStarted},
		Stream:   stream,
		Interval: interval.Milliseconds(),
	}
}

func NewStreamStopped(stream string) StreamStopped {
	return StreamStopped{Envelope: Envelope{Type: TypeStreamStopped}, Stream: stream}
}

func NewError(message, command string) Error {
	return Error{Envelope: Envelope{Type: TypeError}, Message: message, Command: command}
}

func NewPong() Pong {
	return Pong{Envelope: Envelope{Type: TypePong}}
}

func NewSampleEvent(sample models.Sample) NewSample {
	return NewSample{Envelope: Envelope{Type: sample.Metric.EventType()}, Data: sample}
}

// Encode serialises an event into a text frame.
func Encode(e Event) ([]byte, error) {
	return json.Marshal(e)
}
