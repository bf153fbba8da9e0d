package protocol

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pantau/internal/models"
)

func TestDecodeCommandVariants(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want Command
	}{
		{"start latest", `{"type":"start_latest_data"}`, StartLatestData{}},
		{"stop latest", `{"type":"stop_latest_data"}`, StopLatestData{}},
		{"history filter", `{"type":"get_temperature_history","filter":"6h"}`, GetTemperatureHistory{Filter: "6h"}},
		{"history timeFilter", `{"type":"get_temperature_history","timeFilter":"1w"}`, GetTemperatureHistory{Filter: "1w"}},
		{"history alias", `{"type":"start_temperature_history"}`, GetTemperatureHistory{}},
		{"stop history", `{"type":"stop_temperature_history"}`, StopTemperatureHistory{}},
		{"pzem start", `{"type":"start_pzem_history","limit":20}`, StartPzemHistory{Limit: 20}},
		{"pzem stop", `{"type":"stop_pzem_history"}`, StopPzemHistory{}},
		{"pzem once", `{"type":"get_pzem_history_once","limit":"3"}`, GetPzemHistoryOnce{Limit: 3}},
		{"pzem once alias", `{"type":"get_pzem_history","limit":50}`, GetPzemHistoryOnce{Limit: 50}},
		{"pzem once default", `{"type":"get_pzem_history_once","limit":-4}`, GetPzemHistoryOnce{}},
		{"pzem once huge limit", `{"type":"get_pzem_history_once","limit":1e300}`, GetPzemHistoryOnce{Limit: math.MaxInt32}},
		{"pzem start huge string limit", `{"type":"start_pzem_history","limit":"9e18"}`, StartPzemHistory{Limit: math.MaxInt32}},
		{"ping", `{"type":"ping"}`, Ping{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeCommand([]byte(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeCommandMalformed(t *testing.T) {
	for _, raw := range []string{`not json`, `{"filter":"1h"}`, `[1,2]`, `{"type":7}`} {
		_, err := DecodeCommand([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformed, raw)
	}
}

func TestDecodeCommandUnknown(t *testing.T) {
	_, err := DecodeCommand([]byte(`{"type":"reboot_sensor"}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownCommand))

	var unknown *UnknownCommandError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "reboot_sensor", unknown.Type)
}

func TestEncodePong(t *testing.T) {
	data, err := Encode(NewPong())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong"}`, string(data))
}

func TestEncodeConnectionEstablished(t *testing.T) {
	data, err := Encode(NewConnectionEstablished("abc"))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "connection_established", decoded["type"])
	assert.Equal(t, "abc", decoded["clientId"])
	assert.Len(t, decoded["availableCommands"], len(AvailableCommands))
}

func TestTemperatureHistoryKeepsNullBuckets(t *testing.T) {
	start := time.Date(2025, 1, 1, 11, 0, 0, 0, time.UTC)
	v := 21.5
	series := models.Series{
		Window: models.WindowSpec{Key: "1h", Lookback: 20 * time.Second, Bucket: 10 * time.Second},
		Start:  start,
		End:    start.Add(20 * time.Second),
		Points: []models.AggregatedPoint{
			{BucketStart: start},
			{BucketStart: start.Add(10 * time.Second), Value: &v, SampleCount: 2},
		},
		RawSamples: 2,
	}

	data, err := Encode(NewTemperatureHistory(series))
	require.NoError(t, err)

	var decoded struct {
		Type string `json:"type"`
		Data []struct {
			Temperature *float64 `json:"temperature"`
			DataPoints  int      `json:"dataPoints"`
		} `json:"data"`
		Filter string `json:"filter"`
		Empty  bool   `json:"empty"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "temperature_history", decoded.Type)
	assert.Equal(t, "1h", decoded.Filter)
	require.Len(t, decoded.Data, 2)
	assert.Nil(t, decoded.Data[0].Temperature)
	assert.Equal(t, 0, decoded.Data[0].DataPoints)
	require.NotNil(t, decoded.Data[1].Temperature)
	assert.Equal(t, 21.5, *decoded.Data[1].Temperature)
	assert.False(t, decoded.Empty)
}

func TestTemperatureHistoryEmptyFlag(t *testing.T) {
	ev := NewTemperatureHistory(models.Series{Window: models.DefaultWindows[0]})
	assert.True(t, ev.Empty)
	assert.NotEmpty(t, ev.Message)
}

func TestSampleEventIsTaggedByMetric(t *testing.T) {
	sample := models.Sample{
		ID:        9,
		Metric:    models.MetricRPM,
		Values:    map[string]float64{"rpm": 1200},
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	data, err := Encode(NewSampleEvent(sample))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"new_rpm","data":{"id":9,"rpm":1200,"created_at":"2025-01-01T00:00:00Z"}}`, string(data))
}
