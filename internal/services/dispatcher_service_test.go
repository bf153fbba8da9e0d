package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pantau/internal/models"
	"pantau/internal/protocol"
)

var noon = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func TestOnConnectAcknowledges(t *testing.T) {
	env := newTestEnv(t, testConfig(), noon)
	client := env.dispatcher.OnConnect()

	f := expectFrame(t, client, protocol.TypeConnectionEstablished)
	assert.Equal(t, client.ID, f["clientId"])
	assert.Len(t, f["availableCommands"], len(protocol.AvailableCommands))
	assert.Equal(t, 1, env.registry.Count())

	env.dispatcher.OnClose(client.ID)
	env.dispatcher.OnClose(client.ID)
	assert.Zero(t, env.registry.Count())
}

func TestPingRepliesWithoutStoreAccess(t *testing.T) {
	env := newTestEnv(t, testConfig(), noon)
	client := env.dispatcher.OnConnect()
	expectFrame(t, client, protocol.TypeConnectionEstablished)

	env.send(client, `{"type":"ping"}`)
	expectFrame(t, client, protocol.TypePong)
	assert.Zero(t, env.store.calls.Load())
}

func TestMalformedAndUnknownFramesKeepConnection(t *testing.T) {
	env := newTestEnv(t, testConfig(), noon)
	client := env.dispatcher.OnConnect()
	expectFrame(t, client, protocol.TypeConnectionEstablished)

	env.send(client, `{"type":`)
	f := expectFrame(t, client, protocol.TypeError)
	assert.Equal(t, "Invalid message format", f["message"])

	env.send(client, `{"type":"reboot"}`)
	f = expectFrame(t, client, protocol.TypeError)
	assert.Equal(t, "reboot", f["command"])
	assert.Contains(t, f["message"], "reboot")

	assert.False(t, client.Closed())
	env.send(client, `{"type":"ping"}`)
	expectFrame(t, client, protocol.TypePong)
}

func TestLatestStreamSendsOnlyOnChange(t *testing.T) {
	env := newTestEnv(t, testConfig(), noon)
	env.insert(t, models.MetricPower, pzemValues(120), noon.Add(-time.Minute))
	env.insert(t, models.MetricTemperature, tempValues(27.5), noon.Add(-time.Hour))

	client := env.dispatcher.OnConnect()
	expectFrame(t, client, protocol.TypeConnectionEstablished)

	env.send(client, `{"type":"start_latest_data"}`)
	started := expectFrame(t, client, protocol.TypeStreamStarted)
	assert.Equal(t, string(StreamLatest), started["stream"])
	assert.Equal(t, 10.0, started["interval"])

	first := expectFrame(t, client, protocol.TypeLatestData)
	data := first["data"].(map[string]any)
	assert.Equal(t, 120.0, data["pzem"].(map[string]any)["power"])
	assert.Equal(t, 27.5, data["suhu"].(map[string]any)["temperature"])
	assert.Equal(t, 27.5, data["suhuAvg"].(map[string]any)["average"])
	assert.Nil(t, data["rpm"])

	noFrame(t, client, 60*time.Millisecond)

	_, err := env.ingestor.Ingest(context.Background(), models.MetricTemperature, tempValues(28.0), SourceHTTP)
	require.NoError(t, err)

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		seen[nextFrame(t, client, time.Second).Type()] = true
	}
	assert.True(t, seen["new_suhu"])
	assert.True(t, seen[protocol.TypeLatestData])
	noFrame(t, client, 60*time.Millisecond)

	env.send(client, `{"type":"stop_latest_data"}`)
	stopped := expectFrame(t, client, protocol.TypeStreamStopped)
	assert.Equal(t, string(StreamLatest), stopped["stream"])
	assert.False(t, client.HasStream(StreamLatest))
}

func TestLatestRestartResendsUnchangedPayload(t *testing.T) {
	env := newTestEnv(t, testConfig(), noon)
	client := env.dispatcher.OnConnect()
	expectFrame(t, client, protocol.TypeConnectionEstablished)

	env.send(client, `{"type":"start_latest_data"}`)
	expectFrame(t, client, protocol.TypeStreamStarted)
	expectFrame(t, client, protocol.TypeLatestData)

	env.send(client, `{"type":"stop_latest_data"}`)
	expectFrame(t, client, protocol.TypeStreamStopped)

	env.send(client, `{"type":"start_latest_data"}`)
	expectFrame(t, client, protocol.TypeStreamStarted)
	expectFrame(t, client, protocol.TypeLatestData)
}

func TestLatestReportsPeakRPM(t *testing.T) {
	t0 := noon.Add(-5 * time.Second)
	env := newTestEnv(t, testConfig(), noon)
	env.insert(t, models.MetricRPM, rpmValues(10), t0)
	env.insert(t, models.MetricRPM, rpmValues(50), t0.Add(2*time.Second))
	env.insert(t, models.MetricRPM, rpmValues(30), t0.Add(4*time.Second))

	data, err := env.streams.LatestData(context.Background())
	require.NoError(t, err)
	require.NotNil(t, data.RPM)
	assert.Equal(t, 50.0, data.RPM.Value())

	env.clock.Advance(20 * time.Second)
	data, err = env.streams.LatestData(context.Background())
	require.NoError(t, err)
	assert.Nil(t, data.RPM)
}

func TestHistorySwitchKeepsSingleStream(t *testing.T) {
	env := newTestEnv(t, testConfig(), noon)
	env.insert(t, models.MetricTemperature, tempValues(20), noon.Add(2*time.Second))

	client := env.dispatcher.OnConnect()
	expectFrame(t, client, protocol.TypeConnectionEstablished)

	env.send(client, `{"type":"get_temperature_history","filter":"1h"}`)
	env.send(client, `{"type":"get_temperature_history","timeFilter":"6h"}`)
	assert.Equal(t, 1, client.ActiveStreams())

	var last frame
	for last == nil || last.Type() != protocol.TypeTemperatureHistory || last["filter"] != "6h" {
		last = nextFrame(t, client, time.Second)
	}
	assert.Len(t, last["data"], 360)
	assert.Equal(t, 1, client.ActiveStreams())
	noFrame(t, client, 50*time.Millisecond)
}

func TestHistorySwitchAnnouncesOnlyAfterOldStreamStops(t *testing.T) {
	cfg := testConfig()
	cfg.History.Windows = []models.WindowSpec{
		{Key: "fast", Lookback: 50 * time.Millisecond, Bucket: 5 * time.Millisecond},
		{Key: "slow", Lookback: time.Hour, Bucket: time.Hour},
	}
	env := newTestEnv(t, cfg, noon)

	client := env.dispatcher.OnConnect()
	expectFrame(t, client, protocol.TypeConnectionEstablished)

	env.send(client, `{"type":"get_temperature_history","filter":"fast"}`)
	expectFrame(t, client, protocol.TypeStreamStarted)
	expectFrame(t, client, protocol.TypeTemperatureHistory)
	time.Sleep(20 * time.Millisecond)

	env.send(client, `{"type":"get_temperature_history","filter":"slow"}`)

	started := false
	for {
		f := nextFrame(t, client, time.Second)
		if f.Type() == protocol.TypeStreamStarted {
			started = true
			continue
		}
		if started {
			require.Equal(t, protocol.TypeTemperatureHistory, f.Type())
			assert.Equal(t, "slow", f["filter"])
			break
		}
	}
	noFrame(t, client, 30*time.Millisecond)
}

func TestHistoryUnknownFilterFallsBackToDefault(t *testing.T) {
	env := newTestEnv(t, testConfig(), noon)
	client := env.dispatcher.OnConnect()
	expectFrame(t, client, protocol.TypeConnectionEstablished)

	env.send(client, `{"type":"get_temperature_history","filter":"5y"}`)
	started := expectFrame(t, client, protocol.TypeStreamStarted)
	assert.Equal(t, 10000.0, started["interval"])

	f := expectFrame(t, client, protocol.TypeTemperatureHistory)
	assert.Equal(t, "1h", f["filter"])
	assert.Equal(t, true, f["empty"])
	assert.Len(t, f["data"], 360)

	env.send(client, `{"type":"stop_temperature_history"}`)
	expectFrame(t, client, protocol.TypeStreamStopped)
}

func TestPzemHistoryOnceIsChronological(t *testing.T) {
	env := newTestEnv(t, testConfig(), noon)
	for i, p := range []float64{1, 2, 3} {
		env.insert(t, models.MetricPower, pzemValues(p), noon.Add(time.Duration(i)*time.Second))
	}

	client := env.dispatcher.OnConnect()
	expectFrame(t, client, protocol.TypeConnectionEstablished)

	env.send(client, `{"type":"get_pzem_history_once","limit":3}`)
	f := expectFrame(t, client, protocol.TypePzemHistory)
	assert.Equal(t, 3.0, f["count"])

	rows := f["data"].([]any)
	require.Len(t, rows, 3)
	for i, row := range rows {
		assert.Equal(t, float64(i+1), row.(map[string]any)["power"])
	}
	assert.Zero(t, client.ActiveStreams())
	noFrame(t, client, 20*time.Millisecond)
}

func TestPzemHistoryStreamClampsLimit(t *testing.T) {
	env := newTestEnv(t, testConfig(), noon)
	for i := 0; i < 5; i++ {
		env.insert(t, models.MetricPower, pzemValues(float64(i)), noon.Add(time.Duration(i)*time.Second))
	}

	client := env.dispatcher.OnConnect()
	expectFrame(t, client, protocol.TypeConnectionEstablished)

	env.send(client, `{"type":"start_pzem_history","limit":2}`)
	expectFrame(t, client, protocol.TypeStreamStarted)
	f := expectFrame(t, client, protocol.TypePzemHistory)
	assert.Equal(t, 2.0, f["count"])
	noFrame(t, client, 40*time.Millisecond)

	env.send(client, `{"type":"stop_pzem_history"}`)
	expectFrame(t, client, protocol.TypeStreamStopped)
	assert.Zero(t, client.ActiveStreams())
}

func TestStreamStoreErrorIsContained(t *testing.T) {
	env := newTestEnv(t, testConfig(), noon)
	env.store.failFor = models.MetricPower

	client := env.dispatcher.OnConnect()
	expectFrame(t, client, protocol.TypeConnectionEstablished)

	env.send(client, `{"type":"start_latest_data"}`)
	expectFrame(t, client, protocol.TypeStreamStarted)
	require.Eventually(t, func() bool { return env.store.failures.Load() >= 3 }, time.Second, time.Millisecond)

	assert.True(t, client.HasStream(StreamLatest))
	assert.False(t, client.Closed())
	env.send(client, `{"type":"ping"}`)
	expectFrame(t, client, protocol.TypePong)
}
