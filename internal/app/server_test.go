package app

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pantau/internal/config"
	"pantau/internal/metrics"
	"pantau/internal/models"
	"pantau/internal/storage"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) (*httptest.Server, *Server) {
	t.Helper()
	cfg := config.Default()
	cfg.Streams.LatestInterval = 20 * time.Millisecond
	cfg.Streams.SnapshotCacheTTL = 0
	if mutate != nil {
		mutate(cfg)
	}

	reg := newPrometheusRegistry()
	m := metrics.New(reg)
	store := storage.NewGuardedStore(storage.NewMemoryStore(), time.Second, nil)

	srv, err := NewApp(cfg, zerolog.Nop()).NewServer(store, m, reg)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(func() {
		srv.Registry.CloseAll()
		ts.Close()
	})
	return ts, srv
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil skips frames until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, eventType string) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", eventType)
		var frame map[string]any
		require.NoError(t, json.Unmarshal(data, &frame))
		if frame["type"] == eventType {
			return frame
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

func post(t *testing.T, ts *httptest.Server, path, body string) int {
	t.Helper()
	resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode
}

func TestWebSocketSession(t *testing.T) {
	ts, srv := newTestServer(t, nil)
	conn := dial(t, ts)

	hello := readUntil(t, conn, "connection_established")
	assert.NotEmpty(t, hello["clientId"])
	assert.Len(t, hello["availableCommands"], 8)
	assert.Equal(t, 1, srv.Registry.Count())

	send(t, conn, `{"type":"ping"}`)
	readUntil(t, conn, "pong")

	send(t, conn, `{"type":"start_latest_data"}`)
	started := readUntil(t, conn, "stream_started")
	assert.Equal(t, "latest_data", started["stream"])
	latest := readUntil(t, conn, "latest_data")
	data := latest["data"].(map[string]any)
	assert.Nil(t, data["suhu"])

	require.Equal(t, http.StatusCreated, post(t, ts, "/api/suhu", `{"temperature":26.5}`))
	announced := readUntil(t, conn, "new_suhu")
	assert.Equal(t, 26.5, announced["data"].(map[string]any)["temperature"])

	send(t, conn, `{"type":"launch_rockets"}`)
	errFrame := readUntil(t, conn, "error")
	assert.Equal(t, "Unknown message type: launch_rockets", errFrame["message"])

	send(t, conn, `{"type":"stop_latest_data"}`)
	stopped := readUntil(t, conn, "stream_stopped")
	assert.Equal(t, "latest_data", stopped["stream"])

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return srv.Registry.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketPzemSnapshot(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	conn := dial(t, ts)
	readUntil(t, conn, "connection_established")

	for _, power := range []float64{10, 20, 30} {
		values := models.MetricPower.ZeroValues()
		values["power"] = power
		body, err := json.Marshal(values)
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, post(t, ts, "/api/pzem", string(body)))
	}

	send(t, conn, `{"type":"get_pzem_history_once","limit":2}`)
	frame := readUntil(t, conn, "pzem_history")
	assert.Equal(t, 2.0, frame["count"])
	rows := frame["data"].([]any)
	require.Len(t, rows, 2)
	assert.Equal(t, 20.0, rows[0].(map[string]any)["power"])
	assert.Equal(t, 30.0, rows[1].(map[string]any)["power"])
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	ts, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.AllowedOrigins = []string{"https://dash.example.com"}
	})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestOperationalEndpoints(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	require.Equal(t, http.StatusCreated, post(t, ts, "/api/rpm", `{"rpm":1450}`))

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `pantau_ingested_samples_total{metric="rpm",source="http"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNewServerWiresOptionalComponents(t *testing.T) {
	_, srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Watchdog.Enabled = false
	})
	assert.Nil(t, srv.Watchdog)
	assert.Nil(t, srv.Subscriber)

	_, srv = newTestServer(t, func(cfg *config.Config) {
		cfg.NATS.URL = "nats://127.0.0.1:4222"
	})
	assert.NotNil(t, srv.Watchdog)
	require.NotNil(t, srv.Subscriber)
	assert.Equal(t, "pantau.ingest.>", srv.Subscriber.Subject())
}

func TestMigrateRequiresPostgres(t *testing.T) {
	err := NewApp(config.Default(), zerolog.Nop()).Migrate(t.Context())
	assert.ErrorContains(t, err, "database.driver=postgres")
}
