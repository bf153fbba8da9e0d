package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pantau/internal/config"
	"pantau/internal/models"
)

func TestRandomReadingCoversEveryField(t *testing.T) {
	for _, metric := range models.Metrics {
		_, err := models.ValidateValues(metric, RandomReading(metric))
		assert.NoError(t, err, metric)
	}
}

func TestSimulatePostsEachMetricPerRound(t *testing.T) {
	var mu sync.Mutex
	paths := map[string]int{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var values map[string]float64
		if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		paths[r.URL.Path]++
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	a := NewApp(config.Default(), zerolog.Nop())
	err := a.Simulate(context.Background(), SimulateOptions{
		BaseURL:  ts.URL + "/",
		Interval: time.Millisecond,
		Count:    3,
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]int{"/api/pzem": 3, "/api/suhu": 3, "/api/rpm": 3}, paths)
}

func TestSimulateStopsOnCancel(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewApp(config.Default(), zerolog.Nop()).Simulate(ctx, SimulateOptions{
			BaseURL:    ts.URL,
			Interval:   time.Millisecond,
			PauseAfter: 1,
			PauseFor:   time.Hour,
			Metrics:    []models.Metric{models.MetricRPM},
		})
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("simulate did not stop")
	}
}
