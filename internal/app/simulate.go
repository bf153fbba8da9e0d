package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"pantau/internal/models"
	"pantau/internal/services"
)

// SimulateOptions configure the device emulator.
type SimulateOptions struct {
	BaseURL  string
	Interval time.Duration
	// Count stops after this many rounds; zero runs until cancelled.
	Count int
	// PauseAfter goes silent after this many rounds for PauseFor, long enough
	// for the watchdog to inject zero readings.
	PauseAfter int
	PauseFor   time.Duration
	Metrics    []models.Metric
	Client     *http.Client
}

// Simulate posts one random reading per metric every interval.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if len(opts.Metrics) == 0 {
		opts.Metrics = models.Metrics
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 5 * time.Second}
	}
	base := strings.TrimRight(opts.BaseURL, "/")

	for round := 1; opts.Count == 0 || round <= opts.Count; round++ {
		for _, metric := range opts.Metrics {
			if err := postReading(ctx, opts.Client, base, metric, RandomReading(metric)); err != nil {
				a.Logger.Warn().Err(err).Str("metric", string(metric)).Msg("post reading")
			}
		}
		a.Logger.Debug().Int("round", round).Msg("readings posted")
		if opts.Count > 0 && round == opts.Count {
			break
		}

		wait := opts.Interval
		if opts.PauseAfter > 0 && round == opts.PauseAfter {
			a.Logger.Info().Dur("pause", opts.PauseFor).Msg("pausing device")
			wait = opts.PauseFor
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil
}

// RandomReading produces plausible values for every field of metric.
func RandomReading(metric models.Metric) map[string]float64 {
	jitter := func(base, spread float64) float64 {
		return services.Round2(base + (rand.Float64()*2-1)*spread)
	}

	switch metric {
	case models.MetricTemperature:
		return map[string]float64{"temperature": jitter(27, 3)}
	case models.MetricRPM:
		return map[string]float64{"rpm": jitter(1450, 50)}
	default:
		voltage := jitter(220, 5)
		current := jitter(1.5, 0.5)
		pf := jitter(0.9, 0.05)
		va := services.Round2(voltage * current)
		power := services.Round2(va * pf)
		return map[string]float64{
			"voltage":      voltage,
			"current":      current,
			"frequency":    jitter(50, 0.2),
			"power":        power,
			"power_factor": pf,
			"energy":       jitter(12, 1),
			"va":           va,
			"var":          services.Round2(va * 0.4),
		}
	}
}

func postReading(ctx context.Context, client *http.Client, base string, metric models.Metric, values map[string]float64) error {
	body, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode reading: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/"+string(metric), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", metric, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("post %s: unexpected status %d", metric, resp.StatusCode)
	}
	return nil
}
