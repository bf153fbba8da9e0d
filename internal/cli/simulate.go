package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pantau/internal/app"
	"pantau/internal/models"
)

var (
	simulateURL        string
	simulateInterval   time.Duration
	simulateCount      int
	simulatePauseAfter int
	simulatePauseFor   time.Duration
	simulateMetrics    []string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Emulate sensor devices posting random readings",
	RunE: func(cmd *cobra.Command, args []string) error {
		metrics := make([]models.Metric, 0, len(simulateMetrics))
		for _, name := range simulateMetrics {
			m, err := models.ParseMetric(name)
			if err != nil {
				return err
			}
			metrics = append(metrics, m)
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		err := getApp().Simulate(ctx, app.SimulateOptions{
			BaseURL:    simulateURL,
			Interval:   simulateInterval,
			Count:      simulateCount,
			PauseAfter: simulatePauseAfter,
			PauseFor:   simulatePauseFor,
			Metrics:    metrics,
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateURL, "url", "http://localhost:3000", "Base URL of the dashboard server")
	simulateCmd.Flags().DurationVar(&simulateInterval, "interval", time.Second, "Delay between reading rounds")
	simulateCmd.Flags().IntVar(&simulateCount, "count", 0, "Number of rounds; 0 runs until interrupted")
	simulateCmd.Flags().IntVar(&simulatePauseAfter, "pause-after", 0, "Go silent after this many rounds")
	simulateCmd.Flags().DurationVar(&simulatePauseFor, "pause-for", 30*time.Second, "Length of the silent period")
	simulateCmd.Flags().StringSliceVar(&simulateMetrics, "metrics", []string{"pzem", "suhu", "rpm"}, "Metrics to emulate")
}
