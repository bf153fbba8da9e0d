package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"pantau/internal/config"
	"pantau/internal/logging"
	"pantau/internal/metrics"
	"pantau/internal/models"
	"pantau/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logging.Component(logger, "app")}
}

// openStore selects the sample store backend and bounds every call with the
// configured query timeout.
func (a *App) openStore(ctx context.Context, m *metrics.Metrics) (storage.SampleStore, func(), error) {
	var inner storage.SampleStore
	closer := func() {}

	switch a.Config.Database.Driver {
	case "postgres":
		db, closeDB, err := storage.OpenPostgres(ctx, a.Config.Database)
		if err != nil {
			return nil, nil, err
		}
		if err := storage.InitializeTables(ctx, db); err != nil {
			closeDB()
			return nil, nil, err
		}
		inner = storage.NewPostgresStore(db)
		closer = closeDB
	default:
		a.Logger.Warn().Msg("database.driver is memory; samples are lost on restart")
		inner = storage.NewMemoryStore()
	}

	observer := func(op string, metric models.Metric, err error) {
		m.StoreError(op, string(metric))
		a.Logger.Debug().Err(err).Str("op", op).Str("metric", string(metric)).Msg("store call failed")
	}
	return storage.NewGuardedStore(inner, a.Config.Database.QueryTimeout, observer), closer, nil
}

func newPrometheusRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Run executes the long-running dashboard server.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := newPrometheusRegistry()
	m := metrics.New(reg)

	store, closeStore, err := a.openStore(ctx, m)
	if err != nil {
		return err
	}
	defer closeStore()

	srv, err := a.NewServer(store, m, reg)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	if srv.Watchdog != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Watchdog.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.Logger.Error().Err(err).Msg("watchdog stopped")
			}
		}()
	}

	if srv.Subscriber != nil {
		if err := srv.Subscriber.Start(); err != nil {
			a.Logger.Error().Err(err).Msg("nats ingestion disabled")
		} else {
			defer srv.Subscriber.Close()
		}
	}

	httpServer := &http.Server{
		Addr:         a.Config.Server.Addr,
		Handler:      srv.Handler,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", httpServer.Addr).Msg("starting dashboard server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			cancel()
			wg.Wait()
			srv.Registry.CloseAll()
			return fmt.Errorf("http server: %w", err)
		}
	}

	a.Logger.Info().Msg("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warn().Err(err).Msg("http shutdown")
	}
	srv.Registry.CloseAll()
	cancel()
	wg.Wait()

	a.Logger.Info().Msg("dashboard server stopped")
	return nil
}
