package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"pantau/internal/bus"
	"pantau/internal/controllers"
	"pantau/internal/metrics"
	"pantau/internal/middleware"
	"pantau/internal/routes"
	"pantau/internal/services"
	"pantau/internal/storage"
)

// Server is the wired component graph behind one dashboard process.
type Server struct {
	Handler    http.Handler
	Registry   *services.Registry
	Streams    *services.Streams
	Ingestor   *services.Ingestor
	Watchdog   *services.Watchdog
	Subscriber *bus.Subscriber
}

// NewServer wires services, controllers and routes on top of store. Watchdog is
// nil when disabled; Subscriber is nil when no NATS URL is configured.
func (a *App) NewServer(store storage.SampleStore, m *metrics.Metrics, gatherer prometheus.Gatherer) (*Server, error) {
	cfg := a.Config
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := services.NewRegistry(cfg.Server.WS.SendBuffer, a.Logger, m)
	cache := services.NewLatestCache(cfg.Streams.SnapshotCacheTTL)
	streams := services.NewStreams(store, cache, cfg)
	ingestor := services.NewIngestor(store, registry, cache, m, a.Logger)
	dispatcher := services.NewDispatcher(registry, streams, a.Logger)
	system := services.NewSystemService(registry, a.Logger)

	srv := &Server{
		Registry: registry,
		Streams:  streams,
		Ingestor: ingestor,
	}

	if cfg.Watchdog.Enabled {
		watched, err := cfg.Watchdog.WatchedMetrics()
		if err != nil {
			return nil, err
		}
		srv.Watchdog = services.NewWatchdog(store, ingestor, watched, cfg.Watchdog.Interval, cfg.Watchdog.Threshold, m, a.Logger)
	}
	if cfg.NATS.URL != "" {
		srv.Subscriber = bus.NewSubscriber(cfg.NATS, ingestor, cfg.Database.QueryTimeout, a.Logger)
	}

	ctrl := routes.Controllers{
		WebSocket: controllers.NewWebSocketController(dispatcher, cfg.Server.WS, cfg.Server.AllowedOrigins, a.Logger),
		Ingest:    controllers.NewIngestController(ingestor, a.Logger),
		Samples:   controllers.NewSampleController(store, streams, a.Logger),
		History:   controllers.NewHistoryController(streams, a.Logger),
		System:    controllers.NewSystemController(system, a.Logger),
	}
	var limiter *middleware.RateLimiter
	if cfg.Server.RateLimit.RPS > 0 {
		limiter = middleware.NewRateLimiter(cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst)
	}
	srv.Handler = routes.NewRouter(ctrl, routes.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimiter:    limiter,
		Gatherer:       gatherer,
	}, a.Logger)

	return srv, nil
}
