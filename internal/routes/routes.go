package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"pantau/internal/controllers"
	"pantau/internal/middleware"
)

// Controllers bundles every handler the router exposes.
type Controllers struct {
	WebSocket *controllers.WebSocketController
	Ingest    *controllers.IngestController
	Samples   *controllers.SampleController
	History   *controllers.HistoryController
	System    *controllers.SystemController
}

// Options carries the router-level middleware settings.
type Options struct {
	AllowedOrigins []string
	RateLimiter    *middleware.RateLimiter
	Gatherer       prometheus.Gatherer
}

// NewRouter builds the gin engine with middleware and every route group.
func NewRouter(ctrl Controllers, opts Options, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.SecurityHeadersMiddleware())
	r.Use(middleware.CORSMiddleware(opts.AllowedOrigins))

	RegisterMonitorRoutes(r, opts)
	RegisterWebSocketRoutes(r, ctrl.WebSocket)
	RegisterAPIRoutes(r, ctrl, opts.RateLimiter, logger)
	return r
}
