package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"pantau/internal/controllers"
	"pantau/internal/metrics"
	"pantau/internal/middleware"
)

// RegisterAPIRoutes mounts ingestion and read endpoints under /api.
func RegisterAPIRoutes(r *gin.Engine, ctrl Controllers, limiter *middleware.RateLimiter, logger zerolog.Logger) {
	api := r.Group("/api")
	if limiter != nil {
		api.Use(middleware.RateLimitMiddleware(limiter, logger))
	}
	{
		api.GET("/system", ctrl.System.GetStatus)

		api.POST("/:metric", ctrl.Ingest.Create)
		api.GET("/:metric/latest", ctrl.Samples.GetLatest)
		api.GET("/:metric/latest-window", ctrl.Samples.GetLatestInWindow)
		api.GET("/:metric/today-average", ctrl.Samples.GetTodayAverage)
		api.GET("/:metric/recent", ctrl.Samples.GetRecent)
		api.GET("/:metric/history", ctrl.History.GetTemperatureHistory)
	}
}

// RegisterMonitorRoutes mounts liveness and Prometheus endpoints.
func RegisterMonitorRoutes(r *gin.Engine, opts Options) {
	r.GET("/healthz", controllers.Healthz)
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(opts.Gatherer)))
	}
}
