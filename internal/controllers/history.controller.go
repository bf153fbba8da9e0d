package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"pantau/internal/logging"
	"pantau/internal/models"
	"pantau/internal/protocol"
	"pantau/internal/services"
)

// HistoryController serves the bucketed temperature chart over plain HTTP.
type HistoryController struct {
	streams *services.Streams
	logger  zerolog.Logger
}

func NewHistoryController(streams *services.Streams, logger zerolog.Logger) *HistoryController {
	return &HistoryController{
		streams: streams,
		logger:  logging.Component(logger, "history"),
	}
}

// GetTemperatureHistory returns the series for ?filter= (1h, 3h, 6h, 12h, 1d,
// 3d, 1w). Unknown filters use the default window. Only temperature is charted.
func (hc *HistoryController) GetTemperatureHistory(c *gin.Context) {
	metric, ok := metricParam(c)
	if !ok {
		return
	}
	if metric != models.MetricTemperature {
		respond(c, http.StatusNotFound, "history is only available for suhu", nil)
		return
	}

	window := hc.streams.ResolveWindow(c.Query("filter"))
	series, err := hc.streams.TemperatureHistory(c.Request.Context(), window)
	if err != nil {
		hc.logger.Error().Err(err).Str("window", window.Key).Msg("temperature history failed")
		respond(c, http.StatusInternalServerError, "failed to build temperature history", nil)
		return
	}
	respond(c, http.StatusOK, "temperature history "+window.Key, protocol.NewTemperatureHistory(series))
}
