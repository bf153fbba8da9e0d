package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"pantau/internal/logging"
	"pantau/internal/services"
	"pantau/internal/storage"
)

// SampleController serves point reads over stored samples.
type SampleController struct {
	store   storage.SampleStore
	streams *services.Streams
	logger  zerolog.Logger
	now     func() time.Time
}

func NewSampleController(store storage.SampleStore, streams *services.Streams, logger zerolog.Logger) *SampleController {
	return &SampleController{
		store:   store,
		streams: streams,
		logger:  logging.Component(logger, "samples"),
		now:     time.Now,
	}
}

// GetLatest returns the newest sample of a metric, or null data when none exist.
func (sc *SampleController) GetLatest(c *gin.Context) {
	metric, ok := metricParam(c)
	if !ok {
		return
	}
	sample, err := sc.store.Latest(c.Request.Context(), metric)
	if err != nil {
		sc.fail(c, "latest", err)
		return
	}
	respond(c, http.StatusOK, "latest "+string(metric), sample)
}

// GetLatestInWindow returns the newest sample no older than ?window= (default 10s).
func (sc *SampleController) GetLatestInWindow(c *gin.Context) {
	metric, ok := metricParam(c)
	if !ok {
		return
	}
	window, err := time.ParseDuration(c.DefaultQuery("window", "10s"))
	if err != nil || window <= 0 {
		respond(c, http.StatusBadRequest, "invalid window duration", nil)
		return
	}
	sample, err := sc.store.LatestInWindow(c.Request.Context(), metric, sc.now().Add(-window))
	if err != nil {
		sc.fail(c, "latest-window", err)
		return
	}
	respond(c, http.StatusOK, "latest "+string(metric)+" within "+window.String(), sample)
}

// GetTodayAverage summarises the metric over the current civil day.
func (sc *SampleController) GetTodayAverage(c *gin.Context) {
	metric, ok := metricParam(c)
	if !ok {
		return
	}
	summary, err := sc.streams.TodaySummary(c.Request.Context(), metric)
	if err != nil {
		sc.fail(c, "today-average", err)
		return
	}
	respond(c, http.StatusOK, "today "+string(metric)+" summary", summary)
}

// GetRecent returns the newest ?limit= samples in chronological order.
func (sc *SampleController) GetRecent(c *gin.Context) {
	metric, ok := metricParam(c)
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respond(c, http.StatusBadRequest, "limit must be an integer", nil)
			return
		}
		limit = n
	}
	samples, err := sc.streams.Snapshot(c.Request.Context(), metric, sc.streams.ClampLimit(limit))
	if err != nil {
		sc.fail(c, "recent", err)
		return
	}
	respond(c, http.StatusOK, "recent "+string(metric), samples)
}

func (sc *SampleController) fail(c *gin.Context, op string, err error) {
	sc.logger.Error().Err(err).Str("op", op).Str("metric", c.Param("metric")).Msg("sample read failed")
	respond(c, http.StatusInternalServerError, "failed to read samples", nil)
}
