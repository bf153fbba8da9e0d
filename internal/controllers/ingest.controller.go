package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"pantau/internal/logging"
	"pantau/internal/models"
	"pantau/internal/services"
)

// respond writes the {statusCode, message, data} envelope used by every /api route.
func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, gin.H{
		"statusCode": status,
		"message":    message,
		"data":       data,
	})
}

// metricParam resolves the :metric path segment, answering 404 when unknown.
func metricParam(c *gin.Context) (models.Metric, bool) {
	metric, err := models.ParseMetric(c.Param("metric"))
	if err != nil {
		respond(c, http.StatusNotFound, err.Error(), nil)
		return "", false
	}
	return metric, true
}

// IngestController accepts readings posted by devices.
type IngestController struct {
	ingestor *services.Ingestor
	logger   zerolog.Logger
}

func NewIngestController(ingestor *services.Ingestor, logger zerolog.Logger) *IngestController {
	return &IngestController{
		ingestor: ingestor,
		logger:   logging.Component(logger, "ingest"),
	}
}

// Create stores one reading, e.g. POST /api/suhu {"temperature": 27.4}
func (ic *IngestController) Create(c *gin.Context) {
	metric, ok := metricParam(c)
	if !ok {
		return
	}

	var values map[string]float64
	if err := c.ShouldBindJSON(&values); err != nil {
		respond(c, http.StatusBadRequest, "invalid JSON body: "+err.Error(), nil)
		return
	}

	sample, err := ic.ingestor.Ingest(c.Request.Context(), metric, values, services.SourceHTTP)
	if err != nil {
		if errors.Is(err, services.ErrMissingField) {
			respond(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		ic.logger.Error().Err(err).Str("metric", string(metric)).Msg("ingest failed")
		respond(c, http.StatusInternalServerError, "failed to store reading", nil)
		return
	}

	respond(c, http.StatusCreated, string(metric)+" reading stored", sample)
}
