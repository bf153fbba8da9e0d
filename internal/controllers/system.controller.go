package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"pantau/internal/services"
)

// SystemController reports the server's own resource usage.
type SystemController struct {
	system *services.SystemService
	logger zerolog.Logger
}

func NewSystemController(system *services.SystemService, logger zerolog.Logger) *SystemController {
	return &SystemController{system: system, logger: logger}
}

func (sc *SystemController) GetStatus(c *gin.Context) {
	status, err := sc.system.Status()
	if err != nil {
		sc.logger.Error().Err(err).Msg("system status failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// Healthz reports liveness.
func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
