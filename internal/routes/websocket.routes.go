package routes

import (
	"github.com/gin-gonic/gin"

	"pantau/internal/controllers"
)

// RegisterWebSocketRoutes mounts the dashboard stream endpoint.
func RegisterWebSocketRoutes(r *gin.Engine, wc *controllers.WebSocketController) {
	r.GET("/ws", wc.HandleWebSocket)
}
