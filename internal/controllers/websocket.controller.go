package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pantau/internal/config"
	"pantau/internal/logging"
	"pantau/internal/middleware"
	"pantau/internal/services"
)

// WebSocketController upgrades dashboard connections and runs their pumps.
type WebSocketController struct {
	dispatcher *services.Dispatcher
	cfg        config.WSConfig
	upgrader   websocket.Upgrader
	logger     zerolog.Logger
}

// NewWebSocketController builds the controller. Browsers must present an Origin
// accepted by allowedOrigins; clients without one are let through.
func NewWebSocketController(dispatcher *services.Dispatcher, cfg config.WSConfig, allowedOrigins []string, logger zerolog.Logger) *WebSocketController {
	return &WebSocketController{
		dispatcher: dispatcher,
		cfg:        cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || middleware.OriginAllowed(origin, allowedOrigins)
			},
		},
		logger: logging.Component(logger, "websocket"),
	}
}

// HandleWebSocket handles incoming WebSocket connections
func (wc *WebSocketController) HandleWebSocket(c *gin.Context) {
	ws, err := wc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		wc.logger.Warn().Err(err).Str("remote", c.ClientIP()).Msg("upgrade failed")
		return
	}

	client := wc.dispatcher.OnConnect()
	wc.logger.Debug().Str("client_id", client.ID).Str("remote", c.ClientIP()).Msg("connection upgraded")

	go wc.writePump(ws, client)
	go wc.readPump(ws, client)
}

// readPump reads frames until the peer goes away, then tears the client down.
func (wc *WebSocketController) readPump(ws *websocket.Conn, client *services.Client) {
	defer func() {
		wc.dispatcher.OnClose(client.ID)
		ws.Close()
	}()

	if wc.cfg.ReadLimit > 0 {
		ws.SetReadLimit(wc.cfg.ReadLimit)
	}
	_ = ws.SetReadDeadline(time.Now().Add(wc.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wc.cfg.PongWait))
	})

	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				wc.logger.Warn().Err(err).Str("client_id", client.ID).Msg("read error")
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		wc.dispatcher.OnMessage(client, data)
	}
}

// writePump is the only writer on the connection.
func (wc *WebSocketController) writePump(ws *websocket.Conn, client *services.Client) {
	ticker := time.NewTicker(wc.cfg.PingPeriod())
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case data := <-client.Outbound():
			_ = ws.SetWriteDeadline(time.Now().Add(wc.cfg.WriteWait))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				wc.logger.Debug().Err(err).Str("client_id", client.ID).Msg("write error")
				wc.dispatcher.OnClose(client.ID)
				return
			}

		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(wc.cfg.WriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				wc.dispatcher.OnClose(client.ID)
				return
			}

		case <-client.Done():
			_ = ws.SetWriteDeadline(time.Now().Add(wc.cfg.WriteWait))
			_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
