package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fabrica/internal/services/events"
)

// WebSocketHandler upgrades connections and registers them as event
// subscribers. The socket is push-only; inbound frames are drained and
// discarded.
type WebSocketHandler struct {
	events   *events.Service
	upgrader websocket.Upgrader
	logger   arbor.ILogger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(eventService *events.Service, logger arbor.ILogger) *WebSocketHandler {
	return &WebSocketHandler{
		events: eventService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The gateway enforces origin policy; accept all here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// HandleWebSocket upgrades the connection and subscribes it to events
// GET /ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.events.Register(conn)

	go func() {
		defer h.events.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
