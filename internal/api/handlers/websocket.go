package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
	"github.com/yourusername/remote-backup-manager/internal/logging"
	"github.com/yourusername/remote-backup-manager/internal/websocket"
)

var upgrader = gorilla.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checks are handled by the CORS middleware; progress streams
	// carry no credentials.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocketHandler upgrades progress-stream connections.
type WebSocketHandler struct {
	hub *websocket.Hub
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(hub *websocket.Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// HandleWebSocket handles GET /ws. Each connection is assigned a session id
// and told about it in a "connected" message; the frontend echoes that id as
// sessionId when starting a backup so progress lands back here.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.L().Warn("websocket_upgrade_failed", "error", err, "ip", c.ClientIP())
		return
	}

	client := &websocket.Client{
		ID:   uuid.New().String(),
		Conn: conn,
		Send: make(chan *websocket.Message, 256),
		Hub:  h.hub,
	}

	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()

	client.SendMessage("connected", gin.H{
		"status":     "Connected to backup server",
		"session_id": client.ID,
		"time":       time.Now().Format(time.RFC3339),
	})
}
