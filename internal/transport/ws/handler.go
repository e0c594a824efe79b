package ws

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"storychain/internal/app"
)

// Handler handles WebSocket connections
type Handler struct {
	hub      *app.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *app.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Terminal clients send no Origin header
				return true
			},
		},
		logger: logger,
	}
}

// ServeHTTP upgrades the request and registers the connection with the hub.
// Every connection gets a fresh participant ID; rooms are chosen over the
// socket with create_room or join_room_code.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	participantID := uuid.New().String()
	client := NewClient(conn, h.hub, participantID, h.logger)
	h.hub.Connect(participantID, client)

	h.logger.Info("websocket connected",
		"participantID", participantID,
		"remoteAddr", r.RemoteAddr,
	)

	client.Run()
}
