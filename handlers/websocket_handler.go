package handlers

import (
	"log/slog"
	"net/http"

	"github.com/Dosada05/pong-arena/game"
	"github.com/Dosada05/pong-arena/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to the frontend origin once it is deployed.
		return true
	},
}

type WebSocketHandler struct {
	hub    *game.Hub
	logger *slog.Logger
}

func NewWebSocketHandler(hub *game.Hub, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, logger: logger}
}

// ServeWs upgrades an authenticated request and hands the client to the hub.
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", slog.Any("error", err))
		return
	}

	client := game.NewClient(h.hub, conn, uuid.NewString(), userID)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	h.logger.Info("websocket connection established",
		slog.String("connection_id", client.ConnectionID()),
		slog.Int("user_id", userID),
	)
}
