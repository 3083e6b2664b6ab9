package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/rallyrank/rallyrank-api/brackets"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Auth happens at connect time via the token query parameter; origin
	// filtering is left to the reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WebSocketHandler struct {
	hub    *brackets.Hub
	logger *slog.Logger
}

func NewWebSocketHandler(hub *brackets.Hub, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, logger: logger}
}

// CourtStreamHandler subscribes the caller to live updates for one court:
// queue movement, check-ins, lobby and match activity, bracket progress.
func (h *WebSocketHandler) CourtStreamHandler(w http.ResponseWriter, r *http.Request) {
	courtID, err := getIDFromURL(r, "courtID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err, "court_id", courtID)
		return
	}

	client := brackets.NewClient(h.hub, conn, courtID)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
