package handlers

import (
	"net/http"

	"collab-server/internal/auth"
	"collab-server/internal/collab"
	"collab-server/pkg/logger"

	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	authService *auth.Service
	hub         *collab.Hub
	upgrader    websocket.Upgrader
}

func NewWebSocketHandlers(authService *auth.Service, hub *collab.Hub) *WebSocketHandlers {
	return &WebSocketHandlers{
		authService: authService,
		hub:         hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// The bearer credential arrives with the handshake, never as a message.
	// A missing token and an invalid one get the same generic rejection.
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	identity, err := h.authService.VerifyCredential(tokenStr)
	if err != nil {
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	// Upgrade connection to WebSocket
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	client := collab.NewClient(h.hub, conn, *identity)

	// Register on the personal channel; room membership waits for a
	// join-project event from the client.
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
