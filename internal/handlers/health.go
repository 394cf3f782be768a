package handlers

import (
	"encoding/json"
	"net/http"

	"collab-server/internal/collab"
)

type HealthHandlers struct {
	hub *collab.Hub
}

func NewHealthHandlers(hub *collab.Hub) *HealthHandlers {
	return &HealthHandlers{hub: hub}
}

func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":       "ok",
		"active_rooms": h.hub.RoomCount(),
	})
}
