package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Handler serves the WebSocket endpoint and the peer stats endpoint.
type Handler struct {
	hub *Hub
}

// NewHandler creates a handler over the given hub.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// HandleConnection upgrades an HTTP request to a scoreboard peer. Role is
// not declared at connect time: peers announce their audience with a join
// message once connected.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.hub.Upgrade(w, r); err != nil {
		log.Error().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		http.Error(w, "failed to upgrade connection", http.StatusInternalServerError)
	}
}

// HandleStats returns connected peer statistics.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.hub.GetStats()); err != nil {
		log.Error().Err(err).Msg("encode stats response")
	}
}

// RegisterRoutes registers the hub's HTTP routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleConnection)
	mux.HandleFunc("/ws/stats", h.HandleStats)
}
