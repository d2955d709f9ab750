package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/marazzai/scoreboard/go/internal/match"
)

// StateHandler serves the request/response query surface for match state.
type StateHandler struct {
	store *match.Store
}

// NewStateHandler creates a state handler over the given store.
func NewStateHandler(store *match.Store) *StateHandler {
	return &StateHandler{store: store}
}

// HandleGetState handles GET /api/scoreboard/state.
func (h *StateHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.store.Get()); err != nil {
		log.Error().Err(err).Msg("encode state response")
	}
}

// RegisterStateRoutes registers state query routes.
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/scoreboard/state", h.HandleGetState)
}
