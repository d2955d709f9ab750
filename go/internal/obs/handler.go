package obs

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Handler exposes the scene-bridge query surface: settings, connection
// control, scene listing and the scoreboard overlay show/hide action.
type Handler struct {
	bridge *Bridge
	repo   *Repository
}

// NewHandler creates a handler over the given bridge and repository.
func NewHandler(bridge *Bridge, repo *Repository) *Handler {
	return &Handler{bridge: bridge, repo: repo}
}

// RegisterRoutes registers the bridge HTTP routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/obs/settings", h.handleSettings)
	mux.HandleFunc("/api/obs/connect", h.handleConnect)
	mux.HandleFunc("/api/obs/status", h.handleStatus)
	mux.HandleFunc("/api/obs/scenes", h.handleScenes)
	mux.HandleFunc("/api/obs/mapping", h.handleMapping)
	mux.HandleFunc("/api/obs/scoreboard", h.handleScoreboard)
}

func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings, err := h.repo.LoadSettings(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("load obs settings")
			http.Error(w, "failed to load settings", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"setting": settings})

	case http.MethodPut:
		var s Settings
		if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
			http.Error(w, "invalid settings payload", http.StatusBadRequest)
			return
		}
		if err := h.repo.SaveSettings(r.Context(), s); err != nil {
			log.Error().Err(err).Msg("save obs settings")
			http.Error(w, "failed to save settings", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"setting": s})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	settings, err := h.repo.LoadSettings(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("load obs settings for connect")
		http.Error(w, "failed to load settings", http.StatusInternalServerError)
		return
	}
	if settings == nil {
		http.Error(w, "no settings", http.StatusBadRequest)
		return
	}
	connErr := h.bridge.Connect(r.Context(), *settings)
	writeJSON(w, map[string]any{"connected": connErr == nil})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]any{"connected": h.bridge.IsConnected()})
}

func (h *Handler) handleScenes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	scenes, err := h.bridge.ListScenes(r.Context())
	if err != nil || len(scenes) == 0 {
		// Unavailable rather than an error: the console shows a retry hint.
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{"scenes": []string{}})
		return
	}
	writeJSON(w, map[string]any{"scenes": scenes})
}

func (h *Handler) handleMapping(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		mapping, err := h.repo.LoadMapping(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("load obs mapping")
			http.Error(w, "failed to load mapping", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"mapping": mapping})

	case http.MethodPut:
		var m Mapping
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			http.Error(w, "invalid mapping payload", http.StatusBadRequest)
			return
		}
		if err := h.repo.SaveMapping(r.Context(), m); err != nil {
			log.Error().Err(err).Msg("save obs mapping")
			http.Error(w, "failed to save mapping", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"ok": true, "mapping": m})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// scoreboardAction is the body of POST /api/obs/scoreboard.
type scoreboardAction struct {
	Action string `json:"action"`
}

// handleScoreboard cuts to the mapped scene and toggles the scoreboard
// overlay source. When the bridge is down it lazily reconnects once with
// the last-known settings before giving up; a failure here is reported to
// the caller only and never touches match state.
func (h *Handler) handleScoreboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body scoreboardAction
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid action payload", http.StatusBadRequest)
		return
	}
	show := body.Action == "show"
	if !show && body.Action != "hide" {
		http.Error(w, "action must be show or hide", http.StatusBadRequest)
		return
	}

	if !h.bridge.IsConnected() {
		if settings, err := h.repo.LoadSettings(r.Context()); err == nil && settings != nil {
			h.bridge.AdoptSettings(*settings)
		}
		if err := h.bridge.EnsureConnected(r.Context()); err != nil {
			log.Warn().Err(err).Msg("obs unavailable for scoreboard action")
			http.Error(w, "failed to control OBS", http.StatusServiceUnavailable)
			return
		}
	}

	mapping, err := h.repo.LoadMapping(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("load obs mapping for scoreboard action")
		http.Error(w, "failed to load mapping", http.StatusInternalServerError)
		return
	}
	scene := mapping.ShowScene
	if !show {
		scene = mapping.HideScene
	}

	if err := h.bridge.SwitchScene(r.Context(), scene); err != nil {
		log.Warn().Err(err).Str("scene", scene).Msg("scene switch failed")
		http.Error(w, "failed to control OBS", http.StatusBadGateway)
		return
	}
	if err := h.bridge.SetSourceVisibility(r.Context(), scene, mapping.Source, show); err != nil {
		log.Warn().Err(err).Str("scene", scene).Str("source", mapping.Source).
			Msg("source visibility change failed")
		http.Error(w, "failed to control OBS", http.StatusBadGateway)
		return
	}
	writeJSON(w, map[string]any{"success": true})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode obs response")
	}
}
