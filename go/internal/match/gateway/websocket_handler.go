package gateway

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/auth"
	"github.com/mcdev12/gambit/go/internal/clocksession"
	"github.com/mcdev12/gambit/go/internal/match/events"
)

// WebSocketHandler handles WebSocket upgrade requests for match and clock
// session streams.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	state             *StateHandler
}

func NewWebSocketHandler(cm *ConnectionManager, state *StateHandler) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		state:             state,
	}
}

// HandleMatchConnection streams one match. The first message is a
// MatchSnapshot, followed by every event published for the match.
func (h *WebSocketHandler) HandleMatchConnection(w http.ResponseWriter, r *http.Request) {
	matchID, err := uuid.Parse(r.URL.Query().Get("match_id"))
	if err != nil {
		http.Error(w, "match_id is required", http.StatusBadRequest)
		return
	}

	initial, err := h.state.matchSnapshotEvent(r.Context(), matchID)
	if err != nil {
		writeStateError(w, err, "match_id", matchID.String())
		return
	}

	h.upgrade(w, r, events.MatchTopic(matchID), initial)
}

// HandleSessionConnection streams one clock session, starting with its
// current state.
func (h *WebSocketHandler) HandleSessionConnection(w http.ResponseWriter, r *http.Request) {
	code := clocksession.NormalizeCode(r.URL.Query().Get("code"))
	if !clocksession.ValidCode(code) {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}

	initial, err := h.state.sessionStateEvent(r.Context(), code)
	if err != nil {
		writeStateError(w, err, "code", code)
		return
	}

	h.upgrade(w, r, events.SessionTopic(code), initial)
}

func (h *WebSocketHandler) upgrade(w http.ResponseWriter, r *http.Request, topic string, initial *events.Event) {
	// spectators may watch without an identity
	userID, ok := auth.UserID(r.Context())
	if !ok {
		userID = r.URL.Query().Get("user_id")
	}
	if userID == "" {
		userID = "anonymous"
	}

	if err := h.connectionManager.UpgradeConnection(w, r, userID, topic, initial); err != nil {
		// the upgrader has already replied to the client
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("user_id", userID).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.connectionManager.Stats())
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	if h.state.matches != nil {
		mux.HandleFunc("/ws/match", h.HandleMatchConnection)
	}
	if h.state.sessions != nil {
		mux.HandleFunc("/ws/session", h.HandleSessionConnection)
	}
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
