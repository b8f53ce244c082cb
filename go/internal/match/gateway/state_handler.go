package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/clocksession"
	"github.com/mcdev12/gambit/go/internal/match"
	"github.com/mcdev12/gambit/go/internal/match/events"
	"github.com/mcdev12/gambit/go/internal/models"
)

const defaultActiveLimit = 100

// MatchStateSource reads authoritative match state. *match.App and
// *match.Client both satisfy it.
type MatchStateSource interface {
	GetMatch(ctx context.Context, matchID uuid.UUID) (*match.Snapshot, error)
	ListActiveMatches(ctx context.Context, limit int) ([]*models.Match, error)
}

// StateHandler serves state over plain HTTP, for clients that poll instead
// of holding a websocket open.
type StateHandler struct {
	matches  MatchStateSource
	sessions clocksession.StateFetcher
}

func NewStateHandler(matches MatchStateSource, sessions clocksession.StateFetcher) *StateHandler {
	return &StateHandler{matches: matches, sessions: sessions}
}

// HandleGetMatchState handles GET /api/matches/{id}/state
func (h *StateHandler) HandleGetMatchState(w http.ResponseWriter, r *http.Request) {
	matchID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid match ID format", http.StatusBadRequest)
		return
	}

	snap, err := h.matches.GetMatch(r.Context(), matchID)
	if err != nil {
		writeStateError(w, err, "match", matchID.String())
		return
	}
	writeJSON(w, snap)
}

// HandleGetActiveMatches handles GET /api/matches/active
func (h *StateHandler) HandleGetActiveMatches(w http.ResponseWriter, r *http.Request) {
	limit := defaultActiveLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	ms, err := h.matches.ListActiveMatches(r.Context(), limit)
	if err != nil {
		writeStateError(w, err, "matches", "active")
		return
	}
	if ms == nil {
		ms = []*models.Match{}
	}
	writeJSON(w, ms)
}

// HandleGetSessionState handles GET /api/sessions/{code}/state
func (h *StateHandler) HandleGetSessionState(w http.ResponseWriter, r *http.Request) {
	code := clocksession.NormalizeCode(r.PathValue("code"))
	if !clocksession.ValidCode(code) {
		http.Error(w, "Invalid session code", http.StatusBadRequest)
		return
	}

	p, err := h.sessions.FetchState(r.Context(), code)
	if err != nil {
		writeStateError(w, err, "session", code)
		return
	}
	writeJSON(w, p)
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	if h.matches != nil {
		mux.HandleFunc("GET /api/matches/active", h.HandleGetActiveMatches)
		mux.HandleFunc("GET /api/matches/{id}/state", h.HandleGetMatchState)
	}
	if h.sessions != nil {
		mux.HandleFunc("GET /api/sessions/{code}/state", h.HandleGetSessionState)
	}
}

// matchSnapshotEvent wraps a snapshot as the first message of a match stream.
func (h *StateHandler) matchSnapshotEvent(ctx context.Context, matchID uuid.UUID) (*events.Event, error) {
	snap, err := h.matches.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	evt, err := events.NewEvent(events.MatchTopic(matchID), events.EventTypeMatchSnapshot, snap.ServerTime, snap)
	if err != nil {
		return nil, err
	}
	return &evt, nil
}

// sessionStateEvent wraps the current state as the first message of a session stream.
func (h *StateHandler) sessionStateEvent(ctx context.Context, code string) (*events.Event, error) {
	p, err := h.sessions.FetchState(ctx, code)
	if err != nil {
		return nil, err
	}
	evt, err := events.NewEvent(events.SessionTopic(code), events.EventTypeClockSessionUpdated, p.ServerTime, p)
	if err != nil {
		return nil, err
	}
	return &evt, nil
}

func writeStateError(w http.ResponseWriter, err error, kind, id string) {
	switch {
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrSessionCodeInvalid):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, models.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.Error().Err(err).Str(kind, id).Msg("failed to get state")
		http.Error(w, "Failed to get state", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode state response")
	}
}
