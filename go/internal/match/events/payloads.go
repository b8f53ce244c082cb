package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/gambit/go/internal/models"
)

// Event payload types shared by the match service, the outbox relay, the
// orchestrator and the gateway.

// EventType names a domain event.
type EventType string

const (
	EventTypeMatchStarted        EventType = "MatchStarted"
	EventTypeMoveMade            EventType = "MoveMade"
	EventTypeDrawOffered         EventType = "DrawOffered"
	EventTypeDrawDeclined        EventType = "DrawDeclined"
	EventTypeMatchCompleted      EventType = "MatchCompleted"
	EventTypeClockSessionUpdated EventType = "ClockSessionUpdated"

	// EventTypeMatchSnapshot carries a match.Snapshot; the gateway sends one
	// when a client connects.
	EventTypeMatchSnapshot EventType = "MatchSnapshot"
)

// Event is the envelope delivered to subscribers and websocket clients.
type Event struct {
	ID        string          `json:"id"`
	Topic     string          `json:"topic"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEvent marshals payload into an envelope.
func NewEvent(topic string, eventType EventType, at time.Time, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:        uuid.NewString(),
		Topic:     topic,
		Type:      eventType,
		Timestamp: at.UTC(),
		Data:      data,
	}, nil
}

const (
	matchTopicPrefix   = "match."
	sessionTopicPrefix = "session."
)

// MatchTopic is the broadcast topic of a match.
func MatchTopic(matchID uuid.UUID) string {
	return matchTopicPrefix + matchID.String()
}

// SessionTopic is the broadcast topic of a clock session.
func SessionTopic(code string) string {
	return sessionTopicPrefix + strings.ToUpper(code)
}

// MatchIDFromTopic parses the match id out of a match topic.
func MatchIDFromTopic(topic string) (uuid.UUID, bool) {
	rest, ok := strings.CutPrefix(topic, matchTopicPrefix)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(rest)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// MoveFlags describe the position reached by a move.
type MoveFlags = models.MoveFlags

// MoveMadePayload is broadcast to both players after every accepted move.
// Remaining times are in milliseconds.
type MoveMadePayload struct {
	MatchID        string    `json:"matchId"`
	Ply            int       `json:"ply"`
	Position       string    `json:"position"`
	Turn           string    `json:"turn"`
	WhiteRemaining int64     `json:"whiteRemaining"`
	BlackRemaining int64     `json:"blackRemaining"`
	Flags          MoveFlags `json:"flags"`
	Notation       string    `json:"notation"`
	SAN            string    `json:"san"`
	PlayerID       string    `json:"playerId"`
	MovedAt        time.Time `json:"movedAt"`
}

// MatchStartedPayload is emitted when a match becomes active.
type MatchStartedPayload struct {
	MatchID       string    `json:"matchId"`
	WhiteID       string    `json:"whiteId"`
	BlackID       string    `json:"blackId"`
	TimeControl   int       `json:"timeControl"`
	Increment     int       `json:"increment"`
	Position      string    `json:"position"`
	StartedAt     time.Time `json:"startedAt"`
	GraceDeadline time.Time `json:"graceDeadline"`
}

// MatchCompletedPayload is emitted once when a match reaches a result.
type MatchCompletedPayload struct {
	MatchID        string    `json:"matchId"`
	Result         string    `json:"result"`
	WinnerID       string    `json:"winnerId,omitempty"`
	Ply            int       `json:"ply"`
	Position       string    `json:"position"`
	WhiteRemaining int64     `json:"whiteRemaining"`
	BlackRemaining int64     `json:"blackRemaining"`
	CompletedAt    time.Time `json:"completedAt"`
}

// DrawOfferPayload is emitted when a draw is offered or declined.
type DrawOfferPayload struct {
	MatchID  string `json:"matchId"`
	PlayerID string `json:"playerId"`
	Ply      int    `json:"ply"`
}

// ClockSessionPayload is broadcast on every change to a shared clock.
// Times are in milliseconds.
type ClockSessionPayload struct {
	SessionID      string    `json:"sessionId"`
	WhiteTime      int64     `json:"whiteTime"`
	BlackTime      int64     `json:"blackTime"`
	IsWhiteTurn    bool      `json:"isWhiteTurn"`
	IsPaused       bool      `json:"isPaused"`
	WhiteMoves     int       `json:"whiteMoves"`
	BlackMoves     int       `json:"blackMoves"`
	Result         string    `json:"result"`
	Started        bool      `json:"started"`
	IsActive       bool      `json:"isActive"`
	GuestConnected bool      `json:"guestConnected"`
	Version        int64     `json:"version"`
	ServerTime     time.Time `json:"serverTime"`
}

// Millis converts a duration to whole milliseconds for the wire.
func Millis(d time.Duration) int64 {
	return d.Milliseconds()
}
