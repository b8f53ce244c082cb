package models

import (
	"time"

	"github.com/google/uuid"
)

// Side identifies a player's color.
type Side string

const (
	SideWhite Side = "white"
	SideBlack Side = "black"
)

// Opponent returns the other side.
func (s Side) Opponent() Side {
	if s == SideWhite {
		return SideBlack
	}
	return SideWhite
}

// Valid reports whether s is one of the two sides.
func (s Side) Valid() bool {
	return s == SideWhite || s == SideBlack
}

// SideForPly returns the side to move after ply half-moves have been played.
func SideForPly(ply int) Side {
	if ply%2 == 0 {
		return SideWhite
	}
	return SideBlack
}

// MatchStatus defines the lifecycle state of a match.
type MatchStatus string

const (
	MatchStatusWaiting   MatchStatus = "waiting"
	MatchStatusActive    MatchStatus = "active"
	MatchStatusCompleted MatchStatus = "completed"
)

// MatchResult defines how a completed match ended.
type MatchResult string

const (
	MatchResultCheckmate   MatchResult = "checkmate"
	MatchResultResignation MatchResult = "resignation"
	MatchResultTimeout     MatchResult = "timeout"
	MatchResultDraw        MatchResult = "draw"
	MatchResultAborted     MatchResult = "aborted"
)

// StartingPosition is the standard initial position in FEN.
const StartingPosition = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Match is the authoritative record of a single game between two players.
type Match struct {
	ID              uuid.UUID     `json:"id"`
	WhiteID         *string       `json:"white_id,omitempty"`
	BlackID         *string       `json:"black_id,omitempty"`
	Status          MatchStatus   `json:"status"`
	CurrentPosition string        `json:"current_position"`
	Turn            Side          `json:"turn"`
	PlyCount        int           `json:"ply_count"`
	TimeControl     int           `json:"time_control"` // base seconds per side
	Increment       int           `json:"increment"`    // seconds added per move
	WhiteRemaining  time.Duration `json:"white_remaining"`
	BlackRemaining  time.Duration `json:"black_remaining"`
	LastMoveAt      *time.Time    `json:"last_move_at,omitempty"`
	Result          *MatchResult  `json:"result,omitempty"`
	WinnerID        *string       `json:"winner_id,omitempty"`
	DrawOfferedBy   *string       `json:"draw_offered_by,omitempty"`
	NextDeadline    *time.Time    `json:"next_deadline,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
}

// SideOf returns the side userID plays in this match.
func (m *Match) SideOf(userID string) (Side, bool) {
	if m.WhiteID != nil && *m.WhiteID == userID {
		return SideWhite, true
	}
	if m.BlackID != nil && *m.BlackID == userID {
		return SideBlack, true
	}
	return "", false
}

// PlayerID returns the user bound to side, or "" when the seat is open.
func (m *Match) PlayerID(side Side) string {
	switch side {
	case SideWhite:
		if m.WhiteID != nil {
			return *m.WhiteID
		}
	case SideBlack:
		if m.BlackID != nil {
			return *m.BlackID
		}
	}
	return ""
}

// IsParticipant reports whether userID is seated in the match.
func (m *Match) IsParticipant(userID string) bool {
	_, ok := m.SideOf(userID)
	return ok
}

// Remaining returns the stored remaining time of side.
func (m *Match) Remaining(side Side) time.Duration {
	if side == SideWhite {
		return m.WhiteRemaining
	}
	return m.BlackRemaining
}

// Clone returns a deep copy safe to mutate.
func (m *Match) Clone() *Match {
	c := *m
	c.WhiteID = cloneString(m.WhiteID)
	c.BlackID = cloneString(m.BlackID)
	c.WinnerID = cloneString(m.WinnerID)
	c.DrawOfferedBy = cloneString(m.DrawOfferedBy)
	c.LastMoveAt = cloneTime(m.LastMoveAt)
	c.NextDeadline = cloneTime(m.NextDeadline)
	c.CompletedAt = cloneTime(m.CompletedAt)
	if m.Result != nil {
		r := *m.Result
		c.Result = &r
	}
	return &c
}

// MoveFlags describe the position reached by a move.
type MoveFlags struct {
	Check     bool `json:"check"`
	Checkmate bool `json:"checkmate"`
	Stalemate bool `json:"stalemate"`
	Draw      bool `json:"draw"`
}

// Move is one accepted half-move. PlyNumber is contiguous from 0 within a match.
type Move struct {
	ID            uuid.UUID `json:"id"`
	MatchID       uuid.UUID `json:"match_id"`
	PlyNumber     int       `json:"ply_number"`
	PlayerID      string    `json:"player_id"`
	Notation      string    `json:"notation"` // UCI, e.g. e2e4 or e7e8q
	SAN           string    `json:"san"`
	PositionAfter string    `json:"position_after"`
	Flags         MoveFlags `json:"flags"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
