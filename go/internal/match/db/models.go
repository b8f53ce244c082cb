package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type Match struct {
	ID               uuid.UUID      `json:"id"`
	WhiteID          sql.NullString `json:"white_id"`
	BlackID          sql.NullString `json:"black_id"`
	Status           string         `json:"status"`
	CurrentPosition  string         `json:"current_position"`
	Turn             string         `json:"turn"`
	PlyCount         int32          `json:"ply_count"`
	TimeControl      int32          `json:"time_control"`
	Increment        int32          `json:"increment"`
	WhiteRemainingMs int64          `json:"white_remaining_ms"`
	BlackRemainingMs int64          `json:"black_remaining_ms"`
	LastMoveAt       sql.NullTime   `json:"last_move_at"`
	Result           sql.NullString `json:"result"`
	WinnerID         sql.NullString `json:"winner_id"`
	DrawOfferedBy    sql.NullString `json:"draw_offered_by"`
	NextDeadline     sql.NullTime   `json:"next_deadline"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	CompletedAt      sql.NullTime   `json:"completed_at"`
}

type Move struct {
	ID            uuid.UUID             `json:"id"`
	MatchID       uuid.UUID             `json:"match_id"`
	PlyNumber     int32                 `json:"ply_number"`
	PlayerID      string                `json:"player_id"`
	Notation      string                `json:"notation"`
	San           string                `json:"san"`
	PositionAfter string                `json:"position_after"`
	Flags         pqtype.NullRawMessage `json:"flags"`
	SubmittedAt   time.Time             `json:"submitted_at"`
}
