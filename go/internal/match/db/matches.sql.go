package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const matchColumns = `id, white_id, black_id, status, current_position, turn, ply_count, time_control, increment,
    white_remaining_ms, black_remaining_ms, last_move_at, result, winner_id, draw_offered_by, next_deadline,
    created_at, updated_at, completed_at`

func scanMatch(row interface{ Scan(...interface{}) error }) (Match, error) {
	var i Match
	err := row.Scan(
		&i.ID,
		&i.WhiteID,
		&i.BlackID,
		&i.Status,
		&i.CurrentPosition,
		&i.Turn,
		&i.PlyCount,
		&i.TimeControl,
		&i.Increment,
		&i.WhiteRemainingMs,
		&i.BlackRemainingMs,
		&i.LastMoveAt,
		&i.Result,
		&i.WinnerID,
		&i.DrawOfferedBy,
		&i.NextDeadline,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.CompletedAt,
	)
	return i, err
}

const createMatch = `-- name: CreateMatch :one
INSERT INTO matches (` + matchColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
RETURNING ` + matchColumns

type CreateMatchParams struct {
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

func (q *Queries) CreateMatch(ctx context.Context, arg CreateMatchParams) (Match, error) {
	row := q.db.QueryRowContext(ctx, createMatch,
		arg.ID,
		arg.WhiteID,
		arg.BlackID,
		arg.Status,
		arg.CurrentPosition,
		arg.Turn,
		arg.PlyCount,
		arg.TimeControl,
		arg.Increment,
		arg.WhiteRemainingMs,
		arg.BlackRemainingMs,
		arg.LastMoveAt,
		arg.Result,
		arg.WinnerID,
		arg.DrawOfferedBy,
		arg.NextDeadline,
		arg.CreatedAt,
		arg.UpdatedAt,
		arg.CompletedAt,
	)
	return scanMatch(row)
}

const getMatch = `-- name: GetMatch :one
SELECT ` + matchColumns + `
FROM matches
WHERE id = $1`

func (q *Queries) GetMatch(ctx context.Context, id uuid.UUID) (Match, error) {
	row := q.db.QueryRowContext(ctx, getMatch, id)
	return scanMatch(row)
}

const getOpenMatchForUser = `-- name: GetOpenMatchForUser :one
SELECT ` + matchColumns + `
FROM matches
WHERE status IN ('waiting', 'active')
  AND (white_id = $1 OR black_id = $1)
ORDER BY created_at DESC
LIMIT 1`

func (q *Queries) GetOpenMatchForUser(ctx context.Context, userID sql.NullString) (Match, error) {
	row := q.db.QueryRowContext(ctx, getOpenMatchForUser, userID)
	return scanMatch(row)
}

const updateMatchIfCurrent = `-- name: UpdateMatchIfCurrent :execrows
UPDATE matches
SET white_id           = $4,
    black_id           = $5,
    status             = $6,
    current_position   = $7,
    turn               = $8,
    ply_count          = $9,
    white_remaining_ms = $10,
    black_remaining_ms = $11,
    last_move_at       = $12,
    result             = $13,
    winner_id          = $14,
    draw_offered_by    = $15,
    next_deadline      = $16,
    updated_at         = $17,
    completed_at       = $18
WHERE id = $1
  AND ply_count = $2
  AND status = $3`

type UpdateMatchIfCurrentParams struct {
	ID               uuid.UUID      `json:"id"`
	ExpectedPly      int32          `json:"expected_ply"`
	ExpectedStatus   string         `json:"expected_status"`
	WhiteID          sql.NullString `json:"white_id"`
	BlackID          sql.NullString `json:"black_id"`
	Status           string         `json:"status"`
	CurrentPosition  string         `json:"current_position"`
	Turn             string         `json:"turn"`
	PlyCount         int32          `json:"ply_count"`
	WhiteRemainingMs int64          `json:"white_remaining_ms"`
	BlackRemainingMs int64          `json:"black_remaining_ms"`
	LastMoveAt       sql.NullTime   `json:"last_move_at"`
	Result           sql.NullString `json:"result"`
	WinnerID         sql.NullString `json:"winner_id"`
	DrawOfferedBy    sql.NullString `json:"draw_offered_by"`
	NextDeadline     sql.NullTime   `json:"next_deadline"`
	UpdatedAt        time.Time      `json:"updated_at"`
	CompletedAt      sql.NullTime   `json:"completed_at"`
}

func (q *Queries) UpdateMatchIfCurrent(ctx context.Context, arg UpdateMatchIfCurrentParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateMatchIfCurrent,
		arg.ID,
		arg.ExpectedPly,
		arg.ExpectedStatus,
		arg.WhiteID,
		arg.BlackID,
		arg.Status,
		arg.CurrentPosition,
		arg.Turn,
		arg.PlyCount,
		arg.WhiteRemainingMs,
		arg.BlackRemainingMs,
		arg.LastMoveAt,
		arg.Result,
		arg.WinnerID,
		arg.DrawOfferedBy,
		arg.NextDeadline,
		arg.UpdatedAt,
		arg.CompletedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listOverdueMatches = `-- name: ListOverdueMatches :many
SELECT id
FROM matches
WHERE status = 'active'
  AND next_deadline IS NOT NULL
  AND next_deadline <= $1
ORDER BY next_deadline
LIMIT $2`

type ListOverdueMatchesParams struct {
	Now   time.Time `json:"now"`
	Limit int32     `json:"limit"`
}

func (q *Queries) ListOverdueMatches(ctx context.Context, arg ListOverdueMatchesParams) ([]uuid.UUID, error) {
	rows, err := q.db.QueryContext(ctx, listOverdueMatches, arg.Now, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		items = append(items, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listActiveMatches = `-- name: ListActiveMatches :many
SELECT ` + matchColumns + `
FROM matches
WHERE status = 'active'
ORDER BY created_at
LIMIT $1`

func (q *Queries) ListActiveMatches(ctx context.Context, limit int32) ([]Match, error) {
	rows, err := q.db.QueryContext(ctx, listActiveMatches, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Match
	for rows.Next() {
		i, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertMove = `-- name: InsertMove :exec
INSERT INTO moves (id, match_id, ply_number, player_id, notation, san, position_after, flags, submitted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

type InsertMoveParams struct {
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

func (q *Queries) InsertMove(ctx context.Context, arg InsertMoveParams) error {
	_, err := q.db.ExecContext(ctx, insertMove,
		arg.ID,
		arg.MatchID,
		arg.PlyNumber,
		arg.PlayerID,
		arg.Notation,
		arg.San,
		arg.PositionAfter,
		arg.Flags,
		arg.SubmittedAt,
	)
	return err
}

const listMoves = `-- name: ListMoves :many
SELECT id, match_id, ply_number, player_id, notation, san, position_after, flags, submitted_at
FROM moves
WHERE match_id = $1
ORDER BY ply_number`

func (q *Queries) ListMoves(ctx context.Context, matchID uuid.UUID) ([]Move, error) {
	rows, err := q.db.QueryContext(ctx, listMoves, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Move
	for rows.Next() {
		var i Move
		if err := rows.Scan(
			&i.ID,
			&i.MatchID,
			&i.PlyNumber,
			&i.PlayerID,
			&i.Notation,
			&i.San,
			&i.PositionAfter,
			&i.Flags,
			&i.SubmittedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
