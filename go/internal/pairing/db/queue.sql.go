package db

import (
	"context"
	"time"
)

type QueueEntry struct {
	UserID      string    `json:"user_id"`
	TimeControl int32     `json:"time_control"`
	Increment   int32     `json:"increment"`
	JoinedAt    time.Time `json:"joined_at"`
}

const upsertQueueEntry = `-- name: UpsertQueueEntry :exec
INSERT INTO queue_entries (user_id, time_control, increment, joined_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO UPDATE
SET time_control = EXCLUDED.time_control,
    increment    = EXCLUDED.increment,
    joined_at    = EXCLUDED.joined_at`

type UpsertQueueEntryParams struct {
	UserID      string    `json:"user_id"`
	TimeControl int32     `json:"time_control"`
	Increment   int32     `json:"increment"`
	JoinedAt    time.Time `json:"joined_at"`
}

func (q *Queries) UpsertQueueEntry(ctx context.Context, arg UpsertQueueEntryParams) error {
	_, err := q.db.ExecContext(ctx, upsertQueueEntry, arg.UserID, arg.TimeControl, arg.Increment, arg.JoinedAt)
	return err
}

const getQueueEntry = `-- name: GetQueueEntry :one
SELECT user_id, time_control, increment, joined_at
FROM queue_entries
WHERE user_id = $1`

func (q *Queries) GetQueueEntry(ctx context.Context, userID string) (QueueEntry, error) {
	row := q.db.QueryRowContext(ctx, getQueueEntry, userID)
	var i QueueEntry
	err := row.Scan(&i.UserID, &i.TimeControl, &i.Increment, &i.JoinedAt)
	return i, err
}

const oldestQueueOpponent = `-- name: OldestQueueOpponent :one
SELECT user_id, time_control, increment, joined_at
FROM queue_entries
WHERE time_control = $1
  AND increment = $2
  AND user_id <> $3
ORDER BY joined_at, user_id
LIMIT 1`

type OldestQueueOpponentParams struct {
	TimeControl int32  `json:"time_control"`
	Increment   int32  `json:"increment"`
	ExcludeUser string `json:"exclude_user"`
}

func (q *Queries) OldestQueueOpponent(ctx context.Context, arg OldestQueueOpponentParams) (QueueEntry, error) {
	row := q.db.QueryRowContext(ctx, oldestQueueOpponent, arg.TimeControl, arg.Increment, arg.ExcludeUser)
	var i QueueEntry
	err := row.Scan(&i.UserID, &i.TimeControl, &i.Increment, &i.JoinedAt)
	return i, err
}

const claimQueueEntry = `-- name: ClaimQueueEntry :execrows
DELETE FROM queue_entries
WHERE user_id = $1
  AND time_control = $2
  AND increment = $3`

type ClaimQueueEntryParams struct {
	UserID      string `json:"user_id"`
	TimeControl int32  `json:"time_control"`
	Increment   int32  `json:"increment"`
}

func (q *Queries) ClaimQueueEntry(ctx context.Context, arg ClaimQueueEntryParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, claimQueueEntry, arg.UserID, arg.TimeControl, arg.Increment)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteQueueEntry = `-- name: DeleteQueueEntry :exec
DELETE FROM queue_entries
WHERE user_id = $1`

func (q *Queries) DeleteQueueEntry(ctx context.Context, userID string) error {
	_, err := q.db.ExecContext(ctx, deleteQueueEntry, userID)
	return err
}

const countQueueEntries = `-- name: CountQueueEntries :one
SELECT COUNT(*) FROM queue_entries`

func (q *Queries) CountQueueEntries(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countQueueEntries)
	var count int64
	err := row.Scan(&count)
	return count, err
}
