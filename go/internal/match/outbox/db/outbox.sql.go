package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type MatchOutbox struct {
	ID          uuid.UUID             `json:"id"`
	AggregateID string                `json:"aggregate_id"`
	Topic       string                `json:"topic"`
	EventType   string                `json:"event_type"`
	Payload     json.RawMessage       `json:"payload"`
	Headers     pqtype.NullRawMessage `json:"headers"`
	CreatedAt   time.Time             `json:"created_at"`
	SentAt      sql.NullTime          `json:"sent_at"`
}

const outboxColumns = `id, aggregate_id, topic, event_type, payload, headers, created_at, sent_at`

func scanOutbox(row interface{ Scan(...interface{}) error }) (MatchOutbox, error) {
	var i MatchOutbox
	err := row.Scan(
		&i.ID,
		&i.AggregateID,
		&i.Topic,
		&i.EventType,
		&i.Payload,
		&i.Headers,
		&i.CreatedAt,
		&i.SentAt,
	)
	return i, err
}

const insertOutboxEvent = `-- name: InsertOutboxEvent :exec
INSERT INTO match_outbox (id, aggregate_id, topic, event_type, payload, headers, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

type InsertOutboxEventParams struct {
	ID          uuid.UUID             `json:"id"`
	AggregateID string                `json:"aggregate_id"`
	Topic       string                `json:"topic"`
	EventType   string                `json:"event_type"`
	Payload     json.RawMessage       `json:"payload"`
	Headers     pqtype.NullRawMessage `json:"headers"`
	CreatedAt   time.Time             `json:"created_at"`
}

func (q *Queries) InsertOutboxEvent(ctx context.Context, arg InsertOutboxEventParams) error {
	_, err := q.db.ExecContext(ctx, insertOutboxEvent,
		arg.ID,
		arg.AggregateID,
		arg.Topic,
		arg.EventType,
		arg.Payload,
		arg.Headers,
		arg.CreatedAt,
	)
	return err
}

const fetchUnsentOutbox = `-- name: FetchUnsentOutbox :many
SELECT ` + outboxColumns + `
FROM match_outbox
WHERE sent_at IS NULL
ORDER BY created_at
LIMIT $1
`

func (q *Queries) FetchUnsentOutbox(ctx context.Context, limit int32) ([]MatchOutbox, error) {
	rows, err := q.db.QueryContext(ctx, fetchUnsentOutbox, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MatchOutbox
	for rows.Next() {
		i, err := scanOutbox(rows)
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

const fetchOutboxByID = `-- name: FetchOutboxByID :one
SELECT ` + outboxColumns + `
FROM match_outbox
WHERE id = $1 AND sent_at IS NULL
`

func (q *Queries) FetchOutboxByID(ctx context.Context, id uuid.UUID) (MatchOutbox, error) {
	row := q.db.QueryRowContext(ctx, fetchOutboxByID, id)
	return scanOutbox(row)
}

const markOutboxSent = `-- name: MarkOutboxSent :exec
UPDATE match_outbox
SET sent_at = NOW()
WHERE id = $1
`

func (q *Queries) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, markOutboxSent, id)
	return err
}

const deleteSentOutbox = `-- name: DeleteSentOutbox :execrows
DELETE FROM match_outbox
WHERE sent_at IS NOT NULL AND sent_at < $1
`

func (q *Queries) DeleteSentOutbox(ctx context.Context, before time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteSentOutbox, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const countUnsentOutbox = `-- name: CountUnsentOutbox :one
SELECT COUNT(*) FROM match_outbox
WHERE sent_at IS NULL
`

func (q *Queries) CountUnsentOutbox(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countUnsentOutbox).Scan(&count)
	return count, err
}
