package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/gambit/go/internal/match/outbox/db"
	"github.com/mcdev12/gambit/go/internal/models"
	"github.com/mcdev12/gambit/go/internal/sqlutil"
)

type Repository struct {
	queries *db.Queries
}

func NewRepository(queries *db.Queries) *Repository {
	return &Repository{
		queries: queries,
	}
}

var _ OutboxRepository = (*Repository)(nil)

func (r *Repository) InsertOutboxEvent(ctx context.Context, event OutboxEvent) error {
	var headers json.RawMessage
	if len(event.Headers) > 0 {
		b, err := json.Marshal(event.Headers)
		if err != nil {
			return fmt.Errorf("failed to marshal outbox headers: %w", err)
		}
		headers = b
	}
	err := r.queries.InsertOutboxEvent(ctx, db.InsertOutboxEventParams{
		ID:          event.ID,
		AggregateID: event.AggregateID,
		Topic:       event.Topic,
		EventType:   event.EventType,
		Payload:     event.Payload,
		Headers:     sqlutil.ToNullRawMessage(headers),
		CreatedAt:   event.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to insert %s outbox event: %w", event.EventType, err)
	}
	return nil
}

func (r *Repository) FetchUnsentOutbox(ctx context.Context, limit int32) ([]OutboxEvent, error) {
	rows, err := r.queries.FetchUnsentOutbox(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}

	events := make([]OutboxEvent, 0, len(rows))
	for _, row := range rows {
		e, err := dbOutboxToModel(row)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func (r *Repository) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	if err := r.queries.MarkOutboxSent(ctx, id); err != nil {
		return fmt.Errorf("failed to mark outbox event as sent: %w", err)
	}
	return nil
}

func (r *Repository) FetchOutboxByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error) {
	row, err := r.queries.FetchOutboxByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("outbox event %s not found or already sent: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch outbox event by ID: %w", err)
	}
	e, err := dbOutboxToModel(row)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *Repository) DeleteSentOutbox(ctx context.Context, before time.Time) (int64, error) {
	n, err := r.queries.DeleteSentOutbox(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sent outbox events: %w", err)
	}
	return n, nil
}

func (r *Repository) CountUnsentOutbox(ctx context.Context) (int64, error) {
	n, err := r.queries.CountUnsentOutbox(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count unsent outbox events: %w", err)
	}
	return n, nil
}

func dbOutboxToModel(row db.MatchOutbox) (OutboxEvent, error) {
	e := OutboxEvent{
		ID:          row.ID,
		AggregateID: row.AggregateID,
		Topic:       row.Topic,
		EventType:   row.EventType,
		Payload:     row.Payload,
		CreatedAt:   row.CreatedAt,
		SentAt:      sqlutil.FromSqlTime(row.SentAt),
	}
	if raw := sqlutil.FromNullRawMessage(row.Headers); len(raw) > 0 {
		if err := json.Unmarshal(raw, &e.Headers); err != nil {
			return OutboxEvent{}, fmt.Errorf("failed to unmarshal headers of outbox event %s: %w", row.ID, err)
		}
	}
	return e, nil
}
