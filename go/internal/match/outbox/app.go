package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/match/events"
)

// OutboxRepository defines what the app layer needs from the repository
type OutboxRepository interface {
	InsertOutboxEvent(ctx context.Context, event OutboxEvent) error
	FetchUnsentOutbox(ctx context.Context, limit int32) ([]OutboxEvent, error)
	MarkOutboxSent(ctx context.Context, id uuid.UUID) error
	FetchOutboxByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error)
	DeleteSentOutbox(ctx context.Context, before time.Time) (int64, error)
	CountUnsentOutbox(ctx context.Context) (int64, error)
}

// App handles outbox business logic
type App struct {
	repo  OutboxRepository
	clock clockwork.Clock
}

// NewApp creates a new outbox App
func NewApp(repo OutboxRepository, clk clockwork.Clock) *App {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &App{
		repo:  repo,
		clock: clk,
	}
}

// Emit records a domain event for relay to the bus. It satisfies match.Emitter.
func (a *App) Emit(ctx context.Context, topic string, eventType events.EventType, payload any) error {
	evt, err := events.NewEvent(topic, eventType, a.clock.Now(), payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal %s envelope: %w", eventType, err)
	}
	id, err := uuid.Parse(evt.ID)
	if err != nil {
		return fmt.Errorf("invalid event id %q: %w", evt.ID, err)
	}
	return a.InsertEvent(ctx, OutboxEvent{
		ID:          id,
		AggregateID: aggregateID(topic),
		Topic:       topic,
		EventType:   string(eventType),
		Payload:     data,
		Headers:     map[string]string{"Topic": topic},
		CreatedAt:   evt.Timestamp,
	})
}

// InsertEvent inserts an event into the outbox
func (a *App) InsertEvent(ctx context.Context, event OutboxEvent) error {
	if err := a.validateEventPayload(event.Payload); err != nil {
		return fmt.Errorf("invalid %s payload: %w", event.EventType, err)
	}

	if err := a.repo.InsertOutboxEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to insert %s event: %w", event.EventType, err)
	}

	log.Info().
		Str("aggregate_id", event.AggregateID).
		Str("event_type", event.EventType).
		Msg("outbox event inserted")

	return nil
}

// FetchUnsentEvents fetches unsent outbox events
func (a *App) FetchUnsentEvents(ctx context.Context, limit int32) ([]OutboxEvent, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than 0")
	}

	events, err := a.repo.FetchUnsentOutbox(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent events: %w", err)
	}

	if len(events) > 0 {
		log.Debug().
			Int("count", len(events)).
			Msg("fetched unsent outbox events")
	}

	return events, nil
}

// MarkEventSent marks an outbox event as sent
func (a *App) MarkEventSent(ctx context.Context, eventID uuid.UUID) error {
	if err := a.repo.MarkOutboxSent(ctx, eventID); err != nil {
		return fmt.Errorf("failed to mark event as sent: %w", err)
	}

	log.Debug().
		Str("event_id", eventID.String()).
		Msg("marked outbox event as sent")

	return nil
}

// GetEventByID fetches a specific unsent outbox event by ID
func (a *App) GetEventByID(ctx context.Context, eventID uuid.UUID) (*OutboxEvent, error) {
	event, err := a.repo.FetchOutboxByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch event by ID: %w", err)
	}

	return event, nil
}

// ProcessUnsentEvents runs processor over one batch of unsent events and
// marks each one sent once processor succeeds. It returns how many were sent.
func (a *App) ProcessUnsentEvents(ctx context.Context, batchSize int32, processor func(event OutboxEvent) error) (int, error) {
	events, err := a.FetchUnsentEvents(ctx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch unsent events: %w", err)
	}

	processedCount := 0
	errorCount := 0

	for _, event := range events {
		if err := processor(event); err != nil {
			log.Error().
				Err(err).
				Str("event_id", event.ID.String()).
				Str("event_type", event.EventType).
				Msg("failed to process event")
			errorCount++
			continue
		}

		if err := a.MarkEventSent(ctx, event.ID); err != nil {
			log.Error().
				Err(err).
				Str("event_id", event.ID.String()).
				Msg("failed to mark event as sent after processing")
			errorCount++
			continue
		}

		processedCount++
	}

	if processedCount > 0 || errorCount > 0 {
		log.Info().
			Int("processed", processedCount).
			Int("errors", errorCount).
			Int("total", len(events)).
			Msg("processed unsent events batch")
	}

	return processedCount, nil
}

// PurgeSent deletes events relayed more than retention ago.
func (a *App) PurgeSent(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := a.repo.DeleteSentOutbox(ctx, a.clock.Now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Info().Int64("deleted", n).Msg("purged sent outbox events")
	}
	return n, nil
}

// PendingCount returns how many events are waiting to be relayed.
func (a *App) PendingCount(ctx context.Context) (int64, error) {
	return a.repo.CountUnsentOutbox(ctx)
}

// validateEventPayload validates that the event payload is not empty
func (a *App) validateEventPayload(payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("event payload cannot be empty")
	}
	return nil
}

// aggregateID is the part of a topic after its kind prefix, such as a match id.
func aggregateID(topic string) string {
	if _, rest, ok := strings.Cut(topic, "."); ok {
		return rest
	}
	return topic
}
