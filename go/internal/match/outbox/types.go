package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxEvent is one row of match_outbox. Payload holds a complete
// events.Event envelope, so relays forward it without decoding.
type OutboxEvent struct {
	ID          uuid.UUID         `json:"id"`
	AggregateID string            `json:"aggregate_id"`
	Topic       string            `json:"topic"`
	EventType   string            `json:"event_type"`
	Payload     json.RawMessage   `json:"payload"`
	Headers     map[string]string `json:"headers,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	SentAt      *time.Time        `json:"sent_at,omitempty"`
}

// Publisher delivers an outbox event to the bus.
type Publisher interface {
	Publish(ctx context.Context, event OutboxEvent) error
}
