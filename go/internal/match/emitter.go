package match

import (
	"context"
	"errors"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/gambit/go/internal/broadcast"
	"github.com/mcdev12/gambit/go/internal/match/events"
)

// Emitter publishes domain events for a topic.
type Emitter interface {
	Emit(ctx context.Context, topic string, eventType events.EventType, payload any) error
}

// NopEmitter drops every event.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, string, events.EventType, any) error { return nil }

// HubEmitter delivers events to in-process subscribers.
type HubEmitter struct {
	hub   *broadcast.Hub[events.Event]
	clock clockwork.Clock
}

// NewHubEmitter wraps hub.
func NewHubEmitter(hub *broadcast.Hub[events.Event], clk clockwork.Clock) *HubEmitter {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &HubEmitter{hub: hub, clock: clk}
}

func (e *HubEmitter) Emit(_ context.Context, topic string, eventType events.EventType, payload any) error {
	evt, err := events.NewEvent(topic, eventType, e.clock.Now(), payload)
	if err != nil {
		return err
	}
	e.hub.Publish(topic, evt)
	return nil
}

// MultiEmitter fans an event out to several emitters and joins their errors.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(ctx context.Context, topic string, eventType events.EventType, payload any) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(ctx, topic, eventType, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
