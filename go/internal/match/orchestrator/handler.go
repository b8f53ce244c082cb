package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/match/events"
)

// HandleEvent routes a match event to the timer it affects. Events for
// other topics are ignored.
func (o *Orchestrator) HandleEvent(ctx context.Context, evt events.Event) error {
	matchID, ok := events.MatchIDFromTopic(evt.Topic)
	if !ok {
		return nil
	}

	log.Debug().
		Str("event_type", string(evt.Type)).
		Str("match_id", matchID.String()).
		Msg("handling domain event")

	switch evt.Type {
	case events.EventTypeMatchStarted:
		var p events.MatchStartedPayload
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			return fmt.Errorf("failed to unmarshal MatchStarted payload: %w", err)
		}
		if p.GraceDeadline.IsZero() {
			return o.Schedule(ctx, matchID)
		}
		o.scheduleAt(ctx, matchID, p.GraceDeadline)
		return nil

	case events.EventTypeMoveMade:
		return o.Schedule(ctx, matchID)

	case events.EventTypeMatchCompleted:
		o.cancelTimer(matchID)
		log.Debug().Str("match_id", matchID.String()).Msg("match completed - timer cleared")
		return nil

	default:
		return nil
	}
}
