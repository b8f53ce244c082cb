package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/models"
)

// Schedule looks up the current deadline of matchID and arms a timer for it.
// Matches that are no longer active have their timer cancelled.
func (o *Orchestrator) Schedule(ctx context.Context, matchID uuid.UUID) error {
	snap, err := o.service.GetMatch(ctx, matchID)
	if err != nil {
		return fmt.Errorf("failed to get match: %w", err)
	}
	if snap.Match.Status != models.MatchStatusActive || snap.Deadline == nil {
		o.cancelTimer(matchID)
		return nil
	}
	o.scheduleAt(ctx, matchID, *snap.Deadline)
	return nil
}

// scheduleAt arms a one-shot timer that enqueues matchID at deadline,
// replacing any earlier timer. A deadline already due is enqueued at once.
func (o *Orchestrator) scheduleAt(ctx context.Context, matchID uuid.UUID, deadline time.Time) {
	o.activeTimersMu.Lock()
	if existing, ok := o.activeTimers[matchID]; ok && existing.deadline.Equal(deadline) {
		o.activeTimersMu.Unlock()
		log.Debug().
			Str("match_id", matchID.String()).
			Time("deadline", deadline).
			Msg("skipping duplicate schedule - already scheduled for this deadline")
		return
	}
	o.activeTimersMu.Unlock()

	duration := deadline.Sub(o.clock.Now())
	if duration <= 0 {
		o.cancelTimer(matchID)
		o.enqueue(matchID)
		return
	}

	dt := &deadlineTimer{
		timer:    o.clock.NewTimer(duration),
		deadline: deadline,
		stop:     make(chan struct{}),
	}
	o.replaceTimer(matchID, dt)

	go func(id uuid.UUID, dt *deadlineTimer) {
		select {
		case <-dt.timer.Chan():
			// only the timer still registered for id may remove itself
			o.activeTimersMu.Lock()
			if o.activeTimers[id] == dt {
				delete(o.activeTimers, id)
			}
			o.activeTimersMu.Unlock()
			o.enqueue(id)
		case <-dt.stop:
		case <-ctx.Done():
			dt.timer.Stop()
		}
	}(matchID, dt)

	log.Debug().
		Str("match_id", matchID.String()).
		Time("deadline", deadline).
		Dur("duration", duration).
		Msg("scheduled one-shot timer")
}

// enqueue hands matchID to the worker pool without blocking.
func (o *Orchestrator) enqueue(matchID uuid.UUID) {
	select {
	case o.workCh <- matchID:
		log.Debug().Str("match_id", matchID.String()).Msg("enqueued for clock enforcement")
	default:
		log.Warn().Str("match_id", matchID.String()).Msg("work channel full, leaving it to the sweeper")
	}
}

// replaceTimer installs dt for matchID, cancelling any existing timer under
// the same lock so no other timer can slip in between.
func (o *Orchestrator) replaceTimer(matchID uuid.UUID, dt *deadlineTimer) {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()

	if existing, ok := o.activeTimers[matchID]; ok {
		existing.cancel()
		log.Debug().Str("match_id", matchID.String()).Msg("replaced existing timer")
	}
	o.activeTimers[matchID] = dt
}

// cancelTimer cancels and removes the active timer for a match.
func (o *Orchestrator) cancelTimer(matchID uuid.UUID) {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()

	if existing, ok := o.activeTimers[matchID]; ok {
		existing.cancel()
		delete(o.activeTimers, matchID)
		log.Debug().Str("match_id", matchID.String()).Msg("cancelled existing timer")
	}
}

// cancelAll stops every timer; used on shutdown.
func (o *Orchestrator) cancelAll() {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()

	for id, dt := range o.activeTimers {
		dt.cancel()
		log.Debug().Str("match_id", id.String()).Msg("cancelled timer on shutdown")
	}
	o.activeTimers = make(map[uuid.UUID]*deadlineTimer)
}

// cancel stops the timer, drains a fire that raced the stop, and releases
// the waiting goroutine.
func (dt *deadlineTimer) cancel() {
	if !dt.timer.Stop() {
		select {
		case <-dt.timer.Chan():
		default:
		}
	}
	close(dt.stop)
}
