package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/models"
)

// Run starts the worker pool and the sweeper, then processes events from
// Emit and, when connected, JetStream until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	log.Info().
		Str("instance", o.instanceID).
		Int("workers", o.numWorkers).
		Bool("jetstream", o.consumer != nil).
		Msg("match orchestrator started")

	var msgCh chan jetstream.Msg
	if o.consumer != nil {
		msgCh = make(chan jetstream.Msg, eventChannelBufferSize)
		consumeCtx, err := o.consumer.Consume(func(msg jetstream.Msg) {
			select {
			case msgCh <- msg:
			case <-ctx.Done():
				_ = msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("start JetStream consumer: %w", err)
		}
		defer consumeCtx.Stop()
	}

	var wg sync.WaitGroup
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	for i := 0; i < o.numWorkers; i++ {
		wg.Add(1)
		go o.worker(workerCtx, &wg, i)
	}
	defer func() {
		log.Info().Str("instance", o.instanceID).Msg("shutting down workers")
		cancelWorkers()
		wg.Wait()
		o.cancelAll()
		log.Info().Str("instance", o.instanceID).Msg("all workers shut down")
	}()

	sched, err := o.startSweeper(ctx)
	if err != nil {
		return err
	}
	if sched != nil {
		defer func() {
			if err := sched.Shutdown(); err != nil {
				log.Error().Err(err).Msg("failed to stop sweeper")
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("instance", o.instanceID).Msg("orchestrator shutdown requested")
			return nil
		case evt := <-o.eventCh:
			if err := o.HandleEvent(ctx, evt); err != nil {
				log.Error().Err(err).Str("event_id", evt.ID).Msg("failed to process event")
			}
		case msg := <-msgCh:
			if err := o.processMessage(ctx, msg); err != nil {
				log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to process message")
				if nakErr := msg.Nak(); nakErr != nil {
					log.Error().Err(nakErr).Msg("failed to NAK message")
				}
			} else if ackErr := msg.Ack(); ackErr != nil {
				log.Error().Err(ackErr).Msg("failed to ACK message")
			}
		}
	}
}

// worker enforces clocks for matches taken from the work channel.
func (o *Orchestrator) worker(ctx context.Context, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			log.Debug().
				Str("instance", o.instanceID).
				Int("worker_id", workerID).
				Msg("worker shutting down")
			return
		case matchID := <-o.workCh:
			if err := o.handleDeadline(ctx, matchID); err != nil {
				log.Error().
					Err(err).
					Str("match_id", matchID.String()).
					Str("instance", o.instanceID).
					Int("worker_id", workerID).
					Msg("clock enforcement failed")
			}
		}
	}
}

// handleDeadline enforces the clock of one match. When the match is still
// running, the fresh deadline is scheduled instead.
func (o *Orchestrator) handleDeadline(ctx context.Context, matchID uuid.UUID) error {
	o.inFlightMu.Lock()
	if o.inFlight[matchID] {
		o.inFlightMu.Unlock()
		log.Debug().Str("match_id", matchID.String()).Msg("already in flight - skipping")
		return nil
	}
	o.inFlight[matchID] = true
	o.inFlightMu.Unlock()

	defer func() {
		o.inFlightMu.Lock()
		delete(o.inFlight, matchID)
		o.inFlightMu.Unlock()
	}()

	claim, err := o.service.EnforceClock(ctx, matchID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			o.cancelTimer(matchID)
			return nil
		}
		return fmt.Errorf("failed to enforce clock: %w", err)
	}

	if claim.Applied {
		o.cancelTimer(matchID)
		log.Info().
			Str("match_id", matchID.String()).
			Str("verdict", claim.Verdict).
			Str("instance", o.instanceID).
			Msg("clock enforced")
		return nil
	}

	m := claim.Match
	if m == nil || m.Status != models.MatchStatusActive || m.NextDeadline == nil {
		o.cancelTimer(matchID)
		return nil
	}
	if !m.NextDeadline.After(o.clock.Now()) {
		// a move raced the enforcement; its event reschedules
		return nil
	}
	o.scheduleAt(ctx, matchID, *m.NextDeadline)
	return nil
}
