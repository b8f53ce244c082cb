package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/match"
	"github.com/mcdev12/gambit/go/internal/match/events"
)

/*
The orchestrator is the server-side referee for match clocks. Players can
claim a flag themselves, but a player who walks away never will, so the
orchestrator keeps one timer per active match and enforces the clock when it
fires.

EVENT FLOW:
1. MatchStarted  -> timer at the grace deadline
2. MoveMade      -> timer replaced with the deadline of the side now to move
3. MatchCompleted -> timer cancelled
4. Timer fires   -> worker calls EnforceClock as the system requester
5. Sweeper       -> every SweepInterval, overdue matches are enqueued too, which
                    covers timers lost to a restart or a dropped event

Events arrive from JetStream in the split deployment, or straight from the
match app through Emit when everything runs in one process.
*/

const (
	consumerName           = "match-orchestrator"
	consumerMaxDeliver     = 5
	consumerAckWait        = 30 * time.Second
	consumerMaxAckPending  = 256
	eventChannelBufferSize = 256
)

// MatchService is what the orchestrator needs from the match service.
// *match.Client satisfies it, as does LocalService.
type MatchService interface {
	EnforceClock(ctx context.Context, matchID uuid.UUID) (*match.ClockClaim, error)
	GetMatch(ctx context.Context, matchID uuid.UUID) (*match.Snapshot, error)
	FetchOverdueMatches(ctx context.Context, limit int) ([]uuid.UUID, error)
}

// LocalService adapts an in-process App. App may be set after construction.
type LocalService struct {
	App *match.App
}

func (s *LocalService) EnforceClock(ctx context.Context, matchID uuid.UUID) (*match.ClockClaim, error) {
	return s.App.EnforceClock(ctx, matchID, match.SystemRequester)
}

func (s *LocalService) GetMatch(ctx context.Context, matchID uuid.UUID) (*match.Snapshot, error) {
	return s.App.GetMatch(ctx, matchID)
}

func (s *LocalService) FetchOverdueMatches(ctx context.Context, limit int) ([]uuid.UUID, error) {
	return s.App.FetchOverdueMatches(ctx, limit)
}

type Config struct {
	Workers int
	// SweepInterval is how often overdue matches are swept. Zero disables the sweep.
	SweepInterval time.Duration
	SweepBatch    int
	Clock         clockwork.Clock
}

func DefaultConfig() Config {
	return Config{
		Workers:       4,
		SweepInterval: 15 * time.Second,
		SweepBatch:    200,
	}
}

// deadlineTimer is a pending deadline and the channel that releases its goroutine.
type deadlineTimer struct {
	timer    clockwork.Timer
	deadline time.Time
	stop     chan struct{}
}

type Orchestrator struct {
	service       MatchService
	clock         clockwork.Clock
	instanceID    string
	numWorkers    int
	sweepInterval time.Duration
	sweepBatch    int
	jobs          []Job

	workCh  chan uuid.UUID
	eventCh chan events.Event

	activeTimers   map[uuid.UUID]*deadlineTimer
	activeTimersMu sync.Mutex

	// Track in-flight work to prevent duplicate processing
	inFlight   map[uuid.UUID]bool
	inFlightMu sync.Mutex

	nc       *nats.Conn
	consumer jetstream.Consumer
}

// NewOrchestrator creates an orchestrator with a worker pool of cfg.Workers.
func NewOrchestrator(service MatchService, cfg Config) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = DefaultConfig().SweepBatch
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Orchestrator{
		service:       service,
		clock:         cfg.Clock,
		instanceID:    uuid.New().String()[:8], // short ID for logging
		numWorkers:    cfg.Workers,
		sweepInterval: cfg.SweepInterval,
		sweepBatch:    cfg.SweepBatch,
		workCh:        make(chan uuid.UUID, cfg.Workers*16),
		eventCh:       make(chan events.Event, eventChannelBufferSize),
		activeTimers:  make(map[uuid.UUID]*deadlineTimer),
		inFlight:      make(map[uuid.UUID]bool),
	}
}

// Emit implements match.Emitter so an in-process match app can feed the
// orchestrator directly. Events are queued for Run and never block the caller.
func (o *Orchestrator) Emit(_ context.Context, topic string, eventType events.EventType, payload any) error {
	if _, ok := events.MatchIDFromTopic(topic); !ok {
		return nil
	}
	evt, err := events.NewEvent(topic, eventType, o.clock.Now(), payload)
	if err != nil {
		return err
	}
	select {
	case o.eventCh <- evt:
	default:
		log.Warn().
			Str("topic", topic).
			Str("event_type", string(eventType)).
			Msg("orchestrator event queue full, leaving it to the sweeper")
	}
	return nil
}

// ActiveTimers reports how many matches have a pending deadline.
func (o *Orchestrator) ActiveTimers() int {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()
	return len(o.activeTimers)
}

// Deadline returns the pending deadline for matchID, if any.
func (o *Orchestrator) Deadline(matchID uuid.UUID) (time.Time, bool) {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()
	t, ok := o.activeTimers[matchID]
	if !ok {
		return time.Time{}, false
	}
	return t.deadline, true
}

// Close closes the NATS connection, if one was opened.
func (o *Orchestrator) Close() error {
	if o.nc != nil {
		o.nc.Close()
	}
	return nil
}
