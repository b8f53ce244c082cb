package clocksession

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/match/events"
)

// DefaultSyncInterval is how often an idle device polls for state.
const DefaultSyncInterval = 500 * time.Millisecond

// StateFetcher loads the authoritative state of a session.
type StateFetcher interface {
	FetchState(ctx context.Context, code string) (events.ClockSessionPayload, error)
}

// FetchFunc adapts a function to StateFetcher.
type FetchFunc func(ctx context.Context, code string) (events.ClockSessionPayload, error)

func (f FetchFunc) FetchState(ctx context.Context, code string) (events.ClockSessionPayload, error) {
	return f(ctx, code)
}

// LocalFetcher reads state straight from an App in the same process.
func LocalFetcher(a *App) FetchFunc {
	return func(ctx context.Context, code string) (events.ClockSessionPayload, error) {
		snap, err := a.GetState(ctx, code)
		if err != nil {
			return events.ClockSessionPayload{}, err
		}
		return snap.Payload(), nil
	}
}

// Syncer keeps one device's copy of a session current. Pushed updates are
// applied as they arrive. While no clock is running it also polls, since a
// missed push would otherwise leave a paused or unstarted display stale.
// Updates are keyed by version, so replays and out-of-order arrivals are no-ops.
type Syncer struct {
	code     string
	fetcher  StateFetcher
	clock    clockwork.Clock
	interval time.Duration
	onChange func(events.ClockSessionPayload)

	mu    sync.Mutex
	state events.ClockSessionPayload
	have  bool
}

func NewSyncer(code string, fetcher StateFetcher, clk clockwork.Clock, interval time.Duration, onChange func(events.ClockSessionPayload)) *Syncer {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &Syncer{
		code:     NormalizeCode(code),
		fetcher:  fetcher,
		clock:    clk,
		interval: interval,
		onChange: onChange,
	}
}

// Apply installs p if it is newer than the current state.
func (s *Syncer) Apply(p events.ClockSessionPayload) bool {
	s.mu.Lock()
	if s.have && p.Version <= s.state.Version {
		s.mu.Unlock()
		return false
	}
	s.state = p
	s.have = true
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(p)
	}
	return true
}

// State returns the latest applied state.
func (s *Syncer) State() (events.ClockSessionPayload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.have
}

// Display returns the times to show at now, running the side to move down
// from the server's reading.
func (s *Syncer) Display(now time.Time) (white, black time.Duration) {
	p, ok := s.State()
	if !ok {
		return 0, 0
	}
	white = time.Duration(p.WhiteTime) * time.Millisecond
	black = time.Duration(p.BlackTime) * time.Millisecond
	if !payloadRunning(p) || now.Before(p.ServerTime) {
		return white, black
	}
	elapsed := now.Sub(p.ServerTime)
	if p.IsWhiteTurn {
		white = max(white-elapsed, 0)
	} else {
		black = max(black-elapsed, 0)
	}
	return white, black
}

// Run applies pushed events and polls while idle until ctx is done.
// A nil or closed pushes channel leaves the syncer polling only.
func (s *Syncer) Run(ctx context.Context, pushes <-chan events.Event) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-pushes:
			if !ok {
				pushes = nil
				continue
			}
			s.handle(evt)
		case <-ticker.Chan():
			if s.shouldPoll() {
				s.poll(ctx)
			}
		}
	}
}

func (s *Syncer) handle(evt events.Event) {
	if evt.Type != events.EventTypeClockSessionUpdated {
		return
	}
	var p events.ClockSessionPayload
	if err := json.Unmarshal(evt.Data, &p); err != nil {
		log.Warn().Err(err).Str("code", s.code).Msg("dropping malformed session event")
		return
	}
	if p.SessionID != s.code {
		return
	}
	s.Apply(p)
}

func (s *Syncer) shouldPoll() bool {
	p, ok := s.State()
	return !ok || !payloadRunning(p)
}

func (s *Syncer) poll(ctx context.Context) {
	p, err := s.fetcher.FetchState(ctx, s.code)
	if err != nil {
		log.Warn().Err(err).Str("code", s.code).Msg("session poll failed")
		return
	}
	s.Apply(p)
}

func payloadRunning(p events.ClockSessionPayload) bool {
	return p.IsActive && p.Started && !p.IsPaused && p.Result == ""
}
