package clocksession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/clock"
	"github.com/mcdev12/gambit/go/internal/match"
	"github.com/mcdev12/gambit/go/internal/match/events"
	"github.com/mcdev12/gambit/go/internal/models"
)

const (
	maxCodeAttempts   = 5
	maxUpdateAttempts = 8

	ReasonTimeout  = "timeout"
	ReasonDeclared = "declared"
)

// errUnchanged short-circuits an idempotent mutation.
var errUnchanged = errors.New("unchanged")

// Snapshot is a session plus the live remaining times at ServerTime.
type Snapshot struct {
	Session        *models.ClockSession `json:"session"`
	WhiteRemaining time.Duration        `json:"white_remaining"`
	BlackRemaining time.Duration        `json:"black_remaining"`
	ServerTime     time.Time            `json:"server_time"`
}

// Payload is the broadcast form of the snapshot.
func (s *Snapshot) Payload() events.ClockSessionPayload {
	cs := s.Session
	return events.ClockSessionPayload{
		SessionID:      cs.Code,
		WhiteTime:      events.Millis(s.WhiteRemaining),
		BlackTime:      events.Millis(s.BlackRemaining),
		IsWhiteTurn:    cs.Turn == models.SideWhite,
		IsPaused:       cs.IsPaused,
		WhiteMoves:     cs.WhiteMoves,
		BlackMoves:     cs.BlackMoves,
		Result:         string(cs.Result),
		Started:        cs.Started,
		IsActive:       cs.IsActive,
		GuestConnected: cs.GuestConnected,
		Version:        cs.Version,
		ServerTime:     s.ServerTime,
	}
}

// App is the authority for shared two-device clocks.
type App struct {
	store   Store
	clock   clockwork.Clock
	emitter match.Emitter
}

func NewApp(store Store, clk clockwork.Clock, emitter match.Emitter) *App {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if emitter == nil {
		emitter = match.NopEmitter{}
	}
	return &App{store: store, clock: clk, emitter: emitter}
}

// Create opens a session for the host device and returns it with a fresh code.
func (a *App) Create(ctx context.Context, hostID string, hostSide models.Side, timeControl, increment int) (*models.ClockSession, error) {
	if hostID == "" {
		return nil, fmt.Errorf("%w: host id is required", models.ErrInvalidArgument)
	}
	if hostSide == "" {
		hostSide = models.SideWhite
	}
	if !hostSide.Valid() {
		return nil, fmt.Errorf("%w: side %q", models.ErrInvalidArgument, hostSide)
	}
	if err := match.ValidateTimeControl(timeControl, increment); err != nil {
		return nil, err
	}

	now := a.clock.Now().UTC()
	base := time.Duration(timeControl) * time.Second
	s := &models.ClockSession{
		HostID:         hostID,
		HostSide:       hostSide,
		TimeControl:    timeControl,
		Increment:      increment,
		WhiteRemaining: base,
		BlackRemaining: base,
		Turn:           models.SideWhite,
		IsActive:       true,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := NewCode()
		if err != nil {
			return nil, err
		}
		s.Code = code
		err = a.store.Create(ctx, s)
		if errors.Is(err, ErrCodeTaken) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		log.Info().Str("code", code).Str("host", hostID).Int("time_control", timeControl).Msg("clock session created")
		a.publish(ctx, s, now)
		return s.Clone(), nil
	}
	return nil, fmt.Errorf("failed to allocate a unique session code after %d attempts", maxCodeAttempts)
}

// Join pairs the guest device. A device that already joined may call it again.
func (a *App) Join(ctx context.Context, code, deviceID string) (*models.ClockSession, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device id is required", models.ErrInvalidArgument)
	}
	code = NormalizeCode(code)
	if !ValidCode(code) {
		return nil, models.ErrSessionCodeInvalid
	}
	return a.mutate(ctx, code, func(s *models.ClockSession, _ time.Time) error {
		if !s.IsActive {
			return models.ErrSessionCodeInvalid
		}
		switch {
		case deviceID == s.HostID:
			return errUnchanged
		case s.GuestConnected && s.GuestID == deviceID:
			return errUnchanged
		case s.GuestConnected:
			return models.ErrSessionAlreadyPaired
		}
		s.GuestID = deviceID
		s.GuestConnected = true
		return nil
	})
}

// Press ends the pressing side's turn. Black's first press starts White's clock.
func (a *App) Press(ctx context.Context, code, deviceID string) (*models.ClockSession, error) {
	flagged := false
	s, err := a.mutate(ctx, NormalizeCode(code), func(s *models.ClockSession, now time.Time) error {
		side, err := playable(s, deviceID)
		if err != nil {
			return err
		}
		if s.IsPaused {
			return models.ErrSessionPaused
		}
		if !s.Started {
			if side != models.SideBlack {
				return models.ErrBlackStartsClock
			}
			s.Started = true
			s.Turn = models.SideWhite
			s.LastPressAt = &now
			return nil
		}
		if side != s.Turn {
			return models.ErrNotYourTurn
		}

		left := clock.Deduct(stored(s, side), clock.Elapsed(*s.LastPressAt, now))
		if left <= 0 {
			flag(s, side)
			flagged = true
			return nil
		}
		setStored(s, side, left+time.Duration(s.Increment)*time.Second)
		if side == models.SideWhite {
			s.WhiteMoves++
		} else {
			s.BlackMoves++
		}
		s.Turn = side.Opponent()
		s.LastPressAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	if flagged {
		return s, models.ErrClockExpired
	}
	return s, nil
}

// Pause stops the running clock, charging the time used so far.
func (a *App) Pause(ctx context.Context, code, deviceID string) (*models.ClockSession, error) {
	return a.mutate(ctx, NormalizeCode(code), func(s *models.ClockSession, now time.Time) error {
		if _, err := playable(s, deviceID); err != nil {
			return err
		}
		if s.IsPaused {
			return errUnchanged
		}
		charge(s, now)
		s.IsPaused = true
		return nil
	})
}

// Resume restarts the clock of the side to move.
func (a *App) Resume(ctx context.Context, code, deviceID string) (*models.ClockSession, error) {
	return a.mutate(ctx, NormalizeCode(code), func(s *models.ClockSession, now time.Time) error {
		if _, err := playable(s, deviceID); err != nil {
			return err
		}
		if !s.IsPaused {
			return errUnchanged
		}
		s.IsPaused = false
		if s.Started {
			s.LastPressAt = &now
		}
		return nil
	})
}

// DeclareResult records a result agreed over the board and stops the clock.
func (a *App) DeclareResult(ctx context.Context, code, deviceID string, result models.SessionResult, reason string) (*models.ClockSession, error) {
	switch result {
	case models.SessionResultWhiteWins, models.SessionResultBlackWins, models.SessionResultDraw:
	default:
		return nil, fmt.Errorf("%w: result %q", models.ErrInvalidArgument, result)
	}
	if reason == "" {
		reason = ReasonDeclared
	}
	return a.mutate(ctx, NormalizeCode(code), func(s *models.ClockSession, now time.Time) error {
		if !s.IsActive {
			return models.ErrSessionClosed
		}
		if _, ok := s.SideOf(deviceID); !ok {
			return models.ErrNotParticipant
		}
		if s.Result == result {
			return errUnchanged
		}
		if s.Result != models.SessionResultNone {
			return models.ErrSessionClosed
		}
		charge(s, now)
		s.Result = result
		s.ResultReason = reason
		return nil
	})
}

// Reset restores the starting times on the same pairing.
func (a *App) Reset(ctx context.Context, code, deviceID string) (*models.ClockSession, error) {
	return a.mutate(ctx, NormalizeCode(code), func(s *models.ClockSession, _ time.Time) error {
		if !s.IsActive {
			return models.ErrSessionClosed
		}
		if _, ok := s.SideOf(deviceID); !ok {
			return models.ErrNotParticipant
		}
		base := time.Duration(s.TimeControl) * time.Second
		s.WhiteRemaining = base
		s.BlackRemaining = base
		s.Turn = models.SideWhite
		s.Started = false
		s.IsPaused = false
		s.WhiteMoves = 0
		s.BlackMoves = 0
		s.Result = models.SessionResultNone
		s.ResultReason = ""
		s.LastPressAt = nil
		return nil
	})
}

// Close ends the session. Only the host may close it.
func (a *App) Close(ctx context.Context, code, deviceID string) (*models.ClockSession, error) {
	return a.mutate(ctx, NormalizeCode(code), func(s *models.ClockSession, now time.Time) error {
		if deviceID != s.HostID {
			return models.ErrNotParticipant
		}
		if !s.IsActive {
			return errUnchanged
		}
		charge(s, now)
		s.IsActive = false
		return nil
	})
}

// GetState returns the session with live remaining times.
func (a *App) GetState(ctx context.Context, code string) (*Snapshot, error) {
	s, err := a.store.Get(ctx, NormalizeCode(code))
	if err != nil {
		return nil, err
	}
	return snapshot(s, a.clock.Now().UTC()), nil
}

// Sweep flags running clocks that reached zero and drops sessions that were
// closed or untouched since before idleBefore. It returns how many sessions it changed.
func (a *App) Sweep(ctx context.Context, idleBefore time.Time) (int, error) {
	sessions, err := a.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}
	now := a.clock.Now().UTC()
	changed := 0
	for _, s := range sessions {
		if !s.IsActive || s.UpdatedAt.Before(idleBefore) {
			if err := a.store.Delete(ctx, s.Code); err != nil {
				return changed, err
			}
			changed++
			continue
		}
		if !flagFell(s, now) {
			continue
		}
		_, err := a.mutate(ctx, s.Code, func(cur *models.ClockSession, at time.Time) error {
			if !flagFell(cur, at) {
				return errUnchanged
			}
			flag(cur, cur.Turn)
			return nil
		})
		if err != nil {
			log.Warn().Err(err).Str("code", s.Code).Msg("failed to flag session")
			continue
		}
		changed++
	}
	return changed, nil
}

// mutate applies fn to a fresh copy of the session and writes it back with a
// version check, retrying when another writer got there first.
func (a *App) mutate(ctx context.Context, code string, fn func(s *models.ClockSession, now time.Time) error) (*models.ClockSession, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		cur, err := a.store.Get(ctx, code)
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrSessionCodeInvalid
		}
		if err != nil {
			return nil, err
		}
		now := a.clock.Now().UTC()
		next := cur.Clone()
		if err := fn(next, now); err != nil {
			if errors.Is(err, errUnchanged) {
				return cur, nil
			}
			return nil, err
		}
		next.Version = cur.Version + 1
		next.UpdatedAt = now

		err = a.store.Update(ctx, cur.Version, next)
		if errors.Is(err, ErrVersionConflict) {
			log.Debug().Str("code", code).Int("attempt", attempt).Msg("session version conflict, retrying")
			continue
		}
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrSessionCodeInvalid
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update session: %w", err)
		}
		a.publish(ctx, next, now)
		return next, nil
	}
	return nil, fmt.Errorf("failed to update session %s: %w", code, ErrVersionConflict)
}

func (a *App) publish(ctx context.Context, s *models.ClockSession, now time.Time) {
	payload := snapshot(s, now).Payload()
	if err := a.emitter.Emit(ctx, events.SessionTopic(s.Code), events.EventTypeClockSessionUpdated, payload); err != nil {
		log.Error().Err(err).Str("code", s.Code).Msg("failed to publish session update")
	}
}

// playable resolves the device's side on a session that can still be played.
func playable(s *models.ClockSession, deviceID string) (models.Side, error) {
	if !s.IsActive || s.Result != models.SessionResultNone {
		return "", models.ErrSessionClosed
	}
	side, ok := s.SideOf(deviceID)
	if !ok {
		return "", models.ErrNotParticipant
	}
	return side, nil
}

func snapshot(s *models.ClockSession, now time.Time) *Snapshot {
	snap := &Snapshot{
		Session:        s,
		WhiteRemaining: s.WhiteRemaining,
		BlackRemaining: s.BlackRemaining,
		ServerTime:     now,
	}
	if s.Running() && s.LastPressAt != nil {
		left := clock.Deduct(stored(s, s.Turn), clock.Elapsed(*s.LastPressAt, now))
		if s.Turn == models.SideWhite {
			snap.WhiteRemaining = left
		} else {
			snap.BlackRemaining = left
		}
	}
	return snap
}

// charge stops the running side's clock at now.
func charge(s *models.ClockSession, now time.Time) {
	if s.Running() && s.LastPressAt != nil {
		setStored(s, s.Turn, clock.Deduct(stored(s, s.Turn), clock.Elapsed(*s.LastPressAt, now)))
	}
	s.LastPressAt = nil
}

// flagFell reports whether the running side has no time left at now.
func flagFell(s *models.ClockSession, now time.Time) bool {
	if !s.Running() || s.LastPressAt == nil {
		return false
	}
	return clock.Deduct(stored(s, s.Turn), clock.Elapsed(*s.LastPressAt, now)) <= 0
}

func flag(s *models.ClockSession, side models.Side) {
	setStored(s, side, 0)
	s.LastPressAt = nil
	s.ResultReason = ReasonTimeout
	if side == models.SideWhite {
		s.Result = models.SessionResultBlackWins
	} else {
		s.Result = models.SessionResultWhiteWins
	}
}

func stored(s *models.ClockSession, side models.Side) time.Duration {
	if side == models.SideWhite {
		return s.WhiteRemaining
	}
	return s.BlackRemaining
}

func setStored(s *models.ClockSession, side models.Side, d time.Duration) {
	if side == models.SideWhite {
		s.WhiteRemaining = d
	} else {
		s.BlackRemaining = d
	}
}
