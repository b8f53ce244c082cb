// Package clock does the time accounting for two-sided game clocks.
//
// Nothing in here reads the wall clock: callers pass "now" explicitly, which
// keeps the arithmetic deterministic and lets the server, the orchestrator and
// client replicas agree on the same numbers.
package clock

import (
	"time"

	"github.com/mcdev12/gambit/go/internal/models"
)

// DefaultGrace is how long each side has to make its first move.
const DefaultGrace = 30 * time.Second

// State is the clock-relevant part of a match.
type State struct {
	WhiteRemaining time.Duration
	BlackRemaining time.Duration
	Turn           models.Side
	Ply            int
	// LastMoveAt is when the side to move started thinking: the activation
	// time before the first move, the previous move's time afterwards.
	LastMoveAt time.Time
}

// FromMatch extracts the clock state of m. Matches without a LastMoveAt
// (never activated) report a zero LastMoveAt.
func FromMatch(m *models.Match) State {
	st := State{
		WhiteRemaining: m.WhiteRemaining,
		BlackRemaining: m.BlackRemaining,
		Turn:           m.Turn,
		Ply:            m.PlyCount,
	}
	if m.LastMoveAt != nil {
		st.LastMoveAt = *m.LastMoveAt
	}
	return st
}

// Stored returns the banked time of side, ignoring any running elapsed time.
func (s State) Stored(side models.Side) time.Duration {
	if side == models.SideWhite {
		return s.WhiteRemaining
	}
	return s.BlackRemaining
}

func (s *State) setStored(side models.Side, d time.Duration) {
	if side == models.SideWhite {
		s.WhiteRemaining = d
	} else {
		s.BlackRemaining = d
	}
}

// Verdict is what the clock says about the side to move.
type Verdict int

const (
	VerdictRunning Verdict = iota
	VerdictGraceExpired
	VerdictTimeout
)

func (v Verdict) String() string {
	switch v {
	case VerdictGraceExpired:
		return "grace_expired"
	case VerdictTimeout:
		return "timeout"
	default:
		return "running"
	}
}

// Engine applies the timing rules of a match.
type Engine struct {
	grace time.Duration
}

// NewEngine returns an engine with the given first-move grace period.
// A non-positive grace falls back to DefaultGrace.
func NewEngine(grace time.Duration) *Engine {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Engine{grace: grace}
}

// Grace returns the first-move grace period.
func (e *Engine) Grace() time.Duration {
	return e.grace
}

// InGrace reports whether the side to move is still on its first move.
// White's first move is ply 0, black's is ply 1. During grace the abort
// window, not the clock, decides whether the side may still move.
func (e *Engine) InGrace(st State) bool {
	return st.Ply < 2
}

// Remaining returns side's time as of now. Only the side to move loses time.
// The result is never negative.
func (e *Engine) Remaining(st State, side models.Side, now time.Time) time.Duration {
	stored := st.Stored(side)
	if side != st.Turn {
		return stored
	}
	return Deduct(stored, Elapsed(st.LastMoveAt, now))
}

// Check reports whether the side to move has run out of grace or time.
func (e *Engine) Check(st State, now time.Time) Verdict {
	if e.InGrace(st) {
		if !now.Before(st.LastMoveAt.Add(e.grace)) {
			return VerdictGraceExpired
		}
		return VerdictRunning
	}
	if e.Remaining(st, st.Turn, now) <= 0 {
		return VerdictTimeout
	}
	return VerdictRunning
}

// ApplyMove charges the mover for the time spent, credits the increment and
// hands the turn over. It refuses moves that arrive after the mover's grace
// period or clock has run out.
func (e *Engine) ApplyMove(st State, now time.Time, increment time.Duration) (State, error) {
	switch e.Check(st, now) {
	case VerdictGraceExpired:
		return st, models.ErrGraceExpired
	case VerdictTimeout:
		return st, models.ErrClockExpired
	}

	mover := st.Turn
	next := st
	next.setStored(mover, e.Remaining(st, mover, now)+increment)
	next.Turn = mover.Opponent()
	next.Ply = st.Ply + 1
	next.LastMoveAt = now
	return next, nil
}

// Deadline is the instant at which Check stops returning VerdictRunning,
// assuming no move is made in between.
func (e *Engine) Deadline(st State) time.Time {
	if e.InGrace(st) {
		return st.LastMoveAt.Add(e.grace)
	}
	return st.LastMoveAt.Add(st.Stored(st.Turn))
}

// Elapsed returns now-since, clamped at zero so that a skewed clock never adds time.
func Elapsed(since, now time.Time) time.Duration {
	if since.IsZero() || now.Before(since) {
		return 0
	}
	return now.Sub(since)
}

// Deduct subtracts elapsed from stored without going below zero.
func Deduct(stored, elapsed time.Duration) time.Duration {
	if elapsed >= stored {
		return 0
	}
	return stored - elapsed
}
