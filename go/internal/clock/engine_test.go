package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/gambit/go/internal/models"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func freshState(base time.Duration) State {
	return State{
		WhiteRemaining: base,
		BlackRemaining: base,
		Turn:           models.SideWhite,
		Ply:            0,
		LastMoveAt:     t0,
	}
}

func TestRemaining(t *testing.T) {
	e := NewEngine(30 * time.Second)

	t.Run("first move is charged", func(t *testing.T) {
		st := freshState(5 * time.Minute)
		assert.Equal(t, 5*time.Minute-20*time.Second, e.Remaining(st, models.SideWhite, t0.Add(20*time.Second)))
		assert.Equal(t, 5*time.Minute, e.Remaining(st, models.SideBlack, t0.Add(20*time.Second)))
	})

	t.Run("short clock runs dry inside grace without flagging", func(t *testing.T) {
		st := freshState(10 * time.Second)
		now := t0.Add(20 * time.Second)
		assert.Equal(t, time.Duration(0), e.Remaining(st, models.SideWhite, now))
		assert.Equal(t, VerdictRunning, e.Check(st, now))
	})

	t.Run("only side to move is charged", func(t *testing.T) {
		st := State{
			WhiteRemaining: time.Minute,
			BlackRemaining: 2 * time.Minute,
			Turn:           models.SideBlack,
			Ply:            3,
			LastMoveAt:     t0,
		}
		now := t0.Add(15 * time.Second)
		assert.Equal(t, time.Minute, e.Remaining(st, models.SideWhite, now))
		assert.Equal(t, 105*time.Second, e.Remaining(st, models.SideBlack, now))
	})

	t.Run("never negative", func(t *testing.T) {
		st := State{WhiteRemaining: time.Second, BlackRemaining: time.Second, Turn: models.SideWhite, Ply: 4, LastMoveAt: t0}
		assert.Equal(t, time.Duration(0), e.Remaining(st, models.SideWhite, t0.Add(time.Hour)))
	})

	t.Run("clock skew does not add time", func(t *testing.T) {
		st := State{WhiteRemaining: time.Second, BlackRemaining: time.Second, Turn: models.SideWhite, Ply: 4, LastMoveAt: t0}
		assert.Equal(t, time.Second, e.Remaining(st, models.SideWhite, t0.Add(-time.Minute)))
	})
}

func TestCheck(t *testing.T) {
	e := NewEngine(30 * time.Second)

	tests := []struct {
		name string
		st   State
		now  time.Time
		want Verdict
	}{
		{"white inside grace", freshState(time.Minute), t0.Add(29 * time.Second), VerdictRunning},
		{"white grace boundary", freshState(time.Minute), t0.Add(30 * time.Second), VerdictGraceExpired},
		{
			"black grace counts from white's move",
			State{WhiteRemaining: time.Minute, BlackRemaining: time.Minute, Turn: models.SideBlack, Ply: 1, LastMoveAt: t0},
			t0.Add(31 * time.Second),
			VerdictGraceExpired,
		},
		{
			"grace does not apply after both first moves",
			State{WhiteRemaining: time.Minute, BlackRemaining: time.Minute, Turn: models.SideWhite, Ply: 2, LastMoveAt: t0},
			t0.Add(45 * time.Second),
			VerdictRunning,
		},
		{
			"flag falls",
			State{WhiteRemaining: time.Minute, BlackRemaining: 10 * time.Second, Turn: models.SideBlack, Ply: 7, LastMoveAt: t0},
			t0.Add(10 * time.Second),
			VerdictTimeout,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Check(tt.st, tt.now))
		})
	}
}

func TestApplyMove(t *testing.T) {
	e := NewEngine(30 * time.Second)
	inc := 2 * time.Second

	st := freshState(3 * time.Minute)

	// white's first move is charged like any other, plus increment
	st, err := e.ApplyMove(st, t0.Add(10*time.Second), inc)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Ply)
	assert.Equal(t, models.SideBlack, st.Turn)
	assert.Equal(t, 3*time.Minute-10*time.Second+inc, st.WhiteRemaining)

	// black's first move, timed from white's
	st, err = e.ApplyMove(st, t0.Add(25*time.Second), inc)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Minute-15*time.Second+inc, st.BlackRemaining)

	st, err = e.ApplyMove(st, t0.Add(45*time.Second), inc)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Minute-10*time.Second+inc-20*time.Second+inc, st.WhiteRemaining)
	assert.Equal(t, 3, st.Ply)
	assert.Equal(t, t0.Add(45*time.Second), st.LastMoveAt)
}

func TestApplyMoveRejectsExpired(t *testing.T) {
	e := NewEngine(30 * time.Second)

	_, err := e.ApplyMove(freshState(time.Minute), t0.Add(31*time.Second), 0)
	assert.ErrorIs(t, err, models.ErrGraceExpired)

	st := State{WhiteRemaining: 5 * time.Second, BlackRemaining: time.Minute, Turn: models.SideWhite, Ply: 4, LastMoveAt: t0}
	_, err = e.ApplyMove(st, t0.Add(6*time.Second), 0)
	assert.ErrorIs(t, err, models.ErrClockExpired)
}

func TestDeadline(t *testing.T) {
	e := NewEngine(30 * time.Second)

	assert.Equal(t, t0.Add(30*time.Second), e.Deadline(freshState(time.Minute)))

	st := State{WhiteRemaining: 40 * time.Second, BlackRemaining: time.Minute, Turn: models.SideWhite, Ply: 2, LastMoveAt: t0}
	assert.Equal(t, t0.Add(40*time.Second), e.Deadline(st))
	assert.Equal(t, VerdictTimeout, e.Check(st, e.Deadline(st)))
}

func TestNewEngineDefaultsGrace(t *testing.T) {
	assert.Equal(t, DefaultGrace, NewEngine(0).Grace())
}
