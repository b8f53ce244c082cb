package clocksession

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/gambit/go/internal/match/events"
	"github.com/mcdev12/gambit/go/internal/models"
)

func TestSyncerAppliesNewerVersionsOnly(t *testing.T) {
	var changes int
	s := NewSyncer("ab12k9", nil, nil, 0, func(events.ClockSessionPayload) { changes++ })

	assert.True(t, s.Apply(events.ClockSessionPayload{SessionID: "AB12K9", Version: 2}))
	assert.False(t, s.Apply(events.ClockSessionPayload{SessionID: "AB12K9", Version: 1}))
	assert.False(t, s.Apply(events.ClockSessionPayload{SessionID: "AB12K9", Version: 2}))
	assert.True(t, s.Apply(events.ClockSessionPayload{SessionID: "AB12K9", Version: 3}))

	p, ok := s.State()
	require.True(t, ok)
	assert.Equal(t, int64(3), p.Version)
	assert.Equal(t, 2, changes)
}

func TestSyncerDisplayRunsSideToMove(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewSyncer("AB12K9", nil, nil, 0, nil)

	w, b := s.Display(t0)
	assert.Zero(t, w+b)

	s.Apply(events.ClockSessionPayload{
		SessionID: "AB12K9", Version: 1, WhiteTime: 60000, BlackTime: 45000,
		IsWhiteTurn: true, Started: true, IsActive: true, ServerTime: t0,
	})
	w, b = s.Display(t0.Add(1500 * time.Millisecond))
	assert.Equal(t, 58500*time.Millisecond, w)
	assert.Equal(t, 45*time.Second, b)

	w, _ = s.Display(t0.Add(2 * time.Minute))
	assert.Zero(t, w)

	s.Apply(events.ClockSessionPayload{
		SessionID: "AB12K9", Version: 2, WhiteTime: 58000, BlackTime: 45000,
		IsWhiteTurn: true, Started: true, IsActive: true, IsPaused: true, ServerTime: t0,
	})
	w, _ = s.Display(t0.Add(time.Minute))
	assert.Equal(t, 58*time.Second, w)
}

func TestSyncerPollsWhileIdle(t *testing.T) {
	clk := clockwork.NewFakeClock()
	var calls atomic.Int64
	fetcher := FetchFunc(func(context.Context, string) (events.ClockSessionPayload, error) {
		n := calls.Add(1)
		if n == 2 {
			return events.ClockSessionPayload{}, errors.New("network down")
		}
		return events.ClockSessionPayload{SessionID: "AB12K9", Version: n, IsActive: true}, nil
	})
	s := NewSyncer("AB12K9", fetcher, clk, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, nil) }()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, clk.BlockUntilContext(ctx, 1))

	clk.Advance(DefaultSyncInterval)
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	clk.Advance(DefaultSyncInterval)
	require.Eventually(t, func() bool {
		p, _ := s.State()
		return p.Version == 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestSyncerFollowsPushedUpdates(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	created, err := f.app.Create(ctx, "host", models.SideWhite, 60, 0)
	require.NoError(t, err)

	sub := f.hub.Subscribe(events.SessionTopic(created.Code))
	defer sub.Close()
	s := NewSyncer(created.Code, LocalFetcher(f.app), f.clock, 0, nil)
	go func() { _ = s.Run(ctx, sub.C) }()

	require.Eventually(t, func() bool {
		p, ok := s.State()
		return ok && p.Version == 1
	}, time.Second, 5*time.Millisecond)

	_, err = f.app.Join(ctx, created.Code, "guest")
	require.NoError(t, err)
	_, err = f.app.Press(ctx, created.Code, "guest")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		p, _ := s.State()
		return p.Version == 3
	}, time.Second, 5*time.Millisecond)

	p, _ := s.State()
	assert.True(t, p.Started)
	assert.True(t, p.GuestConnected)
	assert.True(t, p.IsWhiteTurn)
	assert.False(t, s.shouldPoll())
}
