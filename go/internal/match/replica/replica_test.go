package replica

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/gambit/go/internal/clock"
	"github.com/mcdev12/gambit/go/internal/match"
	"github.com/mcdev12/gambit/go/internal/match/events"
	"github.com/mcdev12/gambit/go/internal/models"
	"github.com/mcdev12/gambit/go/internal/rules"
)

type harness struct {
	app    *match.App
	clock  *clockwork.FakeClock
	match  *models.Match
	oracle rules.Oracle
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	oracle := rules.NewChessOracle()
	app := match.NewApp(match.NewMemoryRepository(), oracle, clock.NewEngine(30*time.Second), clk, nil, nil)
	m, err := app.CreateMatch(context.Background(), match.CreateMatchRequest{
		WhiteID: "white", BlackID: "black", TimeControl: 300,
	})
	require.NoError(t, err)
	return &harness{app: app, clock: clk, match: m, oracle: oracle}
}

func (h *harness) replica(t *testing.T, player string, submitter Submitter, onChange func(View)) *MatchReplica {
	t.Helper()
	snap, err := h.app.GetMatch(context.Background(), h.match.ID)
	require.NoError(t, err)
	if submitter == nil {
		submitter = h.app
	}
	r, err := New(snap, player, h.oracle, submitter, onChange)
	require.NoError(t, err)
	return r
}

// countingSubmitter records how many moves reached the server.
type countingSubmitter struct {
	mu    sync.Mutex
	calls int
	next  Submitter
}

func (c *countingSubmitter) SubmitMove(ctx context.Context, req match.SubmitMoveRequest) (*match.MoveResult, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.next.SubmitMove(ctx, req)
}

func TestAcceptedMoveShowsImmediately(t *testing.T) {
	h := newHarness(t)
	var seen []View
	r := h.replica(t, "white", nil, func(v View) { seen = append(seen, v) })

	res, err := r.Move(context.Background(), "e2", "e4", "")
	require.NoError(t, err)
	assert.True(t, res.Accepted)

	require.Len(t, seen, 2)
	assert.True(t, seen[0].Pending)
	assert.Equal(t, 1, seen[0].Ply)
	assert.False(t, seen[1].Pending)

	v := r.View()
	assert.Equal(t, 1, v.Ply)
	assert.Equal(t, models.SideBlack, v.Turn)
	assert.Equal(t, res.NewPosition, v.Position)
	assert.Equal(t, v, r.Confirmed())
}

func TestRejectedMoveRollsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.replica(t, "white", nil, nil)
	start := r.View()

	// the same player moved from another tab; this replica has not heard yet
	_, err := h.app.SubmitMove(ctx, match.SubmitMoveRequest{MatchID: h.match.ID, PlayerID: "white", From: "e2", To: "e4"})
	require.NoError(t, err)

	_, err = r.Move(ctx, "d2", "d4", "")
	assert.ErrorIs(t, err, models.ErrStalePly)
	assert.Equal(t, start, r.View())

	snap, err := h.app.GetMatch(ctx, h.match.ID)
	require.NoError(t, err)
	assert.True(t, r.Reconcile(viewFromSnapshot(snap)))
	assert.Equal(t, 1, r.View().Ply)
	assert.False(t, r.Reconcile(viewFromSnapshot(snap)))
}

func TestLocalChecksNeverReachServer(t *testing.T) {
	h := newHarness(t)
	sub := &countingSubmitter{next: h.app}
	ctx := context.Background()

	black := h.replica(t, "black", sub, nil)
	_, err := black.Move(ctx, "e7", "e5", "")
	assert.ErrorIs(t, err, models.ErrNotYourTurn)

	white := h.replica(t, "white", sub, nil)
	_, err = white.Move(ctx, "e2", "e5", "")
	assert.ErrorIs(t, err, models.ErrIllegalMove)

	assert.Zero(t, sub.calls)

	snap, err := h.app.GetMatch(ctx, h.match.ID)
	require.NoError(t, err)
	_, err = New(snap, "stranger", h.oracle, sub, nil)
	assert.ErrorIs(t, err, models.ErrNotParticipant)
}

func TestReconcileIgnoresStaleViews(t *testing.T) {
	h := newHarness(t)
	r := h.replica(t, "black", nil, nil)

	moved := View{Ply: 1, Position: "after-e4", Turn: models.SideBlack, Status: models.MatchStatusActive}
	assert.True(t, r.Reconcile(moved))
	assert.False(t, r.Reconcile(View{Ply: 0, Status: models.MatchStatusActive}))
	assert.False(t, r.Reconcile(moved))

	result := models.MatchResultResignation
	assert.True(t, r.Reconcile(View{Ply: 1, Position: "after-e4", Status: models.MatchStatusCompleted, Result: &result}))
	assert.Equal(t, models.MatchStatusCompleted, r.View().Status)

	_, err := r.Move(context.Background(), "e7", "e5", "")
	assert.ErrorIs(t, err, models.ErrMatchNotActive)
}

// pushFirst delivers the server's broadcast before the RPC response returns.
type pushFirst struct {
	app     *match.App
	clock   clockwork.Clock
	replica *MatchReplica
}

func (p *pushFirst) SubmitMove(ctx context.Context, req match.SubmitMoveRequest) (*match.MoveResult, error) {
	res, err := p.app.SubmitMove(ctx, req)
	if err != nil {
		return nil, err
	}
	m := res.Match
	evt, err := events.NewEvent(events.MatchTopic(m.ID), events.EventTypeMoveMade, p.clock.Now(), events.MoveMadePayload{
		MatchID:        m.ID.String(),
		Ply:            m.PlyCount,
		Position:       m.CurrentPosition,
		Turn:           string(m.Turn),
		WhiteRemaining: events.Millis(m.WhiteRemaining),
		BlackRemaining: events.Millis(m.BlackRemaining),
	})
	if err != nil {
		return nil, err
	}
	p.replica.HandleEvent(evt)
	return res, nil
}

func TestPushSettlesPendingMove(t *testing.T) {
	h := newHarness(t)
	pf := &pushFirst{app: h.app, clock: h.clock}
	r := h.replica(t, "white", pf, nil)
	pf.replica = r

	_, err := r.Move(context.Background(), "g1", "f3", "")
	require.NoError(t, err)

	v := r.View()
	assert.Equal(t, 1, v.Ply)
	assert.False(t, v.Pending)
	assert.Equal(t, models.SideBlack, v.Turn)
}

func TestHandleCompletionEvent(t *testing.T) {
	h := newHarness(t)
	r := h.replica(t, "white", nil, nil)

	data, err := json.Marshal(events.MatchCompletedPayload{
		MatchID: h.match.ID.String(), Result: string(models.MatchResultAborted), Ply: 0,
		Position: models.StartingPosition, WhiteRemaining: 300000, BlackRemaining: 300000,
	})
	require.NoError(t, err)
	r.HandleEvent(events.Event{ID: uuid.NewString(), Type: events.EventTypeMatchCompleted, Data: data})

	v := r.View()
	assert.Equal(t, models.MatchStatusCompleted, v.Status)
	require.NotNil(t, v.Result)
	assert.Equal(t, models.MatchResultAborted, *v.Result)

	r.HandleEvent(events.Event{Type: events.EventTypeMoveMade, Data: []byte("{")})
	assert.Equal(t, models.MatchStatusCompleted, r.View().Status)
}

func TestRunPollsUntilCompleted(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r := h.replica(t, "black", nil, nil)

	_, err := h.app.Resign(ctx, h.match.ID, "white")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, h.clock, 0, nil, h.app) }()

	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	h.clock.Advance(DefaultPollInterval)
	require.NoError(t, <-done)
	assert.Equal(t, models.MatchStatusCompleted, r.View().Status)
}
