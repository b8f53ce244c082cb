package orchestrator

import (
	"context"
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

type fixture struct {
	app   *match.App
	orch  *Orchestrator
	clock *clockwork.FakeClock
}

// newFixture wires an in-process match app whose events feed the orchestrator.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := &LocalService{}
	orch := NewOrchestrator(svc, Config{Workers: 2, Clock: clk})
	app := match.NewApp(match.NewMemoryRepository(), rules.NewChessOracle(), clock.NewEngine(30*time.Second), clk, orch, nil)
	svc.App = app
	return &fixture{app: app, orch: orch, clock: clk}
}

func (f *fixture) run(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.orch.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return ctx
}

func (f *fixture) create(t *testing.T, ctx context.Context) *models.Match {
	t.Helper()
	m, err := f.app.CreateMatch(ctx, match.CreateMatchRequest{WhiteID: "white", BlackID: "black", TimeControl: 300})
	require.NoError(t, err)
	return m
}

func (f *fixture) waitForDeadline(t *testing.T, id uuid.UUID, want time.Time) {
	t.Helper()
	require.Eventually(t, func() bool {
		d, ok := f.orch.Deadline(id)
		return ok && d.Equal(want)
	}, time.Second, 5*time.Millisecond)
}

func (f *fixture) waitForStatus(t *testing.T, ctx context.Context, id uuid.UUID) *models.Match {
	t.Helper()
	var m *models.Match
	require.Eventually(t, func() bool {
		snap, err := f.app.GetMatch(ctx, id)
		if err != nil {
			return false
		}
		m = snap.Match
		return m.Status == models.MatchStatusCompleted
	}, time.Second, 5*time.Millisecond)
	return m
}

func TestGraceExpiryAbortsMatch(t *testing.T) {
	f := newFixture(t)
	ctx := f.run(t)
	start := f.clock.Now()

	m := f.create(t, ctx)
	f.waitForDeadline(t, m.ID, start.Add(30*time.Second))

	f.clock.Advance(30 * time.Second)
	done := f.waitForStatus(t, ctx, m.ID)
	require.NotNil(t, done.Result)
	assert.Equal(t, models.MatchResultAborted, *done.Result)
	assert.Nil(t, done.WinnerID)

	require.Eventually(t, func() bool { return f.orch.ActiveTimers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestMovesRescheduleAndTimeoutFlags(t *testing.T) {
	f := newFixture(t)
	ctx := f.run(t)
	start := f.clock.Now()

	m := f.create(t, ctx)
	f.waitForDeadline(t, m.ID, start.Add(30*time.Second))

	f.clock.Advance(5 * time.Second)
	_, err := f.app.SubmitMove(ctx, match.SubmitMoveRequest{MatchID: m.ID, PlayerID: "white", From: "e2", To: "e4"})
	require.NoError(t, err)
	// black still has a grace period for the first move
	f.waitForDeadline(t, m.ID, start.Add(35*time.Second))

	f.clock.Advance(5 * time.Second)
	_, err = f.app.SubmitMove(ctx, match.SubmitMoveRequest{MatchID: m.ID, PlayerID: "black", From: "e7", To: "e5"})
	require.NoError(t, err)
	// white spent 5s on the first move
	f.waitForDeadline(t, m.ID, start.Add(305*time.Second))
	assert.Equal(t, 1, f.orch.ActiveTimers())

	f.clock.Advance(295 * time.Second)
	done := f.waitForStatus(t, ctx, m.ID)
	require.NotNil(t, done.Result)
	assert.Equal(t, models.MatchResultTimeout, *done.Result)
	require.NotNil(t, done.WinnerID)
	assert.Equal(t, "black", *done.WinnerID)
	assert.Zero(t, done.WhiteRemaining)
}

func TestCompletionCancelsTimer(t *testing.T) {
	f := newFixture(t)
	ctx := f.run(t)

	m := f.create(t, ctx)
	require.Eventually(t, func() bool { return f.orch.ActiveTimers() == 1 }, time.Second, 5*time.Millisecond)

	_, err := f.app.Resign(ctx, m.ID, "black")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.orch.ActiveTimers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHandleEventIgnoresOtherTopics(t *testing.T) {
	f := newFixture(t)
	evt, err := events.NewEvent(events.SessionTopic("AB12K9"), events.EventTypeMatchStarted, f.clock.Now(), events.ClockSessionPayload{})
	require.NoError(t, err)

	require.NoError(t, f.orch.HandleEvent(context.Background(), evt))
	assert.Zero(t, f.orch.ActiveTimers())

	bad := events.Event{Topic: events.MatchTopic(uuid.New()), Type: events.EventTypeMatchStarted, Data: []byte("{")}
	assert.Error(t, f.orch.HandleEvent(context.Background(), bad))
}

func TestScheduleDueDeadlineEnqueuesImmediately(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()

	f.orch.scheduleAt(context.Background(), id, f.clock.Now().Add(-time.Second))
	assert.Zero(t, f.orch.ActiveTimers())
	select {
	case got := <-f.orch.workCh:
		assert.Equal(t, id, got)
	default:
		t.Fatal("expected the match to be enqueued")
	}
}

func TestScheduleReplacesAndDeduplicates(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	id := uuid.New()
	first := f.clock.Now().Add(10 * time.Second)

	f.orch.scheduleAt(ctx, id, first)
	f.orch.scheduleAt(ctx, id, first)
	assert.Equal(t, 1, f.orch.ActiveTimers())

	second := f.clock.Now().Add(20 * time.Second)
	f.orch.scheduleAt(ctx, id, second)
	d, ok := f.orch.Deadline(id)
	require.True(t, ok)
	assert.Equal(t, second, d)

	// the replaced timer must not fire
	f.clock.Advance(15 * time.Second)
	assert.Never(t, func() bool { return len(f.orch.workCh) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	f.orch.cancelTimer(id)
	assert.Zero(t, f.orch.ActiveTimers())
}

type overdueService struct {
	LocalService
	ids []uuid.UUID
}

func (s *overdueService) FetchOverdueMatches(context.Context, int) ([]uuid.UUID, error) {
	return s.ids, nil
}

func TestSweepEnqueuesOverdueMatches(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	orch := NewOrchestrator(&overdueService{ids: ids}, Config{Clock: clockwork.NewFakeClock()})

	require.NoError(t, orch.Sweep(context.Background()))
	require.Len(t, orch.workCh, 2)
	assert.Equal(t, ids[0], <-orch.workCh)
	assert.Equal(t, ids[1], <-orch.workCh)
}

func TestSweepBackstopsLostTimer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// created while nothing was running, so its started event is never handled
	m := f.create(t, ctx)
	<-f.orch.eventCh
	f.clock.Advance(31 * time.Second)

	require.NoError(t, f.orch.Sweep(ctx))
	require.NoError(t, f.orch.handleDeadline(ctx, <-f.orch.workCh))

	snap, err := f.app.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusCompleted, snap.Match.Status)
	assert.Equal(t, models.MatchResultAborted, *snap.Match.Result)
}

func TestHandleDeadlineReschedulesRunningMatch(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := f.create(t, ctx)
	f.clock.Advance(10 * time.Second)

	require.NoError(t, f.orch.handleDeadline(ctx, m.ID))
	d, ok := f.orch.Deadline(m.ID)
	require.True(t, ok)
	assert.Equal(t, m.LastMoveAt.Add(30*time.Second), d)

	require.NoError(t, f.orch.handleDeadline(ctx, uuid.New()))
}
