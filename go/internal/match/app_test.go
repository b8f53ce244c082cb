package match

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/gambit/go/internal/broadcast"
	"github.com/mcdev12/gambit/go/internal/clock"
	"github.com/mcdev12/gambit/go/internal/match/events"
	"github.com/mcdev12/gambit/go/internal/models"
	"github.com/mcdev12/gambit/go/internal/notify"
	"github.com/mcdev12/gambit/go/internal/rules"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Kind
	for _, n := range r.sent {
		out = append(out, n.Kind)
	}
	return out
}

type fixture struct {
	app      *App
	repo     *MemoryRepository
	clock    *clockwork.FakeClock
	hub      *broadcast.Hub[events.Event]
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clockwork.NewFakeClockAt(t0)
	repo := NewMemoryRepository()
	hub := broadcast.NewHub[events.Event](64)
	n := &recordingNotifier{}
	app := NewApp(repo, rules.NewChessOracle(), clock.NewEngine(30*time.Second), clk, NewHubEmitter(hub, clk), n)
	t.Cleanup(hub.Close)
	return &fixture{app: app, repo: repo, clock: clk, hub: hub, notifier: n}
}

func (f *fixture) start(t *testing.T, tc, inc int) *models.Match {
	t.Helper()
	m, err := f.app.CreateMatch(context.Background(), CreateMatchRequest{
		WhiteID: "white", BlackID: "black", TimeControl: tc, Increment: inc,
	})
	require.NoError(t, err)
	return m
}

func (f *fixture) move(t *testing.T, id uuid.UUID, player, uci string) *MoveResult {
	t.Helper()
	promo := ""
	if len(uci) == 5 {
		promo = uci[4:]
	}
	res, err := f.app.SubmitMove(context.Background(), SubmitMoveRequest{
		MatchID: id, PlayerID: player, From: uci[:2], To: uci[2:4], Promotion: promo,
	})
	require.NoError(t, err, "move %s by %s", uci, player)
	return res
}

func TestCreateMatchStartsGrace(t *testing.T) {
	f := newFixture(t)
	m := f.start(t, 300, 0)

	assert.Equal(t, models.MatchStatusActive, m.Status)
	assert.Equal(t, models.SideWhite, m.Turn)
	assert.Equal(t, 300*time.Second, m.WhiteRemaining)
	require.NotNil(t, m.NextDeadline)
	assert.Equal(t, t0.Add(30*time.Second), *m.NextDeadline)
	assert.Equal(t, []notify.Kind{notify.KindMatchStarted}, f.notifier.kinds())

	_, err := f.app.CreateMatch(context.Background(), CreateMatchRequest{WhiteID: "a", BlackID: "a", TimeControl: 60})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	_, err = f.app.CreateMatch(context.Background(), CreateMatchRequest{WhiteID: "a", BlackID: "b"})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestSubmitMoveRejections(t *testing.T) {
	f := newFixture(t)
	m := f.start(t, 300, 0)
	ctx := context.Background()

	tests := []struct {
		name string
		req  SubmitMoveRequest
		want error
	}{
		{"not your turn", SubmitMoveRequest{MatchID: m.ID, PlayerID: "black", From: "e7", To: "e5"}, models.ErrNotYourTurn},
		{"illegal", SubmitMoveRequest{MatchID: m.ID, PlayerID: "white", From: "e2", To: "e5"}, models.ErrIllegalMove},
		{"malformed square", SubmitMoveRequest{MatchID: m.ID, PlayerID: "white", From: "z9", To: "e4"}, models.ErrIllegalMove},
		{"stranger", SubmitMoveRequest{MatchID: m.ID, PlayerID: "mallory", From: "e2", To: "e4"}, models.ErrNotParticipant},
		{"stale ply", SubmitMoveRequest{MatchID: m.ID, PlayerID: "white", From: "e2", To: "e4", ExpectedPly: intPtr(3)}, models.ErrStalePly},
		{"unknown match", SubmitMoveRequest{MatchID: uuid.New(), PlayerID: "white", From: "e2", To: "e4"}, models.ErrNotFound},
		{"missing player", SubmitMoveRequest{MatchID: m.ID, From: "e2", To: "e4"}, models.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.app.SubmitMove(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	got, err := f.repo.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.PlyCount)
}

func TestSubmitMoveAdvancesPlyAndClock(t *testing.T) {
	f := newFixture(t)
	m := f.start(t, 60, 2)

	f.clock.Advance(5 * time.Second)
	res := f.move(t, m.ID, "white", "e2e4")
	assert.True(t, res.Accepted)
	assert.Equal(t, 1, res.Match.PlyCount)
	assert.Equal(t, models.SideBlack, res.Match.Turn)
	assert.Equal(t, 0, res.Move.PlyNumber)
	assert.Equal(t, "e4", res.Move.SAN)
	// first moves are charged and earn the increment
	assert.Equal(t, 57*time.Second, res.Match.WhiteRemaining)

	f.clock.Advance(3 * time.Second)
	res = f.move(t, m.ID, "black", "e7e5")
	assert.Equal(t, 59*time.Second, res.Match.BlackRemaining)

	f.clock.Advance(10 * time.Second)
	res = f.move(t, m.ID, "white", "g1f3")
	assert.Equal(t, 49*time.Second, res.Match.WhiteRemaining)
	assert.Equal(t, 3, res.Match.PlyCount)
	require.NotNil(t, res.Match.NextDeadline)
	assert.Equal(t, f.clock.Now().Add(59*time.Second), *res.Match.NextDeadline)

	f.clock.Advance(4 * time.Second)
	snap, err := f.app.GetMatch(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, 49*time.Second, snap.WhiteRemaining)
	assert.Equal(t, 55*time.Second, snap.BlackRemaining)

	moves, err := f.app.ListMoves(context.Background(), m.ID)
	require.NoError(t, err)
	require.Len(t, moves, 3)
	for i, mv := range moves {
		assert.Equal(t, i, mv.PlyNumber)
	}
}

func TestConcurrentSamePlyAcceptsExactlyOne(t *testing.T) {
	f := newFixture(t)
	m := f.start(t, 300, 0)

	candidates := []string{"e2e4", "d2d4", "c2c4", "g1f3"}
	errs := make([]error, len(candidates))
	var wg sync.WaitGroup
	for i, uci := range candidates {
		wg.Add(1)
		go func(i int, uci string) {
			defer wg.Done()
			_, errs[i] = f.app.SubmitMove(context.Background(), SubmitMoveRequest{
				MatchID: m.ID, PlayerID: "white", From: uci[:2], To: uci[2:4], ExpectedPly: intPtr(0),
			})
		}(i, uci)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		assert.ErrorIs(t, err, models.ErrStalePly)
	}
	assert.Equal(t, 1, accepted)

	moves, err := f.app.ListMoves(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Len(t, moves, 1)
	assert.Equal(t, 0, f.app.locks.size())
}

func TestGraceExpiryAbortsWithoutWinner(t *testing.T) {
	f := newFixture(t)
	m := f.start(t, 300, 0)
	ctx := context.Background()

	f.clock.Advance(29 * time.Second)
	_, err := f.app.EnforceClock(ctx, m.ID, "white")
	assert.ErrorIs(t, err, models.ErrNothingToClaim)

	f.clock.Advance(time.Second)
	_, err = f.app.EnforceClock(ctx, m.ID, "black")
	assert.ErrorIs(t, err, models.ErrNotYourTurn)

	_, err = f.app.SubmitMove(ctx, SubmitMoveRequest{MatchID: m.ID, PlayerID: "white", From: "e2", To: "e4"})
	assert.ErrorIs(t, err, models.ErrGraceExpired)

	got, err := f.repo.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, models.MatchResultAborted, *got.Result)
	assert.Nil(t, got.WinnerID)
	assert.Equal(t, 300*time.Second, got.WhiteRemaining)
	assert.Equal(t, 300*time.Second, got.BlackRemaining)
	assert.Contains(t, f.notifier.kinds(), notify.KindMatchAborted)

	// applied exactly once
	claim, err := f.app.EnforceClock(ctx, m.ID, SystemRequester)
	require.NoError(t, err)
	assert.False(t, claim.Applied)
	_, err = f.app.EnforceClock(ctx, m.ID, "white")
	assert.ErrorIs(t, err, models.ErrMatchNotActive)
}

func TestBlackGraceStartsAfterWhitesFirstMove(t *testing.T) {
	f := newFixture(t)
	m := f.start(t, 300, 0)

	f.clock.Advance(20 * time.Second)
	f.move(t, m.ID, "white", "e2e4")

	f.clock.Advance(29 * time.Second)
	claim, err := f.app.EnforceClock(context.Background(), m.ID, SystemRequester)
	require.NoError(t, err)
	assert.False(t, claim.Applied)

	f.clock.Advance(time.Second)
	claim, err = f.app.EnforceClock(context.Background(), m.ID, SystemRequester)
	require.NoError(t, err)
	assert.True(t, claim.Applied)
	assert.Equal(t, "grace_expired", claim.Verdict)
	assert.Equal(t, models.MatchResultAborted, *claim.Match.Result)
	// white's charged first move stands; the abort itself deducts nothing
	assert.Equal(t, 280*time.Second, claim.Match.WhiteRemaining)
	assert.Equal(t, 300*time.Second, claim.Match.BlackRemaining)
}

func TestTimeoutAwardsOpponentWithMaterial(t *testing.T) {
	f := newFixture(t)
	m := f.start(t, 300, 0)
	ctx := context.Background()

	f.move(t, m.ID, "white", "e2e4")
	f.move(t, m.ID, "black", "e7e5")
	f.move(t, m.ID, "white", "g1f3")

	f.clock.Advance(299 * time.Second)
	_, err := f.app.EnforceClock(ctx, m.ID, "black")
	assert.ErrorIs(t, err, models.ErrNothingToClaim)

	f.clock.Advance(time.Second)
	_, err = f.app.SubmitMove(ctx, SubmitMoveRequest{MatchID: m.ID, PlayerID: "black", From: "b8", To: "c6"})
	assert.ErrorIs(t, err, models.ErrClockExpired)

	got, err := f.repo.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchResultTimeout, *got.Result)
	require.NotNil(t, got.WinnerID)
	assert.Equal(t, "white", *got.WinnerID)
	assert.Equal(t, time.Duration(0), got.BlackRemaining)
	assert.Equal(t, 300*time.Second, got.WhiteRemaining)
}

func TestTimeoutWithoutMatingMaterialIsDraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m := NewActiveMatch(f.app.Engine(), "white", "black", 60, 0, f.clock.Now())
	m.CurrentPosition = "8/8/8/4k3/8/8/8/4K2N b - - 0 40"
	m.PlyCount = 79
	m.Turn = models.SideBlack
	require.NoError(t, f.repo.CreateMatch(ctx, m))

	f.clock.Advance(61 * time.Second)
	claim, err := f.app.EnforceClock(ctx, m.ID, SystemRequester)
	require.NoError(t, err)
	assert.True(t, claim.Applied)
	assert.Equal(t, "timeout", claim.Verdict)
	assert.Equal(t, models.MatchResultDraw, *claim.Match.Result)
	assert.Nil(t, claim.Match.WinnerID)
}

func TestCheckmateCompletesMatch(t *testing.T) {
	f := newFixture(t)
	m := f.start(t, 300, 0)

	f.move(t, m.ID, "white", "f2f3")
	f.move(t, m.ID, "black", "e7e5")
	f.move(t, m.ID, "white", "g2g4")
	res := f.move(t, m.ID, "black", "d8h4")

	assert.True(t, res.Flags.Checkmate)
	assert.Equal(t, models.MatchStatusCompleted, res.Match.Status)
	assert.Equal(t, models.MatchResultCheckmate, *res.Match.Result)
	assert.Equal(t, "black", *res.Match.WinnerID)
	assert.Nil(t, res.Match.NextDeadline)

	_, err := f.app.SubmitMove(context.Background(), SubmitMoveRequest{MatchID: m.ID, PlayerID: "white", From: "a2", To: "a3"})
	assert.ErrorIs(t, err, models.ErrMatchNotActive)
	assert.Contains(t, f.notifier.kinds(), notify.KindMatchCompleted)
}

func TestReplayMatchesAuthoritativePosition(t *testing.T) {
	f := newFixture(t)
	m := f.start(t, 300, 0)

	var last *MoveResult
	for i, uci := range []string{"e2e4", "c7c5", "g1f3", "d7d6", "d2d4", "c5d4", "f3d4", "g8f6", "b1c3", "a7a6"} {
		player := "white"
		if i%2 == 1 {
			player = "black"
		}
		last = f.move(t, m.ID, player, uci)
	}

	pos, err := f.app.ReplayPosition(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, last.NewPosition, pos)
}

func TestResign(t *testing.T) {
	f := newFixture(t)
	m := f.start(t, 300, 0)

	got, err := f.app.Resign(context.Background(), m.ID, "white")
	require.NoError(t, err)
	assert.Equal(t, models.MatchResultResignation, *got.Result)
	assert.Equal(t, "black", *got.WinnerID)

	_, err = f.app.Resign(context.Background(), m.ID, "black")
	assert.ErrorIs(t, err, models.ErrMatchNotActive)
}

func TestDrawOffers(t *testing.T) {
	f := newFixture(t)
	m := f.start(t, 300, 0)
	ctx := context.Background()

	_, err := f.app.RespondDraw(ctx, m.ID, "black", true)
	assert.ErrorIs(t, err, models.ErrNoDrawOffer)

	got, err := f.app.OfferDraw(ctx, m.ID, "white")
	require.NoError(t, err)
	assert.Equal(t, "white", *got.DrawOfferedBy)

	got, err = f.app.OfferDraw(ctx, m.ID, "white")
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusActive, got.Status)

	_, err = f.app.RespondDraw(ctx, m.ID, "white", true)
	assert.ErrorIs(t, err, models.ErrNoDrawOffer)

	got, err = f.app.RespondDraw(ctx, m.ID, "black", false)
	require.NoError(t, err)
	assert.Nil(t, got.DrawOfferedBy)

	// a move clears a pending offer
	_, err = f.app.OfferDraw(ctx, m.ID, "black")
	require.NoError(t, err)
	res := f.move(t, m.ID, "white", "e2e4")
	assert.Nil(t, res.Match.DrawOfferedBy)

	// crossing offers agree to a draw
	_, err = f.app.OfferDraw(ctx, m.ID, "white")
	require.NoError(t, err)
	got, err = f.app.OfferDraw(ctx, m.ID, "black")
	require.NoError(t, err)
	assert.Equal(t, models.MatchResultDraw, *got.Result)
	assert.Nil(t, got.WinnerID)
}

func TestChallenges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.app.CreateChallenge(ctx, CreateChallengeRequest{HostID: "alice", HostSide: models.SideBlack, TimeControl: 180, Increment: 2})
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusWaiting, c.Status)
	assert.Nil(t, c.WhiteID)

	_, err = f.app.AcceptChallenge(ctx, c.ID, "alice")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	f.clock.Advance(time.Minute)
	active, err := f.app.AcceptChallenge(ctx, c.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusActive, active.Status)
	assert.Equal(t, "bob", active.PlayerID(models.SideWhite))
	assert.Equal(t, f.clock.Now(), *active.LastMoveAt)

	_, err = f.app.AcceptChallenge(ctx, c.ID, "carol")
	assert.ErrorIs(t, err, models.ErrMatchNotActive)
	_, err = f.app.CancelChallenge(ctx, c.ID, "alice")
	assert.ErrorIs(t, err, models.ErrMatchNotActive)

	other, err := f.app.CreateChallenge(ctx, CreateChallengeRequest{HostID: "dave", TimeControl: 60})
	require.NoError(t, err)
	assert.Equal(t, "dave", other.PlayerID(models.SideWhite))

	_, err = f.app.CancelChallenge(ctx, other.ID, "erin")
	assert.ErrorIs(t, err, models.ErrNotParticipant)
	cancelled, err := f.app.CancelChallenge(ctx, other.ID, "dave")
	require.NoError(t, err)
	assert.Equal(t, models.MatchResultAborted, *cancelled.Result)
	_, err = f.app.CancelChallenge(ctx, other.ID, "dave")
	require.NoError(t, err)

	found, err := f.app.ActiveMatchForUser(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, c.ID, found.ID)
	_, err = f.app.ActiveMatchForUser(ctx, "dave")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestMoveBroadcast(t *testing.T) {
	f := newFixture(t)
	m := f.start(t, 300, 0)

	sub := f.hub.Subscribe(events.MatchTopic(m.ID))
	defer sub.Close()

	f.move(t, m.ID, "white", "e2e4")

	select {
	case evt := <-sub.C:
		require.Equal(t, events.EventTypeMoveMade, evt.Type)
		var p events.MoveMadePayload
		require.NoError(t, json.Unmarshal(evt.Data, &p))
		assert.Equal(t, m.ID.String(), p.MatchID)
		assert.Equal(t, 1, p.Ply)
		assert.Equal(t, "black", p.Turn)
		assert.Equal(t, int64(300000), p.WhiteRemaining)
	case <-time.After(time.Second):
		t.Fatal("no broadcast")
	}
}

func TestOverdueListing(t *testing.T) {
	f := newFixture(t)
	a := f.start(t, 300, 0)
	b := f.start(t, 300, 0)
	f.clock.Advance(10 * time.Second)
	f.move(t, a.ID, "white", "e2e4")

	f.clock.Advance(20 * time.Second)
	ids, err := f.app.FetchOverdueMatches(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b.ID}, ids)

	_, err = f.app.FetchOverdueMatches(context.Background(), 0)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func intPtr(v int) *int { return &v }
