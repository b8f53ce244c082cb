package replica

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/match"
	"github.com/mcdev12/gambit/go/internal/match/events"
	"github.com/mcdev12/gambit/go/internal/models"
	"github.com/mcdev12/gambit/go/internal/rules"
)

// DefaultPollInterval is how often Run refreshes from the server.
const DefaultPollInterval = time.Second

// ErrMovePending is returned when a move is submitted before the previous one settled.
var ErrMovePending = errors.New("a move is already awaiting confirmation")

// Submitter sends moves to the authority.
type Submitter interface {
	SubmitMove(ctx context.Context, req match.SubmitMoveRequest) (*match.MoveResult, error)
}

// Fetcher loads the authoritative match.
type Fetcher interface {
	GetMatch(ctx context.Context, matchID uuid.UUID) (*match.Snapshot, error)
}

// View is the state a device renders.
type View struct {
	Ply            int                 `json:"ply"`
	Position       string              `json:"position"`
	Turn           models.Side         `json:"turn"`
	Status         models.MatchStatus  `json:"status"`
	Result         *models.MatchResult `json:"result,omitempty"`
	WhiteRemaining time.Duration       `json:"white_remaining"`
	BlackRemaining time.Duration       `json:"black_remaining"`
	Flags          models.MoveFlags    `json:"flags"`
	Pending        bool                `json:"pending"`
}

// order ranks views so that a later ply, or the same ply once completed, wins.
func (v View) order() int {
	o := v.Ply * 2
	if v.Status == models.MatchStatusCompleted {
		o++
	}
	return o
}

// MoveCommand is an optimistic move together with the state it replaced.
type MoveCommand struct {
	Request match.SubmitMoveRequest
	before  View
	after   View
}

// Apply installs the optimistic state.
func (c *MoveCommand) Apply(r *MatchReplica) {
	r.current = c.after
	r.pending = c
}

// Rollback restores the last confirmed state.
func (c *MoveCommand) Rollback(r *MatchReplica) {
	if r.pending == c {
		r.pending = nil
	}
	r.current = r.confirmed
}

// MatchReplica is one player's local copy of a match. Moves show immediately
// and are rolled back if the server rejects them. Server state arriving by
// push or poll goes through Reconcile.
type MatchReplica struct {
	matchID   uuid.UUID
	playerID  string
	side      models.Side
	oracle    rules.Oracle
	submitter Submitter
	onChange  func(View)

	mu        sync.Mutex
	confirmed View
	current   View
	pending   *MoveCommand
}

// New seeds a replica from a server snapshot.
func New(snap *match.Snapshot, playerID string, oracle rules.Oracle, submitter Submitter, onChange func(View)) (*MatchReplica, error) {
	side, ok := snap.Match.SideOf(playerID)
	if !ok {
		return nil, models.ErrNotParticipant
	}
	v := viewFromSnapshot(snap)
	return &MatchReplica{
		matchID:   snap.Match.ID,
		playerID:  playerID,
		side:      side,
		oracle:    oracle,
		submitter: submitter,
		onChange:  onChange,
		confirmed: v,
		current:   v,
	}, nil
}

// View returns what should be on screen now.
func (r *MatchReplica) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Confirmed returns the last server-confirmed state.
func (r *MatchReplica) Confirmed() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.confirmed
}

// Move plays from-to locally and submits it. On rejection the optimistic
// position is discarded and the rejection is returned.
func (r *MatchReplica) Move(ctx context.Context, from, to, promotion string) (*match.MoveResult, error) {
	r.mu.Lock()
	cmd, err := r.prepare(from, to, promotion)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	cmd.Apply(r)
	view := r.current
	r.mu.Unlock()
	r.notify(view)

	res, err := r.submitter.SubmitMove(ctx, cmd.Request)

	r.mu.Lock()
	if r.pending != cmd {
		// a reconcile already settled this move
		view = r.current
		r.mu.Unlock()
		return res, err
	}
	if err != nil {
		cmd.Rollback(r)
		view = r.current
		r.mu.Unlock()
		log.Debug().Err(err).Str("match_id", r.matchID.String()).Int("ply", cmd.before.Ply).Msg("optimistic move rolled back")
		r.notify(view)
		return nil, err
	}
	r.pending = nil
	if res.Match != nil {
		r.reconcileLocked(viewFromMatch(res.Match, res.Flags))
	} else {
		r.confirmed = cmd.after
		r.confirmed.Pending = false
	}
	r.current = r.confirmed
	view = r.current
	r.mu.Unlock()
	r.notify(view)
	return res, nil
}

// prepare validates locally so obviously bad moves never leave the device.
func (r *MatchReplica) prepare(from, to, promotion string) (*MoveCommand, error) {
	if r.pending != nil {
		return nil, ErrMovePending
	}
	cur := r.current
	if cur.Status != models.MatchStatusActive {
		return nil, models.ErrMatchNotActive
	}
	if cur.Turn != r.side {
		return nil, models.ErrNotYourTurn
	}
	v, err := r.oracle.ValidateMove(cur.Position, from, to, promotion)
	if err != nil {
		return nil, fmt.Errorf("failed to validate move: %w", err)
	}
	if !v.Legal {
		return nil, models.ErrIllegalMove
	}

	ply := cur.Ply
	after := cur
	after.Ply++
	after.Position = v.NewPosition
	after.Turn = cur.Turn.Opponent()
	after.Flags = models.MoveFlags{Check: v.IsCheck, Checkmate: v.IsCheckmate, Stalemate: v.IsStalemate, Draw: v.IsDraw}
	after.Pending = true

	return &MoveCommand{
		Request: match.SubmitMoveRequest{
			MatchID:     r.matchID,
			PlayerID:    r.playerID,
			From:        from,
			To:          to,
			Promotion:   promotion,
			ExpectedPly: &ply,
		},
		before:  cur,
		after:   after,
	}, nil
}

// Reconcile folds an authoritative view in. Older or repeated views are ignored.
func (r *MatchReplica) Reconcile(v View) bool {
	r.mu.Lock()
	changed := r.reconcileLocked(v)
	view := r.current
	r.mu.Unlock()
	if changed {
		r.notify(view)
	}
	return changed
}

func (r *MatchReplica) reconcileLocked(v View) bool {
	v.Pending = false
	if v.order() <= r.confirmed.order() {
		return false
	}
	r.confirmed = v
	if r.pending != nil {
		// the server moved past the ply we were guessing at, or ended the game
		if v.Ply >= r.pending.after.Ply || v.Status != models.MatchStatusActive {
			r.pending = nil
		}
	}
	if r.pending == nil {
		r.current = r.confirmed
	}
	return true
}

// HandleEvent reconciles a pushed match event.
func (r *MatchReplica) HandleEvent(evt events.Event) {
	switch evt.Type {
	case events.EventTypeMoveMade:
		var p events.MoveMadePayload
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			log.Warn().Err(err).Msg("dropping malformed move event")
			return
		}
		r.Reconcile(View{
			Ply:            p.Ply,
			Position:       p.Position,
			Turn:           models.Side(p.Turn),
			Status:         models.MatchStatusActive,
			WhiteRemaining: time.Duration(p.WhiteRemaining) * time.Millisecond,
			BlackRemaining: time.Duration(p.BlackRemaining) * time.Millisecond,
			Flags:          p.Flags,
		})
	case events.EventTypeMatchCompleted:
		var p events.MatchCompletedPayload
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			log.Warn().Err(err).Msg("dropping malformed completion event")
			return
		}
		result := models.MatchResult(p.Result)
		r.Reconcile(View{
			Ply:            p.Ply,
			Position:       p.Position,
			Turn:           models.SideForPly(p.Ply),
			Status:         models.MatchStatusCompleted,
			Result:         &result,
			WhiteRemaining: time.Duration(p.WhiteRemaining) * time.Millisecond,
			BlackRemaining: time.Duration(p.BlackRemaining) * time.Millisecond,
		})
	}
}

// Run applies pushed events and polls fetcher every interval until ctx is done.
func (r *MatchReplica) Run(ctx context.Context, clk clockwork.Clock, interval time.Duration, pushes <-chan events.Event, fetcher Fetcher) error {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := clk.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-pushes:
			if !ok {
				pushes = nil
				continue
			}
			r.HandleEvent(evt)
		case <-ticker.Chan():
			if fetcher == nil {
				continue
			}
			snap, err := fetcher.GetMatch(ctx, r.matchID)
			if err != nil {
				log.Warn().Err(err).Str("match_id", r.matchID.String()).Msg("match poll failed")
				continue
			}
			r.Reconcile(viewFromSnapshot(snap))
			if snap.Match.Status == models.MatchStatusCompleted {
				return nil
			}
		}
	}
}

func (r *MatchReplica) notify(v View) {
	if r.onChange != nil {
		r.onChange(v)
	}
}

func viewFromSnapshot(snap *match.Snapshot) View {
	v := viewFromMatch(snap.Match, models.MoveFlags{})
	v.WhiteRemaining = snap.WhiteRemaining
	v.BlackRemaining = snap.BlackRemaining
	return v
}

func viewFromMatch(m *models.Match, flags models.MoveFlags) View {
	return View{
		Ply:            m.PlyCount,
		Position:       m.CurrentPosition,
		Turn:           m.Turn,
		Status:         m.Status,
		Result:         m.Result,
		WhiteRemaining: m.WhiteRemaining,
		BlackRemaining: m.BlackRemaining,
		Flags:          flags,
	}
}
