package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/clock"
	"github.com/mcdev12/gambit/go/internal/match/events"
	"github.com/mcdev12/gambit/go/internal/models"
	"github.com/mcdev12/gambit/go/internal/notify"
	"github.com/mcdev12/gambit/go/internal/rules"
)

// MatchRepository defines what the match app layer needs from storage.
//
// ApplyMove and UpdateMatch are compare-and-set writes: they only succeed if
// the stored match still has expectedPly (and, for UpdateMatch, expectedStatus),
// and report models.ErrStalePly otherwise.
type MatchRepository interface {
	CreateMatch(ctx context.Context, m *models.Match) error
	GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error)
	GetActiveMatchForUser(ctx context.Context, userID string) (*models.Match, error)
	ApplyMove(ctx context.Context, expectedPly int, m *models.Match, mv *models.Move) error
	UpdateMatch(ctx context.Context, expectedPly int, expectedStatus models.MatchStatus, m *models.Match) error
	ListMoves(ctx context.Context, matchID uuid.UUID) ([]models.Move, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	ListActive(ctx context.Context, limit int) ([]*models.Match, error)
}

// App is the authoritative match state machine. All transitions of one match
// run under that match's lock and are persisted with a compare-and-set on the
// ply count, so at most one move is ever accepted per ply.
type App struct {
	repo     MatchRepository
	oracle   rules.Oracle
	engine   *clock.Engine
	clock    clockwork.Clock
	emitter  Emitter
	notifier notify.Notifier
	locks    *keyedLocks
}

// NewApp creates a new match App. A nil emitter or notifier disables that output.
func NewApp(repo MatchRepository, oracle rules.Oracle, engine *clock.Engine, clk clockwork.Clock, emitter Emitter, notifier notify.Notifier) *App {
	if engine == nil {
		engine = clock.NewEngine(clock.DefaultGrace)
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if emitter == nil {
		emitter = NopEmitter{}
	}
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &App{
		repo:     repo,
		oracle:   oracle,
		engine:   engine,
		clock:    clk,
		emitter:  emitter,
		notifier: notifier,
		locks:    newKeyedLocks(),
	}
}

// Engine exposes the clock rules used by this app.
func (a *App) Engine() *clock.Engine {
	return a.engine
}

// CreateMatch starts an active match between two known players.
func (a *App) CreateMatch(ctx context.Context, req CreateMatchRequest) (*models.Match, error) {
	if err := validateCreateMatchRequest(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	m := NewActiveMatch(a.engine, req.WhiteID, req.BlackID, req.TimeControl, req.Increment, a.clock.Now())
	if err := a.repo.CreateMatch(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to create match: %w", err)
	}

	a.AnnounceStarted(ctx, m)
	return m, nil
}

// AnnounceStarted broadcasts and notifies that m became active. Pairing calls
// it after creating a match in its own transaction.
func (a *App) AnnounceStarted(ctx context.Context, m *models.Match) {
	var graceDeadline time.Time
	if m.NextDeadline != nil {
		graceDeadline = *m.NextDeadline
	}
	startedAt := m.UpdatedAt
	if m.LastMoveAt != nil {
		startedAt = *m.LastMoveAt
	}

	a.emit(ctx, m.ID, events.EventTypeMatchStarted, events.MatchStartedPayload{
		MatchID:       m.ID.String(),
		WhiteID:       m.PlayerID(models.SideWhite),
		BlackID:       m.PlayerID(models.SideBlack),
		TimeControl:   m.TimeControl,
		Increment:     m.Increment,
		Position:      m.CurrentPosition,
		StartedAt:     startedAt,
		GraceDeadline: graceDeadline,
	})
	a.notifier.Notify(ctx, notify.Notification{
		Kind:    notify.KindMatchStarted,
		MatchID: m.ID.String(),
		UserIDs: participants(m),
		At:      startedAt,
	})

	log.Info().
		Str("match_id", m.ID.String()).
		Str("white", m.PlayerID(models.SideWhite)).
		Str("black", m.PlayerID(models.SideBlack)).
		Int("time_control", m.TimeControl).
		Int("increment", m.Increment).
		Msg("match started")
}

// CreateChallenge opens a waiting match with the host seated.
func (a *App) CreateChallenge(ctx context.Context, req CreateChallengeRequest) (*models.Match, error) {
	if req.HostSide == "" {
		req.HostSide = models.SideWhite
	}
	if err := validateChallengeRequest(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	m := newMatch(req.TimeControl, req.Increment, a.clock.Now())
	host := req.HostID
	if req.HostSide == models.SideWhite {
		m.WhiteID = &host
	} else {
		m.BlackID = &host
	}

	if err := a.repo.CreateMatch(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to create challenge: %w", err)
	}

	log.Info().Str("match_id", m.ID.String()).Str("host", host).Str("side", string(req.HostSide)).Msg("challenge created")
	return m, nil
}

// AcceptChallenge binds userID to the open seat and starts the match.
func (a *App) AcceptChallenge(ctx context.Context, matchID uuid.UUID, userID string) (*models.Match, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", models.ErrInvalidArgument)
	}

	unlock := a.locks.Lock(matchID)
	defer unlock()

	m, err := a.repo.GetMatch(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	if m.Status != models.MatchStatusWaiting {
		return nil, models.ErrMatchNotActive
	}
	if m.IsParticipant(userID) {
		return nil, fmt.Errorf("%w: cannot accept your own challenge", models.ErrInvalidArgument)
	}

	updated := m.Clone()
	guest := userID
	if updated.WhiteID == nil {
		updated.WhiteID = &guest
	} else {
		updated.BlackID = &guest
	}
	activate(a.engine, updated, a.clock.Now())

	if err := a.repo.UpdateMatch(ctx, m.PlyCount, models.MatchStatusWaiting, updated); err != nil {
		if errors.Is(err, models.ErrStalePly) {
			return nil, models.ErrMatchNotActive
		}
		return nil, fmt.Errorf("failed to accept challenge: %w", err)
	}

	a.AnnounceStarted(ctx, updated)
	return updated, nil
}

// CancelChallenge aborts a waiting match. Cancelling twice is a no-op.
func (a *App) CancelChallenge(ctx context.Context, matchID uuid.UUID, hostID string) (*models.Match, error) {
	unlock := a.locks.Lock(matchID)
	defer unlock()

	m, err := a.repo.GetMatch(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	if !m.IsParticipant(hostID) {
		return nil, models.ErrNotParticipant
	}
	if m.Status == models.MatchStatusCompleted && m.Result != nil && *m.Result == models.MatchResultAborted {
		return m, nil
	}
	if m.Status != models.MatchStatusWaiting {
		return nil, models.ErrMatchNotActive
	}

	updated := m.Clone()
	complete(updated, models.MatchResultAborted, "", a.clock.Now())
	if err := a.repo.UpdateMatch(ctx, m.PlyCount, models.MatchStatusWaiting, updated); err != nil {
		if errors.Is(err, models.ErrStalePly) {
			return nil, models.ErrMatchNotActive
		}
		return nil, fmt.Errorf("failed to cancel challenge: %w", err)
	}

	log.Info().Str("match_id", matchID.String()).Msg("challenge cancelled")
	return updated, nil
}

// SubmitMove validates and applies one half-move.
func (a *App) SubmitMove(ctx context.Context, req SubmitMoveRequest) (*MoveResult, error) {
	if err := validateSubmitMoveRequest(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if _, err := rules.UCI(req.From, req.To, req.Promotion); err != nil {
		return nil, models.ErrIllegalMove
	}

	unlock := a.locks.Lock(req.MatchID)
	defer unlock()

	m, err := a.repo.GetMatch(ctx, req.MatchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	if m.Status != models.MatchStatusActive {
		return nil, models.ErrMatchNotActive
	}
	side, ok := m.SideOf(req.PlayerID)
	if !ok {
		return nil, models.ErrNotParticipant
	}
	if req.ExpectedPly != nil && *req.ExpectedPly != m.PlyCount {
		return nil, models.ErrStalePly
	}
	if side != m.Turn {
		return nil, models.ErrNotYourTurn
	}

	now := a.clock.Now()
	st := clock.FromMatch(m)
	switch verdict := a.engine.Check(st, now); verdict {
	case clock.VerdictGraceExpired, clock.VerdictTimeout:
		if _, err := a.expire(ctx, m, verdict, now); err != nil && !errors.Is(err, models.ErrStalePly) {
			return nil, err
		}
		if verdict == clock.VerdictGraceExpired {
			return nil, models.ErrGraceExpired
		}
		return nil, models.ErrClockExpired
	}

	v, err := a.oracle.ValidateMove(m.CurrentPosition, req.From, req.To, req.Promotion)
	if err != nil {
		return nil, fmt.Errorf("failed to validate move: %w", err)
	}
	if !v.Legal {
		return nil, models.ErrIllegalMove
	}

	next, err := a.engine.ApplyMove(st, now, time.Duration(m.Increment)*time.Second)
	if err != nil {
		return nil, err
	}

	updated := m.Clone()
	updated.CurrentPosition = v.NewPosition
	updated.WhiteRemaining = next.WhiteRemaining
	updated.BlackRemaining = next.BlackRemaining
	updated.Turn = next.Turn
	updated.PlyCount = next.Ply
	updated.LastMoveAt = &now
	updated.DrawOfferedBy = nil
	updated.UpdatedAt = now

	flags := models.MoveFlags{
		Check:     v.IsCheck,
		Checkmate: v.IsCheckmate,
		Stalemate: v.IsStalemate,
		Draw:      v.IsDraw,
	}
	switch {
	case v.IsCheckmate:
		complete(updated, models.MatchResultCheckmate, req.PlayerID, now)
	case v.IsStalemate || v.IsDraw:
		complete(updated, models.MatchResultDraw, "", now)
	default:
		deadline := a.engine.Deadline(next)
		updated.NextDeadline = &deadline
	}

	mv := &models.Move{
		ID:            uuid.New(),
		MatchID:       m.ID,
		PlyNumber:     m.PlyCount,
		PlayerID:      req.PlayerID,
		Notation:      v.Notation,
		SAN:           v.SAN,
		PositionAfter: v.NewPosition,
		Flags:         flags,
		SubmittedAt:   now,
	}

	if err := a.repo.ApplyMove(ctx, m.PlyCount, updated, mv); err != nil {
		if errors.Is(err, models.ErrStalePly) {
			return nil, models.ErrStalePly
		}
		return nil, fmt.Errorf("failed to apply move: %w", err)
	}

	a.emit(ctx, m.ID, events.EventTypeMoveMade, movePayload(updated, mv))
	if updated.Status == models.MatchStatusCompleted {
		a.announceCompleted(ctx, updated)
	}

	log.Debug().
		Str("match_id", m.ID.String()).
		Int("ply", mv.PlyNumber).
		Str("move", mv.Notation).
		Msg("move accepted")

	return &MoveResult{
		Accepted:    true,
		NewPosition: updated.CurrentPosition,
		Flags:       flags,
		Move:        mv,
		Match:       updated,
	}, nil
}

// EnforceClock applies a grace abort or timeout when one is due. Players may
// only claim on the side to move; SystemRequester may claim for either.
func (a *App) EnforceClock(ctx context.Context, matchID uuid.UUID, requester string) (*ClockClaim, error) {
	unlock := a.locks.Lock(matchID)
	defer unlock()

	m, err := a.repo.GetMatch(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}

	system := requester == SystemRequester
	if m.Status != models.MatchStatusActive {
		if system {
			return &ClockClaim{Verdict: clock.VerdictRunning.String(), Match: m}, nil
		}
		return nil, models.ErrMatchNotActive
	}
	if !system {
		side, ok := m.SideOf(requester)
		if !ok {
			return nil, models.ErrNotParticipant
		}
		if side != m.Turn {
			return nil, models.ErrNotYourTurn
		}
	}

	now := a.clock.Now()
	verdict := a.engine.Check(clock.FromMatch(m), now)
	if verdict == clock.VerdictRunning {
		if system {
			return &ClockClaim{Verdict: verdict.String(), Match: m}, nil
		}
		return nil, models.ErrNothingToClaim
	}

	updated, err := a.expire(ctx, m, verdict, now)
	if err != nil {
		if errors.Is(err, models.ErrStalePly) {
			return &ClockClaim{Verdict: verdict.String(), Match: m}, nil
		}
		return nil, err
	}
	return &ClockClaim{Verdict: verdict.String(), Applied: true, Match: updated}, nil
}

// expire completes m for a grace or timeout verdict. The caller holds the lock.
func (a *App) expire(ctx context.Context, m *models.Match, verdict clock.Verdict, now time.Time) (*models.Match, error) {
	updated := m.Clone()

	switch verdict {
	case clock.VerdictGraceExpired:
		// The abort deducts nothing from either clock.
		complete(updated, models.MatchResultAborted, "", now)
	case clock.VerdictTimeout:
		flagged := m.Turn
		if flagged == models.SideWhite {
			updated.WhiteRemaining = 0
		} else {
			updated.BlackRemaining = 0
		}
		winner := flagged.Opponent()
		canMate, err := a.oracle.HasMatingMaterial(m.CurrentPosition, winner)
		if err != nil {
			log.Warn().Err(err).Str("match_id", m.ID.String()).Msg("could not inspect material, awarding timeout")
			canMate = true
		}
		if canMate {
			complete(updated, models.MatchResultTimeout, m.PlayerID(winner), now)
		} else {
			complete(updated, models.MatchResultDraw, "", now)
		}
	default:
		return nil, fmt.Errorf("no transition for verdict %s", verdict)
	}

	if err := a.repo.UpdateMatch(ctx, m.PlyCount, models.MatchStatusActive, updated); err != nil {
		if errors.Is(err, models.ErrStalePly) {
			return nil, models.ErrStalePly
		}
		return nil, fmt.Errorf("failed to apply %s: %w", verdict, err)
	}

	log.Info().
		Str("match_id", m.ID.String()).
		Str("verdict", verdict.String()).
		Str("result", string(*updated.Result)).
		Msg("clock transition applied")

	a.announceCompleted(ctx, updated)
	return updated, nil
}

// Resign ends the match in the opponent's favour.
func (a *App) Resign(ctx context.Context, matchID uuid.UUID, playerID string) (*models.Match, error) {
	unlock := a.locks.Lock(matchID)
	defer unlock()

	m, side, err := a.loadActive(ctx, matchID, playerID)
	if err != nil {
		return nil, err
	}

	updated := m.Clone()
	complete(updated, models.MatchResultResignation, m.PlayerID(side.Opponent()), a.clock.Now())
	if err := a.repo.UpdateMatch(ctx, m.PlyCount, models.MatchStatusActive, updated); err != nil {
		if errors.Is(err, models.ErrStalePly) {
			return nil, models.ErrStalePly
		}
		return nil, fmt.Errorf("failed to resign: %w", err)
	}

	a.announceCompleted(ctx, updated)
	return updated, nil
}

// OfferDraw records a draw offer. An offer made while the opponent's offer is
// pending accepts it; repeating one's own offer changes nothing.
func (a *App) OfferDraw(ctx context.Context, matchID uuid.UUID, playerID string) (*models.Match, error) {
	unlock := a.locks.Lock(matchID)
	defer unlock()

	m, _, err := a.loadActive(ctx, matchID, playerID)
	if err != nil {
		return nil, err
	}
	if m.DrawOfferedBy != nil && *m.DrawOfferedBy == playerID {
		return m, nil
	}

	updated := m.Clone()
	now := a.clock.Now()
	if m.DrawOfferedBy != nil {
		complete(updated, models.MatchResultDraw, "", now)
	} else {
		offeredBy := playerID
		updated.DrawOfferedBy = &offeredBy
		updated.UpdatedAt = now
	}

	if err := a.repo.UpdateMatch(ctx, m.PlyCount, models.MatchStatusActive, updated); err != nil {
		if errors.Is(err, models.ErrStalePly) {
			return nil, models.ErrStalePly
		}
		return nil, fmt.Errorf("failed to offer draw: %w", err)
	}

	if updated.Status == models.MatchStatusCompleted {
		a.announceCompleted(ctx, updated)
	} else {
		a.emit(ctx, m.ID, events.EventTypeDrawOffered, events.DrawOfferPayload{
			MatchID:  m.ID.String(),
			PlayerID: playerID,
			Ply:      m.PlyCount,
		})
	}
	return updated, nil
}

// RespondDraw accepts or declines the opponent's pending offer.
func (a *App) RespondDraw(ctx context.Context, matchID uuid.UUID, playerID string, accept bool) (*models.Match, error) {
	unlock := a.locks.Lock(matchID)
	defer unlock()

	m, _, err := a.loadActive(ctx, matchID, playerID)
	if err != nil {
		return nil, err
	}
	if m.DrawOfferedBy == nil || *m.DrawOfferedBy == playerID {
		return nil, models.ErrNoDrawOffer
	}

	updated := m.Clone()
	now := a.clock.Now()
	if accept {
		complete(updated, models.MatchResultDraw, "", now)
	} else {
		updated.DrawOfferedBy = nil
		updated.UpdatedAt = now
	}

	if err := a.repo.UpdateMatch(ctx, m.PlyCount, models.MatchStatusActive, updated); err != nil {
		if errors.Is(err, models.ErrStalePly) {
			return nil, models.ErrStalePly
		}
		return nil, fmt.Errorf("failed to respond to draw: %w", err)
	}

	if accept {
		a.announceCompleted(ctx, updated)
	} else {
		a.emit(ctx, m.ID, events.EventTypeDrawDeclined, events.DrawOfferPayload{
			MatchID:  m.ID.String(),
			PlayerID: playerID,
			Ply:      m.PlyCount,
		})
	}
	return updated, nil
}

// GetMatch returns the match with remaining times computed now.
func (a *App) GetMatch(ctx context.Context, matchID uuid.UUID) (*Snapshot, error) {
	m, err := a.repo.GetMatch(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	return a.snapshot(m), nil
}

func (a *App) snapshot(m *models.Match) *Snapshot {
	now := a.clock.Now()
	snap := &Snapshot{
		Match:          m,
		WhiteRemaining: m.WhiteRemaining,
		BlackRemaining: m.BlackRemaining,
		ServerTime:     now,
	}
	if m.Status == models.MatchStatusActive {
		st := clock.FromMatch(m)
		snap.WhiteRemaining = a.engine.Remaining(st, models.SideWhite, now)
		snap.BlackRemaining = a.engine.Remaining(st, models.SideBlack, now)
		deadline := a.engine.Deadline(st)
		snap.Deadline = &deadline
	}
	return snap
}

// ActiveMatchForUser returns the match userID is currently playing or
// waiting in, or models.ErrNotFound.
func (a *App) ActiveMatchForUser(ctx context.Context, userID string) (*models.Match, error) {
	m, err := a.repo.GetActiveMatchForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active match: %w", err)
	}
	return m, nil
}

// ListMoves returns the accepted moves of a match in ply order.
func (a *App) ListMoves(ctx context.Context, matchID uuid.UUID) ([]models.Move, error) {
	moves, err := a.repo.ListMoves(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list moves: %w", err)
	}
	return moves, nil
}

// ReplayPosition replays the persisted moves from the starting position.
func (a *App) ReplayPosition(ctx context.Context, matchID uuid.UUID) (string, error) {
	moves, err := a.ListMoves(ctx, matchID)
	if err != nil {
		return "", err
	}
	notations := make([]string, 0, len(moves))
	for _, mv := range moves {
		notations = append(notations, mv.Notation)
	}
	pos, err := a.oracle.Replay(models.StartingPosition, notations)
	if err != nil {
		return "", fmt.Errorf("failed to replay match %s: %w", matchID, err)
	}
	return pos, nil
}

// FetchOverdueMatches returns active matches whose deadline has passed.
func (a *App) FetchOverdueMatches(ctx context.Context, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be greater than 0", models.ErrInvalidArgument)
	}
	ids, err := a.repo.ListOverdue(ctx, a.clock.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch overdue matches: %w", err)
	}
	return ids, nil
}

// ListActiveMatches returns up to limit active matches.
func (a *App) ListActiveMatches(ctx context.Context, limit int) ([]*models.Match, error) {
	ms, err := a.repo.ListActive(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list active matches: %w", err)
	}
	return ms, nil
}

func (a *App) loadActive(ctx context.Context, matchID uuid.UUID, playerID string) (*models.Match, models.Side, error) {
	m, err := a.repo.GetMatch(ctx, matchID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get match: %w", err)
	}
	if m.Status != models.MatchStatusActive {
		return nil, "", models.ErrMatchNotActive
	}
	side, ok := m.SideOf(playerID)
	if !ok {
		return nil, "", models.ErrNotParticipant
	}
	return m, side, nil
}

func (a *App) announceCompleted(ctx context.Context, m *models.Match) {
	payload := completedPayload(m)
	a.emit(ctx, m.ID, events.EventTypeMatchCompleted, payload)

	kind := notify.KindMatchCompleted
	if payload.Result == string(models.MatchResultAborted) {
		kind = notify.KindMatchAborted
	}
	a.notifier.Notify(ctx, notify.Notification{
		Kind:     kind,
		MatchID:  payload.MatchID,
		UserIDs:  participants(m),
		Result:   payload.Result,
		WinnerID: payload.WinnerID,
		At:       payload.CompletedAt,
	})
}

func (a *App) emit(ctx context.Context, matchID uuid.UUID, eventType events.EventType, payload any) {
	if err := a.emitter.Emit(ctx, events.MatchTopic(matchID), eventType, payload); err != nil {
		log.Error().Err(err).Str("match_id", matchID.String()).Str("event_type", string(eventType)).Msg("failed to emit event")
	}
}

// complete moves m into the terminal state.
func complete(m *models.Match, result models.MatchResult, winnerID string, now time.Time) {
	m.Status = models.MatchStatusCompleted
	m.Result = &result
	m.WinnerID = nil
	if winnerID != "" {
		m.WinnerID = &winnerID
	}
	m.DrawOfferedBy = nil
	m.NextDeadline = nil
	m.CompletedAt = &now
	m.UpdatedAt = now
}

func participants(m *models.Match) []string {
	var ids []string
	for _, side := range []models.Side{models.SideWhite, models.SideBlack} {
		if id := m.PlayerID(side); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func movePayload(m *models.Match, mv *models.Move) events.MoveMadePayload {
	return events.MoveMadePayload{
		MatchID:        m.ID.String(),
		Ply:            m.PlyCount,
		Position:       m.CurrentPosition,
		Turn:           string(m.Turn),
		WhiteRemaining: events.Millis(m.WhiteRemaining),
		BlackRemaining: events.Millis(m.BlackRemaining),
		Flags:          mv.Flags,
		Notation:       mv.Notation,
		SAN:            mv.SAN,
		PlayerID:       mv.PlayerID,
		MovedAt:        mv.SubmittedAt,
	}
}

func completedPayload(m *models.Match) events.MatchCompletedPayload {
	p := events.MatchCompletedPayload{
		MatchID:        m.ID.String(),
		Ply:            m.PlyCount,
		Position:       m.CurrentPosition,
		WhiteRemaining: events.Millis(m.WhiteRemaining),
		BlackRemaining: events.Millis(m.BlackRemaining),
	}
	if m.Result != nil {
		p.Result = string(*m.Result)
	}
	if m.WinnerID != nil {
		p.WinnerID = *m.WinnerID
	}
	if m.CompletedAt != nil {
		p.CompletedAt = *m.CompletedAt
	}
	return p
}

func validateCreateMatchRequest(req CreateMatchRequest) error {
	if req.WhiteID == "" || req.BlackID == "" {
		return fmt.Errorf("%w: both players are required", models.ErrInvalidArgument)
	}
	if req.WhiteID == req.BlackID {
		return fmt.Errorf("%w: a player cannot play themselves", models.ErrInvalidArgument)
	}
	return validateTimeControl(req.TimeControl, req.Increment)
}

func validateChallengeRequest(req CreateChallengeRequest) error {
	if req.HostID == "" {
		return fmt.Errorf("%w: host id is required", models.ErrInvalidArgument)
	}
	if !req.HostSide.Valid() {
		return fmt.Errorf("%w: unknown side %q", models.ErrInvalidArgument, req.HostSide)
	}
	return validateTimeControl(req.TimeControl, req.Increment)
}

func validateSubmitMoveRequest(req SubmitMoveRequest) error {
	if req.MatchID == uuid.Nil {
		return fmt.Errorf("%w: match id is required", models.ErrInvalidArgument)
	}
	if req.PlayerID == "" {
		return fmt.Errorf("%w: player id is required", models.ErrInvalidArgument)
	}
	return nil
}

func validateTimeControl(timeControl, increment int) error {
	if timeControl <= 0 {
		return fmt.Errorf("%w: time control must be positive", models.ErrInvalidArgument)
	}
	if increment < 0 {
		return fmt.Errorf("%w: increment cannot be negative", models.ErrInvalidArgument)
	}
	return nil
}

// ValidateTimeControl checks a (base, increment) pair in seconds.
func ValidateTimeControl(timeControl, increment int) error {
	return validateTimeControl(timeControl, increment)
}
