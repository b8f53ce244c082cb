package match

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/auth"
	"github.com/mcdev12/gambit/go/internal/models"
	"github.com/mcdev12/gambit/go/internal/rpc"
)

// MatchApp defines what the service layer needs from the match application
type MatchApp interface {
	CreateMatch(ctx context.Context, req CreateMatchRequest) (*models.Match, error)
	CreateChallenge(ctx context.Context, req CreateChallengeRequest) (*models.Match, error)
	AcceptChallenge(ctx context.Context, matchID uuid.UUID, userID string) (*models.Match, error)
	CancelChallenge(ctx context.Context, matchID uuid.UUID, hostID string) (*models.Match, error)
	SubmitMove(ctx context.Context, req SubmitMoveRequest) (*MoveResult, error)
	EnforceClock(ctx context.Context, matchID uuid.UUID, requester string) (*ClockClaim, error)
	Resign(ctx context.Context, matchID uuid.UUID, playerID string) (*models.Match, error)
	OfferDraw(ctx context.Context, matchID uuid.UUID, playerID string) (*models.Match, error)
	RespondDraw(ctx context.Context, matchID uuid.UUID, playerID string, accept bool) (*models.Match, error)
	GetMatch(ctx context.Context, matchID uuid.UUID) (*Snapshot, error)
	ActiveMatchForUser(ctx context.Context, userID string) (*models.Match, error)
	ListMoves(ctx context.Context, matchID uuid.UUID) ([]models.Move, error)
	ReplayPosition(ctx context.Context, matchID uuid.UUID) (string, error)
	FetchOverdueMatches(ctx context.Context, limit int) ([]uuid.UUID, error)
	ListActiveMatches(ctx context.Context, limit int) ([]*models.Match, error)
}

// Wire messages that are not plain app types.
type (
	MatchRequest struct {
		MatchID  uuid.UUID `json:"match_id"`
		PlayerID string    `json:"player_id,omitempty"`
	}
	RespondDrawRequest struct {
		MatchID  uuid.UUID `json:"match_id"`
		PlayerID string    `json:"player_id,omitempty"`
		Accept   bool      `json:"accept"`
	}
	MatchResponse struct {
		Match *models.Match `json:"match"`
	}
	ActiveMatchRequest struct {
		UserID string `json:"user_id,omitempty"`
	}
	ListMovesResponse struct {
		Moves    []models.Move `json:"moves"`
		Position string        `json:"position"`
	}
	ListRequest struct {
		Limit int `json:"limit"`
	}
	ListOverdueResponse struct {
		MatchIDs []uuid.UUID `json:"match_ids"`
	}
	ListActiveResponse struct {
		Matches []*models.Match `json:"matches"`
	}
)

const MatchServiceName = "gambit.match.v1.MatchService"

const (
	MatchServiceCreateMatchProcedure     = "/" + MatchServiceName + "/CreateMatch"
	MatchServiceCreateChallengeProcedure = "/" + MatchServiceName + "/CreateChallenge"
	MatchServiceAcceptChallengeProcedure = "/" + MatchServiceName + "/AcceptChallenge"
	MatchServiceCancelChallengeProcedure = "/" + MatchServiceName + "/CancelChallenge"
	MatchServiceSubmitMoveProcedure      = "/" + MatchServiceName + "/SubmitMove"
	MatchServiceClaimClockProcedure      = "/" + MatchServiceName + "/ClaimClock"
	MatchServiceEnforceClockProcedure    = "/" + MatchServiceName + "/EnforceClock"
	MatchServiceResignProcedure          = "/" + MatchServiceName + "/Resign"
	MatchServiceOfferDrawProcedure       = "/" + MatchServiceName + "/OfferDraw"
	MatchServiceRespondDrawProcedure     = "/" + MatchServiceName + "/RespondDraw"
	MatchServiceGetMatchProcedure        = "/" + MatchServiceName + "/GetMatch"
	MatchServiceActiveMatchProcedure     = "/" + MatchServiceName + "/ActiveMatch"
	MatchServiceListMovesProcedure       = "/" + MatchServiceName + "/ListMoves"
	MatchServiceListOverdueProcedure     = "/" + MatchServiceName + "/ListOverdue"
	MatchServiceListActiveProcedure      = "/" + MatchServiceName + "/ListActive"
)

// Service implements the MatchService connect handlers
type Service struct {
	app MatchApp
}

// NewService creates a new match service
func NewService(app MatchApp) *Service {
	return &Service{app: app}
}

// NewMatchServiceHandler builds the HTTP handler serving every MatchService procedure.
func NewMatchServiceHandler(s *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = rpc.HandlerOptions(opts...)
	mux := http.NewServeMux()
	mux.Handle(MatchServiceCreateMatchProcedure, connect.NewUnaryHandler(MatchServiceCreateMatchProcedure, s.CreateMatch, opts...))
	mux.Handle(MatchServiceCreateChallengeProcedure, connect.NewUnaryHandler(MatchServiceCreateChallengeProcedure, s.CreateChallenge, opts...))
	mux.Handle(MatchServiceAcceptChallengeProcedure, connect.NewUnaryHandler(MatchServiceAcceptChallengeProcedure, s.AcceptChallenge, opts...))
	mux.Handle(MatchServiceCancelChallengeProcedure, connect.NewUnaryHandler(MatchServiceCancelChallengeProcedure, s.CancelChallenge, opts...))
	mux.Handle(MatchServiceSubmitMoveProcedure, connect.NewUnaryHandler(MatchServiceSubmitMoveProcedure, s.SubmitMove, opts...))
	mux.Handle(MatchServiceClaimClockProcedure, connect.NewUnaryHandler(MatchServiceClaimClockProcedure, s.ClaimClock, opts...))
	mux.Handle(MatchServiceEnforceClockProcedure, connect.NewUnaryHandler(MatchServiceEnforceClockProcedure, s.EnforceClock, opts...))
	mux.Handle(MatchServiceResignProcedure, connect.NewUnaryHandler(MatchServiceResignProcedure, s.Resign, opts...))
	mux.Handle(MatchServiceOfferDrawProcedure, connect.NewUnaryHandler(MatchServiceOfferDrawProcedure, s.OfferDraw, opts...))
	mux.Handle(MatchServiceRespondDrawProcedure, connect.NewUnaryHandler(MatchServiceRespondDrawProcedure, s.RespondDraw, opts...))
	mux.Handle(MatchServiceGetMatchProcedure, connect.NewUnaryHandler(MatchServiceGetMatchProcedure, s.GetMatch, opts...))
	mux.Handle(MatchServiceActiveMatchProcedure, connect.NewUnaryHandler(MatchServiceActiveMatchProcedure, s.ActiveMatch, opts...))
	mux.Handle(MatchServiceListMovesProcedure, connect.NewUnaryHandler(MatchServiceListMovesProcedure, s.ListMoves, opts...))
	mux.Handle(MatchServiceListOverdueProcedure, connect.NewUnaryHandler(MatchServiceListOverdueProcedure, s.ListOverdue, opts...))
	mux.Handle(MatchServiceListActiveProcedure, connect.NewUnaryHandler(MatchServiceListActiveProcedure, s.ListActive, opts...))
	return "/" + MatchServiceName + "/", mux
}

// CreateMatch starts a match between two known players
func (s *Service) CreateMatch(ctx context.Context, req *connect.Request[CreateMatchRequest]) (*connect.Response[MatchResponse], error) {
	m, err := s.app.CreateMatch(ctx, *req.Msg)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return connect.NewResponse(&MatchResponse{Match: m}), nil
}

// CreateChallenge opens a waiting match for the caller
func (s *Service) CreateChallenge(ctx context.Context, req *connect.Request[CreateChallengeRequest]) (*connect.Response[MatchResponse], error) {
	host, err := auth.Resolve(ctx, req.Msg.HostID)
	if err != nil {
		return nil, rpc.Error(err)
	}
	msg := *req.Msg
	msg.HostID = host

	m, err := s.app.CreateChallenge(ctx, msg)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return connect.NewResponse(&MatchResponse{Match: m}), nil
}

func (s *Service) AcceptChallenge(ctx context.Context, req *connect.Request[MatchRequest]) (*connect.Response[MatchResponse], error) {
	return s.playerAction(ctx, req.Msg, s.app.AcceptChallenge)
}

func (s *Service) CancelChallenge(ctx context.Context, req *connect.Request[MatchRequest]) (*connect.Response[MatchResponse], error) {
	return s.playerAction(ctx, req.Msg, s.app.CancelChallenge)
}

func (s *Service) Resign(ctx context.Context, req *connect.Request[MatchRequest]) (*connect.Response[MatchResponse], error) {
	return s.playerAction(ctx, req.Msg, s.app.Resign)
}

func (s *Service) OfferDraw(ctx context.Context, req *connect.Request[MatchRequest]) (*connect.Response[MatchResponse], error) {
	return s.playerAction(ctx, req.Msg, s.app.OfferDraw)
}

func (s *Service) playerAction(ctx context.Context, msg *MatchRequest, fn func(context.Context, uuid.UUID, string) (*models.Match, error)) (*connect.Response[MatchResponse], error) {
	player, err := auth.Resolve(ctx, msg.PlayerID)
	if err != nil {
		return nil, rpc.Error(err)
	}
	m, err := fn(ctx, msg.MatchID, player)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return connect.NewResponse(&MatchResponse{Match: m}), nil
}

// RespondDraw accepts or declines the opponent's draw offer
func (s *Service) RespondDraw(ctx context.Context, req *connect.Request[RespondDrawRequest]) (*connect.Response[MatchResponse], error) {
	player, err := auth.Resolve(ctx, req.Msg.PlayerID)
	if err != nil {
		return nil, rpc.Error(err)
	}
	m, err := s.app.RespondDraw(ctx, req.Msg.MatchID, player, req.Msg.Accept)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return connect.NewResponse(&MatchResponse{Match: m}), nil
}

// SubmitMove is the authoritative half of the optimistic move protocol
func (s *Service) SubmitMove(ctx context.Context, req *connect.Request[SubmitMoveRequest]) (*connect.Response[MoveResult], error) {
	player, err := auth.Resolve(ctx, req.Msg.PlayerID)
	if err != nil {
		return nil, rpc.Error(err)
	}
	msg := *req.Msg
	msg.PlayerID = player

	result, err := s.app.SubmitMove(ctx, msg)
	if err != nil {
		if _, ok := models.AsRejection(err); !ok {
			log.Error().Err(err).Str("match_id", msg.MatchID.String()).Msg("submit move failed")
		}
		return nil, rpc.Error(err)
	}
	return connect.NewResponse(result), nil
}

// ClaimClock lets the side to move apply an expired grace period or flag
func (s *Service) ClaimClock(ctx context.Context, req *connect.Request[MatchRequest]) (*connect.Response[ClockClaim], error) {
	player, err := auth.Resolve(ctx, req.Msg.PlayerID)
	if err != nil {
		return nil, rpc.Error(err)
	}
	claim, err := s.app.EnforceClock(ctx, req.Msg.MatchID, player)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return connect.NewResponse(claim), nil
}

// EnforceClock is called by the orchestrator when a deadline fires
func (s *Service) EnforceClock(ctx context.Context, req *connect.Request[MatchRequest]) (*connect.Response[ClockClaim], error) {
	claim, err := s.app.EnforceClock(ctx, req.Msg.MatchID, SystemRequester)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return connect.NewResponse(claim), nil
}

// GetMatch returns a live snapshot of a match
func (s *Service) GetMatch(ctx context.Context, req *connect.Request[MatchRequest]) (*connect.Response[Snapshot], error) {
	snap, err := s.app.GetMatch(ctx, req.Msg.MatchID)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return connect.NewResponse(snap), nil
}

// ActiveMatch returns the caller's unfinished match
func (s *Service) ActiveMatch(ctx context.Context, req *connect.Request[ActiveMatchRequest]) (*connect.Response[MatchResponse], error) {
	user, err := auth.Resolve(ctx, req.Msg.UserID)
	if err != nil {
		return nil, rpc.Error(err)
	}
	m, err := s.app.ActiveMatchForUser(ctx, user)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return connect.NewResponse(&MatchResponse{Match: m}), nil
}

// ListMoves returns the move list and the position it replays to
func (s *Service) ListMoves(ctx context.Context, req *connect.Request[MatchRequest]) (*connect.Response[ListMovesResponse], error) {
	moves, err := s.app.ListMoves(ctx, req.Msg.MatchID)
	if err != nil {
		return nil, rpc.Error(err)
	}
	pos, err := s.app.ReplayPosition(ctx, req.Msg.MatchID)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return connect.NewResponse(&ListMovesResponse{Moves: moves, Position: pos}), nil
}

func (s *Service) ListOverdue(ctx context.Context, req *connect.Request[ListRequest]) (*connect.Response[ListOverdueResponse], error) {
	ids, err := s.app.FetchOverdueMatches(ctx, req.Msg.Limit)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return connect.NewResponse(&ListOverdueResponse{MatchIDs: ids}), nil
}

func (s *Service) ListActive(ctx context.Context, req *connect.Request[ListRequest]) (*connect.Response[ListActiveResponse], error) {
	ms, err := s.app.ListActiveMatches(ctx, req.Msg.Limit)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return connect.NewResponse(&ListActiveResponse{Matches: ms}), nil
}
