package pairing

import (
	"context"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mcdev12/gambit/go/internal/auth"
	"github.com/mcdev12/gambit/go/internal/rpc"
)

// QueueApp defines what the service layer needs from the pairing application
type QueueApp interface {
	Join(ctx context.Context, userID string, timeControl, increment int) (*JoinResult, error)
	Poll(ctx context.Context, userID string) (*JoinResult, error)
	Leave(ctx context.Context, userID string) error
}

type JoinRequest struct {
	UserID      string `json:"user_id,omitempty"`
	TimeControl int    `json:"time_control"`
	Increment   int    `json:"increment"`
}

type UserRequest struct {
	UserID string `json:"user_id,omitempty"`
}

type LeaveResponse struct{}

const PairingServiceName = "gambit.pairing.v1.PairingService"

const (
	PairingServiceJoinProcedure  = "/" + PairingServiceName + "/Join"
	PairingServicePollProcedure  = "/" + PairingServiceName + "/Poll"
	PairingServiceLeaveProcedure = "/" + PairingServiceName + "/Leave"
)

// Service implements the PairingService connect handlers
type Service struct {
	app QueueApp
}

func NewService(app QueueApp) *Service {
	return &Service{app: app}
}

// NewPairingServiceHandler builds the HTTP handler serving every PairingService procedure.
func NewPairingServiceHandler(s *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = rpc.HandlerOptions(opts...)
	mux := http.NewServeMux()
	mux.Handle(PairingServiceJoinProcedure, connect.NewUnaryHandler(PairingServiceJoinProcedure, s.Join, opts...))
	mux.Handle(PairingServicePollProcedure, connect.NewUnaryHandler(PairingServicePollProcedure, s.Poll, opts...))
	mux.Handle(PairingServiceLeaveProcedure, connect.NewUnaryHandler(PairingServiceLeaveProcedure, s.Leave, opts...))
	return "/" + PairingServiceName + "/", mux
}

// Join enters the queue or returns the caller's match
func (s *Service) Join(ctx context.Context, req *connect.Request[JoinRequest]) (*connect.Response[JoinResult], error) {
	user, err := auth.Resolve(ctx, req.Msg.UserID)
	if err != nil {
		return nil, rpc.Error(err)
	}
	res, err := s.app.Join(ctx, user, req.Msg.TimeControl, req.Msg.Increment)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return connect.NewResponse(res), nil
}

// Poll is called by queued clients every PollInterval
func (s *Service) Poll(ctx context.Context, req *connect.Request[UserRequest]) (*connect.Response[JoinResult], error) {
	user, err := auth.Resolve(ctx, req.Msg.UserID)
	if err != nil {
		return nil, rpc.Error(err)
	}
	res, err := s.app.Poll(ctx, user)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return connect.NewResponse(res), nil
}

// Leave cancels the caller's queue entry
func (s *Service) Leave(ctx context.Context, req *connect.Request[UserRequest]) (*connect.Response[LeaveResponse], error) {
	user, err := auth.Resolve(ctx, req.Msg.UserID)
	if err != nil {
		return nil, rpc.Error(err)
	}
	if err := s.app.Leave(ctx, user); err != nil {
		return nil, rpc.Error(err)
	}
	return connect.NewResponse(&LeaveResponse{}), nil
}
