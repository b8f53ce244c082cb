package clocksession

import (
	"context"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mcdev12/gambit/go/internal/auth"
	"github.com/mcdev12/gambit/go/internal/models"
	"github.com/mcdev12/gambit/go/internal/rpc"
)

// SessionApp defines what the service layer needs from the clock session application
type SessionApp interface {
	Create(ctx context.Context, hostID string, hostSide models.Side, timeControl, increment int) (*models.ClockSession, error)
	Join(ctx context.Context, code, deviceID string) (*models.ClockSession, error)
	Press(ctx context.Context, code, deviceID string) (*models.ClockSession, error)
	Pause(ctx context.Context, code, deviceID string) (*models.ClockSession, error)
	Resume(ctx context.Context, code, deviceID string) (*models.ClockSession, error)
	DeclareResult(ctx context.Context, code, deviceID string, result models.SessionResult, reason string) (*models.ClockSession, error)
	Reset(ctx context.Context, code, deviceID string) (*models.ClockSession, error)
	Close(ctx context.Context, code, deviceID string) (*models.ClockSession, error)
	GetState(ctx context.Context, code string) (*Snapshot, error)
}

type (
	CreateRequest struct {
		DeviceID    string      `json:"device_id,omitempty"`
		HostSide    models.Side `json:"host_side"`
		TimeControl int         `json:"time_control"`
		Increment   int         `json:"increment"`
	}
	CodeRequest struct {
		Code     string `json:"code"`
		DeviceID string `json:"device_id,omitempty"`
	}
	DeclareResultRequest struct {
		Code     string               `json:"code"`
		DeviceID string               `json:"device_id,omitempty"`
		Result   models.SessionResult `json:"result"`
		Reason   string               `json:"reason,omitempty"`
	}
	SessionResponse struct {
		Session *models.ClockSession `json:"session"`
	}
)

const ClockSessionServiceName = "gambit.clocksession.v1.ClockSessionService"

const (
	ClockSessionServiceCreateProcedure        = "/" + ClockSessionServiceName + "/Create"
	ClockSessionServiceJoinProcedure          = "/" + ClockSessionServiceName + "/Join"
	ClockSessionServicePressProcedure         = "/" + ClockSessionServiceName + "/Press"
	ClockSessionServicePauseProcedure         = "/" + ClockSessionServiceName + "/Pause"
	ClockSessionServiceResumeProcedure        = "/" + ClockSessionServiceName + "/Resume"
	ClockSessionServiceDeclareResultProcedure = "/" + ClockSessionServiceName + "/DeclareResult"
	ClockSessionServiceResetProcedure         = "/" + ClockSessionServiceName + "/Reset"
	ClockSessionServiceCloseProcedure         = "/" + ClockSessionServiceName + "/Close"
	ClockSessionServiceGetStateProcedure      = "/" + ClockSessionServiceName + "/GetState"
)

// Service implements the ClockSessionService connect handlers
type Service struct {
	app SessionApp
}

func NewService(app SessionApp) *Service {
	return &Service{app: app}
}

// NewClockSessionServiceHandler builds the HTTP handler serving every ClockSessionService procedure.
func NewClockSessionServiceHandler(s *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = rpc.HandlerOptions(opts...)
	mux := http.NewServeMux()
	mux.Handle(ClockSessionServiceCreateProcedure, connect.NewUnaryHandler(ClockSessionServiceCreateProcedure, s.Create, opts...))
	mux.Handle(ClockSessionServiceJoinProcedure, connect.NewUnaryHandler(ClockSessionServiceJoinProcedure, s.Join, opts...))
	mux.Handle(ClockSessionServicePressProcedure, connect.NewUnaryHandler(ClockSessionServicePressProcedure, s.Press, opts...))
	mux.Handle(ClockSessionServicePauseProcedure, connect.NewUnaryHandler(ClockSessionServicePauseProcedure, s.Pause, opts...))
	mux.Handle(ClockSessionServiceResumeProcedure, connect.NewUnaryHandler(ClockSessionServiceResumeProcedure, s.Resume, opts...))
	mux.Handle(ClockSessionServiceDeclareResultProcedure, connect.NewUnaryHandler(ClockSessionServiceDeclareResultProcedure, s.DeclareResult, opts...))
	mux.Handle(ClockSessionServiceResetProcedure, connect.NewUnaryHandler(ClockSessionServiceResetProcedure, s.Reset, opts...))
	mux.Handle(ClockSessionServiceCloseProcedure, connect.NewUnaryHandler(ClockSessionServiceCloseProcedure, s.Close, opts...))
	mux.Handle(ClockSessionServiceGetStateProcedure, connect.NewUnaryHandler(ClockSessionServiceGetStateProcedure, s.GetState, opts...))
	return "/" + ClockSessionServiceName + "/", mux
}

// Create opens a session hosted by the calling device
func (s *Service) Create(ctx context.Context, req *connect.Request[CreateRequest]) (*connect.Response[SessionResponse], error) {
	device, err := auth.Resolve(ctx, req.Msg.DeviceID)
	if err != nil {
		return nil, rpc.Error(err)
	}
	session, err := s.app.Create(ctx, device, req.Msg.HostSide, req.Msg.TimeControl, req.Msg.Increment)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return connect.NewResponse(&SessionResponse{Session: session}), nil
}

func (s *Service) Join(ctx context.Context, req *connect.Request[CodeRequest]) (*connect.Response[SessionResponse], error) {
	return s.byCode(ctx, req.Msg, s.app.Join)
}

func (s *Service) Press(ctx context.Context, req *connect.Request[CodeRequest]) (*connect.Response[SessionResponse], error) {
	return s.byCode(ctx, req.Msg, s.app.Press)
}

func (s *Service) Pause(ctx context.Context, req *connect.Request[CodeRequest]) (*connect.Response[SessionResponse], error) {
	return s.byCode(ctx, req.Msg, s.app.Pause)
}

func (s *Service) Resume(ctx context.Context, req *connect.Request[CodeRequest]) (*connect.Response[SessionResponse], error) {
	return s.byCode(ctx, req.Msg, s.app.Resume)
}

func (s *Service) Reset(ctx context.Context, req *connect.Request[CodeRequest]) (*connect.Response[SessionResponse], error) {
	return s.byCode(ctx, req.Msg, s.app.Reset)
}

func (s *Service) Close(ctx context.Context, req *connect.Request[CodeRequest]) (*connect.Response[SessionResponse], error) {
	return s.byCode(ctx, req.Msg, s.app.Close)
}

// DeclareResult records a result from the pause menu
func (s *Service) DeclareResult(ctx context.Context, req *connect.Request[DeclareResultRequest]) (*connect.Response[SessionResponse], error) {
	device, err := auth.Resolve(ctx, req.Msg.DeviceID)
	if err != nil {
		return nil, rpc.Error(err)
	}
	session, err := s.app.DeclareResult(ctx, req.Msg.Code, device, req.Msg.Result, req.Msg.Reason)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return connect.NewResponse(&SessionResponse{Session: session}), nil
}

// GetState is the polling fallback for devices without a live subscription
func (s *Service) GetState(ctx context.Context, req *connect.Request[CodeRequest]) (*connect.Response[Snapshot], error) {
	snap, err := s.app.GetState(ctx, req.Msg.Code)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return connect.NewResponse(snap), nil
}

func (s *Service) byCode(
	ctx context.Context,
	msg *CodeRequest,
	op func(ctx context.Context, code, deviceID string) (*models.ClockSession, error),
) (*connect.Response[SessionResponse], error) {
	device, err := auth.Resolve(ctx, msg.DeviceID)
	if err != nil {
		return nil, rpc.Error(err)
	}
	session, err := op(ctx, msg.Code, device)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return connect.NewResponse(&SessionResponse{Session: session}), nil
}
