package clocksession

import (
	"context"
	"strings"

	"connectrpc.com/connect"

	"github.com/mcdev12/gambit/go/internal/match/events"
	"github.com/mcdev12/gambit/go/internal/models"
	"github.com/mcdev12/gambit/go/internal/rpc"
)

// Client is a device's view of a remote ClockSessionService.
type Client struct {
	deviceID string
	join     *connect.Client[CodeRequest, SessionResponse]
	press    *connect.Client[CodeRequest, SessionResponse]
	getState *connect.Client[CodeRequest, Snapshot]
}

func NewClient(httpClient connect.HTTPClient, baseURL, deviceID string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = rpc.ClientOptions(opts...)
	return &Client{
		deviceID: deviceID,
		join:     connect.NewClient[CodeRequest, SessionResponse](httpClient, baseURL+ClockSessionServiceJoinProcedure, opts...),
		press:    connect.NewClient[CodeRequest, SessionResponse](httpClient, baseURL+ClockSessionServicePressProcedure, opts...),
		getState: connect.NewClient[CodeRequest, Snapshot](httpClient, baseURL+ClockSessionServiceGetStateProcedure, opts...),
	}
}

func (c *Client) Join(ctx context.Context, code string) (*models.ClockSession, error) {
	resp, err := c.join.CallUnary(ctx, connect.NewRequest(&CodeRequest{Code: code, DeviceID: c.deviceID}))
	if err != nil {
		return nil, rpc.FromError(err)
	}
	return resp.Msg.Session, nil
}

func (c *Client) Press(ctx context.Context, code string) (*models.ClockSession, error) {
	resp, err := c.press.CallUnary(ctx, connect.NewRequest(&CodeRequest{Code: code, DeviceID: c.deviceID}))
	if err != nil {
		return nil, rpc.FromError(err)
	}
	return resp.Msg.Session, nil
}

// FetchState implements StateFetcher.
func (c *Client) FetchState(ctx context.Context, code string) (events.ClockSessionPayload, error) {
	resp, err := c.getState.CallUnary(ctx, connect.NewRequest(&CodeRequest{Code: code}))
	if err != nil {
		return events.ClockSessionPayload{}, rpc.FromError(err)
	}
	return resp.Msg.Payload(), nil
}
