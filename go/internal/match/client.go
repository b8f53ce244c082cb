package match

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/mcdev12/gambit/go/internal/models"
	"github.com/mcdev12/gambit/go/internal/rpc"
)

// Client calls a remote MatchService. Rejections come back as the models
// sentinels, so errors.Is works as it does against a local App.
type Client struct {
	submitMove   *connect.Client[SubmitMoveRequest, MoveResult]
	claimClock   *connect.Client[MatchRequest, ClockClaim]
	enforceClock *connect.Client[MatchRequest, ClockClaim]
	getMatch     *connect.Client[MatchRequest, Snapshot]
	listOverdue  *connect.Client[ListRequest, ListOverdueResponse]
	listActive   *connect.Client[ListRequest, ListActiveResponse]
}

// NewClient builds a client for the service at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = rpc.ClientOptions(opts...)
	return &Client{
		submitMove:   connect.NewClient[SubmitMoveRequest, MoveResult](httpClient, baseURL+MatchServiceSubmitMoveProcedure, opts...),
		claimClock:   connect.NewClient[MatchRequest, ClockClaim](httpClient, baseURL+MatchServiceClaimClockProcedure, opts...),
		enforceClock: connect.NewClient[MatchRequest, ClockClaim](httpClient, baseURL+MatchServiceEnforceClockProcedure, opts...),
		getMatch:     connect.NewClient[MatchRequest, Snapshot](httpClient, baseURL+MatchServiceGetMatchProcedure, opts...),
		listOverdue:  connect.NewClient[ListRequest, ListOverdueResponse](httpClient, baseURL+MatchServiceListOverdueProcedure, opts...),
		listActive:   connect.NewClient[ListRequest, ListActiveResponse](httpClient, baseURL+MatchServiceListActiveProcedure, opts...),
	}
}

// NewDefaultClient uses http.DefaultClient.
func NewDefaultClient(baseURL string) *Client {
	return NewClient(http.DefaultClient, baseURL)
}

func call[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], req *Req) (*Res, error) {
	resp, err := c.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, rpc.FromError(err)
	}
	return resp.Msg, nil
}

func (c *Client) SubmitMove(ctx context.Context, req SubmitMoveRequest) (*MoveResult, error) {
	return call(ctx, c.submitMove, &req)
}

func (c *Client) ClaimClock(ctx context.Context, matchID uuid.UUID, playerID string) (*ClockClaim, error) {
	return call(ctx, c.claimClock, &MatchRequest{MatchID: matchID, PlayerID: playerID})
}

func (c *Client) EnforceClock(ctx context.Context, matchID uuid.UUID) (*ClockClaim, error) {
	return call(ctx, c.enforceClock, &MatchRequest{MatchID: matchID})
}

func (c *Client) GetMatch(ctx context.Context, matchID uuid.UUID) (*Snapshot, error) {
	return call(ctx, c.getMatch, &MatchRequest{MatchID: matchID})
}

func (c *Client) FetchOverdueMatches(ctx context.Context, limit int) ([]uuid.UUID, error) {
	resp, err := call(ctx, c.listOverdue, &ListRequest{Limit: limit})
	if err != nil {
		return nil, err
	}
	return resp.MatchIDs, nil
}

func (c *Client) ListActiveMatches(ctx context.Context, limit int) ([]*models.Match, error) {
	resp, err := call(ctx, c.listActive, &ListRequest{Limit: limit})
	if err != nil {
		return nil, err
	}
	return resp.Matches, nil
}
