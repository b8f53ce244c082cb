package rpc

import (
	"fmt"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/gambit/go/internal/models"
)

func TestErrorRoundTrip(t *testing.T) {
	tests := []struct {
		err  error
		code connect.Code
	}{
		{models.ErrStalePly, connect.CodeAborted},
		{fmt.Errorf("wrapped: %w", models.ErrNotYourTurn), connect.CodeFailedPrecondition},
		{models.ErrSessionCodeInvalid, connect.CodeNotFound},
		{models.ErrSessionAlreadyPaired, connect.CodeAlreadyExists},
		{models.ErrNotParticipant, connect.CodePermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			out := Error(tt.err)
			var cerr *connect.Error
			require.ErrorAs(t, out, &cerr)
			assert.Equal(t, tt.code, cerr.Code())

			back := FromError(out)
			rej, ok := models.AsRejection(tt.err)
			require.True(t, ok)
			assert.ErrorIs(t, back, rej)
		})
	}
}

func TestErrorPlainErrors(t *testing.T) {
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(Error(fmt.Errorf("x: %w", models.ErrNotFound))))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(Error(fmt.Errorf("x: %w", models.ErrInvalidArgument))))
	assert.Equal(t, connect.CodeInternal, connect.CodeOf(Error(fmt.Errorf("boom"))))
	assert.Nil(t, Error(nil))

	assert.ErrorIs(t, FromError(connect.NewError(connect.CodeNotFound, fmt.Errorf("gone"))), models.ErrNotFound)
}

func TestJSONCodec(t *testing.T) {
	c := jsonCodec{}
	type msg struct {
		A int `json:"a"`
	}
	data, err := c.Marshal(msg{A: 3})
	require.NoError(t, err)

	var out msg
	require.NoError(t, c.Unmarshal(data, &out))
	assert.Equal(t, 3, out.A)
	require.NoError(t, c.Unmarshal(nil, &out))
	assert.Equal(t, CodecName, c.Name())
}
