package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/gambit/go/internal/models"
)

func TestValidateMove(t *testing.T) {
	o := NewChessOracle()

	t.Run("legal opening move", func(t *testing.T) {
		v, err := o.ValidateMove(models.StartingPosition, "e2", "e4", "")
		require.NoError(t, err)
		assert.True(t, v.Legal)
		assert.Equal(t, "e2e4", v.Notation)
		assert.Equal(t, "e4", v.SAN)
		assert.Contains(t, v.NewPosition, " b ")
		assert.False(t, v.Terminal())
	})

	t.Run("illegal move", func(t *testing.T) {
		v, err := o.ValidateMove(models.StartingPosition, "e2", "e5", "")
		require.NoError(t, err)
		assert.False(t, v.Legal)
	})

	t.Run("malformed square", func(t *testing.T) {
		v, err := o.ValidateMove(models.StartingPosition, "z9", "e4", "")
		require.NoError(t, err)
		assert.False(t, v.Legal)
	})

	t.Run("checkmate", func(t *testing.T) {
		// fool's mate, black to deliver
		pos, err := o.Replay(models.StartingPosition, []string{"f2f3", "e7e5", "g2g4"})
		require.NoError(t, err)
		v, err := o.ValidateMove(pos, "d8", "h4", "")
		require.NoError(t, err)
		assert.True(t, v.Legal)
		assert.True(t, v.IsCheck)
		assert.True(t, v.IsCheckmate)
		assert.True(t, v.Terminal())
	})

	t.Run("bad position", func(t *testing.T) {
		_, err := o.ValidateMove("not a fen", "e2", "e4", "")
		assert.Error(t, err)
	})
}

func TestReplay(t *testing.T) {
	o := NewChessOracle()
	moves := []string{"e2e4", "e7e5", "g1f3", "b8c6"}

	pos := models.StartingPosition
	for _, mv := range moves {
		v, err := o.ValidateMove(pos, mv[:2], mv[2:4], "")
		require.NoError(t, err)
		require.True(t, v.Legal)
		pos = v.NewPosition
	}

	replayed, err := o.Replay(models.StartingPosition, moves)
	require.NoError(t, err)
	assert.Equal(t, pos, replayed)

	_, err = o.Replay(models.StartingPosition, []string{"e2e5"})
	assert.Error(t, err)
}

func TestValidateMoveIgnoresRepetitionHistory(t *testing.T) {
	o := NewChessOracle()
	shuffle := []string{"g1f3", "g8f6", "f3g1", "f6g8"}

	var line []string
	for i := 0; i < 3; i++ {
		line = append(line, shuffle...)
	}
	pos, err := o.Replay(models.StartingPosition, line)
	require.NoError(t, err)

	// the start placement has now occurred four times, but only the FEN is known
	v, err := o.ValidateMove(pos, "g1", "f3", "")
	require.NoError(t, err)
	assert.True(t, v.Legal)
	assert.False(t, v.IsDraw)
	assert.False(t, v.Terminal())
}

func TestHasMatingMaterial(t *testing.T) {
	o := NewChessOracle()

	tests := []struct {
		name     string
		position string
		side     models.Side
		want     bool
	}{
		{"start position white", models.StartingPosition, models.SideWhite, true},
		{"bare king", "8/8/8/4k3/8/8/8/4K2R w - - 0 1", models.SideBlack, false},
		{"king and rook", "8/8/8/4k3/8/8/8/4K2R w - - 0 1", models.SideWhite, true},
		{"king and knight", "8/8/8/4k3/8/8/8/4KN2 w - - 0 1", models.SideWhite, false},
		{"king and bishop", "8/8/3b4/4k3/8/8/8/4K3 w - - 0 1", models.SideBlack, false},
		{"two minors", "8/8/3bn3/4k3/8/8/8/4K3 w - - 0 1", models.SideBlack, true},
		{"lone pawn", "8/8/8/4k3/8/8/4P3/4K3 w - - 0 1", models.SideWhite, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := o.HasMatingMaterial(tt.position, tt.side)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUCI(t *testing.T) {
	got, err := UCI(" E7", "e8 ", "Q")
	require.NoError(t, err)
	assert.Equal(t, "e7e8q", got)

	_, err = UCI("e7", "e8", "k")
	assert.Error(t, err)

	_, err = UCI("i1", "e8", "")
	assert.ErrorIs(t, err, ErrInvalidSquare)
}
