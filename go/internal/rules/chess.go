package rules

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/mcdev12/gambit/go/internal/models"
)

// ChessOracle implements Oracle on top of corentings/chess.
type ChessOracle struct{}

// NewChessOracle returns a standard-chess oracle.
func NewChessOracle() *ChessOracle {
	return &ChessOracle{}
}

var _ Oracle = (*ChessOracle)(nil)

// ValidateMove checks a single move against position.
func (o *ChessOracle) ValidateMove(position, from, to, promotion string) (Validation, error) {
	uci, err := UCI(from, to, promotion)
	if err != nil {
		return Validation{Legal: false}, nil
	}

	game, err := gameFrom(position)
	if err != nil {
		return Validation{}, err
	}
	if game.Outcome() != nchess.NoOutcome {
		return Validation{Legal: false}, nil
	}

	before := game.Position()
	if err := game.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
		return Validation{Legal: false}, nil
	}
	last := lastMove(game)
	if last == nil {
		return Validation{Legal: false}, nil
	}

	v := Validation{
		Legal:       true,
		NewPosition: game.FEN(),
		Notation:    uci,
		SAN:         nchess.AlgebraicNotation{}.Encode(before, last),
		IsCheck:     last.HasTag(nchess.Check),
	}
	switch game.Outcome() {
	case nchess.WhiteWon, nchess.BlackWon:
		v.IsCheckmate = game.Method() == nchess.Checkmate
	case nchess.Draw:
		if game.Method() == nchess.Stalemate {
			v.IsStalemate = true
		} else {
			v.IsDraw = true
		}
	}
	return v, nil
}

// HasMatingMaterial inspects the piece placement field of position.
func (o *ChessOracle) HasMatingMaterial(position string, side models.Side) (bool, error) {
	placement, _, _ := strings.Cut(strings.TrimSpace(position), " ")
	if placement == "" {
		return false, fmt.Errorf("empty position")
	}
	return hasMatingMaterial(placement, side), nil
}

// Replay plays UCI moves from start.
func (o *ChessOracle) Replay(start string, moves []string) (string, error) {
	game, err := gameFrom(start)
	if err != nil {
		return "", err
	}
	for i, mv := range moves {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return "", fmt.Errorf("replay ply %d (%s): %w", i, mv, err)
		}
	}
	return game.FEN(), nil
}

// gameFrom builds a game from a single FEN. The game carries no earlier
// positions, so repetition draws are never detected here; players settle
// those by draw offer. The halfmove clock in the FEN still applies.
func gameFrom(position string) (*nchess.Game, error) {
	position = strings.TrimSpace(position)
	if position == "" || position == "startpos" {
		return nchess.NewGame(), nil
	}
	opt, err := nchess.FEN(position)
	if err != nil {
		return nil, fmt.Errorf("invalid position: %w", err)
	}
	return nchess.NewGame(opt), nil
}

func lastMove(game *nchess.Game) *nchess.Move {
	moves := game.Moves()
	if len(moves) == 0 {
		return nil
	}
	return moves[len(moves)-1]
}
