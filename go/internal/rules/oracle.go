// Package rules answers questions about chess positions. The match service
// never decides legality itself; it asks an Oracle.
package rules

import (
	"errors"
	"strings"

	"github.com/mcdev12/gambit/go/internal/models"
)

// Validation is the oracle's verdict on a proposed move.
type Validation struct {
	Legal       bool   `json:"legal"`
	NewPosition string `json:"new_position,omitempty"`
	Notation    string `json:"notation,omitempty"` // UCI
	SAN         string `json:"san,omitempty"`
	IsCheck     bool   `json:"is_check"`
	IsCheckmate bool   `json:"is_checkmate"`
	IsStalemate bool   `json:"is_stalemate"`
	IsDraw      bool   `json:"is_draw"`
}

// Terminal reports whether the move ended the game.
func (v Validation) Terminal() bool {
	return v.IsCheckmate || v.IsStalemate || v.IsDraw
}

// Oracle validates moves and inspects positions given as FEN.
type Oracle interface {
	ValidateMove(position, from, to, promotion string) (Validation, error)
	// HasMatingMaterial reports whether side could still deliver mate by any
	// sequence of legal moves.
	HasMatingMaterial(position string, side models.Side) (bool, error)
	// Replay plays UCI moves from start and returns the resulting position.
	Replay(start string, moves []string) (string, error)
}

// ErrInvalidSquare is returned when a square is not in a1..h8 form.
var ErrInvalidSquare = errors.New("invalid square")

// UCI joins a move into UCI notation after validating the squares.
func UCI(from, to, promotion string) (string, error) {
	from = strings.ToLower(strings.TrimSpace(from))
	to = strings.ToLower(strings.TrimSpace(to))
	promotion = strings.ToLower(strings.TrimSpace(promotion))
	if !validSquare(from) || !validSquare(to) {
		return "", ErrInvalidSquare
	}
	switch promotion {
	case "", "q", "r", "b", "n":
	default:
		return "", errors.New("invalid promotion piece")
	}
	return from + to + promotion, nil
}

func validSquare(sq string) bool {
	return len(sq) == 2 && sq[0] >= 'a' && sq[0] <= 'h' && sq[1] >= '1' && sq[1] <= '8'
}
