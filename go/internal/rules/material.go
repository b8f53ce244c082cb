package rules

import (
	"unicode"

	"github.com/mcdev12/gambit/go/internal/models"
)

// hasMatingMaterial counts the pieces of side in a FEN placement field.
// A bare king, or king with a single minor piece, cannot force or even help
// mate; anything more can.
func hasMatingMaterial(placement string, side models.Side) bool {
	minors := 0
	for _, r := range placement {
		if !unicode.IsLetter(r) {
			continue
		}
		white := unicode.IsUpper(r)
		if white != (side == models.SideWhite) {
			continue
		}
		switch unicode.ToLower(r) {
		case 'p', 'r', 'q':
			return true
		case 'b', 'n':
			minors++
		}
	}
	return minors >= 2
}
