package match

import (
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/gambit/go/internal/clock"
	"github.com/mcdev12/gambit/go/internal/models"
)

// CreateMatchRequest seats two known players in a new active match.
type CreateMatchRequest struct {
	WhiteID     string `json:"white_id"`
	BlackID     string `json:"black_id"`
	TimeControl int    `json:"time_control"`
	Increment   int    `json:"increment"`
}

// CreateChallengeRequest opens a waiting match with one seat taken.
type CreateChallengeRequest struct {
	HostID      string      `json:"host_id"`
	HostSide    models.Side `json:"host_side,omitempty"` // defaults to white
	TimeControl int         `json:"time_control"`
	Increment   int         `json:"increment"`
}

// SubmitMoveRequest proposes one half-move. ExpectedPly, when set, is the ply
// the client believes it is moving at; a mismatch is reported as a stale ply.
type SubmitMoveRequest struct {
	MatchID     uuid.UUID `json:"match_id"`
	PlayerID    string    `json:"player_id"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Promotion   string    `json:"promotion,omitempty"`
	ExpectedPly *int      `json:"expected_ply,omitempty"`
}

// MoveResult is the outcome of an accepted move.
type MoveResult struct {
	Accepted    bool             `json:"accepted"`
	NewPosition string           `json:"new_position"`
	Flags       models.MoveFlags `json:"flags"`
	Move        *models.Move     `json:"move"`
	Match       *models.Match    `json:"match"`
}

// ClockClaim is the outcome of an attempt to enforce the clock.
type ClockClaim struct {
	Verdict string        `json:"verdict"`
	Applied bool          `json:"applied"`
	Match   *models.Match `json:"match"`
}

// Snapshot is a match with remaining times computed at ServerTime.
type Snapshot struct {
	Match          *models.Match `json:"match"`
	WhiteRemaining time.Duration `json:"white_remaining"`
	BlackRemaining time.Duration `json:"black_remaining"`
	Deadline       *time.Time    `json:"deadline,omitempty"`
	ServerTime     time.Time     `json:"server_time"`
}

// SystemRequester identifies clock enforcement done by the server itself.
const SystemRequester = ""

// NewActiveMatch builds an active match starting at now. The white player's
// grace period starts immediately.
func NewActiveMatch(engine *clock.Engine, whiteID, blackID string, timeControl, increment int, now time.Time) *models.Match {
	m := newMatch(timeControl, increment, now)
	m.WhiteID = &whiteID
	m.BlackID = &blackID
	activate(engine, m, now)
	return m
}

func newMatch(timeControl, increment int, now time.Time) *models.Match {
	base := time.Duration(timeControl) * time.Second
	return &models.Match{
		ID:              uuid.New(),
		Status:          models.MatchStatusWaiting,
		CurrentPosition: models.StartingPosition,
		Turn:            models.SideWhite,
		PlyCount:        0,
		TimeControl:     timeControl,
		Increment:       increment,
		WhiteRemaining:  base,
		BlackRemaining:  base,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func activate(engine *clock.Engine, m *models.Match, now time.Time) {
	m.Status = models.MatchStatusActive
	start := now
	m.LastMoveAt = &start
	deadline := engine.Deadline(clock.FromMatch(m))
	m.NextDeadline = &deadline
	m.UpdatedAt = now
}
