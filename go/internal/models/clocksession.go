package models

import "time"

// SessionResult is the outcome declared or detected on a shared clock.
type SessionResult string

const (
	SessionResultNone      SessionResult = ""
	SessionResultWhiteWins SessionResult = "white_wins"
	SessionResultBlackWins SessionResult = "black_wins"
	SessionResultDraw      SessionResult = "draw"
)

// ClockSession is a chess clock shared by two devices through a pairing code.
type ClockSession struct {
	Code           string        `json:"code"`
	HostID         string        `json:"host_id"`
	HostSide       Side          `json:"host_side"`
	GuestID        string        `json:"guest_id,omitempty"`
	GuestConnected bool          `json:"guest_connected"`
	TimeControl    int           `json:"time_control"`
	Increment      int           `json:"increment"`
	WhiteRemaining time.Duration `json:"white_remaining"`
	BlackRemaining time.Duration `json:"black_remaining"`
	Turn           Side          `json:"turn"`
	Started        bool          `json:"started"`
	IsPaused       bool          `json:"is_paused"`
	IsActive       bool          `json:"is_active"`
	WhiteMoves     int           `json:"white_moves"`
	BlackMoves     int           `json:"black_moves"`
	Result         SessionResult `json:"result,omitempty"`
	ResultReason   string        `json:"result_reason,omitempty"`
	LastPressAt    *time.Time    `json:"last_press_at,omitempty"`
	Version        int64         `json:"version"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Running reports whether a side's clock is currently counting down.
func (s *ClockSession) Running() bool {
	return s.IsActive && s.Started && !s.IsPaused && s.Result == SessionResultNone
}

// SideOf returns the side played by deviceID.
func (s *ClockSession) SideOf(deviceID string) (Side, bool) {
	switch {
	case deviceID == s.HostID:
		return s.HostSide, true
	case s.GuestConnected && deviceID == s.GuestID:
		return s.HostSide.Opponent(), true
	}
	return "", false
}

// Clone returns a copy safe to mutate.
func (s *ClockSession) Clone() *ClockSession {
	c := *s
	c.LastPressAt = cloneTime(s.LastPressAt)
	return &c
}
