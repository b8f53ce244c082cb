package models

import "time"

// QueueEntry is a user waiting to be paired for a specific time control.
// A user holds at most one entry across all time controls.
type QueueEntry struct {
	UserID      string    `json:"user_id"`
	TimeControl int       `json:"time_control"`
	Increment   int       `json:"increment"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Bucket identifies the (time control, increment) pool an entry belongs to.
type Bucket struct {
	TimeControl int
	Increment   int
}

// Bucket returns the pairing pool of the entry.
func (e QueueEntry) Bucket() Bucket {
	return Bucket{TimeControl: e.TimeControl, Increment: e.Increment}
}
