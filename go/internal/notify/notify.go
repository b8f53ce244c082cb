// Package notify dispatches fire-and-forget player notifications about match
// lifecycle changes. Delivery failures are logged and never reach the caller.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Kind names a notification.
type Kind string

const (
	KindMatchStarted   Kind = "match_started"
	KindMatchAborted   Kind = "match_aborted"
	KindMatchCompleted Kind = "match_completed"
)

// Notification is addressed to the players of one match.
type Notification struct {
	Kind     Kind      `json:"kind"`
	MatchID  string    `json:"match_id"`
	UserIDs  []string  `json:"user_ids"`
	Result   string    `json:"result,omitempty"`
	WinnerID string    `json:"winner_id,omitempty"`
	At       time.Time `json:"at"`
}

// Notifier delivers notifications. Implementations must not block the caller
// on network I/O.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// LogNotifier writes notifications to the log. It is the development default.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n Notification) {
	log.Info().
		Str("kind", string(n.Kind)).
		Str("match_id", n.MatchID).
		Strs("user_ids", n.UserIDs).
		Str("result", n.Result).
		Msg("notification")
}
