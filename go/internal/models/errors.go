package models

import "errors"

// RejectionError is an expected, client-recoverable refusal of an operation.
// Code is stable across releases; Message is safe to show to a player.
type RejectionError struct {
	Code    string
	Message string
}

func (e *RejectionError) Error() string {
	return e.Code + ": " + e.Message
}

var (
	ErrNotYourTurn          = &RejectionError{Code: "not_your_turn", Message: "It is not your turn."}
	ErrIllegalMove          = &RejectionError{Code: "illegal_move", Message: "That move is not legal in the current position."}
	ErrStalePly             = &RejectionError{Code: "stale_ply", Message: "The position changed before your move arrived."}
	ErrMatchNotActive       = &RejectionError{Code: "match_not_active", Message: "This match is not in progress."}
	ErrQueueRaceLost        = &RejectionError{Code: "queue_race_lost", Message: "That opponent was paired with someone else."}
	ErrSessionCodeInvalid   = &RejectionError{Code: "session_code_invalid", Message: "No active clock session uses that code."}
	ErrSessionAlreadyPaired = &RejectionError{Code: "session_already_paired", Message: "Another device has already joined this clock."}
	ErrClockExpired         = &RejectionError{Code: "clock_expired", Message: "The clock ran out."}
	ErrGraceExpired         = &RejectionError{Code: "grace_expired", Message: "The first move was not made in time; the match was aborted."}
	ErrBlackStartsClock     = &RejectionError{Code: "black_starts_clock", Message: "Black presses first to start White's clock."}
	ErrNotParticipant       = &RejectionError{Code: "not_participant", Message: "You are not a player in this match."}
	ErrSessionClosed        = &RejectionError{Code: "session_closed", Message: "This clock session has ended."}
	ErrSessionPaused        = &RejectionError{Code: "session_paused", Message: "The clock is paused."}
	ErrNothingToClaim       = &RejectionError{Code: "nothing_to_claim", Message: "Neither the grace period nor the clock has expired."}
	ErrNoDrawOffer          = &RejectionError{Code: "no_draw_offer", Message: "There is no pending draw offer from your opponent."}
	ErrChallengePending     = &RejectionError{Code: "challenge_pending", Message: "Cancel your open challenge before joining the queue."}
)

var (
	// ErrNotFound is returned when a match, session or entry does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument marks malformed requests.
	ErrInvalidArgument = errors.New("invalid argument")
)

// AsRejection unwraps err into a RejectionError when it is one.
func AsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
