package rpc

import (
	"errors"

	"connectrpc.com/connect"

	"github.com/mcdev12/gambit/go/internal/auth"
	"github.com/mcdev12/gambit/go/internal/models"
)

// RejectionCodeHeader carries models.RejectionError.Code on error responses.
const RejectionCodeHeader = "Rejection-Code"

var rejections = map[string]*models.RejectionError{}

var rejectionCodes = map[*models.RejectionError]connect.Code{
	models.ErrNotYourTurn:          connect.CodeFailedPrecondition,
	models.ErrIllegalMove:          connect.CodeFailedPrecondition,
	models.ErrStalePly:             connect.CodeAborted,
	models.ErrMatchNotActive:       connect.CodeFailedPrecondition,
	models.ErrQueueRaceLost:        connect.CodeAborted,
	models.ErrSessionCodeInvalid:   connect.CodeNotFound,
	models.ErrSessionAlreadyPaired: connect.CodeAlreadyExists,
	models.ErrClockExpired:         connect.CodeFailedPrecondition,
	models.ErrGraceExpired:         connect.CodeFailedPrecondition,
	models.ErrBlackStartsClock:     connect.CodeFailedPrecondition,
	models.ErrNotParticipant:       connect.CodePermissionDenied,
	models.ErrSessionClosed:        connect.CodeFailedPrecondition,
	models.ErrSessionPaused:        connect.CodeFailedPrecondition,
	models.ErrNothingToClaim:       connect.CodeFailedPrecondition,
	models.ErrNoDrawOffer:          connect.CodeFailedPrecondition,
	models.ErrChallengePending:     connect.CodeFailedPrecondition,
}

func init() {
	for rej := range rejectionCodes {
		rejections[rej.Code] = rej
	}
}

// Error converts an app error into a connect error.
func Error(err error) error {
	if err == nil {
		return nil
	}
	if rej, ok := models.AsRejection(err); ok {
		code, known := rejectionCodes[rej]
		if !known {
			code = connect.CodeFailedPrecondition
		}
		cerr := connect.NewError(code, errors.New(rej.Message))
		cerr.Meta().Set(RejectionCodeHeader, rej.Code)
		return cerr
	}

	switch {
	case errors.Is(err, models.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, models.ErrInvalidArgument):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, auth.ErrUnauthenticated):
		return connect.NewError(connect.CodeUnauthenticated, err)
	case errors.Is(err, auth.ErrIdentityMismatch):
		return connect.NewError(connect.CodePermissionDenied, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

// FromError maps a connect error returned to a client back onto the
// models sentinels, so callers can use errors.Is across the wire.
func FromError(err error) error {
	if err == nil {
		return nil
	}
	var cerr *connect.Error
	if !errors.As(err, &cerr) {
		return err
	}
	if rej, ok := rejections[cerr.Meta().Get(RejectionCodeHeader)]; ok {
		return rej
	}
	switch cerr.Code() {
	case connect.CodeNotFound:
		return errors.Join(models.ErrNotFound, err)
	case connect.CodeInvalidArgument:
		return errors.Join(models.ErrInvalidArgument, err)
	}
	return err
}
