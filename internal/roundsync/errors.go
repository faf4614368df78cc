package roundsync

import (
	"errors"
	"fmt"

	"github.com/janpfeifer/RedCard/internal/game"
)

// ErrorKind classifies what went wrong, and so how it is surfaced.
type ErrorKind int

const (
	// KindInvalidInput is a local validation failure. Nothing was sent.
	KindInvalidInput ErrorKind = iota + 1
	// KindRejected is a betFailed from the server.
	KindRejected
	// KindConnectivityLost is a disconnect, a connect error or a failed send.
	KindConnectivityLost
	// KindConsistencyWarning is logged only, never shown to the user.
	KindConsistencyWarning
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "InvalidInput"
	case KindRejected:
		return "Rejected"
	case KindConnectivityLost:
		return "ConnectivityLost"
	case KindConsistencyWarning:
		return "ConsistencyWarning"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is returned by Dispatch for intents and rejections.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("round synchronizer closed")

// User facing messages.
const (
	msgNameTooShort   = "Name must be at least 2 characters."
	msgAlreadyJoined  = "Already joined."
	msgJoinInProgress = "Joining, please wait."
	msgBettingClosed  = "Betting is closed."
	msgNoCard         = "Please select a card."
	msgDisconnected   = "Disconnected from server."

	// A betFailed containing this is a duplicate identity.
	nameTakenMarker = "Name already taken"
)

func betRangeMessage(c game.Constants) string {
	return fmt.Sprintf("Bet must be between %d and %d.", c.MinBet, c.MaxBet)
}
