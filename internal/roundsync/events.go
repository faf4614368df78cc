package roundsync

import (
	"github.com/janpfeifer/RedCard/internal/game"
)

// Phase of the round, from this client's point of view.
type Phase int

const (
	PhaseUnjoined Phase = iota
	PhaseJoining
	PhaseLobby
	PhaseSelecting
	PhaseAwaitingReveal
	PhaseRevealing
	PhaseRoundComplete
	PhaseDisconnected
)

func (p Phase) String() string {
	switch p {
	case PhaseUnjoined:
		return "Unjoined"
	case PhaseJoining:
		return "Joining"
	case PhaseLobby:
		return "Lobby"
	case PhaseSelecting:
		return "Selecting"
	case PhaseAwaitingReveal:
		return "AwaitingReveal"
	case PhaseRevealing:
		return "Revealing"
	case PhaseRoundComplete:
		return "RoundComplete"
	case PhaseDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// Intent event types. Server events use the game.MsgType* values.
const (
	EvRequestJoin      game.MessageType = "requestJoin"
	EvRequestBet       game.MessageType = "requestBet"
	EvSelectCard       game.MessageType = "selectCard"
	EvSelectAmount     game.MessageType = "selectAmount"
	EvRequestReconnect game.MessageType = "requestReconnect"
	evTimerFired       game.MessageType = "timerFired"
)

// JoinRequested is the user asking to join with a name.
type JoinRequested struct {
	Name string
}

// BetRequested is the user placing a bet.
type BetRequested struct {
	Amount    int
	CardIndex int
}

// CardSelected changes the card the auto-bet would use.
type CardSelected struct {
	CardIndex int
}

// AmountSelected changes the amount the auto-bet would use.
type AmountSelected struct {
	Amount int
}

// ReconnectRequested is the user asking to reconnect after a connectivity error.
type ReconnectRequested struct{}

// timerFired is posted by the round timers. The round and seq tags are
// checked against the live timer before anything happens.
type timerFired struct {
	kind  timerKind
	round int
	seq   uint64
}

func (JoinRequested) EventType() game.MessageType      { return EvRequestJoin }
func (BetRequested) EventType() game.MessageType       { return EvRequestBet }
func (CardSelected) EventType() game.MessageType       { return EvSelectCard }
func (AmountSelected) EventType() game.MessageType     { return EvSelectAmount }
func (ReconnectRequested) EventType() game.MessageType { return EvRequestReconnect }
func (timerFired) EventType() game.MessageType         { return evTimerFired }
