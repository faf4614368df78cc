package game

import (
	"encoding/json"
	"fmt"
)

// Message type for WebSocket communication between client and server.
type MessageType string

const (
	// Server -> client.
	MsgTypeGameState       MessageType = "gameState"       // Passive full state refresh
	MsgTypePlayerJoined    MessageType = "playerJoined"    // Join accepted
	MsgTypeRoundStarted    MessageType = "roundStarted"    // Betting window opened
	MsgTypeRoundCompleted  MessageType = "roundCompleted"  // Outcome of the round
	MsgTypeRedCardRevealed MessageType = "redCardRevealed" // Reveal trigger, no payload
	MsgTypeBetFailed       MessageType = "betFailed"       // Rejection of a join or bet
	MsgTypeBetPlaced       MessageType = "betPlaced"       // Bet acknowledgment with balances
	MsgTypeConnectError    MessageType = "connect_error"   // Connectivity error

	// Client -> server.
	MsgTypeJoinGame   MessageType = "joinGame"
	MsgTypePlaceBet   MessageType = "placeBet"
	MsgTypeStartRound MessageType = "startRound"

	// Synthesized by the transport, never on the wire.
	MsgTypeConnect    MessageType = "connect"
	MsgTypeDisconnect MessageType = "disconnect"
)

// Event is anything the round synchronizer consumes.
type Event interface {
	EventType() MessageType
}

// Command is anything the client sends to the server.
type Command interface {
	CommandType() MessageType
}

// WsMessage represents a WebSocket message.
type WsMessage struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewWsMessage creates a new WsMessage with a marshaled payload.
func NewWsMessage(msgType MessageType, payload any) (WsMessage, error) {
	if payload == nil {
		return WsMessage{Type: msgType}, nil
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return WsMessage{}, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return WsMessage{
		Type:    msgType,
		Payload: payloadBytes,
	}, nil
}

// CommandMessage wraps a command into its envelope.
func CommandMessage(cmd Command) (WsMessage, error) {
	return NewWsMessage(cmd.CommandType(), cmd)
}

// Parse unmarshals the message payload into one of the message types (GameStateMessage, PlaceBetMessage, etc.)
func (m *WsMessage) Parse() (any, error) {
	var target any
	switch m.Type {
	case MsgTypeGameState:
		target = &GameStateMessage{}
	case MsgTypePlayerJoined:
		target = &PlayerJoinedMessage{}
	case MsgTypeRoundStarted:
		target = &RoundStartedMessage{}
	case MsgTypeRoundCompleted:
		target = &RoundCompletedMessage{}
	case MsgTypeRedCardRevealed:
		target = &RedCardRevealedMessage{}
	case MsgTypeBetFailed:
		target = &BetFailedMessage{}
	case MsgTypeBetPlaced:
		target = &BetPlacedMessage{}
	case MsgTypeConnectError:
		target = &ConnectErrorMessage{}
	case MsgTypeJoinGame:
		target = &JoinGameMessage{}
	case MsgTypePlaceBet:
		target = &PlaceBetMessage{}
	case MsgTypeStartRound:
		target = &StartRoundMessage{}
	default:
		return nil, fmt.Errorf("unknown message type: %s", m.Type)
	}

	if len(m.Payload) == 0 {
		return target, nil
	}

	err := json.Unmarshal(m.Payload, target)
	return target, err
}

// GameStateMessage is the payload for MsgTypeGameState: the snapshot itself.
type GameStateMessage struct {
	RoundSnapshot
}

// PlayerJoinedMessage is the payload for MsgTypePlayerJoined.
type PlayerJoinedMessage struct {
	Player
}

// RoundStartedMessage is the payload for MsgTypeRoundStarted.
type RoundStartedMessage struct {
	RoundSnapshot
}

// RoundCompletedMessage is the payload for MsgTypeRoundCompleted.
type RoundCompletedMessage struct {
	GameState       RoundSnapshot     `json:"gameState"`
	Winners         []string          `json:"winners"`
	RedCardPosition int               `json:"redCardPosition"`
	NoBetPlayers    []string          `json:"noBetPlayers,omitempty"`
	BetResults      []PlayerBetResult `json:"betResults,omitempty"`
}

// ResultsFor returns the bet results of the given player.
func (m *RoundCompletedMessage) ResultsFor(playerID string) (PlayerBetResult, bool) {
	if playerID == "" {
		return PlayerBetResult{}, false
	}
	for _, r := range m.BetResults {
		if r.PlayerID == playerID {
			return r, true
		}
	}
	return PlayerBetResult{}, false
}

// RedCardRevealedMessage: empty.
type RedCardRevealedMessage struct{}

// BetFailedMessage is the payload for MsgTypeBetFailed.
type BetFailedMessage struct {
	Message string `json:"message"`
}

// BetPlacedMessage is the payload for MsgTypeBetPlaced.
// Older servers only send Chips; newer ones send ChipsBefore/ChipsAfter.
type BetPlacedMessage struct {
	PlayerID    string `json:"playerId,omitempty"`
	PlayerName  string `json:"playerName,omitempty"`
	ChipsBefore *int   `json:"chipsBefore,omitempty"`
	ChipsAfter  *int   `json:"chipsAfter,omitempty"`
	Chips       *int   `json:"chips,omitempty"`
}

// ConnectErrorMessage is the payload for MsgTypeConnectError.
type ConnectErrorMessage struct {
	Message string `json:"message"`
}

// ConnectedMessage signals the transport (re)established the connection.
type ConnectedMessage struct{}

// DisconnectedMessage signals the transport lost the connection.
type DisconnectedMessage struct {
	Reason string `json:"reason,omitempty"`
}

// JoinGameMessage is the payload for MsgTypeJoinGame.
type JoinGameMessage struct {
	Name string `json:"name"`
}

// PlaceBetMessage is the payload for MsgTypePlaceBet.
type PlaceBetMessage struct {
	Amount    int `json:"amount"`
	CardIndex int `json:"cardIndex"`
}

// StartRoundMessage: empty.
type StartRoundMessage struct{}

func (GameStateMessage) EventType() MessageType       { return MsgTypeGameState }
func (PlayerJoinedMessage) EventType() MessageType    { return MsgTypePlayerJoined }
func (RoundStartedMessage) EventType() MessageType    { return MsgTypeRoundStarted }
func (RoundCompletedMessage) EventType() MessageType  { return MsgTypeRoundCompleted }
func (RedCardRevealedMessage) EventType() MessageType { return MsgTypeRedCardRevealed }
func (BetFailedMessage) EventType() MessageType       { return MsgTypeBetFailed }
func (BetPlacedMessage) EventType() MessageType       { return MsgTypeBetPlaced }
func (ConnectErrorMessage) EventType() MessageType    { return MsgTypeConnectError }
func (ConnectedMessage) EventType() MessageType       { return MsgTypeConnect }
func (DisconnectedMessage) EventType() MessageType    { return MsgTypeDisconnect }

func (JoinGameMessage) CommandType() MessageType   { return MsgTypeJoinGame }
func (PlaceBetMessage) CommandType() MessageType   { return MsgTypePlaceBet }
func (StartRoundMessage) CommandType() MessageType { return MsgTypeStartRound }
