package server

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/janpfeifer/RedCard/internal/game"
	"gopkg.in/yaml.v3"
)

// Step is one canned message the server sends.
//
// Payload strings may use the placeholders $NAME and $ID (the name the
// connection joined with, and its player id), and "$ROUND" as a whole value
// for the current round number.
type Step struct {
	After     time.Duration    `yaml:"after"`
	Type      game.MessageType `yaml:"type"`
	Payload   any              `yaml:"payload"`
	Broadcast bool             `yaml:"broadcast"`
	// NextRound increments the round number before the step is sent.
	NextRound bool `yaml:"next_round"`
}

// Script drives the replay server: what to send on connection, and in
// reaction to each command received.
type Script struct {
	Constants game.Constants              `yaml:"constants"`
	OnConnect []Step                      `yaml:"on_connect"`
	Reactions map[game.MessageType][]Step `yaml:"reactions"`
}

// LoadScript reads a YAML script.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript decodes and validates a YAML script.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks every step sends a known message type.
func (s *Script) Validate() error {
	check := func(where string, steps []Step) error {
		for i, step := range steps {
			msg := game.WsMessage{Type: step.Type}
			if _, err := msg.Parse(); err != nil {
				return fmt.Errorf("%s step %d: %w", where, i, err)
			}
			if step.After < 0 {
				return fmt.Errorf("%s step %d: negative delay %s", where, i, step.After)
			}
		}
		return nil
	}
	if err := check("on_connect", s.OnConnect); err != nil {
		return err
	}
	for cmd, steps := range s.Reactions {
		if err := check(string(cmd), steps); err != nil {
			return err
		}
	}
	return nil
}

// vars are the values substituted into a step payload.
type vars struct {
	name  string
	id    string
	round int
}

// render builds the message of a step.
func (step Step) render(v vars) (game.WsMessage, error) {
	if step.Payload == nil {
		return game.WsMessage{Type: step.Type}, nil
	}
	raw, err := json.Marshal(step.Payload)
	if err != nil {
		return game.WsMessage{}, fmt.Errorf("failed to marshal %s payload: %w", step.Type, err)
	}
	text := strings.NewReplacer(
		`"$ROUND"`, strconv.Itoa(v.round),
		`$NAME`, jsonEscape(v.name),
		`$ID`, jsonEscape(v.id),
	).Replace(string(raw))
	if !json.Valid([]byte(text)) {
		return game.WsMessage{}, fmt.Errorf("%s payload is not valid JSON after substitution", step.Type)
	}
	return game.WsMessage{Type: step.Type, Payload: json.RawMessage(text)}, nil
}

// jsonEscape escapes s for use inside a JSON string.
func jsonEscape(s string) string {
	b, _ := json.Marshal(s)
	return string(b[1 : len(b)-1])
}

// DefaultScript is a short loop: joining deals 1000 chips and starts a
// round, any bet is acknowledged, and each round reveals card 3.
func DefaultScript() *Script {
	player := map[string]any{"id": "$ID", "name": "$NAME", "chips": 1000}
	state := func(inProgress bool) map[string]any {
		return map[string]any{
			"players":         []any{player},
			"currentRound":    "$ROUND",
			"cards":           map[string]any{"revealed": []bool{false, false, false, false, false}},
			"pot":             0,
			"gameStarted":     true,
			"roundInProgress": inProgress,
		}
	}
	roundSteps := []Step{
		{Type: game.MsgTypeRoundStarted, Payload: state(true), NextRound: true, Broadcast: true},
		{After: 10 * time.Second, Type: game.MsgTypeRedCardRevealed, Broadcast: true},
		{After: 500 * time.Millisecond, Type: game.MsgTypeRoundCompleted, Broadcast: true, Payload: map[string]any{
			"gameState":       state(false),
			"winners":         []string{},
			"redCardPosition": 3,
		}},
	}
	return &Script{
		Constants: game.DefaultConstants(),
		Reactions: map[game.MessageType][]Step{
			game.MsgTypeJoinGame: append([]Step{
				{Type: game.MsgTypePlayerJoined, Payload: player},
			}, roundSteps...),
			game.MsgTypePlaceBet: {
				{Type: game.MsgTypeBetPlaced, Payload: map[string]any{"playerId": "$ID", "playerName": "$NAME"}},
			},
			game.MsgTypeStartRound: roundSteps,
		},
	}
}
