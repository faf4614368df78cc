package game

import (
	"slices"
	"time"
)

// Version of the game.
// Bumping this number will eventually make clients reload the WASM.
//
// If you set this to an empty string, a random version number will be
// used, and force the reload of the WASM on every restart.
var Version = "v0.1.0"

// Constants are the table parameters published by the server under /game/constants.
// Durations are in milliseconds, as served.
type Constants struct {
	NumCards     int `json:"NUM_CARDS" yaml:"num_cards"`
	InitialChips int `json:"INITIAL_CHIPS" yaml:"initial_chips"`
	MinBet       int `json:"MIN_BET" yaml:"min_bet"`
	MaxBet       int `json:"MAX_BET" yaml:"max_bet"`
	RoundDelay   int `json:"ROUND_DELAY" yaml:"round_delay"`
	RevealDelay  int `json:"REVEAL_DELAY" yaml:"reveal_delay"`
}

// DefaultConstants are used when the server doesn't publish its own.
func DefaultConstants() Constants {
	return Constants{
		NumCards:     5,
		InitialChips: 1000,
		MinBet:       2,
		MaxBet:       100,
		RoundDelay:   10000,
		RevealDelay:  2000,
	}
}

// WithDefaults fills every unset (non-positive) field from DefaultConstants.
func (c Constants) WithDefaults() Constants {
	d := DefaultConstants()
	if c.NumCards <= 0 {
		c.NumCards = d.NumCards
	}
	if c.InitialChips <= 0 {
		c.InitialChips = d.InitialChips
	}
	if c.MinBet <= 0 {
		c.MinBet = d.MinBet
	}
	if c.MaxBet <= 0 || c.MaxBet < c.MinBet {
		c.MaxBet = max(d.MaxBet, c.MinBet)
	}
	if c.RoundDelay <= 0 {
		c.RoundDelay = d.RoundDelay
	}
	if c.RevealDelay <= 0 {
		c.RevealDelay = d.RevealDelay
	}
	return c
}

// RevealDuration is how long the revealed red card stays on display.
func (c Constants) RevealDuration() time.Duration {
	return time.Duration(c.RevealDelay) * time.Millisecond
}

// SelectionDuration is how long the betting window stays open.
func (c Constants) SelectionDuration() time.Duration {
	return time.Duration(c.RoundDelay) * time.Millisecond
}

// ValidBet reports whether amount is within the table limits.
func (c Constants) ValidBet(amount int) bool {
	return amount >= c.MinBet && amount <= c.MaxBet
}

// ValidCard reports whether cardIndex (1-based) is on the table.
func (c Constants) ValidCard(cardIndex int) bool {
	return cardIndex >= 1 && cardIndex <= c.NumCards
}

// BetOptions lists the quick-pick bet amounts offered to the player, ascending.
func (c Constants) BetOptions() []int {
	candidates := []int{c.MinBet, 5, 10, 15, 20, 25, 50, c.MaxBet}
	var options []int
	for _, v := range candidates {
		if c.ValidBet(v) && !slices.Contains(options, v) {
			options = append(options, v)
		}
	}
	slices.Sort(options)
	return options
}
