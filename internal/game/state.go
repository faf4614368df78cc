package game

import (
	"fmt"
	"strings"
)

// Bet is a wager of some chips on one card.
type Bet struct {
	Amount    int `json:"amount"`
	CardIndex int `json:"cardIndex"` // 1-based position on the table.
}

// Player represents a user at the table, as last reported by the server.
type Player struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Chips         int    `json:"chips"`
	CurrentBet    *Bet   `json:"currentBet,omitempty"`
	RewardsEarned int    `json:"rewardsEarned,omitempty"`
	RewardsLost   int    `json:"rewardsLost,omitempty"`
}

// Cards is the table layout for the round.
type Cards struct {
	RedCardPosition *int   `json:"redCardPosition,omitempty"`
	Revealed        []bool `json:"revealed"`
}

// RoundSnapshot is the full table state pushed by the server.
// It is always replaced as a whole, never patched.
type RoundSnapshot struct {
	Players         []Player `json:"players"`
	CurrentRound    int      `json:"currentRound"`
	Cards           Cards    `json:"cards"`
	Pot             int      `json:"pot"`
	GameStarted     bool     `json:"gameStarted"`
	RoundInProgress bool     `json:"roundInProgress"`
}

// FindPlayer returns the player with the given id, if present.
func (s *RoundSnapshot) FindPlayer(id string) (Player, bool) {
	if s == nil || id == "" {
		return Player{}, false
	}
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

// Clone returns a deep copy, so views handed out never alias the live snapshot.
func (s *RoundSnapshot) Clone() *RoundSnapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.Players = make([]Player, len(s.Players))
	for i, p := range s.Players {
		if p.CurrentBet != nil {
			bet := *p.CurrentBet
			p.CurrentBet = &bet
		}
		c.Players[i] = p
	}
	c.Cards.Revealed = append([]bool(nil), s.Cards.Revealed...)
	if s.Cards.RedCardPosition != nil {
		pos := *s.Cards.RedCardPosition
		c.Cards.RedCardPosition = &pos
	}
	return &c
}

func (s *RoundSnapshot) String() string {
	if s == nil {
		return "<nil snapshot>"
	}
	parts := make([]string, 0, len(s.Players))
	for _, p := range s.Players {
		parts = append(parts, fmt.Sprintf("%s(%d)", p.Name, p.Chips))
	}
	return fmt.Sprintf("Round %d, pot=%d, inProgress=%v, players=[%s]",
		s.CurrentRound, s.Pot, s.RoundInProgress, strings.Join(parts, ", "))
}

// BetResult is the server's verdict on one bet.
type BetResult struct {
	CardIndex int  `json:"cardIndex"`
	Amount    int  `json:"amount"`
	Won       bool `json:"won"`
	Payout    int  `json:"payout"`
}

// PlayerBetResult groups the verdicts for one player.
type PlayerBetResult struct {
	PlayerID string      `json:"playerId"`
	Bets     []BetResult `json:"bets"`
}

// TotalPayout sums the payouts across all bets.
func (r PlayerBetResult) TotalPayout() int {
	total := 0
	for _, b := range r.Bets {
		total += b.Payout
	}
	return total
}

// AnyWon reports whether at least one bet won.
func (r PlayerBetResult) AnyWon() bool {
	for _, b := range r.Bets {
		if b.Won {
			return true
		}
	}
	return false
}
