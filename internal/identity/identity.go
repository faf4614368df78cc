// Package identity holds "who am I" and "how many chips do I have" for the
// joined player.
package identity

import (
	"github.com/janpfeifer/RedCard/internal/game"
	"github.com/janpfeifer/RedCard/internal/ledger"
)

// Holder is owned by the round synchronizer and is not safe for concurrent use.
type Holder struct {
	player *game.Player
	ledger *ledger.Ledger
}

// New creates a holder with no joined player.
func New(l *ledger.Ledger) *Holder {
	if l == nil {
		l = ledger.New()
	}
	return &Holder{ledger: l}
}

// Join stores the player accepted by the server and seeds the ledger with its chips.
func (h *Holder) Join(p game.Player) {
	p.CurrentBet = nil
	h.player = &p
	h.ledger.Seed(p.Chips)
}

// Reset forgets the joined player.
func (h *Holder) Reset() {
	h.player = nil
	h.ledger.Reset()
}

// Joined reports whether a join succeeded.
func (h *Holder) Joined() bool {
	return h.player != nil
}

// ID of the joined player, or "".
func (h *Holder) ID() string {
	if h.player == nil {
		return ""
	}
	return h.player.ID
}

// Name of the joined player, or "".
func (h *Holder) Name() string {
	if h.player == nil {
		return ""
	}
	return h.player.Name
}

// Chips returns the reconciled balance.
func (h *Holder) Chips() int {
	return h.ledger.Balance()
}

// Ledger returns the reconciliation ledger backing Chips.
func (h *Holder) Ledger() *ledger.Ledger {
	return h.ledger
}

// Player returns a copy of the joined player with the reconciled balance.
func (h *Holder) Player() (game.Player, bool) {
	if h.player == nil {
		return game.Player{}, false
	}
	p := *h.player
	p.Chips = h.ledger.Balance()
	return p, true
}

// Matches reports whether an event addressed to (id, name) is about this
// player: either the id or the name must match.
func (h *Holder) Matches(id, name string) bool {
	if h.player == nil {
		return false
	}
	return (id != "" && id == h.player.ID) || (name != "" && name == h.player.Name)
}
