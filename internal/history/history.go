// Package history keeps the last few completed rounds for display.
package history

import (
	"slices"

	"github.com/janpfeifer/RedCard/internal/game"
)

// Capacity is the number of rounds kept.
const Capacity = 5

// Entry summarizes a completed round, without bet-level detail.
type Entry struct {
	Round        int      `json:"round"`
	Winners      []string `json:"winners"`
	RedCard      int      `json:"redCard"`
	NoBetPlayers []string `json:"noBetPlayers,omitempty"`
}

// FromOutcome derives the history entry of a completed round.
func FromOutcome(msg *game.RoundCompletedMessage) Entry {
	return Entry{
		Round:        msg.GameState.CurrentRound,
		Winners:      slices.Clone(msg.Winners),
		RedCard:      msg.RedCardPosition,
		NoBetPlayers: slices.Clone(msg.NoBetPlayers),
	}
}

// Ring holds at most Capacity entries, most recent first.
// Adding to a full ring evicts the oldest entry.
type Ring struct {
	entries []Entry
}

// New creates an empty ring.
func New() *Ring {
	return &Ring{entries: make([]Entry, 0, Capacity)}
}

// Push inserts e as the most recent entry.
func (r *Ring) Push(e Entry) {
	if len(r.entries) == Capacity {
		r.entries = r.entries[:Capacity-1]
	}
	r.entries = slices.Insert(r.entries, 0, e)
}

// Len returns the number of entries held.
func (r *Ring) Len() int {
	return len(r.entries)
}

// Entries returns a copy of the entries, most recent first.
func (r *Ring) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	for i, e := range r.entries {
		e.Winners = slices.Clone(e.Winners)
		e.NoBetPlayers = slices.Clone(e.NoBetPlayers)
		out[i] = e
	}
	return out
}
