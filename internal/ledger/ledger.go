// Package ledger reconciles the player's chip balance from the overlapping
// signals the server sends.
//
// Precedence, highest first:
//
//  1. Round outcome: the sum of payouts is added to the previous balance.
//  2. Bet acknowledgment: chipsAfter (or the legacy chips field) replaces the balance.
//  3. Snapshot: the player's chips in a snapshot replace the balance, unless
//     an update of kind 1 or 2 was already applied for the same round.
//
// The balance never goes negative.
package ledger

import "k8s.io/klog/v2"

// Source identifies which signal last set the balance.
type Source int

const (
	SourceNone Source = iota
	SourceJoin
	SourceSnapshot
	SourceBetAck
	SourceOutcome
)

func (s Source) String() string {
	switch s {
	case SourceJoin:
		return "join"
	case SourceSnapshot:
		return "snapshot"
	case SourceBetAck:
		return "betPlaced"
	case SourceOutcome:
		return "outcome"
	default:
		return "none"
	}
}

// Ledger is owned by the round synchronizer and is not safe for concurrent use.
type Ledger struct {
	balance int
	seeded  bool
	source  Source

	// Round in which a bet acknowledgment or an outcome was applied.
	pinnedRound int
	pinned      bool

	warnings int
}

// New creates an empty ledger. It holds no balance until Seed is called.
func New() *Ledger {
	return &Ledger{}
}

// Seed sets the initial balance, from the join acknowledgment.
func (l *Ledger) Seed(chips int) {
	l.seeded = true
	l.pinned = false
	l.set(chips, SourceJoin)
}

// Reset forgets the balance.
func (l *Ledger) Reset() {
	*l = Ledger{warnings: l.warnings}
}

// Seeded reports whether a balance is known.
func (l *Ledger) Seeded() bool {
	return l.seeded
}

// Balance returns the current balance.
func (l *Ledger) Balance() int {
	return l.balance
}

// Source returns which signal last set the balance.
func (l *Ledger) Source() Source {
	return l.source
}

// Warnings returns how many consistency warnings were raised.
func (l *Ledger) Warnings() int {
	return l.warnings
}

// ApplyOutcome adds payout to the balance for the given round.
func (l *Ledger) ApplyOutcome(round, payout int) int {
	if !l.seeded {
		klog.V(1).Infof("ApplyOutcome: ignoring payout %d for round %d, ledger not seeded", payout, round)
		return l.balance
	}
	l.pin(round)
	l.set(l.balance+payout, SourceOutcome)
	return l.balance
}

// ApplyBetAck applies a betPlaced acknowledgment for the given round.
// chipsAfter takes priority; chips is the legacy shape. It returns false if
// neither was present.
func (l *Ledger) ApplyBetAck(round int, chipsAfter, chips *int) bool {
	if !l.seeded {
		return false
	}
	var value int
	switch {
	case chipsAfter != nil:
		value = *chipsAfter
	case chips != nil:
		value = *chips
	default:
		return false
	}
	l.pin(round)
	l.set(value, SourceBetAck)
	return true
}

// ApplySnapshot refreshes the balance from a snapshot of the given round.
// It returns false if a more authoritative update for that round is held.
func (l *Ledger) ApplySnapshot(round, chips int) bool {
	if !l.seeded {
		return false
	}
	if l.pinned && round <= l.pinnedRound {
		klog.V(2).Infof("ApplySnapshot: keeping %s balance %d over snapshot %d for round %d",
			l.source, l.balance, chips, round)
		return false
	}
	l.pinned = false
	l.set(chips, SourceSnapshot)
	return true
}

func (l *Ledger) pin(round int) {
	if !l.pinned || round > l.pinnedRound {
		l.pinnedRound = round
	}
	l.pinned = true
}

func (l *Ledger) set(value int, source Source) {
	if value < 0 {
		l.warnings++
		klog.Warningf("ledger: balance from %s would be %d, clamping to 0", source, value)
		value = 0
	}
	l.balance = value
	l.source = source
}
