package roundsync

import (
	"slices"
	"time"

	"github.com/janpfeifer/RedCard/internal/game"
	"github.com/janpfeifer/RedCard/internal/history"
)

// View is a read-only copy of the synchronizer state, for presentation.
type View struct {
	Phase     Phase
	Connected bool
	Joined    bool
	Player    game.Player // Chips holds the reconciled balance.
	Snapshot  *game.RoundSnapshot
	Constants game.Constants

	// Betting window.
	SelectedCard      int
	BetAmount         int
	BetOptions        []int
	BetPlaced         bool
	Countdown         time.Duration
	CountdownSeconds  int
	CountdownProgress float64

	// Reveal and outcome of the last round.
	ShowRedCard     bool
	RevealCountdown time.Duration
	RedCard         *int
	Winners         []string
	NoBetPlayers    []string
	MyResults       []game.BetResult
	IsWinner        bool

	History []history.Entry

	Message         string
	ConnectionError string
	// Blocked is set when the server refused the name: the user has to pick another one.
	Blocked bool
}

// View returns a snapshot of the current state.
func (s *Synchronizer) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		Phase:             s.currentPhase(),
		Connected:         s.connected,
		Joined:            s.identity.Joined(),
		Snapshot:          s.snapshot.Clone(),
		Constants:         s.constants,
		SelectedCard:      s.selectedCard,
		BetAmount:         s.betAmount,
		BetOptions:        s.constants.BetOptions(),
		BetPlaced:         s.betPlaced,
		Countdown:         s.countdown.Remaining(),
		CountdownSeconds:  s.countdown.Seconds(),
		CountdownProgress: s.countdown.Progress(),
		ShowRedCard:       s.showRedCard,
		RevealCountdown:   s.reveal.Remaining(),
		Winners:           slices.Clone(s.winners),
		NoBetPlayers:      slices.Clone(s.noBetPlayers),
		MyResults:         slices.Clone(s.myResults),
		History:           s.history.Entries(),
		Message:           s.message,
		ConnectionError:   s.connectionError,
		Blocked:           s.blocked,
	}
	if p, ok := s.identity.Player(); ok {
		v.Player = p
	}
	if s.redCard != nil {
		redCard := *s.redCard
		v.RedCard = &redCard
	}
	for _, r := range s.myResults {
		if r.Won {
			v.IsWinner = true
			break
		}
	}
	return v
}
