package roundsync

import (
	"sync"
	"testing"
	"time"

	"github.com/janpfeifer/RedCard/internal/game"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

const (
	annID = "ann-1"

	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
	quiet   = 100 * time.Millisecond
)

// fakeTransport records the commands it is asked to send.
type fakeTransport struct {
	mu         sync.Mutex
	sent       []game.Command
	sendErr    error
	reconnects int
}

func (f *fakeTransport) Send(cmd game.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeTransport) Reconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnects++
	return nil
}

func (f *fakeTransport) count(msgType game.MessageType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, cmd := range f.sent {
		if cmd.CommandType() == msgType {
			n++
		}
	}
	return n
}

func (f *fakeTransport) bets() []game.PlaceBetMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var bets []game.PlaceBetMessage
	for _, cmd := range f.sent {
		if bet, ok := cmd.(game.PlaceBetMessage); ok {
			bets = append(bets, bet)
		}
	}
	return bets
}

func (f *fakeTransport) joins() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for _, cmd := range f.sent {
		if join, ok := cmd.(game.JoinGameMessage); ok {
			names = append(names, join.Name)
		}
	}
	return names
}

type harness struct {
	*Synchronizer
	t         *testing.T
	transport *fakeTransport
	clock     *clockwork.FakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := clockwork.NewFakeClock()
	transport := &fakeTransport{}
	s := New(transport, Options{Clock: clock})
	t.Cleanup(s.Close)
	return &harness{Synchronizer: s, t: t, transport: transport, clock: clock}
}

func (h *harness) dispatch(ev game.Event) {
	h.t.Helper()
	require.NoError(h.t, h.Dispatch(ev))
}

// joinAnn connects and joins as Ann with 1000 chips.
func (h *harness) joinAnn() {
	h.t.Helper()
	h.dispatch(&game.ConnectedMessage{})
	require.NoError(h.t, h.RequestJoin("Ann"))
	h.dispatch(&game.PlayerJoinedMessage{Player: game.Player{ID: annID, Name: "Ann", Chips: 1000}})
	require.Equal(h.t, PhaseLobby, h.View().Phase)
}

func snapshot(round, annChips int) game.RoundSnapshot {
	return game.RoundSnapshot{
		CurrentRound:    round,
		GameStarted:     true,
		RoundInProgress: true,
		Players: []game.Player{
			{ID: annID, Name: "Ann", Chips: annChips},
			{ID: "bob-1", Name: "Bob", Chips: 500},
		},
		Cards: game.Cards{Revealed: make([]bool, 5)},
	}
}

func (h *harness) startRound(round, annChips int) {
	h.t.Helper()
	h.dispatch(&game.RoundStartedMessage{RoundSnapshot: snapshot(round, annChips)})
}

func (h *harness) completeRound(round, annChips, payout int) {
	h.t.Helper()
	gs := snapshot(round, annChips)
	gs.RoundInProgress = false
	h.dispatch(&game.RoundCompletedMessage{
		GameState:       gs,
		Winners:         []string{"Ann"},
		RedCardPosition: 5,
		NoBetPlayers:    []string{"Bob"},
		BetResults: []game.PlayerBetResult{{
			PlayerID: annID,
			Bets:     []game.BetResult{{CardIndex: 5, Amount: 10, Won: payout > 0, Payout: payout}},
		}},
	})
}

// eventually waits for an asynchronous timer dispatch to have an effect.
func (h *harness) eventually(cond func() bool, msgAndArgs ...any) {
	h.t.Helper()
	require.Eventually(h.t, cond, waitFor, tick, msgAndArgs...)
}

// never checks that nothing changes while timers had a chance to run.
func (h *harness) never(cond func() bool, msgAndArgs ...any) {
	h.t.Helper()
	require.Never(h.t, cond, quiet, tick, msgAndArgs...)
}

func (h *harness) pendingTimers() []timerKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	kinds := make([]timerKind, 0, len(h.timers))
	for kind := range h.timers {
		kinds = append(kinds, kind)
	}
	return kinds
}
