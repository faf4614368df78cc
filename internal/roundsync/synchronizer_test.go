package roundsync

import (
	"errors"
	"testing"
	"time"

	"github.com/janpfeifer/RedCard/internal/game"
	"github.com/janpfeifer/RedCard/internal/history"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestAutoBetAndRestart(t *testing.T) {
	h := newHarness(t)
	h.joinAnn()
	require.Equal(t, 1000, h.View().Player.Chips)

	h.startRound(1, 1000)
	v := h.View()
	require.Equal(t, PhaseSelecting, v.Phase)
	require.Equal(t, 5, v.SelectedCard, "defaults to the last card")
	require.Equal(t, 10, v.BetAmount)
	require.Equal(t, 10*time.Second, v.Countdown)
	require.Empty(t, v.Winners)
	require.Nil(t, v.RedCard)

	h.clock.Advance(9 * time.Second)
	h.never(func() bool { return h.transport.count(game.MsgTypePlaceBet) > 0 }, "no bet before the deadline")
	require.Equal(t, 1, h.View().CountdownSeconds)

	h.clock.Advance(time.Second)
	h.eventually(func() bool { return h.transport.count(game.MsgTypePlaceBet) == 1 }, "auto-bet at the deadline")
	require.Equal(t, []game.PlaceBetMessage{{Amount: 10, CardIndex: 5}}, h.transport.bets())
	require.True(t, h.View().BetPlaced)

	// The snapshot in the outcome shows a stale balance: the payout wins.
	h.completeRound(1, 1030, 40)
	v = h.View()
	require.Equal(t, PhaseRoundComplete, v.Phase)
	require.Equal(t, 1040, v.Player.Chips)
	require.True(t, v.IsWinner)
	require.Equal(t, []string{"Ann"}, v.Winners)
	require.NotNil(t, v.RedCard)
	require.Equal(t, 5, *v.RedCard)
	require.Equal(t, []history.Entry{{Round: 1, Winners: []string{"Ann"}, RedCard: 5, NoBetPlayers: []string{"Bob"}}}, v.History)

	h.clock.Advance(3*time.Second - time.Millisecond)
	h.never(func() bool { return h.transport.count(game.MsgTypeStartRound) > 0 })

	h.clock.Advance(time.Millisecond)
	h.eventually(func() bool { return h.transport.count(game.MsgTypeStartRound) == 1 })
	h.eventually(func() bool { return h.View().Phase == PhaseLobby })

	h.clock.Advance(time.Minute)
	h.never(func() bool { return h.transport.count(game.MsgTypeStartRound) != 1 }, "restart is sent once")
	require.Equal(t, 1, h.transport.count(game.MsgTypePlaceBet))
}

func TestRequestBetAtMostOncePerRound(t *testing.T) {
	h := newHarness(t)
	h.joinAnn()
	h.startRound(1, 1000)

	require.NoError(t, h.RequestBet(20, 2))
	require.NoError(t, h.RequestBet(30, 3))
	require.NoError(t, h.RequestBet(20, 2))
	require.Equal(t, []game.PlaceBetMessage{{Amount: 20, CardIndex: 2}}, h.transport.bets())

	h.clock.Advance(10 * time.Second)
	h.never(func() bool { return h.transport.count(game.MsgTypePlaceBet) != 1 }, "no auto-bet after an explicit bet")

	// A new round allows a new bet.
	h.completeRound(1, 990, 0)
	h.startRound(2, 990)
	require.NoError(t, h.RequestBet(20, 2))
	require.Len(t, h.transport.bets(), 2)
}

func TestRequestBetValidation(t *testing.T) {
	h := newHarness(t)
	h.joinAnn()

	err := h.RequestBet(10, 1)
	require.True(t, IsKind(err, KindInvalidInput), "betting closed in the lobby: %v", err)
	require.Equal(t, msgBettingClosed, h.View().Message)

	h.startRound(1, 1000)
	for _, tc := range []struct {
		name    string
		amount  int
		card    int
		wantMsg string
	}{
		{"below min", 1, 1, "Bet must be between 2 and 100."},
		{"above max", 101, 1, "Bet must be between 2 and 100."},
		{"no card", 10, 0, msgNoCard},
		{"card off the table", 10, 6, msgNoCard},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := h.RequestBet(tc.amount, tc.card)
			require.True(t, IsKind(err, KindInvalidInput), "got %v", err)
			require.Equal(t, tc.wantMsg, h.View().Message)
		})
	}
	require.Empty(t, h.transport.bets(), "nothing sent for invalid input")

	require.NoError(t, h.RequestBet(2, 1))
	require.Empty(t, h.View().Message)
	require.Equal(t, []game.PlaceBetMessage{{Amount: 2, CardIndex: 1}}, h.transport.bets())
}

func TestSelectionDrivesAutoBet(t *testing.T) {
	h := newHarness(t)
	h.joinAnn()
	h.startRound(1, 1000)

	require.NoError(t, h.SelectAmount(25))
	require.NoError(t, h.SelectCard(2))
	require.True(t, IsKind(h.SelectCard(9), KindInvalidInput))
	require.True(t, IsKind(h.SelectAmount(500), KindInvalidInput))

	h.clock.Advance(10 * time.Second)
	h.eventually(func() bool { return len(h.transport.bets()) == 1 })
	require.Equal(t, game.PlaceBetMessage{Amount: 25, CardIndex: 2}, h.transport.bets()[0])

	// The amount sticks across rounds, the card goes back to the last one.
	h.completeRound(1, 975, 0)
	h.startRound(2, 975)
	v := h.View()
	require.Equal(t, 25, v.BetAmount)
	require.Equal(t, 5, v.SelectedCard)
}

func TestRequestJoin(t *testing.T) {
	h := newHarness(t)
	h.dispatch(&game.ConnectedMessage{})

	err := h.RequestJoin("  A ")
	require.True(t, IsKind(err, KindInvalidInput))
	require.Equal(t, msgNameTooShort, h.View().Message)
	require.Equal(t, PhaseUnjoined, h.View().Phase)
	require.Empty(t, h.transport.joins())

	require.NoError(t, h.RequestJoin("  Annabelle-Lee "))
	require.Equal(t, []string{"Annabelle-"}, h.transport.joins(), "names are cut to 10 characters")
	require.Equal(t, PhaseJoining, h.View().Phase)
	require.Empty(t, h.View().Message)

	err = h.RequestJoin("Ann")
	require.True(t, IsKind(err, KindInvalidInput), "join already in flight")
	require.Len(t, h.transport.joins(), 1)

	// Events for other phases are ignored while joining.
	h.startRound(1, 1000)
	require.Equal(t, PhaseJoining, h.View().Phase)
}

func TestRequestJoinSendFailure(t *testing.T) {
	h := newHarness(t)
	h.transport.sendErr = errors.New("not connected")

	err := h.RequestJoin("Ann")
	require.True(t, IsKind(err, KindConnectivityLost), "got %v", err)
	require.Equal(t, PhaseUnjoined, h.View().Phase)
}

func TestNameTakenBlocksSession(t *testing.T) {
	h := newHarness(t)
	h.dispatch(&game.ConnectedMessage{})
	require.NoError(t, h.RequestJoin("Ann"))

	err := h.Dispatch(&game.BetFailedMessage{Message: "Name already taken, pick another one"})
	require.True(t, IsKind(err, KindRejected))
	v := h.View()
	require.Equal(t, PhaseJoining, v.Phase)
	require.True(t, v.Blocked)
	require.Equal(t, "Name already taken, pick another one", v.Message)
	require.Equal(t, v.Message, v.ConnectionError)

	require.NoError(t, h.RequestJoin("Annie"))
	v = h.View()
	require.False(t, v.Blocked)
	require.Empty(t, v.ConnectionError)
	require.Equal(t, []string{"Ann", "Annie"}, h.transport.joins())

	h.dispatch(&game.PlayerJoinedMessage{Player: game.Player{ID: "annie-1", Name: "Annie", Chips: 1000}})
	require.Equal(t, PhaseLobby, h.View().Phase)
}

func TestJoinRetryAfterRejection(t *testing.T) {
	h := newHarness(t)
	h.dispatch(&game.ConnectedMessage{})
	require.NoError(t, h.RequestJoin("Ann"))

	err := h.Dispatch(&game.BetFailedMessage{Message: "Game is full"})
	require.True(t, IsKind(err, KindRejected))
	v := h.View()
	require.Equal(t, PhaseJoining, v.Phase)
	require.False(t, v.Blocked)
	require.Equal(t, "Game is full", v.Message)

	require.NoError(t, h.RequestJoin("Annie"))
	require.Equal(t, []string{"Ann", "Annie"}, h.transport.joins())
	require.Empty(t, h.View().Message)

	// Without a new rejection, the retry is in flight.
	err = h.RequestJoin("Anna")
	require.True(t, IsKind(err, KindInvalidInput))
	require.Len(t, h.transport.joins(), 2)

	h.dispatch(&game.PlayerJoinedMessage{Player: game.Player{ID: "annie-1", Name: "Annie", Chips: 1000}})
	require.Equal(t, PhaseLobby, h.View().Phase)
}

func TestBetFailedDuringRound(t *testing.T) {
	h := newHarness(t)
	h.joinAnn()
	h.startRound(1, 1000)
	require.NoError(t, h.RequestBet(10, 3))

	err := h.Dispatch(&game.BetFailedMessage{Message: "Insufficient chips"})
	require.True(t, IsKind(err, KindRejected))
	v := h.View()
	require.Equal(t, PhaseSelecting, v.Phase)
	require.False(t, v.Blocked)
	require.Empty(t, v.ConnectionError)
	require.Equal(t, "Insufficient chips", v.Message)
}

func TestOutOfOrderSnapshotIgnored(t *testing.T) {
	h := newHarness(t)
	h.joinAnn()

	h.dispatch(&game.GameStateMessage{RoundSnapshot: snapshot(3, 900)})
	require.Equal(t, 900, h.View().Player.Chips)

	stale := snapshot(2, 1)
	stale.Pot = 12345
	h.dispatch(&game.GameStateMessage{RoundSnapshot: stale})
	v := h.View()
	require.Equal(t, 3, v.Snapshot.CurrentRound)
	require.Zero(t, v.Snapshot.Pot)
	require.Equal(t, 900, v.Player.Chips)
	require.Equal(t, 1, h.ConsistencyWarnings())

	// Same round is a legitimate replacement.
	h.dispatch(&game.GameStateMessage{RoundSnapshot: snapshot(3, 880)})
	require.Equal(t, 880, h.View().Player.Chips)
}

func TestBetPlacedReconciliation(t *testing.T) {
	intPtr := func(v int) *int { return &v }
	h := newHarness(t)
	h.joinAnn()
	h.startRound(2, 1000)

	h.dispatch(&game.BetPlacedMessage{PlayerID: annID, PlayerName: "Ann", ChipsBefore: intPtr(1000), ChipsAfter: intPtr(990)})
	require.Equal(t, 990, h.View().Player.Chips)
	require.True(t, h.View().BetPlaced, "acknowledged bets count as placed")

	// A concurrent snapshot of the same round doesn't override the ack.
	h.dispatch(&game.GameStateMessage{RoundSnapshot: snapshot(2, 1000)})
	require.Equal(t, 990, h.View().Player.Chips)

	// Someone else's bets.
	h.dispatch(&game.BetPlacedMessage{PlayerID: "bob-1", PlayerName: "Bob", ChipsAfter: intPtr(1)})
	h.dispatch(&game.BetPlacedMessage{PlayerID: "annie-1", PlayerName: "Annie", ChipsAfter: intPtr(2)})
	require.Equal(t, 990, h.View().Player.Chips)

	// Legacy shape, matched by name.
	h.dispatch(&game.BetPlacedMessage{PlayerName: "Ann", Chips: intPtr(980)})
	require.Equal(t, 980, h.View().Player.Chips)

	// The next round's snapshot is authoritative again.
	h.completeRound(2, 980, 0)
	h.startRound(3, 975)
	require.Equal(t, 975, h.View().Player.Chips)
}

func TestBetPlacedMatchedByName(t *testing.T) {
	intPtr := func(v int) *int { return &v }
	h := newHarness(t)
	h.joinAnn()
	h.startRound(1, 1000)

	// The server may have handed out a new id, e.g. after a reconnection.
	h.dispatch(&game.BetPlacedMessage{PlayerID: "ann-2", PlayerName: "Ann", ChipsAfter: intPtr(990)})
	require.Equal(t, 990, h.View().Player.Chips)
	require.True(t, h.View().BetPlaced)
}

func TestNegativeBalanceClamped(t *testing.T) {
	h := newHarness(t)
	h.joinAnn()
	h.startRound(1, 1000)
	h.completeRound(1, 0, -5000)
	require.Equal(t, 0, h.View().Player.Chips)
	require.Equal(t, 1, h.ConsistencyWarnings())
}

func TestDisconnectCancelsTimers(t *testing.T) {
	t.Run("countdown", func(t *testing.T) {
		h := newHarness(t)
		h.joinAnn()
		h.startRound(1, 1000)
		h.clock.Advance(5 * time.Second)

		h.dispatch(&game.DisconnectedMessage{Reason: "EOF"})
		v := h.View()
		require.Equal(t, PhaseDisconnected, v.Phase)
		require.Equal(t, msgDisconnected, v.ConnectionError)
		require.Zero(t, v.Countdown)
		require.Empty(t, h.pendingTimers())

		h.clock.Advance(10 * time.Second)
		h.dispatch(&game.ConnectedMessage{})
		v = h.View()
		require.Equal(t, PhaseSelecting, v.Phase, "back to the phase held before")
		require.Empty(t, v.ConnectionError)
		h.clock.Advance(time.Minute)
		h.never(func() bool { return h.transport.count(game.MsgTypePlaceBet) > 0 }, "no stale auto-bet")
	})

	t.Run("restart", func(t *testing.T) {
		h := newHarness(t)
		h.joinAnn()
		h.startRound(1, 1000)
		require.NoError(t, h.RequestBet(10, 5))
		h.completeRound(1, 990, 40)
		require.Equal(t, []timerKind{timerRestart}, h.pendingTimers())

		h.dispatch(&game.DisconnectedMessage{})
		h.clock.Advance(3 * time.Second)
		h.dispatch(&game.ConnectedMessage{})
		h.clock.Advance(3 * time.Second)
		h.never(func() bool { return h.transport.count(game.MsgTypeStartRound) > 0 }, "no stale restart")
		require.Equal(t, PhaseRoundComplete, h.View().Phase)

		// The next authoritative push resynchronizes.
		h.startRound(2, 1030)
		require.Equal(t, PhaseSelecting, h.View().Phase)
	})

	t.Run("before join", func(t *testing.T) {
		h := newHarness(t)
		h.dispatch(&game.ConnectedMessage{})
		require.NoError(t, h.RequestJoin("Ann"))
		h.dispatch(&game.DisconnectedMessage{})
		h.dispatch(&game.ConnectedMessage{})
		require.Equal(t, PhaseUnjoined, h.View().Phase)
	})
}

func TestDuplicateRoundCompletedIgnored(t *testing.T) {
	h := newHarness(t)
	h.joinAnn()
	h.startRound(1, 1000)
	require.NoError(t, h.RequestBet(10, 5))

	h.completeRound(1, 1030, 40)
	h.clock.Advance(time.Second)
	h.completeRound(1, 1030, 40)
	v := h.View()
	require.Equal(t, 1040, v.Player.Chips, "payout applied once")
	require.Len(t, v.History, 1)

	h.clock.Advance(2 * time.Second)
	h.eventually(func() bool { return h.transport.count(game.MsgTypeStartRound) == 1 })
	h.clock.Advance(3 * time.Second)
	h.never(func() bool { return h.transport.count(game.MsgTypeStartRound) != 1 })

	// A late roundStarted of the completed round is stale.
	h.startRound(1, 1000)
	require.Equal(t, PhaseLobby, h.View().Phase)
	require.Equal(t, 1040, h.View().Player.Chips)
}

func TestRevealWindow(t *testing.T) {
	h := newHarness(t)
	h.joinAnn()
	h.startRound(1, 1000)
	h.clock.Advance(4 * time.Second)

	h.dispatch(&game.RedCardRevealedMessage{})
	v := h.View()
	require.Equal(t, PhaseAwaitingReveal, v.Phase)
	require.True(t, v.ShowRedCard)
	require.Equal(t, 2*time.Second, v.RevealCountdown)
	require.Zero(t, v.Countdown, "betting is closed")
	require.True(t, IsKind(h.RequestBet(10, 1), KindInvalidInput))

	h.clock.Advance(2 * time.Second)
	h.eventually(func() bool { return h.View().Phase == PhaseRevealing })
	require.False(t, h.View().ShowRedCard)

	h.clock.Advance(10 * time.Second)
	h.never(func() bool { return h.transport.count(game.MsgTypePlaceBet) > 0 })

	h.completeRound(1, 1000, 0)
	require.Equal(t, PhaseRoundComplete, h.View().Phase)
	require.False(t, h.View().IsWinner)
}

func TestRevealWindowFromConstants(t *testing.T) {
	clock := clockwork.NewFakeClock()
	transport := &fakeTransport{}
	s := New(transport, Options{Clock: clock, Constants: game.Constants{RevealDelay: 500}})
	t.Cleanup(s.Close)
	h := &harness{Synchronizer: s, t: t, transport: transport, clock: clock}
	h.joinAnn()
	h.startRound(1, 1000)

	h.dispatch(&game.RedCardRevealedMessage{})
	require.Equal(t, 500*time.Millisecond, h.View().RevealCountdown)
	h.clock.Advance(500 * time.Millisecond)
	h.eventually(func() bool { return h.View().Phase == PhaseRevealing })

	// An explicit window wins over the server's.
	s2 := New(transport, Options{Clock: clock, Constants: game.Constants{RevealDelay: 500}, RevealWindow: 3 * time.Second})
	t.Cleanup(s2.Close)
	require.Equal(t, 3*time.Second, s2.revealWindow)
}

func TestRevealAfterOutcome(t *testing.T) {
	h := newHarness(t)
	h.joinAnn()
	h.startRound(1, 1000)
	h.completeRound(1, 1000, 0)
	h.dispatch(&game.RedCardRevealedMessage{})
	v := h.View()
	require.Equal(t, PhaseRoundComplete, v.Phase)
	require.True(t, v.ShowRedCard)

	// Both the restart and the reveal window run.
	h.clock.Advance(3 * time.Second)
	h.eventually(func() bool { return h.transport.count(game.MsgTypeStartRound) == 1 })
	h.eventually(func() bool { return !h.View().ShowRedCard })
}

func TestStaleTimerIgnored(t *testing.T) {
	h := newHarness(t)
	h.joinAnn()
	h.startRound(1, 1000)

	h.dispatch(timerFired{kind: timerCountdown, round: 1, seq: 999})
	h.dispatch(timerFired{kind: timerCountdown, round: 7, seq: 1})
	h.dispatch(timerFired{kind: timerRestart, round: 1, seq: 1})
	require.Empty(t, h.transport.bets())
	require.Zero(t, h.transport.count(game.MsgTypeStartRound))
	require.Equal(t, []timerKind{timerCountdown}, h.pendingTimers())
}

func TestNewerRoundCancelsRestart(t *testing.T) {
	h := newHarness(t)
	h.joinAnn()
	h.startRound(1, 1000)
	h.completeRound(1, 1000, 0)

	// Another player already started the next round.
	h.startRound(2, 1000)
	h.clock.Advance(3 * time.Second)
	h.never(func() bool { return h.transport.count(game.MsgTypeStartRound) > 0 })
	require.Equal(t, PhaseSelecting, h.View().Phase)
}

func TestDuplicateRoundStartedKeepsWindow(t *testing.T) {
	h := newHarness(t)
	h.joinAnn()
	h.startRound(1, 1000)
	require.NoError(t, h.SelectCard(2))
	h.clock.Advance(6 * time.Second)

	h.startRound(1, 1000)
	v := h.View()
	require.Equal(t, 2, v.SelectedCard)
	require.Equal(t, 4*time.Second, v.Countdown)
}

func TestConnectErrorAndReconnect(t *testing.T) {
	h := newHarness(t)
	h.joinAnn()

	h.dispatch(&game.ConnectErrorMessage{Message: "dial tcp: refused"})
	v := h.View()
	require.Equal(t, PhaseDisconnected, v.Phase)
	require.Equal(t, "Connection error: dial tcp: refused", v.Message)
	require.Equal(t, v.Message, v.ConnectionError)

	require.NoError(t, h.RequestReconnect())
	v = h.View()
	require.Empty(t, v.Message)
	require.Empty(t, v.ConnectionError)
	require.Equal(t, 1, h.transport.reconnects)

	h.dispatch(&game.ConnectedMessage{})
	require.Equal(t, PhaseLobby, h.View().Phase)
}

func TestObserverDoesNotBet(t *testing.T) {
	h := newHarness(t)
	h.dispatch(&game.ConnectedMessage{})
	h.startRound(1, 1000)
	require.Equal(t, PhaseUnjoined, h.View().Phase)
	require.Empty(t, h.pendingTimers())
	require.Equal(t, 1, h.View().Snapshot.CurrentRound)
}

func TestListenersAndClose(t *testing.T) {
	h := newHarness(t)
	calls := 0
	h.Subscribe("test", func() {
		calls++
		_ = h.View() // Listeners may read the state.
	})
	h.dispatch(&game.ConnectedMessage{})
	_ = h.RequestJoin("x")
	require.Equal(t, 2, calls)

	h.Unsubscribe("test")
	h.dispatch(&game.GameStateMessage{RoundSnapshot: snapshot(1, 1000)})
	require.Equal(t, 2, calls)

	h.Close()
	require.ErrorIs(t, h.Dispatch(&game.ConnectedMessage{}), ErrClosed)
}
