// Package roundsync reconciles the stream of server events with the local
// round state: phase, selection window countdown, auto-bet on timeout, chip
// balance and the automatic start of the next round.
//
// Every input (server event, expiring timer, user intent) goes through
// Dispatch, which applies it under a single lock, so transitions happen one
// at a time and in delivery order.
package roundsync

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/janpfeifer/RedCard/internal/countdown"
	"github.com/janpfeifer/RedCard/internal/game"
	"github.com/janpfeifer/RedCard/internal/history"
	"github.com/janpfeifer/RedCard/internal/identity"
	"github.com/janpfeifer/RedCard/internal/ledger"
	"github.com/jonboulle/clockwork"
	"k8s.io/klog/v2"
)

const (
	DefaultRestartDelay = 3 * time.Second
	DefaultBetAmount    = 10

	MinNameLength = 2
	MaxNameLength = 10
)

// Transport is where commands go. Send must not block.
type Transport interface {
	Send(cmd game.Command) error
	Reconnect() error
}

// Options configures a Synchronizer. Zero values take the defaults; the
// reveal window defaults to the REVEAL_DELAY constant.
type Options struct {
	Clock        clockwork.Clock
	Constants    game.Constants
	RevealWindow time.Duration
	RestartDelay time.Duration
	DefaultBet   int
}

// Synchronizer is the client-side round state machine.
type Synchronizer struct {
	mu        sync.Mutex
	transport Transport
	clock     clockwork.Clock
	constants game.Constants

	revealWindow time.Duration
	restartDelay time.Duration

	phase Phase
	// lost is set by a disconnect or connect error, and cleared on connect.
	// While set the reported phase is PhaseDisconnected, and phase holds the
	// one to return to.
	lost      bool
	connected bool
	closed    bool

	identity  *identity.Holder
	history   *history.Ring
	countdown *countdown.Countdown
	reveal    *countdown.Countdown

	snapshot       *game.RoundSnapshot
	selectingRound int
	selectedCard   int
	betAmount      int
	betPlaced      bool

	winners      []string
	redCard      *int
	noBetPlayers []string
	myResults    []game.BetResult
	showRedCard  bool

	completedRound int
	hasCompleted   bool

	message         string
	connectionError string
	blocked         bool
	// joinRejected is set by a rejection received while joining.
	joinRejected bool

	timers   map[timerKind]*scheduledTimer
	timerSeq uint64
	warnings int

	listeners map[string]func()
}

// New creates a synchronizer sending its commands to t.
func New(t Transport, opts Options) *Synchronizer {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = DefaultRestartDelay
	}
	if opts.DefaultBet <= 0 {
		opts.DefaultBet = DefaultBetAmount
	}
	constants := opts.Constants.WithDefaults()
	if opts.RevealWindow <= 0 {
		opts.RevealWindow = constants.RevealDuration()
	}
	return &Synchronizer{
		transport:    t,
		clock:        opts.Clock,
		constants:    constants,
		revealWindow: opts.RevealWindow,
		restartDelay: opts.RestartDelay,
		phase:        PhaseUnjoined,
		identity:     identity.New(ledger.New()),
		history:      history.New(),
		countdown:    countdown.New(opts.Clock),
		reveal:       countdown.New(opts.Clock),
		betAmount:    min(max(opts.DefaultBet, constants.MinBet), constants.MaxBet),
		timers:       make(map[timerKind]*scheduledTimer),
		listeners:    make(map[string]func()),
	}
}

// Dispatch applies one event. The returned error is only meaningful for
// intents (invalid input, failed send) and rejections.
// Listeners are notified after the event is applied, without the lock held.
func (s *Synchronizer) Dispatch(ev game.Event) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	klog.V(2).Infof("Dispatch: %s in phase %s", ev.EventType(), s.currentPhase())
	err := s.apply(ev)
	listeners := make([]func(), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l()
	}
	return err
}

// apply is the transition table. Must be called with s.mu held.
func (s *Synchronizer) apply(ev game.Event) error {
	switch e := ev.(type) {
	// Connectivity.
	case *game.ConnectedMessage:
		s.onConnected()
	case *game.DisconnectedMessage:
		s.onDisconnected(e.Reason)
	case *game.ConnectErrorMessage:
		s.onConnectError(e.Message)

	// Server pushes.
	case *game.GameStateMessage:
		s.onGameState(&e.RoundSnapshot)
	case *game.PlayerJoinedMessage:
		s.onPlayerJoined(e.Player)
	case *game.RoundStartedMessage:
		s.onRoundStarted(&e.RoundSnapshot)
	case *game.RedCardRevealedMessage:
		s.onRedCardRevealed()
	case *game.RoundCompletedMessage:
		s.onRoundCompleted(e)
	case *game.BetFailedMessage:
		return s.onBetFailed(e.Message)
	case *game.BetPlacedMessage:
		s.onBetPlaced(e)

	// User intents.
	case JoinRequested:
		return s.requestJoin(e.Name)
	case BetRequested:
		return s.requestBet(e.Amount, e.CardIndex)
	case CardSelected:
		return s.selectCard(e.CardIndex)
	case AmountSelected:
		return s.selectAmount(e.Amount)
	case ReconnectRequested:
		return s.requestReconnect()

	// Local timers.
	case timerFired:
		s.onTimer(e)

	default:
		klog.Warningf("Dispatch: unhandled event %T", ev)
	}
	return nil
}

func (s *Synchronizer) currentPhase() Phase {
	if s.lost {
		return PhaseDisconnected
	}
	return s.phase
}

func (s *Synchronizer) currentRound() int {
	if s.snapshot == nil {
		return 0
	}
	return s.snapshot.CurrentRound
}

func (s *Synchronizer) onConnected() {
	wasLost := s.lost
	s.connected = true
	s.lost = false
	if !wasLost {
		klog.Infof("onConnected: connected in phase %s", s.phase)
		return
	}
	s.message = ""
	s.connectionError = ""
	s.blocked = false
	s.joinRejected = false
	if !s.identity.Joined() {
		s.phase = PhaseUnjoined
	}
	klog.Infof("onConnected: reconnected, back to phase %s", s.phase)
}

// dropConnection cancels every round timer: none of them may fire for a
// round this client might have missed the end of.
func (s *Synchronizer) dropConnection() {
	s.connected = false
	s.lost = true
	s.cancelAllTimers()
	s.countdown.Stop()
	s.reveal.Stop()
	s.showRedCard = false
}

func (s *Synchronizer) onDisconnected(reason string) {
	klog.Warningf("onDisconnected: %q in phase %s", reason, s.phase)
	s.dropConnection()
	s.connectionError = msgDisconnected
}

func (s *Synchronizer) onConnectError(msg string) {
	klog.Errorf("onConnectError: %s", msg)
	s.dropConnection()
	text := "Connection error: " + msg
	s.message = text
	s.connectionError = text
}

// acceptSnapshot enforces the non-decreasing round number of snapshots.
func (s *Synchronizer) acceptSnapshot(snap *game.RoundSnapshot, source game.MessageType) bool {
	if s.snapshot != nil && snap.CurrentRound < s.snapshot.CurrentRound {
		s.consistencyWarning("%s: ignoring snapshot of round %d, already at round %d",
			source, snap.CurrentRound, s.snapshot.CurrentRound)
		return false
	}
	return true
}

func (s *Synchronizer) consistencyWarning(format string, args ...any) {
	s.warnings++
	klog.Warningf("%s: %s", KindConsistencyWarning, fmt.Sprintf(format, args...))
}

// refreshChips offers the snapshot balance to the ledger, which keeps any
// more authoritative update of the same round.
func (s *Synchronizer) refreshChips() {
	if !s.identity.Joined() {
		return
	}
	if p, ok := s.snapshot.FindPlayer(s.identity.ID()); ok {
		s.identity.Ledger().ApplySnapshot(s.snapshot.CurrentRound, p.Chips)
	}
}

func (s *Synchronizer) onGameState(snap *game.RoundSnapshot) {
	if !s.acceptSnapshot(snap, game.MsgTypeGameState) {
		return
	}
	s.snapshot = snap.Clone()
	s.refreshChips()
}

func (s *Synchronizer) onPlayerJoined(p game.Player) {
	if s.phase != PhaseJoining {
		klog.Warningf("onPlayerJoined: ignoring join of %q in phase %s", p.Name, s.phase)
		return
	}
	s.identity.Join(p)
	s.phase = PhaseLobby
	s.message = ""
	s.blocked = false
	s.joinRejected = false
	klog.Infof("onPlayerJoined: joined as %q (id=%s) with %d chips", p.Name, p.ID, p.Chips)
}

func (s *Synchronizer) onRoundStarted(snap *game.RoundSnapshot) {
	round := snap.CurrentRound
	if s.hasCompleted && round <= s.completedRound {
		s.consistencyWarning("roundStarted: round %d already completed", round)
		return
	}
	if !s.acceptSnapshot(snap, game.MsgTypeRoundStarted) {
		return
	}
	s.snapshot = snap.Clone()
	if s.phase == PhaseSelecting && s.selectingRound == round {
		klog.V(1).Infof("onRoundStarted: round %d already open", round)
		s.refreshChips()
		return
	}

	s.winners = nil
	s.redCard = nil
	s.noBetPlayers = nil
	s.myResults = nil
	s.showRedCard = false
	s.reveal.Stop()
	s.cancelTimer(timerReveal)
	s.cancelTimer(timerRestart)
	s.refreshChips()

	if !s.identity.Joined() {
		klog.V(1).Infof("onRoundStarted: round %d started, not joined", round)
		return
	}
	s.openSelection(round)
}

// openSelection opens the betting window, defaulting to the last card so
// that the auto-bet always has a valid target.
func (s *Synchronizer) openSelection(round int) {
	s.phase = PhaseSelecting
	s.selectingRound = round
	s.betPlaced = false
	s.selectedCard = s.constants.NumCards
	deadline := s.countdown.Start(s.constants.SelectionDuration())
	s.schedule(timerCountdown, round, s.countdown.Remaining())
	klog.Infof("openSelection: round %d, betting closes at %s", round, deadline.Format(time.TimeOnly))
}

func (s *Synchronizer) onTimer(e timerFired) {
	if !s.claimTimer(e) {
		klog.V(2).Infof("onTimer: dropping stale %s timer of round %d", e.kind, e.round)
		return
	}
	switch e.kind {
	case timerCountdown:
		s.onCountdownExpired(e.round)
	case timerReveal:
		s.onRevealClosed()
	case timerRestart:
		s.onRestartDue(e.round)
	}
}

func (s *Synchronizer) onCountdownExpired(round int) {
	if s.phase != PhaseSelecting || s.selectingRound != round {
		return
	}
	if !s.countdown.Expire() {
		if remaining := s.countdown.Remaining(); remaining > 0 {
			s.schedule(timerCountdown, round, remaining)
		}
		return
	}
	if s.betPlaced {
		return
	}
	klog.Infof("onCountdownExpired: auto-bet of %d on card %d for round %d", s.betAmount, s.selectedCard, round)
	if err := s.placeBet(s.betAmount, s.selectedCard); err != nil {
		klog.Warningf("onCountdownExpired: auto-bet failed: %v", err)
	}
}

func (s *Synchronizer) onRedCardRevealed() {
	s.countdown.Stop()
	s.cancelTimer(timerCountdown)
	s.showRedCard = true
	s.reveal.Start(s.revealWindow)
	s.schedule(timerReveal, s.currentRound(), s.revealWindow)
	if s.phase == PhaseSelecting {
		s.phase = PhaseAwaitingReveal
	}
}

func (s *Synchronizer) onRevealClosed() {
	s.showRedCard = false
	s.reveal.Stop()
	if s.phase == PhaseAwaitingReveal {
		s.phase = PhaseRevealing
	}
}

func (s *Synchronizer) onRoundCompleted(e *game.RoundCompletedMessage) {
	round := e.GameState.CurrentRound
	if s.hasCompleted && round <= s.completedRound {
		klog.V(1).Infof("onRoundCompleted: round %d already completed, ignoring", round)
		return
	}
	if !s.acceptSnapshot(&e.GameState, game.MsgTypeRoundCompleted) {
		return
	}
	s.snapshot = e.GameState.Clone()
	s.countdown.Stop()
	s.cancelTimer(timerCountdown)

	s.winners = slices.Clone(e.Winners)
	redCard := e.RedCardPosition
	s.redCard = &redCard
	s.noBetPlayers = slices.Clone(e.NoBetPlayers)
	s.myResults = nil
	if s.identity.Joined() {
		if results, ok := e.ResultsFor(s.identity.ID()); ok {
			s.myResults = slices.Clone(results.Bets)
			before := s.identity.Chips()
			after := s.identity.Ledger().ApplyOutcome(round, results.TotalPayout())
			klog.Infof("onRoundCompleted: round %d, chips %d -> %d", round, before, after)
		} else {
			s.refreshChips()
		}
	}
	s.history.Push(history.FromOutcome(e))
	s.completedRound = round
	s.hasCompleted = true

	switch s.phase {
	case PhaseLobby, PhaseSelecting, PhaseAwaitingReveal, PhaseRevealing:
		s.phase = PhaseRoundComplete
		if !s.lost {
			s.schedule(timerRestart, round, s.restartDelay)
		}
	}
}

func (s *Synchronizer) onRestartDue(round int) {
	if s.phase != PhaseRoundComplete || s.completedRound != round {
		return
	}
	s.phase = PhaseLobby
	klog.Infof("onRestartDue: requesting the round after %d", round)
	if err := s.send(game.StartRoundMessage{}); err != nil {
		klog.Warningf("onRestartDue: %v", err)
	}
}

func (s *Synchronizer) onBetFailed(msg string) error {
	klog.Warningf("onBetFailed: %q in phase %s", msg, s.phase)
	s.message = msg
	if s.phase == PhaseJoining {
		s.joinRejected = true
	}
	if strings.Contains(msg, nameTakenMarker) {
		s.connectionError = msg
		s.blocked = true
	}
	return &Error{Kind: KindRejected, Message: msg}
}

func (s *Synchronizer) onBetPlaced(e *game.BetPlacedMessage) {
	if !s.identity.Matches(e.PlayerID, e.PlayerName) {
		klog.V(2).Infof("onBetPlaced: not for us (id=%q, name=%q)", e.PlayerID, e.PlayerName)
		return
	}
	if e.PlayerID != "" && e.PlayerID != s.identity.ID() {
		klog.Warningf("onBetPlaced: matched by name %q, but id %q is not ours (%q)", e.PlayerName, e.PlayerID, s.identity.ID())
	}
	if s.phase == PhaseSelecting {
		s.betPlaced = true
	}
	if s.identity.Ledger().ApplyBetAck(s.currentRound(), e.ChipsAfter, e.Chips) {
		klog.V(1).Infof("onBetPlaced: balance now %d", s.identity.Chips())
	}
}

// invalid records an InvalidInput as the inline message.
func (s *Synchronizer) invalid(msg string) error {
	s.message = msg
	return &Error{Kind: KindInvalidInput, Message: msg}
}

func (s *Synchronizer) send(cmd game.Command) error {
	if s.transport == nil {
		return &Error{Kind: KindConnectivityLost, Message: "no transport"}
	}
	if err := s.transport.Send(cmd); err != nil {
		return &Error{Kind: KindConnectivityLost, Message: fmt.Sprintf("failed to send %s", cmd.CommandType()), Err: err}
	}
	return nil
}

// NormalizeName trims the name and cuts it to MaxNameLength characters.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > MaxNameLength {
		name = strings.TrimSpace(string([]rune(name)[:MaxNameLength]))
	}
	return name
}

func (s *Synchronizer) requestJoin(name string) error {
	name = NormalizeName(name)
	if utf8.RuneCountInString(name) < MinNameLength {
		return s.invalid(msgNameTooShort)
	}
	switch {
	case s.phase == PhaseUnjoined:
	case s.phase == PhaseJoining && (s.blocked || s.joinRejected):
		s.connectionError = ""
	case s.phase == PhaseJoining:
		return s.invalid(msgJoinInProgress)
	default:
		return s.invalid(msgAlreadyJoined)
	}
	s.phase = PhaseJoining
	s.blocked = false
	s.joinRejected = false
	s.message = ""
	klog.Infof("requestJoin: joining as %q", name)
	if err := s.send(game.JoinGameMessage{Name: name}); err != nil {
		s.phase = PhaseUnjoined
		s.message = err.Error()
		return err
	}
	return nil
}

func (s *Synchronizer) requestBet(amount, cardIndex int) error {
	if s.currentPhase() != PhaseSelecting {
		return s.invalid(msgBettingClosed)
	}
	if !s.constants.ValidBet(amount) {
		return s.invalid(betRangeMessage(s.constants))
	}
	if !s.constants.ValidCard(cardIndex) {
		return s.invalid(msgNoCard)
	}
	if s.betPlaced {
		klog.V(1).Infof("requestBet: bet already placed for round %d", s.selectingRound)
		return nil
	}
	s.betAmount = amount
	s.selectedCard = cardIndex
	return s.placeBet(amount, cardIndex)
}

// placeBet sends the one bet of the round.
func (s *Synchronizer) placeBet(amount, cardIndex int) error {
	if !s.constants.ValidBet(amount) {
		return s.invalid(betRangeMessage(s.constants))
	}
	if !s.constants.ValidCard(cardIndex) {
		return s.invalid(msgNoCard)
	}
	s.betPlaced = true
	s.message = ""
	return s.send(game.PlaceBetMessage{Amount: amount, CardIndex: cardIndex})
}

func (s *Synchronizer) selectCard(cardIndex int) error {
	if !s.constants.ValidCard(cardIndex) {
		return s.invalid(msgNoCard)
	}
	s.selectedCard = cardIndex
	return nil
}

func (s *Synchronizer) selectAmount(amount int) error {
	if !s.constants.ValidBet(amount) {
		return s.invalid(betRangeMessage(s.constants))
	}
	s.betAmount = amount
	return nil
}

func (s *Synchronizer) requestReconnect() error {
	s.message = ""
	s.connectionError = ""
	s.blocked = false
	if s.transport == nil {
		return &Error{Kind: KindConnectivityLost, Message: "no transport"}
	}
	if err := s.transport.Reconnect(); err != nil {
		s.connectionError = "Connection error: " + err.Error()
		return &Error{Kind: KindConnectivityLost, Message: "reconnect failed", Err: err}
	}
	return nil
}

// RequestJoin asks to join the table with the given name.
func (s *Synchronizer) RequestJoin(name string) error {
	return s.Dispatch(JoinRequested{Name: name})
}

// RequestBet places the round's bet. Further calls in the same round are no-ops.
func (s *Synchronizer) RequestBet(amount, cardIndex int) error {
	return s.Dispatch(BetRequested{Amount: amount, CardIndex: cardIndex})
}

// SelectCard changes the selected card.
func (s *Synchronizer) SelectCard(cardIndex int) error {
	return s.Dispatch(CardSelected{CardIndex: cardIndex})
}

// SelectAmount changes the selected bet amount.
func (s *Synchronizer) SelectAmount(amount int) error {
	return s.Dispatch(AmountSelected{Amount: amount})
}

// RequestReconnect clears the errors and asks the transport to reconnect.
func (s *Synchronizer) RequestReconnect() error {
	return s.Dispatch(ReconnectRequested{})
}

// Subscribe registers fn to be called after every dispatched event.
// Registering the same name again replaces the previous function.
func (s *Synchronizer) Subscribe(name string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[name] = fn
}

// Unsubscribe removes the listener registered under name.
func (s *Synchronizer) Unsubscribe(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, name)
}

// ConsistencyWarnings counts ignored out-of-order events and clamped balances.
func (s *Synchronizer) ConsistencyWarnings() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warnings + s.identity.Ledger().Warnings()
}

// Constants returns the table constants in use.
func (s *Synchronizer) Constants() game.Constants {
	return s.constants
}

// Close cancels every pending timer. Dispatch fails with ErrClosed afterwards.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelAllTimers()
	s.countdown.Stop()
	s.reveal.Stop()
	s.closed = true
	s.listeners = make(map[string]func())
}
