package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/janpfeifer/RedCard/internal/game"
	"github.com/stretchr/testify/require"
)

// pipeListener serves HTTP connections over net.Pipe
type pipeListener struct {
	ch   chan net.Conn
	done chan struct{}
}

func (l *pipeListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.ch:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *pipeListener) Close() error {
	select {
	case <-l.done:
	default:
		close(l.done)
	}
	return nil
}

func (l *pipeListener) Addr() net.Addr { return &net.TCPAddr{} }

func pipeDialOptions(listener *pipeListener) *websocket.DialOptions {
	return &websocket.DialOptions{
		HTTPClient: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					cli, srv := net.Pipe()
					listener.ch <- srv
					return cli, nil
				},
			},
		},
	}
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, cmd game.Command) {
	t.Helper()
	msg, err := game.CommandMessage(cmd)
	require.NoError(t, err)
	require.NoError(t, wsjson.Write(ctx, conn, msg))
}

func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn) game.Event {
	t.Helper()
	var msg game.WsMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	p, err := msg.Parse()
	require.NoError(t, err)
	ev, ok := p.(game.Event)
	require.Truef(t, ok, "%s is not an event", msg.Type)
	return ev
}

func TestScriptedJoin(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	started := make(chan *ServerState, 1)
	go func() {
		_ = Run(ctx, "", DefaultScript(), started)
	}()
	s := <-started
	wsURL := "ws://" + s.Address + "/ws"

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	send(t, ctx, conn, game.JoinGameMessage{Name: `Ann "A"`})

	joined, ok := readEvent(t, ctx, conn).(*game.PlayerJoinedMessage)
	require.True(t, ok)
	require.Equal(t, `Ann "A"`, joined.Name)
	require.NotEmpty(t, joined.ID)
	require.Equal(t, 1000, joined.Chips)

	started1, ok := readEvent(t, ctx, conn).(*game.RoundStartedMessage)
	require.True(t, ok)
	require.Equal(t, 1, started1.CurrentRound)
	require.True(t, started1.RoundInProgress)
	_, found := started1.FindPlayer(joined.ID)
	require.True(t, found)

	require.Equal(t, 1, s.Count(game.MsgTypeJoinGame))
	require.Equal(t, 1, s.ConnCount())
}

func TestScriptedRounds(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		s := NewServerState(nil)
		srv := &http.Server{Handler: http.HandlerFunc(s.HandleWS)}
		listener := &pipeListener{ch: make(chan net.Conn, 10), done: make(chan struct{})}
		defer listener.Close()
		go srv.Serve(listener)
		defer srv.Close()

		dial := func() *websocket.Conn {
			conn, _, err := websocket.Dial(ctx, "http://localhost/ws", pipeDialOptions(listener))
			require.NoError(t, err)
			return conn
		}
		ann, bob := dial(), dial()
		defer ann.CloseNow()
		defer bob.CloseNow()
		synctest.Wait()
		require.Equal(t, 2, s.ConnCount())

		// Collect everything Bob sees.
		var (
			bobMu  sync.Mutex
			bobSaw []game.MessageType
		)
		go func() {
			for {
				var msg game.WsMessage
				if err := wsjson.Read(ctx, bob, &msg); err != nil {
					return
				}
				bobMu.Lock()
				bobSaw = append(bobSaw, msg.Type)
				bobMu.Unlock()
			}
		}()

		send(t, ctx, ann, game.JoinGameMessage{Name: "Ann"})
		require.IsType(t, &game.PlayerJoinedMessage{}, readEvent(t, ctx, ann))
		require.IsType(t, &game.RoundStartedMessage{}, readEvent(t, ctx, ann))

		// A bet is acknowledged with the player's identity.
		send(t, ctx, ann, game.PlaceBetMessage{Amount: 10, CardIndex: 2})
		placed, ok := readEvent(t, ctx, ann).(*game.BetPlacedMessage)
		require.True(t, ok)
		require.Equal(t, "Ann", placed.PlayerName)

		// The reveal and outcome follow after the scripted delays.
		require.IsType(t, &game.RedCardRevealedMessage{}, readEvent(t, ctx, ann))
		completed, ok := readEvent(t, ctx, ann).(*game.RoundCompletedMessage)
		require.True(t, ok)
		require.Equal(t, 3, completed.RedCardPosition)
		require.Equal(t, 1, completed.GameState.CurrentRound)

		send(t, ctx, ann, game.StartRoundMessage{})
		next, ok := readEvent(t, ctx, ann).(*game.RoundStartedMessage)
		require.True(t, ok)
		require.Equal(t, 2, next.CurrentRound)
		synctest.Wait()

		require.Equal(t, 2, s.Round())
		bobMu.Lock()
		defer bobMu.Unlock()
		require.Equal(t, []game.MessageType{
			game.MsgTypeRoundStarted,
			game.MsgTypeRedCardRevealed,
			game.MsgTypeRoundCompleted,
			game.MsgTypeRoundStarted,
		}, bobSaw)
		require.Equal(t, 1, s.Count(game.MsgTypePlaceBet))
		require.Equal(t, 1, s.Count(game.MsgTypeStartRound))
	})
}

func TestPushAndOnConnect(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		script := &Script{
			OnConnect: []Step{{
				After:   time.Second,
				Type:    game.MsgTypeGameState,
				Payload: map[string]any{"currentRound": 4, "gameStarted": true},
			}},
		}
		s := NewServerState(script)
		srv := &http.Server{Handler: http.HandlerFunc(s.HandleWS)}
		listener := &pipeListener{ch: make(chan net.Conn, 10), done: make(chan struct{})}
		defer listener.Close()
		go srv.Serve(listener)
		defer srv.Close()

		conn, _, err := websocket.Dial(ctx, "http://localhost/ws", pipeDialOptions(listener))
		require.NoError(t, err)
		defer conn.CloseNow()

		state, ok := readEvent(t, ctx, conn).(*game.GameStateMessage)
		require.True(t, ok)
		require.Equal(t, 4, state.CurrentRound)

		go func() {
			_ = s.Push(ctx, game.MsgTypeBetFailed, game.BetFailedMessage{Message: "Name already taken"})
		}()
		failed, ok := readEvent(t, ctx, conn).(*game.BetFailedMessage)
		require.True(t, ok)
		require.Equal(t, "Name already taken", failed.Message)

		go s.CloseAll()
		var msg game.WsMessage
		err = wsjson.Read(ctx, conn, &msg)
		require.Error(t, err)
		require.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
	})
}

func TestParseScript(t *testing.T) {
	script, err := ParseScript([]byte(`
constants:
  num_cards: 3
  round_delay: 5000
reactions:
  joinGame:
    - type: playerJoined
      payload: {id: $ID, name: $NAME, chips: 500}
    - type: roundStarted
      after: 250ms
      next_round: true
      payload: {currentRound: $ROUND}
`))
	require.NoError(t, err)
	require.Equal(t, 3, script.Constants.NumCards)
	require.Equal(t, 5000, script.Constants.RoundDelay)
	steps := script.Reactions[game.MsgTypeJoinGame]
	require.Len(t, steps, 2)
	require.Equal(t, 250*time.Millisecond, steps[1].After)
	require.True(t, steps[1].NextRound)

	msg, err := steps[0].render(vars{name: "Zoë", id: "id-7", round: 2})
	require.NoError(t, err)
	var joined game.PlayerJoinedMessage
	require.NoError(t, json.Unmarshal(msg.Payload, &joined))
	require.Equal(t, game.Player{ID: "id-7", Name: "Zoë", Chips: 500}, joined.Player)

	msg, err = steps[1].render(vars{round: 2})
	require.NoError(t, err)
	require.JSONEq(t, `{"currentRound": 2}`, string(msg.Payload))

	_, err = ParseScript([]byte("reactions:\n  joinGame:\n    - type: teleport\n"))
	require.ErrorContains(t, err, "unknown message type")
}

func TestDemoScript(t *testing.T) {
	script, err := LoadScript("../../scripts/demo.yaml")
	require.NoError(t, err)
	require.Equal(t, 5, script.Constants.NumCards)
	require.Len(t, script.OnConnect, 1)
	require.Len(t, script.Reactions[game.MsgTypeStartRound], 3)

	steps := script.Reactions[game.MsgTypeJoinGame]
	msg, err := steps[len(steps)-1].render(vars{name: "Ann", id: "ann-1", round: 3})
	require.NoError(t, err)
	p, err := msg.Parse()
	require.NoError(t, err)
	completed := p.(*game.RoundCompletedMessage)
	require.Equal(t, 3, completed.GameState.CurrentRound)
	require.Equal(t, []string{"Ann"}, completed.Winners)
	results, ok := completed.ResultsFor("ann-1")
	require.True(t, ok)
	require.Equal(t, 40, results.TotalPayout())
}
