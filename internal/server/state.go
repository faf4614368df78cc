package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/janpfeifer/RedCard/internal/game"
	"k8s.io/klog/v2"
)

const writeTimeout = 2 * time.Second

// connection is one websocket client of the replay server.
type connection struct {
	id   string
	conn *websocket.Conn

	mu   sync.Mutex
	name string
}

func (c *connection) vars(round int) vars {
	c.mu.Lock()
	defer c.mu.Unlock()
	return vars{name: c.name, id: c.id, round: round}
}

func (c *connection) write(ctx context.Context, msg game.WsMessage) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.conn, msg)
}

// ServerState holds the connected clients and the script they are served.
type ServerState struct {
	Address string

	script *Script

	mu       sync.RWMutex
	conns    map[string]*connection
	round    int
	received []game.WsMessage
}

// NewServerState creates a server replaying script. A nil script uses DefaultScript.
func NewServerState(script *Script) *ServerState {
	if script == nil {
		script = DefaultScript()
	}
	return &ServerState{
		script: script,
		conns:  make(map[string]*connection),
	}
}

// HandleWS upgrades the request to a websocket and serves the script on it.
func (s *ServerState) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow any origin for the replay server.
	})
	if err != nil {
		klog.Errorf("HandleWS: Failed to accept websocket: %v", err)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &connection{id: uuid.NewString(), conn: conn}
	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, c.id)
		s.mu.Unlock()
	}()
	klog.Infof("HandleWS: connection %s opened", c.id)

	if len(s.script.OnConnect) > 0 {
		go s.play(ctx, c, s.script.OnConnect)
	}

	for {
		var msg game.WsMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			klog.V(1).Infof("HandleWS: connection %s closed: %v", c.id, err)
			return
		}
		p, err := msg.Parse()
		if err != nil {
			klog.Warningf("HandleWS: Failed to parse %s message: %v", msg.Type, err)
			continue
		}
		if _, ok := p.(game.Command); !ok {
			klog.Warningf("HandleWS: ignoring non-command message %s", msg.Type)
			continue
		}
		if join, ok := p.(*game.JoinGameMessage); ok {
			c.mu.Lock()
			c.name = join.Name
			c.mu.Unlock()
		}
		s.mu.Lock()
		s.received = append(s.received, msg)
		s.mu.Unlock()
		klog.V(1).Infof("HandleWS: received %s from %s", msg.Type, c.id)

		if steps := s.script.Reactions[msg.Type]; len(steps) > 0 {
			go s.play(ctx, c, steps)
		}
	}
}

// play sends the steps to c, or to everyone for broadcast steps, waiting each
// step's delay first. It stops when ctx is done.
func (s *ServerState) play(ctx context.Context, c *connection, steps []Step) {
	for _, step := range steps {
		if step.After > 0 {
			timer := time.NewTimer(step.After)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		s.mu.Lock()
		if step.NextRound {
			s.round++
		}
		round := s.round
		targets := []*connection{c}
		if step.Broadcast {
			targets = s.connections()
		}
		s.mu.Unlock()

		for _, target := range targets {
			msg, err := step.render(target.vars(round))
			if err != nil {
				klog.Errorf("play: %v", err)
				return
			}
			if err := target.write(ctx, msg); err != nil {
				klog.Warningf("play: Failed to send %s to %s: %v", msg.Type, target.id, err)
			}
		}
	}
}

// connections must be called with s.mu held.
func (s *ServerState) connections() []*connection {
	conns := make([]*connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	return conns
}

// HandleConstants serves the table constants as JSON.
func (s *ServerState) HandleConstants(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.script.Constants.WithDefaults()); err != nil {
		klog.Errorf("HandleConstants: %v", err)
	}
}

// Push sends a message to every connected client.
func (s *ServerState) Push(ctx context.Context, msgType game.MessageType, payload any) error {
	msg, err := game.NewWsMessage(msgType, payload)
	if err != nil {
		return err
	}
	s.mu.RLock()
	targets := s.connections()
	s.mu.RUnlock()
	var firstErr error
	for _, c := range targets {
		if err := c.write(ctx, msg); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to push %s to %s: %w", msgType, c.id, err)
		}
	}
	return firstErr
}

// Received returns a copy of the commands received so far, in order.
func (s *ServerState) Received() []game.WsMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]game.WsMessage(nil), s.received...)
}

// Count of received commands of the given type.
func (s *ServerState) Count(msgType game.MessageType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, msg := range s.received {
		if msg.Type == msgType {
			n++
		}
	}
	return n
}

// ConnCount is the number of connected clients.
func (s *ServerState) ConnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Round is the current round number.
func (s *ServerState) Round() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.round
}

// CloseAll closes every client connection.
func (s *ServerState) CloseAll() {
	s.mu.RLock()
	targets := s.connections()
	s.mu.RUnlock()
	for _, c := range targets {
		_ = c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}
