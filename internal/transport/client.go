// Package transport connects the client to the game server over a websocket.
//
// Inbound messages are parsed and handed to a handler as game events, along
// with synthesized connect/disconnect/connect_error signals. Outbound
// commands are queued and written by a background loop, so Send never blocks.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/janpfeifer/RedCard/internal/game"
	"k8s.io/klog/v2"
)

var (
	ErrNotConnected   = errors.New("not connected")
	ErrClosed         = errors.New("transport closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// Handler receives every event, in arrival order, from one goroutine at a time.
type Handler func(game.Event)

// Options configures a Client. Zero values take the defaults.
type Options struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
	DialOptions  *websocket.DialOptions
}

// Client is a websocket connection to the game server, that can be re-dialed.
type Client struct {
	url     string
	opts    Options
	handler Handler

	// emitMu serializes calls to the handler.
	emitMu sync.Mutex

	mu      sync.Mutex
	conn    *websocket.Conn
	connID  string
	sendCh  chan game.WsMessage
	cancel  context.CancelFunc
	dialing bool
	closed  bool
}

// New creates a client for the websocket at url. Nothing is dialed until Connect.
func New(url string, opts Options) *Client {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 2 * time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 16
	}
	return &Client{url: url, opts: opts}
}

// SetHandler sets where events go. It must be called before Connect.
func (c *Client) SetHandler(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// URL of the websocket.
func (c *Client) URL() string {
	return c.url
}

// Connected reports whether a connection is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) emit(ev game.Event) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h == nil {
		return
	}
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	h(ev)
}

// beginDial reports whether the caller should dial: false if already
// connected or dialing.
func (c *Client) beginDial() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrClosed
	}
	if c.conn != nil || c.dialing {
		return false, nil
	}
	c.dialing = true
	return true, nil
}

// Connect dials the server and starts the read and write loops.
// It is a no-op if a connection is up or being dialed.
func (c *Client) Connect(ctx context.Context) error {
	ok, err := c.beginDial()
	if !ok {
		return err
	}
	return c.dial(ctx)
}

// Reconnect re-dials in the background. Repeated calls while connected or
// dialing are no-ops. The outcome is reported through the handler.
func (c *Client) Reconnect() error {
	ok, err := c.beginDial()
	if !ok {
		return err
	}
	go func() {
		if err := c.dial(context.Background()); err != nil {
			klog.V(1).Infof("Reconnect: %v", err)
		}
	}()
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	klog.Infof("ConnectWS: Connecting to %s", c.url)
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, c.url, c.opts.DialOptions)

	c.mu.Lock()
	c.dialing = false
	if err != nil {
		c.mu.Unlock()
		klog.Errorf("ConnectWS: Dial failed: %v", err)
		c.emit(&game.ConnectErrorMessage{Message: err.Error()})
		return fmt.Errorf("dial failed: %w", err)
	}
	if c.closed {
		c.mu.Unlock()
		conn.CloseNow()
		return ErrClosed
	}
	connCtx, cancelConn := context.WithCancel(context.Background())
	c.conn = conn
	c.connID = uuid.NewString()
	c.cancel = cancelConn
	c.sendCh = make(chan game.WsMessage, c.opts.SendBuffer)
	connID, sendCh := c.connID, c.sendCh
	c.mu.Unlock()

	klog.Infof("ConnectWS: Connected (conn %s)", connID)
	c.emit(&game.ConnectedMessage{})
	go c.writeLoop(connCtx, conn, connID, sendCh)
	go c.readLoop(connCtx, conn, connID)
	return nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, connID string) {
	klog.V(1).Infof("readLoop: started (conn %s)", connID)
	for {
		var msg game.WsMessage
		err := wsjson.Read(ctx, conn, &msg)
		if err != nil {
			c.drop(conn, err)
			return
		}
		klog.V(1).Infof("readLoop: received message type: %s", msg.Type)
		p, err := msg.Parse()
		if err != nil {
			klog.Errorf("readLoop: Failed to parse %s message: %v", msg.Type, err)
			continue
		}
		ev, ok := p.(game.Event)
		if !ok {
			klog.Warningf("readLoop: ignoring non-event message %s", msg.Type)
			continue
		}
		c.emit(ev)
	}
}

func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn, connID string, sendCh <-chan game.WsMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-sendCh:
			writeCtx, cancel := context.WithTimeout(ctx, c.opts.WriteTimeout)
			err := wsjson.Write(writeCtx, conn, msg)
			cancel()
			if err != nil {
				klog.Errorf("writeLoop: Failed to send %s (conn %s): %v", msg.Type, connID, err)
				// The read loop notices and reports the disconnection.
				conn.CloseNow()
				return
			}
		}
	}
}

// drop forgets conn if it is still the live connection, and reports the disconnection.
func (c *Client) drop(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	connID := c.connID
	c.conn = nil
	c.sendCh = nil
	c.cancel()
	c.mu.Unlock()

	conn.CloseNow()
	klog.Warningf("readLoop: WS read error (conn %s): %v", connID, cause)
	c.emit(&game.DisconnectedMessage{Reason: cause.Error()})
}

// Send queues cmd for writing. It fails if there is no connection or the
// queue is full; there is no acknowledgment.
func (c *Client) Send(cmd game.Command) error {
	msg, err := game.CommandMessage(cmd)
	if err != nil {
		return fmt.Errorf("failed to create %s message: %w", cmd.CommandType(), err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.conn == nil {
		return ErrNotConnected
	}
	select {
	case c.sendCh <- msg:
		klog.V(1).Infof("Send: queued %s", msg.Type)
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close closes the connection for good. No disconnect event is emitted.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn, cancel := c.conn, c.cancel
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close(websocket.StatusNormalClosure, "bye")
	cancel()
	return err
}
