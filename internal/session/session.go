// Package session wires a transport client to a round synchronizer, after
// fetching the table constants from the server.
package session

import (
	"context"
	"net/http"
	"time"

	"github.com/janpfeifer/RedCard/internal/config"
	"github.com/janpfeifer/RedCard/internal/game"
	"github.com/janpfeifer/RedCard/internal/roundsync"
	"github.com/janpfeifer/RedCard/internal/transport"
	"github.com/jonboulle/clockwork"
	"k8s.io/klog/v2"
)

// Config of a session. Zero values take the defaults.
type Config struct {
	ServerURL string
	// APIURL serves /game/constants. Empty uses the default constants.
	APIURL string

	Clock            clockwork.Clock
	HTTPClient       *http.Client
	TransportOptions transport.Options

	RevealWindow time.Duration
	RestartDelay time.Duration
	DefaultBet   int
}

// FromConfig maps the client configuration to a session configuration.
func FromConfig(cfg config.Config) Config {
	return Config{
		ServerURL:    cfg.ServerURL,
		APIURL:       cfg.APIURL,
		RevealWindow: cfg.RevealWindow,
		RestartDelay: cfg.RestartDelay,
		DefaultBet:   cfg.BetAmount,
	}
}

// Session is one client of the game server.
type Session struct {
	Transport *transport.Client
	Sync      *roundsync.Synchronizer
	Constants game.Constants
}

// New fetches the constants and builds the session. Nothing is dialed until Start.
func New(ctx context.Context, cfg Config) *Session {
	constants := transport.ConstantsOrDefault(ctx, cfg.HTTPClient, cfg.APIURL)
	client := transport.New(cfg.ServerURL, cfg.TransportOptions)
	synchronizer := roundsync.New(client, roundsync.Options{
		Clock:        cfg.Clock,
		Constants:    constants,
		RevealWindow: cfg.RevealWindow,
		RestartDelay: cfg.RestartDelay,
		DefaultBet:   cfg.DefaultBet,
	})
	client.SetHandler(func(ev game.Event) {
		if err := synchronizer.Dispatch(ev); err != nil {
			klog.V(1).Infof("Session: %s: %v", ev.EventType(), err)
		}
	})
	return &Session{Transport: client, Sync: synchronizer, Constants: constants}
}

// Start connects to the server. A failed dial leaves the session
// disconnected, from where RequestReconnect retries.
func (s *Session) Start(ctx context.Context) error {
	return s.Transport.Connect(ctx)
}

// View of the round state.
func (s *Session) View() roundsync.View {
	return s.Sync.View()
}

// Close stops the timers and closes the connection.
func (s *Session) Close() error {
	s.Sync.Close()
	return s.Transport.Close()
}
