// Package frontend is the go-app web client: a login form and the card
// table, rendered from the round synchronizer's View.
package frontend

import (
	"context"
	"fmt"

	"github.com/janpfeifer/RedCard/internal/roundsync"
	"github.com/janpfeifer/RedCard/internal/session"
	"github.com/maxence-charriere/go-app/v10/pkg/app"
	"k8s.io/klog/v2"
)

// ClientState is what the components share: the session with the server and
// the UI-only settings.
type ClientState struct {
	Session *session.Session

	// Login form (persistent across re-renders)
	PendingName string

	SoundEnabled bool
}

var State *ClientState

// InitState creates the state. In the browser it also starts the session
// with the server the page was loaded from.
func InitState() {
	if State != nil {
		klog.V(1).Infof("InitState: state already exists")
		return
	}
	State = &ClientState{SoundEnabled: true}
	if !app.IsClient {
		return
	}

	u := app.Window().URL()
	wsScheme := "ws"
	if u.Scheme == "https" {
		wsScheme = "wss"
	}
	cfg := session.Config{
		ServerURL: fmt.Sprintf("%s://%s/ws", wsScheme, u.Host),
		APIURL:    fmt.Sprintf("%s://%s", u.Scheme, u.Host),
	}
	State.Session = session.New(context.Background(), cfg)
	go func() {
		if err := State.Session.Start(context.Background()); err != nil {
			klog.Errorf("InitState: %v", err)
		}
	}()
}

// Ready reports whether there is a session to render.
func (s *ClientState) Ready() bool {
	return s != nil && s.Session != nil
}

// View of the round, or the zero View before the session exists.
func (s *ClientState) View() roundsync.View {
	if !s.Ready() {
		return roundsync.View{}
	}
	return s.Session.View()
}

// Subscribe re-renders the component on every state change.
func (s *ClientState) Subscribe(ctx app.Context, name string) {
	if !s.Ready() {
		return
	}
	s.Session.Sync.Subscribe(name, func() {
		ctx.Dispatch(func(ctx app.Context) {})
	})
}

func (s *ClientState) Unsubscribe(name string) {
	if !s.Ready() {
		return
	}
	s.Session.Sync.Unsubscribe(name)
}

func (s *ClientState) ToggleSound() {
	s.SoundEnabled = !s.SoundEnabled
	klog.Infof("ToggleSound: SoundEnabled is now %v", s.SoundEnabled)
}

// PlaySound plays a short effect, if sound is enabled.
func (s *ClientState) PlaySound(url string) {
	if !s.SoundEnabled || app.IsServer {
		return
	}
	audio := app.Window().Get("document").Call("createElement", "audio")
	audio.Set("src", url)
	promise := audio.Call("play")
	if promise.Truthy() {
		promise.Call("catch", app.FuncOf(func(this app.Value, args []app.Value) any {
			klog.Errorf("PlaySound: Failed to play %s: %v", url, args[0])
			return nil
		}))
	}
}
