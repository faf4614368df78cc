package frontend

import (
	"time"

	"github.com/janpfeifer/RedCard/internal/roundsync"
	"github.com/maxence-charriere/go-app/v10/pkg/app"
	"k8s.io/klog/v2"
)

// tickInterval refreshes the countdowns on screen.
const tickInterval = 250 * time.Millisecond

// Home is the only page: the login form until joined, the table after.
type Home struct {
	app.Compo

	lastPhase roundsync.Phase
}

func (h *Home) OnMount(ctx app.Context) {
	klog.V(1).Infof("Home: OnMount called")
	State.Subscribe(ctx, "home")
	ctx.Async(func() {
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				v := State.View()
				if v.Phase == roundsync.PhaseSelecting || v.ShowRedCard {
					ctx.Dispatch(func(ctx app.Context) {})
				}
			}
		}
	})
}

func (h *Home) OnDismount() {
	State.Unsubscribe("home")
}

func (h *Home) OnAppUpdate(ctx app.Context) {
	klog.Infof("Home component: App update available, reloading...")
	ctx.Reload()
}

// playPhaseSound plays the effect of entering a new phase.
func (h *Home) playPhaseSound(v roundsync.View) {
	if v.Phase == h.lastPhase {
		return
	}
	h.lastPhase = v.Phase
	switch v.Phase {
	case roundsync.PhaseAwaitingReveal:
		State.PlaySound("/web/sounds/reveal.mp3")
	case roundsync.PhaseRoundComplete:
		if v.IsWinner {
			State.PlaySound("/web/sounds/win.mp3")
		}
	}
}

func (h *Home) Render() app.UI {
	if !State.Ready() {
		return app.Main().Class("container").Body(
			app.Div().Aria("busy", "true").Text("Loading..."),
		)
	}

	v := State.View()
	h.playPhaseSound(v)
	// Children get the View as a field, so that they are updated with it.
	if !v.Joined {
		return &Login{View: v}
	}
	return app.Main().Class("container").Body(
		&TopBar{View: v},
		&Table{View: v},
	)
}
