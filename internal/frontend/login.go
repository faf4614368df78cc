package frontend

import (
	"github.com/janpfeifer/RedCard/internal/roundsync"
	"github.com/maxence-charriere/go-app/v10/pkg/app"
	"k8s.io/klog/v2"
)

// Login is the join form.
type Login struct {
	app.Compo
	View roundsync.View
}

func (l *Login) onNameChange(ctx app.Context, e app.Event) {
	State.PendingName = ctx.JSSrc().Get("value").String()
}

func (l *Login) onJoin(ctx app.Context, e app.Event) {
	e.PreventDefault()
	if err := State.Session.Sync.RequestJoin(State.PendingName); err != nil {
		// The message is part of the View.
		klog.V(1).Infof("Login: join: %v", err)
	}
}

func (l *Login) onReconnect(ctx app.Context, e app.Event) {
	e.PreventDefault()
	if err := State.Session.Sync.RequestReconnect(); err != nil {
		klog.Warningf("Login: reconnect: %v", err)
	}
}

func (l *Login) Render() app.UI {
	v := l.View

	var errorUI app.UI = app.Text("")
	switch {
	case v.ConnectionError != "":
		errorUI = app.Div().Style("color", "red").Style("margin-bottom", "1rem").Text(v.ConnectionError)
	case v.Message != "":
		errorUI = app.Div().Style("color", "red").Style("margin-bottom", "1rem").Text(v.Message)
	}

	joining := v.Phase == roundsync.PhaseJoining && !v.Blocked
	var action app.UI
	if v.Phase == roundsync.PhaseDisconnected {
		action = app.Button().Type("button").Class("secondary").Text("Reconnect").OnClick(l.onReconnect)
	} else {
		action = app.Button().Type("submit").Text("Join").Disabled(joining || !v.Connected).Aria("busy", joining)
	}

	return app.Main().Class("container").Body(
		app.Article().Body(
			app.Header().Body(
				app.H2().Style("text-align", "center").Text("Red Card"),
				app.P().Style("text-align", "center").Text("Find the red card among the face-down cards."),
			),
			errorUI,
			app.Form().OnSubmit(l.onJoin).Body(
				app.Input().
					Type("text").
					ID("name").
					Name("name").
					Placeholder("Enter your player name").
					Required(true).
					MaxLength(roundsync.MaxNameLength).
					Value(State.PendingName).
					AutoComplete(false).
					OnInput(l.onNameChange),
				action,
			),
		),
	)
}
