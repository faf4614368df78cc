package frontend

import (
	"fmt"

	"github.com/janpfeifer/RedCard/internal/roundsync"
	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

type TopBar struct {
	app.Compo
	View roundsync.View
}

func (t *TopBar) onToggleSound(ctx app.Context, e app.Event) {
	e.PreventDefault()
	State.ToggleSound()
	ctx.Update()
}

func (t *TopBar) onReconnect(ctx app.Context, e app.Event) {
	e.PreventDefault()
	_ = State.Session.Sync.RequestReconnect()
}

func (t *TopBar) Render() app.UI {
	v := t.View
	soundIcon := "🔊"
	if !State.SoundEnabled {
		soundIcon = "🔇"
	}

	round := "-"
	if v.Snapshot != nil {
		round = fmt.Sprintf("%d", v.Snapshot.CurrentRound)
	}

	var status app.UI
	if v.Phase == roundsync.PhaseDisconnected {
		status = app.Li().Body(
			app.Span().Style("color", "red").Style("margin-right", "8px").Text(v.ConnectionError),
			app.A().Href("#").OnClick(t.onReconnect).Text("Reconnect"),
		)
	} else {
		status = app.Li().Body(app.Small().Text(v.Phase.String()))
	}

	return app.Nav().Body(
		app.Ul().Body(
			app.Li().Body(app.Strong().Text("Red Card")),
			app.Li().Body(app.Small().Text("Round "+round)),
		),
		app.Ul().Body(
			status,
			app.Li().Body(
				app.A().
					Href("#").
					OnClick(t.onToggleSound).
					Style("text-decoration", "none").
					Body(
						app.Span().
							Class("sound-icon").
							Style("font-family", "system-ui").
							Text(soundIcon),
					),
			),
			app.Li().Body(
				app.Span().Style("margin-right", "8px").Text(v.Player.Name),
				app.Mark().Text(fmt.Sprintf("%d chips", v.Player.Chips)),
			),
		),
	)
}
