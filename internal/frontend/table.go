package frontend

import (
	"fmt"
	"slices"
	"strings"

	"github.com/janpfeifer/RedCard/internal/roundsync"
	"github.com/maxence-charriere/go-app/v10/pkg/app"
	"k8s.io/klog/v2"
)

// Table shows the cards, the betting controls and the last outcomes.
type Table struct {
	app.Compo
	View roundsync.View
}

func (t *Table) onSelectCard(card int) app.EventHandler {
	return func(ctx app.Context, e app.Event) {
		if err := State.Session.Sync.SelectCard(card); err != nil {
			klog.V(1).Infof("Table: select card %d: %v", card, err)
		}
	}
}

func (t *Table) onSelectAmount(amount int) app.EventHandler {
	return func(ctx app.Context, e app.Event) {
		if err := State.Session.Sync.SelectAmount(amount); err != nil {
			klog.V(1).Infof("Table: select amount %d: %v", amount, err)
		}
	}
}

func (t *Table) onBet(ctx app.Context, e app.Event) {
	v := t.View
	if err := State.Session.Sync.RequestBet(v.BetAmount, v.SelectedCard); err != nil {
		klog.V(1).Infof("Table: bet: %v", err)
	}
}

func (t *Table) Render() app.UI {
	v := t.View
	return app.Div().Body(
		t.renderStatus(v),
		t.renderCards(v),
		t.renderBetting(v),
		t.renderOutcome(v),
		t.renderPlayers(v),
		t.renderHistory(v),
	)
}

func (t *Table) renderStatus(v roundsync.View) app.UI {
	var text string
	switch v.Phase {
	case roundsync.PhaseLobby:
		text = "Waiting for the next round..."
	case roundsync.PhaseSelecting:
		if v.BetPlaced {
			text = fmt.Sprintf("Bet placed. Reveal in %ds", v.CountdownSeconds)
		} else {
			text = fmt.Sprintf("Place your bet: %ds left", v.CountdownSeconds)
		}
	case roundsync.PhaseAwaitingReveal:
		text = "The red card is..."
	case roundsync.PhaseRevealing:
		text = "Waiting for the results..."
	case roundsync.PhaseRoundComplete:
		text = "Round complete. Next round starting soon."
	default:
		text = v.Phase.String()
	}

	var progress app.UI = app.Text("")
	if v.Phase == roundsync.PhaseSelecting {
		progress = app.Progress().Value(fmt.Sprintf("%.0f", 100*v.CountdownProgress)).Max(100)
	}
	var message app.UI = app.Text("")
	if v.Message != "" {
		message = app.P().Style("color", "red").Text(v.Message)
	}
	return app.Article().Body(
		app.Header().Text(text),
		progress,
		message,
	)
}

func (t *Table) renderCards(v roundsync.View) app.UI {
	n := v.Constants.NumCards
	cards := make([]app.UI, 0, n)
	for card := 1; card <= n; card++ {
		class := "card outline secondary"
		text := fmt.Sprintf("%d", card)
		if v.RedCard != nil && (v.ShowRedCard || v.Phase == roundsync.PhaseRoundComplete) {
			if card == *v.RedCard {
				class = "card red"
				text = "🟥"
			} else {
				class = "card outline contrast"
			}
		} else if card == v.SelectedCard {
			class = "card"
		}
		cards = append(cards, app.Button().
			Class(class).
			Disabled(v.Phase != roundsync.PhaseSelecting || v.BetPlaced).
			OnClick(t.onSelectCard(card)).
			Style("min-width", "4rem").
			Style("min-height", "6rem").
			Text(text))
	}
	return app.Div().
		Style("display", "flex").Style("gap", "1rem").Style("justify-content", "center").Style("margin-bottom", "var(--pico-spacing)").
		Body(cards...)
}

func (t *Table) renderBetting(v roundsync.View) app.UI {
	if v.Phase != roundsync.PhaseSelecting {
		return app.Text("")
	}
	amounts := make([]app.UI, 0, len(v.BetOptions))
	for _, amount := range v.BetOptions {
		class := "outline"
		if amount == v.BetAmount {
			class = ""
		}
		amounts = append(amounts, app.Button().
			Class(class).
			Disabled(v.BetPlaced || amount > v.Player.Chips).
			OnClick(t.onSelectAmount(amount)).
			Text(fmt.Sprintf("%d", amount)))
	}
	return app.Article().Body(
		app.Div().Role("group").Body(amounts...),
		app.Button().
			Text(fmt.Sprintf("Bet %d on card %d", v.BetAmount, v.SelectedCard)).
			Disabled(v.BetPlaced).
			OnClick(t.onBet),
	)
}

func (t *Table) renderOutcome(v roundsync.View) app.UI {
	if v.Phase != roundsync.PhaseRoundComplete || v.RedCard == nil {
		return app.Text("")
	}
	var mine app.UI = app.P().Text("You did not bet this round.")
	if len(v.MyResults) > 0 {
		payout := 0
		for _, r := range v.MyResults {
			payout += r.Payout
		}
		if v.IsWinner {
			mine = app.P().Class("ins").Text(fmt.Sprintf("You won %d chips!", payout))
		} else {
			mine = app.P().Class("del").Text("You lost your bet.")
		}
	}
	winners := "nobody"
	if len(v.Winners) > 0 {
		winners = strings.Join(v.Winners, ", ")
	}
	return app.Article().Body(
		app.Header().Text(fmt.Sprintf("The red card was card %d", *v.RedCard)),
		mine,
		app.P().Text("Winners: "+winners),
	)
}

func (t *Table) renderPlayers(v roundsync.View) app.UI {
	if v.Snapshot == nil {
		return app.Text("")
	}
	rows := make([]app.UI, 0, len(v.Snapshot.Players))
	for _, p := range v.Snapshot.Players {
		name := p.Name
		if p.ID == v.Player.ID {
			name += " (you)"
		}
		betting := ""
		if p.CurrentBet != nil {
			betting = fmt.Sprintf("%d on card %d", p.CurrentBet.Amount, p.CurrentBet.CardIndex)
		}
		rows = append(rows, app.Tr().Body(
			app.Td().Text(name),
			app.Td().Text(fmt.Sprintf("%d", p.Chips)),
			app.Td().Text(betting),
		))
	}
	return app.Article().Body(
		app.Header().Text(fmt.Sprintf("Players (%d)", len(v.Snapshot.Players))),
		app.Table().Body(app.TBody().Body(rows...)),
	)
}

func (t *Table) renderHistory(v roundsync.View) app.UI {
	if len(v.History) == 0 {
		return app.Text("")
	}
	items := make([]app.UI, 0, len(v.History))
	for _, entry := range v.History {
		text := fmt.Sprintf("Round %d: red card %d", entry.Round, entry.RedCard)
		if slices.Contains(entry.Winners, v.Player.Name) {
			text += " (won)"
		}
		items = append(items, app.Li().Text(text))
	}
	return app.Article().Body(
		app.Header().Text("Recent rounds"),
		app.Ul().Body(items...),
	)
}
