package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/janpfeifer/RedCard/internal/config"
	"github.com/janpfeifer/RedCard/internal/roundsync"
	"github.com/janpfeifer/RedCard/internal/session"
	"k8s.io/klog/v2"
)

// reconnectDelay between a lost connection and the retry.
const reconnectDelay = time.Second

var errNameTaken = errors.New("name refused by the server")

// player plays rounds unattended: it joins, bets as configured on every
// round, and reports the outcomes.
type player struct {
	cfg     config.Config
	sess    *session.Session
	changed chan struct{}

	lastBetRound   int
	lastDoneRound  int
	roundsPlayed   int
	reconnectAfter time.Time
}

func newPlayer(cfg config.Config, sess *session.Session) *player {
	p := &player{cfg: cfg, sess: sess, changed: make(chan struct{}, 1)}
	sess.Sync.Subscribe("player", func() {
		select {
		case p.changed <- struct{}{}:
		default:
		}
	})
	return p
}

// play runs until ctx is done, or the configured number of rounds is played.
func (p *player) play(ctx context.Context) error {
	if err := p.sess.Start(ctx); err != nil {
		klog.Warningf("play: %v, retrying", err)
	}
	ticker := time.NewTicker(reconnectDelay)
	defer ticker.Stop()
	for {
		done, err := p.step()
		if done || err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.changed:
		case <-ticker.C:
		}
	}
}

// step reacts to the current view. It returns true when all rounds are played.
func (p *player) step() (bool, error) {
	v := p.sess.View()
	if v.Blocked {
		return false, fmt.Errorf("%w: %s", errNameTaken, v.ConnectionError)
	}
	round := 0
	if v.Snapshot != nil {
		round = v.Snapshot.CurrentRound
	}

	switch v.Phase {
	case roundsync.PhaseDisconnected:
		if p.reconnectAfter.IsZero() {
			p.reconnectAfter = time.Now().Add(reconnectDelay)
		} else if time.Now().After(p.reconnectAfter) {
			p.reconnectAfter = time.Time{}
			klog.Infof("step: reconnecting")
			_ = p.sess.Sync.RequestReconnect()
		}

	case roundsync.PhaseUnjoined:
		p.reconnectAfter = time.Time{}
		if v.Connected {
			if err := p.sess.Sync.RequestJoin(p.cfg.Name); err != nil {
				return false, fmt.Errorf("failed to join: %w", err)
			}
		}

	case roundsync.PhaseSelecting:
		if round == p.lastBetRound {
			break
		}
		p.lastBetRound = round
		if err := p.sess.Sync.SelectAmount(p.cfg.BetAmount); err != nil {
			klog.Warningf("step: %v, keeping a bet of %d", err, v.BetAmount)
		}
		if p.cfg.CardIndex > 0 {
			amount := p.sess.View().BetAmount
			if err := p.sess.Sync.RequestBet(amount, p.cfg.CardIndex); err != nil {
				klog.Warningf("step: bet on card %d: %v", p.cfg.CardIndex, err)
			}
		}

	case roundsync.PhaseRoundComplete:
		if round == p.lastDoneRound {
			break
		}
		p.lastDoneRound = round
		p.roundsPlayed++
		redCard := 0
		if v.RedCard != nil {
			redCard = *v.RedCard
		}
		klog.Infof("Round %d: red card %d, winner=%v, chips=%d", round, redCard, v.IsWinner, v.Player.Chips)
		if p.cfg.Rounds > 0 && p.roundsPlayed >= p.cfg.Rounds {
			return true, nil
		}
	}
	return false, nil
}
