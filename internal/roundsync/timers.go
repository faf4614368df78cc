package roundsync

import (
	"time"

	"github.com/jonboulle/clockwork"
	"k8s.io/klog/v2"
)

type timerKind int

const (
	timerCountdown timerKind = iota
	timerReveal
	timerRestart
)

func (k timerKind) String() string {
	switch k {
	case timerCountdown:
		return "countdown"
	case timerReveal:
		return "reveal"
	case timerRestart:
		return "restart"
	default:
		return "unknown"
	}
}

type scheduledTimer struct {
	timer clockwork.Timer
	round int
	seq   uint64
}

// schedule replaces any timer of the same kind. Must be called with s.mu held.
func (s *Synchronizer) schedule(kind timerKind, round int, d time.Duration) {
	s.cancelTimer(kind)
	if d < time.Millisecond {
		d = time.Millisecond
	}
	s.timerSeq++
	fired := timerFired{kind: kind, round: round, seq: s.timerSeq}
	t := s.clock.AfterFunc(d, func() {
		if err := s.Dispatch(fired); err != nil {
			klog.V(2).Infof("timer %s for round %d: %v", kind, round, err)
		}
	})
	s.timers[kind] = &scheduledTimer{timer: t, round: round, seq: fired.seq}
	klog.V(2).Infof("schedule: %s timer for round %d in %s", kind, round, d)
}

func (s *Synchronizer) cancelTimer(kind timerKind) {
	t, ok := s.timers[kind]
	if !ok {
		return
	}
	t.timer.Stop()
	delete(s.timers, kind)
	klog.V(2).Infof("cancelTimer: %s timer for round %d", kind, t.round)
}

func (s *Synchronizer) cancelAllTimers() {
	for kind := range s.timers {
		s.cancelTimer(kind)
	}
}

// claimTimer reports whether e belongs to the live timer of its kind, and if
// so forgets it. A stopped timer may still deliver a fire that was already
// in flight: its seq no longer matches and it is dropped here.
func (s *Synchronizer) claimTimer(e timerFired) bool {
	t, ok := s.timers[e.kind]
	if !ok || t.seq != e.seq || t.round != e.round {
		return false
	}
	delete(s.timers, e.kind)
	return true
}
