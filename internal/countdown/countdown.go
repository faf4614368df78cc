// Package countdown implements the betting window countdown.
//
// The countdown stores a wall-clock deadline and derives the remaining time
// from it on every read, so missed ticks (a backgrounded tab, a slow render)
// never make it drift.
package countdown

import (
	"math"
	"time"

	"github.com/jonboulle/clockwork"
)

// State is the data needed to render a countdown.
type State struct {
	Deadline time.Time
	Duration time.Duration
}

// Countdown is not safe for concurrent use: it is owned by the round synchronizer.
type Countdown struct {
	clock   clockwork.Clock
	state   State
	running bool
	fired   bool
}

// New creates a stopped countdown.
func New(clock clockwork.Clock) *Countdown {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Countdown{clock: clock}
}

// Start opens a new window of duration d, resetting the expiry trigger.
// It returns the deadline.
func (c *Countdown) Start(d time.Duration) time.Time {
	if d < 0 {
		d = 0
	}
	c.state = State{Deadline: c.clock.Now().Add(d), Duration: d}
	c.running = true
	c.fired = false
	return c.state.Deadline
}

// Stop closes the window. Remaining reports zero afterwards and Expire never fires.
func (c *Countdown) Stop() {
	c.running = false
}

// Running reports whether a window is open.
func (c *Countdown) Running() bool {
	return c.running
}

// State returns the deadline and duration of the last window started.
func (c *Countdown) State() State {
	return c.state
}

// Remaining returns max(0, deadline-now), or zero if no window is open.
func (c *Countdown) Remaining() time.Duration {
	if !c.running {
		return 0
	}
	return max(0, c.state.Deadline.Sub(c.clock.Now()))
}

// Seconds returns the remaining whole seconds, rounded up, for display.
func (c *Countdown) Seconds() int {
	return int(math.Ceil(c.Remaining().Seconds()))
}

// Progress returns the fraction of the window still remaining, in [0, 1].
func (c *Countdown) Progress() float64 {
	if !c.running || c.state.Duration <= 0 {
		return 0
	}
	return min(1, float64(c.Remaining())/float64(c.state.Duration))
}

// Expire returns true exactly once per window: the first time it is called
// after the deadline has been reached.
func (c *Countdown) Expire() bool {
	if !c.running || c.fired || c.Remaining() > 0 {
		return false
	}
	c.fired = true
	return true
}

// Expired reports whether Expire already fired for the current window.
func (c *Countdown) Expired() bool {
	return c.fired
}
