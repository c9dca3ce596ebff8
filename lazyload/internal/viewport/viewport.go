// Package viewport holds the current viewport snapshot and coalesces bursts
// of scroll, resize and orientation events into a single refresh.
package viewport

import (
	"time"

	"github.com/hazyhaar/lazyload/lazyload/internal/geometry"
)

// Timer is the subset of *time.Timer the tracker needs.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// TimerFunc starts a Timer firing after d.
type TimerFunc func(d time.Duration) Timer

type stdTimer struct{ t *time.Timer }

func (s stdTimer) C() <-chan time.Time { return s.t.C }
func (s stdTimer) Stop() bool          { return s.t.Stop() }

// NewStdTimer is the TimerFunc backed by time.NewTimer.
func NewStdTimer(d time.Duration) Timer {
	return stdTimer{t: time.NewTimer(d)}
}

// Config controls the debounce behaviour.
type Config struct {
	// Delay is the quiet period after the last event. Default: 100ms.
	Delay time.Duration
	// NewTimer creates the debounce timers. Default: NewStdTimer.
	NewTimer TimerFunc
}

func (c *Config) defaults() {
	if c.Delay <= 0 {
		c.Delay = 100 * time.Millisecond
	}
	if c.NewTimer == nil {
		c.NewTimer = NewStdTimer
	}
}

// Tracker owns the viewport snapshot. It is not safe for concurrent use;
// the scheduler loop is its only caller.
type Tracker struct {
	cfg      Config
	current  geometry.Viewport
	primed   bool
	timer    Timer
	timerCh  <-chan time.Time
	pending  bool
	refreshN uint64
}

// New creates a Tracker with an empty snapshot.
func New(cfg Config) *Tracker {
	cfg.defaults()
	return &Tracker{cfg: cfg}
}

// Notify records a viewport event. Any pending refresh is cancelled and a
// new one is scheduled Delay from now. Until the first refresh has been
// applied the delay is zero, so the scheduler gets a real snapshot before
// any user interaction.
func (t *Tracker) Notify() {
	if t.timer != nil {
		t.timer.Stop()
	}
	delay := t.cfg.Delay
	if !t.primed {
		delay = 0
	}
	t.timer = t.cfg.NewTimer(delay)
	t.timerCh = t.timer.C()
	t.pending = true
}

// TimerC fires when the debounce window expires. It is nil while no
// refresh is pending, which blocks forever in a select.
func (t *Tracker) TimerC() <-chan time.Time {
	return t.timerCh
}

// Pending reports whether a refresh is scheduled.
func (t *Tracker) Pending() bool {
	return t.pending
}

// Fired clears the pending timer. Call it after receiving from TimerC.
func (t *Tracker) Fired() {
	t.timer = nil
	t.timerCh = nil
	t.pending = false
}

// Seed sets the initial snapshot without counting it as a refresh and
// re-arms the zero delay: the next Notify fires at once even if snapshots
// were applied before.
func (t *Tracker) Seed(vp geometry.Viewport) {
	t.current = vp
	t.primed = false
}

// Update replaces the snapshot wholesale.
func (t *Tracker) Update(vp geometry.Viewport) {
	t.current = vp
	t.primed = true
	t.refreshN++
}

// Current returns the latest snapshot.
func (t *Tracker) Current() geometry.Viewport {
	return t.current
}

// Refreshes returns how many snapshots have been applied.
func (t *Tracker) Refreshes() uint64 {
	return t.refreshN
}

// Stop cancels any pending refresh.
func (t *Tracker) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.Fired()
}
