// Package clock provides the cancellable countdown that drives timed
// practice phases. A Countdown is single-use: the owner starts it, consumes
// its events, and must cancel it on every exit path. Leaked countdowns are
// the bug class this package exists to make visible.
package clock

import (
	"errors"
	"sync"
	"time"
)

// EventKind discriminates countdown events.
type EventKind int

const (
	// EventTick is emitted once per elapsed unit while running.
	EventTick EventKind = iota
	// EventExpired is emitted exactly once when the countdown reaches zero.
	// It is never emitted after Cancel.
	EventExpired
)

// Event is a single countdown signal.
type Event struct {
	Kind      EventKind
	Remaining time.Duration
}

// ErrAlreadyStarted is returned by Start on a countdown that already ran.
var ErrAlreadyStarted = errors.New("countdown already started")

// Countdown ticks once per unit and expires once. Safe for concurrent use;
// Cancel is idempotent.
type Countdown struct {
	unit time.Duration

	mu        sync.Mutex
	remaining time.Duration
	started   bool
	paused    bool
	done      bool
	stop      chan struct{}

	events chan Event
}

// New builds a countdown with one-second granularity.
func New() *Countdown {
	return NewWithUnit(time.Second)
}

// NewWithUnit allows tests to run with a shorter tick unit.
func NewWithUnit(unit time.Duration) *Countdown {
	if unit <= 0 {
		unit = time.Second
	}
	return &Countdown{
		unit:   unit,
		stop:   make(chan struct{}),
		events: make(chan Event, 16),
	}
}

// Events returns the countdown's event stream. The channel is closed when
// the countdown expires or is cancelled.
func (c *Countdown) Events() <-chan Event {
	return c.events
}

// Remaining reports the time left on the countdown.
func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Start begins counting down from d. A countdown can be started once.
func (c *Countdown) Start(d time.Duration) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.remaining = d
	c.mu.Unlock()

	if d <= 0 {
		// Nothing to count; expire immediately.
		c.expire()
		return nil
	}
	go c.run()
	return nil
}

// Pause freezes the countdown; ticks stop decrementing until Resume.
func (c *Countdown) Pause() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
}

// Resume continues a paused countdown.
func (c *Countdown) Resume() {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
}

// Cancel stops the countdown. No event is delivered after Cancel returns;
// calling it again, or after expiry, is a no-op.
func (c *Countdown) Cancel() {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	close(c.stop)
	c.mu.Unlock()
}

func (c *Countdown) run() {
	ticker := time.NewTicker(c.unit)
	defer ticker.Stop()
	defer close(c.events)

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		if c.done {
			c.mu.Unlock()
			return
		}
		if c.paused {
			c.mu.Unlock()
			continue
		}
		c.remaining -= c.unit
		if c.remaining < 0 {
			c.remaining = 0
		}
		remaining := c.remaining
		expired := remaining == 0
		if expired {
			c.done = true
		}
		c.mu.Unlock()

		if expired {
			// The stop channel is not closed here (done already guards
			// Cancel), so the expiry event always goes out.
			c.events <- Event{Kind: EventExpired, Remaining: 0}
			return
		}

		select {
		case c.events <- Event{Kind: EventTick, Remaining: remaining}:
		default:
			// Slow consumer: drop the tick rather than stall the countdown.
		}
	}
}

// expire handles the zero-duration start.
func (c *Countdown) expire() {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	c.mu.Unlock()
	c.events <- Event{Kind: EventExpired, Remaining: 0}
	close(c.events)
}
