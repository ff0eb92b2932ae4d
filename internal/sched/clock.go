// Package sched provides the pipeline's timing primitives: a Clock
// abstraction, periodic loops, and one-shot deferred tasks. Tests use
// the manual clock to advance logical time deterministically instead
// of sleeping on the wall clock.
package sched

import (
	"sort"
	"sync"
	"time"
)

// Clock abstracts wall-clock access so loops and deferred tasks can be
// driven by logical time in tests.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
	AfterFunc(d time.Duration, f func()) Timer
}

// Ticker delivers ticks on C until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Timer is a pending one-shot task handle.
type Timer interface {
	// Stop cancels the task; reports whether it was still pending.
	Stop() bool
}

// --- real clock ---

type realClock struct{}

// NewClock returns the wall-clock implementation.
func NewClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return &realTimer{t: time.AfterFunc(d, f)}
}

type realTicker struct{ t *time.Ticker }

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }

type realTimer struct{ t *time.Timer }

func (r *realTimer) Stop() bool { return r.t.Stop() }

// --- manual clock ---

// ManualClock is a deterministic Clock for tests. Advance moves
// logical time forward and fires every ticker tick and timer that
// comes due, in chronological order, on the caller's goroutine.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
	timers  []*manualTimer
}

// NewManualClock creates a manual clock starting at the given instant.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current logical time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set jumps logical time without firing anything. Useful for placing
// "now" before scheduling.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// NewTicker registers a logical ticker.
func (c *ManualClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTicker{
		clock:    c,
		interval: d,
		next:     c.now.Add(d),
		ch:       make(chan time.Time, 64),
	}
	c.tickers = append(c.tickers, t)
	return t
}

// AfterFunc registers a one-shot logical timer.
func (c *ManualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves logical time by d, firing due tickers and timers in
// order. Timer callbacks run synchronously on the calling goroutine.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)

	for {
		next, ok := c.nextEventLocked(target)
		if !ok {
			break
		}
		c.now = next

		var fire []func()
		for _, t := range c.tickers {
			if t.stopped {
				continue
			}
			for !t.next.After(c.now) {
				tick := t.next
				select {
				case t.ch <- tick:
				default:
				}
				t.next = t.next.Add(t.interval)
			}
		}
		remaining := c.timers[:0]
		for _, t := range c.timers {
			if !t.stopped && !t.at.After(c.now) {
				fire = append(fire, t.f)
				t.stopped = true
				continue
			}
			remaining = append(remaining, t)
		}
		c.timers = remaining

		c.mu.Unlock()
		for _, f := range fire {
			f()
		}
		c.mu.Lock()
	}

	c.now = target
	c.mu.Unlock()
}

// nextEventLocked finds the earliest pending event at or before target.
func (c *ManualClock) nextEventLocked(target time.Time) (time.Time, bool) {
	var times []time.Time
	for _, t := range c.tickers {
		if !t.stopped && !t.next.After(target) {
			times = append(times, t.next)
		}
	}
	for _, t := range c.timers {
		if !t.stopped && !t.at.After(target) {
			times = append(times, t.at)
		}
	}
	if len(times) == 0 {
		return time.Time{}, false
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return times[0], true
}

type manualTicker struct {
	clock    *ManualClock
	interval time.Duration
	next     time.Time
	ch       chan time.Time
	stopped  bool
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }

func (t *manualTicker) Stop() {
	t.clock.mu.Lock()
	t.stopped = true
	t.clock.mu.Unlock()
}

type manualTimer struct {
	clock   *ManualClock
	at      time.Time
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}
