// Package debounce coalesces bursts of reconciliation requests into a single
// run after a quiet period.
package debounce

import (
	"sync"
	"time"
)

// Debouncer owns at most one outstanding timer.
type Debouncer struct {
	mu         sync.Mutex
	quiet      time.Duration
	fn         func()
	timer      *time.Timer
	generation uint64
	stopped    bool
}

// New creates a Debouncer that calls fn after quiet has elapsed without a
// new request.
func New(quiet time.Duration, fn func()) *Debouncer {
	return &Debouncer{quiet: quiet, fn: fn}
}

// Request discards any pending timer. With immediate set, fn runs
// synchronously on the caller's goroutine; otherwise a new timer is started.
func (d *Debouncer) Request(immediate bool) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}

	d.generation++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	if immediate {
		d.mu.Unlock()
		d.fn()
		return
	}

	gen := d.generation
	d.timer = time.AfterFunc(d.quiet, func() { d.fire(gen) })
	d.mu.Unlock()
}

// fire runs fn unless a newer request replaced the timer after it expired.
func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if d.stopped || d.generation != gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	d.fn()
}

// Pending reports whether a timer is outstanding.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Stop discards the pending timer and ignores further requests.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
