// Package watch runs a convergence cycle whenever tracked files settle
// after a burst of edits.
package watch

import (
	"slices"
	"sync"
	"time"
)

// MaxPending bounds the pending set. Reaching it flushes at once.
const MaxPending = 1000

// Debouncer coalesces change events into one batch per quiet window.
// A save storm from an editor or formatter yields a single flush.
type Debouncer struct {
	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	window  time.Duration
	onFlush func(paths []string)
	stopped bool
}

// NewDebouncer creates a debouncer. onFlush receives the sorted pending
// paths once window has passed without a new Add.
func NewDebouncer(window time.Duration, onFlush func(paths []string)) *Debouncer {
	return &Debouncer{
		pending: make(map[string]struct{}),
		window:  window,
		onFlush: onFlush,
	}
}

// Add records a changed path and restarts the window.
func (d *Debouncer) Add(path string) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.pending[path] = struct{}{}
	if d.timer != nil {
		// a timer that already fired finds an empty set and returns
		d.timer.Stop()
		d.timer = nil
	}
	if len(d.pending) >= MaxPending {
		paths := d.takeLocked()
		d.mu.Unlock()
		d.emit(paths)
		return
	}
	d.timer = time.AfterFunc(d.window, d.FlushNow)
	d.mu.Unlock()
}

// FlushNow delivers pending paths immediately.
func (d *Debouncer) FlushNow() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.stopped {
		d.mu.Unlock()
		return
	}
	paths := d.takeLocked()
	d.mu.Unlock()
	d.emit(paths)
}

// Stop flushes what is pending and ignores later events.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	paths := d.takeLocked()
	d.mu.Unlock()
	d.emit(paths)
}

// PendingCount returns the number of paths waiting to be flushed.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// takeLocked empties the pending set. Caller must hold d.mu.
func (d *Debouncer) takeLocked() []string {
	if len(d.pending) == 0 {
		return nil
	}
	paths := make([]string, 0, len(d.pending))
	for p := range d.pending {
		paths = append(paths, p)
	}
	d.pending = make(map[string]struct{})
	slices.Sort(paths)
	return paths
}

// emit runs the handler without holding the lock.
func (d *Debouncer) emit(paths []string) {
	if len(paths) > 0 && d.onFlush != nil {
		d.onFlush(paths)
	}
}
