// Package task provides owned, cancellable scheduled callbacks. A Task holds
// at most one pending callback: scheduling again supersedes the previous one,
// and a superseded callback that already fired on its timer goroutine is
// dropped before it runs.
package task

import (
	"sync"
	"time"
)

// Timer is a handle on a scheduled callback.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks. Tests substitute a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// System is the wall clock.
var System Clock = systemClock{}

// Task is a single-slot scheduled callback owned by one component.
type Task struct {
	clock Clock

	mu      sync.Mutex
	gen     uint64
	timer   Timer
	pending bool
	closed  bool
}

// New returns a Task driven by clock. A nil clock means System.
func New(clock Clock) *Task {
	if clock == nil {
		clock = System
	}
	return &Task{clock: clock}
}

// Schedule runs f after d, cancelling any pending callback first. It returns
// false once the task is closed.
func (t *Task) Schedule(d time.Duration, f func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.stopLocked()
	t.gen++
	gen := t.gen
	t.pending = true
	t.timer = t.clock.AfterFunc(d, func() { t.fire(gen, f) })
	return true
}

func (t *Task) fire(gen uint64, f func()) {
	t.mu.Lock()
	if t.closed || gen != t.gen || !t.pending {
		t.mu.Unlock()
		return
	}
	t.pending = false
	t.timer = nil
	t.mu.Unlock()
	f()
}

// Cancel drops the pending callback. It reports whether one was pending.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := t.pending
	t.stopLocked()
	return was
}

// Pending reports whether a callback is waiting to run.
func (t *Task) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Close cancels the pending callback and rejects future schedules.
func (t *Task) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.closed = true
}

func (t *Task) stopLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.pending = false
	t.gen++
}
