package myelectric

import (
	"sync"
)

// Tracker follows whether a refresh is running and what the last failure was.
// Failures are informational and never stop later refreshes.
type Tracker struct {
	refreshing *Stream[bool]
	errors     *Stream[ErrorKind]

	mu      sync.Mutex
	active  int
	lastErr error
}

func newTracker() *Tracker {
	return &Tracker{
		refreshing: newStreamWith(false),
		errors:     newStream[ErrorKind](false),
	}
}

// IsRefreshing is true while a refresh is running.
func (t *Tracker) IsRefreshing() *Stream[bool] {
	return t.refreshing
}

// Errors receives the kind of every failed refresh.
func (t *Tracker) Errors() *Stream[ErrorKind] {
	return t.errors
}

// LastError returns the failure of the most recent refresh if it failed.
func (t *Tracker) LastError() (ErrorKind, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastErr == nil {
		return ErrorKindGeneric, nil
	}
	return Classify(t.lastErr), t.lastErr
}

func (t *Tracker) begin() {
	t.mu.Lock()
	t.active++
	first := t.active == 1
	t.mu.Unlock()

	if first {
		t.refreshing.publish(true)
	}
}

// fail records err and publishes its kind.
func (t *Tracker) fail(err error) {
	t.mu.Lock()
	t.lastErr = err
	t.mu.Unlock()

	t.errors.publish(Classify(err))
}

// succeed clears the last failure.
func (t *Tracker) succeed() {
	t.mu.Lock()
	t.lastErr = nil
	t.mu.Unlock()
}

func (t *Tracker) end() {
	t.mu.Lock()
	t.active--
	last := t.active == 0
	t.mu.Unlock()

	if last {
		t.refreshing.publish(false)
	}
}
