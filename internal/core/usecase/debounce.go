package usecase

import (
	"sync"
	"time"
)

// Debouncer keeps a table of cancellable scheduled-work handles keyed by a
// logical trigger key. Schedule cancels any not-yet-started handle for the
// same key before storing the new one, so at most one trigger is pending per
// key at any instant. Work that already started always runs to completion.
type Debouncer struct {
	mu      sync.Mutex
	pending map[string]*time.Timer
}

func NewDebouncer() *Debouncer {
	return &Debouncer{pending: make(map[string]*time.Timer)}
}

// Schedule enqueues fn to run after delay under the given key, revoking any
// pending handle for that key first.
func (d *Debouncer) Schedule(key string, delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, ok := d.pending[key]; ok {
		timer.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		d.mu.Lock()
		if d.pending[key] == timer {
			delete(d.pending, key)
		}
		d.mu.Unlock()
		fn()
	})
	d.pending[key] = timer
}

// Cancel revokes the pending handle for key, if any. In-flight work is not
// affected.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, ok := d.pending[key]; ok {
		timer.Stop()
		delete(d.pending, key)
	}
}

// Pending reports whether a not-yet-started handle exists for key.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}
