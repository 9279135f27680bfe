package engine

import (
	"sync"
	"time"
)

// debouncer coalesces bursts of rapid calls into one execution after a
// quiet window. It owns its timer handle explicitly; Schedule resets any
// pending timer, CancelPending drops it.
type debouncer struct {
	mu    sync.Mutex
	d     time.Duration
	timer *time.Timer
}

func newDebouncer(d time.Duration) *debouncer {
	return &debouncer{d: d}
}

// Schedule arranges fn to run once the quiet window elapses, replacing
// any previously scheduled fn.
func (db *debouncer) Schedule(fn func()) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.timer != nil {
		db.timer.Stop()
	}
	db.timer = time.AfterFunc(db.d, fn)
}

// CancelPending drops the scheduled call, if any.
func (db *debouncer) CancelPending() {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.timer != nil {
		db.timer.Stop()
		db.timer = nil
	}
}
