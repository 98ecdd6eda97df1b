package engine

import (
	"sync"
	"time"
)

// debouncer batches rapid filesystem events into a single action after a
// quiet period. Safe for concurrent triggers.
type debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	duration time.Duration
	action   func()
	seq      uint64
}

func newDebouncer(duration time.Duration, action func()) *debouncer {
	return &debouncer{duration: duration, action: action}
}

// trigger (re)arms the timer; the action fires once the triggers go quiet.
func (d *debouncer) trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.timer = time.AfterFunc(d.duration, func() {
		d.mu.Lock()
		if d.seq != seq {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		// Run the action without the lock so it may trigger again.
		d.mu.Unlock()
		d.action()
	})
}

// cancel drops any pending action.
func (d *debouncer) cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
}
