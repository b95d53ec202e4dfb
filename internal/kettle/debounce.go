package kettle

import (
	"sync"
	"time"
)

// DefaultDebounceWindow is how long a power toggle is held back so a burst
// of rapid toggles collapses into the final one.
const DefaultDebounceWindow = 400 * time.Millisecond

// Debouncer delays a function call and lets a newer call supersede a pending
// one. Trailing edge only: the last call within a window is the one that
// runs, after the window has passed with no further calls.
type Debouncer struct {
	mu     sync.Mutex
	window time.Duration
	timer  *time.Timer
}

// NewDebouncer builds a debouncer. A non-positive window falls back to
// DefaultDebounceWindow.
func NewDebouncer(window time.Duration) *Debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Debouncer{window: window}
}

// Do schedules fn to run after the window. A pending earlier fn is cancelled
// and never runs. fn executes on the timer goroutine.
func (d *Debouncer) Do(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, fn)
}

// Stop cancels any pending call. Used on shutdown.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
