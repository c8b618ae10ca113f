package turn

import (
	"sync"
	"time"
)

// InactivityWatchdog fires a callback after timeout elapses with no
// intervening call to Reset. It backs the session-level 60s inactivity
// timeout: Reset is called on every voiced frame and every assistant audio
// chunk emitted, matching the Session.last-activity invariant.
type InactivityWatchdog struct {
	timeout time.Duration
	mu      sync.Mutex
	timer   *time.Timer
	onFire  func()
	fired   bool
}

// NewInactivityWatchdog creates a watchdog armed to fire onFire after
// timeout. A non-positive timeout defaults to 60s.
func NewInactivityWatchdog(timeout time.Duration, onFire func()) *InactivityWatchdog {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	w := &InactivityWatchdog{timeout: timeout, onFire: onFire}
	w.arm()
	return w
}

// Reset restarts the countdown; call on any session activity.
func (w *InactivityWatchdog) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fired {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.armLocked()
}

// Stop cancels the watchdog permanently; call on session teardown.
func (w *InactivityWatchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fired = true
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *InactivityWatchdog) arm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.armLocked()
}

func (w *InactivityWatchdog) armLocked() {
	w.timer = time.AfterFunc(w.timeout, func() {
		w.mu.Lock()
		if w.fired {
			w.mu.Unlock()
			return
		}
		w.fired = true
		callback := w.onFire
		w.mu.Unlock()

		if callback != nil {
			callback()
		}
	})
}
