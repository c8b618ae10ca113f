package turn

import "sync"

// CancelToken is a latchable boolean plus an observer hook, shared by the
// STT/LLM/TTS subtasks of one turn. Raising it more than once is a no-op
// (raising it twice is a no-op); it is never un-latched.
type CancelToken struct {
	mu       sync.Mutex
	canceled bool
	done     chan struct{}
	onCancel func()
}

// NewCancelToken creates a token in the non-canceled state.
func NewCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Cancel latches the token and invokes the observer hook, if any. Safe to
// call any number of times from any number of goroutines; only the first
// call has an effect.
func (c *CancelToken) Cancel() {
	c.mu.Lock()
	if c.canceled {
		c.mu.Unlock()
		return
	}
	c.canceled = true
	hook := c.onCancel
	c.mu.Unlock()

	close(c.done)
	if hook != nil {
		hook()
	}
}

// Canceled reports whether Cancel has been called.
func (c *CancelToken) Canceled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canceled
}

// Done returns a channel closed exactly once, when Cancel is first called.
// Subtasks select on this at every suspension point.
func (c *CancelToken) Done() <-chan struct{} {
	return c.done
}

// OnCancel registers a callback invoked synchronously the first time
// Cancel is called. Registering after cancellation has already happened
// invokes the callback immediately.
func (c *CancelToken) OnCancel(fn func()) {
	c.mu.Lock()
	if c.canceled {
		c.mu.Unlock()
		fn()
		return
	}
	c.onCancel = fn
	c.mu.Unlock()
}
