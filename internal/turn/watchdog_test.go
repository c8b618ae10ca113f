package turn

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestInactivityWatchdogFiresAfterTimeout(t *testing.T) {
	done := make(chan struct{}, 1)
	NewInactivityWatchdog(30*time.Millisecond, func() { done <- struct{}{} })

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected watchdog to fire")
	}
}

func TestInactivityWatchdogResetDefersFire(t *testing.T) {
	var fired atomic.Int32
	w := NewInactivityWatchdog(80*time.Millisecond, func() { fired.Add(1) })

	// Reset at 40ms moves the deadline to 120ms; checking at 100ms is past
	// the original 80ms deadline but before the new one.
	time.Sleep(40 * time.Millisecond)
	w.Reset()

	time.Sleep(60 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("expected 0 fires after reset, got %d", fired.Load())
	}
}

func TestInactivityWatchdogStopPreventsFire(t *testing.T) {
	var fired atomic.Int32
	w := NewInactivityWatchdog(20*time.Millisecond, func() { fired.Add(1) })
	w.Stop()

	time.Sleep(60 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("expected 0 fires after stop, got %d", fired.Load())
	}
}

func TestInactivityWatchdogConfigurableTimeout(t *testing.T) {
	short := make(chan struct{}, 1)
	long := make(chan struct{}, 1)

	NewInactivityWatchdog(10*time.Millisecond, func() { short <- struct{}{} })
	NewInactivityWatchdog(80*time.Millisecond, func() { long <- struct{}{} })

	select {
	case <-short:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected short watchdog to fire")
	}

	select {
	case <-long:
		t.Fatal("long watchdog should not fire yet")
	case <-time.After(20 * time.Millisecond):
	}

	select {
	case <-long:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected long watchdog to fire")
	}
}
