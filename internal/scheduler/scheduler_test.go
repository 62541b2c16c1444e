package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestManualAfterFiresInOrder(t *testing.T) {
	t.Parallel()

	m := NewManual(time.Unix(0, 0))
	var order []int

	m.After(3*time.Second, func() { order = append(order, 3) })
	m.After(1*time.Second, func() { order = append(order, 1) })
	m.After(2*time.Second, func() { order = append(order, 2) })

	m.Advance(5 * time.Second)

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("callbacks fired out of order: %v", order)
	}
}

func TestManualChainedCallbacksFireWithinWindow(t *testing.T) {
	t.Parallel()

	// Chained timeouts are how the typing simulation works: each callback
	// schedules the next character.
	m := NewManual(time.Unix(0, 0))
	var count int
	var step func()
	step = func() {
		count++
		if count < 5 {
			m.After(100*time.Millisecond, step)
		}
	}
	m.After(100*time.Millisecond, step)

	m.Advance(time.Second)
	if count != 5 {
		t.Fatalf("expected full chain to fire, got %d steps", count)
	}
}

func TestManualEverySecondAndStop(t *testing.T) {
	t.Parallel()

	m := NewManual(time.Unix(0, 0))
	var ticks int
	h := m.EverySecond(func() { ticks++ })

	m.Advance(3 * time.Second)
	if ticks != 3 {
		t.Fatalf("expected 3 ticks, got %d", ticks)
	}

	h.Stop()
	h.Stop() // idempotent
	m.Advance(3 * time.Second)
	if ticks != 3 {
		t.Fatalf("ticks after Stop: got %d, want 3", ticks)
	}
	if m.Pending() != 0 {
		t.Fatalf("expected no pending activities, got %d", m.Pending())
	}
}

func TestManualStopOneShot(t *testing.T) {
	t.Parallel()

	m := NewManual(time.Unix(0, 0))
	fired := false
	h := m.After(time.Second, func() { fired = true })
	h.Stop()
	m.Advance(2 * time.Second)
	if fired {
		t.Fatal("stopped one-shot must not fire")
	}
}

func TestRealAfterAndStop(t *testing.T) {
	t.Parallel()

	r := NewReal()
	var fired atomic.Bool
	done := make(chan struct{})
	r.After(10*time.Millisecond, func() {
		fired.Store(true)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for After callback")
	}
	if !fired.Load() {
		t.Fatal("callback did not run")
	}

	h := r.After(time.Hour, func() { t.Error("cancelled callback ran") })
	h.Stop()
	h.Stop()
}

func TestRealEverySecondStops(t *testing.T) {
	t.Parallel()

	r := NewReal()
	var ticks atomic.Int32
	h := r.EverySecond(func() { ticks.Add(1) })
	h.Stop()
	h.Stop()

	// After Stop no further ticks may arrive.
	before := ticks.Load()
	time.Sleep(50 * time.Millisecond)
	if ticks.Load() != before {
		t.Fatal("ticker fired after Stop")
	}
}
