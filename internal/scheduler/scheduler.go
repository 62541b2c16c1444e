// Package scheduler abstracts the timer-driven logic of the client (the
// session clock, typing simulation and reconnect backoff) behind a small
// interface with one cancellation handle per scheduled activity, so
// teardown can cancel outstanding timers deterministically.
package scheduler

import (
	"sync"
	"time"
)

// Handle cancels a scheduled activity. Stop is idempotent.
type Handle interface {
	Stop()
}

// Scheduler schedules one-shot and per-second repeating callbacks.
type Scheduler interface {
	// After runs fn once after d has elapsed.
	After(d time.Duration, fn func()) Handle

	// EverySecond runs fn once per second until the handle is stopped.
	EverySecond(fn func()) Handle

	// Now returns the scheduler's view of the current time.
	Now() time.Time
}

// Real is the production scheduler backed by runtime timers.
type Real struct{}

// NewReal returns a scheduler backed by time.AfterFunc and time.Ticker.
func NewReal() *Real { return &Real{} }

// After implements Scheduler.
func (*Real) After(d time.Duration, fn func()) Handle {
	return &timerHandle{timer: time.AfterFunc(d, fn)}
}

// EverySecond implements Scheduler.
func (*Real) EverySecond(fn func()) Handle {
	h := &tickerHandle{done: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn()
			case <-h.done:
				return
			}
		}
	}()
	return h
}

// Now implements Scheduler.
func (*Real) Now() time.Time { return time.Now() }

type timerHandle struct {
	once  sync.Once
	timer *time.Timer
}

func (h *timerHandle) Stop() {
	h.once.Do(func() { h.timer.Stop() })
}

type tickerHandle struct {
	once sync.Once
	done chan struct{}
}

func (h *tickerHandle) Stop() {
	h.once.Do(func() { close(h.done) })
}
