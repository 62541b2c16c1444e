package scheduler

import (
	"sort"
	"sync"
	"time"
)

// Manual is a test scheduler with an advanceable clock. Callbacks fire
// synchronously inside Advance, in deadline order; callbacks may schedule
// further work, which fires in the same Advance call if it falls inside
// the advanced window.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	nextID  int
	entries []*manualEntry
}

type manualEntry struct {
	id       int
	deadline time.Time
	interval time.Duration // zero for one-shot
	fn       func()
	stopped  bool
}

// NewManual returns a manual scheduler starting at the given time.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// After implements Scheduler.
func (m *Manual) After(d time.Duration, fn func()) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addLocked(m.now.Add(d), 0, fn)
}

// EverySecond implements Scheduler.
func (m *Manual) EverySecond(fn func()) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addLocked(m.now.Add(time.Second), time.Second, fn)
}

// Now implements Scheduler.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d, firing every due callback in
// deadline order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)

	for {
		entry := m.nextDueLocked(target)
		if entry == nil {
			break
		}
		m.now = entry.deadline
		if entry.interval > 0 {
			entry.deadline = entry.deadline.Add(entry.interval)
		} else {
			m.removeLocked(entry.id)
		}
		fn := entry.fn
		m.mu.Unlock()
		fn()
		m.mu.Lock()
	}

	m.now = target
	m.mu.Unlock()
}

// Pending reports how many activities are currently scheduled.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if !e.stopped {
			n++
		}
	}
	return n
}

func (m *Manual) addLocked(deadline time.Time, interval time.Duration, fn func()) Handle {
	m.nextID++
	entry := &manualEntry{
		id:       m.nextID,
		deadline: deadline,
		interval: interval,
		fn:       fn,
	}
	m.entries = append(m.entries, entry)
	return &manualHandle{m: m, id: entry.id}
}

func (m *Manual) nextDueLocked(target time.Time) *manualEntry {
	live := m.entries[:0]
	for _, e := range m.entries {
		if !e.stopped {
			live = append(live, e)
		}
	}
	m.entries = live

	sort.SliceStable(m.entries, func(i, j int) bool {
		return m.entries[i].deadline.Before(m.entries[j].deadline)
	})
	if len(m.entries) == 0 || m.entries[0].deadline.After(target) {
		return nil
	}
	return m.entries[0]
}

func (m *Manual) removeLocked(id int) {
	for _, e := range m.entries {
		if e.id == id {
			e.stopped = true
			return
		}
	}
}

type manualHandle struct {
	m  *Manual
	id int
}

func (h *manualHandle) Stop() {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	h.m.removeLocked(h.id)
}
