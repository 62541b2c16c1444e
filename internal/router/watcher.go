package router

import (
	"sync"
	"time"

	"github.com/remotelab/remote-client/internal/game"
	"github.com/remotelab/remote-client/internal/scheduler"
	"github.com/remotelab/remote-client/internal/tom"
	"github.com/remotelab/remote-client/internal/wire"
)

// hesitationAfter is how long the player must stay idle before the pause
// counts as a hesitation.
const hesitationAfter = 5 * time.Second

// HesitationWatcher turns player inactivity into hesitation events for
// both the session telemetry and the agent. Callers report activity;
// the watcher times the gaps.
type HesitationWatcher struct {
	sched   scheduler.Scheduler
	session *game.Store
	agent   *tom.Store

	mu       sync.Mutex
	handle   scheduler.Handle
	lastSeen time.Time
	stopped  bool
}

// NewHesitationWatcher creates a watcher. The timer starts on the first
// Activity call.
func NewHesitationWatcher(sched scheduler.Scheduler, session *game.Store, agent *tom.Store) *HesitationWatcher {
	return &HesitationWatcher{sched: sched, session: session, agent: agent}
}

// Activity records a player interaction and restarts the idle timer.
func (w *HesitationWatcher) Activity() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if w.handle != nil {
		w.handle.Stop()
	}
	w.lastSeen = w.sched.Now()
	w.handle = w.sched.After(hesitationAfter, w.fire)
}

// Stop cancels the watcher.
func (w *HesitationWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	if w.handle != nil {
		w.handle.Stop()
		w.handle = nil
	}
}

// fire reports the idle gap as a hesitation. The timer stays quiet until
// the next activity.
func (w *HesitationWatcher) fire() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	duration := w.sched.Now().Sub(w.lastSeen)
	w.handle = nil
	w.mu.Unlock()

	if duration < hesitationAfter || !w.session.IsActive() {
		return
	}
	w.session.RecordHesitation(duration, nil)
	w.agent.RecordPlayerHesitation(wire.HesitationData{
		DurationMs: duration.Milliseconds(),
		Timestamp:  w.sched.Now().UTC().Format(time.RFC3339),
	})
}
