// Package game owns the game-session lifecycle: the elapsed-time clock,
// the phase state machine, and the action/hesitation counters. It is the
// sole mutator of session state; other stores observe it through the
// event buses and the messages it forwards to the socket.
package game

import (
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/remotelab/remote-client/internal/events"
	"github.com/remotelab/remote-client/internal/scheduler"
	"github.com/remotelab/remote-client/internal/wire"
)

// Phase is one of the three ordered narrative stages. Transitions are
// one-directional: adhesion -> dissonance -> rupture.
type Phase string

const (
	PhaseAdhesion   Phase = "adhesion"
	PhaseDissonance Phase = "dissonance"
	PhaseRupture    Phase = "rupture"
)

// Time thresholds of the phase machine.
const (
	dissonanceAfter = 3 * time.Minute
	ruptureAfter    = 7 * time.Minute
	sessionTimeout  = 10 * time.Minute
	restartDelay    = 100 * time.Millisecond
)

// Ending types produced by the store itself.
const (
	EndingTimeout     = "timeout"
	EndingManualReset = "manual_reset"
	EndingCleanup     = "cleanup"
)

// Sender is the outbound side of the socket client.
type Sender interface {
	Send(msg wire.Message) error
}

// PhaseChange is published on every phase transition.
type PhaseChange struct {
	SessionID string
	From      Phase
	To        Phase
	AtSeconds float64
}

// SessionEnded is published when the session ends, whatever the cause.
type SessionEnded struct {
	SessionID  string
	EndingType string
	EndingData map[string]any
	Duration   time.Duration
	Summary    Summary
}

// ActionInput is the caller-supplied part of a player action.
type ActionInput struct {
	Type         string
	IsObedient   bool
	IsMetaAction bool
	Target       string
	Details      map[string]any
}

// Summary is a read-only snapshot of session metrics.
type Summary struct {
	SessionID           string  `json:"session_id"`
	IsActive            bool    `json:"is_active"`
	IsCompleted         bool    `json:"is_completed"`
	Phase               Phase   `json:"phase"`
	TimeElapsedSeconds  float64 `json:"time_elapsed_seconds"`
	TotalActions        int     `json:"total_actions"`
	ObedientActions     int     `json:"obedient_actions"`
	MetaActions         int     `json:"meta_actions"`
	HesitationEvents    int     `json:"hesitation_events"`
	CorruptionIncidents int     `json:"corruption_incidents"`
	ObedienceRate       float64 `json:"obedience_rate"`
	EndingType          string  `json:"ending_type,omitempty"`
}

// Store is the session store. Construct one per session run with New and
// inject it where needed; there is no ambient global.
type Store struct {
	sched scheduler.Scheduler
	sock  Sender

	phaseBus  *events.Bus[PhaseChange]
	actionBus *events.Bus[wire.ActionData]
	endedBus  *events.Bus[SessionEnded]

	mu                  sync.Mutex
	sessionID           string
	isActive            bool
	isCompleted         bool
	startTime           time.Time
	endTime             time.Time
	phase               Phase
	timeElapsed         float64
	totalActions        int
	obedientActions     int
	metaActions         int
	hesitationEvents    int
	corruptionIncidents int
	endingType          string
	endingData          map[string]any
	timer               scheduler.Handle
	restart             scheduler.Handle
}

// New creates a session store bound to a session id.
func New(sessionID string, sched scheduler.Scheduler, sock Sender) *Store {
	return &Store{
		sched:     sched,
		sock:      sock,
		sessionID: sessionID,
		phase:     PhaseAdhesion,
		phaseBus:  events.NewBus[PhaseChange](),
		actionBus: events.NewBus[wire.ActionData](),
		endedBus:  events.NewBus[SessionEnded](),
	}
}

// PhaseChanges exposes phase transitions to observers.
func (s *Store) PhaseChanges() *events.Bus[PhaseChange] { return s.phaseBus }

// Actions exposes recorded player actions to observers (the agent store
// consumes these).
func (s *Store) Actions() *events.Bus[wire.ActionData] { return s.actionBus }

// Ended exposes session-end events to observers.
func (s *Store) Ended() *events.Bus[SessionEnded] { return s.endedBus }

// StartSession begins a fresh session: resets counters and phase, sends
// session_init, and starts the per-second clock.
func (s *Store) StartSession() {
	s.mu.Lock()
	if s.isActive {
		s.mu.Unlock()
		slog.Warn("StartSession on an already active session", "session_id", s.sessionID)
		return
	}
	now := s.sched.Now()
	s.isActive = true
	s.isCompleted = false
	s.startTime = now
	s.endTime = time.Time{}
	s.phase = PhaseAdhesion
	s.timeElapsed = 0
	s.totalActions = 0
	s.obedientActions = 0
	s.metaActions = 0
	s.hesitationEvents = 0
	s.corruptionIncidents = 0
	s.endingType = ""
	s.endingData = nil
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.sched.EverySecond(s.tick)
	init := wire.SessionInit{
		Type:      wire.TypeSessionInit,
		SessionID: s.sessionID,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
	s.mu.Unlock()

	if err := s.sock.Send(init); err != nil {
		slog.Warn("Failed to send session_init", "session_id", s.sessionID, "error", err)
	}
	slog.Info("Game session started", "session_id", s.sessionID)
}

// tick advances the clock one second and evaluates the time-based phase
// rule: m>=7 forces rupture, m>=3 lifts adhesion to dissonance, and m>=10
// ends the session with the timeout ending. Transitions never go back.
func (s *Store) tick() {
	s.mu.Lock()
	if !s.isActive {
		s.mu.Unlock()
		return
	}
	elapsed := s.sched.Now().Sub(s.startTime)
	s.timeElapsed = elapsed.Seconds()

	var next Phase
	switch {
	case elapsed >= ruptureAfter && s.phase != PhaseRupture:
		next = PhaseRupture
	case elapsed >= dissonanceAfter && s.phase == PhaseAdhesion:
		next = PhaseDissonance
	}
	s.mu.Unlock()

	if next != "" {
		s.updatePhase(next)
	}
	if elapsed >= sessionTimeout {
		s.EndSession(EndingTimeout, nil)
	}
}

// updatePhase moves the machine to newPhase, publishing the change and
// forwarding a phase_transition frame. A no-op when already there.
func (s *Store) updatePhase(newPhase Phase) {
	s.mu.Lock()
	old := s.phase
	if old == newPhase {
		s.mu.Unlock()
		return
	}
	s.phase = newPhase
	at := s.timeElapsed
	msg := wire.PhaseTransition{
		Type:      wire.TypePhaseTransition,
		SessionID: s.sessionID,
		OldPhase:  string(old),
		NewPhase:  string(newPhase),
		Timestamp: s.sched.Now().UTC().Format(time.RFC3339),
	}
	s.mu.Unlock()

	slog.Info("Phase transition", "session_id", s.sessionID, "from", old, "to", newPhase)
	if err := s.sock.Send(msg); err != nil {
		slog.Warn("Failed to send phase_transition", "error", err)
	}
	s.phaseBus.Publish(PhaseChange{SessionID: s.sessionID, From: old, To: newPhase, AtSeconds: at})
}

// RecordAction assigns an id to the action, stamps it with current game
// time and phase, updates the counters, and forwards it fire-and-forget.
// The id is returned synchronously.
func (s *Store) RecordAction(in ActionInput) string {
	s.mu.Lock()
	action := wire.ActionData{
		ID:           "action_" + ulid.Make().String(),
		Type:         in.Type,
		SessionID:    s.sessionID,
		Timestamp:    s.sched.Now().UTC().Format(time.RFC3339),
		GameTime:     s.timeElapsed,
		GamePhase:    string(s.phase),
		IsObedient:   in.IsObedient,
		IsMetaAction: in.IsMetaAction,
		Target:       in.Target,
		Details:      in.Details,
	}
	s.totalActions++
	if in.IsObedient {
		s.obedientActions++
	}
	if in.IsMetaAction {
		s.metaActions++
	}
	msg := wire.PlayerAction{Type: wire.TypePlayerAction, SessionID: s.sessionID, ActionData: action}
	s.mu.Unlock()

	if err := s.sock.Send(msg); err != nil {
		slog.Warn("Failed to send player_action", "action_id", action.ID, "error", err)
	}
	s.actionBus.Publish(action)
	slog.Debug("Action recorded", "action_id", action.ID, "type", in.Type)
	return action.ID
}

// RecordHesitation counts a hesitation event and forwards it. Hesitations
// are telemetry: they never influence the phase machine.
func (s *Store) RecordHesitation(duration time.Duration, context map[string]any) {
	s.mu.Lock()
	s.hesitationEvents++
	msg := wire.PlayerHesitation{
		Type:      wire.TypePlayerHesitation,
		SessionID: s.sessionID,
		HesitationData: wire.HesitationData{
			DurationMs: duration.Milliseconds(),
			Context:    context,
			Timestamp:  s.sched.Now().UTC().Format(time.RFC3339),
			GameTime:   s.timeElapsed,
			GamePhase:  string(s.phase),
		},
	}
	s.mu.Unlock()

	if err := s.sock.Send(msg); err != nil {
		slog.Warn("Failed to send player_hesitation", "error", err)
	}
}

// RecordCorruptionIncident bumps the corruption incident counter.
func (s *Store) RecordCorruptionIncident() {
	s.mu.Lock()
	s.corruptionIncidents++
	s.mu.Unlock()
}

// EndSession marks the session inactive and completed, stops the clock,
// and reports the measured wall-clock duration. A warning no-op when the
// session is not active.
func (s *Store) EndSession(endingType string, endingData map[string]any) {
	s.mu.Lock()
	if !s.isActive {
		s.mu.Unlock()
		slog.Warn("EndSession on inactive session", "session_id", s.sessionID, "ending_type", endingType)
		return
	}
	now := s.sched.Now()
	duration := now.Sub(s.startTime)
	s.isActive = false
	s.isCompleted = true
	s.endTime = now
	s.endingType = endingType
	s.endingData = endingData
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	msg := wire.SessionEnd{
		Type:       wire.TypeSessionEnd,
		SessionID:  s.sessionID,
		EndingType: endingType,
		EndingData: endingData,
		DurationMs: duration.Milliseconds(),
		Timestamp:  now.UTC().Format(time.RFC3339),
	}
	summary := s.summaryLocked()
	s.mu.Unlock()

	if err := s.sock.Send(msg); err != nil {
		slog.Warn("Failed to send session_end", "error", err)
	}
	s.endedBus.Publish(SessionEnded{
		SessionID:  s.sessionID,
		EndingType: endingType,
		EndingData: endingData,
		Duration:   duration,
		Summary:    summary,
	})
	slog.Info("Game session ended", "session_id", s.sessionID, "ending_type", endingType, "duration", duration)
}

// EndSessionFromBackend applies a backend-driven session end (e.g. a
// session_status frame with status "ended").
func (s *Store) EndSessionFromBackend(endingType string, endingData map[string]any) {
	if endingType == "" {
		endingType = "backend_ended"
	}
	s.EndSession(endingType, endingData)
}

// ResetSession ends any active session with the manual_reset ending,
// clears all state, and restarts a fresh session after a short delay.
func (s *Store) ResetSession() {
	s.EndSession(EndingManualReset, nil)

	s.mu.Lock()
	s.isCompleted = false
	s.phase = PhaseAdhesion
	s.timeElapsed = 0
	s.totalActions = 0
	s.obedientActions = 0
	s.metaActions = 0
	s.hesitationEvents = 0
	s.corruptionIncidents = 0
	s.endingType = ""
	s.endingData = nil
	if s.restart != nil {
		s.restart.Stop()
	}
	s.restart = s.sched.After(restartDelay, s.StartSession)
	s.mu.Unlock()

	slog.Info("Session reset scheduled", "session_id", s.sessionID)
}

// Cleanup tears the store down: stops the clock and ends the session with
// the cleanup ending if still active. Idempotent.
func (s *Store) Cleanup() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.restart != nil {
		s.restart.Stop()
		s.restart = nil
	}
	active := s.isActive
	s.mu.Unlock()

	if active {
		s.EndSession(EndingCleanup, nil)
	}
}

// ObedienceRate returns obedientActions/totalActions, or 0 before any
// action has been recorded.
func (s *Store) ObedienceRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.totalActions == 0 {
		return 0
	}
	return float64(s.obedientActions) / float64(s.totalActions)
}

// TimeRemaining returns the seconds left before the hard timeout, never
// negative.
func (s *Store) TimeRemaining() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	remaining := sessionTimeout.Seconds() - s.timeElapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Phase returns the current narrative phase.
func (s *Store) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// IsActive reports whether a session is running.
func (s *Store) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isActive
}

// Summary returns a snapshot of the session metrics.
func (s *Store) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaryLocked()
}

func (s *Store) summaryLocked() Summary {
	rate := 0.0
	if s.totalActions > 0 {
		rate = float64(s.obedientActions) / float64(s.totalActions)
	}
	return Summary{
		SessionID:           s.sessionID,
		IsActive:            s.isActive,
		IsCompleted:         s.isCompleted,
		Phase:               s.phase,
		TimeElapsedSeconds:  s.timeElapsed,
		TotalActions:        s.totalActions,
		ObedientActions:     s.obedientActions,
		MetaActions:         s.metaActions,
		HesitationEvents:    s.hesitationEvents,
		CorruptionIncidents: s.corruptionIncidents,
		ObedienceRate:       rate,
		EndingType:          s.endingType,
	}
}
