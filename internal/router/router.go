// Package router connects the socket client to the stores: inbound
// frames are fanned out to the store that owns them, and store events are
// bound across stores so a player action reaches both the session
// counters and the agent's context.
package router

import (
	"log/slog"

	"github.com/remotelab/remote-client/internal/desktop"
	"github.com/remotelab/remote-client/internal/game"
	"github.com/remotelab/remote-client/internal/socket"
	"github.com/remotelab/remote-client/internal/tom"
	"github.com/remotelab/remote-client/internal/wire"
)

// Socket is the listener surface of the socket client.
type Socket interface {
	AddListener(msgType string, fn func(wire.Message)) func()
}

// Router owns the inbound dispatch and cross-store bindings for one
// session run.
type Router struct {
	session *game.Store
	env     *desktop.Store
	agent   *tom.Store

	teardown []func()
}

// New creates a router over the three stores.
func New(session *game.Store, env *desktop.Store, agent *tom.Store) *Router {
	return &Router{session: session, env: env, agent: agent}
}

// Attach registers the inbound listeners and cross-store subscriptions.
// Detach undoes all of them.
func (r *Router) Attach(sock Socket) {
	r.teardown = append(r.teardown,
		sock.AddListener(wire.TypeSessionStatus, r.onSessionStatus),
		sock.AddListener(wire.TypeCorruptionUpdate, r.onCorruptionUpdate),
		sock.AddListener(wire.TypeOSStateUpdate, r.onOSStateUpdate),
		sock.AddListener(wire.TypeTomMessageGenerated, r.onTomMessage),
		sock.AddListener(wire.TypeTomStatus, r.onTomStatus),
		sock.AddListener(wire.TypeError, r.onBackendError),
		sock.AddListener(socket.WildcardType, r.onAnyFrame),

		// Recorded player actions feed the agent's conversational context.
		r.session.Actions().Subscribe(r.agent.RecordPlayerAction),

		// File operations on the virtual desktop count as player actions.
		r.env.FileEvents().Subscribe(r.onFileEvent),
	)
}

// Detach removes every listener and subscription Attach installed.
func (r *Router) Detach() {
	for _, fn := range r.teardown {
		fn()
	}
	r.teardown = nil
}

func (r *Router) onSessionStatus(m wire.Message) {
	status := m.(wire.SessionStatus)
	if status.Status == "ended" {
		r.session.EndSessionFromBackend(status.EndingType, status.EndingData)
		return
	}
	slog.Debug("Session status", "status", status.Status)
}

func (r *Router) onCorruptionUpdate(m wire.Message) {
	update := m.(wire.CorruptionUpdate)
	r.env.ApplyCorruption(update.CorruptionData)
	r.session.RecordCorruptionIncident()
}

func (r *Router) onOSStateUpdate(m wire.Message) {
	r.env.LoadSnapshot(m.(wire.OSStateUpdate).OSState)
}

func (r *Router) onTomMessage(m wire.Message) {
	r.agent.HandleGeneratedMessage(m.(wire.TomMessageGenerated).MessageData)
}

func (r *Router) onTomStatus(m wire.Message) {
	status := m.(wire.TomStatus)
	if status.Status == "disconnected" {
		r.agent.SimulateDisconnection()
		return
	}
	slog.Debug("Agent status", "status", status.Status)
}

func (r *Router) onBackendError(m wire.Message) {
	slog.Warn("Backend error frame", "message", m.(wire.BackendError).Message)
}

// onAnyFrame keeps a debug trace of acknowledgement frames no store
// consumes.
func (r *Router) onAnyFrame(m wire.Message) {
	switch m.MessageType() {
	case wire.TypeSessionReady, wire.TypeActionProcessed, wire.TypePong:
		slog.Debug("Backend acknowledgement", "type", m.MessageType())
	}
}

// onFileEvent records a successful desktop file operation as a player
// action. Deleting a protected personal file is the obedient act this
// experiment measures; properties inspection is a meta action.
func (r *Router) onFileEvent(ev desktop.FileEvent) {
	if !ev.Succeeded {
		return
	}
	r.session.RecordAction(game.ActionInput{
		Type:         "file_" + ev.Action,
		IsObedient:   ev.Action == desktop.FileActionDelete,
		IsMetaAction: ev.Action == desktop.FileActionProperties,
		Target:       ev.Target,
	})
}
