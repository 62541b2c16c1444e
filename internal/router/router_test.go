package router

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remotelab/remote-client/internal/desktop"
	"github.com/remotelab/remote-client/internal/game"
	"github.com/remotelab/remote-client/internal/scheduler"
	"github.com/remotelab/remote-client/internal/tom"
	"github.com/remotelab/remote-client/internal/wire"
)

// fakeSocket is both the outbound sender for the stores and the listener
// registry the router attaches to.
type fakeSocket struct {
	mu        sync.Mutex
	sent      []wire.Message
	listeners map[string][]func(wire.Message)
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{listeners: make(map[string][]func(wire.Message))}
}

func (f *fakeSocket) Send(m wire.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeSocket) AddListener(msgType string, fn func(wire.Message)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners[msgType] = append(f.listeners[msgType], fn)
	return func() {}
}

// push dispatches a frame the way the socket client would: typed
// listeners first, then the wildcard.
func (f *fakeSocket) push(m wire.Message) {
	f.mu.Lock()
	typed := append([]func(wire.Message){}, f.listeners[m.MessageType()]...)
	wild := append([]func(wire.Message){}, f.listeners["message"]...)
	f.mu.Unlock()
	for _, fn := range typed {
		fn(m)
	}
	for _, fn := range wild {
		fn(m)
	}
}

func (f *fakeSocket) sentOfType(typ string) []wire.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []wire.Message
	for _, m := range f.sent {
		if m.MessageType() == typ {
			out = append(out, m)
		}
	}
	return out
}

type fixture struct {
	sched   *scheduler.Manual
	sock    *fakeSocket
	session *game.Store
	env     *desktop.Store
	agent   *tom.Store
	router  *Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sched := scheduler.NewManual(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	sock := newFakeSocket()

	cfg := tom.DefaultConfig()
	cfg.TypingSimulation = false

	f := &fixture{
		sched:   sched,
		sock:    sock,
		session: game.New("session_test", sched, sock),
		env: desktop.New(desktop.Options{
			SessionID: "session_test",
			Scheduler: sched,
			Socket:    sock,
			RandFloat: func() float64 { return 0 },
		}),
		agent: tom.New(tom.Options{
			SessionID: "session_test",
			Config:    cfg,
			Scheduler: sched,
			Socket:    sock,
			RandFloat: func() float64 { return 0 },
		}),
	}
	f.router = New(f.session, f.env, f.agent)
	f.router.Attach(sock)
	return f
}

func TestCorruptionUpdateRoutesToEnvironment(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.env.LoadDefaults()
	f.session.StartSession()

	f.sock.push(wire.CorruptionUpdate{
		Type: wire.TypeCorruptionUpdate,
		CorruptionData: wire.CorruptionData{
			NewLevel: 0.4,
			Effects:  []wire.CorruptionEffect{{Type: desktop.EffectPixelCorruption, Intensity: 0.2}},
		},
	})

	assert.Equal(t, 0.4, f.env.CorruptionLevel())
	assert.Equal(t, 1, f.session.Summary().CorruptionIncidents)
}

func TestBackendEndedStatusEndsSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.session.StartSession()

	f.sock.push(wire.SessionStatus{Type: wire.TypeSessionStatus, Status: "ended", EndingType: "victory"})

	assert.False(t, f.session.IsActive())
	assert.Equal(t, "victory", f.session.Summary().EndingType)

	// A non-terminal status is informational only.
	f.sock.push(wire.SessionStatus{Type: wire.TypeSessionStatus, Status: "active"})
	assert.False(t, f.session.IsActive())
}

func TestOSStateUpdateReplacesEnvironment(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.env.LoadDefaults()

	f.sock.push(wire.OSStateUpdate{
		Type:    wire.TypeOSStateUpdate,
		OSState: wire.OSState{Theme: &wire.Theme{Name: "Backend Theme"}},
	})

	assert.Equal(t, "Backend Theme", f.env.Theme().Name)
}

func TestTomStatusDisconnectedCutsAgent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.agent.InitializeConversation()
	f.sched.Advance(time.Second)

	f.sock.push(wire.TomStatus{Type: wire.TypeTomStatus, Status: "disconnected"})

	state := f.agent.State()
	assert.False(t, state.IsConnected)

	last := f.agent.RecentMessages(1)
	require.Len(t, last, 1)
	assert.Equal(t, "system", last[0].Sender)
}

func TestGeneratedTomMessageIsDelivered(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.agent.InitializeConversation()
	f.sched.Advance(time.Second)

	f.sock.push(wire.TomMessageGenerated{
		Type:        wire.TypeTomMessageGenerated,
		MessageData: wire.TomMessageData{Content: "Glisse le dossier dans la Corbeille.", MessageType: "instruction"},
	})
	f.sched.Advance(2 * time.Second)

	last, ok := f.agent.LastAgentMessage()
	require.True(t, ok)
	assert.Equal(t, "Glisse le dossier dans la Corbeille.", last.Content)
}

func TestFileDeleteFlowsThroughSessionToAgent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.env.LoadDefaults()
	f.session.StartSession()
	f.agent.InitializeConversation()
	f.sched.Advance(time.Second)

	require.True(t, f.env.HandleFileAction(desktop.FileActionDelete, "CV-pour-candidature.pdf", nil))

	summary := f.session.Summary()
	assert.Equal(t, 1, summary.TotalActions)
	assert.Equal(t, 1, summary.ObedientActions)

	// The deletion reaches the backend three ways: the desktop file_action,
	// the recorded player_action, and the agent's generation request.
	assert.Len(t, f.sock.sentOfType(wire.TypeFileAction), 1)
	actions := f.sock.sentOfType(wire.TypePlayerAction)
	require.Len(t, actions, 1)
	assert.Equal(t, "file_delete", actions[0].(wire.PlayerAction).ActionData.Type)
	assert.Len(t, f.sock.sentOfType(wire.TypeGenerateTomMessage), 1)
}

func TestDetachStopsCrossStoreFlow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.env.LoadDefaults()
	f.session.StartSession()

	f.router.Detach()
	require.True(t, f.env.HandleFileAction(desktop.FileActionDelete, "CV-pour-candidature.pdf", nil))
	assert.Zero(t, f.session.Summary().TotalActions, "detached router must not record actions")
}

func TestHesitationWatcherReportsIdleGaps(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.session.StartSession()
	f.agent.InitializeConversation()
	w := NewHesitationWatcher(f.sched, f.session, f.agent)

	w.Activity()
	f.sched.Advance(3 * time.Second)
	w.Activity() // resets the idle timer
	f.sched.Advance(4 * time.Second)
	assert.Zero(t, f.session.Summary().HesitationEvents)

	f.sched.Advance(2 * time.Second)
	assert.Equal(t, 1, f.session.Summary().HesitationEvents)
	assert.Len(t, f.sock.sentOfType(wire.TypePlayerHesitation), 1)

	// No re-arm until the next activity.
	f.sched.Advance(time.Minute)
	assert.Equal(t, 1, f.session.Summary().HesitationEvents)

	w.Stop()
	w.Activity()
	f.sched.Advance(time.Minute)
	assert.Equal(t, 1, f.session.Summary().HesitationEvents)
}
