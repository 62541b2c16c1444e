package socket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/goleak"

	"github.com/remotelab/remote-client/internal/wire"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// testServer accepts WebSocket connections and records every text frame.
type testServer struct {
	srv   *httptest.Server
	mu    sync.Mutex
	conns []*websocket.Conn
	recv  chan []byte
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{recv: make(chan []byte, 64)}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
		if err != nil {
			return
		}
		ts.mu.Lock()
		ts.conns = append(ts.conns, conn)
		ts.mu.Unlock()
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			ts.recv <- data
		}
	}))
	t.Cleanup(ts.close)
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http")
}

func (ts *testServer) push(t *testing.T, frame string) {
	t.Helper()
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if len(ts.conns) == 0 {
		t.Fatal("no server-side connection to push on")
	}
	conn := ts.conns[len(ts.conns)-1]
	if err := conn.Write(context.Background(), websocket.MessageText, []byte(frame)); err != nil {
		t.Fatalf("server push failed: %v", err)
	}
}

func (ts *testServer) close() {
	ts.mu.Lock()
	for _, conn := range ts.conns {
		_ = conn.Close(websocket.StatusNormalClosure, "test over")
	}
	ts.conns = nil
	ts.mu.Unlock()
	ts.srv.Close()
}

func waitFrame(t *testing.T, ts *testServer) map[string]any {
	t.Helper()
	select {
	case data := <-ts.recv:
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("server received invalid JSON: %v", err)
		}
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame at server")
		return nil
	}
}

func TestConnectSendsImmediately(t *testing.T) {
	ts := newTestServer(t)
	c := New(Options{BaseURL: ts.wsURL()})
	defer func() { _ = c.Close() }()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !c.State().Connected {
		t.Fatal("expected connected state")
	}

	err := c.Send(wire.SessionInit{Type: wire.TypeSessionInit, SessionID: "s1", Timestamp: "now"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	frame := waitFrame(t, ts)
	if frame["type"] != wire.TypeSessionInit || frame["session_id"] != "s1" {
		t.Fatalf("unexpected frame: %v", frame)
	}
	if got := c.State().Stats.MessagesSent; got != 1 {
		t.Fatalf("MessagesSent = %d, want 1", got)
	}
}

func TestConnectIsIdempotentWhileInFlight(t *testing.T) {
	ts := newTestServer(t)
	c := New(Options{BaseURL: ts.wsURL()})
	defer func() { _ = c.Close() }()

	var dials int
	var dialMu sync.Mutex
	release := make(chan struct{})
	realDial := c.dial
	c.dial = func(ctx context.Context, url string) (*websocket.Conn, error) {
		dialMu.Lock()
		dials++
		dialMu.Unlock()
		<-release
		return realDial(ctx, url)
	}

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Connect(context.Background())
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Connect %d failed: %v", i, err)
		}
	}
	dialMu.Lock()
	defer dialMu.Unlock()
	if dials != 1 {
		t.Fatalf("concurrent Connect calls dialed %d times, want 1", dials)
	}
}

func TestOfflineQueueFlushedInOrder(t *testing.T) {
	ts := newTestServer(t)
	c := New(Options{BaseURL: ts.wsURL(), ReconnectBaseDelay: 5 * time.Millisecond})
	defer func() { _ = c.Close() }()

	// First dial fails so the sends below are queued; the retry succeeds.
	realDial := c.dial
	var dialMu sync.Mutex
	failures := 1
	c.dial = func(ctx context.Context, url string) (*websocket.Conn, error) {
		dialMu.Lock()
		fail := failures > 0
		if fail {
			failures--
		}
		dialMu.Unlock()
		if fail {
			return nil, errors.New("connection refused")
		}
		return realDial(ctx, url)
	}

	for _, target := range []string{"A", "B", "C"} {
		err := c.Send(wire.FileAction{
			Type: wire.TypeFileAction, SessionID: "s1",
			Action: "delete", Target: target, Timestamp: "now",
		})
		if err != nil {
			t.Fatalf("Send(%s) failed: %v", target, err)
		}
	}

	var got []string
	for range 3 {
		frame := waitFrame(t, ts)
		got = append(got, frame["target"].(string))
	}
	if got[0] != "A" || got[1] != "B" || got[2] != "C" {
		t.Fatalf("flush order = %v, want [A B C]", got)
	}
	if c.State().QueueSize != 0 {
		t.Fatalf("queue not drained: %d", c.State().QueueSize)
	}
	if c.State().ReconnectAttempts != 0 {
		t.Fatalf("attempt counter not reset after successful connect: %d", c.State().ReconnectAttempts)
	}
}

func TestDispatchTypeListenersBeforeWildcard(t *testing.T) {
	ts := newTestServer(t)
	c := New(Options{BaseURL: ts.wsURL()})
	defer func() { _ = c.Close() }()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	var mu sync.Mutex
	var order []string
	done := make(chan struct{}, 4)
	c.AddListener(wire.TypeTomStatus, func(m wire.Message) {
		mu.Lock()
		order = append(order, "typed:"+m.MessageType())
		mu.Unlock()
		done <- struct{}{}
	})
	c.AddListener(WildcardType, func(m wire.Message) {
		mu.Lock()
		order = append(order, "wildcard:"+m.MessageType())
		mu.Unlock()
		done <- struct{}{}
	})

	ts.push(t, `{"type":"tom_status","status":"disconnected"}`)
	ts.push(t, `{"type":"pong"}`)

	for range 3 {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for dispatch")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"typed:tom_status", "wildcard:tom_status", "wildcard:pong"}
	if len(order) != len(want) {
		t.Fatalf("dispatch order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("dispatch order = %v, want %v", order, want)
		}
	}
}

func TestMalformedFrameIsDroppedNotFatal(t *testing.T) {
	ts := newTestServer(t)
	c := New(Options{BaseURL: ts.wsURL()})
	defer func() { _ = c.Close() }()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	got := make(chan wire.Message, 1)
	c.AddListener(wire.TypeCorruptionUpdate, func(m wire.Message) { got <- m })

	ts.push(t, `this is not json`)
	ts.push(t, `{"type":"no_such_thing"}`)
	ts.push(t, `{"type":"corruption_update","corruption_data":{"new_level":0.3,"effects":[]}}`)

	select {
	case m := <-got:
		cu := m.(wire.CorruptionUpdate)
		if cu.CorruptionData.NewLevel != 0.3 {
			t.Fatalf("unexpected corruption level: %v", cu.CorruptionData.NewLevel)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("valid frame after malformed ones was not dispatched")
	}
	if got := c.State().Stats.MessagesReceived; got != 1 {
		t.Fatalf("MessagesReceived = %d, want 1 (malformed frames must not count)", got)
	}
}

func TestRetryBudgetExhaustionIsTerminal(t *testing.T) {
	c := New(Options{
		BaseURL:              "ws://127.0.0.1:1",
		MaxReconnectAttempts: 3,
		ReconnectBaseDelay:   time.Millisecond,
	})
	defer func() { _ = c.Close() }()
	c.dial = func(ctx context.Context, url string) (*websocket.Conn, error) {
		return nil, errors.New("connection refused")
	}

	err := c.Connect(context.Background())
	if !errors.Is(err, ErrReconnectBudgetExhausted) {
		t.Fatalf("Connect error = %v, want ErrReconnectBudgetExhausted", err)
	}
	if !c.State().Terminal {
		t.Fatal("expected terminal state")
	}
	// Further Connect calls fail fast without new attempts.
	if err := c.Connect(context.Background()); !errors.Is(err, ErrReconnectBudgetExhausted) {
		t.Fatalf("second Connect error = %v", err)
	}
}

func TestBackoffDelaysAreNonDecreasingAndCapped(t *testing.T) {
	t.Parallel()

	base := time.Second
	var prev time.Duration
	for attempt := 1; attempt <= 12; attempt++ {
		d := backoffDelay(base, attempt)
		if d < prev {
			t.Fatalf("delay decreased at attempt %d: %v < %v", attempt, d, prev)
		}
		if d > 30*time.Second {
			t.Fatalf("delay exceeds cap at attempt %d: %v", attempt, d)
		}
		prev = d
	}
	if got := backoffDelay(base, 1); got != time.Second {
		t.Fatalf("first delay = %v, want 1s", got)
	}
	if got := backoffDelay(base, 3); got != 4*time.Second {
		t.Fatalf("third delay = %v, want 4s", got)
	}
	if got := backoffDelay(base, 10); got != 30*time.Second {
		t.Fatalf("tenth delay = %v, want 30s cap", got)
	}
}

func TestCloseIsIdempotentAndStopsReconnects(t *testing.T) {
	ts := newTestServer(t)
	c := New(Options{BaseURL: ts.wsURL()})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if err := c.Send(wire.Pong{Type: wire.TypePong}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send after Close = %v, want ErrClosed", err)
	}
	if err := c.Connect(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Connect after Close = %v, want ErrClosed", err)
	}
}
