// Package socket implements the reconnecting WebSocket client that carries
// all traffic between the game stores and the backend. One Client owns one
// logical connection: it auto-reconnects with capped exponential backoff,
// queues outbound messages while disconnected, and fans inbound messages
// out to subscribers by message type.
package socket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/remotelab/remote-client/internal/events"
	"github.com/remotelab/remote-client/internal/scheduler"
	"github.com/remotelab/remote-client/internal/wire"
)

// WildcardType subscribes a listener to every inbound message regardless
// of its type tag.
const WildcardType = "message"

const (
	defaultMaxReconnectAttempts = 5
	defaultReconnectBaseDelay   = time.Second
	maxReconnectDelay           = 30 * time.Second
	dialTimeout                 = 10 * time.Second
	writeTimeout                = 5 * time.Second
)

var (
	// ErrClosed is returned once the client has been closed by its owner.
	ErrClosed = errors.New("socket: client closed")

	// ErrReconnectBudgetExhausted is the terminal connection failure
	// surfaced after the maximum reconnect attempts have been used up.
	ErrReconnectBudgetExhausted = errors.New("socket: max reconnection attempts reached")
)

// Connection event statuses published on the client's event bus.
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusFailed       = "failed"
)

// ConnectionEvent describes a connection state change.
type ConnectionEvent struct {
	Status  string
	Code    websocket.StatusCode
	Reason  string
	Attempt int
}

// Stats counts the client's traffic.
type Stats struct {
	MessagesSent     int
	MessagesReceived int
	Reconnections    int
	LastMessageAt    time.Time
}

// State is a snapshot of the client for status surfaces.
type State struct {
	Connected         bool
	ConnectionID      string
	ReconnectAttempts int
	QueueSize         int
	Terminal          bool
	Stats             Stats
}

// Options configures a Client.
type Options struct {
	// BaseURL is the backend WebSocket origin, e.g. "ws://localhost:8000".
	// The connection id is appended to form the dial URL.
	BaseURL string

	// MaxReconnectAttempts bounds the retry budget. Zero means the default.
	MaxReconnectAttempts int

	// ReconnectBaseDelay is the first backoff delay. Zero means the default.
	ReconnectBaseDelay time.Duration

	// Scheduler drives the backoff timers. Nil means the real scheduler.
	Scheduler scheduler.Scheduler
}

type dialFunc func(ctx context.Context, url string) (*websocket.Conn, error)

type listener struct {
	id int
	fn func(wire.Message)
}

type connectAttempt struct {
	done chan struct{}
	err  error
}

// Client is the reconnecting WebSocket client. All methods are safe for
// concurrent use.
type Client struct {
	dialURL    string
	connID     string
	maxRetries int
	baseDelay  time.Duration
	sched      scheduler.Scheduler
	dial       dialFunc
	connBus    *events.Bus[ConnectionEvent]

	mu              sync.Mutex
	conn            *websocket.Conn
	connected       bool
	closed          bool
	terminal        bool
	attempt         *connectAttempt
	attempts        int
	reconnectHandle scheduler.Handle
	queue           []wire.Message
	listeners       map[string][]listener
	nextListenerID  int
	stats           Stats
	readCancel      context.CancelFunc
	wg              sync.WaitGroup
}

// New creates a client for the given backend. It does not connect; call
// Connect, or let the first Send trigger a connection.
func New(opts Options) *Client {
	maxRetries := opts.MaxReconnectAttempts
	if maxRetries <= 0 {
		maxRetries = defaultMaxReconnectAttempts
	}
	baseDelay := opts.ReconnectBaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultReconnectBaseDelay
	}
	sched := opts.Scheduler
	if sched == nil {
		sched = scheduler.NewReal()
	}

	connID := "conn_" + uuid.NewString()
	c := &Client{
		dialURL:    fmt.Sprintf("%s/ws/connect/%s", opts.BaseURL, connID),
		connID:     connID,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		sched:      sched,
		connBus:    events.NewBus[ConnectionEvent](),
		listeners:  make(map[string][]listener),
	}
	c.dial = func(ctx context.Context, url string) (*websocket.Conn, error) {
		conn, _, err := websocket.Dial(ctx, url, nil)
		return conn, err
	}
	return c
}

// ConnectionID returns the client-generated id embedded in the dial URL.
func (c *Client) ConnectionID() string { return c.connID }

// Events exposes connection state changes to subscribers.
func (c *Client) Events() *events.Bus[ConnectionEvent] { return c.connBus }

// Connect opens the connection. It is idempotent: if an attempt is already
// in flight, the caller joins it and observes the same result. The call
// blocks until the connection is established, the retry budget is
// exhausted, or ctx is done. Backoff between attempts happens internally.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	if c.terminal {
		c.mu.Unlock()
		return ErrReconnectBudgetExhausted
	}
	a := c.attempt
	if a == nil {
		a = &connectAttempt{done: make(chan struct{})}
		c.attempt = a
		go c.runAttempt()
	}
	c.mu.Unlock()

	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send transmits a message immediately when connected; otherwise it queues
// the message in FIFO order and triggers a connection attempt. Queued
// messages are flushed in enqueue order once a connection succeeds.
func (c *Client) Send(msg wire.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if !c.connected {
		c.queue = append(c.queue, msg)
		slog.Debug("Message queued while disconnected", "type", msg.MessageType(), "queue_size", len(c.queue))
		c.startAttemptLocked()
		return nil
	}

	if err := c.transmitLocked(msg); err != nil {
		// Keep the message for the next flush rather than losing it.
		c.queue = append(c.queue, msg)
		return err
	}
	return nil
}

// AddListener subscribes fn to inbound messages of the given type, or to
// every message when msgType is WildcardType. The returned function removes
// exactly this subscription.
func (c *Client) AddListener(msgType string, fn func(wire.Message)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextListenerID++
	id := c.nextListenerID
	c.listeners[msgType] = append(c.listeners[msgType], listener{id: id, fn: fn})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		subs := c.listeners[msgType]
		for i, l := range subs {
			if l.id == id {
				c.listeners[msgType] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// State returns a snapshot of the connection.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Connected:         c.connected,
		ConnectionID:      c.connID,
		ReconnectAttempts: c.attempts,
		QueueSize:         len(c.queue),
		Terminal:          c.terminal,
		Stats:             c.stats,
	}
}

// Close shuts the client down with the client-initiated closure code, so
// no reconnect is scheduled. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.reconnectHandle != nil {
		c.reconnectHandle.Stop()
		c.reconnectHandle = nil
	}
	c.finishAttemptLocked(ErrClosed)
	conn := c.conn
	c.conn = nil
	c.connected = false
	if c.readCancel != nil {
		c.readCancel()
	}
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Close(websocket.StatusNormalClosure, "client disconnect"); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}
	c.wg.Wait()
	return nil
}

// startAttemptLocked begins a connection attempt unless one is already in
// flight or the client can no longer connect.
func (c *Client) startAttemptLocked() {
	if c.attempt != nil || c.connected || c.closed || c.terminal {
		return
	}
	c.attempt = &connectAttempt{done: make(chan struct{})}
	go c.runAttempt()
}

func (c *Client) runAttempt() {
	c.mu.Lock()
	if c.closed {
		c.finishAttemptLocked(ErrClosed)
		c.mu.Unlock()
		return
	}
	url := c.dialURL
	dial := c.dial
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	conn, err := dial(ctx, url)
	cancel()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if err == nil {
			_ = conn.Close(websocket.StatusNormalClosure, "client disconnect")
		}
		return
	}
	if err != nil {
		slog.Warn("WebSocket dial failed", "connection_id", c.connID, "error", err)
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		return
	}

	c.conn = conn
	c.connected = true
	if c.attempts > 0 {
		c.stats.Reconnections++
	}
	c.attempts = 0

	readCtx, readCancel := context.WithCancel(context.Background())
	c.readCancel = readCancel
	c.wg.Add(1)
	go c.readLoop(readCtx, conn)

	c.flushLocked()
	c.finishAttemptLocked(nil)
	c.mu.Unlock()

	slog.Info("WebSocket connected", "connection_id", c.connID)
	c.connBus.Publish(ConnectionEvent{Status: StatusConnected})
}

// scheduleReconnectLocked consumes one unit of the retry budget and arms
// the backoff timer, or surfaces the terminal failure when the budget is
// spent. Delays follow min(base * 2^(attempt-1), 30s).
func (c *Client) scheduleReconnectLocked() {
	if c.attempts >= c.maxRetries {
		c.terminal = true
		slog.Error("Max reconnection attempts reached", "connection_id", c.connID, "attempts", c.attempts)
		c.finishAttemptLocked(ErrReconnectBudgetExhausted)
		attempts := c.attempts
		go c.connBus.Publish(ConnectionEvent{Status: StatusFailed, Attempt: attempts})
		return
	}

	c.attempts++
	delay := backoffDelay(c.baseDelay, c.attempts)
	slog.Info("Scheduling reconnect", "connection_id", c.connID, "attempt", c.attempts, "max", c.maxRetries, "delay", delay)

	if c.attempt == nil {
		c.attempt = &connectAttempt{done: make(chan struct{})}
	}
	c.reconnectHandle = c.sched.After(delay, func() {
		c.mu.Lock()
		pending := c.attempt != nil && !c.connected && !c.closed
		c.mu.Unlock()
		if pending {
			c.runAttempt()
		}
	})
}

// backoffDelay computes the reconnect delay for the n-th attempt,
// starting at base and doubling up to the 30s cap.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxReconnectDelay {
			return maxReconnectDelay
		}
	}
	if delay > maxReconnectDelay {
		return maxReconnectDelay
	}
	return delay
}

func (c *Client) finishAttemptLocked(err error) {
	if c.attempt == nil {
		return
	}
	c.attempt.err = err
	close(c.attempt.done)
	c.attempt = nil
}

// flushLocked drains the offline queue in FIFO order. A transmit failure
// puts the message back at the head so ordering is preserved for the next
// flush.
func (c *Client) flushLocked() {
	if len(c.queue) > 0 {
		slog.Info("Flushing queued messages", "count", len(c.queue))
	}
	for len(c.queue) > 0 && c.connected {
		msg := c.queue[0]
		c.queue = c.queue[1:]
		if err := c.transmitLocked(msg); err != nil {
			c.queue = append([]wire.Message{msg}, c.queue...)
			slog.Warn("Flush interrupted", "error", err, "remaining", len(c.queue))
			return
		}
	}
}

func (c *Client) transmitLocked(msg wire.Message) error {
	data, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write %s frame: %w", msg.MessageType(), err)
	}
	c.stats.MessagesSent++
	c.stats.LastMessageAt = c.sched.Now()
	return nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer c.wg.Done()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.handleConnClose(conn, err)
			return
		}
		c.dispatch(data)
	}
}

// dispatch decodes one inbound frame and fans it out: type-specific
// subscribers first, then wildcard subscribers, preserving arrival order
// per subscriber. Malformed frames are logged and dropped.
func (c *Client) dispatch(data []byte) {
	msg, err := wire.Decode(data)
	if err != nil {
		slog.Warn("Dropping malformed inbound frame", "error", err)
		return
	}

	c.mu.Lock()
	c.stats.MessagesReceived++
	c.stats.LastMessageAt = c.sched.Now()
	typed := make([]listener, len(c.listeners[msg.MessageType()]))
	copy(typed, c.listeners[msg.MessageType()])
	wildcard := make([]listener, len(c.listeners[WildcardType]))
	copy(wildcard, c.listeners[WildcardType])
	c.mu.Unlock()

	for _, l := range typed {
		l.fn(msg)
	}
	for _, l := range wildcard {
		l.fn(msg)
	}
}

func (c *Client) handleConnClose(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// A stale loop for a connection that was already replaced.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connected = false
	closed := c.closed
	status := websocket.CloseStatus(err)
	c.mu.Unlock()

	c.connBus.Publish(ConnectionEvent{Status: StatusDisconnected, Code: status, Reason: err.Error()})

	if closed || status == websocket.StatusNormalClosure {
		slog.Debug("WebSocket closed", "connection_id", c.connID, "status", status)
		return
	}

	slog.Warn("WebSocket connection lost", "connection_id", c.connID, "status", status, "error", err)
	c.mu.Lock()
	if !c.closed {
		c.scheduleReconnectLocked()
	}
	c.mu.Unlock()
}
