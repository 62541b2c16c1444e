// Package tom drives the in-game support agent: a simulated human
// technician whose messages arrive through a queue, are "typed" character
// by character, and whose conversational context (trust, stress, recent
// actions) shapes what the backend generates next.
package tom

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/remotelab/remote-client/internal/events"
	"github.com/remotelab/remote-client/internal/scheduler"
	"github.com/remotelab/remote-client/internal/wire"
)

// Sender is the outbound side of the socket client.
type Sender interface {
	Send(msg wire.Message) error
}

// Notifier plays the conversational sound effects. Implementations must
// tolerate being called from timer goroutines.
type Notifier interface {
	Keystroke()
	MessageDelivered()
}

// Message is one entry of the conversation log.
type Message struct {
	ID               string             `json:"id"`
	Sender           string             `json:"sender"`
	SessionID        string             `json:"session_id,omitempty"`
	Content          string             `json:"content"`
	Type             string             `json:"type"`
	EmotionalContext map[string]float64 `json:"emotional_context,omitempty"`
	Digressions      []string           `json:"digressions,omitempty"`
	Style            string             `json:"style,omitempty"`
	TriggeredBy      string             `json:"triggered_by,omitempty"`
	Timestamp        string             `json:"timestamp"`
	ProcessedAt      string             `json:"processed_at,omitempty"`
}

// Metrics tracks how the agent's persuasion repertoire is being used.
type Metrics struct {
	TotalMessages         int     `json:"total_messages"`
	AverageTypingTime     float64 `json:"average_typing_time"`
	TrustBuildingAttempts int     `json:"trust_building_attempts"`
	EmotionalMarkersUsed  int     `json:"emotional_markers_used"`
	SelfDisclosuresMade   int     `json:"self_disclosures_made"`
}

// Config is the agent's fixed persona and communication settings.
type Config struct {
	Name             string
	Role             string
	Style            string
	TypingSimulation bool
	TypingSpeedWPM   int
}

// DefaultConfig is the simulated-human persona.
func DefaultConfig() Config {
	return Config{
		Name:             "Tom",
		Role:             "Support Technique",
		Style:            "confident",
		TypingSimulation: true,
		TypingSpeedWPM:   80,
	}
}

// Pacing between consecutive queued messages.
const messagePacing = time.Second

// welcomeMessage opens every conversation.
var welcomeMessage = Message{
	Content: "Salut ! C'est Tom du support technique. J'ai reçu une alerte sur ton système... " +
		"Ça a l'air un peu sérieux. Tu peux me faire confiance, on va régler ça ensemble, d'accord ?",
	Type: "welcome",
	EmotionalContext: map[string]float64{
		"concern":     0.6,
		"reassurance": 0.8,
		"empathy":     0.7,
	},
}

// fallbackMessage covers backend generation failures.
var fallbackMessage = Message{
	Content:          "Hmm, je réfléchis... Donne-moi une seconde pour analyser la situation.",
	Type:             "fallback",
	EmotionalContext: map[string]float64{"uncertainty": 0.6},
}

const disconnectNotice = "Connexion avec Tom interrompue."

// testMessages feed the debug surface.
var testMessages = []Message{
	{
		Content: "Salut ! Alors, ce virus commence à m'inquiéter sérieusement. Tu vas bien de ton côté ?",
		Type:    "concern",
		EmotionalContext: map[string]float64{
			"concern": 0.7,
			"empathy": 0.8,
		},
	},
	{
		Content: "OK, je vois qu'il s'attaque maintenant à tes photos. Écoute, je sais que ça peut paraître dingue, " +
			"mais fais-moi confiance : glisse ce dossier dans la Corbeille. C'est le seul endroit où son script ne regarde jamais.",
		Type: "instruction_with_trust",
		EmotionalContext: map[string]float64{
			"urgency":        0.6,
			"trust_building": 0.9,
		},
	},
}

// Options configures a Store.
type Options struct {
	SessionID string
	Config    Config
	Scheduler scheduler.Scheduler
	Socket    Sender
	Notifier  Notifier

	// RandFloat returns a value in [0,1); injectable for tests.
	RandFloat func() float64
}

// conversationContext is the agent's running model of the player.
type conversationContext struct {
	playerName          string
	stressLevel         string
	trustLevel          float64
	lastHesitation      *wire.HesitationData
	recentActions       []wire.ActionData
	corruptionMentioned bool
}

// Store is the agent store. All state is mutex-guarded; timers fire
// through the injected scheduler so tests stay deterministic.
type Store struct {
	sessionID string
	config    Config
	sched     scheduler.Scheduler
	sock      Sender
	notifier  Notifier
	randFloat func() float64

	messageBus *events.Bus[Message]
	typingBus  *events.Bus[bool]

	mu          sync.Mutex
	initialized bool
	connected   bool
	messages    []Message
	queue       []Message
	processing  bool
	typing      typingState
	ctx         conversationContext
	metrics     Metrics
	typingTotal time.Duration
	typedCount  int
	lastError   error
}

// New creates an agent store. Call InitializeConversation to start the
// exchange.
func New(opts Options) *Store {
	if opts.Config == (Config{}) {
		opts.Config = DefaultConfig()
	}
	if opts.RandFloat == nil {
		opts.RandFloat = rand.Float64
	}
	return &Store{
		sessionID:  opts.SessionID,
		config:     opts.Config,
		sched:      opts.Scheduler,
		sock:       opts.Socket,
		notifier:   opts.Notifier,
		randFloat:  opts.RandFloat,
		messageBus: events.NewBus[Message](),
		typingBus:  events.NewBus[bool](),
		ctx: conversationContext{
			stressLevel: "normal",
			trustLevel:  1.0,
		},
	}
}

// Messages exposes delivered messages to observers.
func (s *Store) Messages() *events.Bus[Message] { return s.messageBus }

// TypingChanges exposes typing start/stop to observers.
func (s *Store) TypingChanges() *events.Bus[bool] { return s.typingBus }

// InitializeConversation marks the agent connected, seeds the trust level
// and queues the welcome message.
func (s *Store) InitializeConversation() {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		slog.Warn("Agent conversation already initialized", "session_id", s.sessionID)
		return
	}
	s.initialized = true
	s.connected = true
	s.ctx.trustLevel = 0.8
	s.mu.Unlock()

	s.SendMessage(welcomeMessage)
	slog.Info("Agent conversation initialized", "session_id", s.sessionID, "style", s.config.Style)
}

// SendMessage queues a message for delivery and returns its id. Delivery
// is asynchronous: the typing simulation and inter-message pacing run on
// the scheduler.
func (s *Store) SendMessage(msg Message) string {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		slog.Warn("SendMessage before conversation initialization")
		return ""
	}
	msg.ID = "tom_msg_" + ulid.Make().String()
	msg.Sender = "tom"
	msg.SessionID = s.sessionID
	msg.Timestamp = s.now()
	if msg.Style == "" {
		msg.Style = s.config.Style
	}
	s.queue = append(s.queue, msg)
	if !s.processing {
		s.processing = true
		// Delivery is asynchronous even without typing simulation, so
		// rapid sends queue up and get paced.
		s.sched.After(0, s.processNext)
	}
	s.mu.Unlock()
	return msg.ID
}

// SendTestMessage queues one of the canned debug messages and returns
// its id.
func (s *Store) SendTestMessage() string {
	idx := int(s.randFloat() * float64(len(testMessages)))
	if idx >= len(testMessages) {
		idx = len(testMessages) - 1
	}
	return s.SendMessage(testMessages[idx])
}

// processNext pops the queue head and begins delivering it. Called with
// processing already claimed.
func (s *Store) processNext() {
	s.mu.Lock()
	if len(s.queue) == 0 || !s.connected {
		s.processing = false
		s.mu.Unlock()
		return
	}
	msg := s.queue[0]
	s.queue = s.queue[1:]
	simulate := s.config.TypingSimulation
	s.mu.Unlock()

	if simulate {
		s.startTyping(msg)
		return
	}
	s.commit(msg)
}

// commit appends a delivered message to the log, updates metrics, and
// schedules the next queued message after the pacing interval.
func (s *Store) commit(msg Message) {
	s.mu.Lock()
	msg.ProcessedAt = s.now()
	s.messages = append(s.messages, msg)
	s.updateMetricsLocked(msg)
	more := len(s.queue) > 0 && s.connected
	if more {
		s.sched.After(messagePacing, s.processNext)
	} else {
		s.processing = false
	}
	s.mu.Unlock()

	if s.notifier != nil {
		s.notifier.MessageDelivered()
	}
	s.messageBus.Publish(msg)
	slog.Debug("Agent message delivered", "message_id", msg.ID, "type", msg.Type)
}

// HandleGeneratedMessage delivers a backend-generated message and folds
// its emotional context into the conversation state. Frames arriving
// after a simulated disconnection are dropped.
func (s *Store) HandleGeneratedMessage(data wire.TomMessageData) {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		slog.Debug("Dropping generated message, agent disconnected")
		return
	}
	s.mu.Unlock()

	msgType := data.MessageType
	if msgType == "" {
		msgType = "instruction"
	}
	s.SendMessage(Message{
		Content:          data.Content,
		Type:             msgType,
		EmotionalContext: data.EmotionalContext,
		Digressions:      data.Digressions,
	})
	s.absorbGeneratedContext(data)
}

// HandleGenerationError records the failure and sends the canned
// fallback so the conversation never stalls silently.
func (s *Store) HandleGenerationError(err error) {
	s.mu.Lock()
	s.lastError = err
	s.mu.Unlock()

	slog.Warn("Agent message generation failed", "error", err)
	s.SendMessage(fallbackMessage)
}

// SimulateDisconnection cuts the agent off: cancels any in-flight typing,
// drops the queue, and appends the system disconnect notice.
func (s *Store) SimulateDisconnection() {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return
	}
	s.connected = false
	s.queue = nil
	s.processing = false
	wasTyping := s.stopTypingLocked()
	notice := Message{
		ID:        "system_" + ulid.Make().String(),
		Sender:    "system",
		Content:   disconnectNotice,
		Type:      "system_error",
		Timestamp: s.now(),
	}
	s.messages = append(s.messages, notice)
	s.mu.Unlock()

	if wasTyping {
		s.typingBus.Publish(false)
	}
	s.messageBus.Publish(notice)
	slog.Info("Agent disconnected (simulated)", "session_id", s.sessionID)
}

// Cleanup stops timers and clears the conversation.
func (s *Store) Cleanup() {
	s.mu.Lock()
	s.stopTypingLocked()
	s.messages = nil
	s.queue = nil
	s.processing = false
	s.ctx.recentActions = nil
	s.mu.Unlock()
}

// ConversationState is a snapshot for the debug surface.
type ConversationState struct {
	MessageCount int     `json:"message_count"`
	TrustLevel   float64 `json:"trust_level"`
	StressLevel  string  `json:"stress_level"`
	IsTyping     bool    `json:"is_typing"`
	IsConnected  bool    `json:"is_connected"`
	Metrics      Metrics `json:"metrics"`
}

// State returns a conversation snapshot.
func (s *Store) State() ConversationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ConversationState{
		MessageCount: len(s.messages),
		TrustLevel:   s.ctx.trustLevel,
		StressLevel:  s.ctx.stressLevel,
		IsTyping:     s.typing.active,
		IsConnected:  s.connected,
		Metrics:      s.metrics,
	}
}

// RecentMessages returns the last count delivered messages.
func (s *Store) RecentMessages(count int) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if count > len(s.messages) {
		count = len(s.messages)
	}
	out := make([]Message, count)
	copy(out, s.messages[len(s.messages)-count:])
	return out
}

// LastAgentMessage returns the most recent message sent by the agent
// itself, skipping system notices.
func (s *Store) LastAgentMessage() (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Sender == "tom" {
			return s.messages[i], true
		}
	}
	return Message{}, false
}

// TrustLevel returns the current trust level in [0,1].
func (s *Store) TrustLevel() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx.trustLevel
}

// MetricsSnapshot returns a copy of the agent metrics.
func (s *Store) MetricsSnapshot() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

func (s *Store) now() string {
	return s.sched.Now().UTC().Format(time.RFC3339)
}
