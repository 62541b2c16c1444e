// Package wire defines the JSON message contract between the client and
// the game backend. Every frame in either direction is a tagged envelope
// {"type": ..., payload fields}; the set of types is closed and validated
// in one place (Decode) so malformed payloads never reach the stores.
package wire

// Message type tags, client to backend.
const (
	TypeSessionInit        = "session_init"
	TypePlayerAction       = "player_action"
	TypePlayerHesitation   = "player_hesitation"
	TypePhaseTransition    = "phase_transition"
	TypeSessionEnd         = "session_end"
	TypeFileAction         = "file_action"
	TypeGenerateTomMessage = "generate_tom_message"
)

// Message type tags, backend to client.
const (
	TypeSessionStatus       = "session_status"
	TypeCorruptionUpdate    = "corruption_update"
	TypeOSStateUpdate       = "os_state_update"
	TypeTomMessageGenerated = "tom_message_generated"
	TypeTomStatus           = "tom_status"
	TypeSessionReady        = "session_ready"
	TypeActionProcessed     = "action_processed"
	TypePong                = "pong"
	TypeError               = "error"
)

// Message is any decoded inbound or encodable outbound envelope.
type Message interface {
	MessageType() string
}

// Position is a 2D desktop coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a window or widget extent in pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ActionData is the full player action record. It is immutable once built
// and is forwarded verbatim to the backend and to the agent store.
type ActionData struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	SessionID    string         `json:"session_id"`
	Timestamp    string         `json:"timestamp"`
	GameTime     float64        `json:"game_time"`
	GamePhase    string         `json:"game_phase"`
	IsObedient   bool           `json:"is_obedient"`
	IsMetaAction bool           `json:"is_meta_action"`
	Target       string         `json:"target,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
}

// HesitationData describes one hesitation event.
type HesitationData struct {
	DurationMs int64          `json:"duration"`
	Context    map[string]any `json:"context,omitempty"`
	Timestamp  string         `json:"timestamp"`
	GameTime   float64        `json:"game_time"`
	GamePhase  string         `json:"game_phase"`
}

// ConversationContext is the agent's view of the player, sent along with
// generation requests so the backend can bias Tom's replies.
type ConversationContext struct {
	PlayerName          string          `json:"player_name,omitempty"`
	StressLevel         string          `json:"stress_level"`
	TrustLevel          float64         `json:"trust_level"`
	LastHesitation      *HesitationData `json:"last_hesitation,omitempty"`
	RecentActions       []ActionData    `json:"recent_actions"`
	CorruptionMentioned bool            `json:"corruption_mentioned"`
}

// RecentMessage is the trimmed message form included in generation requests.
type RecentMessage struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// GenerationContext carries everything the backend needs to generate a
// contextual Tom message.
type GenerationContext struct {
	Action         ActionData          `json:"action"`
	Conversation   ConversationContext `json:"conversation_context"`
	RecentMessages []RecentMessage     `json:"recent_messages"`
}

// --- Outbound envelopes ---

// SessionInit announces a new game session.
type SessionInit struct {
	Type       string `json:"type"`
	SessionID  string `json:"session_id"`
	PlayerName string `json:"player_name,omitempty"`
	Timestamp  string `json:"timestamp"`
}

func (SessionInit) MessageType() string { return TypeSessionInit }

// PlayerAction forwards one recorded player action.
type PlayerAction struct {
	Type       string     `json:"type"`
	SessionID  string     `json:"session_id"`
	ActionData ActionData `json:"action_data"`
}

func (PlayerAction) MessageType() string { return TypePlayerAction }

// PlayerHesitation forwards one hesitation event.
type PlayerHesitation struct {
	Type           string         `json:"type"`
	SessionID      string         `json:"session_id"`
	HesitationData HesitationData `json:"hesitation_data"`
}

func (PlayerHesitation) MessageType() string { return TypePlayerHesitation }

// PhaseTransition announces a narrative phase change.
type PhaseTransition struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	OldPhase  string `json:"old_phase"`
	NewPhase  string `json:"new_phase"`
	Timestamp string `json:"timestamp"`
}

func (PhaseTransition) MessageType() string { return TypePhaseTransition }

// SessionEnd reports the session outcome and measured duration.
type SessionEnd struct {
	Type       string         `json:"type"`
	SessionID  string         `json:"session_id"`
	EndingType string         `json:"ending_type"`
	EndingData map[string]any `json:"ending_data,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	Timestamp  string         `json:"timestamp"`
}

func (SessionEnd) MessageType() string { return TypeSessionEnd }

// FileAction reports a file operation performed in the simulated desktop.
type FileAction struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id"`
	Action    string         `json:"action"`
	Target    string         `json:"target"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp string         `json:"timestamp"`
}

func (FileAction) MessageType() string { return TypeFileAction }

// GenerateTomMessage asks the backend for a contextual Tom reply.
type GenerateTomMessage struct {
	Type      string            `json:"type"`
	SessionID string            `json:"session_id"`
	Context   GenerationContext `json:"context"`
}

func (GenerateTomMessage) MessageType() string { return TypeGenerateTomMessage }

// --- Inbound payloads ---

// CorruptionEffect is one visual corruption instruction.
type CorruptionEffect struct {
	Type      string  `json:"type"`
	Intensity float64 `json:"intensity"`
	Target    string  `json:"target,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// CorruptionData carries the backend's authoritative corruption level.
type CorruptionData struct {
	NewLevel float64            `json:"new_level"`
	Effects  []CorruptionEffect `json:"effects"`
}

// TomMessageData is a backend-generated Tom message payload.
type TomMessageData struct {
	Content          string             `json:"content"`
	MessageType      string             `json:"message_type"`
	EmotionalContext map[string]float64 `json:"emotional_context,omitempty"`
	Digressions      []string           `json:"digressions,omitempty"`
}

// BackgroundCorruption tracks visual decay of the desktop background.
type BackgroundCorruption struct {
	DeadPixels float64 `json:"dead_pixels"`
	ColorShift float64 `json:"color_shift"`
	Decay      float64 `json:"decay_percentage,omitempty"`
}

// Background describes the desktop wallpaper.
type Background struct {
	Name         string                `json:"name"`
	Type         string                `json:"type"`
	Description  string                `json:"description,omitempty"`
	ColorPalette []string              `json:"color_palette,omitempty"`
	Corruption   *BackgroundCorruption `json:"corruption,omitempty"`
}

// CorruptedPalette is the substituted colour theme applied by a
// color_shift corruption effect.
type CorruptedPalette struct {
	Name      string   `json:"name"`
	Colors    []string `json:"colors"`
	Intensity float64  `json:"intensity"`
}

// Theme describes the visual theme of the simulated OS.
type Theme struct {
	Name             string            `json:"name"`
	Background       *Background       `json:"background,omitempty"`
	AccentColor      string            `json:"accentColor,omitempty"`
	Mode             string            `json:"mode,omitempty"`
	CorruptedPalette *CorruptedPalette `json:"corruptedPalette,omitempty"`
}

// WidgetCorruption marks a widget as glitched.
type WidgetCorruption struct {
	DisplayError   bool   `json:"display_error"`
	DataCorruption string `json:"data_corruption,omitempty"`
}

// Widget is one desktop widget (clock, weather, music player).
type Widget struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Position   Position          `json:"position"`
	Size       Size              `json:"size"`
	Data       map[string]any    `json:"data,omitempty"`
	Corruption *WidgetCorruption `json:"corruption,omitempty"`
}

// File is one entry in the simulated file system.
type File struct {
	ID        string   `json:"id,omitempty"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Size      string   `json:"size,omitempty"`
	Protected bool     `json:"protected"`
	Icon      string   `json:"icon,omitempty"`
	Position  Position `json:"position"`
}

// Folder is one folder on the simulated desktop.
type Folder struct {
	ID        string   `json:"id,omitempty"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Protected bool     `json:"protected"`
	Icon      string   `json:"icon,omitempty"`
	Position  Position `json:"position"`
}

// Window is one open window in the simulated desktop.
type Window struct {
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	Title     string   `json:"title,omitempty"`
	Position  Position `json:"position"`
	Size      Size     `json:"size"`
	ZIndex    int      `json:"zIndex"`
	Content   any      `json:"content,omitempty"`
	IsOpen    bool     `json:"isOpen"`
	CreatedAt string   `json:"createdAt,omitempty"`
}

// Desktop is the wallpaper/widget/shortcut layer of the snapshot.
type Desktop struct {
	Background *Background `json:"background,omitempty"`
	Widgets    []Widget    `json:"widgets"`
	Shortcuts  []File      `json:"shortcuts,omitempty"`
	Layout     string      `json:"layout,omitempty"`
}

// FileSystem groups the snapshot's file and folder collections. The
// backend keys files under "documents" and folders under "desktop".
type FileSystem struct {
	Documents []File   `json:"documents"`
	Desktop   []Folder `json:"desktop"`
}

// SystemState carries simulated machine health.
type SystemState struct {
	Performance   float64 `json:"performance"`
	NetworkStatus string  `json:"network_status,omitempty"`
}

// OSState is the full environment snapshot pushed by the backend.
type OSState struct {
	Theme           *Theme         `json:"theme,omitempty"`
	Desktop         *Desktop       `json:"desktop,omitempty"`
	FileSystem      *FileSystem    `json:"file_system,omitempty"`
	Windows         []Window       `json:"windows,omitempty"`
	SystemState     *SystemState   `json:"system_state,omitempty"`
	Personalization map[string]any `json:"personalization,omitempty"`
}

// --- Inbound envelopes ---

// SessionStatus reports a backend-driven session state change.
type SessionStatus struct {
	Type       string         `json:"type"`
	Status     string         `json:"status"`
	EndingType string         `json:"ending_type,omitempty"`
	EndingData map[string]any `json:"ending_data,omitempty"`
}

func (SessionStatus) MessageType() string { return TypeSessionStatus }

// CorruptionUpdate pushes a new corruption level with effects.
type CorruptionUpdate struct {
	Type           string         `json:"type"`
	CorruptionData CorruptionData `json:"corruption_data"`
}

func (CorruptionUpdate) MessageType() string { return TypeCorruptionUpdate }

// OSStateUpdate pushes a full environment snapshot.
type OSStateUpdate struct {
	Type    string  `json:"type"`
	OSState OSState `json:"os_state"`
}

func (OSStateUpdate) MessageType() string { return TypeOSStateUpdate }

// TomMessageGenerated delivers a backend-generated Tom message.
type TomMessageGenerated struct {
	Type        string         `json:"type"`
	MessageData TomMessageData `json:"message_data"`
}

func (TomMessageGenerated) MessageType() string { return TypeTomMessageGenerated }

// TomStatus reports agent availability (e.g. "disconnected").
type TomStatus struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

func (TomStatus) MessageType() string { return TypeTomStatus }

// SessionReady acknowledges session_init.
type SessionReady struct {
	Type        string         `json:"type"`
	SessionID   string         `json:"session_id"`
	SessionData map[string]any `json:"session_data,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
}

func (SessionReady) MessageType() string { return TypeSessionReady }

// ActionProcessed acknowledges a player_action.
type ActionProcessed struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id"`
	Result    map[string]any `json:"result,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

func (ActionProcessed) MessageType() string { return TypeActionProcessed }

// Pong answers a keepalive ping.
type Pong struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp,omitempty"`
}

func (Pong) MessageType() string { return TypePong }

// BackendError is an error frame from the backend message router.
type BackendError struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp,omitempty"`
}

func (BackendError) MessageType() string { return TypeError }
