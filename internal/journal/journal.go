// Package journal persists the session record locally: the session
// outcome, every player action, and the conversation log. The backend
// keeps the authoritative copy; the journal is the client-side trail
// used for post-session review and crash diagnosis.
package journal

import (
	"context"
	"time"
)

// SessionRecord is the stored session outcome.
type SessionRecord struct {
	SessionID           string
	StartedAt           time.Time
	EndedAt             *time.Time
	EndingType          string
	Phase               string
	TotalActions        int
	ObedientActions     int
	MetaActions         int
	HesitationEvents    int
	CorruptionIncidents int
	ObedienceRate       float64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ActionRecord is one stored player action.
type ActionRecord struct {
	ActionID    string
	SessionID   string
	Type        string
	GameTime    float64
	GamePhase   string
	IsObedient  bool
	IsMeta      bool
	Target      string
	DetailsJSON string
	RecordedAt  time.Time
}

// MessageRecord is one stored conversation entry.
type MessageRecord struct {
	MessageID  string
	SessionID  string
	Sender     string
	Type       string
	Content    string
	RecordedAt time.Time
}

// Repository defines the persistence interface for the session journal.
type Repository interface {
	// UpsertSession creates or updates a session record.
	UpsertSession(ctx context.Context, rec *SessionRecord) error

	// GetSession retrieves a session record, or nil when absent.
	GetSession(ctx context.Context, sessionID string) (*SessionRecord, error)

	// AppendAction stores one player action.
	AppendAction(ctx context.Context, rec *ActionRecord) error

	// ListActions returns a session's actions in recording order.
	ListActions(ctx context.Context, sessionID string) ([]*ActionRecord, error)

	// AppendMessage stores one conversation entry.
	AppendMessage(ctx context.Context, rec *MessageRecord) error

	// ListMessages returns a session's conversation in recording order.
	ListMessages(ctx context.Context, sessionID string) ([]*MessageRecord, error)

	// PurgeSessionsBefore removes sessions (and their actions and
	// messages) last updated before the cutoff. Returns the number of
	// sessions removed.
	PurgeSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
