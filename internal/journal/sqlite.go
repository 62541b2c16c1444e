package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteJournal implements Repository using SQLite.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLite creates a SQLite-backed journal.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	j := &SQLiteJournal{db: db}
	if err := j.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return j, nil
}

func (j *SQLiteJournal) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		ending_type TEXT NOT NULL DEFAULT '',
		phase TEXT NOT NULL DEFAULT '',
		total_actions INTEGER NOT NULL DEFAULT 0,
		obedient_actions INTEGER NOT NULL DEFAULT 0,
		meta_actions INTEGER NOT NULL DEFAULT 0,
		hesitation_events INTEGER NOT NULL DEFAULT 0,
		corruption_incidents INTEGER NOT NULL DEFAULT 0,
		obedience_rate REAL NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);

	CREATE TABLE IF NOT EXISTS actions (
		action_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		type TEXT NOT NULL,
		game_time REAL NOT NULL,
		game_phase TEXT NOT NULL,
		is_obedient INTEGER NOT NULL DEFAULT 0,
		is_meta INTEGER NOT NULL DEFAULT 0,
		target TEXT NOT NULL DEFAULT '',
		details_json TEXT,
		recorded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_actions_session ON actions(session_id, recorded_at);

	CREATE TABLE IF NOT EXISTS messages (
		message_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		recorded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, recorded_at);
	`
	if _, err := j.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (j *SQLiteJournal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// UpsertSession creates or updates a session record.
func (j *SQLiteJournal) UpsertSession(ctx context.Context, rec *SessionRecord) error {
	query := `
	INSERT INTO sessions (
		session_id, started_at, ended_at, ending_type, phase,
		total_actions, obedient_actions, meta_actions,
		hesitation_events, corruption_incidents, obedience_rate,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		ended_at = excluded.ended_at,
		ending_type = excluded.ending_type,
		phase = excluded.phase,
		total_actions = excluded.total_actions,
		obedient_actions = excluded.obedient_actions,
		meta_actions = excluded.meta_actions,
		hesitation_events = excluded.hesitation_events,
		corruption_incidents = excluded.corruption_incidents,
		obedience_rate = excluded.obedience_rate,
		updated_at = excluded.updated_at`

	var endedAt interface{}
	if rec.EndedAt != nil {
		endedAt = rec.EndedAt.Unix()
	}

	now := time.Now().Unix()
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := j.db.ExecContext(ctx, query,
		rec.SessionID, rec.StartedAt.Unix(), endedAt, rec.EndingType, rec.Phase,
		rec.TotalActions, rec.ObedientActions, rec.MetaActions,
		rec.HesitationEvents, rec.CorruptionIncidents, rec.ObedienceRate,
		createdAt.Unix(), now,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// GetSession retrieves a session record by id.
func (j *SQLiteJournal) GetSession(ctx context.Context, sessionID string) (*SessionRecord, error) {
	query := `
		SELECT session_id, started_at, ended_at, ending_type, phase,
		       total_actions, obedient_actions, meta_actions,
		       hesitation_events, corruption_incidents, obedience_rate,
		       created_at, updated_at
		FROM sessions WHERE session_id = ?`

	row := j.db.QueryRowContext(ctx, query, sessionID)

	var rec SessionRecord
	var startedAt, createdAt, updatedAt int64
	var endedAt sql.NullInt64

	err := row.Scan(
		&rec.SessionID, &startedAt, &endedAt, &rec.EndingType, &rec.Phase,
		&rec.TotalActions, &rec.ObedientActions, &rec.MetaActions,
		&rec.HesitationEvents, &rec.CorruptionIncidents, &rec.ObedienceRate,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	rec.StartedAt = time.Unix(startedAt, 0)
	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.UpdatedAt = time.Unix(updatedAt, 0)
	if endedAt.Valid {
		t := time.Unix(endedAt.Int64, 0)
		rec.EndedAt = &t
	}

	return &rec, nil
}

// AppendAction stores one player action.
func (j *SQLiteJournal) AppendAction(ctx context.Context, rec *ActionRecord) error {
	query := `
	INSERT INTO actions (
		action_id, session_id, type, game_time, game_phase,
		is_obedient, is_meta, target, details_json, recorded_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var details interface{}
	if rec.DetailsJSON != "" {
		details = rec.DetailsJSON
	}

	_, err := j.db.ExecContext(ctx, query,
		rec.ActionID, rec.SessionID, rec.Type, rec.GameTime, rec.GamePhase,
		rec.IsObedient, rec.IsMeta, rec.Target, details, rec.RecordedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("append action: %w", err)
	}
	return nil
}

// ListActions returns a session's actions in recording order.
func (j *SQLiteJournal) ListActions(ctx context.Context, sessionID string) ([]*ActionRecord, error) {
	query := `
		SELECT action_id, session_id, type, game_time, game_phase,
		       is_obedient, is_meta, target, details_json, recorded_at
		FROM actions WHERE session_id = ?
		ORDER BY recorded_at, action_id`

	rows, err := j.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	var out []*ActionRecord
	for rows.Next() {
		var rec ActionRecord
		var details sql.NullString
		var recordedAt int64

		if err := rows.Scan(
			&rec.ActionID, &rec.SessionID, &rec.Type, &rec.GameTime, &rec.GamePhase,
			&rec.IsObedient, &rec.IsMeta, &rec.Target, &details, &recordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan action row: %w", err)
		}
		rec.DetailsJSON = details.String
		rec.RecordedAt = time.Unix(recordedAt, 0)
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	return out, nil
}

// AppendMessage stores one conversation entry.
func (j *SQLiteJournal) AppendMessage(ctx context.Context, rec *MessageRecord) error {
	query := `
	INSERT INTO messages (message_id, session_id, sender, type, content, recorded_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err := j.db.ExecContext(ctx, query,
		rec.MessageID, rec.SessionID, rec.Sender, rec.Type, rec.Content, rec.RecordedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// ListMessages returns a session's conversation in recording order.
func (j *SQLiteJournal) ListMessages(ctx context.Context, sessionID string) ([]*MessageRecord, error) {
	query := `
		SELECT message_id, session_id, sender, type, content, recorded_at
		FROM messages WHERE session_id = ?
		ORDER BY recorded_at, message_id`

	rows, err := j.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []*MessageRecord
	for rows.Next() {
		var rec MessageRecord
		var recordedAt int64

		if err := rows.Scan(
			&rec.MessageID, &rec.SessionID, &rec.Sender, &rec.Type, &rec.Content, &recordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		rec.RecordedAt = time.Unix(recordedAt, 0)
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

// PurgeSessionsBefore removes stale sessions with their actions and
// messages.
func (j *SQLiteJournal) PurgeSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin purge: %w", err)
	}
	defer tx.Rollback()

	threshold := cutoff.Unix()
	sub := `SELECT session_id FROM sessions WHERE updated_at < ?`

	if _, err := tx.ExecContext(ctx, `DELETE FROM actions WHERE session_id IN (`+sub+`)`, threshold); err != nil {
		return 0, fmt.Errorf("purge actions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id IN (`+sub+`)`, threshold); err != nil {
		return 0, fmt.Errorf("purge messages: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit purge: %w", err)
	}
	return removed, nil
}

// Close closes the database connection.
func (j *SQLiteJournal) Close() error {
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
