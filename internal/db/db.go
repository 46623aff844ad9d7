package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"
)

// Process-level event types. Turn events are defined by the session package.
const (
	EventProcessStarted = "process.started"
	EventPing           = "provider.ping"
)

// OpenDB opens (or creates) a SQLite database at the given path, ensuring
// that the parent directory exists.
func OpenDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed to create db directory %s", dir)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db at %s", path)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to ping db at %s", path)
	}

	return db, nil
}

// InitSchema creates all tables: sessions, messages, events.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			persona TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL DEFAULT (unixepoch()),
			updated_at INTEGER NOT NULL DEFAULT (unixepoch())
		);

		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			UNIQUE(session_id, seq)
		);

		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY,
			timestamp INTEGER NOT NULL DEFAULT (unixepoch()),
			session_id TEXT,
			event_type TEXT NOT NULL,
			payload TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_session_id ON events(session_id);
	`)
	return err
}

// LogEvent inserts an event into the events table and returns its auto-generated id.
// sessionID may be empty for process-level events. payload is serialized to JSON;
// nil payload stores NULL.
func LogEvent(ctx context.Context, db *sql.DB, sessionID, eventType string, payload map[string]any) (int64, error) {
	var payloadJSON any
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, errors.Wrap(err, "marshal event payload")
		}
		payloadJSON = string(data)
	}

	var session any
	if sessionID != "" {
		session = sessionID
	}

	res, err := db.ExecContext(ctx,
		`INSERT INTO events (session_id, event_type, payload) VALUES (?, ?, ?)`,
		session, eventType, payloadJSON,
	)
	if err != nil {
		return 0, errors.Wrapf(err, "insert event %s", eventType)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "get event id")
	}
	return id, nil
}

// Event is one row of the events table.
type Event struct {
	ID        int64
	Timestamp int64
	SessionID string
	Type      string
	Payload   map[string]any
}

// ListEvents returns the events of a session in insertion order.
func ListEvents(ctx context.Context, db *sql.DB, sessionID string) ([]Event, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, timestamp, COALESCE(session_id, ''), event_type, payload
		 FROM events WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query events")
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e       Event
			payload sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.SessionID, &e.Type, &payload); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		if payload.Valid {
			if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
				return nil, errors.Wrapf(err, "decode payload of event %d", e.ID)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
