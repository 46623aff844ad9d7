package db

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/cockroachdb/errors"

	ctxpkg "github.com/stupiduntilnot/lyra/internal/context"
)

// ErrNoSession is returned when a session has no stored transcript.
var ErrNoSession = errors.New("db: session not found")

// Journal stores transcript snapshots and call events per session.
type Journal struct {
	db      *sql.DB
	node    *snowflake.Node
	persona string
}

// NewJournal wraps an initialized database. persona is recorded on
// sessions created by this journal.
func NewJournal(db *sql.DB, persona string) (*Journal, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, errors.Wrap(err, "init session id generator")
	}
	return &Journal{db: db, node: node, persona: persona}, nil
}

// DB returns the underlying handle.
func (j *Journal) DB() *sql.DB {
	return j.db
}

// NewSessionID returns a fresh time-ordered session identifier.
func (j *Journal) NewSessionID() string {
	return strconv.FormatInt(j.node.Generate().Int64(), 10)
}

// SaveTranscript replaces the stored snapshot of a session.
func (j *Journal) SaveTranscript(ctx context.Context, sessionID string, messages []ctxpkg.Message) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transcript save")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, persona) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET updated_at = unixepoch()`,
		sessionID, j.persona,
	); err != nil {
		return errors.Wrap(err, "upsert session")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return errors.Wrap(err, "clear snapshot")
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO messages (session_id, seq, role, content) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "prepare message insert")
	}
	defer stmt.Close()
	for i, m := range messages {
		if _, err := stmt.ExecContext(ctx, sessionID, i, m.Role, m.Content); err != nil {
			return errors.Wrapf(err, "insert message %d", i)
		}
	}
	return errors.Wrap(tx.Commit(), "commit transcript save")
}

// LoadTranscript returns the stored snapshot of a session.
func (j *Journal) LoadTranscript(ctx context.Context, sessionID string) ([]ctxpkg.Message, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT role, content FROM messages WHERE session_id = ? ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query transcript")
	}
	defer rows.Close()

	var out []ctxpkg.Message
	for rows.Next() {
		var m ctxpkg.Message
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, errors.Wrap(err, "scan message")
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.Wrapf(ErrNoSession, "session %s", sessionID)
	}
	return out, nil
}

// LatestSession returns the most recently updated session id, or "" when
// none exists.
func (j *Journal) LatestSession(ctx context.Context) (string, error) {
	var id string
	err := j.db.QueryRowContext(ctx,
		`SELECT id FROM sessions ORDER BY updated_at DESC, id DESC LIMIT 1`,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "query latest session")
	}
	return id, nil
}

// LogEvent records an event for a session.
func (j *Journal) LogEvent(ctx context.Context, sessionID, eventType string, payload map[string]any) error {
	_, err := LogEvent(ctx, j.db, sessionID, eventType, payload)
	return err
}
