package monitoring

import (
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// RequestEvent is one completed inbound request.
type RequestEvent struct {
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id"`
	Dialect      string    `json:"dialect"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Status       int       `json:"status"`
	Streamed     bool      `json:"streamed"`
	DurationMs   int64     `json:"duration_ms"`
	InputTokens  int       `json:"input_tokens,omitempty"`
	OutputTokens int       `json:"output_tokens,omitempty"`
	Error        string    `json:"error,omitempty"`
}

const trackerSchema = `
CREATE TABLE IF NOT EXISTS requests (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts TEXT NOT NULL,
	request_id TEXT NOT NULL,
	dialect TEXT NOT NULL,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	status INTEGER NOT NULL,
	streamed INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_requests_ts ON requests(ts);
`

// Tracker persists request telemetry to a local SQLite database. A nil
// Tracker is valid and drops events, so callers never need to guard.
type Tracker struct {
	db *sql.DB
}

// NewTracker opens (or creates) the telemetry database at path.
func NewTracker(path string) (*Tracker, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers; a single connection avoids lock contention.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(trackerSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Tracker{db: db}, nil
}

// Record stores one request event. Telemetry must never block or fail a
// user request, so errors are logged and swallowed.
func (t *Tracker) Record(ev RequestEvent) {
	if t == nil {
		return
	}
	_, err := t.db.Exec(
		`INSERT INTO requests (ts, request_id, dialect, provider, model, status, streamed, duration_ms, input_tokens, output_tokens, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Timestamp.UTC().Format(time.RFC3339Nano), ev.RequestID, ev.Dialect, ev.Provider,
		ev.Model, ev.Status, boolToInt(ev.Streamed), ev.DurationMs,
		ev.InputTokens, ev.OutputTokens, ev.Error,
	)
	if err != nil {
		log.Error().Err(err).Msg("telemetry insert failed")
	}
}

// Recent returns the most recent events, newest first.
func (t *Tracker) Recent(limit int) ([]RequestEvent, error) {
	if t == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := t.db.Query(
		`SELECT ts, request_id, dialect, provider, model, status, streamed, duration_ms, input_tokens, output_tokens, error
		 FROM requests ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []RequestEvent
	for rows.Next() {
		var ev RequestEvent
		var ts string
		var streamed int
		if err := rows.Scan(&ts, &ev.RequestID, &ev.Dialect, &ev.Provider, &ev.Model,
			&ev.Status, &streamed, &ev.DurationMs, &ev.InputTokens, &ev.OutputTokens, &ev.Error); err != nil {
			return nil, err
		}
		ev.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		ev.Streamed = streamed != 0
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Close releases the database handle.
func (t *Tracker) Close() error {
	if t == nil {
		return nil
	}
	return t.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
