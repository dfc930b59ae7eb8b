package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/petal-labs/multitool/runtime"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS events (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id   TEXT    NOT NULL,
	seq      INTEGER NOT NULL,
	kind     TEXT    NOT NULL,
	tool     TEXT    NOT NULL DEFAULT '',
	stage    TEXT    NOT NULL DEFAULT '',
	time     TEXT    NOT NULL,
	elapsed  INTEGER NOT NULL DEFAULT 0,
	status   TEXT    NOT NULL DEFAULT '',
	payload  TEXT    NOT NULL DEFAULT '{}',
	trace_id TEXT    NOT NULL DEFAULT '',
	span_id  TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_events_run_seq ON events (run_id, seq);
CREATE INDEX IF NOT EXISTS idx_events_kind ON events (kind);
`

// SQLiteStoreConfig configures the SQLite event store.
type SQLiteStoreConfig struct {
	// DSN is the database connection string or file path.
	DSN string

	// RetentionRuns keeps at most this many runs (0 = keep everything).
	// Older runs are pruned whenever a run finishes.
	RetentionRuns int
}

// SQLiteStore persists events to a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	cfg SQLiteStoreConfig
}

// NewSQLiteStore opens (or creates) a SQLite event store.
func NewSQLiteStore(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}

	// Enable WAL mode for concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: set WAL mode: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: create schema: %w", err)
	}

	return &SQLiteStore{db: db, cfg: cfg}, nil
}

// Append stores an event in the database.
func (s *SQLiteStore) Append(ctx context.Context, event runtime.Event) error {
	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("journal: marshal payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (run_id, seq, kind, tool, stage, time, elapsed, status, payload, trace_id, span_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.RunID,
		event.Seq,
		string(event.Kind),
		event.Tool,
		string(event.Stage),
		event.Time.Format(time.RFC3339Nano),
		int64(event.Elapsed),
		event.PayloadString("status"),
		string(payloadJSON),
		event.TraceID,
		event.SpanID,
	)
	if err != nil {
		return fmt.Errorf("journal: append: %w", err)
	}

	if event.Kind == runtime.EventRunFinished && s.cfg.RetentionRuns > 0 {
		return s.Prune(ctx)
	}
	return nil
}

// List returns the events of one run in sequence order.
func (s *SQLiteStore) List(ctx context.Context, runID string) ([]runtime.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, seq, kind, tool, stage, time, elapsed, payload, trace_id, span_id
		 FROM events WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Runs returns the most recent runs, newest first.
func (s *SQLiteStore) Runs(ctx context.Context, limit int) ([]RunSummary, error) {
	query := `SELECT s.run_id, s.tool, s.time, COALESCE(f.status, ''), COALESCE(f.elapsed, 0)
	          FROM events s
	          LEFT JOIN events f ON f.run_id = s.run_id AND f.kind = ?
	          WHERE s.kind = ?
	          ORDER BY s.id DESC`
	args := []any{string(runtime.EventRunFinished), string(runtime.EventRunStarted)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			sum         RunSummary
			timeStr     string
			elapsedNano int64
		)
		if err := rows.Scan(&sum.RunID, &sum.Tool, &timeStr, &sum.Status, &elapsedNano); err != nil {
			return nil, fmt.Errorf("journal: scan run: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, timeStr)
		if err != nil {
			return nil, fmt.Errorf("journal: parse time %q: %w", timeStr, err)
		}
		sum.Started = t
		sum.Elapsed = time.Duration(elapsedNano)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Prune deletes every run older than the newest RetentionRuns runs.
func (s *SQLiteStore) Prune(ctx context.Context) error {
	if s.cfg.RetentionRuns <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM events WHERE run_id NOT IN (
			SELECT run_id FROM events WHERE kind = ? ORDER BY id DESC LIMIT ?
		)`, string(runtime.EventRunStarted), s.cfg.RetentionRuns)
	if err != nil {
		return fmt.Errorf("journal: prune: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanEvents(rows *sql.Rows) ([]runtime.Event, error) {
	var events []runtime.Event
	for rows.Next() {
		var (
			e           runtime.Event
			kind        string
			stage       string
			timeStr     string
			elapsedNano int64
			payloadJSON string
		)
		err := rows.Scan(
			&e.RunID,
			&e.Seq,
			&kind,
			&e.Tool,
			&stage,
			&timeStr,
			&elapsedNano,
			&payloadJSON,
			&e.TraceID,
			&e.SpanID,
		)
		if err != nil {
			return nil, fmt.Errorf("journal: scan event: %w", err)
		}

		e.Kind = runtime.EventKind(kind)
		e.Stage = runtime.Stage(stage)
		e.Elapsed = time.Duration(elapsedNano)

		t, err := time.Parse(time.RFC3339Nano, timeStr)
		if err != nil {
			return nil, fmt.Errorf("journal: parse time %q: %w", timeStr, err)
		}
		e.Time = t

		e.Payload = map[string]any{}
		if payloadJSON != "" && payloadJSON != "{}" {
			if err := json.Unmarshal([]byte(payloadJSON), &e.Payload); err != nil {
				return nil, fmt.Errorf("journal: unmarshal payload: %w", err)
			}
		}

		events = append(events, e)
	}
	return events, rows.Err()
}

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)
