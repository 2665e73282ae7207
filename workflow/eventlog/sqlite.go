package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteLog is a persistent Log backed by a single SQLite file, with a
// UNIQUE secondary index on (workflow_id, event_idx) as mandated by
// spec §4.B. It is behaviorally equivalent to MemLog, except that
// ListMetadata with a non-positive limit returns at most 100 rows rather
// than all of them.
type SQLiteLog struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteLog opens (creating if needed) a SQLite-backed Log at path.
// Use ":memory:" for an ephemeral database useful in tests.
func NewSQLiteLog(path string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("eventlog: %s: %w", pragma, err)
		}
	}

	l := &SQLiteLog{db: db}
	if err := l.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQLiteLog) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			workflow_id TEXT NOT NULL,
			event_idx INTEGER NOT NULL,
			payload BLOB NOT NULL,
			event_type INTEGER NOT NULL,
			UNIQUE(workflow_id, event_idx)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_workflow ON events(workflow_id)`,
		`CREATE TABLE IF NOT EXISTS metadata (
			workflow_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL DEFAULT '',
			pattern_type TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			input BLOB,
			output BLOB,
			created_at INTEGER NOT NULL,
			completed_at INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_metadata_status ON metadata(status)`,
	}
	for _, stmt := range stmts {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("eventlog: create schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (l *SQLiteLog) Close() error { return l.db.Close() }

func (l *SQLiteLog) Append(ctx context.Context, workflowID string, event Event) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	payload, err := Encode(event)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE workflow_id = ?`, workflowID).Scan(&count); err != nil {
		return 0, fmt.Errorf("eventlog: count events: %w", err)
	}
	index := uint64(count)

	_, err = l.db.ExecContext(ctx,
		`INSERT INTO events (workflow_id, event_idx, payload, event_type) VALUES (?, ?, ?, ?)`,
		workflowID, index, payload, int(event.Type))
	if err != nil {
		return 0, fmt.Errorf("eventlog: append: %w", err)
	}
	return index, nil
}

func (l *SQLiteLog) Replay(ctx context.Context, workflowID string) ([]Event, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT payload FROM events WHERE workflow_id = ? ORDER BY event_idx ASC`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("eventlog: replay: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("eventlog: scan: %w", err)
		}
		ev, err := Decode(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (l *SQLiteLog) NextIndex(ctx context.Context, workflowID string) (uint64, error) {
	var count int64
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE workflow_id = ?`, workflowID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("eventlog: next index: %w", err)
	}
	return uint64(count), nil
}

func (l *SQLiteLog) Exists(ctx context.Context, workflowID string) (bool, error) {
	var count int64
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE workflow_id = ?`, workflowID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("eventlog: exists: %w", err)
	}
	return count > 0, nil
}

func (l *SQLiteLog) Delete(ctx context.Context, workflowID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.ExecContext(ctx, `DELETE FROM events WHERE workflow_id = ?`, workflowID)
	if err != nil {
		return 0, fmt.Errorf("eventlog: delete: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, `DELETE FROM metadata WHERE workflow_id = ?`, workflowID); err != nil {
		return 0, fmt.Errorf("eventlog: delete metadata: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (l *SQLiteLog) GetCheckpoint(ctx context.Context, workflowID string) ([]byte, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT payload FROM events WHERE workflow_id = ? AND event_type = ? ORDER BY event_idx DESC LIMIT 1`,
		workflowID, int(TypeCheckpoint))

	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("eventlog: get checkpoint: %w", err)
	}
	ev, err := Decode(payload)
	if err != nil {
		return nil, err
	}
	return ev.StateBytes, nil
}

func (l *SQLiteLog) Compact(ctx context.Context, workflowID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var lastIdx sql.NullInt64
	err := l.db.QueryRowContext(ctx,
		`SELECT MAX(event_idx) FROM events WHERE workflow_id = ? AND event_type = ?`,
		workflowID, int(TypeCheckpoint)).Scan(&lastIdx)
	if err != nil {
		return 0, fmt.Errorf("eventlog: compact: find checkpoint: %w", err)
	}
	if !lastIdx.Valid || lastIdx.Int64 <= 0 {
		return 0, nil
	}

	res, err := l.db.ExecContext(ctx,
		`DELETE FROM events WHERE workflow_id = ? AND event_idx < ?`, workflowID, lastIdx.Int64)
	if err != nil {
		return 0, fmt.Errorf("eventlog: compact: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (l *SQLiteLog) PutMetadata(ctx context.Context, meta Metadata) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO metadata (workflow_id, user_id, session_id, pattern_type, status, input, output, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workflow_id) DO UPDATE SET
			user_id=excluded.user_id, session_id=excluded.session_id, pattern_type=excluded.pattern_type,
			status=excluded.status, input=excluded.input, output=excluded.output, completed_at=excluded.completed_at`,
		meta.WorkflowID, meta.UserID, meta.SessionID, meta.PatternType, string(meta.Status),
		meta.Input, meta.Output, meta.CreatedAt, meta.CompletedAt)
	if err != nil {
		return fmt.Errorf("eventlog: put metadata: %w", err)
	}
	return nil
}

func (l *SQLiteLog) GetMetadata(ctx context.Context, workflowID string) (Metadata, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT workflow_id, user_id, session_id, pattern_type, status, input, output, created_at, completed_at
		FROM metadata WHERE workflow_id = ?`, workflowID)

	var m Metadata
	var status string
	if err := row.Scan(&m.WorkflowID, &m.UserID, &m.SessionID, &m.PatternType, &status, &m.Input, &m.Output, &m.CreatedAt, &m.CompletedAt); err != nil {
		if err == sql.ErrNoRows {
			return Metadata{}, ErrNotFound
		}
		return Metadata{}, fmt.Errorf("eventlog: get metadata: %w", err)
	}
	m.Status = Status(status)
	return m, nil
}

func (l *SQLiteLog) ListMetadata(ctx context.Context, status Status, sessionID string, limit, offset int) ([]Metadata, error) {
	query := `SELECT workflow_id, user_id, session_id, pattern_type, status, input, output, created_at, completed_at FROM metadata WHERE 1=1`
	var args []interface{}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	if sessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, offset)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("eventlog: list metadata: %w", err)
	}
	defer rows.Close()

	var out []Metadata
	for rows.Next() {
		var m Metadata
		var s string
		if err := rows.Scan(&m.WorkflowID, &m.UserID, &m.SessionID, &m.PatternType, &s, &m.Input, &m.Output, &m.CreatedAt, &m.CompletedAt); err != nil {
			return nil, fmt.Errorf("eventlog: scan metadata: %w", err)
		}
		m.Status = Status(s)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (l *SQLiteLog) ListNonTerminal(ctx context.Context) ([]Metadata, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT workflow_id, user_id, session_id, pattern_type, status, input, output, created_at, completed_at
		FROM metadata WHERE status IN (?, ?, ?)`,
		string(StatusPending), string(StatusRunning), string(StatusPaused))
	if err != nil {
		return nil, fmt.Errorf("eventlog: list non-terminal: %w", err)
	}
	defer rows.Close()

	var out []Metadata
	for rows.Next() {
		var m Metadata
		var s string
		if err := rows.Scan(&m.WorkflowID, &m.UserID, &m.SessionID, &m.PatternType, &s, &m.Input, &m.Output, &m.CreatedAt, &m.CompletedAt); err != nil {
			return nil, fmt.Errorf("eventlog: scan metadata: %w", err)
		}
		m.Status = Status(s)
		out = append(out, m)
	}
	return out, rows.Err()
}

var _ Log = (*SQLiteLog)(nil)
