package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLLog is a persistent Log backed by MySQL/MariaDB, for deployments
// that already run a MySQL fleet and would rather not add SQLite as a
// second storage dependency. It is schema- and behavior-equivalent to
// SQLiteLog; only the SQL dialect (AUTO_INCREMENT, ON DUPLICATE KEY
// UPDATE in place of ON CONFLICT, LONGBLOB column for payload) differs.
type MySQLLog struct {
	db *sql.DB
	mu sync.Mutex
}

// NewMySQLLog opens a MySQL-backed Log against dsn (the
// go-sql-driver/mysql DSN format: "user:pass@tcp(host:3306)/dbname").
func NewMySQLLog(dsn string) (*MySQLLog, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open mysql: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("eventlog: ping mysql: %w", err)
	}

	l := &MySQLLog{db: db}
	if err := l.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *MySQLLog) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			workflow_id VARCHAR(255) NOT NULL,
			event_idx BIGINT NOT NULL,
			payload LONGBLOB NOT NULL,
			event_type INT NOT NULL,
			INDEX idx_events_workflow (workflow_id),
			UNIQUE KEY unique_workflow_event (workflow_id, event_idx)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS metadata (
			workflow_id VARCHAR(255) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL DEFAULT '',
			session_id VARCHAR(255) NOT NULL DEFAULT '',
			pattern_type VARCHAR(255) NOT NULL DEFAULT '',
			status VARCHAR(32) NOT NULL,
			input LONGBLOB,
			output LONGBLOB,
			created_at BIGINT NOT NULL,
			completed_at BIGINT NOT NULL DEFAULT 0,
			INDEX idx_metadata_status (status)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	}
	for _, stmt := range stmts {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("eventlog: create schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (l *MySQLLog) Close() error { return l.db.Close() }

func (l *MySQLLog) Append(ctx context.Context, workflowID string, event Event) (uint64, error) {
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

func (l *MySQLLog) Replay(ctx context.Context, workflowID string) ([]Event, error) {
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

func (l *MySQLLog) NextIndex(ctx context.Context, workflowID string) (uint64, error) {
	var count int64
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE workflow_id = ?`, workflowID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("eventlog: next index: %w", err)
	}
	return uint64(count), nil
}

func (l *MySQLLog) Exists(ctx context.Context, workflowID string) (bool, error) {
	var count int64
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE workflow_id = ?`, workflowID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("eventlog: exists: %w", err)
	}
	return count > 0, nil
}

func (l *MySQLLog) Delete(ctx context.Context, workflowID string) (int, error) {
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

func (l *MySQLLog) GetCheckpoint(ctx context.Context, workflowID string) ([]byte, error) {
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

func (l *MySQLLog) Compact(ctx context.Context, workflowID string) (int, error) {
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

func (l *MySQLLog) PutMetadata(ctx context.Context, meta Metadata) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO metadata (workflow_id, user_id, session_id, pattern_type, status, input, output, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			user_id=VALUES(user_id), session_id=VALUES(session_id), pattern_type=VALUES(pattern_type),
			status=VALUES(status), input=VALUES(input), output=VALUES(output), completed_at=VALUES(completed_at)`,
		meta.WorkflowID, meta.UserID, meta.SessionID, meta.PatternType, string(meta.Status),
		meta.Input, meta.Output, meta.CreatedAt, meta.CompletedAt)
	if err != nil {
		return fmt.Errorf("eventlog: put metadata: %w", err)
	}
	return nil
}

func (l *MySQLLog) GetMetadata(ctx context.Context, workflowID string) (Metadata, error) {
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

func (l *MySQLLog) ListMetadata(ctx context.Context, status Status, sessionID string, limit, offset int) ([]Metadata, error) {
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

func (l *MySQLLog) ListNonTerminal(ctx context.Context) ([]Metadata, error) {
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

var _ Log = (*MySQLLog)(nil)
