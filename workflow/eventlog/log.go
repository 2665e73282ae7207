package eventlog

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a workflow id has no log.
var ErrNotFound = errors.New("eventlog: workflow not found")

// Status mirrors WorkflowMetadata.status (data model §3).
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Metadata is the secondary index keyed by workflow-id (data model §3).
type Metadata struct {
	WorkflowID  string
	UserID      string
	SessionID   string
	PatternType string
	Status      Status
	Input       []byte
	Output      []byte
	CreatedAt   int64 // unix nanos
	CompletedAt int64 // unix nanos; zero until terminal
}

// Log is the per-workflow append-only event log contract (spec §4.B).
// Implementations must serialize concurrent Append calls for the same
// workflow id; callers across different workflow ids may proceed
// concurrently without coordination.
type Log interface {
	// Append persists event atomically and returns its dense, strictly
	// increasing index. Must be durable before returning success.
	Append(ctx context.Context, workflowID string, event Event) (index uint64, err error)

	// Replay returns every event for workflowID in index order.
	Replay(ctx context.Context, workflowID string) ([]Event, error)

	// NextIndex returns the count of events appended so far.
	NextIndex(ctx context.Context, workflowID string) (uint64, error)

	// Exists reports whether any events have been appended for workflowID.
	Exists(ctx context.Context, workflowID string) (bool, error)

	// Delete purges a workflow's log entirely and returns the count removed.
	Delete(ctx context.Context, workflowID string) (removed int, err error)

	// GetCheckpoint returns the state bytes of the latest Checkpoint event,
	// or ErrNotFound if none has been recorded.
	GetCheckpoint(ctx context.Context, workflowID string) ([]byte, error)

	// Compact drops every event strictly before the latest checkpoint and
	// returns the count removed. Safe because replay from that checkpoint
	// reconstructs equivalent state.
	Compact(ctx context.Context, workflowID string) (removed int, err error)

	// PutMetadata upserts the secondary index row for workflowID.
	PutMetadata(ctx context.Context, meta Metadata) error

	// GetMetadata retrieves the secondary index row, or ErrNotFound.
	GetMetadata(ctx context.Context, workflowID string) (Metadata, error)

	// ListMetadata returns metadata rows matching an optional status and
	// session id filter, paginated by limit/offset, most recently created
	// first.
	ListMetadata(ctx context.Context, status Status, sessionID string, limit, offset int) ([]Metadata, error)

	// ListNonTerminal returns metadata for every workflow not in a
	// terminal status, used by the engine's crash-recovery scan.
	ListNonTerminal(ctx context.Context) ([]Metadata, error)
}
