package eventlog

import (
	"context"
	"sort"
	"sync"
)

// MemLog is an in-memory Log. It is behaviorally equivalent to SQLiteLog
// (spec §4.B: "Two implementations are mandated behaviorally equivalent")
// and is the default for tests and for a process that does not need
// durability across restarts.
type MemLog struct {
	mu       sync.Mutex
	events   map[string][]Event    // workflowID -> events in append order
	metadata map[string]Metadata   // workflowID -> metadata
}

// NewMemLog creates an empty in-memory Log.
func NewMemLog() *MemLog {
	return &MemLog{
		events:   make(map[string][]Event),
		metadata: make(map[string]Metadata),
	}
}

func (l *MemLog) Append(_ context.Context, workflowID string, event Event) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events[workflowID] = append(l.events[workflowID], event)
	return uint64(len(l.events[workflowID]) - 1), nil
}

func (l *MemLog) Replay(_ context.Context, workflowID string) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	src := l.events[workflowID]
	out := make([]Event, len(src))
	copy(out, src)
	return out, nil
}

func (l *MemLog) NextIndex(_ context.Context, workflowID string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return uint64(len(l.events[workflowID])), nil
}

func (l *MemLog) Exists(_ context.Context, workflowID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.events[workflowID]
	return ok, nil
}

func (l *MemLog) Delete(_ context.Context, workflowID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.events[workflowID])
	delete(l.events, workflowID)
	delete(l.metadata, workflowID)
	return n, nil
}

func (l *MemLog) GetCheckpoint(_ context.Context, workflowID string) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := l.events[workflowID]
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == TypeCheckpoint {
			return events[i].StateBytes, nil
		}
	}
	return nil, ErrNotFound
}

func (l *MemLog) Compact(_ context.Context, workflowID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := l.events[workflowID]
	lastCheckpoint := -1
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == TypeCheckpoint {
			lastCheckpoint = i
			break
		}
	}
	if lastCheckpoint <= 0 {
		return 0, nil
	}

	removed := lastCheckpoint
	l.events[workflowID] = append([]Event{}, events[lastCheckpoint:]...)
	return removed, nil
}

func (l *MemLog) PutMetadata(_ context.Context, meta Metadata) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.metadata[meta.WorkflowID] = meta
	return nil
}

func (l *MemLog) GetMetadata(_ context.Context, workflowID string) (Metadata, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	meta, ok := l.metadata[workflowID]
	if !ok {
		return Metadata{}, ErrNotFound
	}
	return meta, nil
}

func (l *MemLog) ListMetadata(_ context.Context, status Status, sessionID string, limit, offset int) ([]Metadata, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var matched []Metadata
	for _, m := range l.metadata {
		if status != "" && m.Status != status {
			continue
		}
		if sessionID != "" && m.SessionID != sessionID {
			continue
		}
		matched = append(matched, m)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt > matched[j].CreatedAt })

	if offset >= len(matched) {
		return []Metadata{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (l *MemLog) ListNonTerminal(_ context.Context) ([]Metadata, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Metadata
	for _, m := range l.metadata {
		if !m.Status.Terminal() {
			out = append(out, m)
		}
	}
	return out, nil
}

var _ Log = (*MemLog)(nil)
