package eventlog

import (
	"context"
	"testing"
)

func TestMemLog_DenseIndices(t *testing.T) {
	ctx := context.Background()
	log := NewMemLog()

	for i := 0; i < 5; i++ {
		idx, err := log.Append(ctx, "wf-1", NewActivityScheduled("a", "t", nil))
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if idx != uint64(i) {
			t.Fatalf("Append index = %d, want %d", idx, i)
		}
	}

	next, err := log.NextIndex(ctx, "wf-1")
	if err != nil {
		t.Fatalf("NextIndex: %v", err)
	}
	if next != 5 {
		t.Fatalf("NextIndex = %d, want 5", next)
	}

	events, err := log.Replay(ctx, "wf-1")
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("Replay returned %d events, want 5", len(events))
	}
}

func TestMemLog_ExistsAndDelete(t *testing.T) {
	ctx := context.Background()
	log := NewMemLog()

	if exists, _ := log.Exists(ctx, "wf-missing"); exists {
		t.Fatal("Exists should be false for unknown workflow")
	}

	log.Append(ctx, "wf-1", NewWorkflowStarted("wf-1", "debate", nil))
	if exists, _ := log.Exists(ctx, "wf-1"); !exists {
		t.Fatal("Exists should be true after Append")
	}

	removed, err := log.Delete(ctx, "wf-1")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if removed != 1 {
		t.Fatalf("Delete removed = %d, want 1", removed)
	}
	if exists, _ := log.Exists(ctx, "wf-1"); exists {
		t.Fatal("Exists should be false after Delete")
	}
}

func TestMemLog_CompactRetainsFromLastCheckpoint(t *testing.T) {
	ctx := context.Background()
	log := NewMemLog()

	log.Append(ctx, "wf-1", NewWorkflowStarted("wf-1", "reflection", nil))
	log.Append(ctx, "wf-1", NewActivityScheduled("a1", "llm.reason", nil))
	log.Append(ctx, "wf-1", NewActivityCompleted("a1", nil, 10))
	log.Append(ctx, "wf-1", NewCheckpoint([]byte("state-at-3")))
	log.Append(ctx, "wf-1", NewActivityScheduled("a2", "llm.reason", nil))

	removed, err := log.Compact(ctx, "wf-1")
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if removed != 3 {
		t.Fatalf("Compact removed = %d, want 3", removed)
	}

	events, err := log.Replay(ctx, "wf-1")
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Replay after compact returned %d events, want 2", len(events))
	}
	if events[0].Type != TypeCheckpoint {
		t.Fatalf("first retained event type = %v, want Checkpoint", events[0].Type)
	}
}

func TestMemLog_CompactNoCheckpointIsNoop(t *testing.T) {
	ctx := context.Background()
	log := NewMemLog()
	log.Append(ctx, "wf-1", NewWorkflowStarted("wf-1", "react", nil))

	removed, err := log.Compact(ctx, "wf-1")
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if removed != 0 {
		t.Fatalf("Compact removed = %d, want 0", removed)
	}
}

func TestMemLog_GetCheckpointNotFound(t *testing.T) {
	ctx := context.Background()
	log := NewMemLog()
	log.Append(ctx, "wf-1", NewWorkflowStarted("wf-1", "react", nil))

	_, err := log.GetCheckpoint(ctx, "wf-1")
	if err != ErrNotFound {
		t.Fatalf("GetCheckpoint error = %v, want ErrNotFound", err)
	}
}

func TestMemLog_MetadataLifecycle(t *testing.T) {
	ctx := context.Background()
	log := NewMemLog()

	meta := Metadata{WorkflowID: "wf-1", UserID: "u1", PatternType: "chain_of_thought", Status: StatusRunning, CreatedAt: 100}
	if err := log.PutMetadata(ctx, meta); err != nil {
		t.Fatalf("PutMetadata: %v", err)
	}

	got, err := log.GetMetadata(ctx, "wf-1")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if got.Status != StatusRunning {
		t.Fatalf("Status = %v, want running", got.Status)
	}

	meta.Status = StatusCompleted
	meta.CompletedAt = 200
	if err := log.PutMetadata(ctx, meta); err != nil {
		t.Fatalf("PutMetadata update: %v", err)
	}

	got, _ = log.GetMetadata(ctx, "wf-1")
	if got.Status != StatusCompleted {
		t.Fatalf("Status after update = %v, want completed", got.Status)
	}

	if _, err := log.GetMetadata(ctx, "wf-missing"); err != ErrNotFound {
		t.Fatalf("GetMetadata missing error = %v, want ErrNotFound", err)
	}
}

func TestMemLog_ListMetadataFiltersAndPaginates(t *testing.T) {
	ctx := context.Background()
	log := NewMemLog()

	for i := 0; i < 3; i++ {
		log.PutMetadata(ctx, Metadata{
			WorkflowID: string(rune('a' + i)), Status: StatusRunning, SessionID: "s1", CreatedAt: int64(i),
		})
	}
	log.PutMetadata(ctx, Metadata{WorkflowID: "z", Status: StatusCompleted, SessionID: "s2", CreatedAt: 99})

	running, err := log.ListMetadata(ctx, StatusRunning, "", 10, 0)
	if err != nil {
		t.Fatalf("ListMetadata: %v", err)
	}
	if len(running) != 3 {
		t.Fatalf("ListMetadata running count = %d, want 3", len(running))
	}

	page, err := log.ListMetadata(ctx, "", "", 2, 0)
	if err != nil {
		t.Fatalf("ListMetadata paginated: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("ListMetadata page size = %d, want 2", len(page))
	}
	if page[0].CreatedAt < page[1].CreatedAt {
		t.Fatal("ListMetadata should sort created_at descending")
	}
}

func TestMemLog_ListNonTerminal(t *testing.T) {
	ctx := context.Background()
	log := NewMemLog()

	log.PutMetadata(ctx, Metadata{WorkflowID: "a", Status: StatusRunning})
	log.PutMetadata(ctx, Metadata{WorkflowID: "b", Status: StatusPaused})
	log.PutMetadata(ctx, Metadata{WorkflowID: "c", Status: StatusCompleted})
	log.PutMetadata(ctx, Metadata{WorkflowID: "d", Status: StatusCancelled})

	nonTerminal, err := log.ListNonTerminal(ctx)
	if err != nil {
		t.Fatalf("ListNonTerminal: %v", err)
	}
	if len(nonTerminal) != 2 {
		t.Fatalf("ListNonTerminal count = %d, want 2", len(nonTerminal))
	}
}

func TestStatus_Terminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusFailed, StatusCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%v.Terminal() = false, want true", s)
		}
	}
	nonTerminal := []Status{StatusPending, StatusRunning, StatusPaused}
	for _, s := range nonTerminal {
		if s.Terminal() {
			t.Errorf("%v.Terminal() = true, want false", s)
		}
	}
}
