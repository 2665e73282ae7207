package emit

import (
	"context"
	"testing"
)

func TestEmitter_InterfaceContract(t *testing.T) {
	var _ Emitter = (*mockEmitter)(nil)
}

// mockEmitter is a minimal Emitter implementation for testing Bus's
// sink-forwarding behavior.
type mockEmitter struct {
	events []Event
}

func (m *mockEmitter) Emit(event Event) { m.events = append(m.events, event) }

func (m *mockEmitter) EmitBatch(_ context.Context, events []Event) error {
	m.events = append(m.events, events...)
	return nil
}

func (m *mockEmitter) Flush(context.Context) error { return nil }

func TestEmitter_Emit(t *testing.T) {
	t.Run("emit single event", func(t *testing.T) {
		emitter := &mockEmitter{}
		emitter.Emit(Event{WorkflowID: "wf-1", Seq: 1, Kind: "LLM_OUTPUT"})

		if len(emitter.events) != 1 {
			t.Fatalf("expected 1 event, got %d", len(emitter.events))
		}
		if emitter.events[0].Kind != "LLM_OUTPUT" {
			t.Errorf("expected Kind = LLM_OUTPUT, got %q", emitter.events[0].Kind)
		}
	})

	t.Run("emit multiple events preserves order", func(t *testing.T) {
		emitter := &mockEmitter{}
		for i := 1; i <= 3; i++ {
			emitter.Emit(Event{WorkflowID: "wf-1", Seq: i, Kind: "PROGRESS"})
		}

		if len(emitter.events) != 3 {
			t.Fatalf("expected 3 events, got %d", len(emitter.events))
		}
		for i, event := range emitter.events {
			if event.Seq != i+1 {
				t.Errorf("event %d: expected Seq = %d, got %d", i, i+1, event.Seq)
			}
		}
	})

	t.Run("emit with payload", func(t *testing.T) {
		emitter := &mockEmitter{}
		emitter.Emit(Event{
			WorkflowID: "wf-1",
			Kind:       "LLM_OUTPUT",
			Payload:    map[string]interface{}{"input_tokens": 150, "duration_ms": 250},
		})

		payload := emitter.events[0].Payload
		if payload["input_tokens"] != 150 {
			t.Errorf("expected input_tokens = 150, got %v", payload["input_tokens"])
		}
	})

	t.Run("emit zero value event does not panic", func(t *testing.T) {
		emitter := &mockEmitter{}
		emitter.Emit(Event{})

		if len(emitter.events) != 1 {
			t.Fatalf("expected 1 event, got %d", len(emitter.events))
		}
	})
}

func TestEmitter_EmitBatch(t *testing.T) {
	emitter := &mockEmitter{}
	events := []Event{
		{WorkflowID: "wf-1", Seq: 1, Kind: "AGENT_STARTED"},
		{WorkflowID: "wf-1", Seq: 2, Kind: "LLM_PROMPT"},
	}

	if err := emitter.EmitBatch(context.Background(), events); err != nil {
		t.Fatalf("EmitBatch returned error: %v", err)
	}
	if len(emitter.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(emitter.events))
	}
}
