package emit

import (
	"context"
	"testing"
)

func TestNullEmitter_NoOp(t *testing.T) {
	emitter := NewNullEmitter()

	events := []Event{
		{WorkflowID: "wf-1", Seq: 1, Kind: "AGENT_STARTED"},
		{WorkflowID: "wf-1", Seq: 2, Kind: "LLM_OUTPUT", Payload: map[string]interface{}{"response": "ok"}},
	}
	for _, event := range events {
		emitter.Emit(event)
	}

	if err := emitter.EmitBatch(context.Background(), events); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if err := emitter.Flush(context.Background()); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}

func TestNullEmitter_InterfaceContract(t *testing.T) {
	var _ Emitter = NewNullEmitter()
}
