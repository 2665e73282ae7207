package emit

import (
	"bytes"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
)

func newTestHCLogEmitter(buf *bytes.Buffer) *HCLogEmitter {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:       "test",
		Level:      hclog.Debug,
		Output:     buf,
		JSONFormat: true,
	})
	return NewHCLogEmitter(logger)
}

func TestHCLogEmitter_Emit(t *testing.T) {
	t.Run("writes event fields to the logger", func(t *testing.T) {
		var buf bytes.Buffer
		emitter := newTestHCLogEmitter(&buf)

		emitter.Emit(Event{
			WorkflowID: "wf-001",
			Seq:        1,
			Kind:       "LLM_OUTPUT",
			Payload:    map[string]interface{}{"response": "42"},
		})

		output := buf.String()
		if !strings.Contains(output, "wf-001") {
			t.Errorf("expected output to contain workflow id, got: %s", output)
		}
		if !strings.Contains(output, "LLM_OUTPUT") {
			t.Errorf("expected output to contain event kind, got: %s", output)
		}
	})

	t.Run("emits multiple events", func(t *testing.T) {
		var buf bytes.Buffer
		emitter := newTestHCLogEmitter(&buf)

		emitter.Emit(Event{WorkflowID: "wf-001", Seq: 1, Kind: "AGENT_STARTED"})
		emitter.Emit(Event{WorkflowID: "wf-001", Seq: 2, Kind: "AGENT_COMPLETED"})

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 2 {
			t.Errorf("expected 2 log lines, got %d", len(lines))
		}
	})
}

func TestHCLogEmitter_InterfaceContract(t *testing.T) {
	var buf bytes.Buffer
	var _ Emitter = newTestHCLogEmitter(&buf)
}
