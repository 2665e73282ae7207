package emit

import (
	"context"

	"github.com/hashicorp/go-hclog"
)

// HCLogEmitter forwards every event to an hclog.Logger at Debug level,
// matching the rest of this module's ambient logging (no bare
// log.Printf calls anywhere in production code). cmd/shannon always
// wires it as a Bus sink; its lines appear only when SHANNON_LOG_LEVEL
// is Debug or lower.
type HCLogEmitter struct {
	logger hclog.Logger
}

// NewHCLogEmitter wraps logger, naming a "bus" sub-logger so emitted
// lines are distinguishable from the rest of a workflow's log output.
func NewHCLogEmitter(logger hclog.Logger) *HCLogEmitter {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &HCLogEmitter{logger: logger.Named("bus")}
}

func (l *HCLogEmitter) Emit(event Event) {
	args := make([]interface{}, 0, 4+2*len(event.Payload))
	args = append(args, "workflow_id", event.WorkflowID, "seq", event.Seq)
	for k, v := range event.Payload {
		args = append(args, k, v)
	}
	l.logger.Debug(event.Kind, args...)
}

func (l *HCLogEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, event := range events {
		l.Emit(event)
	}
	return nil
}

// Flush is a no-op: hclog writes synchronously, there is nothing to
// drain.
func (l *HCLogEmitter) Flush(context.Context) error { return nil }
