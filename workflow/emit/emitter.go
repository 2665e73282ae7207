package emit

import "context"

// Emitter is an observability sink attached to a Bus: structured
// logging, distributed tracing, or similar. Emit must not block the
// publisher and must not panic; a sink that fails should log the
// failure internally and drop the event rather than propagate an error
// up through Bus.Publish.
type Emitter interface {
	// Emit delivers a single event. Implementations should be
	// non-blocking and safe for concurrent use.
	Emit(event Event)

	// EmitBatch delivers multiple events in one call, preserving
	// order. Used by callers replaying a backlog into a sink (e.g.
	// backfilling a newly attached OTel exporter).
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until any buffered events have been delivered, or
	// ctx is done. Safe to call multiple times.
	Flush(ctx context.Context) error
}
