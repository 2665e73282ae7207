package emit

// Event is the low-level record an Emitter sink consumes. Unlike
// NormalizedEvent (the wire/log shape the spec names), Event is shaped for
// observability backends: a structured-log line or a trace span, not an
// SSE frame or an event-log entry. Bus.Publish derives one from every
// NormalizedEvent it fans out.
type Event struct {
	// WorkflowID identifies the run that produced this event.
	WorkflowID string

	// Seq is the event's position in the workflow's bus sequence
	// (1-indexed), independent of the durable event log's own index.
	Seq int

	// Kind is the normalized event's kind, e.g. "LLM_OUTPUT".
	Kind string

	// Payload carries the normalized event's structured fields
	// (prompt, tool name, percent, error message, ...).
	Payload map[string]interface{}
}

// toEvent derives an Event from a NormalizedEvent for delivery to a
// Bus's sinks.
func toEvent(ev NormalizedEvent, seq int) Event {
	return Event{
		WorkflowID: ev.WorkflowID,
		Seq:        seq,
		Kind:       string(ev.Kind),
		Payload:    ev.Payload,
	}
}
