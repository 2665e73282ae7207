package emit

import "time"

// Kind identifies the type of a NormalizedEvent, mirroring the SSE event
// catalogue streamed to UI clients and appended to a workflow's event log
// as progress markers.
type Kind string

const (
	KindWorkflowStarted   Kind = "WORKFLOW_STARTED"
	KindAgentStarted      Kind = "AGENT_STARTED"
	KindAgentCompleted    Kind = "AGENT_COMPLETED"
	KindLLMPrompt         Kind = "LLM_PROMPT"
	KindLLMPartial        Kind = "LLM_PARTIAL"
	KindLLMOutput         Kind = "LLM_OUTPUT"
	KindToolInvoked       Kind = "TOOL_INVOKED"
	KindToolObservation   Kind = "TOOL_OBSERVATION"
	KindToolError         Kind = "TOOL_ERROR"
	KindProgress          Kind = "PROGRESS"
	KindWorkflowPausing   Kind = "WORKFLOW_PAUSING"
	KindWorkflowPaused    Kind = "WORKFLOW_PAUSED"
	KindWorkflowResumed   Kind = "WORKFLOW_RESUMED"
	KindWorkflowCancelling Kind = "WORKFLOW_CANCELLING"
	KindWorkflowCancelled Kind = "WORKFLOW_CANCELLED"
	KindWorkflowCompleted Kind = "WORKFLOW_COMPLETED"
	KindWorkflowFailed    Kind = "WORKFLOW_FAILED"
)

// NormalizedEvent is the uniform, serializable progress record delivered
// over SSE and appended to a workflow's event log (glossary: "Normalized
// event"). Patterns and the engine construct these; the Bus fans them out
// to live subscribers while the event log keeps a durable copy.
type NormalizedEvent struct {
	Kind       Kind                   `json:"kind"`
	WorkflowID string                 `json:"workflow_id"`
	Timestamp  time.Time              `json:"timestamp"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

func newEvent(workflowID string, kind Kind, payload map[string]interface{}) NormalizedEvent {
	return NormalizedEvent{Kind: kind, WorkflowID: workflowID, Timestamp: time.Now(), Payload: payload}
}

// WorkflowStarted builds a WORKFLOW_STARTED normalized event.
func WorkflowStarted(workflowID, workflowType string) NormalizedEvent {
	return newEvent(workflowID, KindWorkflowStarted, map[string]interface{}{"workflow_type": workflowType})
}

// AgentStarted builds an AGENT_STARTED normalized event.
func AgentStarted(workflowID, patternType string) NormalizedEvent {
	return newEvent(workflowID, KindAgentStarted, map[string]interface{}{"pattern_type": patternType})
}

// AgentCompleted builds an AGENT_COMPLETED normalized event.
func AgentCompleted(workflowID string) NormalizedEvent {
	return newEvent(workflowID, KindAgentCompleted, nil)
}

// LLMPrompt builds an LLM_PROMPT normalized event.
func LLMPrompt(workflowID, prompt string) NormalizedEvent {
	return newEvent(workflowID, KindLLMPrompt, map[string]interface{}{"prompt": prompt})
}

// LLMPartial builds an LLM_PARTIAL normalized event carrying a streaming delta.
func LLMPartial(workflowID, delta string) NormalizedEvent {
	return newEvent(workflowID, KindLLMPartial, map[string]interface{}{"delta": delta})
}

// LLMOutput builds an LLM_OUTPUT normalized event.
func LLMOutput(workflowID, response string, metadata map[string]interface{}) NormalizedEvent {
	payload := map[string]interface{}{"response": response}
	for k, v := range metadata {
		payload[k] = v
	}
	return newEvent(workflowID, KindLLMOutput, payload)
}

// ToolInvoked builds a TOOL_INVOKED normalized event.
func ToolInvoked(workflowID, tool string, params map[string]interface{}) NormalizedEvent {
	return newEvent(workflowID, KindToolInvoked, map[string]interface{}{"tool": tool, "params": params})
}

// ToolObservation builds a TOOL_OBSERVATION normalized event.
func ToolObservation(workflowID, tool string, output map[string]interface{}) NormalizedEvent {
	return newEvent(workflowID, KindToolObservation, map[string]interface{}{"tool": tool, "output": output})
}

// ToolError builds a TOOL_ERROR normalized event.
func ToolError(workflowID, tool, errMsg string) NormalizedEvent {
	return newEvent(workflowID, KindToolError, map[string]interface{}{"tool": tool, "error": errMsg})
}

// Progress builds a PROGRESS normalized event. percent is clamped to [0,100].
func Progress(workflowID string, percent int, message string) NormalizedEvent {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	payload := map[string]interface{}{"percent": percent}
	if message != "" {
		payload["message"] = message
	}
	return newEvent(workflowID, KindProgress, payload)
}

// WorkflowPausing/Paused/Resumed/Cancelling/Cancelled build the control-signal
// normalized events emitted around pause/resume/cancel transitions (§4.I).
func WorkflowPausing(workflowID string) NormalizedEvent { return newEvent(workflowID, KindWorkflowPausing, nil) }

func WorkflowPaused(workflowID, checkpointID string) NormalizedEvent {
	return newEvent(workflowID, KindWorkflowPaused, map[string]interface{}{"checkpoint_id": checkpointID})
}

func WorkflowResumed(workflowID string) NormalizedEvent { return newEvent(workflowID, KindWorkflowResumed, nil) }

func WorkflowCancelling(workflowID string) NormalizedEvent {
	return newEvent(workflowID, KindWorkflowCancelling, nil)
}

func WorkflowCancelled(workflowID, checkpointID string) NormalizedEvent {
	return newEvent(workflowID, KindWorkflowCancelled, map[string]interface{}{"checkpoint_id": checkpointID})
}

// WorkflowCompleted builds a WORKFLOW_COMPLETED normalized event.
func WorkflowCompleted(workflowID string, output interface{}, durationMS int64) NormalizedEvent {
	return newEvent(workflowID, KindWorkflowCompleted, map[string]interface{}{
		"output": output, "duration_ms": durationMS,
	})
}

// WorkflowFailed builds a WORKFLOW_FAILED normalized event.
func WorkflowFailed(workflowID, errMsg string) NormalizedEvent {
	return newEvent(workflowID, KindWorkflowFailed, map[string]interface{}{"error": errMsg})
}
