package pattern

import (
	"context"
	"fmt"
	"strings"

	"github.com/shannon-run/shannon/workflow/activity"
	"github.com/shannon-run/shannon/workflow/emit"
)

const reactCompletionMarker = "DONE:"

// ReAct loops (reason, act via tool, observe) up to max_iterations,
// stopping when the reason step declares completion (spec §4.H).
type ReAct struct{}

func (ReAct) Name() string { return "react" }

func (ReAct) Run(ctx context.Context, in Input, deps Deps) (Result, error) {
	maxIterations := configInt(in.Config, "max_iterations", 5)
	defaultTool := stringField(in.Config, "tool")

	publish(deps, emit.AgentStarted(deps.WorkflowID, "react"))
	ids := newIDSeq(deps.WorkflowID)

	var steps []string
	tokens := TokenUsage{}
	transcript := in.Query

	for i := 1; i <= maxIterations; i++ {
		reasonPrompt := fmt.Sprintf("Iteration %d. Query: %s\nTranscript so far:\n%s\nDecide the next action, or prefix your answer with %q when complete.", i, in.Query, transcript, reactCompletionMarker)
		publish(deps, emit.LLMPrompt(deps.WorkflowID, reasonPrompt))

		reasonOut, err := deps.Invoker.Invoke(ctx, "llm_reason", activity.Context{
			WorkflowID: deps.WorkflowID, ActivityID: ids.next("reason"), MaxAttempts: 3,
		}, map[string]any{"query": reasonPrompt, "mode": "reason"})
		if err != nil {
			return Result{}, fmt.Errorf("react iteration %d reason: %w", i, err)
		}
		reasonText := textOf(reasonOut)
		publish(deps, emit.LLMOutput(deps.WorkflowID, reasonText, nil))
		tokens.InputTokens += intOut(reasonOut, "input_tokens")
		tokens.OutputTokens += intOut(reasonOut, "output_tokens")
		steps = append(steps, reasonText)
		transcript += "\nReason: " + reasonText

		if strings.Contains(reasonText, reactCompletionMarker) {
			break
		}

		if defaultTool == "" {
			continue
		}

		publish(deps, emit.ToolInvoked(deps.WorkflowID, defaultTool, map[string]any{"query": reasonText}))
		toolOut, err := deps.Invoker.Invoke(ctx, "tool_execute", activity.Context{
			WorkflowID: deps.WorkflowID, ActivityID: ids.next("act"), MaxAttempts: 3,
		}, map[string]any{"tool": defaultTool, "input": map[string]any{"query": reasonText}})
		if err != nil {
			publish(deps, emit.ToolError(deps.WorkflowID, defaultTool, err.Error()))
			transcript += "\nObservation: tool error: " + err.Error()
			continue
		}
		publish(deps, emit.ToolObservation(deps.WorkflowID, defaultTool, toolOut))
		transcript += fmt.Sprintf("\nObservation: %v", toolOut)

		publish(deps, emit.Progress(deps.WorkflowID, i*100/maxIterations, fmt.Sprintf("iteration %d/%d", i, maxIterations)))
	}

	publish(deps, emit.AgentCompleted(deps.WorkflowID))
	return Result{Output: steps[len(steps)-1], ReasoningSteps: steps, TokenUsage: tokens}, nil
}
