package pattern

import (
	"context"
	"fmt"
	"strings"

	"github.com/shannon-run/shannon/workflow/activity"
	"github.com/shannon-run/shannon/workflow/emit"
)

// defaultTerminalMarker is the substring a reasoning step's output can
// contain to end Chain of Thought early (spec §4.H).
const defaultTerminalMarker = "FINAL ANSWER:"

// ChainOfThought runs up to max_steps sequential reasoning activities,
// stopping early if a step's output contains the terminal marker.
type ChainOfThought struct{}

func (ChainOfThought) Name() string { return "chain_of_thought" }

func (ChainOfThought) Run(ctx context.Context, in Input, deps Deps) (Result, error) {
	maxSteps := configInt(in.Config, "max_steps", 5)
	marker, _ := in.Config["terminal_marker"].(string)
	if marker == "" {
		marker = defaultTerminalMarker
	}

	publish(deps, emit.AgentStarted(deps.WorkflowID, "chain_of_thought"))
	ids := newIDSeq(deps.WorkflowID)

	var steps []string
	context_ := in.Query
	tokens := TokenUsage{}

	for i := 1; i <= maxSteps; i++ {
		prompt := fmt.Sprintf("Step %d. Continue reasoning about: %s\nPrior steps:\n%s", i, in.Query, strings.Join(steps, "\n"))
		publish(deps, emit.LLMPrompt(deps.WorkflowID, prompt))

		out, err := deps.Invoker.Invoke(ctx, "llm_reason", activity.Context{
			WorkflowID: deps.WorkflowID, ActivityID: ids.next("reason"), MaxAttempts: 3,
		}, map[string]any{"query": prompt, "context": context_, "mode": "reason"})
		if err != nil {
			return Result{}, fmt.Errorf("chain of thought step %d: %w", i, err)
		}

		text := textOf(out)
		publish(deps, emit.LLMOutput(deps.WorkflowID, text, nil))
		steps = append(steps, text)
		tokens.InputTokens += intOut(out, "input_tokens")
		tokens.OutputTokens += intOut(out, "output_tokens")

		percent := int(float64(i) / float64(maxSteps) * 100)
		publish(deps, emit.Progress(deps.WorkflowID, percent, fmt.Sprintf("step %d/%d", i, maxSteps)))

		if strings.Contains(text, marker) {
			break
		}
	}

	publish(deps, emit.AgentCompleted(deps.WorkflowID))
	return Result{Output: steps[len(steps)-1], ReasoningSteps: steps, TokenUsage: tokens}, nil
}

func intOut(out map[string]any, key string) int {
	switch v := out[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
