package pattern

import (
	"context"
	"fmt"

	"github.com/shannon-run/shannon/workflow/activity"
	"github.com/shannon-run/shannon/workflow/emit"
)

// Reflection produces an initial response, then runs up to
// max_iterations critique→refine cycles, stopping when a critique
// score exceeds satisfaction_threshold (spec §4.H).
type Reflection struct{}

func (Reflection) Name() string { return "reflection" }

func (Reflection) Run(ctx context.Context, in Input, deps Deps) (Result, error) {
	maxIterations := configInt(in.Config, "max_iterations", 3)
	satisfactionThreshold := configFloat(in.Config, "satisfaction_threshold", 0.8)

	publish(deps, emit.AgentStarted(deps.WorkflowID, "reflection"))
	ids := newIDSeq(deps.WorkflowID)
	tokens := TokenUsage{}

	initialPrompt := fmt.Sprintf("Provide an initial response to: %s", in.Query)
	publish(deps, emit.LLMPrompt(deps.WorkflowID, initialPrompt))
	initialOut, err := deps.Invoker.Invoke(ctx, "llm_reason", activity.Context{
		WorkflowID: deps.WorkflowID, ActivityID: ids.next("initial"), MaxAttempts: 3,
	}, map[string]any{"query": initialPrompt, "mode": "reason"})
	if err != nil {
		return Result{}, fmt.Errorf("reflection: initial response: %w", err)
	}
	response := textOf(initialOut)
	publish(deps, emit.LLMOutput(deps.WorkflowID, response, nil))
	tokens.InputTokens += intOut(initialOut, "input_tokens")
	tokens.OutputTokens += intOut(initialOut, "output_tokens")

	steps := []string{response}

	for i := 1; i <= maxIterations; i++ {
		critiquePrompt := fmt.Sprintf("Critique this response to %q:\n%s", in.Query, response)
		publish(deps, emit.LLMPrompt(deps.WorkflowID, critiquePrompt))
		critiqueOut, err := deps.Invoker.Invoke(ctx, "llm_reason", activity.Context{
			WorkflowID: deps.WorkflowID, ActivityID: ids.next(fmt.Sprintf("critique-%d", i)), MaxAttempts: 3,
		}, map[string]any{"query": critiquePrompt, "mode": "reason"})
		if err != nil {
			return Result{}, fmt.Errorf("reflection iteration %d critique: %w", i, err)
		}
		critique := textOf(critiqueOut)
		publish(deps, emit.LLMOutput(deps.WorkflowID, critique, nil))
		tokens.InputTokens += intOut(critiqueOut, "input_tokens")
		tokens.OutputTokens += intOut(critiqueOut, "output_tokens")
		steps = append(steps, critique)

		score := scoreThought(critique)
		publish(deps, emit.Progress(deps.WorkflowID, i*100/maxIterations, fmt.Sprintf("iteration %d/%d, score %.2f", i, maxIterations, score)))
		if score > satisfactionThreshold {
			break
		}

		refinePrompt := fmt.Sprintf("Refine this response to %q given the critique:\nResponse: %s\nCritique: %s", in.Query, response, critique)
		publish(deps, emit.LLMPrompt(deps.WorkflowID, refinePrompt))
		refineOut, err := deps.Invoker.Invoke(ctx, "llm_reason", activity.Context{
			WorkflowID: deps.WorkflowID, ActivityID: ids.next(fmt.Sprintf("refine-%d", i)), MaxAttempts: 3,
		}, map[string]any{"query": refinePrompt, "mode": "reason"})
		if err != nil {
			return Result{}, fmt.Errorf("reflection iteration %d refine: %w", i, err)
		}
		response = textOf(refineOut)
		publish(deps, emit.LLMOutput(deps.WorkflowID, response, nil))
		tokens.InputTokens += intOut(refineOut, "input_tokens")
		tokens.OutputTokens += intOut(refineOut, "output_tokens")
		steps = append(steps, response)
	}

	publish(deps, emit.AgentCompleted(deps.WorkflowID))
	return Result{Output: response, ReasoningSteps: steps, TokenUsage: tokens}, nil
}
