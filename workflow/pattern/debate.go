package pattern

import (
	"context"
	"fmt"
	"strings"

	"github.com/shannon-run/shannon/workflow/activity"
	"github.com/shannon-run/shannon/workflow/emit"
)

// Debate runs rounds of perspectives each producing an argument, with
// a cross-examination step between rounds, and a final synthesis
// (spec §4.H).
type Debate struct{}

func (Debate) Name() string { return "debate" }

func (Debate) Run(ctx context.Context, in Input, deps Deps) (Result, error) {
	rounds := configInt(in.Config, "rounds", 2)
	perspectives := configInt(in.Config, "perspectives", 2)

	publish(deps, emit.AgentStarted(deps.WorkflowID, "debate"))
	ids := newIDSeq(deps.WorkflowID)
	tokens := TokenUsage{}

	var arguments []string
	var transcript strings.Builder
	transcript.WriteString(in.Query)

	for r := 1; r <= rounds; r++ {
		roundArgs := make([]string, 0, perspectives)
		for p := 1; p <= perspectives; p++ {
			prompt := fmt.Sprintf("Round %d, perspective %d. Topic: %s\nDebate so far:\n%s\nArgue from perspective %d.", r, p, in.Query, transcript.String(), p)
			publish(deps, emit.LLMPrompt(deps.WorkflowID, prompt))

			out, err := deps.Invoker.Invoke(ctx, "llm_reason", activity.Context{
				WorkflowID: deps.WorkflowID, ActivityID: ids.next(fmt.Sprintf("r%d-p%d", r, p)), MaxAttempts: 3,
			}, map[string]any{"query": prompt, "mode": "reason"})
			if err != nil {
				return Result{}, fmt.Errorf("debate round %d perspective %d: %w", r, p, err)
			}
			text := textOf(out)
			publish(deps, emit.LLMOutput(deps.WorkflowID, text, nil))
			tokens.InputTokens += intOut(out, "input_tokens")
			tokens.OutputTokens += intOut(out, "output_tokens")

			roundArgs = append(roundArgs, text)
			transcript.WriteString(fmt.Sprintf("\nPerspective %d: %s", p, text))
		}
		arguments = append(arguments, roundArgs...)

		if r < rounds {
			crossPrompt := fmt.Sprintf("Cross-examine the arguments from round %d:\n%s", r, transcript.String())
			publish(deps, emit.LLMPrompt(deps.WorkflowID, crossPrompt))
			crossOut, err := deps.Invoker.Invoke(ctx, "llm_reason", activity.Context{
				WorkflowID: deps.WorkflowID, ActivityID: ids.next(fmt.Sprintf("r%d-cross", r)), MaxAttempts: 3,
			}, map[string]any{"query": crossPrompt, "mode": "reason"})
			if err != nil {
				return Result{}, fmt.Errorf("debate round %d cross-examination: %w", r, err)
			}
			crossText := textOf(crossOut)
			publish(deps, emit.LLMOutput(deps.WorkflowID, crossText, nil))
			tokens.InputTokens += intOut(crossOut, "input_tokens")
			tokens.OutputTokens += intOut(crossOut, "output_tokens")
			transcript.WriteString("\nCross-examination: " + crossText)
			arguments = append(arguments, crossText)
		}

		publish(deps, emit.Progress(deps.WorkflowID, r*100/rounds, fmt.Sprintf("round %d/%d", r, rounds)))
	}

	synthPrompt := fmt.Sprintf("Synthesize a final verdict for %q from this debate:\n%s", in.Query, transcript.String())
	publish(deps, emit.LLMPrompt(deps.WorkflowID, synthPrompt))
	synthOut, err := deps.Invoker.Invoke(ctx, "llm_synthesize", activity.Context{
		WorkflowID: deps.WorkflowID, ActivityID: ids.next("synthesize"), MaxAttempts: 3,
	}, map[string]any{"query": synthPrompt, "mode": "synthesize"})
	if err != nil {
		return Result{}, fmt.Errorf("debate: synthesize: %w", err)
	}
	final := textOf(synthOut)
	publish(deps, emit.LLMOutput(deps.WorkflowID, final, nil))
	tokens.InputTokens += intOut(synthOut, "input_tokens")
	tokens.OutputTokens += intOut(synthOut, "output_tokens")

	publish(deps, emit.AgentCompleted(deps.WorkflowID))
	return Result{Output: final, ReasoningSteps: arguments, TokenUsage: tokens}, nil
}
