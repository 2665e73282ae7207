package pattern

import (
	"context"
	"fmt"

	"github.com/shannon-run/shannon/workflow/activity"
	"github.com/shannon-run/shannon/workflow/emit"
)

// Research asks the model to decompose the query, then runs
// sources_per_round rounds, each a web search on the decomposition
// output followed by an analysis activity over that round's results,
// and finally synthesizes across all analyses (spec §4.H). The
// decomposition output is used whole as one search query; it is not
// split into separate sub-questions, so every round searches the same
// text.
type Research struct{}

func (Research) Name() string { return "research" }

func (Research) Run(ctx context.Context, in Input, deps Deps) (Result, error) {
	sourcesPerRound := configInt(in.Config, "sources_per_round", 3)
	verificationThreshold := configFloat(in.Config, "verification_threshold", 0.5)

	publish(deps, emit.AgentStarted(deps.WorkflowID, "research"))
	ids := newIDSeq(deps.WorkflowID)
	tokens := TokenUsage{}

	decomposePrompt := fmt.Sprintf("Decompose this query into distinct sub-questions: %s", in.Query)
	publish(deps, emit.LLMPrompt(deps.WorkflowID, decomposePrompt))
	decomposeOut, err := deps.Invoker.Invoke(ctx, "llm_reason", activity.Context{
		WorkflowID: deps.WorkflowID, ActivityID: ids.next("decompose"), MaxAttempts: 3,
	}, map[string]any{"query": decomposePrompt, "mode": "reason"})
	if err != nil {
		return Result{}, fmt.Errorf("research: decompose: %w", err)
	}
	subQuestion := textOf(decomposeOut)
	publish(deps, emit.LLMOutput(deps.WorkflowID, subQuestion, nil))
	tokens.InputTokens += intOut(decomposeOut, "input_tokens")
	tokens.OutputTokens += intOut(decomposeOut, "output_tokens")

	var sources []Source
	var reasoning []string
	for i := 1; i <= sourcesPerRound; i++ {
		publish(deps, emit.ToolInvoked(deps.WorkflowID, "web_search", map[string]any{"query": subQuestion}))
		searchOut, err := deps.Invoker.Invoke(ctx, "web_search", activity.Context{
			WorkflowID: deps.WorkflowID, ActivityID: ids.next("search"), MaxAttempts: 3,
		}, map[string]any{"query": subQuestion})
		if err != nil {
			publish(deps, emit.ToolError(deps.WorkflowID, "web_search", err.Error()))
			return Result{}, fmt.Errorf("research: search round %d: %w", i, err)
		}
		publish(deps, emit.ToolObservation(deps.WorkflowID, "web_search", searchOut))
		confidence, ok := searchOut["confidence"].(float64)
		if !ok {
			confidence = 1
		}
		sources = append(sources, Source{
			Text:     fmt.Sprintf("round %d: %v", i, searchOut["results"]),
			Verified: confidence >= verificationThreshold,
		})

		analysisPrompt := fmt.Sprintf("Analyze these search results for the question %q:\n%v", subQuestion, searchOut["results"])
		publish(deps, emit.LLMPrompt(deps.WorkflowID, analysisPrompt))
		analysisOut, err := deps.Invoker.Invoke(ctx, "llm_reason", activity.Context{
			WorkflowID: deps.WorkflowID, ActivityID: ids.next("analyze"), MaxAttempts: 3,
		}, map[string]any{"query": analysisPrompt, "mode": "reason"})
		if err != nil {
			return Result{}, fmt.Errorf("research: analysis round %d: %w", i, err)
		}
		analysisText := textOf(analysisOut)
		publish(deps, emit.LLMOutput(deps.WorkflowID, analysisText, nil))
		tokens.InputTokens += intOut(analysisOut, "input_tokens")
		tokens.OutputTokens += intOut(analysisOut, "output_tokens")
		reasoning = append(reasoning, analysisText)

		publish(deps, emit.Progress(deps.WorkflowID, i*100/sourcesPerRound, fmt.Sprintf("round %d/%d", i, sourcesPerRound)))
	}

	synthPrompt := fmt.Sprintf("Synthesize a final answer to %q from this analysis:\n%v", in.Query, reasoning)
	publish(deps, emit.LLMPrompt(deps.WorkflowID, synthPrompt))
	synthOut, err := deps.Invoker.Invoke(ctx, "llm_synthesize", activity.Context{
		WorkflowID: deps.WorkflowID, ActivityID: ids.next("synthesize"), MaxAttempts: 3,
	}, map[string]any{"query": synthPrompt, "mode": "synthesize"})
	if err != nil {
		return Result{}, fmt.Errorf("research: synthesize: %w", err)
	}
	final := textOf(synthOut)
	publish(deps, emit.LLMOutput(deps.WorkflowID, final, nil))
	tokens.InputTokens += intOut(synthOut, "input_tokens")
	tokens.OutputTokens += intOut(synthOut, "output_tokens")

	publish(deps, emit.AgentCompleted(deps.WorkflowID))
	return Result{Output: final, ReasoningSteps: reasoning, Sources: sources, TokenUsage: tokens}, nil
}
