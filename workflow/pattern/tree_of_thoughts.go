package pattern

import (
	"context"
	"fmt"
	"strings"

	wfactivity "github.com/shannon-run/shannon/workflow/activity"
	"github.com/shannon-run/shannon/workflow/emit"
)

// TreeOfThoughts fans out branch_factor alternate thoughts at each
// depth, scores each, keeps the highest, and prunes the search early
// if that score falls below prune_threshold — bounded by max_depth
// (spec §4.H). Branches are issued sequentially, in index order,
// rather than concurrently: result ordering must not depend on
// scheduling, or replay would stop being deterministic.
type TreeOfThoughts struct{}

func (TreeOfThoughts) Name() string { return "tree_of_thoughts" }

func (TreeOfThoughts) Run(ctx context.Context, in Input, deps Deps) (Result, error) {
	maxDepth := configInt(in.Config, "max_depth", 3)
	branchFactor := configInt(in.Config, "branch_factor", 3)
	pruneThreshold := configFloat(in.Config, "prune_threshold", 0.0)

	publish(deps, emit.AgentStarted(deps.WorkflowID, "tree_of_thoughts"))
	ids := newIDSeq(deps.WorkflowID)

	tokens := TokenUsage{}
	path := make([]string, 0, maxDepth)

	var bestScore float64
	for depth := 1; depth <= maxDepth; depth++ {
		prefix := strings.Join(path, " -> ")

		var bestText string
		bestScore = -1
		for branch := 0; branch < branchFactor; branch++ {
			prompt := fmt.Sprintf("Depth %d, branch %d. Query: %s\nPath so far: %s\nPropose the next thought.", depth, branch, in.Query, prefix)
			publish(deps, emit.LLMPrompt(deps.WorkflowID, prompt))

			out, err := deps.Invoker.Invoke(ctx, "llm_reason", wfactivity.Context{
				WorkflowID:  deps.WorkflowID,
				ActivityID:  ids.next(fmt.Sprintf("d%d-b%d", depth, branch)),
				MaxAttempts: 3,
			}, map[string]any{"query": prompt, "mode": "reason"})
			if err != nil {
				return Result{}, fmt.Errorf("tree of thoughts depth %d branch %d: %w", depth, branch, err)
			}

			text := textOf(out)
			publish(deps, emit.LLMOutput(deps.WorkflowID, text, nil))
			tokens.InputTokens += intOut(out, "input_tokens")
			tokens.OutputTokens += intOut(out, "output_tokens")

			score := scoreThought(text)
			if score > bestScore {
				bestScore, bestText = score, text
			}
		}

		path = append(path, bestText)

		percent := int(float64(depth) / float64(maxDepth) * 100)
		publish(deps, emit.Progress(deps.WorkflowID, percent, fmt.Sprintf("depth %d/%d, score %.2f", depth, maxDepth, bestScore)))

		if bestScore < pruneThreshold {
			break
		}
	}

	publish(deps, emit.AgentCompleted(deps.WorkflowID))
	output := in.Query
	if len(path) > 0 {
		output = path[len(path)-1]
	}
	return Result{Output: output, ReasoningSteps: path, TokenUsage: tokens}, nil
}

// scoreThought is a deterministic, pure heuristic over an already-
// fetched LLM output: longer, more substantive continuations score
// higher, capped at 1.0. It introduces no clock, randomness, or I/O,
// preserving the pattern's replay determinism (spec §4.H).
func scoreThought(text string) float64 {
	words := len(strings.Fields(text))
	score := float64(words) / 50.0
	if score > 1.0 {
		score = 1.0
	}
	return score
}
