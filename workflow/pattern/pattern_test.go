package pattern

import (
	"context"
	"fmt"
	"testing"

	"github.com/shannon-run/shannon/workflow/activity"
	"github.com/shannon-run/shannon/workflow/breaker"
	"github.com/shannon-run/shannon/workflow/emit"
)

// fakeLLM returns a canned response, optionally prefixing the Nth
// call's output with a marker, so patterns' early-exit logic can be
// exercised deterministically.
type fakeLLM struct {
	name   string
	calls  int
	markAt int
	marker string
}

func (f *fakeLLM) Name() string { return f.name }

func (f *fakeLLM) Execute(_ context.Context, _ activity.Context, input map[string]any) (map[string]any, error) {
	f.calls++
	text := fmt.Sprintf("thought number %d responding to %v", f.calls, input["query"])
	if f.markAt > 0 && f.calls >= f.markAt {
		text = f.marker + " " + text
	}
	return map[string]any{"text": text, "model": "fake", "input_tokens": 10, "output_tokens": 10}, nil
}

type fakeTool struct{ calls int }

func (f *fakeTool) Name() string { return "tool_execute" }

func (f *fakeTool) Execute(_ context.Context, _ activity.Context, _ map[string]any) (map[string]any, error) {
	f.calls++
	return map[string]any{"observation": "ok"}, nil
}

type fakeSearch struct{ calls int }

func (f *fakeSearch) Name() string { return "web_search" }

func (f *fakeSearch) Execute(_ context.Context, _ activity.Context, _ map[string]any) (map[string]any, error) {
	f.calls++
	return map[string]any{"results": []map[string]any{{"title": "a source"}}}, nil
}

func newDeps(t *testing.T, acts ...activity.Activity) Deps {
	t.Helper()
	inv := activity.NewInvoker(breaker.NewRegistry(breaker.DefaultConfig()), nil, nil)
	for _, a := range acts {
		inv.Register(a)
	}
	return Deps{Invoker: inv, Bus: emit.NewBus(), WorkflowID: "wf-test"}
}

func TestChainOfThought_StopsAtTerminalMarker(t *testing.T) {
	llm := &fakeLLM{name: "llm_reason", markAt: 2, marker: defaultTerminalMarker}
	deps := newDeps(t, llm)

	res, err := (ChainOfThought{}).Run(context.Background(), Input{Query: "why is the sky blue", Config: map[string]any{"max_steps": 5}}, deps)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if llm.calls != 2 {
		t.Fatalf("calls = %d, want 2 (should stop at the terminal marker)", llm.calls)
	}
	if len(res.ReasoningSteps) != 2 {
		t.Fatalf("ReasoningSteps = %d, want 2", len(res.ReasoningSteps))
	}
}

func TestReAct_StopsAtCompletionMarker(t *testing.T) {
	llm := &fakeLLM{name: "llm_reason", markAt: 1, marker: reactCompletionMarker}
	tool := &fakeTool{}
	deps := newDeps(t, llm, tool)

	_, err := (ReAct{}).Run(context.Background(), Input{Query: "find x", Config: map[string]any{"max_iterations": 5, "tool": "calculator"}}, deps)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if llm.calls != 1 {
		t.Fatalf("calls = %d, want 1 (reason should declare completion immediately)", llm.calls)
	}
	if tool.calls != 0 {
		t.Fatalf("tool calls = %d, want 0 (no act step after immediate completion)", tool.calls)
	}
}

func TestReAct_LoopsUntilMaxIterations(t *testing.T) {
	llm := &fakeLLM{name: "llm_reason"}
	tool := &fakeTool{}
	deps := newDeps(t, llm, tool)

	_, err := (ReAct{}).Run(context.Background(), Input{Query: "find x", Config: map[string]any{"max_iterations": 3, "tool": "calculator"}}, deps)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if llm.calls != 3 {
		t.Fatalf("calls = %d, want 3", llm.calls)
	}
	if tool.calls != 3 {
		t.Fatalf("tool calls = %d, want 3", tool.calls)
	}
}

func TestResearch_RunsConfiguredRounds(t *testing.T) {
	reason := &fakeLLM{name: "llm_reason"}
	synth := &fakeLLM{name: "llm_synthesize"}
	search := &fakeSearch{}
	deps := newDeps(t, reason, synth, search)

	res, err := (Research{}).Run(context.Background(), Input{Query: "impact of x", Config: map[string]any{"sources_per_round": 2}}, deps)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if search.calls != 2 {
		t.Fatalf("search calls = %d, want 2", search.calls)
	}
	if len(res.Sources) != 2 {
		t.Fatalf("Sources = %d, want 2", len(res.Sources))
	}
}

func TestDebate_RunsConfiguredRoundsAndPerspectives(t *testing.T) {
	reason := &fakeLLM{name: "llm_reason"}
	synth := &fakeLLM{name: "llm_synthesize"}
	deps := newDeps(t, reason, synth)

	_, err := (Debate{}).Run(context.Background(), Input{Query: "is x good", Config: map[string]any{"rounds": 2, "perspectives": 2}}, deps)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// 2 rounds * 2 perspectives + 1 cross-examination between rounds = 5 reason calls.
	if reason.calls != 5 {
		t.Fatalf("reason calls = %d, want 5", reason.calls)
	}
	if synth.calls != 1 {
		t.Fatalf("synth calls = %d, want 1", synth.calls)
	}
}

func TestReflection_StopsWhenSatisfied(t *testing.T) {
	// A long critique text scores above the default 0.8 threshold via
	// scoreThought's word-count heuristic, ending the loop on iteration 1.
	llm := &longTextLLM{name: "llm_reason"}
	deps := newDeps(t, llm)

	res, err := (Reflection{}).Run(context.Background(), Input{Query: "explain x", Config: map[string]any{"max_iterations": 5}}, deps)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// initial + 1 critique = 2 steps, no refine call since satisfied immediately.
	if len(res.ReasoningSteps) != 2 {
		t.Fatalf("ReasoningSteps = %d, want 2", len(res.ReasoningSteps))
	}
}

type longTextLLM struct {
	name  string
	calls int
}

func (f *longTextLLM) Name() string { return f.name }

func (f *longTextLLM) Execute(_ context.Context, _ activity.Context, _ map[string]any) (map[string]any, error) {
	f.calls++
	words := make([]byte, 0, 400)
	for i := 0; i < 60; i++ {
		words = append(words, []byte("word ")...)
	}
	return map[string]any{"text": string(words), "input_tokens": 1, "output_tokens": 1}, nil
}

func TestTreeOfThoughts_RespectsMaxDepth(t *testing.T) {
	llm := &fakeLLM{name: "llm_reason"}
	deps := newDeps(t, llm)

	res, err := (TreeOfThoughts{}).Run(context.Background(), Input{Query: "best move", Config: map[string]any{"max_depth": 2, "branch_factor": 2, "prune_threshold": -1.0}}, deps)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.ReasoningSteps) != 2 {
		t.Fatalf("Path length = %d, want 2 (== max_depth)", len(res.ReasoningSteps))
	}
	// max_depth(2) * branch_factor(2) = 4 LLM calls.
	if llm.calls != 4 {
		t.Fatalf("llm calls = %d, want 4", llm.calls)
	}
}

func TestRegistry_ResolvesAllBuiltins(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"chain_of_thought", "tree_of_thoughts", "react", "research", "debate", "reflection"} {
		if _, ok := r.Get(name); !ok {
			t.Errorf("registry missing built-in pattern %q", name)
		}
	}
	if _, ok := r.Get("nonexistent"); ok {
		t.Error("registry should not resolve an unregistered pattern")
	}
}
