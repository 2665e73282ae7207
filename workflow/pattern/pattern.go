// Package pattern implements Shannon's cognitive patterns (spec §4.H):
// chain of thought, tree of thoughts, ReAct, research, debate, and
// reflection. Each pattern is a pure function of (ctx, input) plus the
// sequence of recorded activity outcomes — no direct clock, random, or
// I/O outside activity calls — so replaying the same event log always
// takes the same decisions and emits the same events in the same order.
package pattern

import (
	"context"
	"fmt"

	"github.com/shannon-run/shannon/workflow/activity"
	"github.com/shannon-run/shannon/workflow/emit"
)

// TokenUsage totals the input/output tokens consumed by a pattern run.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// Source is one piece of external evidence a pattern consulted.
// The Research pattern sets Verified when the search result's
// "confidence" (1 when absent) is at least its verification_threshold
// (default 0.5); the other patterns leave it false.
type Source struct {
	Text     string
	Verified bool
}

// Result is the uniform output of every cognitive pattern (spec §4.H).
type Result struct {
	Output         string
	ReasoningSteps []string
	Sources        []Source
	TokenUsage     TokenUsage
}

// Input is what a pattern receives to act on.
type Input struct {
	Query  string
	Config map[string]any
}

// Deps are the collaborators every pattern is built entirely from:
// activity calls and event emissions, nothing else.
type Deps struct {
	Invoker    *activity.Invoker
	Bus        *emit.Bus
	WorkflowID string
}

// Pattern is a single cognitive strategy.
type Pattern interface {
	Name() string
	Run(ctx context.Context, in Input, deps Deps) (Result, error)
}

// idSeq deterministically derives stable activity IDs from the
// workflow ID and a monotonic, pattern-local counter — never from
// time or randomness — so the same workflow input reproduces the same
// activity IDs across a replay (spec §4.F's stability requirement).
type idSeq struct {
	workflowID string
	n          int
}

func newIDSeq(workflowID string) *idSeq { return &idSeq{workflowID: workflowID} }

func (s *idSeq) next(label string) string {
	s.n++
	return fmt.Sprintf("%s:%s:%d", s.workflowID, label, s.n)
}

func publish(deps Deps, ev emit.NormalizedEvent) {
	if deps.Bus != nil {
		deps.Bus.Publish(ev)
	}
}

func configInt(cfg map[string]any, key string, def int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

func configFloat(cfg map[string]any, key string, def float64) float64 {
	switch v := cfg[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return def
	}
}

func textOf(out map[string]any) string {
	s, _ := out["text"].(string)
	return s
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}
