package activity

import (
	"context"
	"errors"
	"testing"

	"github.com/shannon-run/shannon/workflow/model"
)

func TestLLMActivity_ModelBackendReturnsText(t *testing.T) {
	chat := &model.MockChatModel{Responses: []model.ChatOut{{Text: "the answer"}}}
	a := NewLLMActivityWithModel("llm_reason", "reason", chat, "claude-sonnet-4-5-20250929", nil)

	out, err := a.Execute(context.Background(), Context{WorkflowID: "wf-1", ActivityID: "a-1"}, map[string]any{"query": "what is it"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out["text"] != "the answer" {
		t.Errorf("text = %v, want %q", out["text"], "the answer")
	}
	if out["model"] != "claude-sonnet-4-5-20250929" {
		t.Errorf("model = %v, want the configured model name", out["model"])
	}
	if chat.CallCount() != 1 {
		t.Errorf("CallCount() = %d, want 1", chat.CallCount())
	}
}

func TestLLMActivity_ModelBackendPropagatesError(t *testing.T) {
	chat := &model.MockChatModel{Err: errors.New("provider unavailable")}
	a := NewLLMActivityWithModel("llm_reason", "reason", chat, "gpt-4o", nil)

	_, err := a.Execute(context.Background(), Context{WorkflowID: "wf-1", ActivityID: "a-1"}, map[string]any{"query": "x"})
	if err == nil {
		t.Fatal("expected an error when the model backend fails")
	}
}

func TestLLMActivity_MissingQueryIsNonRetryable(t *testing.T) {
	a := NewLLMActivity("llm_reason", "reason", "http://unused", nil)
	_, err := a.Execute(context.Background(), Context{}, map[string]any{})
	if err == nil {
		t.Fatal("expected an error for missing query")
	}
	if isRetryable(err) {
		t.Error("missing query should be non-retryable")
	}
}
