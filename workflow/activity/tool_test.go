package activity

import (
	"context"
	"testing"

	"github.com/shannon-run/shannon/workflow/tool"
)

type stubTool struct {
	name  string
	calls int
}

func (s *stubTool) Name() string { return s.name }

func (s *stubTool) Call(_ context.Context, _ map[string]interface{}) (map[string]interface{}, error) {
	s.calls++
	return map[string]interface{}{"ok": true}, nil
}

func TestToolActivity_SecurityBlocksDisallowedTool(t *testing.T) {
	shell := &stubTool{name: "shell_exec"}
	a := NewToolActivityWithSecurity([]tool.Tool{shell}, tool.NewBlockList("shell_exec"))

	_, err := a.Execute(context.Background(), Context{}, map[string]any{"tool": "shell_exec"})
	if err == nil {
		t.Fatal("expected the security policy to reject shell_exec")
	}
	if shell.calls != 0 {
		t.Error("blocked tool should never be called")
	}
}

func TestToolActivity_SecurityAllowsPermittedTool(t *testing.T) {
	calc := &stubTool{name: "calculator"}
	a := NewToolActivityWithSecurity([]tool.Tool{calc}, tool.NewAllowList("calculator"))

	_, err := a.Execute(context.Background(), Context{}, map[string]any{"tool": "calculator"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if calc.calls != 1 {
		t.Errorf("calls = %d, want 1", calc.calls)
	}
}

func TestToolActivity_DefaultAllowsAll(t *testing.T) {
	calc := &stubTool{name: "calculator"}
	a := NewToolActivity([]tool.Tool{calc})

	if _, err := a.Execute(context.Background(), Context{}, map[string]any{"tool": "calculator"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
}
