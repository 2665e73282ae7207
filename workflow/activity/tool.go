package activity

import (
	"context"
	"errors"

	"github.com/shannon-run/shannon/workflow/tool"
)

// ToolActivity invokes an in-process tool.Tool (spec §4.F "Tool
// execute"). A remote tool server is just another tool.Tool
// implementation (tool.HTTPTool), so this activity needs no separate
// remote-vs-local branch.
type ToolActivity struct {
	tools    map[string]tool.Tool
	security tool.Security
}

// NewToolActivity constructs the tool-execute activity over the given
// registered tools, keyed by Tool.Name(), permitting every one of them.
func NewToolActivity(tools []tool.Tool) *ToolActivity {
	return NewToolActivityWithSecurity(tools, tool.AllowAllTools())
}

// NewToolActivityWithSecurity is NewToolActivity with an explicit
// allow/block-list policy (SPEC_FULL.md §D.1) gating which of the
// registered tools are actually callable.
func NewToolActivityWithSecurity(tools []tool.Tool, security tool.Security) *ToolActivity {
	reg := make(map[string]tool.Tool, len(tools))
	for _, t := range tools {
		reg[t.Name()] = t
	}
	return &ToolActivity{tools: reg, security: security}
}

func (a *ToolActivity) Name() string { return "tool_execute" }

// Execute dispatches to the tool named by input["tool"], passing
// input["input"] through as the tool's own parameters.
func (a *ToolActivity) Execute(ctx context.Context, actx Context, input map[string]any) (map[string]any, error) {
	name := stringField(input, "tool")
	if name == "" {
		return nil, NonRetryable(errors.New("tool activity: tool name is required"))
	}
	if !a.security.Allows(name) {
		return nil, NonRetryable(errors.New("tool activity: tool " + name + " is not permitted by security policy"))
	}
	t, ok := a.tools[name]
	if !ok {
		return nil, NonRetryable(errors.New("tool activity: unknown tool " + name))
	}

	params, _ := input["input"].(map[string]any)
	out, err := t.Call(ctx, params)
	if err != nil {
		return nil, err
	}
	return out, nil
}
