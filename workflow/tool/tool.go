// Package tool implements the tool_execute activity's callable
// surface (spec §4.F): the Tool interface, an allow/block-list Security
// policy, and HTTP, caching and mock Tool implementations. Tools run
// in-process; nothing here executes them inside the WASM sandbox.
package tool

import "context"

// Tool is one callable capability a pattern's tool_execute step can
// invoke. Name must match a model.ToolSpec.Name the model was offered,
// and Call's input shape must match that spec's Schema.
type Tool interface {
	Name() string
	Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}
