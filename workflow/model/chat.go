// Package model provides LLM provider adapters for the reason and
// synthesize activities (spec §4.F).
package model

import "context"

// ChatModel abstracts a single LLM provider (Anthropic, OpenAI,
// Google, or a mock) behind one Chat call. LLMActivity uses it as an
// in-process alternative to its HTTP endpoint path; both take the same
// {query, mode, agent_id, ...} shape and return the same
// {text, model, input_tokens, output_tokens} activity result.
//
// Implementations are responsible for their own authentication,
// request/response translation, and context cancellation. The OpenAI
// adapter also retries transient errors itself (openai.ChatModel's
// maxRetries); on top of that, the activity.Invoker applies its own
// retry policy to every activity call, including this one.
type ChatModel interface {
	// Chat sends messages (with optional tool specs the model may
	// call) and returns either generated text, tool calls, or both.
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

// Message is one turn in a conversation passed to Chat.
type Message struct {
	Role    string // one of the Role* constants
	Content string
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolSpec describes a tool the model may invoke, in the same shape
// the tool layer (workflow/tool) registers under a capability profile.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{} // JSON Schema for the tool's input
}

// ChatOut is a provider's response: free text, tool calls, or both.
type ChatOut struct {
	Text      string
	ToolCalls []ToolCall
}

// ToolCall is one invocation the model requested. The caller resolves
// Name against the tool registry and feeds Input to tool.Tool.Call.
type ToolCall struct {
	Name  string
	Input map[string]interface{}
}
