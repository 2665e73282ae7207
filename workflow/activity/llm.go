package activity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shannon-run/shannon/workflow/model"
)

// llmRequest is the wire shape posted to a configured LLM endpoint
// (spec §4.F): {query, context, agent_id, mode, tools, max_tokens,
// temperature, model_tier}.
type llmRequest struct {
	Query       string   `json:"query"`
	Context     string   `json:"context"`
	AgentID     string   `json:"agent_id"`
	Mode        string   `json:"mode"`
	Tools       []string `json:"tools,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	ModelTier   string   `json:"model_tier,omitempty"`
}

type llmResponse struct {
	Text         string `json:"text"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// LLMActivity implements "LLM reason" and "LLM synthesize" (spec
// §4.F). With no chat backend configured, both POST the same request
// shape to a configured endpoint, differing only in Mode ("reason" vs
// "synthesize") and name. With a chat backend configured (one of
// workflow/model's provider adapters), calls go directly to the
// provider instead of round-tripping through an HTTP endpoint.
type LLMActivity struct {
	name      string
	mode      string
	endpoint  string
	client    *http.Client
	chat      model.ChatModel
	modelName string
	costs     *CostTracker
}

// NewLLMActivity constructs the reason or synthesize activity against
// endpoint, recording cost via costs (nil disables cost accounting).
func NewLLMActivity(name, mode, endpoint string, costs *CostTracker) *LLMActivity {
	return &LLMActivity{name: name, mode: mode, endpoint: endpoint, client: &http.Client{}, costs: costs}
}

// NewLLMActivityWithModel is NewLLMActivity backed directly by a
// workflow/model.ChatModel provider adapter instead of an HTTP
// endpoint, for deployments that talk to a model provider in-process
// rather than through a separate agent-runtime service. modelName is
// the pricing-table key to bill calls against (the adapters don't
// expose their configured model name, so the caller supplies it).
func NewLLMActivityWithModel(name, mode string, chat model.ChatModel, modelName string, costs *CostTracker) *LLMActivity {
	return &LLMActivity{name: name, mode: mode, chat: chat, modelName: modelName, costs: costs}
}

func (a *LLMActivity) Name() string { return a.name }

// Execute returns {text, model, input_tokens, output_tokens}. On a
// non-2xx response or a parse failure it returns a mock success (see
// mockFallback) instead of failing the activity, so a workflow can make
// forward progress in tests; no separate error event is recorded for
// that case. On connect/timeout it returns a retryable failure.
func (a *LLMActivity) Execute(ctx context.Context, actx Context, input map[string]any) (map[string]any, error) {
	query, _ := input["query"].(string)
	if query == "" {
		return nil, NonRetryable(errors.New("llm activity: query is required"))
	}

	if a.chat != nil {
		return a.executeViaModel(ctx, actx, query)
	}

	req := llmRequest{
		Query:       query,
		Mode:        a.mode,
		AgentID:     actx.WorkflowID,
		Context:     stringField(input, "context"),
		ModelTier:   stringField(input, "model_tier"),
		MaxTokens:   intField(input, "max_tokens"),
		Temperature: floatField(input, "temperature"),
	}
	if tools, ok := input["tools"].([]string); ok {
		req.Tools = tools
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, NonRetryable(fmt.Errorf("llm activity: marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, NonRetryable(fmt.Errorf("llm activity: build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		// Connect/timeout failures are retryable (spec §4.F).
		return nil, fmt.Errorf("llm activity: request failed: %w", err)
	}
	defer resp.Body.Close()

	var out llmResponse
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return a.mockFallback(query), nil
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return a.mockFallback(query), nil
	}

	if a.costs != nil && out.Model != "" {
		a.costs.RecordCall(out.Model, out.InputTokens, out.OutputTokens, actx.ActivityID)
	}

	return map[string]any{
		"text":          out.Text,
		"model":         out.Model,
		"input_tokens":  out.InputTokens,
		"output_tokens": out.OutputTokens,
	}, nil
}

// executeViaModel is the in-process provider path: a direct
// model.ChatModel.Chat call with no tools, the query as a single user
// message. ChatOut carries no token counts (the interface is
// provider-agnostic and several SDKs don't surface them uniformly), so
// cost accounting here uses a rune-count/4 estimate rather than exact
// usage; callers that need exact billing should prefer the HTTP
// backend against an endpoint that reports real token counts.
func (a *LLMActivity) executeViaModel(ctx context.Context, actx Context, query string) (map[string]any, error) {
	messages := []model.Message{{Role: model.RoleUser, Content: query}}
	out, err := a.chat.Chat(ctx, messages, nil)
	if err != nil {
		return nil, fmt.Errorf("llm activity: model chat: %w", err)
	}

	inputTokens := estimateTokens(query)
	outputTokens := estimateTokens(out.Text)
	if a.costs != nil {
		a.costs.RecordCall(a.modelName, inputTokens, outputTokens, actx.ActivityID)
	}

	return map[string]any{
		"text":          out.Text,
		"model":         a.modelName,
		"input_tokens":  inputTokens,
		"output_tokens": outputTokens,
	}, nil
}

func estimateTokens(s string) int {
	return (len([]rune(s)) + 3) / 4
}

// mockFallback lets a workflow make forward progress when the
// configured LLM endpoint is unreachable or returns a malformed
// response, per spec §4.F. The result is marked "mocked": true and is
// otherwise an ordinary success: the Invoker records it as
// ActivityCompleted and logs nothing for it, since it logs only failed
// attempts.
func (a *LLMActivity) mockFallback(query string) map[string]any {
	return map[string]any{
		"text":          fmt.Sprintf("[mock %s response for %q]", a.mode, query),
		"model":         "mock",
		"input_tokens":  0,
		"output_tokens": 0,
		"mocked":        true,
	}
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func floatField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}
