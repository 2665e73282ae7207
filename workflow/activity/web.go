package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// WebFetchActivity validates and performs a GET request (spec §4.F
// "Web fetch"): scheme must be http/https, URL must be non-empty,
// request runs with the caller's timeout.
type WebFetchActivity struct {
	client *http.Client
}

func NewWebFetchActivity() *WebFetchActivity {
	return &WebFetchActivity{client: &http.Client{}}
}

func (*WebFetchActivity) Name() string { return "web_fetch" }

func (a *WebFetchActivity) Execute(ctx context.Context, _ Context, input map[string]any) (map[string]any, error) {
	raw := stringField(input, "url")
	if raw == "" {
		return nil, NonRetryable(fmt.Errorf("web fetch: url is required"))
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, NonRetryable(fmt.Errorf("web fetch: invalid url: %w", err))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, NonRetryable(fmt.Errorf("web fetch: unsupported scheme %q", u.Scheme))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return nil, NonRetryable(fmt.Errorf("web fetch: build request: %w", err))
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web fetch: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("web fetch: read body: %w", err)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        string(body),
	}, nil
}

// WebSearchActivity queries a configured remote search backend (spec
// §4.F "Web search").
type WebSearchActivity struct {
	endpoint string
	client   *http.Client
}

func NewWebSearchActivity(endpoint string) *WebSearchActivity {
	return &WebSearchActivity{endpoint: endpoint, client: &http.Client{}}
}

func (*WebSearchActivity) Name() string { return "web_search" }

type searchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

func (a *WebSearchActivity) Execute(ctx context.Context, _ Context, input map[string]any) (map[string]any, error) {
	query := stringField(input, "query")
	if query == "" {
		return nil, NonRetryable(fmt.Errorf("web search: query is required"))
	}

	target := a.endpoint + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, NonRetryable(fmt.Errorf("web search: build request: %w", err))
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search: request failed: %w", err)
	}
	defer resp.Body.Close()

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("web search: parse response: %w", err)
	}

	out := make([]map[string]any, 0, len(results))
	for _, r := range results {
		out = append(out, map[string]any{"title": r.Title, "url": r.URL, "snippet": r.Snippet})
	}
	return map[string]any{"results": out}, nil
}
