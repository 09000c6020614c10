package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"maestro/internal/ports"
)

type webSearch struct {
	client *http.Client
	apiKey string
}

// NewWebSearch creates the stateless web_search tool backed by the Tavily
// API. Without an API key the tool reports its setup instructions instead
// of failing the step.
func NewWebSearch(apiKey string) ports.ToolExecutor {
	return &webSearch{
		client: &http.Client{Timeout: 30 * time.Second},
		apiKey: apiKey,
	}
}

func (t *webSearch) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	if t.apiKey == "" {
		return &ports.ToolResult{
			CallID:  call.ID,
			Content: "Web search not configured: set MAESTRO_TAVILY_API_KEY to enable it.",
		}, nil
	}

	query, ok := stringArg(call.Arguments, "query")
	if !ok {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("missing 'query'")}, nil
	}
	maxResults := 5
	if mr, ok := call.Arguments["max_results"].(float64); ok {
		maxResults = int(mr)
		if maxResults < 1 {
			maxResults = 1
		}
		if maxResults > 10 {
			maxResults = 10
		}
	}

	body, err := json.Marshal(map[string]any{
		"api_key":        t.apiKey,
		"query":          query,
		"max_results":    maxResults,
		"include_answer": true,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://api.tavily.com/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("search request failed: %w", err)}, nil
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: err}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return &ports.ToolResult{
			CallID: call.ID,
			Error:  fmt.Errorf("search returned http %d", resp.StatusCode),
		}, nil
	}

	var parsed struct {
		Answer  string `json:"answer"`
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("decode search response: %w", err)}, nil
	}

	var b strings.Builder
	if parsed.Answer != "" {
		fmt.Fprintf(&b, "Answer: %s\n\n", parsed.Answer)
	}
	for i, r := range parsed.Results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n   %s\n", i+1, r.Title, r.URL, r.Content)
	}
	if b.Len() == 0 {
		b.WriteString("No results.")
	}
	return &ports.ToolResult{CallID: call.ID, Content: b.String()}, nil
}

func (t *webSearch) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "web_search",
		Description: "Search the web for current information",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"query":       {Type: "string", Description: "The search query"},
				"max_results": {Type: "integer", Description: "Maximum results (1-10, default 5)"},
			},
			Required: []string{"query"},
		},
	}
}
