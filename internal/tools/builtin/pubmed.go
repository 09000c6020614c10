package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"maestro/internal/ports"
)

const eutilsBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

type pubmedSearch struct {
	client *http.Client
}

// NewPubMedSearch creates the stateless pubmed_search tool over the NCBI
// E-utilities API (esearch + esummary, JSON mode).
func NewPubMedSearch(timeout time.Duration) ports.ToolExecutor {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &pubmedSearch{client: &http.Client{Timeout: timeout}}
}

func (t *pubmedSearch) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	query, ok := stringArg(call.Arguments, "query")
	if !ok {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("missing 'query'")}, nil
	}
	maxResults := 5
	if mr, ok := call.Arguments["max_results"].(float64); ok && int(mr) > 0 {
		maxResults = int(mr)
		if maxResults > 20 {
			maxResults = 20
		}
	}

	ids, err := t.esearch(ctx, query, maxResults)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: err}, nil
	}
	if len(ids) == 0 {
		return &ports.ToolResult{CallID: call.ID, Content: "No PubMed results."}, nil
	}

	summaries, err := t.esummary(ctx, ids)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: err}, nil
	}
	return &ports.ToolResult{CallID: call.ID, Content: summaries}, nil
}

func (t *pubmedSearch) esearch(ctx context.Context, query string, limit int) ([]string, error) {
	u := fmt.Sprintf("%s/esearch.fcgi?db=pubmed&retmode=json&retmax=%d&term=%s",
		eutilsBase, limit, url.QueryEscape(query))
	body, err := t.get(ctx, u)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		ESearchResult struct {
			IDList []string `json:"idlist"`
		} `json:"esearchresult"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode esearch: %w", err)
	}
	return parsed.ESearchResult.IDList, nil
}

func (t *pubmedSearch) esummary(ctx context.Context, ids []string) (string, error) {
	u := fmt.Sprintf("%s/esummary.fcgi?db=pubmed&retmode=json&id=%s",
		eutilsBase, strings.Join(ids, ","))
	body, err := t.get(ctx, u)
	if err != nil {
		return "", err
	}
	var parsed struct {
		Result map[string]json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode esummary: %w", err)
	}

	var b strings.Builder
	for i, id := range ids {
		raw, ok := parsed.Result[id]
		if !ok {
			continue
		}
		var doc struct {
			Title    string `json:"title"`
			Source   string `json:"source"`
			PubDate  string `json:"pubdate"`
			FullJrnl string `json:"fulljournalname"`
		}
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		journal := doc.FullJrnl
		if journal == "" {
			journal = doc.Source
		}
		fmt.Fprintf(&b, "%d. %s\n   %s (%s)\n   https://pubmed.ncbi.nlm.nih.gov/%s/\n",
			i+1, doc.Title, journal, doc.PubDate, id)
	}
	if b.Len() == 0 {
		return "No PubMed results.", nil
	}
	return b.String(), nil
}

func (t *pubmedSearch) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pubmed request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pubmed returned http %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

func (t *pubmedSearch) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "pubmed_search",
		Description: "Search PubMed for biomedical literature",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"query":       {Type: "string", Description: "PubMed query string"},
				"max_results": {Type: "integer", Description: "Maximum results (1-20, default 5)"},
			},
			Required: []string{"query"},
		},
	}
}
