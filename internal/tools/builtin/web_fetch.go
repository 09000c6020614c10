package builtin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"maestro/internal/ports"
)

type webFetch struct {
	client *http.Client
}

// NewWebFetch creates the stateless web_fetch tool. HTML responses are
// reduced to readable text; other content types are returned as-is.
func NewWebFetch(timeout time.Duration) ports.ToolExecutor {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &webFetch{client: &http.Client{Timeout: timeout}}
}

func (t *webFetch) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	rawURL, ok := stringArg(call.Arguments, "url")
	if !ok {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("missing 'url'")}, nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("invalid url: %q", rawURL)}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "maestro/1.0")

	resp, err := t.client.Do(req)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("fetch failed: %w", err)}, nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("fetch returned http %d", resp.StatusCode)}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: err}, nil
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/html") {
		text, err := extractReadableText(string(body))
		if err == nil {
			return &ports.ToolResult{CallID: call.ID, Content: text}, nil
		}
	}
	return &ports.ToolResult{CallID: call.ID, Content: string(body)}, nil
}

// extractReadableText strips scripts, styles and tags, collapsing the
// document body to whitespace-normalized text.
func extractReadableText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, nav, footer").Remove()

	var b strings.Builder
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		fmt.Fprintf(&b, "# %s\n\n", title)
	}
	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	for _, line := range strings.Split(body.Text(), "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}

func (t *webFetch) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "web_fetch",
		Description: "Fetch a URL and return its readable text content",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"url": {Type: "string", Description: "The http(s) URL to fetch"},
			},
			Required: []string{"url"},
		},
	}
}
