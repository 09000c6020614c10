package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/philippgille/chromem-go"

	"maestro/internal/ports"
	"maestro/internal/workspace"
)

// EmbeddingConfig selects the embedding backend for query_files. An empty
// BaseURL selects the keyword fallback.
type EmbeddingConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type queryFiles struct {
	dir       string
	embedding EmbeddingConfig
}

// NewQueryFiles creates the task-scoped query_files tool: semantic search
// over the workspace's text files via an in-memory chromem collection, with
// a keyword fallback when no embedding endpoint is configured.
func NewQueryFiles(dir string, embedding EmbeddingConfig) ports.ToolExecutor {
	return &queryFiles{dir: dir, embedding: embedding}
}

func (t *queryFiles) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	query, ok := stringArg(call.Arguments, "query")
	if !ok {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("missing 'query'")}, nil
	}

	docs, err := t.loadTextFiles()
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: err}, nil
	}
	if len(docs) == 0 {
		return &ports.ToolResult{CallID: call.ID, Content: "No text files in workspace."}, nil
	}

	if t.embedding.BaseURL == "" {
		return &ports.ToolResult{CallID: call.ID, Content: keywordSearch(query, docs)}, nil
	}

	content, err := t.vectorSearch(ctx, query, docs)
	if err != nil {
		// Embedding backend trouble should not sink the step; degrade to
		// the keyword scan.
		return &ports.ToolResult{CallID: call.ID, Content: keywordSearch(query, docs)}, nil
	}
	return &ports.ToolResult{CallID: call.ID, Content: content}, nil
}

type workspaceDoc struct {
	name    string
	content string
}

func (t *queryFiles) loadTextFiles() ([]workspaceDoc, error) {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var docs []workspaceDoc
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if kind, ok := workspace.Classify(entry.Name()); !ok || kind != workspace.ArtifactText {
			continue
		}
		data, err := os.ReadFile(filepath.Join(t.dir, entry.Name()))
		if err != nil {
			continue
		}
		docs = append(docs, workspaceDoc{name: entry.Name(), content: string(data)})
	}
	return docs, nil
}

func (t *queryFiles) vectorSearch(ctx context.Context, query string, docs []workspaceDoc) (string, error) {
	db := chromem.NewDB()
	embed := chromem.NewEmbeddingFuncOpenAICompat(
		t.embedding.BaseURL, t.embedding.APIKey, t.embedding.Model, nil)
	collection, err := db.CreateCollection("workspace", nil, embed)
	if err != nil {
		return "", err
	}

	for i, doc := range docs {
		err := collection.AddDocument(ctx, chromem.Document{
			ID:      fmt.Sprintf("%d:%s", i, doc.name),
			Content: doc.content,
			Metadata: map[string]string{
				"filename": doc.name,
			},
		})
		if err != nil {
			return "", err
		}
	}

	n := 3
	if n > len(docs) {
		n = len(docs)
	}
	results, err := collection.Query(ctx, query, n, nil, nil)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, res := range results {
		fmt.Fprintf(&b, "## %s (similarity %.2f)\n%s\n\n",
			res.Metadata["filename"], res.Similarity, snippet(res.Content, 600))
	}
	if b.Len() == 0 {
		return "No matching files.", nil
	}
	return b.String(), nil
}

func keywordSearch(query string, docs []workspaceDoc) string {
	terms := strings.Fields(strings.ToLower(query))
	type scored struct {
		doc   workspaceDoc
		score int
	}
	var hits []scored
	for _, doc := range docs {
		lower := strings.ToLower(doc.content)
		score := 0
		for _, term := range terms {
			score += strings.Count(lower, term)
		}
		if score > 0 {
			hits = append(hits, scored{doc: doc, score: score})
		}
	}
	if len(hits) == 0 {
		return "No matching files."
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > 3 {
		hits = hits[:3]
	}

	var b strings.Builder
	for _, hit := range hits {
		fmt.Fprintf(&b, "## %s (%d keyword hits)\n%s\n\n",
			hit.doc.name, hit.score, snippet(hit.doc.content, 600))
	}
	return b.String()
}

func snippet(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

func (t *queryFiles) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "query_files",
		Description: "Search the task workspace's text files for content relevant to a query",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"query": {Type: "string", Description: "What to look for"},
			},
			Required: []string{"query"},
		},
	}
}
