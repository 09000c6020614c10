package builtin

import (
	"context"
	"fmt"
	"os"

	"maestro/internal/ports"
)

const critiquePrompt = `You are a meticulous reviewer. Critique the following document.
Cover: factual soundness, structure, clarity, and completeness.
Finish with a short list of concrete improvements.

Document (%s):
---
%s
---`

type critiqueDocument struct {
	dir string
	llm ports.LLMClient
}

// NewCritiqueDocument creates the task-scoped critique_document tool. It
// reads a workspace file and asks the review LLM for an assessment.
func NewCritiqueDocument(dir string, llm ports.LLMClient) ports.ToolExecutor {
	return &critiqueDocument{dir: dir, llm: llm}
}

func (t *critiqueDocument) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	rel, ok := stringArg(call.Arguments, "path")
	if !ok {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("missing 'path'")}, nil
	}
	path, err := resolveWithin(t.dir, rel)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: err}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: err}, nil
	}

	resp, err := t.llm.Complete(ctx, ports.CompletionRequest{
		Messages: []ports.Message{
			{Role: "user", Content: fmt.Sprintf(critiquePrompt, rel, string(data))},
		},
	})
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("critique failed: %w", err)}, nil
	}
	return &ports.ToolResult{CallID: call.ID, Content: resp.Content}, nil
}

func (t *critiqueDocument) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "critique_document",
		Description: "Review a workspace document and return a structured critique",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"path": {Type: "string", Description: "Document path relative to the task workspace"},
			},
			Required: []string{"path"},
		},
	}
}
