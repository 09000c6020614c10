package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"maestro/internal/ports"
)

// WriteFileSuccessPrefix is the sentinel the orchestrator matches to detect
// a fresh artifact. Format: SUCCESS::write_file:::<relative_path>
const WriteFileSuccessPrefix = "SUCCESS::write_file:::"

type writeFile struct {
	dir string
}

// NewWriteFile creates the task-scoped write_file tool bound to a workspace
// directory.
func NewWriteFile(dir string) ports.ToolExecutor {
	return &writeFile{dir: dir}
}

func (t *writeFile) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	rel, ok := stringArg(call.Arguments, "path")
	if !ok {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("missing 'path'")}, nil
	}
	content, ok := call.Arguments["content"].(string)
	if !ok {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("missing 'content'")}, nil
	}

	path, err := resolveWithin(t.dir, rel)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: err}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: err}, nil
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: err}, nil
	}

	return &ports.ToolResult{
		CallID:  call.ID,
		Content: WriteFileSuccessPrefix + rel,
	}, nil
}

func (t *writeFile) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "write_file",
		Description: "Write content to a file in the task workspace",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"path":    {Type: "string", Description: "Path relative to the task workspace"},
				"content": {Type: "string", Description: "Content to write"},
			},
			Required: []string{"path", "content"},
		},
	}
}
