package builtin

import (
	"context"
	"fmt"
	"os"

	"maestro/internal/ports"
)

type readFile struct {
	dir string
}

// NewReadFile creates the task-scoped read_file tool bound to a workspace
// directory.
func NewReadFile(dir string) ports.ToolExecutor {
	return &readFile{dir: dir}
}

func (t *readFile) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
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
	return &ports.ToolResult{CallID: call.ID, Content: string(data)}, nil
}

func (t *readFile) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "read_file",
		Description: "Read a file from the task workspace",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"path": {Type: "string", Description: "Path relative to the task workspace"},
			},
			Required: []string{"path"},
		},
	}
}
