package builtin

import (
	"context"
	"fmt"
	"os"
	"strings"

	"maestro/internal/ports"
)

type listFiles struct {
	dir string
}

// NewListFiles creates the task-scoped list_files tool bound to a workspace
// directory.
func NewListFiles(dir string) ports.ToolExecutor {
	return &listFiles{dir: dir}
}

func (t *listFiles) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	sub := "."
	if s, ok := stringArg(call.Arguments, "path"); ok {
		sub = s
	}
	path, err := resolveWithin(t.dir, sub)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: err}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: err}, nil
	}
	if len(entries) == 0 {
		return &ports.ToolResult{CallID: call.ID, Content: "(empty directory)"}, nil
	}

	var b strings.Builder
	for _, entry := range entries {
		if entry.IsDir() {
			fmt.Fprintf(&b, "%s/\n", entry.Name())
			continue
		}
		info, err := entry.Info()
		if err != nil {
			fmt.Fprintf(&b, "%s\n", entry.Name())
			continue
		}
		fmt.Fprintf(&b, "%s\t%d bytes\n", entry.Name(), info.Size())
	}
	return &ports.ToolResult{CallID: call.ID, Content: b.String()}, nil
}

func (t *listFiles) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "list_files",
		Description: "List files in the task workspace",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"path": {Type: "string", Description: "Subdirectory relative to the workspace (default '.')"},
			},
		},
	}
}
