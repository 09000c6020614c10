package tools

import (
	"context"
	"strings"
	"testing"

	"maestro/internal/ports"
	"maestro/internal/workspace"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	workspaces, err := workspace.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	registry, err := NewRegistry(workspaces, Options{OutputCap: 100})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return registry
}

func TestForTaskWithoutTaskIsStatelessOnly(t *testing.T) {
	t.Parallel()
	registry := newTestRegistry(t)

	names := make(map[string]bool)
	for _, tool := range registry.ForTask("") {
		names[tool.Definition().Name] = true
	}
	if !names["web_search"] || !names["web_fetch"] {
		t.Fatalf("stateless tools missing: %v", names)
	}
	if names["write_file"] || names["workspace_shell"] {
		t.Fatalf("task-scoped tools must not appear without a task: %v", names)
	}
}

func TestForTaskIncludesWorkspaceTools(t *testing.T) {
	t.Parallel()
	registry := newTestRegistry(t)

	names := make(map[string]bool)
	for _, tool := range registry.ForTask("task-1") {
		names[tool.Definition().Name] = true
	}
	for _, want := range []string{"read_file", "write_file", "list_files", "workspace_shell", "query_files"} {
		if !names[want] {
			t.Errorf("missing task-scoped tool %q", want)
		}
	}
}

type bigOutputTool struct{}

func (bigOutputTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{Name: "big_output"}
}

func (bigOutputTool) Execute(_ context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	return &ports.ToolResult{CallID: call.ID, Content: strings.Repeat("x", 500)}, nil
}

func TestCapOutputTruncates(t *testing.T) {
	t.Parallel()
	capped := capOutput(bigOutputTool{}, 100)

	result, err := capped.Execute(context.Background(), ports.ToolCall{ID: "c1"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Content) != 100+len(TruncationMarker) {
		t.Fatalf("content length = %d", len(result.Content))
	}
	if !strings.HasSuffix(result.Content, TruncationMarker) {
		t.Fatalf("missing truncation marker: %q", result.Content[len(result.Content)-40:])
	}
}

func TestCapOutputDisabled(t *testing.T) {
	t.Parallel()
	uncapped := capOutput(bigOutputTool{}, 0)

	result, err := uncapped.Execute(context.Background(), ports.ToolCall{ID: "c1"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Content) != 500 {
		t.Fatalf("content length = %d, want 500", len(result.Content))
	}
}

func TestFindLocatesTool(t *testing.T) {
	t.Parallel()
	registry := newTestRegistry(t)

	tool, err := registry.Find("task-1", "write_file")
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if tool.Definition().Name != "write_file" {
		t.Fatalf("wrong tool: %s", tool.Definition().Name)
	}

	if _, err := registry.Find("task-1", "no_such_tool"); err == nil {
		t.Fatal("Find() should fail for unknown tool")
	}
}

func TestSummaryListsEveryTool(t *testing.T) {
	t.Parallel()
	registry := newTestRegistry(t)

	summary := registry.Summary("task-1")
	for _, def := range registry.Definitions("task-1") {
		if !strings.Contains(summary, "- "+def.Name+":") {
			t.Errorf("summary missing %q", def.Name)
		}
	}
}
