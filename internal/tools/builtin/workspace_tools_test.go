package builtin

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"maestro/internal/ports"
)

func TestResolveWithinRejectsEscapes(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	for _, rel := range []string{"../outside.txt", "/etc/passwd", "a/../../b", ""} {
		if _, err := resolveWithin(dir, rel); err == nil {
			t.Errorf("resolveWithin(%q) should fail", rel)
		}
	}
	if _, err := resolveWithin(dir, "sub/notes.txt"); err != nil {
		t.Errorf("resolveWithin(sub/notes.txt) error = %v", err)
	}
}

func TestWriteFileEmitsSuccessSentinel(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	tool := NewWriteFile(dir)

	result, err := tool.Execute(context.Background(), ports.ToolCall{
		ID:        "c1",
		Arguments: map[string]any{"path": "notes.txt", "content": "done"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Content != WriteFileSuccessPrefix+"notes.txt" {
		t.Fatalf("sentinel mismatch: %q", result.Content)
	}

	data, err := os.ReadFile(filepath.Join(dir, "notes.txt"))
	if err != nil || string(data) != "done" {
		t.Fatalf("file content = %q, err = %v", data, err)
	}
}

func TestWriteFileRefusesEscape(t *testing.T) {
	t.Parallel()
	tool := NewWriteFile(t.TempDir())

	result, err := tool.Execute(context.Background(), ports.ToolCall{
		ID:        "c1",
		Arguments: map[string]any{"path": "../evil.txt", "content": "x"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Error == nil {
		t.Fatal("escaping path must produce a tool error, not success")
	}
}

func TestReadFileRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "data.csv"), []byte("a,b\n1,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := NewReadFile(dir).Execute(context.Background(), ports.ToolCall{
		ID:        "c1",
		Arguments: map[string]any{"path": "data.csv"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Error != nil || result.Content != "a,b\n1,2\n" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestListFilesShowsEntries(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, "one.txt"), []byte("1"), 0o644)
	_ = os.MkdirAll(filepath.Join(dir, "sub"), 0o755)

	result, err := NewListFiles(dir).Execute(context.Background(), ports.ToolCall{
		ID: "c1", Arguments: map[string]any{},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(result.Content, "one.txt") || !strings.Contains(result.Content, "sub/") {
		t.Fatalf("listing incomplete: %q", result.Content)
	}
}

func TestWorkspaceShellRunsInWorkspace(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("x"), 0o644)

	tool := NewWorkspaceShell(dir, 10*time.Second)
	result, err := tool.Execute(context.Background(), ports.ToolCall{
		ID:        "c1",
		Arguments: map[string]any{"command": "ls"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Error != nil {
		t.Fatalf("shell error: %v", result.Error)
	}
	if !strings.Contains(result.Content, "marker.txt") {
		t.Fatalf("command did not run in workspace dir: %q", result.Content)
	}
}

func TestWorkspaceShellTimeout(t *testing.T) {
	t.Parallel()
	tool := NewWorkspaceShell(t.TempDir(), 100*time.Millisecond)

	result, err := tool.Execute(context.Background(), ports.ToolCall{
		ID:        "c1",
		Arguments: map[string]any{"command": "sleep 5"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Error == nil || !strings.Contains(result.Error.Error(), "timed out") {
		t.Fatalf("expected timeout error, got %v", result.Error)
	}
}

func TestQueryFilesKeywordFallback(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, "report.md"), []byte("findings about protein folding"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "other.txt"), []byte("unrelated notes"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "image.png"), []byte{0x89}, 0o644)

	tool := NewQueryFiles(dir, EmbeddingConfig{})
	result, err := tool.Execute(context.Background(), ports.ToolCall{
		ID:        "c1",
		Arguments: map[string]any{"query": "protein folding"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(result.Content, "report.md") {
		t.Fatalf("expected report.md hit, got %q", result.Content)
	}
	if strings.Contains(result.Content, "other.txt") {
		t.Fatalf("unrelated file should not match: %q", result.Content)
	}
}
