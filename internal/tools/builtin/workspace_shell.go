package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"maestro/internal/ports"
)

type workspaceShell struct {
	dir     string
	timeout time.Duration
}

// NewWorkspaceShell creates the task-scoped shell tool. Commands run with
// the workspace directory as cwd and a hard timeout.
func NewWorkspaceShell(dir string, timeout time.Duration) ports.ToolExecutor {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &workspaceShell{dir: dir, timeout: timeout}
}

func (t *workspaceShell) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	command, ok := stringArg(call.Arguments, "command")
	if !ok {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("missing 'command'")}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	cmd.Dir = t.dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ports.ToolResult{
			CallID: call.ID,
			Error:  fmt.Errorf("command timed out after %s", t.timeout),
		}, nil
	}

	content := renderShellOutput(command, stdout.String(), stderr.String(), exitCode(runErr))
	return &ports.ToolResult{CallID: call.ID, Content: content, Error: runErr}, nil
}

func (t *workspaceShell) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "workspace_shell",
		Description: "Execute a shell command inside the task workspace",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"command": {Type: "string", Description: "Shell command to run"},
			},
			Required: []string{"command"},
		},
	}
}

func exitCode(runErr error) int {
	if runErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func renderShellOutput(command, stdout, stderr string, code int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "$ %s\nexit_code: %d\n", command, code)
	if out := strings.TrimSpace(stdout); out != "" {
		fmt.Fprintf(&b, "stdout:\n%s\n", out)
	}
	if errOut := strings.TrimSpace(stderr); errOut != "" {
		fmt.Fprintf(&b, "stderr:\n%s\n", errOut)
	}
	return b.String()
}
