package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"maestro/internal/ports"
)

type pythonREPL struct {
	timeout time.Duration
}

// NewPythonREPL creates the stateless python_repl tool. Each call runs a
// fresh interpreter; no state carries across invocations.
func NewPythonREPL(timeout time.Duration) ports.ToolExecutor {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &pythonREPL{timeout: timeout}
}

func (t *pythonREPL) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	code, ok := stringArg(call.Arguments, "code")
	if !ok {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("missing 'code'")}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "python3", "-c", code)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ports.ToolResult{
			CallID: call.ID,
			Error:  fmt.Errorf("python execution timed out after %s", t.timeout),
		}, nil
	}

	content := renderShellOutput("python3 -c …", stdout.String(), stderr.String(), exitCode(runErr))
	return &ports.ToolResult{CallID: call.ID, Content: content, Error: runErr}, nil
}

func (t *pythonREPL) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "python_repl",
		Description: "Run a Python snippet and return stdout/stderr",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"code": {Type: "string", Description: "Python source to execute"},
			},
			Required: []string{"code"},
		},
	}
}
