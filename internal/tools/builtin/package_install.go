package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"time"

	"maestro/internal/ports"
)

// Package names are validated before being handed to pip; anything else is
// shell-injection surface.
var packageNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-\[\]=<>,]*$`)

type packageInstall struct {
	timeout time.Duration
}

// NewPackageInstall creates the stateless package_install tool (pip).
func NewPackageInstall(timeout time.Duration) ports.ToolExecutor {
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &packageInstall{timeout: timeout}
}

func (t *packageInstall) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	pkg, ok := stringArg(call.Arguments, "package")
	if !ok {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("missing 'package'")}, nil
	}
	if !packageNamePattern.MatchString(pkg) {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("invalid package name: %q", pkg)}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "python3", "-m", "pip", "install", "--user", pkg)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ports.ToolResult{
			CallID: call.ID,
			Error:  fmt.Errorf("package install timed out after %s", t.timeout),
		}, nil
	}
	if runErr != nil {
		content := renderShellOutput("pip install "+pkg, stdout.String(), stderr.String(), exitCode(runErr))
		return &ports.ToolResult{CallID: call.ID, Content: content, Error: runErr}, nil
	}

	return &ports.ToolResult{CallID: call.ID, Content: fmt.Sprintf("Installed %s", pkg)}, nil
}

func (t *packageInstall) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "package_install",
		Description: "Install a Python package with pip",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"package": {Type: "string", Description: "Package spec, e.g. requests or pandas==2.2.0"},
			},
			Required: []string{"package"},
		},
	}
}
