package tools

import (
	"context"

	"maestro/internal/ports"
)

// TruncationMarker flags capped tool output. The step evaluator sees the
// truncated form, so the marker must be unambiguous.
const TruncationMarker = "\n… [output truncated]"

type cappedTool struct {
	inner ports.ToolExecutor
	cap   int
}

// capOutput bounds a tool's output length. cap <= 0 disables capping.
func capOutput(tool ports.ToolExecutor, cap int) ports.ToolExecutor {
	if cap <= 0 {
		return tool
	}
	return &cappedTool{inner: tool, cap: cap}
}

func (c *cappedTool) Definition() ports.ToolDefinition {
	return c.inner.Definition()
}

func (c *cappedTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	result, err := c.inner.Execute(ctx, call)
	if err != nil || result == nil {
		return result, err
	}
	if len(result.Content) > c.cap {
		result.Content = result.Content[:c.cap] + TruncationMarker
	}
	return result, nil
}
