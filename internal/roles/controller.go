package roles

import (
	"context"
	"fmt"
	"strings"

	"maestro/internal/ports"
	"maestro/internal/shared/jsonx"
)

const controllerPrompt = `You decide how to execute one step of a confirmed plan.

Original user request:
%QUERY%

Current step:
%STEP%

Available tool schemas:
%TOOLS%

%PREVIOUS%Choose at most one tool. Pick "no tool" only when the step is pure
reasoning over already-available information. When you choose a tool, the
tool_input must match that tool's schema exactly.

Reply with a JSON object:
{"tool_name": "<name or null>", "tool_input": {...} or null,
 "reasoning": "<why>", "confidence": 0.0-1.0}`

// Decide picks the tool and arguments for one step. previousOutput is the
// last successful step's executor output; empty for the first step or after
// a failed step.
func Decide(ctx context.Context, client ports.LLMClient, query string, step PlanStep,
	tools []ports.ToolDefinition, previousOutput string) (*ControllerDecision, error) {

	stepJSON, err := jsonx.Marshal(step)
	if err != nil {
		return nil, fmt.Errorf("encode step: %w", err)
	}
	toolJSON, err := jsonx.MarshalIndent(tools, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tool schemas: %w", err)
	}
	previous := ""
	if previousOutput != "" {
		previous = fmt.Sprintf("Output of the previous successful step:\n%s\n\n", previousOutput)
	}

	prompt := strings.NewReplacer(
		"%QUERY%", query,
		"%STEP%", string(stepJSON),
		"%TOOLS%", string(toolJSON),
		"%PREVIOUS%", previous,
	).Replace(controllerPrompt)

	resp, err := client.Complete(ctx, ports.CompletionRequest{
		Messages:    []ports.Message{{Role: "user", Content: prompt}},
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("controller call: %w", err)
	}

	var decision ControllerDecision
	if err := decodeStructured(resp.Content, &decision); err != nil {
		return nil, fmt.Errorf("controller output: %w", err)
	}
	normalizeDecision(&decision)
	return &decision, nil
}

// normalizeDecision maps the model's "null as string" habits onto the real
// nullable shape: no tool means nil name and nil input.
func normalizeDecision(d *ControllerDecision) {
	if d.ToolName != nil {
		name := strings.TrimSpace(*d.ToolName)
		if name == "" || strings.EqualFold(name, "null") || strings.EqualFold(name, "none") {
			d.ToolName = nil
		} else {
			d.ToolName = &name
		}
	}
	if d.ToolName == nil {
		d.ToolInput = nil
	}
}
