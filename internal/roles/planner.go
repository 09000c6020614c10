package roles

import (
	"context"
	"fmt"
	"strings"

	"maestro/internal/ports"
)

const plannerPrompt = `You are a planning assistant. Break the user's request into a short
sequence of concrete steps. Each step must have a clear description and an
expected outcome; name a tool hint when one of the available tools obviously
applies. When a step produces a substantial document or dataset, split it in
two: first produce the content, then write or format it.

Available tools:
%TOOLS%

User request:
%QUERY%

Reply with a JSON object:
{
  "human_summary": "<one short paragraph describing the plan>",
  "plan_steps": [
    {"step_id": 1, "description": "...", "tool_hint": "...", "input_hint": "...", "expected_outcome": "..."}
  ]
}
Step ids start at 1 and increase by one. tool_hint and input_hint may be omitted.`

// Plan produces a confirmed-plan candidate for the user's request.
func Plan(ctx context.Context, client ports.LLMClient, query, toolSummary string) (*PlanResult, error) {
	prompt := strings.NewReplacer("%TOOLS%", toolSummary, "%QUERY%", query).Replace(plannerPrompt)
	resp, err := client.Complete(ctx, ports.CompletionRequest{
		Messages: []ports.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("planner call: %w", err)
	}

	var result PlanResult
	if err := decodeStructured(resp.Content, &result); err != nil {
		return nil, fmt.Errorf("planner output: %w", err)
	}
	if err := validatePlan(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// validatePlan enforces dense 1-based step ids and non-empty descriptions.
// Missing ids are renumbered rather than rejected; models frequently drop
// them while keeping order.
func validatePlan(result *PlanResult) error {
	if len(result.Steps) == 0 {
		return fmt.Errorf("planner produced no steps")
	}
	for i := range result.Steps {
		step := &result.Steps[i]
		step.StepID = i + 1
		if strings.TrimSpace(step.Description) == "" {
			return fmt.Errorf("step %d has an empty description", step.StepID)
		}
		if strings.TrimSpace(step.ExpectedOutcome) == "" {
			step.ExpectedOutcome = "Step completes as described."
		}
	}
	return nil
}
