package roles

import (
	"context"
	"fmt"
	"strings"

	"maestro/internal/ports"
	"maestro/internal/shared/jsonx"
)

const stepEvaluatorPrompt = `You judge whether one plan step achieved its goal.

Step:
%STEP%

Controller decision:
%DECISION%

Executor result:
%RESULT%

Available tools:
%TOOLS%

If the goal was not achieved, decide whether a retry with a different tool or
different input could plausibly succeed, and suggest the change.

Reply with a JSON object:
{"achieved_goal": bool, "assessment": "<short verdict>",
 "is_recoverable_via_retry": bool,
 "suggested_new_tool_for_retry": "<tool name or empty>",
 "suggested_new_input_instructions_for_retry": "<instructions or empty>",
 "confidence": 0.0-1.0}`

const overallEvaluatorPrompt = `You judge whether a completed plan satisfied the user's request.

Original request:
%QUERY%

Plan execution trace:
%TRACE%

Final answer candidate:
%ANSWER%

Reply with a JSON object:
{"overall_success": bool, "assessment": "<the message to show the user>",
 "missing_information": ["..."], "suggestions_for_replan": ["..."],
 "confidence": 0.0-1.0}
The assessment is shown to the user verbatim; write it as the final answer,
not as meta-commentary about the plan.`

// EvaluateStep judges one attempt. executorOutput carries the result on
// success; attemptErr carries the error surface when the attempt failed.
func EvaluateStep(ctx context.Context, client ports.LLMClient, step PlanStep,
	decision *ControllerDecision, executorOutput, attemptErr, toolSummary string) (*StepEvaluation, error) {

	stepJSON, err := jsonx.Marshal(step)
	if err != nil {
		return nil, fmt.Errorf("encode step: %w", err)
	}
	decisionJSON := []byte("null")
	if decision != nil {
		if decisionJSON, err = jsonx.Marshal(decision); err != nil {
			return nil, fmt.Errorf("encode decision: %w", err)
		}
	}
	result := executorOutput
	if attemptErr != "" {
		result = "ERROR: " + attemptErr
	}

	prompt := strings.NewReplacer(
		"%STEP%", string(stepJSON),
		"%DECISION%", string(decisionJSON),
		"%RESULT%", result,
		"%TOOLS%", toolSummary,
	).Replace(stepEvaluatorPrompt)

	resp, err := client.Complete(ctx, ports.CompletionRequest{
		Messages:    []ports.Message{{Role: "user", Content: prompt}},
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("step evaluator call: %w", err)
	}

	var eval StepEvaluation
	if err := decodeStructured(resp.Content, &eval); err != nil {
		return nil, fmt.Errorf("step evaluator output: %w", err)
	}
	return &eval, nil
}

// EvaluateOverall judges the completed plan and produces the user-facing
// closing assessment.
func EvaluateOverall(ctx context.Context, client ports.LLMClient, query, trace, finalAnswer string) (*OverallEvaluation, error) {
	prompt := strings.NewReplacer(
		"%QUERY%", query,
		"%TRACE%", trace,
		"%ANSWER%", finalAnswer,
	).Replace(overallEvaluatorPrompt)

	resp, err := client.Complete(ctx, ports.CompletionRequest{
		Messages: []ports.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("overall evaluator call: %w", err)
	}

	var eval OverallEvaluation
	if err := decodeStructured(resp.Content, &eval); err != nil {
		return nil, fmt.Errorf("overall evaluator output: %w", err)
	}
	return &eval, nil
}
