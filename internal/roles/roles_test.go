package roles

import (
	"context"
	"errors"
	"strings"
	"testing"

	"maestro/internal/llm"
	"maestro/internal/ports"
)

func TestClassifyIntentDirectQA(t *testing.T) {
	t.Parallel()
	client := llm.NewMock("m", llm.MockResponse{Content: `{"intent": "DIRECT_QA"}`})

	if got := ClassifyIntent(context.Background(), client, "What is 2+2?", ""); got != IntentDirectQA {
		t.Fatalf("intent = %q", got)
	}
}

func TestClassifyIntentDefaultsToPlanOnFailure(t *testing.T) {
	t.Parallel()

	failing := llm.NewMock("m", llm.MockResponse{Err: errors.New("boom")})
	if got := ClassifyIntent(context.Background(), failing, "q", ""); got != IntentPlan {
		t.Fatalf("transport failure: intent = %q, want PLAN", got)
	}

	garbled := llm.NewMock("m", llm.MockResponse{Content: "no json here"})
	if got := ClassifyIntent(context.Background(), garbled, "q", ""); got != IntentPlan {
		t.Fatalf("parse failure: intent = %q, want PLAN", got)
	}
}

func TestPlanDecodesFencedOutput(t *testing.T) {
	t.Parallel()
	client := llm.NewMock("m", llm.MockResponse{Content: "Here is the plan:\n```json\n" +
		`{"human_summary": "Two steps.", "plan_steps": [
			{"description": "List files", "tool_hint": "list_files", "expected_outcome": "A listing"},
			{"description": "Write notes", "expected_outcome": "File exists"}
		]}` + "\n```"})

	result, err := Plan(context.Background(), client, "do things", "- list_files: list\n")
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(result.Steps) != 2 {
		t.Fatalf("got %d steps", len(result.Steps))
	}
	// ids renumbered densely even when the model omitted them
	if result.Steps[0].StepID != 1 || result.Steps[1].StepID != 2 {
		t.Fatalf("ids = %d, %d", result.Steps[0].StepID, result.Steps[1].StepID)
	}
}

func TestPlanRejectsEmptySteps(t *testing.T) {
	t.Parallel()
	client := llm.NewMock("m", llm.MockResponse{Content: `{"human_summary": "x", "plan_steps": []}`})

	if _, err := Plan(context.Background(), client, "q", ""); err == nil {
		t.Fatal("zero-step planner output must fail")
	}
}

func TestDecideNormalizesNullTool(t *testing.T) {
	t.Parallel()
	client := llm.NewMock("m", llm.MockResponse{
		Content: `{"tool_name": "none", "tool_input": {"x": 1}, "reasoning": "pure reasoning", "confidence": 0.9}`,
	})

	decision, err := Decide(context.Background(), client, "q",
		PlanStep{StepID: 1, Description: "think"}, nil, "")
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if decision.ToolName != nil {
		t.Fatalf("tool name should normalize to nil, got %q", *decision.ToolName)
	}
	if decision.ToolInput != nil {
		t.Fatal("tool input must be nil when tool name is nil")
	}
}

func TestDecidePassesPreviousOutput(t *testing.T) {
	t.Parallel()
	client := llm.NewMock("m", llm.MockResponse{
		Content: `{"tool_name": "write_file", "tool_input": {"path": "a.txt", "content": "x"}, "reasoning": "r", "confidence": 1}`,
	})

	_, err := Decide(context.Background(), client, "q",
		PlanStep{StepID: 2, Description: "write"},
		[]ports.ToolDefinition{{Name: "write_file"}}, "listing from step 1")
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	prompt := client.Requests[0].Messages[0].Content
	if !strings.Contains(prompt, "listing from step 1") {
		t.Fatal("previous step output missing from controller prompt")
	}
}

func TestEvaluateStepRepairsSloppyJSON(t *testing.T) {
	t.Parallel()
	// trailing comma: invalid JSON that the repair pass fixes
	client := llm.NewMock("m", llm.MockResponse{
		Content: `{"achieved_goal": true, "assessment": "done", "is_recoverable_via_retry": false, "confidence": 0.8,}`,
	})

	eval, err := EvaluateStep(context.Background(), client,
		PlanStep{StepID: 1, Description: "d"}, nil, "output", "", "")
	if err != nil {
		t.Fatalf("EvaluateStep() error = %v", err)
	}
	if !eval.AchievedGoal || eval.Assessment != "done" {
		t.Fatalf("eval = %+v", eval)
	}
}

func TestEvaluateStepSurfacesError(t *testing.T) {
	t.Parallel()
	client := llm.NewMock("m", llm.MockResponse{
		Content: `{"achieved_goal": false, "assessment": "failed", "is_recoverable_via_retry": true, "suggested_new_tool_for_retry": "web_fetch", "confidence": 0.6}`,
	})

	eval, err := EvaluateStep(context.Background(), client,
		PlanStep{StepID: 1, Description: "d"}, nil, "", "connection refused", "")
	if err != nil {
		t.Fatalf("EvaluateStep() error = %v", err)
	}
	if !eval.RecoverableViaRetry || eval.SuggestedRetryTool != "web_fetch" {
		t.Fatalf("eval = %+v", eval)
	}
	if !strings.Contains(client.Requests[0].Messages[0].Content, "ERROR: connection refused") {
		t.Fatal("attempt error missing from evaluator prompt")
	}
}

func TestEvaluateOverall(t *testing.T) {
	t.Parallel()
	client := llm.NewMock("m", llm.MockResponse{
		Content: `{"overall_success": true, "assessment": "All requested files were produced.", "confidence": 0.95}`,
	})

	eval, err := EvaluateOverall(context.Background(), client, "q", "trace", "answer")
	if err != nil {
		t.Fatalf("EvaluateOverall() error = %v", err)
	}
	if !eval.OverallSuccess || eval.Assessment == "" {
		t.Fatalf("eval = %+v", eval)
	}
}
