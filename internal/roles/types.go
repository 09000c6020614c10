package roles

// Intent is the routing decision for an incoming user message.
type Intent string

const (
	IntentPlan     Intent = "PLAN"
	IntentDirectQA Intent = "DIRECT_QA"
)

// PlanStep is one unit of a confirmed plan. Step ids are dense and 1-based.
type PlanStep struct {
	StepID          int    `json:"step_id"`
	Description     string `json:"description"`
	ToolHint        string `json:"tool_hint,omitempty"`
	InputHint       string `json:"input_hint,omitempty"`
	ExpectedOutcome string `json:"expected_outcome"`
}

// PlanResult is the planner's output: a human-readable summary plus the
// structured steps shown to the client for confirmation.
type PlanResult struct {
	HumanSummary string     `json:"human_summary"`
	Steps        []PlanStep `json:"plan_steps"`
}

// ControllerDecision selects a tool (or none) for one step. ToolInput is nil
// exactly when ToolName is nil.
type ControllerDecision struct {
	ToolName   *string        `json:"tool_name"`
	ToolInput  map[string]any `json:"tool_input"`
	Reasoning  string         `json:"reasoning"`
	Confidence float64        `json:"confidence"`
}

// StepEvaluation is the step evaluator's verdict on one attempt.
type StepEvaluation struct {
	AchievedGoal        bool    `json:"achieved_goal"`
	Assessment          string  `json:"assessment"`
	RecoverableViaRetry bool    `json:"is_recoverable_via_retry"`
	SuggestedRetryTool  string  `json:"suggested_new_tool_for_retry,omitempty"`
	SuggestedRetryInput string  `json:"suggested_new_input_instructions_for_retry,omitempty"`
	Confidence          float64 `json:"confidence"`
}

// OverallEvaluation is the final verdict on a completed plan.
type OverallEvaluation struct {
	OverallSuccess      bool     `json:"overall_success"`
	Assessment          string   `json:"assessment"`
	MissingInformation  []string `json:"missing_information,omitempty"`
	SuggestionsToReplan []string `json:"suggestions_for_replan,omitempty"`
	Confidence          float64  `json:"confidence"`
}
