package ports

import "errors"

// Role is the functional slot an LLM fills in the pipeline.
type Role string

const (
	RoleIntent     Role = "intent"
	RolePlanner    Role = "planner"
	RoleController Role = "controller"
	RoleExecutor   Role = "executor"
	RoleEvaluator  Role = "evaluator"
)

// Roles lists every pipeline role in resolution-table order.
var Roles = []Role{RoleIntent, RolePlanner, RoleController, RoleExecutor, RoleEvaluator}

// ErrCancelled is the distinguished cancellation signal. It propagates through
// the pipeline untouched; converting it to a generic error loses the
// "cancelled, not failed" distinction the plan loop depends on.
var ErrCancelled = errors.New("cancelled")

// Message kinds persisted to the store. The replay path maps each kind back
// to a stream shape, so renaming one is a wire-format change.
const (
	KindUserInput             = "user_input"
	KindAgentMessage          = "agent_message"
	KindConfirmedPlanLog      = "confirmed_plan_log"
	KindMajorStepAnnouncement = "major_step_announcement"
	KindSubStatus             = "sub_status"
	KindThought               = "thought"
	KindToolResultForChat     = "tool_result_for_chat"
	KindStatusMessage         = "status_message"
	KindArtifactGenerated     = "artifact_generated"
	KindTokenUsage            = "llm_token_usage"
	KindMonitorLog            = "monitor_log"
	KindAgentError            = "agent_error"
)

// Message represents a conversation message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TokenUsage tracks token consumption for one LLM call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// IsZero reports whether the provider supplied no usage at all.
func (u TokenUsage) IsZero() bool {
	return u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0
}
