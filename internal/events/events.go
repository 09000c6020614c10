package events

// Stream payload shapes for the envelope types the client renders. The
// history replay path reuses these, so field names are part of the wire
// format.

const (
	SubTypeBottomLine = "bottom_line"
	SubTypeSubStatus  = "sub_status"
	SubTypeThought    = "thought"
)

// ThinkingUpdate is the content of an agent_thinking_update envelope.
// Message is set for bottom_line and sub_status; Label/ContentMarkdown for
// thought.
type ThinkingUpdate struct {
	StatusKey       string `json:"status_key"`
	SubType         string `json:"sub_type"`
	Message         string `json:"message,omitempty"`
	Label           string `json:"label,omitempty"`
	ContentMarkdown string `json:"content_markdown,omitempty"`
	ComponentHint   string `json:"component_hint,omitempty"`
}

// MonitorLog is the content of a monitor_log envelope.
type MonitorLog struct {
	Text      string `json:"text"`
	LogSource string `json:"log_source"`
}

// TokenUsagePayload is the content of an llm_token_usage envelope. Source is
// "api" when the provider reported the counts, "estimated" otherwise.
type TokenUsagePayload struct {
	ModelName    string `json:"model_name"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	TotalTokens  int    `json:"total_tokens"`
	Source       string `json:"source"`
}

// ArtifactRefresh is the content of a trigger_artifact_refresh envelope.
type ArtifactRefresh struct {
	TaskID string `json:"taskId"`
}

// ArtifactGeneratedPayload is persisted under the artifact_generated kind.
type ArtifactGeneratedPayload struct {
	Filename string `json:"filename"`
}

// StatusMessage is the content of a status_message envelope.
type StatusMessage struct {
	Text          string `json:"text"`
	ComponentHint string `json:"component_hint,omitempty"`
	IsError       bool   `json:"isError,omitempty"`
}

// AgentMessage is the content of an agent_message envelope.
type AgentMessage struct {
	Content       string `json:"content"`
	ComponentHint string `json:"component_hint,omitempty"`
}

// Envelope type names.
const (
	TypeStatusMessage         = "status_message"
	TypeAgentMessage          = "agent_message"
	TypeThinkingUpdate        = "agent_thinking_update"
	TypeMonitorLog            = "monitor_log"
	TypeTokenUsage            = "llm_token_usage"
	TypePlanConfirmation      = "display_plan_for_confirmation"
	TypeUpdateArtifacts       = "update_artifacts"
	TypeArtifactRefresh       = "trigger_artifact_refresh"
	TypeAvailableModels       = "available_models"
	TypeHistoryStart          = "history_start"
	TypeHistoryEnd            = "history_end"
	TypeMajorStepAnnouncement = "major_step_announcement"
	TypeConfirmedPlanLog      = "confirmed_plan_log"
	TypeToolResultForChat     = "tool_result_for_chat"
)
