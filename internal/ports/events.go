package ports

// EventKind enumerates the closed set of lifecycle events the fan-out
// consumes. New kinds require a classification rule in the fan-out.
type EventKind int

const (
	EventLLMStart EventKind = iota
	EventLLMEnd
	EventLLMError
	EventToolStart
	EventToolEnd
	EventToolError
	EventAgentThought
	EventAgentStepFinish
	EventTokenUsage
)

func (k EventKind) String() string {
	switch k {
	case EventLLMStart:
		return "llm_start"
	case EventLLMEnd:
		return "llm_end"
	case EventLLMError:
		return "llm_error"
	case EventToolStart:
		return "tool_start"
	case EventToolEnd:
		return "tool_end"
	case EventToolError:
		return "tool_error"
	case EventAgentThought:
		return "agent_thought"
	case EventAgentStepFinish:
		return "agent_step_finish"
	case EventTokenUsage:
		return "token_usage"
	default:
		return "unknown"
	}
}

// Event is one lifecycle occurrence from the LLM, tool, or agent layer.
// Only the fields relevant to the Kind are populated.
type Event struct {
	Kind EventKind

	// Role tags LLM events with the pipeline role that made the call.
	Role Role

	// Tool names the tool for tool events.
	Tool string

	// Text carries the human-readable body: bottom-line text, error text,
	// or the step-finish summary.
	Text string

	// ThoughtLabel and ThoughtMarkdown carry a reasoning trace for
	// EventAgentThought.
	ThoughtLabel    string
	ThoughtMarkdown string

	// Usage and Model are set for EventTokenUsage.
	Usage          TokenUsage
	Model          string
	UsageEstimated bool
}

// EventSink receives lifecycle events. Implemented by the callback fan-out;
// the mock sink in tests records events for assertions.
type EventSink interface {
	Emit(ev Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(Event) {}
