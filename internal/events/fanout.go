package events

import (
	"context"
	"fmt"
	"sync"

	"maestro/internal/logging"
	"maestro/internal/ports"
	"maestro/internal/shared/jsonx"
)

// StreamSender delivers one typed envelope to the client. Implemented by the
// gateway connection; tests substitute a recording sender.
type StreamSender interface {
	Send(msgType string, content any) error
}

// Recorder persists one message record. *store.Store satisfies this.
type Recorder interface {
	AppendMessage(ctx context.Context, taskID, sessionID, kind, payload string)
}

// Fanout is the per-session event hub. It classifies lifecycle events into
// stream envelopes and persisted records. Emit serializes under a mutex, so
// events for a session reach the client in arrival order.
type Fanout struct {
	mu        sync.Mutex
	sender    StreamSender
	recorder  Recorder
	sessionID string
	taskID    string
	logger    logging.Logger
}

// NewFanout binds a fan-out to a session's stream connection and the store.
func NewFanout(sender StreamSender, recorder Recorder, sessionID string) *Fanout {
	return &Fanout{
		sender:    sender,
		recorder:  recorder,
		sessionID: sessionID,
		logger:    logging.NewComponentLogger("Fanout"),
	}
}

// Sender exposes the underlying stream for envelopes the fan-out does not
// classify itself (catalog pushes, history replay, plan confirmations).
func (f *Fanout) Sender() StreamSender {
	return f.sender
}

// SetTask rebinds persistence to the session's current task. An empty task id
// disables persistence (stream-only mode, used before any task exists).
func (f *Fanout) SetTask(taskID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.taskID = taskID
}

// Emit classifies one lifecycle event. Persistence failures are logged by the
// recorder and never surface here; a dead stream likewise only logs.
func (f *Fanout) Emit(ev ports.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch ev.Kind {
	case ports.EventLLMStart:
		f.stream(TypeThinkingUpdate, ThinkingUpdate{
			StatusKey:     ev.Kind.String(),
			SubType:       SubTypeBottomLine,
			Message:       fmt.Sprintf("Consulting %s model…", ev.Role),
			ComponentHint: string(ev.Role),
		})
		f.monitor(fmt.Sprintf("llm start role=%s", ev.Role))

	case ports.EventLLMEnd:
		f.monitor(fmt.Sprintf("llm end role=%s", ev.Role))

	case ports.EventLLMError:
		f.persist(ports.KindAgentError, ev.Text)
		f.monitor(fmt.Sprintf("llm error role=%s: %s", ev.Role, ev.Text))

	case ports.EventToolStart:
		f.subStatus(fmt.Sprintf("Using %s…", ev.Tool))
		f.monitor(fmt.Sprintf("tool start %s", ev.Tool))

	case ports.EventToolEnd:
		f.subStatus(fmt.Sprintf("%s finished.", ev.Tool))
		f.monitor(fmt.Sprintf("tool end %s", ev.Tool))

	case ports.EventToolError:
		f.subStatus(fmt.Sprintf("%s reported an error: %s", ev.Tool, ev.Text))
		f.monitor(fmt.Sprintf("tool error %s: %s", ev.Tool, ev.Text))

	case ports.EventAgentThought:
		body := ThinkingUpdate{
			StatusKey:       ev.Kind.String(),
			SubType:         SubTypeThought,
			Label:           ev.ThoughtLabel,
			ContentMarkdown: ev.ThoughtMarkdown,
		}
		f.stream(TypeThinkingUpdate, body)
		f.persistJSON(ports.KindThought, body)
		f.stream(TypeThinkingUpdate, ThinkingUpdate{
			StatusKey: ev.Kind.String(),
			SubType:   SubTypeBottomLine,
			Message:   "Processing action…",
		})
		f.monitor(fmt.Sprintf("thought: %s", ev.ThoughtLabel))

	case ports.EventAgentStepFinish:
		f.monitor(fmt.Sprintf("step finished: %s", ev.Text))

	case ports.EventTokenUsage:
		source := "api"
		if ev.UsageEstimated {
			source = "estimated"
		}
		payload := TokenUsagePayload{
			ModelName:    ev.Model,
			InputTokens:  ev.Usage.PromptTokens,
			OutputTokens: ev.Usage.CompletionTokens,
			TotalTokens:  ev.Usage.TotalTokens,
			Source:       source,
		}
		f.stream(TypeTokenUsage, payload)
		f.persistJSON(ports.KindTokenUsage, payload)
		f.monitor(fmt.Sprintf("token usage model=%s total=%d source=%s",
			ev.Model, ev.Usage.TotalTokens, source))
	}
}

// ArtifactGenerated records a fresh workspace artifact and asks the client to
// re-pull the artifact listing.
func (f *Fanout) ArtifactGenerated(filename string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.persistJSON(ports.KindArtifactGenerated, ArtifactGeneratedPayload{Filename: filename})
	f.stream(TypeArtifactRefresh, ArtifactRefresh{TaskID: f.taskID})
	f.monitor(fmt.Sprintf("artifact generated: %s", filename))
}

// Status sends a status_message envelope and persists it.
func (f *Fanout) Status(text string, isError bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payload := StatusMessage{Text: text, IsError: isError}
	f.stream(TypeStatusMessage, payload)
	f.persistJSON(ports.KindStatusMessage, payload)
}

// AgentFinal sends and persists a final agent_message.
func (f *Fanout) AgentFinal(content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stream(TypeAgentMessage, AgentMessage{Content: content})
	f.persist(ports.KindAgentMessage, content)
}

// MajorStep announces a plan step transition to the chat feed.
func (f *Fanout) MajorStep(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stream(TypeMajorStepAnnouncement, StatusMessage{Text: text})
	f.persist(ports.KindMajorStepAnnouncement, text)
}

// ToolResultForChat surfaces a tool result as a dedicated chat card.
func (f *Fanout) ToolResultForChat(tool, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payload := map[string]string{"tool": tool, "content": content}
	f.stream(TypeToolResultForChat, payload)
	f.persistJSON(ports.KindToolResultForChat, payload)
}

// Monitor pushes a line to the side-channel monitor stream only.
func (f *Fanout) Monitor(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.monitor(text)
}

func (f *Fanout) subStatus(message string) {
	body := ThinkingUpdate{
		StatusKey: "tool",
		SubType:   SubTypeSubStatus,
		Message:   message,
	}
	f.stream(TypeThinkingUpdate, body)
	f.persistJSON(ports.KindSubStatus, body)
}

func (f *Fanout) monitor(text string) {
	f.stream(TypeMonitorLog, MonitorLog{Text: text, LogSource: "agent"})
}

func (f *Fanout) stream(msgType string, content any) {
	if f.sender == nil {
		return
	}
	if err := f.sender.Send(msgType, content); err != nil {
		f.logger.Warn("Stream send failed for %s: %v", msgType, err)
	}
}

func (f *Fanout) persist(kind, payload string) {
	if f.recorder == nil || f.taskID == "" {
		return
	}
	f.recorder.AppendMessage(context.Background(), f.taskID, f.sessionID, kind, payload)
}

func (f *Fanout) persistJSON(kind string, payload any) {
	data, err := jsonx.Marshal(payload)
	if err != nil {
		f.logger.Warn("Encode %s payload: %v", kind, err)
		return
	}
	f.persist(kind, string(data))
}
