package events

import (
	"context"
	"sync"
	"testing"

	"maestro/internal/ports"
)

type sentEnvelope struct {
	Type    string
	Content any
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentEnvelope
}

func (s *recordingSender) Send(msgType string, content any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentEnvelope{Type: msgType, Content: content})
	return nil
}

func (s *recordingSender) ofType(msgType string) []sentEnvelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sentEnvelope
	for _, env := range s.sent {
		if env.Type == msgType {
			out = append(out, env)
		}
	}
	return out
}

type persisted struct {
	Kind    string
	Payload string
}

type recordingStore struct {
	mu      sync.Mutex
	records []persisted
}

func (r *recordingStore) AppendMessage(_ context.Context, _, _, kind, payload string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, persisted{Kind: kind, Payload: payload})
}

func (r *recordingStore) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.records))
	for i, rec := range r.records {
		out[i] = rec.Kind
	}
	return out
}

func newTestFanout() (*Fanout, *recordingSender, *recordingStore) {
	sender := &recordingSender{}
	store := &recordingStore{}
	fanout := NewFanout(sender, store, "session-1")
	fanout.SetTask("task-1")
	return fanout, sender, store
}

func TestLLMStartEmitsOneBottomLine(t *testing.T) {
	t.Parallel()
	fanout, sender, _ := newTestFanout()

	fanout.Emit(ports.Event{Kind: ports.EventLLMStart, Role: ports.RolePlanner})
	fanout.Emit(ports.Event{Kind: ports.EventLLMEnd, Role: ports.RolePlanner})

	updates := sender.ofType(TypeThinkingUpdate)
	if len(updates) != 1 {
		t.Fatalf("got %d thinking updates, want 1", len(updates))
	}
	body := updates[0].Content.(ThinkingUpdate)
	if body.SubType != SubTypeBottomLine {
		t.Fatalf("sub_type = %q", body.SubType)
	}
	if body.ComponentHint != string(ports.RolePlanner) {
		t.Fatalf("component hint = %q", body.ComponentHint)
	}
	if len(sender.ofType(TypeMonitorLog)) != 2 {
		t.Fatalf("every event should produce a monitor line")
	}
}

func TestToolLifecycleEmitsSubStatus(t *testing.T) {
	t.Parallel()
	fanout, sender, store := newTestFanout()

	fanout.Emit(ports.Event{Kind: ports.EventToolStart, Tool: "web_search"})
	fanout.Emit(ports.Event{Kind: ports.EventToolEnd, Tool: "web_search"})
	fanout.Emit(ports.Event{Kind: ports.EventToolError, Tool: "web_search", Text: "timeout"})

	updates := sender.ofType(TypeThinkingUpdate)
	if len(updates) != 3 {
		t.Fatalf("got %d thinking updates, want 3", len(updates))
	}
	for _, env := range updates {
		if env.Content.(ThinkingUpdate).SubType != SubTypeSubStatus {
			t.Fatalf("tool event must classify as sub_status: %+v", env.Content)
		}
	}
	for _, kind := range store.kinds() {
		if kind != ports.KindSubStatus {
			t.Fatalf("tool events persist as sub_status, got %q", kind)
		}
	}
	if len(store.kinds()) != 3 {
		t.Fatalf("persisted %d records, want 3", len(store.kinds()))
	}
}

func TestThoughtThenProcessingBottomLine(t *testing.T) {
	t.Parallel()
	fanout, sender, store := newTestFanout()

	fanout.Emit(ports.Event{
		Kind:            ports.EventAgentThought,
		ThoughtLabel:    "Plan check",
		ThoughtMarkdown: "The step output looks complete.",
	})

	updates := sender.ofType(TypeThinkingUpdate)
	if len(updates) != 2 {
		t.Fatalf("got %d updates, want thought then bottom_line", len(updates))
	}
	first := updates[0].Content.(ThinkingUpdate)
	second := updates[1].Content.(ThinkingUpdate)
	if first.SubType != SubTypeThought || first.Label != "Plan check" {
		t.Fatalf("first update = %+v", first)
	}
	if second.SubType != SubTypeBottomLine || second.Message != "Processing action…" {
		t.Fatalf("second update = %+v", second)
	}
	if kinds := store.kinds(); len(kinds) != 1 || kinds[0] != ports.KindThought {
		t.Fatalf("persisted kinds = %v", kinds)
	}
}

func TestTokenUsageTagsSource(t *testing.T) {
	t.Parallel()
	fanout, sender, _ := newTestFanout()

	fanout.Emit(ports.Event{
		Kind:           ports.EventTokenUsage,
		Model:          "gpt-4o",
		Usage:          ports.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		UsageEstimated: true,
	})

	usages := sender.ofType(TypeTokenUsage)
	if len(usages) != 1 {
		t.Fatalf("got %d usage envelopes", len(usages))
	}
	payload := usages[0].Content.(TokenUsagePayload)
	if payload.Source != "estimated" || payload.TotalTokens != 15 {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestArtifactGeneratedTriggersRefresh(t *testing.T) {
	t.Parallel()
	fanout, sender, store := newTestFanout()

	fanout.ArtifactGenerated("report.md")

	refreshes := sender.ofType(TypeArtifactRefresh)
	if len(refreshes) != 1 {
		t.Fatalf("got %d refresh envelopes", len(refreshes))
	}
	if refreshes[0].Content.(ArtifactRefresh).TaskID != "task-1" {
		t.Fatalf("refresh payload = %+v", refreshes[0].Content)
	}
	if kinds := store.kinds(); len(kinds) != 1 || kinds[0] != ports.KindArtifactGenerated {
		t.Fatalf("persisted kinds = %v", kinds)
	}
}

func TestNoPersistenceWithoutTask(t *testing.T) {
	t.Parallel()
	sender := &recordingSender{}
	store := &recordingStore{}
	fanout := NewFanout(sender, store, "session-1")

	fanout.Emit(ports.Event{Kind: ports.EventToolStart, Tool: "web_search"})

	if len(store.kinds()) != 0 {
		t.Fatalf("no task bound, nothing should persist: %v", store.kinds())
	}
	if len(sender.ofType(TypeThinkingUpdate)) != 1 {
		t.Fatal("streaming must still work without a task")
	}
}
