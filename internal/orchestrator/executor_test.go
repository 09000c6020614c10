package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"maestro/internal/events"
	"maestro/internal/llm"
	"maestro/internal/observability"
	"maestro/internal/ports"
	"maestro/internal/session"
	"maestro/internal/tools"
	"maestro/internal/workspace"
)

type roleClients map[ports.Role]ports.LLMClient

func (r roleClients) Get(role ports.Role, _ llm.Overrides) (ports.LLMClient, error) {
	client, ok := r[role]
	if !ok {
		return nil, fmt.Errorf("no client for role %s", role)
	}
	return client, nil
}

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

func (s *recordingSender) count(msgType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, env := range s.sent {
		if env.Type == msgType {
			n++
		}
	}
	return n
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

func (r *recordingStore) byKind(kind string) []persisted {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []persisted
	for _, rec := range r.records {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out
}

type harness struct {
	executor   *Executor
	sess       *session.Session
	fanout     *events.Fanout
	sender     *recordingSender
	store      *recordingStore
	workspaces *workspace.Manager
}

func newHarness(t *testing.T, clients roleClients, maxStepRetries int) *harness {
	t.Helper()
	workspaces, err := workspace.NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	toolReg, err := tools.NewRegistry(workspaces, tools.Options{OutputCap: 8000})
	if err != nil {
		t.Fatal(err)
	}
	tracer, err := observability.NewTracerProvider(context.Background(), "", "test")
	if err != nil {
		t.Fatal(err)
	}

	sender := &recordingSender{}
	store := &recordingStore{}
	sess := session.New(10, 0)
	sess.SetTask("task-1")
	fanout := events.NewFanout(sender, store, sess.ID)
	fanout.SetTask("task-1")

	return &harness{
		executor:   New(clients, toolReg, workspaces, nil, tracer, maxStepRetries),
		sess:       sess,
		fanout:     fanout,
		sender:     sender,
		store:      store,
		workspaces: workspaces,
	}
}

func (h *harness) planFile(t *testing.T) string {
	t.Helper()
	dir, err := h.workspaces.Resolve("task-1", false)
	if err != nil {
		t.Fatal(err)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "_plan_*.md"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("plan files = %v, err = %v", matches, err)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func decisionJSON(tool string, input string) string {
	if tool == "" {
		return `{"tool_name": null, "tool_input": null, "reasoning": "reasoning only", "confidence": 0.9}`
	}
	return fmt.Sprintf(`{"tool_name": %q, "tool_input": %s, "reasoning": "use it", "confidence": 0.9}`, tool, input)
}

func stepEvalJSON(achieved, recoverable bool, suggestedTool string) string {
	return fmt.Sprintf(`{"achieved_goal": %t, "assessment": "verdict", "is_recoverable_via_retry": %t, "suggested_new_tool_for_retry": %q, "confidence": 0.8}`,
		achieved, recoverable, suggestedTool)
}

func TestDirectQAStreamsOneAgentMessage(t *testing.T) {
	t.Parallel()
	executorLLM := llm.NewMock("m", llm.MockResponse{Content: "4"})
	h := newHarness(t, roleClients{ports.RoleExecutor: executorLLM}, 1)

	answer, err := h.executor.RunDirectQA(context.Background(), h.sess, h.fanout, "What is 2+2?")
	if err != nil {
		t.Fatalf("RunDirectQA() error = %v", err)
	}
	if answer != "4" {
		t.Fatalf("answer = %q", answer)
	}
	if h.sender.count(events.TypeAgentMessage) != 1 {
		t.Fatal("exactly one agent_message must stream")
	}
	if len(h.store.byKind(ports.KindAgentMessage)) != 1 {
		t.Fatal("exactly one agent_message must persist")
	}
	if h.sess.Memory.Len() != 1 {
		t.Fatal("the turn must enter the memory window")
	}

	dir, _ := h.workspaces.Resolve("task-1", false)
	if matches, _ := filepath.Glob(filepath.Join(dir, "_plan_*.md")); len(matches) != 0 {
		t.Fatal("direct QA must not create a plan file")
	}
}

func TestTwoStepPlanHappyPath(t *testing.T) {
	t.Parallel()
	controller := llm.NewMock("c",
		llm.MockResponse{Content: decisionJSON("list_files", `{}`)},
		llm.MockResponse{Content: decisionJSON("write_file", `{"path": "notes.txt", "content": "done"}`)},
	)
	evaluator := llm.NewMock("e",
		llm.MockResponse{Content: stepEvalJSON(true, false, "")},
		llm.MockResponse{Content: stepEvalJSON(true, false, "")},
		llm.MockResponse{Content: `{"overall_success": true, "assessment": "Both steps completed.", "confidence": 0.9}`},
	)
	h := newHarness(t, roleClients{
		ports.RoleController: controller,
		ports.RoleEvaluator:  evaluator,
	}, 1)

	trace, err := h.executor.ExecuteConfirmedPlan(context.Background(), h.sess, h.fanout,
		[]map[string]any{
			{"description": "List the workspace", "expected_outcome": "A listing"},
			{"description": "Write notes.txt", "expected_outcome": "File exists"},
		}, "Two quick steps.", "list then write")
	if err != nil {
		t.Fatalf("ExecuteConfirmedPlan() error = %v", err)
	}

	if trace.FinalStatus != StatusSuccess {
		t.Fatalf("final status = %c", trace.FinalStatus)
	}
	for i, st := range trace.Steps {
		if st.FinalStatus != StatusSuccess {
			t.Fatalf("step %d status = %c", i+1, st.FinalStatus)
		}
	}

	// step 2's controller saw step 1's output
	secondPrompt := controller.Requests[1].Messages[0].Content
	if !strings.Contains(secondPrompt, "previous successful step") {
		t.Fatal("previous step output missing from second controller call")
	}

	plan := h.planFile(t)
	if strings.Count(plan, "- [x]") != 2 {
		t.Fatalf("plan file should show two [x] lines:\n%s", plan)
	}

	// write_file sentinel produced the artifact record for notes.txt
	artifactRecords := h.store.byKind(ports.KindArtifactGenerated)
	found := false
	for _, rec := range artifactRecords {
		if strings.Contains(rec.Payload, "notes.txt") {
			found = true
		}
	}
	if !found {
		t.Fatalf("artifact_generated for notes.txt missing: %+v", artifactRecords)
	}

	finals := h.store.byKind(ports.KindAgentMessage)
	if len(finals) != 1 || finals[0].Payload != "Both steps completed." {
		t.Fatalf("final message = %+v", finals)
	}
}

func TestTransientFailureRecoversOnRetry(t *testing.T) {
	t.Parallel()
	controller := llm.NewMock("c",
		llm.MockResponse{Content: decisionJSON("", "")},
		llm.MockResponse{Content: decisionJSON("list_files", `{}`)},
	)
	executorLLM := llm.NewMock("x",
		llm.MockResponse{Err: errors.New("upstream 502")},
	)
	evaluator := llm.NewMock("e",
		llm.MockResponse{Content: stepEvalJSON(false, true, "list_files")},
		llm.MockResponse{Content: stepEvalJSON(true, false, "")},
		llm.MockResponse{Content: `{"overall_success": true, "assessment": "Recovered.", "confidence": 0.9}`},
	)
	h := newHarness(t, roleClients{
		ports.RoleController: controller,
		ports.RoleExecutor:   executorLLM,
		ports.RoleEvaluator:  evaluator,
	}, 1)

	trace, err := h.executor.ExecuteConfirmedPlan(context.Background(), h.sess, h.fanout,
		[]map[string]any{{"description": "Survey the workspace", "expected_outcome": "A listing"}},
		"", "survey")
	if err != nil {
		t.Fatalf("ExecuteConfirmedPlan() error = %v", err)
	}

	attempts := trace.Steps[0].Attempts
	if len(attempts) != 2 {
		t.Fatalf("got %d attempts, want 2 (MAX_STEP_RETRIES=1)", len(attempts))
	}
	if attempts[0].Status != StatusFailed || attempts[1].Status != StatusSuccess {
		t.Fatalf("attempt statuses = %c, %c", attempts[0].Status, attempts[1].Status)
	}
	if trace.Steps[0].FinalStatus != StatusSuccess {
		t.Fatalf("step final = %c", trace.Steps[0].FinalStatus)
	}

	// the retry-shaped step carried the evaluator's tool suggestion
	retryPrompt := controller.Requests[1].Messages[0].Content
	if !strings.Contains(retryPrompt, "list_files") {
		t.Fatal("retry controller call missing suggested tool hint")
	}

	if !strings.Contains(h.planFile(t), "- [x] 1.") {
		t.Fatal("plan file should end with step 1 successful")
	}
}

func TestUnrecoverableFailureTerminatesPlan(t *testing.T) {
	t.Parallel()
	controller := llm.NewMock("c",
		llm.MockResponse{Content: decisionJSON("list_files", `{}`)},
		llm.MockResponse{Content: decisionJSON("", "")},
	)
	executorLLM := llm.NewMock("x",
		llm.MockResponse{Content: "unusable output"},
	)
	evaluator := llm.NewMock("e",
		llm.MockResponse{Content: stepEvalJSON(true, false, "")},
		llm.MockResponse{Content: `{"achieved_goal": false, "assessment": "wrong data source", "is_recoverable_via_retry": false, "confidence": 0.8}`},
	)
	h := newHarness(t, roleClients{
		ports.RoleController: controller,
		ports.RoleExecutor:   executorLLM,
		ports.RoleEvaluator:  evaluator,
	}, 1)

	trace, err := h.executor.ExecuteConfirmedPlan(context.Background(), h.sess, h.fanout,
		[]map[string]any{
			{"description": "List"},
			{"description": "Analyze"},
			{"description": "Report"},
		}, "", "three steps")
	if err != nil {
		t.Fatalf("ExecuteConfirmedPlan() error = %v", err)
	}

	if trace.FinalStatus != StatusFailed {
		t.Fatalf("final status = %c", trace.FinalStatus)
	}
	if got := []rune{trace.Steps[0].FinalStatus, trace.Steps[1].FinalStatus, trace.Steps[2].FinalStatus}; got[0] != StatusSuccess || got[1] != StatusFailed || got[2] != StatusPending {
		t.Fatalf("step statuses = %c %c %c", got[0], got[1], got[2])
	}

	plan := h.planFile(t)
	if !strings.Contains(plan, "- [x] 1.") || !strings.Contains(plan, "- [!] 2.") || !strings.Contains(plan, "- [ ] 3.") {
		t.Fatalf("plan file mismatch:\n%s", plan)
	}

	// the last recorded error is the final user message, no overall evaluation
	finals := h.store.byKind(ports.KindAgentMessage)
	if len(finals) != 1 || finals[0].Payload != "wrong data source" {
		t.Fatalf("final message = %+v", finals)
	}
}

func TestCancellationMidStep(t *testing.T) {
	t.Parallel()
	controller := llm.NewMock("c",
		llm.MockResponse{Content: decisionJSON("list_files", `{}`)},
		llm.MockResponse{Content: decisionJSON("", "")},
	)
	executorLLM := llm.NewMock("x",
		llm.MockResponse{Err: ports.ErrCancelled},
	)
	evaluator := llm.NewMock("e",
		llm.MockResponse{Content: stepEvalJSON(true, false, "")},
	)
	h := newHarness(t, roleClients{
		ports.RoleController: controller,
		ports.RoleExecutor:   executorLLM,
		ports.RoleEvaluator:  evaluator,
	}, 1)

	trace, err := h.executor.ExecuteConfirmedPlan(context.Background(), h.sess, h.fanout,
		[]map[string]any{
			{"description": "List"},
			{"description": "Summarize"},
		}, "", "two steps")
	if err != nil {
		t.Fatalf("ExecuteConfirmedPlan() error = %v", err)
	}

	if trace.FinalStatus != StatusCancelled {
		t.Fatalf("final status = %c", trace.FinalStatus)
	}
	if trace.Steps[1].FinalStatus != StatusCancelled {
		t.Fatalf("step 2 status = %c", trace.Steps[1].FinalStatus)
	}
	if !strings.Contains(h.planFile(t), "- [-] 2.") {
		t.Fatal("plan file must show step 2 cancelled")
	}
	if len(h.store.byKind(ports.KindAgentMessage)) != 0 {
		t.Fatal("cancelled plans must not persist an agent_message")
	}

	statuses := h.store.byKind(ports.KindStatusMessage)
	found := false
	for _, rec := range statuses {
		if strings.Contains(rec.Payload, "Plan execution cancelled.") {
			found = true
		}
	}
	if !found {
		t.Fatal("cancellation status line missing")
	}
}

func TestZeroStepPlanFinalizesImmediately(t *testing.T) {
	t.Parallel()
	h := newHarness(t, roleClients{}, 1)

	trace, err := h.executor.ExecuteConfirmedPlan(context.Background(), h.sess, h.fanout,
		nil, "", "empty")
	if err != nil {
		t.Fatalf("ExecuteConfirmedPlan() error = %v", err)
	}
	if trace.FinalStatus != StatusSuccess || len(trace.Steps) != 0 {
		t.Fatalf("trace = %+v", trace)
	}
	if h.sender.count(events.TypeAgentMessage) != 1 {
		t.Fatal("zero-step plan still produces a final message")
	}
}

func TestMalformedStepTerminatesPlan(t *testing.T) {
	t.Parallel()
	h := newHarness(t, roleClients{}, 1)

	trace, err := h.executor.ExecuteConfirmedPlan(context.Background(), h.sess, h.fanout,
		[]map[string]any{{"expected_outcome": "no description"}}, "", "bad step")
	if err != nil {
		t.Fatalf("ExecuteConfirmedPlan() error = %v", err)
	}
	if trace.FinalStatus != StatusFailed {
		t.Fatalf("final status = %c", trace.FinalStatus)
	}
	if trace.Steps[0].FinalStatus != StatusFailed {
		t.Fatalf("step status = %c", trace.Steps[0].FinalStatus)
	}
}
