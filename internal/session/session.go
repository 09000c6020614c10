package session

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"maestro/internal/llm"
	"maestro/internal/ports"
)

// Session is the per-connection runtime state. It lives only while the
// client channel is open; nothing here is persisted.
type Session struct {
	ID     string
	Memory *Memory

	mu sync.Mutex

	taskID string

	// overrides maps roles to model ids chosen by the client for this
	// session. The executor role is included.
	overrides llm.Overrides

	// cancelled is the sticky cancellation latch. Once set it stays set
	// until the next pipeline starts, so checks between suspension points
	// all observe the request.
	cancelled bool

	// inflight is the cancel handle of the running pipeline, nil when idle.
	// done closes when the pipeline goroutine exits.
	inflight context.CancelFunc
	done     chan struct{}

	planActive   bool
	planFilename string
}

// New creates a session with a fresh id and an empty memory window.
func New(memoryTurns, memoryTokens int) *Session {
	return &Session{
		ID:     uuid.NewString(),
		Memory: NewMemory(memoryTurns, memoryTokens),
	}
}

// TaskID returns the current task id, empty when no task is selected.
func (s *Session) TaskID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taskID
}

// SetTask switches the session to a task.
func (s *Session) SetTask(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taskID = taskID
}

// Overrides snapshots the session's per-role model selections.
func (s *Session) Overrides() llm.Overrides {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(llm.Overrides, len(s.overrides))
	for role, model := range s.overrides {
		out[role] = model
	}
	return out
}

// SetOverride pins a role to a model id for this session. An empty model id
// clears the override.
func (s *Session) SetOverride(role ports.Role, modelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overrides == nil {
		s.overrides = make(llm.Overrides)
	}
	if modelID == "" {
		delete(s.overrides, role)
		return
	}
	s.overrides[role] = modelID
}

// RequestCancel sets the latch and signals the in-flight pipeline, if any.
// Returns whether a pipeline was running.
func (s *Session) RequestCancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
	if s.inflight == nil {
		return false
	}
	s.inflight()
	return true
}

// Cancelled reads the latch. The orchestrator polls this between attempts
// and between steps.
func (s *Session) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// TryBeginPipeline claims the single pipeline slot. It resets the latch,
// derives a cancellable context, and publishes the in-flight handle. The
// second return is false while another pipeline is running.
func (s *Session) TryBeginPipeline(parent context.Context) (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight != nil {
		return nil, false
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancelled = false
	s.inflight = cancel
	s.done = make(chan struct{})
	return ctx, true
}

// EndPipeline releases the pipeline slot. Must be called by the pipeline
// goroutine exactly once.
func (s *Session) EndPipeline() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight != nil {
		s.inflight()
		s.inflight = nil
	}
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	s.planActive = false
}

// Busy reports whether a pipeline is in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight != nil
}

// AwaitIdle blocks until the in-flight pipeline, if any, has exited. Used by
// context_switch to cancel-then-wait before replaying history.
func (s *Session) AwaitIdle() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// MarkPlanActive records that a confirmed plan is executing and which plan
// file tracks it.
func (s *Session) MarkPlanActive(filename string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.planActive = true
	s.planFilename = filename
}

// PlanFilename returns the active plan's artifact filename, empty when no
// plan ran yet.
func (s *Session) PlanFilename() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.planFilename
}
