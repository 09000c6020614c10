package session

import (
	"sync"

	"maestro/internal/llm"
	"maestro/internal/ports"
)

// Memory is the bounded conversation window fed to executor LLM calls. It
// keeps at most maxTurns user/assistant pairs and additionally evicts oldest
// pairs while the window exceeds the token ceiling.
type Memory struct {
	mu        sync.Mutex
	maxTurns  int
	maxTokens int
	turns     []turn
}

type turn struct {
	user      string
	assistant string
}

// NewMemory creates a window of maxTurns pairs. maxTokens <= 0 disables the
// token ceiling.
func NewMemory(maxTurns, maxTokens int) *Memory {
	if maxTurns <= 0 {
		maxTurns = 10
	}
	return &Memory{maxTurns: maxTurns, maxTokens: maxTokens}
}

// AddTurn appends one user/assistant exchange, evicting from the front to
// honor both bounds.
func (m *Memory) AddTurn(user, assistant string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.turns = append(m.turns, turn{user: user, assistant: assistant})
	if len(m.turns) > m.maxTurns {
		m.turns = m.turns[len(m.turns)-m.maxTurns:]
	}
	if m.maxTokens > 0 {
		for len(m.turns) > 1 && llm.CountMessageTokens(m.messagesLocked()) > m.maxTokens {
			m.turns = m.turns[1:]
		}
	}
}

// Messages renders the window in chat order.
func (m *Memory) Messages() []ports.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messagesLocked()
}

func (m *Memory) messagesLocked() []ports.Message {
	out := make([]ports.Message, 0, len(m.turns)*2)
	for _, t := range m.turns {
		out = append(out, ports.Message{Role: "user", Content: t.user})
		out = append(out, ports.Message{Role: "assistant", Content: t.assistant})
	}
	return out
}

// Clear drops the whole window. Used on context switches before replaying
// the new task's history.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
}

// Len reports the number of stored turns.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns)
}
