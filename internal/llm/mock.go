package llm

import (
	"context"
	"fmt"
	"sync"

	"maestro/internal/ports"
)

// MockResponse scripts one Complete call of the mock client.
type MockResponse struct {
	Content string
	Err     error
}

// Mock is a scripted LLM client for tests. Responses are consumed in order;
// every request is recorded for assertions.
type Mock struct {
	mu        sync.Mutex
	model     string
	responses []MockResponse
	Requests  []ports.CompletionRequest
}

// NewMock creates a mock client that plays back responses in order.
func NewMock(model string, responses ...MockResponse) *Mock {
	return &Mock{model: model, responses: responses}
}

func (m *Mock) Model() string {
	return m.model
}

// Enqueue appends further scripted responses.
func (m *Mock) Enqueue(responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, responses...)
}

func (m *Mock) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, ports.ErrCancelled
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)

	if len(m.responses) == 0 {
		return nil, fmt.Errorf("mock llm: no scripted response for request %d", len(m.Requests))
	}
	next := m.responses[0]
	m.responses = m.responses[1:]

	if next.Err != nil {
		return nil, next.Err
	}
	return &ports.CompletionResponse{
		Content:    next.Content,
		StopReason: "stop",
		Usage:      ports.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}
