package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/textjianghu/jianghu-engine/pkg/chat"
)

// MockLLMService is a scriptable LLMService for testing. Responses are
// returned in the order they were queued; an empty queue falls back to
// a fixed default.
type MockLLMService struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     int
}

var _ LLMService = (*MockLLMService)(nil)

func NewMockLLMService() *MockLLMService {
	return &MockLLMService{}
}

// QueueResponse appends a canned response.
func (m *MockLLMService) QueueResponse(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, text)
}

// SetError makes every Chat call fail with err.
func (m *MockLLMService) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Chat has been invoked.
func (m *MockLLMService) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockLLMService) Chat(ctx context.Context, messages []chat.ChatMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return "The wind stirs the bamboo. Nothing else happens.", nil
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("no messages provided")
	}

	next := m.responses[0]
	m.responses = m.responses[1:]
	return next, nil
}
