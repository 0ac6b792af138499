package llm

import (
	"context"
	"sync"
)

// MockService is a programmable Service double for tests.
type MockService struct {
	mu sync.Mutex

	Reply string
	Err   error

	Calls []([]Message)
}

// NewMockService creates a mock returning reply.
func NewMockService(reply string) *MockService {
	return &MockService{Reply: reply}
}

func (m *MockService) Chat(ctx context.Context, messages []Message) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, messages)
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.Err != nil {
		return "", m.Err
	}
	return m.Reply, nil
}

// CallCount returns how many times Chat was invoked.
func (m *MockService) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
