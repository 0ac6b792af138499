package session

import "sync"

// MockService is a test double for Service without expiry behavior.
type MockService struct {
	mu       sync.Mutex
	pending  map[string]*PendingClarification
	contexts map[string]LastContext
}

// NewMockService creates an empty mock store.
func NewMockService() *MockService {
	return &MockService{
		pending:  make(map[string]*PendingClarification),
		contexts: make(map[string]LastContext),
	}
}

func (m *MockService) GetPending(userID string) *PendingClarification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending[userID]
}

func (m *MockService) SetPending(userID string, options []Option) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[userID] = &PendingClarification{Options: options}
}

func (m *MockService) ClearPending(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, userID)
}

func (m *MockService) GetLastContext(userID string) LastContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contexts[userID]
}

func (m *MockService) SetLastContext(userID string, productKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contexts[userID] = LastContext{ProductKey: productKey}
}

func (m *MockService) Close() {}
