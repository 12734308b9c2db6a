package llm

import (
	"context"
	"sync"
	"time"
)

// MockProvider 是用于测试与离线运行的确定性 Provider 实现。
// 响应内容可按调用顺序预先注入，也可以固定返回同一条文本。
type MockProvider struct {
	mu        sync.Mutex
	responses []string
	fixed     string
	err       error
	calls     []*ChatRequest
}

// NewMockProvider creates a provider that always returns text.
func NewMockProvider(text string) *MockProvider {
	return &MockProvider{fixed: text}
}

// NewMockProviderScript creates a provider that returns the given responses
// in order, then repeats the last one.
func NewMockProviderScript(responses ...string) *MockProvider {
	return &MockProvider{responses: responses}
}

// FailWith makes every subsequent call return err.
func (m *MockProvider) FailWith(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Calls returns the requests received so far.
func (m *MockProvider) Calls() []*ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ChatRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, m.err
	}

	text := m.fixed
	if len(m.responses) > 0 {
		idx := len(m.calls) - 1
		if idx >= len(m.responses) {
			idx = len(m.responses) - 1
		}
		text = m.responses[idx]
	}

	return &ChatResponse{
		Provider:  "mock",
		Model:     req.Model,
		CreatedAt: time.Now(),
		Choices: []ChatChoice{
			{Message: Message{Role: RoleAssistant, Content: text}, FinishReason: "stop"},
		},
	}, nil
}
