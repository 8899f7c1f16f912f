package llm

import (
	"context"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// fakeModel replays scripted responses and records the prompts it received.
type fakeModel struct {
	mu        sync.Mutex
	responses []fakeResponse
	calls     int
	messages  [][]llms.MessageContent
}

type fakeResponse struct {
	content string
	info    map[string]any
	err     error
	empty   bool
}

func (m *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = append(m.messages, messages)
	idx := m.calls
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	m.calls++

	r := m.responses[idx]
	if r.err != nil {
		return nil, r.err
	}
	if r.empty {
		return &llms.ContentResponse{}, nil
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: r.content, GenerationInfo: r.info}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *fakeModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
