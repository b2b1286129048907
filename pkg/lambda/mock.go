package lambda

import (
	"context"
	"sync"
	"time"

	"github.com/themobileprof/lambdachat/pkg/llm"
)

// MockClient implements llm.Client for testing
type MockClient struct {
	mu sync.Mutex

	// CompleteFunc allows customizing the non-streaming behavior
	CompleteFunc func(context.Context, []llm.Message, time.Duration) (string, error)

	// StreamFunc allows customizing the streaming behavior
	StreamFunc func(context.Context, []llm.Message, time.Duration) (<-chan llm.Chunk, error)

	// Tracking for assertions
	CompleteCalls [][]llm.Message
	StreamCalls   [][]llm.Message
}

var _ llm.Client = (*MockClient)(nil)

// NewMockClient creates a new mock client with default behavior
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Complete implements llm.Client.Complete
func (m *MockClient) Complete(ctx context.Context, history []llm.Message, timeout time.Duration) (string, error) {
	m.record(&m.CompleteCalls, history)

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, history, timeout)
	}
	return "This is a mock response.", nil
}

// CompleteStream implements llm.Client.CompleteStream
func (m *MockClient) CompleteStream(ctx context.Context, history []llm.Message, timeout time.Duration) (<-chan llm.Chunk, error) {
	m.record(&m.StreamCalls, history)

	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, history, timeout)
	}
	return ChunksOf("This is ", "a mock response."), nil
}

func (m *MockClient) record(calls *[][]llm.Message, history []llm.Message) {
	snapshot := make([]llm.Message, len(history))
	copy(snapshot, history)

	m.mu.Lock()
	*calls = append(*calls, snapshot)
	m.mu.Unlock()
}

// Reset clears the call history
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CompleteCalls = nil
	m.StreamCalls = nil
}

// GetCompleteCallCount returns the number of non-streaming calls made
func (m *MockClient) GetCompleteCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.CompleteCalls)
}

// GetStreamCallCount returns the number of stream calls made
func (m *MockClient) GetStreamCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.StreamCalls)
}

// ChunksOf returns a closed, pre-filled stream of text chunks
func ChunksOf(texts ...string) <-chan llm.Chunk {
	ch := make(chan llm.Chunk, len(texts))
	for _, text := range texts {
		ch <- llm.Chunk{Text: text}
	}
	close(ch)
	return ch
}
