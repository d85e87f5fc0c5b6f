package mock

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/poiesic/chainlab/ai"
)

// MockChatModel is a test double for ai.ChatModel.
//
// By default it replies "mock response to: <last human message>". Replies
// queued with WithResponses are returned in order instead, one per call.
type MockChatModel struct {
	// GenerateFunc is called by Generate and Stream if set.
	GenerateFunc func(ctx context.Context, messages []ai.Message) (string, error)

	name      string
	mu        sync.Mutex
	responses []string
	last      []ai.Message
	callCount atomic.Int64
}

// NewMockChatModel creates a mock chat model named "mock".
func NewMockChatModel() *MockChatModel {
	return &MockChatModel{name: "mock"}
}

// WithResponses queues scripted replies.
func (m *MockChatModel) WithResponses(responses ...string) *MockChatModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, responses...)
	return m
}

// WithGenerateFunc injects custom behavior.
func (m *MockChatModel) WithGenerateFunc(fn func(ctx context.Context, messages []ai.Message) (string, error)) *MockChatModel {
	m.GenerateFunc = fn
	return m
}

func (m *MockChatModel) Name() string {
	return m.name
}

// Generate returns the next scripted reply.
func (m *MockChatModel) Generate(ctx context.Context, messages []ai.Message) (string, error) {
	m.callCount.Add(1)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.reply(ctx, messages)
}

// Stream delivers the reply word by word, keeping the separating spaces so
// the chunks concatenate back to the full reply.
func (m *MockChatModel) Stream(ctx context.Context, messages []ai.Message, fn ai.StreamFunc) (string, error) {
	m.callCount.Add(1)
	reply, err := m.reply(ctx, messages)
	if err != nil {
		return "", err
	}
	for _, chunk := range SplitChunks(reply) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if fn != nil {
			if err := fn(ctx, chunk); err != nil {
				return "", err
			}
		}
	}
	return reply, nil
}

func (m *MockChatModel) reply(ctx context.Context, messages []ai.Message) (string, error) {
	m.mu.Lock()
	m.last = append([]ai.Message(nil), messages...)
	if m.GenerateFunc == nil && len(m.responses) > 0 {
		next := m.responses[0]
		m.responses = m.responses[1:]
		m.mu.Unlock()
		return next, nil
	}
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, messages)
	}

	var question string
	for _, msg := range messages {
		if msg.Role == ai.RoleHuman {
			question = msg.Content
		}
	}
	return "mock response to: " + question, nil
}

// LastMessages returns the messages received by the most recent call.
func (m *MockChatModel) LastMessages() []ai.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// CallCount returns the number of Generate and Stream calls.
func (m *MockChatModel) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count, queued replies and injected behavior.
func (m *MockChatModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount.Store(0)
	m.responses = nil
	m.last = nil
	m.GenerateFunc = nil
}

// SplitChunks splits text into word chunks that concatenate back to text.
func SplitChunks(text string) []string {
	var chunks []string
	for len(text) > 0 {
		i := strings.IndexByte(text[1:], ' ')
		if i < 0 {
			chunks = append(chunks, text)
			break
		}
		chunks = append(chunks, text[:i+1])
		text = text[i+1:]
	}
	return chunks
}
