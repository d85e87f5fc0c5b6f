package langchain

import (
	"context"
	"log/slog"
	"strings"

	"github.com/poiesic/chainlab/ai"
	"github.com/tmc/langchaingo/llms"
)

// ChatModel implements ai.ChatModel on top of a langchaingo llms.Model.
type ChatModel struct {
	model       llms.Model
	name        string
	temperature float64
	logger      *slog.Logger
}

// NewChatModel wraps model. name is reported by Name and used in logs.
func NewChatModel(name string, model llms.Model, temperature float64) *ChatModel {
	return &ChatModel{
		model:       model,
		name:        name,
		temperature: temperature,
		logger:      slog.Default().With("component", "chat-model", "model", name),
	}
}

// Name returns the model identifier.
func (m *ChatModel) Name() string {
	return m.name
}

// Generate sends messages to the model and returns the first choice.
func (m *ChatModel) Generate(ctx context.Context, messages []ai.Message) (string, error) {
	m.logger.Debug("generating", "messages", len(messages))

	resp, err := m.model.GenerateContent(ctx, ToMessageContent(messages), llms.WithTemperature(m.temperature))
	if err != nil {
		m.logger.Error("generation failed", "err", err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ai.ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}

// Stream generates with a streaming callback. Backends that ignore the
// callback still work: the full reply is delivered to fn as a single chunk.
func (m *ChatModel) Stream(ctx context.Context, messages []ai.Message, fn ai.StreamFunc) (string, error) {
	m.logger.Debug("streaming", "messages", len(messages))

	var streamed strings.Builder
	chunks := 0
	resp, err := m.model.GenerateContent(ctx, ToMessageContent(messages),
		llms.WithTemperature(m.temperature),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			chunks++
			streamed.Write(chunk)
			if fn == nil {
				return nil
			}
			return fn(ctx, string(chunk))
		}),
	)
	if err != nil {
		m.logger.Error("streaming failed", "err", err)
		return "", err
	}
	if chunks > 0 {
		return streamed.String(), nil
	}
	if len(resp.Choices) == 0 {
		return "", ai.ErrEmptyResponse
	}

	content := resp.Choices[0].Content
	if fn != nil && content != "" {
		if err := fn(ctx, content); err != nil {
			return "", err
		}
	}
	return content, nil
}

// ToMessageContent converts chat messages into langchaingo message content.
func ToMessageContent(messages []ai.Message) []llms.MessageContent {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		content = append(content, llms.TextParts(messageType(msg.Role), msg.Content))
	}
	return content
}

func messageType(role ai.Role) llms.ChatMessageType {
	switch role {
	case ai.RoleSystem:
		return llms.ChatMessageTypeSystem
	case ai.RoleAI:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

// RoleFromMessageType is the inverse of the conversion used by ToMessageContent.
func RoleFromMessageType(t llms.ChatMessageType) ai.Role {
	switch t {
	case llms.ChatMessageTypeSystem:
		return ai.RoleSystem
	case llms.ChatMessageTypeAI:
		return ai.RoleAI
	default:
		return ai.RoleHuman
	}
}

var _ ai.ChatModel = (*ChatModel)(nil)
