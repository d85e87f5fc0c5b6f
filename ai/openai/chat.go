package openai

import (
	"fmt"

	"github.com/poiesic/chainlab/ai"
	"github.com/poiesic/chainlab/ai/langchain"
	"github.com/tmc/langchaingo/llms/openai"
)

func newChatModel(config *ai.Config) (*langchain.ChatModel, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if !ai.IsOpenAICompatible(config.Provider) {
		return nil, fmt.Errorf("%w: %q is not an OpenAI-compatible chat provider", ai.ErrUnknownProvider, config.Provider)
	}

	client, err := openai.New(
		openai.WithBaseURL(config.ChatHost),
		openai.WithToken(token(config.ChatAPIKey)),
		openai.WithModel(config.ChatModel),
	)
	if err != nil {
		return nil, err
	}

	return langchain.NewChatModel(config.ChatModel, client, config.Temperature), nil
}

// NewChatModel creates a chat model for the OpenAI or Groq endpoint
// described by config.
func NewChatModel(config *ai.Config) (ai.ChatModel, error) {
	return newChatModel(config)
}
