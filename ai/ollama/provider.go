package ollama

import (
	"fmt"
	"log/slog"

	"github.com/poiesic/chainlab/ai"
	"github.com/poiesic/chainlab/ai/langchain"
	"github.com/tmc/langchaingo/llms/ollama"
)

// Provider implements ai.AIProvider against a locally hosted Ollama server.
type Provider struct {
	config   *ai.Config
	embedder *langchain.Embedder
	chat     *langchain.ChatModel
	logger   *slog.Logger
}

// NewProvider creates a provider whose chat and embedding models are both
// served by Ollama.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	chat, err := newChatModel(config)
	if err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(config)
	if err != nil {
		return nil, err
	}

	return &Provider{
		config:   config,
		embedder: embedder,
		chat:     chat,
		logger:   slog.Default().With("component", "ollama-provider"),
	}, nil
}

func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

func (p *Provider) ChatModel() ai.ChatModel {
	return p.chat
}

func (p *Provider) Close() error {
	p.logger.Debug("closing Ollama provider")
	return nil
}

func newChatModel(config *ai.Config) (*langchain.ChatModel, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Provider != ai.ProviderOllama {
		return nil, fmt.Errorf("%w: chat provider is %q, not ollama", ai.ErrUnknownProvider, config.Provider)
	}

	client, err := ollama.New(
		ollama.WithServerURL(config.ChatHost),
		ollama.WithModel(config.ChatModel),
	)
	if err != nil {
		return nil, err
	}
	return langchain.NewChatModel(config.ChatModel, client, config.Temperature), nil
}

// NewChatModel creates a chat model served by Ollama.
func NewChatModel(config *ai.Config) (ai.ChatModel, error) {
	return newChatModel(config)
}

func newEmbedder(config *ai.Config) (*langchain.Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.EmbeddingProvider != ai.ProviderOllama {
		return nil, fmt.Errorf("%w: embedding provider is %q, not ollama", ai.ErrUnknownProvider, config.EmbeddingProvider)
	}

	client, err := ollama.New(
		ollama.WithServerURL(config.EmbeddingHost),
		ollama.WithModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}
	return langchain.NewEmbedder(client, config.EmbeddingModel)
}

// NewEmbedder creates an embedder served by Ollama.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}
