package openai

import (
	"fmt"

	"github.com/poiesic/chainlab/ai"
	"github.com/poiesic/chainlab/ai/langchain"
	"github.com/tmc/langchaingo/llms/openai"
)

// newEmbedder is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newEmbedder(config *ai.Config) (*langchain.Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if !ai.IsOpenAICompatible(config.EmbeddingProvider) {
		return nil, fmt.Errorf("%w: %q is not an OpenAI-compatible embedding provider", ai.ErrUnknownProvider, config.EmbeddingProvider)
	}

	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(token(config.EmbeddingAPIKey)),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}

	return langchain.NewEmbedder(client, config.EmbeddingModel)
}

// NewEmbedder creates a new embedder for the OpenAI or Hugging Face
// endpoint described by config.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// token returns key, or a placeholder for local servers that don't
// require authentication. The client refuses an empty token.
func token(key string) string {
	if key == "" {
		return "none"
	}
	return key
}
