package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// StreamFunc receives generated text as it arrives.
// Returning an error aborts the generation.
type StreamFunc func(ctx context.Context, chunk string) error

// ChatModel produces text from a list of chat messages.
// Implementations must be thread-safe for concurrent use.
type ChatModel interface {
	// Generate sends messages to the model and returns the full reply.
	Generate(ctx context.Context, messages []Message) (string, error)

	// Stream behaves like Generate but hands each chunk to fn as it is
	// produced. The returned string is the concatenation of all chunks.
	Stream(ctx context.Context, messages []Message, fn StreamFunc) (string, error)

	// Name identifies the underlying model, e.g. "gemma3:1b".
	Name() string
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
// A provider creates and manages Embedder and ChatModel instances,
// ensuring they share configuration and resources appropriately.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// ChatModel returns the text generation service.
	ChatModel() ChatModel

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
