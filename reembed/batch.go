package reembed

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/chainlab/ai"
	"github.com/poiesic/chainlab/core"
	"github.com/poiesic/chainlab/ingest"
	"github.com/poiesic/chainlab/vectorstore"
)

// BatchProcessor embeds batches of chunks and writes them to a store.
type BatchProcessor struct {
	target         vectorstore.Store
	embedder       ai.Embedder
	model          string
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of retry attempts for embedding API calls
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(target vectorstore.Store, embedder ai.Embedder, model string, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		target:         target,
		embedder:       embedder,
		model:          model,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process replaces the vectors of chunks with fresh embeddings of their
// content and writes them to the target store.
// Vectors are normalized after embedding to ensure compatibility with cosine similarity.
func (bp *BatchProcessor) Process(ctx context.Context, chunks []*core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	var embeddings [][]float32
	err := ingest.RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}

	if len(embeddings) != len(chunks) {
		return fmt.Errorf("%w: expected %d, got %d", ingest.ErrEmbeddingMismatch, len(chunks), len(embeddings))
	}

	for i := range chunks {
		chunks[i].Vector = ingest.NormalizeVector(embeddings[i])
		chunks[i].InsertedAt = time.Time{}
	}

	if err := bp.target.AddChunks(ctx, bp.model, chunks); err != nil {
		return fmt.Errorf("failed to write chunks: %w", err)
	}
	return nil
}
