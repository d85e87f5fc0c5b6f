package reembed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/chainlab/ai/mock"
	"github.com/poiesic/chainlab/core"
	"github.com/poiesic/chainlab/vectorstore/badger"
)

func seedSource(t *testing.T, n int) *badger.Store {
	t.Helper()
	store := setupStore(t)
	texts := make([]string, n)
	for i := range texts {
		texts[i] = fmt.Sprintf("chunk text %d", i)
	}
	chunks := testChunks(texts...)
	for _, chunk := range chunks {
		chunk.Vector = mock.Vector(chunk.Content, 4)
	}
	require.NoError(t, store.AddChunks(context.Background(), "old-model", chunks))
	return store
}

func TestReembedder_Run(t *testing.T) {
	ctx := context.Background()
	source := seedSource(t, 10)
	target := setupStore(t)

	var buf bytes.Buffer
	embedder := mock.NewMockEmbedder().WithDimension(8)
	config := &Config{
		BatchSize:      3,
		ReportInterval: 3,
		MaxRetries:     3,
		RetryDelay:     10 * time.Millisecond,
	}

	reembedder := NewReembedder(source, target, embedder, "new-model", config, &buf)
	require.NoError(t, reembedder.Run(ctx))

	// 10 chunks in batches of 3
	assert.Equal(t, 4, embedder.CallCount())

	count, err := target.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, count)

	manifest, err := target.Manifest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new-model", manifest.EmbeddingModel)
	assert.Equal(t, 8, manifest.Dimension)

	err = target.ForEach(ctx, 100, func(batch []*core.Chunk) error {
		for _, chunk := range batch {
			var magnitude float32
			for _, v := range chunk.Vector {
				magnitude += v * v
			}
			assert.InDelta(t, 1.0, magnitude, 0.01, "vector should be normalized")
		}
		return nil
	})
	require.NoError(t, err)

	// the source keeps its original vectors
	sourceManifest, err := source.Manifest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "old-model", sourceManifest.EmbeddingModel)
	assert.Equal(t, 4, sourceManifest.Dimension)

	output := buf.String()
	assert.Contains(t, output, "Starting reembedding of 10 chunks")
	assert.Contains(t, output, "10/10", "should show completion")
	assert.Contains(t, output, "Reembedding complete")
}

func TestReembedder_EmptySource(t *testing.T) {
	var buf bytes.Buffer
	embedder := mock.NewMockEmbedder()

	reembedder := NewReembedder(setupStore(t), setupStore(t), embedder, "m", DefaultConfig(), &buf)
	require.NoError(t, reembedder.Run(context.Background()))

	assert.Contains(t, buf.String(), "No chunks found")
	assert.Zero(t, embedder.CallCount())
}

func TestReembedder_SameStore(t *testing.T) {
	store := setupStore(t)
	reembedder := NewReembedder(store, store, mock.NewMockEmbedder(), "m", nil, nil)
	assert.ErrorIs(t, reembedder.Run(context.Background()), ErrSameStore)
}

func TestReembedder_TargetWithOtherModel(t *testing.T) {
	source := seedSource(t, 2)
	target := seedSource(t, 1)

	reembedder := NewReembedder(source, target, mock.NewMockEmbedder(), "new-model", nil, nil)
	assert.ErrorIs(t, reembedder.Run(context.Background()), ErrTargetNotEmpty)
}

func TestReembedder_EmbedderFailure(t *testing.T) {
	source := seedSource(t, 5)
	target := setupStore(t)

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("embedding service unavailable")
	}
	config := &Config{BatchSize: 2, ReportInterval: 2, MaxRetries: 2, RetryDelay: time.Millisecond}

	reembedder := NewReembedder(source, target, embedder, "m", config, nil)
	err := reembedder.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to process batch")
	assert.Contains(t, err.Error(), "embedding service unavailable")
}

func TestReembedder_ContextCancellation(t *testing.T) {
	source := seedSource(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reembedder := NewReembedder(source, setupStore(t), mock.NewMockEmbedder(), "m", nil, nil)
	assert.ErrorIs(t, reembedder.Run(ctx), context.Canceled)
}
