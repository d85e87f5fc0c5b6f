package vectorstore

import (
	"testing"
	"time"

	"github.com/poiesic/chainlab/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  bool
	}{
		{in: "", want: KindBadger},
		{in: "badger", want: KindBadger},
		{in: " Chroma ", want: KindChroma},
		{in: "PGVECTOR", want: KindPgvector},
		{in: "faiss", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if tt.err {
				assert.ErrorIs(t, err, ErrUnknownKind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckCompatible(t *testing.T) {
	manifest := &core.Manifest{EmbeddingModel: "all-minilm", Dimension: 384}

	assert.NoError(t, CheckCompatible(nil, "anything", 3))
	assert.NoError(t, CheckCompatible(&core.Manifest{}, "anything", 3))
	assert.NoError(t, CheckCompatible(manifest, "all-minilm", 384))
	assert.NoError(t, CheckCompatible(manifest, "", 384))
	assert.ErrorIs(t, CheckCompatible(manifest, "all-minilm", 768), ErrDimensionMismatch)
	assert.ErrorIs(t, CheckCompatible(manifest, "nomic-embed-text", 384), ErrModelMismatch)
}

func TestPrepareChunks(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	earlier := now.Add(-time.Hour)

	t.Run("new index", func(t *testing.T) {
		chunks := []*core.Chunk{
			{Source: "a", Content: "x", Vector: []float32{1, 0}},
			{Id: 42, Source: "a", Content: "y", Vector: []float32{0, 1}, InsertedAt: earlier},
		}
		next, err := PrepareChunks(nil, "m", chunks, now)
		require.NoError(t, err)

		assert.Equal(t, &core.Manifest{EmbeddingModel: "m", Dimension: 2, CreatedAt: now, UpdatedAt: now}, next)
		assert.Equal(t, core.ChunkID("a", "x"), chunks[0].Id)
		assert.Equal(t, now, chunks[0].InsertedAt)
		assert.Equal(t, core.ID(42), chunks[1].Id)
		assert.Equal(t, earlier, chunks[1].InsertedAt)
	})

	t.Run("existing index keeps creation time", func(t *testing.T) {
		current := &core.Manifest{EmbeddingModel: "m", Dimension: 2, Chunks: 5, CreatedAt: earlier, UpdatedAt: earlier}
		next, err := PrepareChunks(current, "m", []*core.Chunk{{Content: "x", Vector: []float32{1, 0}}}, now)
		require.NoError(t, err)

		assert.Equal(t, 5, next.Chunks)
		assert.Equal(t, earlier, next.CreatedAt)
		assert.Equal(t, now, next.UpdatedAt)
	})

	t.Run("empty batch", func(t *testing.T) {
		next, err := PrepareChunks(nil, "m", nil, now)
		require.NoError(t, err)
		assert.Nil(t, next)
	})

	t.Run("invalid chunk", func(t *testing.T) {
		_, err := PrepareChunks(nil, "m", []*core.Chunk{{Content: " "}}, now)
		assert.ErrorIs(t, err, core.ErrInvalidChunk)
	})

	t.Run("ragged batch", func(t *testing.T) {
		_, err := PrepareChunks(nil, "m", []*core.Chunk{
			{Content: "x", Vector: []float32{1, 0}},
			{Content: "y", Vector: []float32{1, 0, 0}},
		}, now)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-6)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-3, 0}), 1e-6)
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 0}))
	assert.Zero(t, Cosine([]float32{1}, []float32{1, 0}))
}

func TestSortResults(t *testing.T) {
	results := []*core.SearchResult{
		{Chunk: &core.Chunk{Id: 3}, Score: 0.2},
		{Chunk: &core.Chunk{Id: 2}, Score: 0.9},
		{Chunk: &core.Chunk{Id: 1}, Score: 0.9},
		{Chunk: &core.Chunk{Id: 4}, Score: 0.5},
	}

	sorted := SortResults(results, 3)
	require.Len(t, sorted, 3)
	assert.Equal(t, core.ID(1), sorted[0].Chunk.Id)
	assert.Equal(t, core.ID(2), sorted[1].Chunk.Id)
	assert.Equal(t, core.ID(4), sorted[2].Chunk.Id)
}

func TestMarshalManifest(t *testing.T) {
	manifest := &core.Manifest{
		EmbeddingModel: "all-minilm",
		Dimension:      384,
		Chunks:         12,
		CreatedAt:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:      time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
	}

	decoded, err := UnmarshalManifest(MarshalManifest(manifest))
	require.NoError(t, err)
	assert.Equal(t, manifest, decoded)

	_, err = UnmarshalManifest(nil)
	assert.Error(t, err)
}
