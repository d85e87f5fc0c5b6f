// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/chainlab/ai/mock"
	"github.com/poiesic/chainlab/core"
	"github.com/poiesic/chainlab/vectorstore"
	"github.com/poiesic/chainlab/vectorstore/badger"
)

func setupStore(t *testing.T) *badger.Store {
	t.Helper()
	store, err := badger.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleDocs(n int) []core.Document {
	docs := make([]core.Document, n)
	for i := range docs {
		docs[i] = core.Document{
			Source:  fmt.Sprintf("doc-%d.txt", i),
			Content: fmt.Sprintf("document number %d talks about topic %d", i, i*7),
		}
	}
	return docs
}

func TestNewIndexer_Validation(t *testing.T) {
	store := setupStore(t)
	embedder := mock.NewMockEmbedder()

	_, err := NewIndexer(nil, embedder, "m")
	assert.ErrorIs(t, err, ErrStoreRequired)

	_, err = NewIndexer(store, nil, "m")
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewIndexer(store, embedder, "m", WithRetries(0, time.Millisecond))
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)

	_, err = NewIndexer(store, embedder, "m", WithChunking(10, 10))
	assert.Error(t, err)
}

func TestIndexer_IndexDocuments(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	embedder := mock.NewMockEmbedder().WithDimension(16)

	var progress bytes.Buffer
	ix, err := NewIndexer(store, embedder, "mock-model", WithBatchSize(2), WithProgress(&progress))
	require.NoError(t, err)

	report, err := ix.IndexDocuments(ctx, sampleDocs(5))
	require.NoError(t, err)
	assert.Equal(t, 5, report.Documents)
	assert.Equal(t, 5, report.Chunks)
	assert.Equal(t, 16, report.Dimension)

	// 5 chunks in batches of 2
	assert.Equal(t, 3, embedder.CallCount())

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	manifest, err := store.Manifest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mock-model", manifest.EmbeddingModel)
	assert.Equal(t, 16, manifest.Dimension)

	assert.Contains(t, progress.String(), "Progress: 5/5 (100.0%)")
}

func TestIndexer_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	ix, err := NewIndexer(store, mock.NewMockEmbedder().WithDimension(8), "m")
	require.NoError(t, err)

	_, err = ix.IndexDocuments(ctx, sampleDocs(3))
	require.NoError(t, err)
	_, err = ix.IndexDocuments(ctx, sampleDocs(3))
	require.NoError(t, err)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestIndexer_Workers(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	embedder := mock.NewMockEmbedder().WithDimension(8)

	ix, err := NewIndexer(store, embedder, "m", WithBatchSize(1), WithWorkers(4))
	require.NoError(t, err)

	report, err := ix.IndexDocuments(ctx, sampleDocs(10))
	require.NoError(t, err)
	assert.Equal(t, 10, report.Chunks)
	assert.Equal(t, 10, embedder.CallCount())

	results, err := store.Search(ctx, &core.Query{
		Vector: NormalizeVector(mock.Vector(sampleDocs(10)[4].Content, 8)),
		Limit:  1,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-4.txt", results[0].Chunk.Source)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
}

func TestIndexer_RetriesTransientFailure(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	embedder := mock.NewMockEmbedder()

	var attempts atomic.Int32
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if attempts.Add(1) == 1 {
			return nil, errors.New("temporary failure")
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.Vector(text, 4)
		}
		return out, nil
	}

	ix, err := NewIndexer(store, embedder, "m", WithRetries(3, time.Millisecond))
	require.NoError(t, err)

	report, err := ix.IndexDocuments(ctx, sampleDocs(2))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Chunks)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestIndexer_FailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	embedder := mock.NewMockEmbedder()

	var calls atomic.Int32
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if calls.Add(1) > 1 {
			return nil, errors.New("embedding service down")
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.Vector(text, 4)
		}
		return out, nil
	}

	ix, err := NewIndexer(store, embedder, "m", WithBatchSize(1), WithRetries(1, time.Millisecond))
	require.NoError(t, err)

	_, err = ix.IndexDocuments(ctx, sampleDocs(3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding service down")

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

// failingWriteStore fails every AddChunks call after the first okWrites.
type failingWriteStore struct {
	vectorstore.Store
	okWrites int32
	writes   atomic.Int32
}

func (s *failingWriteStore) AddChunks(ctx context.Context, model string, chunks []*core.Chunk) error {
	if s.writes.Add(1) > s.okWrites {
		return errors.New("disk full")
	}
	return s.Store.AddChunks(ctx, model, chunks)
}

func TestIndexer_WriteFailureReportsProgress(t *testing.T) {
	ctx := context.Background()
	store := &failingWriteStore{Store: setupStore(t), okWrites: 1}
	ix, err := NewIndexer(store, mock.NewMockEmbedder().WithDimension(4), "m", WithBatchSize(2))
	require.NoError(t, err)

	report, err := ix.IndexDocuments(ctx, sampleDocs(5))
	require.Error(t, err)
	assert.Nil(t, report)
	assert.Contains(t, err.Error(), "disk full")
	assert.Contains(t, err.Error(), "2 of 5 written")

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestIndexer_DimensionMismatchWithStore(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	first, err := NewIndexer(store, mock.NewMockEmbedder().WithDimension(8), "m")
	require.NoError(t, err)
	_, err = first.IndexDocuments(ctx, sampleDocs(1))
	require.NoError(t, err)

	second, err := NewIndexer(store, mock.NewMockEmbedder().WithDimension(4), "m")
	require.NoError(t, err)
	_, err = second.IndexDocuments(ctx, []core.Document{{Source: "new.txt", Content: "fresh text"}})
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIndexer_ModelMismatchWithStore(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	first, err := NewIndexer(store, mock.NewMockEmbedder().WithDimension(8), "model-a")
	require.NoError(t, err)
	_, err = first.IndexDocuments(ctx, sampleDocs(1))
	require.NoError(t, err)

	second, err := NewIndexer(store, mock.NewMockEmbedder().WithDimension(8), "model-b")
	require.NoError(t, err)
	_, err = second.IndexDocuments(ctx, sampleDocs(2))
	assert.ErrorIs(t, err, vectorstore.ErrModelMismatch)
}

func TestIndexer_EmbeddingCountMismatch(t *testing.T) {
	store := setupStore(t)
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1, 0}}, nil
	}

	ix, err := NewIndexer(store, embedder, "m", WithRetries(1, time.Millisecond))
	require.NoError(t, err)

	_, err = ix.IndexDocuments(context.Background(), sampleDocs(3))
	assert.ErrorIs(t, err, ErrEmbeddingMismatch)
}

func TestIndexer_EmptyInput(t *testing.T) {
	store := setupStore(t)
	embedder := mock.NewMockEmbedder()
	ix, err := NewIndexer(store, embedder, "m")
	require.NoError(t, err)

	report, err := ix.IndexDocuments(context.Background(), []core.Document{{Source: "blank", Content: " \n "}})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Documents)
	assert.Zero(t, report.Chunks)
	assert.Zero(t, embedder.CallCount())
}

func TestIndexer_IndexDirectory(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFile(t, root, "guide.md", strings.Repeat("Chains combine prompts and models. ", 10))
	writeFile(t, root, "notes/faq.txt", "Retrievers return relevant chunks.")

	store := setupStore(t)
	ix, err := NewIndexer(store, mock.NewMockEmbedder().WithDimension(8), "m", WithChunking(100, 20))
	require.NoError(t, err)

	report, err := ix.IndexDirectory(ctx, root, "")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Documents)
	assert.Greater(t, report.Chunks, 2)

	var sources []string
	err = store.ForEach(ctx, 100, func(batch []*core.Chunk) error {
		for _, chunk := range batch {
			sources = append(sources, chunk.Source)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Contains(t, sources, "guide.md")
	assert.Contains(t, sources, "notes/faq.txt")
}

func TestIndexer_CanceledContext(t *testing.T) {
	store := setupStore(t)
	ix, err := NewIndexer(store, mock.NewMockEmbedder(), "m")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = ix.IndexDocuments(ctx, sampleDocs(2))
	assert.Error(t, err)
}

func TestMakeBatches(t *testing.T) {
	chunks := make([]*core.Chunk, 7)
	batches := makeBatches(chunks, 3)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 3)
	assert.Len(t, batches[2], 1)

	assert.Empty(t, makeBatches(nil, 3))
}
