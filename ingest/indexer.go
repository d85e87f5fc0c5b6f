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
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/chainlab/ai"
	"github.com/poiesic/chainlab/core"
	"github.com/poiesic/chainlab/vectorstore"
)

// Report summarizes one indexing run.
type Report struct {
	Documents int
	Chunks    int
	Dimension int
	Elapsed   time.Duration
}

// Indexer splits documents, embeds the chunks and writes them to a store.
type Indexer struct {
	store    vectorstore.Store
	embedder ai.Embedder
	model    string

	chunkSize    int
	chunkOverlap int
	batchSize    int
	workers      int
	maxRetries   int
	retryDelay   time.Duration
	progress     io.Writer
	logger       *slog.Logger
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithChunking sets the splitter chunk size and overlap in characters.
func WithChunking(size, overlap int) Option {
	return func(ix *Indexer) {
		ix.chunkSize = size
		ix.chunkOverlap = overlap
	}
}

// WithBatchSize sets how many chunks are sent to the embedder per call.
// Default is 32.
func WithBatchSize(size int) Option {
	return func(ix *Indexer) {
		if size > 0 {
			ix.batchSize = size
		}
	}
}

// WithWorkers sets how many embedding batches run concurrently.
// Default is 1.
func WithWorkers(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.workers = n
		}
	}
}

// WithRetries sets the attempts per embedding batch and the base backoff delay.
func WithRetries(maxAttempts int, delay time.Duration) Option {
	return func(ix *Indexer) {
		ix.maxRetries = maxAttempts
		ix.retryDelay = delay
	}
}

// WithProgress sets where progress lines are written. Default is none.
func WithProgress(w io.Writer) Option {
	return func(ix *Indexer) {
		ix.progress = w
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Indexer) {
		if logger != nil {
			ix.logger = logger
		}
	}
}

// NewIndexer creates an indexer writing vectors produced by embedder
// under the model name model.
func NewIndexer(store vectorstore.Store, embedder ai.Embedder, model string, opts ...Option) (*Indexer, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	ix := &Indexer{
		store:        store,
		embedder:     embedder,
		model:        model,
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		batchSize:    32,
		workers:      1,
		maxRetries:   3,
		retryDelay:   time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	if ix.maxRetries <= 0 {
		return nil, ErrInvalidMaxAttempts
	}
	if _, err := NewSplitter(ix.chunkSize, ix.chunkOverlap); err != nil {
		return nil, err
	}
	ix.logger = ix.logger.With("component", "indexer")
	return ix, nil
}

// IndexDirectory loads the files under root matching pattern and indexes them.
func (ix *Indexer) IndexDirectory(ctx context.Context, root, pattern string) (*Report, error) {
	docs, err := LoadDocuments(ctx, root, pattern)
	if err != nil {
		return nil, err
	}
	ix.logger.Info("loaded documents", "root", root, "pattern", pattern, "documents", len(docs))
	return ix.IndexDocuments(ctx, docs)
}

// IndexDocuments splits and embeds docs, then writes the chunks.
// Nothing is written unless every batch embedded successfully with one
// dimension that matches the store's manifest. Writes go out batch by batch,
// so a store failure part way leaves the earlier batches in place; the
// error reports how many chunks were written.
func (ix *Indexer) IndexDocuments(ctx context.Context, docs []core.Document) (*Report, error) {
	return ix.index(ctx, docs, nil)
}

// index is IndexDocuments with a hook run after every chunk has been
// embedded and checked, right before the first write. A hook error aborts
// the run with nothing written.
func (ix *Indexer) index(ctx context.Context, docs []core.Document, beforeWrite func(context.Context) error) (*Report, error) {
	start := time.Now()

	splitter, err := NewSplitter(ix.chunkSize, ix.chunkOverlap)
	if err != nil {
		return nil, err
	}
	chunks, err := splitter.Split(docs)
	if err != nil {
		return nil, err
	}

	report := &Report{Documents: len(docs), Chunks: len(chunks)}
	if len(chunks) == 0 {
		if beforeWrite != nil {
			if err := beforeWrite(ctx); err != nil {
				return nil, err
			}
		}
		report.Elapsed = time.Since(start)
		return report, nil
	}

	manifest, err := ix.store.Manifest(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	batches := makeBatches(chunks, ix.batchSize)
	ix.logger.Info("embedding chunks", "chunks", len(chunks), "batches", len(batches), "workers", ix.workers)

	if err := ix.embedBatches(ctx, batches); err != nil {
		return nil, err
	}

	dim := len(chunks[0].Vector)
	for _, chunk := range chunks {
		if len(chunk.Vector) != dim {
			return nil, &vectorstore.DimensionError{Want: dim, Got: len(chunk.Vector)}
		}
	}
	if err := vectorstore.CheckCompatible(manifest, ix.model, dim); err != nil {
		return nil, err
	}
	report.Dimension = dim

	if beforeWrite != nil {
		if err := beforeWrite(ctx); err != nil {
			return nil, err
		}
	}

	written := 0
	for _, batch := range batches {
		if err := ix.store.AddChunks(ctx, ix.model, batch); err != nil {
			ix.logger.Error("error writing chunks", "written", written, "chunks", len(chunks), "err", err)
			return nil, fmt.Errorf("writing chunks (%d of %d written): %w", written, len(chunks), err)
		}
		written += len(batch)
	}

	report.Elapsed = time.Since(start)
	ix.logger.Info("indexing complete", "documents", report.Documents, "chunks", report.Chunks,
		"dimension", report.Dimension, "elapsed", report.Elapsed.Round(time.Millisecond))
	return report, nil
}

// embedBatches fills in chunk vectors on an ants pool. The first failure
// cancels the remaining batches.
func (ix *Indexer) embedBatches(ctx context.Context, batches [][]*core.Chunk) error {
	total := 0
	for _, batch := range batches {
		total += len(batch)
	}
	tracker := NewProgressTracker(ix.progress, total, ix.batchSize, "chunks")
	tracker.Start()

	pool, err := ants.NewPool(min(ix.workers, len(batches)))
	if err != nil {
		return err
	}
	defer pool.Release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for i, batch := range batches {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			if err := ix.embedBatch(ctx, batch); err != nil {
				fail(fmt.Errorf("batch %d: %w", i, err))
				return
			}
			tracker.Increment(len(batch))
		})
		if err != nil {
			wg.Done()
			fail(err)
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tracker.Finish()
	return nil
}

func (ix *Indexer) embedBatch(ctx context.Context, batch []*core.Chunk) error {
	texts := make([]string, len(batch))
	for i, chunk := range batch {
		texts[i] = chunk.Content
	}

	var vectors [][]float32
	err := RetryWithBackoff(ctx, func() error {
		var err error
		vectors, err = ix.embedder.EmbedTexts(ctx, texts)
		return err
	}, ix.maxRetries, ix.retryDelay)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", ix.maxRetries, err)
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("%w: expected %d, got %d", ErrEmbeddingMismatch, len(batch), len(vectors))
	}

	for i := range batch {
		batch[i].Vector = NormalizeVector(vectors[i])
	}
	return nil
}

func makeBatches(chunks []*core.Chunk, size int) [][]*core.Chunk {
	batches := make([][]*core.Chunk, 0, (len(chunks)+size-1)/size)
	for start := 0; start < len(chunks); start += size {
		batches = append(batches, chunks[start:min(start+size, len(chunks))])
	}
	return batches
}
