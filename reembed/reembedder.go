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


package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/chainlab/ai"
	"github.com/poiesic/chainlab/core"
	"github.com/poiesic/chainlab/ingest"
	"github.com/poiesic/chainlab/vectorstore"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of chunks to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of chunks)
	ReportInterval int

	// MaxRetries is the maximum number of retry attempts for failed operations
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Source is a store whose chunks can be enumerated.
type Source interface {
	vectorstore.Iterable
	Count(ctx context.Context) (int, error)
}

// Reembedder copies every chunk of a source store into a target store,
// embedding the chunk texts again with the configured embedder.
type Reembedder struct {
	source    Source
	target    vectorstore.Store
	model     string
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	logger    *slog.Logger
}

// NewReembedder creates a new reembedder.
// model: name recorded in the target manifest
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(source Source, target vectorstore.Store, embedder ai.Embedder, model string, config *Config, progress io.Writer) *Reembedder {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		source:    source,
		target:    target,
		model:     model,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(target, embedder, model, config.MaxRetries, config.RetryDelay),
		logger:    slog.Default().With("component", "reembed"),
	}
}

// Run executes the reembedding operation.
// Progress is reported to the configured writer.
func (r *Reembedder) Run(ctx context.Context) error {
	if any(r.source) == any(r.target) {
		return ErrSameStore
	}
	if r.config.MaxRetries <= 0 {
		return ingest.ErrInvalidMaxAttempts
	}

	manifest, err := r.target.Manifest(ctx)
	if err != nil {
		return fmt.Errorf("failed to read target manifest: %w", err)
	}
	if manifest != nil && manifest.Chunks > 0 && manifest.EmbeddingModel != r.model {
		return fmt.Errorf("%w: built with %q", ErrTargetNotEmpty, manifest.EmbeddingModel)
	}

	total, err := r.source.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count chunks: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No chunks found in source index (0 chunks)\n")
		return nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d chunks (batch size: %d)\n",
		total, r.config.BatchSize)
	r.logger.Info("reembedding", "chunks", total, "model", r.model, "batch_size", r.config.BatchSize)

	tracker := ingest.NewProgressTracker(r.progress, total, r.config.ReportInterval, "chunks")
	tracker.Start()

	err = r.source.ForEach(ctx, r.config.BatchSize, func(chunks []*core.Chunk) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.processor.Process(ctx, chunks); err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		tracker.Increment(len(chunks))
		return nil
	})
	if err != nil {
		return err
	}

	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d chunks in %v (%.1f chunks/sec)\n",
		total, elapsed.Round(time.Second), float64(total)/elapsed.Seconds())

	return nil
}
