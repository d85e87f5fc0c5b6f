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


package vectorstore

import (
	"context"

	"github.com/poiesic/chainlab/core"
)

// Store is a persisted collection of embedded chunks.
// Implementations must be thread-safe and support concurrent access.
type Store interface {
	// AddChunks writes chunks embedded with model. Chunks are upserted by ID,
	// so adding the same chunk twice leaves one copy behind.
	// Every vector must share the dimension recorded in the manifest.
	AddChunks(ctx context.Context, model string, chunks []*core.Chunk) error

	// Search returns chunks whose similarity to query.Vector is at least
	// query.MinScore, best match first, at most query.Limit of them.
	Search(ctx context.Context, query *core.Query) ([]*core.SearchResult, error)

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// Manifest describes the embedding configuration of the index.
	// It returns nil with no error while the index is empty.
	Manifest(ctx context.Context) (*core.Manifest, error)

	// Close releases the resources held by the store.
	Close() error
}

// Iterable is implemented by stores that can enumerate their chunks.
type Iterable interface {
	// ForEach hands the stored chunks to fn in batches of at most batchSize.
	// Iteration stops at the first error returned by fn.
	ForEach(ctx context.Context, batchSize int, fn func(batch []*core.Chunk) error) error
}

// SourceDeleter is implemented by stores that can drop every chunk of a source.
type SourceDeleter interface {
	// DeleteSource removes the chunks of source and returns how many were removed.
	DeleteSource(ctx context.Context, source string) (int, error)
}
