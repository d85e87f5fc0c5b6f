package vectorstore

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/poiesic/chainlab/core"
)

// Store kinds understood by chainlab.OpenStore.
const (
	KindBadger   = "badger"
	KindChroma   = "chroma"
	KindPgvector = "pgvector"
)

// DefaultLocation is the directory of the local badger index.
const DefaultLocation = "faiss_index"

// ParseKind normalizes a store kind name.
func ParseKind(name string) (string, error) {
	switch kind := strings.ToLower(strings.TrimSpace(name)); kind {
	case "", KindBadger:
		return KindBadger, nil
	case KindChroma, KindPgvector:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, name)
	}
}

// CheckCompatible verifies that vectors of dimension dim embedded with model
// may join the index described by manifest. A nil manifest accepts anything.
// An empty model skips the model check.
func CheckCompatible(manifest *core.Manifest, model string, dim int) error {
	if manifest == nil || manifest.Dimension == 0 {
		return nil
	}
	if manifest.Dimension != dim {
		return &DimensionError{Want: manifest.Dimension, Got: dim}
	}
	if model != "" && manifest.EmbeddingModel != "" && manifest.EmbeddingModel != model {
		return fmt.Errorf("%w: index built with %q, got %q", ErrModelMismatch, manifest.EmbeddingModel, model)
	}
	return nil
}

// PrepareChunks validates a batch before it is written and returns the
// manifest the index will carry afterwards, without its chunk count.
// Missing IDs and insertion times are filled in place.
func PrepareChunks(manifest *core.Manifest, model string, chunks []*core.Chunk, now time.Time) (*core.Manifest, error) {
	if len(chunks) == 0 {
		return manifest, nil
	}

	dim := 0
	for i, chunk := range chunks {
		if err := core.ValidateChunk(chunk); err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		if dim == 0 {
			dim = len(chunk.Vector)
		} else if len(chunk.Vector) != dim {
			return nil, fmt.Errorf("chunk %d: %w", i, &DimensionError{Want: dim, Got: len(chunk.Vector)})
		}
		if chunk.Id == 0 {
			chunk.Id = core.ChunkID(chunk.Source, chunk.Content)
		}
		if chunk.InsertedAt.IsZero() {
			chunk.InsertedAt = now
		}
	}

	if err := CheckCompatible(manifest, model, dim); err != nil {
		return nil, err
	}

	next := core.Manifest{
		EmbeddingModel: model,
		Dimension:      dim,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if manifest != nil {
		next.Chunks = manifest.Chunks
		if !manifest.CreatedAt.IsZero() {
			next.CreatedAt = manifest.CreatedAt
		}
		if manifest.EmbeddingModel != "" {
			next.EmbeddingModel = manifest.EmbeddingModel
		}
	}
	return &next, nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is zero
// or their lengths differ.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// SortResults orders results by score, highest first, and truncates to limit.
// Ties are broken by chunk ID so results are stable across runs.
func SortResults(results []*core.SearchResult, limit int) []*core.SearchResult {
	slices.SortFunc(results, func(a, b *core.SearchResult) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		if a.Chunk != nil && b.Chunk != nil {
			switch {
			case a.Chunk.Id < b.Chunk.Id:
				return -1
			case a.Chunk.Id > b.Chunk.Id:
				return 1
			}
		}
		return 0
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
