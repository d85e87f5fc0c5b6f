// Package cache memoizes embedding vectors so repeated texts are embedded
// only once, across runs when backed by Valkey.
package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"

	"github.com/go-crypt/x/blake2b"
	"github.com/poiesic/chainlab/ai"
	"github.com/poiesic/chainlab/core"
)

// Store is a byte-oriented key/value store for cached vectors.
type Store interface {
	// Get returns the cached value and true, or false when key is absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// CachedEmbedder wraps an ai.Embedder and serves repeated texts from a Store.
// Cache failures are logged and fall through to the wrapped embedder.
type CachedEmbedder struct {
	inner  ai.Embedder
	store  Store
	model  string
	logger *slog.Logger
}

// NewCachedEmbedder creates a CachedEmbedder. model is part of every key
// so vectors from different models never collide.
func NewCachedEmbedder(inner ai.Embedder, store Store, model string) *CachedEmbedder {
	return &CachedEmbedder{
		inner:  inner,
		store:  store,
		model:  model,
		logger: slog.Default().With("component", "embedding-cache", "model", model),
	}
}

// Key returns the cache key for text under model.
func Key(model, text string) string {
	h, _ := blake2b.New(16, nil)
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return "emb:" + hex.EncodeToString(h.Sum(nil))
}

// EmbedText returns the cached vector for text, embedding it on a miss.
func (c *CachedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts embeds only the texts missing from the cache, in one call to
// the wrapped embedder, and stores the new vectors.
func (c *CachedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		missing    []string
		missingIdx []int
	)
	for i, text := range texts {
		if vec, ok := c.lookup(ctx, text); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	c.logger.Debug("embedding cache lookup", "hits", len(texts)-len(missing), "misses", len(missing))
	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := c.inner.EmbedTexts(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		return nil, errors.New("embedder returned a different number of vectors than texts")
	}

	for j, vec := range vectors {
		out[missingIdx[j]] = vec
		c.save(ctx, missing[j], vec)
	}
	return out, nil
}

func (c *CachedEmbedder) lookup(ctx context.Context, text string) ([]float32, bool) {
	data, ok, err := c.store.Get(ctx, Key(c.model, text))
	if err != nil {
		c.logger.Warn("cache read failed", "err", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	vec, _, err := core.VectorMUS.Unmarshal(data)
	if err != nil || len(vec) == 0 {
		c.logger.Warn("discarding corrupt cache entry", "err", err)
		return nil, false
	}
	return vec, true
}

func (c *CachedEmbedder) save(ctx context.Context, text string, vec []float32) {
	data := make([]byte, core.VectorMUS.Size(vec))
	core.VectorMUS.Marshal(vec, data)
	if err := c.store.Set(ctx, Key(c.model, text), data); err != nil {
		c.logger.Warn("cache write failed", "err", err)
	}
}

var _ ai.Embedder = (*CachedEmbedder)(nil)
