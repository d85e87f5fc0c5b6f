package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/chainlab/ai"
	"github.com/poiesic/chainlab/core"
	"github.com/poiesic/chainlab/vectorstore"
)

// DefaultK is the number of results returned when FindSimilar is called
// with k <= 0.
const DefaultK = 4

// Searcher provides similarity search over a vector store.
type Searcher struct {
	store        vectorstore.Store
	embedder     ai.Embedder
	model        string
	keywordBoost float32
	logger       *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithModel sets the embedding model name checked against the index manifest.
// An empty name skips the model check.
func WithModel(model string) Option {
	return func(s *Searcher) error {
		s.model = model
		return nil
	}
}

// WithKeywordBoost adds boost to the score of chunks containing every
// significant query word. Default is 0 (disabled).
func WithKeywordBoost(boost float32) Option {
	return func(s *Searcher) error {
		if boost < 0 {
			return fmt.Errorf("keyword boost must not be negative, got %v", boost)
		}
		s.keywordBoost = boost
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(store vectorstore.Store, embedder ai.Embedder, opts ...Option) (*Searcher, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		store:    store,
		embedder: embedder,
		logger:   slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// FindSimilar returns up to k chunks scoring at least minScore against
// query, best first.
func (s *Searcher) FindSimilar(ctx context.Context, query string, k int, minScore float32) ([]*core.SearchResult, error) {
	return s.FindSimilarWithMonitor(ctx, query, k, minScore, nil)
}

// FindSimilarWithMonitor is FindSimilar with monitoring.
// The monitor receives callbacks at each stage of the search process.
func (s *Searcher) FindSimilarWithMonitor(ctx context.Context, query string, k int, minScore float32, monitor SearchMonitor) ([]*core.SearchResult, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		k = DefaultK
	}

	monitor.Start(query)

	manifest, err := s.store.Manifest(ctx)
	if err != nil {
		s.logger.Error("error reading index manifest", "err", err)
		return nil, err
	}
	if manifest == nil {
		s.logger.Debug("index is empty", "query", query)
		monitor.Finish(nil)
		return []*core.SearchResult{}, nil
	}

	embedding, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}
	monitor.AfterEmbedding(embedding)

	if err := vectorstore.CheckCompatible(manifest, s.model, len(embedding)); err != nil {
		return nil, err
	}

	// With a keyword boost, chunks below the cut may still be lifted into
	// the top k, so fetch a wider candidate set.
	limit := k
	if s.keywordBoost > 0 {
		limit = k * 3
	}

	results, err := s.store.Search(ctx, &core.Query{
		Text:     query,
		Vector:   embedding,
		Limit:    limit,
		MinScore: minScore,
	})
	if err != nil {
		s.logger.Error("error querying for similar chunks", "err", err)
		return nil, err
	}
	monitor.AfterVectorSearch(results)

	if s.keywordBoost > 0 {
		for _, result := range results {
			if matchesKeywords(result.Chunk, query) {
				result.Score += s.keywordBoost
				monitor.KeywordHit(result.Chunk)
			}
		}
	}
	results = vectorstore.SortResults(results, k)

	s.logger.Debug("search complete", "query", query, "results", len(results))
	monitor.Finish(results)

	return results, nil
}
