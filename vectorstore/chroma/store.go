package chroma

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	chromago "github.com/amikos-tech/chroma-go"
	"github.com/amikos-tech/chroma-go/types"

	"github.com/poiesic/chainlab/core"
	"github.com/poiesic/chainlab/vectorstore"
)

const (
	// DefaultURL is the address of a locally running Chroma server.
	DefaultURL = "http://localhost:8000"

	// DefaultNamespace is the collection chunks are written to.
	DefaultNamespace = "chainlab"
)

// Metadata keys reserved for chunk bookkeeping.
const (
	metaSource   = "source"
	metaIndex    = "chunk_index"
	metaInserted = "inserted_at"
)

// Collection metadata keys holding the manifest.
const (
	manifestModel     = "chainlab_model"
	manifestDimension = "chainlab_dimension"
	manifestCreated   = "chainlab_created_at"
	manifestUpdated   = "chainlab_updated_at"
)

// collection is the subset of a chroma-go collection used here.
type collection interface {
	Upsert(ctx context.Context, embeddings []*types.Embedding, metadatas []map[string]any, documents []string, ids []string) (*chromago.Collection, error)
	QueryWithOptions(ctx context.Context, options ...types.CollectionQueryOption) (*chromago.QueryResults, error)
	GetWithOptions(ctx context.Context, options ...types.CollectionQueryOption) (*chromago.GetResults, error)
	Count(ctx context.Context) (int32, error)
	Delete(ctx context.Context, ids []string, where map[string]any, whereDocuments map[string]any) ([]string, error)
	Update(ctx context.Context, newName string, newMetadata *map[string]any) (*chromago.Collection, error)
}

// Store is a vectorstore.Store backed by a Chroma collection.
//
// Vectors are stored unit length in an l2 collection, which ranks them the
// same as cosine similarity. The manifest lives in the collection metadata,
// so a reopened collection keeps its model and dimension.
type Store struct {
	coll   collection
	name   string
	logger *slog.Logger

	mu       sync.Mutex
	meta     map[string]any
	manifest *core.Manifest
	closed   bool
}

var (
	_ vectorstore.Store         = (*Store)(nil)
	_ vectorstore.Iterable      = (*Store)(nil)
	_ vectorstore.SourceDeleter = (*Store)(nil)
)

// Option configures a Store.
type Option func(*settings)

type settings struct {
	url       string
	namespace string
	logger    *slog.Logger
}

// WithURL sets the Chroma server address.
func WithURL(url string) Option {
	return func(s *settings) {
		s.url = url
	}
}

// WithNamespace sets the collection name.
func WithNamespace(namespace string) Option {
	return func(s *settings) {
		s.namespace = namespace
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// Open connects to a Chroma server and opens the collection, creating it
// on first use.
func Open(ctx context.Context, opts ...Option) (*Store, error) {
	cfg := settings{
		url:       DefaultURL,
		namespace: DefaultNamespace,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	client, err := chromago.NewClient(cfg.url)
	if err != nil {
		return nil, fmt.Errorf("connecting to chroma at %s: %w", cfg.url, err)
	}
	if _, err := client.Heartbeat(ctx); err != nil {
		return nil, fmt.Errorf("connecting to chroma at %s: %w", cfg.url, err)
	}

	// an existing collection is fetched rather than created so its
	// metadata is never replaced
	coll, err := client.GetCollection(ctx, cfg.namespace, precomputed{})
	if err != nil {
		coll, err = client.CreateCollection(ctx, cfg.namespace, nil, true, precomputed{}, types.L2)
		if err != nil {
			return nil, fmt.Errorf("creating chroma collection %s: %w", cfg.namespace, err)
		}
		cfg.logger.Info("created chroma collection", "url", cfg.url, "namespace", cfg.namespace)
	}

	cfg.logger.Debug("opened chroma collection", "url", cfg.url, "namespace", cfg.namespace, "id", coll.ID)
	return newStore(coll, coll.Name, coll.Metadata, cfg.logger), nil
}

func newStore(coll collection, name string, meta map[string]any, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		coll:     coll,
		name:     name,
		logger:   logger.With("component", "chroma"),
		meta:     meta,
		manifest: manifestFromMetadata(meta),
	}
}

// AddChunks upserts chunks by ID using their precomputed vectors, then
// records the manifest in the collection metadata.
func (s *Store) AddChunks(ctx context.Context, model string, chunks []*core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vectorstore.ErrStoreClosed
	}

	next, err := vectorstore.PrepareChunks(s.manifest, model, chunks, time.Now().UTC())
	if err != nil {
		return err
	}

	ids := make([]string, len(chunks))
	vectors := make([]*types.Embedding, len(chunks))
	metadatas := make([]map[string]any, len(chunks))
	documents := make([]string, len(chunks))
	for i, chunk := range chunks {
		ids[i] = chunkKey(chunk.Id)
		vectors[i] = types.NewEmbeddingFromFloat32(unit(chunk.Vector))
		metadatas[i] = chunkMetadata(chunk)
		documents[i] = chunk.Content
	}

	if _, err := s.coll.Upsert(ctx, vectors, metadatas, documents, ids); err != nil {
		return fmt.Errorf("upserting chunks: %w", err)
	}
	if err := s.saveManifest(ctx, next); err != nil {
		return err
	}
	s.logger.Debug("upserted chunks", "count", len(chunks))
	return nil
}

// saveManifest writes manifest into the collection metadata. Callers hold s.mu.
func (s *Store) saveManifest(ctx context.Context, manifest *core.Manifest) error {
	meta := make(map[string]any, len(s.meta)+4)
	for k, v := range s.meta {
		// the distance function is fixed at creation and may not be resent
		if strings.HasPrefix(k, "hnsw:") {
			continue
		}
		meta[k] = v
	}
	meta[manifestModel] = manifest.EmbeddingModel
	meta[manifestDimension] = manifest.Dimension
	meta[manifestCreated] = manifest.CreatedAt.Format(time.RFC3339Nano)
	meta[manifestUpdated] = manifest.UpdatedAt.Format(time.RFC3339Nano)

	if _, err := s.coll.Update(ctx, s.name, &meta); err != nil {
		return fmt.Errorf("saving manifest: %w", err)
	}
	s.meta = meta
	m := *manifest
	m.Chunks = 0
	s.manifest = &m
	return nil
}

// Search runs a nearest-neighbour query with the vector carried by query.
func (s *Store) Search(ctx context.Context, query *core.Query) ([]*core.SearchResult, error) {
	if err := core.ValidateQuery(query); err != nil {
		return nil, err
	}

	s.mu.Lock()
	closed, manifest := s.closed, s.manifest
	s.mu.Unlock()
	if closed {
		return nil, vectorstore.ErrStoreClosed
	}
	if manifest == nil {
		return nil, nil
	}
	if err := vectorstore.CheckCompatible(manifest, "", len(query.Vector)); err != nil {
		return nil, err
	}

	qr, err := s.coll.QueryWithOptions(ctx,
		types.WithQueryEmbedding(types.NewEmbeddingFromFloat32(unit(query.Vector))),
		types.WithNResults(int32(query.Limit)),
		types.WithInclude(types.IDocuments, types.IMetadatas, types.IDistances),
	)
	if err != nil {
		return nil, fmt.Errorf("querying chroma: %w", err)
	}
	if len(qr.Ids) == 0 {
		return nil, nil
	}

	results := make([]*core.SearchResult, 0, len(qr.Ids[0]))
	for i, id := range qr.Ids[0] {
		// squared l2 distance between unit vectors is 2 - 2cos
		score := 1 - qr.Distances[0][i]/2
		if score < query.MinScore {
			continue
		}
		chunk := toChunk(id, qr.Documents[0][i], qr.Metadatas[0][i])
		results = append(results, &core.SearchResult{Chunk: chunk, Score: score})
	}
	return vectorstore.SortResults(results, query.Limit), nil
}

// Count returns the number of chunks in the collection.
func (s *Store) Count(ctx context.Context) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	n, err := s.coll.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return int(n), nil
}

// Manifest returns the manifest stored with the collection, or nil while
// nothing has been written to it.
func (s *Store) Manifest(ctx context.Context) (*core.Manifest, error) {
	s.mu.Lock()
	closed, manifest := s.closed, s.manifest
	s.mu.Unlock()
	if closed {
		return nil, vectorstore.ErrStoreClosed
	}
	if manifest == nil {
		return nil, nil
	}

	n, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	m := *manifest
	m.Chunks = n
	return &m, nil
}

// ForEach pages through the collection in insertion order.
func (s *Store) ForEach(ctx context.Context, batchSize int, fn func(batch []*core.Chunk) error) error {
	if batchSize <= 0 {
		batchSize = 100
	}
	for offset := 0; ; offset += batchSize {
		if err := s.checkOpen(); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := s.coll.GetWithOptions(ctx,
			types.WithLimit(int32(batchSize)),
			types.WithOffset(int32(offset)),
			types.WithInclude(types.IDocuments, types.IMetadatas, types.IEmbeddings),
		)
		if err != nil {
			return fmt.Errorf("reading chunks at offset %d: %w", offset, err)
		}
		if len(page.Ids) == 0 {
			return nil
		}

		batch := make([]*core.Chunk, len(page.Ids))
		for i, id := range page.Ids {
			batch[i] = toChunk(id, page.Documents[i], page.Metadatas[i])
			if i < len(page.Embeddings) && page.Embeddings[i] != nil {
				if v := page.Embeddings[i].GetFloat32(); v != nil {
					batch[i].Vector = *v
				}
			}
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(page.Ids) < batchSize {
			return nil
		}
	}
}

// DeleteSource removes every chunk of source.
func (s *Store) DeleteSource(ctx context.Context, source string) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	found, err := s.coll.GetWithOptions(ctx,
		types.WithWhereMap(map[string]any{metaSource: source}),
		types.WithInclude(types.IMetadatas),
	)
	if err != nil {
		return 0, fmt.Errorf("finding chunks of %s: %w", source, err)
	}
	if len(found.Ids) == 0 {
		return 0, nil
	}
	if _, err := s.coll.Delete(ctx, found.Ids, nil, nil); err != nil {
		return 0, fmt.Errorf("deleting chunks of %s: %w", source, err)
	}
	s.logger.Debug("deleted source", "source", source, "chunks", len(found.Ids))
	return len(found.Ids), nil
}

// Close marks the store closed. The HTTP client holds no resources.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vectorstore.ErrStoreClosed
	}
	return nil
}

func chunkKey(id core.ID) string {
	return strconv.FormatUint(uint64(id), 10)
}

func chunkMetadata(chunk *core.Chunk) map[string]any {
	meta := make(map[string]any, len(chunk.Metadata)+3)
	for k, v := range chunk.Metadata {
		meta[k] = v
	}
	meta[metaSource] = chunk.Source
	meta[metaIndex] = chunk.Index
	if !chunk.InsertedAt.IsZero() {
		meta[metaInserted] = chunk.InsertedAt.Format(time.RFC3339Nano)
	}
	return meta
}

func toChunk(id, content string, meta map[string]any) *core.Chunk {
	chunk := &core.Chunk{Content: content}
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		chunk.Id = core.ID(n)
	}
	for k, v := range meta {
		switch k {
		case metaSource:
			chunk.Source, _ = v.(string)
		case metaIndex:
			chunk.Index = toInt(v)
		case metaInserted:
			if s, ok := v.(string); ok {
				chunk.InsertedAt, _ = time.Parse(time.RFC3339Nano, s)
			}
		default:
			if chunk.Metadata == nil {
				chunk.Metadata = make(map[string]string)
			}
			chunk.Metadata[k] = fmt.Sprint(v)
		}
	}
	if chunk.Id == 0 {
		chunk.Id = core.ChunkID(chunk.Source, chunk.Content)
	}
	return chunk
}

// manifestFromMetadata reads the manifest saved by AddChunks. It returns nil
// for a collection nothing has been written to.
func manifestFromMetadata(meta map[string]any) *core.Manifest {
	dim := toInt(meta[manifestDimension])
	if dim == 0 {
		return nil
	}
	m := &core.Manifest{Dimension: dim}
	m.EmbeddingModel, _ = meta[manifestModel].(string)
	if s, ok := meta[manifestCreated].(string); ok {
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, s)
	}
	if s, ok := meta[manifestUpdated].(string); ok {
		m.UpdatedAt, _ = time.Parse(time.RFC3339Nano, s)
	}
	return m
}

// unit returns v scaled to length 1. A zero vector is returned unchanged.
func unit(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Chroma hands numbers back as whatever its JSON decoder produced.
func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float32:
		return int(n)
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}
