package chroma

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"testing"

	chromago "github.com/amikos-tech/chroma-go"
	"github.com/amikos-tech/chroma-go/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/chainlab/ai/mock"
	"github.com/poiesic/chainlab/core"
	"github.com/poiesic/chainlab/search"
	"github.com/poiesic/chainlab/vectorstore"
)

type fakeRow struct {
	vector   []float32
	document string
	metadata map[string]any
}

// fakeCollection behaves like a Chroma collection in l2 space: upserts
// replace rows by ID and queries rank by squared euclidean distance.
type fakeCollection struct {
	mu       sync.Mutex
	order    []string
	rows     map[string]fakeRow
	metadata map[string]any
	upserts  int
}

func newFakeCollection() *fakeCollection {
	return &fakeCollection{
		rows:     make(map[string]fakeRow),
		metadata: map[string]any{types.HNSWSpace: "l2", "embedding_function": "precomputed"},
	}
}

func (f *fakeCollection) Upsert(_ context.Context, embeddings []*types.Embedding, metadatas []map[string]any, documents []string, ids []string) (*chromago.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	for i, id := range ids {
		if _, ok := f.rows[id]; !ok {
			f.order = append(f.order, id)
		}
		f.rows[id] = fakeRow{vector: *embeddings[i].GetFloat32(), document: documents[i], metadata: metadatas[i]}
	}
	return nil, nil
}

func (f *fakeCollection) QueryWithOptions(_ context.Context, options ...types.CollectionQueryOption) (*chromago.QueryResults, error) {
	b := &types.CollectionQueryBuilder{}
	for _, opt := range options {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	query := *b.QueryEmbeddings[0].GetFloat32()

	f.mu.Lock()
	defer f.mu.Unlock()
	ids := slices.Clone(f.order)
	dist := func(id string) float32 {
		var d float32
		for i, x := range f.rows[id].vector {
			diff := x - query[i]
			d += diff * diff
		}
		return d
	}
	slices.SortFunc(ids, func(a, b string) int { return cmp.Compare(dist(a), dist(b)) })
	if len(ids) > int(b.NResults) {
		ids = ids[:b.NResults]
	}

	qr := &chromago.QueryResults{Ids: [][]string{ids}, Documents: [][]string{{}}, Metadatas: [][]map[string]any{{}}, Distances: [][]float32{{}}}
	for _, id := range ids {
		qr.Documents[0] = append(qr.Documents[0], f.rows[id].document)
		qr.Metadatas[0] = append(qr.Metadatas[0], f.rows[id].metadata)
		qr.Distances[0] = append(qr.Distances[0], dist(id))
	}
	return qr, nil
}

func (f *fakeCollection) GetWithOptions(_ context.Context, options ...types.CollectionQueryOption) (*chromago.GetResults, error) {
	b := &types.CollectionQueryBuilder{}
	for _, opt := range options {
		if err := opt(b); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, id := range f.order {
		if source, ok := b.Where[metaSource]; ok && f.rows[id].metadata[metaSource] != source {
			continue
		}
		ids = append(ids, id)
	}
	if int(b.Offset) >= len(ids) {
		ids = nil
	} else {
		ids = ids[b.Offset:]
	}
	if b.Limit > 0 && len(ids) > int(b.Limit) {
		ids = ids[:b.Limit]
	}

	out := &chromago.GetResults{Ids: ids}
	for _, id := range ids {
		row := f.rows[id]
		out.Documents = append(out.Documents, row.document)
		out.Metadatas = append(out.Metadatas, row.metadata)
		out.Embeddings = append(out.Embeddings, types.NewEmbeddingFromFloat32(row.vector))
	}
	return out, nil
}

func (f *fakeCollection) Count(context.Context) (int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int32(len(f.rows)), nil
}

func (f *fakeCollection) Delete(_ context.Context, ids []string, _ map[string]any, _ map[string]any) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.rows, id)
		f.order = slices.DeleteFunc(f.order, func(o string) bool { return o == id })
	}
	return ids, nil
}

func (f *fakeCollection) Update(_ context.Context, _ string, newMetadata *map[string]any) (*chromago.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := (*newMetadata)[types.HNSWSpace]; ok {
		return nil, assert.AnError
	}
	f.metadata = maps.Clone(*newMetadata)
	return nil, nil
}

// reopen returns a store over coll the way Open would see it.
func reopen(t *testing.T, coll *fakeCollection) *Store {
	t.Helper()
	coll.mu.Lock()
	meta := maps.Clone(coll.metadata)
	coll.mu.Unlock()
	store := newStore(coll, DefaultNamespace, meta, nil)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestStore(t *testing.T) (*Store, *fakeCollection) {
	t.Helper()
	coll := newFakeCollection()
	return reopen(t, coll), coll
}

func TestAddChunksAndSearch(t *testing.T) {
	ctx := context.Background()
	store, coll := newTestStore(t)

	chunks := []*core.Chunk{
		{Source: "a.md", Index: 0, Content: "north", Vector: []float32{1, 0, 0}, Metadata: map[string]string{"lang": "en"}},
		{Source: "a.md", Index: 1, Content: "east", Vector: []float32{0, 1, 0}},
		{Source: "b.md", Index: 0, Content: "up", Vector: []float32{0, 0, 1}},
	}
	require.NoError(t, store.AddChunks(ctx, "all-minilm", chunks))
	assert.Len(t, coll.rows, 3)

	results, err := store.Search(ctx, &core.Query{Text: "which way is north", Vector: []float32{0.9, 0.1, 0}, Limit: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)

	top := results[0].Chunk
	assert.Equal(t, "north", top.Content)
	assert.Equal(t, "a.md", top.Source)
	assert.Equal(t, core.ChunkID("a.md", "north"), top.Id)
	assert.Equal(t, map[string]string{"lang": "en"}, top.Metadata)
	assert.False(t, top.InsertedAt.IsZero())
	assert.InDelta(t, vectorstore.Cosine([]float32{0.9, 0.1, 0}, []float32{1, 0, 0}), results[0].Score, 1e-5)
	assert.Equal(t, "east", results[1].Chunk.Content)
	assert.Equal(t, 1, results[1].Chunk.Index)
}

func TestSearch_MinScore(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	require.NoError(t, store.AddChunks(ctx, "m", []*core.Chunk{
		{Source: "a", Content: "x", Vector: []float32{2, 0}},
		{Source: "a", Content: "y", Vector: []float32{0, 1}},
	}))

	results, err := store.Search(ctx, &core.Query{Vector: []float32{1, 0}, Limit: 2, MinScore: 0.5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "x", results[0].Chunk.Content)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestSearch_EmptyCollection(t *testing.T) {
	store, _ := newTestStore(t)
	results, err := store.Search(context.Background(), &core.Query{Vector: []float32{1, 0}, Limit: 3})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAddChunks_UpsertsByID(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	chunk := func() *core.Chunk {
		return &core.Chunk{Source: "a.md", Content: "same text", Vector: []float32{1, 0}}
	}
	require.NoError(t, store.AddChunks(ctx, "m", []*core.Chunk{chunk()}))
	require.NoError(t, store.AddChunks(ctx, "m", []*core.Chunk{chunk()}))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	manifest, err := store.Manifest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, manifest.Chunks)
}

func TestManifestTracking(t *testing.T) {
	ctx := context.Background()
	store, coll := newTestStore(t)

	manifest, err := store.Manifest(ctx)
	require.NoError(t, err)
	assert.Nil(t, manifest)

	require.NoError(t, store.AddChunks(ctx, "m", []*core.Chunk{{Content: "x", Vector: []float32{1, 0}}}))
	require.NoError(t, store.AddChunks(ctx, "m", []*core.Chunk{{Content: "y", Vector: []float32{0, 1}}}))

	manifest, err = store.Manifest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "m", manifest.EmbeddingModel)
	assert.Equal(t, 2, manifest.Dimension)
	assert.Equal(t, 2, manifest.Chunks)
	assert.Equal(t, "precomputed", coll.metadata["embedding_function"])
	assert.NotContains(t, coll.metadata, types.HNSWSpace)

	err = store.AddChunks(ctx, "m", []*core.Chunk{{Content: "z", Vector: []float32{0, 1, 0}}})
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)

	err = store.AddChunks(ctx, "other", []*core.Chunk{{Content: "z", Vector: []float32{0, 1}}})
	assert.ErrorIs(t, err, vectorstore.ErrModelMismatch)

	_, err = store.Search(ctx, &core.Query{Vector: []float32{1, 0, 0}, Limit: 1})
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	store, coll := newTestStore(t)
	require.NoError(t, store.AddChunks(ctx, "mock-embed", []*core.Chunk{
		{Source: "a.md", Content: "alpha", Vector: mock.Vector("alpha", 8)},
		{Source: "b.md", Content: "beta", Vector: mock.Vector("beta", 8)},
	}))
	first, err := store.Manifest(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened := reopen(t, coll)
	manifest, err := reopened.Manifest(ctx)
	require.NoError(t, err)
	require.NotNil(t, manifest)
	assert.Equal(t, "mock-embed", manifest.EmbeddingModel)
	assert.Equal(t, 8, manifest.Dimension)
	assert.Equal(t, 2, manifest.Chunks)
	assert.True(t, first.CreatedAt.Equal(manifest.CreatedAt))

	embedder := mock.NewMockEmbedder().WithDimension(8)
	searcher, err := search.NewSearcher(reopened, embedder, search.WithModel("mock-embed"))
	require.NoError(t, err)
	hits, err := searcher.FindSimilar(ctx, "alpha", 1, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a.md", hits[0].Chunk.Source)
	assert.Equal(t, 1, embedder.CallCount())

	err = reopened.AddChunks(ctx, "mock-embed", []*core.Chunk{{Content: "short", Vector: []float32{1, 0}}})
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
}

func TestForEach(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	var chunks []*core.Chunk
	for _, text := range []string{"one", "two", "three", "four", "five"} {
		chunks = append(chunks, &core.Chunk{Source: "n.txt", Content: text, Vector: []float32{1, float32(len(text))}})
	}
	require.NoError(t, store.AddChunks(ctx, "m", chunks))

	var sizes []int
	var seen []string
	err := store.ForEach(ctx, 2, func(batch []*core.Chunk) error {
		sizes = append(sizes, len(batch))
		for _, c := range batch {
			seen = append(seen, c.Content)
			assert.Len(t, c.Vector, 2)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Equal(t, []string{"one", "two", "three", "four", "five"}, seen)

	err = store.ForEach(ctx, 2, func([]*core.Chunk) error { return assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)
}

func TestDeleteSource(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	require.NoError(t, store.AddChunks(ctx, "m", []*core.Chunk{
		{Source: "a.md", Content: "x", Vector: []float32{1, 0}},
		{Source: "a.md", Content: "y", Vector: []float32{0, 1}},
		{Source: "b.md", Content: "z", Vector: []float32{1, 1}},
	}))

	n, err := store.DeleteSource(ctx, "a.md")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.DeleteSource(ctx, "a.md")
	require.NoError(t, err)
	assert.Zero(t, n)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestClosed(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.Close())

	ctx := context.Background()
	err := store.AddChunks(ctx, "m", []*core.Chunk{{Content: "x", Vector: []float32{1}}})
	assert.ErrorIs(t, err, vectorstore.ErrStoreClosed)
	_, err = store.Search(ctx, &core.Query{Vector: []float32{1}, Limit: 1})
	assert.ErrorIs(t, err, vectorstore.ErrStoreClosed)
	_, err = store.Count(ctx)
	assert.ErrorIs(t, err, vectorstore.ErrStoreClosed)
	_, err = store.Manifest(ctx)
	assert.ErrorIs(t, err, vectorstore.ErrStoreClosed)
}

func TestPrecomputed(t *testing.T) {
	ctx := context.Background()
	out, err := precomputed{}.EmbedDocuments(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = precomputed{}.EmbedDocuments(ctx, []string{"text"})
	assert.ErrorIs(t, err, errTextEmbedding)
	_, err = precomputed{}.EmbedQuery(ctx, "text")
	assert.ErrorIs(t, err, errTextEmbedding)
}

func TestChunkConversion(t *testing.T) {
	chunk := &core.Chunk{Id: 7, Source: "s.txt", Index: 3, Content: "c", Metadata: map[string]string{"k": "v"}}
	meta := chunkMetadata(chunk)
	meta[metaIndex] = float32(3)

	back := toChunk(chunkKey(chunk.Id), chunk.Content, meta)
	assert.Equal(t, core.ID(7), back.Id)
	assert.Equal(t, "s.txt", back.Source)
	assert.Equal(t, 3, back.Index)
	assert.Equal(t, map[string]string{"k": "v"}, back.Metadata)
	assert.Nil(t, manifestFromMetadata(map[string]any{types.HNSWSpace: "l2"}))
}
