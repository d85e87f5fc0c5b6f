package badger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/chainlab/core"
	"github.com/poiesic/chainlab/vectorstore"
)

// Store is a vectorstore.Store persisted in a local BadgerDB directory.
type Store struct {
	backend *Backend
	logger  *slog.Logger
	now     func() time.Time

	// serializes writers so the manifest read-modify-write never conflicts
	writeMu sync.Mutex
}

var (
	_ vectorstore.Store         = (*Store)(nil)
	_ vectorstore.Iterable      = (*Store)(nil)
	_ vectorstore.SourceDeleter = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used by the store and by badger itself.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock overrides the time source used for insertion timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open opens or creates the index directory at path.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		path = vectorstore.DefaultLocation
	}
	return open(path, false, opts...)
}

// OpenMemory creates an index that lives only in memory. Used by tests.
func OpenMemory(opts ...Option) (*Store, error) {
	return open("", true, opts...)
}

func open(path string, inMemory bool, opts ...Option) (*Store, error) {
	s := &Store{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	backend, err := OpenBackend(path, inMemory, s.logger)
	if err != nil {
		return nil, err
	}
	s.backend = backend
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.backend.IsClosed() {
		return nil
	}
	return s.backend.Close()
}

// AddChunks upserts chunks and updates the manifest in one transaction.
func (s *Store) AddChunks(ctx context.Context, model string, chunks []*core.Chunk) error {
	if s.backend.IsClosed() {
		return vectorstore.ErrStoreClosed
	}
	if len(chunks) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.backend.WithTx(func(tx *badger.Txn) error {
		current, err := readManifest(tx)
		if err != nil {
			return err
		}
		next, err := vectorstore.PrepareChunks(current, model, chunks, s.now().UTC())
		if err != nil {
			return err
		}

		added := 0
		seen := make(map[core.ID]bool, len(chunks))
		for _, chunk := range chunks {
			key := makeChunkKey(chunk.Id)
			if !seen[chunk.Id] {
				_, err := tx.Get(key)
				switch {
				case errors.Is(err, badger.ErrKeyNotFound):
					added++
				case err != nil:
					return err
				}
				seen[chunk.Id] = true
			}
			if err := tx.Set(key, vectorstore.MarshalChunk(chunk)); err != nil {
				return err
			}
			if err := tx.Set(makeSourceKey(chunk.Source, chunk.Id), nil); err != nil {
				return err
			}
		}

		next.Chunks += added
		s.logger.Debug("writing chunks", "count", len(chunks), "new", added, "total", next.Chunks)
		return tx.Set([]byte(manifestKey), vectorstore.MarshalManifest(next))
	}, true)
}

// Search scans every chunk and ranks them by cosine similarity.
func (s *Store) Search(ctx context.Context, query *core.Query) ([]*core.SearchResult, error) {
	if s.backend.IsClosed() {
		return nil, vectorstore.ErrStoreClosed
	}
	if err := core.ValidateQuery(query); err != nil {
		return nil, err
	}

	var results []*core.SearchResult
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		manifest, err := readManifest(tx)
		if err != nil {
			return err
		}
		if manifest == nil {
			return nil
		}
		if err := vectorstore.CheckCompatible(manifest, "", len(query.Vector)); err != nil {
			return err
		}

		return iterateChunks(ctx, tx, func(chunk *core.Chunk) error {
			score := vectorstore.Cosine(query.Vector, chunk.Vector)
			if score >= query.MinScore {
				results = append(results, &core.SearchResult{Chunk: chunk, Score: score})
			}
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}

	return vectorstore.SortResults(results, query.Limit), nil
}

// Count returns the chunk count recorded in the manifest.
func (s *Store) Count(ctx context.Context) (int, error) {
	manifest, err := s.Manifest(ctx)
	if err != nil || manifest == nil {
		return 0, err
	}
	return manifest.Chunks, nil
}

// Manifest returns the stored manifest, or nil for an empty index.
func (s *Store) Manifest(ctx context.Context) (*core.Manifest, error) {
	if s.backend.IsClosed() {
		return nil, vectorstore.ErrStoreClosed
	}
	var manifest *core.Manifest
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		manifest, err = readManifest(tx)
		return err
	}, false)
	return manifest, err
}

// ForEach hands every stored chunk to fn in batches.
func (s *Store) ForEach(ctx context.Context, batchSize int, fn func(batch []*core.Chunk) error) error {
	if s.backend.IsClosed() {
		return vectorstore.ErrStoreClosed
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	return s.backend.WithTx(func(tx *badger.Txn) error {
		batch := make([]*core.Chunk, 0, batchSize)
		err := iterateChunks(ctx, tx, func(chunk *core.Chunk) error {
			batch = append(batch, chunk)
			if len(batch) < batchSize {
				return nil
			}
			err := fn(batch)
			batch = make([]*core.Chunk, 0, batchSize)
			return err
		})
		if err != nil {
			return err
		}
		if len(batch) > 0 {
			return fn(batch)
		}
		return nil
	}, false)
}

// DeleteSource removes every chunk whose Source equals source.
func (s *Store) DeleteSource(ctx context.Context, source string) (int, error) {
	if s.backend.IsClosed() {
		return 0, vectorstore.ErrStoreClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	removed := 0
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = makePartialSourceKey(source)
		iter := tx.NewIterator(opts)

		var keys [][]byte
		for iter.Rewind(); iter.Valid(); iter.Next() {
			keys = append(keys, iter.Item().KeyCopy(nil))
		}
		iter.Close()

		for _, key := range keys {
			id, ok := idFromSourceKey(key)
			if !ok {
				continue
			}
			if err := tx.Delete(makeChunkKey(id)); err != nil {
				return err
			}
			if err := tx.Delete(key); err != nil {
				return err
			}
			removed++
		}
		if removed == 0 {
			return nil
		}

		manifest, err := readManifest(tx)
		if err != nil || manifest == nil {
			return err
		}
		manifest.Chunks = max(manifest.Chunks-removed, 0)
		manifest.UpdatedAt = s.now().UTC()
		return tx.Set([]byte(manifestKey), vectorstore.MarshalManifest(manifest))
	}, true)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Debug("deleted chunks", "source", source, "count", removed)
	}
	return removed, nil
}

func readManifest(tx *badger.Txn) (*core.Manifest, error) {
	item, err := tx.Get([]byte(manifestKey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var manifest *core.Manifest
	err = item.Value(func(val []byte) error {
		manifest, err = vectorstore.UnmarshalManifest(val)
		return err
	})
	return manifest, err
}

func iterateChunks(ctx context.Context, tx *badger.Txn, fn func(*core.Chunk) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(chunkPrefix)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}

		var chunk *core.Chunk
		err := iter.Item().Value(func(val []byte) error {
			var err error
			chunk, err = vectorstore.UnmarshalChunk(val)
			return err
		})
		if err != nil {
			return err
		}
		if len(chunk.Vector) == 0 {
			continue
		}
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return nil
}
