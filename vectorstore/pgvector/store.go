package pgvector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/poiesic/chainlab/core"
	"github.com/poiesic/chainlab/vectorstore"
)

// DefaultTable is the table chunks are stored in.
const DefaultTable = "chainlab_chunks"

// ErrInvalidTable indicates a table name that is not a plain SQL identifier.
var ErrInvalidTable = errors.New("invalid table name")

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,50}$`)

// Store is a vectorstore.Store kept in a Postgres table with a pgvector column.
// A companion table named <table>_manifest holds the single manifest row.
type Store struct {
	pool   *pgxpool.Pool
	table  string
	logger *slog.Logger
	now    func() time.Time
}

var (
	_ vectorstore.Store         = (*Store)(nil)
	_ vectorstore.Iterable      = (*Store)(nil)
	_ vectorstore.SourceDeleter = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithTable sets the chunk table name.
func WithTable(table string) Option {
	return func(s *Store) {
		s.table = table
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open connects to the database at dsn and creates the tables if needed.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	s, err := New(ctx, pool, opts...)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing pool. Close closes the pool.
func New(ctx context.Context, pool *pgxpool.Pool, opts ...Option) (*Store, error) {
	s := &Store{
		pool:   pool,
		table:  DefaultTable,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if !identifier.MatchString(s.table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, s.table)
	}

	for _, stmt := range schema(s.table) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}
	s.logger.Debug("opened pgvector store", "table", s.table)
	return s, nil
}

func schema(table string) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			source TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			metadata JSONB,
			embedding vector NOT NULL,
			inserted_at TIMESTAMPTZ NOT NULL
		)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_source_idx ON %s (source)`, table, table),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s_manifest (
			id INTEGER PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			embedding_model TEXT NOT NULL,
			dimension INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`, table),
	}
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// AddChunks upserts chunks inside one transaction that also locks the manifest row.
func (s *Store) AddChunks(ctx context.Context, model string, chunks []*core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// serializes writers on the manifest
	if _, err := tx.Exec(ctx, fmt.Sprintf(`LOCK TABLE %s_manifest IN SHARE ROW EXCLUSIVE MODE`, s.table)); err != nil {
		return err
	}

	current, err := s.readManifest(ctx, tx, false)
	if err != nil {
		return err
	}
	next, err := vectorstore.PrepareChunks(current, model, chunks, s.now().UTC())
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	upsert := fmt.Sprintf(`
		INSERT INTO %s (id, source, chunk_index, content, metadata, embedding, inserted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			source = EXCLUDED.source,
			chunk_index = EXCLUDED.chunk_index,
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding
	`, s.table)
	for _, chunk := range chunks {
		meta, err := marshalMetadata(chunk.Metadata)
		if err != nil {
			return err
		}
		batch.Queue(upsert, int64(chunk.Id), chunk.Source, chunk.Index, chunk.Content, meta,
			pgv.NewVector(chunk.Vector), chunk.InsertedAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s_manifest (id, embedding_model, dimension, created_at, updated_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET updated_at = EXCLUDED.updated_at
	`, s.table), next.EmbeddingModel, next.Dimension, next.CreatedAt, next.UpdatedAt)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Search ranks chunks by cosine distance using the <=> operator.
func (s *Store) Search(ctx context.Context, query *core.Query) ([]*core.SearchResult, error) {
	if err := core.ValidateQuery(query); err != nil {
		return nil, err
	}

	manifest, err := s.Manifest(ctx)
	if err != nil {
		return nil, err
	}
	if manifest == nil {
		return nil, nil
	}
	if err := vectorstore.CheckCompatible(manifest, "", len(query.Vector)); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, source, chunk_index, content, metadata, inserted_at,
			1 - (embedding <=> $1) AS score
		FROM %s
		WHERE 1 - (embedding <=> $1) >= $2
		ORDER BY embedding <=> $1 ASC, id ASC
		LIMIT $3
	`, s.table), pgv.NewVector(query.Vector), query.MinScore, query.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*core.SearchResult
	for rows.Next() {
		var (
			id      int64
			chunk   core.Chunk
			metaRaw []byte
			score   float64
		)
		if err := rows.Scan(&id, &chunk.Source, &chunk.Index, &chunk.Content, &metaRaw, &chunk.InsertedAt, &score); err != nil {
			return nil, err
		}
		chunk.Id = core.ID(id)
		chunk.InsertedAt = chunk.InsertedAt.UTC()
		if chunk.Metadata, err = unmarshalMetadata(metaRaw); err != nil {
			return nil, err
		}
		results = append(results, &core.SearchResult{Chunk: &chunk, Score: float32(score)})
	}
	return results, rows.Err()
}

// Count returns the number of rows in the chunk table.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.table)).Scan(&count)
	return count, err
}

// Manifest returns the manifest row with a live chunk count, or nil when
// nothing has been indexed yet.
func (s *Store) Manifest(ctx context.Context) (*core.Manifest, error) {
	return s.readManifest(ctx, s.pool, true)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) readManifest(ctx context.Context, q querier, withCount bool) (*core.Manifest, error) {
	var m core.Manifest
	err := q.QueryRow(ctx, fmt.Sprintf(`
		SELECT embedding_model, dimension, created_at, updated_at
		FROM %s_manifest WHERE id = 1
	`, s.table)).Scan(&m.EmbeddingModel, &m.Dimension, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()

	if withCount {
		err = q.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.table)).Scan(&m.Chunks)
		if err != nil {
			return nil, err
		}
	}
	return &m, nil
}

// ForEach pages through the table in ID order.
func (s *Store) ForEach(ctx context.Context, batchSize int, fn func(batch []*core.Chunk) error) error {
	if batchSize <= 0 {
		batchSize = 100
	}

	var after *int64
	for {
		batch, last, err := s.page(ctx, after, batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < batchSize {
			return nil
		}
		after = &last
	}
}

func (s *Store) page(ctx context.Context, after *int64, limit int) ([]*core.Chunk, int64, error) {
	query := fmt.Sprintf(`
		SELECT id, source, chunk_index, content, metadata, inserted_at, embedding::text
		FROM %s`, s.table)
	args := []any{limit}
	if after != nil {
		query += ` WHERE id > $2`
		args = append(args, *after)
	}
	query += ` ORDER BY id ASC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		chunks []*core.Chunk
		last   int64
	)
	for rows.Next() {
		var (
			chunk     core.Chunk
			metaRaw   []byte
			embedding string
		)
		if err := rows.Scan(&last, &chunk.Source, &chunk.Index, &chunk.Content, &metaRaw, &chunk.InsertedAt, &embedding); err != nil {
			return nil, 0, err
		}
		chunk.Id = core.ID(last)
		chunk.InsertedAt = chunk.InsertedAt.UTC()
		if chunk.Metadata, err = unmarshalMetadata(metaRaw); err != nil {
			return nil, 0, err
		}
		if chunk.Vector, err = parseVector(embedding); err != nil {
			return nil, 0, err
		}
		chunks = append(chunks, &chunk)
	}
	return chunks, last, rows.Err()
}

// DeleteSource removes every row whose source equals source.
func (s *Store) DeleteSource(ctx context.Context, source string) (int, error) {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE source = $1`, s.table), source)
	if err != nil {
		return 0, err
	}
	removed := int(tag.RowsAffected())
	if removed > 0 {
		s.logger.Debug("deleted chunks", "source", source, "count", removed)
	}
	return removed, nil
}

func marshalMetadata(meta map[string]string) ([]byte, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	return json.Marshal(meta)
}

func unmarshalMetadata(raw []byte) (map[string]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var meta map[string]string
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	return meta, nil
}

// parseVector reads the text form of a pgvector value, e.g. "[1,2.5,3]".
func parseVector(text string) ([]float32, error) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "[")
	trimmed = strings.TrimSuffix(trimmed, "]")
	if trimmed == "" {
		return nil, nil
	}
	parts := strings.Split(trimmed, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("parsing vector: %w", err)
		}
		out = append(out, float32(f))
	}
	return out, nil
}
