package core

//go:generate go run ../cmd/musgen

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing so re-indexing identical text
// yields the same identifier.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ChunkID derives the identifier of a chunk from its source and text.
func ChunkID(source, content string) ID {
	return IDFromContent(source + "\x00" + content)
}

// Document is a raw text document before splitting.
type Document struct {
	Source   string            // Relative path or caller supplied name
	Content  string            // Full text
	Metadata map[string]string // Optional metadata copied to every chunk
}

// Chunk is a piece of a document together with its embedding.
type Chunk struct {
	Id         ID
	Source     string
	Index      int // Position of the chunk within its document
	Content    string
	Vector     []float32
	Metadata   map[string]string
	InsertedAt time.Time
}

// Manifest describes the embedding configuration an index was built with.
// Every vector in one index shares Dimension and EmbeddingModel.
type Manifest struct {
	EmbeddingModel string
	Dimension      int
	Chunks         int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Query is a similarity search request.
// Text is kept alongside Vector for stores that embed queries themselves.
type Query struct {
	Text     string
	Vector   []float32
	Limit    int
	MinScore float32
}

type SearchResult struct {
	Chunk *Chunk
	Score float32
}
