package ingest

import (
	"fmt"
	"maps"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/poiesic/chainlab/core"
)

// Splitting defaults follow the usual LangChain recursive splitter settings.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Splitter cuts documents into chunks ready for embedding.
type Splitter struct {
	splitter textsplitter.TextSplitter
}

// NewSplitter creates a recursive character splitter.
// The overlap must be smaller than the chunk size.
func NewSplitter(chunkSize, chunkOverlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", chunkSize, chunkOverlap)
	}
	return &Splitter{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}, nil
}

// Split turns documents into chunks. Blank pieces are dropped; IDs are
// derived from source and content so re-splitting unchanged text yields
// the same IDs.
func (s *Splitter) Split(docs []core.Document) ([]*core.Chunk, error) {
	var chunks []*core.Chunk
	for _, doc := range docs {
		pieces, err := s.splitter.SplitText(doc.Content)
		if err != nil {
			return nil, fmt.Errorf("splitting %s: %w", doc.Source, err)
		}

		index := 0
		for _, piece := range pieces {
			if strings.TrimSpace(piece) == "" {
				continue
			}
			chunks = append(chunks, &core.Chunk{
				Id:       core.ChunkID(doc.Source, piece),
				Source:   doc.Source,
				Index:    index,
				Content:  piece,
				Metadata: maps.Clone(doc.Metadata),
			})
			index++
		}
	}
	return chunks, nil
}
