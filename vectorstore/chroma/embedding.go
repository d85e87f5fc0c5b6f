package chroma

import (
	"context"
	"errors"

	"github.com/amikos-tech/chroma-go/types"
)

// errTextEmbedding is returned when chroma-go asks for text to be embedded.
// Chunks and queries always arrive with their vectors.
var errTextEmbedding = errors.New("chroma store only accepts precomputed vectors")

// precomputed is the embedding function registered with the collection.
// chroma-go calls it on every query, with no texts when the query carries
// its own embedding.
type precomputed struct{}

var _ types.EmbeddingFunction = precomputed{}

func (precomputed) EmbedDocuments(_ context.Context, texts []string) ([]*types.Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return nil, errTextEmbedding
}

func (precomputed) EmbedQuery(context.Context, string) (*types.Embedding, error) {
	return nil, errTextEmbedding
}

func (precomputed) EmbedRecords(_ context.Context, records []*types.Record, _ bool) error {
	for _, r := range records {
		if r.Embedding.IsDefined() {
			continue
		}
		return errTextEmbedding
	}
	return nil
}
