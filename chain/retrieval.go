package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/poiesic/chainlab/ai"
	"github.com/poiesic/chainlab/core"
	"github.com/poiesic/chainlab/prompt"
	"github.com/poiesic/chainlab/trace"
)

// Retriever finds the chunks most similar to a query.
// search.Searcher implements it.
type Retriever interface {
	FindSimilar(ctx context.Context, query string, k int, minScore float32) ([]*core.SearchResult, error)
}

// Answer is a retrieval-augmented reply with the chunks it was built from.
type Answer struct {
	Text    string
	Sources []*core.SearchResult
}

// Retrieval answers questions from the chunks a Retriever returns.
type Retrieval struct {
	chain     *Chain
	retriever Retriever
	k         int
	minScore  float32
}

// NewRetrieval creates a retrieval chain over the RetrievalQA prompt that
// stuffs the top k chunks into the context. Chain options apply to the
// underlying prompt chain.
func NewRetrieval(model ai.ChatModel, retriever Retriever, k int, opts ...Option) (*Retrieval, error) {
	if retriever == nil {
		return nil, ErrRetrieverRequired
	}
	c, err := New(prompt.RetrievalQA(), model, opts...)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 4
	}
	return &Retrieval{chain: c, retriever: retriever, k: k}, nil
}

// WithMinScore drops hits scoring below min.
func (r *Retrieval) WithMinScore(min float32) *Retrieval {
	r.minScore = min
	return r
}

func (r *Retrieval) Name() string {
	return r.chain.name
}

// InputVariables returns the single "question" input.
func (r *Retrieval) InputVariables() []string {
	return []string{"question"}
}

// Ask retrieves context for question and answers it.
func (r *Retrieval) Ask(ctx context.Context, question string) (*Answer, error) {
	return r.ask(ctx, question, nil)
}

func (r *Retrieval) ask(ctx context.Context, question string, fn ai.StreamFunc) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question", ErrEmptyInput)
	}

	tracer := r.chain.tracer
	ctx, span := tracer.Start(ctx, trace.KindRetriever, "retriever", map[string]any{"query": question, "k": r.k})
	hits, err := r.retriever.FindSimilar(ctx, question, r.k, r.minScore)
	if err != nil {
		span.Fail(ctx, err)
		r.chain.logger.Error("retrieval failed", "err", err)
		return nil, err
	}
	span.End(ctx, map[string]any{"documents": len(hits)})

	input := map[string]any{"context": FormatContext(hits), "question": question}
	var text string
	if fn != nil {
		text, err = r.chain.Stream(ctx, input, fn)
	} else {
		text, err = r.chain.Invoke(ctx, input)
	}
	if err != nil {
		return nil, err
	}
	return &Answer{Text: text, Sources: hits}, nil
}

// FormatContext renders hits as numbered passages tagged with their source.
func FormatContext(hits []*core.SearchResult) string {
	if len(hits) == 0 {
		return "(no relevant documents found)"
	}
	var b strings.Builder
	for i, hit := range hits {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s\n%s", i+1, hit.Chunk.Source, strings.TrimSpace(hit.Chunk.Content))
	}
	return b.String()
}

func question(input map[string]any) (string, error) {
	v, ok := input["question"]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: question", prompt.ErrMissingVariable)
	}
	return fmt.Sprint(v), nil
}

func (r *Retrieval) Invoke(ctx context.Context, input map[string]any) (string, error) {
	q, err := question(input)
	if err != nil {
		return "", err
	}
	answer, err := r.Ask(ctx, q)
	if err != nil {
		return "", err
	}
	return answer.Text, nil
}

func (r *Retrieval) Stream(ctx context.Context, input map[string]any, fn ai.StreamFunc) (string, error) {
	q, err := question(input)
	if err != nil {
		return "", err
	}
	if fn == nil {
		fn = func(context.Context, string) error { return nil }
	}
	answer, err := r.ask(ctx, q, fn)
	if err != nil {
		return "", err
	}
	return answer.Text, nil
}

func (r *Retrieval) Batch(ctx context.Context, inputs []map[string]any) ([]string, error) {
	return batch(ctx, inputs, r.chain.concurrency, r.Invoke)
}

var _ Runnable = (*Retrieval)(nil)
