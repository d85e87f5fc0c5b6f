package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/chainlab/ai"
	"github.com/poiesic/chainlab/ai/mock"
	"github.com/poiesic/chainlab/core"
	"github.com/poiesic/chainlab/prompt"
	"github.com/poiesic/chainlab/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu   sync.Mutex
	runs []*trace.Run
}

func (s *recordingSink) Export(ctx context.Context, run *trace.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, mock.NewMockChatModel())
	assert.ErrorIs(t, err, ErrTemplateRequired)

	_, err = New(prompt.Assistant(), nil)
	assert.ErrorIs(t, err, ErrModelRequired)

	c, err := New(prompt.Assistant(), mock.NewMockChatModel(), WithName("qa"))
	require.NoError(t, err)
	assert.Equal(t, "qa", c.Name())
	assert.Equal(t, []string{"question"}, c.InputVariables())
}

func TestInvoke(t *testing.T) {
	model := mock.NewMockChatModel().WithResponses("  LCEL composes runnables.\n")
	c, err := New(prompt.Assistant(), model)
	require.NoError(t, err)

	out, err := c.Invoke(context.Background(), map[string]any{"question": "What is LCEL?"})
	require.NoError(t, err)
	assert.Equal(t, "LCEL composes runnables.", out)

	msgs := model.LastMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Question: What is LCEL?", msgs[1].Content)
}

func TestInvoke_NonEmptyInNonEmptyOut(t *testing.T) {
	c, err := New(prompt.Assistant(), mock.NewMockChatModel())
	require.NoError(t, err)

	out, err := c.Invoke(context.Background(), map[string]any{"question": "hello"})
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestInvoke_RejectsBadInputBeforeModelCall(t *testing.T) {
	model := mock.NewMockChatModel()
	c, err := New(prompt.Translator(), model)
	require.NoError(t, err)

	_, err = c.Invoke(context.Background(), map[string]any{"text": "hi"})
	assert.ErrorIs(t, err, prompt.ErrMissingVariable)

	_, err = c.Invoke(context.Background(), map[string]any{"language": "French", "text": "   "})
	assert.ErrorIs(t, err, ErrEmptyInput)

	assert.Zero(t, model.CallCount())
}

func TestInvoke_ModelError(t *testing.T) {
	boom := errors.New("connection refused")
	model := mock.NewMockChatModel().WithGenerateFunc(func(ctx context.Context, messages []ai.Message) (string, error) {
		return "", boom
	})
	c, err := New(prompt.Assistant(), model)
	require.NoError(t, err)

	_, err = c.Invoke(context.Background(), map[string]any{"question": "x"})
	assert.ErrorIs(t, err, boom)
}

func TestInvoke_CustomParser(t *testing.T) {
	c, err := New(prompt.Assistant(), mock.NewMockChatModel().WithResponses("hello"),
		WithParser(ParserFunc(func(text string) (string, error) {
			return strings.ToUpper(text), nil
		})))
	require.NoError(t, err)

	out, err := c.Invoke(context.Background(), map[string]any{"question": "x"})
	require.NoError(t, err)
	assert.Equal(t, "HELLO", out)
}

func TestStream(t *testing.T) {
	model := mock.NewMockChatModel().WithResponses("one two three")
	c, err := New(prompt.Assistant(), model)
	require.NoError(t, err)

	var chunks []string
	out, err := c.Stream(context.Background(), map[string]any{"question": "count"}, func(ctx context.Context, chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "one two three", out)
	assert.Equal(t, out, strings.Join(chunks, ""))
	assert.Len(t, chunks, 3)
}

func TestBatch_PreservesOrder(t *testing.T) {
	model := mock.NewMockChatModel().WithGenerateFunc(func(ctx context.Context, messages []ai.Message) (string, error) {
		q := messages[len(messages)-1].Content
		// Later inputs finish first.
		if strings.HasSuffix(q, "0") {
			time.Sleep(20 * time.Millisecond)
		}
		return "answer to " + q, nil
	})
	c, err := New(prompt.Assistant(), model, WithConcurrency(3))
	require.NoError(t, err)

	inputs := make([]map[string]any, 6)
	for i := range inputs {
		inputs[i] = map[string]any{"question": fmt.Sprintf("q%d", i)}
	}

	outs, err := c.Batch(context.Background(), inputs)
	require.NoError(t, err)
	require.Len(t, outs, 6)
	for i, out := range outs {
		assert.Equal(t, fmt.Sprintf("answer to Question: q%d", i), out)
	}
}

func TestBatch_BoundedConcurrency(t *testing.T) {
	var active, peak atomic.Int64
	model := mock.NewMockChatModel().WithGenerateFunc(func(ctx context.Context, messages []ai.Message) (string, error) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return "ok", nil
	})
	c, err := New(prompt.Assistant(), model, WithConcurrency(2))
	require.NoError(t, err)

	inputs := make([]map[string]any, 10)
	for i := range inputs {
		inputs[i] = map[string]any{"question": "q"}
	}
	_, err = c.Batch(context.Background(), inputs)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int64(2))
}

func TestBatch_FirstErrorWins(t *testing.T) {
	c, err := New(prompt.Assistant(), mock.NewMockChatModel(), WithConcurrency(1))
	require.NoError(t, err)

	_, err = c.Batch(context.Background(), []map[string]any{
		{"question": "fine"},
		{"question": ""},
		{"question": "never reached"},
	})
	require.ErrorIs(t, err, ErrEmptyInput)
	assert.Contains(t, err.Error(), "input 1")
}

func TestBatch_Empty(t *testing.T) {
	c, err := New(prompt.Assistant(), mock.NewMockChatModel())
	require.NoError(t, err)

	outs, err := c.Batch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, outs)
}

func TestInvoke_Traced(t *testing.T) {
	sink := &recordingSink{}
	c, err := New(prompt.Assistant(), mock.NewMockChatModel(), WithTracer(trace.New("demo", sink)))
	require.NoError(t, err)

	_, err = c.Invoke(context.Background(), map[string]any{"question": "hi"})
	require.NoError(t, err)

	require.Len(t, sink.runs, 2)
	llm, root := sink.runs[0], sink.runs[1]
	assert.Equal(t, trace.KindChain, root.RunType)
	assert.Equal(t, "assistant", root.Name)
	assert.Equal(t, trace.KindLLM, llm.RunType)
	assert.Equal(t, "mock", llm.Name)
	assert.Equal(t, root.ID, llm.ParentRunID)
	assert.Equal(t, root.TraceID, llm.TraceID)
	assert.Equal(t, "mock response to: Question: hi", root.Outputs["output"])
}

func TestInvoke_TracedFailure(t *testing.T) {
	sink := &recordingSink{}
	c, err := New(prompt.Assistant(), mock.NewMockChatModel(), WithTracer(trace.New("demo", sink)))
	require.NoError(t, err)

	_, err = c.Invoke(context.Background(), map[string]any{})
	require.Error(t, err)
	require.Len(t, sink.runs, 1)
	assert.Contains(t, sink.runs[0].Error, "question")
}

type fakeRetriever struct {
	hits  []*core.SearchResult
	err   error
	query string
	k     int
}

func (f *fakeRetriever) FindSimilar(ctx context.Context, query string, k int, minScore float32) ([]*core.SearchResult, error) {
	f.query, f.k = query, k
	return f.hits, f.err
}

func TestRetrieval_Ask(t *testing.T) {
	retriever := &fakeRetriever{hits: []*core.SearchResult{
		{Chunk: &core.Chunk{Source: "go.txt", Content: "Go was announced in 2009."}, Score: 0.9},
		{Chunk: &core.Chunk{Source: "rust.txt", Content: "Rust 1.0 shipped in 2015."}, Score: 0.4},
	}}
	model := mock.NewMockChatModel().WithResponses("2009")
	r, err := NewRetrieval(model, retriever, 2)
	require.NoError(t, err)

	answer, err := r.Ask(context.Background(), "When was Go announced?")
	require.NoError(t, err)
	assert.Equal(t, "2009", answer.Text)
	assert.Len(t, answer.Sources, 2)
	assert.Equal(t, 2, retriever.k)
	assert.Equal(t, "When was Go announced?", retriever.query)

	system := model.LastMessages()[0].Content
	assert.Contains(t, system, "[1] go.txt\nGo was announced in 2009.")
	assert.Contains(t, system, "[2] rust.txt")
}

func TestRetrieval_Runnable(t *testing.T) {
	r, err := NewRetrieval(mock.NewMockChatModel().WithResponses("a", "b"), &fakeRetriever{}, 0)
	require.NoError(t, err)
	assert.Equal(t, "retrieval_qa", r.Name())
	assert.Equal(t, []string{"question"}, r.InputVariables())

	out, err := r.Invoke(context.Background(), map[string]any{"question": "q"})
	require.NoError(t, err)
	assert.Equal(t, "a", out)

	_, err = r.Invoke(context.Background(), map[string]any{})
	assert.ErrorIs(t, err, prompt.ErrMissingVariable)

	_, err = r.Ask(context.Background(), " ")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestRetrieval_RetrieverError(t *testing.T) {
	boom := errors.New("index missing")
	model := mock.NewMockChatModel()
	r, err := NewRetrieval(model, &fakeRetriever{err: boom}, 3)
	require.NoError(t, err)

	_, err = r.Ask(context.Background(), "q")
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, model.CallCount())
}

func TestNewRetrieval_RequiresRetriever(t *testing.T) {
	_, err := NewRetrieval(mock.NewMockChatModel(), nil, 3)
	assert.ErrorIs(t, err, ErrRetrieverRequired)
}

func TestFormatContext_NoHits(t *testing.T) {
	assert.Equal(t, "(no relevant documents found)", FormatContext(nil))
}

func TestStringParser(t *testing.T) {
	out, err := NewStringParser().Parse("\n  hi there \t")
	require.NoError(t, err)
	assert.Equal(t, "hi there", out)
}
