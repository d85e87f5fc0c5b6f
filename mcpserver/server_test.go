package mcpserver

import (
	"context"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/chainlab/ai/mock"
	"github.com/poiesic/chainlab/chain"
	"github.com/poiesic/chainlab/core"
	"github.com/poiesic/chainlab/prompt"
)

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

func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	serverSession, err := s.MCP().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func newAssistant(t *testing.T, model *mock.MockChatModel) chain.Runnable {
	t.Helper()
	c, err := chain.New(prompt.Assistant(), model)
	require.NoError(t, err)
	return c
}

func TestNew_RequiresRunnable(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrRunnableRequired)
}

func TestListTools(t *testing.T) {
	plain, err := New(newAssistant(t, mock.NewMockChatModel()))
	require.NoError(t, err)
	res, err := connect(t, plain).ListTools(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, res.Tools, 1)
	assert.Equal(t, "ask", res.Tools[0].Name)

	withSearch, err := New(newAssistant(t, mock.NewMockChatModel()), WithRetriever(&fakeRetriever{}))
	require.NoError(t, err)
	res, err = connect(t, withSearch).ListTools(context.Background(), nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"ask", "search"}, names)
}

func TestAsk(t *testing.T) {
	model := mock.NewMockChatModel().WithResponses("Go is a compiled language.")
	s, err := New(newAssistant(t, model))
	require.NoError(t, err)

	res, err := connect(t, s).CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "ask",
		Arguments: map[string]any{"question": "What is Go?"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "Go is a compiled language.", text(t, res))

	msgs := model.LastMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Question: What is Go?", msgs[1].Content)
}

func TestAsk_BlankQuestion(t *testing.T) {
	model := mock.NewMockChatModel()
	s, err := New(newAssistant(t, model))
	require.NoError(t, err)

	res, err := connect(t, s).CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "ask",
		Arguments: map[string]any{"question": "   "},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Zero(t, model.CallCount())
}

func TestSearch(t *testing.T) {
	retriever := &fakeRetriever{hits: []*core.SearchResult{
		{Chunk: &core.Chunk{Source: "go.md", Index: 2, Content: "Goroutines are cheap."}, Score: 0.91},
	}}
	s, err := New(newAssistant(t, mock.NewMockChatModel()), WithRetriever(retriever))
	require.NoError(t, err)

	res, err := connect(t, s).CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "search",
		Arguments: map[string]any{"query": "goroutines"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "goroutines", retriever.query)
	assert.Equal(t, defaultSearchLimit, retriever.k)

	out := text(t, res)
	assert.Contains(t, out, "go.md#2")
	assert.Contains(t, out, "Goroutines are cheap.")
}

func TestSearch_Error(t *testing.T) {
	retriever := &fakeRetriever{err: errors.New("index unavailable")}
	s, err := New(newAssistant(t, mock.NewMockChatModel()), WithRetriever(retriever))
	require.NoError(t, err)

	res, err := connect(t, s).CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "search",
		Arguments: map[string]any{"query": "anything", "limit": 2},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "index unavailable")
	assert.Equal(t, 2, retriever.k)
}

func TestFormatHits_Empty(t *testing.T) {
	assert.Equal(t, `No results found for "q"`, formatHits("q", nil))
}
