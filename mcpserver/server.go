// Package mcpserver exposes the assistant chain and index search as
// Model Context Protocol tools.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/poiesic/chainlab/chain"
	"github.com/poiesic/chainlab/core"
)

const (
	// Name and Version identify the server to MCP clients.
	Name    = "chainlab"
	Version = "1.0.0"

	defaultSearchLimit = 5
)

// ErrRunnableRequired is returned when New is called without a runnable.
var ErrRunnableRequired = errors.New("runnable required")

// Server wraps an MCP server with the ask and search tools.
type Server struct {
	server    *mcp.Server
	assistant chain.Runnable
	retriever chain.Retriever
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithRetriever enables the search tool.
func WithRetriever(r chain.Retriever) Option {
	return func(s *Server) {
		s.retriever = r
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a server whose ask tool invokes assistant with a single
// "question" input.
func New(assistant chain.Runnable, opts ...Option) (*Server, error) {
	if assistant == nil {
		return nil, ErrRunnableRequired
	}
	s := &Server{
		assistant: assistant,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "mcp")

	s.server = mcp.NewServer(&mcp.Implementation{Name: Name, Version: Version}, nil)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Ask the assistant a question and get a structured answer.",
	}, s.ask)
	if s.retriever != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "search",
			Description: "Semantic similarity search over the indexed documents. Returns the best matching chunks with their source files.",
		}, s.search)
	}
	return s, nil
}

// MCP returns the underlying server, for use with other transports.
func (s *Server) MCP() *mcp.Server {
	return s.server
}

// Run serves over stdio until the client disconnects or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("serving MCP over stdio", "search", s.retriever != nil)
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

type askArgs struct {
	Question string `json:"question" jsonschema:"The question to ask"`
}

func (s *Server) ask(ctx context.Context, req *mcp.CallToolRequest, args askArgs) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Question) == "" {
		return toolError("question must not be empty"), nil, nil
	}
	answer, err := s.assistant.Invoke(ctx, map[string]any{"question": args.Question})
	if err != nil {
		s.logger.Error("ask failed", "err", err)
		return toolError("Ask failed: " + err.Error()), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: answer}},
	}, nil, nil
}

type searchArgs struct {
	Query    string  `json:"query" jsonschema:"Natural language query"`
	Limit    int     `json:"limit,omitempty" jsonschema:"Maximum number of results (default 5)"`
	MinScore float64 `json:"minScore,omitempty" jsonschema:"Minimum cosine similarity between -1 and 1 (default 0)"`
}

func (s *Server) search(ctx context.Context, req *mcp.CallToolRequest, args searchArgs) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Query) == "" {
		return toolError("query must not be empty"), nil, nil
	}
	limit := args.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	hits, err := s.retriever.FindSimilar(ctx, args.Query, limit, float32(args.MinScore))
	if err != nil {
		s.logger.Error("search failed", "err", err)
		return toolError("Search failed: " + err.Error()), nil, nil
	}

	structured := make([]map[string]any, len(hits))
	for i, hit := range hits {
		structured[i] = map[string]any{
			"source": hit.Chunk.Source,
			"index":  hit.Chunk.Index,
			"score":  hit.Score,
			"text":   hit.Chunk.Content,
		}
	}
	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: formatHits(args.Query, hits)}},
		StructuredContent: map[string]any{"results": structured},
	}, nil, nil
}

func formatHits(query string, hits []*core.SearchResult) string {
	if len(hits) == 0 {
		return fmt.Sprintf("No results found for %q", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d result(s) for %q:\n", len(hits), query)
	for i, hit := range hits {
		fmt.Fprintf(&b, "\n%d. %s#%d (score %.3f)\n%s\n", i+1, hit.Chunk.Source, hit.Chunk.Index, hit.Score, strings.TrimSpace(hit.Chunk.Content))
	}
	return b.String()
}

func toolError(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}
