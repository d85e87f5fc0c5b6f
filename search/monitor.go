package search

import (
	"github.com/poiesic/chainlab/core"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string)
	AfterEmbedding(vector []float32)
	AfterVectorSearch(results []*core.SearchResult)
	KeywordHit(chunk *core.Chunk)
	Finish(results []*core.SearchResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                           {}
func (n *noopMonitor) AfterEmbedding(_ []float32)               {}
func (n *noopMonitor) AfterVectorSearch(_ []*core.SearchResult) {}
func (n *noopMonitor) KeywordHit(_ *core.Chunk)                 {}
func (n *noopMonitor) Finish(_ []*core.SearchResult)            {}
