package trace

import (
	"fmt"
	"time"
)

// Kind is the LangSmith run type.
type Kind string

const (
	KindChain     Kind = "chain"
	KindLLM       Kind = "llm"
	KindRetriever Kind = "retriever"
	KindEmbedding Kind = "embedding"
	KindParser    Kind = "parser"
)

// Run is one finished step of a pipeline.
type Run struct {
	ID          string         `json:"id"`
	TraceID     string         `json:"trace_id"`
	ParentRunID string         `json:"parent_run_id,omitempty"`
	DottedOrder string         `json:"dotted_order"`
	Name        string         `json:"name"`
	RunType     Kind           `json:"run_type"`
	SessionName string         `json:"session_name,omitempty"`
	Inputs      map[string]any `json:"inputs"`
	Outputs     map[string]any `json:"outputs,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartTime   time.Time      `json:"start_time"`
	EndTime     time.Time      `json:"end_time"`
	Tags        []string       `json:"tags,omitempty"`
}

// Duration is the wall time between start and end.
func (r *Run) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// dottedOrderSegment renders one segment of a dotted order: the start time
// in %Y%m%dT%H%M%S%fZ form followed by the run id.
func dottedOrderSegment(start time.Time, id string) string {
	start = start.UTC()
	return fmt.Sprintf("%s%06dZ%s", start.Format("20060102T150405"), start.Nanosecond()/1000, id)
}
