// Package trace records pipeline runs in the shape LangSmith ingests.
//
// A Tracer opens a Span per step (a chain invocation, a model call, a
// retrieval). Spans started from a context that already carries a span become
// its children and share its trace. Finished runs go to a Sink:
//
//   - LogSink writes them to slog
//   - LangSmithSink posts them to the LangSmith run-ingest API
//   - NATSSink publishes them on chainlab.trace.<project>
//   - AsyncSink exports on a worker pool so tracing never blocks a pipeline
//   - MultiSink fans out to several sinks
//
// Export failures are logged and never reach the traced operation. A nil
// *Tracer and a nil *Span are valid and do nothing.
package trace
