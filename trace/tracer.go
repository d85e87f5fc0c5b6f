package trace

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sink receives finished runs.
type Sink interface {
	Export(ctx context.Context, run *Run) error
	Close() error
}

// Tracer starts spans and hands finished runs to a sink.
type Tracer struct {
	project string
	sink    Sink
	tags    []string
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithTags attaches tags to every run.
func WithTags(tags ...string) Option {
	return func(t *Tracer) {
		t.tags = append(t.tags, tags...)
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracer) {
		t.now = now
	}
}

// New creates a Tracer for project that exports to sink.
func New(project string, sink Sink, opts ...Option) *Tracer {
	t := &Tracer{
		project: project,
		sink:    sink,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "tracer", "project", project)
	return t
}

// Project returns the project runs are recorded under.
func (t *Tracer) Project() string {
	if t == nil {
		return ""
	}
	return t.project
}

type spanKey struct{}

// SpanFromContext returns the innermost open span in ctx, or nil.
func SpanFromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(spanKey{}).(*Span)
	return s
}

// Start opens a span. The returned context carries the span so that spans
// started from it become children.
func (t *Tracer) Start(ctx context.Context, kind Kind, name string, inputs map[string]any) (context.Context, *Span) {
	if t == nil {
		return ctx, nil
	}

	id := uuid.NewString()
	start := t.now().UTC()
	run := &Run{
		ID:          id,
		TraceID:     id,
		DottedOrder: dottedOrderSegment(start, id),
		Name:        name,
		RunType:     kind,
		SessionName: t.project,
		Inputs:      inputs,
		StartTime:   start,
		Tags:        t.tags,
	}
	if parent := SpanFromContext(ctx); parent != nil {
		run.TraceID = parent.run.TraceID
		run.ParentRunID = parent.run.ID
		run.DottedOrder = parent.run.DottedOrder + "." + run.DottedOrder
	}

	span := &Span{tracer: t, run: run}
	return context.WithValue(ctx, spanKey{}, span), span
}

// Close flushes and closes the sink.
func (t *Tracer) Close() error {
	if t == nil || t.sink == nil {
		return nil
	}
	return t.sink.Close()
}

// Span is an open run.
type Span struct {
	tracer *Tracer
	run    *Run
	once   sync.Once
}

// ID returns the run id.
func (s *Span) ID() string {
	if s == nil {
		return ""
	}
	return s.run.ID
}

// TraceID returns the id of the root run.
func (s *Span) TraceID() string {
	if s == nil {
		return ""
	}
	return s.run.TraceID
}

// End closes the span with outputs. Only the first End or Fail counts.
func (s *Span) End(ctx context.Context, outputs map[string]any) {
	if s == nil {
		return
	}
	s.finish(ctx, outputs, nil)
}

// Fail closes the span with err.
func (s *Span) Fail(ctx context.Context, err error) {
	if s == nil {
		return
	}
	if err == nil {
		err = errors.New("unknown error")
	}
	s.finish(ctx, nil, err)
}

func (s *Span) finish(ctx context.Context, outputs map[string]any, err error) {
	s.once.Do(func() {
		s.run.EndTime = s.tracer.now().UTC()
		s.run.Outputs = outputs
		if err != nil {
			s.run.Error = err.Error()
		}
		if s.tracer.sink == nil {
			return
		}
		// Cancellation of the traced operation must not drop its run.
		if exportErr := s.tracer.sink.Export(context.WithoutCancel(ctx), s.run); exportErr != nil {
			s.tracer.logger.Warn("failed to export run", "run", s.run.ID, "name", s.run.Name, "err", exportErr)
		}
	})
}
