package trace

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// LogSink writes runs to a logger at debug level, failures at warn.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "trace")}
}

func (s *LogSink) Export(ctx context.Context, run *Run) error {
	attrs := []any{
		"run", run.ID,
		"trace", run.TraceID,
		"parent", run.ParentRunID,
		"type", run.RunType,
		"name", run.Name,
		"duration", run.Duration(),
	}
	if run.Error != "" {
		s.logger.Warn("run failed", append(attrs, "err", run.Error)...)
		return nil
	}
	s.logger.Debug("run finished", attrs...)
	return nil
}

func (s *LogSink) Close() error {
	return nil
}

// MultiSink exports every run to all of its sinks.
type MultiSink []Sink

func (m MultiSink) Export(ctx context.Context, run *Run) error {
	var errs []error
	for _, s := range m {
		if err := s.Export(ctx, run); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AsyncSink exports on a bounded worker pool. Close waits for pending
// exports before closing the wrapped sink.
type AsyncSink struct {
	inner   Sink
	pool    *ants.Pool
	pending sync.WaitGroup
	logger  *slog.Logger
}

// NewAsyncSink wraps inner with a pool of size workers.
func NewAsyncSink(inner Sink, size int) (*AsyncSink, error) {
	if size < 1 {
		size = 1
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, err
	}
	return &AsyncSink{
		inner:  inner,
		pool:   pool,
		logger: slog.Default().With("component", "trace-async"),
	}, nil
}

func (s *AsyncSink) Export(ctx context.Context, run *Run) error {
	s.pending.Add(1)
	err := s.pool.Submit(func() {
		defer s.pending.Done()
		if err := s.inner.Export(ctx, run); err != nil {
			s.logger.Warn("failed to export run", "run", run.ID, "err", err)
		}
	})
	if err != nil {
		s.pending.Done()
		return err
	}
	return nil
}

func (s *AsyncSink) Close() error {
	s.pending.Wait()
	s.pool.Release()
	return s.inner.Close()
}
