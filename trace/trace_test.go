package trace

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	runs   []*Run
	err    error
	closed bool
}

func (s *recordingSink) Export(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return s.err
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) Runs() []*Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Run(nil), s.runs...)
}

func fixedClock() func() time.Time {
	t := time.Date(2025, 6, 1, 10, 0, 0, 123456000, time.UTC)
	return func() time.Time {
		t = t.Add(time.Millisecond)
		return t
	}
}

func TestTracer_ParentChild(t *testing.T) {
	sink := &recordingSink{}
	tracer := New("demo", sink, WithClock(fixedClock()), WithTags("test"))

	ctx, chain := tracer.Start(context.Background(), KindChain, "assistant", map[string]any{"question": "hi"})
	_, llm := tracer.Start(ctx, KindLLM, "gemma3:1b", map[string]any{"messages": 2})
	llm.End(ctx, map[string]any{"text": "hello"})
	chain.End(ctx, map[string]any{"output": "hello"})

	runs := sink.Runs()
	require.Len(t, runs, 2)
	child, root := runs[0], runs[1]

	assert.Equal(t, KindLLM, child.RunType)
	assert.Equal(t, root.ID, child.ParentRunID)
	assert.Equal(t, root.ID, child.TraceID)
	assert.Equal(t, root.ID, root.TraceID)
	assert.Empty(t, root.ParentRunID)
	assert.True(t, strings.HasPrefix(child.DottedOrder, root.DottedOrder+"."))
	assert.Equal(t, "demo", root.SessionName)
	assert.Equal(t, []string{"test"}, root.Tags)
	assert.Positive(t, root.Duration())
	assert.True(t, strings.HasPrefix(root.DottedOrder, "20250601T100000124456Z"), root.DottedOrder)
}

func TestSpan_FailAndOnce(t *testing.T) {
	sink := &recordingSink{}
	tracer := New("demo", sink)

	ctx, span := tracer.Start(context.Background(), KindChain, "c", nil)
	span.Fail(ctx, errors.New("model down"))
	span.End(ctx, map[string]any{"ignored": true})

	runs := sink.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, "model down", runs[0].Error)
	assert.Nil(t, runs[0].Outputs)
}

func TestSpan_ExportErrorIsSwallowed(t *testing.T) {
	sink := &recordingSink{err: errors.New("unreachable")}
	tracer := New("demo", sink)

	ctx, span := tracer.Start(context.Background(), KindChain, "c", nil)
	assert.NotPanics(t, func() { span.End(ctx, nil) })
	assert.Len(t, sink.Runs(), 1)
}

func TestNilTracerAndSpan(t *testing.T) {
	var tracer *Tracer
	ctx, span := tracer.Start(context.Background(), KindChain, "c", nil)
	assert.Nil(t, span)
	assert.Nil(t, SpanFromContext(ctx))

	span.End(ctx, nil)
	span.Fail(ctx, errors.New("x"))
	assert.Empty(t, span.ID())
	assert.NoError(t, tracer.Close())
}

func TestRunJSON(t *testing.T) {
	run := &Run{ID: "a", TraceID: "a", Name: "n", RunType: KindLLM, Inputs: map[string]any{"q": "x"}}
	data, err := json.Marshal(run)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "llm", decoded["run_type"])
	assert.NotContains(t, decoded, "parent_run_id")
	assert.NotContains(t, decoded, "error")
}

func TestMultiSink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{err: errors.New("b failed")}
	multi := MultiSink{a, b}

	err := multi.Export(context.Background(), &Run{ID: "1"})
	assert.ErrorContains(t, err, "b failed")
	assert.Len(t, a.Runs(), 1)
	assert.Len(t, b.Runs(), 1)

	require.NoError(t, multi.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestAsyncSink_DrainsOnClose(t *testing.T) {
	inner := &recordingSink{}
	async, err := NewAsyncSink(inner, 2)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.NoError(t, async.Export(context.Background(), &Run{ID: "r"}))
	}
	require.NoError(t, async.Close())

	assert.Len(t, inner.Runs(), 20)
	assert.True(t, inner.closed)
}

func TestLogSink(t *testing.T) {
	sink := NewLogSink(nil)
	assert.NoError(t, sink.Export(context.Background(), &Run{ID: "1", Error: "boom"}))
	assert.NoError(t, sink.Export(context.Background(), &Run{ID: "2"}))
	assert.NoError(t, sink.Close())
}

func TestLangSmithSink(t *testing.T) {
	var (
		gotKey  string
		gotPath string
		gotRun  Run
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotRun)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink := NewLangSmithSink(srv.URL+"/", "ls-key")
	err := sink.Export(context.Background(), &Run{ID: "run-1", Name: "assistant", RunType: KindChain})
	require.NoError(t, err)

	assert.Equal(t, "ls-key", gotKey)
	assert.Equal(t, "/runs", gotPath)
	assert.Equal(t, "run-1", gotRun.ID)
	assert.NoError(t, sink.Close())
}

func TestLangSmithSink_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewLangSmithSink(srv.URL, "bad").Export(context.Background(), &Run{ID: "1"})
	assert.ErrorContains(t, err, "401")
	assert.ErrorContains(t, err, "invalid api key")
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "chainlab.trace.demo", Subject("demo"))
	assert.Equal(t, "chainlab.trace.my_project_v1", Subject("my project.v1"))
	assert.Equal(t, "chainlab.trace.default", Subject(""))
}

func startNATS(t *testing.T) *natsserver.Server {
	t.Helper()
	ns, err := natsserver.NewServer(&natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err)
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats not ready")
	}
	t.Cleanup(ns.Shutdown)
	return ns
}

func TestNATSSink(t *testing.T) {
	ns := startNATS(t)

	sub, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer sub.Close()

	received := make(chan *nats.Msg, 1)
	_, err = sub.ChanSubscribe("chainlab.trace.>", received)
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	sink, err := DialNATS(ns.ClientURL(), "demo")
	require.NoError(t, err)

	tracer := New("demo", sink)
	ctx, span := tracer.Start(context.Background(), KindChain, "assistant", map[string]any{"question": "hi"})
	span.End(ctx, map[string]any{"output": "hello"})
	require.NoError(t, tracer.Close())

	select {
	case msg := <-received:
		assert.Equal(t, "chainlab.trace.demo", msg.Subject)
		var run Run
		require.NoError(t, json.Unmarshal(msg.Data, &run))
		assert.Equal(t, "assistant", run.Name)
		assert.Equal(t, "hello", run.Outputs["output"])
	case <-time.After(5 * time.Second):
		t.Fatal("no trace message received")
	}
}
