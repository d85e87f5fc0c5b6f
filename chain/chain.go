package chain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/chainlab/ai"
	"github.com/poiesic/chainlab/prompt"
	"github.com/poiesic/chainlab/trace"
)

// Runnable is anything that can be invoked with named inputs and produce text.
// Chain and Retrieval implement it.
type Runnable interface {
	Name() string
	InputVariables() []string
	Invoke(ctx context.Context, input map[string]any) (string, error)
	Batch(ctx context.Context, inputs []map[string]any) ([]string, error)
	Stream(ctx context.Context, input map[string]any, fn ai.StreamFunc) (string, error)
}

// Chain is a prompt template piped into a chat model and an output parser.
type Chain struct {
	name        string
	template    *prompt.Template
	model       ai.ChatModel
	parser      Parser
	tracer      *trace.Tracer
	concurrency int
	logger      *slog.Logger
}

// Option configures a Chain.
type Option func(*Chain)

// WithParser replaces the default StringParser.
func WithParser(p Parser) Option {
	return func(c *Chain) {
		if p != nil {
			c.parser = p
		}
	}
}

// WithTracer records every invocation.
func WithTracer(t *trace.Tracer) Option {
	return func(c *Chain) {
		c.tracer = t
	}
}

// WithConcurrency bounds the number of inputs Batch runs at once.
// Default is 4.
func WithConcurrency(n int) Option {
	return func(c *Chain) {
		if n < 1 {
			n = 1
		}
		c.concurrency = n
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chain) {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
	}
}

// WithName overrides the chain name, which defaults to the template name.
func WithName(name string) Option {
	return func(c *Chain) {
		if name != "" {
			c.name = name
		}
	}
}

// New creates a chain. Nothing is sent to the model until it is invoked.
func New(tmpl *prompt.Template, model ai.ChatModel, opts ...Option) (*Chain, error) {
	if tmpl == nil {
		return nil, ErrTemplateRequired
	}
	if model == nil {
		return nil, ErrModelRequired
	}

	c := &Chain{
		name:        tmpl.Name(),
		template:    tmpl,
		model:       model,
		parser:      NewStringParser(),
		concurrency: 4,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "chain", "chain", c.name)
	return c, nil
}

// Name returns the chain name.
func (c *Chain) Name() string {
	return c.name
}

// InputVariables returns the names the input map must provide.
func (c *Chain) InputVariables() []string {
	return c.template.InputVariables()
}

// prepare validates input and formats the prompt. Failures here happen before
// the model is contacted.
func (c *Chain) prepare(input map[string]any) ([]ai.Message, error) {
	messages, err := c.template.Format(input)
	if err != nil {
		return nil, err
	}
	for _, name := range c.template.InputVariables() {
		if s, ok := input[name].(string); ok && strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("%w: %s", ErrEmptyInput, name)
		}
	}
	return messages, nil
}

// Invoke runs the chain once.
func (c *Chain) Invoke(ctx context.Context, input map[string]any) (string, error) {
	return c.run(ctx, input, nil)
}

// Stream runs the chain once, handing model output to fn as it is generated.
// The returned string is the parsed output.
func (c *Chain) Stream(ctx context.Context, input map[string]any, fn ai.StreamFunc) (string, error) {
	if fn == nil {
		fn = func(context.Context, string) error { return nil }
	}
	return c.run(ctx, input, fn)
}

func (c *Chain) run(ctx context.Context, input map[string]any, fn ai.StreamFunc) (string, error) {
	ctx, span := c.tracer.Start(ctx, trace.KindChain, c.name, input)

	out, err := c.generate(ctx, input, fn)
	if err != nil {
		span.Fail(ctx, err)
		return "", err
	}
	span.End(ctx, map[string]any{"output": out})
	return out, nil
}

func (c *Chain) generate(ctx context.Context, input map[string]any, fn ai.StreamFunc) (string, error) {
	messages, err := c.prepare(input)
	if err != nil {
		c.logger.Debug("rejected input", "err", err)
		return "", err
	}

	llmCtx, llmSpan := c.tracer.Start(ctx, trace.KindLLM, c.model.Name(), map[string]any{"messages": messageInputs(messages)})
	var text string
	if fn != nil {
		text, err = c.model.Stream(llmCtx, messages, fn)
	} else {
		text, err = c.model.Generate(llmCtx, messages)
	}
	if err != nil {
		llmSpan.Fail(llmCtx, err)
		c.logger.Error("model call failed", "model", c.model.Name(), "err", err)
		return "", err
	}
	llmSpan.End(llmCtx, map[string]any{"text": text})

	out, err := c.parser.Parse(text)
	if err != nil {
		c.logger.Error("failed to parse model output", "err", err)
		return "", err
	}
	return out, nil
}

// Batch invokes the chain for every input using at most the configured
// number of concurrent calls. Outputs are in input order. The first error
// cancels the remaining calls and is returned.
func (c *Chain) Batch(ctx context.Context, inputs []map[string]any) ([]string, error) {
	return batch(ctx, inputs, c.concurrency, c.Invoke)
}

func batch(ctx context.Context, inputs []map[string]any, concurrency int, invoke func(context.Context, map[string]any) (string, error)) ([]string, error) {
	if len(inputs) == 0 {
		return []string{}, nil
	}
	size := min(concurrency, len(inputs))
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		outputs  = make([]string, len(inputs))
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for i, input := range inputs {
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				fail(ctx.Err())
				return
			}
			out, err := invoke(ctx, input)
			if err != nil {
				fail(fmt.Errorf("input %d: %w", i, err))
				return
			}
			outputs[i] = out
		})
		if submitErr != nil {
			wg.Done()
			fail(submitErr)
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return outputs, nil
}

func messageInputs(messages []ai.Message) []map[string]string {
	out := make([]map[string]string, len(messages))
	for i, m := range messages {
		out[i] = map[string]string{"role": string(m.Role), "content": m.Content}
	}
	return out
}

var _ Runnable = (*Chain)(nil)
