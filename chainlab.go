// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package chainlab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/poiesic/chainlab/ai"
	"github.com/poiesic/chainlab/ai/cache"
	"github.com/poiesic/chainlab/ai/ollama"
	"github.com/poiesic/chainlab/ai/openai"
	"github.com/poiesic/chainlab/chain"
	"github.com/poiesic/chainlab/config"
	"github.com/poiesic/chainlab/ingest"
	"github.com/poiesic/chainlab/prompt"
	"github.com/poiesic/chainlab/search"
	"github.com/poiesic/chainlab/trace"
	"github.com/poiesic/chainlab/vectorstore"
	"github.com/poiesic/chainlab/vectorstore/badger"
	"github.com/poiesic/chainlab/vectorstore/chroma"
	"github.com/poiesic/chainlab/vectorstore/pgvector"
)

// DefaultCacheTTL is how long vectors stay in a remote embedding cache.
const DefaultCacheTTL = 7 * 24 * time.Hour

// Workspace holds the model clients, embedding cache and tracer built from
// one set of settings.
type Workspace struct {
	settings *config.Settings
	provider ai.AIProvider
	embedder ai.Embedder
	cache    cache.Store
	tracer   *trace.Tracer
	logger   *slog.Logger
}

// Option configures Open.
type Option func(*options)

type options struct {
	purposes []config.Purpose
	provider ai.AIProvider
	sink     trace.Sink
	logger   *slog.Logger
}

// WithPurposes sets which services Open prepares. Default is chat only.
// Tracing prerequisites are always checked when tracing is switched on.
func WithPurposes(purposes ...config.Purpose) Option {
	return func(o *options) {
		o.purposes = purposes
	}
}

// WithProvider supplies ready-made model clients instead of building them
// from the settings.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *options) {
		o.provider = provider
	}
}

// WithTraceSink replaces the sink chosen from the settings.
func WithTraceSink(sink trace.Sink) Option {
	return func(o *options) {
		o.sink = sink
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Open checks that settings provide every variable the requested purposes
// need, then builds the model clients, embedding cache and tracer. Nothing
// contacts an external service before the checks pass.
func Open(ctx context.Context, settings *config.Settings, opts ...Option) (*Workspace, error) {
	o := &options{
		purposes: []config.Purpose{config.PurposeChat},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	required := append(slices.Clone(o.purposes), config.PurposeTracing)
	if err := settings.RequireFor(required...); err != nil {
		return nil, err
	}

	w := &Workspace{settings: settings, logger: o.logger}

	provider := o.provider
	if provider == nil {
		var err error
		provider, err = newProvider(settings, o.purposes)
		if err != nil {
			return nil, err
		}
	}
	w.provider = provider
	w.embedder = provider.Embedder()

	if w.embedder != nil && slices.Contains(o.purposes, config.PurposeEmbedding) {
		store, err := openCache(ctx, settings.CacheAddr)
		if err != nil {
			w.Close()
			return nil, err
		}
		w.cache = store
		w.embedder = cache.NewCachedEmbedder(w.embedder, store, settings.EmbeddingModel)
	}

	if settings.TracingEnabled() || o.sink != nil {
		tracer, err := newTracer(settings, o.sink, o.logger)
		if err != nil {
			w.Close()
			return nil, err
		}
		w.tracer = tracer
	}
	return w, nil
}

// newProvider builds only the clients the purposes call for. The unused
// side of the configuration is reset to defaults so it cannot fail validation.
func newProvider(settings *config.Settings, purposes []config.Purpose) (ai.AIProvider, error) {
	wantChat := slices.Contains(purposes, config.PurposeChat)
	wantEmbedding := slices.Contains(purposes, config.PurposeEmbedding)

	cfg := settings.AIConfig()
	if !wantEmbedding {
		cfg.EmbeddingProvider, cfg.EmbeddingHost, cfg.EmbeddingModel = ai.ProviderOllama, "", ai.DefaultEmbeddingModel
	}
	if !wantChat {
		cfg.Provider, cfg.ChatHost = ai.ProviderOllama, ""
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		chat     ai.ChatModel
		embedder ai.Embedder
		err      error
	)
	if wantChat {
		if cfg.Provider == ai.ProviderOllama {
			chat, err = ollama.NewChatModel(cfg)
		} else {
			chat, err = openai.NewChatModel(cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("chat model: %w", err)
		}
	}
	if wantEmbedding {
		if cfg.EmbeddingProvider == ai.ProviderOllama {
			embedder, err = ollama.NewEmbedder(cfg)
		} else {
			embedder, err = openai.NewEmbedder(cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("embedder: %w", err)
		}
	}
	return ai.Combine(chat, embedder), nil
}

func openCache(ctx context.Context, addr string) (cache.Store, error) {
	if addr == "" {
		return cache.NewMemoryStore(), nil
	}
	store, err := cache.Dial(ctx, addr, DefaultCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	return store, nil
}

func newTracer(settings *config.Settings, sink trace.Sink, logger *slog.Logger) (*trace.Tracer, error) {
	if sink == nil {
		if settings.TraceNATSURL != "" {
			nats, err := trace.DialNATS(settings.TraceNATSURL, settings.LangchainProject)
			if err != nil {
				return nil, fmt.Errorf("trace sink: %w", err)
			}
			sink = nats
		} else {
			sink = trace.NewLangSmithSink(settings.LangchainEndpoint, settings.LangchainAPIKey)
		}
	}
	// runs are also logged at debug level
	sink = trace.MultiSink{sink, trace.NewLogSink(logger)}
	async, err := trace.NewAsyncSink(sink, 4)
	if err != nil {
		sink.Close()
		return nil, err
	}
	return trace.New(settings.LangchainProject, async, trace.WithLogger(logger)), nil
}

// Settings returns the settings the workspace was opened with.
func (w *Workspace) Settings() *config.Settings {
	return w.settings
}

// ChatModel returns the chat model, or nil when chat was not requested.
func (w *Workspace) ChatModel() ai.ChatModel {
	return w.provider.ChatModel()
}

// Embedder returns the embedder, wrapped in the embedding cache, or nil
// when embeddings were not requested.
func (w *Workspace) Embedder() ai.Embedder {
	return w.embedder
}

// Tracer returns the tracer, or nil when tracing is off.
func (w *Workspace) Tracer() *trace.Tracer {
	return w.tracer
}

// NewChain pipes tmpl into the workspace chat model.
func (w *Workspace) NewChain(tmpl *prompt.Template, opts ...chain.Option) (*chain.Chain, error) {
	base := []chain.Option{chain.WithTracer(w.tracer), chain.WithLogger(w.logger)}
	return chain.New(tmpl, w.provider.ChatModel(), append(base, opts...)...)
}

// OpenStore opens the vector store of the given kind. location is a badger
// directory, a Chroma URL or a Postgres DSN; empty falls back to the
// settings or the store default.
func (w *Workspace) OpenStore(ctx context.Context, kind, location string) (vectorstore.Store, error) {
	k, err := vectorstore.ParseKind(kind)
	if err != nil {
		return nil, err
	}

	switch k {
	case vectorstore.KindChroma:
		if location == "" {
			location = w.settings.ChromaURL
		}
		opts := []chroma.Option{chroma.WithLogger(w.logger)}
		if location != "" {
			opts = append(opts, chroma.WithURL(location))
		}
		return chroma.Open(ctx, opts...)
	case vectorstore.KindPgvector:
		if location == "" {
			location = w.settings.PostgresDSN
		}
		if location == "" {
			return nil, &config.MissingError{Names: []string{"CHAINLAB_PG_DSN"}}
		}
		return pgvector.Open(ctx, location, pgvector.WithLogger(w.logger))
	default:
		return badger.Open(location, badger.WithLogger(w.logger))
	}
}

// NewIndexer creates an indexer writing to store with the workspace embedder.
func (w *Workspace) NewIndexer(store vectorstore.Store, opts ...ingest.Option) (*ingest.Indexer, error) {
	base := []ingest.Option{ingest.WithLogger(w.logger)}
	return ingest.NewIndexer(store, w.embedder, w.settings.EmbeddingModel, append(base, opts...)...)
}

// NewSearcher creates a searcher over store with the workspace embedder.
func (w *Workspace) NewSearcher(store vectorstore.Store, opts ...search.Option) (*search.Searcher, error) {
	base := []search.Option{search.WithModel(w.settings.EmbeddingModel), search.WithLogger(w.logger)}
	return search.NewSearcher(store, w.embedder, append(base, opts...)...)
}

// NewRetrieval creates a chain answering questions from the k chunks of
// store most similar to each question.
func (w *Workspace) NewRetrieval(store vectorstore.Store, k int, opts ...chain.Option) (*chain.Retrieval, error) {
	searcher, err := w.NewSearcher(store)
	if err != nil {
		return nil, err
	}
	base := []chain.Option{chain.WithTracer(w.tracer), chain.WithLogger(w.logger)}
	return chain.NewRetrieval(w.provider.ChatModel(), searcher, k, append(base, opts...)...)
}

// Close flushes pending traces and releases the cache and model clients.
func (w *Workspace) Close() error {
	var errs []error
	if err := w.tracer.Close(); err != nil {
		w.logger.Error("error closing tracer", "err", err)
		errs = append(errs, err)
	}
	if w.cache != nil {
		if err := w.cache.Close(); err != nil {
			w.logger.Error("error closing embedding cache", "err", err)
			errs = append(errs, err)
		}
	}
	if w.provider != nil {
		if err := w.provider.Close(); err != nil {
			w.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
