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


package ai

import (
	"fmt"
	"strings"
)

// Supported provider names.
const (
	ProviderOllama      = "ollama"
	ProviderOpenAI      = "openai"
	ProviderGroq        = "groq"
	ProviderHuggingFace = "huggingface"
)

// Default endpoints and models.
const (
	DefaultOllamaHost     = "http://localhost:11434"
	DefaultOpenAIHost     = "https://api.openai.com/v1"
	DefaultGroqHost       = "https://api.groq.com/openai/v1"
	DefaultChatModel      = "gemma3:1b"
	DefaultEmbeddingModel = "all-minilm"
)

// Config holds configuration for AI service providers.
type Config struct {
	// Provider selects the chat model backend.
	// One of "ollama", "openai" or "groq".
	Provider string

	// EmbeddingProvider selects the embedding backend.
	// One of "ollama", "openai" or "huggingface".
	EmbeddingProvider string

	// ChatHost is the base URL of the chat service.
	// Example: "http://localhost:11434" for Ollama, "https://api.groq.com/openai/v1" for Groq
	ChatHost string

	// EmbeddingHost is the base URL of the embedding service.
	EmbeddingHost string

	// ChatModel is the model identifier used for generation.
	// Example: "gemma3:1b", "llama-3.1-8b-instant"
	ChatModel string

	// EmbeddingModel is the model identifier used for text embeddings.
	// Example: "all-minilm", "text-embedding-3-small"
	EmbeddingModel string

	// ChatAPIKey authenticates against hosted chat services.
	ChatAPIKey string

	// EmbeddingAPIKey authenticates against hosted embedding services.
	EmbeddingAPIKey string

	// Temperature is passed to the chat model on every call.
	// Default: 0
	Temperature float64
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithProvider sets the chat provider.
func WithProvider(provider string) ConfigOption {
	return func(c *Config) {
		c.Provider = provider
	}
}

// WithEmbeddingProvider sets the embedding provider.
func WithEmbeddingProvider(provider string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingProvider = provider
	}
}

// WithChatHost sets the chat service host URL.
func WithChatHost(host string) ConfigOption {
	return func(c *Config) {
		c.ChatHost = host
	}
}

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithHost sets both chat and embedding hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.ChatHost = host
		c.EmbeddingHost = host
	}
}

// WithChatModel sets the chat model identifier.
func WithChatModel(model string) ConfigOption {
	return func(c *Config) {
		c.ChatModel = model
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithChatAPIKey sets the API key used by the chat provider.
func WithChatAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.ChatAPIKey = key
	}
}

// WithEmbeddingAPIKey sets the API key used by the embedding provider.
func WithEmbeddingAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingAPIKey = key
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) ConfigOption {
	return func(c *Config) {
		c.Temperature = t
	}
}

// DefaultConfig returns a Config targeting a local Ollama server for both
// chat and embeddings.
func DefaultConfig() *Config {
	return &Config{
		Provider:          ProviderOllama,
		EmbeddingProvider: ProviderOllama,
		ChatHost:          DefaultOllamaHost,
		EmbeddingHost:     DefaultOllamaHost,
		ChatModel:         DefaultChatModel,
		EmbeddingModel:    DefaultEmbeddingModel,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithProvider(ProviderGroq),
//	    WithChatHost(""), // filled with the Groq endpoint by Normalize
//	    WithChatModel("llama-3.1-8b-instant"),
//	    WithChatAPIKey(os.Getenv("GROQ_API")),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// IsOpenAICompatible reports whether provider speaks the OpenAI wire format.
func IsOpenAICompatible(provider string) bool {
	switch provider {
	case ProviderOpenAI, ProviderGroq, ProviderHuggingFace:
		return true
	}
	return false
}

func defaultHost(provider string) string {
	switch provider {
	case ProviderOllama:
		return DefaultOllamaHost
	case ProviderOpenAI:
		return DefaultOpenAIHost
	case ProviderGroq:
		return DefaultGroqHost
	}
	return ""
}

// normalizeHost puts a host URL into the form the provider's client expects.
// OpenAI-compatible endpoints end with /v1, Ollama endpoints do not.
func normalizeHost(provider, host string) string {
	if host == "" {
		return defaultHost(provider)
	}
	host = strings.TrimSuffix(host, "/")
	if IsOpenAICompatible(provider) {
		if !strings.HasSuffix(host, "/v1") {
			host += "/v1"
		}
		return host
	}
	if provider == ProviderOllama {
		host = strings.TrimSuffix(host, "/v1")
	}
	return host
}

// Normalize ensures the configuration is in a canonical form.
// Empty providers fall back to Ollama and empty hosts to the provider's
// default endpoint.
func (c *Config) Normalize() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.EmbeddingProvider = strings.ToLower(strings.TrimSpace(c.EmbeddingProvider))
	if c.Provider == "" {
		c.Provider = ProviderOllama
	}
	if c.EmbeddingProvider == "" {
		c.EmbeddingProvider = ProviderOllama
	}
	c.ChatHost = normalizeHost(c.Provider, c.ChatHost)
	c.EmbeddingHost = normalizeHost(c.EmbeddingProvider, c.EmbeddingHost)
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	switch c.Provider {
	case ProviderOllama, ProviderOpenAI, ProviderGroq:
	default:
		return fmt.Errorf("%w: chat provider %q", ErrUnknownProvider, c.Provider)
	}
	switch c.EmbeddingProvider {
	case ProviderOllama, ProviderOpenAI, ProviderHuggingFace:
	default:
		return fmt.Errorf("%w: embedding provider %q", ErrUnknownProvider, c.EmbeddingProvider)
	}

	if c.ChatHost == "" {
		return fmt.Errorf("%w: ChatHost is required", ErrInvalidConfig)
	}
	if c.EmbeddingHost == "" {
		return fmt.Errorf("%w: EmbeddingHost is required", ErrInvalidConfig)
	}
	if c.ChatModel == "" {
		return fmt.Errorf("%w: ChatModel is required", ErrInvalidConfig)
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("%w: EmbeddingModel is required", ErrInvalidConfig)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: Temperature must be between 0 and 2", ErrInvalidConfig)
	}
	return nil
}
