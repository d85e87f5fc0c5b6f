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


package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/poiesic/chainlab/ai"
	"github.com/spf13/viper"
)

// DefaultEnvFile is read by Load when no other file is given.
const DefaultEnvFile = ".env"

// DefaultLangSmithEndpoint receives trace runs when LANGCHAIN_ENDPOINT is unset.
const DefaultLangSmithEndpoint = "https://api.smith.langchain.com"

// Settings is the process configuration. It is populated once by Load and
// treated as read-only afterwards.
type Settings struct {
	OpenAIAPIKey      string `mapstructure:"openai_api_key"`
	OpenAIBaseURL     string `mapstructure:"openai_base_url"`
	LangchainAPIKey   string `mapstructure:"langchain_api_key"`
	LangchainProject  string `mapstructure:"langchain_project"`
	LangchainTracing  string `mapstructure:"langchain_tracing_v2"`
	LangchainEndpoint string `mapstructure:"langchain_endpoint"`
	HFToken           string `mapstructure:"hf_token"`
	HFEmbeddingHost   string `mapstructure:"hf_embedding_host"`
	GroqAPIKey        string `mapstructure:"groq_api"`
	EmbeddingModel    string `mapstructure:"embedding_model"`

	Provider          string `mapstructure:"chainlab_provider"`
	ChatModel         string `mapstructure:"chainlab_chat_model"`
	EmbeddingProvider string `mapstructure:"chainlab_embedding_provider"`
	OllamaHost        string `mapstructure:"ollama_host"`
	CacheAddr         string `mapstructure:"chainlab_cache_addr"`
	TraceNATSURL      string `mapstructure:"chainlab_trace_nats_url"`
	ChromaURL         string `mapstructure:"chroma_url"`
	PostgresDSN       string `mapstructure:"chainlab_pg_dsn"`
}

// variables maps every recognised environment variable to its viper key.
var variables = []string{
	"OPENAI_API_KEY",
	"OPENAI_BASE_URL",
	"LANGCHAIN_API_KEY",
	"LANGCHAIN_PROJECT",
	"LANGCHAIN_TRACING_V2",
	"LANGCHAIN_ENDPOINT",
	"HF_TOKEN",
	"HF_EMBEDDING_HOST",
	"GROQ_API",
	"EMBEDDING_MODEL",
	"CHAINLAB_PROVIDER",
	"CHAINLAB_CHAT_MODEL",
	"CHAINLAB_EMBEDDING_PROVIDER",
	"OLLAMA_HOST",
	"CHAINLAB_CACHE_ADDR",
	"CHAINLAB_TRACE_NATS_URL",
	"CHROMA_URL",
	"CHAINLAB_PG_DSN",
}

// Load reads settings from defaults, then the dotenv file at envFile, then
// the process environment, each overriding the previous. A missing envFile
// is not an error; an unreadable or malformed one is.
func Load(envFile string) (*Settings, error) {
	v := viper.New()

	v.SetDefault("langchain_endpoint", DefaultLangSmithEndpoint)
	v.SetDefault("embedding_model", ai.DefaultEmbeddingModel)
	v.SetDefault("chainlab_provider", ai.ProviderOllama)
	v.SetDefault("chainlab_embedding_provider", ai.ProviderOllama)
	v.SetDefault("ollama_host", ai.DefaultOllamaHost)

	for _, name := range variables {
		v.BindEnv(strings.ToLower(name), name)
	}

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrConfigFile, envFile, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %w", ErrConfigFile, envFile, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigFile, err)
	}
	s.trim()
	return &s, nil
}

func (s *Settings) trim() {
	s.Provider = strings.ToLower(strings.TrimSpace(s.Provider))
	s.EmbeddingProvider = strings.ToLower(strings.TrimSpace(s.EmbeddingProvider))
	s.EmbeddingModel = strings.TrimSpace(s.EmbeddingModel)
	s.ChatModel = strings.TrimSpace(s.ChatModel)
}

// TracingEnabled reports whether LANGCHAIN_TRACING_V2 switches tracing on.
func (s *Settings) TracingEnabled() bool {
	switch strings.ToLower(strings.TrimSpace(s.LangchainTracing)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// ChatModelName returns the configured chat model or the provider default.
func (s *Settings) ChatModelName() string {
	if s.ChatModel != "" {
		return s.ChatModel
	}
	switch s.Provider {
	case ai.ProviderGroq:
		return "llama-3.1-8b-instant"
	case ai.ProviderOpenAI:
		return "gpt-4o-mini"
	}
	return ai.DefaultChatModel
}

// AIConfig translates the settings into a provider configuration.
func (s *Settings) AIConfig() *ai.Config {
	cfg := ai.NewConfig(
		ai.WithProvider(s.Provider),
		ai.WithEmbeddingProvider(s.EmbeddingProvider),
		ai.WithChatModel(s.ChatModelName()),
		ai.WithEmbeddingModel(s.EmbeddingModel),
	)

	cfg.ChatHost, cfg.ChatAPIKey = s.endpoint(s.Provider)
	cfg.EmbeddingHost, cfg.EmbeddingAPIKey = s.endpoint(s.EmbeddingProvider)
	return cfg
}

func (s *Settings) endpoint(provider string) (host, key string) {
	switch provider {
	case ai.ProviderOpenAI:
		return s.OpenAIBaseURL, s.OpenAIAPIKey
	case ai.ProviderGroq:
		return "", s.GroqAPIKey
	case ai.ProviderHuggingFace:
		return s.HFEmbeddingHost, s.HFToken
	}
	return s.OllamaHost, ""
}
