package config

import (
	"fmt"
	"sort"

	"github.com/poiesic/chainlab/ai"
)

// Purpose names an operation whose prerequisites RequireFor checks.
type Purpose int

const (
	PurposeChat Purpose = iota
	PurposeEmbedding
	PurposeTracing
)

func (p Purpose) String() string {
	switch p {
	case PurposeChat:
		return "chat"
	case PurposeEmbedding:
		return "embedding"
	case PurposeTracing:
		return "tracing"
	}
	return fmt.Sprintf("purpose(%d)", int(p))
}

// RequireFor fails with a *MissingError when any variable needed for the
// given purposes is empty. It never contacts an external service, so callers
// run it before building clients.
func (s *Settings) RequireFor(purposes ...Purpose) error {
	missing := map[string]bool{}
	need := func(name, value string) {
		if value == "" {
			missing[name] = true
		}
	}

	for _, p := range purposes {
		switch p {
		case PurposeChat:
			switch s.Provider {
			case ai.ProviderOpenAI:
				need("OPENAI_API_KEY", s.OpenAIAPIKey)
			case ai.ProviderGroq:
				need("GROQ_API", s.GroqAPIKey)
			}
		case PurposeEmbedding:
			need("EMBEDDING_MODEL", s.EmbeddingModel)
			switch s.EmbeddingProvider {
			case ai.ProviderOpenAI:
				need("OPENAI_API_KEY", s.OpenAIAPIKey)
			case ai.ProviderHuggingFace:
				need("HF_TOKEN", s.HFToken)
				need("HF_EMBEDDING_HOST", s.HFEmbeddingHost)
			}
		case PurposeTracing:
			if !s.TracingEnabled() {
				continue
			}
			need("LANGCHAIN_PROJECT", s.LangchainProject)
			if s.TraceNATSURL == "" {
				need("LANGCHAIN_API_KEY", s.LangchainAPIKey)
			}
		}
	}

	if len(missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(missing))
	for name := range missing {
		names = append(names, name)
	}
	sort.Strings(names)
	return &MissingError{Names: names}
}
