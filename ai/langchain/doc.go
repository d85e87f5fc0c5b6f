// Package langchain adapts langchaingo model clients to the ai interfaces.
//
// Both the Ollama and the OpenAI-compatible providers build a langchaingo
// llms.Model and hand it to NewChatModel; embedding clients are wrapped by
// NewEmbedder. Keeping the conversion here means the provider packages only
// deal with client construction.
package langchain
