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


// Package ai provides abstractions for the model services used by chainlab.
//
// The package defines three interfaces:
//
//   - Embedder: Generates vector embeddings from text
//   - ChatModel: Generates text from chat messages, optionally streaming
//   - AIProvider: Aggregates both services for convenient initialization
//
// # Implementation Packages
//
//   - ai/ollama: locally hosted models served by Ollama
//   - ai/openai: OpenAI, Groq and Hugging Face text-embeddings-inference
//     endpoints, all of which speak the OpenAI wire format
//   - ai/langchain: adapters from langchaingo clients to the interfaces above,
//     shared by ai/ollama and ai/openai
//   - ai/cache: an Embedder decorator that memoizes vectors in Valkey
//   - ai/mock: test doubles
//
// Public constructors return interface types (ai.AIProvider, ai.Embedder).
// Mock constructors return concrete types so tests can inspect call counts
// and inject behavior.
//
// # Usage Example
//
//	cfg := ai.NewConfig(ai.WithChatModel("gemma3:1b"))
//	provider, err := ollama.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	reply, err := provider.ChatModel().Generate(ctx, []ai.Message{
//	    {Role: ai.RoleHuman, Content: "Hello"},
//	})
package ai
