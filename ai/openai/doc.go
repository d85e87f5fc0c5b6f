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


// Package openai provides AI service implementations using OpenAI-compatible APIs.
//
// The same client serves three hosted backends:
//
//   - OpenAI itself (provider "openai")
//   - Groq chat completions (provider "groq", https://api.groq.com/openai/v1)
//   - Hugging Face text-embeddings-inference (embedding provider "huggingface")
//
// # Usage
//
//	config := ai.NewConfig(
//	    ai.WithProvider(ai.ProviderGroq),
//	    ai.WithChatHost(""),
//	    ai.WithChatModel("llama-3.1-8b-instant"),
//	    ai.WithChatAPIKey(os.Getenv("GROQ_API")),
//	)
//	chat, err := openai.NewChatModel(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	reply, err := chat.Generate(ctx, messages)
package openai
