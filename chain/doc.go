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


// Package chain runs prompt pipelines: a template is formatted with the
// caller's input, sent to a chat model, and the reply is passed through an
// output parser.
//
// A Chain holds no per-call state, so one value can serve concurrent
// invocations. Batch runs several inputs on a bounded worker pool and returns
// outputs in input order. Retrieval prepends a similarity search whose hits
// fill the {context} placeholder of the RetrievalQA prompt.
//
//	c, err := chain.New(prompt.Assistant(), provider.ChatModel(),
//	    chain.WithTracer(tracer))
//	answer, err := c.Invoke(ctx, map[string]any{"question": "What is LCEL?"})
package chain
