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


// Package server exposes runnables over HTTP.
//
// Each runnable registered under a path gets four routes:
//
//	POST /{path}/invoke        {"input": {...}}      -> {"output": "..."}
//	POST /{path}/batch         {"inputs": [{...}]}   -> {"output": ["..."]}
//	POST /{path}/stream        {"input": {...}}      -> text/event-stream
//	GET  /{path}/input_schema                        -> JSON schema of the input
//
// Stream responses carry one "data" event per text fragment, each a JSON
// string, followed by a final "end" event. A failure after streaming has
// begun is reported as an "error" event. GET /health reports liveness.
package server
