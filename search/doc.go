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


// Package search provides similarity search over a vector store.
//
// The Searcher embeds a query with the same model used to build the index,
// checks the vector against the index manifest and ranks the stored chunks
// by cosine similarity. An optional keyword boost lifts chunks that contain
// every significant query word.
//
// A Searcher satisfies chain.Retriever, so it can back a retrieval chain.
package search
