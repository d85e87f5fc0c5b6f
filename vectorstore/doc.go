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


// Package vectorstore defines the persisted index chunks are embedded into.
//
// An index holds chunks of one embedding model and one vector dimension.
// The Manifest records both, and every write is checked against it so a
// store never mixes vectors from different models.
//
// # Backends
//
//   - vectorstore/badger: a local directory (faiss_index/ by default)
//     that can be reopened and queried without re-embedding anything
//   - vectorstore/chroma: a Chroma collection reached over HTTP
//   - vectorstore/pgvector: a Postgres table with a vector column
//
// # Usage
//
//	store, err := badger.Open("faiss_index")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	results, err := store.Search(ctx, &core.Query{Vector: v, Limit: 4})
//
// # Thread Safety
//
// All implementations must be thread-safe and support concurrent access
// from multiple goroutines.
package vectorstore
