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


// Package ingest turns a directory of text files into an embedded index.
//
// The Indexer drives the pipeline:
//   - LoadDocuments finds files with a doublestar glob and reads them
//     through the langchaingo text loader
//   - a recursive character splitter cuts each document into chunks
//   - chunk texts are embedded in batches on a worker pool, with
//     exponential backoff retries per batch
//   - the vectors are checked for a single dimension that agrees with the
//     store's manifest, then written
//
// Watch keeps an index current by re-indexing files as they change.
package ingest
