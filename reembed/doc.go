// Package reembed rebuilds a vector index with a new or updated embedding
// model.
//
// Chunks are read in batches from a source store that can enumerate its
// contents, embedded again and written to a target store. Retries with
// exponential backoff, vector normalization and progress reporting are
// shared with the ingest package.
package reembed
