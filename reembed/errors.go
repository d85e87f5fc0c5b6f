package reembed

import "errors"

var (
	// ErrSameStore is returned when source and target are the same store.
	// An index holds vectors from one model only, so it cannot be rebuilt in place.
	ErrSameStore = errors.New("source and target must be different stores")

	// ErrTargetNotEmpty is returned when the target already holds chunks
	// from a different model or dimension.
	ErrTargetNotEmpty = errors.New("target store already holds incompatible chunks")
)
