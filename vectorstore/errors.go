package vectorstore

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch indicates vectors of different lengths in one index.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrModelMismatch indicates chunks embedded by a model other than the index's.
	ErrModelMismatch = errors.New("embedding model mismatch")

	// ErrStoreClosed indicates that the store is closed.
	ErrStoreClosed = errors.New("store is closed")

	// ErrUnknownKind indicates an unsupported store kind.
	ErrUnknownKind = errors.New("unknown store kind")
)

// DimensionError reports the dimensions involved in a mismatch.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s: index has %d, got %d", ErrDimensionMismatch, e.Want, e.Got)
}

func (e *DimensionError) Unwrap() error {
	return ErrDimensionMismatch
}
