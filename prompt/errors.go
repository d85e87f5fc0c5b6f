package prompt

import "errors"

var (
	// ErrMissingVariable indicates Format was called without a value for a placeholder.
	ErrMissingVariable = errors.New("missing template variable")

	// ErrInvalidTemplate indicates malformed placeholder syntax or an empty template.
	ErrInvalidTemplate = errors.New("invalid template")

	// ErrUnknownRole indicates a message role other than system, human or ai.
	ErrUnknownRole = errors.New("unknown message role")
)
