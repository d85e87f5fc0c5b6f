package ai

import "errors"

var (
	// ErrInvalidConfig indicates a provider configuration is incomplete.
	ErrInvalidConfig = errors.New("ai config")

	// ErrUnknownProvider indicates an unsupported provider name.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrEmptyResponse indicates the model returned no choices.
	ErrEmptyResponse = errors.New("model returned no output")
)
