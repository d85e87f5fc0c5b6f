package config

import (
	"errors"
	"strings"
)

var (
	// ErrMissingVariable indicates a required environment variable is unset.
	ErrMissingVariable = errors.New("missing required variable")

	// ErrConfigFile indicates the env file could not be read or parsed.
	ErrConfigFile = errors.New("cannot read config file")
)

// MissingError lists every required variable that is absent.
type MissingError struct {
	Names []string
}

func (e *MissingError) Error() string {
	return ErrMissingVariable.Error() + ": " + strings.Join(e.Names, ", ")
}

func (e *MissingError) Unwrap() error {
	return ErrMissingVariable
}
