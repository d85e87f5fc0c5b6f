package chain

import "errors"

var (
	// ErrTemplateRequired is returned when New is called without a template.
	ErrTemplateRequired = errors.New("prompt template required")

	// ErrModelRequired is returned when New is called without a chat model.
	ErrModelRequired = errors.New("chat model required")

	// ErrRetrieverRequired is returned when NewRetrieval is called without a retriever.
	ErrRetrieverRequired = errors.New("retriever required")

	// ErrEmptyInput indicates a required input was blank.
	ErrEmptyInput = errors.New("input must not be empty")
)
