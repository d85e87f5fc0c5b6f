package chain

import (
	"fmt"

	"github.com/tmc/langchaingo/outputparser"
)

// Parser turns raw model output into the chain's result.
type Parser interface {
	Parse(text string) (string, error)
}

// StringParser returns the model's text with surrounding whitespace removed.
type StringParser struct {
	inner outputparser.Simple
}

func NewStringParser() StringParser {
	return StringParser{inner: outputparser.NewSimple()}
}

func (p StringParser) Parse(text string) (string, error) {
	out, err := p.inner.Parse(text)
	if err != nil {
		return "", err
	}
	if s, ok := any(out).(string); ok {
		return s, nil
	}
	return fmt.Sprint(out), nil
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(text string) (string, error)

func (f ParserFunc) Parse(text string) (string, error) {
	return f(text)
}
