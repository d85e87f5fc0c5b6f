package search

import (
	"strings"
	"unicode"

	"github.com/poiesic/chainlab/core"
)

// stopWords never count as keywords.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true,
}

// keywords splits text on anything that is not a letter or digit, so markdown
// markup, code identifiers and path separators all break words apart.
func keywords(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	words := fields[:0]
	for _, field := range fields {
		word := strings.ToLower(field)
		if !stopWords[word] {
			words = append(words, word)
		}
	}
	return words
}

// matchesKeywords reports whether every keyword of query appears in the
// chunk's content or in its source path.
func matchesKeywords(chunk *core.Chunk, query string) bool {
	wanted := keywords(query)
	if len(wanted) == 0 {
		return false
	}

	have := make(map[string]struct{})
	for _, word := range keywords(chunk.Content) {
		have[word] = struct{}{}
	}
	for _, word := range keywords(chunk.Source) {
		have[word] = struct{}{}
	}

	for _, word := range wanted {
		if _, ok := have[word]; !ok {
			return false
		}
	}
	return true
}
