// Package expander replaces a typed trigger with its snippet content.
package expander

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/example/clipswift/internal/domain/entitlement"
	"github.com/example/clipswift/internal/domain/snippet"
)

// Result is the outcome of a successful expansion.
type Result struct {
	Text    string
	Cursor  int // rune offset just past the inserted content
	Snippet snippet.Snippet
}

// Engine matches the trailing token of an input against a cached snippet
// list. It never mutates the list it is given.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Expand replaces the trailing whitespace-delimited token of text with the
// content of the first usable snippet whose trigger equals it exactly.
// Built-ins are tried before user snippets; within each group list order wins.
func (e *Engine) Expand(text string, snippets []snippet.Snippet) (Result, bool) {
	prefix, token := splitTrailing(text)
	if token == "" {
		return Result{}, false
	}

	s, ok := lookup(token, snippets)
	if !ok {
		return Result{}, false
	}

	out := prefix + s.Content
	return Result{
		Text:    out,
		Cursor:  utf8.RuneCountInString(out),
		Snippet: s,
	}, true
}

// ShouldCheck is the cheap test run on every keystroke: it reports whether
// the trailing token names any trigger, usable or not.
func (e *Engine) ShouldCheck(text string, snippets []snippet.Snippet) bool {
	_, token := splitTrailing(text)
	if token == "" {
		return false
	}
	for _, s := range snippets {
		if s.Trigger == token {
			return true
		}
	}
	return false
}

func lookup(token string, snippets []snippet.Snippet) (snippet.Snippet, bool) {
	for _, s := range snippets {
		if s.IsBuiltIn && s.Trigger == token {
			return s, true
		}
	}
	for _, s := range snippets {
		if !s.IsBuiltIn && s.Trigger == token && entitlement.Usable(s) {
			return s, true
		}
	}
	return snippet.Snippet{}, false
}

// splitTrailing cuts text after its last whitespace rune. Text that ends in
// whitespace has an empty trailing token.
func splitTrailing(text string) (prefix, token string) {
	i := strings.LastIndexFunc(text, unicode.IsSpace)
	if i < 0 {
		return "", text
	}
	_, size := utf8.DecodeRuneInString(text[i:])
	return text[:i+size], text[i+size:]
}
