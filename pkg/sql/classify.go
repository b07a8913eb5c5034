package sql

import (
	"strings"
)

// readOnlyKeywords are the leading keywords of statements allowed under a read-only policy.
var readOnlyKeywords = map[string]bool{
	"select":   true,
	"with":     true,
	"show":     true,
	"describe": true,
	"explain":  true,
}

// StripComments removes line and block comments outside literals.
// Each comment is replaced by a single space so adjacent tokens stay separated.
func StripComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, t := range Tokenize(s) {
		if t.Kind == TokenComment {
			b.WriteByte(' ')
			continue
		}
		b.WriteString(t.Text)
	}
	return b.String()
}

// FirstKeyword returns the lower-cased first keyword of a statement, ignoring comments,
// whitespace and opening parentheses. It returns "" when the statement does not start with a word.
func FirstKeyword(s string) string {
	for _, t := range Tokenize(s) {
		if !t.Significant() || t.IsPunct("(") {
			continue
		}
		if t.Kind == TokenWord {
			return strings.ToLower(t.Text)
		}
		return ""
	}
	return ""
}

// IsReadOnly reports whether the statement starts with a read-only keyword
// and returns the keyword that was inspected.
//
// The check is lexical. A data-modifying CTE (WITH x AS (DELETE ...) SELECT ...) passes;
// read-only enforcement at the database is still expected for untrusted callers.
func IsReadOnly(s string) (bool, string) {
	kw := FirstKeyword(s)
	return readOnlyKeywords[kw], kw
}

// HasTopLevelKeyword reports whether any of words appears as a keyword outside parentheses.
func HasTopLevelKeyword(s string, words ...string) bool {
	depth := 0
	for _, t := range SignificantTokens(s) {
		switch {
		case t.IsPunct("("):
			depth++
		case t.IsPunct(")"):
			depth--
		case depth == 0 && t.Kind == TokenWord:
			for _, w := range words {
				if t.IsWord(w) {
					return true
				}
			}
		}
	}
	return false
}
