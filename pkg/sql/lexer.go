// Package sql provides the lexical SQL checks applied before a statement reaches a driver:
// statement classification, tenant predicate detection, named parameter binding
// and parameter screening.
package sql

import (
	"strings"
)

// TokenKind classifies a lexical token.
type TokenKind int

const (
	TokenSpace TokenKind = iota
	TokenComment
	TokenWord
	TokenQuotedIdent
	TokenString
	TokenNumber
	TokenParam // :name
	TokenPunct
)

// Token is a slice of the input with its kind and byte offset.
type Token struct {
	Kind TokenKind
	Text string
	Pos  int
}

// Significant reports whether the token carries meaning (not whitespace or a comment).
func (t Token) Significant() bool {
	return t.Kind != TokenSpace && t.Kind != TokenComment
}

// IsPunct reports whether the token is the punctuation p.
func (t Token) IsPunct(p string) bool {
	return t.Kind == TokenPunct && t.Text == p
}

// IsWord reports whether the token is the keyword or identifier w, case-insensitively.
func (t Token) IsWord(w string) bool {
	return t.Kind == TokenWord && strings.EqualFold(t.Text, w)
}

// ParamName returns the name of a :name token.
func (t Token) ParamName() string {
	if t.Kind != TokenParam {
		return ""
	}
	return t.Text[1:]
}

// Identifier returns the unquoted identifier text of a word or quoted identifier.
func (t Token) Identifier() string {
	switch t.Kind {
	case TokenWord:
		return t.Text
	case TokenQuotedIdent:
		if len(t.Text) < 2 {
			return t.Text
		}
		q := t.Text[:1]
		inner := t.Text[1 : len(t.Text)-1]
		return strings.ReplaceAll(inner, q+q, q)
	}
	return ""
}

// Tokenize splits s into tokens. Concatenating the Text of every token reproduces s.
// Unterminated strings, identifiers and block comments run to the end of input.
//
// Inside [...] and directly after a number, ":name" is an array slice bound, not a parameter.
func Tokenize(s string) []Token {
	var tokens []Token
	var (
		brackets int
		prev     TokenKind = TokenSpace
	)
	i := 0
	for i < len(s) {
		start := i
		c := s[i]
		var kind TokenKind

		switch {
		case isSpace(c):
			for i < len(s) && isSpace(s[i]) {
				i++
			}
			kind = TokenSpace

		case c == '-' && peek(s, i+1) == '-':
			i = indexFrom(s, i, "\n")
			kind = TokenComment

		case c == '#' && peek(s, i+1) == ' ':
			// mysql line comment
			i = indexFrom(s, i, "\n")
			kind = TokenComment

		case c == '/' && peek(s, i+1) == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				i = len(s)
			} else {
				i = i + 2 + end + 2
			}
			kind = TokenComment

		case c == '\'':
			i = scanQuoted(s, i, '\'', true)
			kind = TokenString

		case c == '"' || c == '`':
			i = scanQuoted(s, i, c, false)
			kind = TokenQuotedIdent

		case c == '$' && dollarTag(s, i) != "":
			tag := dollarTag(s, i)
			end := strings.Index(s[i+len(tag):], tag)
			if end < 0 {
				i = len(s)
			} else {
				i = i + len(tag) + end + len(tag)
			}
			kind = TokenString

		case c == ':' && peek(s, i+1) == ':':
			i += 2
			kind = TokenPunct

		case c == ':' && isIdentStart(peek(s, i+1)) && brackets == 0 && prev != TokenNumber:
			i++
			for i < len(s) && isIdentPart(s[i]) {
				i++
			}
			kind = TokenParam

		case isIdentStart(c):
			for i < len(s) && isIdentPart(s[i]) {
				i++
			}
			kind = TokenWord

		case isDigit(c) || (c == '.' && isDigit(peek(s, i+1))):
			i = scanNumber(s, i)
			kind = TokenNumber

		default:
			i += punctLen(s, i)
			kind = TokenPunct
		}

		tok := Token{Kind: kind, Text: s[start:i], Pos: start}
		switch {
		case tok.IsPunct("["):
			brackets++
		case tok.IsPunct("]") && brackets > 0:
			brackets--
		}
		if tok.Significant() {
			prev = kind
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// SignificantTokens returns the tokens of s without whitespace and comments.
func SignificantTokens(s string) []Token {
	all := Tokenize(s)
	out := all[:0]
	for _, t := range all {
		if t.Significant() {
			out = append(out, t)
		}
	}
	return out
}

func peek(s string, i int) byte {
	if i < len(s) {
		return s[i]
	}
	return 0
}

func indexFrom(s string, i int, sub string) int {
	if j := strings.Index(s[i:], sub); j >= 0 {
		return i + j
	}
	return len(s)
}

// scanQuoted returns the offset after the literal opened at s[i].
// A doubled quote escapes itself; backslash escapes apply to string literals.
func scanQuoted(s string, i int, quote byte, backslash bool) int {
	i++
	for i < len(s) {
		switch s[i] {
		case '\\':
			if backslash {
				i += 2
				continue
			}
		case quote:
			if peek(s, i+1) == quote {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return len(s)
}

// dollarTag returns the $tag$ opening a dollar-quoted string at s[i], or "".
func dollarTag(s string, i int) string {
	j := i + 1
	if j < len(s) && isDigit(s[j]) {
		return ""
	}
	for j < len(s) && isIdentPart(s[j]) && s[j] != '$' {
		j++
	}
	if j < len(s) && s[j] == '$' {
		return s[i : j+1]
	}
	return ""
}

func scanNumber(s string, i int) int {
	for i < len(s) {
		c := s[i]
		switch {
		case isDigit(c) || c == '.':
			i++
		case (c == 'e' || c == 'E') && (isDigit(peek(s, i+1)) || ((peek(s, i+1) == '+' || peek(s, i+1) == '-') && isDigit(peek(s, i+2)))):
			i += 2
		default:
			return i
		}
	}
	return i
}

var twoCharPunct = []string{"<=", ">=", "<>", "!=", "||", "->", "=>", ":="}

func punctLen(s string, i int) int {
	if i+1 < len(s) {
		pair := s[i : i+2]
		for _, p := range twoCharPunct {
			if pair == p {
				return 2
			}
		}
	}
	return 1
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '$'
}
