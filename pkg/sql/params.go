package sql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
)

// PlaceholderStyle is the positional bind syntax a driver understands.
type PlaceholderStyle int

const (
	// PlaceholderDollar renders $1, $2 and reuses the index for repeated names (postgres, duckdb).
	PlaceholderDollar PlaceholderStyle = iota
	// PlaceholderQuestion renders ? once per occurrence (mysql, sqlite).
	PlaceholderQuestion
	// PlaceholderAtP renders @p1, @p2 and reuses the index for repeated names (sqlserver).
	PlaceholderAtP
	// PlaceholderColon renders :1, :2 once per occurrence (oracle).
	PlaceholderColon
)

func (s PlaceholderStyle) String() string {
	switch s {
	case PlaceholderDollar:
		return "dollar"
	case PlaceholderQuestion:
		return "question"
	case PlaceholderAtP:
		return "at_p"
	case PlaceholderColon:
		return "colon"
	}
	return "unknown"
}

// reusesIndex reports whether a repeated name can bind to one argument.
func (s PlaceholderStyle) reusesIndex() bool {
	return s == PlaceholderDollar || s == PlaceholderAtP
}

func (s PlaceholderStyle) render(n int) string {
	switch s {
	case PlaceholderQuestion:
		return "?"
	case PlaceholderAtP:
		return "@p" + strconv.Itoa(n)
	case PlaceholderColon:
		return ":" + strconv.Itoa(n)
	}
	return "$" + strconv.Itoa(n)
}

// NamedParameters returns the :name markers of a statement in order of first appearance.
// Markers inside literals and comments, and :: casts, are not parameters.
func NamedParameters(sqlQuery string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, t := range Tokenize(sqlQuery) {
		if t.Kind != TokenParam {
			continue
		}
		name := t.ParamName()
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// BindNamed rewrites :name markers to style and returns the positional arguments.
// A marker without a value fails with apperrors.ErrMissingParameter; values that are
// never referenced are ignored.
func BindNamed(sqlQuery string, values map[string]any, style PlaceholderStyle) (string, []any, error) {
	var (
		b       strings.Builder
		args    []any
		indexes = make(map[string]int)
	)
	b.Grow(len(sqlQuery))

	for _, t := range Tokenize(sqlQuery) {
		if t.Kind != TokenParam {
			b.WriteString(t.Text)
			continue
		}
		name := t.ParamName()
		value, ok := values[name]
		if !ok {
			return "", nil, fmt.Errorf("%w: :%s", apperrors.ErrMissingParameter, name)
		}
		if style.reusesIndex() {
			if n, seen := indexes[name]; seen {
				b.WriteString(style.render(n))
				continue
			}
		}
		args = append(args, value)
		indexes[name] = len(args)
		b.WriteString(style.render(len(args)))
	}
	return b.String(), args, nil
}
