package sql

import (
	"errors"
	"strings"
)

var (
	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
)

// ValidationResult contains the normalized SQL and any validation errors.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateAndNormalize trims the statement, strips trailing semicolons and comments,
// and reports ErrMultipleStatements when a separator remains.
func ValidateAndNormalize(sqlQuery string) ValidationResult {
	normalized := TrimTrailingSemicolon(sqlQuery)
	if normalized == "" {
		return ValidationResult{}
	}
	if HasMultipleStatements(normalized) {
		return ValidationResult{NormalizedSQL: normalized, Error: ErrMultipleStatements}
	}
	return ValidationResult{NormalizedSQL: normalized}
}

// HasMultipleStatements reports whether a semicolon outside literals and comments
// is followed by another significant token.
func HasMultipleStatements(sqlQuery string) bool {
	sawSeparator := false
	for _, t := range SignificantTokens(sqlQuery) {
		if t.IsPunct(";") {
			sawSeparator = true
			continue
		}
		if sawSeparator {
			return true
		}
	}
	return false
}

// TrimTrailingSemicolon removes trailing semicolons together with any whitespace
// and comments that follow the last significant token.
func TrimTrailingSemicolon(sqlQuery string) string {
	tokens := Tokenize(sqlQuery)
	end := len(tokens)
	for end > 0 {
		t := tokens[end-1]
		if !t.Significant() || t.IsPunct(";") {
			end--
			continue
		}
		break
	}
	if end == 0 {
		return ""
	}
	last := tokens[end-1]
	return strings.TrimSpace(sqlQuery[:last.Pos+len(last.Text)])
}
