package models

// QueryResult is the uniform output of every execution path.
// Rows hold JSON-safe values only (see jsonutil.Normalize).
type QueryResult struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	ElapsedMs int64    `json:"elapsed_ms"`
}

// EmptyResult returns a result with non-nil empty slices so it encodes as [] rather than null.
func EmptyResult() *QueryResult {
	return &QueryResult{
		Columns: []string{},
		Rows:    [][]any{},
	}
}

// RowCount returns the number of rows in the result.
func (r *QueryResult) RowCount() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}
