package datasource

import (
	"database/sql"
	"fmt"

	"github.com/ekaya-inc/ekaya-query/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

// CollectRows reads at most maxRows rows (0 means unbounded) into a QueryResult with
// normalized values. Columns keep driver order. The caller closes rows.
func CollectRows(rows *sql.Rows, maxRows int) (*models.QueryResult, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	types := make([]string, len(columns))
	if columnTypes, err := rows.ColumnTypes(); err == nil {
		for i, ct := range columnTypes {
			if i < len(types) {
				types[i] = ct.DatabaseTypeName()
			}
		}
	}

	result := models.EmptyResult()
	result.Columns = columns
	if result.Columns == nil {
		result.Columns = []string{}
	}

	for rows.Next() {
		if maxRows > 0 && len(result.Rows) >= maxRows {
			break
		}
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result.Rows = append(result.Rows, jsonutil.NormalizeRow(values, types))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}
