package sqlite

import (
	"context"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
)

const listTablesQuery = `
	SELECT name
	FROM sqlite_master
	WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
	ORDER BY name
	LIMIT ?`

// notnull is inverted so the third column reads as is_nullable.
const listColumnsQuery = `
	SELECT name, type, CASE WHEN "notnull" = 0 THEN 1 ELSE 0 END
	FROM pragma_table_info(?)
	ORDER BY cid`

// ListSchemas always fails with datasource.ErrSchemasUnsupported.
func (Dialect) ListSchemas(context.Context, datasource.Querier) ([]string, error) {
	return nil, datasource.ErrSchemasUnsupported
}

func (Dialect) ListTables(ctx context.Context, q datasource.Querier, _ string, limit int) ([]string, error) {
	return datasource.QueryStrings(ctx, q, listTablesQuery, limit)
}

func (Dialect) ListColumns(ctx context.Context, q datasource.Querier, _ string, table string) ([]datasource.ColumnMetadata, error) {
	return datasource.QueryColumns(ctx, q, listColumnsQuery, table)
}
