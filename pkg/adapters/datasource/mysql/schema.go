package mysql

import (
	"context"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
)

const listSchemasQuery = `
	SELECT schema_name
	FROM information_schema.schemata
	WHERE schema_name NOT IN ('mysql', 'information_schema', 'performance_schema', 'sys')
	ORDER BY schema_name`

const listTablesQuery = `
	SELECT table_name
	FROM information_schema.tables
	WHERE table_schema = ?
	ORDER BY table_name
	LIMIT ?`

const listColumnsQuery = `
	SELECT column_name, data_type, is_nullable
	FROM information_schema.columns
	WHERE table_schema = ? AND table_name = ?
	ORDER BY ordinal_position`

func (Dialect) ListSchemas(ctx context.Context, q datasource.Querier) ([]string, error) {
	return datasource.QueryStrings(ctx, q, listSchemasQuery)
}

// ListTables lists tables of schema, or of the connection's current database when schema is "".
func (Dialect) ListTables(ctx context.Context, q datasource.Querier, schema string, limit int) ([]string, error) {
	if schema == "" {
		return datasource.QueryStrings(ctx, q,
			"SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() ORDER BY table_name LIMIT ?", limit)
	}
	return datasource.QueryStrings(ctx, q, listTablesQuery, schema, limit)
}

func (Dialect) ListColumns(ctx context.Context, q datasource.Querier, schema, table string) ([]datasource.ColumnMetadata, error) {
	if schema == "" {
		return datasource.QueryColumns(ctx, q,
			"SELECT column_name, data_type, is_nullable FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ? ORDER BY ordinal_position", table)
	}
	return datasource.QueryColumns(ctx, q, listColumnsQuery, schema, table)
}
