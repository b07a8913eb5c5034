package postgres

import (
	"context"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
)

const listSchemasQuery = `
	SELECT schema_name
	FROM information_schema.schemata
	WHERE schema_name NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
	  AND schema_name NOT LIKE 'pg_temp_%'
	  AND schema_name NOT LIKE 'pg_toast_temp_%'
	ORDER BY schema_name`

const listTablesQuery = `
	SELECT table_name
	FROM information_schema.tables
	WHERE table_schema = $1
	  AND table_type IN ('BASE TABLE', 'VIEW')
	ORDER BY table_name
	LIMIT $2`

const listColumnsQuery = `
	SELECT column_name, data_type, is_nullable
	FROM information_schema.columns
	WHERE table_schema = $1 AND table_name = $2
	ORDER BY ordinal_position`

func (Dialect) ListSchemas(ctx context.Context, q datasource.Querier) ([]string, error) {
	return datasource.QueryStrings(ctx, q, listSchemasQuery)
}

func (Dialect) ListTables(ctx context.Context, q datasource.Querier, schema string, limit int) ([]string, error) {
	if schema == "" {
		schema = "public"
	}
	return datasource.QueryStrings(ctx, q, listTablesQuery, schema, limit)
}

func (Dialect) ListColumns(ctx context.Context, q datasource.Querier, schema, table string) ([]datasource.ColumnMetadata, error) {
	if schema == "" {
		schema = "public"
	}
	return datasource.QueryColumns(ctx, q, listColumnsQuery, schema, table)
}
