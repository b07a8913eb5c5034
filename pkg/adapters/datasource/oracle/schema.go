package oracle

import (
	"context"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
)

const listSchemasQuery = `
	SELECT username
	FROM all_users
	WHERE oracle_maintained = 'N'
	ORDER BY username`

const listTablesQuery = `
	SELECT object_name
	FROM all_objects
	WHERE owner = :1 AND object_type IN ('TABLE', 'VIEW')
	ORDER BY object_name
	FETCH FIRST :2 ROWS ONLY`

const listOwnTablesQuery = `
	SELECT object_name
	FROM user_objects
	WHERE object_type IN ('TABLE', 'VIEW')
	ORDER BY object_name
	FETCH FIRST :1 ROWS ONLY`

const listColumnsQuery = `
	SELECT column_name, data_type, nullable
	FROM all_tab_columns
	WHERE owner = :1 AND table_name = :2
	ORDER BY column_id`

const listOwnColumnsQuery = `
	SELECT column_name, data_type, nullable
	FROM user_tab_columns
	WHERE table_name = :1
	ORDER BY column_id`

func (Dialect) ListSchemas(ctx context.Context, q datasource.Querier) ([]string, error) {
	return datasource.QueryStrings(ctx, q, listSchemasQuery)
}

// ListTables lists the tables of owner schema, or of the connected user when schema is "".
func (Dialect) ListTables(ctx context.Context, q datasource.Querier, schema string, limit int) ([]string, error) {
	if schema == "" {
		return datasource.QueryStrings(ctx, q, listOwnTablesQuery, limit)
	}
	return datasource.QueryStrings(ctx, q, listTablesQuery, schema, limit)
}

func (Dialect) ListColumns(ctx context.Context, q datasource.Querier, schema, table string) ([]datasource.ColumnMetadata, error) {
	if schema == "" {
		return datasource.QueryColumns(ctx, q, listOwnColumnsQuery, table)
	}
	return datasource.QueryColumns(ctx, q, listColumnsQuery, schema, table)
}
