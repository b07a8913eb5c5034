package mssql

import (
	"context"
	"database/sql"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
)

const listSchemasQuery = `
	SET NOCOUNT ON;
	SELECT s.name
	FROM sys.schemas s
	WHERE s.name NOT IN ('sys', 'INFORMATION_SCHEMA', 'guest')
	  AND s.name NOT LIKE 'db[_]%'
	ORDER BY s.name`

const listTablesQuery = `
	SET NOCOUNT ON;
	SELECT TOP (@limit) o.name
	FROM sys.objects o
	WHERE o.type IN ('U', 'V')
	  AND o.is_ms_shipped = 0
	  AND SCHEMA_NAME(o.schema_id) = @schema
	ORDER BY o.name`

const listColumnsQuery = `
	SET NOCOUNT ON;
	SELECT
	    c.name AS column_name,
	    tp.name AS data_type,
	    CASE WHEN c.is_nullable = 1 THEN 1 ELSE 0 END AS is_nullable
	FROM sys.columns c
	INNER JOIN sys.types tp ON c.user_type_id = tp.user_type_id
	WHERE c.object_id = OBJECT_ID(QUOTENAME(@schema) + N'.' + QUOTENAME(@table))
	ORDER BY c.column_id`

// defaultSchema is used when the caller does not name one.
const defaultSchema = "dbo"

func (Dialect) ListSchemas(ctx context.Context, q datasource.Querier) ([]string, error) {
	return datasource.QueryStrings(ctx, q, listSchemasQuery)
}

func (Dialect) ListTables(ctx context.Context, q datasource.Querier, schema string, limit int) ([]string, error) {
	if schema == "" {
		schema = defaultSchema
	}
	return datasource.QueryStrings(ctx, q, listTablesQuery,
		sql.Named("limit", limit),
		sql.Named("schema", schema),
	)
}

func (Dialect) ListColumns(ctx context.Context, q datasource.Querier, schema, table string) ([]datasource.ColumnMetadata, error) {
	if schema == "" {
		schema = defaultSchema
	}
	return datasource.QueryColumns(ctx, q, listColumnsQuery,
		sql.Named("schema", schema),
		sql.Named("table", table),
	)
}
