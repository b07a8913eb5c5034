// Package datasource manages driver-level access to relational data sources:
// the per-kind dialect registry and the cache of open engines.
package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ekaya-inc/ekaya-query/pkg/models"
	sqlutil "github.com/ekaya-inc/ekaya-query/pkg/sql"
)

// ErrSchemasUnsupported is returned by ListSchemas when the database has no schema namespace.
var ErrSchemasUnsupported = errors.New("dialect does not support schemas")

// DialectInfo describes a registered dialect for discovery endpoints.
type DialectInfo struct {
	Kind        models.SourceKind `json:"type"`
	DisplayName string            `json:"display_name"`
	Description string            `json:"description"`
}

// ColumnMetadata is a discovered column.
type ColumnMetadata struct {
	Name       string
	DataType   string
	IsNullable bool
}

// Querier is the subset of *sql.DB and *sql.Conn used by schema listing.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Dialect is everything the executor and introspector need to know about one database kind.
type Dialect interface {
	Info() DialectInfo
	// DriverName is the database/sql driver the dialect registers under.
	DriverName() string
	// DSN converts an effective connection URL into the driver's DSN.
	DSN(effectiveURL string) (string, error)
	Placeholder() sqlutil.PlaceholderStyle
	// TimeoutStatement returns the session statement bounding execution time, or "".
	TimeoutStatement(timeout time.Duration) string
	QuoteIdentifier(name string) string
	// LimitQuery bounds a single SELECT or WITH query so the server returns at most n rows.
	// Queries the dialect cannot bound safely are returned unchanged.
	LimitQuery(query string, n int) string
	ListSchemas(ctx context.Context, q Querier) ([]string, error)
	// ListTables returns up to limit table names; schema may be "" for schemaless dialects.
	ListTables(ctx context.Context, q Querier, schema string, limit int) ([]string, error)
	ListColumns(ctx context.Context, q Querier, schema, table string) ([]ColumnMetadata, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[models.SourceKind]Dialect)
)

// Register is called by each dialect package's init() function.
func Register(d Dialect) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[d.Info().Kind] = d
}

// Lookup returns the dialect registered for kind.
func Lookup(kind models.SourceKind) (Dialect, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if d, ok := registry[kind]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("no dialect registered for %s", kind)
}

// RegisteredDialects returns info for all registered dialects, ordered by kind.
func RegisteredDialects() []DialectInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]DialectInfo, 0, len(registry))
	for _, d := range registry {
		result = append(result, d.Info())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Kind < result[j].Kind })
	return result
}

// QualifiedName joins schema and table with the dialect's quoting. An empty schema yields the table alone.
func QualifiedName(d Dialect, schema, table string) string {
	if schema == "" {
		return d.QuoteIdentifier(table)
	}
	return d.QuoteIdentifier(schema) + "." + d.QuoteIdentifier(table)
}

// AppendLimit adds a trailing LIMIT, the form shared by PostgreSQL, MySQL and SQLite. It
// applies to the whole outer statement, set operations included. The clause goes on its own
// line so a trailing line comment cannot swallow it. A query that already has its own
// LIMIT, OFFSET, FETCH, locking or INTO clause is returned unchanged.
func AppendLimit(query string, n int) string {
	if sqlutil.HasTopLevelKeyword(query, "limit", "offset", "fetch", "for", "into", "lock") {
		return query
	}
	return fmt.Sprintf("%s\nLIMIT %d", query, n)
}

// QueryStrings runs a query returning one string column.
func QueryStrings(ctx context.Context, q Querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate: %w", err)
	}
	return out, nil
}

// QueryColumns runs a query returning (name, data_type, is_nullable) rows.
// is_nullable may be a bool, an integer, or a YES/NO string.
func QueryColumns(ctx context.Context, q Querier, query string, args ...any) ([]ColumnMetadata, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []ColumnMetadata
	for rows.Next() {
		var (
			c        ColumnMetadata
			nullable any
		)
		if err := rows.Scan(&c.Name, &c.DataType, &nullable); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		c.IsNullable = truthy(nullable)
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return cols, nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int64:
		return t != 0
	case int32:
		return t != 0
	case int:
		return t != 0
	case []byte:
		return truthyString(string(t))
	case string:
		return truthyString(t)
	}
	return false
}

func truthyString(s string) bool {
	switch s {
	case "YES", "yes", "Y", "y", "1", "true", "TRUE":
		return true
	}
	return false
}
