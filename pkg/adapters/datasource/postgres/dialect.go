// Package postgres registers the PostgreSQL dialect (pgx through database/sql).
package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
	sqlutil "github.com/ekaya-inc/ekaya-query/pkg/sql"
)

func init() {
	datasource.Register(Dialect{})
}

// Dialect implements datasource.Dialect for PostgreSQL.
type Dialect struct{}

var _ datasource.Dialect = Dialect{}

func (Dialect) Info() datasource.DialectInfo {
	return datasource.DialectInfo{
		Kind:        models.KindPostgres,
		DisplayName: "PostgreSQL",
		Description: "Connect to PostgreSQL 12+, Aurora PostgreSQL, Supabase",
	}
}

func (Dialect) DriverName() string { return "pgx" }

// DSN returns the URL unchanged once pgx accepts it; pgx parses postgres:// URLs natively.
func (Dialect) DSN(effectiveURL string) (string, error) {
	if _, err := pgx.ParseConfig(effectiveURL); err != nil {
		return "", fmt.Errorf("parse postgres url: %w", err)
	}
	return effectiveURL, nil
}

func (Dialect) Placeholder() sqlutil.PlaceholderStyle { return sqlutil.PlaceholderDollar }

func (Dialect) TimeoutStatement(timeout time.Duration) string {
	return fmt.Sprintf("SET statement_timeout = %d", timeout.Milliseconds())
}

func (Dialect) LimitQuery(query string, n int) string {
	return datasource.AppendLimit(query, n)
}

func (Dialect) QuoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}
