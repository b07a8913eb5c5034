// Package mssql registers the Microsoft SQL Server dialect.
package mssql

import (
	"fmt"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
	sqlutil "github.com/ekaya-inc/ekaya-query/pkg/sql"
)

func init() {
	datasource.Register(Dialect{})
}

// Dialect implements datasource.Dialect for SQL Server.
type Dialect struct{}

var _ datasource.Dialect = Dialect{}

func (Dialect) Info() datasource.DialectInfo {
	return datasource.DialectInfo{
		Kind:        models.KindSQLServer,
		DisplayName: "Microsoft SQL Server",
		Description: "Connect to SQL Server 2019+, Azure SQL Database, or Azure SQL Managed Instance",
	}
}

func (Dialect) DriverName() string { return "sqlserver" }

// DSN validates a sqlserver:// URL; the driver accepts the URL form directly.
func (Dialect) DSN(effectiveURL string) (string, error) {
	if !strings.HasPrefix(effectiveURL, "sqlserver://") {
		return "", fmt.Errorf("expected sqlserver:// url")
	}
	if _, err := msdsn.Parse(effectiveURL); err != nil {
		return "", fmt.Errorf("parse sqlserver url: %w", err)
	}
	return effectiveURL, nil
}

func (Dialect) Placeholder() sqlutil.PlaceholderStyle { return sqlutil.PlaceholderAtP }

func (Dialect) TimeoutStatement(timeout time.Duration) string {
	return fmt.Sprintf("SET LOCK_TIMEOUT %d", timeout.Milliseconds())
}

// LimitQuery inserts TOP (n) into the outer SELECT. A derived table would reject ORDER BY
// and unnamed columns, so the query is edited in place instead. CTEs, set operations and
// queries that already carry TOP or OFFSET are returned unchanged.
func (Dialect) LimitQuery(query string, n int) string {
	tokens := sqlutil.Tokenize(query)
	insertAt := -1
	depth := 0
	for i, t := range tokens {
		if !t.Significant() {
			continue
		}
		switch {
		case t.IsPunct("("):
			depth++
			continue
		case t.IsPunct(")"):
			depth--
			continue
		}
		if depth != 0 {
			continue
		}
		if insertAt < 0 {
			if !t.IsWord("select") {
				return query
			}
			insertAt = i + 1
			if next := nextSignificant(tokens, i+1); next >= 0 && (tokens[next].IsWord("distinct") || tokens[next].IsWord("all")) {
				insertAt = next + 1
			}
			if next := nextSignificant(tokens, insertAt); next >= 0 && tokens[next].IsWord("top") {
				return query
			}
			continue
		}
		if t.IsWord("union") || t.IsWord("intersect") || t.IsWord("except") || t.IsWord("offset") {
			return query
		}
	}
	if insertAt < 0 {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 16)
	for i, t := range tokens {
		if i == insertAt {
			fmt.Fprintf(&b, " TOP (%d)", n)
		}
		b.WriteString(t.Text)
	}
	if insertAt == len(tokens) {
		fmt.Fprintf(&b, " TOP (%d)", n)
	}
	return b.String()
}

func nextSignificant(tokens []sqlutil.Token, from int) int {
	for i := from; i < len(tokens); i++ {
		if tokens[i].Significant() {
			return i
		}
	}
	return -1
}

func (Dialect) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}
