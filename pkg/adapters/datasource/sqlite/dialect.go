// Package sqlite registers the SQLite dialect, backed by the pure-Go modernc driver.
package sqlite

import (
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query/pkg/connstr"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
	sqlutil "github.com/ekaya-inc/ekaya-query/pkg/sql"
)

func init() {
	datasource.Register(Dialect{})
}

// Dialect implements datasource.Dialect for SQLite files.
type Dialect struct{}

var _ datasource.Dialect = Dialect{}

func (Dialect) Info() datasource.DialectInfo {
	return datasource.DialectInfo{
		Kind:        models.KindSQLite,
		DisplayName: "SQLite",
		Description: "Query a local SQLite database file",
	}
}

func (Dialect) DriverName() string { return "sqlite" }

// DSN turns sqlite:///path into the file path the driver opens.
func (Dialect) DSN(effectiveURL string) (string, error) {
	path, err := connstr.SQLitePath(effectiveURL)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("sqlite path is empty")
	}
	return path, nil
}

func (Dialect) Placeholder() sqlutil.PlaceholderStyle { return sqlutil.PlaceholderQuestion }

func (Dialect) TimeoutStatement(timeout time.Duration) string {
	return fmt.Sprintf("PRAGMA busy_timeout = %d", timeout.Milliseconds())
}

func (Dialect) LimitQuery(query string, n int) string {
	return datasource.AppendLimit(query, n)
}

func (Dialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
