// Package oracle registers the Oracle Database dialect.
package oracle

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/sijms/go-ora/v2"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
	sqlutil "github.com/ekaya-inc/ekaya-query/pkg/sql"
)

func init() {
	datasource.Register(Dialect{})
}

// Dialect implements datasource.Dialect for Oracle.
type Dialect struct{}

var _ datasource.Dialect = Dialect{}

func (Dialect) Info() datasource.DialectInfo {
	return datasource.DialectInfo{
		Kind:        models.KindOracle,
		DisplayName: "Oracle Database",
		Description: "Connect to Oracle 12c+ by service name or SID",
	}
}

func (Dialect) DriverName() string { return "oracle" }

// DSN validates an oracle://user:pw@host:port/service URL, which go-ora accepts as-is.
func (Dialect) DSN(effectiveURL string) (string, error) {
	u, err := url.Parse(effectiveURL)
	if err != nil {
		return "", fmt.Errorf("parse oracle url: %w", err)
	}
	if u.Scheme != "oracle" {
		return "", fmt.Errorf("expected oracle:// url, got %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("oracle url has no host")
	}
	if strings.Trim(u.Path, "/") == "" && u.Query().Get("SID") == "" {
		return "", fmt.Errorf("oracle url needs a service name or SID")
	}
	return effectiveURL, nil
}

func (Dialect) Placeholder() sqlutil.PlaceholderStyle { return sqlutil.PlaceholderColon }

// TimeoutStatement returns "": Oracle has no session statement timeout. Execution is
// bounded by the context deadline instead.
func (Dialect) TimeoutStatement(time.Duration) string { return "" }

// LimitQuery appends the 12c row limiting clause unless the query already limits or locks rows.
func (Dialect) LimitQuery(query string, n int) string {
	if sqlutil.HasTopLevelKeyword(query, "fetch", "offset", "for", "into") {
		return query
	}
	return fmt.Sprintf("%s\nFETCH FIRST %d ROWS ONLY", query, n)
}

func (Dialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
