// Package mysql registers the MySQL / MariaDB dialect.
package mysql

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query/pkg/connstr"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
	sqlutil "github.com/ekaya-inc/ekaya-query/pkg/sql"
)

func init() {
	datasource.Register(Dialect{})
}

// Dialect implements datasource.Dialect for MySQL.
type Dialect struct{}

var _ datasource.Dialect = Dialect{}

func (Dialect) Info() datasource.DialectInfo {
	return datasource.DialectInfo{
		Kind:        models.KindMySQL,
		DisplayName: "MySQL",
		Description: "Connect to MySQL 5.7+, MariaDB, Aurora MySQL",
	}
}

func (Dialect) DriverName() string { return "mysql" }

// DSN converts mysql://user:pw@host:port/db?opt=v into the driver's
// user:pw@tcp(host:port)/db?parseTime=true&opt=v form.
func (Dialect) DSN(effectiveURL string) (string, error) {
	u, err := url.Parse(effectiveURL)
	if err != nil {
		return "", fmt.Errorf("parse mysql url: %w", err)
	}
	if u.Scheme != "mysql" {
		return "", fmt.Errorf("expected mysql:// url, got %q", u.Scheme)
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	host, port := u.Hostname(), u.Port()
	if port == "" {
		port = fmt.Sprint(connstr.DefaultMySQLPort)
	}
	cfg.Addr = net.JoinHostPort(host, port)
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	cfg.ParseTime = true

	for k, vs := range u.Query() {
		if len(vs) == 0 {
			continue
		}
		switch k {
		case "tls":
			cfg.TLSConfig = vs[0]
		case "parseTime":
			cfg.ParseTime = vs[0] == "true"
		default:
			if cfg.Params == nil {
				cfg.Params = make(map[string]string)
			}
			cfg.Params[k] = vs[0]
		}
	}
	return cfg.FormatDSN(), nil
}

func (Dialect) Placeholder() sqlutil.PlaceholderStyle { return sqlutil.PlaceholderQuestion }

func (Dialect) TimeoutStatement(timeout time.Duration) string {
	return fmt.Sprintf("SET SESSION MAX_EXECUTION_TIME = %d", timeout.Milliseconds())
}

func (Dialect) LimitQuery(query string, n int) string {
	return datasource.AppendLimit(query, n)
}

func (Dialect) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
