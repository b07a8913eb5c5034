// Package connstr builds and edits data source connection URLs.
//
// Every URL is produced and edited with net/url so that the redacted form kept
// in storage and the effective form used at runtime never disagree.
package connstr

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

// Fixed URLs of the built-in pseudo-sources.
const (
	BuiltinFilesURL   = "internal://files"
	BuiltinReportsURL = "internal://reports"
)

// Default ports per kind.
const (
	DefaultPostgresPort  = 5432
	DefaultMySQLPort     = 3306
	DefaultSQLServerPort = 1433
	DefaultOraclePort    = 1521
)

// ErrNotAddressable is returned for kinds that have no connection URL.
var ErrNotAddressable = errors.New("source kind has no connection url")

// BuildURL assembles a fully qualified connection URL for kind from structured parts.
func BuildURL(kind models.SourceKind, parts *models.ConnParts) (string, error) {
	switch kind {
	case models.KindBuiltinFiles:
		return BuiltinFilesURL, nil
	case models.KindBuiltinReports:
		return BuiltinReportsURL, nil
	case models.KindAPI, models.KindWorkspace:
		return "", fmt.Errorf("%w: %s", ErrNotAddressable, kind)
	case models.KindSQLite:
		if parts == nil || parts.Database == "" {
			return "", errors.New("sqlite requires a database path")
		}
		return SQLiteURL(parts.Database), nil
	case models.KindPostgres, models.KindMySQL, models.KindSQLServer, models.KindOracle:
		if parts == nil || parts.Host == "" {
			return "", fmt.Errorf("%s requires a host", kind)
		}
		return buildNetworkURL(kind, parts), nil
	}
	return "", fmt.Errorf("unsupported source kind %q", kind)
}

func buildNetworkURL(kind models.SourceKind, p *models.ConnParts) string {
	u := &url.URL{}
	q := url.Values{}
	for k, v := range p.Options {
		q.Set(k, v)
	}

	port := p.Port
	switch kind {
	case models.KindPostgres:
		u.Scheme = "postgres"
		if port == 0 {
			port = DefaultPostgresPort
		}
		u.Path = "/" + p.Database
		sslMode := p.SSLMode
		if sslMode == "" && q.Get("sslmode") == "" {
			sslMode = "require"
		}
		if sslMode != "" {
			q.Set("sslmode", sslMode)
		}
	case models.KindMySQL:
		u.Scheme = "mysql"
		if port == 0 {
			port = DefaultMySQLPort
		}
		u.Path = "/" + p.Database
	case models.KindSQLServer:
		u.Scheme = "sqlserver"
		if port == 0 {
			port = DefaultSQLServerPort
		}
		if p.Database != "" {
			q.Set("database", p.Database)
		}
		if p.Encrypt != "" {
			q.Set("encrypt", p.Encrypt)
		}
		if p.TrustServerCertificate {
			q.Set("TrustServerCertificate", "true")
		}
	case models.KindOracle:
		u.Scheme = "oracle"
		if port == 0 {
			port = DefaultOraclePort
		}
		switch {
		case p.ServiceName != "":
			u.Path = "/" + p.ServiceName
		case p.SID != "":
			q.Set("SID", p.SID)
		case p.Database != "":
			u.Path = "/" + p.Database
		}
	}

	u.Host = net.JoinHostPort(p.Host, strconv.Itoa(port))
	if p.Username != "" {
		if p.Password != "" {
			u.User = url.UserPassword(p.Username, p.Password)
		} else {
			u.User = url.User(p.Username)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// SQLiteURL turns a bare filesystem path into a sqlite URL.
// Absolute paths get four slashes (sqlite:////abs/db), relative paths three.
// Strings already in URL form are returned unchanged.
func SQLiteURL(pathOrURL string) string {
	if strings.HasPrefix(pathOrURL, "sqlite:") {
		return pathOrURL
	}
	if pathOrURL == ":memory:" {
		return "sqlite:///:memory:"
	}
	p := filepath.ToSlash(pathOrURL)
	if filepath.IsAbs(pathOrURL) && !strings.HasPrefix(p, "/") {
		// windows drive paths
		p = "/" + p
	}
	return "sqlite:///" + p
}

// SQLitePath is the inverse of SQLiteURL: it returns the filesystem path of a sqlite URL.
func SQLitePath(raw string) (string, error) {
	if !strings.HasPrefix(raw, "sqlite:") {
		return raw, nil
	}
	rest := strings.TrimPrefix(raw, "sqlite:")
	if !strings.HasPrefix(rest, "///") {
		return "", fmt.Errorf("malformed sqlite url")
	}
	p := strings.TrimPrefix(rest, "///")
	if q := strings.IndexByte(p, '?'); q >= 0 {
		p = p[:q]
	}
	if p == "" {
		return "", fmt.Errorf("sqlite url has no path")
	}
	return p, nil
}

// Scheme returns the lower-cased scheme of a URL or "" if it cannot be parsed.
func Scheme(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}
