package datasource

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query/pkg/config"
	"github.com/ekaya-inc/ekaya-query/pkg/connstr"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

// ErrPasswordRequired is returned when the stored URL is redacted and no structured password is available.
var ErrPasswordRequired = errors.New("stored url is redacted and no password is configured")

// ResolveEffectiveURL returns the URL a driver is opened with.
//
// The stored URL is preferred, with the structured password injected in place of a
// missing or masked one. Without a stored URL the URL is built from the structured parts.
// Loopback hosts are rewritten when the process runs in Docker.
func ResolveEffectiveURL(kind models.SourceKind, cfg *models.ConnectionConfig) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("%w: missing connection config", apperrors.ErrInvalidSourceConfig)
	}

	var effective string
	if strings.TrimSpace(cfg.URL) != "" {
		effective = connstr.InjectPassword(strings.TrimSpace(cfg.URL), cfg.Password())
	} else {
		built, err := connstr.BuildURL(kind, cfg.Conn)
		if err != nil {
			return "", err
		}
		effective = built
	}

	if connstr.IsMasked(effective) {
		return "", ErrPasswordRequired
	}
	if kind == models.KindSQLite {
		return effective, nil
	}
	return config.ResolveURLForDocker(effective), nil
}
