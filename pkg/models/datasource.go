package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SourceKind identifies what a DataSource connects to.
// The set is closed: ParseSourceKind rejects anything not listed here.
type SourceKind string

const (
	KindPostgres  SourceKind = "postgres"
	KindMySQL     SourceKind = "mysql"
	KindSQLServer SourceKind = "sqlserver"
	KindOracle    SourceKind = "oracle"
	KindSQLite    SourceKind = "sqlite"
	KindAPI       SourceKind = "api"
	KindWorkspace SourceKind = "workspace"

	// Built-in application modules exposed as sources. They resolve to fixed
	// internal URLs and are never dialed.
	KindBuiltinFiles   SourceKind = "builtin_files"
	KindBuiltinReports SourceKind = "builtin_reports"
)

// AllSourceKinds lists every supported kind in display order.
var AllSourceKinds = []SourceKind{
	KindPostgres,
	KindMySQL,
	KindSQLServer,
	KindOracle,
	KindSQLite,
	KindAPI,
	KindWorkspace,
	KindBuiltinFiles,
	KindBuiltinReports,
}

// ParseSourceKind validates a kind string coming from storage or an API request.
func ParseSourceKind(s string) (SourceKind, error) {
	for _, k := range AllSourceKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown source kind %q", s)
}

// IsRelational reports whether the kind is served by a SQL driver through the engine cache.
func (k SourceKind) IsRelational() bool {
	switch k {
	case KindPostgres, KindMySQL, KindSQLServer, KindOracle, KindSQLite:
		return true
	case KindAPI, KindWorkspace, KindBuiltinFiles, KindBuiltinReports:
		return false
	}
	return false
}

// IsBuiltin reports whether the kind is an internal pseudo-source.
func (k SourceKind) IsBuiltin() bool {
	return k == KindBuiltinFiles || k == KindBuiltinReports
}

// Policy is the per-source safety configuration as stored.
// Zero values mean "use the configured default".
type Policy struct {
	ReadOnly       *bool `json:"read_only,omitempty"`
	MaxRows        int   `json:"max_rows,omitempty"`
	TimeoutSeconds int   `json:"timeout_seconds,omitempty"`
}

// ExecutionPolicy is the policy actually applied to one query.
type ExecutionPolicy struct {
	ReadOnly       bool
	MaxRows        int
	TimeoutSeconds int
}

// Effective resolves the stored policy against server ceilings and an optional caller row limit.
// Stored values can lower the ceilings but never raise them; rowLimit only tightens.
func (p Policy) Effective(maxRowsCeiling, timeoutCeiling, rowLimit int) ExecutionPolicy {
	ep := ExecutionPolicy{
		ReadOnly:       true,
		MaxRows:        maxRowsCeiling,
		TimeoutSeconds: timeoutCeiling,
	}
	if p.ReadOnly != nil {
		ep.ReadOnly = *p.ReadOnly
	}
	if p.MaxRows > 0 && (ep.MaxRows <= 0 || p.MaxRows < ep.MaxRows) {
		ep.MaxRows = p.MaxRows
	}
	if p.TimeoutSeconds > 0 && (ep.TimeoutSeconds <= 0 || p.TimeoutSeconds < ep.TimeoutSeconds) {
		ep.TimeoutSeconds = p.TimeoutSeconds
	}
	if rowLimit > 0 && (ep.MaxRows <= 0 || rowLimit < ep.MaxRows) {
		ep.MaxRows = rowLimit
	}
	return ep
}

// DataSource is one connection target registered by a tenant.
// EncryptedConfig holds the vault ciphertext of the kind-specific SourceConfig
// and is never serialized to JSON.
type DataSource struct {
	ID              uuid.UUID  `json:"id"`
	TenantID        uuid.UUID  `json:"tenant_id"`
	Kind            SourceKind `json:"type"`
	Name            string     `json:"name"`
	EncryptedConfig []byte     `json:"-"`
	Policy          Policy     `json:"policy"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// BoolPtr is a small helper for optional policy flags.
func BoolPtr(b bool) *bool {
	return &b
}
