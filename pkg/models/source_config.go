package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// SourceConfig is the decrypted, kind-specific configuration of a DataSource.
// Implementations: *ConnectionConfig, *WorkspaceConfig, *APIConfig, *BuiltinConfig.
type SourceConfig interface {
	Validate(kind SourceKind) error
}

// ConnParts holds structured connection parameters for relational kinds.
// Password lives only here; the stored URL is kept redacted.
type ConnParts struct {
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Database string `json:"database,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// postgres
	SSLMode string `json:"ssl_mode,omitempty"`
	// oracle: one of the two
	ServiceName string `json:"service_name,omitempty"`
	SID         string `json:"sid,omitempty"`
	// sqlserver
	Encrypt                string `json:"encrypt,omitempty"`
	TrustServerCertificate bool   `json:"trust_server_certificate,omitempty"`

	Options map[string]string `json:"options,omitempty"`
}

// ConnectionConfig configures postgres, mysql, sqlserver, oracle and sqlite sources.
type ConnectionConfig struct {
	URL  string     `json:"url,omitempty"`
	Conn *ConnParts `json:"conn,omitempty"`

	// TenantColumn marks a shared, non-tenant-partitioned schema. Queries must
	// then filter on the :tenant_id bind marker.
	TenantColumn string `json:"tenant_column,omitempty"`
	// DefaultSchema restricts introspection to a single schema.
	DefaultSchema string `json:"default_schema,omitempty"`
}

func (c *ConnectionConfig) Validate(kind SourceKind) error {
	if !kind.IsRelational() {
		return fmt.Errorf("connection config is not valid for %s sources", kind)
	}
	if strings.TrimSpace(c.URL) != "" {
		return nil
	}
	if c.Conn == nil {
		return errors.New("url or conn parts required")
	}
	if kind == KindSQLite {
		if c.Conn.Database == "" {
			return errors.New("sqlite database path required")
		}
		return nil
	}
	if c.Conn.Host == "" {
		return errors.New("host required")
	}
	return nil
}

// Password returns the structured password, if any.
func (c *ConnectionConfig) Password() string {
	if c.Conn == nil {
		return ""
	}
	return c.Conn.Password
}

// WorkspaceFile binds a file asset to the table alias it is queried under.
type WorkspaceFile struct {
	FileID     uuid.UUID `json:"file_id"`
	TableAlias string    `json:"table_alias"`
}

// WorkspaceConfig composes uploaded files and a sample of another source.
type WorkspaceConfig struct {
	DBSourceID *uuid.UUID      `json:"db_source_id,omitempty"`
	DBTables   []string        `json:"db_tables,omitempty"`
	Files      []WorkspaceFile `json:"files,omitempty"`
	MaxRows    int             `json:"max_rows,omitempty"`
}

func (c *WorkspaceConfig) Validate(kind SourceKind) error {
	if kind != KindWorkspace {
		return fmt.Errorf("workspace config is not valid for %s sources", kind)
	}
	if c.DBSourceID == nil && len(c.Files) == 0 {
		return errors.New("workspace needs at least one file or a database source")
	}
	if c.DBSourceID == nil && len(c.DBTables) > 0 {
		return errors.New("db_tables set without db_source_id")
	}
	if c.MaxRows < 0 {
		return errors.New("max_rows must not be negative")
	}
	for _, f := range c.Files {
		if f.FileID == uuid.Nil {
			return errors.New("workspace file without file_id")
		}
	}
	return nil
}

// APIConfig configures a REST source whose JSON records are queried with SQL.
type APIConfig struct {
	BaseURL        string            `json:"base_url"`
	Path           string            `json:"path,omitempty"`
	Method         string            `json:"method,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	BearerToken    string            `json:"bearer_token,omitempty"`
	RecordsPath    string            `json:"records_path,omitempty"`
	TableName      string            `json:"table_name,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
}

// DefaultAPITableName is the table API records are exposed as when none is configured.
const DefaultAPITableName = "records"

func (c *APIConfig) Validate(kind SourceKind) error {
	if kind != KindAPI {
		return fmt.Errorf("api config is not valid for %s sources", kind)
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return errors.New("base_url must be an http(s) URL")
	}
	switch strings.ToUpper(c.Method) {
	case "", "GET", "POST":
	default:
		return fmt.Errorf("unsupported method %q", c.Method)
	}
	return nil
}

// Table returns the table name records are registered under.
func (c *APIConfig) Table() string {
	if c.TableName == "" {
		return DefaultAPITableName
	}
	return c.TableName
}

// BuiltinConfig is the (empty) configuration of internal pseudo-sources.
type BuiltinConfig struct{}

func (c *BuiltinConfig) Validate(kind SourceKind) error {
	if !kind.IsBuiltin() {
		return fmt.Errorf("builtin config is not valid for %s sources", kind)
	}
	return nil
}

// NewSourceConfig returns an empty config value of the right type for kind.
func NewSourceConfig(kind SourceKind) (SourceConfig, error) {
	switch kind {
	case KindPostgres, KindMySQL, KindSQLServer, KindOracle, KindSQLite:
		return &ConnectionConfig{}, nil
	case KindWorkspace:
		return &WorkspaceConfig{}, nil
	case KindAPI:
		return &APIConfig{}, nil
	case KindBuiltinFiles, KindBuiltinReports:
		return &BuiltinConfig{}, nil
	}
	return nil, fmt.Errorf("unknown source kind %q", kind)
}

// DecodeSourceConfig parses plaintext config bytes for the given kind.
// Unknown fields are rejected so malformed blobs fail here rather than at query time.
func DecodeSourceConfig(kind SourceKind, data []byte) (SourceConfig, error) {
	cfg, err := NewSourceConfig(kind)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("empty source config")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode %s config: %w", kind, err)
	}
	if err := cfg.Validate(kind); err != nil {
		return nil, fmt.Errorf("invalid %s config: %w", kind, err)
	}
	return cfg, nil
}

// EncodeSourceConfig validates and serializes a config for encryption.
func EncodeSourceConfig(kind SourceKind, cfg SourceConfig) ([]byte, error) {
	if cfg == nil {
		return nil, errors.New("nil source config")
	}
	if err := cfg.Validate(kind); err != nil {
		return nil, fmt.Errorf("invalid %s config: %w", kind, err)
	}
	return json.Marshal(cfg)
}
