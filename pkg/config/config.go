package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.yaml"

// Config holds all configuration for ekaya-query.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`

	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Datasource    DatasourceConfig    `yaml:"datasource"`
	Query         QueryConfig         `yaml:"query"`
	Introspection IntrospectionConfig `yaml:"introspection"`
	Workspace     WorkspaceConfig     `yaml:"workspace"`
	Files         FilesConfig         `yaml:"files"`
	SchemaCache   SchemaCacheConfig   `yaml:"schema_cache"`
	MCP           MCPConfig           `yaml:"mcp"`

	// Credential encryption key for data source configs.
	// A 32-byte base64 key is used as is; any other value is hashed to 32 bytes.
	// Generate with: openssl rand -base64 32
	ProjectCredentialsKey string `yaml:"-" env:"PROJECT_CREDENTIALS_KEY"` // Secret - not in YAML
}

// DatabaseConfig holds the metadata PostgreSQL configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_query"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MaxIdleConns   int32  `yaml:"max_idle_conns" env:"PGMAX_IDLE_CONNS" env-default:"5"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig holds the optional Redis used as the second file-schema cache tier.
// An empty Host disables Redis.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// DatasourceConfig holds engine cache settings for external data sources.
type DatasourceConfig struct {
	// ConnectionTTLMinutes is how long an idle engine is kept before the cleanup loop closes it.
	ConnectionTTLMinutes int `yaml:"connection_ttl_minutes" env:"DATASOURCE_CONNECTION_TTL_MINUTES" env-default:"5"`
	PoolMaxConns         int `yaml:"pool_max_conns" env:"DATASOURCE_POOL_MAX_CONNS" env-default:"10"`
	PoolMaxIdleConns     int `yaml:"pool_max_idle_conns" env:"DATASOURCE_POOL_MAX_IDLE_CONNS" env-default:"2"`
}

// QueryConfig holds the server-side ceilings applied to every data source policy.
type QueryConfig struct {
	MaxRows         int `yaml:"max_rows" env:"QUERY_MAX_ROWS" env-default:"10000"`
	TimeoutSeconds  int `yaml:"timeout_seconds" env:"QUERY_TIMEOUT_SECONDS" env-default:"30"`
	DefaultRowLimit int `yaml:"default_row_limit" env:"QUERY_DEFAULT_ROW_LIMIT" env-default:"1000"`
}

// IntrospectionConfig bounds schema introspection.
type IntrospectionConfig struct {
	MaxTables int `yaml:"max_tables" env:"INTROSPECTION_MAX_TABLES" env-default:"500"`
}

// WorkspaceConfig bounds workspace federation.
type WorkspaceConfig struct {
	MaxDBTables int    `yaml:"max_db_tables" env:"WORKSPACE_MAX_DB_TABLES" env-default:"20"`
	MaxRows     int    `yaml:"max_rows" env:"WORKSPACE_MAX_ROWS" env-default:"5000"`
	TempDir     string `yaml:"temp_dir" env:"WORKSPACE_TEMP_DIR" env-default:""`
}

// FilesConfig locates uploaded file assets.
type FilesConfig struct {
	StorageRoot string `yaml:"storage_root" env:"FILES_STORAGE_ROOT" env-default:"./data/files"`
}

// SchemaCacheConfig sizes the file schema cache.
type SchemaCacheConfig struct {
	Size       int `yaml:"size" env:"SCHEMA_CACHE_SIZE" env-default:"1024"`
	TTLMinutes int `yaml:"ttl_minutes" env:"SCHEMA_CACHE_TTL_MINUTES" env-default:"60"`
}

// MCPConfig controls the MCP endpoint.
type MCPConfig struct {
	Enabled bool `yaml:"enabled" env:"MCP_ENABLED" env-default:"true"`
}

// Load reads configuration from config.yaml with environment variable overrides.
func Load(version string) (*Config, error) {
	return LoadFrom(DefaultPath, version)
}

// LoadFrom reads configuration from path with environment variable overrides.
// A missing file is not an error: configuration then comes from the environment alone.
func LoadFrom(path, version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// Validate checks the numeric bounds the services rely on.
func (c *Config) Validate() error {
	if c.Query.MaxRows <= 0 {
		return fmt.Errorf("query.max_rows must be positive")
	}
	if c.Query.TimeoutSeconds <= 0 {
		return fmt.Errorf("query.timeout_seconds must be positive")
	}
	if c.Query.DefaultRowLimit < 0 || c.Query.DefaultRowLimit > c.Query.MaxRows {
		return fmt.Errorf("query.default_row_limit must be between 0 and query.max_rows")
	}
	if c.Introspection.MaxTables <= 0 {
		return fmt.Errorf("introspection.max_tables must be positive")
	}
	if c.Workspace.MaxDBTables < 0 || c.Workspace.MaxRows <= 0 {
		return fmt.Errorf("workspace limits must be positive")
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// ConnectionTTL returns the idle engine TTL.
func (c *DatasourceConfig) ConnectionTTL() time.Duration {
	return time.Duration(c.ConnectionTTLMinutes) * time.Minute
}

// TTL returns the file schema cache entry lifetime.
func (c *SchemaCacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}
