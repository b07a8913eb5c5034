// Package federation evaluates SQL over workspaces: uploaded files and a sample of
// another data source, joined inside a DuckDB instance that lives for one call.
package federation

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb/v2" // registers the "duckdb" driver
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query/pkg/files"
	"github.com/ekaya-inc/ekaya-query/pkg/logging"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
	sqlutil "github.com/ekaya-inc/ekaya-query/pkg/sql"
)

const (
	DefaultMaxDBTables = 20
	DefaultMaxRows     = 5000
)

// Config holds the workspace limits.
type Config struct {
	MaxDBTables int
	// MaxRows applies when the workspace does not configure its own cap.
	MaxRows int
	// TempDir is the parent of per-call scratch directories; "" means os.TempDir().
	TempDir string
}

// Sampler reads a bounded sample of one table of a workspace's database source.
type Sampler interface {
	SampleTable(ctx context.Context, tenantID, sourceID uuid.UUID, table string, maxRows int) (*models.QueryResult, error)
}

// TableDescriber lists the columns of tables in a workspace's database source.
type TableDescriber interface {
	DescribeTables(ctx context.Context, tenantID, sourceID uuid.UUID, tables []string) ([]models.TableInfo, error)
}

// SchemaLookup returns the cached column list of a file asset.
type SchemaLookup interface {
	Columns(ctx context.Context, asset *models.FileAsset, path string) ([]models.ColumnInfo, error)
}

// Upstream bundles the collaborators one call may reach outside the embedded engine.
// A nil member disables the step that needs it.
type Upstream struct {
	Sampler Sampler
	Tables  TableDescriber
	Schemas SchemaLookup
}

// Engine runs workspace and API record queries. It keeps no state between calls.
type Engine struct {
	cfg    Config
	files  files.Store
	logger *zap.Logger
}

// NewEngine creates a federation engine.
func NewEngine(cfg Config, store files.Store, logger *zap.Logger) *Engine {
	if cfg.MaxDBTables <= 0 {
		cfg.MaxDBTables = DefaultMaxDBTables
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultMaxRows
	}
	return &Engine{
		cfg:    cfg,
		files:  store,
		logger: logging.OrNop(logger).Named("federation"),
	}
}

// Execute evaluates sqlText against a workspace.
//
// Files are registered under their sanitized aliases and sampled tables under db_<name>;
// files.<alias> and db.<name> references are retargeted to them. The result is capped at
// the workspace's max_rows, tightened by rowLimit when positive. Per-file and per-table
// failures are logged and skipped.
func (e *Engine) Execute(ctx context.Context, ws *models.DataSource, cfg *models.WorkspaceConfig, sqlText string, params map[string]any, rowLimit int, up Upstream) (*models.QueryResult, error) {
	start := time.Now()
	if ws == nil || cfg == nil {
		return nil, apperrors.NewQueryError(apperrors.ErrInvalidSourceConfig, "workspace configuration is missing")
	}

	wsMax := e.workspaceMaxRows(cfg)
	limit := tighten(wsMax, rowLimit)

	sess, err := e.openSession(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.close()

	catalog := map[string]map[string]string{
		models.WorkspaceFilesSchema: e.registerFiles(ctx, sess, ws, cfg),
		models.WorkspaceDBSchema:    e.importSample(ctx, sess, ws, cfg, wsMax, up.Sampler),
	}

	result, err := sess.query(ctx, sqlText, params, catalog, limit)
	if err != nil {
		return nil, err
	}
	result.ElapsedMs = time.Since(start).Milliseconds()

	e.logger.Debug("workspace query executed",
		zap.String("workspace_id", ws.ID.String()),
		zap.Int("rows", len(result.Rows)),
		zap.Int64("elapsed_ms", result.ElapsedMs),
	)
	return result, nil
}

// ExecuteRecords loads JSON records as table and evaluates sqlText over them.
// api.<table> references are retargeted to the table.
func (e *Engine) ExecuteRecords(ctx context.Context, table string, records []Record, sqlText string, params map[string]any, maxRows int) (*models.QueryResult, error) {
	start := time.Now()
	name := SanitizeAlias(table)
	if name == "" {
		return nil, apperrors.NewQueryError(apperrors.ErrInvalidSourceConfig, "invalid table name %q", table)
	}
	if maxRows <= 0 {
		maxRows = e.cfg.MaxRows
	}

	sess, err := e.openSession(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.close()

	if err := sess.loadRecords(ctx, name, records); err != nil {
		return nil, apperrors.QueryFailed(fmt.Sprintf("failed to load records: %s", logging.SanitizeError(err)))
	}
	catalog := map[string]map[string]string{
		models.APISchema: {aliasKey(name): name},
	}

	result, err := sess.query(ctx, sqlText, params, catalog, maxRows)
	if err != nil {
		return nil, err
	}
	result.ElapsedMs = time.Since(start).Milliseconds()
	return result, nil
}

func (e *Engine) workspaceMaxRows(cfg *models.WorkspaceConfig) int {
	if cfg.MaxRows > 0 && cfg.MaxRows < e.cfg.MaxRows {
		return cfg.MaxRows
	}
	return e.cfg.MaxRows
}

// tighten lowers limit to rowLimit when rowLimit is positive and smaller.
func tighten(limit, rowLimit int) int {
	if rowLimit > 0 && rowLimit < limit {
		return rowLimit
	}
	return limit
}

// session is one embedded engine instance plus its scratch directory.
type session struct {
	db     *sql.DB
	conn   *sql.Conn
	dir    string
	logger *zap.Logger
}

func (e *Engine) openSession(ctx context.Context) (*session, error) {
	dir, err := os.MkdirTemp(e.cfg.TempDir, "workspace-*")
	if err != nil {
		return nil, apperrors.QueryFailed(fmt.Sprintf("failed to create workspace scratch directory: %v", err))
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		os.RemoveAll(dir)
		return nil, apperrors.QueryFailed(fmt.Sprintf("failed to open embedded engine: %v", err))
	}
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		os.RemoveAll(dir)
		return nil, apperrors.QueryFailed(fmt.Sprintf("failed to connect to embedded engine: %v", err))
	}
	return &session{db: db, conn: conn, dir: dir, logger: e.logger}, nil
}

// close tears the engine down and removes the scratch directory. Safe on every path.
func (s *session) close() {
	if err := s.conn.Close(); err != nil {
		s.logger.Warn("failed to close embedded engine connection", zap.Error(err))
	}
	if err := s.db.Close(); err != nil {
		s.logger.Warn("failed to close embedded engine", zap.Error(err))
	}
	if err := os.RemoveAll(s.dir); err != nil {
		s.logger.Warn("failed to remove workspace scratch directory", zap.String("dir", s.dir), zap.Error(err))
	}
}

// lockDown stops user SQL from reaching the filesystem once every input is materialized.
func (s *session) lockDown(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, "SET enable_external_access = false"); err != nil {
		return err
	}
	_, err := s.conn.ExecContext(ctx, "SET lock_configuration = true")
	return err
}

func (s *session) query(ctx context.Context, sqlText string, params map[string]any, catalog map[string]map[string]string, limit int) (*models.QueryResult, error) {
	rewritten, err := RewriteSQL(sqlText, catalog)
	if err != nil {
		return nil, apperrors.AsQueryError(err)
	}
	bound, args, err := sqlutil.BindNamed(rewritten, params, sqlutil.PlaceholderDollar)
	if err != nil {
		return nil, apperrors.AsQueryError(err)
	}
	inner := sqlutil.TrimTrailingSemicolon(bound)
	if inner == "" {
		return nil, apperrors.NewQueryError(apperrors.ErrEmptySQL, "SQL query is empty")
	}

	if err := s.lockDown(ctx); err != nil {
		return nil, apperrors.QueryFailed(fmt.Sprintf("failed to prepare embedded engine: %v", err))
	}

	wrapped := fmt.Sprintf("SELECT * FROM (\n%s\n) AS _workspace LIMIT %d", inner, limit)
	rows, err := s.conn.QueryContext(ctx, wrapped, args...)
	if err != nil {
		return nil, apperrors.QueryFailed(logging.SanitizeError(err))
	}
	defer rows.Close()

	result, err := datasource.CollectRows(rows, limit)
	if err != nil {
		return nil, apperrors.QueryFailed(logging.SanitizeError(err))
	}
	return result, nil
}
