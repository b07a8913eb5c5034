package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query/pkg/federation"
	"github.com/ekaya-inc/ekaya-query/pkg/logging"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
	sqlutil "github.com/ekaya-inc/ekaya-query/pkg/sql"
)

// QueryLimits are the server-wide ceilings every source policy is resolved against.
type QueryLimits struct {
	MaxRows        int
	TimeoutSeconds int
}

// QueryService executes ad-hoc SQL against data sources.
type QueryService interface {
	// Execute runs sqlText against src under the source's effective policy.
	// Every failure is a *apperrors.QueryExecutionError.
	Execute(ctx context.Context, src *models.DataSource, sqlText string, params map[string]any, rowLimit int) (*models.QueryResult, error)

	// TestConnection checks that src is reachable. Built-in sources are always healthy.
	TestConnection(ctx context.Context, src *models.DataSource) error

	// ClearEngineCache closes every cached engine and returns how many were closed.
	ClearEngineCache() int

	// SampleTable reads up to maxRows of one table of a tenant's relational source.
	SampleTable(ctx context.Context, tenantID, sourceID uuid.UUID, table string, maxRows int) (*models.QueryResult, error)
}

type queryService struct {
	sources    SourceStore
	vault      ConfigVault
	engines    *datasource.EngineCache
	federation *federation.Engine
	records    RecordFetcher
	limits     QueryLimits
	logger     *zap.Logger
}

var _ QueryService = (*queryService)(nil)
var _ federation.Sampler = (*queryService)(nil)

// NewQueryService creates a query service with dependencies.
func NewQueryService(
	sources SourceStore,
	vault ConfigVault,
	engines *datasource.EngineCache,
	fed *federation.Engine,
	records RecordFetcher,
	limits QueryLimits,
	logger *zap.Logger,
) QueryService {
	return &queryService{
		sources:    sources,
		vault:      vault,
		engines:    engines,
		federation: fed,
		records:    records,
		limits:     limits,
		logger:     logging.OrNop(logger).Named("query"),
	}
}

func (s *queryService) Execute(ctx context.Context, src *models.DataSource, sqlText string, params map[string]any, rowLimit int) (*models.QueryResult, error) {
	if src == nil {
		return nil, apperrors.NewQueryError(apperrors.ErrNotFound, "data source is required")
	}
	if strings.TrimSpace(sqlText) == "" {
		return nil, apperrors.NewQueryError(apperrors.ErrEmptySQL, "SQL query is empty")
	}

	policy := src.Policy.Effective(s.limits.MaxRows, s.limits.TimeoutSeconds, rowLimit)
	if policy.ReadOnly {
		if ok, kw := sqlutil.IsReadOnly(sqlText); !ok {
			if kw == "" {
				kw = "unknown"
			}
			return nil, apperrors.NewQueryError(apperrors.ErrStatementNotAllowed,
				"only read-only statements (SELECT, WITH, SHOW, DESCRIBE, EXPLAIN) are allowed on this data source, got %s",
				strings.ToUpper(kw))
		}
	}
	if sqlutil.HasMultipleStatements(sqlText) {
		s.logger.Warn("query contains multiple statements",
			zap.String("source_id", src.ID.String()),
			zap.String("sql", logging.SanitizeQuery(sqlText)),
		)
	}

	if policy.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(policy.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	var (
		result *models.QueryResult
		err    error
	)
	switch src.Kind {
	case models.KindPostgres, models.KindMySQL, models.KindSQLServer, models.KindOracle, models.KindSQLite:
		result, err = s.executeRelational(ctx, src, sqlText, params, policy)
	case models.KindWorkspace:
		result, err = s.executeWorkspace(ctx, src, sqlText, params, policy)
	case models.KindAPI:
		result, err = s.executeAPI(ctx, src, sqlText, params, policy)
	case models.KindBuiltinFiles, models.KindBuiltinReports:
		return nil, apperrors.NewQueryError(apperrors.ErrUnsupportedSourceKind,
			"%s is a built-in source and cannot be queried with SQL", src.Kind)
	default:
		return nil, apperrors.NewQueryError(apperrors.ErrUnsupportedSourceKind, "unsupported source kind %q", src.Kind)
	}
	if err != nil {
		return nil, s.timeoutError(ctx, err, policy)
	}
	return result, nil
}

// timeoutError reports an expired policy deadline in place of the driver's cancellation message.
func (s *queryService) timeoutError(ctx context.Context, err error, policy models.ExecutionPolicy) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &apperrors.QueryExecutionError{
			Message: fmt.Sprintf("query exceeded the %d second timeout", policy.TimeoutSeconds),
			Err:     context.DeadlineExceeded,
		}
	}
	return apperrors.AsQueryError(err)
}

// boundParams merges the caller's parameters with tenant_id and screens the ones sqlText
// references. The source's own tenant always wins over a caller-supplied tenant_id.
// Unreferenced parameters are never bound, so they are passed through unscreened.
func boundParams(src *models.DataSource, sqlText string, params map[string]any) (map[string]any, error) {
	merged := make(map[string]any, len(params)+1)
	for k, v := range params {
		merged[k] = v
	}
	merged[sqlutil.TenantParam] = src.TenantID.String()

	referenced := make(map[string]any)
	for _, name := range sqlutil.NamedParameters(sqlText) {
		if v, ok := merged[name]; ok {
			referenced[name] = v
		}
	}
	if err := sqlutil.ScreenParameters(referenced, sqlutil.TenantParam); err != nil {
		return nil, apperrors.AsQueryError(err)
	}
	return merged, nil
}

func (s *queryService) executeRelational(ctx context.Context, src *models.DataSource, sqlText string, params map[string]any, policy models.ExecutionPolicy) (*models.QueryResult, error) {
	start := time.Now()

	cfg, err := decryptAs[*models.ConnectionConfig](s.vault, src)
	if err != nil {
		return nil, configError(err)
	}
	if cfg.TenantColumn != "" && !sqlutil.HasTenantPredicate(sqlText, cfg.TenantColumn) {
		return nil, apperrors.NewQueryError(apperrors.ErrTenantScopeRequired,
			"queries against this data source must filter %s = :%s", cfg.TenantColumn, sqlutil.TenantParam)
	}
	values, err := boundParams(src, sqlText, params)
	if err != nil {
		return nil, err
	}

	eng, err := s.engines.GetEngine(ctx, src)
	if err != nil {
		var de *apperrors.DecryptionError
		if errors.As(err, &de) {
			return nil, configError(err)
		}
		return nil, &apperrors.QueryExecutionError{
			Message: "failed to connect to data source: " + logging.SanitizeError(err),
			Err:     err,
		}
	}

	bound, args, err := sqlutil.BindNamed(sqlText, values, eng.Dialect.Placeholder())
	if err != nil {
		return nil, apperrors.AsQueryError(err)
	}
	bound = sqlutil.TrimTrailingSemicolon(bound)
	bound = limitOnServer(eng.Dialect, bound, policy.MaxRows)

	conn, err := eng.DB.Conn(ctx)
	if err != nil {
		return nil, s.driverError(err, eng)
	}
	defer conn.Close()

	if policy.TimeoutSeconds > 0 {
		if stmt := eng.Dialect.TimeoutStatement(time.Duration(policy.TimeoutSeconds) * time.Second); stmt != "" {
			if _, err := conn.ExecContext(ctx, stmt); err != nil {
				s.logger.Warn("failed to set session timeout",
					zap.String("source_id", src.ID.String()),
					zap.String("error", logging.SanitizeError(err, eng.SecretURL())),
				)
			}
		}
	}

	rows, err := conn.QueryContext(ctx, bound, args...)
	if err != nil {
		return nil, s.driverError(err, eng)
	}
	defer rows.Close()

	result, err := datasource.CollectRows(rows, policy.MaxRows)
	if err != nil {
		return nil, s.driverError(err, eng)
	}
	result.ElapsedMs = time.Since(start).Milliseconds()

	s.logger.Debug("query executed",
		zap.String("source_id", src.ID.String()),
		zap.String("kind", string(src.Kind)),
		zap.Int("rows", len(result.Rows)),
		zap.Int64("elapsed_ms", result.ElapsedMs),
	)
	return result, nil
}

// limitOnServer pushes the row cap into a single SELECT or WITH query so drivers that drain
// unread rows on Close never stream past it. CollectRows still caps every statement.
func limitOnServer(d datasource.Dialect, query string, maxRows int) string {
	if maxRows <= 0 || sqlutil.HasMultipleStatements(query) {
		return query
	}
	switch sqlutil.FirstKeyword(query) {
	case "select", "with":
		return d.LimitQuery(query, maxRows)
	}
	return query
}

// driverError wraps a driver failure with a message scrubbed of the engine's credentials.
func (s *queryService) driverError(err error, eng *datasource.Engine) error {
	return &apperrors.QueryExecutionError{
		Message: logging.SanitizeError(err, eng.SecretURL()),
		Err:     apperrors.ErrQueryFailed,
	}
}

func (s *queryService) executeWorkspace(ctx context.Context, src *models.DataSource, sqlText string, params map[string]any, policy models.ExecutionPolicy) (*models.QueryResult, error) {
	cfg, err := decryptAs[*models.WorkspaceConfig](s.vault, src)
	if err != nil {
		return nil, configError(err)
	}
	values, err := boundParams(src, sqlText, params)
	if err != nil {
		return nil, err
	}
	return s.federation.Execute(ctx, src, cfg, sqlText, values, policy.MaxRows, federation.Upstream{Sampler: s})
}

func (s *queryService) executeAPI(ctx context.Context, src *models.DataSource, sqlText string, params map[string]any, policy models.ExecutionPolicy) (*models.QueryResult, error) {
	cfg, err := decryptAs[*models.APIConfig](s.vault, src)
	if err != nil {
		return nil, configError(err)
	}
	values, err := boundParams(src, sqlText, params)
	if err != nil {
		return nil, err
	}
	if s.records == nil {
		return nil, apperrors.NewQueryError(apperrors.ErrUnsupportedSourceKind, "api sources are not enabled")
	}

	records, err := s.records.Fetch(ctx, cfg)
	if err != nil {
		return nil, &apperrors.QueryExecutionError{
			Message: "failed to fetch records: " + logging.SanitizeError(err, cfg.BearerToken),
			Err:     apperrors.ErrQueryFailed,
		}
	}
	return s.federation.ExecuteRecords(ctx, cfg.Table(), records, sqlText, values, policy.MaxRows)
}

func (s *queryService) TestConnection(ctx context.Context, src *models.DataSource) error {
	switch src.Kind {
	case models.KindPostgres, models.KindMySQL, models.KindSQLServer, models.KindOracle, models.KindSQLite:
		eng, err := s.engines.GetEngine(ctx, src)
		if err != nil {
			return err
		}
		return eng.DB.PingContext(ctx)
	case models.KindWorkspace:
		cfg, err := decryptAs[*models.WorkspaceConfig](s.vault, src)
		if err != nil {
			return err
		}
		if cfg.DBSourceID == nil {
			return nil
		}
		upstream, err := s.sources.Get(ctx, src.TenantID, *cfg.DBSourceID)
		if err != nil {
			return fmt.Errorf("workspace database source: %w", err)
		}
		if upstream.Kind == models.KindWorkspace {
			return fmt.Errorf("%w: workspace database source cannot be another workspace", apperrors.ErrInvalidSourceConfig)
		}
		return s.TestConnection(ctx, upstream)
	case models.KindAPI:
		cfg, err := decryptAs[*models.APIConfig](s.vault, src)
		if err != nil {
			return err
		}
		if s.records == nil {
			return fmt.Errorf("%w: api sources are not enabled", apperrors.ErrUnsupportedSourceKind)
		}
		_, err = s.records.Fetch(ctx, cfg)
		return err
	case models.KindBuiltinFiles, models.KindBuiltinReports:
		return nil
	}
	return fmt.Errorf("%w: %q", apperrors.ErrUnsupportedSourceKind, src.Kind)
}

func (s *queryService) ClearEngineCache() int {
	n := s.engines.Clear()
	s.logger.Info("engine cache cleared", zap.Int("engines", n))
	return n
}

// SampleTable selects up to maxRows of table from the tenant's source, restricted to the
// tenant's rows when the source is tenant-scoped. It runs through Execute so the source's
// policy applies.
func (s *queryService) SampleTable(ctx context.Context, tenantID, sourceID uuid.UUID, table string, maxRows int) (*models.QueryResult, error) {
	src, err := s.sources.Get(ctx, tenantID, sourceID)
	if err != nil {
		return nil, fmt.Errorf("load sample source: %w", err)
	}
	if !src.Kind.IsRelational() {
		return nil, fmt.Errorf("%w: cannot sample tables of %s sources", apperrors.ErrUnsupportedSourceKind, src.Kind)
	}
	cfg, err := decryptAs[*models.ConnectionConfig](s.vault, src)
	if err != nil {
		return nil, err
	}
	dialect, err := datasource.Lookup(src.Kind)
	if err != nil {
		return nil, err
	}

	name, err := quoteTableName(dialect, table)
	if err != nil {
		return nil, err
	}
	query := "SELECT * FROM " + name
	if cfg.TenantColumn != "" {
		query += " WHERE " + dialect.QuoteIdentifier(cfg.TenantColumn) + " = :" + sqlutil.TenantParam
	}
	return s.Execute(ctx, src, query, nil, maxRows)
}

// quoteTableName quotes each dot-separated part of a table reference.
func quoteTableName(d datasource.Dialect, table string) (string, error) {
	parts := strings.Split(strings.TrimSpace(table), ".")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return "", fmt.Errorf("invalid table name %q", table)
		}
		parts[i] = d.QuoteIdentifier(p)
	}
	return strings.Join(parts, "."), nil
}
