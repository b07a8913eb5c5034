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
)

const (
	DefaultMaxIntrospectTables = 500
	introspectTimeout          = 60 * time.Second
	apiSampleRecords           = 100
)

// IntrospectionService describes the schemas, tables and columns of data sources.
type IntrospectionService interface {
	Introspect(ctx context.Context, src *models.DataSource) (*models.SchemaCatalog, error)

	// DescribeTables returns the columns of the named tables of a tenant's relational source.
	// Tables may be schema-qualified; unqualified names use the source's default schema.
	DescribeTables(ctx context.Context, tenantID, sourceID uuid.UUID, tables []string) ([]models.TableInfo, error)
}

type introspectionService struct {
	sources     SourceStore
	vault       ConfigVault
	engines     *datasource.EngineCache
	federation  *federation.Engine
	fileSchemas federation.SchemaLookup
	records     RecordFetcher
	maxTables   int
	logger      *zap.Logger
}

var _ federation.TableDescriber = (*introspectionService)(nil)

// NewIntrospectionService creates an introspection service. fileSchemas and records may be nil.
func NewIntrospectionService(
	sources SourceStore,
	vault ConfigVault,
	engines *datasource.EngineCache,
	fed *federation.Engine,
	fileSchemas federation.SchemaLookup,
	records RecordFetcher,
	maxTables int,
	logger *zap.Logger,
) IntrospectionService {
	if maxTables <= 0 {
		maxTables = DefaultMaxIntrospectTables
	}
	return &introspectionService{
		sources:     sources,
		vault:       vault,
		engines:     engines,
		federation:  fed,
		fileSchemas: fileSchemas,
		records:     records,
		maxTables:   maxTables,
		logger:      logging.OrNop(logger).Named("introspection"),
	}
}

func (s *introspectionService) Introspect(ctx context.Context, src *models.DataSource) (*models.SchemaCatalog, error) {
	ctx, cancel := context.WithTimeout(ctx, introspectTimeout)
	defer cancel()

	switch src.Kind {
	case models.KindPostgres, models.KindMySQL, models.KindSQLServer, models.KindOracle, models.KindSQLite:
		return s.introspectRelational(ctx, src)
	case models.KindWorkspace:
		cfg, err := decryptAs[*models.WorkspaceConfig](s.vault, src)
		if err != nil {
			return nil, err
		}
		return s.federation.Introspect(ctx, src, cfg, federation.Upstream{Tables: s, Schemas: s.fileSchemas})
	case models.KindAPI:
		return s.introspectAPI(ctx, src)
	case models.KindBuiltinFiles, models.KindBuiltinReports:
		return &models.SchemaCatalog{Schemas: []models.SchemaInfo{}}, nil
	}
	return nil, fmt.Errorf("%w: %q", apperrors.ErrUnsupportedSourceKind, src.Kind)
}

func (s *introspectionService) introspectRelational(ctx context.Context, src *models.DataSource) (*models.SchemaCatalog, error) {
	cfg, err := decryptAs[*models.ConnectionConfig](s.vault, src)
	if err != nil {
		return nil, err
	}
	eng, err := s.engines.GetEngine(ctx, src)
	if err != nil {
		return nil, err
	}

	schemas, err := s.schemaNames(ctx, eng, cfg)
	if err != nil {
		return nil, fmt.Errorf("list schemas: %s", logging.SanitizeError(err, eng.SecretURL()))
	}

	catalog := &models.SchemaCatalog{Schemas: make([]models.SchemaInfo, 0, len(schemas))}
	for _, schema := range schemas {
		info := models.SchemaInfo{Name: schema, Tables: []models.TableInfo{}}

		tables, err := eng.Dialect.ListTables(ctx, eng.DB, schema, s.maxTables)
		if err != nil {
			s.logger.Warn("failed to list tables",
				zap.String("source_id", src.ID.String()),
				zap.String("schema", schema),
				zap.String("error", logging.SanitizeError(err, eng.SecretURL())),
			)
			catalog.Schemas = append(catalog.Schemas, info)
			continue
		}
		for _, table := range tables {
			info.Tables = append(info.Tables, models.TableInfo{
				Name:    table,
				Columns: s.columns(ctx, eng, schema, table),
			})
		}
		catalog.Schemas = append(catalog.Schemas, info)
	}

	s.logger.Debug("introspected source",
		zap.String("source_id", src.ID.String()),
		zap.Int("schemas", len(catalog.Schemas)),
		zap.Int("tables", catalog.TableCount()),
	)
	return catalog, nil
}

// schemaNames lists the schemas to walk. A configured default schema wins; dialects
// without schemas yield one unnamed schema.
func (s *introspectionService) schemaNames(ctx context.Context, eng *datasource.Engine, cfg *models.ConnectionConfig) ([]string, error) {
	if cfg.DefaultSchema != "" {
		return []string{cfg.DefaultSchema}, nil
	}
	schemas, err := eng.Dialect.ListSchemas(ctx, eng.DB)
	if errors.Is(err, datasource.ErrSchemasUnsupported) {
		return []string{""}, nil
	}
	if err != nil {
		return nil, err
	}
	return schemas, nil
}

// columns never fails: an unreadable table reports no columns.
func (s *introspectionService) columns(ctx context.Context, eng *datasource.Engine, schema, table string) []models.ColumnInfo {
	meta, err := eng.Dialect.ListColumns(ctx, eng.DB, schema, table)
	if err != nil {
		s.logger.Warn("failed to list columns",
			zap.String("source_id", eng.SourceID.String()),
			zap.String("table", table),
			zap.String("error", logging.SanitizeError(err, eng.SecretURL())),
		)
		return []models.ColumnInfo{}
	}
	cols := make([]models.ColumnInfo, len(meta))
	for i, m := range meta {
		cols[i] = models.ColumnInfo{Name: m.Name, Type: m.DataType}
	}
	return cols
}

func (s *introspectionService) introspectAPI(ctx context.Context, src *models.DataSource) (*models.SchemaCatalog, error) {
	cfg, err := decryptAs[*models.APIConfig](s.vault, src)
	if err != nil {
		return nil, err
	}
	table := models.TableInfo{Name: cfg.Table(), Columns: []models.ColumnInfo{}}

	if s.records != nil {
		records, err := s.records.Fetch(ctx, cfg)
		if err == nil {
			if len(records) > apiSampleRecords {
				records = records[:apiSampleRecords]
			}
			var cols []models.ColumnInfo
			cols, err = s.federation.DescribeRecords(ctx, records)
			if err == nil {
				table.Columns = cols
			}
		}
		if err != nil {
			s.logger.Warn("failed to infer api columns",
				zap.String("source_id", src.ID.String()),
				zap.String("error", logging.SanitizeError(err, cfg.BearerToken)),
			)
		}
	}

	return &models.SchemaCatalog{Schemas: []models.SchemaInfo{
		{Name: models.APISchema, Tables: []models.TableInfo{table}},
	}}, nil
}

func (s *introspectionService) DescribeTables(ctx context.Context, tenantID, sourceID uuid.UUID, tables []string) ([]models.TableInfo, error) {
	src, err := s.sources.Get(ctx, tenantID, sourceID)
	if err != nil {
		return nil, err
	}
	if !src.Kind.IsRelational() {
		return nil, fmt.Errorf("%w: cannot describe tables of %s sources", apperrors.ErrUnsupportedSourceKind, src.Kind)
	}
	cfg, err := decryptAs[*models.ConnectionConfig](s.vault, src)
	if err != nil {
		return nil, err
	}
	eng, err := s.engines.GetEngine(ctx, src)
	if err != nil {
		return nil, err
	}

	out := make([]models.TableInfo, 0, len(tables))
	for _, t := range tables {
		schema, name := cfg.DefaultSchema, t
		if i := strings.LastIndexByte(t, '.'); i >= 0 {
			schema, name = t[:i], t[i+1:]
		}
		out = append(out, models.TableInfo{Name: t, Columns: s.columns(ctx, eng, schema, name)})
	}
	return out, nil
}
