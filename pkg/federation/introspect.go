package federation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query/pkg/logging"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

// Introspect describes a workspace as two pseudo-schemas: "files" with one table per
// registered file and "db" with the sampled tables of the database source. Columns that
// cannot be read are reported empty.
func (e *Engine) Introspect(ctx context.Context, ws *models.DataSource, cfg *models.WorkspaceConfig, up Upstream) (*models.SchemaCatalog, error) {
	if ws == nil || cfg == nil {
		return nil, fmt.Errorf("workspace configuration is missing")
	}

	filesSchema := models.SchemaInfo{Name: models.WorkspaceFilesSchema, Tables: []models.TableInfo{}}
	seen := make(map[string]bool)
	for _, f := range cfg.Files {
		asset, path, err := e.resolveFile(ctx, ws.TenantID, f.FileID)
		if err != nil {
			e.logger.Warn("skipping workspace file in introspection",
				zap.String("file_id", f.FileID.String()),
				zap.String("error", logging.SanitizeError(err)),
			)
			continue
		}
		alias := fileAlias(f, asset)
		if alias == "" || seen[aliasKey(alias)] {
			continue
		}
		seen[aliasKey(alias)] = true

		filesSchema.Tables = append(filesSchema.Tables, models.TableInfo{
			Name:    alias,
			Columns: e.fileColumns(ctx, asset, path, up.Schemas),
		})
	}

	dbSchema := models.SchemaInfo{Name: models.WorkspaceDBSchema, Tables: []models.TableInfo{}}
	if cfg.DBSourceID != nil && len(cfg.DBTables) > 0 {
		tables := cfg.DBTables
		if len(tables) > e.cfg.MaxDBTables {
			tables = tables[:e.cfg.MaxDBTables]
		}
		dbSchema.Tables = e.dbTables(ctx, ws, *cfg.DBSourceID, tables, up.Tables)
	}

	return &models.SchemaCatalog{Schemas: []models.SchemaInfo{filesSchema, dbSchema}}, nil
}

func (e *Engine) fileColumns(ctx context.Context, asset *models.FileAsset, path string, schemas SchemaLookup) []models.ColumnInfo {
	if len(asset.Schema) > 0 {
		return asset.Schema
	}
	var (
		cols []models.ColumnInfo
		err  error
	)
	if schemas != nil {
		cols, err = schemas.Columns(ctx, asset, path)
	} else {
		cols, err = e.DescribeFile(ctx, asset, path)
	}
	if err != nil {
		e.logger.Warn("failed to read file schema",
			zap.String("file_id", asset.ID.String()),
			zap.String("error", logging.SanitizeError(err)),
		)
		return []models.ColumnInfo{}
	}
	return cols
}

func (e *Engine) dbTables(ctx context.Context, ws *models.DataSource, sourceID uuid.UUID, tables []string, describer TableDescriber) []models.TableInfo {
	namesOnly := func() []models.TableInfo {
		out := make([]models.TableInfo, len(tables))
		for i, t := range tables {
			out[i] = models.TableInfo{Name: lastSegment(t), Columns: []models.ColumnInfo{}}
		}
		return out
	}
	if describer == nil {
		return namesOnly()
	}

	infos, err := describer.DescribeTables(ctx, ws.TenantID, sourceID, tables)
	if err != nil {
		e.logger.Warn("workspace database source unreachable, listing table names only",
			zap.String("workspace_id", ws.ID.String()),
			zap.String("error", logging.SanitizeError(err)),
		)
		return namesOnly()
	}
	for i := range infos {
		infos[i].Name = lastSegment(infos[i].Name)
		if infos[i].Columns == nil {
			infos[i].Columns = []models.ColumnInfo{}
		}
	}
	return infos
}

// DescribeFile reads the column names and types of a file with the embedded engine.
func (e *Engine) DescribeFile(ctx context.Context, asset *models.FileAsset, path string) ([]models.ColumnInfo, error) {
	sess, err := e.openSession(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.close()

	reader, err := sess.readerFor(asset.Format, path)
	if err != nil {
		return nil, err
	}
	return sess.describe(ctx, "SELECT * FROM "+reader)
}

// DescribeRecords infers the columns JSON records load as.
func (e *Engine) DescribeRecords(ctx context.Context, records []Record) ([]models.ColumnInfo, error) {
	sess, err := e.openSession(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.close()

	if err := sess.loadRecords(ctx, "records", records); err != nil {
		return nil, err
	}
	return sess.describe(ctx, "SELECT * FROM records")
}

func (s *session) describe(ctx context.Context, query string) ([]models.ColumnInfo, error) {
	rows, err := s.conn.QueryContext(ctx, "DESCRIBE "+query)
	if err != nil {
		return nil, fmt.Errorf("describe: %w", err)
	}
	defer rows.Close()

	result, err := datasource.CollectRows(rows, 0)
	if err != nil {
		return nil, err
	}
	cols := make([]models.ColumnInfo, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) < 2 {
			continue
		}
		cols = append(cols, models.ColumnInfo{
			Name: fmt.Sprint(row[0]),
			Type: fmt.Sprint(row[1]),
		})
	}
	return cols, nil
}
