package federation

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/logging"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

// SanitizeAlias maps a table alias onto [A-Za-z0-9_]. Aliases starting with a digit
// get a "t_" prefix. An alias with no usable characters yields "".
func SanitizeAlias(alias string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(alias) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := b.String()
	if strings.Trim(s, "_") == "" {
		return ""
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = "t_" + s
	}
	return s
}

func aliasKey(name string) string {
	return strings.ToLower(name)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// fileAlias is the sanitized table alias of a workspace file, defaulting to the file name.
func fileAlias(f models.WorkspaceFile, asset *models.FileAsset) string {
	if alias := SanitizeAlias(f.TableAlias); alias != "" {
		return alias
	}
	return SanitizeAlias(strings.TrimSuffix(asset.Name, filepath.Ext(asset.Name)))
}

// registerFiles materializes every workspace file the tenant owns and returns
// alias key -> registered table name.
func (e *Engine) registerFiles(ctx context.Context, sess *session, ws *models.DataSource, cfg *models.WorkspaceConfig) map[string]string {
	registered := make(map[string]string)
	for _, f := range cfg.Files {
		if ctx.Err() != nil {
			break
		}
		log := e.logger.With(
			zap.String("workspace_id", ws.ID.String()),
			zap.String("file_id", f.FileID.String()),
		)

		asset, path, err := e.resolveFile(ctx, ws.TenantID, f.FileID)
		if err != nil {
			log.Warn("skipping workspace file", zap.String("error", logging.SanitizeError(err)))
			continue
		}

		alias := fileAlias(f, asset)
		if alias == "" {
			log.Warn("skipping workspace file without usable alias", zap.String("alias", f.TableAlias))
			continue
		}
		if _, dup := registered[aliasKey(alias)]; dup {
			log.Warn("skipping workspace file with duplicate alias", zap.String("alias", alias))
			continue
		}

		reader, err := sess.readerFor(asset.Format, path)
		if err != nil {
			log.Warn("skipping unreadable workspace file", zap.String("error", logging.SanitizeError(err)))
			continue
		}
		stmt := fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s", quoteIdent(alias), reader)
		if _, err := sess.conn.ExecContext(ctx, stmt); err != nil {
			log.Warn("failed to register workspace file",
				zap.String("alias", alias),
				zap.String("error", logging.SanitizeError(err)),
			)
			continue
		}
		registered[aliasKey(alias)] = alias
	}
	return registered
}

// resolveFile loads an asset and verifies it belongs to tenantID before resolving its path.
func (e *Engine) resolveFile(ctx context.Context, tenantID, fileID uuid.UUID) (*models.FileAsset, string, error) {
	if e.files == nil {
		return nil, "", fmt.Errorf("no file store configured")
	}
	asset, err := e.files.GetAsset(ctx, tenantID, fileID)
	if err != nil {
		return nil, "", fmt.Errorf("load file asset: %w", err)
	}
	if asset.TenantID != tenantID {
		return nil, "", fmt.Errorf("file asset belongs to another tenant")
	}
	path, err := e.files.ResolveAbsolutePath(tenantID, asset.StoragePath)
	if err != nil {
		return nil, "", fmt.Errorf("resolve file path: %w", err)
	}
	return asset, path, nil
}

// readerFor returns the table function reading path in the given format.
func (s *session) readerFor(format models.FileFormat, path string) (string, error) {
	switch format {
	case models.FormatCSV:
		return fmt.Sprintf("read_csv_auto(%s)", quoteLiteral(path)), nil
	case models.FormatParquet:
		return fmt.Sprintf("read_parquet(%s)", quoteLiteral(path)), nil
	case models.FormatJSON:
		return fmt.Sprintf("read_json_auto(%s)", quoteLiteral(path)), nil
	case models.FormatXLSX:
		csvPath, err := s.spreadsheetToCSV(path)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("read_csv_auto(%s, header = true)", quoteLiteral(csvPath)), nil
	}
	return "", fmt.Errorf("unsupported file format %q", format)
}

// spreadsheetToCSV writes the first sheet of a workbook to a CSV in the session directory.
func (s *session) spreadsheetToCSV(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return "", fmt.Errorf("spreadsheet has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return "", fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("sheet %q is empty", sheet)
	}

	out, err := os.CreateTemp(s.dir, "sheet-*.csv")
	if err != nil {
		return "", err
	}
	defer out.Close()

	width := len(rows[0])
	w := csv.NewWriter(out)
	for _, row := range rows {
		if len(row) < width {
			row = append(row, make([]string, width-len(row))...)
		}
		if err := w.Write(row[:width]); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return out.Name(), nil
}

// importSample materializes a bounded sample of each configured table of the
// workspace's database source and returns table key -> registered table name.
func (e *Engine) importSample(ctx context.Context, sess *session, ws *models.DataSource, cfg *models.WorkspaceConfig, maxRows int, sampler Sampler) map[string]string {
	imported := make(map[string]string)
	if cfg.DBSourceID == nil || len(cfg.DBTables) == 0 {
		return imported
	}
	if sampler == nil {
		e.logger.Warn("workspace references a database source but no sampler is available",
			zap.String("workspace_id", ws.ID.String()))
		return imported
	}

	tables := cfg.DBTables
	if len(tables) > e.cfg.MaxDBTables {
		e.logger.Warn("workspace table list truncated",
			zap.String("workspace_id", ws.ID.String()),
			zap.Int("configured", len(tables)),
			zap.Int("max", e.cfg.MaxDBTables),
		)
		tables = tables[:e.cfg.MaxDBTables]
	}

	for _, table := range tables {
		if ctx.Err() != nil {
			break
		}
		log := e.logger.With(
			zap.String("workspace_id", ws.ID.String()),
			zap.String("table", table),
		)

		base := SanitizeAlias(lastSegment(table))
		if base == "" {
			log.Warn("skipping database table with unusable name")
			continue
		}
		if _, dup := imported[aliasKey(base)]; dup {
			log.Warn("skipping database table with duplicate name")
			continue
		}

		sample, err := sampler.SampleTable(ctx, ws.TenantID, *cfg.DBSourceID, table, maxRows)
		if err != nil {
			log.Warn("skipping database table", zap.String("error", logging.SanitizeError(err)))
			continue
		}
		name := "db_" + base
		if err := sess.materialize(ctx, name, sample); err != nil {
			log.Warn("failed to import database table", zap.String("error", logging.SanitizeError(err)))
			continue
		}
		imported[aliasKey(base)] = name
	}
	return imported
}

func lastSegment(table string) string {
	if i := strings.LastIndexByte(table, '.'); i >= 0 {
		return table[i+1:]
	}
	return table
}
