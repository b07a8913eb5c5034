package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

// FileAssetRepository stores metadata of uploaded files.
type FileAssetRepository interface {
	Create(ctx context.Context, asset *models.FileAsset) error
	Get(ctx context.Context, tenantID, id uuid.UUID) (*models.FileAsset, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]*models.FileAsset, error)
	// SetSchema records the column list inferred for a file.
	SetSchema(ctx context.Context, tenantID, id uuid.UUID, cols []models.ColumnInfo) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
}

type fileAssetRepository struct{}

// NewFileAssetRepository creates a new file asset repository.
func NewFileAssetRepository() FileAssetRepository {
	return &fileAssetRepository{}
}

const fileAssetColumns = `id, tenant_id, name, storage_path, format, size_bytes, checksum, schema, created_at`

func (r *fileAssetRepository) Create(ctx context.Context, asset *models.FileAsset) error {
	scope, err := tenantScope(ctx, asset.TenantID)
	if err != nil {
		return err
	}
	schema, err := encodeSchema(asset.Schema)
	if err != nil {
		return err
	}
	if asset.ID == uuid.Nil {
		asset.ID = uuid.New()
	}
	asset.CreatedAt = time.Now()

	_, err = scope.Conn.Exec(ctx, `
		INSERT INTO file_assets (`+fileAssetColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		asset.ID, asset.TenantID, asset.Name, asset.StoragePath, string(asset.Format),
		asset.SizeBytes, asset.Checksum, schema, asset.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create file asset: %w", err)
	}
	return nil
}

func (r *fileAssetRepository) Get(ctx context.Context, tenantID, id uuid.UUID) (*models.FileAsset, error) {
	scope, err := tenantScope(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	row := scope.Conn.QueryRow(ctx, `
		SELECT `+fileAssetColumns+`
		FROM file_assets
		WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	return scanFileAsset(row)
}

func (r *fileAssetRepository) List(ctx context.Context, tenantID uuid.UUID) ([]*models.FileAsset, error) {
	scope, err := tenantScope(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	rows, err := scope.Conn.Query(ctx, `
		SELECT `+fileAssetColumns+`
		FROM file_assets
		WHERE tenant_id = $1
		ORDER BY created_at, name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list file assets: %w", err)
	}
	defer rows.Close()

	assets := make([]*models.FileAsset, 0)
	for rows.Next() {
		a, err := scanFileAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating file assets: %w", err)
	}
	return assets, nil
}

func (r *fileAssetRepository) SetSchema(ctx context.Context, tenantID, id uuid.UUID, cols []models.ColumnInfo) error {
	scope, err := tenantScope(ctx, tenantID)
	if err != nil {
		return err
	}
	schema, err := encodeSchema(cols)
	if err != nil {
		return err
	}
	tag, err := scope.Conn.Exec(ctx,
		`UPDATE file_assets SET schema = $3 WHERE tenant_id = $1 AND id = $2`, tenantID, id, schema)
	if err != nil {
		return fmt.Errorf("failed to update file schema: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *fileAssetRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	scope, err := tenantScope(ctx, tenantID)
	if err != nil {
		return err
	}
	tag, err := scope.Conn.Exec(ctx, `DELETE FROM file_assets WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to delete file asset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// encodeSchema returns nil for an unknown schema so the column stays NULL.
func encodeSchema(cols []models.ColumnInfo) ([]byte, error) {
	if cols == nil {
		return nil, nil
	}
	b, err := json.Marshal(cols)
	if err != nil {
		return nil, fmt.Errorf("failed to encode file schema: %w", err)
	}
	return b, nil
}

func scanFileAsset(row pgx.Row) (*models.FileAsset, error) {
	var (
		a      models.FileAsset
		format string
		schema []byte
	)
	err := row.Scan(&a.ID, &a.TenantID, &a.Name, &a.StoragePath, &format,
		&a.SizeBytes, &a.Checksum, &schema, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan file asset: %w", err)
	}
	a.Format = models.FileFormat(format)
	if len(schema) > 0 {
		if err := json.Unmarshal(schema, &a.Schema); err != nil {
			return nil, fmt.Errorf("failed to decode file schema: %w", err)
		}
	}
	return &a, nil
}
