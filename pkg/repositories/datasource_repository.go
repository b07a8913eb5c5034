package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query/pkg/database"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

// DatasourceRepository defines data access for data sources.
// Config is stored encrypted; encryption and decryption happen in the service layer.
type DatasourceRepository interface {
	// Create inserts a new data source. Returns apperrors.ErrConflict if the name is taken in the tenant.
	Create(ctx context.Context, src *models.DataSource) error
	Get(ctx context.Context, tenantID, id uuid.UUID) (*models.DataSource, error)
	GetByName(ctx context.Context, tenantID uuid.UUID, name string) (*models.DataSource, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]*models.DataSource, error)
	// Update replaces kind, name, config and policy.
	Update(ctx context.Context, src *models.DataSource) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
}

// datasourceRepository implements DatasourceRepository using PostgreSQL.
type datasourceRepository struct{}

// NewDatasourceRepository creates a new datasource repository.
func NewDatasourceRepository() DatasourceRepository {
	return &datasourceRepository{}
}

const datasourceColumns = `id, tenant_id, name, kind, encrypted_config, policy, created_at, updated_at`

// tenantScope returns the scoped connection in ctx. A scope bound to another tenant
// sees no rows of tenantID.
func tenantScope(ctx context.Context, tenantID uuid.UUID) (*database.TenantScope, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}
	if bound, ok := database.TenantFromContext(ctx); ok && bound != tenantID {
		return nil, apperrors.ErrNotFound
	}
	return scope, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *datasourceRepository) Create(ctx context.Context, src *models.DataSource) error {
	scope, err := tenantScope(ctx, src.TenantID)
	if err != nil {
		return err
	}
	policy, err := json.Marshal(src.Policy)
	if err != nil {
		return fmt.Errorf("failed to encode policy: %w", err)
	}
	if src.ID == uuid.Nil {
		src.ID = uuid.New()
	}

	now := time.Now()
	query := `
		INSERT INTO data_sources (` + datasourceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`

	_, err = scope.Conn.Exec(ctx, query,
		src.ID,
		src.TenantID,
		src.Name,
		string(src.Kind),
		src.EncryptedConfig,
		policy,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create datasource: %w", err)
	}

	src.CreatedAt = now
	src.UpdatedAt = now
	return nil
}

func (r *datasourceRepository) Get(ctx context.Context, tenantID, id uuid.UUID) (*models.DataSource, error) {
	scope, err := tenantScope(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	row := scope.Conn.QueryRow(ctx, `
		SELECT `+datasourceColumns+`
		FROM data_sources
		WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	return scanDataSource(row)
}

func (r *datasourceRepository) GetByName(ctx context.Context, tenantID uuid.UUID, name string) (*models.DataSource, error) {
	scope, err := tenantScope(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	row := scope.Conn.QueryRow(ctx, `
		SELECT `+datasourceColumns+`
		FROM data_sources
		WHERE tenant_id = $1 AND name = $2`, tenantID, name)
	return scanDataSource(row)
}

func (r *datasourceRepository) List(ctx context.Context, tenantID uuid.UUID) ([]*models.DataSource, error) {
	scope, err := tenantScope(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	rows, err := scope.Conn.Query(ctx, `
		SELECT `+datasourceColumns+`
		FROM data_sources
		WHERE tenant_id = $1
		ORDER BY name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasources: %w", err)
	}
	defer rows.Close()

	sources := make([]*models.DataSource, 0)
	for rows.Next() {
		src, err := scanDataSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating datasources: %w", err)
	}
	return sources, nil
}

func (r *datasourceRepository) Update(ctx context.Context, src *models.DataSource) error {
	scope, err := tenantScope(ctx, src.TenantID)
	if err != nil {
		return err
	}
	policy, err := json.Marshal(src.Policy)
	if err != nil {
		return fmt.Errorf("failed to encode policy: %w", err)
	}

	now := time.Now()
	tag, err := scope.Conn.Exec(ctx, `
		UPDATE data_sources
		SET name = $3, kind = $4, encrypted_config = $5, policy = $6, updated_at = $7
		WHERE tenant_id = $1 AND id = $2`,
		src.TenantID, src.ID, src.Name, string(src.Kind), src.EncryptedConfig, policy, now)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to update datasource: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	src.UpdatedAt = now
	return nil
}

func (r *datasourceRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	scope, err := tenantScope(ctx, tenantID)
	if err != nil {
		return err
	}
	tag, err := scope.Conn.Exec(ctx, `DELETE FROM data_sources WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to delete datasource: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanDataSource(row pgx.Row) (*models.DataSource, error) {
	var (
		src    models.DataSource
		kind   string
		policy []byte
	)
	err := row.Scan(
		&src.ID,
		&src.TenantID,
		&src.Name,
		&kind,
		&src.EncryptedConfig,
		&policy,
		&src.CreatedAt,
		&src.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan datasource: %w", err)
	}
	src.Kind = models.SourceKind(kind)
	if len(policy) > 0 {
		if err := json.Unmarshal(policy, &src.Policy); err != nil {
			return nil, fmt.Errorf("failed to decode policy: %w", err)
		}
	}
	return &src, nil
}
