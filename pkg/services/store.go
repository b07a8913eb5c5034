package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-query/pkg/federation"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

// SourceStore persists data sources. Implementations return apperrors.ErrNotFound for
// missing or foreign rows and apperrors.ErrConflict for duplicate names.
type SourceStore interface {
	Create(ctx context.Context, src *models.DataSource) error
	Get(ctx context.Context, tenantID, id uuid.UUID) (*models.DataSource, error)
	GetByName(ctx context.Context, tenantID uuid.UUID, name string) (*models.DataSource, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]*models.DataSource, error)
	Update(ctx context.Context, src *models.DataSource) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
}

// ConfigVault seals and opens per-kind source configuration.
type ConfigVault interface {
	EncryptConfig(kind models.SourceKind, cfg models.SourceConfig) ([]byte, error)
	DecryptConfig(kind models.SourceKind, blob []byte) (models.SourceConfig, error)
	DecryptSource(src *models.DataSource) (models.SourceConfig, error)
}

// RecordFetcher loads the JSON records of an API source.
type RecordFetcher interface {
	Fetch(ctx context.Context, cfg *models.APIConfig) ([]federation.Record, error)
}
