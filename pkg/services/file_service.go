package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query/pkg/files"
	"github.com/ekaya-inc/ekaya-query/pkg/logging"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

// DefaultMaxUploadBytes bounds a single uploaded file.
const DefaultMaxUploadBytes = 256 << 20

// FileAssetStore persists file asset metadata.
type FileAssetStore interface {
	Create(ctx context.Context, asset *models.FileAsset) error
	Get(ctx context.Context, tenantID, id uuid.UUID) (*models.FileAsset, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]*models.FileAsset, error)
	SetSchema(ctx context.Context, tenantID, id uuid.UUID, cols []models.ColumnInfo) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
}

// FileSchemas caches inferred file schemas.
type FileSchemas interface {
	Columns(ctx context.Context, asset *models.FileAsset, path string) ([]models.ColumnInfo, error)
	Invalidate(ctx context.Context, tenantID, fileID uuid.UUID)
}

// FileService manages the uploaded files workspaces query.
type FileService interface {
	Upload(ctx context.Context, tenantID uuid.UUID, name string, content io.Reader) (*models.FileAsset, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]*models.FileAsset, error)
	// Describe infers the file's columns and records them on the asset.
	Describe(ctx context.Context, tenantID, id uuid.UUID) (*models.FileAsset, error)
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
}

type fileService struct {
	assets   FileAssetStore
	storage  *files.LocalStore
	schemas  FileSchemas
	maxBytes int64
	logger   *zap.Logger
}

var _ FileService = (*fileService)(nil)

// NewFileService creates a file service. maxBytes <= 0 uses DefaultMaxUploadBytes.
func NewFileService(assets FileAssetStore, storage *files.LocalStore, schemas FileSchemas, maxBytes int64, logger *zap.Logger) FileService {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &fileService{
		assets:   assets,
		storage:  storage,
		schemas:  schemas,
		maxBytes: maxBytes,
		logger:   logging.OrNop(logger).Named("files"),
	}
}

func (s *fileService) Upload(ctx context.Context, tenantID uuid.UUID, name string, content io.Reader) (*models.FileAsset, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, fmt.Errorf("%w: file name is required", apperrors.ErrInvalidFile)
	}
	format, err := models.ParseFileFormat(filepath.Ext(name))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidFile, err)
	}

	id := uuid.New()
	stored, err := s.storage.Save(tenantID, id, name, content, s.maxBytes)
	if err != nil {
		if errors.Is(err, files.ErrTooLarge) {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidFile, err)
		}
		return nil, fmt.Errorf("store file: %w", err)
	}

	asset := &models.FileAsset{
		ID:          id,
		TenantID:    tenantID,
		Name:        name,
		StoragePath: stored.StoragePath,
		Format:      format,
		SizeBytes:   stored.SizeBytes,
		Checksum:    stored.Checksum,
	}
	if err := s.assets.Create(ctx, asset); err != nil {
		_ = s.storage.Remove(tenantID, stored.StoragePath)
		return nil, err
	}

	s.logger.Info("Stored file",
		zap.String("tenant_id", tenantID.String()),
		zap.String("file_id", id.String()),
		zap.String("format", string(format)),
		zap.Int64("size_bytes", stored.SizeBytes),
	)
	return asset, nil
}

func (s *fileService) List(ctx context.Context, tenantID uuid.UUID) ([]*models.FileAsset, error) {
	return s.assets.List(ctx, tenantID)
}

func (s *fileService) Describe(ctx context.Context, tenantID, id uuid.UUID) (*models.FileAsset, error) {
	asset, err := s.assets.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if len(asset.Schema) > 0 {
		return asset, nil
	}
	path, err := s.storage.ResolveAbsolutePath(tenantID, asset.StoragePath)
	if err != nil {
		return nil, err
	}
	cols, err := s.schemas.Columns(ctx, asset, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidFile, logging.SanitizeError(err))
	}
	if err := s.assets.SetSchema(ctx, tenantID, id, cols); err != nil {
		s.logger.Warn("failed to record file schema",
			zap.String("file_id", id.String()),
			zap.Error(err),
		)
	}
	asset.Schema = cols
	return asset, nil
}

func (s *fileService) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	asset, err := s.assets.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if err := s.assets.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	s.schemas.Invalidate(ctx, tenantID, id)
	if err := s.storage.Remove(tenantID, asset.StoragePath); err != nil {
		s.logger.Warn("failed to remove stored file",
			zap.String("file_id", id.String()),
			zap.Error(err),
		)
	}
	s.logger.Info("Deleted file", zap.String("file_id", id.String()))
	return nil
}
