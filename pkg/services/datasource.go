package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query/pkg/connstr"
	"github.com/ekaya-inc/ekaya-query/pkg/logging"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

// DataSourceInput is the user-editable part of a data source.
type DataSourceInput struct {
	Name   string            `json:"name"`
	Kind   models.SourceKind `json:"type"`
	Config json.RawMessage   `json:"config"`
	Policy models.Policy     `json:"policy"`
}

// SourceView is a data source with its decrypted, redacted configuration.
type SourceView struct {
	*models.DataSource
	Config models.SourceConfig `json:"config"`
}

// DatasourceService defines the interface for datasource operations.
type DatasourceService interface {
	// Create validates, encrypts and stores a new data source.
	Create(ctx context.Context, tenantID uuid.UUID, in *DataSourceInput) (*SourceView, error)

	// Get retrieves a data source by ID within a tenant. The config stays encrypted.
	Get(ctx context.Context, tenantID, id uuid.UUID) (*models.DataSource, error)

	// GetByName retrieves a data source by name within a tenant.
	GetByName(ctx context.Context, tenantID uuid.UUID, name string) (*models.DataSource, error)

	// List retrieves all data sources of a tenant.
	List(ctx context.Context, tenantID uuid.UUID) ([]*models.DataSource, error)

	// Describe decrypts a data source's config with secrets masked.
	Describe(src *models.DataSource) (*SourceView, error)

	// Update replaces name, config and policy. Masked secrets in the input keep their stored values.
	// Cached engines are closed when the effective connection URL changes.
	Update(ctx context.Context, tenantID, id uuid.UUID, in *DataSourceInput) (*SourceView, error)

	// Delete removes a data source and closes its cached engines.
	Delete(ctx context.Context, tenantID, id uuid.UUID) error

	// Test checks connectivity of a stored data source.
	Test(ctx context.Context, tenantID, id uuid.UUID) error

	// TestConfig checks connectivity of an unsaved data source.
	TestConfig(ctx context.Context, tenantID uuid.UUID, in *DataSourceInput) error
}

// datasourceService implements DatasourceService.
type datasourceService struct {
	store   SourceStore
	vault   ConfigVault
	engines *datasource.EngineCache
	queries QueryService
	logger  *zap.Logger
}

// NewDatasourceService creates a new datasource service with dependencies.
func NewDatasourceService(
	store SourceStore,
	vault ConfigVault,
	engines *datasource.EngineCache,
	queries QueryService,
	logger *zap.Logger,
) DatasourceService {
	return &datasourceService{
		store:   store,
		vault:   vault,
		engines: engines,
		queries: queries,
		logger:  logging.OrNop(logger).Named("datasource"),
	}
}

func (s *datasourceService) Create(ctx context.Context, tenantID uuid.UUID, in *DataSourceInput) (*SourceView, error) {
	src, cfg, err := s.prepare(tenantID, in)
	if err != nil {
		return nil, err
	}
	src.ID = uuid.New()

	if err := s.store.Create(ctx, src); err != nil {
		return nil, err
	}

	s.logger.Info("Created datasource",
		zap.String("id", src.ID.String()),
		zap.String("tenant_id", tenantID.String()),
		zap.String("name", src.Name),
		zap.String("type", string(src.Kind)),
	)
	return &SourceView{DataSource: src, Config: redact(cfg)}, nil
}

func (s *datasourceService) Get(ctx context.Context, tenantID, id uuid.UUID) (*models.DataSource, error) {
	return s.store.Get(ctx, tenantID, id)
}

func (s *datasourceService) GetByName(ctx context.Context, tenantID uuid.UUID, name string) (*models.DataSource, error) {
	return s.store.GetByName(ctx, tenantID, name)
}

func (s *datasourceService) List(ctx context.Context, tenantID uuid.UUID) ([]*models.DataSource, error) {
	return s.store.List(ctx, tenantID)
}

func (s *datasourceService) Describe(src *models.DataSource) (*SourceView, error) {
	cfg, err := s.vault.DecryptSource(src)
	if err != nil {
		return nil, err
	}
	return &SourceView{DataSource: src, Config: redact(cfg)}, nil
}

func (s *datasourceService) Update(ctx context.Context, tenantID, id uuid.UUID, in *DataSourceInput) (*SourceView, error) {
	existing, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	oldCfg, err := s.vault.DecryptSource(existing)
	if err != nil {
		var de *apperrors.DecryptionError
		if !errors.As(err, &de) {
			return nil, err
		}
		// credentials are being re-entered
		oldCfg = nil
	}

	cfg, err := decodeInput(in)
	if err != nil {
		return nil, err
	}
	if in.Kind == existing.Kind {
		keepSecrets(cfg, oldCfg)
	}
	updated, cfg, err := s.seal(tenantID, in, cfg)
	if err != nil {
		return nil, err
	}
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt

	if err := s.store.Update(ctx, updated); err != nil {
		return nil, err
	}

	if existing.Kind != updated.Kind || effectiveURL(existing.Kind, oldCfg) != effectiveURL(updated.Kind, cfg) {
		n := s.engines.ClearSource(id)
		s.logger.Info("Connection changed, closed cached engines",
			zap.String("id", id.String()),
			zap.Int("engines", n),
		)
	}

	s.logger.Info("Updated datasource", zap.String("id", id.String()))
	return &SourceView{DataSource: updated, Config: redact(cfg)}, nil
}

func (s *datasourceService) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	if err := s.store.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	s.engines.ClearSource(id)

	s.logger.Info("Deleted datasource", zap.String("id", id.String()))
	return nil
}

func (s *datasourceService) Test(ctx context.Context, tenantID, id uuid.UUID) error {
	src, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if err := s.queries.TestConnection(ctx, src); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

func (s *datasourceService) TestConfig(ctx context.Context, tenantID uuid.UUID, in *DataSourceInput) error {
	src, _, err := s.prepare(tenantID, in)
	if err != nil {
		return err
	}
	src.ID = uuid.New()
	defer s.engines.ClearSource(src.ID)

	if err := s.queries.TestConnection(ctx, src); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	s.logger.Info("Connection test successful", zap.String("type", string(src.Kind)))
	return nil
}

// prepare validates input and returns an unsaved, encrypted data source.
func (s *datasourceService) prepare(tenantID uuid.UUID, in *DataSourceInput) (*models.DataSource, models.SourceConfig, error) {
	cfg, err := decodeInput(in)
	if err != nil {
		return nil, nil, err
	}
	return s.seal(tenantID, in, cfg)
}

func (s *datasourceService) seal(tenantID uuid.UUID, in *DataSourceInput, cfg models.SourceConfig) (*models.DataSource, models.SourceConfig, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, nil, fmt.Errorf("%w: datasource name is required", apperrors.ErrInvalidSourceConfig)
	}
	if in.Policy.MaxRows < 0 || in.Policy.TimeoutSeconds < 0 {
		return nil, nil, fmt.Errorf("%w: policy limits must not be negative", apperrors.ErrInvalidSourceConfig)
	}

	normalizeConnection(in.Kind, cfg)
	blob, err := s.vault.EncryptConfig(in.Kind, cfg)
	if err != nil {
		return nil, nil, err
	}
	return &models.DataSource{
		TenantID:        tenantID,
		Kind:            in.Kind,
		Name:            name,
		EncryptedConfig: blob,
		Policy:          in.Policy,
	}, cfg, nil
}

func decodeInput(in *DataSourceInput) (models.SourceConfig, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: missing datasource", apperrors.ErrInvalidSourceConfig)
	}
	kind, err := models.ParseSourceKind(string(in.Kind))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidSourceConfig, err)
	}
	in.Kind = kind

	raw := in.Config
	if kind.IsBuiltin() && len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	cfg, err := models.DecodeSourceConfig(kind, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidSourceConfig, err)
	}
	return cfg, nil
}

// normalizeConnection keeps stored URLs redacted: a password typed into the URL moves
// into the structured parts.
func normalizeConnection(kind models.SourceKind, cfg models.SourceConfig) {
	cc, ok := cfg.(*models.ConnectionConfig)
	if !ok || cc.URL == "" {
		return
	}
	if kind == models.KindSQLite {
		cc.URL = connstr.SQLiteURL(cc.URL)
		return
	}
	if pw := connstr.Password(cc.URL); pw != "" && !connstr.IsMasked(cc.URL) {
		if cc.Conn == nil {
			cc.Conn = &models.ConnParts{}
		}
		cc.Conn.Password = pw
		cc.URL = connstr.RedactPassword(cc.URL)
	}
}

// keepSecrets fills masked or omitted secrets of cfg from the stored config.
func keepSecrets(cfg, old models.SourceConfig) {
	switch c := cfg.(type) {
	case *models.ConnectionConfig:
		prev, ok := old.(*models.ConnectionConfig)
		if !ok || prev.Password() == "" {
			return
		}
		if c.Password() == "" || c.Password() == connstr.RedactedPassword {
			if c.Conn == nil {
				c.Conn = &models.ConnParts{}
			}
			c.Conn.Password = prev.Password()
		}
	case *models.APIConfig:
		prev, ok := old.(*models.APIConfig)
		if !ok {
			return
		}
		if c.BearerToken == connstr.RedactedPassword {
			c.BearerToken = prev.BearerToken
		}
		for k, v := range c.Headers {
			if v == connstr.RedactedPassword {
				c.Headers[k] = prev.Headers[k]
			}
		}
	}
}

// effectiveURL is the URL engines for cfg are keyed by, or "" when there is none.
func effectiveURL(kind models.SourceKind, cfg models.SourceConfig) string {
	cc, ok := cfg.(*models.ConnectionConfig)
	if !ok || !kind.IsRelational() {
		return ""
	}
	u, err := datasource.ResolveEffectiveURL(kind, cc)
	if err != nil {
		return ""
	}
	return u
}

// redact returns a copy of cfg with secrets replaced by the mask.
func redact(cfg models.SourceConfig) models.SourceConfig {
	switch c := cfg.(type) {
	case *models.ConnectionConfig:
		out := *c
		out.URL = connstr.RedactPassword(c.URL)
		if c.Conn != nil {
			parts := *c.Conn
			if parts.Password != "" {
				parts.Password = connstr.RedactedPassword
			}
			out.Conn = &parts
		}
		return &out
	case *models.APIConfig:
		out := *c
		if out.BearerToken != "" {
			out.BearerToken = connstr.RedactedPassword
		}
		if len(c.Headers) > 0 {
			out.Headers = make(map[string]string, len(c.Headers))
			for k, v := range c.Headers {
				if isSecretHeader(k) {
					v = connstr.RedactedPassword
				}
				out.Headers[k] = v
			}
		}
		return &out
	}
	return cfg
}

func isSecretHeader(name string) bool {
	n := strings.ToLower(name)
	return n == "authorization" || strings.Contains(n, "token") || strings.Contains(n, "key") || strings.Contains(n, "secret")
}

// Ensure datasourceService implements DatasourceService at compile time.
var _ DatasourceService = (*datasourceService)(nil)
