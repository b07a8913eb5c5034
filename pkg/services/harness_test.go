package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource/postgres"
	_ "github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource/sqlite"
	"github.com/ekaya-inc/ekaya-query/pkg/apisource"
	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query/pkg/connstr"
	"github.com/ekaya-inc/ekaya-query/pkg/crypto"
	"github.com/ekaya-inc/ekaya-query/pkg/federation"
	"github.com/ekaya-inc/ekaya-query/pkg/files"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

const testSecret = "dGVzdC1rZXktZm9yLXVuaXQtdGVzdHMtMzItYnl0ZXM="

// memSourceStore is an in-memory SourceStore.
type memSourceStore struct {
	mu      sync.Mutex
	sources map[uuid.UUID]*models.DataSource
}

func newMemSourceStore() *memSourceStore {
	return &memSourceStore{sources: make(map[uuid.UUID]*models.DataSource)}
}

func (m *memSourceStore) Create(_ context.Context, src *models.DataSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sources {
		if s.TenantID == src.TenantID && s.Name == src.Name {
			return apperrors.ErrConflict
		}
	}
	now := time.Now()
	src.CreatedAt, src.UpdatedAt = now, now
	c := *src
	m.sources[src.ID] = &c
	return nil
}

func (m *memSourceStore) Get(_ context.Context, tenantID, id uuid.UUID) (*models.DataSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[id]
	if !ok || s.TenantID != tenantID {
		return nil, apperrors.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (m *memSourceStore) GetByName(_ context.Context, tenantID uuid.UUID, name string) (*models.DataSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sources {
		if s.TenantID == tenantID && s.Name == name {
			c := *s
			return &c, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *memSourceStore) List(_ context.Context, tenantID uuid.UUID) ([]*models.DataSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.DataSource
	for _, s := range m.sources {
		if s.TenantID == tenantID {
			c := *s
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *memSourceStore) Update(_ context.Context, src *models.DataSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[src.ID]
	if !ok || s.TenantID != src.TenantID {
		return apperrors.ErrNotFound
	}
	src.UpdatedAt = time.Now()
	c := *src
	m.sources[src.ID] = &c
	return nil
}

func (m *memSourceStore) Delete(_ context.Context, tenantID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[id]
	if !ok || s.TenantID != tenantID {
		return apperrors.ErrNotFound
	}
	delete(m.sources, id)
	return nil
}

// memAssets is an in-memory files.AssetRepository.
type memAssets map[uuid.UUID]*models.FileAsset

func (m memAssets) Get(_ context.Context, tenantID, id uuid.UUID) (*models.FileAsset, error) {
	a, ok := m[id]
	if !ok || a.TenantID != tenantID {
		return nil, apperrors.ErrNotFound
	}
	return a, nil
}

type harness struct {
	t       *testing.T
	tenant  uuid.UUID
	store   *memSourceStore
	vault   *crypto.Vault
	engines *datasource.EngineCache
	fed     *federation.Engine
	files   *files.LocalStore
	assets  memAssets
	queries QueryService
	intro   IntrospectionService
	sources DatasourceService
}

type harnessOption func(*datasource.EngineCacheConfig)

func withOpen(open datasource.OpenFunc) harnessOption {
	return func(c *datasource.EngineCacheConfig) { c.Open = open }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)

	vault, err := crypto.NewVault(testSecret)
	require.NoError(t, err)

	cacheCfg := datasource.EngineCacheConfig{TTL: time.Minute}
	for _, opt := range opts {
		opt(&cacheCfg)
	}
	engines := datasource.NewEngineCache(cacheCfg, vault, logger)
	t.Cleanup(func() { _ = engines.Close() })

	assets := memAssets{}
	fileStore, err := files.NewLocalStore(t.TempDir(), assets)
	require.NoError(t, err)
	fed := federation.NewEngine(federation.Config{TempDir: t.TempDir()}, fileStore, logger)

	store := newMemSourceStore()
	records := apisource.NewClient(logger)
	queries := NewQueryService(store, vault, engines, fed, records, QueryLimits{MaxRows: 1000, TimeoutSeconds: 30}, logger)

	return &harness{
		t:       t,
		tenant:  uuid.New(),
		store:   store,
		vault:   vault,
		engines: engines,
		fed:     fed,
		files:   fileStore,
		assets:  assets,
		queries: queries,
		intro:   NewIntrospectionService(store, vault, engines, fed, nil, records, 100, logger),
		sources: NewDatasourceService(store, vault, engines, queries, logger),
	}
}

// addSource encrypts cfg and stores a source for the harness tenant.
func (h *harness) addSource(kind models.SourceKind, name string, cfg models.SourceConfig, policy models.Policy) *models.DataSource {
	h.t.Helper()
	blob, err := h.vault.EncryptConfig(kind, cfg)
	require.NoError(h.t, err)
	src := &models.DataSource{
		ID:              uuid.New(),
		TenantID:        h.tenant,
		Kind:            kind,
		Name:            name,
		EncryptedConfig: blob,
		Policy:          policy,
	}
	require.NoError(h.t, h.store.Create(context.Background(), src))
	return src
}

// sqliteSource creates a sqlite database with stmts applied and registers it.
func (h *harness) sqliteSource(name string, cfg models.ConnectionConfig, policy models.Policy, stmts ...string) *models.DataSource {
	h.t.Helper()
	path := filepath.Join(h.t.TempDir(), name+".db")
	db, err := sql.Open("sqlite", path)
	require.NoError(h.t, err)
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(h.t, err, stmt)
	}
	require.NoError(h.t, db.Close())

	cfg.URL = connstr.SQLiteURL(path)
	return h.addSource(models.KindSQLite, name, &cfg, policy)
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
