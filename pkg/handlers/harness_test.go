package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
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
	"github.com/ekaya-inc/ekaya-query/pkg/config"
	"github.com/ekaya-inc/ekaya-query/pkg/crypto"
	"github.com/ekaya-inc/ekaya-query/pkg/federation"
	"github.com/ekaya-inc/ekaya-query/pkg/files"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
	"github.com/ekaya-inc/ekaya-query/pkg/schemacache"
	"github.com/ekaya-inc/ekaya-query/pkg/services"
)

const testSecret = "dGVzdC1rZXktZm9yLXVuaXQtdGVzdHMtMzItYnl0ZXM="

// memStore backs both data sources and file assets in memory.
type memStore struct {
	mu      sync.Mutex
	sources map[uuid.UUID]*models.DataSource
	assets  map[uuid.UUID]*models.FileAsset
}

func (m *memStore) Create(_ context.Context, src *models.DataSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sources {
		if s.TenantID == src.TenantID && s.Name == src.Name {
			return apperrors.ErrConflict
		}
	}
	src.CreatedAt, src.UpdatedAt = time.Now(), time.Now()
	c := *src
	m.sources[src.ID] = &c
	return nil
}

func (m *memStore) Get(_ context.Context, tenantID, id uuid.UUID) (*models.DataSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[id]
	if !ok || s.TenantID != tenantID {
		return nil, apperrors.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (m *memStore) GetByName(_ context.Context, tenantID uuid.UUID, name string) (*models.DataSource, error) {
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

func (m *memStore) List(_ context.Context, tenantID uuid.UUID) ([]*models.DataSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.DataSource{}
	for _, s := range m.sources {
		if s.TenantID == tenantID {
			c := *s
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *memStore) Update(_ context.Context, src *models.DataSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[src.ID]
	if !ok || s.TenantID != src.TenantID {
		return apperrors.ErrNotFound
	}
	c := *src
	m.sources[src.ID] = &c
	return nil
}

func (m *memStore) Delete(_ context.Context, tenantID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[id]
	if !ok || s.TenantID != tenantID {
		return apperrors.ErrNotFound
	}
	delete(m.sources, id)
	return nil
}

// memAssets adapts memStore to the file asset interfaces.
type memAssets struct{ *memStore }

func (m memAssets) Create(_ context.Context, a *models.FileAsset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *a
	m.assets[a.ID] = &c
	return nil
}

func (m memAssets) Get(_ context.Context, tenantID, id uuid.UUID) (*models.FileAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[id]
	if !ok || a.TenantID != tenantID {
		return nil, apperrors.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (m memAssets) List(_ context.Context, tenantID uuid.UUID) ([]*models.FileAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.FileAsset
	for _, a := range m.assets {
		if a.TenantID == tenantID {
			c := *a
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m memAssets) SetSchema(_ context.Context, tenantID, id uuid.UUID, cols []models.ColumnInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.assets[id]; ok && a.TenantID == tenantID {
		a.Schema = cols
		return nil
	}
	return apperrors.ErrNotFound
}

func (m memAssets) Delete(_ context.Context, tenantID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.assets[id]; ok && a.TenantID == tenantID {
		delete(m.assets, id)
		return nil
	}
	return apperrors.ErrNotFound
}

type testServer struct {
	t       *testing.T
	tenant  uuid.UUID
	mux     *http.ServeMux
	engines *datasource.EngineCache
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)

	vault, err := crypto.NewVault(testSecret)
	require.NoError(t, err)
	engines := datasource.NewEngineCache(datasource.EngineCacheConfig{TTL: time.Minute}, vault, logger)
	t.Cleanup(func() { _ = engines.Close() })

	store := &memStore{sources: map[uuid.UUID]*models.DataSource{}, assets: map[uuid.UUID]*models.FileAsset{}}
	assets := memAssets{store}
	storage, err := files.NewLocalStore(t.TempDir(), assets)
	require.NoError(t, err)
	fed := federation.NewEngine(federation.Config{TempDir: t.TempDir()}, storage, logger)
	schemas := schemacache.New(16, 0, nil, fed, logger)
	records := apisource.NewClient(logger)

	queries := services.NewQueryService(store, vault, engines, fed, records,
		services.QueryLimits{MaxRows: 1000, TimeoutSeconds: 30}, logger)
	intro := services.NewIntrospectionService(store, vault, engines, fed, schemas, records, 100, logger)
	sources := services.NewDatasourceService(store, vault, engines, queries, logger)
	fileSvc := services.NewFileService(assets, storage, schemas, 0, logger)

	noopTenantMiddleware := func(next http.HandlerFunc) http.HandlerFunc { return next }
	mux := http.NewServeMux()
	NewHealthHandler(&config.Config{Version: "test", Env: "test"}, engines, logger).RegisterRoutes(mux)
	NewDatasourcesHandler(sources, queries, intro, 100, logger).RegisterRoutes(mux, noopTenantMiddleware)
	NewFilesHandler(fileSvc, logger).RegisterRoutes(mux, noopTenantMiddleware)
	NewEngineCacheHandler(queries, engines, logger).RegisterRoutes(mux)

	return &testServer{t: t, tenant: uuid.New(), mux: mux, engines: engines}
}

func (s *testServer) path(suffix string) string {
	return "/api/tenants/" + s.tenant.String() + suffix
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) upload(name, content string) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(s.t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(s.t, err)
	require.NoError(s.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, s.path("/files"), &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

// data decodes the "data" member of a success envelope into v.
func data(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env), rec.Body.String())
	require.True(t, env.Success)
	require.NoError(t, json.Unmarshal(env.Data, v))
}

// sqliteDB creates a sqlite file with stmts applied and returns its path.
func sqliteDB(t *testing.T, stmts ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	require.NoError(t, db.Close())
	return path
}
