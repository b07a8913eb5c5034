package tools

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource/sqlite"
	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query/pkg/crypto"
	"github.com/ekaya-inc/ekaya-query/pkg/federation"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
	"github.com/ekaya-inc/ekaya-query/pkg/services"
)

const testSecret = "dGVzdC1rZXktZm9yLXVuaXQtdGVzdHMtMzItYnl0ZXM="

type memSources struct {
	mu      sync.Mutex
	sources map[uuid.UUID]*models.DataSource
}

func (m *memSources) Create(_ context.Context, src *models.DataSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sources {
		if s.TenantID == src.TenantID && s.Name == src.Name {
			return apperrors.ErrConflict
		}
	}
	c := *src
	m.sources[src.ID] = &c
	return nil
}

func (m *memSources) Get(_ context.Context, tenantID, id uuid.UUID) (*models.DataSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sources[id]; ok && s.TenantID == tenantID {
		c := *s
		return &c, nil
	}
	return nil, apperrors.ErrNotFound
}

func (m *memSources) GetByName(_ context.Context, tenantID uuid.UUID, name string) (*models.DataSource, error) {
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

func (m *memSources) List(_ context.Context, tenantID uuid.UUID) ([]*models.DataSource, error) {
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

func (m *memSources) Update(_ context.Context, src *models.DataSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sources[src.ID]; ok && s.TenantID == src.TenantID {
		c := *src
		m.sources[src.ID] = &c
		return nil
	}
	return apperrors.ErrNotFound
}

func (m *memSources) Delete(_ context.Context, tenantID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sources[id]; ok && s.TenantID == tenantID {
		delete(m.sources, id)
		return nil
	}
	return apperrors.ErrNotFound
}

type toolHarness struct {
	t       *testing.T
	tenant  uuid.UUID
	server  *server.MCPServer
	sources services.DatasourceService
	engines *datasource.EngineCache
}

func newToolHarness(t *testing.T) *toolHarness {
	t.Helper()
	logger := zaptest.NewLogger(t)

	vault, err := crypto.NewVault(testSecret)
	require.NoError(t, err)
	engines := datasource.NewEngineCache(datasource.EngineCacheConfig{TTL: time.Minute}, vault, logger)
	t.Cleanup(func() { _ = engines.Close() })

	store := &memSources{sources: map[uuid.UUID]*models.DataSource{}}
	fed := federation.NewEngine(federation.Config{TempDir: t.TempDir()}, nil, logger)
	queries := services.NewQueryService(store, vault, engines, fed, nil,
		services.QueryLimits{MaxRows: 1000, TimeoutSeconds: 30}, logger)
	sources := services.NewDatasourceService(store, vault, engines, queries, logger)

	s := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterDataTools(s, &Deps{
		Datasources:     sources,
		Queries:         queries,
		Introspection:   services.NewIntrospectionService(store, vault, engines, fed, nil, nil, 100, logger),
		TenantContext:   services.UnscopedTenantContext,
		DefaultRowLimit: 100,
		Logger:          logger,
	})
	RegisterHealthTool(s, "test", engines)

	return &toolHarness{t: t, tenant: uuid.New(), server: s, sources: sources, engines: engines}
}

// sqliteSource creates a sqlite database with stmts applied and registers it by name.
func (h *toolHarness) sqliteSource(name string, stmts ...string) *services.SourceView {
	h.t.Helper()
	path := filepath.Join(h.t.TempDir(), name+".db")
	db, err := sql.Open("sqlite", path)
	require.NoError(h.t, err)
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(h.t, err, stmt)
	}
	require.NoError(h.t, db.Close())

	cfg, err := json.Marshal(map[string]any{"url": path})
	require.NoError(h.t, err)
	view, err := h.sources.Create(context.Background(), h.tenant, &services.DataSourceInput{
		Name: name, Kind: models.KindSQLite, Config: cfg,
	})
	require.NoError(h.t, err)
	return view
}

type toolResponse struct {
	Result *struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// call invokes a tool as tenant and returns the response envelope.
func (h *toolHarness) call(tenant uuid.UUID, name string, args map[string]any) toolResponse {
	h.t.Helper()
	params, err := json.Marshal(map[string]any{"name": name, "arguments": args})
	require.NoError(h.t, err)
	msg := fmt.Sprintf(`{"jsonrpc":"2.0","method":"tools/call","params":%s,"id":1}`, params)

	ctx := context.Background()
	if tenant != uuid.Nil {
		ctx = WithTenantID(ctx, tenant)
	}
	raw, err := json.Marshal(h.server.HandleMessage(ctx, []byte(msg)))
	require.NoError(h.t, err)
	var resp toolResponse
	require.NoError(h.t, json.Unmarshal(raw, &resp))
	return resp
}

// text returns the text of a successful tool call decoded into v.
func (h *toolHarness) text(resp toolResponse, v any) {
	h.t.Helper()
	require.Nil(h.t, resp.Error)
	require.NotNil(h.t, resp.Result)
	require.NotEmpty(h.t, resp.Result.Content)
	require.NoError(h.t, json.Unmarshal([]byte(resp.Result.Content[0].Text), v), resp.Result.Content[0].Text)
}
