package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterHealthTool(t *testing.T) {
	mcpServer := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterHealthTool(mcpServer, "test-version", nil)

	result := mcpServer.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`))
	resultBytes, err := json.Marshal(result)
	require.NoError(t, err)

	var response struct {
		Result struct {
			Tools []struct {
				Name        string `json:"name"`
				Description string `json:"description"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(resultBytes, &response))
	require.Len(t, response.Result.Tools, 1)
	assert.Equal(t, "health", response.Result.Tools[0].Name)
	assert.Equal(t, "Returns server health status and version", response.Result.Tools[0].Description)
}

func TestHealthTool_Execute(t *testing.T) {
	h := newToolHarness(t)
	h.sqliteSource("app", "CREATE TABLE t (x INTEGER)")
	h.text(h.call(h.tenant, "run_query", map[string]any{"datasource": "app", "sql": "SELECT x FROM t"}), &map[string]any{})

	var health healthResult
	h.text(h.call(h.tenant, "health", nil), &health)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "test", health.Version)
	require.NotNil(t, health.Engines)
	assert.Equal(t, 1, health.Engines.TotalEngines)
}

func TestHealthTool_VersionWithSpecialChars(t *testing.T) {
	mcpServer := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	versionWithQuotes := `1.0.0-beta"test`
	RegisterHealthTool(mcpServer, versionWithQuotes, nil)

	h := &toolHarness{t: t, server: mcpServer}
	var health healthResult
	h.text(h.call(h.tenant, "health", nil), &health)
	assert.Equal(t, versionWithQuotes, health.Version)
	assert.Nil(t, health.Engines)
}
