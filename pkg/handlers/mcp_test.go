package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-query/pkg/mcp"
	"github.com/ekaya-inc/ekaya-query/pkg/mcp/tools"
)

func newMCPMux(t *testing.T) *http.ServeMux {
	t.Helper()
	logger := zaptest.NewLogger(t)
	srv := mcp.NewServer("ekaya-query", "test", logger)
	tools.RegisterHealthTool(srv.MCP(), "test", nil)

	mux := http.NewServeMux()
	NewMCPHandler(srv, logger).RegisterRoutes(mux)
	return mux
}

func postMCP(mux *http.ServeMux, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestMCPHandler_ToolCall(t *testing.T) {
	mux := newMCPMux(t)

	rec := postMCP(mux, "/mcp/"+uuid.NewString(), `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"health"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Result struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Result.Content, 1)
	assert.Contains(t, resp.Result.Content[0].Text, `"status":"ok"`)
}

func TestMCPHandler_Rejections(t *testing.T) {
	mux := newMCPMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "POST", rec.Header().Get("Allow"))

	rec = postMCP(mux, "/mcp/not-a-tenant", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
