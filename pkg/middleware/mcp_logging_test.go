package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func serveMCP(t *testing.T, reqBody, respBody string) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	handler := MCPRequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, reqBody, string(body), "body must be restored for the next handler")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(respBody))
	}))
	handler.ServeHTTP(httptest.NewRecorder(),
		httptest.NewRequest(http.MethodPost, "/mcp/t", strings.NewReader(reqBody)))
	return logs
}

func TestMCPRequestLogger_Success(t *testing.T) {
	logs := serveMCP(t,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"run_query","arguments":{"datasource":"app","sql":"SELECT * FROM users WHERE email = :email","params":{"email":"a@b.c","age":3}}}}`,
		`{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"{}"}]}}`,
	)

	require.Equal(t, 2, logs.Len())
	req := logs.All()[0].ContextMap()
	assert.Equal(t, "tools/call", req["method"])
	assert.Equal(t, "run_query", req["tool"])
	assert.Equal(t, "app", req["datasource"])
	assert.Equal(t, "SELECT * FROM users WHERE email = :email", req["sql"])
	assert.Equal(t, []any{"age", "email"}, req["param_names"])
	assert.NotContains(t, logs.All()[0].Message+stringify(req), "a@b.c")

	assert.Equal(t, "MCP response success", logs.All()[1].Message)
}

func TestMCPRequestLogger_Errors(t *testing.T) {
	logs := serveMCP(t,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"run_query"}}`,
		`{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"invalid params"}}`,
	)
	require.Equal(t, 2, logs.Len())
	resp := logs.All()[1]
	assert.Equal(t, "MCP response error", resp.Message)
	assert.Equal(t, int64(-32602), resp.ContextMap()["error_code"])

	logs = serveMCP(t,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"run_query"}}`,
		`{"jsonrpc":"2.0","id":1,"result":{"isError":true,"content":[]}}`,
	)
	assert.Equal(t, "MCP tool error", logs.All()[1].Message)
}

func TestArgumentFields_RedactsSecrets(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	zap.New(core).Debug("x", argumentFields(map[string]any{
		"api_token": "abc",
		"sql":       strings.Repeat("x", 500),
	})...)

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "[REDACTED]", fields["api_token"])
	assert.LessOrEqual(t, len(fields["sql"].(string)), maxLoggedSQL+3)
}

func TestMCPRequestLogger_NilLogger(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	assert.NotNil(t, MCPRequestLogger(nil)(next))
}

func stringify(m map[string]any) string {
	var b strings.Builder
	for k, v := range m {
		b.WriteString(k)
		if s, ok := v.(string); ok {
			b.WriteString(s)
		}
	}
	return b.String()
}
