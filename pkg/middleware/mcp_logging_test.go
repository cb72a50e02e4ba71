package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
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

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, reqBody, string(body), "body must be restored for the MCP server")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(respBody))
	})

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(reqBody))
	MCPRequestLogger(zap.New(core))(handler).ServeHTTP(httptest.NewRecorder(), req)
	return logs
}

func TestMCPRequestLogger(t *testing.T) {
	t.Run("tool call", func(t *testing.T) {
		logs := serveMCP(t,
			`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"approve_review_item","arguments":{"id":"4f1c","reviewer":"priya"}}}`,
			`{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"{}"}]}}`,
		)

		require.Equal(t, 2, logs.Len())
		call := logs.All()[0]
		assert.Equal(t, "MCP tool call", call.Message)
		assert.Equal(t, zapcore.InfoLevel, call.Level)
		assert.Equal(t, "approve_review_item", call.ContextMap()["tool"])

		done := logs.All()[1]
		assert.Equal(t, "MCP tool call finished", done.Message)
		assert.Equal(t, zapcore.DebugLevel, done.Level)
	})

	t.Run("tool error result", func(t *testing.T) {
		logs := serveMCP(t,
			`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"reject_review_item","arguments":{"id":"x"}}}`,
			`{"jsonrpc":"2.0","id":1,"result":{"isError":true,"content":[{"type":"text","text":"{\"code\":\"invalid_transition\"}"}]}}`,
		)

		require.Equal(t, 2, logs.Len())
		entry := logs.All()[1]
		assert.Equal(t, "MCP tool returned an error", entry.Message)
		assert.Equal(t, zapcore.WarnLevel, entry.Level)
		assert.Contains(t, entry.ContextMap()["result"], "invalid_transition")
	})

	t.Run("protocol error", func(t *testing.T) {
		logs := serveMCP(t,
			`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"ingestion_stats"}}`,
			`{"jsonrpc":"2.0","id":1,"error":{"code":-32603,"message":"dial postgres://app:hunter2@db:5432 failed"}}`,
		)

		require.Equal(t, 2, logs.Len())
		entry := logs.All()[1]
		assert.Equal(t, "MCP request failed", entry.Message)
		assert.Equal(t, int64(-32603), entry.ContextMap()["error_code"])
		assert.NotContains(t, entry.ContextMap()["error_message"], "hunter2")
	})

	t.Run("non tool method logs at debug", func(t *testing.T) {
		logs := serveMCP(t,
			`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
			`{"jsonrpc":"2.0","id":1,"result":{"tools":[]}}`,
		)

		require.Equal(t, 1, logs.Len())
		assert.Equal(t, "MCP request", logs.All()[0].Message)
		assert.Equal(t, zapcore.DebugLevel, logs.All()[0].Level)
	})

	t.Run("nil logger passes through", func(t *testing.T) {
		called := false
		h := MCPRequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/mcp", nil))
		assert.True(t, called)
	})
}

func TestScrubArguments(t *testing.T) {
	long := bytes.Repeat([]byte("a"), 300)

	got := scrubArguments(map[string]any{
		"reviewer":     "priya",
		"api_key":      "abc",
		"reason":       "forwarded with Bearer eyJhbGciOiJIUzI1NiJ9.payload.sig attached",
		"long":         string(long),
		"limit":        float64(20),
		"corrections":  map[string]any{"client_name": "Shree", "refresh_token": "1//0gabc"},
		"items":        []any{map[string]any{"index": float64(0)}},
		"access_token": "zzz",
	})

	assert.Equal(t, "priya", got["reviewer"])
	assert.Equal(t, "[REDACTED]", got["api_key"])
	assert.Equal(t, "[REDACTED]", got["access_token"])
	assert.NotContains(t, got["reason"], "eyJhbGciOiJIUzI1NiJ9")
	assert.Len(t, got["long"], maxLoggedArgument+3)
	assert.Equal(t, float64(20), got["limit"])

	nested := got["corrections"].(map[string]any)
	assert.Equal(t, "Shree", nested["client_name"])
	assert.Equal(t, "[REDACTED]", nested["refresh_token"])
	assert.Equal(t, []any{map[string]any{"index": float64(0)}}, got["items"])

	assert.Nil(t, scrubArguments(nil))
}
