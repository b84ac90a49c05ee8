package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	registry := NewRegistry()
	require.NoError(t, registry.Register(ToolSpec{
		Name:        "echo",
		Description: "echoes the ticker back",
		InputSchema: echoSchema,
		CostRank:    1,
		Handler: func(ctx context.Context, args map[string]any) (any, map[string]any, error) {
			return map[string]any{"ticker": args["ticker"]}, nil, nil
		},
	}))
	dispatcher := NewDispatcher(registry, nil, DispatcherConfig{}, zerolog.Nop())
	return NewServer(ServerConfig{Name: "test-mcp", Addr: ":0"}, dispatcher, nil, zerolog.Nop())
}

func postRPC(t *testing.T, srv *Server, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_ToolsCall(t *testing.T) {
	srv := newTestServer(t)

	rec := postRPC(t, srv, `{
		"jsonrpc": "2.0",
		"id": 7,
		"method": "tools/call",
		"params": {"name": "echo", "arguments": {"ticker": "SBER"}}
	}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Result  struct {
			StructuredContent Envelope `json:"structuredContent"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2.0", resp.JSONRPC)
	assert.Equal(t, "7", string(resp.ID))

	envelope := resp.Result.StructuredContent
	require.Nil(t, envelope.Error)
	assert.Equal(t, "echo", envelope.Metadata.Tool)
	assert.Equal(t, map[string]any{"ticker": "SBER"}, envelope.Data)
}

func TestServer_ToolsCallValidationErrorInEnvelope(t *testing.T) {
	srv := newTestServer(t)

	rec := postRPC(t, srv, `{
		"jsonrpc": "2.0",
		"id": 1,
		"method": "tools/call",
		"params": {"name": "echo", "arguments": {}}
	}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Result struct {
			StructuredContent Envelope `json:"structuredContent"`
		} `json:"result"`
		Error *rpcError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.Error, "tool failures ride in the envelope, not the RPC error")
	require.NotNil(t, resp.Result.StructuredContent.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Result.StructuredContent.Error.Type)
}

func TestServer_ToolsList(t *testing.T) {
	srv := newTestServer(t)

	rec := postRPC(t, srv, `{"jsonrpc": "2.0", "id": 2, "method": "tools/list"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Result struct {
			Tools []ToolInfo `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Result.Tools, 1)
	assert.Equal(t, "echo", resp.Result.Tools[0].Name)
	assert.Equal(t, 1, resp.Result.Tools[0].CostRank)
	assert.NotEmpty(t, resp.Result.Tools[0].InputSchema)
}

func TestServer_UnknownMethod(t *testing.T) {
	srv := newTestServer(t)

	rec := postRPC(t, srv, `{"jsonrpc": "2.0", "id": 3, "method": "resources/list"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
}

func TestServer_ParseError(t *testing.T) {
	srv := newTestServer(t)

	rec := postRPC(t, srv, `{not json`, nil)
	var resp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32700, resp.Error.Code)
}

func TestServer_SSEFraming(t *testing.T) {
	srv := newTestServer(t)

	rec := postRPC(t, srv, `{"jsonrpc": "2.0", "id": 4, "method": "tools/list"}`,
		map[string]string{"Accept": "text/event-stream"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	require.True(t, strings.HasPrefix(body, "event: message\ndata: "))
	require.True(t, strings.HasSuffix(body, "\n\n"))

	payload := strings.TrimSuffix(strings.TrimPrefix(body, "event: message\ndata: "), "\n\n")
	var resp rpcResponse
	require.NoError(t, json.Unmarshal([]byte(payload), &resp))
	assert.Equal(t, "2.0", resp.JSONRPC)
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "test-mcp", health["service"])
}
