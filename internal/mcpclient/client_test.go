package mcpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosfin/analyst/internal/domain"
	"github.com/mosfin/analyst/internal/mcp"
)

// rpcStub serves canned JSON-RPC results keyed by method.
func rpcStub(t *testing.T, results map[string]any, rpcErr *rpcError) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/mcp", r.URL.Path)

		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "2.0", req.JSONRPC)
		require.NotEmpty(t, req.ID)

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = results[req.Method]
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func stubClient(url string) *Client {
	return NewClient(url, 2*time.Second, zerolog.Nop())
}

func TestClient_CallTool(t *testing.T) {
	upstream := rpcStub(t, map[string]any{
		"tools/call": map[string]any{
			"structuredContent": mcp.Envelope{
				Metadata: mcp.Metadata{Tool: "get_security_snapshot"},
				Data:     map[string]any{"ticker": "SBER", "last": 285.5},
				Metrics:  map[string]any{"cache": "miss"},
			},
		},
	}, nil)
	defer upstream.Close()

	envelope, err := stubClient(upstream.URL).CallTool(context.Background(), "get_security_snapshot",
		map[string]any{"ticker": "SBER"})
	require.NoError(t, err)

	assert.Equal(t, "get_security_snapshot", envelope.Metadata.Tool)
	data := envelope.Data.(map[string]any)
	assert.Equal(t, "SBER", data["ticker"])
	assert.Equal(t, "miss", envelope.Metrics["cache"])
}

func TestClient_CallTool_EnvelopeErrorBecomesDomainError(t *testing.T) {
	upstream := rpcStub(t, map[string]any{
		"tools/call": map[string]any{
			"structuredContent": mcp.Envelope{
				Error: &mcp.ErrorInfo{
					Type:    string(domain.CategoryInvalidTicker),
					Field:   "ticker",
					Message: "unknown ticker NOPE",
				},
			},
		},
	}, nil)
	defer upstream.Close()

	envelope, err := stubClient(upstream.URL).CallTool(context.Background(), "get_security_snapshot",
		map[string]any{"ticker": "NOPE"})

	require.Error(t, err)
	require.NotNil(t, envelope, "the envelope travels alongside the error")
	assert.Equal(t, domain.CategoryInvalidTicker, domain.Categorize(err))

	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "ticker", de.Field)
}

func TestClient_CallTool_UnknownMethod(t *testing.T) {
	upstream := rpcStub(t, nil, &rpcError{Code: -32601, Message: "method not found"})
	defer upstream.Close()

	_, err := stubClient(upstream.URL).CallTool(context.Background(), "anything", nil)
	require.Error(t, err)
	assert.Equal(t, domain.CategoryUnknownTool, domain.Categorize(err))
}

func TestClient_CallTool_HTTPErrorStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer upstream.Close()

	_, err := stubClient(upstream.URL).CallTool(context.Background(), "anything", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")
}

func TestClient_CallTool_UnreachableServer(t *testing.T) {
	_, err := stubClient("http://127.0.0.1:1").CallTool(context.Background(), "anything", nil)
	require.Error(t, err)
	assert.Equal(t, domain.CategoryISSTimeout, domain.Categorize(err))
}

func TestClient_ListTools(t *testing.T) {
	upstream := rpcStub(t, map[string]any{
		"tools/list": map[string]any{
			"tools": []mcp.ToolInfo{
				{Name: "get_ohlcv_timeseries", Description: "OHLCV candles", CostRank: 2},
				{Name: "get_security_snapshot", Description: "Latest quote", CostRank: 1},
			},
		},
	}, nil)
	defer upstream.Close()

	tools, err := stubClient(upstream.URL).ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "get_ohlcv_timeseries", tools[0].Name)
	assert.Equal(t, 2, tools[0].CostRank)
}

func TestRouter_RoutesByDiscoveredTool(t *testing.T) {
	riskServer := rpcStub(t, map[string]any{
		"tools/list": map[string]any{
			"tools": []mcp.ToolInfo{{Name: "analyze_portfolio_risk", CostRank: 3}},
		},
		"tools/call": map[string]any{
			"structuredContent": mcp.Envelope{Data: map[string]any{"from": "risk"}},
		},
	}, nil)
	defer riskServer.Close()

	dataServer := rpcStub(t, map[string]any{
		"tools/list": map[string]any{
			"tools": []mcp.ToolInfo{{Name: "get_security_snapshot", CostRank: 1}},
		},
		"tools/call": map[string]any{
			"structuredContent": mcp.Envelope{Data: map[string]any{"from": "data"}},
		},
	}, nil)
	defer dataServer.Close()

	router, err := NewRouter(context.Background(),
		[]string{riskServer.URL, dataServer.URL}, 2*time.Second, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, []string{"analyze_portfolio_risk", "get_security_snapshot"}, router.ToolNames())
	assert.True(t, router.HasTool("analyze_portfolio_risk"))
	assert.False(t, router.HasTool("get_dividends"))
	assert.Equal(t, 3, router.CostRank("analyze_portfolio_risk"))
	assert.Equal(t, 0, router.CostRank("get_dividends"))

	envelope, err := router.CallTool(context.Background(), "analyze_portfolio_risk", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"from": "risk"}, envelope.Data)

	envelope, err = router.CallTool(context.Background(), "get_security_snapshot", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"from": "data"}, envelope.Data)
}

func TestRouter_SkipsUnreachableServer(t *testing.T) {
	reachable := rpcStub(t, map[string]any{
		"tools/list": map[string]any{
			"tools": []mcp.ToolInfo{{Name: "get_security_snapshot"}},
		},
	}, nil)
	defer reachable.Close()

	router, err := NewRouter(context.Background(),
		[]string{"http://127.0.0.1:1", reachable.URL}, time.Second, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, router.HasTool("get_security_snapshot"))
}

func TestRouter_AllServersDownFailsBoot(t *testing.T) {
	_, err := NewRouter(context.Background(),
		[]string{"http://127.0.0.1:1"}, time.Second, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no MCP server reachable")
}

func TestRouter_UnroutableTool(t *testing.T) {
	reachable := rpcStub(t, map[string]any{
		"tools/list": map[string]any{"tools": []mcp.ToolInfo{}},
	}, nil)
	defer reachable.Close()

	router, err := NewRouter(context.Background(), []string{reachable.URL}, time.Second, zerolog.Nop())
	require.NoError(t, err)

	_, err = router.CallTool(context.Background(), "get_dividends", nil)
	require.Error(t, err)
	assert.Equal(t, domain.CategoryUnknownTool, domain.Categorize(err))
}
