// Package mcpclient is the agent-side MCP transport: a JSON-RPC HTTP
// client for one server plus a router that maps tool names to servers
// discovered via tools/list at boot.
package mcpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mosfin/analyst/internal/domain"
	"github.com/mosfin/analyst/internal/mcp"
)

// Client talks JSON-RPC to a single MCP server.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a client for one MCP server base URL (without the
// /mcp suffix).
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "mcp-client").Str("server", baseURL).Logger(),
	}
}

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params,omitempty"`
	ID      string    `json:"id"`
}

type rpcParams struct {
	Name      string         `json:"name,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) call(ctx context.Context, method string, params rpcParams, result any) error {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mcp", bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.WrapError(domain.CategoryISSTimeout, err, fmt.Sprintf("call %s on %s", method, c.baseURL))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.NewError(domain.CategoryUnknown, "%s on %s returned HTTP %d", method, c.baseURL, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		if rpcResp.Error.Code == -32601 {
			return domain.NewError(domain.CategoryUnknownTool, "%s", rpcResp.Error.Message)
		}
		return domain.NewError(domain.CategoryUnknown, "rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

// CallTool invokes one tool and returns its envelope. A non-nil envelope
// error block is also surfaced as a categorized Go error so callers can
// branch on recoverability.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.Envelope, error) {
	var result struct {
		StructuredContent mcp.Envelope `json:"structuredContent"`
	}
	if err := c.call(ctx, "tools/call", rpcParams{Name: name, Arguments: args}, &result); err != nil {
		return nil, err
	}

	envelope := result.StructuredContent
	if envelope.Error != nil {
		return &envelope, &domain.Error{
			Category: domain.Category(envelope.Error.Type),
			Field:    envelope.Error.Field,
			Message:  envelope.Error.Message,
		}
	}
	return &envelope, nil
}

// ListTools fetches the server's tool directory.
func (c *Client) ListTools(ctx context.Context) ([]mcp.ToolInfo, error) {
	var result struct {
		Tools []mcp.ToolInfo `json:"tools"`
	}
	if err := c.call(ctx, "tools/list", rpcParams{}, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// BaseURL returns the server base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}
