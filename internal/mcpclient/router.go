package mcpclient

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/mosfin/analyst/internal/domain"
	"github.com/mosfin/analyst/internal/mcp"
)

// Router maps tool names to the MCP server that serves them. The routing
// table is built once at boot from each server's tools/list and is
// read-only afterwards.
type Router struct {
	clients []*Client
	routes  map[string]*Client
	costs   map[string]int
	log     zerolog.Logger
}

// NewRouter connects to every MCP server URL and discovers its tools.
// A server that fails discovery is skipped with a warning rather than
// failing the boot; at least one reachable server is required.
func NewRouter(ctx context.Context, urls []string, timeout time.Duration, log zerolog.Logger) (*Router, error) {
	r := &Router{
		routes: make(map[string]*Client),
		costs:  make(map[string]int),
		log:    log.With().Str("component", "mcp-router").Logger(),
	}

	for _, url := range urls {
		client := NewClient(url, timeout, log)
		tools, err := client.ListTools(ctx)
		if err != nil {
			r.log.Warn().Err(err).Str("server", url).Msg("MCP server discovery failed, skipping")
			continue
		}
		r.clients = append(r.clients, client)
		for _, tool := range tools {
			if existing, dup := r.routes[tool.Name]; dup {
				r.log.Warn().Str("tool", tool.Name).Str("server", existing.BaseURL()).
					Msg("Duplicate tool name, keeping first registration")
				continue
			}
			r.routes[tool.Name] = client
			r.costs[tool.Name] = tool.CostRank
		}
		r.log.Info().Str("server", url).Int("tools", len(tools)).Msg("Discovered MCP tools")
	}

	if len(r.clients) == 0 {
		return nil, fmt.Errorf("no MCP server reachable out of %d configured", len(urls))
	}
	return r, nil
}

// CallTool routes the call to the owning server.
func (r *Router) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.Envelope, error) {
	client, ok := r.routes[name]
	if !ok {
		return nil, domain.NewError(domain.CategoryUnknownTool, "tool %q is not served by any connected MCP server", name)
	}
	return client.CallTool(ctx, name, args)
}

// HasTool reports whether a tool is routable.
func (r *Router) HasTool(name string) bool {
	_, ok := r.routes[name]
	return ok
}

// CostRank returns the advertised cost rank for a tool, 0 when unknown.
func (r *Router) CostRank(name string) int {
	return r.costs[name]
}

// ToolNames lists every routable tool sorted by name.
func (r *Router) ToolNames() []string {
	names := make([]string, 0, len(r.routes))
	for name := range r.routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
